package control

import (
	"context"
)

// Signals sent by RotateIdentity, in order.
const (
	signalClearDNSCache = "CLEARDNSCACHE"
	signalNewNym        = "NEWNYM"
)

// RotateIdentity clears the daemon's DNS cache, requests new circuits with
// NEWNYM and then waits the settle delay. It does not wait for a new circuit
// to be BUILT; call WaitUntilUsable for that.
func (c *Client) RotateIdentity(ctx context.Context) error {
	if err := c.ensureAuthenticated(); err != nil {
		return err
	}

	for _, signal := range []string{signalClearDNSCache, signalNewNym} {
		if err := c.expectOK(ctx, "SIGNAL "+signal); err != nil {
			return &RotationError{Signal: signal, Err: err}
		}
		c.logger.Debug("signal accepted", "signal", signal)
	}

	c.logger.Debug("waiting for circuits to settle", "delay", c.settleDelay)
	return sleep(ctx, c.settleDelay)
}
