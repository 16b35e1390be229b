package control

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Default timing for circuit waits and identity rotation.
const (
	// DefaultSettleDelay gives the daemon time to start building a fresh
	// circuit after NEWNYM. Without it the previous circuit can still be
	// reported as BUILT for a moment.
	DefaultSettleDelay = 10 * time.Second

	// DefaultPollInterval separates circuit-status queries in WaitUntilUsable.
	DefaultPollInterval = 1 * time.Second

	// DefaultPollBudget is the number of circuit-status queries WaitUntilUsable
	// makes before giving up.
	DefaultPollBudget = 30
)

// Client is an authenticated session on the Tor ControlPort.
// The session ends when the connection is lost; there is no reconnection.
type Client struct {
	// conn is the framed connection, owned by the client.
	conn *Conn
	// logger receives protocol-level diagnostics. Secrets are never logged.
	logger *slog.Logger
	// cookieFile overrides the COOKIEFILE announced by the daemon.
	cookieFile string
	// settleDelay is waited after SIGNAL NEWNYM.
	settleDelay time.Duration
	// pollInterval separates polls in WaitUntilUsable.
	pollInterval time.Duration
	// pollBudget bounds the polls in WaitUntilUsable.
	pollBudget int
	// authenticated reports whether AUTHENTICATE succeeded.
	authenticated bool
	// mu serializes command/reply exchanges; the protocol has no request IDs.
	mu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for protocol diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCookieFile uses path instead of the COOKIEFILE the daemon announces.
// This is needed when the daemon runs in a container or chroot whose paths
// differ from the client's view of the filesystem.
func WithCookieFile(path string) Option {
	return func(c *Client) {
		c.cookieFile = path
	}
}

// WithSettleDelay sets the delay waited after SIGNAL NEWNYM.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.settleDelay = d
		}
	}
}

// WithPollInterval sets the delay between polls in WaitUntilUsable.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.pollInterval = d
		}
	}
}

// WithPollBudget sets how many circuit-status polls WaitUntilUsable makes.
func WithPollBudget(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pollBudget = n
		}
	}
}

// NewClient creates a Client that owns conn.
func NewClient(conn *Conn, opts ...Option) *Client {
	c := &Client{
		conn:         conn,
		settleDelay:  DefaultSettleDelay,
		pollInterval: DefaultPollInterval,
		pollBudget:   DefaultPollBudget,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// DialClient connects to the ControlPort at addr and returns an
// unauthenticated Client. Call Authenticate before any other command.
func DialClient(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	conn, err := Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, opts...), nil
}

// Close closes the control connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.authenticated = false
	return err
}

// Authenticated reports whether the session has been authenticated.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// exec sends one command and reads its complete reply.
func (c *Client) exec(ctx context.Context, cmd string) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, &IOError{Op: "write", Err: errConnClosed}
	}
	if err := c.conn.setDeadline(ctx); err != nil {
		return nil, err
	}

	c.logger.Debug("control command", "command", commandName(cmd))
	if err := c.conn.Send(cmd); err != nil {
		return nil, err
	}
	reply, err := c.conn.ReadReply()
	if err != nil {
		c.logger.Debug("control command failed", "command", commandName(cmd), "error", err)
		return nil, err
	}
	c.logger.Debug("control reply", "command", commandName(cmd), "code", reply.Code, "lines", len(reply.Lines))
	return reply, nil
}

// expectOK sends cmd and succeeds only if the reply contains "OK".
func (c *Client) expectOK(ctx context.Context, cmd string) error {
	reply, err := c.exec(ctx, cmd)
	if err != nil {
		return err
	}
	if !reply.OK() {
		return fmt.Errorf("%w to %s: %q", ErrUnexpectedReply, commandName(cmd), reply.Lines)
	}
	return nil
}

// ensureAuthenticated guards privileged commands.
func (c *Client) ensureAuthenticated() error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// commandName returns the part of cmd that is safe to log. Arguments of
// AUTHENTICATE and AUTHCHALLENGE are derived from the cookie and dropped.
func commandName(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "AUTHENTICATE", "AUTHCHALLENGE":
		return fields[0]
	}
	return cmd
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
