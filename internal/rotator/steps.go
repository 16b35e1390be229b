package rotator

import (
	"context"
	"fmt"
)

// ProxyCheckStep requires the SOCKS port to answer a SOCKS5 handshake.
type ProxyCheckStep struct{}

// Name implements Step.
func (ProxyCheckStep) Name() string { return "proxy-check" }

// Do implements Step.
func (ProxyCheckStep) Do(ctx context.Context, r *Runner) error {
	r.logger.Info("verifying Tor SOCKS proxy connection", "proxy", r.proxy.ProxyAddress())
	if err := r.proxy.CheckConnection(ctx).Error(); err != nil {
		return fmt.Errorf("cannot proceed without Tor SOCKS proxy connection: %w", err)
	}
	r.logger.Info("connected to Tor SOCKS proxy", "proxy", r.proxy.ProxyAddress())
	return nil
}

// ConnectStep opens and authenticates the control session.
type ConnectStep struct{}

// Name implements Step.
func (ConnectStep) Name() string { return "control-connect" }

// Do implements Step.
func (ConnectStep) Do(ctx context.Context, r *Runner) error {
	if r.control != nil {
		return nil
	}
	r.logger.Info("connecting to Tor control port")
	ctrl, err := r.connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to open Tor control session: %w", err)
	}
	r.control = ctrl
	return nil
}

// DirectBaselineStep records the egress seen without Tor. It never fails.
type DirectBaselineStep struct{}

// Name implements Step.
func (DirectBaselineStep) Name() string { return "direct-baseline" }

// Do implements Step.
func (DirectBaselineStep) Do(ctx context.Context, r *Runner) error {
	if r.directEgress == nil {
		return nil
	}
	r.logger.Info("checking original IP")
	info := r.directEgress.Lookup(ctx)
	if !info.Known() {
		r.logger.Warn("failed to get original IP")
	} else {
		r.logger.Info("Original IP", egressAttrs(info)...)
	}
	r.direct = &info
	return nil
}

// VerifyTorStep creates the SOCKS-routed HTTP client and requires the Tor
// check service to confirm it.
type VerifyTorStep struct{}

// Name implements Step.
func (VerifyTorStep) Name() string { return "verify-tor" }

// Do implements Step.
func (VerifyTorStep) Do(ctx context.Context, r *Runner) error {
	r.logger.Info("initializing Tor HTTP client")
	checker := r.torEgress()
	if err := checker.Verify(ctx, r.verifyAttempts, r.verifyRetryDelay); err != nil {
		return err
	}
	r.egress = checker
	r.logger.Info("Tor client initialized successfully")
	return nil
}

// WaitCircuitStep waits until a usable circuit exists.
type WaitCircuitStep struct{}

// Name implements Step.
func (WaitCircuitStep) Name() string { return "wait-circuit" }

// Do implements Step.
func (WaitCircuitStep) Do(ctx context.Context, r *Runner) error {
	r.logger.Info("waiting for Tor circuits to be established")
	if err := r.control.WaitUntilUsable(ctx); err != nil {
		return fmt.Errorf("failed to establish Tor circuits: %w", err)
	}
	r.logger.Info("Tor circuits established successfully")
	return nil
}

// StartSteps are run by Runner.Start before the first cycle.
func StartSteps() []Step {
	return []Step{ProxyCheckStep{}, ConnectStep{}, DirectBaselineStep{}, VerifyTorStep{}, WaitCircuitStep{}}
}

// InspectSteps are run by Runner.Inspect before its single snapshot.
func InspectSteps() []Step {
	return []Step{ProxyCheckStep{}, ConnectStep{}, DirectBaselineStep{}}
}
