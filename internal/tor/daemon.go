package tor

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultStartupTimeout bounds how long Start waits for a launched daemon
// to bootstrap.
const DefaultStartupTimeout = 3 * time.Minute

// Daemon is a private Tor process launched through tornago. It listens on
// OS-assigned SOCKS and control ports and enables cookie authentication, so
// a control client can rotate its identity like any system daemon's.
//
// Bootstrapping takes between several seconds and a few minutes, depending
// on the cached directory state and network conditions.
type Daemon struct {
	// process is the running Tor daemon, nil until Start succeeds.
	process *tornago.TorProcess

	socksAddr   string
	controlAddr string

	// startupTimeout is the maximum time to wait for Tor to bootstrap.
	startupTimeout time.Duration

	// dataDir is an optional persistent data directory. Reusing one keeps
	// the directory cache and makes later starts much faster.
	dataDir string
}

// DaemonOption configures a Daemon.
type DaemonOption func(*Daemon)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) DaemonOption {
	return func(d *Daemon) {
		if timeout > 0 {
			d.startupTimeout = timeout
		}
	}
}

// WithDataDir keeps Tor's state in dir instead of a temporary directory.
func WithDataDir(dir string) DaemonOption {
	return func(d *Daemon) {
		d.dataDir = dir
	}
}

// NewDaemon creates a Daemon. Call Start to launch the process.
func NewDaemon(opts ...DaemonOption) *Daemon {
	d := &Daemon{
		startupTimeout: DefaultStartupTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches Tor and blocks until both ports accept connections or the
// startup timeout expires. If ctx is cancelled meanwhile, the freshly
// started process is stopped again.
func (d *Daemon) Start(ctx context.Context) error {
	opts := []tornago.TorLaunchOption{
		tornago.WithTorSocksAddr("127.0.0.1:0"),
		tornago.WithTorControlAddr("127.0.0.1:0"),
		tornago.WithTorStartupTimeout(d.startupTimeout),
	}
	if d.dataDir != "" {
		opts = append(opts, tornago.WithTorDataDir(d.dataDir))
	}

	launchCfg, err := tornago.NewTorLaunchConfig(opts...)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck // Best effort cleanup
		return err
	}

	d.process = process
	d.socksAddr = process.SocksAddr()
	d.controlAddr = process.ControlAddr()
	return nil
}

// Stop terminates the daemon. It is safe to call on a Daemon that never
// started or was already stopped.
func (d *Daemon) Stop() error {
	if d.process == nil {
		return nil
	}
	err := d.process.Stop()
	d.process = nil
	return err
}

// SocksAddr returns the SOCKS5 address, empty when not running.
func (d *Daemon) SocksAddr() string {
	return d.socksAddr
}

// ControlAddr returns the ControlPort address, empty when not running.
func (d *Daemon) ControlAddr() string {
	return d.controlAddr
}

// IsRunning reports whether the daemon has been started and not stopped.
func (d *Daemon) IsRunning() bool {
	return d.process != nil
}

// NewClient returns a SOCKS client for the running daemon.
func (d *Daemon) NewClient(timeout time.Duration) (*Client, error) {
	if !d.IsRunning() {
		return nil, ErrDaemonNotRunning
	}
	return NewClient(d.socksAddr, timeout)
}
