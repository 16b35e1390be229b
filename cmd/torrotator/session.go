package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nao1215/torrotator/internal/config"
	"github.com/nao1215/torrotator/internal/control"
	"github.com/nao1215/torrotator/internal/database"
	"github.com/nao1215/torrotator/internal/egress"
	"github.com/nao1215/torrotator/internal/rotator"
	"github.com/nao1215/torrotator/internal/tor"
)

// session owns everything a command needs to talk to Tor: the optional
// embedded daemon, the history database and the runner.
type session struct {
	runner *rotator.Runner
	daemon *tor.Daemon
	store  *database.HistoryDB
	logger *slog.Logger
}

// newSession wires a runner for cfg. With withStore, completed rotations
// are recorded in the history database when cfg.SaveHistory is set.
func newSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, withStore bool, opts ...rotator.Option) (*session, error) {
	s := &session{logger: logger}

	controlAddr := cfg.ControlAddress()
	var torClient *tor.Client
	if cfg.Embedded {
		daemon, client, err := startEmbeddedTor(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		s.daemon = daemon
		torClient = client
		controlAddr = daemon.ControlAddr()
	} else {
		client, err := tor.NewClient(cfg.SocksAddress(), cfg.HTTPTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create Tor client: %w", err)
		}
		torClient = client
	}

	runnerOpts := []rotator.Option{
		rotator.WithLogger(logger),
		rotator.WithInterval(cfg.Interval),
		rotator.WithVerify(cfg.VerifyAttempts, cfg.VerifyRetryDelay),
	}
	if !cfg.SkipDirectCheck {
		direct := &http.Client{Timeout: cfg.HTTPTimeout}
		runnerOpts = append(runnerOpts, rotator.WithDirectEgress(newFetcher(direct, cfg, logger)))
	}
	if withStore && cfg.SaveHistory {
		store, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		s.store = store
		runnerOpts = append(runnerOpts, rotator.WithStore(store))
		logger.Debug("history database opened", "path", store.Path())
	}
	runnerOpts = append(runnerOpts, opts...)

	s.runner = rotator.New(
		torClient,
		connectFunc(controlAddr, cfg, logger),
		func() rotator.EgressChecker {
			return newFetcher(torClient.NewHTTPClient(), cfg, logger)
		},
		runnerOpts...,
	)
	return s, nil
}

// Close ends the control session, closes the database and stops the
// embedded daemon. Failures are logged.
func (s *session) Close() {
	if s.runner != nil {
		if err := s.runner.Close(); err != nil {
			s.logger.Debug("failed to close control session", "error", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close database", "error", err)
		}
	}
	if s.daemon != nil {
		s.logger.Info("stopping embedded Tor daemon...")
		if err := s.daemon.Stop(); err != nil {
			s.logger.Error("failed to stop embedded Tor", "error", err)
		}
	}
}

// connectFunc dials the ControlPort at addr and authenticates.
func connectFunc(addr string, cfg *config.Config, logger *slog.Logger) rotator.ConnectFunc {
	return func(ctx context.Context) (rotator.Controller, error) {
		client, err := control.DialClient(ctx, addr,
			control.WithLogger(logger),
			control.WithCookieFile(cfg.CookieFile),
			control.WithSettleDelay(cfg.SettleDelay),
			control.WithPollInterval(cfg.PollInterval),
			control.WithPollBudget(cfg.PollBudget),
		)
		if err != nil {
			return nil, err
		}
		if err := client.Authenticate(ctx); err != nil {
			_ = client.Close() //nolint:errcheck // Best effort cleanup
			return nil, err
		}
		logger.Info("authenticated with Tor control port", "address", addr)
		return client, nil
	}
}

// newFetcher creates an egress fetcher over client using the configured
// endpoints.
func newFetcher(client egress.Doer, cfg *config.Config, logger *slog.Logger) *egress.Fetcher {
	return egress.NewFetcher(client,
		egress.WithIPEchoURL(cfg.IPEchoURL),
		egress.WithTorCheckURL(cfg.TorCheckURL),
		egress.WithGeoIPURL(cfg.GeoIPURL),
		egress.WithLogger(logger),
	)
}

// startEmbeddedTor launches a private Tor daemon and returns it with a SOCKS
// client for it.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tor.Daemon, *tor.Client, error) {
	logger.Info("starting embedded Tor daemon; bootstrapping may take 1-3 minutes")

	daemon := tor.NewDaemon(
		tor.WithStartupTimeout(cfg.DaemonStartupTimeout),
		tor.WithDataDir(cfg.EmbeddedDataDir()),
	)
	if err := daemon.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	logger.Info("embedded Tor daemon started",
		"socksAddr", daemon.SocksAddr(),
		"controlAddr", daemon.ControlAddr(),
	)

	client, err := daemon.NewClient(cfg.HTTPTimeout)
	if err != nil {
		_ = daemon.Stop() //nolint:errcheck // Best effort cleanup
		return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
	}
	return daemon, client, nil
}
