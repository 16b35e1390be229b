package rotator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/torrotator/internal/control"
	"github.com/nao1215/torrotator/internal/model"
	"github.com/nao1215/torrotator/internal/tor"
)

// Default loop settings.
const (
	DefaultInterval         = 60 * time.Second
	DefaultVerifyAttempts   = 3
	DefaultVerifyRetryDelay = 10 * time.Second
)

// Controller is the authenticated control session the runner drives.
// *control.Client implements it.
type Controller interface {
	ListCircuits(ctx context.Context) ([]control.Circuit, error)
	ResolvePath(ctx context.Context, path []string) []control.NodeInfo
	RotateIdentity(ctx context.Context) error
	WaitUntilUsable(ctx context.Context) error
	Close() error
}

// ProxyChecker probes the SOCKS port. *tor.Client implements it.
type ProxyChecker interface {
	CheckConnection(ctx context.Context) tor.ProxyStatus
	ProxyAddress() string
}

// EgressChecker looks up the egress of one HTTP client.
// *egress.Fetcher implements it.
type EgressChecker interface {
	Lookup(ctx context.Context) model.EgressInfo
	Verify(ctx context.Context, attempts int, delay time.Duration) error
}

// Store records completed cycles. *database.HistoryDB implements it.
type Store interface {
	InsertRotation(ctx context.Context, record *model.RotationRecord) (int64, error)
}

// ConnectFunc opens and authenticates a control session.
type ConnectFunc func(ctx context.Context) (Controller, error)

// EgressFactory returns a checker over a new HTTP client. Every call must
// use fresh connections so that requests go out on the current circuit.
type EgressFactory func() EgressChecker

// Runner performs identity rotation cycles.
type Runner struct {
	proxy     ProxyChecker
	connect   ConnectFunc
	torEgress EgressFactory

	directEgress EgressChecker
	store        Store
	logger       *slog.Logger
	now          func() time.Time

	interval         time.Duration
	verifyAttempts   int
	verifyRetryDelay time.Duration
	maxCycles        int

	// Set up by the start-up pipeline.
	control Controller
	egress  EgressChecker
	direct  *model.EgressInfo
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithInterval sets the pause after each cycle.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.interval = d
		}
	}
}

// WithVerify sets how often the Tor HTTP client is verified and the delay
// between attempts.
func WithVerify(attempts int, delay time.Duration) Option {
	return func(r *Runner) {
		if attempts > 0 {
			r.verifyAttempts = attempts
		}
		if delay >= 0 {
			r.verifyRetryDelay = delay
		}
	}
}

// WithDirectEgress records the egress seen without Tor at start-up.
func WithDirectEgress(checker EgressChecker) Option {
	return func(r *Runner) {
		r.directEgress = checker
	}
}

// WithStore records every cycle in store.
func WithStore(store Store) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithMaxCycles stops Run after n cycles. Zero means no limit.
func WithMaxCycles(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.maxCycles = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Runner. proxy, connect and torEgress are required.
func New(proxy ProxyChecker, connect ConnectFunc, torEgress EgressFactory, opts ...Option) *Runner {
	r := &Runner{
		proxy:            proxy,
		connect:          connect,
		torEgress:        torEgress,
		logger:           slog.Default(),
		now:              time.Now,
		interval:         DefaultInterval,
		verifyAttempts:   DefaultVerifyAttempts,
		verifyRetryDelay: DefaultVerifyRetryDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs the start-up pipeline. Every failure is fatal.
func (r *Runner) Start(ctx context.Context) error {
	return NewPipeline(r.logger, StartSteps()...).Execute(ctx, r)
}

// Inspect prepares a control session and returns one snapshot without
// rotating anything.
func (r *Runner) Inspect(ctx context.Context) (*model.Snapshot, error) {
	if err := NewPipeline(r.logger, InspectSteps()...).Execute(ctx, r); err != nil {
		return nil, err
	}
	if r.egress == nil {
		r.egress = r.torEgress()
	}
	return r.Snapshot(ctx)
}

// Close ends the control session.
func (r *Runner) Close() error {
	if r.control == nil {
		return nil
	}
	err := r.control.Close()
	r.control = nil
	return err
}

// Direct returns the egress recorded at start-up, nil when not checked.
func (r *Runner) Direct() *model.EgressInfo {
	return r.direct
}

// Run starts the runner and repeats cycles separated by the interval until
// ctx is cancelled, the control connection is lost or the cycle limit is
// reached. Cancellation is not an error.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	for cycle := 1; r.maxCycles == 0 || cycle <= r.maxCycles; cycle++ {
		if _, err := r.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, control.ErrIO) {
				return fmt.Errorf("lost Tor control connection: %w", err)
			}
			r.logger.Warn("rotation failed", "cycle", cycle, "error", err)
		}
		if r.maxCycles != 0 && cycle == r.maxCycles {
			break
		}

		r.logger.Debug("waiting for next rotation", "interval", r.interval)
		if err := sleep(ctx, r.interval); err != nil {
			return nil
		}
	}
	return nil
}

// Snapshot lists the usable circuits with resolved relays and looks up the
// egress through Tor. Failing to list circuits is logged, not returned.
func (r *Runner) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	if r.control == nil || r.egress == nil {
		return nil, ErrNotStarted
	}

	snapshot := &model.Snapshot{TakenAt: r.now(), Direct: r.direct}

	circuits, err := r.control.ListCircuits(ctx)
	if err != nil {
		if errors.Is(err, control.ErrIO) {
			return nil, err
		}
		r.logger.Warn("failed to get circuit info", "error", err)
	}
	for _, c := range control.UsableCircuits(circuits) {
		snapshot.Circuits = append(snapshot.Circuits, r.resolveCircuit(ctx, c))
	}
	r.logCircuits(snapshot.Circuits)

	snapshot.Egress = r.egress.Lookup(ctx)
	r.logEgress("Current IP", snapshot.Egress)
	return snapshot, nil
}

// Cycle performs one rotation and records it. The returned record is never
// nil once the snapshot succeeded, even when err is not.
func (r *Runner) Cycle(ctx context.Context) (*model.RotationRecord, error) {
	record := &model.RotationRecord{StartedAt: r.now()}

	before, err := r.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	record.Before = *before

	err = r.rotate(ctx, record)
	record.FinishedAt = r.now()
	if err != nil {
		record.Error = err.Error()
	}
	r.save(ctx, record)
	return record, err
}

// rotate switches identity, waits for a new circuit and replaces the HTTP
// client, filling record.After.
func (r *Runner) rotate(ctx context.Context, record *model.RotationRecord) error {
	r.logger.Info("switching Tor identity")
	if err := r.control.RotateIdentity(ctx); err != nil {
		return fmt.Errorf("failed to switch identity: %w", err)
	}

	r.logger.Info("identity switch requested, establishing new circuit")
	if err := r.control.WaitUntilUsable(ctx); err != nil {
		return fmt.Errorf("failed to establish new circuits: %w", err)
	}

	// A new client opens new connections, which Tor puts on the new circuit.
	checker := r.torEgress()
	if err := checker.Verify(ctx, r.verifyAttempts, r.verifyRetryDelay); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("failed to create new Tor client", "error", err)
	} else {
		r.egress = checker
		r.logger.Info("new Tor circuit established")
	}

	record.After = r.egress.Lookup(ctx)
	r.logEgress("New IP", record.After)
	if record.AddressChanged() {
		r.logger.Info("egress address changed", "from", record.Before.Egress.Address, "to", record.After.Address)
	} else if record.After.Known() && record.Before.Egress.Known() {
		r.logger.Warn("egress address unchanged after rotation", "address", record.After.Address)
	}
	return nil
}

// save stores record when history is enabled. Storage failures are logged.
func (r *Runner) save(ctx context.Context, record *model.RotationRecord) {
	if r.store == nil {
		return
	}
	// Use a fresh context so a cycle interrupted by shutdown is still kept.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := r.store.InsertRotation(saveCtx, record); err != nil {
		r.logger.Warn("failed to record rotation", "error", err)
	}
}

// resolveCircuit converts a circuit into its displayed form.
func (r *Runner) resolveCircuit(ctx context.Context, c control.Circuit) model.CircuitView {
	nodes := r.control.ResolvePath(ctx, c.Path)
	view := model.CircuitView{
		ID:      c.ID,
		Status:  c.Status,
		Purpose: c.Purpose,
		Relays:  make([]model.Relay, len(nodes)),
	}
	for i, n := range nodes {
		view.Relays[i] = model.Relay{Fingerprint: n.Fingerprint, Nickname: n.Nickname, Country: n.Country}
	}
	return view
}

// logCircuits logs the usable circuits, or warns when there are none.
func (r *Runner) logCircuits(circuits []model.CircuitView) {
	if len(circuits) == 0 {
		r.logger.Warn("No active Tor circuits found!")
		return
	}
	r.logger.Info("active Tor circuits", "count", len(circuits))
	for _, c := range circuits {
		r.logger.Info("circuit", "circuit_id", c.ID, "path", c.PathString())
	}
}

// logEgress logs one egress lookup.
func (r *Runner) logEgress(label string, info model.EgressInfo) {
	if !info.Known() {
		r.logger.Warn("failed to get IP info", "errors", info.Errors)
		return
	}
	if info.Tor == model.TorStatusNotTor {
		r.logger.Warn(label, egressAttrs(info)...)
		return
	}
	r.logger.Info(label, egressAttrs(info)...)
}

// egressAttrs returns the log attributes of an egress lookup.
func egressAttrs(info model.EgressInfo) []any {
	location := "Location unavailable"
	if !info.Location.IsZero() {
		location = info.Location.String()
	}
	return []any{"ip", info.Address, "location", location, "tor", info.Tor.String()}
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
