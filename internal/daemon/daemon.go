package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/nunotfc/amelie/internal/breaker"
	"github.com/nunotfc/amelie/internal/config"
	"github.com/nunotfc/amelie/internal/dedup"
	"github.com/nunotfc/amelie/internal/dispatch"
	"github.com/nunotfc/amelie/internal/ledger"
	"github.com/nunotfc/amelie/internal/logging"
	"github.com/nunotfc/amelie/internal/notifications"
	"github.com/nunotfc/amelie/internal/pipeline"
	"github.com/nunotfc/amelie/internal/report"
)

// Daemon coordinates the background services and enforces single-instance
// execution. Startup replays incomplete transactions before new submissions
// are accepted.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *ledger.Store
	manager    *pipeline.Manager
	dispatcher *dispatch.Dispatcher
	notifier   notifications.Service
	seen       *dedup.Cache

	lockPath string
	lock     *flock.Flock
	webhook  *webhookServer

	running atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// Deps bundles the daemon collaborators.
type Deps struct {
	Store      *ledger.Store
	Manager    *pipeline.Manager
	Dispatcher *dispatch.Dispatcher
	Notifier   notifications.Service
	Dedup      *dedup.Cache
	Logger     *slog.Logger
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Manager == nil || deps.Dispatcher == nil {
		return nil, errors.New("daemon requires config, store, pipeline manager, and dispatcher")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "amelied.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      deps.Store,
		manager:    deps.Manager,
		dispatcher: deps.Dispatcher,
		notifier:   notifier,
		seen:       deps.Dedup,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	d.webhook = newWebhookServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, replays interrupted work, launches the
// pipeline and the periodic sweeps.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another amelie daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// Crash recovery runs before the pipeline accepts new work so replayed
	// results cannot race fresh submissions for the same transactions.
	replayed, replayErr := d.dispatcher.ReplayIncomplete(runCtx)
	if replayErr != nil {
		d.logger.Error("replay incomplete transactions", logging.Error(replayErr))
	}
	outboxDelivered, _, sweepErr := d.dispatcher.SweepOutbox(runCtx)
	if sweepErr != nil {
		d.logger.Error("initial outbox sweep", logging.Error(sweepErr))
	}
	if replayed > 0 || outboxDelivered > 0 {
		d.logger.Info("startup recovery complete",
			logging.Int("replayed", replayed),
			logging.Int("outbox_delivered", outboxDelivered),
			logging.String(logging.FieldEventType, "recovery_complete"))
		if err := d.notifier.NotifyRecoveryCompleted(runCtx, replayed, outboxDelivered); err != nil {
			d.logger.Debug("recovery notification", logging.Error(err))
		}
	}

	if err := d.manager.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start pipeline: %w", err)
	}

	if err := d.webhook.start(runCtx); err != nil {
		d.manager.Stop()
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	d.group = group
	group.Go(func() error { return d.outboxLoop(groupCtx) })
	group.Go(func() error { return d.retentionLoop(groupCtx) })
	group.Go(func() error { return d.dedupLoop(groupCtx) })

	d.running.Store(true)
	d.logger.Info("amelie daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.webhook.stop()
	d.manager.Stop()
	if d.group != nil {
		if err := d.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("background sweep exited", logging.Error(err))
		}
		d.group = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("amelie daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon has started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// WebhookAddr returns the bound webhook address, empty when disabled.
func (d *Daemon) WebhookAddr() string {
	return d.webhook.addr()
}

// Status assembles the operator status snapshot.
func (d *Daemon) Status(ctx context.Context) (report.Snapshot, error) {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		return report.Snapshot{}, fmt.Errorf("ledger stats: %w", err)
	}
	pending, err := d.store.PendingNotifications(ctx, 0)
	if err != nil {
		return report.Snapshot{}, fmt.Errorf("pending notifications: %w", err)
	}
	return report.Snapshot{
		Stages:  d.manager.Snapshot(),
		Breaker: d.manager.BreakerState(),
		Ledger:  stats,
		Pending: len(pending),
	}, nil
}

// outboxLoop retries pending notifications on the configured interval.
func (d *Daemon) outboxLoop(ctx context.Context) error {
	interval := time.Duration(d.cfg.Outbox.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			delivered, remaining, err := d.dispatcher.SweepOutbox(ctx)
			if err != nil {
				d.logger.Error("outbox sweep", logging.Error(err))
				continue
			}
			if delivered > 0 || remaining > 0 {
				d.logger.Info("outbox sweep complete",
					logging.Int("delivered", delivered),
					logging.Int("remaining", remaining),
					logging.String(logging.FieldEventType, "outbox_sweep"))
			}
		}
	}
}

// retentionLoop prunes terminal transactions, abandoned notifications and
// old problem records past the retention window.
func (d *Daemon) retentionLoop(ctx context.Context) error {
	interval := time.Duration(d.cfg.Ledger.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	retention := time.Duration(d.cfg.Ledger.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			swept, err := d.store.SweepTerminal(ctx, cutoff)
			if err != nil {
				d.logger.Error("ledger retention sweep", logging.Error(err))
			}
			abandoned, err := d.store.SweepAbandonedNotifications(ctx, cutoff)
			if err != nil {
				d.logger.Error("notification retention sweep", logging.Error(err))
			}
			problems, err := d.store.SweepProblems(ctx, cutoff)
			if err != nil {
				d.logger.Error("problem retention sweep", logging.Error(err))
			}
			if swept+abandoned+problems > 0 {
				d.logger.Info("retention sweep complete",
					logging.Int64("transactions", swept),
					logging.Int64("notifications", abandoned),
					logging.Int64("problems", problems))
			}
		}
	}
}

// dedupLoop expires old entries from the submission dedup window.
func (d *Daemon) dedupLoop(ctx context.Context) error {
	if d.seen == nil {
		return nil
	}
	interval := time.Duration(d.cfg.Dedup.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := d.seen.Sweep(); removed > 0 {
				d.logger.Debug("dedup window swept", logging.Int("removed", removed))
			}
		}
	}
}

// NewBreaker builds the inference circuit breaker wired to operator
// notifications on state changes.
func NewBreaker(cfg *config.Config, logger *slog.Logger, notifier notifications.Service) *breaker.Breaker {
	if logger == nil {
		logger = logging.NewNop()
	}
	limit := cfg.Breaker.FailureLimit
	window := time.Duration(cfg.Breaker.ResetWindowSeconds) * time.Second
	return breaker.New(limit, window, func(state breaker.State) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		switch state {
		case breaker.StateOpen:
			logger.Warn("inference circuit opened",
				logging.String(logging.FieldEventType, "breaker_opened"))
			if notifier != nil {
				if err := notifier.NotifyBreakerOpened(ctx, limit); err != nil {
					logger.Debug("breaker notification", logging.Error(err))
				}
			}
		case breaker.StateClosed:
			logger.Info("inference circuit closed",
				logging.String(logging.FieldEventType, "breaker_closed"))
			if notifier != nil {
				if err := notifier.NotifyBreakerClosed(ctx); err != nil {
					logger.Debug("breaker notification", logging.Error(err))
				}
			}
		}
	})
}
