package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/pipeline"
	"murmur/internal/router"
	"murmur/internal/runstate"
)

// Daemon coordinates the polling loop and enforces single-instance execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *runstate.Store
	orchestrator *pipeline.Orchestrator
	backends     *router.Router

	lockPath string
	lock     *flock.Flock

	wake    chan struct{}
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	loop    sync.WaitGroup

	api *apiServer

	mu        sync.Mutex
	lastBatch *pipeline.BatchReport
	lastPoll  time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	LockFilePath string
	StateDBPath  string
	LastPoll     time.Time
	LastBatch    *pipeline.BatchReport
	InProgress   []runstate.ClaimRecord
	StateHealth  runstate.HealthSummary
	Backends     []router.BackendStatus
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *runstate.Store, orchestrator *pipeline.Orchestrator, backends *router.Router, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || orchestrator == nil || backends == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, and backend router")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "murmurd.lock")
	d := &Daemon{
		cfg:          cfg,
		logger:       logging.WithComponent(logger, "daemon"),
		store:        store,
		orchestrator: orchestrator,
		backends:     backends,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
		wake:         make(chan struct{}, 1),
	}

	api, err := newAPIServer(cfg, d, d.logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the poll loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another murmur daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return err
	}

	d.loop.Add(1)
	go d.run(d.ctx)

	d.running.Store(true)
	d.logger.Info("murmur daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("poll_interval_seconds", d.cfg.Workflow.PollInterval))
	return nil
}

// Stop ends background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.loop.Wait()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("murmur daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Wake triggers an immediate poll. Safe to call from any goroutine; extra
// wakes while one is pending coalesce.
func (d *Daemon) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Status reports current daemon state for the status command and API.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		StateDBPath:  d.store.Path(),
	}

	d.mu.Lock()
	status.LastBatch = d.lastBatch
	status.LastPoll = d.lastPoll
	d.mu.Unlock()

	if claims, err := d.store.ListInProgress(ctx); err == nil {
		status.InProgress = claims
	}
	if health, err := d.store.Health(ctx); err == nil {
		status.StateHealth = health
	}
	status.Backends = d.backends.Status(ctx)
	return status
}

func (d *Daemon) run(ctx context.Context) {
	defer d.loop.Done()

	interval := time.Duration(d.cfg.Workflow.PollInterval) * time.Second
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		d.poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.wake:
			d.logger.Info("poll triggered early")
		}
	}
}

// poll runs one full pass: reclaim stale claims, then process a batch.
func (d *Daemon) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	staleAfter := time.Duration(d.cfg.Workflow.ClaimStaleMinutes) * time.Minute
	if staleAfter > 0 {
		reclaimed, err := d.store.ReclaimStale(ctx, staleAfter)
		if err != nil {
			d.logger.Error("reclaim stale claims failed", logging.Error(err))
		} else if len(reclaimed) > 0 {
			for _, claim := range reclaimed {
				d.logger.Warn("reclaimed stale claim",
					logging.String(logging.FieldInputID, claim.InputID),
					logging.String(logging.FieldRunID, claim.RunID),
					logging.Alert("stale_claim"))
			}
		}
	}

	batch, err := d.orchestrator.ProcessBatch(ctx, 0)
	d.mu.Lock()
	d.lastBatch = batch
	d.lastPoll = time.Now()
	d.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		d.logger.Error("batch processing failed", logging.Error(err))
		return
	}
	if batch.Claimable > 0 {
		d.logger.Info("batch finished",
			logging.Int("claimable", batch.Claimable),
			logging.Int("processed", batch.Processed),
			logging.Int("failed", batch.Failed),
			logging.Duration("duration", batch.Duration()))
	}
}
