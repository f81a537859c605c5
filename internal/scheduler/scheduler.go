package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"stockDataServer/internal/ports"
)

// Refresher refreshes cached price data.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// Scheduler runs the cache refresh on a cron schedule (UTC).
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	logger    ports.Logger
	ctx       context.Context
	timeout   time.Duration
}

// NewScheduler creates a new Scheduler. Each run is bounded by timeout; zero means 30 minutes.
// A run still in progress when the next one is due is skipped.
func NewScheduler(ctx context.Context, refresher Refresher, logger ports.Logger, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	cl := cronLogger{ctx: ctx, logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		refresher: refresher,
		logger:    logger,
		ctx:       ctx,
		timeout:   timeout,
	}
}

// Register schedules the refresh with a standard five-field spec or a descriptor such as "@daily".
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.RunNow); err != nil {
		return fmt.Errorf("register refresh task %q: %w", spec, err)
	}
	s.logger.Info(s.ctx, "Refresh task registered", map[string]interface{}{"spec": spec})
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info(s.ctx, "Scheduler started")
}

// Stop stops the scheduler and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info(s.ctx, "Scheduler stopped")
}

// RunNow executes the refresh immediately.
func (s *Scheduler) RunNow() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info(ctx, "Running scheduled refresh")
	if err := s.refresher.RefreshAll(ctx); err != nil {
		s.logger.Error(ctx, err, "Scheduled refresh finished with errors", map[string]interface{}{"elapsed": time.Since(start).String()})
		return
	}
	s.logger.Info(ctx, "Scheduled refresh finished", map[string]interface{}{"elapsed": time.Since(start).String()})
}

// cronLogger adapts ports.Logger to cron.Logger.
type cronLogger struct {
	ctx    context.Context
	logger ports.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(l.ctx, "cron: "+msg, pairs(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(l.ctx, err, "cron: "+msg, pairs(keysAndValues))
}

func pairs(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
