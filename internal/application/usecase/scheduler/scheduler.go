// Package scheduler runs the periodic control loops.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

var tracer = otel.Tracer("scheduler_usecase")

// Loop is one control loop. Run must be safe to repeat.
type Loop struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type (
	StatusReconciler interface {
		Execute(ctx context.Context) error
	}
	HostReconciler interface {
		Reconcile(ctx context.Context) error
	}
	WatchScanner interface {
		ScanWatchFolder(ctx context.Context) error
	}
	RetranscodeScheduler interface {
		Schedule(ctx context.Context) error
	}
)

// Loops returns the four control loops at their configured intervals.
func Loops(cfg config.Config, status StatusReconciler, host HostReconciler, watch WatchScanner, retranscode RetranscodeScheduler) []Loop {
	return []Loop{
		{Name: "status_reconcile", Interval: cfg.Schedule.StatusInterval, Run: status.Execute},
		{Name: "external_host_reconcile", Interval: cfg.Schedule.ExternalHostInterval, Run: host.Reconcile},
		{Name: "watch_scan", Interval: cfg.Schedule.WatchInterval, Run: watch.ScanWatchFolder},
		{Name: "retranscode_schedule", Interval: cfg.Schedule.RetranscodeInterval, Run: retranscode.Schedule},
	}
}

type Scheduler struct {
	cron   *cron.Cron
	logger logger.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New registers every loop with a positive interval. A run still in progress
// when its next tick fires makes that tick a no-op.
func New(loops []Loop, log logger.Logger) (*Scheduler, error) {
	cl := cronLogger{log: log}
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		logger: log,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, loop := range loops {
		if loop.Interval <= 0 {
			log.Warn("Loop disabled", zap.String("loop", loop.Name))
			continue
		}
		if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", loop.Interval), s.wrap(loop)); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", loop.Name, err)
		}
		log.Info("Loop scheduled", zap.String("loop", loop.Name), zap.Duration("interval", loop.Interval))
	}
	return s, nil
}

func (s *Scheduler) wrap(loop Loop) func() {
	return func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		_ = RunOnce(ctx, loop, s.logger)
	}
}

// RunOnce executes one pass of loop and logs its outcome.
func RunOnce(ctx context.Context, loop Loop, log logger.Logger) error {
	ctx, span := tracer.Start(ctx, loop.Name)
	defer span.End()

	l := log.With(zap.String("loop", loop.Name))
	start := time.Now()
	if err := loop.Run(ctx); err != nil {
		span.RecordError(err)
		l.Error("Loop pass failed", err, zap.Duration("elapsed", time.Since(start)))
		return err
	}
	l.Info("Loop pass done", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running passes and waits for them to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's own messages into the structured logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	// cron reports every wake-up at info; those stay out of the log
	if msg == "wake" || msg == "run" {
		return
	}
	c.log.Info(msg, fields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error(msg, err, fields(keysAndValues)...)
}

func fields(kv []any) []zap.Field {
	out := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, zap.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
