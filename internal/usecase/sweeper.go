package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Schedules accept an optional seconds field and descriptors like "@every 1m".
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", expr, err)
	}
	return sched, nil
}

// Sweeper periodically hands pending tickets to the service.
type Sweeper struct {
	service  *Service
	schedule cron.Schedule
	expr     string
	batch    int
	logger   *zap.Logger
}

func NewSweeper(service *Service, expr string, batch int, logger *zap.Logger) (*Sweeper, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{service: service, schedule: sched, expr: expr, batch: batch, logger: logger}, nil
}

// Next reports when the sweep after t is due.
func (w *Sweeper) Next(t time.Time) time.Time {
	return w.schedule.Next(t)
}

// RunOnce sweeps immediately and waits for the dispatched tickets.
func (w *Sweeper) RunOnce(ctx context.Context) (int, error) {
	n, err := w.service.Sweep(ctx, w.batch)
	w.service.Wait()
	return n, err
}

// Run sweeps on the schedule until ctx is cancelled. Overlapping runs are
// skipped.
func (w *Sweeper) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(w.schedule, cron.FuncJob(func() {
		n, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("sweep failed", zap.Error(err))
			return
		}
		w.logger.Debug("sweep finished", zap.Int("dispatched", n))
	}))

	w.logger.Info("sweeper started",
		zap.String("schedule", w.expr),
		zap.Time("next", w.Next(time.Now())),
	)
	c.Start()
	<-ctx.Done()

	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(30 * time.Second):
		w.logger.Warn("timed out waiting for running sweep")
	}
	w.logger.Info("sweeper stopped")
	return ctx.Err()
}
