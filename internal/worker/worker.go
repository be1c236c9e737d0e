// Package worker runs background jobs: prewarm requests from the queue and
// the periodic alert sweep.
package worker

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shootday/internal/monitor"
	"shootday/internal/queue"
)

// Monitor is the part of *monitor.Monitor the worker drives.
type Monitor interface {
	Prewarm(ctx context.Context, now time.Time) (int, error)
	Feed(ctx context.Context, now time.Time) ([]monitor.Row, error)
}

// Worker consumes queue messages and sweeps on an interval.
type Worker struct {
	mon      Monitor
	queue    queue.Queue
	clock    clock.Clock
	interval time.Duration
	log      *zap.Logger
}

// New creates a worker. A non-positive interval disables the sweep.
func New(mon Monitor, q queue.Queue, clk clock.Clock, interval time.Duration, log *zap.Logger) *Worker {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{mon: mon, queue: q, clock: clk, interval: interval, log: log}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.queue.Consume(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for msg := range messages {
			w.Handle(gctx, msg)
		}
		return nil
	})
	if w.interval > 0 {
		g.Go(func() error {
			ticker := w.clock.Ticker(w.interval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					w.Sweep(gctx)
				}
			}
		})
	}
	w.log.Info("worker started", zap.Duration("sweep_interval", w.interval))
	err = g.Wait()
	w.log.Info("worker stopped")
	return err
}

// Handle processes one message. Unknown types are dropped.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	switch msg.Type {
	case queue.TypePrewarm:
		var job queue.PrewarmJob
		if err := msg.Decode(&job); err != nil {
			w.log.Warn("dropping malformed prewarm job", zap.String("id", msg.ID), zap.Error(err))
			return
		}
		n, err := w.mon.Prewarm(ctx, w.clock.Now())
		if err != nil {
			w.log.Error("prewarm failed", zap.String("id", msg.ID), zap.Error(err))
			return
		}
		w.log.Info("prewarm done",
			zap.String("id", msg.ID),
			zap.Int64("photographer_id", job.PhotographerID),
			zap.String("date", job.Date),
			zap.Int("pairs", n),
		)
	default:
		w.log.Warn("dropping unknown message", zap.String("id", msg.ID), zap.String("type", msg.Type))
	}
}

// Sweep warms the travel cache and recomputes the feed so the alert gauges
// stay current between operator requests.
func (w *Worker) Sweep(ctx context.Context) {
	now := w.clock.Now()
	if _, err := w.mon.Prewarm(ctx, now); err != nil {
		w.log.Error("sweep prewarm failed", zap.Error(err))
		return
	}
	rows, err := w.mon.Feed(ctx, now)
	if err != nil {
		w.log.Error("sweep feed failed", zap.Error(err))
		return
	}
	w.log.Debug("sweep done", zap.Int("alerts", len(rows)))
}
