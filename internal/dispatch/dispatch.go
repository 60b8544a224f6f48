// Package dispatch queues routed work and runs it on a fixed worker
// pool. Accepted tasks show progress through message reactions; a full
// queue sheds load by dropping new tasks outright.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/magpiebot/magpie/internal/command"
	"github.com/magpiebot/magpie/internal/transport"
)

const (
	indicatorQueued  = "⏳"
	indicatorWorking = "🔄"
)

// Task is one unit of routed work.
type Task struct {
	ID    string
	Ref   transport.EventRef
	Route command.Route
	URLs  []string
	Query string
}

// Handler executes one task end to end.
type Handler func(ctx context.Context, task Task) error

// Stats is a point-in-time snapshot of the dispatcher counters.
type Stats struct {
	Queued    int64 `json:"queued"`
	Active    int64 `json:"active"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Pending   int   `json:"pending"`
}

// Options sizes the dispatcher.
type Options struct {
	Capacity       int
	Workers        int
	IndicatorLimit int
	RouteTimeout   time.Duration
}

// Dispatcher owns the task queue and its workers.
type Dispatcher struct {
	queue      chan Task
	workers    int
	timeout    time.Duration
	handler    Handler
	tr         transport.Transport
	indicators *indicatorSet
	log        zerolog.Logger

	queued    atomic.Int64
	active    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a dispatcher. Zero option fields fall back to safe sizes.
func New(opts Options, tr transport.Transport, handler Handler, log zerolog.Logger) *Dispatcher {
	if opts.Capacity <= 0 {
		opts.Capacity = 10
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.RouteTimeout <= 0 {
		opts.RouteTimeout = 180 * time.Second
	}
	return &Dispatcher{
		queue:      make(chan Task, opts.Capacity),
		workers:    opts.Workers,
		timeout:    opts.RouteTimeout,
		handler:    handler,
		tr:         tr,
		indicators: newIndicatorSet(opts.IndicatorLimit),
		log:        log.With().Str("component", "dispatch").Logger(),
	}
}

// Start launches the worker pool. Cancel the context or call Close to
// stop it.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.log.Info().Int("workers", d.workers).Int("capacity", cap(d.queue)).Msg("dispatcher started")
}

// Close stops the workers after their in-flight tasks finish. Queued
// but unstarted tasks are abandoned.
func (d *Dispatcher) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Submit enqueues a task without blocking. A full queue drops the task,
// removes its indicator, and returns false.
func (d *Dispatcher) Submit(ctx context.Context, t Task) bool {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if d.indicators.reserve(t.ID) {
		d.mark(ctx, t, indicatorQueued)
	}

	select {
	case d.queue <- t:
		d.queued.Add(1)
		return true
	default:
		d.dropped.Add(1)
		d.log.Warn().Str("task", t.ID).Str("route", t.Route.Name).Msg("queue full, dropping task")
		d.clear(ctx, t)
		return false
	}
}

// Stats snapshots the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:    d.queued.Load(),
		Active:    d.active.Load(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
		Pending:   len(d.queue),
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.queue:
			d.run(ctx, t)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, t Task) {
	d.active.Add(1)
	defer d.active.Add(-1)

	d.mark(ctx, t, indicatorWorking)
	// The indicator comes off even when shutdown cancelled ctx mid-task.
	defer d.clear(context.WithoutCancel(ctx), t)

	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	if err := d.handler(tctx, t); err != nil {
		d.failed.Add(1)
		d.log.Error().Err(err).Str("task", t.ID).Str("route", t.Route.Name).Dur("took", time.Since(start)).Msg("task failed")
		return
	}
	d.delivered.Add(1)
	d.log.Info().Str("task", t.ID).Str("route", t.Route.Name).Dur("took", time.Since(start)).Msg("task delivered")
}

// mark moves the task's reaction to emoji, redacting the previous one.
// Tasks that never reserved an indicator slot are left alone.
func (d *Dispatcher) mark(ctx context.Context, t Task, emoji string) {
	old, ok := d.indicators.replace(t.ID, "")
	if !ok {
		return
	}
	if old != "" {
		if err := d.tr.Redact(ctx, t.Ref.Room, old); err != nil {
			d.log.Debug().Err(err).Str("task", t.ID).Msg("indicator redact failed")
		}
	}
	id, err := d.tr.React(ctx, t.Ref, emoji)
	if err != nil {
		d.log.Debug().Err(err).Str("task", t.ID).Msg("indicator react failed")
		return
	}
	d.indicators.replace(t.ID, id)
}

// clear drops the task's indicator slot and redacts its live reaction.
func (d *Dispatcher) clear(ctx context.Context, t Task) {
	event, ok := d.indicators.release(t.ID)
	if !ok || event == "" {
		return
	}
	if err := d.tr.Redact(ctx, t.Ref.Room, event); err != nil {
		d.log.Debug().Err(err).Str("task", t.ID).Msg("indicator redact failed")
	}
}
