package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gatewise-data/gatewise/internal/monitoring"
	"github.com/gatewise-data/gatewise/internal/timeutil"
)

// DefaultInterval is the processing cadence when none is configured.
const DefaultInterval = 30 * time.Second

// Worker drives the discovery pipeline on a fixed interval: every tick it
// runs one cycle for each event with scan activity. Skipped ticks (an event
// still processing, a failed cycle) are caught up naturally on the next one.
type Worker struct {
	engine   *Engine
	interval time.Duration
	clock    timeutil.Clock

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker builds an interval worker around the shared engine. A
// non-positive interval falls back to DefaultInterval; clock may be nil for
// real time.
func NewWorker(e *Engine, interval time.Duration, clock timeutil.Clock) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = e.clock
	}
	return &Worker{engine: e, interval: interval, clock: clock}
}

// Start launches the processing loop in a goroutine. Call Stop to halt it.
func (w *Worker) Start() {
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.done = make(chan struct{})
	monitoring.Logf("pipeline worker: processing every %s", w.interval)
	go w.loop()
}

// Stop cancels any in-progress cycle and waits for the loop to exit. Safe to
// call without a prior Start.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *Worker) loop() {
	defer close(w.done)
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C():
			if err := w.RunOnce(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
				monitoring.Logf("pipeline worker: %v", err)
			}
		}
	}
}

// RunOnce processes every active event once. Events whose previous cycle is
// still in flight are skipped quietly; other failures are logged per event
// and aggregated so one bad event cannot hide the rest.
func (w *Worker) RunOnce(ctx context.Context) error {
	events, err := w.engine.db.ActiveEventIDs()
	if err != nil {
		return fmt.Errorf("list active events: %w", err)
	}

	failed := 0
	for _, eventID := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.engine.ProcessEvent(ctx, eventID); err != nil {
			if errors.Is(err, ErrCycleInFlight) {
				monitoring.Logf("pipeline worker: event %s still processing, skipped", eventID)
				continue
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			monitoring.Logf("pipeline worker: event %s cycle failed: %v", eventID, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("cycle failed for %d of %d events", failed, len(events))
	}
	return nil
}
