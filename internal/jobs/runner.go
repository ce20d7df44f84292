// Package jobs runs the ledger's periodic background work.
package jobs

import (
	"context"
	"sync"
	"time"

	"custody-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// Task is a unit of periodic work.
type Task struct {
	Name     string
	Interval time.Duration
	Delay    time.Duration // wait before the first run
	Timeout  time.Duration // per-run deadline; zero = none
	Run      func(ctx context.Context) error
}

// Runner drives tasks on their own tickers. A task never overlaps itself.
type Runner struct {
	log   zerolog.Logger
	tasks []Task
	wg    sync.WaitGroup
}

// NewRunner creates an empty Runner.
func NewRunner(log zerolog.Logger) *Runner {
	return &Runner{log: log.With().Str("component", "jobs").Logger()}
}

// Add registers a task. Tasks with a non-positive interval are ignored.
func (r *Runner) Add(t Task) {
	if t.Interval <= 0 || t.Run == nil {
		r.log.Warn().Str("task", t.Name).Msg("task disabled")
		return
	}
	r.tasks = append(r.tasks, t)
}

// Start launches every task. They stop when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	for _, t := range r.tasks {
		r.wg.Add(1)
		go r.loop(ctx, t)
	}
}

// Wait blocks until all tasks have returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, t Task) {
	defer r.wg.Done()
	log := r.log.With().Str("task", t.Name).Logger()

	if t.Delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.Delay):
		}
	}

	log.Info().Dur("interval", t.Interval).Msg("task started")
	r.runOnce(ctx, t, log)

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("task stopped")
			return
		case <-ticker.C:
			r.runOnce(ctx, t, log)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, t Task, log zerolog.Logger) {
	runCtx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("task panicked")
		}
	}()

	start := time.Now()
	if err := t.Run(runCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("task failed")
		return
	}
	log.Debug().Dur("elapsed", time.Since(start)).Msg("task finished")
}

// ReconciliationTask runs one full verification pass per tick.
func ReconciliationTask(svc ports.ReconciliationService, interval, delay, timeout time.Duration, log zerolog.Logger) Task {
	return Task{
		Name:     "reconciliation",
		Interval: interval,
		Delay:    delay,
		Timeout:  timeout,
		Run: func(ctx context.Context) error {
			s, err := svc.RunPass(ctx)
			if err != nil {
				return err
			}
			event := log.Info()
			if s.Critical > 0 || s.Errors > 0 {
				event = log.Warn()
			}
			event.
				Str("pass_id", s.PassID.String()).
				Int("wallets", s.WalletsChecked).
				Int("discrepancies", s.Discrepancies).
				Int("auto_corrected", s.AutoCorrected).
				Int("critical", s.Critical).
				Int("errors", s.Errors).
				Dur("duration", s.Duration).
				Msg("reconciliation pass complete")
			return nil
		},
	}
}

// FinalizeTask releases shipped orders past their auto-finalize time, reading
// them batch at a time.
func FinalizeTask(engine ports.EscrowEngine, interval time.Duration, batch int, now func() time.Time, log zerolog.Logger) Task {
	if batch <= 0 {
		batch = 100
	}
	return Task{
		Name:     "auto_finalize",
		Interval: interval,
		Timeout:  interval,
		Run: func(ctx context.Context) error {
			n, err := engine.AutoFinalizeDue(ctx, now(), batch)
			if n > 0 {
				log.Info().Int("released", n).Msg("auto-finalized shipped orders")
			}
			return err
		},
	}
}
