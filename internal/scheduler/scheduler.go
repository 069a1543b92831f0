// Package scheduler runs registered jobs on fixed intervals.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is invoked once per tick with the scheduler's context
type Job func(ctx context.Context)

// Scheduler is the port recurring background work registers with
type Scheduler interface {
	Register(interval time.Duration, name string, job Job)
}

// Ticker is a Scheduler backed by one time.Ticker per registered job
type Ticker struct {
	logger *zap.Logger

	mu      sync.Mutex
	entries []entry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	// alignTo starts jobs with exactly this interval on a wall-clock boundary
	alignTo time.Duration
}

type entry struct {
	interval time.Duration
	name     string
	job      Job
}

func NewTicker(logger *zap.Logger) *Ticker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ticker{logger: logger, alignTo: time.Minute}
}

func (t *Ticker) Register(interval time.Duration, name string, job Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry{interval: interval, name: name, job: job})
}

// Start launches every registered job. It returns immediately.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, t.cancel = context.WithCancel(ctx)
	for _, e := range t.entries {
		t.wg.Add(1)
		go t.run(ctx, e)
		t.logger.Info("Scheduled job registered", zap.String("job", e.name), zap.Duration("interval", e.interval))
	}
}

// Stop cancels all jobs and waits for in-flight runs to return
func (t *Ticker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}

func (t *Ticker) run(ctx context.Context, e entry) {
	defer t.wg.Done()

	aligned := t.alignTo > 0 && e.interval == t.alignTo
	if aligned {
		wait := time.Until(time.Now().Truncate(e.interval).Add(e.interval))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}

	// Created before the first run so ticks stay on the boundary however
	// long that run takes
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	if aligned {
		t.invoke(ctx, e)
	}

	for {
		select {
		case <-ticker.C:
			t.invoke(ctx, e)
		case <-ctx.Done():
			return
		}
	}
}

func (t *Ticker) invoke(ctx context.Context, e entry) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Scheduled job panicked", zap.String("job", e.name), zap.Any("panic", r))
		}
	}()
	e.job(ctx)
}
