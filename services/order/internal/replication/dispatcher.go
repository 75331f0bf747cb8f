package replication

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

type Task func(ctx context.Context) error

type taskError struct {
	name string
	err  error
}

// Dispatcher runs fire-and-forget work on detached goroutines. At most
// maxInFlight tasks run at once; a task submitted while every slot is busy is
// dropped with a warning. Task errors flow through a channel to a single
// logging goroutine and never reach the submitter.
type Dispatcher struct {
	slots  *semaphore.Weighted
	errs   chan taskError
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
	dropped  atomic.Int64

	logDone chan struct{}
}

func NewDispatcher(maxInFlight int, logger *slog.Logger) *Dispatcher {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		slots:   semaphore.NewWeighted(int64(maxInFlight)),
		errs:    make(chan taskError, maxInFlight),
		logger:  logger.With("component", "dispatcher"),
		ctx:     ctx,
		cancel:  cancel,
		logDone: make(chan struct{}),
	}
	go d.logErrors()
	return d
}

func (d *Dispatcher) logErrors() {
	defer close(d.logDone)
	for te := range d.errs {
		d.logger.Error("async_task_failed", "task", te.name, "error", te.err)
	}
}

// Submit starts task in the background and reports whether it was accepted.
func (d *Dispatcher) Submit(name string, task Task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.logger.Warn("async_task_rejected", "task", name, "reason", "dispatcher closed")
		return false
	}
	if !d.slots.TryAcquire(1) {
		d.dropped.Add(1)
		d.logger.Warn("async_task_dropped", "task", name, "reason", "too many tasks in flight")
		return false
	}

	d.wg.Add(1)
	d.inFlight.Add(1)
	go d.run(name, task)
	return true
}

func (d *Dispatcher) run(name string, task Task) {
	defer d.wg.Done()
	defer d.inFlight.Add(-1)
	defer d.slots.Release(1)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return task(d.ctx)
	}()
	if err != nil {
		d.errs <- taskError{name: name, err: err}
	}
}

func (d *Dispatcher) InFlight() int64 {
	return d.inFlight.Load()
}

func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Wait blocks until no task is running or ctx expires. New tasks may still be
// submitted meanwhile.
func (d *Dispatcher) Wait(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for d.inFlight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops accepting tasks and drains the running ones until ctx expires.
// Tasks still running then are cancelled and reported as abandoned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		d.cancel()
		close(d.errs)
		<-d.logDone
		d.logger.Info("dispatcher_drained")
		return nil
	case <-ctx.Done():
		abandoned := d.inFlight.Load()
		d.cancel()
		d.logger.Warn("dispatcher_abandoned_tasks", "count", abandoned)
		return fmt.Errorf("dispatcher: %d tasks abandoned: %w", abandoned, ctx.Err())
	}
}
