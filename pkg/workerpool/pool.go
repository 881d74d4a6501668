// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workerpool runs work items on a bounded set of goroutines. Every
// failed or panicking item is logged and counted instead of being dropped.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/lca-core/pkg/metrics"
	"github.com/united-manufacturing-hub/lca-core/pkg/sentry"
)

// Pool processes work items of type T with a fixed number of workers.
type Pool[T any] struct {
	name      string
	workers   int
	queueSize int
	processor func(context.Context, T) error
	describe  func(T) string
	logger    *zap.SugaredLogger

	workChan chan T
	wg       sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
	dropped   atomic.Int64
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithDescriber sets how a work item is named in log lines.
func WithDescriber[T any](f func(T) string) Option[T] {
	return func(p *Pool[T]) { p.describe = f }
}

// New creates a pool. Non-positive sizes fall back to 10 workers and a queue of 1000.
func New[T any](name string, workers, queueSize int, processor func(context.Context, T) error, logger *zap.SugaredLogger, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = 10
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	p := &Pool[T]{
		name:      name,
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		describe:  func(w T) string { return fmt.Sprintf("%v", w) },
		logger:    logger,
		workChan:  make(chan T, queueSize),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Submit enqueues work without blocking. A full queue returns ErrQueueFull.
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.workChan <- work:
		p.submitted.Add(1)
		metrics.SetPoolQueueDepth(p.name, len(p.workChan))

		return nil
	default:
		p.dropped.Add(1)
		metrics.RecordPoolTask(p.name, "dropped", 0)
		p.logger.Warnf("Pool %s queue full, dropping %s", p.name, p.describe(work))

		return ErrQueueFull
	}
}

// Start launches the workers. Work items receive ctx; cancelling it does not
// stop the workers, Stop does.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	p.started = true
	p.logger.Debugf("Pool %s started with %d workers", p.name, p.workers)

	return nil
}

// Stop closes the queue and waits up to timeout for queued and running items.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()

		return nil
	}
	p.stopped = true
	close(p.workChan)
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		p.logger.Debugf("Pool %s stopped", p.name)

		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats is a point in time view of the pool counters.
type Stats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Panicked   int64 `json:"panicked"`
	Dropped    int64 `json:"dropped"`
}

func (p *Pool[T]) Stats() Stats {
	return Stats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Panicked:   p.panicked.Load(),
		Dropped:    p.dropped.Load(),
	}
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for work := range p.workChan {
		metrics.SetPoolQueueDepth(p.name, len(p.workChan))

		start := time.Now()
		err := p.run(ctx, work)
		elapsed := time.Since(start)

		p.processed.Add(1)

		var pe *PanicError

		switch {
		case err == nil:
			metrics.RecordPoolTask(p.name, "success", elapsed)
		case errors.As(err, &pe):
			p.panicked.Add(1)
			metrics.RecordPoolTask(p.name, "panicked", elapsed)
			p.logger.Errorf("Task %s panicked after %s: %v\n%s", p.describe(work), elapsed, pe.Value, pe.Stack)
			sentry.ReportIssueWithContext(pe, sentry.IssueTypeError, p.logger, map[string]string{
				"pool": p.name,
				"task": p.describe(work),
			})
		default:
			p.failed.Add(1)
			metrics.RecordPoolTask(p.name, "failed", elapsed)
			p.logger.Errorf("Task %s failed after %s: %v", p.describe(work), elapsed, err)
		}
	}
}

func (p *Pool[T]) run(ctx context.Context, work T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return p.processor(ctx, work)
}

func formatPanic(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}

	return fmt.Sprintf("%v", v)
}
