package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Pool is a bounded worker pool. Frame handlers hand their durable-store
// writes to the pool instead of blocking the connection goroutine on I/O.
type Pool struct {
	tasks   chan task
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	log     *zap.Logger
}

type task struct {
	fn   func(ctx context.Context) error
	done chan error
	ctx  context.Context
}

// New creates a pool with the given number of workers and queue depth.
func New(workers, queueDepth int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueDepth <= 0 {
		queueDepth = 256
	}

	p := &Pool{
		tasks: make(chan task, queueDepth),
		log:   log,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for t := range p.tasks {
		err := p.run(t)
		if t.done != nil {
			t.done <- err
		} else if err != nil {
			p.log.Error("Background task failed", zap.Int("worker", id), zap.Error(err))
		}
	}
}

func (p *Pool) run(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()

	if t.ctx.Err() != nil {
		return t.ctx.Err()
	}
	return t.fn(t.ctx)
}

// Submit enqueues fn without waiting for its result. Errors are logged
// by the worker. Returns ErrPoolClosed after Close.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.mu.Unlock()

	select {
	case p.tasks <- task{fn: fn, ctx: ctx}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitWait enqueues fn and blocks until a worker has run it, returning
// the task's error. The caller waits on the queue round trip only, never
// directly on the I/O inside fn.
func (p *Pool) SubmitWait(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.mu.Unlock()

	done := make(chan error, 1)
	select {
	case p.tasks <- task{fn: fn, ctx: ctx, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for in-flight work to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
