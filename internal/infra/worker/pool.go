package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"compare/internal/infra/logging"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs blocking jobs off the request goroutine. A bounded pool holds one
// semaphore token per slot; a pool of size 0 admits every job immediately.
type Pool struct {
	mu     sync.RWMutex
	sem    chan struct{}
	size   int
	closed bool
	wg     sync.WaitGroup

	inUse     atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Enabled   bool  `json:"enabled"`
	Capacity  int   `json:"capacity"`
	Unbounded bool  `json:"unbounded"`
	InUse     int64 `json:"in_use"`
	Idle      int   `json:"idle"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

func NewPool(size int) *Pool {
	p := &Pool{size: size}
	if size > 0 {
		p.sem = make(chan struct{}, size)
		for i := 0; i < size; i++ {
			p.sem <- struct{}{}
		}
	}
	return p
}

// Acquire waits for a free slot or for ctx to end.
func (p *Pool) Acquire(ctx context.Context) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrPoolClosed
	}
	return p.acquireSlot(ctx)
}

func (p *Pool) acquireSlot(ctx context.Context) error {
	if p.sem != nil {
		select {
		case <-p.sem:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.inUse.Add(1)
	return nil
}

func (p *Pool) Release() {
	p.inUse.Add(-1)
	if p.sem != nil {
		p.sem <- struct{}{}
	}
}

func (p *Pool) Stats() Stats {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	inUse := p.inUse.Load()
	idle := 0
	if p.sem != nil {
		idle = len(p.sem)
	}
	return Stats{
		Enabled:   !closed,
		Capacity:  p.size,
		Unbounded: p.sem == nil,
		InUse:     inUse,
		Idle:      idle,
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Close rejects new jobs and waits for running ones. It is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

type result[T any] struct {
	val T
	err error
}

// Run executes fn on the pool and waits for its single result. ctx bounds only
// the wait for a slot: once fn starts it runs to completion. A panic in fn is
// returned as an error.
func Run[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return zero, ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	if err := p.acquireSlot(ctx); err != nil {
		p.wg.Done()
		return zero, err
	}

	done := make(chan result[T], 1)
	go func() {
		defer p.wg.Done()
		r := invoke(fn)
		if r.err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
		p.Release()
		done <- r
	}()

	r := <-done
	return r.val, r.err
}

func invoke[T any](fn func() (T, error)) (r result[T]) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("Worker job panicked", "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			r = result[T]{err: fmt.Errorf("worker job panicked: %v", rec)}
		}
	}()
	v, err := fn()
	return result[T]{val: v, err: err}
}
