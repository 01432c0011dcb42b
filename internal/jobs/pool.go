package jobs

import (
	"context"
	"sync"
)

// pool is a fixed-size goroutine pool with a bounded input queue.
type pool[T any] struct {
	queue   chan T
	process func(ctx context.Context, t T)
	wg      sync.WaitGroup
}

// newPool creates and starts a pool with n goroutines and queue capacity cap.
func newPool[T any](ctx context.Context, n, cap int, fn func(context.Context, T)) *pool[T] {
	p := &pool[T]{
		queue:   make(chan T, cap),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *pool[T]) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues a task without blocking (returns false if full).
func (p *pool[T]) Submit(t T) bool {
	select {
	case p.queue <- t:
		return true
	default:
		return false
	}
}

// Drain closes the queue and waits for all workers to finish.
func (p *pool[T]) Drain() {
	close(p.queue)
	p.wg.Wait()
}
