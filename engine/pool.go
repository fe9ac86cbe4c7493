package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	h "github.com/relloyd/etl-engine/helper"
)

// workerPool runs submitted work with bounded parallelism.
// It is fork-join: WaitUntilDone blocks until everything submitted so far has finished
// and the pool may then be reused, which is how barriers are implemented.
// The first error terminates the pool; work already running is not interrupted
// but its context is cancelled.
type workerPool struct {
	mu         sync.Mutex
	parent     context.Context
	size       int
	g          *errgroup.Group
	gctx       context.Context
	terminated h.AtomBool
	err        error
}

// newWorkerPool returns a pool of size workers; values < 1 mean 1.
func newWorkerPool(ctx context.Context, size int) *workerPool {
	if size < 1 {
		size = 1
	}
	p := &workerPool{parent: ctx, size: size}
	p.reset()
	return p
}

func (p *workerPool) reset() {
	p.g, p.gctx = errgroup.WithContext(p.parent)
	p.g.SetLimit(p.size)
}

// Size returns the number of workers.
func (p *workerPool) Size() int {
	return p.size
}

// Submit runs fn on a worker, blocking while all workers are busy.
// It returns false without running fn if the pool has been terminated.
func (p *workerPool) Submit(fn func(ctx context.Context) error) bool {
	if p.IsTerminated() {
		return false
	}
	p.mu.Lock()
	g, gctx := p.g, p.gctx
	p.mu.Unlock()
	g.Go(func() error {
		if err := fn(gctx); err != nil {
			p.terminated.Set(true)
			return err
		}
		return nil
	})
	return true
}

// WaitUntilDone waits for all submitted work and returns the first error.
// Once an error has been seen it is returned by every later call.
func (p *workerPool) WaitUntilDone() error {
	p.mu.Lock()
	g := p.g
	p.mu.Unlock()
	err := g.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil && p.err == nil {
		p.err = err
	}
	if p.err == nil {
		p.reset()
	}
	return p.err
}

// Terminate stops new work from being started.
func (p *workerPool) Terminate() {
	p.terminated.Set(true)
}

func (p *workerPool) IsTerminated() bool {
	return p.terminated.Get() || p.parent.Err() != nil
}
