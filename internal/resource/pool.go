package resource

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Pool runs background jobs bounded by a Controller.
type Pool struct {
	ctl    *Controller
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool. A nil controller admits unlimited jobs.
func NewPool(ctl *Controller) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{ctl: ctl, ctx: ctx, cancel: cancel}
}

// Go schedules fn. It returns immediately; fn runs once a worker slot is
// free and receives a context that is cancelled by Close. Jobs that are
// still waiting for a slot when the pool closes are dropped.
func (p *Pool) Go(fn func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.ctl.AcquireBackground(p.ctx); err != nil {
			return
		}
		defer p.ctl.ReleaseBackground()
		if p.ctx.Err() != nil {
			return
		}
		fn(p.ctx)
	}()
	return nil
}

// Wait blocks until every scheduled job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close cancels running jobs and waits for them to return.
// It is safe to call Close more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	return nil
}
