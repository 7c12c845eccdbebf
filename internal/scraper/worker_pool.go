package scraper

import (
	"context"
	"sync"
	"time"
)

// Fetch is one unit of detail work submitted to a WorkerPool.
type Fetch func(ctx context.Context) error

type Outcome struct {
	Key string
	Err error
}

type queued struct {
	key string
	fn  Fetch
}

// WorkerPool fans one source's detail fetches out over a fixed number of
// workers, optionally paced to rps requests per second across all workers.
type WorkerPool struct {
	workers int
	queue   chan queued
	wg      sync.WaitGroup
	mu      sync.RWMutex
	rate    <-chan time.Time
	ticker  *time.Ticker
	closed  bool
}

func NewWorkerPool(workers, buffer int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	return &WorkerPool{
		workers: workers,
		queue:   make(chan queued, buffer),
	}
}

func (p *WorkerPool) SetRateLimit(rps int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
	if rps <= 0 {
		return
	}
	p.ticker = time.NewTicker(time.Second / time.Duration(rps))
	p.rate = p.ticker.C
}

// Submit queues fn under key. It returns false when ctx ends first or the
// pool is already closed.
func (p *WorkerPool) Submit(ctx context.Context, key string, fn Fetch) bool {
	if p == nil || fn == nil {
		return false
	}
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return false
	}
	select {
	case p.queue <- queued{key: key, fn: fn}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close stops accepting work. Queued fetches still run.
func (p *WorkerPool) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.queue)
}

// Run starts the workers. The returned channel closes once the queue is
// drained after Close, or ctx ends. Callers must keep reading it.
func (p *WorkerPool) Run(ctx context.Context) <-chan Outcome {
	out := make(chan Outcome, p.workers)

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case q, ok := <-p.queue:
					if !ok {
						return
					}
					p.mu.RLock()
					rate := p.rate
					p.mu.RUnlock()
					if rate != nil {
						select {
						case <-ctx.Done():
							return
						case <-rate:
						}
					}
					err := q.fn(ctx)
					select {
					case <-ctx.Done():
						return
					case out <- Outcome{Key: q.key, Err: err}:
					}
				}
			}
		}()
	}

	go func() {
		p.wg.Wait()
		p.mu.Lock()
		p.stopTickerLocked()
		p.mu.Unlock()
		close(out)
	}()

	return out
}

func (p *WorkerPool) stopTickerLocked() {
	if p.ticker != nil {
		p.ticker.Stop()
		p.ticker = nil
		p.rate = nil
	}
}
