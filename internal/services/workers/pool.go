package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
)

// Job is one unit of work.
type Job func(ctx context.Context) error

// Pool runs jobs on a bounded number of workers. Job errors are
// collected rather than aborting the pool; the fan-out layers decide
// which failures matter.
type Pool struct {
	jobs       chan Job
	maxWorkers int
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	errors     []error
	errorsMu   sync.Mutex
	closeOnce  sync.Once
	closed     bool
	closedMu   sync.RWMutex
	logger     arbor.ILogger
}

// NewPool creates a pool whose workers stop when the parent context is
// cancelled.
func NewPool(parent context.Context, maxWorkers int, logger arbor.ILogger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}

	ctx, cancel := context.WithCancel(parent)

	return &Pool{
		jobs:       make(chan Job, maxWorkers*2),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.logger.Debug().
		Int("max_workers", p.maxWorkers).
		Msg("Starting worker pool")

	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues a job. Fails once the pool is shutting down.
func (p *Pool) Submit(job Job) error {
	p.closedMu.RLock()
	defer p.closedMu.RUnlock()
	if p.closed {
		return fmt.Errorf("worker pool is shutting down")
	}

	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Wait closes the queue and blocks until all submitted jobs finished.
func (p *Pool) Wait() {
	p.closeOnce.Do(func() {
		p.closedMu.Lock()
		p.closed = true
		p.closedMu.Unlock()
		close(p.jobs)
	})
	p.wg.Wait()
	p.cancel()
}

// Shutdown cancels in-flight jobs and waits for the workers.
func (p *Pool) Shutdown() {
	p.cancel()
	p.Wait()
}

// Errors returns the errors collected from failed jobs.
func (p *Pool) Errors() []error {
	p.errorsMu.Lock()
	defer p.errorsMu.Unlock()
	out := make([]error, len(p.errors))
	copy(out, p.errors)
	return out
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := job(p.ctx); err != nil {
				p.errorsMu.Lock()
				p.errors = append(p.errors, err)
				p.errorsMu.Unlock()

				p.logger.Warn().
					Err(err).
					Int("worker_id", id).
					Msg("Job failed")
			}
		case <-p.ctx.Done():
			return
		}
	}
}
