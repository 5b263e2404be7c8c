package worker

import (
	"context"
	"sync"
)

// Job is a unit of work executed by the pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is what a job produced
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of workers.
// Results are collected as they arrive so Submit never waits on a reader.
type Pool struct {
	workers int
	jobs    chan Job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	collected chan struct{}
	results   chan Result
	collector *ResultCollector

	jobsOnce    sync.Once
	resultsOnce sync.Once
}

// NewPool creates a pool bound to ctx; cancelling ctx stops all workers
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:   workers,
		jobs:      make(chan Job, workers),
		ctx:       ctx,
		cancel:    cancel,
		collected: make(chan struct{}),
		results:   make(chan Result, workers),
		collector: NewResultCollector(),
	}
}

// Start launches the workers and the result collector
func (p *Pool) Start() {
	go func() {
		defer close(p.collected)
		for r := range p.results {
			p.collector.Add(r)
		}
	}()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.results <- job.Execute(p.ctx)
		}
	}
}

// Submit queues a job. It returns false once the pool is shut down.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobs <- job:
		return true
	}
}

// Wait closes the queue, waits for every submitted job, and returns the results
func (p *Pool) Wait() []Result {
	p.jobsOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
	p.drain()
	p.cancel()
	return p.collector.Results()
}

// Shutdown cancels in-flight jobs and stops the workers
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
	p.drain()
}

// drain closes the result channel once all workers exited and waits for the collector
func (p *Pool) drain() {
	p.resultsOnce.Do(func() {
		close(p.results)
	})
	<-p.collected
}

// ResultCollector accumulates results from concurrent producers
type ResultCollector struct {
	results []Result
	mu      sync.Mutex
}

// NewResultCollector creates an empty collector
func NewResultCollector() *ResultCollector {
	return &ResultCollector{
		results: make([]Result, 0),
	}
}

// Add appends a result
func (c *ResultCollector) Add(result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Results returns a copy of everything collected so far
func (c *ResultCollector) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}
