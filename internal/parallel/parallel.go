// Package parallel provides a fixed-size worker pool for channel-partitioned layer work.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
)

// Config controls the pool size.
type Config struct {
	Workers int // Number of worker goroutines; values < 1 mean one worker.
}

// DefaultConfig returns one worker per CPU.
func DefaultConfig() Config {
	return Config{Workers: runtime.NumCPU()}
}

// Barrier is a reusable rendezvous point for a fixed number of parties.
type Barrier struct {
	parties    int
	waiting    int
	generation uint64

	mu   sync.Mutex
	cond *sync.Cond
}

// NewBarrier creates a barrier that releases once parties goroutines wait on it.
func NewBarrier(parties int) *Barrier {
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Await blocks until all parties have called Await for the current cycle.
func (b *Barrier) Await() {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.generation
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.generation++
		b.cond.Broadcast()
		return
	}
	for gen == b.generation {
		b.cond.Wait()
	}
}

type job struct {
	start, end int
	fn         func(start, end int)
}

// Pool runs a range of work split into contiguous, disjoint chunks, one per
// worker. The caller and all workers meet on a barrier at the end of every
// Run, so results are complete and visible when Run returns.
//
// A nil *Pool runs everything on the calling goroutine.
type Pool struct {
	workers int
	jobs    []chan job
	barrier *Barrier

	mu     sync.Mutex
	panics []any
	closed bool
}

// NewPool starts cfg.Workers goroutines.
func NewPool(cfg Config) *Pool {
	n := cfg.Workers
	if n < 1 {
		n = 1
	}
	p := &Pool{
		workers: n,
		jobs:    make([]chan job, n),
		barrier: NewBarrier(n + 1),
	}
	for i := range p.jobs {
		p.jobs[i] = make(chan job)
		go p.work(p.jobs[i])
	}
	return p
}

func (p *Pool) work(jobs <-chan job) {
	for j := range jobs {
		p.runJob(j)
		p.barrier.Await()
	}
}

func (p *Pool) runJob(j job) {
	defer func() {
		if r := recover(); r != nil {
			p.mu.Lock()
			p.panics = append(p.panics, r)
			p.mu.Unlock()
		}
	}()
	if j.start < j.end {
		j.fn(j.start, j.end)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	if p == nil {
		return 1
	}
	return p.workers
}

// Run calls fn over [0, n) split into Size() contiguous ranges and waits for
// all of them. A panic in any worker is re-raised on the caller after the barrier.
func (p *Pool) Run(n int, fn func(start, end int)) {
	if p == nil || p.workers == 1 || n <= 1 {
		if n > 0 {
			fn(0, n)
		}
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		panic("parallel: Run on closed pool")
	}
	p.mu.Unlock()

	chunk := (n + p.workers - 1) / p.workers
	for w := 0; w < p.workers; w++ {
		start := min(w*chunk, n)
		end := min(start+chunk, n)
		p.jobs[w] <- job{start: start, end: end, fn: fn}
	}
	p.barrier.Await()

	p.mu.Lock()
	panics := p.panics
	p.panics = nil
	p.mu.Unlock()
	if len(panics) > 0 {
		panic(fmt.Sprintf("parallel: worker panicked: %v", panics[0]))
	}
}

// Close stops the workers. The pool must not be used afterwards.
func (p *Pool) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, ch := range p.jobs {
		close(ch)
	}
}
