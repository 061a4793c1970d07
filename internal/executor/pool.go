// Package executor contains the concurrency core: a bounded task pool with
// per-task timeouts, the per-exchange unit executor, and the run coordinator
// that drives a full test run over both.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTaskTimeout settles a pool ticket whose task ran past the pool's
// per-task duration ceiling.
var ErrTaskTimeout = errors.New("task timed out")

// Task is one unit of deferred work submitted to the pool. The context is
// cancelled when the pool stops waiting on the task; cooperative tasks use it
// to stop early, others simply run to completion unobserved.
type Task func(ctx context.Context) (UnitOutcome, error)

// Ticket is the eventual settlement of one submitted task. It settles exactly
// once: with the task's outcome, with ErrTaskTimeout, or with the error of a
// task that returned or panicked.
type Ticket struct {
	task    Task
	done    chan struct{}
	outcome UnitOutcome
	err     error
}

// Wait blocks until the ticket settles.
func (t *Ticket) Wait() (UnitOutcome, error) {
	<-t.done
	return t.outcome, t.err
}

// Done returns a channel closed when the ticket settles.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Pool runs submitted tasks with a fixed concurrency ceiling and a per-task
// wall-clock timeout. Excess work queues in arrival order and starts, FIFO,
// as running slots free up.
type Pool struct {
	maxConcurrent   int
	maxTaskDuration time.Duration

	mu      sync.Mutex
	running int
	queue   []*Ticket
	wg      sync.WaitGroup
}

// NewPool creates a pool. Both the ceiling and the per-task duration are
// required; the pool assumes no defaults of its own.
func NewPool(maxConcurrent int, maxTaskDuration time.Duration) *Pool {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Pool{maxConcurrent: maxConcurrent, maxTaskDuration: maxTaskDuration}
}

// Submit enqueues one task. The task starts immediately when a running slot
// is free, otherwise it waits its turn in arrival order.
func (p *Pool) Submit(task Task) *Ticket {
	t := &Ticket{task: task, done: make(chan struct{})}
	p.wg.Add(1)

	p.mu.Lock()
	if p.running < p.maxConcurrent {
		p.running++
		p.mu.Unlock()
		go p.drive(t)
		return t
	}
	p.queue = append(p.queue, t)
	p.mu.Unlock()
	return t
}

// Join blocks until every task submitted so far has settled, including tasks
// still queued at call time and any chain of queue-induced follow-on starts.
func (p *Pool) Join() {
	p.wg.Wait()
}

// drive owns one running slot: it executes its ticket, then keeps draining
// the FIFO queue until the queue is empty, at which point the slot is
// released.
func (p *Pool) drive(t *Ticket) {
	for t != nil {
		p.runOne(t)
		t = p.next()
	}
}

func (p *Pool) next() *Ticket {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		p.running--
		return nil
	}
	t := p.queue[0]
	p.queue = p.queue[1:]
	return t
}

// runOne races the task against the pool's timeout and settles the ticket
// exactly once. On timeout the task goroutine is not killed; the pool stops
// waiting on it and its eventual result is discarded. The slot is accounted
// for on every exit path, panics included.
func (p *Pool) runOne(t *Ticket) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type settled struct {
		outcome UnitOutcome
		err     error
	}
	resultCh := make(chan settled, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- settled{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		outcome, err := t.task(ctx)
		resultCh <- settled{outcome: outcome, err: err}
	}()

	timer := time.NewTimer(p.maxTaskDuration)
	defer timer.Stop()

	select {
	case r := <-resultCh:
		t.outcome, t.err = r.outcome, r.err
	case <-timer.C:
		t.err = fmt.Errorf("%w after %s", ErrTaskTimeout, p.maxTaskDuration)
		cancel()
	}

	close(t.done)
	p.wg.Done()
}
