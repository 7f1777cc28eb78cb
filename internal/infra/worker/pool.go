// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	ErrQueueFull  = errors.New("worker queue full")
	ErrPoolClosed = errors.New("worker pool stopped")
)

// QueueDepth is the number of tasks each worker can hold before submitters block.
const QueueDepth = 16

// Task is a unit of work; errors are logged by the worker that ran it.
type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines. Every worker owns a FIFO
// queue, so tasks submitted under the same key run one after another in submission order.
type Pool struct {
	wg       sync.WaitGroup
	queues   []chan Task
	quit     chan struct{}
	stopOnce sync.Once
	next     atomic.Uint64
	log      *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := logger.With().Str("component", "worker.Pool").Logger()
	queues := make([]chan Task, workers)
	for i := range queues {
		queues[i] = make(chan Task, QueueDepth)
	}
	return &Pool{queues: queues, quit: make(chan struct{}), log: &l}
}

// Start launches the workers. Tasks receive ctx; cancelling it stops the workers without
// draining. Pass a ctx that outlives shutdown and use Stop to let queued work finish.
func (p *Pool) Start(ctx context.Context) {
	for i, q := range p.queues {
		p.wg.Add(1)
		go func(id int, q chan Task) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					p.drain(ctx, id, q)
					return
				case task := <-q:
					p.run(ctx, id, task)
				}
			}
		}(i, q)
	}
}

func (p *Pool) drain(ctx context.Context, id int, q chan Task) {
	for {
		select {
		case task := <-q:
			p.run(ctx, id, task)
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Error().Err(err).Int("worker", id).Msg("task error")
	}
}

// Stop refuses new work, runs what is already queued and waits for the workers to exit.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *Pool) roundRobin() chan Task {
	return p.queues[p.next.Add(1)%uint64(len(p.queues))]
}

func (p *Pool) keyed(key int64) chan Task {
	return p.queues[uint64(key)%uint64(len(p.queues))]
}

// Submit enqueues without blocking and fails with ErrQueueFull when saturated.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case <-p.quit:
		return ErrPoolClosed
	default:
	}
	select {
	case p.roundRobin() <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitWait blocks until the task is queued, ctx is done, or the pool stops.
func (p *Pool) SubmitWait(ctx context.Context, task Task) error {
	return p.enqueue(ctx, p.roundRobin(), task)
}

// SubmitKeyed queues task on the worker that owns key. Tasks sharing a key never overlap
// and run in the order they were submitted.
func (p *Pool) SubmitKeyed(ctx context.Context, key int64, task Task) error {
	return p.enqueue(ctx, p.keyed(key), task)
}

func (p *Pool) enqueue(ctx context.Context, q chan Task, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case <-p.quit:
		return ErrPoolClosed
	default:
	}
	select {
	case q <- task:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
