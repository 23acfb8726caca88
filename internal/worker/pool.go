package worker

import (
	"context"
	"sync"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/engine"
)

// defaultWorkers bounds pool concurrency when the caller passes zero.
const defaultWorkers = 4

type submission struct {
	ctx  context.Context
	task *engine.Task
	done func(error)
}

// PoolWorker runs tasks on a fixed set of goroutines fed from a shared
// channel. Submission never blocks the submitter: RunEl enqueues into a
// buffered channel drained by the workers.
type PoolWorker struct {
	queue chan submission
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool constructs a pool backend with the given number of worker
// goroutines.
func NewPool(workers int) *PoolWorker {
	if workers <= 0 {
		workers = defaultWorkers
	}
	p := &PoolWorker{queue: make(chan submission, 64)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// worker is the processing loop for one pool goroutine.
func (p *PoolWorker) worker(id int) {
	defer p.wg.Done()
	for sub := range p.queue {
		logger := ctxlog.FromContext(sub.ctx).With("workerID", id, "task", sub.task.ID())
		if err := sub.ctx.Err(); err != nil {
			logger.Debug("Context canceled before execution.")
			sub.done(err)
			continue
		}
		logger.Debug("Worker picked up task.")
		sub.done(sub.task.Run(sub.ctx))
	}
}

// RunEl enqueues the task. If the queue is full a temporary goroutine
// carries the submission so the caller never blocks.
func (p *PoolWorker) RunEl(ctx context.Context, task *engine.Task, done func(error)) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		done(context.Canceled)
		return
	}
	p.mu.Unlock()

	sub := submission{ctx: ctx, task: task, done: done}
	select {
	case p.queue <- sub:
	default:
		go func() { p.queue <- sub }()
	}
}

// Close drains the queue and stops the workers. It must be called after
// all submitted work has reported completion.
func (p *PoolWorker) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	close(p.queue)
	p.wg.Wait()
	return nil
}
