package worker

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vk/flowgrid/internal/engine"
)

// GroupWorker runs each task in its own goroutine through an errgroup
// with a concurrency limit. Task failures travel through the
// submitter's done callback, not the group error, so one failure never
// hides the completion of the others.
type GroupWorker struct {
	g *errgroup.Group
}

// NewGroup constructs a group backend limited to the given concurrency.
func NewGroup(limit int) *GroupWorker {
	if limit <= 0 {
		limit = defaultWorkers
	}
	g := &errgroup.Group{}
	g.SetLimit(limit)
	return &GroupWorker{g: g}
}

// RunEl schedules the task on the group. It may block briefly when the
// concurrency limit is reached.
func (w *GroupWorker) RunEl(ctx context.Context, task *engine.Task, done func(error)) {
	w.g.Go(func() error {
		done(task.Run(ctx))
		return nil
	})
}

// Close waits for every scheduled task to finish.
func (w *GroupWorker) Close() error {
	return w.g.Wait()
}
