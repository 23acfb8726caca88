package worker

import (
	"context"

	"github.com/vk/flowgrid/internal/engine"
)

// SerialWorker executes each task synchronously, in line, before RunEl
// returns. It exists for debugging and deterministic tests.
type SerialWorker struct{}

// NewSerial constructs the serial backend.
func NewSerial() *SerialWorker { return &SerialWorker{} }

// RunEl runs the task and reports its outcome before returning.
func (w *SerialWorker) RunEl(ctx context.Context, task *engine.Task, done func(error)) {
	done(task.Run(ctx))
}

// Close is a no-op; the serial backend holds no resources.
func (w *SerialWorker) Close() error { return nil }
