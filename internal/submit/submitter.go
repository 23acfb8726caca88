// Package submit drives the execution of a prepared workflow: it hands
// self-sufficient tasks to a worker backend immediately, holds back
// tasks whose upstream per-state results do not exist yet, submits join
// reductions once their node is globally done, and blocks until the
// whole graph has finished.
//
// Coordination is channel-based: every worker reports completion (or
// failure) on a single channel the submitter blocks on. There is no
// polling. A worker-side failure cancels the run, outstanding tasks are
// drained, tasks that can no longer run are marked skipped, and the
// first error is returned to the caller.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/engine"
)

// Worker is the pluggable execution backend contract. RunEl hands one
// task to the backend and returns without waiting for it; the backend
// must invoke done exactly once with the task's outcome. Close releases
// the backend's resources after draining in-flight work, and must be
// called exactly once.
type Worker interface {
	RunEl(ctx context.Context, task *engine.Task, done func(error))
	Close() error
}

// State is the lifecycle of one task inside the submitter.
type State int

const (
	Pending State = iota
	Running
	Done
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrStalled reports a run where unfinished tasks remain but nothing is
// running and nothing can become ready, i.e. the graph cannot make
// progress.
var ErrStalled = errors.New("workflow stalled: waiting tasks can never become ready")

// Submitter owns exactly one Worker for its lifetime and coordinates a
// workflow run over it.
type Submitter struct {
	worker    Worker
	runID     uuid.UUID
	closeOnce sync.Once
	closeErr  error
}

// New constructs a Submitter around a worker backend.
func New(w Worker) *Submitter {
	return &Submitter{worker: w, runID: uuid.New()}
}

// Close releases the worker backend. It is safe to call more than once
// and is also invoked by Run on every exit path.
func (s *Submitter) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.worker.Close()
	})
	return s.closeErr
}

type completion struct {
	slot *taskSlot
	err  error
}

type taskSlot struct {
	task  *engine.Task
	state State
}

// Run prepares the workflow if needed and executes it to completion.
// It returns the first task failure (fail-fast), a context error if the
// caller's deadline or cancellation fires, or nil once every task,
// join reductions included, is done. The worker backend is closed on
// all exit paths.
func (s *Submitter) Run(ctx context.Context, wf *engine.Workflow) error {
	defer s.Close()
	logger := ctxlog.FromContext(ctx).With("run_id", s.runID.String(), "workflow", wf.Name())

	if err := wf.Prepare(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var slots []*taskSlot
	for _, n := range wf.Nodes() {
		for _, t := range n.Tasks() {
			slots = append(slots, &taskSlot{task: t})
		}
		if n.IsJoin() {
			slots = append(slots, &taskSlot{task: n.JoinTask()})
		}
	}
	logger.Info("Submitting workflow.", "tasks", len(slots))

	completions := make(chan completion, len(slots))
	running := 0
	var firstErr error

	submitReady := func() {
		if firstErr != nil {
			return
		}
		for _, slot := range slots {
			if slot.state != Pending || !slot.task.Ready() {
				continue
			}
			slot.state = Running
			running++
			slot := slot
			logger.Debug("Task submitted.", "task", slot.task.ID())
			s.worker.RunEl(runCtx, slot.task, func(err error) {
				completions <- completion{slot: slot, err: err}
			})
		}
	}

	pendingCount := func() int {
		n := 0
		for _, slot := range slots {
			if slot.state == Pending {
				n++
			}
		}
		return n
	}

	skipPending := func() {
		for _, slot := range slots {
			if slot.state == Pending {
				slot.state = Skipped
				logger.Debug("Task skipped.", "task", slot.task.ID())
			}
		}
	}

	submitReady()
	for {
		pending := pendingCount()
		if running == 0 {
			if pending == 0 {
				break
			}
			// Nothing is running and nothing became ready: the remaining
			// tasks wait on results that will never exist.
			skipPending()
			if firstErr == nil {
				firstErr = fmt.Errorf("%w (%d task(s) left)", ErrStalled, pending)
			}
			break
		}

		select {
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			cancel()
			// Drain what is already in flight so the worker can close
			// cleanly, then mark the rest skipped.
			for running > 0 {
				c := <-completions
				running--
				s.finish(logger, c)
			}
			skipPending()

		case c := <-completions:
			running--
			if err := s.finish(logger, c); err != nil && firstErr == nil {
				firstErr = err
				cancel()
			}
			submitReady()
		}

		if firstErr != nil && running == 0 {
			skipPending()
			break
		}
	}

	if firstErr != nil {
		logger.Error("Workflow run failed.", "error", firstErr)
		return firstErr
	}
	if !wf.Finished() {
		return fmt.Errorf("workflow %q: run drained but nodes report unfinished state", wf.Name())
	}
	logger.Info("Workflow run finished.")
	return nil
}

func (s *Submitter) finish(logger *slog.Logger, c completion) error {
	if c.err != nil {
		c.slot.state = Failed
		logger.Warn("Task failed.", "task", c.slot.task.ID(), "error", c.err)
		return fmt.Errorf("task %s: %w", c.slot.task.ID(), c.err)
	}
	c.slot.state = Done
	logger.Debug("Task done.", "task", c.slot.task.ID())
	return nil
}
