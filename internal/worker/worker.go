// Package worker provides the pluggable execution backends a Submitter
// dispatches tasks to: serial in-line execution, a bounded goroutine
// pool, an errgroup-limited pool, and a remote backend shipping
// named-runner invocations to a worker service over HTTP.
package worker

import (
	"fmt"

	"github.com/vk/flowgrid/internal/submit"
)

// Kind selects a backend implementation. Backends are an enum resolved
// at construction time, not a string-keyed dispatch at submit time.
type Kind int

const (
	// Serial runs every task synchronously in the submitter's goroutine.
	Serial Kind = iota
	// Pool runs tasks on a fixed set of worker goroutines.
	Pool
	// Group runs tasks through an errgroup with a concurrency limit.
	Group
	// Remote ships invocations to a worker service over HTTP.
	Remote
)

func (k Kind) String() string {
	switch k {
	case Serial:
		return "serial"
	case Pool:
		return "pool"
	case Group:
		return "group"
	case Remote:
		return "remote"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a CLI-facing backend name to its Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "serial":
		return Serial, nil
	case "pool":
		return Pool, nil
	case "group":
		return Group, nil
	case "remote":
		return Remote, nil
	default:
		return 0, fmt.Errorf("unknown worker backend %q (want serial, pool, group, or remote)", name)
	}
}

// Options carries backend construction parameters.
type Options struct {
	// Workers bounds concurrency for the Pool and Group backends.
	Workers int
	// Client dispatches invocations for the Remote backend.
	Client Client
}

// New constructs the backend for a Kind.
func New(kind Kind, opts Options) (submit.Worker, error) {
	switch kind {
	case Serial:
		return NewSerial(), nil
	case Pool:
		return NewPool(opts.Workers), nil
	case Group:
		return NewGroup(opts.Workers), nil
	case Remote:
		if opts.Client == nil {
			return nil, fmt.Errorf("remote backend needs a client")
		}
		return NewRemote(opts.Client), nil
	default:
		return nil, fmt.Errorf("unknown worker kind %v", kind)
	}
}
