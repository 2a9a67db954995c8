// Package queue is the background task port and its asynq adapter.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateTask is returned when a task with the same TaskID is already queued.
var ErrDuplicateTask = errors.New("queue: duplicate task")

// Task is a job with a stable type name and an opaque payload.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a Task; a non-nil error asks for a retry. Handlers must
// be idempotent.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption is mapped best-effort onto the backend. Zero values mean unset.
type EnqueueOption struct {
	Queue     string
	ProcessIn time.Duration
	MaxRetry  int
	UniqueTTL time.Duration
	TaskID    string
}

type Client interface {
	Enqueue(ctx context.Context, t Task, opt EnqueueOption) (id string, err error)
	Close() error
}

type Server interface {
	Register(taskType string, h Handler)
	// Run blocks until ctx is cancelled, then shuts down gracefully.
	Run(ctx context.Context) error
}
