// Package async dispatches accepted jobs to workers. Two queues exist: an
// in-process channel queue for single-binary deployments, and a Redis queue
// that lets intake and workers run as separate processes.
package async

import (
	"context"

	"github.com/google/uuid"
)

// ProcessFunc runs one job to a terminal state. The returned error is for
// the queue's log only; persistence of the failure happens inside.
type ProcessFunc func(ctx context.Context, jobID uuid.UUID) error

// Queue hands accepted job ids to workers.
type Queue interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) error
	// Shutdown stops intake and waits for in-flight work, giving up when the
	// context expires.
	Shutdown(ctx context.Context)
}
