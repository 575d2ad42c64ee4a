package metrics

import (
	"context"
	"time"

	"github.com/marcelsud/webhook-relay/queue"
)

// Metrics represents the current state of the delivery pipeline.
type Metrics struct {
	// Queue counts delivery jobs per state
	Queue queue.Stats `json:"queue"`

	// Workers maps queue name to its live consumers
	Workers map[string][]WorkerInfo `json:"workers"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// WorkerInfo represents information about an active worker.
type WorkerInfo struct {
	// WorkerID is a unique identifier for the worker
	WorkerID string `json:"worker_id"`

	// Queue is the queue this worker consumes
	Queue string `json:"queue"`

	// Status is the current status of the worker (e.g., "idle", "processing")
	Status string `json:"status"`

	// LastHeartbeat is the timestamp of the last heartbeat
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Collector defines the interface for collecting metrics from the delivery pipeline.
type Collector interface {
	// Collect gathers current metrics from the system
	Collect(ctx context.Context) (Metrics, error)

	// GetQueueStats returns the number of delivery jobs per state
	GetQueueStats(ctx context.Context) (queue.Stats, error)

	// GetActiveWorkers returns information about active workers per queue
	GetActiveWorkers(ctx context.Context) (map[string][]WorkerInfo, error)
}
