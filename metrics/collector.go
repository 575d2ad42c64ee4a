package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-relay/queue"
	redisqueue "github.com/marcelsud/webhook-relay/queue/redis"
)

// WorkerLister lists live queue consumers grouped by queue
type WorkerLister interface {
	GetAllActiveWorkers(ctx context.Context) (map[string][]redisqueue.WorkerHeartbeat, error)
}

// QueueCollector implements the Collector interface over the Redis delivery queue
type QueueCollector struct {
	stats   queue.StatsReader
	workers WorkerLister
	now     func() time.Time
}

// NewQueueCollector creates a collector; workers may be nil when heartbeats are not tracked
func NewQueueCollector(stats queue.StatsReader, workers WorkerLister) *QueueCollector {
	return &QueueCollector{
		stats:   stats,
		workers: workers,
		now:     time.Now,
	}
}

// Collect gathers all metrics
func (c *QueueCollector) Collect(ctx context.Context) (Metrics, error) {
	stats, err := c.GetQueueStats(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting queue stats: %w", err)
	}

	workers, err := c.GetActiveWorkers(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting active workers: %w", err)
	}

	return Metrics{
		Queue:     stats,
		Workers:   workers,
		Timestamp: c.now(),
	}, nil
}

// GetQueueStats returns the number of jobs per state
func (c *QueueCollector) GetQueueStats(ctx context.Context) (queue.Stats, error) {
	return c.stats.Stats(ctx)
}

// GetActiveWorkers returns live consumers grouped by queue
func (c *QueueCollector) GetActiveWorkers(ctx context.Context) (map[string][]WorkerInfo, error) {
	workers := make(map[string][]WorkerInfo)
	if c.workers == nil {
		return workers, nil
	}

	heartbeats, err := c.workers.GetAllActiveWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing worker heartbeats: %w", err)
	}

	for name, beats := range heartbeats {
		for _, hb := range beats {
			workers[name] = append(workers[name], WorkerInfo{
				WorkerID:      hb.WorkerID,
				Queue:         hb.Queue,
				Status:        hb.Status,
				LastHeartbeat: hb.LastHeartbeat,
			})
		}
	}

	return workers, nil
}
