package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marcelsud/webhook-relay/queue"
	redisqueue "github.com/marcelsud/webhook-relay/queue/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	stats queue.Stats
	err   error
}

func (f fakeStats) Stats(context.Context) (queue.Stats, error) {
	return f.stats, f.err
}

type fakeWorkers struct {
	workers map[string][]redisqueue.WorkerHeartbeat
	err     error
}

func (f fakeWorkers) GetAllActiveWorkers(context.Context) (map[string][]redisqueue.WorkerHeartbeat, error) {
	return f.workers, f.err
}

func TestQueueCollector_Collect(t *testing.T) {
	beat := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("success - stats and workers", func(t *testing.T) {
		collector := NewQueueCollector(
			fakeStats{stats: queue.Stats{Waiting: 4, Active: 1, Delayed: 2}},
			fakeWorkers{workers: map[string][]redisqueue.WorkerHeartbeat{
				"deliveries": {
					{WorkerID: "w-1", Queue: "deliveries", Status: "idle", LastHeartbeat: beat},
					{WorkerID: "w-2", Queue: "deliveries", Status: "processing", LastHeartbeat: beat},
				},
			}},
		)
		collector.now = func() time.Time { return beat }

		m, err := collector.Collect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(4), m.Queue.Waiting)
		assert.Equal(t, int64(2), m.Queue.Delayed)
		require.Len(t, m.Workers["deliveries"], 2)
		assert.Equal(t, "processing", m.Workers["deliveries"][1].Status)
		assert.Equal(t, beat, m.Timestamp)
	})

	t.Run("success - no worker lister", func(t *testing.T) {
		collector := NewQueueCollector(fakeStats{}, nil)

		workers, err := collector.GetActiveWorkers(context.Background())
		require.NoError(t, err)
		assert.Empty(t, workers)
	})

	t.Run("error - stats unavailable", func(t *testing.T) {
		collector := NewQueueCollector(fakeStats{err: errors.New("Queue not available")}, nil)

		_, err := collector.Collect(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "getting queue stats")
	})

	t.Run("error - heartbeat scan fails", func(t *testing.T) {
		collector := NewQueueCollector(fakeStats{}, fakeWorkers{err: errors.New("connection refused")})

		_, err := collector.Collect(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listing worker heartbeats")
	})
}
