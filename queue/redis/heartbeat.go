package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// WorkerHeartbeat represents the heartbeat data for a queue consumer
type WorkerHeartbeat struct {
	WorkerID      string    `json:"worker_id"`
	Queue         string    `json:"queue"`
	Status        string    `json:"status"` // "idle", "processing"
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

const heartbeatPrefix = "worker:heartbeat"

// SetWorkerHeartbeat stores or updates a consumer's heartbeat in Redis
// The heartbeat key has a TTL of 60 seconds - a consumer that stops beating
// for that long is considered gone
func (q *Queue) SetWorkerHeartbeat(ctx context.Context, workerID, status string) error {
	key := fmt.Sprintf("%s:%s:%s", heartbeatPrefix, q.name, workerID)

	heartbeat := WorkerHeartbeat{
		WorkerID:      workerID,
		Queue:         q.name,
		Status:        status,
		LastHeartbeat: q.now(),
	}

	data, err := json.Marshal(heartbeat)
	if err != nil {
		return fmt.Errorf("marshaling heartbeat: %w", err)
	}

	// consumers beat at least every heartbeatInterval
	err = q.client.Set(ctx, key, data, 60*time.Second).Err()
	if err != nil {
		return fmt.Errorf("setting heartbeat: %w", err)
	}

	return nil
}

// GetActiveWorkers retrieves all live consumers of this queue
func (q *Queue) GetActiveWorkers(ctx context.Context) ([]WorkerHeartbeat, error) {
	byQueue, err := q.scanHeartbeats(ctx, fmt.Sprintf("%s:%s:*", heartbeatPrefix, q.name))
	if err != nil {
		return nil, err
	}
	return byQueue[q.name], nil
}

// GetAllActiveWorkers retrieves all live consumers grouped by queue
func (q *Queue) GetAllActiveWorkers(ctx context.Context) (map[string][]WorkerHeartbeat, error) {
	return q.scanHeartbeats(ctx, heartbeatPrefix+":*")
}

func (q *Queue) scanHeartbeats(ctx context.Context, pattern string) (map[string][]WorkerHeartbeat, error) {
	workersByQueue := make(map[string][]WorkerHeartbeat)

	var cursor uint64
	for {
		keys, nextCursor, err := q.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning worker keys: %w", err)
		}

		for _, key := range keys {
			data, err := q.client.Get(ctx, key).Result()
			if err == redis.Nil {
				// Key expired between scan and get
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("getting worker heartbeat: %w", err)
			}

			var heartbeat WorkerHeartbeat
			if err := json.Unmarshal([]byte(data), &heartbeat); err != nil {
				continue
			}

			workersByQueue[heartbeat.Queue] = append(workersByQueue[heartbeat.Queue], heartbeat)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return workersByQueue, nil
}

func (q *Queue) beat(ctx context.Context, logger zerolog.Logger, workerID, status string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commandTimeout)
	defer cancel()
	if err := q.SetWorkerHeartbeat(ctx, workerID, status); err != nil && !errors.Is(err, redis.ErrClosed) {
		logger.Warn().Err(err).Msg("sending heartbeat")
	}
}

func (q *Queue) removeHeartbeat(ctx context.Context, logger zerolog.Logger, workerID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commandTimeout)
	defer cancel()
	key := fmt.Sprintf("%s:%s:%s", heartbeatPrefix, q.name, workerID)
	if err := q.client.Del(ctx, key).Err(); err != nil {
		logger.Debug().Err(err).Msg("removing heartbeat")
	}
}
