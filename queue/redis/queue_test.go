package redis

import (
	"testing"
	"time"

	"github.com/marcelsud/webhook-relay/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitingScore(t *testing.T) {
	base := time.UnixMilli(1709634030000)

	t.Run("higher priority first", func(t *testing.T) {
		assert.Less(t, waitingScore(90, base.Add(time.Hour)), waitingScore(10, base))
		assert.Less(t, waitingScore(100, base), waitingScore(99, base))
	})

	t.Run("fifo within a priority", func(t *testing.T) {
		assert.Less(t, waitingScore(50, base), waitingScore(50, base.Add(time.Millisecond)))
	})

	t.Run("clamped", func(t *testing.T) {
		assert.Equal(t, waitingScore(100, base), waitingScore(250, base))
		assert.Equal(t, waitingScore(0, base), waitingScore(-4, base))
	})

	t.Run("exact in float64", func(t *testing.T) {
		score := waitingScore(0, base)
		assert.Equal(t, float64(100)*priorityWeight+float64(base.UnixMilli()), score)
		assert.Less(t, score, float64(1<<53))
	})
}

func TestJobFromHash(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		job, err := jobFromHash("deliveries", map[string]string{
			"id":            "dlv-1:rt-1:1",
			"data":          `{"deliveryId":"dlv-1","eventId":"evt-1","routeId":"rt-1","channelId":"ch-1","attemptCount":1,"maxAttempts":3,"scheduledFor":"2024-03-05T10:20:30Z"}`,
			"priority":      "80",
			"attempts_made": "1",
			"max_attempts":  "3",
			"backoff_ms":    "1000",
			"enqueued_at":   "1709634030000",
		})

		require.NoError(t, err)
		assert.Equal(t, "dlv-1:rt-1:1", job.ID)
		assert.Equal(t, "deliveries", job.Queue)
		assert.Equal(t, "dlv-1", job.Data.DeliveryID)
		assert.Equal(t, "ch-1", job.Data.ChannelID)
		assert.Equal(t, 80, job.Priority)
		assert.Equal(t, 2, job.Attempt())
		assert.Equal(t, 3, job.MaxAttempts)
		assert.Equal(t, time.Second, job.Backoff)
		assert.Equal(t, int64(1709634030000), job.EnqueuedAt.UnixMilli())
	})

	t.Run("undecodable data", func(t *testing.T) {
		_, err := jobFromHash("deliveries", map[string]string{"id": "x", "data": "{"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unmarshaling job data")
	})
}

func TestParseClaim(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		id, fields, err := parseClaim([]interface{}{"job-1", []interface{}{"id", "job-1", "priority", "10"}})

		require.NoError(t, err)
		assert.Equal(t, "job-1", id)
		assert.Equal(t, map[string]string{"id": "job-1", "priority": "10"}, fields)
	})

	t.Run("unexpected reply", func(t *testing.T) {
		_, _, err := parseClaim("job-1")
		assert.Error(t, err)
	})
}

func TestNew(t *testing.T) {
	q := New(nil, "", WithPollInterval(-1), WithLeaseDuration(0), WithConsumerID("worker-a"))

	assert.Equal(t, queue.DefaultName, q.Name())
	assert.Equal(t, defaultPollInterval, q.pollInterval)
	assert.Equal(t, defaultLeaseDuration, q.leaseDuration)
	assert.Equal(t, "worker-a", q.consumerID)
	assert.Equal(t, "relay:deliveries:waiting", q.key(waitingSet))
	assert.Equal(t, "relay:deliveries:job:abc", q.jobKey("abc"))
	assert.Equal(t, queue.DefaultRetention, q.retention)
}
