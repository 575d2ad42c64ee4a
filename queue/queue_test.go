package queue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	t.Run("doubles from the base", func(t *testing.T) {
		assert.Equal(t, 1*time.Second, Backoff(time.Second, 1))
		assert.Equal(t, 2*time.Second, Backoff(time.Second, 2))
		assert.Equal(t, 4*time.Second, Backoff(time.Second, 3))
		assert.Equal(t, 8*time.Second, Backoff(time.Second, 4))
	})

	t.Run("defaults", func(t *testing.T) {
		assert.Equal(t, DefaultBackoff, Backoff(0, 0))
		assert.Equal(t, 500*time.Millisecond, Backoff(500*time.Millisecond, -3))
	})
}

func TestOptionsNormalize(t *testing.T) {
	opts := Options{Delay: -time.Second, Priority: 250}.Normalize()

	assert.Equal(t, time.Duration(0), opts.Delay)
	assert.Equal(t, 100, opts.Priority)
	assert.Equal(t, DefaultAttempts, opts.Attempts)
	assert.Equal(t, DefaultBackoff, opts.Backoff)

	assert.Equal(t, 0, Options{Priority: -1}.Normalize().Priority)
	assert.Equal(t, 7, Options{Attempts: 7}.Normalize().Attempts)
}

func TestJob(t *testing.T) {
	job := Job{AttemptsMade: 0, MaxAttempts: 3, Backoff: time.Second}
	assert.Equal(t, 1, job.Attempt())
	assert.True(t, job.WillRetry())
	assert.Equal(t, time.Second, job.NextRetryIn())

	job.AttemptsMade = 1
	assert.True(t, job.WillRetry())
	assert.Equal(t, 2*time.Second, job.NextRetryIn())

	job.AttemptsMade = 2
	assert.False(t, job.WillRetry(), "third run is the last")
}

func TestJobID(t *testing.T) {
	data := JobData{DeliveryID: "dlv-1", RouteID: "rt-1"}
	now := time.Unix(1709634030, 123)

	id := JobID(data, now)
	assert.Equal(t, "dlv-1:rt-1:1709634030000000123", id)
	assert.NotEqual(t, id, JobID(data, now.Add(time.Nanosecond)), "every enqueue gets its own id")
	assert.True(t, strings.HasPrefix(JobID(data, time.Now()), "dlv-1:rt-1:"))
}

func TestResult(t *testing.T) {
	cause := errors.New("boom")

	assert.Equal(t, Succeeded, Done().Outcome())
	assert.NoError(t, Done().Err())
	assert.Empty(t, Done().Reason())

	assert.Equal(t, Retryable, Retry(cause).Outcome())
	assert.Equal(t, "boom", Retry(cause).Reason())

	assert.Equal(t, Fatal, Fail(cause).Outcome())
	assert.ErrorIs(t, Fail(cause).Err(), cause)

	assert.Equal(t, Retryable, Result{}.Outcome(), "zero result is retried")
	assert.NotEmpty(t, Result{}.Reason())
}

func TestUnavailable(t *testing.T) {
	var q Unavailable

	_, err := q.Enqueue(context.Background(), JobData{DeliveryID: "d"}, Options{})
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = q.Stats(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestHandlerFunc(t *testing.T) {
	var got Job
	h := HandlerFunc(func(_ context.Context, job Job) Result {
		got = job
		return Done()
	})

	res := h.Handle(context.Background(), Job{ID: "j1"})
	assert.Equal(t, Succeeded, res.Outcome())
	assert.Equal(t, "j1", got.ID)
}
