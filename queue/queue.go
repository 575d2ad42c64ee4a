package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultName is the queue deliveries are enqueued on
	DefaultName = "deliveries"
	// DefaultAttempts is how many times the queue runs a job before dead-lettering it
	DefaultAttempts = 3
	// DefaultBackoff is the first retry delay, doubled on every further retry
	DefaultBackoff = time.Second
	// DefaultConcurrency is the number of jobs a worker process runs at once
	DefaultConcurrency = 5
)

var (
	// ErrClosed is returned when enqueueing on a queue that is shutting down
	ErrClosed = errors.New("queue is closed")
	// ErrUnavailable is returned when no queue backend is configured
	ErrUnavailable = errors.New("queue unavailable")
)

/* JobData is the serialized Delivery carried by a job
 * Workers reload the rows it points to, these fields are a snapshot taken at enqueue time
 */
type JobData struct {
	DeliveryID     string    `json:"deliveryId"`
	EventID        string    `json:"eventId"`
	RouteID        string    `json:"routeId"`
	ChannelID      string    `json:"channelId"`
	MessageContent string    `json:"messageContent,omitempty"`
	AttemptCount   int       `json:"attemptCount"`
	MaxAttempts    int       `json:"maxAttempts"`
	ScheduledFor   time.Time `json:"scheduledFor"`
}

// Options controls how a single job is scheduled
type Options struct {
	Delay    time.Duration
	Priority int           // 0..100, higher runs first
	Attempts int           // 0 means DefaultAttempts
	Backoff  time.Duration // 0 means DefaultBackoff
}

// Normalize fills defaults and clamps the priority range
func (o Options) Normalize() Options {
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.Priority < 0 {
		o.Priority = 0
	}
	if o.Priority > 100 {
		o.Priority = 100
	}
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	return o
}

// Job is a claimed unit of work
type Job struct {
	ID           string
	Queue        string
	Data         JobData
	Priority     int
	AttemptsMade int // finished runs before the current one
	MaxAttempts  int
	Backoff      time.Duration
	EnqueuedAt   time.Time
}

// Attempt returns the 1-based number of the run in progress
func (j Job) Attempt() int {
	return j.AttemptsMade + 1
}

// WillRetry reports whether a retryable failure of the current run is scheduled again
func (j Job) WillRetry() bool {
	return j.Attempt() < j.MaxAttempts
}

// NextRetryIn is the delay before the queue runs the job again after a retryable failure
func (j Job) NextRetryIn() time.Duration {
	return Backoff(j.Backoff, j.Attempt())
}

// Stats counts jobs per state
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// Retention bounds how many finished jobs are kept for debugging
type Retention struct {
	CompletedCount int64
	CompletedAge   time.Duration
	FailedCount    int64
	FailedAge      time.Duration
}

// DefaultRetention keeps 1000 completed jobs for a day and 5 failed jobs for a week
var DefaultRetention = Retention{
	CompletedCount: 1000,
	CompletedAge:   24 * time.Hour,
	FailedCount:    5,
	FailedAge:      7 * 24 * time.Hour,
}

// Enqueuer accepts jobs
type Enqueuer interface {
	Enqueue(ctx context.Context, data JobData, opts Options) (string, error)
}

// StatsReader reports queue state
type StatsReader interface {
	Stats(ctx context.Context) (Stats, error)
}

// Handler processes claimed jobs and tells the queue what to do next
type Handler interface {
	Handle(ctx context.Context, job Job) Result
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, job Job) Result

// Handle calls f(ctx, job)
func (f HandlerFunc) Handle(ctx context.Context, job Job) Result {
	return f(ctx, job)
}

// Backoff returns base * 2^(attempt-1) for a 1-based attempt
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = DefaultBackoff
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		attempt = 31
	}
	return base * time.Duration(1<<(attempt-1))
}

// JobID builds a unique id per enqueue so repeated deliveries never collapse into one job
func JobID(data JobData, now time.Time) string {
	return fmt.Sprintf("%s:%s:%d", data.DeliveryID, data.RouteID, now.UnixNano())
}

// Unavailable stands in for the queue when no backend is configured
type Unavailable struct{}

// Enqueue always fails with ErrUnavailable
func (Unavailable) Enqueue(context.Context, JobData, Options) (string, error) {
	return "", ErrUnavailable
}

// Stats always fails with ErrUnavailable
func (Unavailable) Stats(context.Context) (Stats, error) {
	return Stats{}, ErrUnavailable
}
