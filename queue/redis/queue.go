package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-relay/queue"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

/* Redis implementation of the delivery queue
 * Uses Redis Hashes for job metadata and Sorted Sets for job state
 * Keys live under relay:<queue>: so several queues can share one Redis
 */

const (
	keyPrefix = "relay"

	waitingSet   = "waiting"
	delayedSet   = "delayed"
	activeSet    = "active"
	completedSet = "completed"
	failedSet    = "failed"

	stateWaiting   = "waiting"
	stateDelayed   = "delayed"
	stateCompleted = "completed"
	stateFailed    = "failed"

	// waiting jobs are ordered by priority rank first and enqueue time second
	priorityWeight = 1e13
	maxPriority    = 100

	defaultPollInterval  = 500 * time.Millisecond
	defaultLeaseDuration = 30 * time.Second
	promoteBatch         = 100
)

// Queue is a durable job queue with at most one active consumer per job
type Queue struct {
	client        *redis.Client
	name          string
	logger        zerolog.Logger
	retention     queue.Retention
	pollInterval  time.Duration
	leaseDuration time.Duration
	consumerID    string
	jobDefaults   queue.Options
	now           func() time.Time

	mu       sync.Mutex
	closed   atomic.Bool
	inflight sync.WaitGroup
	active   atomic.Int64
}

// Option customizes a Queue
type Option func(*Queue)

// WithLogger sets the logger used for job lifecycle lines
func WithLogger(logger zerolog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithRetention overrides how many finished jobs are kept
func WithRetention(r queue.Retention) Option {
	return func(q *Queue) {
		q.retention = r
	}
}

// WithPollInterval sets how long idle consumers and the scheduler sleep between checks
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// WithLeaseDuration sets how long a claimed job is reserved before it counts as stalled
func WithLeaseDuration(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.leaseDuration = d
		}
	}
}

// WithJobDefaults sets the attempts and backoff used when Enqueue leaves them unset
func WithJobDefaults(attempts int, backoff time.Duration) Option {
	return func(q *Queue) {
		q.jobDefaults.Attempts = attempts
		q.jobDefaults.Backoff = backoff
	}
}

// WithConsumerID names this process in heartbeats, a random id is used otherwise
func WithConsumerID(id string) Option {
	return func(q *Queue) {
		if id != "" {
			q.consumerID = id
		}
	}
}

// New creates a queue on an existing client; the queue owns the client and closes it in Close
func New(client *redis.Client, name string, opts ...Option) *Queue {
	if name == "" {
		name = queue.DefaultName
	}
	q := &Queue{
		client:        client,
		name:          name,
		logger:        zerolog.Nop(),
		retention:     queue.DefaultRetention,
		pollInterval:  defaultPollInterval,
		leaseDuration: defaultLeaseDuration,
		consumerID:    uuid.NewString(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// NewFromURL connects to redis://… and checks the connection
func NewFromURL(ctx context.Context, url, name string, opts ...Option) (*Queue, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing Redis URL: %w", err)
	}
	client := redis.NewClient(redisOpts)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return New(client, name, opts...), nil
}

// Name returns the queue name
func (q *Queue) Name() string {
	return q.name
}

// Enqueue stores a job and schedules it as waiting or delayed
func (q *Queue) Enqueue(ctx context.Context, data queue.JobData, opts queue.Options) (string, error) {
	if q.closed.Load() {
		return "", queue.ErrClosed
	}
	if opts.Attempts <= 0 {
		opts.Attempts = q.jobDefaults.Attempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = q.jobDefaults.Backoff
	}
	opts = opts.Normalize()

	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshaling job data: %w", err)
	}

	now := q.now()
	id := queue.JobID(data, now)
	score := waitingScore(opts.Priority, now)
	state := stateWaiting
	if opts.Delay > 0 {
		state = stateDelayed
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(id), map[string]interface{}{
			"id":            id,
			"data":          string(payload),
			"priority":      opts.Priority,
			"score":         strconv.FormatFloat(score, 'f', 0, 64),
			"attempts_made": 0,
			"max_attempts":  opts.Attempts,
			"backoff_ms":    opts.Backoff.Milliseconds(),
			"enqueued_at":   now.UnixMilli(),
			"state":         state,
		})
		if opts.Delay > 0 {
			pipe.ZAdd(ctx, q.key(delayedSet), redis.Z{Score: float64(now.Add(opts.Delay).UnixMilli()), Member: id})
			return nil
		}
		pipe.ZAdd(ctx, q.key(waitingSet), redis.Z{Score: score, Member: id})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("enqueueing job: %w", err)
	}

	q.logger.Debug().
		Str("queue", q.name).
		Str("job_id", id).
		Str("delivery_id", data.DeliveryID).
		Dur("delay", opts.Delay).
		Int("priority", opts.Priority).
		Msg("job enqueued")

	return id, nil
}

// Stats counts jobs per state
func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	var waiting, active, completed, failed, delayed *redis.IntCmd
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		waiting = pipe.ZCard(ctx, q.key(waitingSet))
		active = pipe.ZCard(ctx, q.key(activeSet))
		completed = pipe.ZCard(ctx, q.key(completedSet))
		failed = pipe.ZCard(ctx, q.key(failedSet))
		delayed = pipe.ZCard(ctx, q.key(delayedSet))
		return nil
	})
	if err != nil {
		return queue.Stats{}, fmt.Errorf("reading queue stats: %w", err)
	}

	return queue.Stats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
	}, nil
}

// JobState returns the state of a job (waiting, delayed, active, completed, failed)
func (q *Queue) JobState(ctx context.Context, id string) (string, error) {
	state, err := q.client.HGet(ctx, q.jobKey(id), "state").Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("job not found: %s", id)
	}
	if err != nil {
		return "", fmt.Errorf("getting job state: %w", err)
	}
	return state, nil
}

// ActiveJobs is the number of jobs this process is running right now
func (q *Queue) ActiveJobs() int64 {
	return q.active.Load()
}

/* Close stops accepting jobs, waits for in-flight jobs and closes the Redis connection
 * Consumers started with Process stop claiming as soon as Close is called
 */
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed.Store(true)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("waiting for in-flight jobs: %w", ctx.Err())
	}

	if err := q.client.Close(); err != nil {
		return errors.Join(waitErr, fmt.Errorf("closing Redis client: %w", err))
	}
	return waitErr
}

// begin registers an in-flight run unless the queue is closing
func (q *Queue) begin() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed.Load() {
		return false
	}
	q.inflight.Add(1)
	return true
}

func (q *Queue) key(set string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, q.name, set)
}

func (q *Queue) jobKeyPrefix() string {
	return fmt.Sprintf("%s:%s:job:", keyPrefix, q.name)
}

func (q *Queue) jobKey(id string) string {
	return q.jobKeyPrefix() + id
}

// waitingScore sorts higher priorities first, FIFO within a priority
func waitingScore(priority int, enqueuedAt time.Time) float64 {
	if priority < 0 {
		priority = 0
	}
	if priority > maxPriority {
		priority = maxPriority
	}
	return float64(maxPriority-priority)*priorityWeight + float64(enqueuedAt.UnixMilli())
}

// jobFromHash builds a job from its HGETALL fields
func jobFromHash(name string, fields map[string]string) (queue.Job, error) {
	var data queue.JobData
	if err := json.Unmarshal([]byte(fields["data"]), &data); err != nil {
		return queue.Job{}, fmt.Errorf("unmarshaling job data: %w", err)
	}

	return queue.Job{
		ID:           fields["id"],
		Queue:        name,
		Data:         data,
		Priority:     int(parseInt64(fields["priority"])),
		AttemptsMade: int(parseInt64(fields["attempts_made"])),
		MaxAttempts:  int(parseInt64(fields["max_attempts"])),
		Backoff:      time.Duration(parseInt64(fields["backoff_ms"])) * time.Millisecond,
		EnqueuedAt:   time.UnixMilli(parseInt64(fields["enqueued_at"])),
	}, nil
}

// Helper function to parse int64 from string
func parseInt64(s string) int64 {
	val, _ := strconv.ParseInt(s, 10, 64)
	return val
}
