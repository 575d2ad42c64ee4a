package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-relay/queue"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	statusIdle       = "idle"
	statusProcessing = "processing"

	heartbeatInterval = 20 * time.Second
	commandTimeout    = 5 * time.Second
)

// ErrLeaseLost is the cause of a handler context cancelled because the job may run elsewhere
var ErrLeaseLost = errors.New("job lease lost")

/* Process runs concurrency consumers against the queue and blocks until ctx is cancelled or the queue closes
 * A scheduler promotes due delayed jobs and returns jobs whose lease expired to waiting.
 * Jobs already running when ctx is cancelled finish on a context detached from it;
 * their context is only cancelled when the job lease is lost.
 */
func (q *Queue) Process(ctx context.Context, handler queue.Handler, concurrency int) error {
	if concurrency <= 0 {
		concurrency = queue.DefaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q.schedule(gctx)
		return nil
	})
	for i := 1; i <= concurrency; i++ {
		workerID := fmt.Sprintf("%s-%d", q.consumerID, i)
		g.Go(func() error {
			q.consume(gctx, workerID, handler)
			return nil
		})
	}

	q.logger.Info().
		Str("queue", q.name).
		Str("consumer_id", q.consumerID).
		Int("concurrency", concurrency).
		Msg("processing jobs")

	return g.Wait()
}

func (q *Queue) consume(ctx context.Context, workerID string, handler queue.Handler) {
	logger := q.logger.With().Str("queue", q.name).Str("worker_id", workerID).Logger()

	q.beat(ctx, logger, workerID, statusIdle)
	defer q.removeHeartbeat(ctx, logger, workerID)
	lastBeat := q.now()

	for {
		if ctx.Err() != nil || q.closed.Load() {
			return
		}
		if q.now().Sub(lastBeat) >= heartbeatInterval {
			q.beat(ctx, logger, workerID, statusIdle)
			lastBeat = q.now()
		}

		if !q.begin() {
			return
		}
		job, token, err := q.claim(ctx)
		if err != nil || job == nil {
			q.inflight.Done()
			if err != nil {
				logger.Error().Err(err).Msg("claiming job")
			}
			if !sleep(ctx, q.pollInterval) {
				return
			}
			continue
		}

		q.beat(ctx, logger, workerID, statusProcessing)
		q.run(context.WithoutCancel(ctx), logger, handler, *job, token)
		q.inflight.Done()
		q.beat(ctx, logger, workerID, statusIdle)
		lastBeat = q.now()
	}
}

// claim leases the next waiting job; a nil job means the queue is empty
func (q *Queue) claim(ctx context.Context) (*queue.Job, string, error) {
	// a cancelled claim could leave a leased job behind, so it runs detached
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commandTimeout)
	defer cancel()

	now := q.now()
	token := uuid.NewString()
	res, err := claimScript.Run(ctx, q.client,
		[]string{q.key(waitingSet), q.key(activeSet)},
		now.UnixMilli(), now.Add(q.leaseDuration).UnixMilli(), token, q.jobKeyPrefix(),
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("claiming job: %w", err)
	}

	id, fields, err := parseClaim(res)
	if err != nil {
		return nil, "", err
	}
	job, err := jobFromHash(q.name, fields)
	if err != nil {
		// a job that cannot be decoded will never succeed
		failJob := queue.Job{ID: id, AttemptsMade: int(parseInt64(fields["attempts_made"]))}
		if finishErr := q.finish(ctx, failJob, token, stateFailed, err.Error()); finishErr != nil {
			return nil, "", errors.Join(err, finishErr)
		}
		return nil, "", fmt.Errorf("dead-lettered undecodable job %s: %w", id, err)
	}
	return &job, token, nil
}

func parseClaim(res interface{}) (string, map[string]string, error) {
	parts, ok := res.([]interface{})
	if !ok || len(parts) != 2 {
		return "", nil, fmt.Errorf("unexpected claim reply: %v", res)
	}
	id, _ := parts[0].(string)
	pairs, _ := parts[1].([]interface{})

	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		fields[k] = v
	}
	return id, fields, nil
}

func (q *Queue) run(ctx context.Context, logger zerolog.Logger, handler queue.Handler, job queue.Job, token string) {
	q.active.Add(1)
	defer q.active.Add(-1)

	logger = logger.With().
		Str("job_id", job.ID).
		Str("delivery_id", job.Data.DeliveryID).
		Int("attempt", job.Attempt()).
		Int("max_attempts", job.MaxAttempts).
		Logger()

	// the handler stops once another consumer may own the job
	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopLease := q.keepLease(ctx, logger, job.ID, token, cancel)
	result := safeHandle(jobCtx, handler, job)
	stopLease()

	var err error
	switch result.Outcome() {
	case queue.Succeeded:
		err = q.finish(ctx, job, token, stateCompleted, "")
	case queue.Fatal:
		logger.Warn().Str("reason", result.Reason()).Msg("job failed permanently")
		err = q.finish(ctx, job, token, stateFailed, result.Reason())
	default:
		if job.WillRetry() {
			logger.Warn().Str("reason", result.Reason()).Dur("retry_in", job.NextRetryIn()).Msg("job failed, retrying")
			err = q.retry(ctx, job, token, result.Reason())
		} else {
			logger.Warn().Str("reason", result.Reason()).Msg("job failed, attempts exhausted")
			err = q.finish(ctx, job, token, stateFailed, result.Reason())
		}
	}
	if err != nil {
		logger.Error().Err(err).Msg("recording job outcome")
	}
}

func safeHandle(ctx context.Context, handler queue.Handler, job queue.Job) (result queue.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = queue.Retry(fmt.Errorf("handler panicked: %v", r))
		}
	}()
	return handler.Handle(ctx, job)
}

/* keepLease extends the job lease while the handler runs
 * lost is called with ErrLeaseLost when the token no longer owns the job, or when extensions
 * kept failing until the last granted deadline passed and the scheduler may requeue the job
 */
func (q *Queue) keepLease(ctx context.Context, logger zerolog.Logger, id, token string, lost context.CancelCauseFunc) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(q.leaseDuration / 3)
		defer ticker.Stop()
		heldUntil := q.now().Add(q.leaseDuration)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := q.now().Add(q.leaseDuration)
				held, err := extendScript.Run(ctx, q.client, []string{q.key(activeSet)}, id, token, deadline.UnixMilli(), q.jobKeyPrefix()).Int()
				if err != nil {
					logger.Error().Err(err).Msg("extending job lease")
					if q.now().After(heldUntil) {
						logger.Warn().Msg("job lease expired, cancelling handler")
						lost(ErrLeaseLost)
						return
					}
					continue
				}
				if held == 0 {
					logger.Warn().Msg("job lease lost, cancelling handler")
					lost(ErrLeaseLost)
					return
				}
				heldUntil = deadline
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (q *Queue) retry(ctx context.Context, job queue.Job, token, reason string) error {
	readyAt := q.now().Add(job.NextRetryIn()).UnixMilli()
	held, err := retryScript.Run(ctx, q.client,
		[]string{q.key(activeSet), q.key(delayedSet)},
		job.ID, token, readyAt, q.jobKeyPrefix(), job.Attempt(), reason,
	).Int()
	if err != nil {
		return fmt.Errorf("scheduling retry: %w", err)
	}
	if held == 0 {
		return fmt.Errorf("job %s: lease lost before retry", job.ID)
	}
	return nil
}

func (q *Queue) finish(ctx context.Context, job queue.Job, token, state, reason string) error {
	set, count, age := completedSet, q.retention.CompletedCount, q.retention.CompletedAge
	if state == stateFailed {
		set, count, age = failedSet, q.retention.FailedCount, q.retention.FailedAge
	}

	now := q.now()
	ttl := int64(age.Seconds())
	if ttl < 1 {
		ttl = 1
	}
	held, err := finishScript.Run(ctx, q.client,
		[]string{q.key(activeSet), q.key(set)},
		job.ID, token, now.UnixMilli(), q.jobKeyPrefix(), state, job.Attempt(), reason,
		strconv.FormatInt(now.Add(-age).UnixMilli(), 10), count, ttl,
	).Int()
	if err != nil {
		return fmt.Errorf("moving job to %s: %w", set, err)
	}
	if held == 0 {
		return fmt.Errorf("job %s: lease lost before %s", job.ID, state)
	}
	return nil
}

func (q *Queue) schedule(ctx context.Context) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := q.promote(ctx); err != nil && ctx.Err() == nil {
			q.logger.Error().Err(err).Str("queue", q.name).Msg("promoting jobs")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// promote moves due delayed jobs and stalled active jobs back to waiting
func (q *Queue) promote(ctx context.Context) (int64, error) {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)

	delayed, err := promoteScript.Run(ctx, q.client, []string{q.key(delayedSet), q.key(waitingSet)}, now, promoteBatch, q.jobKeyPrefix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("promoting delayed jobs: %w", err)
	}
	stalled, err := promoteScript.Run(ctx, q.client, []string{q.key(activeSet), q.key(waitingSet)}, now, promoteBatch, q.jobKeyPrefix()).Int64()
	if err != nil {
		return delayed, fmt.Errorf("requeueing stalled jobs: %w", err)
	}
	if stalled > 0 {
		q.logger.Warn().Str("queue", q.name).Int64("jobs", stalled).Msg("requeued stalled jobs")
	}
	return delayed + stalled, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
