package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-relay/webhook"
)

/* Deliveries and attempts are written in transactions
 * Every attempt insert bumps deliveries.attempt_count in the same transaction,
 * so attempt_count always equals the number of attempt rows
 */

const (
	insertDeliveryQuery = `INSERT INTO deliveries (id, event_id, route_id, channel_id, message_content, status, scheduled_for, next_attempt_at, max_attempts, attempt_count, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11)`
	insertAttemptQuery = `INSERT INTO attempts (id, delivery_id, attempt_number, trigger, status, started_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
	bumpAttemptCountQuery = `UPDATE deliveries SET attempt_count = attempt_count + 1 WHERE id = $1 RETURNING attempt_count`
	getDeliveryQuery      = `SELECT id, event_id, route_id, channel_id, message_content, status, scheduled_for, next_attempt_at,
		max_attempts, attempt_count, created_at, updated_at, completed_at
	FROM deliveries WHERE id = $1`
	listAttemptsQuery = `SELECT id, delivery_id, attempt_number, trigger, status, started_at, completed_at,
		response_status, response_body, error_message, duration_ms, created_at
	FROM attempts WHERE delivery_id = $1 ORDER BY attempt_number`
	lockDeliveryQuery    = `SELECT attempt_count FROM deliveries WHERE id = $1 FOR UPDATE`
	abandonAttemptsQuery = `UPDATE attempts SET status = 'FAILED', completed_at = $2, error_message = 'Attempt abandoned by worker'
	WHERE delivery_id = $1 AND status = 'IN_PROGRESS'`
	latestPendingAttemptQuery = `SELECT id, attempt_number, trigger, created_at FROM attempts
	WHERE delivery_id = $1 AND status = 'PENDING' ORDER BY attempt_number DESC LIMIT 1`
	startAttemptQuery  = `UPDATE attempts SET status = 'IN_PROGRESS', started_at = $2 WHERE id = $1`
	startDeliveryQuery = `UPDATE deliveries SET status = 'IN_PROGRESS', updated_at = $2 WHERE id = $1`
	finishAttemptQuery = `UPDATE attempts SET status = $1, completed_at = $2, response_status = $3, response_body = $4, error_message = $5, duration_ms = $6
	WHERE id = $7 AND status = 'IN_PROGRESS'`
	finishDeliveryQuery = `UPDATE deliveries SET status = $1, updated_at = $2, next_attempt_at = $3, completed_at = $4 WHERE id = $5`
)

// CreateDelivery stores a delivery with its first attempt and returns the stored delivery
func (r *Repository) CreateDelivery(ctx context.Context, d webhook.Delivery, attempt webhook.Attempt) (webhook.Delivery, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, insertDeliveryQuery,
			d.ID, d.EventID, d.RouteID, d.ChannelID, d.MessageContent, d.Status.String(),
			d.ScheduledFor, d.NextAttemptAt, d.MaxAttempts, d.CreatedAt, d.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting delivery: %w", err)
		}

		attempt.DeliveryID = d.ID
		count, err := insertAttempt(ctx, tx, attempt)
		if err != nil {
			return err
		}
		d.AttemptCount = count
		return nil
	})
	if err != nil {
		return webhook.Delivery{}, err
	}
	return d, nil
}

// BeginAttempt marks the attempt being executed now as IN_PROGRESS
func (r *Repository) BeginAttempt(ctx context.Context, deliveryID string, startedAt time.Time) (webhook.Attempt, error) {
	var attempt webhook.Attempt
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, lockDeliveryQuery, deliveryID).Scan(&count); err != nil {
			return notFound(err, "locking delivery")
		}

		// a worker that died mid attempt leaves it IN_PROGRESS; it will never finish
		if _, err := tx.ExecContext(ctx, abandonAttemptsQuery, deliveryID, startedAt); err != nil {
			return fmt.Errorf("closing abandoned attempts: %w", err)
		}

		var trigger string
		err := tx.QueryRowContext(ctx, latestPendingAttemptQuery, deliveryID).Scan(
			&attempt.ID, &attempt.AttemptNumber, &trigger, &attempt.CreatedAt,
		)
		switch {
		case err == nil:
			attempt.Trigger = webhook.NewAttemptTrigger(trigger)
			if _, err := tx.ExecContext(ctx, startAttemptQuery, attempt.ID, startedAt); err != nil {
				return fmt.Errorf("starting attempt: %w", err)
			}
		case errors.Is(err, sql.ErrNoRows):
			attempt = webhook.Attempt{
				ID:            uuid.New().String(),
				AttemptNumber: count + 1,
				Trigger:       webhook.TriggerAutomaticRetry,
				CreatedAt:     startedAt,
			}
			if count == 0 {
				attempt.Trigger = webhook.TriggerInitial
			}
			attempt.DeliveryID = deliveryID
			attempt.Status = webhook.AttemptInProgress
			attempt.StartedAt = &startedAt
			if _, err := insertAttempt(ctx, tx, attempt); err != nil {
				return err
			}
		default:
			return fmt.Errorf("selecting pending attempt: %w", err)
		}

		if _, err := tx.ExecContext(ctx, startDeliveryQuery, deliveryID, startedAt); err != nil {
			return fmt.Errorf("starting delivery: %w", err)
		}
		return nil
	})
	if err != nil {
		return webhook.Attempt{}, err
	}

	attempt.DeliveryID = deliveryID
	attempt.Status = webhook.AttemptInProgress
	attempt.StartedAt = &startedAt
	return attempt, nil
}

// FinishAttempt closes an IN_PROGRESS attempt and mirrors its outcome on the delivery
func (r *Repository) FinishAttempt(ctx context.Context, result webhook.AttemptResult) error {
	if !result.Status.IsFinal() {
		return fmt.Errorf("finishing attempt %s with non final status %s", result.AttemptID, result.Status)
	}

	deliveryStatus := result.Status.DeliveryStatus()
	var completedAt *time.Time
	if deliveryStatus.IsFinal() {
		completedAt = &result.CompletedAt
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, finishAttemptQuery,
			result.Status.String(), result.CompletedAt, result.ResponseStatus,
			result.ResponseBody, result.ErrorMessage, result.Duration.Milliseconds(), result.AttemptID,
		)
		if err != nil {
			return fmt.Errorf("finishing attempt: %w", err)
		}
		if err := affected(res); err != nil {
			return fmt.Errorf("finishing attempt %s: %w", result.AttemptID, err)
		}

		res, err = tx.ExecContext(ctx, finishDeliveryQuery,
			deliveryStatus.String(), result.CompletedAt, result.NextAttemptAt, completedAt, result.DeliveryID,
		)
		if err != nil {
			return fmt.Errorf("updating delivery: %w", err)
		}
		return affected(res)
	})
}

// GetDelivery loads a delivery by id
func (r *Repository) GetDelivery(ctx context.Context, id string) (webhook.Delivery, error) {
	var (
		d                          webhook.Delivery
		status                     string
		nextAttemptAt, completedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, getDeliveryQuery, id).Scan(
		&d.ID, &d.EventID, &d.RouteID, &d.ChannelID, &d.MessageContent, &status, &d.ScheduledFor, &nextAttemptAt,
		&d.MaxAttempts, &d.AttemptCount, &d.CreatedAt, &d.UpdatedAt, &completedAt,
	)
	if err != nil {
		return webhook.Delivery{}, notFound(err, "selecting delivery")
	}
	d.Status = webhook.NewDeliveryStatus(status)
	d.NextAttemptAt = timePtr(nextAttemptAt)
	d.CompletedAt = timePtr(completedAt)
	return d, nil
}

// ListAttempts returns the attempts of a delivery in execution order
func (r *Repository) ListAttempts(ctx context.Context, deliveryID string) ([]webhook.Attempt, error) {
	rows, err := r.DB.QueryContext(ctx, listAttemptsQuery, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("selecting attempts: %w", err)
	}
	defer rows.Close()

	var attempts []webhook.Attempt
	for rows.Next() {
		var (
			a                      webhook.Attempt
			trigger, status        string
			startedAt, completedAt sql.NullTime
			responseStatus         sql.NullInt64
			durationMs             sql.NullInt64
		)
		err := rows.Scan(
			&a.ID, &a.DeliveryID, &a.AttemptNumber, &trigger, &status, &startedAt, &completedAt,
			&responseStatus, &a.ResponseBody, &a.ErrorMessage, &durationMs, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		a.Trigger = webhook.NewAttemptTrigger(trigger)
		a.Status = webhook.NewAttemptStatus(status)
		a.StartedAt = timePtr(startedAt)
		a.CompletedAt = timePtr(completedAt)
		if responseStatus.Valid {
			code := int(responseStatus.Int64)
			a.ResponseStatus = &code
		}
		if durationMs.Valid {
			a.DurationMs = &durationMs.Int64
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attempts: %w", err)
	}
	return attempts, nil
}

// insertAttempt stores an attempt and returns the delivery's new attempt count
func insertAttempt(ctx context.Context, tx *sql.Tx, a webhook.Attempt) (int, error) {
	_, err := tx.ExecContext(ctx, insertAttemptQuery,
		a.ID, a.DeliveryID, a.AttemptNumber, a.Trigger.String(), a.Status.String(), a.StartedAt, a.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting attempt: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, bumpAttemptCountQuery, a.DeliveryID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting attempts: %w", err)
	}
	return count, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
