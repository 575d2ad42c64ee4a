//go:build !integration

package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/marcelsud/webhook-relay/broadcast"
	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/marcelsud/webhook-relay/webhook/payload"
	"github.com/marcelsud/webhook-relay/webhook/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
Unit tests for the PostgreSQL repository

sqlmock stands in for the database, so these tests check the SQL each
operation sends and how rows are decoded, not real database behavior.

Run with: go test ./webhook/postgres/...
(without -tags=integration)
*/

var endpointColumns = []string{
	"id", "organization_id", "provider_id", "slug", "name", "secret", "allowed_events", "status",
	"id", "slug", "name",
	"id", "name", "signature_header", "signature_algorithm", "event_types",
}

var routeColumns = []string{
	"id", "organization_id", "endpoint_id", "channel_id", "name", "event_type", "filter_expression", "message_content",
	"template_id", "delay_seconds", "retry_strategy", "retry_count", "retry_interval_ms", "priority", "status",
}

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestRepository_FindActiveEndpoint_Unit(t *testing.T) {
	ctx := context.Background()

	t.Run("loads endpoint with provider and organization", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		rows := sqlmock.NewRows(endpointColumns).AddRow(
			"ep-1", "org-1", "prov-1", "github", "GitHub", "s3cret", "{push,pull_request}", "ACTIVE",
			"org-1", "acme", "Acme",
			"prov-1", "github", "X-Hub-Signature-256", "HMAC_SHA256", "{push,pull_request,issues}",
		)
		mock.ExpectQuery(regexp.QuoteMeta(findActiveEndpointQuery)).
			WithArgs("acme", "github").
			WillReturnRows(rows)

		e, err := repo.FindActiveEndpoint(ctx, "acme", "github")

		require.NoError(t, err)
		assert.Equal(t, "ep-1", e.ID)
		assert.Equal(t, webhook.Active, e.Status)
		assert.Equal(t, []string{"push", "pull_request"}, e.AllowedEvents)
		assert.Equal(t, "acme", e.Organization.Slug)
		assert.Equal(t, signature.HMACSHA256, e.Provider.SignatureAlgorithm)
		assert.Equal(t, "X-Hub-Signature-256", e.Provider.SignatureHeader)
		assert.Len(t, e.Provider.EventTypes, 3)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown endpoint returns ErrNotFound", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(findActiveEndpointQuery)).
			WithArgs("acme", "missing").
			WillReturnRows(sqlmock.NewRows(endpointColumns))

		_, err := repo.FindActiveEndpoint(ctx, "acme", "missing")

		assert.ErrorIs(t, err, webhook.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database errors are wrapped", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(findActiveEndpointQuery)).
			WithArgs("acme", "github").
			WillReturnError(errors.New("connection reset"))

		_, err := repo.FindActiveEndpoint(ctx, "acme", "github")

		require.Error(t, err)
		assert.NotErrorIs(t, err, webhook.ErrNotFound)
		assert.Contains(t, err.Error(), "selecting endpoint")
	})
}

func TestRepository_Events_Unit(t *testing.T) {
	ctx := context.Background()
	receivedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create event stores encoded headers and tri-state signature", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		body, err := payload.Parse([]byte(`{"ref":"main"}`))
		require.NoError(t, err)

		mock.ExpectExec(regexp.QuoteMeta(insertEventQuery)).
			WithArgs("evt-1", "ep-1", "push", []byte(`{"x-github-event":"push"}`), sqlmock.AnyArg(),
				"10.0.0.1", "GitHub-Hookshot", nil, "RECEIVED", receivedAt, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = repo.CreateEvent(ctx, webhook.Event{
			ID:         "evt-1",
			EndpointID: "ep-1",
			EventType:  "push",
			Headers:    map[string]string{"x-github-event": "push"},
			Body:       body,
			SourceIP:   "10.0.0.1",
			UserAgent:  "GitHub-Hookshot",
			Status:     webhook.EventReceived,
			ReceivedAt: receivedAt,
		})

		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get event decodes body and nullable columns", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		rows := sqlmock.NewRows([]string{
			"id", "endpoint_id", "event_type", "headers", "body", "source_ip", "user_agent",
			"signature_valid", "status", "received_at", "processed_at",
		}).AddRow("evt-1", "ep-1", "push", []byte(`{"x-github-event":"push"}`), []byte(`{"ref":"main","commits":[1,2]}`),
			"10.0.0.1", "curl", true, "PROCESSED", receivedAt, receivedAt.Add(time.Second))
		mock.ExpectQuery(regexp.QuoteMeta(getEventQuery)).WithArgs("evt-1").WillReturnRows(rows)

		e, err := repo.GetEvent(ctx, "evt-1")

		require.NoError(t, err)
		assert.Equal(t, webhook.EventProcessed, e.Status)
		assert.Equal(t, "push", e.Headers["x-github-event"])
		assert.Equal(t, "main", e.Body.StringField("ref"))
		require.NotNil(t, e.SignatureValid)
		assert.True(t, *e.SignatureValid)
		require.NotNil(t, e.ProcessedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update status of unknown event returns ErrNotFound", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec(regexp.QuoteMeta(updateEventStatusQuery)).
			WithArgs("PROCESSING", nil, "evt-404").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateEventStatus(ctx, "evt-404", webhook.EventProcessing, nil)

		assert.ErrorIs(t, err, webhook.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_Routes_Unit(t *testing.T) {
	ctx := context.Background()

	t.Run("matching routes are decoded in query order", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		rows := sqlmock.NewRows(routeColumns).
			AddRow("r-1", "org-1", "ep-1", "ch-1", "urgent", "push", "", "", "tpl-1", 0, "EXPONENTIAL", 3, 1000, 90, "ACTIVE").
			AddRow("r-2", "org-1", "ep-1", "ch-2", "all", "*", "$.body.ref == 'main'", "hi", "", 60, "NONE", 0, 0, 0, "ACTIVE")
		mock.ExpectQuery(regexp.QuoteMeta(findMatchingRoutesQuery)).
			WithArgs("ep-1", "push").
			WillReturnRows(rows)

		routes, err := repo.FindMatchingRoutes(ctx, "ep-1", "push")

		require.NoError(t, err)
		require.Len(t, routes, 2)
		assert.Equal(t, "tpl-1", routes[0].TemplateID)
		assert.Equal(t, 90, routes[0].Priority)
		assert.Equal(t, webhook.RetryExponential, routes[0].RetryStrategy)
		assert.Equal(t, 60*time.Second, routes[1].Delay())
		assert.Equal(t, "$.body.ref == 'main'", routes[1].FilterExpression)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no matching routes is not an error", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(findMatchingRoutesQuery)).
			WithArgs("ep-1", "push").
			WillReturnRows(sqlmock.NewRows(routeColumns))

		routes, err := repo.FindMatchingRoutes(ctx, "ep-1", "push")

		require.NoError(t, err)
		assert.Empty(t, routes)
	})
}

func TestRepository_GetChannel_Unit(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepository(t)

	rows := sqlmock.NewRows([]string{"id", "organization_id", "name", "type", "credentials", "config", "status", "max_delivery_rate"}).
		AddRow("ch-1", "org-1", "alerts", "TELEGRAM", []byte(`{"botToken":"123:abc"}`), []byte(`{"chatId":"-100"}`), "PAUSED", nil)
	mock.ExpectQuery(regexp.QuoteMeta(getChannelQuery)).WithArgs("ch-1").WillReturnRows(rows)

	c, err := repo.GetChannel(ctx, "ch-1")

	require.NoError(t, err)
	assert.Equal(t, broadcast.Telegram, c.Type)
	assert.Equal(t, webhook.Paused, c.Status)
	assert.Equal(t, "123:abc", c.Credentials.StringField("botToken"))
	assert.Equal(t, "-100", c.Config.StringField("chatId"))
	assert.Nil(t, c.MaxDeliveryRate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateDelivery_Unit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	delivery := webhook.Delivery{
		ID:            "del-1",
		EventID:       "evt-1",
		RouteID:       "r-1",
		ChannelID:     "ch-1",
		Status:        webhook.DeliveryPending,
		ScheduledFor:  now,
		NextAttemptAt: &now,
		MaxAttempts:   3,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	attempt := webhook.Attempt{
		ID:            "att-1",
		AttemptNumber: 1,
		Trigger:       webhook.TriggerInitial,
		Status:        webhook.AttemptPending,
		CreatedAt:     now,
	}

	t.Run("delivery and first attempt commit together", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(insertDeliveryQuery)).
			WithArgs("del-1", "evt-1", "r-1", "ch-1", "", "PENDING", now, now, 3, now, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(insertAttemptQuery)).
			WithArgs("att-1", "del-1", 1, "INITIAL", "PENDING", nil, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(bumpAttemptCountQuery)).
			WithArgs("del-1").
			WillReturnRows(sqlmock.NewRows([]string{"attempt_count"}).AddRow(1))
		mock.ExpectCommit()

		stored, err := repo.CreateDelivery(ctx, delivery, attempt)

		require.NoError(t, err)
		assert.Equal(t, 1, stored.AttemptCount)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed attempt insert rolls back the delivery", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(insertDeliveryQuery)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(insertAttemptQuery)).WillReturnError(errors.New("duplicate key"))
		mock.ExpectRollback()

		_, err := repo.CreateDelivery(ctx, delivery, attempt)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "inserting attempt")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_BeginAttempt_Unit(t *testing.T) {
	ctx := context.Background()
	startedAt := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	createdAt := startedAt.Add(-5 * time.Second)

	t.Run("reuses the pending attempt created at ingestion", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockDeliveryQuery)).WithArgs("del-1").
			WillReturnRows(sqlmock.NewRows([]string{"attempt_count"}).AddRow(1))
		mock.ExpectExec(regexp.QuoteMeta(abandonAttemptsQuery)).WithArgs("del-1", startedAt).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(latestPendingAttemptQuery)).WithArgs("del-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "attempt_number", "trigger", "created_at"}).
				AddRow("att-1", 1, "INITIAL", createdAt))
		mock.ExpectExec(regexp.QuoteMeta(startAttemptQuery)).WithArgs("att-1", startedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(startDeliveryQuery)).WithArgs("del-1", startedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		a, err := repo.BeginAttempt(ctx, "del-1", startedAt)

		require.NoError(t, err)
		assert.Equal(t, "att-1", a.ID)
		assert.Equal(t, 1, a.AttemptNumber)
		assert.Equal(t, webhook.TriggerInitial, a.Trigger)
		assert.Equal(t, webhook.AttemptInProgress, a.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retry appends attempt count plus one", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockDeliveryQuery)).WithArgs("del-1").
			WillReturnRows(sqlmock.NewRows([]string{"attempt_count"}).AddRow(2))
		mock.ExpectExec(regexp.QuoteMeta(abandonAttemptsQuery)).WithArgs("del-1", startedAt).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(latestPendingAttemptQuery)).WithArgs("del-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "attempt_number", "trigger", "created_at"}))
		mock.ExpectExec(regexp.QuoteMeta(insertAttemptQuery)).
			WithArgs(sqlmock.AnyArg(), "del-1", 3, "AUTOMATIC_RETRY", "IN_PROGRESS", startedAt, startedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(bumpAttemptCountQuery)).WithArgs("del-1").
			WillReturnRows(sqlmock.NewRows([]string{"attempt_count"}).AddRow(3))
		mock.ExpectExec(regexp.QuoteMeta(startDeliveryQuery)).WithArgs("del-1", startedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		a, err := repo.BeginAttempt(ctx, "del-1", startedAt)

		require.NoError(t, err)
		assert.NotEmpty(t, a.ID)
		assert.Equal(t, 3, a.AttemptNumber)
		assert.Equal(t, webhook.TriggerAutomaticRetry, a.Trigger)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown delivery returns ErrNotFound", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockDeliveryQuery)).WithArgs("del-404").
			WillReturnRows(sqlmock.NewRows([]string{"attempt_count"}))
		mock.ExpectRollback()

		_, err := repo.BeginAttempt(ctx, "del-404", startedAt)

		assert.ErrorIs(t, err, webhook.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_FinishAttempt_Unit(t *testing.T) {
	ctx := context.Background()
	completedAt := time.Date(2026, 3, 1, 12, 0, 6, 0, time.UTC)
	code := 200

	t.Run("success completes the delivery", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(finishAttemptQuery)).
			WithArgs("SUCCESSFUL", completedAt, int64(200), "ok", "", int64(1500), "att-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(finishDeliveryQuery)).
			WithArgs("SUCCESSFUL", completedAt, nil, completedAt, "del-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.FinishAttempt(ctx, webhook.AttemptResult{
			AttemptID:      "att-1",
			DeliveryID:     "del-1",
			Status:         webhook.AttemptSuccessful,
			ResponseStatus: &code,
			ResponseBody:   "ok",
			CompletedAt:    completedAt,
			Duration:       1500 * time.Millisecond,
		})

		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure keeps the delivery open for the next attempt", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		next := completedAt.Add(2 * time.Second)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(finishAttemptQuery)).
			WithArgs("TIMEOUT", completedAt, nil, "", "context deadline exceeded", int64(15000), "att-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(finishDeliveryQuery)).
			WithArgs("FAILED", completedAt, next, nil, "del-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.FinishAttempt(ctx, webhook.AttemptResult{
			AttemptID:     "att-1",
			DeliveryID:    "del-1",
			Status:        webhook.AttemptTimeout,
			ErrorMessage:  "context deadline exceeded",
			CompletedAt:   completedAt,
			Duration:      15 * time.Second,
			NextAttemptAt: &next,
		})

		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("final attempts are never updated again", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(finishAttemptQuery)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.FinishAttempt(ctx, webhook.AttemptResult{
			AttemptID:   "att-1",
			DeliveryID:  "del-1",
			Status:      webhook.AttemptFailed,
			CompletedAt: completedAt,
		})

		assert.ErrorIs(t, err, webhook.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non final status is rejected before touching the database", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		err := repo.FinishAttempt(ctx, webhook.AttemptResult{AttemptID: "att-1", Status: webhook.AttemptInProgress})

		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
