//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
Test helpers for PostgreSQL with testcontainers

Each call starts a real postgres container, creates the relay schema and
returns a repository pointing at it. Reuse containers across runs with
TESTCONTAINERS_REUSE_ENABLE=true.
*/

const (
	defaultDatabase = "relay"
	defaultUser     = "relay"
	defaultPassword = "relay"
)

// PostgresContainer wraps the container and its connection
type PostgresContainer struct {
	Container testcontainers.Container
	DB        *sql.DB
	ConnStr   string
}

// SetupPostgresContainer starts a PostgreSQL container and terminates it when the test ends
func SetupPostgresContainer(t *testing.T, ctx context.Context) *PostgresContainer {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(defaultDatabase),
		postgres.WithUsername(defaultUser),
		postgres.WithPassword(defaultPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))

	t.Cleanup(func() {
		_ = db.Close()
		_ = pgContainer.Terminate(context.Background())
	})

	return &PostgresContainer{Container: pgContainer, DB: db, ConnStr: connStr}
}

// CreateTestRepository creates a repository with the schema in place
func CreateTestRepository(t *testing.T, ctx context.Context, connStr string) *Repository {
	t.Helper()

	repo, err := NewRepository(connStr)
	require.NoError(t, err)
	require.NoError(t, repo.CreateSchema(ctx))
	t.Cleanup(func() { _ = repo.Close(ctx) })

	return repo
}

// Fixture holds the ids of the management rows seeded for a test
type Fixture struct {
	OrganizationID string
	ProviderID     string
	EndpointID     string
	ChannelID      string
	RouteID        string
}

// SeedFixture inserts an organization, endpoint, channel and route the way the management API would
func SeedFixture(t *testing.T, ctx context.Context, repo *Repository, providerID string) Fixture {
	t.Helper()

	f := Fixture{
		OrganizationID: "org-1",
		ProviderID:     providerID,
		EndpointID:     "ep-1",
		ChannelID:      "ch-1",
		RouteID:        "route-1",
	}
	statements := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO organizations (id, slug, name) VALUES ($1, 'acme', 'Acme')`, []any{f.OrganizationID}},
		{`INSERT INTO endpoints (id, organization_id, provider_id, slug, name, secret, allowed_events, status)
			VALUES ($1, $2, $3, 'github', 'GitHub', 's3cret', '{push,pull_request}', 'ACTIVE')`,
			[]any{f.EndpointID, f.OrganizationID, f.ProviderID}},
		{`INSERT INTO endpoints (id, organization_id, provider_id, slug, status)
			VALUES ('ep-paused', $1, $2, 'paused', 'PAUSED')`, []any{f.OrganizationID, f.ProviderID}},
		{`INSERT INTO channels (id, organization_id, name, type, credentials, config, status)
			VALUES ($1, $2, 'alerts', 'TELEGRAM', '{"botToken":"123:abc"}', '{"chatId":"-100"}', 'ACTIVE')`,
			[]any{f.ChannelID, f.OrganizationID}},
		{`INSERT INTO templates (id, organization_id, name, body) VALUES ('tpl-1', $1, 'push', 'Push to {{payload.ref}}')`,
			[]any{f.OrganizationID}},
		{`INSERT INTO routes (id, organization_id, endpoint_id, channel_id, name, event_type, template_id, priority)
			VALUES ($1, $2, $3, $4, 'push', 'push', 'tpl-1', 50)`,
			[]any{f.RouteID, f.OrganizationID, f.EndpointID, f.ChannelID}},
		{`INSERT INTO routes (id, organization_id, endpoint_id, channel_id, name, event_type, priority)
			VALUES ('route-all', $1, $2, $3, 'everything', '*', 10)`,
			[]any{f.OrganizationID, f.EndpointID, f.ChannelID}},
		{`INSERT INTO routes (id, organization_id, endpoint_id, channel_id, name, event_type, status)
			VALUES ('route-off', $1, $2, $3, 'disabled', 'push', 'DISABLED')`,
			[]any{f.OrganizationID, f.EndpointID, f.ChannelID}},
	}
	for _, s := range statements {
		_, err := repo.DB.ExecContext(ctx, s.query, s.args...)
		require.NoError(t, err)
	}
	return f
}

// AssertAttemptCount checks attempt_count against the attempt rows of a delivery
func AssertAttemptCount(t *testing.T, ctx context.Context, db *sql.DB, deliveryID string, expected int) {
	t.Helper()

	var count, rows int
	err := db.QueryRowContext(ctx, "SELECT attempt_count FROM deliveries WHERE id = $1", deliveryID).Scan(&count)
	require.NoError(t, err)
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attempts WHERE delivery_id = $1", deliveryID).Scan(&rows)
	require.NoError(t, err)
	require.Equal(t, expected, count)
	require.Equal(t, count, rows)
}
