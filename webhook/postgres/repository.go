package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // PostgreSQL driver
	"github.com/marcelsud/webhook-relay/broadcast"
	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/marcelsud/webhook-relay/webhook/payload"
	"github.com/marcelsud/webhook-relay/webhook/signature"
)

/*
PostgreSQL Repository Implementation

Organizations, endpoints, channels, routes and templates are owned by the
management API and only read here. Events, deliveries and attempts are
written by the ingestion service and the delivery worker.
*/

//go:embed schema.sql
var schema string

type Repository struct {
	DB *sql.DB
}

// NewRepository creates a PostgreSQL repository with the default pool (25, 5, 5 min)
func NewRepository(connectionString string) (*Repository, error) {
	return NewRepositoryWithPoolConfig(connectionString, 25, 5, 5*time.Minute)
}

// NewRepositoryWithPoolConfig creates a PostgreSQL repository with a custom pool
// maxOpenConns: maximum simultaneous connections (0 = unlimited)
// maxIdleConns: idle connections kept in the pool
// maxLife: how long a connection may be reused (0 = forever)
func NewRepositoryWithPoolConfig(connectionString string, maxOpenConns, maxIdleConns int, maxLife time.Duration) (*Repository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if maxLife > 0 {
		db.SetConnMaxLifetime(maxLife)
	}

	return New(db), nil
}

// New wraps an existing connection pool
func New(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

type scanner interface {
	Scan(dest ...any) error
}

const selectEndpoint = `SELECT e.id, e.organization_id, e.provider_id, e.slug, e.name, e.secret, e.allowed_events, e.status,
		o.id, o.slug, o.name,
		p.id, p.name, p.signature_header, p.signature_algorithm, p.event_types
	FROM endpoints e
	JOIN organizations o ON o.id = e.organization_id
	JOIN providers p ON p.id = e.provider_id`

const (
	findActiveEndpointQuery = selectEndpoint + ` WHERE o.slug = $1 AND e.slug = $2 AND e.status = 'ACTIVE'`
	getEndpointQuery        = selectEndpoint + ` WHERE e.id = $1`
)

// FindActiveEndpoint looks up an ACTIVE endpoint by organization and endpoint slug
func (r *Repository) FindActiveEndpoint(ctx context.Context, orgSlug, endpointSlug string) (webhook.Endpoint, error) {
	e, err := scanEndpoint(r.DB.QueryRowContext(ctx, findActiveEndpointQuery, orgSlug, endpointSlug))
	if err != nil {
		return webhook.Endpoint{}, notFound(err, "selecting endpoint")
	}
	return e, nil
}

// GetEndpoint loads an endpoint by id regardless of its status
func (r *Repository) GetEndpoint(ctx context.Context, id string) (webhook.Endpoint, error) {
	e, err := scanEndpoint(r.DB.QueryRowContext(ctx, getEndpointQuery, id))
	if err != nil {
		return webhook.Endpoint{}, notFound(err, "selecting endpoint")
	}
	return e, nil
}

func scanEndpoint(row scanner) (webhook.Endpoint, error) {
	var (
		e                  webhook.Endpoint
		status, algorithm  string
		allowed, eventType []string
	)
	err := row.Scan(
		&e.ID, &e.OrganizationID, &e.ProviderID, &e.Slug, &e.Name, &e.Secret, pq.Array(&allowed), &status,
		&e.Organization.ID, &e.Organization.Slug, &e.Organization.Name,
		&e.Provider.ID, &e.Provider.Name, &e.Provider.SignatureHeader, &algorithm, pq.Array(&eventType),
	)
	if err != nil {
		return webhook.Endpoint{}, err
	}
	e.AllowedEvents = allowed
	e.Status = webhook.NewEntityStatus(status)
	e.Provider.SignatureAlgorithm = signature.NewAlgorithm(algorithm)
	e.Provider.EventTypes = eventType
	return e, nil
}

const upsertProviderQuery = `INSERT INTO providers (id, name, signature_header, signature_algorithm, event_types)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (name) DO UPDATE SET
		signature_header = EXCLUDED.signature_header,
		signature_algorithm = EXCLUDED.signature_algorithm,
		event_types = EXCLUDED.event_types
	RETURNING id`

// UpsertProvider seeds a provider by name and returns its id
func (r *Repository) UpsertProvider(ctx context.Context, p webhook.Provider) (string, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	eventTypes := p.EventTypes
	if eventTypes == nil {
		eventTypes = []string{}
	}

	var id string
	err := r.DB.QueryRowContext(ctx, upsertProviderQuery,
		p.ID, p.Name, p.SignatureHeader, p.SignatureAlgorithm.String(), pq.Array(eventTypes),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upserting provider %s: %w", p.Name, err)
	}
	return id, nil
}

const (
	insertEventQuery = `INSERT INTO events (id, endpoint_id, event_type, headers, body, source_ip, user_agent, signature_valid, status, received_at, processed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	getEventQuery = `SELECT id, endpoint_id, event_type, headers, body, source_ip, user_agent, signature_valid, status, received_at, processed_at
	FROM events WHERE id = $1`
	updateEventStatusQuery = `UPDATE events SET status = $1, processed_at = COALESCE($2, processed_at) WHERE id = $3`
)

// CreateEvent stores the audit record of an inbound call
func (r *Repository) CreateEvent(ctx context.Context, event webhook.Event) error {
	headers, err := json.Marshal(event.Headers)
	if err != nil {
		return fmt.Errorf("encoding headers: %w", err)
	}
	body, err := event.Body.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding body: %w", err)
	}

	_, err = r.DB.ExecContext(ctx, insertEventQuery,
		event.ID, event.EndpointID, event.EventType, headers, body,
		event.SourceIP, event.UserAgent, event.SignatureValid,
		event.Status.String(), event.ReceivedAt, event.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetEvent loads an event with its decoded headers and body
func (r *Repository) GetEvent(ctx context.Context, id string) (webhook.Event, error) {
	var (
		e              webhook.Event
		headers, body  []byte
		status         string
		signatureValid sql.NullBool
		processedAt    sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, getEventQuery, id).Scan(
		&e.ID, &e.EndpointID, &e.EventType, &headers, &body,
		&e.SourceIP, &e.UserAgent, &signatureValid, &status, &e.ReceivedAt, &processedAt,
	)
	if err != nil {
		return webhook.Event{}, notFound(err, "selecting event")
	}

	if err := json.Unmarshal(headers, &e.Headers); err != nil {
		return webhook.Event{}, fmt.Errorf("decoding headers of event %s: %w", id, err)
	}
	if e.Body, err = payload.Parse(body); err != nil {
		return webhook.Event{}, fmt.Errorf("decoding body of event %s: %w", id, err)
	}
	e.Status = webhook.NewEventStatus(status)
	if signatureValid.Valid {
		e.SignatureValid = &signatureValid.Bool
	}
	if processedAt.Valid {
		e.ProcessedAt = &processedAt.Time
	}
	return e, nil
}

// UpdateEventStatus moves an event to status; processedAt is kept when nil
func (r *Repository) UpdateEventStatus(ctx context.Context, id string, status webhook.EventStatus, processedAt *time.Time) error {
	result, err := r.DB.ExecContext(ctx, updateEventStatusQuery, status.String(), processedAt, id)
	if err != nil {
		return fmt.Errorf("updating event status: %w", err)
	}
	return affected(result)
}

const selectRoute = `SELECT id, organization_id, endpoint_id, channel_id, name, event_type, filter_expression, message_content,
		COALESCE(template_id, ''), delay_seconds, retry_strategy, retry_count, retry_interval_ms, priority, status
	FROM routes`

const (
	findMatchingRoutesQuery = selectRoute + ` WHERE endpoint_id = $1 AND status = 'ACTIVE'
		AND (event_type = $2 OR event_type = '*' OR event_type = '')
	ORDER BY priority DESC, id`
	getRouteQuery = selectRoute + ` WHERE id = $1`
)

// FindMatchingRoutes returns the active routes of an endpoint for an event type, most urgent first
func (r *Repository) FindMatchingRoutes(ctx context.Context, endpointID, eventType string) ([]webhook.Route, error) {
	rows, err := r.DB.QueryContext(ctx, findMatchingRoutesQuery, endpointID, eventType)
	if err != nil {
		return nil, fmt.Errorf("selecting routes: %w", err)
	}
	defer rows.Close()

	var routes []webhook.Route
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating routes: %w", err)
	}
	return routes, nil
}

// GetRoute loads a route by id regardless of its status
func (r *Repository) GetRoute(ctx context.Context, id string) (webhook.Route, error) {
	route, err := scanRoute(r.DB.QueryRowContext(ctx, getRouteQuery, id))
	if err != nil {
		return webhook.Route{}, notFound(err, "selecting route")
	}
	return route, nil
}

func scanRoute(row scanner) (webhook.Route, error) {
	var (
		route                 webhook.Route
		retryStrategy, status string
	)
	err := row.Scan(
		&route.ID, &route.OrganizationID, &route.EndpointID, &route.ChannelID, &route.Name,
		&route.EventType, &route.FilterExpression, &route.MessageContent, &route.TemplateID,
		&route.DelaySeconds, &retryStrategy, &route.RetryCount, &route.RetryIntervalMs, &route.Priority, &status,
	)
	if err != nil {
		return webhook.Route{}, err
	}
	route.RetryStrategy = webhook.NewRetryStrategy(retryStrategy)
	route.Status = webhook.NewEntityStatus(status)
	return route, nil
}

const getChannelQuery = `SELECT id, organization_id, name, type, credentials, config, status, max_delivery_rate
	FROM channels WHERE id = $1`

// GetChannel loads a channel with its decoded config and credentials
func (r *Repository) GetChannel(ctx context.Context, id string) (webhook.Channel, error) {
	var (
		c                   webhook.Channel
		channelType, status string
		credentials, config []byte
		maxRate             sql.NullInt64
	)
	err := r.DB.QueryRowContext(ctx, getChannelQuery, id).Scan(
		&c.ID, &c.OrganizationID, &c.Name, &channelType, &credentials, &config, &status, &maxRate,
	)
	if err != nil {
		return webhook.Channel{}, notFound(err, "selecting channel")
	}

	if c.Credentials, err = payload.Parse(credentials); err != nil {
		return webhook.Channel{}, fmt.Errorf("decoding credentials of channel %s: %w", id, err)
	}
	if c.Config, err = payload.Parse(config); err != nil {
		return webhook.Channel{}, fmt.Errorf("decoding config of channel %s: %w", id, err)
	}
	c.Type = broadcast.NewChannelType(channelType)
	c.Status = webhook.NewEntityStatus(status)
	if maxRate.Valid {
		rate := int(maxRate.Int64)
		c.MaxDeliveryRate = &rate
	}
	return c, nil
}

const getTemplateQuery = `SELECT id, organization_id, name, body FROM templates WHERE id = $1`

// GetTemplate loads a message template
func (r *Repository) GetTemplate(ctx context.Context, id string) (webhook.Template, error) {
	var t webhook.Template
	err := r.DB.QueryRowContext(ctx, getTemplateQuery, id).Scan(&t.ID, &t.OrganizationID, &t.Name, &t.Body)
	if err != nil {
		return webhook.Template{}, notFound(err, "selecting template")
	}
	return t, nil
}

// Close closes the connection pool
func (r *Repository) Close(ctx context.Context) error {
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

// CreateSchema creates every table the relay reads or writes
func (r *Repository) CreateSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// DropSchema removes every table (useful for tests)
func (r *Repository) DropSchema(ctx context.Context) error {
	query := `DROP TABLE IF EXISTS attempts, deliveries, events, routes, templates, channels, endpoints, providers, organizations CASCADE`
	if _, err := r.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("dropping schema: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back when it fails
func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func notFound(err error, action string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return webhook.ErrNotFound
	}
	return fmt.Errorf("%s: %w", action, err)
}

func affected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return webhook.ErrNotFound
	}
	return nil
}
