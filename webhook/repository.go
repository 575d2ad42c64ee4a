package webhook

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by readers when the row does not exist
var ErrNotFound = errors.New("not found")

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// EndpointReader resolves endpoints with their provider and organization
type EndpointReader interface {
	/* FindActiveEndpoint looks up an ACTIVE endpoint by organization and endpoint slug
	 * Returns ErrNotFound for unknown or inactive endpoints
	 */
	FindActiveEndpoint(ctx context.Context, orgSlug, endpointSlug string) (Endpoint, error)
	GetEndpoint(ctx context.Context, id string) (Endpoint, error)
}

// EventReader provides read operations for events
type EventReader interface {
	GetEvent(ctx context.Context, id string) (Event, error)
}

// EventWriter provides write operations for events
type EventWriter interface {
	CreateEvent(ctx context.Context, event Event) error
	/* UpdateEventStatus moves an event forward
	 * processedAt is stored for terminal statuses
	 */
	UpdateEventStatus(ctx context.Context, id string, status EventStatus, processedAt *time.Time) error
}

// RouteReader provides read operations for routes
type RouteReader interface {
	/* FindMatchingRoutes returns ACTIVE routes of the endpoint whose event type equals
	 * eventType or is a wildcard, ordered by priority (highest first)
	 */
	FindMatchingRoutes(ctx context.Context, endpointID, eventType string) ([]Route, error)
	GetRoute(ctx context.Context, id string) (Route, error)
}

// ChannelReader provides read operations for channels
type ChannelReader interface {
	GetChannel(ctx context.Context, id string) (Channel, error)
}

// TemplateReader provides read operations for message templates
type TemplateReader interface {
	GetTemplate(ctx context.Context, id string) (Template, error)
}

// DeliveryReader provides read operations for deliveries
type DeliveryReader interface {
	GetDelivery(ctx context.Context, id string) (Delivery, error)
	ListAttempts(ctx context.Context, deliveryID string) ([]Attempt, error)
}

// DeliveryWriter provides write operations for deliveries and their attempts
type DeliveryWriter interface {
	/* CreateDelivery stores a delivery with its first attempt in one transaction
	 * Every attempt insert increments attempt_count, the stored delivery is returned
	 */
	CreateDelivery(ctx context.Context, delivery Delivery, attempt Attempt) (Delivery, error)
	/* BeginAttempt marks the attempt being executed now as IN_PROGRESS
	 * It reuses the latest PENDING attempt or appends attempt attempt_count + 1
	 */
	BeginAttempt(ctx context.Context, deliveryID string, startedAt time.Time) (Attempt, error)
	FinishAttempt(ctx context.Context, result AttemptResult) error
}

/* Interface composition - combining small interfaces into larger ones
 * This is preferred over large monolithic interfaces
 */
type Repository interface {
	EndpointReader
	EventReader
	EventWriter
	RouteReader
	ChannelReader
	TemplateReader
	DeliveryReader
	DeliveryWriter
	Close(ctx context.Context) error
}
