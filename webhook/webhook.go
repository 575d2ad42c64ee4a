package webhook

import (
	"time"

	"github.com/marcelsud/webhook-relay/broadcast"
	"github.com/marcelsud/webhook-relay/queue"
	"github.com/marcelsud/webhook-relay/webhook/payload"
	"github.com/marcelsud/webhook-relay/webhook/signature"
)

/* Domain types use value semantics as they represent data, not behavior
 * Organizations, endpoints, routes and channels are managed elsewhere and only read here
 */

// Organization owns endpoints, routes and channels
type Organization struct {
	ID   string
	Slug string
	Name string
}

// Provider describes an external source and how it signs requests
type Provider struct {
	ID                 string
	Name               string
	SignatureHeader    string
	SignatureAlgorithm signature.Algorithm
	EventTypes         []string
}

// Endpoint is a tenant's inbound webhook URL identity, loaded with its provider and organization
type Endpoint struct {
	ID             string
	OrganizationID string
	ProviderID     string
	Slug           string
	Name           string
	Secret         string
	AllowedEvents  []string
	Status         EntityStatus
	Organization   Organization
	Provider       Provider
}

// Event is one received webhook call, kept as an audit record
type Event struct {
	ID             string
	EndpointID     string
	EventType      string
	Headers        map[string]string
	Body           payload.Value
	SourceIP       string
	UserAgent      string
	SignatureValid *bool // nil when no signature was checked
	Status         EventStatus
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
}

// Route connects one endpoint to one channel
type Route struct {
	ID               string
	OrganizationID   string
	EndpointID       string
	ChannelID        string
	Name             string
	EventType        string // exact match, "*" or empty match everything
	FilterExpression string
	MessageContent   string
	TemplateID       string // takes precedence over MessageContent
	DelaySeconds     int
	RetryStrategy    RetryStrategy
	RetryCount       int
	RetryIntervalMs  int
	Priority         int
	Status           EntityStatus
}

// Delay returns the route delay as a duration
func (r Route) Delay() time.Duration {
	if r.DelaySeconds <= 0 {
		return 0
	}
	return time.Duration(r.DelaySeconds) * time.Second
}

// Channel is an outbound destination
type Channel struct {
	ID              string
	OrganizationID  string
	Name            string
	Type            broadcast.ChannelType
	Credentials     payload.Value
	Config          payload.Value
	Status          EntityStatus
	MaxDeliveryRate *int
}

// Template is a reusable message body
type Template struct {
	ID             string
	OrganizationID string
	Name           string
	Body           string
}

// Delivery is one scheduled dispatch of an event to a matched route
type Delivery struct {
	ID             string
	EventID        string
	RouteID        string
	ChannelID      string
	MessageContent string
	Status         DeliveryStatus
	ScheduledFor   time.Time
	NextAttemptAt  *time.Time
	MaxAttempts    int
	AttemptCount   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// JobData snapshots the delivery for the queue
func (d Delivery) JobData() queue.JobData {
	return queue.JobData{
		DeliveryID:     d.ID,
		EventID:        d.EventID,
		RouteID:        d.RouteID,
		ChannelID:      d.ChannelID,
		MessageContent: d.MessageContent,
		AttemptCount:   d.AttemptCount,
		MaxAttempts:    d.MaxAttempts,
		ScheduledFor:   d.ScheduledFor,
	}
}

// Attempt is one concrete try at executing a delivery; never updated once final
type Attempt struct {
	ID             string
	DeliveryID     string
	AttemptNumber  int
	Trigger        AttemptTrigger
	Status         AttemptStatus
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ResponseStatus *int
	ResponseBody   string
	ErrorMessage   string
	DurationMs     *int64
	CreatedAt      time.Time
}

// AttemptResult closes an in-progress attempt and mirrors its outcome on the delivery
type AttemptResult struct {
	AttemptID      string
	DeliveryID     string
	Status         AttemptStatus
	ResponseStatus *int
	ResponseBody   string
	ErrorMessage   string
	CompletedAt    time.Time
	Duration       time.Duration
	NextAttemptAt  *time.Time // set when the queue will run the delivery again
}
