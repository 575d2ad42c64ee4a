package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-relay/queue"
	"github.com/marcelsud/webhook-relay/webhook/filter"
	"github.com/marcelsud/webhook-relay/webhook/payload"
	"github.com/marcelsud/webhook-relay/webhook/signature"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidPayload is returned when the body is not JSON; no event is stored
	ErrInvalidPayload = errors.New("invalid JSON payload")
	// ErrEndpointNotFound is returned for unknown or inactive endpoints; no event is stored
	ErrEndpointNotFound = errors.New("endpoint not found")
	// ErrInvalidSignature is returned when signature verification fails; an INVALID event is stored
	ErrInvalidSignature = errors.New("invalid signature")
)

const defaultFanOut = 8

/* Service represents the business logic layer
 * Uses pointer semantics as it's an API, not data
 */

// UseCase defines the ingestion of inbound webhooks
type UseCase interface {
	Ingest(ctx context.Context, req Request) (Result, error)
}

// Request is one inbound webhook call
type Request struct {
	OrgSlug      string
	EndpointSlug string
	Body         []byte
	Headers      map[string]string
	SourceIP     string
	UserAgent    string
}

// Result summarizes what happened to an inbound call
type Result struct {
	EventID           string
	Status            EventStatus
	DeliveriesCreated int
	EnqueueFailures   int
	Message           string
}

// EventRecorder counts ingested events by final status
type EventRecorder interface {
	RecordEvent(ctx context.Context, status string)
}

type Service struct {
	Repo     Repository
	Queue    queue.Enqueuer
	logger   zerolog.Logger
	recorder EventRecorder
	fanOut   int
	now      func() time.Time
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithLogger sets the service logger
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithEventRecorder sets where ingested events are counted
func WithEventRecorder(r EventRecorder) ServiceOption {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithFanOut bounds how many deliveries of one event are created concurrently
func WithFanOut(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.fanOut = n
		}
	}
}

// NewService creates a new ingestion service with dependency injection
func NewService(repo Repository, q queue.Enqueuer, opts ...ServiceOption) *Service {
	s := &Service{
		Repo:   repo,
		Queue:  q,
		logger: zerolog.Nop(),
		fanOut: defaultFanOut,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

/* Ingest runs the inbound pipeline for one webhook call
 * Once the event is stored every failure is recorded on it, the audit record is never lost
 */
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	body, err := payload.Parse(req.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	endpoint, err := s.Repo.FindActiveEndpoint(ctx, req.OrgSlug, req.EndpointSlug)
	if errors.Is(err, ErrNotFound) {
		return Result{}, fmt.Errorf("%w: %s/%s", ErrEndpointNotFound, req.OrgSlug, req.EndpointSlug)
	}
	if err != nil {
		return Result{}, fmt.Errorf("finding endpoint: %w", err)
	}

	headers := payload.NormalizeHeaders(req.Headers)
	event := Event{
		ID:         uuid.New().String(),
		EndpointID: endpoint.ID,
		EventType:  payload.ExtractEventType(headers, body, endpoint.Provider.Name),
		Headers:    headers,
		Body:       body,
		SourceIP:   req.SourceIP,
		UserAgent:  req.UserAgent,
		Status:     EventReceived,
		ReceivedAt: s.now(),
	}
	logger := s.logger.With().
		Str("event_id", event.ID).
		Str("endpoint_id", endpoint.ID).
		Str("event_type", event.EventType).
		Logger()

	if !payload.Allowed(endpoint.AllowedEvents, event.EventType) {
		event.Status = EventIgnored
		event.ProcessedAt = ptr(s.now())
		if err := s.Repo.CreateEvent(ctx, event); err != nil {
			return Result{}, fmt.Errorf("storing ignored event: %w", err)
		}
		logger.Info().Msg("event type not allowed for endpoint")
		return s.done(ctx, event, 0, 0, fmt.Sprintf("Event type %q is not allowed for this endpoint", event.EventType)), nil
	}

	provider := endpoint.Provider
	if provider.SignatureAlgorithm.RequiresSignature() {
		header := headers[strings.ToLower(provider.SignatureHeader)]
		valid := signature.Verify(req.Body, header, endpoint.Secret, provider.SignatureAlgorithm)
		event.SignatureValid = ptr(valid)
		if !valid {
			event.Status = EventInvalid
			event.ProcessedAt = ptr(s.now())
			if err := s.Repo.CreateEvent(ctx, event); err != nil {
				return Result{}, fmt.Errorf("storing invalid event: %w", err)
			}
			logger.Warn().Str("provider", provider.Name).Msg("signature verification failed")
			return s.done(ctx, event, 0, 0, "Invalid signature"), ErrInvalidSignature
		}
	}

	if err := s.Repo.CreateEvent(ctx, event); err != nil {
		return Result{}, fmt.Errorf("storing event: %w", err)
	}

	result, err := s.process(ctx, logger, endpoint, event)
	if err != nil {
		logger.Error().Err(err).Msg("processing event")
		// the request may be gone, the audit record still has to say what happened
		_ = s.transition(context.WithoutCancel(ctx), logger, &event, EventError)
		s.record(ctx, EventError)
		return Result{EventID: event.ID, Status: EventError}, err
	}
	return result, nil
}

// process runs everything after the event is stored; the caller marks the event ERROR on failure
func (s *Service) process(ctx context.Context, logger zerolog.Logger, endpoint Endpoint, event Event) (Result, error) {
	if err := s.Repo.UpdateEventStatus(ctx, event.ID, EventProcessing, nil); err != nil {
		return Result{}, fmt.Errorf("updating event status: %w", err)
	}
	event.Status = EventProcessing

	candidates, err := s.Repo.FindMatchingRoutes(ctx, endpoint.ID, event.EventType)
	if err != nil {
		return Result{}, fmt.Errorf("finding routes: %w", err)
	}
	routes := make([]Route, 0, len(candidates))
	for _, route := range candidates {
		if route.Status == Active && payload.MatchesEventType(route.EventType, event.EventType) {
			routes = append(routes, route)
		}
	}
	if len(routes) == 0 {
		return s.ignore(ctx, &event, "No routes match this event")
	}

	filterCtx := filter.Context{Headers: event.Headers, Body: event.Body, EventType: event.EventType}
	matched := routes[:0]
	for _, route := range routes {
		ok, err := filter.Check(route.FilterExpression, filterCtx)
		if err != nil {
			logger.Warn().Err(err).Str("route_id", route.ID).Msg("filter expression failed, skipping route")
			continue
		}
		if ok {
			matched = append(matched, route)
		}
	}
	if len(matched) == 0 {
		return s.ignore(ctx, &event, "No routes matched the filters")
	}

	created, enqueueFailures, err := s.createDeliveries(ctx, logger, event, matched)
	if err != nil {
		return Result{}, err
	}

	if err := s.transition(ctx, logger, &event, EventProcessed); err != nil {
		return Result{}, err
	}
	return s.done(ctx, event, created, enqueueFailures, fmt.Sprintf("Created %d deliveries", created)), nil
}

// createDeliveries creates and enqueues one delivery per route; routes are independent so they run concurrently
func (s *Service) createDeliveries(ctx context.Context, logger zerolog.Logger, event Event, routes []Route) (int, int, error) {
	var created, enqueueFailures atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)
	for _, route := range routes {
		g.Go(func() error {
			routeLogger := logger.With().Str("route_id", route.ID).Str("channel_id", route.ChannelID).Logger()

			channel, err := s.Repo.GetChannel(gctx, route.ChannelID)
			if err != nil {
				routeLogger.Warn().Err(err).Msg("channel not found, skipping route")
				return nil
			}
			if channel.Status != Active {
				routeLogger.Info().Str("channel_status", channel.Status.String()).Msg("channel not active, skipping route")
				return nil
			}

			delivery, err := s.Repo.CreateDelivery(gctx, s.newDelivery(event, route), Attempt{
				ID:            uuid.New().String(),
				AttemptNumber: 1,
				Trigger:       TriggerInitial,
				Status:        AttemptPending,
				CreatedAt:     s.now(),
			})
			if err != nil {
				return fmt.Errorf("creating delivery for route %s: %w", route.ID, err)
			}
			created.Add(1)

			jobID, err := s.Queue.Enqueue(gctx, delivery.JobData(), queue.Options{
				Delay:    route.Delay(),
				Priority: route.Priority,
			})
			if err != nil {
				enqueueFailures.Add(1)
				routeLogger.Error().Err(err).Str("delivery_id", delivery.ID).Msg("enqueueing delivery, it stays pending")
				return nil
			}
			routeLogger.Debug().Str("delivery_id", delivery.ID).Str("job_id", jobID).Msg("delivery enqueued")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(created.Load()), int(enqueueFailures.Load()), err
	}
	return int(created.Load()), int(enqueueFailures.Load()), nil
}

func (s *Service) newDelivery(event Event, route Route) Delivery {
	now := s.now()
	status := DeliveryPending
	if route.DelaySeconds > 0 {
		status = DeliveryScheduled
	}
	scheduledFor := now.Add(route.Delay())

	return Delivery{
		ID:             uuid.New().String(),
		EventID:        event.ID,
		RouteID:        route.ID,
		ChannelID:      route.ChannelID,
		MessageContent: route.MessageContent,
		Status:         status,
		ScheduledFor:   scheduledFor,
		NextAttemptAt:  ptr(scheduledFor),
		MaxAttempts:    route.RetryCount,
		AttemptCount:   0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *Service) ignore(ctx context.Context, event *Event, message string) (Result, error) {
	if err := s.transition(ctx, s.logger, event, EventIgnored); err != nil {
		return Result{}, err
	}
	return s.done(ctx, *event, 0, 0, message), nil
}

// transition moves the event forward, refusing regressions
func (s *Service) transition(ctx context.Context, logger zerolog.Logger, event *Event, next EventStatus) error {
	if !event.Status.CanTransitionTo(next) {
		return fmt.Errorf("event %s cannot move from %s to %s", event.ID, event.Status, next)
	}
	var processedAt *time.Time
	if next.IsFinal() {
		processedAt = ptr(s.now())
	}
	if err := s.Repo.UpdateEventStatus(ctx, event.ID, next, processedAt); err != nil {
		logger.Error().Err(err).Str("event_id", event.ID).Str("status", next.String()).Msg("updating event status")
		return fmt.Errorf("updating event status: %w", err)
	}
	event.Status = next
	event.ProcessedAt = processedAt
	return nil
}

func (s *Service) done(ctx context.Context, event Event, created, enqueueFailures int, message string) Result {
	s.record(ctx, event.Status)
	return Result{
		EventID:           event.ID,
		Status:            event.Status,
		DeliveriesCreated: created,
		EnqueueFailures:   enqueueFailures,
		Message:           message,
	}
}

func (s *Service) record(ctx context.Context, status EventStatus) {
	if s.recorder != nil {
		s.recorder.RecordEvent(ctx, status.String())
	}
}

func ptr[T any](v T) *T {
	return &v
}
