package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-relay/broadcast"
	"github.com/marcelsud/webhook-relay/message"
	"github.com/marcelsud/webhook-relay/queue"
	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/rs/zerolog"
)

// DefaultAttemptTimeout bounds one broadcaster round trip
const DefaultAttemptTimeout = 15 * time.Second

// Configuration errors: retrying cannot help until someone fixes the data
var (
	ErrDeliveryNotFound   = errors.New("delivery not found")
	ErrEventNotFound      = errors.New("event not found")
	ErrRouteNotFound      = errors.New("route not found")
	ErrChannelNotFound    = errors.New("channel not found")
	ErrChannelInactive    = errors.New("channel is not active")
	ErrUnsupportedChannel = errors.New("unsupported channel type")
)

// ErrConnectionFailed is returned when the broadcaster cannot reach its service; it is retried
var ErrConnectionFailed = errors.New("Failed to connect to channel")

var fatalErrors = []error{
	ErrDeliveryNotFound,
	ErrEventNotFound,
	ErrRouteNotFound,
	ErrChannelNotFound,
	ErrChannelInactive,
	ErrUnsupportedChannel,
}

// IsFatal reports whether err is a configuration error that no retry can fix
func IsFatal(err error) bool {
	for _, target := range fatalErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Store is what the dispatcher reads and writes
type Store interface {
	webhook.EndpointReader
	webhook.EventReader
	webhook.RouteReader
	webhook.ChannelReader
	webhook.TemplateReader
	webhook.DeliveryWriter
}

// AttemptRecorder counts finished attempts
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, channelType, status string, duration time.Duration)
}

/* Dispatcher runs one delivery job
 * The attempt row is claimed before anything is resolved so every run leaves an audit record
 */
type Dispatcher struct {
	store    Store
	resolver broadcast.Resolver
	logger   zerolog.Logger
	timeout  time.Duration
	recorder AttemptRecorder
	listener Listener
	now      func() time.Time
}

// Option customizes a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithAttemptTimeout bounds each broadcaster round trip
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithAttemptRecorder sets where finished attempts are counted
func WithAttemptRecorder(r AttemptRecorder) Option {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// WithListener receives job lifecycle events
func WithListener(l Listener) Option {
	return func(d *Dispatcher) {
		d.listener = l
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher creates a dispatcher resolving broadcasters through resolver
func NewDispatcher(store Store, resolver broadcast.Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		resolver: resolver,
		logger:   zerolog.Nop(),
		timeout:  DefaultAttemptTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// outcome is what one run produced, before it is written down
type outcome struct {
	channelType string
	response    broadcast.Response
	err         error
	timedOut    bool
}

// Handle implements queue.Handler
func (d *Dispatcher) Handle(ctx context.Context, job queue.Job) queue.Result {
	data := job.Data
	logger := d.logger.With().
		Str("job_id", job.ID).
		Str("delivery_id", data.DeliveryID).
		Str("route_id", data.RouteID).
		Int("job_attempt", job.Attempt()).
		Logger()

	logger.Info().Msg("delivery job started")
	d.emit(JobEvent{Type: JobStarted, JobID: job.ID, DeliveryID: data.DeliveryID, Attempt: job.Attempt()})

	startedAt := d.now()
	attempt, err := d.store.BeginAttempt(ctx, data.DeliveryID, startedAt)
	if err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			err = fmt.Errorf("%w: %s", ErrDeliveryNotFound, data.DeliveryID)
		} else {
			err = fmt.Errorf("beginning attempt: %w", err)
		}
		return d.failed(logger, job, err)
	}
	logger = logger.With().Str("attempt_id", attempt.ID).Int("attempt_number", attempt.AttemptNumber).Logger()

	out := d.deliver(ctx, logger, data)
	completedAt := d.now()
	result := webhook.AttemptResult{
		AttemptID:   attempt.ID,
		DeliveryID:  data.DeliveryID,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
	}
	if out.response.StatusCode != 0 {
		result.ResponseStatus = &out.response.StatusCode
	}

	if out.err == nil {
		result.Status = webhook.AttemptSuccessful
		result.ResponseBody = out.response.Body
		d.finish(ctx, logger, result, out.channelType)

		logger.Info().Dur("duration", result.Duration).Msg("delivery job succeeded")
		d.emit(JobEvent{Type: JobSucceeded, JobID: job.ID, DeliveryID: data.DeliveryID, Attempt: job.Attempt()})
		return queue.Done()
	}

	result.Status = webhook.AttemptFailed
	if out.timedOut {
		result.Status = webhook.AttemptTimeout
	}
	result.ErrorMessage = out.err.Error()
	if !IsFatal(out.err) && job.WillRetry() {
		next := completedAt.Add(job.NextRetryIn())
		result.NextAttemptAt = &next
	}
	d.finish(ctx, logger, result, out.channelType)

	return d.failed(logger, job, out.err)
}

// deliver resolves everything the attempt needs and sends the message
func (d *Dispatcher) deliver(ctx context.Context, logger zerolog.Logger, data queue.JobData) outcome {
	route, err := d.store.GetRoute(ctx, data.RouteID)
	if err != nil {
		return outcome{err: lookupError(err, ErrRouteNotFound, data.RouteID, "loading route")}
	}

	channel, err := d.store.GetChannel(ctx, route.ChannelID)
	if err != nil {
		return outcome{err: lookupError(err, ErrChannelNotFound, route.ChannelID, "loading channel")}
	}
	out := outcome{channelType: channel.Type.String()}
	if channel.Status != webhook.Active {
		out.err = fmt.Errorf("%w: %s is %s", ErrChannelInactive, channel.ID, channel.Status)
		return out
	}

	event, err := d.store.GetEvent(ctx, data.EventID)
	if err != nil {
		out.err = lookupError(err, ErrEventNotFound, data.EventID, "loading event")
		return out
	}

	broadcaster := d.resolver.Get(channel.Type, channel.Config, channel.Credentials)
	if broadcaster == nil {
		out.err = fmt.Errorf("%w: %s", ErrUnsupportedChannel, channel.Type)
		return out
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if !broadcaster.TestConnection(attemptCtx) {
		out.err = ErrConnectionFailed
		out.timedOut = timedOut(ctx, attemptCtx)
		return out
	}

	text := d.render(ctx, logger, data, route, event)
	out.response, out.err = broadcaster.SendMessage(attemptCtx, text)
	if out.err != nil {
		out.timedOut = timedOut(ctx, attemptCtx)
	}
	return out
}

// render picks the template by precedence and renders it over the stored event
func (d *Dispatcher) render(ctx context.Context, logger zerolog.Logger, data queue.JobData, route webhook.Route, event webhook.Event) string {
	tpl := data.MessageContent
	if tpl == "" {
		tpl = route.MessageContent
	}
	if route.TemplateID != "" {
		t, err := d.store.GetTemplate(ctx, route.TemplateID)
		if err != nil {
			logger.Warn().Err(err).Str("template_id", route.TemplateID).Msg("loading template, using message content")
		} else {
			tpl = t.Body
		}
	}

	msgCtx := message.Context{
		Headers:   event.Headers,
		Payload:   event.Body,
		EventType: event.EventType,
	}
	if endpoint, err := d.store.GetEndpoint(ctx, event.EndpointID); err == nil {
		msgCtx.Endpoint = &message.Ref{ID: endpoint.ID, Slug: endpoint.Slug, Name: endpoint.Name}
		msgCtx.Organization = &message.Ref{
			ID:   endpoint.Organization.ID,
			Slug: endpoint.Organization.Slug,
			Name: endpoint.Organization.Name,
		}
	} else {
		logger.Debug().Err(err).Msg("loading endpoint for template context")
	}

	return message.Render(tpl, msgCtx)
}

// finish writes the attempt outcome; a write failure never changes what happened to the message
func (d *Dispatcher) finish(ctx context.Context, logger zerolog.Logger, result webhook.AttemptResult, channelType string) {
	if err := d.store.FinishAttempt(ctx, result); err != nil {
		logger.Error().Err(err).Str("status", result.Status.String()).Msg("recording attempt outcome")
	}
	if d.recorder != nil {
		d.recorder.RecordAttempt(ctx, channelType, result.Status.String(), result.Duration)
	}
}

func (d *Dispatcher) failed(logger zerolog.Logger, job queue.Job, err error) queue.Result {
	fatal := IsFatal(err)
	willRetry := !fatal && job.WillRetry()

	logger.Error().Err(err).Bool("fatal", fatal).Bool("will_retry", willRetry).Msg("delivery job failed")
	d.emit(JobEvent{
		Type:       JobFailed,
		JobID:      job.ID,
		DeliveryID: job.Data.DeliveryID,
		Attempt:    job.Attempt(),
		Err:        err,
		Fatal:      fatal,
		WillRetry:  willRetry,
	})

	if fatal {
		return queue.Fail(err)
	}
	return queue.Retry(err)
}

func (d *Dispatcher) emit(e JobEvent) {
	if d.listener != nil {
		d.listener(e)
	}
}

func lookupError(err, notFound error, id, action string) error {
	if errors.Is(err, webhook.ErrNotFound) {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return fmt.Errorf("%s: %w", action, err)
}

// timedOut reports whether the attempt deadline, not the caller, cut the call short
func timedOut(parent, attemptCtx context.Context) bool {
	return errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil
}
