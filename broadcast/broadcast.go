package broadcast

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/marcelsud/webhook-relay/webhook/payload"
)

// ChannelType identifies the kind of destination a channel delivers to
type ChannelType int

const (
	Telegram ChannelType = iota + 1
	Slack
	Discord
	Email
	Webhook
)

// String returns the persisted representation of the channel type
func (c ChannelType) String() string {
	switch c {
	case Telegram:
		return "TELEGRAM"
	case Slack:
		return "SLACK"
	case Discord:
		return "DISCORD"
	case Email:
		return "EMAIL"
	case Webhook:
		return "WEBHOOK"
	default:
		return "unknown"
	}
}

// NewChannelType creates a ChannelType from its persisted representation, 0 when unknown
func NewChannelType(s string) ChannelType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TELEGRAM":
		return Telegram
	case "SLACK":
		return Slack
	case "DISCORD":
		return Discord
	case "EMAIL":
		return Email
	case "WEBHOOK":
		return Webhook
	default:
		return 0
	}
}

// Validate checks if the channel type is valid
func (c ChannelType) Validate() error {
	if c < Telegram || c > Webhook {
		return fmt.Errorf("invalid channel type: %d", c)
	}
	return nil
}

// Response is what a destination answered to a delivered message
type Response struct {
	StatusCode int
	Body       string
}

/* Broadcaster delivers rendered messages to one configured destination
 * TestConnection never fails loudly, it reports false instead
 */
type Broadcaster interface {
	TestConnection(ctx context.Context) bool
	SendMessage(ctx context.Context, text string) (Response, error)
}

// Factory builds a Broadcaster bound to a channel's config and credentials
type Factory func(config, credentials payload.Value) (Broadcaster, error)

// Resolver finds the broadcaster for a channel
type Resolver interface {
	Get(channelType ChannelType, config, credentials payload.Value) Broadcaster
}

// Registry maps channel types to broadcaster factories
type Registry struct {
	mu        sync.RWMutex
	factories map[ChannelType]Factory
}

// NewRegistry creates an empty registry; register implementations with Register
func NewRegistry() *Registry {
	return &Registry{factories: make(map[ChannelType]Factory)}
}

// Register adds or replaces the factory for a channel type
func (r *Registry) Register(channelType ChannelType, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[channelType] = factory
}

// Supports reports whether a factory exists for the channel type
func (r *Registry) Supports(channelType ChannelType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[channelType]
	return ok
}

// Get returns a broadcaster for the channel, nil when the type is unsupported or the channel is misconfigured
func (r *Registry) Get(channelType ChannelType, config, credentials payload.Value) Broadcaster {
	b, err := r.Build(channelType, config, credentials)
	if err != nil {
		return nil
	}
	return b
}

// Build is Get with the reason a broadcaster could not be built
func (r *Registry) Build(channelType ChannelType, config, credentials payload.Value) (Broadcaster, error) {
	r.mu.RLock()
	factory, ok := r.factories[channelType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported channel type: %s", channelType)
	}

	b, err := factory(config, credentials)
	if err != nil {
		return nil, fmt.Errorf("building %s broadcaster: %w", channelType, err)
	}
	return b, nil
}
