package providers

import (
	"fmt"
	"strings"

	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/marcelsud/webhook-relay/webhook/signature"
)

/* ProviderConfig is one provider entry of providers.yaml
 * Providers are immutable reference data: how a source signs requests and which events it sends
 */
type ProviderConfig struct {
	Name               string   `yaml:"name"`
	SignatureHeader    string   `yaml:"signature_header"`
	SignatureAlgorithm string   `yaml:"signature_algorithm"` // Default: NONE
	EventTypes         []string `yaml:"event_types"`
}

// Provider converts the YAML entry into the domain type
func (c ProviderConfig) Provider() (webhook.Provider, error) {
	alg := signature.None
	if raw := strings.TrimSpace(c.SignatureAlgorithm); raw != "" {
		alg = signature.NewAlgorithm(raw)
		// NewAlgorithm falls back to NONE, a typo must not silently disable verification
		if alg.String() != strings.ToUpper(raw) {
			return webhook.Provider{}, fmt.Errorf("unknown signature_algorithm %q for provider %s", c.SignatureAlgorithm, c.Name)
		}
	}

	p := webhook.Provider{
		Name:               strings.ToLower(strings.TrimSpace(c.Name)),
		SignatureHeader:    strings.TrimSpace(c.SignatureHeader),
		SignatureAlgorithm: alg,
		EventTypes:         c.EventTypes,
	}
	if err := Validate(p); err != nil {
		return webhook.Provider{}, err
	}
	return p, nil
}

// Validate checks if the provider definition is usable for signature checks and routing
func Validate(p webhook.Provider) error {
	if p.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if err := p.SignatureAlgorithm.Validate(); err != nil {
		return fmt.Errorf("invalid signature_algorithm for provider %s: %w", p.Name, err)
	}
	if p.SignatureAlgorithm.RequiresSignature() && p.SignatureHeader == "" {
		return fmt.Errorf("signature_header is required for provider %s using %s", p.Name, p.SignatureAlgorithm)
	}
	seen := make(map[string]bool, len(p.EventTypes))
	for _, eventType := range p.EventTypes {
		if strings.TrimSpace(eventType) == "" {
			return fmt.Errorf("event_types cannot contain empty values for provider %s", p.Name)
		}
		if eventType == "*" {
			return fmt.Errorf("event_types cannot contain the wildcard for provider %s", p.Name)
		}
		if seen[eventType] {
			return fmt.Errorf("duplicate event_type '%s' for provider %s", eventType, p.Name)
		}
		seen[eventType] = true
	}
	return nil
}
