package providers

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/marcelsud/webhook-relay/webhook"
	"gopkg.in/yaml.v3"
)

/* Loader reads provider definitions from providers.yaml
 * and seeds them into the database at deploy time
 */

// Config represents the structure of providers.yaml
type Config struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// Store persists providers; upserts are keyed by name
type Store interface {
	UpsertProvider(ctx context.Context, p webhook.Provider) (string, error)
}

// Loader holds the loaded providers
type Loader struct {
	providers map[string]webhook.Provider
}

// NewLoader creates a new provider loader
func NewLoader() *Loader {
	return &Loader{
		providers: make(map[string]webhook.Provider),
	}
}

// Load reads and parses the providers file
func (l *Loader) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading providers file: %w", err)
	}
	return l.Parse(data)
}

// Parse validates and stores the providers of a YAML document
func (l *Loader) Parse(data []byte) error {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing providers YAML: %w", err)
	}

	for _, pc := range config.Providers {
		p, err := pc.Provider()
		if err != nil {
			return fmt.Errorf("validating provider: %w", err)
		}
		if _, exists := l.providers[p.Name]; exists {
			return fmt.Errorf("validating provider: duplicate provider %s", p.Name)
		}
		l.providers[p.Name] = p
	}

	return nil
}

// Get retrieves a provider by name
func (l *Loader) Get(name string) (webhook.Provider, error) {
	p, exists := l.providers[name]
	if !exists {
		return webhook.Provider{}, fmt.Errorf("provider not found: %s", name)
	}
	return p, nil
}

// List returns all loaded providers sorted by name
func (l *Loader) List() []webhook.Provider {
	providers := make([]webhook.Provider, 0, len(l.providers))
	for _, p := range l.providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool {
		return providers[i].Name < providers[j].Name
	})
	return providers
}

// Exists checks if a provider name exists
func (l *Loader) Exists(name string) bool {
	_, exists := l.providers[name]
	return exists
}

// Seed upserts every loaded provider and returns how many were written
func (l *Loader) Seed(ctx context.Context, store Store) (int, error) {
	seeded := 0
	for _, p := range l.List() {
		if _, err := store.UpsertProvider(ctx, p); err != nil {
			return seeded, fmt.Errorf("seeding provider %s: %w", p.Name, err)
		}
		seeded++
	}
	return seeded, nil
}
