// Package providers maintains a registry of provider factories keyed by
// type name, so callers can build providers from configuration without
// importing every implementation.
package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/llmlb/llmlb/pkg/provider"
	"github.com/llmlb/llmlb/providers/mock"
	"github.com/llmlb/llmlb/providers/openaicompat"
)

var (
	registry     = make(map[string]provider.Factory)
	registryOnce sync.Once
	registryMu   sync.RWMutex
)

// Register registers a provider factory with the given type name,
// replacing any previous registration.
func Register(providerType string, factory provider.Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[providerType] = factory
}

// Get returns the factory for the given provider type.
func Get(providerType string) (provider.Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[providerType]
	return f, ok
}

// Create builds a provider of the given type from configuration.
func Create(providerType string, cfg provider.Config) (provider.Provider, error) {
	factory, ok := Get(providerType)
	if !ok {
		return nil, fmt.Errorf("unknown provider type %q (available: %v)", providerType, List())
	}
	return factory(cfg)
}

// List returns all registered provider type names, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterBuiltins registers all built-in provider factories.
// This is called automatically on first use.
func RegisterBuiltins() {
	registryOnce.Do(func() {
		Register("mock", mock.NewFromConfig)
		Register("openai-compatible", openaicompat.NewFromConfig)
	})
}

func init() {
	RegisterBuiltins()
}
