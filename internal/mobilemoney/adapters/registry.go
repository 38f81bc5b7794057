package adapters

import (
	"strings"

	"github.com/smallbiznis/bursar/internal/mobilemoney/domain"
)

type Registry struct {
	adapters map[domain.Provider]domain.CallbackAdapter
}

func NewRegistry(adapters ...domain.CallbackAdapter) *Registry {
	registry := &Registry{adapters: map[domain.Provider]domain.CallbackAdapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		provider := normalize(string(adapter.Provider()))
		if provider == "" {
			continue
		}
		registry.adapters[provider] = adapter
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	_, err := r.Get(provider)
	return err == nil
}

func (r *Registry) Get(provider string) (domain.CallbackAdapter, error) {
	if r == nil {
		return nil, domain.ErrUnsupportedProvider
	}
	adapter, ok := r.adapters[normalize(provider)]
	if !ok {
		return nil, domain.ErrUnsupportedProvider
	}
	return adapter, nil
}

func normalize(provider string) domain.Provider {
	return domain.Provider(strings.ToLower(strings.TrimSpace(provider)))
}
