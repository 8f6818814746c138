package adapters

import (
	"sort"
	"strings"

	"github.com/smallbiznis/paysync/internal/payment/domain"
)

type Registry struct {
	adapters map[string]domain.Adapter
}

func NewRegistry(adapters ...domain.Adapter) *Registry {
	registry := &Registry{adapters: map[string]domain.Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		provider := normalize(adapter.Provider())
		if provider == "" {
			continue
		}
		registry.adapters[provider] = adapter
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.adapters[normalize(provider)]
	return ok
}

func (r *Registry) Adapter(provider string) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	adapter, ok := r.adapters[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

// SignatureHeaders lists every registered provider's signature header, for CORS.
func (r *Registry) SignatureHeaders() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		out = append(out, adapter.SignatureHeader())
	}
	sort.Strings(out)
	return out
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
