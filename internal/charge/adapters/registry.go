package adapters

import (
	"strings"

	"github.com/franqio/royaltyd/internal/charge/domain"
)

type Registry struct {
	factories map[string]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{factories: map[string]domain.AdapterFactory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		gateway := strings.ToLower(strings.TrimSpace(factory.Gateway()))
		if gateway == "" {
			continue
		}
		registry.factories[gateway] = factory
	}
	return registry
}

func (r *Registry) GatewayExists(gateway string) bool {
	if r == nil {
		return false
	}
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	_, ok := r.factories[gateway]
	return ok
}

func (r *Registry) NewAdapter(gateway string, cfg domain.AdapterConfig) (domain.GatewayAdapter, error) {
	if r == nil {
		return nil, domain.ErrGatewayNotFound
	}
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	factory, ok := r.factories[gateway]
	if !ok {
		return nil, domain.ErrGatewayNotFound
	}
	return factory.NewAdapter(cfg)
}
