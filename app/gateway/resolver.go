package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
)

var ErrConfigNotFound = errors.New("gateway configuration not found")

type ConfigStore interface {
	FindActive(ctx context.Context, clientID, provider string) (*entity.GatewayConfig, error)
}

// Resolver builds a tenant's adapter from its stored configuration.
type Resolver struct {
	store    ConfigStore
	registry *Registry
}

func NewResolver(store ConfigStore, registry *Registry) *Resolver {
	return &Resolver{store: store, registry: registry}
}

func (r *Resolver) Registry() *Registry {
	return r.registry
}

func (r *Resolver) Resolve(ctx context.Context, clientID, gatewayType string) (PaymentGateway, *entity.GatewayConfig, error) {
	key := normalizeType(gatewayType)
	if !r.registry.IsRegistered(key) {
		return nil, nil, fmt.Errorf("%w: gateway type %q not registered", ErrGatewayNotRegistered, gatewayType)
	}

	stored, err := r.store.FindActive(ctx, clientID, key)
	if err != nil {
		return nil, nil, err
	}
	if stored == nil {
		return nil, nil, fmt.Errorf("%w: client %s, provider %s", ErrConfigNotFound, clientID, key)
	}

	g, err := r.registry.CreateGateway(key, ConfigFromEntity(stored))
	if err != nil {
		return nil, nil, err
	}
	return g, stored, nil
}

func ConfigFromEntity(stored *entity.GatewayConfig) Config {
	return Config{
		Type:          stored.Provider,
		ClientID:      stored.ClientID,
		GatewayID:     stored.GatewayID,
		WebhookSecret: stored.WebhookSecret,
		Settings:      stored.Settings,
	}
}

// IsConfigurationError reports errors that retrying cannot fix.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfigNotFound) ||
		errors.Is(err, ErrGatewayNotRegistered) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrUnsupported)
}
