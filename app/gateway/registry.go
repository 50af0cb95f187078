package gateway

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type Constructor func(cfg Config) (PaymentGateway, error)

type Info struct {
	DisplayName string
	Description string
	Constructor Constructor
	Schema      *Schema
}

type Registry struct {
	mu        sync.RWMutex
	gateways  map[string]Info
	validator *ConfigValidator
}

func NewRegistry(validator *ConfigValidator) *Registry {
	if validator == nil {
		validator = NewConfigValidator()
	}
	return &Registry{
		gateways:  make(map[string]Info),
		validator: validator,
	}
}

// HTTPOptions configures the outbound client shared by the REST adapters.
type HTTPOptions struct {
	Timeout                  time.Duration
	StripeSignatureTolerance int64
	Client                   *http.Client
}

func (o HTTPOptions) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// NewDefaultRegistry registers the asset, shopify and stripe adapters.
func NewDefaultRegistry(validator *ConfigValidator, opts HTTPOptions) *Registry {
	r := NewRegistry(validator)
	client := opts.client()

	r.Register("asset", Info{
		DisplayName: "Asset (Asaas)",
		Description: "Asaas PIX payment gateway",
		Constructor: func(cfg Config) (PaymentGateway, error) {
			return NewAssetGateway(cfg, client), nil
		},
	})
	r.Register("shopify", Info{
		DisplayName: "Shopify",
		Description: "Shopify store order webhooks",
		Constructor: func(cfg Config) (PaymentGateway, error) {
			return NewShopifyGateway(cfg), nil
		},
	})
	r.Register("stripe", Info{
		DisplayName: "Stripe",
		Description: "Stripe card payments",
		Constructor: func(cfg Config) (PaymentGateway, error) {
			return NewStripeGateway(cfg, client, opts.StripeSignatureTolerance), nil
		},
	})
	return r
}

// Register adds gatewayType under its lowercase name; the last call wins.
func (r *Registry) Register(gatewayType string, info Info) {
	key := normalizeType(gatewayType)
	r.mu.Lock()
	r.gateways[key] = info
	r.mu.Unlock()

	if info.Schema != nil {
		r.validator.Register(key, *info.Schema)
	}
}

func (r *Registry) CreateGateway(gatewayType string, cfg Config) (PaymentGateway, error) {
	key := normalizeType(gatewayType)
	r.mu.RLock()
	info, ok := r.gateways[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: gateway type %q not registered, available types: %s",
			ErrGatewayNotRegistered, gatewayType, strings.Join(r.AvailableTypes(), ", "))
	}
	if cfg.Type == "" {
		cfg.Type = key
	}
	return info.Constructor(cfg)
}

func (r *Registry) IsRegistered(gatewayType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.gateways[normalizeType(gatewayType)]
	return ok
}

func (r *Registry) Info(gatewayType string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.gateways[normalizeType(gatewayType)]
	return info, ok
}

func (r *Registry) AvailableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.gateways))
	for t := range r.gateways {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) Validator() *ConfigValidator {
	return r.validator
}

// ValidateConfig validates config against the schema for gatewayType.
// Unregistered types are always invalid.
func (r *Registry) ValidateConfig(gatewayType string, config map[string]any) ValidationResult {
	if !r.IsRegistered(gatewayType) {
		return ValidationResult{
			IsValid:  false,
			Errors:   []string{fmt.Sprintf("gateway type %q not registered", gatewayType)},
			Warnings: []string{},
		}
	}
	return r.validator.Validate(gatewayType, config)
}
