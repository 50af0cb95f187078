package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/gateway"
	"github.com/vibast-solutions/ms-go-logistics/app/repository"
)

type gatewayConfigRepository interface {
	Create(ctx context.Context, cfg *entity.GatewayConfig) error
	Update(ctx context.Context, cfg *entity.GatewayConfig) error
	Delete(ctx context.Context, clientID, provider string) error
	Find(ctx context.Context, clientID, provider string) (*entity.GatewayConfig, error)
	ListByClient(ctx context.Context, clientID string) ([]*entity.GatewayConfig, error)
}

type GatewayConfigInput struct {
	ClientID      string
	Provider      string
	GatewayID     string
	WebhookSecret string
	Settings      map[string]any
	IsActive      *bool
}

func (in GatewayConfigInput) gatewayConfig() gateway.Config {
	return gateway.Config{
		Type:          in.Provider,
		ClientID:      in.ClientID,
		GatewayID:     in.GatewayID,
		WebhookSecret: in.WebhookSecret,
		Settings:      in.Settings,
	}
}

// GatewayConfigService manages per-tenant gateway configurations.
type GatewayConfigService struct {
	repo     gatewayConfigRepository
	registry *gateway.Registry
	now      func() time.Time
}

func NewGatewayConfigService(repo gatewayConfigRepository, registry *gateway.Registry) *GatewayConfigService {
	return &GatewayConfigService{repo: repo, registry: registry, now: time.Now}
}

func (s *GatewayConfigService) Create(ctx context.Context, in GatewayConfigInput) (*entity.GatewayConfig, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}
	if err := s.check(in); err != nil {
		return nil, err
	}

	now := s.now()
	cfg := &entity.GatewayConfig{
		ClientID:      in.ClientID,
		GatewayID:     in.GatewayID,
		Provider:      in.Provider,
		Settings:      settingsOrEmpty(in.Settings),
		WebhookSecret: in.WebhookSecret,
		IsActive:      in.IsActive == nil || *in.IsActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, cfg); err != nil {
		if errors.Is(err, repository.ErrGatewayConfigAlreadyExists) {
			return nil, ErrGatewayConfigAlreadyExists
		}
		return nil, err
	}
	return cfg, nil
}

// Update replaces the stored configuration; omitted fields keep their value.
func (s *GatewayConfigService) Update(ctx context.Context, in GatewayConfigInput) (*entity.GatewayConfig, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.Find(ctx, in.ClientID, in.Provider)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrGatewayConfigNotFound
	}

	if in.GatewayID == "" {
		in.GatewayID = existing.GatewayID
	}
	if in.WebhookSecret == "" {
		in.WebhookSecret = existing.WebhookSecret
	}
	if in.Settings == nil {
		in.Settings = existing.Settings
	}
	if err := s.check(in); err != nil {
		return nil, err
	}

	existing.GatewayID = in.GatewayID
	existing.WebhookSecret = in.WebhookSecret
	existing.Settings = settingsOrEmpty(in.Settings)
	if in.IsActive != nil {
		existing.IsActive = *in.IsActive
	}
	existing.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, existing); err != nil {
		if errors.Is(err, repository.ErrGatewayConfigNotFound) {
			return nil, ErrGatewayConfigNotFound
		}
		return nil, err
	}
	return existing, nil
}

func (s *GatewayConfigService) Get(ctx context.Context, clientID, provider string) (*entity.GatewayConfig, error) {
	clientID = strings.TrimSpace(clientID)
	provider = strings.ToLower(strings.TrimSpace(provider))
	if clientID == "" || provider == "" {
		return nil, ErrInvalidRequest
	}

	cfg, err := s.repo.Find(ctx, clientID, provider)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrGatewayConfigNotFound
	}
	return cfg, nil
}

func (s *GatewayConfigService) List(ctx context.Context, clientID string) ([]*entity.GatewayConfig, error) {
	return s.repo.ListByClient(ctx, strings.TrimSpace(clientID))
}

func (s *GatewayConfigService) Delete(ctx context.Context, clientID, provider string) error {
	clientID = strings.TrimSpace(clientID)
	provider = strings.ToLower(strings.TrimSpace(provider))
	if clientID == "" || provider == "" {
		return ErrInvalidRequest
	}

	if err := s.repo.Delete(ctx, clientID, provider); err != nil {
		if errors.Is(err, repository.ErrGatewayConfigNotFound) {
			return ErrGatewayConfigNotFound
		}
		return err
	}
	return nil
}

// Validate checks a configuration without storing it.
func (s *GatewayConfigService) Validate(in GatewayConfigInput) gateway.ValidationResult {
	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	return s.registry.ValidateConfig(in.Provider, in.gatewayConfig().AsMap())
}

type GatewayType struct {
	Type        string
	DisplayName string
	Description string
	Required    []string
	Optional    []string
}

// Gateways lists the registered gateway types with their schema fields.
func (s *GatewayConfigService) Gateways() []GatewayType {
	types := s.registry.AvailableTypes()
	out := make([]GatewayType, 0, len(types))
	for _, t := range types {
		info, ok := s.registry.Info(t)
		if !ok {
			continue
		}
		item := GatewayType{Type: t, DisplayName: info.DisplayName, Description: info.Description}
		if schema, ok := s.registry.Validator().Schema(t); ok {
			item.Required = schema.Required
			item.Optional = schema.Optional
		}
		out = append(out, item)
	}
	return out
}

func (s *GatewayConfigService) normalize(in GatewayConfigInput) (GatewayConfigInput, error) {
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	in.GatewayID = strings.TrimSpace(in.GatewayID)
	in.WebhookSecret = strings.TrimSpace(in.WebhookSecret)
	if in.ClientID == "" || in.Provider == "" {
		return in, ErrInvalidRequest
	}
	if !s.registry.IsRegistered(in.Provider) {
		return in, fmt.Errorf("%w: %q (available: %s)", ErrProviderUnsupported, in.Provider, strings.Join(s.registry.AvailableTypes(), ", "))
	}
	return in, nil
}

func (s *GatewayConfigService) check(in GatewayConfigInput) error {
	result := s.registry.ValidateConfig(in.Provider, in.gatewayConfig().AsMap())
	if !result.IsValid {
		return &ConfigValidationError{Errors: result.Errors, Warnings: result.Warnings}
	}
	return nil
}

func settingsOrEmpty(settings map[string]any) map[string]any {
	if settings == nil {
		return map[string]any{}
	}
	return settings
}
