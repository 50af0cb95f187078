package types

import (
	"errors"
	"io"
	"strings"

	"github.com/labstack/echo/v4"
)

type GatewayConfigRequest struct {
	ClientID      string         `json:"client_id" validate:"required,max=100"`
	Provider      string         `json:"provider" validate:"required,max=50"`
	GatewayID     string         `json:"gateway_id" validate:"max=100"`
	WebhookSecret string         `json:"webhook_secret" validate:"max=255"`
	Settings      map[string]any `json:"settings"`
	IsActive      *bool          `json:"is_active"`
}

func NewCreateGatewayConfigRequestFromContext(ctx echo.Context) (*GatewayConfigRequest, error) {
	var body GatewayConfigRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.trim()
	return &body, nil
}

// NewUpdateGatewayConfigRequestFromContext takes the tenant and provider from
// the path; the body carries only the fields being changed.
func NewUpdateGatewayConfigRequestFromContext(ctx echo.Context) (*GatewayConfigRequest, error) {
	var body GatewayConfigRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.ClientID = ctx.Param("client_id")
	body.Provider = ctx.Param("provider")
	body.trim()
	return &body, nil
}

func (r *GatewayConfigRequest) trim() {
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
	r.GatewayID = strings.TrimSpace(r.GatewayID)
	r.WebhookSecret = strings.TrimSpace(r.WebhookSecret)
}

func (r *GatewayConfigRequest) Validate() error {
	return validateStruct(r)
}

type GatewayConfigKeyRequest struct {
	ClientID string `json:"client_id" validate:"required"`
	Provider string `json:"provider" validate:"required"`
}

func NewGatewayConfigKeyRequestFromContext(ctx echo.Context) *GatewayConfigKeyRequest {
	return &GatewayConfigKeyRequest{
		ClientID: strings.TrimSpace(ctx.Param("client_id")),
		Provider: strings.ToLower(strings.TrimSpace(ctx.Param("provider"))),
	}
}

func (r *GatewayConfigKeyRequest) Validate() error {
	return validateStruct(r)
}

type ListGatewayConfigsRequest struct {
	ClientID string `json:"client_id" validate:"max=100"`
}

func NewListGatewayConfigsRequestFromContext(ctx echo.Context) *ListGatewayConfigsRequest {
	return &ListGatewayConfigsRequest{ClientID: strings.TrimSpace(ctx.QueryParam("client_id"))}
}

func (r *ListGatewayConfigsRequest) Validate() error {
	return validateStruct(r)
}

type GatewayConfig struct {
	ID            uint64         `json:"id"`
	ClientID      string         `json:"client_id"`
	Provider      string         `json:"provider"`
	GatewayID     string         `json:"gateway_id"`
	Settings      map[string]any `json:"settings"`
	WebhookSecret string         `json:"webhook_secret"`
	IsActive      bool           `json:"is_active"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

type GatewayConfigEnvelopeResponse struct {
	GatewayConfig *GatewayConfig `json:"gateway_config"`
}

type ListGatewayConfigsResponse struct {
	GatewayConfigs []*GatewayConfig `json:"gateway_configs"`
}

type GatewayType struct {
	Type        string   `json:"type"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Required    []string `json:"required"`
	Optional    []string `json:"optional"`
}

type ListGatewaysResponse struct {
	Gateways []GatewayType `json:"gateways"`
}

type ValidationResultResponse struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}
