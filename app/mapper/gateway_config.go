package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/gateway"
	"github.com/vibast-solutions/ms-go-logistics/app/service"
	"github.com/vibast-solutions/ms-go-logistics/app/types"
)

// secretKeys are settings never echoed back in full.
var secretKeys = map[string]struct{}{
	"apiKey":      {},
	"secretKey":   {},
	"accessToken": {},
}

func GatewayConfigToResponse(item *entity.GatewayConfig) *types.GatewayConfig {
	if item == nil {
		return nil
	}

	return &types.GatewayConfig{
		ID:            item.ID,
		ClientID:      item.ClientID,
		Provider:      item.Provider,
		GatewayID:     item.GatewayID,
		Settings:      maskSettings(item.Settings),
		WebhookSecret: maskSecret(item.WebhookSecret),
		IsActive:      item.IsActive,
		CreatedAt:     item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func GatewayConfigsToResponse(items []*entity.GatewayConfig) []*types.GatewayConfig {
	result := make([]*types.GatewayConfig, 0, len(items))
	for _, item := range items {
		result = append(result, GatewayConfigToResponse(item))
	}
	return result
}

func GatewayConfigInputFromRequest(req *types.GatewayConfigRequest) service.GatewayConfigInput {
	return service.GatewayConfigInput{
		ClientID:      req.ClientID,
		Provider:      req.Provider,
		GatewayID:     req.GatewayID,
		WebhookSecret: req.WebhookSecret,
		Settings:      cloneSettings(req.Settings),
		IsActive:      req.IsActive,
	}
}

func GatewayTypesToResponse(items []service.GatewayType) []types.GatewayType {
	result := make([]types.GatewayType, 0, len(items))
	for _, item := range items {
		result = append(result, types.GatewayType{
			Type:        item.Type,
			DisplayName: item.DisplayName,
			Description: item.Description,
			Required:    nonNil(item.Required),
			Optional:    nonNil(item.Optional),
		})
	}
	return result
}

func ValidationResultToResponse(result gateway.ValidationResult) *types.ValidationResultResponse {
	return &types.ValidationResultResponse{
		IsValid:  result.IsValid,
		Errors:   nonNil(result.Errors),
		Warnings: nonNil(result.Warnings),
	}
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

func maskSettings(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		if _, secret := secretKeys[k]; secret {
			if s, ok := v.(string); ok {
				dst[k] = maskSecret(s)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

func cloneSettings(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
