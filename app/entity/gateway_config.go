package entity

import "time"

type GatewayConfig struct {
	ID uint64

	ClientID  string
	GatewayID string
	Provider  string

	Settings      map[string]any
	WebhookSecret string
	IsActive      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
