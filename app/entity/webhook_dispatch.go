package entity

import "time"

type WebhookDispatch struct {
	ID uint64

	DedupKey  string
	Provider  string
	PaymentID string
	NewStatus string
	ClientID  string

	CreatedAt time.Time
}
