package entity

import "time"

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusPaid       = "paid"
	OrderStatusShipped    = "shipped"
	OrderStatusCancelled  = "cancelled"
)

const DefaultCustomerName = "Cliente"

type Order struct {
	ID        string
	ClientID  string
	GatewayID string
	CreatedBy string

	AmountCents   int64
	PaymentID     *string
	PaymentStatus string

	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	CustomerDocument string
	City             string
	ShippingAddress  *string

	TrackingCode *string
	Status       string

	HasShippingAddress bool
	FulfillmentNote    *string
	EmailSent          bool
	EmailSentAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	ID      uint64
	OrderID string

	Name        string
	Description string
	SKU         string
	Brand       string
	Category    string
	Quantity    int
	UnitPrice   int64
	WeightGrams int

	CreatedAt time.Time
}
