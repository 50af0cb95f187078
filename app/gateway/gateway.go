package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
	StatusRefunded  Status = "refunded"
)

type EventType string

const (
	EventPaymentCreated        EventType = "payment.created"
	EventPaymentConfirmed      EventType = "payment.confirmed"
	EventPaymentPaid           EventType = "payment.paid"
	EventPaymentFailed         EventType = "payment.failed"
	EventPaymentCancelled      EventType = "payment.cancelled"
	EventPaymentRefunded       EventType = "payment.refunded"
	EventPaymentExpired        EventType = "payment.expired"
	EventTransactionCreated    EventType = "transaction.created"
	EventTransactionPaid       EventType = "transaction.paid"
	EventTransactionFailed     EventType = "transaction.failed"
	EventSubscriptionCreated   EventType = "subscription.created"
	EventSubscriptionCancelled EventType = "subscription.cancelled"
	EventChargebackCreated     EventType = "chargeback.created"
)

const NotApplicableForEmail = "not_applicable_for_email"

// Config is the per-tenant configuration an adapter is built from.
type Config struct {
	Type          string
	ClientID      string
	GatewayID     string
	WebhookSecret string
	Settings      map[string]any
}

func (c Config) String(key string) string {
	if c.Settings == nil {
		return ""
	}
	switch v := c.Settings[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func (c Config) Bool(key string) bool {
	if c.Settings == nil {
		return false
	}
	switch v := c.Settings[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

// AsMap flattens the config into the shape schemas are written against.
func (c Config) AsMap() map[string]any {
	out := make(map[string]any, len(c.Settings)+3)
	for k, v := range c.Settings {
		out[k] = v
	}
	if c.ClientID != "" {
		out["clientId"] = c.ClientID
	}
	if c.GatewayID != "" {
		out["gatewayId"] = c.GatewayID
	}
	if c.WebhookSecret != "" {
		out["webhookSecret"] = c.WebhookSecret
	}
	return out
}

type CustomerInput struct {
	Name  string
	Email string
	Phone string
}

type Customer struct {
	ID string
}

type PaymentInput struct {
	CustomerID  string
	Value       float64
	DueDate     string
	Description string
}

type Payment struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	ClientID   string         `json:"client_id"`
	GatewayID  string         `json:"gateway_id"`
	Value      float64        `json:"value,omitempty"`
	InvoiceURL string         `json:"invoice_url,omitempty"`
	PixQRCode  string         `json:"pix_qr_code,omitempty"`
	Raw        map[string]any `json:"-"`
}

type CustomerInfo struct {
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Document string   `json:"document,omitempty"`
	Address  *Address `json:"address,omitempty"`
}

type Item struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SKU         string `json:"sku,omitempty"`
	Brand       string `json:"brand,omitempty"`
	Category    string `json:"category,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	WeightGrams int    `json:"weight_grams,omitempty"`
}

var digitalCategories = map[string]struct{}{
	"digital":     {},
	"ebook":       {},
	"curso":       {},
	"course":      {},
	"infoproduto": {},
	"software":    {},
}

func (i Item) IsPhysical() bool {
	_, digital := digitalCategories[strings.ToLower(strings.TrimSpace(i.Category))]
	return !digital
}

// WebhookResult is the provider-neutral outcome of parsing a webhook.
type WebhookResult struct {
	Processed       bool           `json:"processed"`
	EventType       string         `json:"event_type"`
	PaymentID       string         `json:"payment_id,omitempty"`
	OrderID         string         `json:"order_id,omitempty"`
	NewStatus       string         `json:"new_status,omitempty"`
	ClientID        string         `json:"client_id,omitempty"`
	GatewayID       string         `json:"gateway_id,omitempty"`
	Customer        *CustomerInfo  `json:"customer,omitempty"`
	Shipping        *Address       `json:"shipping,omitempty"`
	Items           []Item         `json:"items,omitempty"`
	Amount          int64          `json:"amount,omitempty"`
	SellerID        string         `json:"seller_id,omitempty"`
	Fulfillable     bool           `json:"fulfillable"`
	FulfillmentNote string         `json:"fulfillment_note,omitempty"`
	Error           string         `json:"error,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

func (r *WebhookResult) Validate() error {
	if r == nil {
		return errors.New("webhook result is nil")
	}
	if r.Processed {
		if strings.TrimSpace(r.PaymentID) == "" || strings.TrimSpace(r.NewStatus) == "" {
			return errors.New("processed webhook result requires payment id and status")
		}
		return nil
	}
	if strings.TrimSpace(r.Error) == "" {
		return errors.New("ignored webhook result requires an error")
	}
	return nil
}

func ignored(cfg Config, eventType, reason string) *WebhookResult {
	return &WebhookResult{
		Processed: false,
		EventType: eventType,
		ClientID:  cfg.ClientID,
		GatewayID: cfg.GatewayID,
		Error:     reason,
	}
}

type PaymentGateway interface {
	Type() string
	CreateCustomer(ctx context.Context, input CustomerInput) (*Customer, error)
	CreatePayment(ctx context.Context, input PaymentInput) (*Payment, error)
	ProcessWebhook(payload []byte, headers http.Header) *WebhookResult
}

type PaymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

type PaymentCanceller interface {
	CancelPayment(ctx context.Context, paymentID string) (*Payment, error)
}

type SignatureValidator interface {
	ValidateWebhookSignature(rawBody []byte, signature, secret string) bool
}

// SignatureHeaderProvider names the header an adapter reads its signature from.
type SignatureHeaderProvider interface {
	SignatureHeader() string
}

type Capability string

const (
	CapabilityGetPayment       Capability = "get_payment"
	CapabilityCancelPayment    Capability = "cancel_payment"
	CapabilitySignatureCheck   Capability = "signature_check"
	CapabilitySignatureHeaders Capability = "signature_header"
)

func Supports(g PaymentGateway, capability Capability) bool {
	switch capability {
	case CapabilityGetPayment:
		_, ok := g.(PaymentFetcher)
		return ok
	case CapabilityCancelPayment:
		_, ok := g.(PaymentCanceller)
		return ok
	case CapabilitySignatureCheck:
		_, ok := g.(SignatureValidator)
		return ok
	case CapabilitySignatureHeaders:
		_, ok := g.(SignatureHeaderProvider)
		return ok
	default:
		return false
	}
}

// SignatureHeaders lists the headers checked, in order, when an adapter does
// not name its own.
var SignatureHeaders = []string{
	"asaas-webhook-token",
	"x-signature",
	"x-asaas-signature",
	"authorization",
	"x-webhook-signature",
	"x-shopify-hmac-sha256",
}

// ExtractSignature returns the signature header value for g.
func ExtractSignature(g PaymentGateway, headers http.Header) string {
	if p, ok := g.(SignatureHeaderProvider); ok {
		if v := strings.TrimSpace(headers.Get(p.SignatureHeader())); v != "" {
			return v
		}
	}
	for _, name := range SignatureHeaders {
		if v := strings.TrimSpace(headers.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
