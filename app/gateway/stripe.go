package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	stripeType           = "stripe"
	stripeDefaultBaseURL = "https://api.stripe.com"
)

type StripeGateway struct {
	cfg              Config
	client           *http.Client
	toleranceSeconds int64
}

func NewStripeGateway(cfg Config, client *http.Client, toleranceSeconds int64) *StripeGateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if toleranceSeconds <= 0 {
		toleranceSeconds = 300
	}
	return &StripeGateway{cfg: cfg, client: client, toleranceSeconds: toleranceSeconds}
}

func (g *StripeGateway) Type() string {
	return stripeType
}

func (g *StripeGateway) SignatureHeader() string {
	return "Stripe-Signature"
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, input CustomerInput) (*Customer, error) {
	values := url.Values{}
	values.Set("name", input.Name)
	values.Set("email", input.Email)
	if input.Phone != "" {
		values.Set("phone", input.Phone)
	}
	values.Set("metadata[client_id]", g.cfg.ClientID)

	body, err := g.postForm(ctx, "/v1/customers", values)
	if err != nil {
		return nil, err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("stripe customer id missing")
	}
	return &Customer{ID: out.ID}, nil
}

func (g *StripeGateway) CreatePayment(ctx context.Context, input PaymentInput) (*Payment, error) {
	values := url.Values{}
	values.Set("amount", strconv.FormatInt(int64(math.Round(input.Value*100)), 10))
	values.Set("currency", "brl")
	values.Set("customer", input.CustomerID)
	values.Set("description", input.Description)
	values.Set("metadata[client_id]", g.cfg.ClientID)
	values.Set("metadata[gateway_id]", g.cfg.GatewayID)
	if input.DueDate != "" {
		values.Set("metadata[due_date]", input.DueDate)
	}

	body, err := g.postForm(ctx, "/v1/payment_intents", values)
	if err != nil {
		return nil, err
	}
	return g.parseIntent(body)
}

func (g *StripeGateway) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	body, err := g.request(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return nil, err
	}
	return g.parseIntent(body)
}

func (g *StripeGateway) CancelPayment(ctx context.Context, paymentID string) (*Payment, error) {
	body, err := g.postForm(ctx, "/v1/payment_intents/"+url.PathEscape(paymentID)+"/cancel", url.Values{})
	if err != nil {
		return nil, err
	}
	return g.parseIntent(body)
}

func (g *StripeGateway) ValidateWebhookSignature(rawBody []byte, signature, secret string) bool {
	return verifyStripeSignature(rawBody, signature, secret, g.toleranceSeconds, time.Now())
}

type stripeIntent struct {
	ID           string            `json:"id"`
	Object       string            `json:"object"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Customer     any               `json:"customer"`
	ReceiptEmail string            `json:"receipt_email"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
	Shipping     *struct {
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Address struct {
			Line1      string `json:"line1"`
			Line2      string `json:"line2"`
			City       string `json:"city"`
			State      string `json:"state"`
			PostalCode string `json:"postal_code"`
			Country    string `json:"country"`
		} `json:"address"`
	} `json:"shipping"`
	BillingDetails map[string]any `json:"billing_details"`
	PaymentIntent  any            `json:"payment_intent"`
}

func (g *StripeGateway) ProcessWebhook(payload []byte, _ http.Header) *WebhookResult {
	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return ignored(g.cfg, "error", "invalid stripe event payload")
	}
	if _, known := stripeEvents[event.Type]; !known {
		return ignored(g.cfg, event.Type, "stripe event type is not handled")
	}

	var object stripeIntent
	if err := json.Unmarshal(event.Data.Object, &object); err != nil || strings.TrimSpace(object.ID) == "" {
		return ignored(g.cfg, event.Type, "stripe event has no payment object")
	}

	paymentID := object.ID
	if object.Object == "charge" {
		if intentID := parseStringish(object.PaymentIntent); intentID != "" {
			paymentID = intentID
		}
	}

	status := object.Status
	if status == "" {
		status = stripeStatusFromEvent(event.Type)
	}

	result := &WebhookResult{
		Processed: true,
		EventType: event.Type,
		PaymentID: paymentID,
		OrderID:   object.Metadata["order_id"],
		NewStatus: status,
		ClientID:  g.cfg.ClientID,
		GatewayID: g.cfg.GatewayID,
		Amount:    object.Amount,
		Extra:     map[string]any{"stripe_event_id": event.ID},
	}
	if result.OrderID == "" {
		result.OrderID = ExtractOrderID(map[string]any{"description": object.Description})
	}
	if v := object.Metadata["client_id"]; v != "" {
		result.ClientID = v
	}

	customer := &CustomerInfo{Email: object.ReceiptEmail}
	if object.BillingDetails != nil {
		if info := ExtractCustomerInfo(map[string]any{"billing_details": object.BillingDetails}); info != nil {
			customer.Name, customer.Phone = info.Name, info.Phone
			if customer.Email == "" {
				customer.Email = info.Email
			}
		}
	}
	if s := object.Shipping; s != nil {
		if customer.Name == "" {
			customer.Name = s.Name
		}
		if customer.Phone == "" {
			customer.Phone = s.Phone
		}
		result.Shipping = &Address{
			Street:     s.Address.Line1,
			Complement: s.Address.Line2,
			City:       s.Address.City,
			State:      s.Address.State,
			ZipCode:    s.Address.PostalCode,
			Country:    s.Address.Country,
		}
		customer.Address = result.Shipping
	}
	result.Customer = customer
	result.Items = NormalizeItems(map[string]any{}, result.Amount)
	result.Fulfillable = result.Shipping.IsComplete()
	if !result.Fulfillable {
		result.FulfillmentNote = NotApplicableForEmail
	}
	return result
}

func stripeStatusFromEvent(eventType string) string {
	switch stripeEvents[eventType] {
	case EventPaymentPaid:
		return "succeeded"
	case EventPaymentFailed:
		return "unpaid"
	case EventPaymentCancelled, EventSubscriptionCancelled:
		return "canceled"
	default:
		return "processing"
	}
}

func (g *StripeGateway) parseIntent(body []byte) (*Payment, error) {
	var intent stripeIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, err
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, errors.New("stripe payment intent id missing")
	}
	return &Payment{
		ID:        intent.ID,
		Status:    intent.Status,
		ClientID:  g.cfg.ClientID,
		GatewayID: g.cfg.GatewayID,
		Value:     float64(intent.Amount) / 100,
	}, nil
}

func (g *StripeGateway) postForm(ctx context.Context, path string, values url.Values) ([]byte, error) {
	return g.request(ctx, http.MethodPost, path, values)
}

func (g *StripeGateway) request(ctx context.Context, method, path string, values url.Values) ([]byte, error) {
	secretKey := g.cfg.String("secretKey")
	if secretKey == "" {
		return nil, fmt.Errorf("%w: stripe secret key is not configured", ErrInvalidConfig)
	}
	baseURL := strings.TrimRight(g.cfg.String("apiUrl"), "/")
	if baseURL == "" {
		baseURL = stripeDefaultBaseURL
	}

	var reader io.Reader
	if values != nil {
		reader = strings.NewReader(values.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+secretKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if version := g.cfg.String("apiVersion"); version != "" {
		req.Header.Set("Stripe-Version", version)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("stripe request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
	}
	return body, nil
}

func verifyStripeSignature(payload []byte, signatureHeader string, webhookSecret string, toleranceSeconds int64, now time.Time) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(webhookSecret) == "" {
		return false
	}

	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range strings.Split(signatureHeader, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	nowUnix := now.Unix()
	if nowUnix-tsUnix > toleranceSeconds || tsUnix-nowUnix > toleranceSeconds {
		return false
	}

	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write([]byte(ts + "." + string(payload)))
	expected := mac.Sum(nil)

	for _, sig := range v1 {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}
	return false
}

func parseStringish(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if s, ok := t["id"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
