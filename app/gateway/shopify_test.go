package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"
)

const shopifyPaidOrder = `{
	"id": 820982911946154508,
	"email": "jon@example.com",
	"name": "#1001",
	"total_price": "59.90",
	"currency": "BRL",
	"financial_status": "paid",
	"fulfillment_status": null,
	"order_number": 1001,
	"customer": {"first_name": "Jon", "last_name": "Snow", "phone": "+5581999999999"},
	"shipping_address": {"address1": "Rua das Flores 12", "city": "Olinda", "province": "PE", "zip": "53000-000", "country": "Brazil"},
	"line_items": [{"title": "Caneca", "quantity": 1, "price": "59.90", "sku": "CAN-1", "grams": 300, "product_id": 1}]
}`

func TestShopifyProcessWebhookPaidOrder(t *testing.T) {
	g := NewShopifyGateway(Config{ClientID: "client-1", GatewayID: "gw-1"})
	result := g.ProcessWebhook([]byte(shopifyPaidOrder), http.Header{"X-Shopify-Topic": []string{"orders/paid"}})

	if !result.Processed || result.EventType != "orders/paid" || result.NewStatus != "paid" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.PaymentID != "820982911946154508" || result.OrderID != result.PaymentID {
		t.Fatalf("unexpected ids: %s/%s", result.PaymentID, result.OrderID)
	}
	if result.Amount != 5990 || len(result.Items) != 1 || result.Items[0].UnitPrice != 5990 {
		t.Fatalf("unexpected amounts: %+v", result)
	}
	if !result.Fulfillable || result.Customer.Name != "Jon Snow" {
		t.Fatalf("unexpected customer data: %+v", result.Customer)
	}
}

func TestShopifyProcessWebhookIgnoresUnpaidOrders(t *testing.T) {
	g := NewShopifyGateway(Config{ClientID: "client-1"})
	payload := []byte(`{"id": 1, "email": "a@b.c", "total_price": "10.00", "financial_status": "pending", "line_items": []}`)

	result := g.ProcessWebhook(payload, http.Header{})
	if result.Processed || result.EventType != "orders/ignored" || result.Error == "" {
		t.Fatalf("expected ignored result, got %+v", result)
	}
}

func TestShopifyProcessWebhookWithoutAddressIsMarked(t *testing.T) {
	g := NewShopifyGateway(Config{ClientID: "client-1"})
	payload := []byte(`{"id": 2, "email": "a@b.c", "total_price": "10.00", "financial_status": "paid", "line_items": []}`)

	result := g.ProcessWebhook(payload, http.Header{})
	if !result.Processed || result.Fulfillable {
		t.Fatalf("expected processed but unfulfillable result, got %+v", result)
	}
	if result.EventType != "orders/no_address" || result.FulfillmentNote != NotApplicableForEmail {
		t.Fatalf("unexpected marker: %+v", result)
	}
}

func TestShopifyValidateWebhookSignature(t *testing.T) {
	g := NewShopifyGateway(Config{})
	body := []byte(shopifyPaidOrder)
	secret := "shpss_secret"

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !g.ValidateWebhookSignature(body, signature, secret) {
		t.Fatal("expected signature to validate")
	}
	mutated := append([]byte(nil), body...)
	mutated[10] ^= 0x01
	if g.ValidateWebhookSignature(mutated, signature, secret) {
		t.Fatal("expected mutated payload to fail")
	}
	if g.ValidateWebhookSignature(body, signature, "") {
		t.Fatal("expected empty secret to fail")
	}
}

func TestShopifyPaymentsAreUnsupported(t *testing.T) {
	g := NewShopifyGateway(Config{})
	_, err := g.CreatePayment(context.Background(), PaymentInput{})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	var unsupportedErr *UnsupportedError
	if !errors.As(err, &unsupportedErr) || unsupportedErr.Gateway != "shopify" {
		t.Fatalf("expected UnsupportedError, got %v", err)
	}
	if Supports(g, CapabilityGetPayment) || Supports(g, CapabilityCancelPayment) {
		t.Fatal("shopify must not advertise payment capabilities")
	}
	if !Supports(g, CapabilitySignatureCheck) {
		t.Fatal("shopify must advertise signature checks")
	}
}
