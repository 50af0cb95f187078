package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
)

type fakeGateway struct {
	cfg Config
}

func (f *fakeGateway) Type() string { return "fake" }

func (f *fakeGateway) CreateCustomer(context.Context, CustomerInput) (*Customer, error) {
	return &Customer{ID: "cus"}, nil
}

func (f *fakeGateway) CreatePayment(context.Context, PaymentInput) (*Payment, error) {
	return &Payment{ID: "pay"}, nil
}

func (f *fakeGateway) ProcessWebhook([]byte, http.Header) *WebhookResult {
	return &WebhookResult{Processed: true, PaymentID: "p", NewStatus: "paid"}
}

func TestDefaultRegistryTypes(t *testing.T) {
	r := NewDefaultRegistry(nil, HTTPOptions{})
	types := r.AvailableTypes()
	if strings.Join(types, ",") != "asset,shopify,stripe" {
		t.Fatalf("unexpected types: %v", types)
	}
	if !r.IsRegistered("ASSET") {
		t.Fatal("expected lookups to be case insensitive")
	}
}

func TestCreateGatewayUnknownTypeListsRegistered(t *testing.T) {
	r := NewDefaultRegistry(nil, HTTPOptions{})
	_, err := r.CreateGateway("paypal", Config{})
	if !errors.Is(err, ErrGatewayNotRegistered) {
		t.Fatalf("expected ErrGatewayNotRegistered, got %v", err)
	}
	for _, name := range []string{"asset", "shopify", "stripe"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("expected error to list %s: %v", name, err)
		}
	}
}

func TestRegisterLastWriteWinsAndRegistersSchema(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("Fake", Info{DisplayName: "first", Constructor: func(cfg Config) (PaymentGateway, error) {
		return nil, errors.New("should be replaced")
	}})
	r.Register("fake", Info{
		DisplayName: "second",
		Constructor: func(cfg Config) (PaymentGateway, error) { return &fakeGateway{cfg: cfg}, nil },
		Schema:      &Schema{Required: []string{"token"}},
	})

	g, err := r.CreateGateway("FAKE", Config{ClientID: "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.(*fakeGateway).cfg.Type != "fake" {
		t.Fatalf("expected config type to be filled, got %+v", g.(*fakeGateway).cfg)
	}
	info, ok := r.Info("fake")
	if !ok || info.DisplayName != "second" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if r.ValidateConfig("fake", map[string]any{}).IsValid {
		t.Fatal("expected registered schema to be enforced")
	}
	if r.ValidateConfig("nope", map[string]any{"clientId": "c", "gatewayId": "g"}).IsValid {
		t.Fatal("expected unregistered type to be invalid")
	}
}

func TestCreateGatewayBuildsAdapters(t *testing.T) {
	r := NewDefaultRegistry(nil, HTTPOptions{})
	g, err := r.CreateGateway("shopify", Config{ClientID: "c", GatewayID: "g"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Type() != "shopify" {
		t.Fatalf("unexpected gateway type: %s", g.Type())
	}
	asset, err := r.CreateGateway("asset", Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Supports(asset, CapabilityGetPayment) || !Supports(asset, CapabilityCancelPayment) {
		t.Fatal("asset must advertise fetch and cancel")
	}
}
