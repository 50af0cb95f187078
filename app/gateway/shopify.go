package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
)

const shopifyType = "shopify"

// ShopifyGateway only consumes order webhooks; payments are handled by the
// store itself.
type ShopifyGateway struct {
	cfg Config
}

func NewShopifyGateway(cfg Config) *ShopifyGateway {
	return &ShopifyGateway{cfg: cfg}
}

func (g *ShopifyGateway) Type() string {
	return shopifyType
}

func (g *ShopifyGateway) SignatureHeader() string {
	return "X-Shopify-Hmac-Sha256"
}

func (g *ShopifyGateway) CreateCustomer(context.Context, CustomerInput) (*Customer, error) {
	return nil, unsupported(shopifyType, "create customer")
}

func (g *ShopifyGateway) CreatePayment(context.Context, PaymentInput) (*Payment, error) {
	return nil, unsupported(shopifyType, "create payment")
}

// ValidateWebhookSignature checks the base64 HMAC-SHA256 Shopify sends.
func (g *ShopifyGateway) ValidateWebhookSignature(rawBody []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	received, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	return hmac.Equal(received, mac.Sum(nil))
}

type shopifyAddress struct {
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	Province string `json:"province"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
	Phone    string `json:"phone"`
}

type shopifyOrder struct {
	ID                json.Number `json:"id"`
	Email             string      `json:"email"`
	Name              string      `json:"name"`
	TotalPrice        string      `json:"total_price"`
	Currency          string      `json:"currency"`
	FinancialStatus   string      `json:"financial_status"`
	FulfillmentStatus *string     `json:"fulfillment_status"`
	OrderNumber       int64       `json:"order_number"`
	CreatedAt         string      `json:"created_at"`
	Customer          *struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
	} `json:"customer"`
	ShippingAddress *shopifyAddress `json:"shipping_address"`
	LineItems       []struct {
		Title        string      `json:"title"`
		Quantity     int         `json:"quantity"`
		Price        string      `json:"price"`
		SKU          string      `json:"sku"`
		VariantTitle string      `json:"variant_title"`
		Vendor       string      `json:"vendor"`
		ProductID    json.Number `json:"product_id"`
		Grams        int         `json:"grams"`
	} `json:"line_items"`
}

func (g *ShopifyGateway) ProcessWebhook(payload []byte, headers http.Header) *WebhookResult {
	var shape map[string]any
	if err := json.Unmarshal(payload, &shape); err != nil || !isShopifyPaidOrder(shape) {
		return ignored(g.cfg, "orders/ignored", "webhook is not an orders/paid event")
	}

	var order shopifyOrder
	if err := json.Unmarshal(payload, &order); err != nil {
		return ignored(g.cfg, "error", "invalid shopify order payload: "+err.Error())
	}

	id := order.ID.String()
	total, _ := strconv.ParseFloat(strings.TrimSpace(order.TotalPrice), 64)
	amount := int64(math.Round(total * 100))

	customer := &CustomerInfo{Name: "Cliente Shopify", Email: order.Email}
	if order.Customer != nil {
		if name := strings.TrimSpace(order.Customer.FirstName + " " + order.Customer.LastName); name != "" {
			customer.Name = name
		}
		customer.Phone = order.Customer.Phone
	}

	items := make([]Item, 0, len(order.LineItems))
	for _, li := range order.LineItems {
		price, _ := strconv.ParseFloat(strings.TrimSpace(li.Price), 64)
		items = append(items, Item{
			Name:        li.Title,
			Description: li.VariantTitle,
			SKU:         li.SKU,
			Brand:       li.Vendor,
			Quantity:    li.Quantity,
			UnitPrice:   int64(math.Round(price * 100)),
			WeightGrams: li.Grams,
		})
	}

	result := &WebhookResult{
		Processed: true,
		EventType: "orders/paid",
		PaymentID: id,
		OrderID:   id,
		NewStatus: string(StatusPaid),
		ClientID:  g.cfg.ClientID,
		GatewayID: g.cfg.GatewayID,
		Customer:  customer,
		Items:     items,
		Amount:    amount,
		Extra: map[string]any{
			"shopify_order_number":     order.OrderNumber,
			"shopify_financial_status": order.FinancialStatus,
			"currency":                 order.Currency,
			"created_at":               order.CreatedAt,
		},
	}
	if order.FulfillmentStatus != nil {
		result.Extra["shopify_fulfillment_status"] = *order.FulfillmentStatus
	}
	if topic := headers.Get("X-Shopify-Topic"); topic != "" {
		result.Extra["shopify_topic"] = topic
	}

	if a := order.ShippingAddress; a != nil {
		result.Shipping = &Address{
			Street:     a.Address1,
			Complement: a.Address2,
			City:       a.City,
			State:      a.Province,
			ZipCode:    a.Zip,
			Country:    a.Country,
		}
		customer.Address = result.Shipping
		if customer.Phone == "" {
			customer.Phone = a.Phone
		}
	}

	result.Fulfillable = result.Shipping.IsComplete()
	if !result.Fulfillable {
		result.EventType = "orders/no_address"
		result.FulfillmentNote = NotApplicableForEmail
	}
	return result
}

func isShopifyPaidOrder(payload map[string]any) bool {
	if payload == nil {
		return false
	}
	if _, ok := payload["id"].(float64); !ok {
		return false
	}
	if _, ok := payload["email"].(string); !ok {
		return false
	}
	if _, ok := payload["total_price"].(string); !ok {
		return false
	}
	if payload["financial_status"] != "paid" {
		return false
	}
	_, ok := payload["line_items"].([]any)
	return ok
}
