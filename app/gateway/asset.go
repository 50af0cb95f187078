package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const assetType = "asset"

// orderNamespace is the fixed UUIDv5 namespace for order ids derived from
// provider identifiers.
var orderNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

var assetDescriptionOrder = regexp.MustCompile(`Pedido #(\w+)`)

type AssetGateway struct {
	cfg    Config
	client *http.Client
}

func NewAssetGateway(cfg Config, client *http.Client) *AssetGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &AssetGateway{cfg: cfg, client: client}
}

func (g *AssetGateway) Type() string {
	return assetType
}

func (g *AssetGateway) SignatureHeader() string {
	return "asaas-access-token"
}

func (g *AssetGateway) CreateCustomer(ctx context.Context, input CustomerInput) (*Customer, error) {
	body := map[string]any{
		"name":              input.Name,
		"email":             input.Email,
		"mobilePhone":       input.Phone,
		"externalReference": g.cfg.ClientID,
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := g.do(ctx, http.MethodPost, "/customers", body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("asset customer id missing")
	}
	return &Customer{ID: out.ID}, nil
}

func (g *AssetGateway) CreatePayment(ctx context.Context, input PaymentInput) (*Payment, error) {
	metadata, _ := json.Marshal(map[string]string{
		"client_id":  g.cfg.ClientID,
		"gateway_id": g.cfg.GatewayID,
	})
	body := map[string]any{
		"customer":          input.CustomerID,
		"billingType":       "PIX",
		"value":             input.Value,
		"dueDate":           input.DueDate,
		"description":       input.Description,
		"externalReference": "client-" + g.cfg.ClientID,
		"metadata":          string(metadata),
	}
	var raw map[string]any
	if err := g.do(ctx, http.MethodPost, "/payments", body, &raw); err != nil {
		return nil, err
	}
	payment := g.toPayment(raw)
	if payment.ID == "" {
		return nil, errors.New("asset payment id missing")
	}
	return payment, nil
}

func (g *AssetGateway) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var raw map[string]any
	if err := g.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &raw); err != nil {
		return nil, err
	}
	return g.toPayment(raw), nil
}

func (g *AssetGateway) CancelPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var raw map[string]any
	if err := g.do(ctx, http.MethodDelete, "/payments/"+url.PathEscape(paymentID), nil, &raw); err != nil {
		return nil, err
	}
	payment := g.toPayment(raw)
	if payment.ID == "" {
		payment.ID = paymentID
	}
	if payment.Status == "" {
		payment.Status = "CANCELLED"
	}
	return payment, nil
}

// ValidateWebhookSignature accepts either the static access token or a hex
// HMAC-SHA256 of the raw body.
func (g *AssetGateway) ValidateWebhookSignature(rawBody []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(signature), []byte(secret)) == 1 {
		return true
	}
	candidate, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	return hmac.Equal(candidate, mac.Sum(nil))
}

func (g *AssetGateway) ProcessWebhook(payload []byte, _ http.Header) *WebhookResult {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil || body == nil {
		return ignored(g.cfg, "error", "invalid asset webhook payload")
	}

	switch {
	case body["event"] != nil && asMap(body["payment"]) != nil:
		return g.paymentEvent(body)
	case body["type"] == "transaction" && asMap(body["data"]) != nil:
		return g.transactionEvent(body)
	case asMap(body["data"]) != nil && truthy(asMap(body["data"])["status"]):
		return g.statusEvent(body)
	default:
		return ignored(g.cfg, "unknown", "invalid asset webhook payload structure")
	}
}

func (g *AssetGateway) paymentEvent(body map[string]any) *WebhookResult {
	payment := asMap(body["payment"])

	orderID := stringOf(payment["externalReference"])
	if orderID == "" {
		if m := assetDescriptionOrder.FindStringSubmatch(stringOf(payment["description"])); len(m) > 1 {
			orderID = m[1]
		}
	}

	clientID, gatewayID := g.cfg.ClientID, g.cfg.GatewayID
	if raw, ok := payment["metadata"].(string); ok {
		var metadata map[string]any
		if json.Unmarshal([]byte(raw), &metadata) == nil {
			if v := stringOf(metadata["client_id"]); v != "" {
				clientID = v
			}
			if v := stringOf(metadata["gateway_id"]); v != "" {
				gatewayID = v
			}
		}
	}

	amount := int64(ConvertAmount(ExtractPaymentAmount(payment), UnitReals, UnitCents))
	result := &WebhookResult{
		Processed: true,
		EventType: stringOf(body["event"]),
		PaymentID: stringOf(payment["id"]),
		OrderID:   orderID,
		NewStatus: stringOf(payment["status"]),
		ClientID:  clientID,
		GatewayID: gatewayID,
		Amount:    amount,
		Items:     NormalizeItems(payment, amount),
	}
	return finishAssetResult(result, payment)
}

func (g *AssetGateway) transactionEvent(body map[string]any) *WebhookResult {
	data := asMap(body["data"])
	status := stringOf(data["status"])

	orderID := stringOf(data["externalRef"])
	if orderID == "" {
		if secureID := stringOf(data["secureId"]); secureID != "" {
			orderID = derivedOrderID(secureID)
		}
	}
	if orderID == "" {
		if objectID := stringOf(body["objectId"]); objectID != "" {
			orderID = derivedOrderID(objectID)
		}
	}

	result := &WebhookResult{
		Processed: true,
		EventType: "TRANSACTION_" + upperOr(status, "UNKNOWN"),
		PaymentID: stringOf(data["id"]),
		OrderID:   orderID,
		NewStatus: status,
		ClientID:  g.cfg.ClientID,
		GatewayID: g.cfg.GatewayID,
		Amount:    int64(ExtractPaymentAmount(data)),
		Extra:     map[string]any{},
	}
	if splits := asSlice(data["splits"]); len(splits) > 0 {
		if first := asMap(splits[0]); first != nil {
			result.SellerID = stringOf(first["recipientId"])
			result.Extra["seller_amount"] = first["amount"]
			result.Extra["seller_net_amount"] = first["netAmount"]
		}
	}
	if v := stringOf(data["companyId"]); v != "" {
		result.Extra["company_id"] = v
	}
	if v := stringOf(data["origin"]); v != "" {
		result.Extra["origin"] = v
	}
	result.Items = NormalizeItems(data, result.Amount)
	return finishAssetResult(result, data)
}

func (g *AssetGateway) statusEvent(body map[string]any) *WebhookResult {
	data := asMap(body["data"])
	status := stringOf(data["status"])

	paymentID := stringOf(data["id"])
	if paymentID == "" {
		paymentID = "unknown"
	}

	orderID := stringOf(data["externalRef"])
	if orderID == "" {
		orderID = stringOf(data["externalReference"])
	}
	if orderID == "" {
		for _, seed := range []string{stringOf(data["secureId"]), stringOf(body["objectId"]), stringOf(body["id"])} {
			if seed != "" {
				orderID = derivedOrderID(seed)
				break
			}
		}
	}

	result := &WebhookResult{
		Processed: true,
		EventType: "PAYMENT_" + upperOr(status, "UNKNOWN"),
		PaymentID: paymentID,
		OrderID:   orderID,
		NewStatus: status,
		ClientID:  g.cfg.ClientID,
		GatewayID: g.cfg.GatewayID,
		Amount:    int64(ExtractPaymentAmount(data)),
	}
	result.Items = NormalizeItems(data, result.Amount)
	return finishAssetResult(result, data)
}

func finishAssetResult(result *WebhookResult, data map[string]any) *WebhookResult {
	if customer := asMap(data["customer"]); customer != nil {
		result.Customer = ExtractCustomerInfo(map[string]any{"customer": customer})
	}
	if shipping := asMap(data["shipping"]); shipping != nil {
		if addr := asMap(shipping["address"]); addr != nil {
			shipping = addr
		}
		result.Shipping = NormalizeAddress(shipping)
	}
	if result.Shipping == nil && result.Customer != nil && result.Customer.Address != nil {
		result.Shipping = result.Customer.Address
	}
	result.Fulfillable = result.Shipping.IsComplete()
	if !result.Fulfillable {
		result.FulfillmentNote = NotApplicableForEmail
	}
	return result
}

func derivedOrderID(seed string) string {
	return uuid.NewSHA1(orderNamespace, []byte(seed)).String()
}

func upperOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return strings.ToUpper(s)
}

func (g *AssetGateway) toPayment(raw map[string]any) *Payment {
	return &Payment{
		ID:         stringOf(raw["id"]),
		Status:     stringOf(raw["status"]),
		ClientID:   g.cfg.ClientID,
		GatewayID:  g.cfg.GatewayID,
		Value:      numberOf(raw["value"]),
		InvoiceURL: stringOf(raw["invoiceUrl"]),
		PixQRCode:  stringOf(raw["pixQrCode"]),
		Raw:        raw,
	}
}

func (g *AssetGateway) do(ctx context.Context, method, path string, body any, out any) error {
	baseURL := strings.TrimRight(g.cfg.String("apiUrl"), "/")
	if baseURL == "" {
		return fmt.Errorf("%w: asset apiUrl is not configured", ErrInvalidConfig)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("access_token", g.cfg.String("apiKey"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("asset request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(respBody))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}
