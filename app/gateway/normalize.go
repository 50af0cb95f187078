package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var assetStatuses = map[string]Status{
	"pending":                      StatusPending,
	"awaiting_payment":             StatusPending,
	"received_in_cash":             StatusPaid,
	"confirmed":                    StatusPaid,
	"received":                     StatusPaid,
	"paid":                         StatusPaid,
	"overdue":                      StatusExpired,
	"cancelled":                    StatusCancelled,
	"refunded":                     StatusRefunded,
	"received_in_cash_undone":      StatusCancelled,
	"chargeback_requested":         StatusCancelled,
	"chargeback_dispute":           StatusCancelled,
	"awaiting_chargeback_reversal": StatusCancelled,
	"dunning_requested":            StatusFailed,
	"dunning_received":             StatusFailed,
	"awaiting_risk_analysis":       StatusPending,
}

var mercadoPagoStatuses = map[string]Status{
	"pending":      StatusPending,
	"approved":     StatusPaid,
	"authorized":   StatusPaid,
	"in_process":   StatusPending,
	"in_mediation": StatusPending,
	"rejected":     StatusFailed,
	"cancelled":    StatusCancelled,
	"refunded":     StatusRefunded,
	"charged_back": StatusCancelled,
}

var stripeStatuses = map[string]Status{
	"incomplete":              StatusPending,
	"incomplete_expired":      StatusExpired,
	"trialing":                StatusPending,
	"active":                  StatusPaid,
	"past_due":                StatusExpired,
	"canceled":                StatusCancelled,
	"unpaid":                  StatusFailed,
	"requires_payment_method": StatusPending,
	"requires_confirmation":   StatusPending,
	"requires_action":         StatusPending,
	"processing":              StatusPending,
	"requires_capture":        StatusPending,
	"succeeded":               StatusPaid,
	"paid":                    StatusPaid,
}

var genericStatuses = map[string]Status{
	"pending":    StatusPending,
	"paid":       StatusPaid,
	"completed":  StatusPaid,
	"approved":   StatusPaid,
	"confirmed":  StatusPaid,
	"success":    StatusPaid,
	"successful": StatusPaid,
	"cancelled":  StatusCancelled,
	"canceled":   StatusCancelled,
	"failed":     StatusFailed,
	"rejected":   StatusFailed,
	"declined":   StatusFailed,
	"error":      StatusFailed,
	"expired":    StatusExpired,
	"timeout":    StatusExpired,
	"refunded":   StatusRefunded,
	"reversed":   StatusRefunded,
}

// NormalizePaymentStatus maps a provider status onto the canonical set.
// Unknown values map to pending.
func NormalizePaymentStatus(provider, raw string) Status {
	key := strings.ToLower(strings.TrimSpace(raw))
	var table map[string]Status
	switch normalizeType(provider) {
	case "asset":
		table = assetStatuses
	case "mercadopago":
		table = mercadoPagoStatuses
	case "stripe":
		table = stripeStatuses
	default:
		table = genericStatuses
	}
	if status, ok := table[key]; ok {
		return status
	}
	return StatusPending
}

// IsPaidLike reports whether a raw provider status means money was received.
func IsPaidLike(provider, raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "confirmed", "approved":
		return true
	}
	return NormalizePaymentStatus(provider, raw) == StatusPaid
}

var assetEvents = map[string]EventType{
	"payment_created":                      EventPaymentCreated,
	"payment_confirmed":                    EventPaymentConfirmed,
	"payment_received":                     EventPaymentPaid,
	"payment_overdue":                      EventPaymentExpired,
	"payment_deleted":                      EventPaymentCancelled,
	"payment_refunded":                     EventPaymentRefunded,
	"payment_received_in_cash_undone":      EventPaymentCancelled,
	"payment_chargeback_requested":         EventChargebackCreated,
	"payment_awaiting_chargeback_reversal": EventChargebackCreated,
	"transaction_created":                  EventTransactionCreated,
	"transaction_paid":                     EventTransactionPaid,
	"transaction_failed":                   EventTransactionFailed,
}

var mercadoPagoEvents = map[string]EventType{
	"payment":         EventPaymentCreated,
	"payment.created": EventPaymentCreated,
	"payment.updated": EventPaymentConfirmed,
	"merchant_order":  EventPaymentCreated,
	"plan":            EventSubscriptionCreated,
	"subscription":    EventSubscriptionCreated,
	"preapproval":     EventSubscriptionCreated,
	"invoice":         EventPaymentCreated,
}

var stripeEvents = map[string]EventType{
	"payment_intent.created":        EventPaymentCreated,
	"payment_intent.succeeded":      EventPaymentPaid,
	"payment_intent.payment_failed": EventPaymentFailed,
	"payment_intent.canceled":       EventPaymentCancelled,
	"charge.succeeded":              EventPaymentPaid,
	"charge.failed":                 EventPaymentFailed,
	"charge.dispute.created":        EventChargebackCreated,
	"invoice.payment_succeeded":     EventPaymentPaid,
	"invoice.payment_failed":        EventPaymentFailed,
	"customer.subscription.created": EventSubscriptionCreated,
	"customer.subscription.deleted": EventSubscriptionCancelled,
}

var shopifyEvents = map[string]EventType{
	"orders.paid":                EventPaymentConfirmed,
	"orders.fulfilled":           EventPaymentConfirmed,
	"orders.partially_fulfilled": EventPaymentConfirmed,
	"orders.cancelled":           EventPaymentCancelled,
}

var genericEvents = map[string]EventType{
	"created":   EventPaymentCreated,
	"paid":      EventPaymentPaid,
	"confirmed": EventPaymentConfirmed,
	"failed":    EventPaymentFailed,
	"cancelled": EventPaymentCancelled,
	"canceled":  EventPaymentCancelled,
	"refunded":  EventPaymentRefunded,
	"expired":   EventPaymentExpired,
}

// NormalizeWebhookEventType maps a provider event name onto the canonical set.
// Unknown values map to payment.created.
func NormalizeWebhookEventType(provider, raw string) EventType {
	key := strings.ToLower(strings.TrimSpace(raw))
	var table map[string]EventType
	switch normalizeType(provider) {
	case "asset":
		table = assetEvents
	case "mercadopago":
		table = mercadoPagoEvents
	case "stripe":
		table = stripeEvents
	case "shopify":
		table = shopifyEvents
		key = strings.ReplaceAll(key, "/", ".")
	default:
		table = genericEvents
	}
	if event, ok := table[key]; ok {
		return event
	}
	return EventPaymentCreated
}

var orderInDescription = regexp.MustCompile(`(?i)(?:pedido|order)[:\s#]*(\w+)`)

func ExtractOrderID(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	metadata := asMap(payload["metadata"])
	candidates := []any{
		payload["orderId"],
		payload["order_id"],
		payload["externalReference"],
		payload["external_reference"],
		metadata["orderId"],
		metadata["order_id"],
		payload["reference"],
		payload["reference_id"],
		payload["merchant_order_id"],
	}
	for _, c := range candidates {
		if s, ok := c.(string); ok && s != "" {
			return s
		}
	}
	if description, ok := payload["description"].(string); ok {
		if m := orderInDescription.FindStringSubmatch(description); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

// ExtractCustomerInfo reads the customer block, falling back to payer,
// billing_details and finally the payload itself.
func ExtractCustomerInfo(payload map[string]any) *CustomerInfo {
	if payload == nil {
		return nil
	}
	customer := asMap(payload["customer"])
	if customer == nil {
		customer = asMap(payload["payer"])
	}
	if customer == nil {
		customer = asMap(payload["billing_details"])
	}
	if customer == nil {
		customer = payload
	}

	document := firstString(customer, "document", "cpf", "cnpj", "tax_id")
	if doc := asMap(customer["document"]); doc != nil {
		if number := stringOf(doc["number"]); number != "" {
			document = number
		}
	}

	info := &CustomerInfo{
		Name:     firstString(customer, "name", "first_name", "full_name", "nome"),
		Email:    firstString(customer, "email", "email_address"),
		Phone:    firstString(customer, "phone", "phone_number", "mobile_phone", "telefone"),
		Document: document,
	}
	if addr := asMap(customer["address"]); addr != nil {
		info.Address = NormalizeAddress(addr)
	}
	return info
}

// ExtractPaymentAmount returns the first positive numeric amount field.
func ExtractPaymentAmount(payload map[string]any) float64 {
	for _, key := range []string{"amount", "value", "total", "total_amount", "transaction_amount", "amount_cents", "valor"} {
		if n, ok := payload[key].(float64); ok && n > 0 {
			return n
		}
	}
	return 0
}

type Unit string

const (
	UnitCents Unit = "cents"
	UnitReals Unit = "reals"
)

// ConvertAmount converts between cents and reals. Reals to cents rounds half
// away from zero.
func ConvertAmount(amount float64, from, to Unit) float64 {
	if from == to {
		return amount
	}
	switch {
	case from == UnitCents && to == UnitReals:
		return amount / 100
	case from == UnitReals && to == UnitCents:
		return math.Round(amount * 100)
	default:
		return amount
	}
}

type PayloadValidation struct {
	IsValid bool
	Errors  []string
}

func ValidateWebhookPayload(payload any) PayloadValidation {
	errs := make([]string, 0)
	m, ok := payload.(map[string]any)
	switch {
	case payload == nil:
		errs = append(errs, "payload must not be null")
	case !ok:
		errs = append(errs, "payload must be an object")
	}
	if m == nil || (!truthy(m["id"]) && !truthy(m["payment_id"]) && !truthy(m["transaction_id"])) {
		errs = append(errs, "payload must contain a payment identifier")
	}
	return PayloadValidation{IsValid: len(errs) == 0, Errors: errs}
}

// HasIdentifier reports whether a webhook body carries any identifier the
// pipeline can key on, at the root or under the usual provider envelopes.
func HasIdentifier(payload map[string]any) bool {
	if ValidateWebhookPayload(payload).IsValid {
		return true
	}
	for _, envelope := range []string{"payment", "data", "object"} {
		if inner := asMap(payload[envelope]); inner != nil && truthy(inner["id"]) {
			return true
		}
	}
	return false
}

// GenerateWebhookHash hashes the payload's key-sorted JSON encoding.
func GenerateWebhookHash(payload map[string]any) string {
	encoded, _ := json.Marshal(payload)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

var brPrinter = message.NewPrinter(language.BrazilianPortuguese)

// FormatCurrency formats an amount in cents for pt-BR display.
func FormatCurrency(cents int64, code string) string {
	if code == "" {
		code = "BRL"
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.BRL
	}
	symbol := brPrinter.Sprint(currency.Symbol(unit))
	return symbol + " " + brPrinter.Sprintf("%.2f", float64(cents)/100)
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func numberOf(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func firstNumber(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if n := numberOf(m[k]); n != 0 {
			return n
		}
	}
	return 0
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case float64:
		return t != 0
	case bool:
		return t
	default:
		return true
	}
}
