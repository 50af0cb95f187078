package types

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type RequestPaymentRequest struct {
	OrderID     string `json:"order_id" validate:"required,max=64"`
	GatewayType string `json:"gateway_type" validate:"required,max=50"`
	DueDate     string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Description string `json:"description" validate:"max=500"`
}

func NewRequestPaymentRequestFromContext(ctx echo.Context) (*RequestPaymentRequest, error) {
	var body RequestPaymentRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.OrderID = strings.TrimSpace(ctx.Param("id"))
	body.GatewayType = strings.ToLower(strings.TrimSpace(body.GatewayType))
	body.DueDate = strings.TrimSpace(body.DueDate)
	body.Description = strings.TrimSpace(body.Description)
	return &body, nil
}

func (r *RequestPaymentRequest) Validate() error {
	return validateStruct(r)
}

type GetOrderRequest struct {
	ID string `json:"id" validate:"required,max=64"`
}

func NewGetOrderRequestFromContext(ctx echo.Context) (*GetOrderRequest, error) {
	return &GetOrderRequest{ID: strings.TrimSpace(ctx.Param("id"))}, nil
}

func (r *GetOrderRequest) Validate() error {
	return validateStruct(r)
}

type ListOrdersRequest struct {
	ClientID      string `json:"client_id" validate:"max=100"`
	Status        string `json:"status" validate:"omitempty,oneof=pending processing paid shipped cancelled"`
	PaymentStatus string `json:"payment_status" validate:"max=50"`
	Limit         int32  `json:"limit" validate:"gte=1,lte=100"`
	Offset        int32  `json:"offset" validate:"gte=0"`
}

func NewListOrdersRequestFromContext(ctx echo.Context) (*ListOrdersRequest, error) {
	req := &ListOrdersRequest{
		ClientID:      strings.TrimSpace(ctx.QueryParam("client_id")),
		Status:        strings.ToLower(strings.TrimSpace(ctx.QueryParam("status"))),
		PaymentStatus: strings.TrimSpace(ctx.QueryParam("payment_status")),
		Limit:         50,
		Offset:        0,
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListOrdersRequest) Validate() error {
	return validateStruct(r)
}

type Order struct {
	ID                 string      `json:"id"`
	ClientID           string      `json:"client_id"`
	GatewayID          string      `json:"gateway_id,omitempty"`
	AmountCents        int64       `json:"amount_cents"`
	PaymentID          string      `json:"payment_id,omitempty"`
	PaymentStatus      string      `json:"payment_status,omitempty"`
	Status             string      `json:"status"`
	CustomerName       string      `json:"customer_name"`
	CustomerEmail      string      `json:"customer_email,omitempty"`
	City               string      `json:"city,omitempty"`
	HasShippingAddress bool        `json:"has_shipping_address"`
	TrackingCode       string      `json:"tracking_code,omitempty"`
	FulfillmentNote    string      `json:"fulfillment_note,omitempty"`
	EmailSent          bool        `json:"email_sent"`
	Items              []OrderItem `json:"items,omitempty"`
	CreatedAt          string      `json:"created_at"`
	UpdatedAt          string      `json:"updated_at"`
}

type OrderItem struct {
	Name        string `json:"name"`
	SKU         string `json:"sku,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	WeightGrams int    `json:"weight_grams,omitempty"`
}

type OrderEnvelopeResponse struct {
	Order *Order `json:"order"`
}

type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
}

type OfferConfig struct {
	OfferName     string `json:"oferta_nome"`
	Discount      string `json:"desconto,omitempty"`
	OfferLink     string `json:"link_da_oferta,omitempty" validate:"omitempty,url"`
	Description   string `json:"descricao_adicional,omitempty"`
	EmailTemplate string `json:"email_template,omitempty"`
	Subject       string `json:"subject,omitempty" validate:"max=500"`
	DomainID      string `json:"domain_id,omitempty"`
}

type LeadOfferRequest struct {
	ClientID    string          `json:"client_id" validate:"required,max=100"`
	FileID      string          `json:"file_id" validate:"max=100"`
	Leads       json.RawMessage `json:"leads" validate:"required"`
	OfferConfig OfferConfig     `json:"offer_config"`
}

func NewLeadOfferRequestFromContext(ctx echo.Context) (*LeadOfferRequest, error) {
	var body LeadOfferRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.ClientID = strings.TrimSpace(body.ClientID)
	body.FileID = strings.TrimSpace(body.FileID)
	return &body, nil
}

func (r *LeadOfferRequest) Validate() error {
	return validateStruct(r)
}

type LeadOfferAcceptedResponse struct {
	JobID      string `json:"job_id"`
	ValidLeads int    `json:"valid_leads"`
}
