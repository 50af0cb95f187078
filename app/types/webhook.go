package types

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type WebhookRequest struct {
	Provider string      `json:"provider" validate:"required"`
	ClientID string      `json:"client_id"`
	RawBody  []byte      `json:"-"`
	Headers  http.Header `json:"-"`
}

// NewWebhookRequestFromContext keeps the body byte-for-byte so signatures
// can be checked against it. maxBytes <= 0 means unlimited.
func NewWebhookRequestFromContext(ctx echo.Context, maxBytes int64) (*WebhookRequest, error) {
	var reader io.Reader = ctx.Request().Body
	if maxBytes > 0 {
		reader = io.LimitReader(reader, maxBytes+1)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	return &WebhookRequest{
		Provider: strings.ToLower(strings.TrimSpace(ctx.Param("provider"))),
		ClientID: strings.TrimSpace(ctx.QueryParam("client_id")),
		RawBody:  raw,
		Headers:  ctx.Request().Header.Clone(),
	}, nil
}

func (r *WebhookRequest) Validate() error {
	return validateStruct(r)
}

type WebhookResponse struct {
	Received  bool   `json:"received"`
	Processed bool   `json:"processed"`
	Duplicate bool   `json:"duplicate,omitempty"`
	EventType string `json:"event_type,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
	Error     string `json:"error,omitempty"`
	JobID     string `json:"job_id,omitempty"`
}
