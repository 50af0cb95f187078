package types

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

type CampaignConfig struct {
	Name            string `json:"name" validate:"max=255"`
	SubjectTemplate string `json:"subject_template" validate:"required,max=500"`
	HTMLTemplate    string `json:"html_template" validate:"required"`
	OfferName       string `json:"oferta_nome,omitempty"`
	Discount        string `json:"desconto,omitempty"`
	OfferLink       string `json:"link_da_oferta,omitempty" validate:"omitempty,url"`
	Description     string `json:"descricao_adicional,omitempty"`
	DomainID        string `json:"domain_id,omitempty"`
}

type StartCampaignRequest struct {
	CampaignID         string          `json:"campaign_id" validate:"max=64"`
	UserID             string          `json:"user_id" validate:"required,max=100"`
	Leads              json.RawMessage `json:"leads" validate:"required"`
	BatchSize          int             `json:"batch_size" validate:"gte=0,lte=1000"`
	RateLimitPerSecond int             `json:"rate_limit_per_second" validate:"gte=0,lte=1000"`
	Priority           int             `json:"priority"`
	CampaignConfig     CampaignConfig  `json:"campaign_config"`
}

func NewStartCampaignRequestFromContext(ctx echo.Context) (*StartCampaignRequest, error) {
	var body StartCampaignRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.CampaignID = strings.TrimSpace(body.CampaignID)
	body.UserID = strings.TrimSpace(body.UserID)
	if body.UserID == "" {
		body.UserID = strings.TrimSpace(ctx.Request().Header.Get("X-User-ID"))
	}
	return &body, nil
}

func (r *StartCampaignRequest) Validate() error {
	return validateStruct(r)
}

type CampaignIDRequest struct {
	CampaignID string `json:"id" validate:"required,max=64"`
}

func NewCampaignIDRequestFromContext(ctx echo.Context) *CampaignIDRequest {
	return &CampaignIDRequest{CampaignID: strings.TrimSpace(ctx.Param("id"))}
}

func (r *CampaignIDRequest) Validate() error {
	return validateStruct(r)
}

type CampaignETARequest struct {
	TotalLeads         int `json:"total_leads" validate:"gte=0"`
	RateLimitPerSecond int `json:"rate" validate:"gte=0"`
	BatchSize          int `json:"batch_size" validate:"gte=0"`
}

func NewCampaignETARequestFromContext(ctx echo.Context) (*CampaignETARequest, error) {
	req := &CampaignETARequest{}
	for _, field := range []struct {
		name string
		dest *int
	}{
		{"total_leads", &req.TotalLeads},
		{"rate", &req.RateLimitPerSecond},
		{"batch_size", &req.BatchSize},
	} {
		raw := strings.TrimSpace(ctx.QueryParam(field.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.New(field.name + " must be an integer")
		}
		*field.dest = n
	}
	return req, nil
}

func (r *CampaignETARequest) Validate() error {
	return validateStruct(r)
}

type CampaignProgress struct {
	CampaignID          string     `json:"campaign_id"`
	Status              string     `json:"status"`
	ProgressPercent     float64    `json:"progress_percent"`
	SentCount           int        `json:"sent_count"`
	FailedCount         int        `json:"failed_count"`
	TotalLeads          int        `json:"total_leads"`
	CurrentBatch        int        `json:"current_batch"`
	TotalBatches        int        `json:"total_batches"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	ErrorMessage        string     `json:"error_message,omitempty"`
}

type CampaignProgressResponse struct {
	Progress *CampaignProgress `json:"progress"`
}

type CampaignStartedResponse struct {
	CampaignID               string    `json:"campaign_id"`
	JobID                    string    `json:"job_id"`
	TotalLeads               int       `json:"total_leads"`
	TotalBatches             int       `json:"total_batches"`
	EstimatedDurationSeconds int64     `json:"estimated_duration_seconds"`
	EstimatedCompletionTime  time.Time `json:"estimated_completion_time"`
}

type CampaignETAResponse struct {
	TotalLeads               int    `json:"total_leads"`
	EstimatedDurationSeconds int64  `json:"estimated_duration_seconds"`
	EstimatedDuration        string `json:"estimated_duration"`
}
