package worker

import (
	"time"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/gateway"
)

type CustomerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type PaymentCreationPayload struct {
	OrderID     string          `json:"order_id"`
	ClientID    string          `json:"client_id"`
	GatewayType string          `json:"gateway_type"`
	Amount      float64         `json:"amount"`
	DueDate     string          `json:"due_date,omitempty"`
	Customer    CustomerPayload `json:"customer"`
	Description string          `json:"description,omitempty"`

	// Set on the follow-up job that only retries the local order update.
	RemotePaymentID     string `json:"remote_payment_id,omitempty"`
	RemotePaymentStatus string `json:"remote_payment_status,omitempty"`
}

type TrackingPayload struct {
	OrderID  string `json:"order_id"`
	ClientID string `json:"client_id,omitempty"`
}

type WebhookEffectsPayload struct {
	Provider   string                `json:"provider"`
	Result     gateway.WebhookResult `json:"result"`
	ReceivedAt time.Time             `json:"received_at"`
}

type TrackingEmailPayload struct {
	OrderID string `json:"order_id"`
}

type OfferConfig struct {
	OfferName     string `json:"oferta_nome"`
	Discount      string `json:"desconto,omitempty"`
	OfferLink     string `json:"link_da_oferta,omitempty"`
	Description   string `json:"descricao_adicional,omitempty"`
	EmailTemplate string `json:"email_template,omitempty"`
	Subject       string `json:"subject,omitempty"`
	DomainID      string `json:"domain_id,omitempty"`
}

type LeadProcessingPayload struct {
	ClientID    string        `json:"client_id"`
	FileID      string        `json:"file_id,omitempty"`
	Leads       []entity.Lead `json:"leads"`
	OfferConfig OfferConfig   `json:"offer_config"`
}

type LeadEmailPayload struct {
	ClientID    string      `json:"client_id"`
	Lead        entity.Lead `json:"lead"`
	OfferConfig OfferConfig `json:"offer_config"`
}

type CampaignConfig struct {
	Name            string `json:"name"`
	SubjectTemplate string `json:"subject_template"`
	HTMLTemplate    string `json:"html_template"`
	OfferName       string `json:"oferta_nome,omitempty"`
	Discount        string `json:"desconto,omitempty"`
	OfferLink       string `json:"link_da_oferta,omitempty"`
	Description     string `json:"descricao_adicional,omitempty"`
	DomainID        string `json:"domain_id,omitempty"`
}

// MassEmailCampaignJob starts or resumes a campaign. RateLimitPerSecond only
// spaces out the batch enqueues and feeds the ETA; the sends themselves are
// gated by the process-wide limiter (CAMPAIGN_RATE_LIMIT_PER_SECOND), which
// caps all campaigns together.
type MassEmailCampaignJob struct {
	CampaignID         string         `json:"campaign_id"`
	UserID             string         `json:"user_id"`
	TotalLeads         int            `json:"total_leads"`
	BatchSize          int            `json:"batch_size"`
	RateLimitPerSecond int            `json:"rate_limit_per_second"`
	CampaignConfig     CampaignConfig `json:"campaign_config"`
	CreatedAt          time.Time      `json:"created_at"`
	Priority           int            `json:"priority,omitempty"`

	// ResumeFrom skips batches up to and including this number.
	ResumeFrom int `json:"resume_from,omitempty"`
}

type MassEmailBatchJob struct {
	CampaignID     string         `json:"campaign_id"`
	BatchID        string         `json:"batch_id"`
	BatchNumber    int            `json:"batch_number"`
	TotalBatches   int            `json:"total_batches"`
	Leads          []entity.Lead  `json:"leads"`
	CampaignConfig CampaignConfig `json:"campaign_config"`
	// RateLimit is informational; see MassEmailCampaignJob.
	RateLimit      int            `json:"rate_limit"`
	RetryCount     int            `json:"retry_count"`
	MaxRetries     int            `json:"max_retries"`
}
