package entity

import "time"

const (
	CampaignStatusQueued     = "queued"
	CampaignStatusProcessing = "processing"
	CampaignStatusPaused     = "paused"
	CampaignStatusCompleted  = "completed"
	CampaignStatusFailed     = "failed"
	CampaignStatusCancelled  = "cancelled"
)

// CampaignProgress is the persisted state of one mass-email campaign run.
type CampaignProgress struct {
	CampaignID string
	UserID     string

	TotalLeads   int
	BatchSize    int
	TotalBatches int
	CurrentBatch int
	SentCount    int
	FailedCount  int

	ProgressPercent float64
	Status          string

	StartedAt           *time.Time
	EstimatedCompletion *time.Time
	CompletedAt         *time.Time
	ErrorMessage        *string

	UpdatedAt time.Time
}

func (p *CampaignProgress) IsTerminal() bool {
	switch p.Status {
	case CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusCancelled:
		return true
	}
	return false
}

type LeadCampaign struct {
	ID            string
	UserID        string
	Name          string
	FilePath      string
	TotalLeads    int
	BatchSize     int
	RatePerSecond int
	// ConfigJSON holds the campaign content used to rebuild the job on resume.
	ConfigJSON string
	CreatedAt  time.Time
}

type Lead struct {
	Email    string            `json:"email"`
	Nome     string            `json:"nome,omitempty"`
	CPF      string            `json:"cpf,omitempty"`
	Telefone string            `json:"telefone,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}
