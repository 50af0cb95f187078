package campaign

import (
	"math"
	"time"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
)

// Snapshot is the progress view pushed to subscribers.
type Snapshot struct {
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

func SnapshotFrom(p *entity.CampaignProgress) Snapshot {
	s := Snapshot{
		CampaignID:          p.CampaignID,
		Status:              p.Status,
		ProgressPercent:     p.ProgressPercent,
		SentCount:           p.SentCount,
		FailedCount:         p.FailedCount,
		TotalLeads:          p.TotalLeads,
		CurrentBatch:        p.CurrentBatch,
		TotalBatches:        p.TotalBatches,
		EstimatedCompletion: p.EstimatedCompletion,
		StartedAt:           p.StartedAt,
	}
	if p.ErrorMessage != nil {
		s.ErrorMessage = *p.ErrorMessage
	}
	return s
}

// IsTerminal reports whether no further updates will follow.
func (s Snapshot) IsTerminal() bool {
	switch s.Status {
	case entity.CampaignStatusCompleted, entity.CampaignStatusFailed, entity.CampaignStatusCancelled:
		return true
	}
	return false
}

// Supersedes reports whether s is at least as recent as other. Counters only
// grow and a terminal status is final.
func (s Snapshot) Supersedes(other Snapshot) bool {
	if s.IsTerminal() != other.IsTerminal() {
		return s.IsTerminal()
	}
	return s.SentCount+s.FailedCount >= other.SentCount+other.FailedCount
}

// Parallelism is the number of batch workers the throughput estimate
// assumes.
const Parallelism = 4

// EstimateDuration is ceil(totalLeads / min(rate, batchSize*Parallelism))
// seconds.
func EstimateDuration(totalLeads, ratePerSecond, batchSize int) time.Duration {
	if totalLeads <= 0 {
		return 0
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 90
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	throughput := ratePerSecond
	if capacity := batchSize * Parallelism; capacity < throughput {
		throughput = capacity
	}
	seconds := math.Ceil(float64(totalLeads) / float64(throughput))
	return time.Duration(seconds) * time.Second
}

func TotalBatches(totalLeads, batchSize int) int {
	if totalLeads <= 0 || batchSize <= 0 {
		return 0
	}
	return (totalLeads + batchSize - 1) / batchSize
}
