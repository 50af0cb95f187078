package queue

import (
	"encoding/json"
	"time"
)

const (
	TrackingQueue              = "tracking"
	PaymentCreationQueue       = "payment-creation"
	PaymentWebhookEffectsQueue = "payment-webhook-effects"
	TrackingEmailQueue         = "tracking-email"
	MassEmailCampaignQueue     = "mass-email-campaign"
	MassEmailBatchQueue        = "mass-email-batch"
	LeadProcessingQueue        = "lead-processing"
	LeadEmailQueue             = "lead-email"
)

// Queues lists every queue the workers consume.
var Queues = []string{
	TrackingQueue,
	PaymentCreationQueue,
	PaymentWebhookEffectsQueue,
	TrackingEmailQueue,
	MassEmailCampaignQueue,
	MassEmailBatchQueue,
	LeadProcessingQueue,
	LeadEmailQueue,
}

const DefaultMaxAttempts = 3

type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	State       State           `json:"state"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	RunAt       *time.Time      `json:"run_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

func (j *Job) markActive(now time.Time) {
	j.State = StateActive
	j.Attempt++
	j.StartedAt = &now
	j.RunAt = nil
}

func (j *Job) markCompleted(now time.Time) {
	j.State = StateCompleted
	j.FinishedAt = &now
}

func (j *Job) markFailed(now time.Time, cause error) {
	j.State = StateFailed
	j.FinishedAt = &now
	if cause != nil {
		j.LastError = cause.Error()
	}
}

func (j *Job) markDelayed(runAt time.Time, cause error) {
	j.State = StateDelayed
	j.RunAt = &runAt
	if cause != nil {
		j.LastError = cause.Error()
	}
}

func (j *Job) canRetry(cause error) bool {
	return !IsPermanent(cause) && j.Attempt < j.MaxAttempts
}
