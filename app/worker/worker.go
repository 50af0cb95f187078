package worker

import "github.com/vibast-solutions/ms-go-logistics/app/queue"

// Set holds one handler per queue.
type Set struct {
	PaymentCreation   *PaymentCreationWorker
	Tracking          *TrackingWorker
	WebhookEffects    *WebhookEffectsWorker
	TrackingEmail     *TrackingEmailWorker
	LeadProcessing    *LeadProcessingWorker
	LeadEmail         *LeadEmailWorker
	MassEmailCampaign *MassEmailCampaignWorker
	MassEmailBatch    *MassEmailBatchWorker
}

func (s Set) Handlers() map[string]queue.Handler {
	return map[string]queue.Handler{
		queue.PaymentCreationQueue:       s.PaymentCreation,
		queue.TrackingQueue:              s.Tracking,
		queue.PaymentWebhookEffectsQueue: s.WebhookEffects,
		queue.TrackingEmailQueue:         s.TrackingEmail,
		queue.LeadProcessingQueue:        s.LeadProcessing,
		queue.LeadEmailQueue:             s.LeadEmail,
		queue.MassEmailCampaignQueue:     s.MassEmailCampaign,
		queue.MassEmailBatchQueue:        s.MassEmailBatch,
	}
}

// Concurrency is the default number of parallel handlers per queue.
var Concurrency = map[string]int{
	queue.PaymentCreationQueue:       5,
	queue.TrackingQueue:              5,
	queue.PaymentWebhookEffectsQueue: 5,
	queue.TrackingEmailQueue:         5,
	queue.LeadProcessingQueue:        2,
	queue.LeadEmailQueue:             4,
	queue.MassEmailCampaignQueue:     1,
	queue.MassEmailBatchQueue:        4,
}
