package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/campaign"
	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/factory"
	"github.com/vibast-solutions/ms-go-logistics/app/leads"
	"github.com/vibast-solutions/ms-go-logistics/app/mail"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
	"github.com/vibast-solutions/ms-go-logistics/app/ratelimit"
)

const (
	DefaultBatchSize     = 50
	DefaultRatePerSecond = 90
	DefaultBatchRetries  = 3
)

type campaignTracker interface {
	Start(ctx context.Context, in campaign.StartInput) (*campaign.Snapshot, error)
	Increment(ctx context.Context, campaignID string, sent, failed, batchNumber int) (*campaign.Snapshot, error)
	SetStatus(ctx context.Context, campaignID, status string, errorMessage *string) (*campaign.Snapshot, error)
	Fail(ctx context.Context, campaignID string, cause error) (*campaign.Snapshot, error)
	MarkEnqueued(ctx context.Context, campaignID string, batches int) error
	Status(ctx context.Context, campaignID string) (string, error)
	Snapshot(ctx context.Context, campaignID string) (*campaign.Snapshot, error)
}

type leadCampaignStore interface {
	FindByID(ctx context.Context, id string) (*entity.LeadCampaign, error)
}

// BatchDelay staggers batch n so batches reach the limiter roughly in order.
func BatchDelay(ratePerSecond, batchNumber int) time.Duration {
	if ratePerSecond <= 0 {
		ratePerSecond = DefaultRatePerSecond
	}
	return time.Duration(1000/ratePerSecond) * time.Millisecond * time.Duration(batchNumber)
}

func BatchID(campaignID string, batchNumber int) string {
	return fmt.Sprintf("%s-batch-%d", campaignID, batchNumber)
}

// MassEmailCampaignWorker splits a campaign's lead list into batch jobs.
type MassEmailCampaignWorker struct {
	tracker    campaignTracker
	campaigns  leadCampaignStore
	source     leads.Source
	queue      Enqueuer
	maxRetries int
	logger     logrus.FieldLogger
}

func NewMassEmailCampaignWorker(tracker campaignTracker, campaigns leadCampaignStore, source leads.Source, enqueuer Enqueuer, maxRetries int) *MassEmailCampaignWorker {
	if maxRetries <= 0 {
		maxRetries = DefaultBatchRetries
	}
	return &MassEmailCampaignWorker{
		tracker:    tracker,
		campaigns:  campaigns,
		source:     source,
		queue:      enqueuer,
		maxRetries: maxRetries,
		logger:     factory.NewModuleLogger("mass-email-campaign-worker"),
	}
}

func (w *MassEmailCampaignWorker) Handle(ctx context.Context, job *queue.Job) error {
	var p MassEmailCampaignJob
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(invalidPayload(err))
	}
	if strings.TrimSpace(p.CampaignID) == "" {
		return queue.Permanent(invalidPayload(errors.New("campaign_id is required")))
	}
	if p.BatchSize <= 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.RateLimitPerSecond <= 0 {
		p.RateLimitPerSecond = DefaultRatePerSecond
	}
	logger := w.logger.WithField("campaign_id", p.CampaignID)

	list, err := w.loadLeads(ctx, p.CampaignID)
	if err != nil {
		w.fail(ctx, logger, p.CampaignID, err)
		return queue.Permanent(err)
	}
	total := len(list)

	if p.ResumeFrom == 0 {
		current, err := w.tracker.Snapshot(ctx, p.CampaignID)
		if err != nil {
			return err
		}
		if current != nil && (current.Status == entity.CampaignStatusPaused || current.Status == entity.CampaignStatusCancelled) {
			logger.WithField("status", current.Status).Info("campaign_not_started")
			return nil
		}
		if _, err := w.tracker.Start(ctx, campaign.StartInput{
			CampaignID:    p.CampaignID,
			UserID:        p.UserID,
			TotalLeads:    total,
			BatchSize:     p.BatchSize,
			RatePerSecond: p.RateLimitPerSecond,
		}); err != nil {
			return err
		}
	}
	if total == 0 {
		_, err := w.tracker.SetStatus(ctx, p.CampaignID, entity.CampaignStatusCompleted, nil)
		return err
	}

	totalBatches := campaign.TotalBatches(total, p.BatchSize)
	for n := p.ResumeFrom + 1; n <= totalBatches; n++ {
		status, err := w.tracker.Status(ctx, p.CampaignID)
		if err != nil {
			return err
		}
		if status == entity.CampaignStatusPaused || status == entity.CampaignStatusCancelled {
			if err := w.tracker.MarkEnqueued(ctx, p.CampaignID, n-1); err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{"status": status, "enqueued_batches": n - 1}).Info("campaign_enqueue_stopped")
			return nil
		}

		start := (n - 1) * p.BatchSize
		end := min(start+p.BatchSize, total)
		batch := MassEmailBatchJob{
			CampaignID:     p.CampaignID,
			BatchID:        BatchID(p.CampaignID, n),
			BatchNumber:    n,
			TotalBatches:   totalBatches,
			Leads:          list[start:end],
			CampaignConfig: p.CampaignConfig,
			RateLimit:      p.RateLimitPerSecond,
			MaxRetries:     w.maxRetries,
		}
		if _, err := w.queue.Enqueue(ctx, queue.MassEmailBatchQueue, batch,
			queue.WithJobID(batch.BatchID),
			queue.WithMaxAttempts(w.maxRetries),
			queue.WithDelay(BatchDelay(p.RateLimitPerSecond, n-p.ResumeFrom)),
		); err != nil {
			w.fail(ctx, logger, p.CampaignID, err)
			return err
		}
	}

	if err := w.tracker.MarkEnqueued(ctx, p.CampaignID, totalBatches); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"total_leads": total, "total_batches": totalBatches}).Info("campaign_batches_enqueued")
	return nil
}

func (w *MassEmailCampaignWorker) loadLeads(ctx context.Context, campaignID string) ([]entity.Lead, error) {
	lc, err := w.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if lc == nil {
		return nil, ErrCampaignNotFound
	}
	list, err := w.source.Load(ctx, lc.FilePath)
	if err != nil {
		return nil, err
	}
	return leads.Clean(list), nil
}

func (w *MassEmailCampaignWorker) fail(ctx context.Context, logger logrus.FieldLogger, campaignID string, cause error) {
	logger.WithError(cause).Error("campaign_failed")
	if _, err := w.tracker.Fail(ctx, campaignID, cause); err != nil {
		logger.WithError(err).Warn("campaign_fail_status_not_saved")
	}
}

// MassEmailBatchWorker sends one batch of a campaign through the shared
// limiter and records the outcome.
type MassEmailBatchWorker struct {
	tracker    campaignTracker
	sender     mail.Sender
	limiter    ratelimit.Limiter
	identities mail.Identities
	logger     logrus.FieldLogger
}

func NewMassEmailBatchWorker(tracker campaignTracker, sender mail.Sender, limiter ratelimit.Limiter, identities mail.Identities) *MassEmailBatchWorker {
	return &MassEmailBatchWorker{
		tracker:    tracker,
		sender:     sender,
		limiter:    limiter,
		identities: identities,
		logger:     factory.NewModuleLogger("mass-email-batch-worker"),
	}
}

func (w *MassEmailBatchWorker) Handle(ctx context.Context, job *queue.Job) error {
	var p MassEmailBatchJob
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(invalidPayload(err))
	}
	logger := w.logger.WithFields(logrus.Fields{
		"campaign_id":  p.CampaignID,
		"batch_number": p.BatchNumber,
		"attempt":      job.Attempt,
	})

	status, err := w.tracker.Status(ctx, p.CampaignID)
	if err != nil {
		return err
	}
	if status == entity.CampaignStatusCancelled {
		logger.Info("batch_skipped_campaign_cancelled")
		return nil
	}

	identity := w.identities.ForDomain(p.CampaignConfig.DomainID)
	content := p.CampaignConfig.content()

	sent, failed := 0, 0
	var batchErr error
	for i, lead := range p.Leads {
		if err := w.limiter.Wait(ctx); err != nil {
			failed += len(p.Leads) - i
			batchErr = err
			break
		}
		if err := w.send(ctx, identity, lead, content); err != nil {
			failed++
			logger.WithError(err).WithField("email", lead.Email).Warn("campaign_email_failed")
			continue
		}
		sent++
	}

	if _, err := w.tracker.Increment(ctx, p.CampaignID, sent, failed, p.BatchNumber); err != nil {
		return errors.Join(batchErr, err)
	}
	logger.WithFields(logrus.Fields{"sent": sent, "failed": failed}).Info("batch_processed")
	return batchErr
}

func (w *MassEmailBatchWorker) send(ctx context.Context, identity mail.Identity, lead entity.Lead, content offerContent) error {
	subject, html, err := renderOffer(lead, content, identity.FromName)
	if err != nil {
		return err
	}
	_, err = w.sender.Send(ctx, mail.Message{
		From:    identity.From(),
		To:      []string{lead.Email},
		ReplyTo: identity.ReplyTo,
		Subject: subject,
		HTML:    html,
	})
	return err
}
