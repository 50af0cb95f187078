package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-logistics/app/campaign"
	"github.com/vibast-solutions/ms-go-logistics/app/leads"
	"github.com/vibast-solutions/ms-go-logistics/app/service"
	"github.com/vibast-solutions/ms-go-logistics/app/types"
	"github.com/vibast-solutions/ms-go-logistics/app/worker"
)

func StartCampaignInputFromRequest(req *types.StartCampaignRequest) (service.StartCampaignInput, error) {
	list, err := leads.Decode(req.Leads)
	if err != nil {
		return service.StartCampaignInput{}, err
	}

	cfg := req.CampaignConfig
	return service.StartCampaignInput{
		CampaignID:         req.CampaignID,
		UserID:             req.UserID,
		Leads:              list,
		BatchSize:          req.BatchSize,
		RateLimitPerSecond: req.RateLimitPerSecond,
		Priority:           req.Priority,
		Config: worker.CampaignConfig{
			Name:            cfg.Name,
			SubjectTemplate: cfg.SubjectTemplate,
			HTMLTemplate:    cfg.HTMLTemplate,
			OfferName:       cfg.OfferName,
			Discount:        cfg.Discount,
			OfferLink:       cfg.OfferLink,
			Description:     cfg.Description,
			DomainID:        cfg.DomainID,
		},
	}, nil
}

func CampaignStartedToResponse(item *service.CampaignStarted) *types.CampaignStartedResponse {
	return &types.CampaignStartedResponse{
		CampaignID:               item.CampaignID,
		JobID:                    item.JobID,
		TotalLeads:               item.TotalLeads,
		TotalBatches:             item.TotalBatches,
		EstimatedDurationSeconds: int64(item.EstimatedDuration / time.Second),
		EstimatedCompletionTime:  item.EstimatedCompletion.UTC(),
	}
}

func SnapshotToResponse(item *campaign.Snapshot) *types.CampaignProgress {
	if item == nil {
		return nil
	}

	return &types.CampaignProgress{
		CampaignID:          item.CampaignID,
		Status:              item.Status,
		ProgressPercent:     item.ProgressPercent,
		SentCount:           item.SentCount,
		FailedCount:         item.FailedCount,
		TotalLeads:          item.TotalLeads,
		CurrentBatch:        item.CurrentBatch,
		TotalBatches:        item.TotalBatches,
		EstimatedCompletion: item.EstimatedCompletion,
		StartedAt:           item.StartedAt,
		ErrorMessage:        item.ErrorMessage,
	}
}

func LeadOfferInputFromRequest(req *types.LeadOfferRequest) (service.LeadOfferInput, error) {
	list, err := leads.Decode(req.Leads)
	if err != nil {
		return service.LeadOfferInput{}, err
	}

	offer := req.OfferConfig
	return service.LeadOfferInput{
		ClientID: req.ClientID,
		FileID:   req.FileID,
		Leads:    list,
		Offer: worker.OfferConfig{
			OfferName:     offer.OfferName,
			Discount:      offer.Discount,
			OfferLink:     offer.OfferLink,
			Description:   offer.Description,
			EmailTemplate: offer.EmailTemplate,
			Subject:       offer.Subject,
			DomainID:      offer.DomainID,
		},
	}, nil
}

func WebhookOutcomeToResponse(item *service.WebhookOutcome) *types.WebhookResponse {
	return &types.WebhookResponse{
		Received:  item.Received,
		Processed: item.Processed,
		Duplicate: item.Duplicate,
		EventType: item.EventType,
		PaymentID: item.PaymentID,
		NewStatus: item.NewStatus,
		Error:     item.Error,
		JobID:     item.JobID,
	}
}
