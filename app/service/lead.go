package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/leads"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
	"github.com/vibast-solutions/ms-go-logistics/app/worker"
)

type LeadOfferInput struct {
	ClientID string
	FileID   string
	Leads    []entity.Lead
	Offer    worker.OfferConfig
}

// LeadOfferService hands an uploaded lead list to the lead-processing queue.
type LeadOfferService struct {
	queue jobEnqueuer
}

func NewLeadOfferService(enqueuer jobEnqueuer) *LeadOfferService {
	return &LeadOfferService{queue: enqueuer}
}

func (s *LeadOfferService) Submit(ctx context.Context, in LeadOfferInput) (string, int, error) {
	clientID := strings.TrimSpace(in.ClientID)
	if clientID == "" {
		return "", 0, fmt.Errorf("%w: client_id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(in.Offer.OfferName) == "" && strings.TrimSpace(in.Offer.EmailTemplate) == "" {
		return "", 0, fmt.Errorf("%w: oferta_nome or email_template is required", ErrInvalidRequest)
	}

	valid := len(leads.Clean(in.Leads))
	if valid == 0 {
		return "", 0, fmt.Errorf("%w: no lead with a valid email", ErrInvalidRequest)
	}

	opts := []queue.EnqueueOption{}
	if fileID := strings.TrimSpace(in.FileID); fileID != "" {
		opts = append(opts, queue.WithJobID("lead-processing:"+clientID+":"+fileID))
	}
	jobID, err := s.queue.Enqueue(ctx, queue.LeadProcessingQueue, worker.LeadProcessingPayload{
		ClientID:    clientID,
		FileID:      strings.TrimSpace(in.FileID),
		Leads:       in.Leads,
		OfferConfig: in.Offer,
	}, opts...)
	if err != nil {
		return "", 0, err
	}
	return jobID, valid, nil
}
