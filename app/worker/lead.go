package worker

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/factory"
	"github.com/vibast-solutions/ms-go-logistics/app/leads"
	"github.com/vibast-solutions/ms-go-logistics/app/mail"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
	"github.com/vibast-solutions/ms-go-logistics/app/ratelimit"
)

// LeadProcessingWorker fans an uploaded lead list out into one lead-email
// job per unique valid address.
type LeadProcessingWorker struct {
	queue  Enqueuer
	logger logrus.FieldLogger
}

func NewLeadProcessingWorker(enqueuer Enqueuer) *LeadProcessingWorker {
	return &LeadProcessingWorker{
		queue:  enqueuer,
		logger: factory.NewModuleLogger("lead-processing-worker"),
	}
}

func LeadEmailJobID(clientID, email string) string {
	return "lead-email:" + clientID + ":" + strings.ToLower(strings.TrimSpace(email))
}

func (w *LeadProcessingWorker) Handle(ctx context.Context, job *queue.Job) error {
	var p LeadProcessingPayload
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(invalidPayload(err))
	}
	if strings.TrimSpace(p.ClientID) == "" {
		return queue.Permanent(invalidPayload(errors.New("client_id is required")))
	}

	valid := leads.Clean(p.Leads)
	for _, lead := range valid {
		payload := LeadEmailPayload{ClientID: p.ClientID, Lead: lead, OfferConfig: p.OfferConfig}
		if _, err := w.queue.Enqueue(ctx, queue.LeadEmailQueue, payload,
			queue.WithJobID(LeadEmailJobID(p.ClientID, lead.Email)),
		); err != nil {
			return err
		}
	}

	w.logger.WithFields(logrus.Fields{
		"client_id": p.ClientID,
		"file_id":   p.FileID,
		"received":  len(p.Leads),
		"enqueued":  len(valid),
	}).Info("leads_processed")
	return nil
}

// LeadEmailWorker sends one personalized offer, gated by the shared limiter.
type LeadEmailWorker struct {
	sender     mail.Sender
	limiter    ratelimit.Limiter
	identities mail.Identities
	logger     logrus.FieldLogger
}

func NewLeadEmailWorker(sender mail.Sender, limiter ratelimit.Limiter, identities mail.Identities) *LeadEmailWorker {
	return &LeadEmailWorker{
		sender:     sender,
		limiter:    limiter,
		identities: identities,
		logger:     factory.NewModuleLogger("lead-email-worker"),
	}
}

func (w *LeadEmailWorker) Handle(ctx context.Context, job *queue.Job) error {
	var p LeadEmailPayload
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(invalidPayload(err))
	}
	if !leads.ValidEmail(p.Lead.Email) {
		return queue.Permanent(invalidPayload(errors.New("lead email is invalid")))
	}

	identity := w.identities.ForDomain(p.OfferConfig.DomainID)
	subject, html, err := renderOffer(p.Lead, p.OfferConfig.content(), identity.FromName)
	if err != nil {
		return queue.Permanent(err)
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := w.sender.Send(ctx, mail.Message{
		From:    identity.From(),
		To:      []string{p.Lead.Email},
		ReplyTo: identity.ReplyTo,
		Subject: subject,
		HTML:    html,
	}); err != nil {
		if errors.Is(err, mail.ErrInvalidMessage) {
			return queue.Permanent(err)
		}
		return err
	}
	return nil
}
