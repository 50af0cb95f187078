package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/factory"
	"github.com/vibast-solutions/ms-go-logistics/app/gateway"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
	"github.com/vibast-solutions/ms-go-logistics/app/repository"
	"github.com/vibast-solutions/ms-go-logistics/app/worker"
	"github.com/vibast-solutions/ms-go-logistics/config"
)

type activeConfigReader interface {
	FindActive(ctx context.Context, clientID, provider string) (*entity.GatewayConfig, error)
}

type webhookDispatchRepository interface {
	Create(ctx context.Context, dispatch *entity.WebhookDispatch) error
	Delete(ctx context.Context, dedupKey string) error
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload any, opts ...queue.EnqueueOption) (string, error)
}

type WebhookRequest struct {
	Provider string
	ClientID string
	RawBody  []byte
	Headers  http.Header
}

type WebhookOutcome struct {
	Received  bool
	Processed bool
	Duplicate bool
	EventType string
	PaymentID string
	NewStatus string
	Error     string
	JobID     string
}

// WebhookService authenticates, normalizes and dispatches provider webhooks.
type WebhookService struct {
	registry      *gateway.Registry
	configs       activeConfigReader
	dispatches    webhookDispatchRepository
	queue         jobEnqueuer
	allowUnsigned bool
	defaultClient string
	maxBodyBytes  int64
	now           func() time.Time
	logger        logrus.FieldLogger
}

func NewWebhookService(
	registry *gateway.Registry,
	configs activeConfigReader,
	dispatches webhookDispatchRepository,
	enqueuer jobEnqueuer,
	cfg config.WebhooksConfig,
	production bool,
) *WebhookService {
	return &WebhookService{
		registry:      registry,
		configs:       configs,
		dispatches:    dispatches,
		queue:         enqueuer,
		allowUnsigned: cfg.AllowUnsigned && !production,
		defaultClient: strings.TrimSpace(cfg.DefaultClientID),
		maxBodyBytes:  cfg.MaxBodyBytes,
		now:           time.Now,
		logger:        factory.NewModuleLogger("webhook-service"),
	}
}

func (s *WebhookService) Handle(ctx context.Context, req WebhookRequest) (*WebhookOutcome, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" || !s.registry.IsRegistered(provider) {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrProviderUnsupported, req.Provider, strings.Join(s.registry.AvailableTypes(), ", "))
	}

	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = s.defaultClient
	}
	if clientID == "" {
		return nil, fmt.Errorf("%w: client_id is required", ErrInvalidRequest)
	}

	if s.maxBodyBytes > 0 && int64(len(req.RawBody)) > s.maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrInvalidWebhookPayload, s.maxBodyBytes)
	}

	stored, err := s.configs.FindActive(ctx, clientID, provider)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: client %s, provider %s", ErrGatewayConfigNotFound, clientID, provider)
	}

	g, err := s.registry.CreateGateway(provider, gateway.ConfigFromEntity(stored))
	if err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{"provider": provider, "client_id": clientID})
	if err := s.checkSignature(logger, g, stored, req); err != nil {
		return nil, err
	}

	var payload any
	if err := json.Unmarshal(req.RawBody, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookPayload, err)
	}
	if m, ok := payload.(map[string]any); !ok || !gateway.HasIdentifier(m) {
		validation := gateway.ValidateWebhookPayload(payload)
		return nil, fmt.Errorf("%w: %s", ErrInvalidWebhookPayload, strings.Join(validation.Errors, "; "))
	}

	result := g.ProcessWebhook(req.RawBody, req.Headers)
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookPayload, err)
	}

	outcome := &WebhookOutcome{
		Received:  true,
		Processed: result.Processed,
		EventType: result.EventType,
		PaymentID: result.PaymentID,
		NewStatus: result.NewStatus,
	}
	if !result.Processed {
		outcome.Error = result.Error
		logger.WithFields(logrus.Fields{"event_type": result.EventType, "reason": result.Error}).Info("webhook_ignored")
		return outcome, nil
	}

	key := DedupKey(provider, result.PaymentID, result.NewStatus)
	if err := s.dispatches.Create(ctx, &entity.WebhookDispatch{
		DedupKey:  key,
		Provider:  provider,
		PaymentID: result.PaymentID,
		NewStatus: result.NewStatus,
		ClientID:  clientID,
		CreatedAt: s.now(),
	}); err != nil {
		if errors.Is(err, repository.ErrAlreadyDispatched) {
			outcome.Duplicate = true
			logger.WithField("payment_id", result.PaymentID).Info("webhook_duplicate")
			return outcome, nil
		}
		return nil, err
	}

	jobID, err := s.queue.Enqueue(ctx, queue.PaymentWebhookEffectsQueue, worker.WebhookEffectsPayload{
		Provider:   provider,
		Result:     *result,
		ReceivedAt: s.now(),
	}, queue.WithJobID("webhook:"+key))
	if err != nil {
		if delErr := s.dispatches.Delete(ctx, key); delErr != nil {
			logger.WithError(delErr).Warn("webhook_dedup_marker_not_released")
		}
		return nil, err
	}

	outcome.JobID = jobID
	logger.WithFields(logrus.Fields{
		"payment_id": result.PaymentID,
		"new_status": result.NewStatus,
		"job_id":     jobID,
	}).Info("webhook_dispatched")
	return outcome, nil
}

func (s *WebhookService) checkSignature(logger logrus.FieldLogger, g gateway.PaymentGateway, stored *entity.GatewayConfig, req WebhookRequest) error {
	secret := strings.TrimSpace(stored.WebhookSecret)
	if secret == "" {
		if !s.allowUnsigned {
			return fmt.Errorf("%w: no webhook secret configured", ErrSignatureRejected)
		}
		logger.WithField("unsafe_for_production", true).Warn("webhook_accepted_without_signature")
		return nil
	}

	signature := gateway.ExtractSignature(g, req.Headers)
	if signature == "" {
		return fmt.Errorf("%w: missing signature header", ErrSignatureRejected)
	}

	if v, ok := g.(gateway.SignatureValidator); ok {
		if !v.ValidateWebhookSignature(req.RawBody, signature, secret) {
			return ErrSignatureRejected
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(signature), []byte(secret)) != 1 {
		return ErrSignatureRejected
	}
	return nil
}

// DedupKey identifies one (provider, payment, status) transition.
func DedupKey(provider, paymentID, newStatus string) string {
	sum := sha256.Sum256([]byte(provider + "|" + paymentID + "|" + newStatus))
	return hex.EncodeToString(sum[:])
}
