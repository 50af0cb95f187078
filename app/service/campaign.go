package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/campaign"
	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/factory"
	"github.com/vibast-solutions/ms-go-logistics/app/leads"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
	"github.com/vibast-solutions/ms-go-logistics/app/repository"
	"github.com/vibast-solutions/ms-go-logistics/app/worker"
	"github.com/vibast-solutions/ms-go-logistics/config"
)

const campaignJobDelay = time.Second

type campaignProgressTracker interface {
	Start(ctx context.Context, in campaign.StartInput) (*campaign.Snapshot, error)
	SetStatus(ctx context.Context, campaignID, status string, errorMessage *string) (*campaign.Snapshot, error)
	Snapshot(ctx context.Context, campaignID string) (*campaign.Snapshot, error)
}

type leadCampaignRepository interface {
	Create(ctx context.Context, c *entity.LeadCampaign) error
	FindByID(ctx context.Context, id string) (*entity.LeadCampaign, error)
}

type StartCampaignInput struct {
	CampaignID         string
	UserID             string
	Leads              []entity.Lead
	BatchSize          int
	RateLimitPerSecond int
	Priority           int
	Config             worker.CampaignConfig
}

type CampaignStarted struct {
	CampaignID          string
	JobID               string
	TotalLeads          int
	TotalBatches        int
	EstimatedDuration   time.Duration
	EstimatedCompletion time.Time
}

// CampaignService starts mass-email campaigns and moves them between states.
type CampaignService struct {
	tracker   campaignProgressTracker
	campaigns leadCampaignRepository
	source    leads.Source
	queue     jobEnqueuer
	defaults  config.CampaignsConfig
	now       func() time.Time
	newID     func() string
	logger    logrus.FieldLogger
}

func NewCampaignService(
	tracker campaignProgressTracker,
	campaigns leadCampaignRepository,
	source leads.Source,
	enqueuer jobEnqueuer,
	defaults config.CampaignsConfig,
) *CampaignService {
	return &CampaignService{
		tracker:   tracker,
		campaigns: campaigns,
		source:    source,
		queue:     enqueuer,
		defaults:  defaults,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    factory.NewModuleLogger("campaign-service"),
	}
}

func (s *CampaignService) Start(ctx context.Context, in StartCampaignInput) (*CampaignStarted, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(in.Config.SubjectTemplate) == "" || strings.TrimSpace(in.Config.HTMLTemplate) == "" {
		return nil, fmt.Errorf("%w: subject_template and html_template are required", ErrInvalidRequest)
	}

	list := leads.Clean(in.Leads)
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no lead with a valid email", ErrInvalidRequest)
	}

	campaignID := strings.TrimSpace(in.CampaignID)
	if campaignID == "" {
		campaignID = s.newID()
	}
	batchSize := firstPositive(in.BatchSize, s.defaults.DefaultBatchSize, worker.DefaultBatchSize)
	rate := firstPositive(in.RateLimitPerSecond, s.defaults.DefaultRatePerSecond, worker.DefaultRatePerSecond)
	logger := s.logger.WithFields(logrus.Fields{"campaign_id": campaignID, "user_id": in.UserID})

	path := "campaigns/" + campaignID + "/leads.json"
	if err := s.source.Store(ctx, path, list); err != nil {
		return nil, err
	}

	configJSON, err := json.Marshal(in.Config)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.campaigns.Create(ctx, &entity.LeadCampaign{
		ID:            campaignID,
		UserID:        in.UserID,
		Name:          in.Config.Name,
		FilePath:      path,
		TotalLeads:    len(list),
		BatchSize:     batchSize,
		RatePerSecond: rate,
		ConfigJSON:    string(configJSON),
		CreatedAt:     now,
	}); err != nil {
		if errors.Is(err, repository.ErrLeadCampaignAlreadyExists) {
			return nil, fmt.Errorf("%w: campaign %s already exists", ErrInvalidCampaignState, campaignID)
		}
		return nil, err
	}

	if _, err := s.tracker.Start(ctx, campaign.StartInput{
		CampaignID:    campaignID,
		UserID:        in.UserID,
		TotalLeads:    len(list),
		BatchSize:     batchSize,
		RatePerSecond: rate,
		Status:        entity.CampaignStatusQueued,
	}); err != nil {
		return nil, err
	}

	jobID, err := s.queue.Enqueue(ctx, queue.MassEmailCampaignQueue, worker.MassEmailCampaignJob{
		CampaignID:         campaignID,
		UserID:             in.UserID,
		TotalLeads:         len(list),
		BatchSize:          batchSize,
		RateLimitPerSecond: rate,
		CampaignConfig:     in.Config,
		CreatedAt:          now,
		Priority:           in.Priority,
	},
		queue.WithJobID("campaign:"+campaignID),
		queue.WithMaxAttempts(1),
		queue.WithDelay(campaignJobDelay),
	)
	if err != nil {
		msg := err.Error()
		if _, setErr := s.tracker.SetStatus(ctx, campaignID, entity.CampaignStatusFailed, &msg); setErr != nil {
			logger.WithError(setErr).Warn("campaign_fail_status_not_saved")
		}
		return nil, err
	}

	eta := campaign.EstimateDuration(len(list), rate, batchSize)
	logger.WithFields(logrus.Fields{"total_leads": len(list), "job_id": jobID}).Info("campaign_queued")
	return &CampaignStarted{
		CampaignID:          campaignID,
		JobID:               jobID,
		TotalLeads:          len(list),
		TotalBatches:        campaign.TotalBatches(len(list), batchSize),
		EstimatedDuration:   eta,
		EstimatedCompletion: now.Add(eta),
	}, nil
}

// Pause stops further batches from being enqueued; batches in flight finish.
func (s *CampaignService) Pause(ctx context.Context, campaignID string) (*campaign.Snapshot, error) {
	current, err := s.Progress(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if current.Status != entity.CampaignStatusProcessing && current.Status != entity.CampaignStatusQueued {
		return nil, fmt.Errorf("%w: cannot pause a %s campaign", ErrInvalidCampaignState, current.Status)
	}
	return s.setStatus(ctx, current.CampaignID, entity.CampaignStatusPaused)
}

// Resume re-enqueues the campaign job from the last enqueued batch.
func (s *CampaignService) Resume(ctx context.Context, campaignID string) (*campaign.Snapshot, error) {
	current, err := s.Progress(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if current.Status != entity.CampaignStatusPaused {
		return nil, fmt.Errorf("%w: cannot resume a %s campaign", ErrInvalidCampaignState, current.Status)
	}

	lc, err := s.campaigns.FindByID(ctx, current.CampaignID)
	if err != nil {
		return nil, err
	}
	if lc == nil {
		return nil, ErrCampaignNotFound
	}
	var cfg worker.CampaignConfig
	if lc.ConfigJSON != "" {
		if err := json.Unmarshal([]byte(lc.ConfigJSON), &cfg); err != nil {
			return nil, fmt.Errorf("stored campaign config is unreadable: %w", err)
		}
	}

	snapshot, err := s.setStatus(ctx, current.CampaignID, entity.CampaignStatusProcessing)
	if err != nil {
		return nil, err
	}

	if _, err := s.queue.Enqueue(ctx, queue.MassEmailCampaignQueue, worker.MassEmailCampaignJob{
		CampaignID:         lc.ID,
		UserID:             lc.UserID,
		TotalLeads:         lc.TotalLeads,
		BatchSize:          lc.BatchSize,
		RateLimitPerSecond: lc.RatePerSecond,
		CampaignConfig:     cfg,
		CreatedAt:          s.now(),
		ResumeFrom:         current.CurrentBatch,
	},
		queue.WithJobID(fmt.Sprintf("campaign:%s:resume:%s", lc.ID, s.newID())),
		queue.WithMaxAttempts(1),
		queue.WithDelay(campaignJobDelay),
	); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"campaign_id": lc.ID, "resume_from": current.CurrentBatch}).Info("campaign_resumed")
	return snapshot, nil
}

func (s *CampaignService) Cancel(ctx context.Context, campaignID string) (*campaign.Snapshot, error) {
	current, err := s.Progress(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if current.IsTerminal() {
		return nil, fmt.Errorf("%w: campaign already %s", ErrInvalidCampaignState, current.Status)
	}
	return s.setStatus(ctx, current.CampaignID, entity.CampaignStatusCancelled)
}

func (s *CampaignService) Progress(ctx context.Context, campaignID string) (*campaign.Snapshot, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return nil, ErrInvalidRequest
	}
	snapshot, err := s.tracker.Snapshot(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, ErrCampaignNotFound
	}
	return snapshot, nil
}

// ETA estimates how long a campaign of totalLeads would take.
func (s *CampaignService) ETA(totalLeads, ratePerSecond, batchSize int) (time.Duration, error) {
	if totalLeads < 0 || ratePerSecond < 0 || batchSize < 0 {
		return 0, ErrInvalidRequest
	}
	rate := firstPositive(ratePerSecond, s.defaults.DefaultRatePerSecond, worker.DefaultRatePerSecond)
	size := firstPositive(batchSize, s.defaults.DefaultBatchSize, worker.DefaultBatchSize)
	return campaign.EstimateDuration(totalLeads, rate, size), nil
}

func (s *CampaignService) setStatus(ctx context.Context, campaignID, status string) (*campaign.Snapshot, error) {
	snapshot, err := s.tracker.SetStatus(ctx, campaignID, status, nil)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignProgressNotFound) {
			return nil, fmt.Errorf("%w: campaign %s changed state concurrently", ErrInvalidCampaignState, campaignID)
		}
		if errors.Is(err, campaign.ErrCampaignNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"campaign_id": campaignID, "status": status}).Info("campaign_status_changed")
	return snapshot, nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
