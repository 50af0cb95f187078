package campaign

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/factory"
)

var ErrCampaignNotFound = errors.New("campaign not found")

type ProgressStore interface {
	Initialize(ctx context.Context, progress *entity.CampaignProgress) error
	Increment(ctx context.Context, campaignID string, sent, failed, batchNumber int, now time.Time) error
	UpdateStatus(ctx context.Context, campaignID, status string, errorMessage *string, now time.Time) error
	SetCurrentBatch(ctx context.Context, campaignID string, batch int, now time.Time) error
	FindByID(ctx context.Context, campaignID string) (*entity.CampaignProgress, error)
	Status(ctx context.Context, campaignID string) (string, error)
}

// Tracker persists campaign progress and publishes a snapshot after every
// change. Publishing is best effort.
type Tracker struct {
	store     ProgressStore
	publisher Publisher
	now       func() time.Time
	logger    logrus.FieldLogger
}

func NewTracker(store ProgressStore, publisher Publisher) *Tracker {
	return &Tracker{
		store:     store,
		publisher: publisher,
		now:       time.Now,
		logger:    factory.NewModuleLogger("campaign-tracker"),
	}
}

type StartInput struct {
	CampaignID    string
	UserID        string
	TotalLeads    int
	BatchSize     int
	RatePerSecond int
	// Status defaults to processing.
	Status string
}

// Start creates or resets the progress row.
func (t *Tracker) Start(ctx context.Context, in StartInput) (*Snapshot, error) {
	now := t.now()
	eta := now.Add(EstimateDuration(in.TotalLeads, in.RatePerSecond, in.BatchSize))
	status := in.Status
	if status == "" {
		status = entity.CampaignStatusProcessing
	}

	progress := &entity.CampaignProgress{
		CampaignID:          in.CampaignID,
		UserID:              in.UserID,
		TotalLeads:          in.TotalLeads,
		BatchSize:           in.BatchSize,
		TotalBatches:        TotalBatches(in.TotalLeads, in.BatchSize),
		Status:              status,
		StartedAt:           &now,
		EstimatedCompletion: &eta,
		UpdatedAt:           now,
	}
	if err := t.store.Initialize(ctx, progress); err != nil {
		return nil, err
	}
	return t.reloadAndPublish(ctx, in.CampaignID)
}

// Increment records the outcome of one batch.
func (t *Tracker) Increment(ctx context.Context, campaignID string, sent, failed, batchNumber int) (*Snapshot, error) {
	if sent < 0 || failed < 0 {
		return nil, errors.New("increments must not be negative")
	}
	if err := t.store.Increment(ctx, campaignID, sent, failed, batchNumber, t.now()); err != nil {
		return nil, err
	}
	return t.reloadAndPublish(ctx, campaignID)
}

func (t *Tracker) SetStatus(ctx context.Context, campaignID, status string, errorMessage *string) (*Snapshot, error) {
	if err := t.store.UpdateStatus(ctx, campaignID, status, errorMessage, t.now()); err != nil {
		return nil, err
	}
	return t.reloadAndPublish(ctx, campaignID)
}

// Fail marks the campaign failed with err's message.
func (t *Tracker) Fail(ctx context.Context, campaignID string, cause error) (*Snapshot, error) {
	msg := cause.Error()
	return t.SetStatus(ctx, campaignID, entity.CampaignStatusFailed, &msg)
}

// MarkEnqueued records how many batches have been handed to the queue, so a
// paused campaign can resume after them.
func (t *Tracker) MarkEnqueued(ctx context.Context, campaignID string, batches int) error {
	return t.store.SetCurrentBatch(ctx, campaignID, batches, t.now())
}

func (t *Tracker) Status(ctx context.Context, campaignID string) (string, error) {
	return t.store.Status(ctx, campaignID)
}

func (t *Tracker) Snapshot(ctx context.Context, campaignID string) (*Snapshot, error) {
	progress, err := t.store.FindByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, nil
	}
	snapshot := SnapshotFrom(progress)
	return &snapshot, nil
}

func (t *Tracker) reloadAndPublish(ctx context.Context, campaignID string) (*Snapshot, error) {
	snapshot, err := t.Snapshot(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, ErrCampaignNotFound
	}

	if t.publisher != nil {
		if err := t.publisher.Publish(ctx, *snapshot); err != nil {
			t.logger.WithError(err).WithField("campaign_id", campaignID).Warn("progress_publish_failed")
		}
	}
	return snapshot, nil
}
