package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
)

var ErrCampaignProgressNotFound = errors.New("campaign progress not found")

const campaignProgressColumns = `
	campaign_id, user_id, total_leads, batch_size, total_batches, current_batch, sent_count, failed_count,
	progress_percent, status, started_at, estimated_completion, completed_at, error_message, updated_at`

type CampaignProgressRepository struct {
	db DBTX
}

func NewCampaignProgressRepository(db DBTX) *CampaignProgressRepository {
	return &CampaignProgressRepository{db: db}
}

// Initialize creates the progress row, or resets counters of an existing
// row for the same campaign.
func (r *CampaignProgressRepository) Initialize(ctx context.Context, progress *entity.CampaignProgress) error {
	query := `
		INSERT INTO campaign_progress (` + campaignProgressColumns + `)
		VALUES (?, ?, ?, ?, ?, 0, 0, 0, 0, ?, ?, ?, NULL, NULL, ?)
		ON DUPLICATE KEY UPDATE
			total_leads = VALUES(total_leads),
			batch_size = VALUES(batch_size),
			total_batches = VALUES(total_batches),
			current_batch = 0,
			sent_count = 0,
			failed_count = 0,
			progress_percent = 0,
			status = VALUES(status),
			started_at = VALUES(started_at),
			estimated_completion = VALUES(estimated_completion),
			completed_at = NULL,
			error_message = NULL,
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		progress.CampaignID,
		progress.UserID,
		progress.TotalLeads,
		progress.BatchSize,
		progress.TotalBatches,
		progress.Status,
		nullable(progress.StartedAt),
		nullable(progress.EstimatedCompletion),
		progress.UpdatedAt,
	)
	return err
}

// Increment adds batch results in a single statement. MySQL evaluates
// single-table SET assignments left to right, so each later expression sees
// the already clamped counts: sent+failed never exceeds total_leads and
// current_batch never exceeds total_batches. A missing row is not an error
// here; callers detect it on the re-read.
func (r *CampaignProgressRepository) Increment(ctx context.Context, campaignID string, sent, failed, batchNumber int, now time.Time) error {
	query := `
		UPDATE campaign_progress SET
			sent_count = LEAST(sent_count + ?, total_leads - failed_count),
			failed_count = LEAST(failed_count + ?, total_leads - sent_count),
			current_batch = LEAST(GREATEST(current_batch, ?), total_batches),
			progress_percent = IF(total_leads > 0, ROUND((sent_count + failed_count) * 100 / total_leads, 2), 100),
			status = IF(status = ? AND sent_count + failed_count >= total_leads, ?, status),
			completed_at = IF(status = ? AND completed_at IS NULL, ?, completed_at),
			updated_at = ?
		WHERE campaign_id = ?
	`

	_, err := r.db.ExecContext(ctx, query,
		sent,
		failed,
		batchNumber,
		entity.CampaignStatusProcessing,
		entity.CampaignStatusCompleted,
		entity.CampaignStatusCompleted,
		now,
		now,
		campaignID,
	)
	return err
}

// UpdateStatus moves a campaign to status. Rows already completed, failed or
// cancelled are not matched and yield ErrCampaignProgressNotFound.
func (r *CampaignProgressRepository) UpdateStatus(ctx context.Context, campaignID, status string, errorMessage *string, now time.Time) error {
	query := `
		UPDATE campaign_progress SET
			status = ?,
			error_message = COALESCE(?, error_message),
			completed_at = IF(? IN (?, ?, ?), COALESCE(completed_at, ?), completed_at),
			updated_at = ?
		WHERE campaign_id = ? AND status NOT IN (?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		status,
		nullable(errorMessage),
		status,
		entity.CampaignStatusCompleted, entity.CampaignStatusFailed, entity.CampaignStatusCancelled,
		now,
		now,
		campaignID,
		entity.CampaignStatusCompleted, entity.CampaignStatusFailed, entity.CampaignStatusCancelled,
	)
	if err != nil {
		return err
	}
	return expectAffected(result, ErrCampaignProgressNotFound)
}

// SetCurrentBatch records how many batches were enqueued before a pause.
func (r *CampaignProgressRepository) SetCurrentBatch(ctx context.Context, campaignID string, batch int, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_progress SET
			current_batch = LEAST(GREATEST(current_batch, ?), total_batches),
			updated_at = ?
		WHERE campaign_id = ?
	`, batch, now, campaignID)
	return err
}

func (r *CampaignProgressRepository) FindByID(ctx context.Context, campaignID string) (*entity.CampaignProgress, error) {
	query := `SELECT ` + campaignProgressColumns + ` FROM campaign_progress WHERE campaign_id = ?`

	progress, err := scanCampaignProgress(r.db.QueryRowContext(ctx, query, campaignID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return progress, nil
}

func (r *CampaignProgressRepository) Status(ctx context.Context, campaignID string) (string, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM campaign_progress WHERE campaign_id = ?`, campaignID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrCampaignProgressNotFound
	}
	return status, err
}

func scanCampaignProgress(scan rowScanner) (*entity.CampaignProgress, error) {
	var (
		progress            entity.CampaignProgress
		startedAt           sql.Null[time.Time]
		estimatedCompletion sql.Null[time.Time]
		completedAt         sql.Null[time.Time]
		errorMessage        sql.Null[string]
	)

	if err := scan.Scan(
		&progress.CampaignID,
		&progress.UserID,
		&progress.TotalLeads,
		&progress.BatchSize,
		&progress.TotalBatches,
		&progress.CurrentBatch,
		&progress.SentCount,
		&progress.FailedCount,
		&progress.ProgressPercent,
		&progress.Status,
		&startedAt,
		&estimatedCompletion,
		&completedAt,
		&errorMessage,
		&progress.UpdatedAt,
	); err != nil {
		return nil, err
	}

	progress.StartedAt = optional(startedAt)
	progress.EstimatedCompletion = optional(estimatedCompletion)
	progress.CompletedAt = optional(completedAt)
	progress.ErrorMessage = optional(errorMessage)
	return &progress, nil
}
