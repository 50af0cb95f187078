package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
)

var ErrLeadCampaignAlreadyExists = errors.New("lead campaign already exists")

type LeadCampaignRepository struct {
	db DBTX
}

func NewLeadCampaignRepository(db DBTX) *LeadCampaignRepository {
	return &LeadCampaignRepository{db: db}
}

func (r *LeadCampaignRepository) Create(ctx context.Context, campaign *entity.LeadCampaign) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lead_campaigns (
			id, user_id, name, file_path, total_leads, batch_size, rate_per_second, config_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		campaign.ID,
		campaign.UserID,
		campaign.Name,
		campaign.FilePath,
		campaign.TotalLeads,
		campaign.BatchSize,
		campaign.RatePerSecond,
		campaign.ConfigJSON,
		campaign.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrLeadCampaignAlreadyExists
		}
		return err
	}
	return nil
}

func (r *LeadCampaignRepository) FindByID(ctx context.Context, id string) (*entity.LeadCampaign, error) {
	var campaign entity.LeadCampaign
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, file_path, total_leads, batch_size, rate_per_second, config_json, created_at
		FROM lead_campaigns
		WHERE id = ?
	`, id).Scan(
		&campaign.ID,
		&campaign.UserID,
		&campaign.Name,
		&campaign.FilePath,
		&campaign.TotalLeads,
		&campaign.BatchSize,
		&campaign.RatePerSecond,
		&campaign.ConfigJSON,
		&campaign.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}
