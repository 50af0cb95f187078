package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
)

var (
	ErrGatewayConfigNotFound      = errors.New("gateway config not found")
	ErrGatewayConfigAlreadyExists = errors.New("gateway config already exists")
)

const gatewayConfigColumns = `
	id, client_id, gateway_id, provider, settings_json, webhook_secret, is_active, created_at, updated_at`

type GatewayConfigRepository struct {
	db DBTX
}

func NewGatewayConfigRepository(db DBTX) *GatewayConfigRepository {
	return &GatewayConfigRepository{db: db}
}

func (r *GatewayConfigRepository) Create(ctx context.Context, cfg *entity.GatewayConfig) error {
	settingsJSON, err := encodeSettings(cfg.Settings)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO gateway_configs (
			client_id, gateway_id, provider, settings_json, webhook_secret, is_active, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		cfg.ClientID,
		cfg.GatewayID,
		cfg.Provider,
		settingsJSON,
		cfg.WebhookSecret,
		cfg.IsActive,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrGatewayConfigAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	cfg.ID = uint64(id)
	return nil
}

func (r *GatewayConfigRepository) Update(ctx context.Context, cfg *entity.GatewayConfig) error {
	settingsJSON, err := encodeSettings(cfg.Settings)
	if err != nil {
		return err
	}

	query := `
		UPDATE gateway_configs SET
			gateway_id = ?,
			settings_json = ?,
			webhook_secret = ?,
			is_active = ?,
			updated_at = ?
		WHERE client_id = ? AND provider = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		cfg.GatewayID,
		settingsJSON,
		cfg.WebhookSecret,
		cfg.IsActive,
		cfg.UpdatedAt,
		cfg.ClientID,
		cfg.Provider,
	)
	if err != nil {
		return err
	}
	return expectAffected(result, ErrGatewayConfigNotFound)
}

func (r *GatewayConfigRepository) Delete(ctx context.Context, clientID, provider string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM gateway_configs WHERE client_id = ? AND provider = ?`, clientID, provider,
	)
	if err != nil {
		return err
	}
	return expectAffected(result, ErrGatewayConfigNotFound)
}

func (r *GatewayConfigRepository) Find(ctx context.Context, clientID, provider string) (*entity.GatewayConfig, error) {
	query := `SELECT ` + gatewayConfigColumns + ` FROM gateway_configs WHERE client_id = ? AND provider = ? LIMIT 1`

	cfg, err := scanGatewayConfig(r.db.QueryRowContext(ctx, query, clientID, provider))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindActive returns the active config a webhook or worker should use.
func (r *GatewayConfigRepository) FindActive(ctx context.Context, clientID, provider string) (*entity.GatewayConfig, error) {
	query := `SELECT ` + gatewayConfigColumns + `
		FROM gateway_configs
		WHERE client_id = ? AND provider = ? AND is_active = TRUE
		LIMIT 1`

	cfg, err := scanGatewayConfig(r.db.QueryRowContext(ctx, query, clientID, provider))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *GatewayConfigRepository) ListByClient(ctx context.Context, clientID string) ([]*entity.GatewayConfig, error) {
	query := `SELECT ` + gatewayConfigColumns + ` FROM gateway_configs`
	args := make([]interface{}, 0, 1)
	if clientID != "" {
		query += " WHERE client_id = ?"
		args = append(args, clientID)
	}
	query += " ORDER BY client_id ASC, provider ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]*entity.GatewayConfig, 0)
	for rows.Next() {
		cfg, err := scanGatewayConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return configs, nil
}

func scanGatewayConfig(scan rowScanner) (*entity.GatewayConfig, error) {
	var (
		cfg          entity.GatewayConfig
		settingsJSON string
	)

	if err := scan.Scan(
		&cfg.ID,
		&cfg.ClientID,
		&cfg.GatewayID,
		&cfg.Provider,
		&settingsJSON,
		&cfg.WebhookSecret,
		&cfg.IsActive,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}

	settings, err := decodeSettings(settingsJSON)
	if err != nil {
		return nil, err
	}
	cfg.Settings = settings
	return &cfg, nil
}
