package repository

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
)

var ErrAlreadyDispatched = errors.New("webhook already dispatched")

type WebhookDispatchRepository struct {
	db DBTX
}

func NewWebhookDispatchRepository(db DBTX) *WebhookDispatchRepository {
	return &WebhookDispatchRepository{db: db}
}

// Create stores the dedup marker. A second insert for the same key returns
// ErrAlreadyDispatched.
func (r *WebhookDispatchRepository) Create(ctx context.Context, dispatch *entity.WebhookDispatch) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_dispatches (dedup_key, provider, payment_id, new_status, client_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		dispatch.DedupKey,
		dispatch.Provider,
		dispatch.PaymentID,
		dispatch.NewStatus,
		dispatch.ClientID,
		dispatch.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrAlreadyDispatched
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	dispatch.ID = uint64(id)
	return nil
}

// Delete removes a marker so a failed enqueue can be retried by the provider.
func (r *WebhookDispatchRepository) Delete(ctx context.Context, dedupKey string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM webhook_dispatches WHERE dedup_key = ?`, dedupKey)
	return err
}
