package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
	ErrTrackingCodeTaken  = errors.New("tracking code already in use")
)

const orderColumns = `
	id, client_id, gateway_id, created_by, amount_cents, payment_id, payment_status,
	customer_name, customer_email, customer_phone, customer_document, city, shipping_address,
	tracking_code, status, has_shipping_address, fulfillment_note, email_sent, email_sent_at,
	created_at, updated_at`

type OrderFilter struct {
	ClientID      string
	Status        string
	PaymentStatus string
	Limit         int32
	Offset        int32
}

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.ClientID,
		order.GatewayID,
		order.CreatedBy,
		order.AmountCents,
		nullable(order.PaymentID),
		order.PaymentStatus,
		order.CustomerName,
		order.CustomerEmail,
		order.CustomerPhone,
		order.CustomerDocument,
		order.City,
		nullable(order.ShippingAddress),
		nullable(order.TrackingCode),
		order.Status,
		order.HasShippingAddress,
		nullable(order.FulfillmentNote),
		order.EmailSent,
		nullable(order.EmailSentAt),
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrOrderAlreadyExists
		}
		return err
	}
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, order *entity.Order) error {
	query := `
		UPDATE orders SET
			amount_cents = ?,
			payment_id = ?,
			payment_status = ?,
			customer_name = ?,
			customer_email = ?,
			customer_phone = ?,
			customer_document = ?,
			city = ?,
			shipping_address = ?,
			status = ?,
			has_shipping_address = ?,
			fulfillment_note = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		order.AmountCents,
		nullable(order.PaymentID),
		order.PaymentStatus,
		order.CustomerName,
		order.CustomerEmail,
		order.CustomerPhone,
		order.CustomerDocument,
		order.City,
		nullable(order.ShippingAddress),
		order.Status,
		order.HasShippingAddress,
		nullable(order.FulfillmentNote),
		order.UpdatedAt,
		order.ID,
	)
	if err != nil {
		return err
	}
	return expectAffected(result, ErrOrderNotFound)
}

// UpdatePayment records the remote payment created for an order.
func (r *OrderRepository) UpdatePayment(ctx context.Context, orderID, paymentID, paymentStatus string, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET payment_id = ?, payment_status = ?, updated_at = ? WHERE id = ?`,
		paymentID, paymentStatus, now, orderID,
	)
	if err != nil {
		return err
	}
	return expectAffected(result, ErrOrderNotFound)
}

func (r *OrderRepository) SetTrackingCode(ctx context.Context, orderID, code string, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET tracking_code = ?, updated_at = ? WHERE id = ?`,
		code, now, orderID,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrTrackingCodeTaken
		}
		return err
	}
	return expectAffected(result, ErrOrderNotFound)
}

func (r *OrderRepository) TrackingCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE tracking_code = ?)`, code,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// MarkEmailSent flips email_sent once; it reports false when the flag was
// already set.
func (r *OrderRepository) MarkEmailSent(ctx context.Context, orderID string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET email_sent = TRUE, email_sent_at = ?, updated_at = ? WHERE id = ? AND email_sent = FALSE`,
		at, at, orderID,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) FindByPaymentID(ctx context.Context, paymentID string) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE payment_id = ? LIMIT 1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, paymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) List(ctx context.Context, filter OrderFilter) ([]*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`

	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)

	if strings.TrimSpace(filter.ClientID) != "" {
		conditions = append(conditions, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if strings.TrimSpace(filter.Status) != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if strings.TrimSpace(filter.PaymentStatus) != "" {
		conditions = append(conditions, "payment_status = ?")
		args = append(args, filter.PaymentStatus)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*entity.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func scanOrder(scan rowScanner) (*entity.Order, error) {
	var (
		order           entity.Order
		paymentID       sql.Null[string]
		shippingAddress sql.Null[string]
		trackingCode    sql.Null[string]
		fulfillmentNote sql.Null[string]
		emailSentAt     sql.Null[time.Time]
	)

	err := scan.Scan(
		&order.ID,
		&order.ClientID,
		&order.GatewayID,
		&order.CreatedBy,
		&order.AmountCents,
		&paymentID,
		&order.PaymentStatus,
		&order.CustomerName,
		&order.CustomerEmail,
		&order.CustomerPhone,
		&order.CustomerDocument,
		&order.City,
		&shippingAddress,
		&trackingCode,
		&order.Status,
		&order.HasShippingAddress,
		&fulfillmentNote,
		&order.EmailSent,
		&emailSentAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.PaymentID = optional(paymentID)
	order.ShippingAddress = optional(shippingAddress)
	order.TrackingCode = optional(trackingCode)
	order.FulfillmentNote = optional(fulfillmentNote)
	order.EmailSentAt = optional(emailSentAt)
	return &order, nil
}

func expectAffected(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
