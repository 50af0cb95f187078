package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
)

// TxDB is a DBTX that can also open transactions.
type TxDB interface {
	DBTX
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type OrderItemRepository struct {
	db TxDB
}

func NewOrderItemRepository(db TxDB) *OrderItemRepository {
	return &OrderItemRepository{db: db}
}

// ReplaceForOrder swaps the item rows of an order in one transaction.
func (r *OrderItemRepository) ReplaceForOrder(ctx context.Context, orderID string, items []entity.OrderItem) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, orderID); err != nil {
		return err
	}

	if len(items) > 0 {
		placeholders := make([]string, 0, len(items))
		args := make([]interface{}, 0, len(items)*10)
		for _, item := range items {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				orderID,
				item.Name,
				item.Description,
				item.SKU,
				item.Brand,
				item.Category,
				item.Quantity,
				item.UnitPrice,
				item.WeightGrams,
				item.CreatedAt,
			)
		}

		query := fmt.Sprintf(`
			INSERT INTO order_items (
				order_id, name, description, sku, brand, category, quantity, unit_price_cents, weight_grams, created_at
			)
			VALUES %s
		`, strings.Join(placeholders, ", "))
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderItemRepository) ListByOrder(ctx context.Context, orderID string) ([]entity.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, name, description, sku, brand, category, quantity, unit_price_cents, weight_grams, created_at
		FROM order_items
		WHERE order_id = ?
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]entity.OrderItem, 0)
	for rows.Next() {
		var item entity.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.Name,
			&item.Description,
			&item.SKU,
			&item.Brand,
			&item.Category,
			&item.Quantity,
			&item.UnitPrice,
			&item.WeightGrams,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
