package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func isDuplicateEntryError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	return mysqlErr.Number == mysqlDuplicateEntry
}

// nullable turns an optional column value into a driver argument.
func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

// optional is the scan-side counterpart of nullable.
func optional[T any](v sql.Null[T]) *T {
	if !v.Valid {
		return nil
	}
	out := v.V
	return &out
}

func encodeSettings(settings map[string]any) (string, error) {
	if len(settings) == 0 {
		return "{}", nil
	}
	payload, err := json.Marshal(settings)
	return string(payload), err
}

func decodeSettings(raw string) (map[string]any, error) {
	settings := map[string]any{}
	if raw == "" {
		return settings, nil
	}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, err
	}
	if settings == nil {
		settings = map[string]any{}
	}
	return settings, nil
}
