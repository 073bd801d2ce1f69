// Package database provides read access to the controller reading tables.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotConnected is returned when a query is issued before Connect succeeded.
var ErrNotConnected = errors.New("database not connected")

// QueryExecutor runs a parameterised query and returns every row as a slice of
// column values in select order.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, query string, args ...any) ([][]any, error)
}

// queryRows drains rows from db into a row-major slice of raw column values.
func queryRows(ctx context.Context, db *sql.DB, query string, args ...any) ([][]any, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	var result [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}
