package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// SQLExecutor implements QueryExecutor directly over database/sql with the lib/pq
// driver. It is used by the command-line tools that do not need gorm.
type SQLExecutor struct {
	db *sql.DB
}

// OpenSQL opens and pings a lib/pq connection.
func OpenSQL(ctx context.Context, connectionString string) (*SQLExecutor, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLExecutor{db: db}, nil
}

// NewSQLExecutor wraps an existing handle.
func NewSQLExecutor(db *sql.DB) *SQLExecutor {
	return &SQLExecutor{db: db}
}

func (s *SQLExecutor) ExecuteQuery(ctx context.Context, query string, args ...any) ([][]any, error) {
	return queryRows(ctx, s.db, query, args...)
}

// Close closes the underlying handle.
func (s *SQLExecutor) Close() error {
	return s.db.Close()
}
