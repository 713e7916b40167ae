package numbering

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore keeps day counters in a single table so order sequences
// survive restarts. The upsert-returning statement gives the atomic
// read-increment-write the sequence contract requires, even across
// multiple service processes.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if err := createTable(db); err != nil {
		return nil, fmt.Errorf("failed to create order_sequence table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Increment(ctx context.Context, dayKey string) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO order_sequence (day_key, last_sequence, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (day_key)
		DO UPDATE SET last_sequence = order_sequence.last_sequence + 1, updated_at = NOW()
		RETURNING last_sequence
	`, dayKey).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}

func createTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS order_sequence (
			day_key VARCHAR(6) PRIMARY KEY,
			last_sequence BIGINT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
	return err
}
