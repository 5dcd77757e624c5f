package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/reviewlens/reviewlens/models"
)

// PostgresStore persists analyses in PostgreSQL. The full analysis is
// stored as a JSONB payload alongside its timestamps so the schema does
// not have to track every model change.
type PostgresStore struct {
	conn *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens a connection, verifies it and runs pending
// migrations.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{conn: conn}, nil
}

// DB returns the underlying database connection.
func (s *PostgresStore) DB() *sql.DB {
	return s.conn
}

func (s *PostgresStore) Get(ctx context.Context, asin string) (*models.ProductAnalysis, bool, error) {
	var payload []byte
	query := "SELECT data FROM reviewlens_analyses WHERE asin = $1"

	err := s.conn.QueryRowContext(ctx, query, asin).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query analysis: %w", err)
	}

	var entry models.ProductAnalysis
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}

	if entry.Expired(time.Now()) {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, entry *models.ProductAnalysis) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	query := `
		INSERT INTO reviewlens_analyses (asin, data, scraped_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT(asin) DO UPDATE SET
			data = excluded.data,
			scraped_at = excluded.scraped_at,
			expires_at = excluded.expires_at,
			updated_at = NOW()
	`

	if _, err := s.conn.ExecContext(ctx, query, entry.ASIN, payload, entry.ScrapedAt, entry.ExpiresAt); err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, asin string) error {
	result, err := s.conn.ExecContext(ctx, "DELETE FROM reviewlens_analyses WHERE asin = $1", asin)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpired removes entries whose expiry has passed and returns the
// number of rows deleted.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.conn.ExecContext(ctx, "DELETE FROM reviewlens_analyses WHERE expires_at <= NOW()")
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired analyses: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.conn.Close()
}
