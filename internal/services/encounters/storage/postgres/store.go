// Package postgres provides a Postgres-backed encounter storage implementation.
//
// The schema matches the SQLite store; resolutions are committed through the
// apply_operation_resolution stored function so the whole write runs in one
// server-side transaction.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/louisbranch/opsroom/internal/platform/storage/sqlmigrate"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage/postgres/migrations"
)

const (
	uniqueViolation = pq.ErrorCode("23505")
	checkViolation  = pq.ErrorCode("23514")
)

// Store persists encounter state in Postgres.
type Store struct {
	sqlDB *sql.DB
}

// Open connects to Postgres and applies embedded migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres db: %w", err)
	}
	if err := sqlmigrate.Apply(ctx, sqlDB, sqlmigrate.Postgres, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the Postgres pool.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return err != nil && pqCode(err) == uniqueViolation
}

func isCheckViolation(err error) bool {
	return err != nil && pqCode(err) == checkViolation
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

func fromNullTime(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func fromNullFloat(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

// jsonColumn normalizes a scanned JSONB value; SQL NULL and JSON null read as nil.
func jsonColumn(value []byte) []byte {
	if len(value) == 0 || string(value) == "null" {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}

func orNow(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value.UTC()
}

var _ storage.Store = (*Store)(nil)
