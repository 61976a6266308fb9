package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
)

// AuditRepository is a write-only operator log of completed batch
// submissions and validity checks. Session state itself is never persisted.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent gateway startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS batch_submissions (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	item_count INTEGER NOT NULL,
	record_count INTEGER NOT NULL,
	records_by_type JSONB NOT NULL DEFAULT '{}'::jsonb,
	submitted_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS validity_checks (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	total_valid INTEGER NOT NULL,
	checked_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batch_submissions_session ON batch_submissions(session_id);
CREATE INDEX IF NOT EXISTS idx_validity_checks_session ON validity_checks(session_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *AuditRepository) RecordSubmission(ctx context.Context, audit domain.SubmissionAudit) error {
	byType, err := json.Marshal(audit.ByType)
	if err != nil {
		return fmt.Errorf("marshal records_by_type: %w", err)
	}

	const query = `
INSERT INTO batch_submissions (session_id, item_count, record_count, records_by_type, submitted_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query,
		audit.SessionID,
		audit.ItemCount,
		audit.RecordCount,
		byType,
		audit.SubmittedAt,
	); err != nil {
		return fmt.Errorf("insert batch submission: %w", err)
	}
	return nil
}

func (r *AuditRepository) RecordValidityCheck(ctx context.Context, audit domain.ValidityAudit) error {
	const query = `
INSERT INTO validity_checks (session_id, start_date, end_date, total_valid, checked_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query,
		audit.SessionID,
		audit.StartDate,
		audit.EndDate,
		audit.TotalValid,
		audit.CheckedAt,
	); err != nil {
		return fmt.Errorf("insert validity check: %w", err)
	}
	return nil
}
