// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"loan-wizard/internal/common/config"

	_ "github.com/lib/pq"
)

// decisionSchema holds the audit table written by record-loan-decision.
// One row per (application, decision) pair; the unique constraint is what
// surfaces a replayed job as a 23505 violation.
var decisionSchema = []string{
	`CREATE TABLE IF NOT EXISTS loan_decisions (
		id              TEXT PRIMARY KEY,
		application_id  TEXT NOT NULL,
		user_id         TEXT NOT NULL DEFAULT '',
		loan_type       TEXT NOT NULL,
		decision_id     TEXT NOT NULL,
		approval_status TEXT NOT NULL,
		interest_rate   TEXT NOT NULL DEFAULT '0',
		reasons         TEXT[] NOT NULL DEFAULT '{}',
		conditions      TEXT[] NOT NULL DEFAULT '{}',
		summary         TEXT NOT NULL DEFAULT '',
		strategy        TEXT NOT NULL,
		decided_at      TIMESTAMPTZ NOT NULL,
		recorded_at     TIMESTAMPTZ NOT NULL,
		UNIQUE (application_id, decision_id)
	)`,
	`CREATE INDEX IF NOT EXISTS loan_decisions_status_idx
		ON loan_decisions (approval_status, recorded_at DESC)`,
}

// PostgresClient holds the pool used for the decision audit trail.
type PostgresClient struct {
	DB *sql.DB
}

func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres %s/%s: %w", cfg.Host, cfg.Database, err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// EnsureDecisionTable creates the loan_decisions table and its index when missing.
func (c *PostgresClient) EnsureDecisionTable(ctx context.Context) error {
	for _, stmt := range decisionSchema {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply decision schema: %w", err)
		}
	}
	return nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
