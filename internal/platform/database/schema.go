package database

import (
	"context"
	"database/sql"
	"fmt"
)

// interviews is owned by the interview CRUD service; the minimal definition only exists so a
// fresh database can satisfy the cascade foreign key.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS interviews (
		id         TEXT PRIMARY KEY,
		status     TEXT NOT NULL DEFAULT 'incomplete',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS dsa_test_cases (
		id              TEXT PRIMARY KEY,
		question_id     TEXT NOT NULL,
		input           TEXT NOT NULL,
		expected_output TEXT NOT NULL,
		sort_order      INT  NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dsa_test_cases_question ON dsa_test_cases (question_id, sort_order)`,
	`CREATE TABLE IF NOT EXISTS dsa_submissions (
		id           TEXT PRIMARY KEY,
		interview_id TEXT NOT NULL REFERENCES interviews (id) ON DELETE CASCADE,
		question_id  TEXT NOT NULL,
		language     TEXT NOT NULL,
		source_code  TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'pending',
		generation   INT  NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		finalized_at TIMESTAMPTZ,
		CONSTRAINT uq_interview_and_question UNIQUE (interview_id, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS dsa_task_correlations (
		submission_id TEXT NOT NULL REFERENCES dsa_submissions (id) ON DELETE CASCADE,
		test_case_id  TEXT NOT NULL,
		task_id       TEXT NOT NULL UNIQUE,
		generation    INT  NOT NULL,
		status        TEXT NOT NULL DEFAULT 'pending',
		run_status    TEXT,
		actual_output TEXT,
		cpu_time_ms   INT,
		memory_kb     INT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (submission_id, test_case_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dsa_task_correlations_generation ON dsa_task_correlations (submission_id, generation)`,
}

// Migrate applies the idempotent DDL for the execution pipeline tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
