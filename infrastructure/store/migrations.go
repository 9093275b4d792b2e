package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaVersion is the PRAGMA user_version the migrations bring a database to.
const schemaVersion = 2

// migrate applies every schema step above the database's current version
// inside a single transaction.
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var version int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	if version > schemaVersion {
		return fmt.Errorf("database schema v%d is newer than supported v%d", version, schemaVersion)
	}

	for version < schemaVersion {
		version++
		var step func(context.Context, *sql.Tx) error
		switch version {
		case 1:
			step = applySchemaV1
		case 2:
			step = applySchemaV2
		default:
			return fmt.Errorf("unknown schema version: %d", version)
		}
		if err := step(ctx, tx); err != nil {
			return fmt.Errorf("failed to apply schema v%d: %w", version, err)
		}
	}

	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return err
	}
	return tx.Commit()
}

// applySchemaV1 creates the rating and comparison tables.
func applySchemaV1(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ratings (
			candidate_id     TEXT PRIMARY KEY,
			score            REAL NOT NULL,
			comparison_count INTEGER NOT NULL DEFAULT 0,
			wins             INTEGER NOT NULL DEFAULT 0,
			losses           INTEGER NOT NULL DEFAULT 0,
			ties             INTEGER NOT NULL DEFAULT 0,
			created_at       INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS comparisons (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			candidate_a    TEXT NOT NULL REFERENCES ratings(candidate_id),
			candidate_b    TEXT NOT NULL REFERENCES ratings(candidate_id),
			winner         TEXT NOT NULL CHECK(winner IN ('a', 'b', 'tie')),
			score_a_before REAL NOT NULL,
			score_b_before REAL NOT NULL,
			score_a_after  REAL NOT NULL,
			score_b_after  REAL NOT NULL,
			reasoning      TEXT NOT NULL DEFAULT '',
			created_at     INTEGER NOT NULL,
			UNIQUE(candidate_a, candidate_b)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_score ON ratings(score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_comparisons_a ON comparisons(candidate_a)`,
		`CREATE INDEX IF NOT EXISTS idx_comparisons_b ON comparisons(candidate_b)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// applySchemaV2 enforces one row per unordered pair and adds the metadata
// table that pins the rating algorithm.
func applySchemaV2(ctx context.Context, tx *sql.Tx) error {
	var dupes int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM comparisons c1
		JOIN comparisons c2
		  ON c1.candidate_a = c2.candidate_b
		 AND c1.candidate_b = c2.candidate_a
		 AND c1.id < c2.id
	`).Scan(&dupes); err != nil {
		return err
	}
	if dupes > 0 {
		return fmt.Errorf("found %d pair(s) recorded in both orders", dupes)
	}

	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_comparisons_pair
			ON comparisons(min(candidate_a, candidate_b), max(candidate_a, candidate_b))`,
		`CREATE TABLE IF NOT EXISTS store_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
