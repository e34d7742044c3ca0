// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open connects to the mirror database. dbType is "postgres" or "sqlite".
func Open(ctx context.Context, dbType, url string) (*sql.DB, error) {
	var driver string
	switch dbType {
	case "postgres":
		driver = "postgres"
	case "sqlite":
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}

	conn, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite" {
		// One writer at a time; concurrent writers get SQLITE_BUSY otherwise.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return conn, nil
}

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// The schema sticks to SQL understood by both PostgreSQL and SQLite.
const schema = `
-- Elections (id is assigned by the ledger)
CREATE TABLE IF NOT EXISTS election (
    id BIGINT PRIMARY KEY,
    title TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL CHECK (type IN ('general', 'department', 'program')),
    allowed_values TEXT NOT NULL DEFAULT '[]',
    is_not_started BOOLEAN NOT NULL DEFAULT TRUE,
    is_started BOOLEAN NOT NULL DEFAULT FALSE,
    is_ended BOOLEAN NOT NULL DEFAULT FALSE,
    tx_hash TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (
        (CASE WHEN is_not_started THEN 1 ELSE 0 END) +
        (CASE WHEN is_started THEN 1 ELSE 0 END) +
        (CASE WHEN is_ended THEN 1 ELSE 0 END) = 1
    )
);

-- Candidates (ledger_id is only unique within an election)
CREATE TABLE IF NOT EXISTS candidate (
    id TEXT PRIMARY KEY,
    election_id BIGINT NOT NULL REFERENCES election(id) ON DELETE CASCADE,
    ledger_id BIGINT NOT NULL,
    name TEXT NOT NULL,
    candidate_address TEXT,
    vote_count BIGINT NOT NULL DEFAULT 0 CHECK (vote_count >= 0),
    tx_hash TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (election_id, ledger_id)
);

CREATE INDEX IF NOT EXISTS idx_candidate_election_id ON candidate(election_id);

-- Users (off-chain credential to wallet link)
CREATE TABLE IF NOT EXISTS app_user (
    wallet_address TEXT PRIMARY KEY,
    credential TEXT NOT NULL UNIQUE,
    department TEXT NOT NULL,
    program TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Ballots
CREATE TABLE IF NOT EXISTS voter (
    election_id BIGINT NOT NULL REFERENCES election(id) ON DELETE CASCADE,
    wallet_address TEXT NOT NULL,
    has_voted BOOLEAN NOT NULL DEFAULT FALSE,
    voted_candidate_id BIGINT,
    tx_hash TEXT,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (election_id, wallet_address)
);
`
