// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the mirror database and creates its schema.

# Drivers

Open selects the driver from the configured type:

  - postgres: github.com/lib/pq
  - sqlite: modernc.org/sqlite (used by the tests, in memory)

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

  - election: ledger-assigned id, title, type, allowed values (JSON text),
    three phase flags guarded by a CHECK that exactly one is true
  - candidate: UUID surrogate key, UNIQUE (election_id, ledger_id)
  - app_user: wallet address ↔ credential, both unique
  - voter: one ballot row per (election_id, wallet_address)

# Relationships

	election 1──* candidate
	election 1──* voter
	app_user 1──* voter (by wallet_address, not enforced)
*/
package db
