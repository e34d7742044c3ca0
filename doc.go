// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the UniVote API server.

UniVote runs university elections on an Ethereum voting contract. The
contract is the source of truth for elections, candidates, phases and
votes. A relational mirror (PostgreSQL or SQLite) holds the same data plus
off-chain metadata (election type and eligibility values, registered
students), and a background reconciler keeps it in step with the ledger.

# Starting the Server

	DATABASE_URL=postgres://... LEDGER_RPC_URL=http://127.0.0.1:8545 \
	CONTRACT_ADDRESS=0x... SIGNER_PRIVATE_KEY=... go run .

Or with flags:

	go run . -p 3318 -t sqlite -d univote.db -rpc http://127.0.0.1:8545 \
		-contract 0x... -signer-key ...

A .env file in the working directory is loaded first when present.

# Configuration

Required settings:

  - DATABASE_URL (-d): mirror connection string
  - LEDGER_RPC_URL (-rpc): Ethereum JSON-RPC endpoint
  - CONTRACT_ADDRESS (-contract): voting contract address
  - SIGNER_PRIVATE_KEY (-signer-key): hex key that signs relayed transactions

Optional settings:

  - PORT (-p): server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite or postgres (default: sqlite)
  - CONFIRM_TIMEOUT (-confirm-timeout): wait for a receipt before answering 504
  - SYNC_SCHEDULE (-sync-schedule): cron spec for reconciliation (default: @every 1m)
  - SYNC_WORKERS (-sync-workers): elections reconciled in parallel (default: 4)
  - ADMIN_CACHE_TTL (-admin-cache-ttl): how long admin lookups are cached

# Architecture

  - handlers, router, middleware: HTTP surface
  - elections, voting, users: orchestration of ledger and mirror writes
  - eligibility: credential parsing and election eligibility rules
  - ledger: contract client (go-ethereum) and the Client interface
  - store, db: mirror access and schema
  - pending: ledger effects the mirror has not recorded yet
  - reconcile: scheduled ledger to mirror reconciliation
  - auth: wallet addresses and the admin check
  - apperr: error kinds and their HTTP mapping
  - cliparse: configuration parsing

See package documentation for each component.
*/
package main
