// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package reconcile brings the mirror back in line with the ledger.
//
// A pass reads the ledger and overwrites the mirror; it never writes to the
// ledger. It:
//
//	discovers elections the ledger has and the mirror lacks
//	applies eligibility rules still held in the pending registry
//	sets each election's phase from isElectionStarted / isElectionEnded
//	inserts, updates and removes candidates to match the ledger's list
//	records ballots queued in the pending registry once the ledger shows them
//
// Elections are reconciled concurrently, bounded by the worker count, and one
// election's failure does not stop the others. A second pass with no ledger
// change in between writes nothing.
//
// Scheduler runs passes on a standard cron schedule ("@every 1m", "*/5 * * * *"),
// skipping a tick while the previous pass is still running.
package reconcile
