// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package store is the relational mirror of ledger state.

Nothing here is authoritative except user links. Every election, candidate
and ballot row can be rebuilt from ledger reads, and the reconcile package
does exactly that on a schedule.

# Writes

Each method is one statement. Two of them matter under concurrency:

	st.IncrementVoteCount(ctx, electionID, candidateID) // vote_count = vote_count + 1
	st.SetPhase(ctx, electionID, models.PhaseEnded)     // all three flags at once

Ballots only move to has_voted = true; RecordVote is the sole ballot writer.

# Errors

ErrNotFound is returned for missing rows and zero-row updates. ErrConflict is
returned for unique violations from either driver (lib/pq code 23505,
SQLite SQLITE_CONSTRAINT_UNIQUE / PRIMARYKEY). Everything else is wrapped
with context.
*/
package store
