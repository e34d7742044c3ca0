// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

Types for parsing incoming JSON:

  - CreateElectionRequest: title, type, allowed_values
  - AddCandidateRequest: name
  - CastVoteRequest: candidate_id, signature
  - RegisterUserRequest: credential, wallet_address

# Response Types

Every ledger-backed mutation answers with a TxResponse (tx_ref,
mirror_pending, message), embedded in the operation's own response:

  - CreateElectionResponse, AddCandidateResponse, CastVoteResponse
  - StatusResponse: phase plus the is_started/is_ended booleans
  - WinnerResponse, RegisterUserResponse
  - ErrorResponse: error, code, message, tx_ref

# Domain Types

  - Election: ledger-assigned id, title, type, allowed values, phase
  - Candidate: surrogate storage id plus the per-election ledger id
  - User: wallet address bound to an academic credential
  - Ballot: one per (election, wallet)
  - Classification: department and program derived from a credential

# Phase

An election is in exactly one phase:

	PhaseNotStarted → PhaseStarted → PhaseEnded

The mirror stores three boolean columns; Phase.Flags and PhaseFromFlags
convert between the two and PhaseFromFlags refuses rows where the flags are
not mutually exclusive. The ledger reports two booleans, folded by
PhaseFromLedger.
*/
package models
