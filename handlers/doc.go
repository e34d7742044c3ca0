// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the UniVote API.

# Handler Types

Each handler is a thin struct over one service:

  - ElectionHandler: election lifecycle and read queries (elections.Manager)
  - VotingHandler: vote casting and ballot lookup (voting.Orchestrator)
  - UserHandler: credential registration and lookup (users.Service)

Handlers decode the request, call the service, and render the result.
Service errors go through middleware.WriteError.

# Election Lifecycle

	POST /elections                  → CreateElection   (admin)
	POST /elections/{id}/candidates  → AddCandidate     (admin, not started)
	POST /elections/{id}/start       → StartElection    (admin)
	POST /elections/{id}/end         → EndElection      (admin)

Admin operations require the X-Wallet-Address header to name an address
the contract lists as an admin.

# Voting

	POST /elections/{id}/votes            → CastVote
	GET  /elections/{id}/voters/{address} → GetBallot

The voter is the X-Wallet-Address header. The body carries candidate_id and
the voter's hex signature.

# Status Codes

Ledger-backed writes return 201 (create, add candidate) or 200 (start, end,
vote). When the ledger confirmed but the mirror write failed they return
202 Accepted with mirror_pending set; the reconciler finishes the write.
A submission the ledger did not confirm in time returns 504 with tx_ref.
*/
package handlers
