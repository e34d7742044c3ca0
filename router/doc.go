// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the UniVote API.

# Route Registration

NewRouter builds the services and returns a ServeMux with all endpoints:

	mux := router.NewRouter(db, ledgerClient, pendingRegistry, cfg)

The pending registry must be the one handed to the reconciler, so ledger
effects the mirror missed are finished by the next pass.

# Endpoints

Health:

	GET /health

Election management (admin, X-Wallet-Address must be a contract admin):

	POST /elections                 - Create election
	POST /elections/{id}/candidates - Add candidate (not started only)
	POST /elections/{id}/start      - Open voting
	POST /elections/{id}/end        - Close voting

Queries (public):

	GET /elections                   - All elections, newest first, with totals
	GET /elections/{id}/candidates   - Candidates and tallies
	GET /elections/{id}/status       - Phase, read from the ledger
	GET /elections/{id}/winner       - Highest tally
	GET /elections/{id}/voters/{address} - Ballot lookup

Voting (X-Wallet-Address is the voter):

	POST /elections/{id}/votes

Users:

	POST /users/register
	GET  /users/{address}
*/
package router
