// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/univote/auth"
	"github.com/danielhkuo/univote/cliparse"
	"github.com/danielhkuo/univote/elections"
	"github.com/danielhkuo/univote/handlers"
	"github.com/danielhkuo/univote/ledger"
	"github.com/danielhkuo/univote/middleware"
	"github.com/danielhkuo/univote/pending"
	"github.com/danielhkuo/univote/store"
	"github.com/danielhkuo/univote/users"
	"github.com/danielhkuo/univote/voting"
)

// NewRouter wires the services over db and the ledger client. p must be the
// registry the reconciler drains.
func NewRouter(db *sql.DB, l ledger.Client, p *pending.Registry, cfg cliparse.Config) *http.ServeMux {
	mux := http.NewServeMux()

	st := store.New(db)
	admins := auth.NewAdminChecker(l, cfg.AdminCacheTTL)

	// Initialize handlers
	electionHandler := handlers.NewElectionHandler(elections.NewManager(l, st, p), admins)
	votingHandler := handlers.NewVotingHandler(voting.NewOrchestrator(l, st, p))
	userHandler := handlers.NewUserHandler(users.NewService(st))

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Election management (admin operations)
	mux.HandleFunc("POST /elections", middleware.WithLogging(electionHandler.CreateElection))
	mux.HandleFunc("POST /elections/{id}/candidates", middleware.WithLogging(electionHandler.AddCandidate))
	mux.HandleFunc("POST /elections/{id}/start", middleware.WithLogging(electionHandler.StartElection))
	mux.HandleFunc("POST /elections/{id}/end", middleware.WithLogging(electionHandler.EndElection))

	// Election queries (public)
	mux.HandleFunc("GET /elections", middleware.WithLogging(electionHandler.ListElections))
	mux.HandleFunc("GET /elections/{id}/candidates", middleware.WithLogging(electionHandler.GetCandidates))
	mux.HandleFunc("GET /elections/{id}/status", middleware.WithLogging(electionHandler.GetStatus))
	mux.HandleFunc("GET /elections/{id}/winner", middleware.WithLogging(electionHandler.GetWinner))

	// Voting
	mux.HandleFunc("POST /elections/{id}/votes", middleware.WithLogging(votingHandler.CastVote))
	mux.HandleFunc("GET /elections/{id}/voters/{address}", middleware.WithLogging(votingHandler.GetBallot))

	// Users
	mux.HandleFunc("POST /users/register", middleware.WithLogging(userHandler.Register))
	mux.HandleFunc("GET /users/{address}", middleware.WithLogging(userHandler.GetUser))

	// Root endpoint
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("univote API v1"))
	})

	return mux
}
