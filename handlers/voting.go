// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/univote/apperr"
	"github.com/danielhkuo/univote/auth"
	"github.com/danielhkuo/univote/middleware"
	"github.com/danielhkuo/univote/models"
	"github.com/danielhkuo/univote/voting"
)

type VotingHandler struct {
	voting *voting.Orchestrator
}

func NewVotingHandler(o *voting.Orchestrator) *VotingHandler {
	return &VotingHandler{voting: o}
}

// CastVote handles POST /elections/{id}/votes
// The voter is the wallet in the X-Wallet-Address header.
func (h *VotingHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	id, err := electionID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	voter, err := caller(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	var req models.CastVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	resp, err := h.voting.CastVote(r.Context(), voter, id, req)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, txStatus(http.StatusOK, resp.MirrorPending), resp)
}

// GetBallot handles GET /elections/{id}/voters/{address}
func (h *VotingHandler) GetBallot(w http.ResponseWriter, r *http.Request) {
	id, err := electionID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	voter, err := auth.ParseAddress(r.PathValue("address"))
	if err != nil {
		middleware.WriteError(w, apperr.Wrap(apperr.ErrInvalidInput, err, "invalid wallet address"))
		return
	}

	ballot, err := h.voting.Ballot(r.Context(), id, voter)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, ballot)
}
