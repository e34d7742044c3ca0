// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/univote/auth"
	"github.com/danielhkuo/univote/elections"
	"github.com/danielhkuo/univote/middleware"
	"github.com/danielhkuo/univote/models"
)

type ElectionHandler struct {
	elections *elections.Manager
	admins    *auth.AdminChecker
}

func NewElectionHandler(m *elections.Manager, admins *auth.AdminChecker) *ElectionHandler {
	return &ElectionHandler{elections: m, admins: admins}
}

// requireAdmin writes the error response and returns false unless the
// caller is an election authority.
func (h *ElectionHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	addr, err := caller(r)
	if err != nil {
		middleware.WriteError(w, err)
		return false
	}
	if err := h.admins.Require(r.Context(), addr); err != nil {
		middleware.WriteError(w, err)
		return false
	}
	return true
}

// CreateElection handles POST /elections
func (h *ElectionHandler) CreateElection(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req models.CreateElectionRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	resp, err := h.elections.Create(r.Context(), req)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, txStatus(http.StatusCreated, resp.MirrorPending), resp)
}

// AddCandidate handles POST /elections/{id}/candidates
func (h *ElectionHandler) AddCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := electionID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}

	var req models.AddCandidateRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	resp, err := h.elections.AddCandidate(r.Context(), id, req)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, txStatus(http.StatusCreated, resp.MirrorPending), resp)
}

// StartElection handles POST /elections/{id}/start
func (h *ElectionHandler) StartElection(w http.ResponseWriter, r *http.Request) {
	id, err := electionID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}

	resp, err := h.elections.Start(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, txStatus(http.StatusOK, resp.MirrorPending), resp)
}

// EndElection handles POST /elections/{id}/end
func (h *ElectionHandler) EndElection(w http.ResponseWriter, r *http.Request) {
	id, err := electionID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}

	resp, err := h.elections.End(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, txStatus(http.StatusOK, resp.MirrorPending), resp)
}

// ListElections handles GET /elections
func (h *ElectionHandler) ListElections(w http.ResponseWriter, r *http.Request) {
	list, err := h.elections.List(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, list)
}

// GetCandidates handles GET /elections/{id}/candidates
func (h *ElectionHandler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	id, err := electionID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	list, err := h.elections.Candidates(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, list)
}

// GetStatus handles GET /elections/{id}/status
func (h *ElectionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := electionID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	status, err := h.elections.Status(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, status)
}

// GetWinner handles GET /elections/{id}/winner
func (h *ElectionHandler) GetWinner(w http.ResponseWriter, r *http.Request) {
	id, err := electionID(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	winner, err := h.elections.Winner(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, winner)
}
