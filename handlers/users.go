// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/univote/middleware"
	"github.com/danielhkuo/univote/models"
	"github.com/danielhkuo/univote/users"
)

type UserHandler struct {
	users *users.Service
}

func NewUserHandler(s *users.Service) *UserHandler {
	return &UserHandler{users: s}
}

// Register handles POST /users/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterUserRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	resp, err := h.users.Register(r.Context(), req)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	middleware.JSONResponse(w, status, resp)
}

// GetUser handles GET /users/{address}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), r.PathValue("address"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, u)
}
