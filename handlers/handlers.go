// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/danielhkuo/univote/apperr"
	"github.com/danielhkuo/univote/auth"
)

// electionID reads the {id} path value.
func electionID(r *http.Request) (uint64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.New(apperr.ErrInvalidInput, "election id must be a positive integer, got %q", raw)
	}
	return id, nil
}

// caller reads the wallet address identifying the caller.
func caller(r *http.Request) (common.Address, error) {
	raw := r.Header.Get(auth.WalletHeader)
	if strings.TrimSpace(raw) == "" {
		return common.Address{}, apperr.New(apperr.ErrInvalidInput, "%s header is required", auth.WalletHeader)
	}
	addr, err := auth.ParseAddress(raw)
	if err != nil {
		return common.Address{}, apperr.Wrap(apperr.ErrInvalidInput, err, "%s is not a valid address", auth.WalletHeader)
	}
	return addr, nil
}

// txStatus is ok, or 202 Accepted when the ledger confirmed but the mirror
// has not caught up.
func txStatus(ok int, mirrorPending bool) int {
	if mirrorPending {
		return http.StatusAccepted
	}
	return ok
}
