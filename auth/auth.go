// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/danielhkuo/univote/apperr"
	"github.com/danielhkuo/univote/ledger"
)

// WalletHeader carries the caller's wallet address.
const WalletHeader = "X-Wallet-Address"

// DefaultAdminCacheTTL bounds how long a revoked admin keeps access.
const DefaultAdminCacheTTL = 30 * time.Second

const adminCacheSize = 256

var ErrInvalidAddress = errors.New("invalid wallet address")

// ParseAddress accepts a hex address with or without the 0x prefix, in any
// case.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// Canonical is the form addresses are stored and compared in: 0x-prefixed
// lower-case hex.
func Canonical(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// NormalizeAddress parses s and returns its canonical form.
func NormalizeAddress(s string) (string, error) {
	a, err := ParseAddress(s)
	if err != nil {
		return "", err
	}
	return Canonical(a), nil
}

// AdminChecker answers "is this address an election authority" from the
// contract's admins mapping. Answers are cached for a short TTL so every
// admin request does not cost a ledger read.
type AdminChecker struct {
	reader ledger.Reader
	cache  *expirable.LRU[common.Address, bool]
}

func NewAdminChecker(r ledger.Reader, ttl time.Duration) *AdminChecker {
	if ttl <= 0 {
		ttl = DefaultAdminCacheTTL
	}
	return &AdminChecker{
		reader: r,
		cache:  expirable.NewLRU[common.Address, bool](adminCacheSize, nil, ttl),
	}
}

func (a *AdminChecker) IsAdmin(ctx context.Context, addr common.Address) (bool, error) {
	if ok, hit := a.cache.Get(addr); hit {
		return ok, nil
	}
	ok, err := a.reader.IsAdmin(ctx, addr)
	if err != nil {
		return false, err
	}
	a.cache.Add(addr, ok)
	return ok, nil
}

// Require fails with not_admin unless addr is an admin. A failed ledger read
// also denies access.
func (a *AdminChecker) Require(ctx context.Context, addr common.Address) error {
	ok, err := a.IsAdmin(ctx, addr)
	if err != nil {
		slog.Error("admin lookup failed", "address", Canonical(addr), "error", err)
		return apperr.Wrap(apperr.ErrNotAdmin, err, "could not verify admin status")
	}
	if !ok {
		return apperr.New(apperr.ErrNotAdmin, "%s is not an election admin", Canonical(addr))
	}
	return nil
}
