// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth identifies callers by wallet address and checks admin rights.

# Wallet Addresses

Callers present their address in the X-Wallet-Address header. Addresses are
parsed with go-ethereum's hex rules and stored lower-case:

	addr, err := auth.ParseAddress(r.Header.Get(auth.WalletHeader))
	key := auth.Canonical(addr) // "0x5290...9ee7"

# Admins

Election authorities are whoever the contract's admins mapping says they are.
AdminChecker reads it through the ledger client and caches each answer in an
expiring LRU:

	checker := auth.NewAdminChecker(ledgerClient, 30*time.Second)
	if err := checker.Require(ctx, addr); err != nil {
		// apperr.ErrNotAdmin
	}

A failed ledger read denies access; it is never treated as "admin".
Revocation on the ledger takes effect once the cached entry expires.
*/
package auth
