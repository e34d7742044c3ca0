// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package apperr is the error taxonomy shared by the service layer and the
// HTTP surface. Errors carry a Kind (how the caller should react) and a
// stable Code (what happened); errors.Is matches on Code.
package apperr

import (
	"errors"
	"fmt"

	"github.com/danielhkuo/univote/ledger"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindAuthorization
	KindLedger
	KindIndeterminate
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	case KindLedger:
		return "ledger"
	case KindIndeterminate:
		return "indeterminate"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
	// TxRef is set when a ledger transaction was submitted.
	TxRef string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidInput           = &Error{Kind: KindValidation, Code: "invalid_input"}
	ErrInvalidCredential      = &Error{Kind: KindValidation, Code: "invalid_credential"}
	ErrElectionNotFound       = &Error{Kind: KindNotFound, Code: "election_not_found"}
	ErrCandidateNotFound      = &Error{Kind: KindNotFound, Code: "candidate_not_found"}
	ErrVoterNotRegistered     = &Error{Kind: KindNotFound, Code: "voter_not_registered"}
	ErrUserNotFound           = &Error{Kind: KindNotFound, Code: "user_not_found"}
	ErrDuplicateTitle         = &Error{Kind: KindConflict, Code: "duplicate_title"}
	ErrElectionAlreadyStarted = &Error{Kind: KindConflict, Code: "election_already_started"}
	ErrElectionNotActive      = &Error{Kind: KindConflict, Code: "election_not_active"}
	ErrAlreadyVoted           = &Error{Kind: KindConflict, Code: "already_voted"}
	ErrCredentialLinked       = &Error{Kind: KindConflict, Code: "credential_linked"}
	ErrWalletLinked           = &Error{Kind: KindConflict, Code: "wallet_linked"}
	ErrNotAdmin               = &Error{Kind: KindAuthorization, Code: "not_admin"}
	ErrNotEligible            = &Error{Kind: KindAuthorization, Code: "not_eligible"}
	ErrLedgerRejected         = &Error{Kind: KindLedger, Code: "ledger_rejected"}
	ErrLedgerUnavailable      = &Error{Kind: KindLedger, Code: "ledger_unavailable"}
	ErrIndeterminate          = &Error{Kind: KindIndeterminate, Code: "indeterminate"}
	ErrStore                  = &Error{Kind: KindStore, Code: "store_failure"}
)

// New copies base with a message.
func New(base *Error, format string, args ...any) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap copies base with a message and an underlying cause.
func Wrap(base *Error, err error, format string, args ...any) *Error {
	e := New(base, format, args...)
	e.Err = err
	return e
}

// WithTx attaches a transaction reference and returns e.
func (e *Error) WithTx(txRef string) *Error {
	e.TxRef = txRef
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// FromLedger translates a failed ledger submission. An unconfirmed
// submission is Indeterminate, never a plain failure: the operation may
// still land, and the tx ref is the caller's only handle on it.
func FromLedger(err error, op string) *Error {
	txRef := ledger.TxRefOf(err)
	if errors.Is(err, ledger.ErrIndeterminate) {
		return Wrap(ErrIndeterminate, err, "%s was submitted but not confirmed; query status before retrying", op).WithTx(txRef)
	}
	return Wrap(ErrLedgerRejected, err, "%s rejected by ledger", op).WithTx(txRef)
}
