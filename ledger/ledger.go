// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrRejected means the ledger refused the operation: invalid arguments,
	// missing authorization, or a reverted transaction.
	ErrRejected = errors.New("ledger rejected operation")

	// ErrIndeterminate means a transaction was submitted but not confirmed
	// within the bounded wait. The operation may still take effect.
	ErrIndeterminate = errors.New("ledger confirmation timed out")

	// ErrUnverified means the state-read fallback produced an answer that
	// did not match what the operation submitted.
	ErrUnverified = errors.New("ledger state did not match submitted operation")
)

// TxError describes a failed submission. TxRef is empty when the
// transaction never left this process.
type TxError struct {
	Op    string
	TxRef string
	Err   error
}

func (e *TxError) Error() string {
	if e.TxRef == "" {
		return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ledger %s (tx %s): %v", e.Op, e.TxRef, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// TxRefOf extracts the transaction reference from a submission error.
func TxRefOf(err error) string {
	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr.TxRef
	}
	return ""
}

// Receipt is the confirmed outcome of a submission.
type Receipt struct {
	TxRef     string
	Confirmed bool
	Logs      []*types.Log
}

type ElectionInfo struct {
	ID             uint64
	Title          string
	Started        bool
	Ended          bool
	CandidateCount uint64
}

type CandidateInfo struct {
	ID        uint64
	Name      string
	Address   common.Address
	VoteCount uint64
}

type VoterInfo struct {
	HasVoted    bool
	CandidateID uint64
}

// Reader is the read side of the contract. Reads reflect the latest
// confirmed block.
type Reader interface {
	ElectionCount(ctx context.Context) (uint64, error)
	GetElection(ctx context.Context, electionID uint64) (ElectionInfo, error)
	IsElectionStarted(ctx context.Context, electionID uint64) (bool, error)
	IsElectionEnded(ctx context.Context, electionID uint64) (bool, error)
	GetCandidate(ctx context.Context, electionID, candidateID uint64) (name string, votes uint64, err error)
	GetElectionCandidates(ctx context.Context, electionID uint64) ([]CandidateInfo, error)
	GetVoter(ctx context.Context, electionID uint64, voter common.Address) (VoterInfo, error)
	IsAdmin(ctx context.Context, addr common.Address) (bool, error)
}

// Client submits state-changing operations and blocks until each one is
// confirmed, rejected, or the confirmation wait runs out. Errors wrap
// ErrRejected or ErrIndeterminate inside a *TxError.
type Client interface {
	Reader
	CreateElection(ctx context.Context, title string) (Receipt, error)
	AddCandidate(ctx context.Context, electionID uint64, name string) (Receipt, error)
	StartElection(ctx context.Context, electionID uint64) (Receipt, error)
	EndElection(ctx context.Context, electionID uint64) (Receipt, error)
	VoteWithSignature(ctx context.Context, electionID, candidateID uint64, voter common.Address, signature []byte) (Receipt, error)
}

// ResolveCandidate returns the id the ledger assigned to a candidate added
// by rcpt. The CandidateAdded event is preferred; without it the newest
// candidate of the election is read back and only trusted if its name
// matches the one submitted.
func ResolveCandidate(ctx context.Context, r Reader, electionID uint64, name string, rcpt Receipt) (CandidateAdded, error) {
	if ev, ok := rcpt.CandidateAdded(); ok && ev.ElectionID == electionID {
		return ev, nil
	}

	slog.Warn("CandidateAdded event not found, falling back to state read",
		"election_id", electionID, "tx", rcpt.TxRef)

	info, err := r.GetElection(ctx, electionID)
	if err != nil {
		return CandidateAdded{}, fmt.Errorf("read election %d: %w", electionID, err)
	}
	if info.CandidateCount == 0 {
		return CandidateAdded{}, fmt.Errorf("election %d has no candidates: %w", electionID, ErrUnverified)
	}

	candidateID := info.CandidateCount
	gotName, _, err := r.GetCandidate(ctx, electionID, candidateID)
	if err != nil {
		return CandidateAdded{}, fmt.Errorf("read candidate %d/%d: %w", electionID, candidateID, err)
	}
	if gotName != name {
		return CandidateAdded{}, fmt.Errorf("candidate %d/%d is %q, submitted %q: %w",
			electionID, candidateID, gotName, name, ErrUnverified)
	}

	resolved := CandidateAdded{ElectionID: electionID, CandidateID: candidateID, Name: gotName}

	// The address is informational; a failed read leaves it zero.
	all, err := r.GetElectionCandidates(ctx, electionID)
	if err != nil {
		slog.Warn("failed to read candidate address", "election_id", electionID, "error", err)
		return resolved, nil
	}
	for _, c := range all {
		if c.ID == candidateID {
			resolved.Address = c.Address
			break
		}
	}
	return resolved, nil
}

// ResolveElection returns the id of the election created by rcpt. Without
// an ElectionCreated event the predicted id is verified by title, then the
// ids created after it are scanned in case another creator got there first.
func ResolveElection(ctx context.Context, r Reader, predictedID uint64, title string, rcpt Receipt) (uint64, error) {
	if ev, ok := rcpt.ElectionCreated(); ok && ev.Title == title {
		return ev.ElectionID, nil
	}

	slog.Warn("ElectionCreated event not found, falling back to state read",
		"predicted_id", predictedID, "tx", rcpt.TxRef)

	count, err := r.ElectionCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("read election count: %w", err)
	}
	for id := predictedID; id <= count; id++ {
		info, err := r.GetElection(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("read election %d: %w", id, err)
		}
		if info.Title == title {
			return id, nil
		}
	}
	return 0, fmt.Errorf("no election titled %q at or after id %d: %w", title, predictedID, ErrUnverified)
}
