// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"fmt"
	"time"
)

// Phase is the lifecycle state of an election. Exactly one holds at a time.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseStarted    Phase = "started"
	PhaseEnded      Phase = "ended"
)

// Flags expands the phase into the mirror's three-column representation.
func (p Phase) Flags() (notStarted, started, ended bool) {
	switch p {
	case PhaseStarted:
		return false, true, false
	case PhaseEnded:
		return false, false, true
	default:
		return true, false, false
	}
}

func (p Phase) Valid() bool {
	return p == PhaseNotStarted || p == PhaseStarted || p == PhaseEnded
}

// PhaseFromLedger folds the ledger's two booleans into a phase.
// An ended election reports ended even if the started flag is also set.
func PhaseFromLedger(started, ended bool) Phase {
	switch {
	case ended:
		return PhaseEnded
	case started:
		return PhaseStarted
	default:
		return PhaseNotStarted
	}
}

// PhaseFromFlags reads the mirror's three columns back into a phase and
// rejects rows where the flags are not mutually exclusive.
func PhaseFromFlags(notStarted, started, ended bool) (Phase, error) {
	n := 0
	for _, b := range []bool{notStarted, started, ended} {
		if b {
			n++
		}
	}
	if n != 1 {
		return "", fmt.Errorf("phase flags not exclusive (not_started=%t started=%t ended=%t)", notStarted, started, ended)
	}
	switch {
	case started:
		return PhaseStarted, nil
	case ended:
		return PhaseEnded, nil
	default:
		return PhaseNotStarted, nil
	}
}

// ElectionType decides which classification field gates eligibility.
type ElectionType string

const (
	TypeGeneral    ElectionType = "general"
	TypeDepartment ElectionType = "department"
	TypeProgram    ElectionType = "program"
)

func (t ElectionType) Valid() bool {
	return t == TypeGeneral || t == TypeDepartment || t == TypeProgram
}

// Request types

type CreateElectionRequest struct {
	Title         string       `json:"title"`
	Type          ElectionType `json:"type"`
	AllowedValues []string     `json:"allowed_values"`
}

type AddCandidateRequest struct {
	Name string `json:"name"`
}

// Signature is hex encoded, produced by the voter's key off-system.
type CastVoteRequest struct {
	CandidateID uint64 `json:"candidate_id"`
	Signature   string `json:"signature"`
}

type RegisterUserRequest struct {
	Credential    string `json:"credential"`
	WalletAddress string `json:"wallet_address"`
}

// Response types

// MirrorPending is set when the ledger confirmed the operation but the
// mirror write failed; the reconciliation job will catch it up.
type TxResponse struct {
	TxRef         string `json:"tx_ref"`
	MirrorPending bool   `json:"mirror_pending,omitempty"`
	Message       string `json:"message"`
}

type CreateElectionResponse struct {
	TxResponse
	Election *Election `json:"election,omitempty"`
}

type AddCandidateResponse struct {
	TxResponse
	Candidate *Candidate `json:"candidate,omitempty"`
}

type CastVoteResponse struct {
	TxResponse
}

type StatusResponse struct {
	ElectionID uint64 `json:"election_id"`
	Phase      Phase  `json:"phase"`
	IsStarted  bool   `json:"is_started"`
	IsEnded    bool   `json:"is_ended"`
	// Source is "ledger", or "mirror" when the ledger could not be read.
	Source string `json:"source"`
}

type WinnerResponse struct {
	ElectionID  uint64 `json:"election_id"`
	CandidateID uint64 `json:"candidate_id"`
	WinnerName  string `json:"winner_name"`
	HighestVote uint64 `json:"highest_votes"`
}

type RegisterUserResponse struct {
	User    User   `json:"user"`
	Created bool   `json:"created"`
	Message string `json:"message"`
}

// Domain types

type Election struct {
	ID            uint64       `json:"id"`
	Title         string       `json:"title"`
	Type          ElectionType `json:"type"`
	AllowedValues []string     `json:"allowed_values"`
	Phase         Phase        `json:"phase"`
	TxHash        string       `json:"tx_hash,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

type ElectionWithTotals struct {
	Election
	TotalVotes uint64 `json:"total_votes"`
}

// Candidate.ID is the storage key; LedgerID is only unique within an election.
type Candidate struct {
	ID         string  `json:"-"`
	ElectionID uint64  `json:"election_id"`
	LedgerID   uint64  `json:"id"`
	Name       string  `json:"name"`
	Address    *string `json:"candidate_address,omitempty"`
	VoteCount  uint64  `json:"vote_count"`
	TxHash     string  `json:"tx_hash,omitempty"`
}

// Classification is the eligibility-relevant view of a credential.
type Classification struct {
	Department string `json:"department"`
	Program    string `json:"program"`
}

type User struct {
	WalletAddress string    `json:"wallet_address"`
	Credential    string    `json:"credential"`
	Department    string    `json:"department"`
	Program       string    `json:"program"`
	CreatedAt     time.Time `json:"created_at"`
}

func (u User) Classification() Classification {
	return Classification{Department: u.Department, Program: u.Program}
}

type Ballot struct {
	ElectionID       uint64  `json:"election_id"`
	WalletAddress    string  `json:"wallet_address"`
	HasVoted         bool    `json:"has_voted"`
	VotedCandidateID *uint64 `json:"voted_candidate_id"`
	TxHash           string  `json:"tx_hash,omitempty"`
	Source           string  `json:"source,omitempty"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	TxRef   string `json:"tx_ref,omitempty"`
}
