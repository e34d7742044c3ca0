// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package voting

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/danielhkuo/univote/apperr"
	"github.com/danielhkuo/univote/auth"
	"github.com/danielhkuo/univote/eligibility"
	"github.com/danielhkuo/univote/ledger"
	"github.com/danielhkuo/univote/models"
	"github.com/danielhkuo/univote/pending"
	"github.com/danielhkuo/univote/store"
)

// Orchestrator casts votes. Every precondition is checked before the vote
// reaches the ledger; once the ledger confirms, the mirror is updated but
// never by resubmitting.
type Orchestrator struct {
	ledger  ledger.Client
	store   *store.Store
	pending *pending.Registry
}

func NewOrchestrator(l ledger.Client, st *store.Store, p *pending.Registry) *Orchestrator {
	return &Orchestrator{ledger: l, store: st, pending: p}
}

// CastVote submits voter's signed vote for a candidate.
func (o *Orchestrator) CastVote(ctx context.Context, voter common.Address, electionID uint64, req models.CastVoteRequest) (models.CastVoteResponse, error) {
	sig, err := decodeSignature(req.Signature)
	if err != nil {
		return models.CastVoteResponse{}, err
	}
	if req.CandidateID == 0 {
		return models.CastVoteResponse{}, apperr.New(apperr.ErrInvalidInput, "candidate_id is required")
	}
	wallet := auth.Canonical(voter)

	user, err := o.store.GetUserByWallet(ctx, wallet)
	if errors.Is(err, store.ErrNotFound) {
		return models.CastVoteResponse{}, apperr.New(apperr.ErrVoterNotRegistered, "wallet %s is not registered", wallet)
	}
	if err != nil {
		return models.CastVoteResponse{}, apperr.Wrap(apperr.ErrStore, err, "failed to load voter")
	}

	election, err := o.store.GetElection(ctx, electionID)
	if errors.Is(err, store.ErrNotFound) {
		return models.CastVoteResponse{}, apperr.New(apperr.ErrElectionNotFound, "election %d not found", electionID)
	}
	if err != nil {
		return models.CastVoteResponse{}, apperr.Wrap(apperr.ErrStore, err, "failed to load election")
	}
	if election.Phase != models.PhaseStarted {
		return models.CastVoteResponse{}, apperr.New(apperr.ErrElectionNotActive, "election %d is %s", electionID, election.Phase)
	}

	if _, err := o.store.GetCandidate(ctx, electionID, req.CandidateID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.CastVoteResponse{}, apperr.New(apperr.ErrCandidateNotFound, "candidate %d not in election %d", req.CandidateID, electionID)
		}
		return models.CastVoteResponse{}, apperr.Wrap(apperr.ErrStore, err, "failed to load candidate")
	}

	if !eligibility.IsEligible(election, user.Classification()) {
		return models.CastVoteResponse{}, apperr.New(apperr.ErrNotEligible, "voter is not eligible for election %d", electionID)
	}

	// The mirror may be stale; the ledger decides whether this voter has
	// voted. This is a check, not a lock: a racing duplicate is caught by
	// the ledger's own rejection below.
	prior, err := o.ledger.GetVoter(ctx, electionID, voter)
	if err != nil {
		return models.CastVoteResponse{}, apperr.Wrap(apperr.ErrLedgerUnavailable, err, "failed to read voter state")
	}
	if prior.HasVoted {
		o.backfillBallot(ctx, electionID, wallet, prior.CandidateID)
		return models.CastVoteResponse{}, apperr.New(apperr.ErrAlreadyVoted, "wallet %s already voted in election %d", wallet, electionID)
	}

	rcpt, err := o.ledger.VoteWithSignature(ctx, electionID, req.CandidateID, voter, sig)
	if err != nil {
		return models.CastVoteResponse{}, o.submitFailed(ctx, electionID, voter, err)
	}
	slog.Info("vote confirmed", "election_id", electionID, "candidate_id", req.CandidateID, "voter", wallet, "tx", rcpt.TxRef)

	mirrored := true
	if err := o.store.IncrementVoteCount(ctx, electionID, req.CandidateID); err != nil {
		slog.Error("vote confirmed but tally not mirrored", "election_id", electionID, "candidate_id", req.CandidateID, "tx", rcpt.TxRef, "error", err)
		mirrored = false
	}
	if err := o.store.RecordVote(ctx, electionID, wallet, req.CandidateID, rcpt.TxRef); err != nil {
		slog.Error("vote confirmed but ballot not mirrored", "election_id", electionID, "voter", wallet, "tx", rcpt.TxRef, "error", err)
		o.pending.PutBallot(pending.BallotKey{ElectionID: electionID, WalletAddress: wallet}, rcpt.TxRef)
		mirrored = false
	}

	if !mirrored {
		return models.CastVoteResponse{TxResponse: models.TxResponse{
			TxRef:         rcpt.TxRef,
			MirrorPending: true,
			Message:       "vote confirmed on ledger; mirror update pending reconciliation",
		}}, nil
	}
	return models.CastVoteResponse{TxResponse: models.TxResponse{TxRef: rcpt.TxRef, Message: "vote cast"}}, nil
}

// submitFailed classifies a failed vote submission. A rejection caused by a
// concurrent vote from the same wallet is reported as already voted.
func (o *Orchestrator) submitFailed(ctx context.Context, electionID uint64, voter common.Address, err error) error {
	wallet := auth.Canonical(voter)

	if errors.Is(err, ledger.ErrIndeterminate) {
		txRef := ledger.TxRefOf(err)
		slog.Warn("vote not confirmed in time", "election_id", electionID, "voter", wallet, "tx", txRef)
		o.pending.PutBallot(pending.BallotKey{ElectionID: electionID, WalletAddress: wallet}, txRef)
		return apperr.FromLedger(err, "vote")
	}

	if errors.Is(err, ledger.ErrRejected) {
		after, readErr := o.ledger.GetVoter(ctx, electionID, voter)
		if readErr == nil && after.HasVoted {
			o.backfillBallot(ctx, electionID, wallet, after.CandidateID)
			return apperr.Wrap(apperr.ErrAlreadyVoted, err, "wallet %s already voted in election %d", wallet, electionID)
		}
	}
	slog.Error("vote rejected", "election_id", electionID, "voter", wallet, "error", err)
	return apperr.FromLedger(err, "vote")
}

// backfillBallot records a ballot the ledger knows about but the mirror
// lacks. Tallies are left to the reconciler.
func (o *Orchestrator) backfillBallot(ctx context.Context, electionID uint64, wallet string, candidateID uint64) {
	if _, err := o.store.GetBallot(ctx, electionID, wallet); err == nil {
		return
	}
	if err := o.store.RecordVote(ctx, electionID, wallet, candidateID, ""); err != nil {
		slog.Warn("failed to backfill ballot", "election_id", electionID, "voter", wallet, "error", err)
	}
}

// Ballot reports whether a wallet has voted. The ledger answers when it
// can; otherwise the mirror row is returned and marked as such.
func (o *Orchestrator) Ballot(ctx context.Context, electionID uint64, voter common.Address) (models.Ballot, error) {
	if _, err := o.store.GetElection(ctx, electionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Ballot{}, apperr.New(apperr.ErrElectionNotFound, "election %d not found", electionID)
		}
		return models.Ballot{}, apperr.Wrap(apperr.ErrStore, err, "failed to load election")
	}
	wallet := auth.Canonical(voter)

	mirrored, err := o.store.GetBallot(ctx, electionID, wallet)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("failed to read mirrored ballot", "election_id", electionID, "voter", wallet, "error", err)
	}
	if err != nil {
		mirrored = models.Ballot{ElectionID: electionID, WalletAddress: wallet}
	}

	info, err := o.ledger.GetVoter(ctx, electionID, voter)
	if err != nil {
		slog.Warn("ledger voter read failed, serving mirror ballot", "election_id", electionID, "voter", wallet, "error", err)
		mirrored.Source = "mirror"
		return mirrored, nil
	}

	b := models.Ballot{
		ElectionID:    electionID,
		WalletAddress: wallet,
		HasVoted:      info.HasVoted,
		TxHash:        mirrored.TxHash,
		Source:        "ledger",
	}
	if info.HasVoted {
		id := info.CandidateID
		b.VotedCandidateID = &id
	}
	return b, nil
}

func decodeSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, apperr.New(apperr.ErrInvalidInput, "signature is required")
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, err, "signature must be hex encoded")
	}
	return sig, nil
}
