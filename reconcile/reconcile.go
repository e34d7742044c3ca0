// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/univote/auth"
	"github.com/danielhkuo/univote/ledger"
	"github.com/danielhkuo/univote/models"
	"github.com/danielhkuo/univote/pending"
	"github.com/danielhkuo/univote/store"
)

// DefaultWorkers is how many elections a pass reconciles at once.
const DefaultWorkers = 4

// PendingBallotTTL is how long a queued ballot the ledger has not confirmed
// is kept before it is dropped.
const PendingBallotTTL = 30 * time.Minute

// Report summarizes one pass.
type Report struct {
	Elections         int
	Discovered        int
	RulesApplied      int
	PhasesChanged     int
	CandidatesAdded   int
	CandidatesUpdated int
	CandidatesRemoved int
	BallotsRecovered  int
	Failed            int
	Duration          time.Duration
}

// Changes counts mirror writes made by the pass.
func (r Report) Changes() int {
	return r.Discovered + r.RulesApplied + r.PhasesChanged + r.CandidatesAdded + r.CandidatesUpdated + r.CandidatesRemoved + r.BallotsRecovered
}

func (r *Report) merge(o electionResult) {
	if o.phaseChanged {
		r.PhasesChanged++
	}
	r.CandidatesAdded += o.added
	r.CandidatesUpdated += o.updated
	r.CandidatesRemoved += o.removed
}

type electionResult struct {
	phaseChanged            bool
	added, updated, removed int
}

// Reconciler overwrites the mirror with ledger state. Running it twice with
// no ledger change in between writes nothing the second time.
type Reconciler struct {
	ledger    ledger.Reader
	store     *store.Store
	pending   *pending.Registry
	workers   int
	ballotTTL time.Duration
}

func New(l ledger.Reader, st *store.Store, p *pending.Registry, workers int) *Reconciler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Reconciler{ledger: l, store: st, pending: p, workers: workers, ballotTTL: PendingBallotTTL}
}

// RunOnce makes one full pass. Failures are isolated per election and
// counted in the report; the error is non-nil only when the mirror's
// election list cannot be read.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	var report Report

	ids, err := r.store.ElectionIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list mirrored elections: %w", err)
	}

	found, failed := r.discover(ctx, ids)
	report.Discovered = len(found)
	report.Failed += failed
	ids = append(ids, found...)
	report.Elections = len(ids)

	applied, failed := r.applyPendingRules(ctx)
	report.RulesApplied = applied
	report.Failed += failed

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.workers)
	for _, id := range ids {
		g.Go(func() error {
			res, err := r.reconcileElection(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Error("failed to reconcile election", "election_id", id, "error", err)
				report.Failed++
				return nil
			}
			report.merge(res)
			return nil
		})
	}
	_ = g.Wait()

	report.BallotsRecovered = r.recoverBallots(ctx)
	report.Duration = time.Since(start)

	slog.Info("reconciliation pass finished",
		"elections", humanize.Comma(int64(report.Elections)),
		"discovered", report.Discovered,
		"rules_applied", report.RulesApplied,
		"phases_changed", report.PhasesChanged,
		"candidates_added", report.CandidatesAdded,
		"candidates_updated", report.CandidatesUpdated,
		"candidates_removed", report.CandidatesRemoved,
		"ballots_recovered", report.BallotsRecovered,
		"failed", report.Failed,
		"took", report.Duration.Round(time.Millisecond).String(),
	)
	return report, nil
}

// discover mirrors elections the ledger has but the mirror does not, such
// as ones whose mirror write failed after confirmation.
func (r *Reconciler) discover(ctx context.Context, known []uint64) (found []uint64, failed int) {
	count, err := r.ledger.ElectionCount(ctx)
	if err != nil {
		slog.Error("failed to read election count, skipping discovery", "error", err)
		return nil, 1
	}

	mirrored := make(map[uint64]bool, len(known))
	for _, id := range known {
		mirrored[id] = true
	}

	for id := uint64(1); id <= count; id++ {
		if mirrored[id] {
			continue
		}
		if err := r.discoverElection(ctx, id); err != nil {
			slog.Error("failed to mirror discovered election", "election_id", id, "error", err)
			failed++
			continue
		}
		found = append(found, id)
	}
	return found, failed
}

func (r *Reconciler) discoverElection(ctx context.Context, id uint64) error {
	info, err := r.ledger.GetElection(ctx, id)
	if err != nil {
		return fmt.Errorf("read election: %w", err)
	}

	e := models.Election{
		ID:    id,
		Title: info.Title,
		Phase: models.PhaseFromLedger(info.Started, info.Ended),
	}
	if meta, ok := r.pending.Election(info.Title); ok {
		e.Type = meta.Type
		e.AllowedValues = meta.AllowedValues
		e.TxHash = meta.TxHash
	} else {
		// The ledger does not record eligibility rules. Nobody may vote
		// until an operator sets them.
		e.Type = models.TypeDepartment
		e.AllowedValues = []string{}
		slog.Warn("election discovered without metadata; mirrored as closed to all voters",
			"election_id", id, "title", info.Title)
	}

	if err := r.store.InsertElection(ctx, e); err != nil {
		return err
	}
	r.pending.DoneElection(info.Title)
	slog.Info("discovered election mirrored", "election_id", id, "title", info.Title, "type", e.Type)
	return nil
}

// applyPendingRules copies eligibility rules still held in the registry onto
// mirrored elections with the same id and title, then releases them. This
// covers a row inserted by discovery while its creator was still working.
func (r *Reconciler) applyPendingRules(ctx context.Context) (applied, failed int) {
	for _, meta := range r.pending.Elections() {
		e, err := r.store.GetElection(ctx, meta.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			slog.Error("failed to read election for pending rules", "election_id", meta.ID, "error", err)
			failed++
			continue
		}
		if e.Title != meta.Title {
			continue
		}
		if e.Type != meta.Type || !slices.Equal(e.AllowedValues, meta.AllowedValues) {
			if err := r.store.UpdateElectionRules(ctx, meta.ID, meta.Type, meta.AllowedValues); err != nil {
				slog.Error("failed to apply pending rules", "election_id", meta.ID, "error", err)
				failed++
				continue
			}
			slog.Info("pending eligibility rules applied", "election_id", meta.ID, "type", meta.Type)
			applied++
		}
		r.pending.DoneElection(meta.Title)
	}
	return applied, failed
}

func (r *Reconciler) reconcileElection(ctx context.Context, id uint64) (electionResult, error) {
	var res electionResult

	info, err := r.ledger.GetElection(ctx, id)
	if err != nil {
		return res, fmt.Errorf("read election: %w", err)
	}
	phase := models.PhaseFromLedger(info.Started, info.Ended)
	res.phaseChanged, err = r.store.SetPhase(ctx, id, phase)
	if err != nil {
		return res, err
	}
	if res.phaseChanged {
		slog.Info("election phase corrected", "election_id", id, "phase", phase)
	}

	onLedger, err := r.ledger.GetElectionCandidates(ctx, id)
	if err != nil {
		return res, fmt.Errorf("read candidates: %w", err)
	}
	inMirror, err := r.store.ListCandidates(ctx, id)
	if err != nil {
		return res, err
	}

	mirrorByID := make(map[uint64]models.Candidate, len(inMirror))
	for _, c := range inMirror {
		mirrorByID[c.LedgerID] = c
	}

	for _, lc := range onLedger {
		addr := addressPtr(lc.Address)
		mc, ok := mirrorByID[lc.ID]
		if !ok {
			c := &models.Candidate{ElectionID: id, LedgerID: lc.ID, Name: lc.Name, Address: addr, VoteCount: lc.VoteCount}
			err := r.store.InsertCandidate(ctx, c)
			if errors.Is(err, store.ErrConflict) {
				continue // added concurrently by the lifecycle manager
			}
			if err != nil {
				return res, err
			}
			res.added++
			continue
		}
		delete(mirrorByID, lc.ID)

		if mc.Name == lc.Name && mc.VoteCount == lc.VoteCount && sameAddress(mc.Address, addr) {
			continue
		}
		if err := r.store.UpdateCandidate(ctx, id, lc.ID, lc.Name, addr, lc.VoteCount); err != nil {
			return res, err
		}
		res.updated++
	}

	for ledgerID := range mirrorByID {
		err := r.store.DeleteCandidate(ctx, id, ledgerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return res, err
		}
		res.removed++
		slog.Info("candidate removed, no longer on ledger", "election_id", id, "candidate_id", ledgerID)
	}
	return res, nil
}

// recoverBallots writes ballots whose votes the ledger has confirmed but the
// mirror never recorded.
func (r *Reconciler) recoverBallots(ctx context.Context) int {
	recovered := 0
	for _, b := range r.pending.Ballots() {
		voter := common.HexToAddress(b.WalletAddress)
		info, err := r.ledger.GetVoter(ctx, b.ElectionID, voter)
		if err != nil {
			slog.Warn("failed to read pending ballot", "election_id", b.ElectionID, "voter", b.WalletAddress, "error", err)
			continue
		}

		if !info.HasVoted {
			if time.Since(b.Since) > r.ballotTTL {
				slog.Warn("dropping pending ballot never confirmed on ledger",
					"election_id", b.ElectionID, "voter", b.WalletAddress, "tx", b.TxRef,
					"queued", humanize.Time(b.Since))
				r.pending.DoneBallot(b.BallotKey)
			}
			continue
		}

		if err := r.store.RecordVote(ctx, b.ElectionID, b.WalletAddress, info.CandidateID, b.TxRef); err != nil {
			slog.Error("failed to recover ballot", "election_id", b.ElectionID, "voter", b.WalletAddress, "error", err)
			continue
		}
		r.pending.DoneBallot(b.BallotKey)
		recovered++
	}
	return recovered
}

func addressPtr(a common.Address) *string {
	if a == (common.Address{}) {
		return nil
	}
	s := auth.Canonical(a)
	return &s
}

func sameAddress(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
