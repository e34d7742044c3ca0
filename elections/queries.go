// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package elections

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielhkuo/univote/apperr"
	"github.com/danielhkuo/univote/models"
	"github.com/danielhkuo/univote/store"
)

// List returns every election, newest first, with mirrored vote totals.
func (m *Manager) List(ctx context.Context) ([]models.ElectionWithTotals, error) {
	list, err := m.store.ListElections(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStore, err, "failed to list elections")
	}
	return list, nil
}

func (m *Manager) Candidates(ctx context.Context, electionID uint64) ([]models.Candidate, error) {
	if _, err := m.election(ctx, electionID); err != nil {
		return nil, err
	}
	list, err := m.store.ListCandidates(ctx, electionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStore, err, "failed to list candidates")
	}
	return list, nil
}

// Status reads the phase from the ledger and moves the mirror forward when
// it lags. If the ledger cannot be read the mirror's phase is returned
// and labelled as such.
func (m *Manager) Status(ctx context.Context, electionID uint64) (models.StatusResponse, error) {
	e, err := m.election(ctx, electionID)
	if err != nil {
		return models.StatusResponse{}, err
	}

	phase, err := m.ledgerPhase(ctx, electionID)
	if err != nil {
		slog.Warn("ledger status read failed, serving mirror phase", "election_id", electionID, "error", err)
		return statusOf(electionID, e.Phase, "mirror"), nil
	}

	if phase != e.Phase {
		changed, err := m.store.AdvancePhase(ctx, electionID, phase)
		if err != nil {
			slog.Error("failed to correct mirror phase", "election_id", electionID, "phase", phase, "error", err)
		} else if changed {
			slog.Info("mirror phase corrected from ledger", "election_id", electionID, "from", e.Phase, "to", phase)
		}
	}
	return statusOf(electionID, phase, "ledger"), nil
}

func (m *Manager) ledgerPhase(ctx context.Context, electionID uint64) (models.Phase, error) {
	started, err := m.ledger.IsElectionStarted(ctx, electionID)
	if err != nil {
		return "", err
	}
	ended, err := m.ledger.IsElectionEnded(ctx, electionID)
	if err != nil {
		return "", err
	}
	return models.PhaseFromLedger(started, ended), nil
}

func statusOf(electionID uint64, p models.Phase, source string) models.StatusResponse {
	return models.StatusResponse{
		ElectionID: electionID,
		Phase:      p,
		IsStarted:  p == models.PhaseStarted,
		IsEnded:    p == models.PhaseEnded,
		Source:     source,
	}
}

// Winner returns the candidate with the highest mirrored tally; ties go to
// the lowest ledger id.
func (m *Manager) Winner(ctx context.Context, electionID uint64) (models.WinnerResponse, error) {
	if _, err := m.election(ctx, electionID); err != nil {
		return models.WinnerResponse{}, err
	}
	top, err := m.store.TopCandidate(ctx, electionID)
	if errors.Is(err, store.ErrNotFound) {
		return models.WinnerResponse{}, apperr.New(apperr.ErrCandidateNotFound, "election %d has no candidates", electionID)
	}
	if err != nil {
		return models.WinnerResponse{}, apperr.Wrap(apperr.ErrStore, err, "failed to find winner")
	}
	return models.WinnerResponse{
		ElectionID:  electionID,
		CandidateID: top.LedgerID,
		WinnerName:  top.Name,
		HighestVote: top.VoteCount,
	}, nil
}
