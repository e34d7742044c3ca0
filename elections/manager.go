// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package elections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/danielhkuo/univote/apperr"
	"github.com/danielhkuo/univote/auth"
	"github.com/danielhkuo/univote/ledger"
	"github.com/danielhkuo/univote/models"
	"github.com/danielhkuo/univote/pending"
	"github.com/danielhkuo/univote/store"
)

// Manager runs the election lifecycle: every state change is submitted to
// the ledger first and mirrored only after confirmation.
type Manager struct {
	ledger  ledger.Client
	store   *store.Store
	pending *pending.Registry
}

func NewManager(l ledger.Client, st *store.Store, p *pending.Registry) *Manager {
	return &Manager{ledger: l, store: st, pending: p}
}

const mirrorPendingMsg = "confirmed on ledger; mirror update pending reconciliation"

// Create submits a new election and mirrors it as not started.
func (m *Manager) Create(ctx context.Context, req models.CreateElectionRequest) (models.CreateElectionResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return models.CreateElectionResponse{}, apperr.New(apperr.ErrInvalidInput, "title is required")
	}
	typ := req.Type
	if typ == "" {
		typ = models.TypeGeneral
	}
	if !typ.Valid() {
		return models.CreateElectionResponse{}, apperr.New(apperr.ErrInvalidInput, "type must be general, department or program")
	}
	allowed := cleanValues(req.AllowedValues)
	if typ == models.TypeGeneral {
		allowed = []string{}
	} else if len(allowed) == 0 {
		return models.CreateElectionResponse{}, apperr.New(apperr.ErrInvalidInput, "%s elections need at least one allowed value", typ)
	}

	exists, err := m.store.TitleExists(ctx, title)
	if err != nil {
		return models.CreateElectionResponse{}, apperr.Wrap(apperr.ErrStore, err, "failed to check title")
	}
	if exists {
		return models.CreateElectionResponse{}, apperr.New(apperr.ErrDuplicateTitle, "an election titled %q already exists", title)
	}

	count, err := m.ledger.ElectionCount(ctx)
	if err != nil {
		return models.CreateElectionResponse{}, apperr.Wrap(apperr.ErrLedgerUnavailable, err, "failed to read election count")
	}
	predicted := count + 1
	e := models.Election{
		ID:            predicted,
		Title:         title,
		Type:          typ,
		AllowedValues: allowed,
		Phase:         models.PhaseNotStarted,
	}

	// A pass may discover the election before it is mirrored here; it takes
	// the rules from the registry.
	m.pending.PutElection(e)

	rcpt, err := m.ledger.CreateElection(ctx, title)
	if err != nil {
		if errors.Is(err, ledger.ErrIndeterminate) {
			// If it lands, the reconciler can still attach the metadata.
			e.TxHash = ledger.TxRefOf(err)
			m.pending.PutElection(e)
		} else {
			m.pending.DoneElection(title)
		}
		slog.Error("create election failed", "title", title, "error", err)
		return models.CreateElectionResponse{}, apperr.FromLedger(err, "create election")
	}
	e.TxHash = rcpt.TxRef
	m.pending.PutElection(e)
	slog.Info("election created on ledger", "title", title, "tx", rcpt.TxRef)

	id, err := ledger.ResolveElection(ctx, m.ledger, predicted, title, rcpt)
	if err != nil {
		slog.Error("election confirmed but id unresolved", "title", title, "tx", rcpt.TxRef, "error", err)
		return models.CreateElectionResponse{TxResponse: degraded(rcpt.TxRef)}, nil
	}
	e.ID = id
	m.pending.PutElection(e)

	err = m.store.InsertElection(ctx, e)
	if errors.Is(err, store.ErrConflict) {
		err = m.adoptMirrored(ctx, e)
	}
	if err != nil {
		slog.Error("election confirmed but not mirrored", "election_id", id, "tx", rcpt.TxRef, "error", err)
		return models.CreateElectionResponse{TxResponse: degraded(rcpt.TxRef), Election: &e}, nil
	}
	m.pending.DoneElection(title)

	stored, err := m.store.GetElection(ctx, id)
	if err == nil {
		e = stored
	}
	return models.CreateElectionResponse{
		TxResponse: models.TxResponse{TxRef: rcpt.TxRef, Message: "election created"},
		Election:   &e,
	}, nil
}

// AddCandidate submits a candidate for an election that has not started.
// The candidate id comes from the ledger, never from the mirror.
func (m *Manager) AddCandidate(ctx context.Context, electionID uint64, req models.AddCandidateRequest) (models.AddCandidateResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return models.AddCandidateResponse{}, apperr.New(apperr.ErrInvalidInput, "candidate name is required")
	}

	e, err := m.election(ctx, electionID)
	if err != nil {
		return models.AddCandidateResponse{}, err
	}
	if e.Phase != models.PhaseNotStarted {
		return models.AddCandidateResponse{}, apperr.New(apperr.ErrElectionAlreadyStarted, "election %d is %s", electionID, e.Phase)
	}

	rcpt, err := m.ledger.AddCandidate(ctx, electionID, name)
	if err != nil {
		slog.Error("add candidate failed", "election_id", electionID, "name", name, "error", err)
		return models.AddCandidateResponse{}, apperr.FromLedger(err, "add candidate")
	}
	slog.Info("candidate added on ledger", "election_id", electionID, "name", name, "tx", rcpt.TxRef)

	ev, err := ledger.ResolveCandidate(ctx, m.ledger, electionID, name, rcpt)
	if err != nil {
		slog.Error("candidate confirmed but id unresolved", "election_id", electionID, "tx", rcpt.TxRef, "error", err)
		return models.AddCandidateResponse{TxResponse: degraded(rcpt.TxRef)}, nil
	}

	c := models.Candidate{
		ElectionID: electionID,
		LedgerID:   ev.CandidateID,
		Name:       ev.Name,
		Address:    addressPtr(ev.Address),
		TxHash:     rcpt.TxRef,
	}
	err = m.store.InsertCandidate(ctx, &c)
	if errors.Is(err, store.ErrConflict) {
		// The reconciler mirrored it first.
		if existing, getErr := m.store.GetCandidate(ctx, electionID, ev.CandidateID); getErr == nil {
			c, err = existing, nil
		}
	}
	if err != nil {
		slog.Error("candidate confirmed but not mirrored", "election_id", electionID, "candidate_id", ev.CandidateID, "tx", rcpt.TxRef, "error", err)
		return models.AddCandidateResponse{TxResponse: degraded(rcpt.TxRef), Candidate: &c}, nil
	}

	return models.AddCandidateResponse{
		TxResponse: models.TxResponse{TxRef: rcpt.TxRef, Message: "candidate added"},
		Candidate:  &c,
	}, nil
}

// Start submits startElection. Phase order is the ledger's to enforce, so a
// repeated start comes back as a ledger rejection, not a mirror error.
func (m *Manager) Start(ctx context.Context, electionID uint64) (models.TxResponse, error) {
	return m.transition(ctx, electionID, models.PhaseStarted, "start election", m.ledger.StartElection)
}

// End submits endElection without checking locally that the election was
// started first.
func (m *Manager) End(ctx context.Context, electionID uint64) (models.TxResponse, error) {
	return m.transition(ctx, electionID, models.PhaseEnded, "end election", m.ledger.EndElection)
}

func (m *Manager) transition(ctx context.Context, electionID uint64, to models.Phase, op string, submit func(context.Context, uint64) (ledger.Receipt, error)) (models.TxResponse, error) {
	if _, err := m.election(ctx, electionID); err != nil {
		return models.TxResponse{}, err
	}

	rcpt, err := submit(ctx, electionID)
	if err != nil {
		slog.Error(op+" failed", "election_id", electionID, "error", err)
		return models.TxResponse{}, apperr.FromLedger(err, op)
	}
	slog.Info(op+" confirmed", "election_id", electionID, "tx", rcpt.TxRef)

	// Forward only: an overlapping End may already have been mirrored.
	if _, err := m.store.AdvancePhase(ctx, electionID, to); err != nil {
		slog.Error("phase confirmed but not mirrored", "election_id", electionID, "phase", to, "tx", rcpt.TxRef, "error", err)
		return degraded(rcpt.TxRef), nil
	}
	return models.TxResponse{TxRef: rcpt.TxRef, Message: "election " + string(to)}, nil
}

// adoptMirrored handles a row for e that a reconciliation pass inserted
// first, possibly without e's eligibility rules.
func (m *Manager) adoptMirrored(ctx context.Context, e models.Election) error {
	existing, err := m.store.GetElection(ctx, e.ID)
	if err != nil {
		return err
	}
	if existing.Title != e.Title {
		return fmt.Errorf("election %d is mirrored as %q: %w", e.ID, existing.Title, store.ErrConflict)
	}
	if existing.Type == e.Type && slices.Equal(existing.AllowedValues, e.AllowedValues) {
		return nil
	}
	if err := m.store.UpdateElectionRules(ctx, e.ID, e.Type, e.AllowedValues); err != nil {
		return err
	}
	slog.Info("eligibility rules applied to reconciled election", "election_id", e.ID, "type", e.Type)
	return nil
}

// election loads the mirror row and maps lookup failures onto the taxonomy.
func (m *Manager) election(ctx context.Context, electionID uint64) (models.Election, error) {
	e, err := m.store.GetElection(ctx, electionID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Election{}, apperr.New(apperr.ErrElectionNotFound, "election %d not found", electionID)
	}
	if err != nil {
		return models.Election{}, apperr.Wrap(apperr.ErrStore, err, "failed to load election %d", electionID)
	}
	return e, nil
}

func degraded(txRef string) models.TxResponse {
	return models.TxResponse{TxRef: txRef, MirrorPending: true, Message: mirrorPendingMsg}
}

func addressPtr(a common.Address) *string {
	if a == (common.Address{}) {
		return nil
	}
	s := auth.Canonical(a)
	return &s
}

// cleanValues trims entries and drops blanks and duplicates.
func cleanValues(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
