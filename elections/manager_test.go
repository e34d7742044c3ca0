// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package elections

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/univote/apperr"
	"github.com/danielhkuo/univote/ledger/ledgertest"
	"github.com/danielhkuo/univote/models"
	"github.com/danielhkuo/univote/pending"
	"github.com/danielhkuo/univote/store"
	"github.com/danielhkuo/univote/testutil"
)

type fixture struct {
	mgr     *Manager
	ledger  *ledgertest.Ledger
	store   *store.Store
	pending *pending.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	l := testutil.NewLedger()
	st := store.New(testutil.SetupTestDB(t))
	p := pending.New()
	return fixture{mgr: NewManager(l, st, p), ledger: l, store: st, pending: p}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.mgr.Create(ctx, models.CreateElectionRequest{Title: "  Spring Vote  "})
	require.NoError(t, err)
	require.NotNil(t, resp.Election)
	assert.False(t, resp.MirrorPending)
	assert.NotEmpty(t, resp.TxRef)

	e := resp.Election
	assert.Equal(t, uint64(1), e.ID)
	assert.Equal(t, "Spring Vote", e.Title)
	assert.Equal(t, models.TypeGeneral, e.Type)
	assert.Equal(t, models.PhaseNotStarted, e.Phase)
	assert.Equal(t, resp.TxRef, e.TxHash)

	stored, err := f.store.GetElection(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Spring Vote", stored.Title)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		req  models.CreateElectionRequest
	}{
		{"empty title", models.CreateElectionRequest{Title: "   "}},
		{"unknown type", models.CreateElectionRequest{Title: "A", Type: "faculty"}},
		{"department without values", models.CreateElectionRequest{Title: "A", Type: models.TypeDepartment}},
		{"program with blank values", models.CreateElectionRequest{Title: "A", Type: models.TypeProgram, AllowedValues: []string{" ", ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.mgr.Create(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrInvalidInput)
			assert.Zero(t, f.ledger.Submissions("createElection"), "validation failures must not reach the ledger")
		})
	}
}

func TestCreateDuplicateTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Create(ctx, models.CreateElectionRequest{Title: "Spring Vote"})
	require.NoError(t, err)

	_, err = f.mgr.Create(ctx, models.CreateElectionRequest{Title: "Spring Vote"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateTitle)
	assert.Equal(t, 1, f.ledger.Submissions("createElection"))
}

func TestCreateRestrictedKeepsAllowedValues(t *testing.T) {
	f := newFixture(t)
	resp, err := f.mgr.Create(context.Background(), models.CreateElectionRequest{
		Title:         "CS Rep",
		Type:          models.TypeProgram,
		AllowedValues: []string{testutil.ProgramCS, testutil.ProgramCS, " "},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{testutil.ProgramCS}, resp.Election.AllowedValues)
}

func TestCreateWithoutEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Election 1 belongs to another client; the new id comes from a state read.
	f.ledger.SeedElection("Other")
	f.ledger.DropEvents(true)

	resp, err := f.mgr.Create(ctx, models.CreateElectionRequest{Title: "Spring Vote"})
	require.NoError(t, err)
	require.NotNil(t, resp.Election)
	assert.Equal(t, uint64(2), resp.Election.ID)
}

func TestCreateIndeterminate(t *testing.T) {
	f := newFixture(t)
	f.ledger.Stall("createElection", true)

	_, err := f.mgr.Create(context.Background(), models.CreateElectionRequest{
		Title:         "Spring Vote",
		Type:          models.TypeDepartment,
		AllowedValues: []string{testutil.DeptCIS},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrIndeterminate)

	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.NotEmpty(t, ae.TxRef)

	// The metadata waits for the reconciler under the predicted id.
	meta, ok := f.pending.Election("Spring Vote")
	require.True(t, ok)
	assert.Equal(t, uint64(1), meta.ID)
	assert.Equal(t, models.TypeDepartment, meta.Type)
	assert.NotEmpty(t, meta.TxHash)
}

func TestCreateRegistersRulesBeforeConfirmation(t *testing.T) {
	f := newFixture(t)
	f.ledger.OnConfirm("createElection", func() {
		meta, ok := f.pending.Election("CS Council")
		if assert.True(t, ok, "rules must be registered while the ledger confirms") {
			assert.Equal(t, models.TypeProgram, meta.Type)
			assert.Equal(t, []string{testutil.ProgramCS}, meta.AllowedValues)
		}
	})

	_, err := f.mgr.Create(context.Background(), models.CreateElectionRequest{
		Title:         "CS Council",
		Type:          models.TypeProgram,
		AllowedValues: []string{testutil.ProgramCS},
	})
	require.NoError(t, err)

	_, ok := f.pending.Election("CS Council")
	assert.False(t, ok, "rules should be released once mirrored")
}

// TestCreateAdoptsReconciledRow covers a pass that mirrored the new election
// with fail-closed rules before Create inserted it.
func TestCreateAdoptsReconciledRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.OnConfirm("createElection", func() {
		err := f.store.InsertElection(ctx, models.Election{
			ID:            1,
			Title:         "Spring Vote",
			Type:          models.TypeDepartment,
			AllowedValues: []string{},
		})
		require.NoError(t, err)
	})

	resp, err := f.mgr.Create(ctx, models.CreateElectionRequest{Title: "Spring Vote"})
	require.NoError(t, err)
	assert.False(t, resp.MirrorPending)
	require.NotNil(t, resp.Election)
	assert.Equal(t, models.TypeGeneral, resp.Election.Type)

	stored, err := f.store.GetElection(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.TypeGeneral, stored.Type)
	assert.Empty(t, stored.AllowedValues)

	_, ok := f.pending.Election("Spring Vote")
	assert.False(t, ok)
}

func TestCreateConflictWithOtherTitleIsDegraded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.OnConfirm("createElection", func() {
		require.NoError(t, f.store.InsertElection(ctx, models.Election{ID: 1, Title: "Stale Row", Type: models.TypeGeneral}))
	})

	resp, err := f.mgr.Create(ctx, models.CreateElectionRequest{Title: "Spring Vote"})
	require.NoError(t, err)
	assert.True(t, resp.MirrorPending)

	stored, err := f.store.GetElection(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Stale Row", stored.Title)

	// Still held for the reconciler.
	_, ok := f.pending.Election("Spring Vote")
	assert.True(t, ok)
}

func TestCreateLedgerUnavailable(t *testing.T) {
	f := newFixture(t)
	f.ledger.FailReads(errors.New("rpc down"))

	_, err := f.mgr.Create(context.Background(), models.CreateElectionRequest{Title: "Spring Vote"})
	assert.ErrorIs(t, err, apperr.ErrLedgerUnavailable)
	assert.NotErrorIs(t, err, apperr.ErrLedgerRejected)
	assert.Zero(t, f.ledger.Submissions("createElection"))
}

func TestAddCandidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseNotStarted)

	resp, err := f.mgr.AddCandidate(ctx, id, models.AddCandidateRequest{Name: "Alice"})
	require.NoError(t, err)
	require.NotNil(t, resp.Candidate)
	assert.False(t, resp.MirrorPending)
	assert.Equal(t, uint64(1), resp.Candidate.LedgerID)
	assert.NotNil(t, resp.Candidate.Address)

	resp, err = f.mgr.AddCandidate(ctx, id, models.AddCandidateRequest{Name: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), resp.Candidate.LedgerID)

	list, err := f.mgr.Candidates(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alice", list[0].Name)
	assert.Equal(t, "Bob", list[1].Name)
}

func TestAddCandidateFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseNotStarted, "Alice")
	f.ledger.DropEvents(true)

	resp, err := f.mgr.AddCandidate(ctx, id, models.AddCandidateRequest{Name: "Bob"})
	require.NoError(t, err)
	require.NotNil(t, resp.Candidate)
	assert.Equal(t, uint64(2), resp.Candidate.LedgerID)
	assert.Equal(t, "Bob", resp.Candidate.Name)
}

func TestAddCandidatePreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started := testutil.CreateTestElection(t, f.store, f.ledger, "Started", models.TypeGeneral, nil, models.PhaseStarted, "Alice")

	tests := []struct {
		name       string
		electionID uint64
		candidate  string
		want       *apperr.Error
	}{
		{"missing name", started, " ", apperr.ErrInvalidInput},
		{"unknown election", 99, "Bob", apperr.ErrElectionNotFound},
		{"already started", started, "Bob", apperr.ErrElectionAlreadyStarted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.mgr.AddCandidate(ctx, tt.electionID, models.AddCandidateRequest{Name: tt.candidate})
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, f.ledger.Submissions("addCandidate"))
}

func TestStartEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseNotStarted, "Alice")

	resp, err := f.mgr.Start(ctx, id)
	require.NoError(t, err)
	assert.False(t, resp.MirrorPending)
	assertPhase(t, f.store, id, models.PhaseStarted)

	// A second start is the ledger's to refuse; the mirror is untouched.
	_, err = f.mgr.Start(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrLedgerRejected)
	assertPhase(t, f.store, id, models.PhaseStarted)

	_, err = f.mgr.End(ctx, id)
	require.NoError(t, err)
	assertPhase(t, f.store, id, models.PhaseEnded)
}

// TestOverlappingStartAndEnd runs End while Start is between ledger
// confirmation and its mirror write. The later Start write must not move the
// mirror back from ended.
func TestOverlappingStartAndEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseNotStarted, "Alice")

	f.ledger.OnConfirm("startElection", func() {
		_, err := f.mgr.End(ctx, id)
		assert.NoError(t, err)
	})

	_, err := f.mgr.Start(ctx, id)
	require.NoError(t, err)

	ended, err := f.ledger.IsElectionEnded(ctx, id)
	require.NoError(t, err)
	assert.True(t, ended)
	assertPhase(t, f.store, id, models.PhaseEnded)
}

func TestStatusDoesNotMoveMirrorBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseNotStarted)

	// The ledger read predates an End that was mirrored meanwhile.
	_, err := f.store.SetPhase(ctx, id, models.PhaseEnded)
	require.NoError(t, err)

	status, err := f.mgr.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseNotStarted, status.Phase)
	assertPhase(t, f.store, id, models.PhaseEnded)
}

func TestEndBeforeStartGoesToLedger(t *testing.T) {
	f := newFixture(t)
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseNotStarted)

	_, err := f.mgr.End(context.Background(), id)
	assert.ErrorIs(t, err, apperr.ErrLedgerRejected)
	assert.Equal(t, 1, f.ledger.Submissions("endElection"))
	assertPhase(t, f.store, id, models.PhaseNotStarted)
}

func TestStartIndeterminate(t *testing.T) {
	f := newFixture(t)
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseNotStarted)
	f.ledger.Stall("startElection", false)

	_, err := f.mgr.Start(context.Background(), id)
	assert.ErrorIs(t, err, apperr.ErrIndeterminate)
	assertPhase(t, f.store, id, models.PhaseNotStarted)
}

func TestStatusReadsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseNotStarted)

	// A start that landed after the caller stopped waiting.
	f.ledger.Stall("startElection", true)
	_, err := f.mgr.Start(ctx, id)
	require.ErrorIs(t, err, apperr.ErrIndeterminate)

	status, err := f.mgr.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseStarted, status.Phase)
	assert.True(t, status.IsStarted)
	assert.False(t, status.IsEnded)
	assert.Equal(t, "ledger", status.Source)
	assertPhase(t, f.store, id, models.PhaseStarted)

	f.ledger.FailReads(errors.New("rpc down"))
	status, err = f.mgr.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "mirror", status.Source)
	assert.Equal(t, models.PhaseStarted, status.Phase)
}

func TestWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseEnded, "Alice", "Bob")
	require.NoError(t, f.store.UpdateCandidate(ctx, id, 2, "Bob", nil, 4))
	require.NoError(t, f.store.UpdateCandidate(ctx, id, 1, "Alice", nil, 1))

	w, err := f.mgr.Winner(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Bob", w.WinnerName)
	assert.Equal(t, uint64(2), w.CandidateID)
	assert.Equal(t, uint64(4), w.HighestVote)

	empty := testutil.CreateTestElection(t, f.store, f.ledger, "Empty", models.TypeGeneral, nil, models.PhaseNotStarted)
	_, err = f.mgr.Winner(ctx, empty)
	assert.ErrorIs(t, err, apperr.ErrCandidateNotFound)

	_, err = f.mgr.Winner(ctx, 99)
	assert.ErrorIs(t, err, apperr.ErrElectionNotFound)
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, title := range []string{"First", "Second", "Third"} {
		_, err := f.mgr.Create(ctx, models.CreateElectionRequest{Title: title})
		require.NoError(t, err)
	}

	list, err := f.mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Third", list[0].Title)
	assert.Equal(t, "First", list[2].Title)
}

func assertPhase(t *testing.T, st *store.Store, id uint64, want models.Phase) {
	t.Helper()
	e, err := st.GetElection(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, want, e.Phase)
}
