// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package voting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/univote/apperr"
	"github.com/danielhkuo/univote/elections"
	"github.com/danielhkuo/univote/ledger/ledgertest"
	"github.com/danielhkuo/univote/models"
	"github.com/danielhkuo/univote/pending"
	"github.com/danielhkuo/univote/store"
	"github.com/danielhkuo/univote/testutil"
)

type fixture struct {
	orch    *Orchestrator
	ledger  *ledgertest.Ledger
	store   *store.Store
	db      *sql.DB
	pending *pending.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := testutil.SetupTestDB(t)
	l := testutil.NewLedger()
	st := store.New(conn)
	p := pending.New()
	return fixture{orch: NewOrchestrator(l, st, p), ledger: l, store: st, db: conn, pending: p}
}

func vote(candidateID uint64) models.CastVoteRequest {
	return models.CastVoteRequest{CandidateID: candidateID, Signature: testutil.Signature()}
}

func tallies(t *testing.T, st *store.Store, electionID uint64) map[string]uint64 {
	t.Helper()
	list, err := st.ListCandidates(context.Background(), electionID)
	require.NoError(t, err)
	out := make(map[string]uint64, len(list))
	for _, c := range list {
		out[c.Name] = c.VoteCount
	}
	return out
}

func TestSpringVoteEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mgr := elections.NewManager(f.ledger, f.store, f.pending)

	created, err := mgr.Create(ctx, models.CreateElectionRequest{Title: "Spring Vote", Type: models.TypeGeneral})
	require.NoError(t, err)
	id := created.Election.ID

	alice, err := mgr.AddCandidate(ctx, id, models.AddCandidateRequest{Name: "Alice"})
	require.NoError(t, err)
	_, err = mgr.AddCandidate(ctx, id, models.AddCandidateRequest{Name: "Bob"})
	require.NoError(t, err)
	_, err = mgr.Start(ctx, id)
	require.NoError(t, err)

	testutil.RegisterTestUser(t, f.store, testutil.VoterAddress, testutil.CredentialCS)

	resp, err := f.orch.CastVote(ctx, testutil.VoterAddress, id, vote(alice.Candidate.LedgerID))
	require.NoError(t, err)
	assert.False(t, resp.MirrorPending)
	assert.NotEmpty(t, resp.TxRef)
	assert.Equal(t, map[string]uint64{"Alice": 1, "Bob": 0}, tallies(t, f.store, id))

	_, err = f.orch.CastVote(ctx, testutil.VoterAddress, id, vote(alice.Candidate.LedgerID))
	assert.ErrorIs(t, err, apperr.ErrAlreadyVoted)
	assert.Equal(t, map[string]uint64{"Alice": 1, "Bob": 0}, tallies(t, f.store, id))
	assert.Equal(t, 1, f.ledger.Submissions("voteWithSignature"), "second attempt must not reach the ledger")

	b, err := f.orch.Ballot(ctx, id, testutil.VoterAddress)
	require.NoError(t, err)
	assert.True(t, b.HasVoted)
	require.NotNil(t, b.VotedCandidateID)
	assert.Equal(t, alice.Candidate.LedgerID, *b.VotedCandidateID)
	assert.Equal(t, resp.TxRef, b.TxHash)
}

func TestCastVotePreconditions(t *testing.T) {
	f := newFixture(t)
	st, l := f.store, f.ledger

	general := testutil.CreateTestElection(t, st, l, "General", models.TypeGeneral, nil, models.PhaseStarted, "Alice")
	notStarted := testutil.CreateTestElection(t, st, l, "Later", models.TypeGeneral, nil, models.PhaseNotStarted, "Alice")
	ended := testutil.CreateTestElection(t, st, l, "Over", models.TypeGeneral, nil, models.PhaseEnded, "Alice")
	misProgram := testutil.CreateTestElection(t, st, l, "MIS Rep", models.TypeProgram, []string{testutil.ProgramMS}, models.PhaseStarted, "Alice")

	testutil.RegisterTestUser(t, st, testutil.VoterAddress, testutil.CredentialCS)

	tests := []struct {
		name       string
		voter      common.Address
		electionID uint64
		req        models.CastVoteRequest
		want       *apperr.Error
	}{
		{"missing signature", testutil.VoterAddress, general, models.CastVoteRequest{CandidateID: 1}, apperr.ErrInvalidInput},
		{"malformed signature", testutil.VoterAddress, general, models.CastVoteRequest{CandidateID: 1, Signature: "0xnothex"}, apperr.ErrInvalidInput},
		{"missing candidate", testutil.VoterAddress, general, models.CastVoteRequest{Signature: testutil.Signature()}, apperr.ErrInvalidInput},
		{"unregistered voter", testutil.OtherAddress, general, vote(1), apperr.ErrVoterNotRegistered},
		{"unknown election", testutil.VoterAddress, 99, vote(1), apperr.ErrElectionNotFound},
		{"not started", testutil.VoterAddress, notStarted, vote(1), apperr.ErrElectionNotActive},
		{"ended", testutil.VoterAddress, ended, vote(1), apperr.ErrElectionNotActive},
		{"unknown candidate", testutil.VoterAddress, general, vote(7), apperr.ErrCandidateNotFound},
		{"other program", testutil.VoterAddress, misProgram, vote(1), apperr.ErrNotEligible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.CastVote(context.Background(), tt.voter, tt.electionID, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, l.Submissions("voteWithSignature"), "failed preconditions must not reach the ledger")
}

func TestProgramElectionChecksProgramNotDepartment(t *testing.T) {
	f := newFixture(t)
	// The allowed value is the voter's department, not their program.
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Odd", models.TypeProgram, []string{testutil.DeptCIS}, models.PhaseStarted, "Alice")
	testutil.RegisterTestUser(t, f.store, testutil.VoterAddress, testutil.CredentialCS)

	_, err := f.orch.CastVote(context.Background(), testutil.VoterAddress, id, vote(1))
	assert.ErrorIs(t, err, apperr.ErrNotEligible)
}

func TestDepartmentElectionAdmitsMatchingDepartment(t *testing.T) {
	f := newFixture(t)
	id := testutil.CreateTestElection(t, f.store, f.ledger, "CIS Rep", models.TypeDepartment, []string{testutil.DeptCIS}, models.PhaseStarted, "Alice")
	testutil.RegisterTestUser(t, f.store, testutil.VoterAddress, testutil.CredentialMIS)

	_, err := f.orch.CastVote(context.Background(), testutil.VoterAddress, id, vote(1))
	require.NoError(t, err)
}

func TestStaleMirrorAlreadyVoted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseStarted, "Alice", "Bob")
	testutil.RegisterTestUser(t, f.store, testutil.VoterAddress, testutil.CredentialCS)

	// The vote reached the ledger through another path; the mirror never saw it.
	sig := make([]byte, 65)
	_, err := f.ledger.VoteWithSignature(ctx, id, 2, testutil.VoterAddress, sig)
	require.NoError(t, err)

	_, err = f.orch.CastVote(ctx, testutil.VoterAddress, id, vote(1))
	assert.ErrorIs(t, err, apperr.ErrAlreadyVoted)
	assert.Equal(t, 1, f.ledger.Submissions("voteWithSignature"))
	assert.Equal(t, map[string]uint64{"Alice": 0, "Bob": 0}, tallies(t, f.store, id))

	b, err := f.store.GetBallot(ctx, id, testutil.Address(testutil.VoterAddress))
	require.NoError(t, err, "ballot should be backfilled from the ledger")
	require.NotNil(t, b.VotedCandidateID)
	assert.Equal(t, uint64(2), *b.VotedCandidateID)
}

func TestCastVoteTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseStarted, "Alice")
	testutil.RegisterTestUser(t, f.store, testutil.VoterAddress, testutil.CredentialCS)
	f.ledger.Stall("voteWithSignature", false)

	_, err := f.orch.CastVote(ctx, testutil.VoterAddress, id, vote(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrIndeterminate)
	assert.NotErrorIs(t, err, apperr.ErrLedgerRejected)

	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.NotEmpty(t, ae.TxRef)

	assert.Equal(t, map[string]uint64{"Alice": 0}, tallies(t, f.store, id))
	_, err = f.store.GetBallot(ctx, id, testutil.Address(testutil.VoterAddress))
	assert.ErrorIs(t, err, store.ErrNotFound, "no ballot is written without confirmation")
	assert.Len(t, f.pending.Ballots(), 1)

	// The ledger, not a resubmission, resolves the ambiguity.
	b, err := f.orch.Ballot(ctx, id, testutil.VoterAddress)
	require.NoError(t, err)
	assert.False(t, b.HasVoted)
	assert.Equal(t, "ledger", b.Source)
	assert.Equal(t, 1, f.ledger.Submissions("voteWithSignature"))
}

func TestCastVoteTimeoutThenLanded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseStarted, "Alice")
	testutil.RegisterTestUser(t, f.store, testutil.VoterAddress, testutil.CredentialCS)
	f.ledger.Stall("voteWithSignature", true)

	_, err := f.orch.CastVote(ctx, testutil.VoterAddress, id, vote(1))
	require.ErrorIs(t, err, apperr.ErrIndeterminate)

	b, err := f.orch.Ballot(ctx, id, testutil.VoterAddress)
	require.NoError(t, err)
	assert.True(t, b.HasVoted)

	// A retry now is refused before submission.
	_, err = f.orch.CastVote(ctx, testutil.VoterAddress, id, vote(1))
	assert.ErrorIs(t, err, apperr.ErrAlreadyVoted)
	assert.Equal(t, 1, f.ledger.Submissions("voteWithSignature"))
}

func TestCastVoteLedgerRejects(t *testing.T) {
	f := newFixture(t)
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseStarted, "Alice")
	testutil.RegisterTestUser(t, f.store, testutil.VoterAddress, testutil.CredentialCS)

	// Too short to be a signature; only the ledger checks that.
	_, err := f.orch.CastVote(context.Background(), testutil.VoterAddress, id, models.CastVoteRequest{CandidateID: 1, Signature: "0x1234"})
	assert.ErrorIs(t, err, apperr.ErrLedgerRejected)
	assert.Equal(t, map[string]uint64{"Alice": 0}, tallies(t, f.store, id))
}

func TestCastVoteLedgerReadFails(t *testing.T) {
	f := newFixture(t)
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseStarted, "Alice")
	testutil.RegisterTestUser(t, f.store, testutil.VoterAddress, testutil.CredentialCS)
	f.ledger.FailReads(errors.New("rpc down"))

	_, err := f.orch.CastVote(context.Background(), testutil.VoterAddress, id, vote(1))
	assert.ErrorIs(t, err, apperr.ErrLedgerUnavailable)
	assert.NotErrorIs(t, err, apperr.ErrLedgerRejected)
	assert.Zero(t, f.ledger.Submissions("voteWithSignature"))
}

func TestCastVoteMirrorFailureIsDegradedSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseStarted, "Alice")
	testutil.RegisterTestUser(t, f.store, testutil.VoterAddress, testutil.CredentialCS)

	_, err := f.db.Exec(`DROP TABLE voter`)
	require.NoError(t, err)

	resp, err := f.orch.CastVote(ctx, testutil.VoterAddress, id, vote(1))
	require.NoError(t, err)
	assert.True(t, resp.MirrorPending)
	assert.NotEmpty(t, resp.TxRef)

	queued := f.pending.Ballots()
	require.Len(t, queued, 1)
	assert.Equal(t, resp.TxRef, queued[0].TxRef)
	assert.Equal(t, testutil.Address(testutil.VoterAddress), queued[0].WalletAddress)
}

func TestConcurrentVotesSameWallet(t *testing.T) {
	f := newFixture(t)
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseStarted, "Alice", "Bob")
	testutil.RegisterTestUser(t, f.store, testutil.VoterAddress, testutil.CredentialCS)

	const attempts = 10
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		already   atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.orch.CastVote(context.Background(), testutil.VoterAddress, id, vote(uint64(i%2)+1))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, apperr.ErrAlreadyVoted):
				already.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(attempts-1), already.Load())

	total := uint64(0)
	for _, n := range tallies(t, f.store, id) {
		total += n
	}
	assert.Equal(t, uint64(1), total)
}

func TestConcurrentVotesManyVoters(t *testing.T) {
	f := newFixture(t)
	id := testutil.CreateTestElection(t, f.store, f.ledger, "Spring Vote", models.TypeGeneral, nil, models.PhaseStarted, "Alice", "Bob")

	const voters = 20
	addrs := make([]common.Address, voters)
	for i := range addrs {
		addrs[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		testutil.RegisterTestUser(t, f.store, addrs[i], fmt.Sprintf("22CG%06d", i))
	}

	var wg sync.WaitGroup
	for i, addr := range addrs {
		wg.Add(1)
		go func(i int, addr common.Address) {
			defer wg.Done()
			if _, err := f.orch.CastVote(context.Background(), addr, id, vote(uint64(i%2)+1)); err != nil {
				t.Errorf("voter %d: %v", i, err)
			}
		}(i, addr)
	}
	wg.Wait()

	assert.Equal(t, map[string]uint64{"Alice": voters / 2, "Bob": voters / 2}, tallies(t, f.store, id))
}
