// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package ledgertest provides an in-memory voting contract for tests.
// It enforces the contract's own rules (candidates only before start, end
// only after start, one vote per address) and can be told to drop events,
// fail reads, or leave submissions unconfirmed.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/danielhkuo/univote/ledger"
)

// ContractAddress is the address logs are attributed to.
var ContractAddress = common.HexToAddress("0x00000000000000000000000000000000000c0de5")

type candidate struct {
	id    uint64
	name  string
	addr  common.Address
	votes uint64
}

type election struct {
	title      string
	started    bool
	ended      bool
	nextID     uint64
	candidates []*candidate
	voters     map[common.Address]uint64
}

type stall struct {
	apply bool
}

type Ledger struct {
	mu        sync.Mutex
	elections []*election
	admins    map[common.Address]bool
	txSeq     uint64

	dropEvents    bool
	stalls        map[string]stall
	readErr       error
	electionErrs  map[uint64]error
	submissions   map[string]int
	onConfirm     map[string]func()
	candidateAddr common.Address
}

var _ ledger.Client = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{
		admins:       make(map[common.Address]bool),
		stalls:       make(map[string]stall),
		electionErrs: make(map[uint64]error),
		submissions:  make(map[string]int),
		onConfirm:    make(map[string]func()),
	}
}

// AddAdmin marks addr as an election authority.
func (l *Ledger) AddAdmin(addr common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.admins[addr] = true
}

// DropEvents makes later receipts carry no logs.
func (l *Ledger) DropEvents(drop bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropEvents = drop
}

// Stall makes the next submission of op return ErrIndeterminate. When apply
// is set the operation still takes effect, as a transaction mined after the
// caller stopped waiting would.
func (l *Ledger) Stall(op string, apply bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stalls[op] = stall{apply: apply}
}

// OnConfirm runs fn once, after the next confirmed submission of op and
// before its caller gets the receipt. fn may call back into the ledger.
func (l *Ledger) OnConfirm(op string, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onConfirm[op] = fn
}

// FailReads makes every read return err until called with nil.
func (l *Ledger) FailReads(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readErr = err
}

// FailElection makes reads scoped to one election return err.
func (l *Ledger) FailElection(electionID uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.electionErrs, electionID)
		return
	}
	l.electionErrs[electionID] = err
}

// Submissions counts submissions of op, including rejected ones.
func (l *Ledger) Submissions(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submissions[op]
}

// RemoveCandidate deletes a candidate behind the mirror's back.
func (l *Ledger) RemoveCandidate(electionID, candidateID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.election(electionID)
	if e == nil {
		return
	}
	for i, c := range e.candidates {
		if c.id == candidateID {
			e.candidates = append(e.candidates[:i], e.candidates[i+1:]...)
			return
		}
	}
}

// SetVotes overwrites a tally behind the mirror's back.
func (l *Ledger) SetVotes(electionID, candidateID, votes uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c := l.candidate(electionID, candidateID); c != nil {
		c.votes = votes
	}
}

// SeedElection creates an election directly, as another client of the
// contract would, and returns its id.
func (l *Ledger) SeedElection(title string, candidates ...string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.createElection(title)
	for _, name := range candidates {
		l.addCandidate(l.election(id), name)
	}
	return id
}

func (l *Ledger) CreateElection(ctx context.Context, title string) (ledger.Receipt, error) {
	return l.submit("createElection", func() ([]*types.Log, error) {
		if title == "" {
			return nil, errors.New("empty title")
		}
		id := l.createElection(title)
		return l.logs("ElectionCreated", new(big.Int).SetUint64(id), title)
	})
}

func (l *Ledger) AddCandidate(ctx context.Context, electionID uint64, name string) (ledger.Receipt, error) {
	return l.submit("addCandidate", func() ([]*types.Log, error) {
		e := l.election(electionID)
		if e == nil {
			return nil, errors.New("election does not exist")
		}
		if e.started {
			return nil, errors.New("election already started")
		}
		c := l.addCandidate(e, name)
		return l.logs("CandidateAdded", new(big.Int).SetUint64(electionID), new(big.Int).SetUint64(c.id), name, c.addr)
	})
}

func (l *Ledger) StartElection(ctx context.Context, electionID uint64) (ledger.Receipt, error) {
	return l.submit("startElection", func() ([]*types.Log, error) {
		e := l.election(electionID)
		if e == nil {
			return nil, errors.New("election does not exist")
		}
		if e.started {
			return nil, errors.New("election already started")
		}
		e.started = true
		return nil, nil
	})
}

func (l *Ledger) EndElection(ctx context.Context, electionID uint64) (ledger.Receipt, error) {
	return l.submit("endElection", func() ([]*types.Log, error) {
		e := l.election(electionID)
		if e == nil {
			return nil, errors.New("election does not exist")
		}
		if !e.started || e.ended {
			return nil, errors.New("election not running")
		}
		e.ended = true
		return nil, nil
	})
}

func (l *Ledger) VoteWithSignature(ctx context.Context, electionID, candidateID uint64, voter common.Address, signature []byte) (ledger.Receipt, error) {
	return l.submit("voteWithSignature", func() ([]*types.Log, error) {
		e := l.election(electionID)
		if e == nil {
			return nil, errors.New("election does not exist")
		}
		if !e.started || e.ended {
			return nil, errors.New("election not running")
		}
		if len(signature) != 65 {
			return nil, errors.New("invalid signature")
		}
		if _, voted := e.voters[voter]; voted {
			return nil, errors.New("already voted")
		}
		c := l.candidate(electionID, candidateID)
		if c == nil {
			return nil, errors.New("invalid candidate")
		}
		c.votes++
		e.voters[voter] = candidateID
		return nil, nil
	})
}

func (l *Ledger) ElectionCount(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return 0, l.readErr
	}
	return uint64(len(l.elections)), nil
}

func (l *Ledger) GetElection(ctx context.Context, electionID uint64) (ledger.ElectionInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, err := l.readElection(electionID)
	if err != nil {
		return ledger.ElectionInfo{}, err
	}
	return ledger.ElectionInfo{
		ID:             electionID,
		Title:          e.title,
		Started:        e.started,
		Ended:          e.ended,
		CandidateCount: e.nextID,
	}, nil
}

func (l *Ledger) IsElectionStarted(ctx context.Context, electionID uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, err := l.readElection(electionID)
	if err != nil {
		return false, err
	}
	return e.started, nil
}

func (l *Ledger) IsElectionEnded(ctx context.Context, electionID uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, err := l.readElection(electionID)
	if err != nil {
		return false, err
	}
	return e.ended, nil
}

func (l *Ledger) GetCandidate(ctx context.Context, electionID, candidateID uint64) (string, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.readElection(electionID); err != nil {
		return "", 0, err
	}
	c := l.candidate(electionID, candidateID)
	if c == nil {
		return "", 0, nil
	}
	return c.name, c.votes, nil
}

func (l *Ledger) GetElectionCandidates(ctx context.Context, electionID uint64) ([]ledger.CandidateInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, err := l.readElection(electionID)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.CandidateInfo, 0, len(e.candidates))
	for _, c := range e.candidates {
		out = append(out, ledger.CandidateInfo{ID: c.id, Name: c.name, Address: c.addr, VoteCount: c.votes})
	}
	return out, nil
}

func (l *Ledger) GetVoter(ctx context.Context, electionID uint64, voter common.Address) (ledger.VoterInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, err := l.readElection(electionID)
	if err != nil {
		return ledger.VoterInfo{}, err
	}
	candidateID, voted := e.voters[voter]
	return ledger.VoterInfo{HasVoted: voted, CandidateID: candidateID}, nil
}

func (l *Ledger) IsAdmin(ctx context.Context, addr common.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return false, l.readErr
	}
	return l.admins[addr], nil
}

func (l *Ledger) submit(op string, apply func() ([]*types.Log, error)) (rcpt ledger.Receipt, err error) {
	var hook func()
	// Deferred first so it runs after the unlock.
	defer func() {
		if hook != nil && err == nil {
			hook()
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.submissions[op]++
	l.txSeq++
	txRef := common.BigToHash(new(big.Int).SetUint64(l.txSeq)).Hex()

	if s, ok := l.stalls[op]; ok {
		delete(l.stalls, op)
		if s.apply {
			_, _ = apply()
		}
		return ledger.Receipt{}, &ledger.TxError{Op: op, TxRef: txRef, Err: fmt.Errorf("%w: simulated", ledger.ErrIndeterminate)}
	}

	logs, err := apply()
	if err != nil {
		return ledger.Receipt{}, &ledger.TxError{Op: op, Err: fmt.Errorf("%w: %v", ledger.ErrRejected, err)}
	}
	if l.dropEvents {
		logs = nil
	}
	if fn, ok := l.onConfirm[op]; ok {
		delete(l.onConfirm, op)
		hook = fn
	}
	return ledger.Receipt{TxRef: txRef, Confirmed: true, Logs: logs}, nil
}

func (l *Ledger) logs(event string, args ...any) ([]*types.Log, error) {
	log, err := ledger.EventLog(ContractAddress, event, args...)
	if err != nil {
		return nil, err
	}
	return []*types.Log{log}, nil
}

func (l *Ledger) createElection(title string) uint64 {
	l.elections = append(l.elections, &election{title: title, voters: make(map[common.Address]uint64)})
	return uint64(len(l.elections))
}

func (l *Ledger) addCandidate(e *election, name string) *candidate {
	e.nextID++
	l.candidateAddr = common.BigToAddress(new(big.Int).Add(l.candidateAddr.Big(), big.NewInt(1)))
	c := &candidate{id: e.nextID, name: name, addr: l.candidateAddr}
	e.candidates = append(e.candidates, c)
	return c
}

func (l *Ledger) election(id uint64) *election {
	if id == 0 || id > uint64(len(l.elections)) {
		return nil
	}
	return l.elections[id-1]
}

func (l *Ledger) readElection(id uint64) (*election, error) {
	if l.readErr != nil {
		return nil, l.readErr
	}
	if err := l.electionErrs[id]; err != nil {
		return nil, err
	}
	e := l.election(id)
	if e == nil {
		return nil, fmt.Errorf("election %d does not exist", id)
	}
	return e, nil
}

func (l *Ledger) candidate(electionID, candidateID uint64) *candidate {
	e := l.election(electionID)
	if e == nil {
		return nil
	}
	for _, c := range e.candidates {
		if c.id == candidateID {
			return c
		}
	}
	return nil
}
