// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package pending remembers ledger effects the mirror has not caught up
// with, so the reconciler can finish them. It lives in memory only; after a
// restart the reconciler falls back to ledger reads.
package pending

import (
	"sort"
	"sync"
	"time"

	"github.com/danielhkuo/univote/models"
)

// BallotKey identifies a voter's ballot in one election.
type BallotKey struct {
	ElectionID    uint64
	WalletAddress string
}

type Registry struct {
	mu sync.Mutex
	// Keyed by title: ids are only predicted until the ledger confirms.
	elections map[string]models.Election
	ballots   map[BallotKey]Ballot
}

func New() *Registry {
	return &Registry{
		elections: make(map[string]models.Election),
		ballots:   make(map[BallotKey]Ballot),
	}
}

// PutElection records or replaces the metadata of an election being
// created. The ledger does not store type or allowed values, so this is the
// only copy until the mirror row carries them.
func (r *Registry) PutElection(e models.Election) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elections[e.Title] = e
}

func (r *Registry) Election(title string) (models.Election, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.elections[title]
	return e, ok
}

// Elections returns the pending metadata ordered by id.
func (r *Registry) Elections() []models.Election {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Election, 0, len(r.elections))
	for _, e := range r.elections {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) DoneElection(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.elections, title)
}

// PutBallot records a vote whose ballot row is missing: either confirmed
// with a failed mirror write, or submitted without confirmation.
func (r *Registry) PutBallot(key BallotKey, txRef string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ballots[key] = Ballot{BallotKey: key, TxRef: txRef, Since: time.Now()}
}

// Ballots returns the queued ballots with their tx refs, ordered by
// election then wallet.
func (r *Registry) Ballots() []Ballot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Ballot, 0, len(r.ballots))
	for _, b := range r.ballots {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ElectionID != out[j].ElectionID {
			return out[i].ElectionID < out[j].ElectionID
		}
		return out[i].WalletAddress < out[j].WalletAddress
	})
	return out
}

func (r *Registry) DoneBallot(key BallotKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ballots, key)
}

type Ballot struct {
	BallotKey
	TxRef string
	Since time.Time
}
