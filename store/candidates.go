// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/univote/models"
)

const candidateColumns = `id, election_id, ledger_id, name, candidate_address, vote_count, tx_hash`

func scanCandidate(row rowScanner) (models.Candidate, error) {
	var (
		c                           models.Candidate
		electionID, ledgerID, votes int64
		address, txHash             sql.NullString
	)
	if err := row.Scan(&c.ID, &electionID, &ledgerID, &c.Name, &address, &votes, &txHash); err != nil {
		return models.Candidate{}, err
	}
	c.ElectionID = uint64(electionID)
	c.LedgerID = uint64(ledgerID)
	c.VoteCount = uint64(votes)
	c.Address = stringPtr(address)
	c.TxHash = txHash.String
	return c, nil
}

// InsertCandidate stores a candidate, assigning a surrogate id when c.ID is
// empty. A second row for the same (election, ledger id) is ErrConflict.
func (s *Store) InsertCandidate(ctx context.Context, c *models.Candidate) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO candidate (id, election_id, ledger_id, name, candidate_address, vote_count, tx_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, int64(c.ElectionID), int64(c.LedgerID), c.Name, nullStringPtr(c.Address), int64(c.VoteCount), nullString(c.TxHash), time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert candidate: %w", err)
	}
	return nil
}

func (s *Store) GetCandidate(ctx context.Context, electionID, ledgerID uint64) (models.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+candidateColumns+` FROM candidate WHERE election_id = $1 AND ledger_id = $2
	`, int64(electionID), int64(ledgerID))
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Candidate{}, ErrNotFound
	}
	if err != nil {
		return models.Candidate{}, fmt.Errorf("failed to query candidate: %w", err)
	}
	return c, nil
}

// ListCandidates returns an election's candidates ordered by ledger id.
func (s *Store) ListCandidates(ctx context.Context, electionID uint64) ([]models.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+candidateColumns+` FROM candidate WHERE election_id = $1 ORDER BY ledger_id
	`, int64(electionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	out := []models.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// IncrementVoteCount adds one to a tally in a single statement so
// concurrent increments never overwrite each other.
func (s *Store) IncrementVoteCount(ctx context.Context, electionID, ledgerID uint64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE candidate SET vote_count = vote_count + 1
		WHERE election_id = $1 AND ledger_id = $2
	`, int64(electionID), int64(ledgerID))
	if err != nil {
		return fmt.Errorf("failed to increment vote count: %w", err)
	}
	return notFoundIfNone(res)
}

// UpdateCandidate overwrites the ledger-owned fields of a candidate.
func (s *Store) UpdateCandidate(ctx context.Context, electionID, ledgerID uint64, name string, address *string, votes uint64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE candidate SET name = $1, candidate_address = $2, vote_count = $3
		WHERE election_id = $4 AND ledger_id = $5
	`, name, nullStringPtr(address), int64(votes), int64(electionID), int64(ledgerID))
	if err != nil {
		return fmt.Errorf("failed to update candidate: %w", err)
	}
	return notFoundIfNone(res)
}

func (s *Store) DeleteCandidate(ctx context.Context, electionID, ledgerID uint64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM candidate WHERE election_id = $1 AND ledger_id = $2
	`, int64(electionID), int64(ledgerID))
	if err != nil {
		return fmt.Errorf("failed to delete candidate: %w", err)
	}
	return notFoundIfNone(res)
}

// TopCandidate returns the candidate with the highest mirrored tally;
// ties go to the lowest ledger id.
func (s *Store) TopCandidate(ctx context.Context, electionID uint64) (models.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+candidateColumns+` FROM candidate
		WHERE election_id = $1
		ORDER BY vote_count DESC, ledger_id ASC
		LIMIT 1
	`, int64(electionID))
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Candidate{}, ErrNotFound
	}
	if err != nil {
		return models.Candidate{}, fmt.Errorf("failed to query top candidate: %w", err)
	}
	return c, nil
}
