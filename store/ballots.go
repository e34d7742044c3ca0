// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danielhkuo/univote/models"
)

func (s *Store) GetBallot(ctx context.Context, electionID uint64, wallet string) (models.Ballot, error) {
	var (
		b         models.Ballot
		candidate sql.NullInt64
		txHash    sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT has_voted, voted_candidate_id, tx_hash
		FROM voter WHERE election_id = $1 AND wallet_address = $2
	`, int64(electionID), wallet).Scan(&b.HasVoted, &candidate, &txHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ballot{}, ErrNotFound
	}
	if err != nil {
		return models.Ballot{}, fmt.Errorf("failed to query ballot: %w", err)
	}

	b.ElectionID = electionID
	b.WalletAddress = wallet
	b.TxHash = txHash.String
	if candidate.Valid {
		id := uint64(candidate.Int64)
		b.VotedCandidateID = &id
	}
	return b, nil
}

// RecordVote upserts a ballot as voted. There is no way to write
// has_voted = false through this store, so a recorded vote is never undone.
func (s *Store) RecordVote(ctx context.Context, electionID uint64, wallet string, candidateID uint64, txHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO voter (election_id, wallet_address, has_voted, voted_candidate_id, tx_hash, updated_at)
		VALUES ($1, $2, TRUE, $3, $4, $5)
		ON CONFLICT (election_id, wallet_address) DO UPDATE
		SET has_voted = TRUE,
		    voted_candidate_id = excluded.voted_candidate_id,
		    tx_hash = COALESCE(excluded.tx_hash, voter.tx_hash),
		    updated_at = excluded.updated_at
	`, int64(electionID), wallet, int64(candidateID), nullString(txHash), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record vote: %w", err)
	}
	return nil
}
