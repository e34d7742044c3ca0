// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielhkuo/univote/models"
)

const electionColumns = `id, title, type, allowed_values, is_not_started, is_started, is_ended, tx_hash, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanElection(row rowScanner, extra ...any) (models.Election, error) {
	var (
		e                          models.Election
		id                         int64
		allowed                    string
		notStarted, started, ended bool
		txHash                     sql.NullString
	)
	dest := append([]any{&id, &e.Title, &e.Type, &allowed, &notStarted, &started, &ended, &txHash, &e.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return models.Election{}, err
	}

	e.ID = uint64(id)
	e.TxHash = txHash.String
	if err := json.Unmarshal([]byte(allowed), &e.AllowedValues); err != nil {
		return models.Election{}, fmt.Errorf("election %d: bad allowed_values: %w", id, err)
	}
	if e.AllowedValues == nil {
		e.AllowedValues = []string{}
	}
	phase, err := models.PhaseFromFlags(notStarted, started, ended)
	if err != nil {
		return models.Election{}, fmt.Errorf("election %d: %w", id, err)
	}
	e.Phase = phase
	return e, nil
}

// InsertElection stores a new election row keyed by its ledger id.
func (s *Store) InsertElection(ctx context.Context, e models.Election) error {
	allowed := e.AllowedValues
	if allowed == nil {
		allowed = []string{}
	}
	allowedJSON, err := json.Marshal(allowed)
	if err != nil {
		return fmt.Errorf("failed to encode allowed values: %w", err)
	}
	phase := e.Phase
	if !phase.Valid() {
		phase = models.PhaseNotStarted
	}
	notStarted, started, ended := phase.Flags()
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO election (id, title, type, allowed_values, is_not_started, is_started, is_ended, tx_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, int64(e.ID), e.Title, string(e.Type), string(allowedJSON), notStarted, started, ended, nullString(e.TxHash), createdAt, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert election: %w", err)
	}
	return nil
}

func (s *Store) GetElection(ctx context.Context, id uint64) (models.Election, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+electionColumns+` FROM election WHERE id = $1`, int64(id))
	e, err := scanElection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Election{}, ErrNotFound
	}
	if err != nil {
		return models.Election{}, fmt.Errorf("failed to query election: %w", err)
	}
	return e, nil
}

func (s *Store) TitleExists(ctx context.Context, title string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM election WHERE title = $1)
	`, title).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check title: %w", err)
	}
	return exists, nil
}

// ElectionIDs lists every mirrored election id in ascending order.
func (s *Store) ElectionIDs(ctx context.Context) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM election ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query election ids: %w", err)
	}
	defer rows.Close()

	ids := []uint64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan election id: %w", err)
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}

// ListElections returns every election, newest first, with the sum of its
// candidates' mirrored tallies.
func (s *Store) ListElections(ctx context.Context) ([]models.ElectionWithTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+electionColumns+`,
		       (SELECT COALESCE(SUM(c.vote_count), 0) FROM candidate c WHERE c.election_id = election.id)
		FROM election
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query elections: %w", err)
	}
	defer rows.Close()

	out := []models.ElectionWithTotals{}
	for rows.Next() {
		var total int64
		e, err := scanElection(rows, &total)
		if err != nil {
			return nil, fmt.Errorf("failed to scan election: %w", err)
		}
		out = append(out, models.ElectionWithTotals{Election: e, TotalVotes: uint64(total)})
	}
	return out, rows.Err()
}

// SetPhase overwrites all three phase flags in one statement, so no reader
// ever sees two of them set. changed is false when the row already held
// the phase.
func (s *Store) SetPhase(ctx context.Context, id uint64, phase models.Phase) (changed bool, err error) {
	if !phase.Valid() {
		return false, fmt.Errorf("invalid phase %q", phase)
	}
	notStarted, started, ended := phase.Flags()

	res, err := s.db.ExecContext(ctx, `
		UPDATE election
		SET is_not_started = $1, is_started = $2, is_ended = $3, updated_at = $4
		WHERE id = $5 AND NOT (is_not_started = $1 AND is_started = $2 AND is_ended = $3)
	`, notStarted, started, ended, time.Now().UTC(), int64(id))
	if err != nil {
		return false, fmt.Errorf("failed to update phase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update phase: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// Nothing changed: either already in this phase or no such election.
	if _, err := s.GetElection(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// AdvancePhase moves an election forward only: not started to started or
// ended, started to ended. A row already at or past phase is left alone and
// changed is false. Request paths use this; the reconciler overwrites with
// SetPhase.
func (s *Store) AdvancePhase(ctx context.Context, id uint64, phase models.Phase) (changed bool, err error) {
	var guard string
	switch phase {
	case models.PhaseStarted:
		guard = `is_not_started = TRUE`
	case models.PhaseEnded:
		guard = `is_ended = FALSE`
	case models.PhaseNotStarted:
		// Nothing precedes it.
		if _, err := s.GetElection(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	default:
		return false, fmt.Errorf("invalid phase %q", phase)
	}
	notStarted, started, ended := phase.Flags()

	res, err := s.db.ExecContext(ctx, `
		UPDATE election
		SET is_not_started = $1, is_started = $2, is_ended = $3, updated_at = $4
		WHERE id = $5 AND `+guard,
		notStarted, started, ended, time.Now().UTC(), int64(id))
	if err != nil {
		return false, fmt.Errorf("failed to advance phase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to advance phase: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetElection(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// UpdateElectionRules overwrites an election's type and allowed values.
func (s *Store) UpdateElectionRules(ctx context.Context, id uint64, typ models.ElectionType, allowed []string) error {
	if !typ.Valid() {
		return fmt.Errorf("invalid election type %q", typ)
	}
	if allowed == nil {
		allowed = []string{}
	}
	allowedJSON, err := json.Marshal(allowed)
	if err != nil {
		return fmt.Errorf("failed to encode allowed values: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE election SET type = $1, allowed_values = $2, updated_at = $3 WHERE id = $4
	`, string(typ), string(allowedJSON), time.Now().UTC(), int64(id))
	if err != nil {
		return fmt.Errorf("failed to update election rules: %w", err)
	}
	return notFoundIfNone(res)
}
