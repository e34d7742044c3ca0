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

// InsertUser links a wallet to a credential. Either side already being
// linked is ErrConflict.
func (s *Store) InsertUser(ctx context.Context, u models.User) error {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_user (wallet_address, credential, department, program, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.WalletAddress, u.Credential, u.Department, u.Program, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByWallet(ctx context.Context, wallet string) (models.User, error) {
	return s.getUser(ctx, `wallet_address = $1`, wallet)
}

func (s *Store) GetUserByCredential(ctx context.Context, credential string) (models.User, error) {
	return s.getUser(ctx, `credential = $1`, credential)
}

func (s *Store) getUser(ctx context.Context, where string, arg string) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT wallet_address, credential, department, program, created_at
		FROM app_user WHERE `+where, arg).Scan(&u.WalletAddress, &u.Credential, &u.Department, &u.Program, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}
