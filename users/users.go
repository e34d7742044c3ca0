// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package users links academic credentials to wallet addresses. The link is
// the only state the mirror owns outright; once made it never changes.
package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/danielhkuo/univote/apperr"
	"github.com/danielhkuo/univote/auth"
	"github.com/danielhkuo/univote/eligibility"
	"github.com/danielhkuo/univote/models"
	"github.com/danielhkuo/univote/store"
)

type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Register links a credential to a wallet. Registering the same pair again
// succeeds with created = false.
func (s *Service) Register(ctx context.Context, req models.RegisterUserRequest) (models.RegisterUserResponse, error) {
	credential := strings.TrimSpace(req.Credential)
	if credential == "" || strings.TrimSpace(req.WalletAddress) == "" {
		return models.RegisterUserResponse{}, apperr.New(apperr.ErrInvalidInput, "credential and wallet_address are required")
	}
	wallet, err := auth.NormalizeAddress(req.WalletAddress)
	if err != nil {
		return models.RegisterUserResponse{}, apperr.Wrap(apperr.ErrInvalidInput, err, "wallet_address is not a valid address")
	}
	if !eligibility.ValidFormat(credential) {
		return models.RegisterUserResponse{}, apperr.New(apperr.ErrInvalidCredential, "credential must look like 21CG029830")
	}
	class, ok := eligibility.Classify(credential)
	if !ok {
		return models.RegisterUserResponse{}, apperr.New(apperr.ErrInvalidCredential, "credential code is not recognized")
	}

	if resp, done, err := s.existing(ctx, wallet, credential); done {
		return resp, err
	}

	u := models.User{
		WalletAddress: wallet,
		Credential:    credential,
		Department:    class.Department,
		Program:       class.Program,
	}
	err = s.store.InsertUser(ctx, u)
	if errors.Is(err, store.ErrConflict) {
		// Lost a race with a concurrent registration; classify against it.
		if resp, done, err := s.existing(ctx, wallet, credential); done {
			return resp, err
		}
	}
	if err != nil {
		return models.RegisterUserResponse{}, apperr.Wrap(apperr.ErrStore, err, "failed to register user")
	}

	slog.Info("user registered", "wallet", wallet, "department", class.Department, "program", class.Program)
	stored, err := s.store.GetUserByWallet(ctx, wallet)
	if err == nil {
		u = stored
	}
	return models.RegisterUserResponse{User: u, Created: true, Message: "registered"}, nil
}

// existing resolves a registration against links already in the mirror.
// done is false when neither side is linked yet.
func (s *Service) existing(ctx context.Context, wallet, credential string) (resp models.RegisterUserResponse, done bool, err error) {
	u, err := s.store.GetUserByWallet(ctx, wallet)
	switch {
	case err == nil && u.Credential == credential:
		return models.RegisterUserResponse{User: u, Message: "already registered"}, true, nil
	case err == nil:
		return models.RegisterUserResponse{}, true, apperr.New(apperr.ErrWalletLinked, "wallet is linked to a different credential")
	case !errors.Is(err, store.ErrNotFound):
		return models.RegisterUserResponse{}, true, apperr.Wrap(apperr.ErrStore, err, "failed to look up wallet")
	}

	_, err = s.store.GetUserByCredential(ctx, credential)
	switch {
	case err == nil:
		return models.RegisterUserResponse{}, true, apperr.New(apperr.ErrCredentialLinked, "credential is linked to a different wallet")
	case !errors.Is(err, store.ErrNotFound):
		return models.RegisterUserResponse{}, true, apperr.Wrap(apperr.ErrStore, err, "failed to look up credential")
	}
	return models.RegisterUserResponse{}, false, nil
}

func (s *Service) Get(ctx context.Context, address string) (models.User, error) {
	wallet, err := auth.NormalizeAddress(address)
	if err != nil {
		return models.User{}, apperr.Wrap(apperr.ErrInvalidInput, err, "invalid wallet address")
	}
	u, err := s.store.GetUserByWallet(ctx, wallet)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, apperr.New(apperr.ErrUserNotFound, "no user for wallet %s", wallet)
	}
	if err != nil {
		return models.User{}, apperr.Wrap(apperr.ErrStore, err, "failed to look up user")
	}
	return u, nil
}
