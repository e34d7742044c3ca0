// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/danielhkuo/univote/apperr"
	"github.com/danielhkuo/univote/ledger/ledgertest"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"checksummed", "0x52908400098527886E0F7030069857D2E4169EE7", "0x52908400098527886e0f7030069857d2e4169ee7", false},
		{"lower case", "0x52908400098527886e0f7030069857d2e4169ee7", "0x52908400098527886e0f7030069857d2e4169ee7", false},
		{"no prefix", "52908400098527886E0F7030069857D2E4169EE7", "0x52908400098527886e0f7030069857d2e4169ee7", false},
		{"padded", "  0x52908400098527886e0f7030069857d2e4169ee7 ", "0x52908400098527886e0f7030069857d2e4169ee7", false},
		{"too short", "0x1234", "", true},
		{"not hex", "0xZZ908400098527886E0F7030069857D2E4169EE7", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAddress(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeAddress() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Errorf("expected ErrInvalidAddress, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("NormalizeAddress() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAdminChecker(t *testing.T) {
	admin := common.HexToAddress("0xa1")
	stranger := common.HexToAddress("0xb2")

	l := ledgertest.New()
	l.AddAdmin(admin)
	checker := NewAdminChecker(l, time.Minute)
	ctx := context.Background()

	if err := checker.Require(ctx, admin); err != nil {
		t.Errorf("admin rejected: %v", err)
	}
	err := checker.Require(ctx, stranger)
	if !errors.Is(err, apperr.ErrNotAdmin) {
		t.Errorf("expected not_admin, got %v", err)
	}
}

func TestAdminCheckerCaches(t *testing.T) {
	admin := common.HexToAddress("0xa1")

	l := ledgertest.New()
	l.AddAdmin(admin)
	checker := NewAdminChecker(l, time.Minute)
	ctx := context.Background()

	if ok, err := checker.IsAdmin(ctx, admin); err != nil || !ok {
		t.Fatalf("IsAdmin = %v, %v", ok, err)
	}

	// Cached answers survive a ledger outage.
	l.FailReads(errors.New("rpc down"))
	if ok, err := checker.IsAdmin(ctx, admin); err != nil || !ok {
		t.Errorf("cached IsAdmin = %v, %v", ok, err)
	}

	// Uncached lookups fail closed.
	err := checker.Require(ctx, common.HexToAddress("0xc3"))
	if !errors.Is(err, apperr.ErrNotAdmin) {
		t.Errorf("expected not_admin on ledger failure, got %v", err)
	}
}

func TestAdminCacheExpires(t *testing.T) {
	admin := common.HexToAddress("0xa1")

	l := ledgertest.New()
	l.AddAdmin(admin)
	checker := NewAdminChecker(l, 20*time.Millisecond)
	ctx := context.Background()

	if ok, _ := checker.IsAdmin(ctx, admin); !ok {
		t.Fatal("expected admin")
	}
	l.FailReads(errors.New("rpc down"))
	time.Sleep(60 * time.Millisecond)

	if _, err := checker.IsAdmin(ctx, admin); err == nil {
		t.Error("expected a fresh ledger read after the TTL")
	}
}
