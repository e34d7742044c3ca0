// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielhkuo/univote/models"
	"github.com/danielhkuo/univote/testutil"
)

func TestRegisterUser(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name           string
		body           models.RegisterUserRequest
		expectedStatus int
		expectedCode   string
		checkResponse  func(t *testing.T, resp *models.RegisterUserResponse)
	}{
		{
			name:           "new registration",
			body:           models.RegisterUserRequest{Credential: testutil.CredentialCS, WalletAddress: testutil.VoterAddress.Hex()},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, resp *models.RegisterUserResponse) {
				if !resp.Created {
					t.Error("Expected created=true")
				}
				if resp.User.WalletAddress != testutil.Address(testutil.VoterAddress) {
					t.Errorf("Expected canonical wallet, got %s", resp.User.WalletAddress)
				}
				if resp.User.Department != testutil.DeptCIS || resp.User.Program != testutil.ProgramCS {
					t.Errorf("Unexpected classification %s / %s", resp.User.Department, resp.User.Program)
				}
			},
		},
		{
			name:           "same pair again",
			body:           models.RegisterUserRequest{Credential: testutil.CredentialCS, WalletAddress: testutil.Address(testutil.VoterAddress)},
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, resp *models.RegisterUserResponse) {
				if resp.Created {
					t.Error("Expected created=false for a repeat registration")
				}
			},
		},
		{
			name:           "credential on another wallet",
			body:           models.RegisterUserRequest{Credential: testutil.CredentialCS, WalletAddress: testutil.OtherAddress.Hex()},
			expectedStatus: http.StatusConflict,
			expectedCode:   "credential_linked",
		},
		{
			name:           "wallet with another credential",
			body:           models.RegisterUserRequest{Credential: testutil.CredentialMIS, WalletAddress: testutil.VoterAddress.Hex()},
			expectedStatus: http.StatusConflict,
			expectedCode:   "wallet_linked",
		},
		{
			name:           "malformed credential",
			body:           models.RegisterUserRequest{Credential: "XYZ", WalletAddress: testutil.OtherAddress.Hex()},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_credential",
		},
		{
			name:           "bad wallet",
			body:           models.RegisterUserRequest{Credential: testutil.CredentialMIS, WalletAddress: "0xnope"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_input",
		},
		{
			name:           "missing fields",
			body:           models.RegisterUserRequest{},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.MakeRequest("POST", "/users/register", tt.body, nil)
			w := httptest.NewRecorder()

			env.users.Register(w, req)

			testutil.AssertStatus(t, w, tt.expectedStatus)
			if tt.expectedCode != "" {
				var resp models.ErrorResponse
				testutil.AssertJSON(t, w, &resp)
				if resp.Code != tt.expectedCode {
					t.Errorf("Expected code %q, got %q", tt.expectedCode, resp.Code)
				}
				return
			}
			var resp models.RegisterUserResponse
			testutil.AssertJSON(t, w, &resp)
			if tt.checkResponse != nil {
				tt.checkResponse(t, &resp)
			}
		})
	}
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)
	testutil.RegisterTestUser(t, env.store, testutil.VoterAddress, testutil.CredentialMIS)

	tests := []struct {
		name           string
		address        string
		expectedStatus int
	}{
		{"checksummed address", testutil.VoterAddress.Hex(), http.StatusOK},
		{"lower-case address", testutil.Address(testutil.VoterAddress), http.StatusOK},
		{"unknown wallet", testutil.OtherAddress.Hex(), http.StatusNotFound},
		{"invalid address", "wallet", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.MakeRequest("GET", "/users/"+tt.address, nil, nil)
			req.SetPathValue("address", tt.address)
			w := httptest.NewRecorder()

			env.users.GetUser(w, req)

			testutil.AssertStatus(t, w, tt.expectedStatus)
			if tt.expectedStatus != http.StatusOK {
				return
			}
			var u models.User
			testutil.AssertJSON(t, w, &u)
			if u.Credential != testutil.CredentialMIS || u.Program != testutil.ProgramMS {
				t.Errorf("Unexpected user %+v", u)
			}
		})
	}
}
