// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/danielhkuo/univote/cliparse"
	"github.com/danielhkuo/univote/db"
	"github.com/danielhkuo/univote/eligibility"
	"github.com/danielhkuo/univote/ledger/ledgertest"
	"github.com/danielhkuo/univote/models"
	"github.com/danielhkuo/univote/store"
)

// Well-known identities used across tests.
var (
	AdminAddress = common.HexToAddress("0x00000000000000000000000000000000000ad111")
	VoterAddress = common.HexToAddress("0x000000000000000000000000000000000000b0b1")
	OtherAddress = common.HexToAddress("0x000000000000000000000000000000000000c0c1")
)

// Credentials with known classifications.
const (
	CredentialCS  = "21CG029830" // Computer and Information Science / BSc Computer Science
	CredentialMIS = "21CH012345" // Computer and Information Science / BSc Management and Information Science
)

const (
	DeptCIS   = "Computer and Information Science"
	ProgramCS = "BSc Computer Science"
	ProgramMS = "BSc Management and Information Science"
)

var dbSeq atomic.Int64

// SetupTestDB opens a private in-memory SQLite database with the full schema.
// It is closed when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	name := fmt.Sprintf("univote_test_%d", dbSeq.Add(1))
	url := "file:" + name + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"

	conn, err := db.Open(context.Background(), "sqlite", url)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return conn
}

// NewLedger returns an in-memory contract with AdminAddress as an authority.
func NewLedger() *ledgertest.Ledger {
	l := ledgertest.New()
	l.AddAdmin(AdminAddress)
	return l
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:            3318,
		DatabaseURL:     "file::memory:",
		DatabaseType:    "sqlite",
		ContractAddress: ledgertest.ContractAddress.Hex(),
	}
}

// Address renders an address the way the mirror stores it.
func Address(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// Signature returns a well-formed 65-byte signature, hex encoded.
func Signature() string {
	return "0x" + hex.EncodeToString(bytes.Repeat([]byte{0x1b}, 65))
}

// CreateTestElection creates an election on the ledger and mirrors it in the
// given phase. Candidates are added before the phase is applied.
func CreateTestElection(t *testing.T, st *store.Store, l *ledgertest.Ledger, title string, typ models.ElectionType, allowed []string, phase models.Phase, candidates ...string) uint64 {
	t.Helper()
	ctx := context.Background()

	id := l.SeedElection(title, candidates...)
	if allowed == nil {
		allowed = []string{}
	}
	err := st.InsertElection(ctx, models.Election{
		ID:            id,
		Title:         title,
		Type:          typ,
		AllowedValues: allowed,
		Phase:         models.PhaseNotStarted,
	})
	if err != nil {
		t.Fatalf("Failed to create test election: %v", err)
	}

	infos, err := l.GetElectionCandidates(ctx, id)
	if err != nil {
		t.Fatalf("Failed to read test candidates: %v", err)
	}
	for _, info := range infos {
		addr := strings.ToLower(info.Address.Hex())
		c := &models.Candidate{ElectionID: id, LedgerID: info.ID, Name: info.Name, Address: &addr}
		if err := st.InsertCandidate(ctx, c); err != nil {
			t.Fatalf("Failed to create test candidate: %v", err)
		}
	}

	if phase == models.PhaseStarted || phase == models.PhaseEnded {
		if _, err := l.StartElection(ctx, id); err != nil {
			t.Fatalf("Failed to start test election: %v", err)
		}
	}
	if phase == models.PhaseEnded {
		if _, err := l.EndElection(ctx, id); err != nil {
			t.Fatalf("Failed to end test election: %v", err)
		}
	}
	if _, err := st.SetPhase(ctx, id, phase); err != nil {
		t.Fatalf("Failed to set test election phase: %v", err)
	}
	return id
}

// RegisterTestUser links a wallet to a credential in the mirror.
func RegisterTestUser(t *testing.T, st *store.Store, wallet common.Address, credential string) models.User {
	t.Helper()

	c, _ := eligibility.Classify(credential)
	u := models.User{
		WalletAddress: Address(wallet),
		Credential:    credential,
		Department:    c.Department,
		Program:       c.Program,
	}
	if err := st.InsertUser(context.Background(), u); err != nil {
		t.Fatalf("Failed to register test user: %v", err)
	}
	return u
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// WalletHeader is the identity header for addr.
func WalletHeader(addr common.Address) map[string]string {
	return map[string]string{"X-Wallet-Address": addr.Hex()}
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
