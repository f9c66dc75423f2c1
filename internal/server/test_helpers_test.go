package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	githubsqlite "github.com/glebarez/sqlite"
	"github.com/propdeck/backend/internal/auth"
	"github.com/propdeck/backend/internal/interactions"
	"github.com/propdeck/backend/internal/settings"
	"github.com/propdeck/backend/internal/users"
	"gorm.io/gorm"
)

type testServer struct {
	server       *httptest.Server
	tokens       *auth.TokenIssuer
	accounts     *users.Service
	interactions *interactions.Service
	hub          *Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := gorm.Open(githubsqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(
		&interactions.Record{},
		&interactions.HistoryEntry{},
		&users.Account{},
		&settings.Setting{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	accountsService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct accounts service: %v", err)
	}
	interactionsService, err := interactions.NewService(interactions.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct interactions service: %v", err)
	}
	settingsService, err := settings.NewService(settings.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct settings service: %v", err)
	}
	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "propdeck-auth",
		Audience:      "propdeck-api",
		TokenTTL:      time.Minute,
	})
	hub := NewHub()

	handler, err := NewHTTPHandler(Dependencies{
		Tokens:       tokenIssuer,
		Accounts:     accountsService,
		Interactions: interactionsService,
		Settings:     settingsService,
		Hub:          hub,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testServer{
		server:       server,
		tokens:       tokenIssuer,
		accounts:     accountsService,
		interactions: interactionsService,
		hub:          hub,
	}
}

// registerAccount creates an account directly and returns its bearer token.
func (ts *testServer) registerAccount(t *testing.T, email string) (users.Account, string) {
	t.Helper()
	account, err := ts.accounts.Register(context.Background(), users.RegistrationInput{
		Name:     "Test User",
		Email:    email,
		Password: "secret-password",
		Age:      30,
		Phone:    "+1-555-0101",
	})
	if err != nil {
		t.Fatalf("failed to register account: %v", err)
	}
	token, _, err := ts.tokens.Issue(account.ID, account.Email)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return account, token
}

func (ts *testServer) doJSON(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewBuffer(encoded)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	request, err := http.NewRequest(method, ts.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return response
}

// newBackdatedIssuer mirrors the test server's issuer with a clock frozen in
// the past, producing tokens that are already expired.
func newBackdatedIssuer(at time.Time) *auth.TokenIssuer {
	return auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "propdeck-auth",
		Audience:      "propdeck-api",
		TokenTTL:      time.Minute,
		Clock: func() time.Time {
			return at
		},
	})
}

func decodeEnvelope(t *testing.T, response *http.Response) apiResponse {
	t.Helper()
	defer response.Body.Close()
	var envelope apiResponse
	if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response envelope: %v", err)
	}
	return envelope
}

func decodeData(t *testing.T, envelope apiResponse, target interface{}) {
	t.Helper()
	encoded, err := json.Marshal(envelope.Data)
	if err != nil {
		t.Fatalf("failed to re-encode envelope data: %v", err)
	}
	if err := json.Unmarshal(encoded, target); err != nil {
		t.Fatalf("failed to decode envelope data: %v", err)
	}
}
