package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/propdeck/backend/internal/users"
)

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	ts := newTestServer(t)

	response := ts.doJSON(t, http.MethodGet, "/api/properties", "", nil)
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", response.StatusCode)
	}
	envelope := decodeEnvelope(t, response)
	if envelope.Success {
		t.Fatalf("expected failure envelope: %#v", envelope)
	}
}

func TestProtectedRoutesRejectGarbageToken(t *testing.T) {
	ts := newTestServer(t)

	response := ts.doJSON(t, http.MethodGet, "/api/properties", "not-a-jwt", nil)
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", response.StatusCode)
	}
	_ = decodeEnvelope(t, response)
}

func TestProtectedRoutesRejectTokenForMissingAccount(t *testing.T) {
	ts := newTestServer(t)

	token, _, err := ts.tokens.Issue("no-such-user", "ghost@example.com")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	response := ts.doJSON(t, http.MethodGet, "/api/properties", token, nil)
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown account, got %d", response.StatusCode)
	}
	_ = decodeEnvelope(t, response)
}

func TestSignupIssuesUsableToken(t *testing.T) {
	ts := newTestServer(t)

	response := ts.doJSON(t, http.MethodPost, "/api/users/signup", "", map[string]interface{}{
		"name":     "Ada Lovelace",
		"email":    "ada@example.com",
		"password": "correct-horse",
		"age":      36,
		"phone":    "+1-555-0100",
	})
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 on signup, got %d", response.StatusCode)
	}
	envelope := decodeEnvelope(t, response)
	var payload struct {
		User  users.PublicAccount `json:"user"`
		Token string              `json:"token"`
	}
	decodeData(t, envelope, &payload)
	if payload.Token == "" || payload.User.Email != "ada@example.com" {
		t.Fatalf("unexpected signup payload: %#v", payload)
	}

	listResponse := ts.doJSON(t, http.MethodGet, "/api/properties", payload.Token, nil)
	if listResponse.StatusCode != http.StatusOK {
		t.Fatalf("expected signup token to authorize, got %d", listResponse.StatusCode)
	}
	_ = decodeEnvelope(t, listResponse)
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.registerAccount(t, "ada@example.com")

	response := ts.doJSON(t, http.MethodPost, "/api/users/signup", "", map[string]interface{}{
		"name":     "Imposter",
		"email":    "ada@example.com",
		"password": "another-pass",
		"age":      20,
		"phone":    "+1-555-0199",
	})
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate email, got %d", response.StatusCode)
	}
	_ = decodeEnvelope(t, response)
}

func TestLoginSucceedsAndRejectsBadPassword(t *testing.T) {
	ts := newTestServer(t)
	ts.registerAccount(t, "ada@example.com")

	response := ts.doJSON(t, http.MethodPost, "/api/users/login", "", map[string]interface{}{
		"email":    "ada@example.com",
		"password": "secret-password",
	})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on login, got %d", response.StatusCode)
	}
	_ = decodeEnvelope(t, response)

	response = ts.doJSON(t, http.MethodPost, "/api/users/login", "", map[string]interface{}{
		"email":    "ada@example.com",
		"password": "wrong-password",
	})
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", response.StatusCode)
	}
	_ = decodeEnvelope(t, response)
}

func TestExpiredTokenRejectedWithExpiryMessage(t *testing.T) {
	ts := newTestServer(t)
	account, _ := ts.registerAccount(t, "ada@example.com")

	// Issue with the test issuer's one-minute TTL, then wait it out via a
	// second issuer sharing the secret but a later clock.
	_ = account
	expired := newExpiredToken(t, ts, account.ID, account.Email)
	response := ts.doJSON(t, http.MethodGet, "/api/properties", expired, nil)
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", response.StatusCode)
	}
	envelope := decodeEnvelope(t, response)
	if envelope.Message != "Access denied. Token expired." {
		t.Fatalf("expected expiry message, got %q", envelope.Message)
	}
}

func newExpiredToken(t *testing.T, ts *testServer, userID, email string) string {
	t.Helper()
	past := time.Now().Add(-time.Hour)
	issuer := newBackdatedIssuer(past)
	token, _, err := issuer.Issue(userID, email)
	if err != nil {
		t.Fatalf("failed to issue backdated token: %v", err)
	}
	return token
}
