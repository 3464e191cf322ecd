package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

// fakeVerifier accepts the token "good" for user "alice".
type fakeVerifier struct{}

func (fakeVerifier) Authenticate(tok string) (string, error) {
	if tok == "good" {
		return "alice", nil
	}
	return "", errors.New("bad token")
}

func TestRequireAuth_NoToken(t *testing.T) {
	dummy := &dummyHandler{}
	h := RequireAuth(fakeVerifier{})(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/note_tool/card", nil)
	h.ServeHTTP(rec, req)

	if dummy.called {
		t.Error("did not expect next handler to be called when no token provided")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 Unauthorized, got %d", rec.Code)
	}
}

func TestRequireAuth_BadToken(t *testing.T) {
	dummy := &dummyHandler{}
	h := RequireAuth(fakeVerifier{})(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/note_tool/card", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "forged"})
	h.ServeHTTP(rec, req)

	if dummy.called {
		t.Error("did not expect next handler to be called for an invalid token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 Unauthorized, got %d", rec.Code)
	}
}

func TestRequireAuth_ValidToken(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "good"}) }},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }},
		{"bearer wins", func(r *http.Request) {
			r.Header.Set("Authorization", "bearer good")
			r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "stale"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dummy := &dummyHandler{}
			h := RequireAuth(fakeVerifier{})(dummy)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/note_tool/card", nil)
			tt.setup(req)
			h.ServeHTTP(rec, req)

			if !dummy.called {
				t.Fatal("expected next handler to be called when a valid token is provided")
			}
			if user := GetUserIDFromContext(dummy.ctx); user != "alice" {
				t.Errorf("expected context user 'alice', got '%s'", user)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	dummy := &dummyHandler{}
	h := OptionalAuth(fakeVerifier{})(dummy)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer forged")
	h.ServeHTTP(rec, req)

	if !dummy.called {
		t.Fatal("expected next handler to be called")
	}
	if user := GetUserIDFromContext(dummy.ctx); user != "" {
		t.Errorf("expected no user, got '%s'", user)
	}
}

func TestGetUserIDFromContext(t *testing.T) {
	// no value
	empty := GetUserIDFromContext(context.Background())
	if empty != "" {
		t.Errorf("expected empty string for missing user, got '%s'", empty)
	}
	// with value
	ctx := WithUserID(context.Background(), "bob")
	val := GetUserIDFromContext(ctx)
	if val != "bob" {
		t.Errorf("expected 'bob', got '%s'", val)
	}
}
