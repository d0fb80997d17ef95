package service

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/SaddoSenpai/LMArenaBridge/internal/config"
	"github.com/SaddoSenpai/LMArenaBridge/internal/ierr"
)

func newTestSessions(t *testing.T, password string) *SessionService {
	t.Helper()
	cfg := &config.AdminConfig{Username: "admin", Password: password}
	return NewSessionService(cfg, 24*time.Hour, zap.NewNop())
}

func TestLogin_Success(t *testing.T) {
	svc := newTestSessions(t, "hunter2")

	session, err := svc.Login("admin", "hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if session.ID == "" {
		t.Error("expected non-empty session id")
	}
	if got := session.ExpiresAt.Sub(session.CreatedAt); got != 24*time.Hour {
		t.Errorf("TTL = %v, want 24h", got)
	}

	username, err := svc.Validate(session.ID)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if username != "admin" {
		t.Errorf("username = %q, want admin", username)
	}
}

func TestLogin_RejectsEitherBadField(t *testing.T) {
	svc := newTestSessions(t, "hunter2")

	for _, tc := range []struct{ user, pass string }{
		{"admin", "wrong"},
		{"nobody", "hunter2"},
		{"nobody", "wrong"},
	} {
		_, err := svc.Login(tc.user, tc.pass)
		if !errors.Is(err, ierr.ErrInvalidCredentials) {
			t.Errorf("Login(%q, %q): expected ErrInvalidCredentials, got %v", tc.user, tc.pass, err)
		}
	}
}

func TestLogin_BcryptPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	svc := newTestSessions(t, string(hash))

	if _, err := svc.Login("admin", "hunter2"); err != nil {
		t.Fatalf("login with bcrypt-hashed password failed: %v", err)
	}
	if _, err := svc.Login("admin", "wrong"); !errors.Is(err, ierr.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestValidate_UnknownSession(t *testing.T) {
	svc := newTestSessions(t, "hunter2")

	if _, err := svc.Validate(""); !errors.Is(err, ierr.ErrSessionInvalid) {
		t.Errorf("empty id: expected ErrSessionInvalid, got %v", err)
	}
	if _, err := svc.Validate("no-such-session"); !errors.Is(err, ierr.ErrSessionInvalid) {
		t.Errorf("unknown id: expected ErrSessionInvalid, got %v", err)
	}
}

func TestValidate_ExpiryIsLazy(t *testing.T) {
	svc := newTestSessions(t, "hunter2")

	start := time.Now()
	svc.nowFn = func() time.Time { return start }

	session, err := svc.Login("admin", "hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	svc.nowFn = func() time.Time { return start.Add(23*time.Hour + 59*time.Minute) }
	if _, err := svc.Validate(session.ID); err != nil {
		t.Fatalf("session should still be valid just before the TTL: %v", err)
	}

	svc.nowFn = func() time.Time { return start.Add(24*time.Hour + time.Minute) }
	if _, err := svc.Validate(session.ID); !errors.Is(err, ierr.ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid past the TTL, got %v", err)
	}

	// First failed check evicted it; winding the clock back cannot revive it.
	svc.nowFn = func() time.Time { return start }
	if _, err := svc.Validate(session.ID); !errors.Is(err, ierr.ErrSessionInvalid) {
		t.Errorf("expected evicted session to stay invalid, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	svc := newTestSessions(t, "hunter2")

	session, err := svc.Login("admin", "hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	svc.Logout(session.ID)
	if _, err := svc.Validate(session.ID); !errors.Is(err, ierr.ErrSessionInvalid) {
		t.Errorf("expected ErrSessionInvalid after logout, got %v", err)
	}

	// No-op for an unknown id.
	svc.Logout("no-such-session")
}
