package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/SaddoSenpai/LMArenaBridge/internal/config"
	"github.com/SaddoSenpai/LMArenaBridge/internal/ierr"
)

const sessionIDBytes = 32

// Session is a short-lived opaque handle for the administrative principal.
// Sessions live in process memory only and are lost on restart.
type Session struct {
	ID        string    `json:"session_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionService authenticates the single configured admin credential pair and
// tracks the resulting sessions. Expiry is passive: an expired session is
// evicted the first time it is observed as expired, never by a timer.
type SessionService struct {
	mu       sync.Mutex
	sessions map[string]*Session

	username string
	password string
	ttl      time.Duration

	logger *zap.Logger
	nowFn  func() time.Time
}

func NewSessionService(cfg *config.AdminConfig, ttl time.Duration, logger *zap.Logger) *SessionService {
	return &SessionService{
		sessions: make(map[string]*Session),
		username: cfg.Username,
		password: cfg.Password,
		ttl:      ttl,
		logger:   logger.Named("SessionService"),
		nowFn:    time.Now,
	}
}

// Login creates a session when the credential pair matches. A mismatch in
// either field yields the same ErrInvalidCredentials.
func (s *SessionService) Login(username, password string) (*Session, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passOK := s.checkPassword(password)
	if !userOK || !passOK {
		s.logger.Info("Rejected login attempt", zap.String("username", username))
		return nil, ierr.ErrInvalidCredentials
	}

	id, err := generateSessionID()
	if err != nil {
		s.logger.Error("Failed to generate session id", zap.Error(err))
		return nil, fmt.Errorf("%w: generating session id: %v", ierr.ErrInternalServer, err)
	}

	now := s.nowFn()
	session := &Session{
		ID:        id,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	s.logger.Info("Admin logged in", zap.String("username", username), zap.Time("expires_at", session.ExpiresAt))
	return session, nil
}

// Validate resolves a session id to its username. An absent or expired id
// fails with ErrSessionInvalid; the expired entry is removed on this check.
func (s *SessionService) Validate(sessionID string) (string, error) {
	if sessionID == "" {
		return "", ierr.ErrSessionInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return "", ierr.ErrSessionInvalid
	}
	if s.nowFn().After(session.ExpiresAt) {
		delete(s.sessions, sessionID)
		s.logger.Debug("Evicted expired session", zap.String("username", session.Username))
		return "", ierr.ErrSessionInvalid
	}
	return session.Username, nil
}

// Logout removes the session if present and is a no-op otherwise.
func (s *SessionService) Logout(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		delete(s.sessions, sessionID)
		s.logger.Info("Admin logged out", zap.String("username", session.Username))
	}
}

// checkPassword supports both a bcrypt-hashed configured password and a plain
// one compared in constant time.
func (s *SessionService) checkPassword(password string) bool {
	if strings.HasPrefix(s.password, "$2a$") || strings.HasPrefix(s.password, "$2b$") || strings.HasPrefix(s.password, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(s.password), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
}

func generateSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
