package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/SaddoSenpai/LMArenaBridge/internal/domain/token"
	"github.com/SaddoSenpai/LMArenaBridge/internal/ierr"
	"github.com/SaddoSenpai/LMArenaBridge/internal/metrics"
	"github.com/SaddoSenpai/LMArenaBridge/internal/storage/jsonfile"
)

// TokenService owns the token lifecycle: issuing, self-lookup, revocation,
// reactivation and deletion.
type TokenService struct {
	store  *jsonfile.Store
	logger *zap.Logger
}

func NewTokenService(store *jsonfile.Store, logger *zap.Logger) *TokenService {
	return &TokenService{
		store:  store,
		logger: logger.Named("TokenService"),
	}
}

// Create issues a new active token. The returned record carries the full
// secret; this is the only operation that ever hands it out.
func (s *TokenService) Create(ctx context.Context, info token.UserInfo) (*token.Token, string, error) {
	secret, err := token.GenerateSecret()
	if err != nil {
		s.logger.Error("Failed to generate token secret", zap.Error(err))
		return nil, "", fmt.Errorf("%w: generating secret: %v", ierr.ErrInternalServer, err)
	}

	newToken := &token.Token{
		Secret:    secret,
		CreatedAt: s.store.Now(),
		IsActive:  true,
		UserInfo:  info,
		Usage:     token.NewUsageStats(),
	}

	id, err := s.store.InsertToken(newToken)
	if err != nil {
		s.logger.Error("Failed to store new token", zap.Error(err))
		return nil, "", fmt.Errorf("store error creating token: %w", err)
	}

	metrics.TokensCreated.Inc()
	s.logger.Info("Token created", zap.String("token_id", id))
	return newToken, id, nil
}

// Info looks a token up by its presented secret.
func (s *TokenService) Info(ctx context.Context, secret string) (*token.Token, string, error) {
	t, id, err := s.store.GetBySecret(secret)
	if err != nil {
		return nil, "", err
	}
	return t, id, nil
}

// Validate reports whether the secret belongs to an existing, active token.
func (s *TokenService) Validate(ctx context.Context, secret string) bool {
	t, _, err := s.store.GetBySecret(secret)
	return err == nil && t.IsActive
}

// List returns every token keyed by id.
func (s *TokenService) List(ctx context.Context) map[string]*token.Token {
	return s.store.ListTokens()
}

// Revoke deactivates a token. Revoking an already-inactive token succeeds and
// changes nothing; only an unknown id fails.
func (s *TokenService) Revoke(ctx context.Context, id string) error {
	if err := s.store.SetActive(id, false); err != nil {
		s.logger.Warn("Failed to revoke token", zap.String("token_id", id), zap.Error(err))
		return err
	}
	s.logger.Info("Token revoked", zap.String("token_id", id))
	return nil
}

// Activate is the inverse of Revoke with the same idempotency.
func (s *TokenService) Activate(ctx context.Context, id string) error {
	if err := s.store.SetActive(id, true); err != nil {
		s.logger.Warn("Failed to activate token", zap.String("token_id", id), zap.Error(err))
		return err
	}
	s.logger.Info("Token activated", zap.String("token_id", id))
	return nil
}

// Delete removes a token permanently. Its usage history stays in the global
// log for audit.
func (s *TokenService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteToken(id); err != nil {
		s.logger.Warn("Failed to delete token", zap.String("token_id", id), zap.Error(err))
		return err
	}
	s.logger.Info("Token deleted", zap.String("token_id", id))
	return nil
}
