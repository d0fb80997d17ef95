package dto

import (
	"time"

	"github.com/SaddoSenpai/LMArenaBridge/internal/domain/token"
)

type CreateTokenRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" binding:"omitempty,email"`
}

type CreateTokenResponse struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"token_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenInfoResponse is the public self-lookup payload. The secret is never
// echoed back.
type TokenInfoResponse struct {
	CreatedAt time.Time        `json:"created_at"`
	LastUsed  *time.Time       `json:"last_used"`
	IsActive  bool             `json:"is_active"`
	Usage     token.UsageStats `json:"usage_stats"`
}

func NewTokenInfoResponse(t *token.Token) *TokenInfoResponse {
	return &TokenInfoResponse{
		CreatedAt: t.CreatedAt,
		LastUsed:  t.LastUsed,
		IsActive:  t.IsActive,
		Usage:     t.Usage,
	}
}

// AdminTokenResponse is the admin listing payload; the secret is masked.
type AdminTokenResponse struct {
	TokenID   string           `json:"token_id"`
	KeyMasked string           `json:"key_masked"`
	UserInfo  token.UserInfo   `json:"user_info"`
	CreatedAt time.Time        `json:"created_at"`
	LastUsed  *time.Time       `json:"last_used"`
	IsActive  bool             `json:"is_active"`
	Usage     token.UsageStats `json:"usage_stats"`
}

func NewAdminTokenResponse(id string, t *token.Token) *AdminTokenResponse {
	return &AdminTokenResponse{
		TokenID:   id,
		KeyMasked: maskSecret(t.Secret),
		UserInfo:  t.UserInfo,
		CreatedAt: t.CreatedAt,
		LastUsed:  t.LastUsed,
		IsActive:  t.IsActive,
		Usage:     t.Usage,
	}
}

// maskSecret keeps the prefix and last four characters visible.
func maskSecret(secret string) string {
	if len(secret) <= len(token.SecretPrefix)+8 {
		return "***"
	}
	return secret[:len(token.SecretPrefix)+4] + "***" + secret[len(secret)-4:]
}
