package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// SecretPrefix is prepended to every generated bearer secret.
	SecretPrefix = "lma_"
	// SecretEntropyBytes is the number of random bytes behind a secret.
	SecretEntropyBytes = 32
	// IDLength is the length of a derived token identifier.
	IDLength = 16
)

// Token is a bearer credential together with its metadata and rolling usage
// aggregates. The map key under which it is stored (the token id) is always
// DeriveID(Secret) and is never assigned independently.
type Token struct {
	Secret    string     `json:"key"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used"`
	IsActive  bool       `json:"is_active"`
	UserInfo  UserInfo   `json:"user_info"`
	Usage     UsageStats `json:"usage_stats"`
}

// UserInfo is display-only metadata. It is never used for authentication.
type UserInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// UsageStats are the per-token rolling aggregates maintained by the usage
// recorder.
type UsageStats struct {
	TotalRequests int64            `json:"total_requests"`
	TotalTokens   int64            `json:"total_tokens"`
	ModelsUsed    map[string]int64 `json:"models_used"`
	IPAddresses   []string         `json:"ip_addresses"`
	Countries     map[string]int64 `json:"countries"`
}

// NewUsageStats returns a zeroed aggregate block with allocated maps.
func NewUsageStats() UsageStats {
	return UsageStats{
		ModelsUsed:  make(map[string]int64),
		IPAddresses: []string{},
		Countries:   make(map[string]int64),
	}
}

// UsageLogEntry is one immutable recorded unit of API consumption.
type UsageLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	TokenID    string    `json:"token_id"`
	Model      string    `json:"model"`
	TokensUsed int64     `json:"tokens"`
	IP         string    `json:"ip"`
	Country    string    `json:"country"`
}

// GlobalStats is the derived cache over the whole dataset. TotalRequests and
// TotalTokens are monotonic and independent of usage-log truncation;
// ActiveTokens is adjusted by exactly one on every active-state transition.
type GlobalStats struct {
	TotalRequests int64 `json:"total_requests"`
	TotalTokens   int64 `json:"total_tokens"`
	ActiveTokens  int64 `json:"active_tokens"`
}

// TimelineBucket is one calendar day of aggregated usage.
type TimelineBucket struct {
	Date     string `json:"date"`
	Requests int64  `json:"requests"`
	Tokens   int64  `json:"tokens"`
}

// GenerateSecret mints a new bearer secret: fixed prefix plus a URL-safe
// random suffix. Uniqueness holds with overwhelming probability.
func GenerateSecret() (string, error) {
	b := make([]byte, SecretEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return SecretPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// DeriveID maps a secret to its short token identifier. The derivation is a
// pure function so the id is recomputable anywhere without a lookup; the
// secret is not recoverable from it.
func DeriveID(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])[:IDLength]
}
