package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SaddoSenpai/LMArenaBridge/internal/domain/token"
	"github.com/SaddoSenpai/LMArenaBridge/internal/ierr"
	"github.com/SaddoSenpai/LMArenaBridge/internal/metrics"
)

const (
	// DefaultMaxLogEntries bounds the global usage log (sliding window).
	DefaultMaxLogEntries = 10000
	// DefaultMaxIPsPerToken bounds the distinct-IP set of one token (FIFO).
	DefaultMaxIPsPerToken = 100
)

// Options override the bounded-growth limits. Zero values mean defaults.
type Options struct {
	MaxLogEntries  int
	MaxIPsPerToken int
}

// document is the single durable state layout. It is rewritten in full after
// every mutating operation.
type document struct {
	Tokens    map[string]*token.Token `json:"tokens"`
	UsageLogs []token.UsageLogEntry   `json:"usage_logs"`
	Stats     token.GlobalStats       `json:"stats"`
}

// Store owns all token records, the global usage log and the derived global
// stats. One mutex serializes every mutating operation together with its
// durable rewrite; read-only queries share the read side and return copies.
//
// Mutations are stage-then-commit: the touched state is snapshotted, mutated,
// and restored if the durable rewrite fails, so a persistence failure never
// leaves memory and disk divergent.
type Store struct {
	path string

	mu   sync.RWMutex
	data document

	maxLogEntries  int
	maxIPsPerToken int

	logger *zap.Logger
	nowFn  func() time.Time
}

func New(path string, logger *zap.Logger) (*Store, error) {
	return NewWithOptions(path, Options{}, logger)
}

func NewWithOptions(path string, opts Options, logger *zap.Logger) (*Store, error) {
	if opts.MaxLogEntries <= 0 {
		opts.MaxLogEntries = DefaultMaxLogEntries
	}
	if opts.MaxIPsPerToken <= 0 {
		opts.MaxIPsPerToken = DefaultMaxIPsPerToken
	}

	s := &Store{
		path:           path,
		maxLogEntries:  opts.MaxLogEntries,
		maxIPsPerToken: opts.MaxIPsPerToken,
		logger:         logger.Named("JSONFileStore"),
		nowFn:          time.Now,
	}
	s.data = s.load()
	return s, nil
}

// load reads the store file. A missing or malformed file yields the empty
// structure instead of failing startup.
func (s *Store) load() document {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Could not read store file, starting empty", zap.String("path", s.path), zap.Error(err))
		}
		return emptyDocument()
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn("Store file is malformed, starting empty", zap.String("path", s.path), zap.Error(err))
		return emptyDocument()
	}

	if doc.Tokens == nil {
		doc.Tokens = make(map[string]*token.Token)
	}
	if doc.UsageLogs == nil {
		doc.UsageLogs = []token.UsageLogEntry{}
	}
	for _, t := range doc.Tokens {
		normalizeUsage(&t.Usage)
	}

	s.logger.Info("Store loaded",
		zap.String("path", s.path),
		zap.Int("tokens", len(doc.Tokens)),
		zap.Int("usage_logs", len(doc.UsageLogs)),
	)
	return doc
}

// persist rewrites the whole document atomically (temp file + rename). Caller
// must hold the write lock.
func (s *Store) persist() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		metrics.PersistFailures.Inc()
		return fmt.Errorf("%w: marshal: %v", ierr.ErrPersistence, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		metrics.PersistFailures.Inc()
		return fmt.Errorf("%w: mkdir %s: %v", ierr.ErrPersistence, dir, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		metrics.PersistFailures.Inc()
		return fmt.Errorf("%w: write %s: %v", ierr.ErrPersistence, tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		metrics.PersistFailures.Inc()
		return fmt.Errorf("%w: rename %s: %v", ierr.ErrPersistence, tmp, err)
	}
	return nil
}

// Now reads the store clock. The clock is replaceable in tests.
func (s *Store) Now() time.Time {
	return s.nowFn()
}

// InsertToken stores a freshly generated token under its derived id and
// adjusts the active count.
func (s *Store) InsertToken(t *token.Token) (string, error) {
	id := token.DeriveID(t.Secret)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.Tokens[id]; exists {
		return "", fmt.Errorf("token id %s already exists", id)
	}

	s.data.Tokens[id] = t
	if t.IsActive {
		s.data.Stats.ActiveTokens++
	}

	if err := s.persist(); err != nil {
		delete(s.data.Tokens, id)
		if t.IsActive {
			s.data.Stats.ActiveTokens--
		}
		return "", err
	}
	return id, nil
}

// GetBySecret derives the id from the presented secret and returns a copy of
// the matching token.
func (s *Store) GetBySecret(secret string) (*token.Token, string, error) {
	id := token.DeriveID(secret)

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data.Tokens[id]
	if !ok {
		return nil, "", ierr.ErrTokenNotFound
	}
	return cloneToken(t), id, nil
}

// GetByID returns a copy of the token stored under id.
func (s *Store) GetByID(id string) (*token.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data.Tokens[id]
	if !ok {
		return nil, ierr.ErrTokenNotFound
	}
	return cloneToken(t), nil
}

// ListTokens returns copies of every token keyed by id.
func (s *Store) ListTokens() map[string]*token.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*token.Token, len(s.data.Tokens))
	for id, t := range s.data.Tokens {
		out[id] = cloneToken(t)
	}
	return out
}

// SetActive flips a token's active flag. The active count changes by exactly
// one on an actual transition and not at all otherwise; the call is idempotent
// and fails only for an unknown id.
func (s *Store) SetActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data.Tokens[id]
	if !ok {
		return ierr.ErrTokenNotFound
	}

	changed := t.IsActive != active
	if changed {
		t.IsActive = active
		if active {
			s.data.Stats.ActiveTokens++
		} else {
			s.data.Stats.ActiveTokens--
		}
	}

	if err := s.persist(); err != nil {
		if changed {
			t.IsActive = !active
			if active {
				s.data.Stats.ActiveTokens--
			} else {
				s.data.Stats.ActiveTokens++
			}
		}
		return err
	}
	return nil
}

// DeleteToken removes a token permanently. Usage log entries keyed to the id
// stay in the log for audit.
func (s *Store) DeleteToken(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data.Tokens[id]
	if !ok {
		return ierr.ErrTokenNotFound
	}

	delete(s.data.Tokens, id)
	if t.IsActive {
		s.data.Stats.ActiveTokens--
	}

	if err := s.persist(); err != nil {
		s.data.Tokens[id] = t
		if t.IsActive {
			s.data.Stats.ActiveTokens++
		}
		return err
	}
	return nil
}

// RecordUsage applies one usage event as a single logical transaction: token
// aggregates, the global log (sliding window) and global stats all move
// together or not at all. An unknown secret returns ErrTokenNotFound; country
// must already be resolved by the caller.
func (s *Store) RecordUsage(secret, model string, tokensUsed int64, ip, country string) error {
	id := token.DeriveID(secret)

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data.Tokens[id]
	if !ok {
		return ierr.ErrTokenNotFound
	}

	prevToken := cloneToken(t)
	prevLogs := s.data.UsageLogs
	prevStats := s.data.Stats

	now := s.nowFn()
	t.LastUsed = &now
	t.Usage.TotalRequests++
	t.Usage.TotalTokens += tokensUsed
	t.Usage.ModelsUsed[model]++

	if !containsIP(t.Usage.IPAddresses, ip) {
		t.Usage.IPAddresses = append(t.Usage.IPAddresses, ip)
		if len(t.Usage.IPAddresses) > s.maxIPsPerToken {
			t.Usage.IPAddresses = t.Usage.IPAddresses[1:]
		}
	}
	t.Usage.Countries[country]++

	entry := token.UsageLogEntry{
		Timestamp:  now,
		TokenID:    id,
		Model:      model,
		TokensUsed: tokensUsed,
		IP:         ip,
		Country:    country,
	}
	logs := make([]token.UsageLogEntry, 0, len(prevLogs)+1)
	logs = append(logs, prevLogs...)
	logs = append(logs, entry)
	if len(logs) > s.maxLogEntries {
		logs = logs[len(logs)-s.maxLogEntries:]
	}
	s.data.UsageLogs = logs

	s.data.Stats.TotalRequests++
	s.data.Stats.TotalTokens += tokensUsed

	if err := s.persist(); err != nil {
		s.data.Tokens[id] = prevToken
		s.data.UsageLogs = prevLogs
		s.data.Stats = prevStats
		return err
	}
	return nil
}

// GlobalStats returns a copy of the derived stats cache.
func (s *Store) GlobalStats() token.GlobalStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Stats
}

// RecentUsage returns copies of the newest limit log entries, oldest first.
func (s *Store) RecentUsage(limit int) []token.UsageLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := s.data.UsageLogs
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	out := make([]token.UsageLogEntry, len(logs))
	copy(out, logs)
	return out
}

// Timeline re-buckets the usage log into calendar days (local time) over the
// last days days, optionally scoped to one token id. Days without activity are
// absent. Cost is proportional to the log size, which the sliding window
// bounds, not to the window length.
func (s *Store) Timeline(tokenID string, days int) []token.TimelineBucket {
	cutoff := s.nowFn().AddDate(0, 0, -days)

	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make(map[string]*token.TimelineBucket)
	for i := range s.data.UsageLogs {
		entry := &s.data.UsageLogs[i]
		if entry.Timestamp.Before(cutoff) {
			continue
		}
		if tokenID != "" && entry.TokenID != tokenID {
			continue
		}

		date := entry.Timestamp.Local().Format("2006-01-02")
		b, ok := buckets[date]
		if !ok {
			b = &token.TimelineBucket{Date: date}
			buckets[date] = b
		}
		b.Requests++
		b.Tokens += entry.TokensUsed
	}

	out := make([]token.TimelineBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func emptyDocument() document {
	return document{
		Tokens:    make(map[string]*token.Token),
		UsageLogs: []token.UsageLogEntry{},
	}
}

func normalizeUsage(u *token.UsageStats) {
	if u.ModelsUsed == nil {
		u.ModelsUsed = make(map[string]int64)
	}
	if u.IPAddresses == nil {
		u.IPAddresses = []string{}
	}
	if u.Countries == nil {
		u.Countries = make(map[string]int64)
	}
}

func cloneToken(t *token.Token) *token.Token {
	out := *t
	if t.LastUsed != nil {
		lu := *t.LastUsed
		out.LastUsed = &lu
	}
	out.Usage.ModelsUsed = make(map[string]int64, len(t.Usage.ModelsUsed))
	for k, v := range t.Usage.ModelsUsed {
		out.Usage.ModelsUsed[k] = v
	}
	out.Usage.IPAddresses = make([]string, len(t.Usage.IPAddresses))
	copy(out.Usage.IPAddresses, t.Usage.IPAddresses)
	out.Usage.Countries = make(map[string]int64, len(t.Usage.Countries))
	for k, v := range t.Usage.Countries {
		out.Usage.Countries[k] = v
	}
	return &out
}

func containsIP(ips []string, ip string) bool {
	for _, v := range ips {
		if v == ip {
			return true
		}
	}
	return false
}
