package jsonfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SaddoSenpai/LMArenaBridge/internal/domain/token"
	"github.com/SaddoSenpai/LMArenaBridge/internal/ierr"
)

func tempStore(t *testing.T, opts Options) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := NewWithOptions(path, opts, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func mustInsert(t *testing.T, s *Store, active bool) (secret, id string) {
	t.Helper()
	secret, err := token.GenerateSecret()
	if err != nil {
		t.Fatalf("failed to generate secret: %v", err)
	}
	id, err = s.InsertToken(&token.Token{
		Secret:    secret,
		CreatedAt: s.Now(),
		IsActive:  active,
		Usage:     token.NewUsageStats(),
	})
	if err != nil {
		t.Fatalf("failed to insert token: %v", err)
	}
	return secret, id
}

func activeCount(s *Store) int64 {
	var n int64
	for _, tok := range s.ListTokens() {
		if tok.IsActive {
			n++
		}
	}
	return n
}

func TestDefaults(t *testing.T) {
	if DefaultMaxLogEntries != 10000 {
		t.Errorf("expected log cap 10000, got %d", DefaultMaxLogEntries)
	}
	if DefaultMaxIPsPerToken != 100 {
		t.Errorf("expected ip cap 100, got %d", DefaultMaxIPsPerToken)
	}
}

func TestActiveTokens_TrackedThroughLifecycle(t *testing.T) {
	s := tempStore(t, Options{})

	_, id1 := mustInsert(t, s, true)
	_, id2 := mustInsert(t, s, true)

	check := func(step string) {
		t.Helper()
		if got, want := s.GlobalStats().ActiveTokens, activeCount(s); got != want {
			t.Errorf("%s: ActiveTokens=%d, recount=%d", step, got, want)
		}
	}
	check("after create")

	if err := s.SetActive(id1, false); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	check("after revoke")

	if err := s.SetActive(id1, true); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	check("after activate")

	if err := s.DeleteToken(id1); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	check("after delete of active token")

	if err := s.SetActive(id2, false); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if err := s.DeleteToken(id2); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	check("after delete of inactive token")

	if got := s.GlobalStats().ActiveTokens; got != 0 {
		t.Errorf("expected 0 active tokens at end, got %d", got)
	}
}

func TestSetActive_RevokeIdempotent(t *testing.T) {
	s := tempStore(t, Options{})
	_, id := mustInsert(t, s, true)

	if err := s.SetActive(id, false); err != nil {
		t.Fatalf("first revoke failed: %v", err)
	}
	if err := s.SetActive(id, false); err != nil {
		t.Fatalf("second revoke should succeed: %v", err)
	}
	if got := s.GlobalStats().ActiveTokens; got != 0 {
		t.Errorf("double revoke changed ActiveTokens, got %d", got)
	}
}

func TestSetActive_UnknownID(t *testing.T) {
	s := tempStore(t, Options{})
	if err := s.SetActive("deadbeefdeadbeef", false); !errors.Is(err, ierr.ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestGetBySecret_DerivesID(t *testing.T) {
	s := tempStore(t, Options{})
	secret, id := mustInsert(t, s, true)

	got, gotID, err := s.GetBySecret(secret)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if gotID != id || gotID != token.DeriveID(secret) {
		t.Errorf("id mismatch: got %q, inserted %q", gotID, id)
	}
	if got.Secret != secret {
		t.Errorf("secret mismatch")
	}

	if _, _, err := s.GetBySecret("lma_unknown"); !errors.Is(err, ierr.ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestRecordUsage_Aggregates(t *testing.T) {
	s := tempStore(t, Options{})
	secret, _ := mustInsert(t, s, true)

	if err := s.RecordUsage(secret, "gpt", 10, "1.2.3.4", "Germany"); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := s.RecordUsage(secret, "gpt", 5, "1.2.3.4", "Germany"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	tok, _, err := s.GetBySecret(secret)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if tok.Usage.TotalRequests != 2 {
		t.Errorf("TotalRequests=%d, want 2", tok.Usage.TotalRequests)
	}
	if tok.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens=%d, want 15", tok.Usage.TotalTokens)
	}
	if tok.Usage.ModelsUsed["gpt"] != 2 {
		t.Errorf("ModelsUsed[gpt]=%d, want 2", tok.Usage.ModelsUsed["gpt"])
	}
	if len(tok.Usage.IPAddresses) != 1 || tok.Usage.IPAddresses[0] != "1.2.3.4" {
		t.Errorf("IPAddresses=%v, want [1.2.3.4]", tok.Usage.IPAddresses)
	}
	if tok.Usage.Countries["Germany"] != 2 {
		t.Errorf("Countries[Germany]=%d, want 2", tok.Usage.Countries["Germany"])
	}
	if tok.LastUsed == nil {
		t.Error("LastUsed not set")
	}

	stats := s.GlobalStats()
	if stats.TotalRequests != 2 || stats.TotalTokens != 15 {
		t.Errorf("global stats = %+v, want 2 requests / 15 tokens", stats)
	}
}

func TestRecordUsage_UnknownToken(t *testing.T) {
	s := tempStore(t, Options{})
	err := s.RecordUsage("lma_ghost", "gpt", 10, "1.2.3.4", "Germany")
	if !errors.Is(err, ierr.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
	if got := s.GlobalStats().TotalRequests; got != 0 {
		t.Errorf("unknown token changed global stats: %d", got)
	}
	if got := len(s.RecentUsage(0)); got != 0 {
		t.Errorf("unknown token appended to log: %d entries", got)
	}
}

func TestRecordUsage_IPCapFIFO(t *testing.T) {
	s := tempStore(t, Options{})
	secret, _ := mustInsert(t, s, true)

	for i := 0; i < 101; i++ {
		ip := fmt.Sprintf("10.0.0.%d", i)
		if err := s.RecordUsage(secret, "gpt", 1, ip, "Germany"); err != nil {
			t.Fatalf("record %d failed: %v", i, err)
		}
	}

	tok, _, err := s.GetBySecret(secret)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(tok.Usage.IPAddresses) != 100 {
		t.Fatalf("IPAddresses length=%d, want 100", len(tok.Usage.IPAddresses))
	}
	for _, ip := range tok.Usage.IPAddresses {
		if ip == "10.0.0.0" {
			t.Error("oldest IP should have been evicted")
		}
	}
	if tok.Usage.IPAddresses[0] != "10.0.0.1" {
		t.Errorf("expected 10.0.0.1 as oldest survivor, got %s", tok.Usage.IPAddresses[0])
	}
}

func TestRecordUsage_LogSlidingWindow(t *testing.T) {
	s := tempStore(t, Options{MaxLogEntries: 100})
	secret, _ := mustInsert(t, s, true)

	for i := 0; i < 101; i++ {
		if err := s.RecordUsage(secret, fmt.Sprintf("model-%d", i), 1, "1.2.3.4", "Germany"); err != nil {
			t.Fatalf("record %d failed: %v", i, err)
		}
	}

	logs := s.RecentUsage(0)
	if len(logs) != 100 {
		t.Fatalf("log length=%d, want 100", len(logs))
	}
	if logs[0].Model != "model-1" {
		t.Errorf("oldest surviving entry should be the 2nd recorded, got %s", logs[0].Model)
	}
	if logs[len(logs)-1].Model != "model-100" {
		t.Errorf("newest entry should be the last recorded, got %s", logs[len(logs)-1].Model)
	}

	// Truncation does not touch the monotonic counters.
	if got := s.GlobalStats().TotalRequests; got != 101 {
		t.Errorf("TotalRequests=%d, want 101", got)
	}
}

func TestRecentUsage_Limit(t *testing.T) {
	s := tempStore(t, Options{})
	secret, _ := mustInsert(t, s, true)
	for i := 0; i < 5; i++ {
		if err := s.RecordUsage(secret, fmt.Sprintf("m%d", i), 1, "1.2.3.4", "Local"); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	logs := s.RecentUsage(2)
	if len(logs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(logs))
	}
	if logs[0].Model != "m3" || logs[1].Model != "m4" {
		t.Errorf("expected the 2 newest entries, got %s, %s", logs[0].Model, logs[1].Model)
	}
}

func TestTimeline(t *testing.T) {
	s := tempStore(t, Options{})
	secretA, idA := mustInsert(t, s, true)
	secretB, _ := mustInsert(t, s, true)

	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.Local)

	recordAt := func(ts time.Time, secret string, tokens int64) {
		t.Helper()
		s.nowFn = func() time.Time { return ts }
		if err := s.RecordUsage(secret, "gpt", tokens, "1.2.3.4", "Germany"); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	recordAt(base.AddDate(0, 0, -8), secretA, 100) // outside a 7 day window
	recordAt(base.AddDate(0, 0, -1), secretA, 10)
	recordAt(base, secretA, 5)
	recordAt(base, secretA, 7)
	recordAt(base, secretB, 3)

	s.nowFn = func() time.Time { return base }

	buckets := s.Timeline("", 7)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d: %+v", len(buckets), buckets)
	}
	if buckets[0].Date >= buckets[1].Date {
		t.Errorf("buckets not ascending: %+v", buckets)
	}
	if buckets[0].Date != base.AddDate(0, 0, -1).Format("2006-01-02") {
		t.Errorf("unexpected first bucket date %s", buckets[0].Date)
	}
	if buckets[0].Requests != 1 || buckets[0].Tokens != 10 {
		t.Errorf("first bucket = %+v, want 1 request / 10 tokens", buckets[0])
	}
	if buckets[1].Requests != 3 || buckets[1].Tokens != 15 {
		t.Errorf("second bucket = %+v, want 3 requests / 15 tokens", buckets[1])
	}

	scoped := s.Timeline(idA, 7)
	if len(scoped) != 2 {
		t.Fatalf("expected 2 scoped buckets, got %d", len(scoped))
	}
	if scoped[1].Requests != 2 || scoped[1].Tokens != 12 {
		t.Errorf("scoped second bucket = %+v, want 2 requests / 12 tokens", scoped[1])
	}
}

func TestPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := New(path, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	secret, id := mustInsert(t, s, true)
	if err := s.RecordUsage(secret, "gpt", 10, "127.0.0.1", "Local"); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	_, inactiveID := mustInsert(t, s, true)
	if err := s.SetActive(inactiveID, false); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	reloaded, err := New(path, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to reload store: %v", err)
	}

	stats := reloaded.GlobalStats()
	if stats.TotalRequests != 1 || stats.TotalTokens != 10 || stats.ActiveTokens != 1 {
		t.Errorf("reloaded stats = %+v", stats)
	}
	tok, err := reloaded.GetByID(id)
	if err != nil {
		t.Fatalf("reloaded lookup failed: %v", err)
	}
	if tok.Usage.TotalRequests != 1 || tok.Usage.Countries["Local"] != 1 {
		t.Errorf("reloaded token usage = %+v", tok.Usage)
	}
	if got := len(reloaded.RecentUsage(0)); got != 1 {
		t.Errorf("reloaded log length = %d, want 1", got)
	}
}

func TestLoad_MalformedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	s, err := New(path, zap.NewNop())
	if err != nil {
		t.Fatalf("malformed file should not fail startup: %v", err)
	}
	if got := len(s.ListTokens()); got != 0 {
		t.Errorf("expected empty store, got %d tokens", got)
	}
}

func TestPersistFailure_RollsBack(t *testing.T) {
	s := tempStore(t, Options{})
	secret, id := mustInsert(t, s, true)

	// A directory squatting on the temp path makes the rewrite fail.
	if err := os.Mkdir(s.path+".tmp", 0o755); err != nil {
		t.Fatalf("failed to block temp path: %v", err)
	}

	err := s.SetActive(id, false)
	if !errors.Is(err, ierr.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}

	tok, _, lookupErr := s.GetBySecret(secret)
	if lookupErr != nil {
		t.Fatalf("lookup failed: %v", lookupErr)
	}
	if !tok.IsActive {
		t.Error("failed revoke should have been rolled back")
	}
	if got := s.GlobalStats().ActiveTokens; got != 1 {
		t.Errorf("ActiveTokens=%d after rollback, want 1", got)
	}

	if err := s.RecordUsage(secret, "gpt", 10, "1.2.3.4", "Germany"); !errors.Is(err, ierr.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	tok, _, _ = s.GetBySecret(secret)
	if tok.Usage.TotalRequests != 0 {
		t.Error("failed record should have been rolled back")
	}
	if got := len(s.RecentUsage(0)); got != 0 {
		t.Errorf("failed record left %d log entries", got)
	}

	// Once the path clears, the same operation goes through.
	if err := os.Remove(s.path + ".tmp"); err != nil {
		t.Fatalf("failed to unblock temp path: %v", err)
	}
	if err := s.SetActive(id, false); err != nil {
		t.Fatalf("revoke after recovery failed: %v", err)
	}
	if got := s.GlobalStats().ActiveTokens; got != 0 {
		t.Errorf("ActiveTokens=%d after recovery, want 0", got)
	}
}

func TestDeleteToken_KeepsUsageLog(t *testing.T) {
	s := tempStore(t, Options{})
	secret, id := mustInsert(t, s, true)
	if err := s.RecordUsage(secret, "gpt", 10, "1.2.3.4", "Germany"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if err := s.DeleteToken(id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.GetByID(id); !errors.Is(err, ierr.ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound after delete, got %v", err)
	}

	logs := s.RecentUsage(0)
	if len(logs) != 1 || logs[0].TokenID != id {
		t.Errorf("usage history should survive deletion, got %+v", logs)
	}
}
