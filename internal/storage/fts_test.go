package storage

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain terms", "login bug", "login bug"},
		{"boolean operators dropped", "login AND bug OR crash", "login bug crash"},
		{"lowercase and kept", "login and bug", "login and bug"},
		{"wildcards stripped", "log*n bu**g", "log n bu g"},
		{"quotes stripped", `"exact phrase"`, "exact phrase"},
		{"column qualifier stripped", "title:secret", "title secret"},
		{"near dropped", "NEAR login", "login"},
		{"parens stripped", "(a OR b)", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeQuery(tt.raw); got != tt.want {
				t.Errorf("SanitizeQuery(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSanitizeQueryMatchNothing(t *testing.T) {
	for _, raw := range []string{"", "   ", "***", "AND OR NOT", `"" ()`} {
		got := SanitizeQuery(raw)
		if !IsMatchNothing(got) {
			t.Errorf("SanitizeQuery(%q) = %q, want match-nothing sentinel", raw, got)
		}
	}
}

func TestSanitizeQueryTruncates(t *testing.T) {
	raw := strings.Repeat("abcde ", 100)
	got := SanitizeQuery(raw)
	if utf8.RuneCountInString(got) > maxQueryLength {
		t.Errorf("sanitized length = %d runes, want <= %d", utf8.RuneCountInString(got), maxQueryLength)
	}
}

func TestSanitizeQueryTruncatesOnRuneBoundary(t *testing.T) {
	raw := strings.Repeat("é", 250)
	got := SanitizeQuery(raw)
	if utf8.RuneCountInString(got) != maxQueryLength {
		t.Errorf("sanitized length = %d runes, want %d", utf8.RuneCountInString(got), maxQueryLength)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a multi-byte rune")
	}
}

func TestMatchExpressionQuotesTokens(t *testing.T) {
	got := MatchExpression("login bug")
	if got != `"login" "bug"` {
		t.Errorf("MatchExpression = %q", got)
	}
}

func seedSearchable(t *testing.T, db *DB, id, name string, lastMessage time.Time) {
	t.Helper()
	rec := testSession(id)
	rec.FilePath = "/transcripts/" + id + ".jsonl"
	rec.Name = name
	rec.LastMessageAt = lastMessage
	if _, err := db.UpsertSession(rec); err != nil {
		t.Fatal(err)
	}
}

func TestSearchSessions(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	seedSearchable(t, db, "s1", "fix the flaky login test", base)
	seedSearchable(t, db, "s2", "refactor payment retries", base.Add(time.Hour))
	seedSearchable(t, db, "s3", "login page styling", base.Add(2*time.Hour))

	results, err := db.SearchSessions("login", 0, 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for _, r := range results {
		if !strings.Contains(r.Session.Name, "login") {
			t.Errorf("unexpected match %q", r.Session.Name)
		}
	}
}

func TestSearchSessionsMultipleTermsImplicitAnd(t *testing.T) {
	db := openTestDB(t)
	base := time.Now().UTC().Truncate(time.Second)

	seedSearchable(t, db, "s1", "fix the flaky login test", base)
	seedSearchable(t, db, "s2", "login page styling", base)

	results, err := db.SearchSessions("flaky login", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Session.ID != "s1" {
		t.Errorf("implicit AND should match only s1, got %d results", len(results))
	}
}

func TestSearchSessionsOperatorInputDegrades(t *testing.T) {
	db := openTestDB(t)
	seedSearchable(t, db, "s1", "fix the flaky login test", time.Now().UTC())

	// Operator-only input matches nothing instead of erroring or
	// matching everything.
	results, err := db.SearchSessions("***", 0, 0)
	if err != nil {
		t.Fatalf("operator input must not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}

	results, err = db.SearchSessions(`login OR ")`, 0, 0)
	if err != nil {
		t.Fatalf("mixed operator input must not error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want the surviving term to match", len(results))
	}
}

func TestSearchCoversAnalysisText(t *testing.T) {
	db := openTestDB(t)
	seedSearchable(t, db, "s1", "untitled work", time.Now().UTC())

	entry := &AnalysisEntry{
		SessionID:   "s1",
		Title:       "database migration planning",
		Summary:     "walked through the zero-downtime rollout",
		Fingerprint: "fp-s1",
		AnalyzedAt:  time.Now().UTC(),
	}
	if err := db.PutAnalysis(entry); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchSessions("migration", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("analysis title should be searchable, got %d results", len(results))
	}
	if results[0].Title != "database migration planning" {
		t.Errorf("title = %q", results[0].Title)
	}

	results, err = db.SearchSessions("rollout", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("analysis summary should be searchable, got %d results", len(results))
	}
}

func TestSearchReflectsClearedCache(t *testing.T) {
	db := openTestDB(t)
	seedSearchable(t, db, "s1", "untitled work", time.Now().UTC())

	entry := &AnalysisEntry{
		SessionID:   "s1",
		Title:       "database migration planning",
		Summary:     "rollout notes",
		Fingerprint: "fp-s1",
		AnalyzedAt:  time.Now().UTC(),
	}
	if err := db.PutAnalysis(entry); err != nil {
		t.Fatal(err)
	}

	if _, err := db.ClearAnalysisCache(ClearScope{}); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchSessions("migration", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Error("cleared analysis text should leave the index immediately")
	}

	// Metadata search still works after the clear.
	results, err = db.SearchSessions("untitled", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("metadata search broken after clear, got %d results", len(results))
	}
}
