package storage

import (
	"fmt"
	"testing"
	"time"

	skberrors "skb/internal/errors"
	"skb/internal/logging"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSession(id string) *SessionRecord {
	return &SessionRecord{
		ID:            id,
		ProjectPath:   "/home/u/work/api",
		FilePath:      fmt.Sprintf("/transcripts/%s.jsonl", id),
		FileMtime:     1700000000,
		FileSize:      2048,
		Name:          "fix the flaky login test",
		MessageCount:  12,
		LastMessageAt: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		Fingerprint:   "fp-" + id,
	}
}

func TestUpsertSessionRoundTrip(t *testing.T) {
	db := openTestDB(t)

	changed, err := db.UpsertSession(testSession("s1"))
	if err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}
	if !changed {
		t.Error("first upsert should report a change")
	}

	rec, err := db.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if rec.ProjectPath != "/home/u/work/api" || rec.MessageCount != 12 {
		t.Errorf("round trip lost fields: %+v", rec)
	}
	if rec.Analyzed {
		t.Error("fresh session should not be analyzed")
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
}

func TestUpsertSessionIdempotentWhenUnchanged(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.UpsertSession(testSession("s1")); err != nil {
		t.Fatal(err)
	}

	changed, err := db.UpsertSession(testSession("s1"))
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("identical mtime and size should be a no-op")
	}
}

func TestUpsertSessionDetectsGrowth(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.UpsertSession(testSession("s1")); err != nil {
		t.Fatal(err)
	}

	grown := testSession("s1")
	grown.FileSize = 4096
	grown.MessageCount = 20
	grown.Fingerprint = "fp-s1-v2"

	changed, err := db.UpsertSession(grown)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("size change should trigger an update")
	}

	rec, err := db.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.MessageCount != 20 || rec.Fingerprint != "fp-s1-v2" {
		t.Errorf("update not applied: %+v", rec)
	}
}

func TestUpsertSessionResetsAnalyzedOnContentChange(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.UpsertSession(testSession("s1")); err != nil {
		t.Fatal(err)
	}
	entry := &AnalysisEntry{
		SessionID:   "s1",
		Title:       "t",
		Summary:     "s",
		Fingerprint: "fp-s1",
		AnalyzedAt:  time.Now().UTC(),
	}
	if err := db.PutAnalysis(entry); err != nil {
		t.Fatal(err)
	}

	rec, err := db.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Analyzed {
		t.Fatal("analysis write should set the analyzed flag")
	}

	// Same fingerprint, touched mtime: flag survives.
	touched := testSession("s1")
	touched.FileMtime = 1700000100
	if _, err := db.UpsertSession(touched); err != nil {
		t.Fatal(err)
	}
	rec, err = db.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Analyzed {
		t.Error("unchanged content must keep the analyzed flag")
	}

	// Changed content: flag resets.
	grown := testSession("s1")
	grown.FileSize = 8192
	grown.Fingerprint = "fp-s1-v2"
	if _, err := db.UpsertSession(grown); err != nil {
		t.Fatal(err)
	}
	rec, err = db.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Analyzed {
		t.Error("changed fingerprint must reset the analyzed flag")
	}
}

func TestUpsertSessionRequiresID(t *testing.T) {
	db := openTestDB(t)

	_, err := db.UpsertSession(&SessionRecord{FilePath: "/x.jsonl"})
	if !skberrors.HasCode(err, skberrors.InvalidQuery) {
		t.Errorf("expected INVALID_QUERY, got %v", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetSession("missing")
	if !skberrors.HasCode(err, skberrors.SessionNotFound) {
		t.Errorf("expected SESSION_NOT_FOUND, got %v", err)
	}

	rec, err := db.GetSessionByFilePath("/nope.jsonl")
	if err != nil || rec != nil {
		t.Errorf("missing file path should be (nil, nil), got (%v, %v)", rec, err)
	}
}

func TestSessionExists(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.UpsertSession(testSession("s1")); err != nil {
		t.Fatal(err)
	}

	exists, project, err := db.SessionExists("s1")
	if err != nil || !exists || project != "/home/u/work/api" {
		t.Errorf("got (%v, %q, %v)", exists, project, err)
	}

	exists, _, err = db.SessionExists("nope")
	if err != nil || exists {
		t.Errorf("missing id reported as existing")
	}
}
