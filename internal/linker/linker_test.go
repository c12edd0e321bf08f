package linker

import (
	"fmt"
	"testing"
	"time"

	"skb/internal/logging"
	"skb/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedSession(t *testing.T, db *storage.DB, id, project string) *storage.SessionRecord {
	t.Helper()
	rec := &storage.SessionRecord{
		ID:            id,
		ProjectPath:   project,
		FilePath:      fmt.Sprintf("/transcripts/%s/%s.jsonl", project, id),
		FileMtime:     time.Now().Unix(),
		FileSize:      128,
		Name:          "test session " + id,
		MessageCount:  3,
		LastMessageAt: time.Now(),
	}
	if _, err := db.UpsertSession(rec); err != nil {
		t.Fatalf("failed to seed session %s: %v", id, err)
	}
	return rec
}

func contentReferencing(parentID string) []byte {
	return []byte(fmt.Sprintf(`{"sessionId":"child","parentSessionId":"%s"}`, parentID))
}

func TestLinkCreatesActiveEdge(t *testing.T) {
	db := openTestDB(t)
	l := New(db, logging.Discard())

	seedSession(t, db, "parent", "proj-a")
	child := seedSession(t, db, "child", "proj-a")

	result, err := l.Link(child, contentReferencing("parent"))
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if result != Linked {
		t.Fatalf("result = %q, want linked", result)
	}

	chain, err := db.GetChain("child")
	if err != nil {
		t.Fatalf("GetChain failed: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(chain))
	}
	if chain[0].Session.ID != "parent" || chain[1].Session.ID != "child" {
		t.Errorf("chain order wrong: %s -> %s", chain[0].Session.ID, chain[1].Session.ID)
	}
	if !chain[1].IsActive {
		t.Error("newest edge should be active")
	}
}

func TestLinkExactlyOneActiveEdge(t *testing.T) {
	db := openTestDB(t)
	l := New(db, logging.Discard())

	seedSession(t, db, "root", "proj-a")
	c1 := seedSession(t, db, "c1", "proj-a")
	c2 := seedSession(t, db, "c2", "proj-a")

	if _, err := l.Link(c1, contentReferencing("root")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Link(c2, contentReferencing("c1")); err != nil {
		t.Fatal(err)
	}

	active, err := db.ActiveEdgeCount("root")
	if err != nil {
		t.Fatalf("ActiveEdgeCount failed: %v", err)
	}
	if active != 1 {
		t.Errorf("active edges = %d, want exactly 1", active)
	}

	chain, err := db.GetChain("root")
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 3 {
		t.Fatalf("chain length = %d, want 3", len(chain))
	}
	if !chain[2].IsActive {
		t.Error("chain head should be the active edge")
	}
}

func TestLinkChildHasAtMostOneParent(t *testing.T) {
	db := openTestDB(t)
	l := New(db, logging.Discard())

	seedSession(t, db, "p1", "proj-a")
	seedSession(t, db, "p2", "proj-a")
	child := seedSession(t, db, "child", "proj-a")

	if result, err := l.Link(child, contentReferencing("p1")); err != nil || result != Linked {
		t.Fatalf("first link: result=%v err=%v", result, err)
	}

	result, err := l.Link(child, contentReferencing("p2"))
	if err != nil {
		t.Fatalf("second link errored: %v", err)
	}
	if result != AlreadyLinked {
		t.Errorf("result = %q, want already-linked", result)
	}
}

func TestLinkRejectsCrossProject(t *testing.T) {
	db := openTestDB(t)
	l := New(db, logging.Discard())

	seedSession(t, db, "parent-b", "proj-b")
	child := seedSession(t, db, "child", "proj-a")

	result, err := l.Link(child, contentReferencing("parent-b"))
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if result != Rejected {
		t.Errorf("result = %q, want rejected", result)
	}

	// The rejected candidate stays a single-node root chain.
	chain, err := db.GetChain("child")
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 1 || chain[0].Session.ID != "child" {
		t.Errorf("expected single-node chain, got %d nodes", len(chain))
	}
}

func TestLinkDefersForwardReference(t *testing.T) {
	db := openTestDB(t)
	l := New(db, logging.Discard())

	child := seedSession(t, db, "child", "proj-a")

	result, err := l.Link(child, contentReferencing("not-yet-discovered"))
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if result != Deferred {
		t.Fatalf("result = %q, want deferred", result)
	}

	// Parent appears on a later scan; retry resolves the link.
	seedSession(t, db, "not-yet-discovered", "proj-a")
	if err := l.RetryPending(); err != nil {
		t.Fatalf("RetryPending failed: %v", err)
	}

	chain, err := db.GetChain("child")
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2 after retry", len(chain))
	}

	pending, err := db.PendingLinks()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending links should be cleared, got %d", len(pending))
	}
}

func TestLinkNoReference(t *testing.T) {
	db := openTestDB(t)
	l := New(db, logging.Discard())

	child := seedSession(t, db, "solo", "proj-a")

	result, err := l.Link(child, []byte(`{"sessionId":"solo"}`))
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if result != NoReference {
		t.Errorf("result = %q, want no-reference", result)
	}
}
