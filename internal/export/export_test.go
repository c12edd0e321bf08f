package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"skb/internal/catalog"
	"skb/internal/logging"
	"skb/internal/storage"
)

func newTestExporter(t *testing.T) (*Exporter, *storage.DB) {
	t.Helper()
	db, err := storage.Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := catalog.NewService(db, nil, 30, logging.Discard())
	return New(svc, db, logging.Discard()), db
}

func seedSessions(t *testing.T, db *storage.DB, n int) {
	t.Helper()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("s%d", i)
		rec := &storage.SessionRecord{
			ID:            id,
			ProjectPath:   "/proj",
			FilePath:      "/transcripts/" + id + ".jsonl",
			FileMtime:     base.Unix(),
			FileSize:      1024,
			Name:          "session " + id,
			MessageCount:  3,
			LastMessageAt: base.Add(time.Duration(i) * time.Minute),
			Fingerprint:   "fp-" + id,
		}
		if _, err := db.UpsertSession(rec); err != nil {
			t.Fatal(err)
		}
	}
}

func TestExportJSON(t *testing.T) {
	e, db := newTestExporter(t)
	seedSessions(t, db, 3)

	var buf bytes.Buffer
	if err := e.Export(&buf, Options{Format: FormatJSON}); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if doc.SessionCount != 3 || len(doc.Sessions) != 3 {
		t.Errorf("doc = %d sessions, want 3", doc.SessionCount)
	}
}

func TestExportYAML(t *testing.T) {
	e, db := newTestExporter(t)
	seedSessions(t, db, 2)

	var buf bytes.Buffer
	if err := e.Export(&buf, Options{Format: FormatYAML}); err != nil {
		t.Fatal(err)
	}

	var doc Document
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if doc.SessionCount != 2 {
		t.Errorf("sessionCount = %d, want 2", doc.SessionCount)
	}
}

func TestExportCompressed(t *testing.T) {
	e, db := newTestExporter(t)
	seedSessions(t, db, 2)

	var buf bytes.Buffer
	if err := e.Export(&buf, Options{Format: FormatJSON, Compress: true}); err != nil {
		t.Fatal(err)
	}

	zr, err := zstd.NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("output is not a zstd stream: %v", err)
	}
	defer zr.Close()

	var doc Document
	if err := json.NewDecoder(zr).Decode(&doc); err != nil {
		t.Fatalf("decompressed output is not valid JSON: %v", err)
	}
	if doc.SessionCount != 2 {
		t.Errorf("sessionCount = %d, want 2", doc.SessionCount)
	}
}

func TestExportWithChains(t *testing.T) {
	e, db := newTestExporter(t)
	seedSessions(t, db, 3)
	if err := db.LinkContinuation("s0", "s1"); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := e.Export(&buf, Options{Format: FormatJSON, WithChains: true}); err != nil {
		t.Fatal(err)
	}

	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Chains) != 1 {
		t.Fatalf("chains = %d, want 1", len(doc.Chains))
	}
	if len(doc.Chains[0]) != 2 || doc.Chains[0][0] != "s0" {
		t.Errorf("chain = %v, want [s0 s1]", doc.Chains[0])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	e, _ := newTestExporter(t)

	var buf bytes.Buffer
	if err := e.Export(&buf, Options{Format: "xml"}); err == nil {
		t.Error("unknown format should error")
	}
}

func TestExportScopedToProject(t *testing.T) {
	e, db := newTestExporter(t)
	seedSessions(t, db, 2)
	other := &storage.SessionRecord{
		ID:          "other",
		ProjectPath: "/other",
		FilePath:    "/transcripts/other.jsonl",
		FileMtime:   time.Now().Unix(),
		FileSize:    10,
	}
	if _, err := db.UpsertSession(other); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := e.Export(&buf, Options{Format: FormatJSON, ProjectPath: "/proj"}); err != nil {
		t.Fatal(err)
	}

	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.SessionCount != 2 {
		t.Errorf("sessionCount = %d, want only the scoped project", doc.SessionCount)
	}
}
