package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"skb/internal/logging"
	"skb/internal/paths"
)

func TestDebouncerBatchesPaths(t *testing.T) {
	var mu sync.Mutex
	var got [][]string

	d := NewDebouncer(20*time.Millisecond, func(batch []string) {
		mu.Lock()
		got = append(got, batch)
		mu.Unlock()
	})

	d.Add("/a.jsonl")
	d.Add("/b.jsonl")
	d.Add("/a.jsonl")

	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("emissions = %d, want 1", len(got))
	}
	if len(got[0]) != 2 {
		t.Errorf("batch size = %d, want 2 deduplicated paths", len(got[0]))
	}
}

func TestDebouncerCancel(t *testing.T) {
	fired := false
	d := NewDebouncer(10*time.Millisecond, func([]string) { fired = true })

	d.Add("/a.jsonl")
	d.Cancel()
	time.Sleep(30 * time.Millisecond)

	if fired {
		t.Error("cancelled batch should not emit")
	}
	if d.PendingCount() != 0 {
		t.Error("cancel should clear pending paths")
	}
}

func TestDebouncerFlush(t *testing.T) {
	var mu sync.Mutex
	var got []string
	d := NewDebouncer(time.Hour, func(batch []string) {
		mu.Lock()
		got = batch
		mu.Unlock()
	})

	d.Add("/a.jsonl")
	d.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "/a.jsonl" {
		t.Errorf("flush emitted %v", got)
	}
}

func TestWatcherDetectsChanges(t *testing.T) {
	root := t.TempDir()
	projectDir := filepath.Join(root, "proj-a")
	if err := os.MkdirAll(projectDir, 0755); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(projectDir, "old.jsonl")
	if err := os.WriteFile(existing, []byte(`{"sessionId":"s1"}`), 0644); err != nil {
		t.Fatal(err)
	}

	resolver, err := paths.NewResolver(root, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var changed []string
	w := New(Config{Enabled: true, PollInterval: time.Hour, Debounce: time.Hour},
		resolver,
		func(batch []string) {
			mu.Lock()
			changed = append(changed, batch...)
			mu.Unlock()
		},
		logging.Discard())

	// Seed pass must not report pre-existing files.
	w.poll(true)

	fresh := filepath.Join(projectDir, "new.jsonl")
	if err := os.WriteFile(fresh, []byte(`{"sessionId":"s2"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(existing, []byte(`{"sessionId":"s1","more":true}`), 0644); err != nil {
		t.Fatal(err)
	}

	w.poll(false)
	w.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(changed) != 2 {
		t.Fatalf("changed = %v, want both the new and the grown file", changed)
	}
}

func TestWatcherUnchangedFilesStayQuiet(t *testing.T) {
	root := t.TempDir()
	projectDir := filepath.Join(root, "proj-a")
	if err := os.MkdirAll(projectDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(projectDir, "a.jsonl"), []byte(`{"sessionId":"s1"}`), 0644); err != nil {
		t.Fatal(err)
	}

	resolver, err := paths.NewResolver(root, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	fired := false
	w := New(Config{Enabled: true, PollInterval: time.Hour, Debounce: time.Hour},
		resolver, func([]string) { fired = true }, logging.Discard())

	w.poll(true)
	w.poll(false)
	w.Flush()

	if fired {
		t.Error("no changes should mean no emission")
	}
}
