// Package watcher polls transcript discovery roots and triggers
// rescans when session files change.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"skb/internal/identity"
	"skb/internal/logging"
	"skb/internal/paths"
)

// ChangeHandler is called with the batch of changed transcript paths
// once changes settle.
type ChangeHandler func(changed []string)

// Config contains watcher configuration.
type Config struct {
	Enabled      bool
	PollInterval time.Duration
	Debounce     time.Duration
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		PollInterval: 2 * time.Second,
		Debounce:     5 * time.Second,
	}
}

// Watcher polls the discovery roots for transcript changes.
// Polling instead of inotify keeps behavior identical across
// platforms and network filesystems. The snapshot keys each file to
// its identity fingerprint over path, size and mtime.
type Watcher struct {
	config    Config
	logger    *logging.Logger
	resolver  *paths.Resolver
	debouncer *Debouncer

	mu       sync.Mutex
	snapshot map[string]string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher over the resolver's discovery roots.
func New(config Config, resolver *paths.Resolver, handler ChangeHandler, logger *logging.Logger) *Watcher {
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.Debounce <= 0 {
		config.Debounce = 5 * time.Second
	}
	return &Watcher{
		config:    config,
		logger:    logger,
		resolver:  resolver,
		debouncer: NewDebouncer(config.Debounce, handler),
		snapshot:  make(map[string]string),
	}
}

// Start begins polling. The first pass seeds the snapshot without
// emitting events, so a restart does not rescan everything twice.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.config.Enabled {
		w.logger.Info("Transcript watcher is disabled", nil)
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.poll(true)

	w.logger.Info("Starting transcript watcher", map[string]interface{}{
		"pollIntervalMs": w.config.PollInterval.Milliseconds(),
		"debounceMs":     w.config.Debounce.Milliseconds(),
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.poll(false)
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop halts polling and drops any pending batch.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.debouncer.Cancel()
	w.logger.Info("Transcript watcher stopped", nil)
}

// poll compares the current transcript files against the snapshot and
// feeds changed paths into the debouncer.
func (w *Watcher) poll(seed bool) {
	current := make(map[string]string)

	for _, root := range w.resolver.DiscoveryRoots() {
		projectDirs, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, dir := range projectDirs {
			if !dir.IsDir() {
				continue
			}
			projectDir := filepath.Join(root, dir.Name())
			if w.resolver.ShouldExclude(projectDir) {
				continue
			}
			files, err := os.ReadDir(projectDir)
			if err != nil {
				continue
			}
			for _, f := range files {
				if f.IsDir() || !strings.HasSuffix(f.Name(), ".jsonl") {
					continue
				}
				path := filepath.Join(projectDir, f.Name())
				info, err := f.Info()
				if err != nil {
					continue
				}
				current[path] = identity.FileFingerprint(path, info.Size(), info.ModTime().Unix())
			}
		}
	}

	w.mu.Lock()
	previous := w.snapshot
	w.snapshot = current
	w.mu.Unlock()

	if seed {
		return
	}

	for path, fp := range current {
		prev, known := previous[path]
		if !known || prev != fp {
			w.debouncer.Add(path)
		}
	}
}

// Flush forces any pending change batch through immediately.
func (w *Watcher) Flush() {
	w.debouncer.Flush()
}

// Stats returns watcher statistics for status output.
func (w *Watcher) Stats() map[string]interface{} {
	w.mu.Lock()
	tracked := len(w.snapshot)
	w.mu.Unlock()

	return map[string]interface{}{
		"enabled":        w.config.Enabled,
		"trackedFiles":   tracked,
		"pollIntervalMs": w.config.PollInterval.Milliseconds(),
		"pendingChanges": w.debouncer.PendingCount(),
	}
}
