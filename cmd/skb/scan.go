package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"skb/internal/watcher"
)

var scanWatch bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover and index session transcripts",
	Long: `Walk the discovery roots, register new and changed transcripts,
and link continuation chains.

With --watch, keep running and rescan whenever transcript files change.

Examples:
  skb scan
  skb scan --watch`,
	Run: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanWatch, "watch", false, "Keep watching for transcript changes")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) {
	e := mustOpenEnv()
	defer e.close()

	ctx := context.Background()

	report, err := e.scanner.Scan(ctx)
	if err != nil {
		fatalf("scan failed: %v", err)
	}
	printJSON(report)

	if !scanWatch {
		return
	}

	w := watcher.New(watcher.Config{
		Enabled:      e.cfg.Watcher.Enabled,
		PollInterval: time.Duration(e.cfg.Watcher.PollIntervalMs) * time.Millisecond,
		Debounce:     time.Duration(e.cfg.Watcher.DebounceMs) * time.Millisecond,
	}, e.resolver, func(changed []string) {
		e.logger.Info("Transcript changes detected, rescanning", map[string]interface{}{
			"changed": len(changed),
		})
		if _, err := e.scanner.Scan(ctx); err != nil {
			e.logger.Error("Rescan failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}, e.logger)

	if err := w.Start(ctx); err != nil {
		fatalf("failed to start watcher: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	w.Stop()
}
