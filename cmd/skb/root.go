package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"skb/internal/analysis"
	"skb/internal/catalog"
	"skb/internal/config"
	"skb/internal/linker"
	"skb/internal/logging"
	"skb/internal/paths"
	"skb/internal/scanner"
	"skb/internal/storage"
	"skb/internal/version"
)

var (
	dataDirFlag   string
	logLevelFlag  string
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "skb",
	Short: "skb - Session Knowledge Base",
	Long: `skb is a local catalog of coding-agent session transcripts. It
indexes transcript metadata into an embedded SQLite store, offers
ranked full-text search, links continuation chains, and manages
cached session analyses under a daily quota.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("skb version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "",
		"Data directory (default: ~/.skb, or SKB_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "",
		"Log format: human, json")
}

// env bundles the wired components every command needs.
type env struct {
	cfg        *config.Config
	dataDir    string
	logger     *logging.Logger
	db         *storage.DB
	resolver   *paths.Resolver
	linker     *linker.Linker
	controller *analysis.Controller
	svc        *catalog.Service
	scanner    *scanner.Scanner
}

func (e *env) close() {
	e.controller.Wait()
	_ = e.db.Close()
}

// mustOpenEnv loads config, opens the store and wires the services.
// Failures here are fatal for any command.
func mustOpenEnv() *env {
	dataDir := dataDirFlag
	if dataDir == "" {
		var err error
		dataDir, err = config.DataDir()
		if err != nil {
			fatalf("failed to resolve data directory: %v", err)
		}
	}

	cfg, err := config.LoadConfig(dataDir)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid config: %v", err)
	}

	logger := newLogger(cfg)

	db, err := storage.Open(dataDir, logger)
	if err != nil {
		fatalf("failed to open catalog: %v", err)
	}

	resolver, err := paths.NewResolver(cfg.DiscoveryRoot, cfg.AdditionalPaths, cfg.ExcludePaths)
	if err != nil {
		fatalf("failed to resolve discovery roots: %v", err)
	}

	lk := linker.New(db, logger)
	controller := analysis.NewController(db, newAnalyzer(cfg), analysis.Options{
		DailyLimit:    cfg.DailyAnalysisLimit,
		MaxConcurrent: cfg.MaxConcurrentAnalyses,
		Timeout:       cfg.AnalysisTimeout(),
		CacheDays:     cfg.CacheDurationDays,
	}, logger)

	sc := scanner.New(db, resolver, lk, logger)
	if cfg.AutoAnalyze {
		sc.AutoAnalyze = controller
	}

	return &env{
		cfg:        cfg,
		dataDir:    dataDir,
		logger:     logger,
		db:         db,
		resolver:   resolver,
		linker:     lk,
		controller: controller,
		svc:        catalog.NewService(db, controller, cfg.CacheDurationDays, logger),
		scanner:    sc,
	}
}

func newLogger(cfg *config.Config) *logging.Logger {
	format := cfg.Logging.Format
	if logFormatFlag != "" {
		format = logFormatFlag
	}
	level := cfg.Logging.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	return logging.NewLogger(logging.Config{
		Format: logging.Format(format),
		Level:  logging.ParseLevel(level),
	})
}

func newAnalyzer(cfg *config.Config) analysis.Analyzer {
	if cfg.Analyzer.Command != "" {
		return &analysis.CommandAnalyzer{
			Command: cfg.Analyzer.Command,
			Args:    cfg.Analyzer.Args,
		}
	}
	return analysis.HeuristicAnalyzer{}
}

// printJSON writes a value as indented JSON to stdout.
func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatalf("failed to encode output: %v", err)
	}
	fmt.Println(string(data))
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
