// Package export writes catalog snapshots to JSON or YAML, optionally
// zstd-compressed, for backup and external tooling.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"skb/internal/catalog"
	skberrors "skb/internal/errors"
	"skb/internal/logging"
	"skb/internal/query"
	"skb/internal/storage"
)

// Format selects the serialization format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Options controls one export.
type Options struct {
	Format      Format
	Compress    bool   // zstd-compress the output stream
	ProjectPath string // optional project scope
	WithChains  bool   // include continuation chains
}

// Document is the exported snapshot.
type Document struct {
	ExportedAt   time.Time             `json:"exportedAt" yaml:"exportedAt"`
	SessionCount int                   `json:"sessionCount" yaml:"sessionCount"`
	Sessions     []catalog.SessionView `json:"sessions" yaml:"sessions"`
	Chains       [][]string            `json:"chains,omitempty" yaml:"chains,omitempty"`
}

// exportPageSize bounds one list page during collection.
const exportPageSize = 500

// Exporter serializes the catalog through the service facade, so the
// exported analysis fields honor the same validity gate as reads.
type Exporter struct {
	svc    *catalog.Service
	db     *storage.DB
	logger *logging.Logger
}

// New creates an exporter.
func New(svc *catalog.Service, db *storage.DB, logger *logging.Logger) *Exporter {
	return &Exporter{svc: svc, db: db, logger: logger}
}

// Export writes a snapshot to w.
func (e *Exporter) Export(w io.Writer, opts Options) error {
	doc, err := e.collect(opts)
	if err != nil {
		return err
	}

	out := w
	var zw *zstd.Encoder
	if opts.Compress {
		zw, err = zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("failed to create compressor: %w", err)
		}
		out = zw
	}

	switch opts.Format {
	case FormatJSON, "":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(out)
		err = enc.Encode(doc)
		if cerr := enc.Close(); err == nil {
			err = cerr
		}
	default:
		return skberrors.New(skberrors.InvalidQuery, fmt.Sprintf("unsupported export format %q", opts.Format), nil)
	}
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}

	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to finish compression: %w", err)
		}
	}

	e.logger.Info("Exported catalog snapshot", map[string]interface{}{
		"sessions": doc.SessionCount,
		"format":   string(opts.Format),
		"zstd":     opts.Compress,
	})
	return nil
}

// collect pages through the catalog and assembles the document.
func (e *Exporter) collect(opts Options) (*Document, error) {
	doc := &Document{ExportedAt: time.Now().UTC()}

	var filters []query.Filter
	if opts.ProjectPath != "" {
		filters = append(filters, query.ByProject{ProjectPath: opts.ProjectPath})
	}

	for offset := 0; ; offset += exportPageSize {
		page, err := e.svc.ListSessions(query.Options{
			IncludeAnalysis: true,
			Sort:            query.SortCreated,
			Ascending:       true,
			Limit:           exportPageSize,
			Offset:          offset,
			Filters:         filters,
		})
		if err != nil {
			return nil, err
		}
		doc.Sessions = append(doc.Sessions, page...)
		if len(page) < exportPageSize {
			break
		}
	}
	doc.SessionCount = len(doc.Sessions)

	if opts.WithChains {
		chains, err := e.collectChains(doc.Sessions)
		if err != nil {
			return nil, err
		}
		doc.Chains = chains
	}

	return doc, nil
}

// collectChains lists each multi-session chain once, as the ordered
// session ids from root to head.
func (e *Exporter) collectChains(sessions []catalog.SessionView) ([][]string, error) {
	seen := make(map[string]bool)
	var chains [][]string

	for _, s := range sessions {
		if seen[s.ID] {
			continue
		}
		nodes, err := e.db.GetChain(s.ID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(nodes))
		for i, n := range nodes {
			ids[i] = n.Session.ID
			seen[n.Session.ID] = true
		}
		if len(ids) > 1 {
			chains = append(chains, ids)
		}
	}
	return chains, nil
}
