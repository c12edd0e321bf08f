package query

import (
	"strings"

	skberrors "skb/internal/errors"
	"skb/internal/storage"
)

// SortColumn names a sortable column. Only values from the allow-list
// below ever reach the statement text; caller strings never do.
type SortColumn string

const (
	SortLastActive   SortColumn = "last_message_at"
	SortFileModified SortColumn = "file_mtime"
	SortMessageCount SortColumn = "message_count"
	SortProject      SortColumn = "project_path"
	SortCreated      SortColumn = "created_at"
	SortName         SortColumn = "name"
)

// sortColumns is the identifier allow-list for ORDER BY.
var sortColumns = map[SortColumn]string{
	SortLastActive:   "s.last_message_at",
	SortFileModified: "s.file_mtime",
	SortMessageCount: "s.message_count",
	SortProject:      "s.project_path",
	SortCreated:      "s.created_at",
	SortName:         "s.name",
}

// Options controls which optional field blocks and joins appear in the
// statement. Joins are included only when the fields they support are
// requested.
type Options struct {
	IncludeContinuationCount bool
	IncludeAnalysis          bool
	Sort                     SortColumn // default: most-recently-active first
	Ascending                bool
	Limit                    int
	Offset                   int
	Filters                  []Filter
}

// Statement is a single parameterized read statement. Optional result
// columns appear in a fixed order after the session columns:
// continuation_count (when requested), then title, summary, analyzed_at
// (when requested).
type Statement struct {
	SQL  string
	Args []interface{}
}

const sessionColumns = `s.id, s.project_path, s.file_path, s.file_mtime, s.file_size,
	s.name, s.message_count, s.last_message_at, s.fingerprint, s.analyzed,
	s.created_at, s.updated_at`

// Build assembles the list statement for the given options. All
// caller-supplied values are bound as parameters.
func Build(opts Options) (*Statement, error) {
	for _, f := range opts.Filters {
		if err := f.validate(); err != nil {
			return nil, err
		}
	}

	sort := opts.Sort
	if sort == "" {
		sort = SortLastActive
	}
	orderExpr, ok := sortColumns[sort]
	if !ok {
		return nil, skberrors.New(skberrors.InvalidQuery, "unknown sort column", nil).
			WithDetails(map[string]string{"column": string(sort)})
	}

	var sb strings.Builder
	var args []interface{}

	sb.WriteString("SELECT ")
	sb.WriteString(sessionColumns)

	if opts.IncludeContinuationCount {
		sb.WriteString(`,
	COALESCE(cc.continuation_count, 0) AS continuation_count`)
	}
	if opts.IncludeAnalysis {
		sb.WriteString(`,
	COALESCE(a.title, '') AS title, COALESCE(a.summary, '') AS summary, COALESCE(a.analyzed_at, '') AS analyzed_at`)
	}

	sb.WriteString("\nFROM sessions s")

	if opts.IncludeContinuationCount {
		sb.WriteString(`
LEFT JOIN (
	SELECT parent_session_id, COUNT(*) AS continuation_count
	FROM continuation_edges
	GROUP BY parent_session_id
) cc ON cc.parent_session_id = s.id`)
	}
	if opts.IncludeAnalysis {
		sb.WriteString(`
LEFT JOIN analysis_cache a ON a.session_id = s.id`)
	}

	var predicates []string
	for _, f := range opts.Filters {
		switch v := f.(type) {
		case ByProject:
			predicates = append(predicates, "s.project_path = ?")
			args = append(args, v.ProjectPath)
		case ByDateRange:
			if !v.From.IsZero() {
				predicates = append(predicates, "s.last_message_at >= ?")
				args = append(args, v.From.UTC().Format("2006-01-02T15:04:05Z07:00"))
			}
			if !v.To.IsZero() {
				predicates = append(predicates, "s.last_message_at <= ?")
				args = append(args, v.To.UTC().Format("2006-01-02T15:04:05Z07:00"))
			}
		case ByAnalyzed:
			if v.Analyzed {
				predicates = append(predicates, "s.analyzed = 1")
			} else {
				predicates = append(predicates, "s.analyzed = 0")
			}
		case BySearchTerm:
			sanitized := storage.SanitizeQuery(v.Term)
			if storage.IsMatchNothing(sanitized) {
				predicates = append(predicates, "1 = 0")
			} else {
				predicates = append(predicates,
					"s.id IN (SELECT session_id FROM sessions_fts WHERE sessions_fts MATCH ?)")
				args = append(args, storage.MatchExpression(sanitized))
			}
		default:
			return nil, skberrors.New(skberrors.InvalidQuery, "unsupported filter variant", nil)
		}
	}

	if len(predicates) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(predicates, " AND "))
	}

	direction := "DESC"
	if opts.Ascending {
		direction = "ASC"
	}
	sb.WriteString("\nORDER BY ")
	sb.WriteString(orderExpr)
	sb.WriteString(" ")
	sb.WriteString(direction)

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		return nil, skberrors.New(skberrors.InvalidQuery, "offset must not be negative", nil)
	}
	sb.WriteString("\nLIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	return &Statement{SQL: sb.String(), Args: args}, nil
}
