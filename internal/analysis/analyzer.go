package analysis

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"unicode/utf8"

	skberrors "skb/internal/errors"
)

// Result is the output of one analysis run.
type Result struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Analyzer produces a title and summary for transcript content. The
// context carries the per-run timeout.
type Analyzer interface {
	Analyze(ctx context.Context, content []byte) (*Result, error)
}

// CommandAnalyzer shells out to an external analysis command, writing
// the transcript to stdin and reading a JSON Result from stdout.
type CommandAnalyzer struct {
	Command string
	Args    []string
}

func (a *CommandAnalyzer) Analyze(ctx context.Context, content []byte) (*Result, error) {
	cmd := exec.CommandContext(ctx, a.Command, a.Args...)
	cmd.Stdin = bytes.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, skberrors.New(skberrors.AnalysisTimeout, "analyzer command timed out", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "analyzer command failed"
		}
		return nil, skberrors.New(skberrors.AnalysisFailed, msg, err)
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, skberrors.New(skberrors.AnalysisFailed, "analyzer produced invalid output", err)
	}
	if result.Title == "" && result.Summary == "" {
		return nil, skberrors.New(skberrors.AnalysisFailed, "analyzer produced empty output", nil)
	}
	return &result, nil
}

const heuristicTitleLimit = 80

// HeuristicAnalyzer derives a title and summary from the transcript
// itself without any external process. Used when no analyzer command is
// configured.
type HeuristicAnalyzer struct{}

func (HeuristicAnalyzer) Analyze(ctx context.Context, content []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var firstUser, lastUser string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var rec struct {
			Type    string `json:"type"`
			Message struct {
				Role    string          `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.Type != "user" && rec.Message.Role != "user" {
			continue
		}
		text := flattenContent(rec.Message.Content)
		if text == "" {
			continue
		}
		if firstUser == "" {
			firstUser = text
		}
		lastUser = text
	}

	if firstUser == "" {
		return nil, skberrors.New(skberrors.AnalysisFailed, "transcript contains no user messages", nil)
	}

	return &Result{
		Title:   truncate(firstUser, heuristicTitleLimit),
		Summary: truncate(lastUser, 400),
	}, nil
}

func flattenContent(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "" || b.Type == "text" {
			sb.WriteString(b.Text)
			sb.WriteString(" ")
		}
	}
	return strings.TrimSpace(sb.String())
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
