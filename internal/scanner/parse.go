// Package scanner discovers session transcripts on disk and registers
// them in the catalog.
package scanner

import (
	"bufio"
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

const (
	headLineLimit   = 10
	nameLineLimit   = 30
	nameRuneLimit   = 120
	maxLineBytes    = 1024 * 1024
	initialLineSize = 64 * 1024
)

var xmlTagRe = regexp.MustCompile(`<[^>]+>`)

// Transcript is the metadata parsed from one session transcript file.
type Transcript struct {
	SessionID     string
	ProjectPath   string
	Name          string
	MessageCount  int
	LastMessageAt time.Time
}

type transcriptLine struct {
	SessionID string `json:"sessionId"`
	CWD       string `json:"cwd"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// ParseTranscript extracts session metadata from JSONL transcript
// content. Some files start with snapshot or system records, so the
// session id is searched across the head of the file rather than just
// the first line. Returns nil when no session id is found.
func ParseTranscript(content []byte) *Transcript {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, initialLineSize), maxLineBytes)

	t := &Transcript{}
	lineNo := 0

	for scanner.Scan() {
		raw := scanner.Bytes()
		lineNo++
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		var line transcriptLine
		if err := json.Unmarshal(raw, &line); err != nil {
			continue
		}

		if t.SessionID == "" && line.SessionID != "" && lineNo <= headLineLimit {
			t.SessionID = line.SessionID
		}
		if t.ProjectPath == "" && line.CWD != "" {
			t.ProjectPath = line.CWD
		}

		isMessage := line.Type == "user" || line.Type == "assistant" ||
			line.Message.Role == "user" || line.Message.Role == "assistant"
		if !isMessage {
			continue
		}
		t.MessageCount++

		if ts, err := time.Parse(time.RFC3339, line.Timestamp); err == nil {
			if ts.After(t.LastMessageAt) {
				t.LastMessageAt = ts
			}
		}

		if t.Name == "" && lineNo <= nameLineLimit &&
			(line.Type == "user" || line.Message.Role == "user") {
			t.Name = sessionName(line.Message.Content)
		}
	}

	if t.SessionID == "" && t.MessageCount == 0 {
		return nil
	}
	return t
}

// sessionName derives a display name from the first user message:
// markup stripped, whitespace collapsed, truncated.
func sessionName(raw json.RawMessage) string {
	text := flattenContent(raw)
	text = xmlTagRe.ReplaceAllString(text, "")
	text = strings.Join(strings.Fields(text), " ")
	return truncateRunes(text, nameRuneLimit)
}

func flattenContent(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
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
	return sb.String()
}

func truncateRunes(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-2]) + ".."
}
