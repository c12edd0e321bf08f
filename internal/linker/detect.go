// Package linker detects and records continuation relationships between
// sessions that represent one logical conversation split across files.
package linker

import (
	"bufio"
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// headLineLimit bounds how far into a transcript detection looks.
const headLineLimit = 25

// maxHeadLineBytes bounds the scanner buffer for long transcript lines.
const maxHeadLineBytes = 1024 * 1024

var continuedSessionIDRe = regexp.MustCompile(
	`continued from a previous (?:conversation|session)[^.]*?([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})`,
)

// headRecord is the subset of transcript fields detection cares about.
type headRecord struct {
	SessionID       string `json:"sessionId"`
	ParentSessionID string `json:"parentSessionId"`
	ContinuedFrom   string `json:"continuedFrom"`
	Type            string `json:"type"`
	Message         struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// DetectParentReference inspects transcript content for an explicit
// back-reference to a prior session. It is a pure function over the
// head of the content: no I/O, no store access. Recognized forms are a
// parentSessionId/continuedFrom field on an early record, or a
// compaction preamble naming the prior session id.
func DetectParentReference(content []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), maxHeadLineBytes)

	ownID := ""
	for i := 0; i < headLineLimit && scanner.Scan(); i++ {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var rec headRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}

		if ownID == "" && rec.SessionID != "" {
			ownID = rec.SessionID
		}

		parent := rec.ParentSessionID
		if parent == "" {
			parent = rec.ContinuedFrom
		}
		if parent != "" && parent != ownID {
			return parent, true
		}

		if rec.Message.Role == "user" || rec.Type == "user" {
			if id, ok := parentFromText(rec.Message.Content); ok && id != ownID {
				return id, true
			}
		}
	}

	return "", false
}

// parentFromText extracts a session id from a compaction preamble such
// as "This session is being continued from a previous conversation
// <uuid>". Content may be a plain string or a structured block list.
func parentFromText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		// Structured content: concatenate text blocks.
		var blocks []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return "", false
		}
		var sb strings.Builder
		for _, b := range blocks {
			if b.Type == "" || b.Type == "text" {
				sb.WriteString(b.Text)
				sb.WriteString("\n")
			}
		}
		text = sb.String()
	}

	m := continuedSessionIDRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}
