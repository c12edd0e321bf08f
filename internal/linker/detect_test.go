package linker

import (
	"testing"
)

func TestDetectParentReferenceField(t *testing.T) {
	content := []byte(`{"sessionId":"child-1","cwd":"/p","parentSessionId":"parent-1"}
{"type":"user","message":{"role":"user","content":"hello"}}`)

	parent, ok := DetectParentReference(content)
	if !ok {
		t.Fatal("expected a parent reference")
	}
	if parent != "parent-1" {
		t.Errorf("parent = %q, want parent-1", parent)
	}
}

func TestDetectParentReferenceContinuedFrom(t *testing.T) {
	content := []byte(`{"sessionId":"child-2","continuedFrom":"parent-2"}`)

	parent, ok := DetectParentReference(content)
	if !ok || parent != "parent-2" {
		t.Errorf("got (%q, %v), want (parent-2, true)", parent, ok)
	}
}

func TestDetectParentReferenceCompactionPreamble(t *testing.T) {
	content := []byte(`{"sessionId":"child-3","type":"user","message":{"role":"user","content":"This session is being continued from a previous conversation 1a2b3c4d-1111-2222-3333-444455556666 that ran out of context."}}`)

	parent, ok := DetectParentReference(content)
	if !ok {
		t.Fatal("expected a parent reference from preamble")
	}
	if parent != "1a2b3c4d-1111-2222-3333-444455556666" {
		t.Errorf("parent = %q", parent)
	}
}

func TestDetectParentReferenceStructuredContent(t *testing.T) {
	content := []byte(`{"sessionId":"child-4","type":"user","message":{"role":"user","content":[{"type":"text","text":"This session is being continued from a previous session 99999999-aaaa-bbbb-cccc-dddddddddddd."}]}}`)

	parent, ok := DetectParentReference(content)
	if !ok || parent != "99999999-aaaa-bbbb-cccc-dddddddddddd" {
		t.Errorf("got (%q, %v)", parent, ok)
	}
}

func TestDetectParentReferenceNone(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"plain session", `{"sessionId":"s1","cwd":"/p"}
{"type":"user","message":{"role":"user","content":"fix the bug"}}`},
		{"self reference", `{"sessionId":"s1","parentSessionId":"s1"}`},
		{"empty", ""},
		{"not json", "garbage\nmore garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if parent, ok := DetectParentReference([]byte(tt.content)); ok {
				t.Errorf("unexpected parent %q", parent)
			}
		})
	}
}

func TestDetectParentReferenceIgnoresDeepLines(t *testing.T) {
	// A reference buried past the head window is not a continuation
	// marker, just conversation text.
	var content []byte
	for i := 0; i < headLineLimit+5; i++ {
		content = append(content, []byte(`{"type":"assistant","message":{"role":"assistant","content":"working"}}`+"\n")...)
	}
	content = append(content, []byte(`{"parentSessionId":"parent-late"}`)...)

	if parent, ok := DetectParentReference(content); ok {
		t.Errorf("reference past head window should be ignored, got %q", parent)
	}
}
