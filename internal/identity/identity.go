// Package identity derives stable session identifiers and content
// fingerprints used for cache invalidation.
package identity

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// SessionID returns the stable identifier for a transcript file.
// When the transcript declares its own session id that value wins, so
// the identifier survives file moves within a project. Otherwise the id
// is derived from the file identity (project path + file name), which is
// immutable once assigned.
func SessionID(declaredID, projectPath, filePath string) string {
	if declaredID != "" {
		return declaredID
	}

	canonical := "project:" + NormalizeProjectPath(projectPath) + "|file:" + filepath.Base(filePath)
	sum := blake2b.Sum256([]byte(canonical))
	return "skb-" + hex.EncodeToString(sum[:16])
}

// Fingerprint computes the content fingerprint for a session. The
// fingerprint changes whenever the transcript content changes, which
// invalidates any cached analysis regardless of its age.
func Fingerprint(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// FileFingerprint is a cheap fingerprint over file identity attributes,
// used by the watcher to snapshot files between polls without reading
// content.
func FileFingerprint(path string, size int64, mtimeUnix int64) string {
	canonical := fmt.Sprintf("path:%s|size:%d|mtime:%d", filepath.ToSlash(path), size, mtimeUnix)
	sum := blake2b.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// NormalizeProjectPath converts a project path to a deterministic form:
// forward slashes, no trailing separator, lowercased drive letters left
// alone otherwise case-preserving.
func NormalizeProjectPath(projectPath string) string {
	p := filepath.ToSlash(projectPath)
	p = strings.TrimRight(p, "/")
	if p == "" {
		p = "unknown"
	}
	return p
}
