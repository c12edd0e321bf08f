// Package paths resolves and validates filesystem locations used for
// transcript discovery.
package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// ExpandPath expands a leading ~ and environment variables in a path
// and returns it in absolute, cleaned form.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, path[2:])
		}
	}

	path = os.ExpandEnv(path)

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// ResolveSymlinks resolves symlinks in a path. Paths that do not exist
// yet are returned as-is so discovery can pick them up later.
func ResolveSymlinks(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			return path, nil
		}
		return "", err
	}
	return resolved, nil
}

// Resolver validates discovery locations against an exclude list.
type Resolver struct {
	defaultRoot     string
	additionalRoots []string
	excludes        []glob.Glob
}

// NewResolver builds a resolver from the configured discovery roots and
// exclude patterns. Invalid exclude patterns are skipped rather than
// failing discovery as a whole.
func NewResolver(defaultRoot string, additionalRoots []string, excludePatterns []string) (*Resolver, error) {
	expanded, err := ExpandPath(defaultRoot)
	if err != nil {
		return nil, err
	}

	r := &Resolver{defaultRoot: expanded}

	for _, root := range additionalRoots {
		p, err := ExpandPath(root)
		if err != nil {
			continue
		}
		r.additionalRoots = append(r.additionalRoots, p)
	}

	for _, pattern := range excludePatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			continue
		}
		r.excludes = append(r.excludes, g)
	}

	return r, nil
}

// DiscoveryRoots returns the deduplicated set of existing discovery
// roots, symlinks resolved, excluded roots removed.
func (r *Resolver) DiscoveryRoots() []string {
	candidates := append([]string{r.defaultRoot}, r.additionalRoots...)

	seen := make(map[string]bool)
	var roots []string
	for _, c := range candidates {
		resolved, err := ResolveSymlinks(c)
		if err != nil {
			continue
		}
		info, err := os.Stat(resolved)
		if err != nil || !info.IsDir() {
			continue
		}
		if r.ShouldExclude(resolved) {
			continue
		}
		if seen[resolved] {
			continue
		}
		seen[resolved] = true
		roots = append(roots, resolved)
	}
	return roots
}

// ShouldExclude reports whether a path matches any exclude pattern.
// Patterns are matched against the slash-normalized full path and
// against the base name.
func (r *Resolver) ShouldExclude(path string) bool {
	normalized := filepath.ToSlash(path)
	base := filepath.Base(path)

	for _, g := range r.excludes {
		if g.Match(normalized) || g.Match(base) {
			return true
		}
	}
	return false
}
