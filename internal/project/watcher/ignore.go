package watcher

import (
	"path"
	"path/filepath"
	"strings"
)

// DefaultIgnorePatterns skip version control metadata, dependency caches,
// editor droppings and the workspace's own metadata folder. Build output
// folders are not listed: build files may sit next to them.
var DefaultIgnorePatterns = []string{
	".git/",
	".svn/",
	".hg/",
	".metadata/",
	"node_modules/",
	".idea/",
	".vscode/",
	"*.swp",
	"*~",
	".DS_Store",
}

// Ignore is an immutable gitignore-style matcher. Each rule is a glob
// tested against every path segment:
//
//	*.log     any file or directory named *.log
//	target/   any directory named target, with everything below it
//	!keep.log re-include a name an earlier rule ignored
//
// The last matching rule decides.
type Ignore struct {
	rules []rule
}

type rule struct {
	glob    string
	negate  bool
	dirOnly bool
}

// NewIgnore compiles patterns. Blank lines and #-comments are skipped.
func NewIgnore(patterns ...string) *Ignore {
	ig := &Ignore{}
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var r rule
		raw, r.negate = strings.CutPrefix(raw, "!")
		raw, r.dirOnly = strings.CutSuffix(raw, "/")
		r.glob = strings.TrimPrefix(raw, "/")
		if r.glob != "" {
			ig.rules = append(ig.rules, r)
		}
	}
	return ig
}

// Len returns the number of compiled rules.
func (ig *Ignore) Len() int { return len(ig.rules) }

// Match reports whether p is ignored. isDir describes the last segment;
// all earlier segments are directories.
func (ig *Ignore) Match(p string, isDir bool) bool {
	if len(ig.rules) == 0 {
		return false
	}
	segs := strings.Split(strings.Trim(filepath.ToSlash(p), "/"), "/")
	for i, seg := range segs {
		if ig.matchSegment(seg, isDir || i < len(segs)-1) {
			return true
		}
	}
	return false
}

func (ig *Ignore) matchSegment(seg string, dir bool) bool {
	ignored := false
	for _, r := range ig.rules {
		if r.dirOnly && !dir {
			continue
		}
		if ok, _ := path.Match(r.glob, seg); ok {
			ignored = !r.negate
		}
	}
	return ignored
}
