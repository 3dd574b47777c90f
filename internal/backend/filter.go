package backend

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/agentic-research/depview/api"
)

// FilterOptions selects which descriptors reach the cache.
type FilterOptions struct {
	ShowNonSource bool
	Exclude       []string
}

// Filter drops non-source resources unless they are shown, and any descriptor
// whose location matches an exclude pattern. The input slice is not modified.
func Filter(descs []api.NodeDescriptor, opts FilterOptions) []api.NodeDescriptor {
	out := make([]api.NodeDescriptor, 0, len(descs))
	for _, d := range descs {
		if !opts.ShowNonSource && d.Kind.NonSource() {
			continue
		}
		if Excluded(opts.Exclude, api.PathFromURI(d.URI)) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Excluded reports whether p matches any pattern. Absolute patterns match
// the whole path. Relative patterns, with or without a leading "**/", match
// any trailing run of segments, so "**/.git" hides every .git directory.
func Excluded(patterns []string, p string) bool {
	if p == "" {
		return false
	}
	p = filepath.ToSlash(p)
	for _, pat := range patterns {
		if matchExclude(pat, p) {
			return true
		}
	}
	return false
}

func matchExclude(pattern, p string) bool {
	if strings.HasPrefix(pattern, "/") {
		ok, _ := path.Match(pattern, p)
		return ok
	}
	pattern = strings.TrimPrefix(pattern, "**/")
	segs := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i := range segs {
		if ok, _ := path.Match(pattern, strings.Join(segs[i:], "/")); ok {
			return true
		}
	}
	return false
}
