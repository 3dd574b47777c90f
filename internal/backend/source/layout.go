package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"

	"github.com/agentic-research/depview/api"
)

// layout classifies the directories of one project. It memoizes filesystem
// lookups for the duration of a single query.
type layout struct {
	fs      billy.Filesystem
	proj    string
	beneath map[string]bool
}

type entries struct {
	dirs  []string
	files []string
}

func newLayout(fs billy.Filesystem, proj string) *layout {
	return &layout{fs: fs, proj: proj, beneath: make(map[string]bool)}
}

func marker(fs billy.Filesystem, dir string) (string, bool) {
	for _, m := range projectMarkers {
		if info, err := fs.Stat(filepath.Join(dir, m.file)); err == nil && !info.IsDir() {
			return m.tool, true
		}
	}
	return "", false
}

// read lists dir, leaving out nested projects, which show up on their own.
func (l *layout) read(dir string) (entries, error) {
	infos, err := l.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries{}, nil
		}
		return entries{}, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var e entries
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() {
			if _, nested := marker(l.fs, filepath.Join(dir, name)); nested {
				continue
			}
			e.dirs = append(e.dirs, name)
		} else {
			e.files = append(e.files, name)
		}
	}
	sort.Strings(e.dirs)
	sort.Strings(e.files)
	return e, nil
}

func (l *layout) rel(p string) string {
	r, err := filepath.Rel(l.proj, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(r)
}

func (l *layout) hasDirectSources(dir string) bool {
	e, err := l.read(dir)
	if err != nil {
		return false
	}
	for _, f := range e.files {
		if IsSource(f) {
			return true
		}
	}
	return false
}

// hasSourcesBeneath reports whether dir or any non-skipped descendant holds
// source files.
func (l *layout) hasSourcesBeneath(dir string) bool {
	if v, ok := l.beneath[dir]; ok {
		return v
	}
	found := false
	if dir == l.proj || !skipDir(filepath.Base(dir)) {
		e, err := l.read(dir)
		if err == nil {
			for _, f := range e.files {
				if IsSource(f) {
					found = true
					break
				}
			}
			for _, d := range e.dirs {
				if found {
					break
				}
				found = l.hasSourcesBeneath(filepath.Join(dir, d))
			}
		}
	}
	l.beneath[dir] = found
	return found
}

// sourceDirs returns every non-skipped directory under root holding source
// files, sorted by path.
func (l *layout) sourceDirs(root string) ([]string, error) {
	var out []string
	var walk func(dir string) error
	walk = func(dir string) error {
		e, err := l.read(dir)
		if err != nil {
			return err
		}
		for _, f := range e.files {
			if IsSource(f) {
				out = append(out, dir)
				break
			}
		}
		for _, d := range e.dirs {
			if skipDir(d) {
				continue
			}
			if err := walk(filepath.Join(dir, d)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (l *layout) packageDesc(dir string, hierarchical bool) api.NodeDescriptor {
	rel := l.rel(dir)
	name := rel
	if hierarchical {
		name = filepath.Base(dir)
	}
	return api.NodeDescriptor{Kind: api.KindPackage, Name: name, URI: api.FileURI(dir), Path: rel}
}

func (l *layout) folderDesc(dir string) api.NodeDescriptor {
	return api.NodeDescriptor{Kind: api.KindFolder, Name: filepath.Base(dir), URI: api.FileURI(dir), Path: l.rel(dir)}
}

func (l *layout) fileDesc(p string) api.NodeDescriptor {
	name := filepath.Base(p)
	langName, _, ok := DetectLanguageFromExt(filepath.Ext(name))
	if !ok {
		return api.NodeDescriptor{Kind: api.KindFile, Name: name, URI: api.FileURI(p), Path: l.rel(p)}
	}
	meta := map[string]any{"language": langName}
	if isTestFile(name) {
		meta["test"] = true
	}
	return api.NodeDescriptor{Kind: api.KindPrimaryType, Name: name, URI: api.FileURI(p), Path: l.rel(p), Metadata: meta}
}

// between returns the directories from just below the project down to dir.
func (l *layout) between(dir string) []string {
	rel := l.rel(dir)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return nil
	}
	var out []string
	cur := l.proj
	for _, seg := range strings.Split(rel, "/") {
		cur = filepath.Join(cur, seg)
		out = append(out, cur)
	}
	return out
}

// hierarchicalChain mirrors the nested listing: directories are packages
// until the first one without sources beneath it, and folders from there on.
func (l *layout) hierarchicalChain(dir string) []api.NodeDescriptor {
	var out []api.NodeDescriptor
	folder := false
	for _, d := range l.between(dir) {
		if !folder && !l.hasSourcesBeneath(d) {
			folder = true
		}
		if folder {
			out = append(out, l.folderDesc(d))
		} else {
			out = append(out, l.packageDesc(d, true))
		}
	}
	return out
}

// flatChain mirrors the flat listing, where every source directory hangs off
// the project and folders hang off the project or a package. ok is false for
// directories the flat listing never shows.
func (l *layout) flatChain(dir string) ([]api.NodeDescriptor, bool) {
	dirs := l.between(dir)
	if len(dirs) == 0 {
		return nil, true
	}

	top := -1
	for i, d := range dirs {
		if !l.hasSourcesBeneath(d) {
			top = i
			break
		}
	}
	if top == -1 {
		if l.hasDirectSources(dir) {
			return []api.NodeDescriptor{l.packageDesc(dir, false)}, true
		}
		return nil, false
	}

	var out []api.NodeDescriptor
	if top > 0 {
		parent := dirs[top-1]
		if !l.hasDirectSources(parent) {
			return nil, false
		}
		out = append(out, l.packageDesc(parent, false))
	}
	for _, d := range dirs[top:] {
		out = append(out, l.folderDesc(d))
	}
	return out, true
}
