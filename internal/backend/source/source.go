// Package source serves the dependency tree straight from a workspace on disk.
//
// Projects are directories holding a build marker (go.mod, pyproject.toml,
// setup.py). Packages are directories holding source files, and primary types
// are the source files themselves, with their top-level declarations as
// members. Everything else is a folder or file.
package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/agentic-research/depview/api"
	"github.com/agentic-research/depview/internal/backend"
)

// Backend reads a workspace through a billy filesystem addressed by absolute
// paths.
type Backend struct {
	fs           billy.Filesystem
	hierarchical func() bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithPresentation supplies the package presentation used by ResolvePath.
// ListChildren takes it from the scope instead.
func WithPresentation(hierarchical func() bool) Option {
	return func(b *Backend) { b.hierarchical = hierarchical }
}

func New(fs billy.Filesystem, opts ...Option) *Backend {
	b := &Backend{fs: fs, hierarchical: func() bool { return false }}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ready always reports true; the filesystem is available as soon as the
// backend exists.
func (b *Backend) Ready(context.Context) bool { return true }

func (b *Backend) ListChildren(ctx context.Context, scope api.Scope) ([]api.NodeDescriptor, error) {
	dir := api.PathFromURI(scope.URI)
	if dir == "" {
		return nil, fmt.Errorf("%w: %s scope without file uri %q", backend.ErrUnsupportedScope, scope.Kind, scope.URI)
	}
	switch scope.Kind {
	case api.KindWorkspace:
		return b.projects(ctx, dir)
	case api.KindProject:
		return b.projectChildren(dir, scope.Hierarchical)
	case api.KindPackage:
		proj, _, ok := b.findProject(dir)
		if !ok {
			return nil, nil
		}
		return b.packageChildren(proj, dir, scope.Hierarchical)
	case api.KindFolder:
		proj, _, ok := b.findProject(dir)
		if !ok {
			return nil, nil
		}
		return b.folderChildren(proj, dir)
	case api.KindPrimaryType:
		src, err := util.ReadFile(b.fs, dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, fmt.Errorf("read %s: %w", dir, err)
		}
		ms, err := extractMembers(ctx, dir, src)
		if err != nil {
			return nil, err
		}
		return memberDescriptors(ms), nil
	case api.KindFile, api.KindMember:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", backend.ErrUnsupportedScope, scope.Kind)
	}
}

func (b *Backend) ResolvePath(ctx context.Context, uri string) ([]api.NodeDescriptor, error) {
	p := api.PathFromURI(uri)
	if p == "" {
		return nil, nil
	}
	info, err := b.fs.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	proj, tool, ok := b.findProject(p)
	if !ok {
		return nil, nil
	}
	chain := []api.NodeDescriptor{b.projectDesc(proj, tool)}
	if p == proj {
		return chain, nil
	}

	dir := p
	if !info.IsDir() {
		dir = filepath.Dir(p)
	}
	l := newLayout(b.fs, proj)
	var dirs []api.NodeDescriptor
	if b.hierarchical() {
		dirs = l.hierarchicalChain(dir)
	} else {
		dirs, ok = l.flatChain(dir)
		if !ok {
			return nil, nil
		}
	}
	chain = append(chain, dirs...)
	if !info.IsDir() {
		fd := l.fileDesc(p)
		if len(dirs) > 0 && dirs[len(dirs)-1].Kind == api.KindFolder {
			fd = api.NodeDescriptor{Kind: api.KindFile, Name: fd.Name, URI: fd.URI, Path: fd.Path}
		}
		chain = append(chain, fd)
	}
	return chain, nil
}

// projects finds every project under root, outermost first.
func (b *Backend) projects(ctx context.Context, root string) ([]api.NodeDescriptor, error) {
	var out []api.NodeDescriptor
	var walk func(dir string) error
	walk = func(dir string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tool, ok := marker(b.fs, dir); ok {
			out = append(out, b.projectDesc(dir, tool))
		}
		entries, err := b.fs.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("read dir %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() && !skipDir(e.Name()) {
				if err := walk(filepath.Join(dir, e.Name())); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (b *Backend) projectChildren(proj string, hierarchical bool) ([]api.NodeDescriptor, error) {
	l := newLayout(b.fs, proj)
	entries, err := l.read(proj)
	if err != nil {
		return nil, err
	}

	var pkgs, folders, types, files []api.NodeDescriptor
	if hierarchical {
		for _, e := range entries.dirs {
			d := filepath.Join(proj, e)
			if l.hasSourcesBeneath(d) {
				pkgs = append(pkgs, l.packageDesc(d, true))
			} else {
				folders = append(folders, l.folderDesc(d))
			}
		}
	} else {
		all, err := l.sourceDirs(proj)
		if err != nil {
			return nil, err
		}
		for _, d := range all {
			if d != proj {
				pkgs = append(pkgs, l.packageDesc(d, false))
			}
		}
		for _, e := range entries.dirs {
			d := filepath.Join(proj, e)
			if !l.hasSourcesBeneath(d) {
				folders = append(folders, l.folderDesc(d))
			}
		}
	}
	for _, f := range entries.files {
		fd := l.fileDesc(filepath.Join(proj, f))
		if fd.Kind == api.KindPrimaryType {
			types = append(types, fd)
		} else {
			files = append(files, fd)
		}
	}
	return concat(pkgs, folders, types, files), nil
}

func (b *Backend) packageChildren(proj, dir string, hierarchical bool) ([]api.NodeDescriptor, error) {
	l := newLayout(b.fs, proj)
	entries, err := l.read(dir)
	if err != nil {
		return nil, err
	}
	var pkgs, folders, types, files []api.NodeDescriptor
	for _, e := range entries.dirs {
		d := filepath.Join(dir, e)
		switch {
		case !l.hasSourcesBeneath(d):
			folders = append(folders, l.folderDesc(d))
		case hierarchical:
			pkgs = append(pkgs, l.packageDesc(d, true))
		}
	}
	for _, f := range entries.files {
		fd := l.fileDesc(filepath.Join(dir, f))
		if fd.Kind == api.KindPrimaryType {
			types = append(types, fd)
		} else {
			files = append(files, fd)
		}
	}
	return concat(pkgs, folders, types, files), nil
}

func (b *Backend) folderChildren(proj, dir string) ([]api.NodeDescriptor, error) {
	l := newLayout(b.fs, proj)
	entries, err := l.read(dir)
	if err != nil {
		return nil, err
	}
	var folders, files []api.NodeDescriptor
	for _, e := range entries.dirs {
		folders = append(folders, l.folderDesc(filepath.Join(dir, e)))
	}
	for _, f := range entries.files {
		p := filepath.Join(dir, f)
		files = append(files, api.NodeDescriptor{Kind: api.KindFile, Name: f, URI: api.FileURI(p), Path: l.rel(p)})
	}
	return concat(folders, files), nil
}

// findProject returns the nearest directory at or above p holding a project
// marker.
func (b *Backend) findProject(p string) (dir, tool string, ok bool) {
	for dir = p; ; dir = filepath.Dir(dir) {
		if tool, ok = marker(b.fs, dir); ok {
			return dir, tool, true
		}
		if parent := filepath.Dir(dir); parent == dir {
			return "", "", false
		}
	}
}

func (b *Backend) projectDesc(dir, tool string) api.NodeDescriptor {
	meta := map[string]any{"buildTool": tool}
	if tool == "go" {
		if v := goVersion(b.fs, filepath.Join(dir, "go.mod")); v != "" {
			meta["goVersion"] = v
		}
	}
	return api.NodeDescriptor{
		Kind:     api.KindProject,
		Name:     filepath.Base(dir),
		URI:      api.FileURI(dir),
		Path:     dir,
		Metadata: meta,
	}
}

// goVersion reads the go directive of a go.mod file.
func goVersion(fs billy.Filesystem, gomod string) string {
	data, err := util.ReadFile(fs, gomod)
	if err != nil {
		return ""
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) == 2 && f[0] == "go" {
			return f[1]
		}
	}
	return ""
}

func concat(groups ...[]api.NodeDescriptor) []api.NodeDescriptor {
	var out []api.NodeDescriptor
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
