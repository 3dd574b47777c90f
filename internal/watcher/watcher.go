// Package watcher turns file system events under the workspace folders into
// debounced tree refreshes.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"

	"github.com/agentic-research/depview/api"
	"github.com/agentic-research/depview/internal/backend"
	"github.com/agentic-research/depview/internal/backend/source"
	"github.com/agentic-research/depview/internal/config"
	"github.com/agentic-research/depview/internal/explorer"
	"github.com/agentic-research/depview/internal/metrics"
)

// Watcher watches every directory of the configured workspace folders.
type Watcher struct {
	tree     *explorer.Provider
	settings *config.Store
	fs       billy.Filesystem
	log      *zap.Logger

	fsw   *fsnotify.Watcher
	watch func(dir string) error

	mu      sync.Mutex
	watched map[string]struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// New creates a watcher that stats through fs, which must address the same
// files the OS reports events for.
func New(tree *explorer.Provider, settings *config.Store, fs billy.Filesystem, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := newWatcher(tree, settings, fs, fsw.Add, opts...)
	w.fsw = fsw
	return w, nil
}

func newWatcher(tree *explorer.Provider, settings *config.Store, fs billy.Filesystem, watch func(string) error, opts ...Option) *Watcher {
	w := &Watcher{
		tree:     tree,
		settings: settings,
		fs:       fs,
		log:      zap.NewNop(),
		watch:    watch,
		watched:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches the workspace folders and handles events until ctx is done or
// the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for _, ws := range w.settings.Get().Workspaces {
		if err := w.addTree(ws.Path); err != nil {
			return err
		}
	}
	w.log.Info("watching workspace folders", zap.Int("directories", w.Watched()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

// Close stops the underlying watcher, which ends Run.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}

// Watched returns the number of directories being watched.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// addTree watches root and every directory below it that is not excluded.
func (w *Watcher) addTree(root string) error {
	exclude := w.settings.Get().Exclude
	err := util.Walk(w.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if p != root && backend.Excluded(exclude, p) {
			return filepath.SkipDir
		}
		return w.add(p)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	return nil
}

func (w *Watcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[dir]; ok {
		return nil
	}
	if err := w.watch(dir); err != nil {
		return err
	}
	w.watched[dir] = struct{}{}
	return nil
}

func (w *Watcher) forget(p string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prefix := p + string(filepath.Separator)
	for dir := range w.watched {
		if dir == p || strings.HasPrefix(dir, prefix) {
			delete(w.watched, dir)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	s := w.settings.Get()
	p := filepath.Clean(ev.Name)
	if !s.AutoRefresh || backend.Excluded(s.Exclude, p) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		metrics.RecordWatcherEvent("create")
		w.created(p, s)
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		metrics.RecordWatcherEvent("remove")
		w.removed(p, s)
	case ev.Has(fsnotify.Write):
		metrics.RecordWatcherEvent("write")
		w.written(p, s)
	}
}

func (w *Watcher) created(p string, s config.Settings) {
	isDir := false
	if info, err := w.fs.Lstat(p); err == nil && info.IsDir() {
		isDir = true
		if err := w.addTree(p); err != nil {
			w.log.Warn("watch new directory", zap.String("path", p), zap.Error(err))
		}
	}
	if source.IsProjectMarker(filepath.Base(p)) {
		w.refresh(nil)
		return
	}
	anc, _ := w.tree.NearestAncestor(filepath.Dir(p))
	if isDir && !s.Hierarchical() {
		anc = enclosingProject(anc)
	}
	w.refresh(anc)
}

func (w *Watcher) removed(p string, s config.Settings) {
	w.forget(p)
	if source.IsProjectMarker(filepath.Base(p)) {
		w.refresh(nil)
		return
	}
	n, ok := w.tree.Node(p)
	if !ok {
		anc, _ := w.tree.NearestAncestor(filepath.Dir(p))
		w.refresh(anc)
		return
	}
	target := n.Parent()
	if !s.Hierarchical() && (n.Kind() == api.KindPackage || n.Kind() == api.KindFolder) {
		target = enclosingProject(target)
	}
	w.refresh(target)
}

// written refreshes a changed source file so its members are read again.
// Content changes do not affect anything else in the tree.
func (w *Watcher) written(p string, s config.Settings) {
	if !s.ShowMembers || !source.IsSource(p) {
		return
	}
	if n, ok := w.tree.Node(p); ok {
		w.refresh(n)
	}
}

func (w *Watcher) refresh(n *explorer.Node) {
	w.log.Debug("refresh on file change", zap.Stringer("node", n))
	w.tree.Refresh(n, true)
}

// enclosingProject climbs to the project holding n. Flat listings hang every
// package off the project, so directory changes affect it directly.
func enclosingProject(n *explorer.Node) *explorer.Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		if cur.Kind() == api.KindProject {
			return cur
		}
	}
	return n
}
