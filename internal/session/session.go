// Package session wires a backend, the tree provider, the explorer and the
// file watcher into one running unit that follows settings changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"go.uber.org/zap"

	"github.com/agentic-research/depview/internal/backend"
	"github.com/agentic-research/depview/internal/backend/snapshot"
	"github.com/agentic-research/depview/internal/backend/source"
	"github.com/agentic-research/depview/internal/config"
	"github.com/agentic-research/depview/internal/explorer"
	"github.com/agentic-research/depview/internal/logging"
	"github.com/agentic-research/depview/internal/refresh"
	"github.com/agentic-research/depview/internal/watcher"
)

type options struct {
	log   *zap.Logger
	fs    billy.Filesystem
	clock refresh.Clock
	level *zap.AtomicLevel
}

// Option configures a Session.
type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithFilesystem sets the filesystem the source backend and the watcher
// read. It must accept absolute paths. Defaults to the OS root.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(o *options) { o.fs = fs }
}

// WithClock sets the clock behind refresh debouncing.
func WithClock(c refresh.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLevel lets Reload apply log_level changes to a running logger.
func WithLevel(level zap.AtomicLevel) Option {
	return func(o *options) { o.level = &level }
}

// Session owns every long-lived component for one set of workspace folders.
type Session struct {
	settings *config.Store
	backend  *backend.HotSwap
	provider *explorer.Provider
	explorer *explorer.Explorer
	fs       billy.Filesystem
	log      *zap.Logger
	level    *zap.AtomicLevel

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	snap    *snapshot.Backend
	watcher *watcher.Watcher
}

// Open builds the backend named by the current settings and starts the
// background loops. They stop when ctx is done or Close is called.
func Open(ctx context.Context, settings *config.Store, opts ...Option) (*Session, error) {
	o := options{clock: refresh.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.fs == nil {
		o.fs = osfs.New("/")
	}

	s := &Session{
		settings: settings,
		fs:       o.fs,
		log:      logging.OrNop(o.log),
		level:    o.level,
	}
	b, snap, err := s.openBackend(settings.Get())
	if err != nil {
		return nil, err
	}
	s.snap = snap
	s.backend = backend.NewHotSwap(b)
	s.provider = explorer.NewProvider(s.backend, settings,
		explorer.WithLogger(s.log.Named("provider")),
		explorer.WithClock(o.clock))
	s.explorer = explorer.NewExplorer(s.provider)

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.explorer.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("explorer stopped", zap.Error(err))
		}
	}()

	s.mu.Lock()
	s.syncWatcherLocked()
	s.mu.Unlock()

	cur := settings.Get()
	s.log.Info("session opened",
		zap.Int("workspaces", len(cur.Workspaces)),
		zap.String("presentation", cur.PackagePresentation),
		zap.Bool("snapshot", cur.Snapshot != ""))
	return s, nil
}

func (s *Session) Provider() *explorer.Provider { return s.provider }

func (s *Session) Explorer() *explorer.Explorer { return s.explorer }

func (s *Session) Settings() *config.Store { return s.settings }

// Watching reports whether the file watcher is running.
func (s *Session) Watching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watcher != nil
}

// Reload applies new settings. When the new backend cannot be opened the
// previous settings stay in effect.
func (s *Session) Reload(next config.Settings) (config.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.settings.Get()
	c := config.Diff(old, next)
	if c.Backend {
		b, snap, err := s.openBackend(next)
		if err != nil {
			return config.Change{}, err
		}
		s.settings.Set(next)
		s.backend.Swap(b)
		s.closeSnapshot()
		s.snap = snap
	} else {
		s.settings.Set(next)
	}

	s.provider.Reconfigure(c)
	if c.Watcher || c.Backend || !slices.Equal(old.Workspaces, next.Workspaces) || !slices.Equal(old.Exclude, next.Exclude) {
		s.stopWatcherLocked()
		s.syncWatcherLocked()
	}
	if s.level != nil && old.LogLevel != next.LogLevel {
		s.level.SetLevel(logging.ParseLevel(next.LogLevel))
	}

	s.log.Info("settings reloaded",
		zap.Bool("refresh", c.Refresh),
		zap.Bool("watcher", c.Watcher),
		zap.Bool("delay", c.Delay),
		zap.Bool("backend", c.Backend))
	return c, nil
}

// Close stops the background loops and releases the backend.
func (s *Session) Close() error {
	s.cancel()
	s.mu.Lock()
	s.stopWatcherLocked()
	s.mu.Unlock()
	s.wg.Wait()

	s.provider.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeSnapshot()
}

func (s *Session) openBackend(cur config.Settings) (backend.Backend, *snapshot.Backend, error) {
	log := s.log.Named("backend")
	if cur.Snapshot == "" {
		src := source.New(s.fs, source.WithPresentation(func() bool {
			return s.settings.Get().Hierarchical()
		}))
		return backend.NewInstrumented(src, log), nil, nil
	}

	snap, err := snapshot.Open(cur.Snapshot)
	if err != nil {
		return nil, nil, fmt.Errorf("open snapshot: %w", err)
	}
	if snap.Hierarchical() != cur.Hierarchical() {
		log.Warn("snapshot presentation differs from settings, using the snapshot's",
			zap.String("path", cur.Snapshot),
			zap.Bool("hierarchical", snap.Hierarchical()))
	}
	return backend.NewInstrumented(snap, log), snap, nil
}

func (s *Session) closeSnapshot() error {
	if s.snap == nil {
		return nil
	}
	err := s.snap.Close()
	s.snap = nil
	return err
}

// syncWatcherLocked starts the watcher when auto refresh is on. A snapshot
// never changes, so it is not watched.
func (s *Session) syncWatcherLocked() {
	cur := s.settings.Get()
	if s.watcher != nil || !cur.AutoRefresh || cur.Snapshot != "" || s.ctx.Err() != nil {
		return
	}
	w, err := watcher.New(s.provider, s.settings, s.fs, watcher.WithLogger(s.log.Named("watcher")))
	if err != nil {
		s.log.Warn("file watching unavailable", zap.Error(err))
		return
	}
	s.watcher = w
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := w.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("watcher stopped", zap.Error(err))
		}
	}()
}

func (s *Session) stopWatcherLocked() {
	if s.watcher == nil {
		return
	}
	if err := s.watcher.Close(); err != nil {
		s.log.Warn("close watcher", zap.Error(err))
	}
	s.watcher = nil
}
