// Package config loads depview settings from an HCL file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// ErrInvalid is returned for settings that fail validation.
var ErrInvalid = errors.New("invalid config")

const (
	PresentationFlat         = "flat"
	PresentationHierarchical = "hierarchical"
)

// Workspace is one workspace folder.
type Workspace struct {
	Name string `hcl:"name,label"`
	Path string `hcl:"path"`
}

// Settings is the full user-visible configuration.
type Settings struct {
	RefreshDelayMS         int         `hcl:"refresh_delay_ms,optional"`
	ShowNonSource          bool        `hcl:"show_non_source_resources,optional"`
	SyncWithFolderExplorer bool        `hcl:"sync_with_folder_explorer,optional"`
	ShowMembers            bool        `hcl:"show_members,optional"`
	AutoRefresh            bool        `hcl:"auto_refresh,optional"`
	PackagePresentation    string      `hcl:"package_presentation,optional"`
	Exclude                []string    `hcl:"exclude,optional"`
	TestMarkers            []string    `hcl:"test_markers,optional"`
	Snapshot               string      `hcl:"snapshot,optional"`
	LogLevel               string      `hcl:"log_level,optional"`
	LogFormat              string      `hcl:"log_format,optional"`
	Workspaces             []Workspace `hcl:"workspace,block"`
}

// DefaultTestMarkers match the metadata keys build tools use for test scope.
var DefaultTestMarkers = []string{"$.test", "$['maven.scope']", "$.gradle_scope"}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		RefreshDelayMS:         2000,
		SyncWithFolderExplorer: true,
		AutoRefresh:            true,
		PackagePresentation:    PresentationFlat,
		Exclude:                []string{"**/.git", "**/node_modules"},
		TestMarkers:            slices.Clone(DefaultTestMarkers),
		LogLevel:               "info",
		LogFormat:              "console",
	}
}

// RefreshDelay returns the debounce interval.
func (s Settings) RefreshDelay() time.Duration {
	return time.Duration(s.RefreshDelayMS) * time.Millisecond
}

// Hierarchical reports whether packages are nested by directory.
func (s Settings) Hierarchical() bool {
	return s.PackagePresentation == PresentationHierarchical
}

// Validate checks values and makes workspace paths absolute relative to base.
func (s *Settings) Validate(base string) error {
	if s.RefreshDelayMS < 0 {
		return fmt.Errorf("%w: refresh_delay_ms must not be negative", ErrInvalid)
	}
	switch s.PackagePresentation {
	case "":
		s.PackagePresentation = PresentationFlat
	case PresentationFlat, PresentationHierarchical:
	default:
		return fmt.Errorf("%w: package_presentation %q", ErrInvalid, s.PackagePresentation)
	}
	for i, ws := range s.Workspaces {
		if ws.Path == "" {
			return fmt.Errorf("%w: workspace %q has no path", ErrInvalid, ws.Name)
		}
		if !filepath.IsAbs(ws.Path) {
			s.Workspaces[i].Path = filepath.Join(base, ws.Path)
		}
		s.Workspaces[i].Path = filepath.Clean(s.Workspaces[i].Path)
	}
	return nil
}

// Load reads settings from path on top of the defaults. A missing file
// yields the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err := hclsimple.DecodeFile(path, nil, &s); err != nil {
		return Settings{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := s.Validate(filepath.Dir(path)); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Parse decodes HCL source. filename must end in .hcl; it is used in
// diagnostics and to resolve relative workspace paths.
func Parse(filename string, src []byte) (Settings, error) {
	s := Default()
	if err := hclsimple.Decode(filename, src, nil, &s); err != nil {
		return Settings{}, fmt.Errorf("decode %s: %w", filename, err)
	}
	if err := s.Validate(filepath.Dir(filename)); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Change describes what a settings update affects.
type Change struct {
	Refresh bool // tree content or shape changed
	Watcher bool // auto refresh toggled
	Delay   bool // debounce interval changed
	Backend bool // data source changed
}

// Any reports whether anything changed that a running session reacts to.
func (c Change) Any() bool {
	return c.Refresh || c.Watcher || c.Delay || c.Backend
}

// Diff compares two settings snapshots.
func Diff(old, new Settings) Change {
	return Change{
		Refresh: (!old.SyncWithFolderExplorer && new.SyncWithFolderExplorer) ||
			old.ShowMembers != new.ShowMembers ||
			old.ShowNonSource != new.ShowNonSource ||
			old.PackagePresentation != new.PackagePresentation ||
			!slices.Equal(old.Exclude, new.Exclude) ||
			!slices.Equal(old.TestMarkers, new.TestMarkers) ||
			!slices.Equal(old.Workspaces, new.Workspaces),
		Watcher: old.AutoRefresh != new.AutoRefresh,
		Delay:   old.RefreshDelayMS != new.RefreshDelayMS,
		Backend: old.Snapshot != new.Snapshot,
	}
}

// Store holds the current settings. Reads never block.
type Store struct {
	cur atomic.Pointer[Settings]
}

func NewStore(s Settings) *Store {
	st := &Store{}
	st.cur.Store(&s)
	return st
}

// Get returns the current settings.
func (st *Store) Get() Settings {
	return *st.cur.Load()
}

// Set replaces the settings and reports what changed.
func (st *Store) Set(s Settings) Change {
	old := st.cur.Swap(&s)
	return Diff(*old, s)
}
