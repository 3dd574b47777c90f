package api

import (
	"net/url"
	"path/filepath"
	"strings"
)

// NodeKind classifies a node in the dependency tree.
type NodeKind string

const (
	KindWorkspace   NodeKind = "workspace"
	KindProject     NodeKind = "project"
	KindPackage     NodeKind = "package"
	KindFolder      NodeKind = "folder"
	KindFile        NodeKind = "file"
	KindPrimaryType NodeKind = "primaryType"
	KindMember      NodeKind = "member"
)

// NonSource reports whether nodes of this kind are hidden unless non-source
// resources are shown.
func (k NodeKind) NonSource() bool {
	return k == KindFolder || k == KindFile
}

// NodeDescriptor is the backend's description of a single tree node.
type NodeDescriptor struct {
	// Kind of the node.
	Kind NodeKind `json:"kind"`
	// Name is the display label. Siblings are matched by name during reveal.
	Name string `json:"name"`
	// URI locates the resource. Members carry no URI.
	URI string `json:"uri,omitempty"`
	// Path is a backend-specific location, e.g. the project-relative package path.
	Path string `json:"path,omitempty"`
	// Metadata holds free-form hints (test scope, build tool, language version).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Scope identifies the parent whose children a backend should list.
type Scope struct {
	Kind NodeKind `json:"kind"`
	URI  string   `json:"uri,omitempty"`
	Path string   `json:"path,omitempty"`
	// Hierarchical selects nested package presentation.
	Hierarchical bool `json:"hierarchical,omitempty"`
}

// ScopeOf returns the scope that lists the children of d.
func ScopeOf(d NodeDescriptor, hierarchical bool) Scope {
	return Scope{Kind: d.Kind, URI: d.URI, Path: d.Path, Hierarchical: hierarchical}
}

// FileURI converts an absolute filesystem path to a file:// URI.
func FileURI(p string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String()
}

// PathFromURI returns the filesystem path of a file URI. Plain absolute paths
// are returned unchanged; other schemes yield "".
func PathFromURI(uri string) string {
	if uri == "" {
		return ""
	}
	if strings.HasPrefix(uri, "/") {
		return filepath.Clean(uri)
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return ""
	}
	if u.Path == "" {
		return ""
	}
	return filepath.Clean(filepath.FromSlash(u.Path))
}
