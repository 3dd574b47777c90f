// Package mcpserver exposes the dependency tree as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/agentic-research/depview/api"
	"github.com/agentic-research/depview/internal/explorer"
	"github.com/agentic-research/depview/internal/logging"
)

// TreeChanged is the notification sent to every client after a refresh.
const TreeChanged = "notifications/depview/tree_changed"

// NodeView is the JSON shape of a tree node.
type NodeView struct {
	Name       string         `json:"name"`
	Kind       api.NodeKind   `json:"kind"`
	URI        string         `json:"uri,omitempty"`
	Expandable bool           `json:"expandable"`
	Test       bool           `json:"test,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Server serves one explorer.
type Server struct {
	mcp *server.MCPServer
	ex  *explorer.Explorer
	log *zap.Logger
}

func New(ex *explorer.Explorer, version string, log *zap.Logger) *Server {
	s := &Server{
		mcp: server.NewMCPServer("depview", version, server.WithToolCapabilities(false)),
		ex:  ex,
		log: logging.OrNop(log),
	}
	s.registerTools()
	return s
}

// MCP returns the underlying server for transports.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves over stdin and stdout and forwards tree changes to
// clients until ctx is done.
func (s *Server) ServeStdio(ctx context.Context) error {
	go s.Forward(ctx)
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.log.Named("stdio")))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// Forward sends a TreeChanged notification for every provider change until
// ctx is done or the provider closes.
func (s *Server) Forward(ctx context.Context) {
	p := s.ex.Provider()
	ch := p.Changes()
	defer p.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			s.mcp.SendNotificationToAllClients(TreeChanged, changeParams(c))
		}
	}
}

func changeParams(c explorer.Change) map[string]any {
	if c.Root() {
		return map[string]any{"root": true}
	}
	return map[string]any{"root": false, "uri": c.Node.URI(), "name": c.Node.Name()}
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("list_children",
		mcp.WithDescription("List the children of a tree node. Without a uri, lists the top-level nodes."),
		mcp.WithString("uri", mcp.Description("file URI or absolute path of a node already in the tree")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListChildren)

	s.mcp.AddTool(mcp.NewTool("reveal",
		mcp.WithDescription("Locate a file in the tree, loading every ancestor, and return the path from the top."),
		mcp.WithString("uri", mcp.Required(), mcp.Description("file URI or absolute path")),
		mcp.WithBoolean("check_sync", mcp.Description("respect sync_with_folder_explorer"), mcp.DefaultBool(true)),
	), s.handleReveal)

	s.mcp.AddTool(mcp.NewTool("focus",
		mcp.WithDescription("Mark a document as active. It is revealed now and again after every refresh."),
		mcp.WithString("uri", mcp.Required(), mcp.Description("file URI or absolute path")),
	), s.handleFocus)

	s.mcp.AddTool(mcp.NewTool("refresh",
		mcp.WithDescription("Rebuild a subtree, or the whole tree without a uri."),
		mcp.WithString("uri", mcp.Description("file URI or absolute path of a node in the tree")),
		mcp.WithBoolean("debounce", mcp.Description("wait for the quiet period"), mcp.DefaultBool(true)),
	), s.handleRefresh)
}

func (s *Server) handleListChildren(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := s.ex.Provider()
	var parent *explorer.Node
	if uri := req.GetString("uri", ""); uri != "" {
		n, ok := s.lookup(ctx, uri)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("%s is not in the tree", uri)), nil
		}
		parent = n
	}
	kids, err := p.GetChildren(ctx, parent)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	views := make([]NodeView, 0, len(kids))
	for _, k := range kids {
		views = append(views, s.view(k))
	}
	return jsonResult(views)
}

func (s *Server) handleReveal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uri, err := req.RequireString("uri")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.ex.Reveal(ctx, uri, req.GetBool("check_sync", true))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.chain(n))
}

func (s *Server) handleFocus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uri, err := req.RequireString("uri")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.ex.Focus(ctx, uri)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.chain(n))
}

func (s *Server) handleRefresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var target *explorer.Node
	if uri := req.GetString("uri", ""); uri != "" {
		n, ok := s.lookup(ctx, uri)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("%s is not in the tree", uri)), nil
		}
		target = n
	}
	s.ex.Provider().Refresh(target, req.GetBool("debounce", true))
	s.log.Debug("refresh requested", zap.Stringer("node", target))
	return mcp.NewToolResultText("refresh scheduled"), nil
}

// lookup finds the cached node for uri, revealing it when it is not loaded
// yet.
func (s *Server) lookup(ctx context.Context, uri string) (*explorer.Node, bool) {
	path := api.PathFromURI(uri)
	if path == "" {
		return nil, false
	}
	if n, ok := s.ex.Provider().Node(path); ok {
		return n, true
	}
	n, err := s.ex.Reveal(ctx, uri, false)
	if err != nil {
		s.log.Debug("lookup failed", zap.String("uri", uri), zap.Error(err))
		return nil, false
	}
	return n, n != nil
}

// chain returns the nodes from the top of the tree down to n. A nil n
// yields an empty chain.
func (s *Server) chain(n *explorer.Node) []NodeView {
	var rev []NodeView
	for cur := n; cur != nil; cur = cur.Parent() {
		rev = append(rev, s.view(cur))
	}
	out := make([]NodeView, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		out = append(out, rev[i])
	}
	return out
}

func (s *Server) view(n *explorer.Node) NodeView {
	p := s.ex.Provider()
	return NodeView{
		Name:       n.Name(),
		Kind:       n.Kind(),
		URI:        n.URI(),
		Expandable: p.Expandable(n),
		Test:       p.IsTest(n),
		Metadata:   n.Metadata(),
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
