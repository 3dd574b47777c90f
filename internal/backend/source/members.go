package source

import (
	"context"
	"fmt"
	"path"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/agentic-research/depview/api"
)

type member struct {
	name string
	kind string
	line int
}

// extractMembers parses src and returns its top-level declarations in
// source order.
func extractMembers(ctx context.Context, name string, src []byte) ([]member, error) {
	langName, lang, ok := DetectLanguageFromExt(path.Ext(name))
	if !ok {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(memberQueries[langName]), lang)
	if err != nil {
		return nil, fmt.Errorf("invalid %s member query: %w", langName, err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var out []member
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			out = append(out, member{
				name: c.Node.Content(src),
				kind: q.CaptureNameForId(c.Index),
				line: int(c.Node.StartPoint().Row) + 1,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].line < out[j].line })
	return out, nil
}

func memberDescriptors(ms []member) []api.NodeDescriptor {
	out := make([]api.NodeDescriptor, 0, len(ms))
	for _, m := range ms {
		out = append(out, api.NodeDescriptor{
			Kind: api.KindMember,
			Name: m.name,
			Metadata: map[string]any{
				"symbolKind": m.kind,
				"line":       m.line,
			},
		})
	}
	return out
}
