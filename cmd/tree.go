package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agentic-research/depview/internal/config"
	"github.com/agentic-research/depview/internal/explorer"
	"github.com/agentic-research/depview/internal/session"
)

var (
	treeDepth   int
	treeMembers bool
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the dependency tree of the workspace folders",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		s.AutoRefresh = false
		if treeMembers {
			s.ShowMembers = true
		}
		log, _, err := newLogger(s)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		sess, err := session.Open(cmd.Context(), config.NewStore(s), session.WithLogger(log))
		if err != nil {
			return err
		}
		defer func() { _ = sess.Close() }()
		return printTree(cmd.Context(), cmd.OutOrStdout(), sess.Provider(), nil, 0, treeDepth)
	},
}

func init() {
	treeCmd.Flags().IntVarP(&treeDepth, "depth", "d", 0, "Maximum depth to print (0 = unlimited)")
	treeCmd.Flags().BoolVarP(&treeMembers, "members", "m", false, "Show the members of primary types")
	rootCmd.AddCommand(treeCmd)
}

// printTree writes the children of n, depth first.
func printTree(ctx context.Context, w io.Writer, p *explorer.Provider, n *explorer.Node, depth, maxDepth int) error {
	if maxDepth > 0 && depth >= maxDepth {
		return nil
	}
	kids, err := p.GetChildren(ctx, n)
	if err != nil {
		return err
	}
	for _, k := range kids {
		line := fmt.Sprintf("%s%s [%s]", indent(depth), k.Name(), k.Kind())
		if p.IsTest(k) {
			line += " (test)"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		if p.Expandable(k) {
			if err := printTree(ctx, w, p, k, depth+1, maxDepth); err != nil {
				return err
			}
		}
	}
	return nil
}
