package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentic-research/depview/api"
	"github.com/agentic-research/depview/internal/config"
	"github.com/agentic-research/depview/internal/explorer"
	"github.com/agentic-research/depview/internal/session"
)

var revealCmd = &cobra.Command{
	Use:   "reveal [file]",
	Short: "Print the tree path leading to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		s.AutoRefresh = false
		log, _, err := newLogger(s)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		target, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolve %s: %w", args[0], err)
		}
		sess, err := session.Open(cmd.Context(), config.NewStore(s), session.WithLogger(log))
		if err != nil {
			return err
		}
		defer func() { _ = sess.Close() }()

		n, err := sess.Explorer().Reveal(cmd.Context(), api.FileURI(target), false)
		if err != nil {
			return err
		}
		if n == nil {
			return fmt.Errorf("%s is not in the tree", target)
		}
		var chain []*explorer.Node
		for cur := n; cur != nil; cur = cur.Parent() {
			chain = append([]*explorer.Node{cur}, chain...)
		}
		for i, c := range chain {
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s [%s]\n", indent(i), c.Name(), c.Kind())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(revealCmd)
}
