package cmd

import (
	"fmt"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/depview/internal/backend"
	"github.com/agentic-research/depview/internal/backend/snapshot"
	"github.com/agentic-research/depview/internal/backend/source"
)

var snapshotMembers bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [output.db]",
	Short: "Persist the dependency tree of the workspace folders to SQLite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := args[0]
		s, err := loadSettings()
		if err != nil {
			return err
		}
		log, _, err := newLogger(s)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		src := backend.NewInstrumented(source.New(osfs.New("/")), log)
		fmt.Fprintf(cmd.OutOrStdout(), "Building %s from %d workspace folder(s)...\n", output, len(s.Workspaces))
		stats, err := snapshot.Build(cmd.Context(), src, output, snapshot.BuildOptions{
			Workspaces:   s.Workspaces,
			Hierarchical: s.Hierarchical(),
			Members:      snapshotMembers || s.ShowMembers,
			Exclude:      s.Exclude,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d nodes in %v.\n", stats.Nodes, stats.Duration)
		return nil
	},
}

func init() {
	snapshotCmd.Flags().BoolVarP(&snapshotMembers, "members", "m", false, "Include the members of primary types")
	rootCmd.AddCommand(snapshotCmd)
}
