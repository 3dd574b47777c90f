package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/depview/internal/config"
	"github.com/agentic-research/depview/internal/logging"
)

// Version is stamped at build time.
var Version = "dev"

var (
	configPath string
	workspaces []string
	logLevel   string
	logFormat  string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "depview.hcl", "Path to the HCL settings file")
	rootCmd.PersistentFlags().StringSliceVarP(&workspaces, "workspace", "w", nil, "Workspace folder (repeatable, replaces the configured ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json")
}

var rootCmd = &cobra.Command{
	Use:           "depview",
	Short:         "depview: a lazily loaded dependency tree over workspace folders",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadSettings reads the config file and applies command-line overrides.
// Without any workspace the current directory is used.
func loadSettings() (config.Settings, error) {
	s, err := config.Load(configPath)
	if err != nil {
		return config.Settings{}, err
	}
	if len(workspaces) > 0 {
		s.Workspaces = nil
		for _, w := range workspaces {
			s.Workspaces = append(s.Workspaces, config.Workspace{Name: filepath.Base(w), Path: w})
		}
	}
	if len(s.Workspaces) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return config.Settings{}, fmt.Errorf("get working dir: %w", err)
		}
		s.Workspaces = []config.Workspace{{Name: filepath.Base(wd), Path: wd}}
	}
	if logLevel != "" {
		s.LogLevel = logLevel
	}
	if logFormat != "" {
		s.LogFormat = logFormat
	}
	wd, err := os.Getwd()
	if err != nil {
		return config.Settings{}, fmt.Errorf("get working dir: %w", err)
	}
	if err := s.Validate(wd); err != nil {
		return config.Settings{}, err
	}
	return s, nil
}

func newLogger(s config.Settings) (*zap.Logger, zap.AtomicLevel, error) {
	log, level, err := logging.New(logging.Config{Level: s.LogLevel, Format: s.LogFormat})
	if err != nil {
		return nil, level, fmt.Errorf("build logger: %w", err)
	}
	return log, level, nil
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}
