package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/depview/internal/config"
	"github.com/agentic-research/depview/internal/mcpserver"
	"github.com/agentic-research/depview/internal/metrics"
	"github.com/agentic-research/depview/internal/session"
)

var metricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tree as MCP tools over stdio",
	Long: `Serve the dependency tree to an MCP client over stdin and stdout.

The tree follows file changes while auto_refresh is on. Send SIGHUP to
reload the settings file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		log, level, err := newLogger(s)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sess, err := session.Open(ctx, config.NewStore(s), session.WithLogger(log), session.WithLevel(level))
		if err != nil {
			return err
		}
		defer func() { _ = sess.Close() }()

		if metricsAddr != "" {
			srv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Warn("metrics server stopped", zap.Error(err))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			log.Info("serving metrics", zap.String("addr", metricsAddr))
		}

		go reloadOnHangup(ctx, sess, log)

		log.Info("serving MCP over stdio")
		return mcpserver.New(sess.Explorer(), Version, log).ServeStdio(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address for the Prometheus /metrics endpoint (disabled when empty)")
	rootCmd.AddCommand(serveCmd)
}

// reloadOnHangup reloads the settings file on every SIGHUP.
func reloadOnHangup(ctx context.Context, sess *session.Session, log *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			next, err := loadSettings()
			if err != nil {
				log.Warn("reload settings", zap.Error(err))
				continue
			}
			if _, err := sess.Reload(next); err != nil {
				log.Warn("apply settings", zap.Error(err))
			}
		}
	}
}
