package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacklau/repolens/internal/server"
)

var (
	serveAddr         string
	serveWatchCommits bool
	serveAccessLog    bool
)

// shutdownTimeout bounds the graceful shutdown of the HTTP server.
const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the repository, question and commit operations over HTTP under
/api/v1, with answers and ingestion progress streamed as server-sent events
and Prometheus metrics on the configured path.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveWatchCommits, "watch-commits", false, "refresh commit logs in the background")
	serveCmd.Flags().BoolVar(&serveAccessLog, "access-log", false, "log every request")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.requireProviders(); err != nil {
		return err
	}

	cfg := c.Config
	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	srv := server.New(c.Projects, c.Broker, c.Metrics, server.Config{
		AppName:      "repolens " + version,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		CORSOrigins:  cfg.Server.CORSOrigins,
		MetricsPath:  cfg.Metrics.Path,
		UserID:       userID(cfg),
		AskTimeout:   cfg.Ask.Timeout(),
		AccessLog:    serveAccessLog,
	}, c.Logger.With("component", "server"))

	ctx, cancel := signalContext(c.Logger)
	defer cancel()

	if serveWatchCommits {
		go func() {
			err := c.Projects.WatchCommits(ctx, userID(cfg), cfg.Commits.PollInterval())
			if err != nil && !errors.Is(err, context.Canceled) {
				c.Logger.Error("commit watcher stopped", "error", err)
			}
		}()
	}

	listenErr := make(chan error, 1)
	go func() {
		c.Logger.Info("listening", "addr", addr)
		listenErr <- srv.Listen(addr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	c.Logger.Info("server stopped")
	return nil
}
