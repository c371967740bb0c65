package cmd

import (
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/magic-research/ragd/internal/ingest"
	"github.com/magic-research/ragd/internal/server"
	"github.com/magic-research/ragd/pkg/version"
)

func newServeCmd() *cobra.Command {
	var (
		host  string
		port  int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP query server",
		Long: `Starts the HTTP server exposing /health, /status, /query, and
/documents. With --watch, the docs directory is monitored and changed
files are re-ingested automatically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			logger := commandLogger()

			release, err := ingest.Lock(cfg.DataDir)
			if err != nil {
				return err
			}
			defer release()

			a, err := buildApp(cfg, true, logger)
			if err != nil {
				return err
			}
			defer a.close(true)

			srv := server.New(a.service, a.pipeline, a.metadata, server.Options{
				Host:      cfg.Server.Host,
				Port:      cfg.Server.Port,
				UploadDir: filepath.Join(cfg.DataDir, "uploads"),
				Status: server.StatusInfo{
					Embedding: a.embedder.ModelName(),
					Providers: a.chain.Providers(),
					Version:   version.Version,
				},
			}, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(gctx)
			})
			if watch {
				watcher := ingest.NewWatcher(a.pipeline, cfg.DocsDir, 0, logger)
				g.Go(func() error {
					err := watcher.Run(gctx)
					if err == gctx.Err() {
						return nil
					}
					return err
				})
			}

			if err := g.Wait(); err != nil && err != ctx.Err() {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Bind host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Bind port (overrides config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-ingest the docs directory when files change")

	return cmd
}
