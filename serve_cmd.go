package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/tartil/internal/server"
)

var envFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the persistence API",
	Long: paragraph(fmt.Sprintf(
		"\n%s the REST API that keeps bookmarks, downloads and memorization goals. It is configured with TARTIL_* environment variables, read from a .env file when present.",
		keyword("Serve"),
	)),
	Example: paragraph("tartil serve\nTARTIL_STORE_DRIVER=postgres TARTIL_STORE_DSN=postgres://... tartil serve"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		// The server logs to stderr.
		log.SetOutput(os.Stderr)

		cfg, err := server.LoadConfig(envFile)
		if err != nil {
			return err
		}
		if cfg.Debug {
			log.SetLevel(log.DebugLevel)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := server.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := srv.Close(); err != nil {
				log.Warn("closing server", "error", err)
			}
		}()

		log.Info("persistence API", "addr", cfg.Addr, "store", cfg.Store.Driver)
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "environment file to load")
}
