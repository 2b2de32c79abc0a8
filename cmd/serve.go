package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/aqlanhadi/ledgr/api"
	"github.com/aqlanhadi/ledgr/integrations/postgres"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP API server",
	Long: `Starts the HTTP API server. File extraction always works; uploads,
listing and tagging need a database (--db-url or DATABASE_URL).`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlag("server.port", cmd.Flags().Lookup("port")); err != nil {
			return err
		}
		return bindDatabaseURL(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := api.DefaultConfig()
		cfg.Port = ":" + viper.GetString("server.port")
		cfg.Logger = log.Logger

		if url := viper.GetString("database.url"); url != "" {
			db, err := postgres.Connect(ctx, url)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer db.Close()
			cfg.Store = db
		} else {
			log.Warn().Msg("no database configured, storage endpoints are disabled")
		}

		server := api.New(cfg)
		if err := server.Start(ctx); err != nil && err != context.Canceled {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("port", "p", "8080", "Port to run the API server on")
	serveCmd.Flags().String("db-url", "", "PostgreSQL connection URL (or set DATABASE_URL env)")
}
