package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alovak/mxcheckout/checkout"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

func serveCmd() *cobra.Command {
	var warm bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the checkout HTTP API",
		Long: `Run the checkout HTTP API.

Configuration comes from the --config YAML file and the environment
(HTTP_ADDR, REPO_BACKEND, DB_DSN, CHARGES_PRIVATE_KEY, INTENTS_SECRET_KEY, ...).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app := checkout.NewApp(logger, cfg)
			if err := app.Start(); err != nil {
				return err
			}
			defer app.Shutdown()

			if warm {
				if err := app.Warm(ctx); err != nil {
					logger.Warn("processor warm-up failed", slog.Any("err", err))
				}
			}

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&warm, "warm", false, "initialize processor adapters at startup instead of on first use")

	return cmd
}
