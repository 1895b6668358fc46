package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alovak/mxcheckout/internal/processor/fake"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

func sandboxCmd() *cobra.Command {
	var (
		chargesAddr string
		intentsAddr string
		key         string
	)

	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run local doubles of both processor APIs",
		Long: `Run local doubles of the charges and intents APIs for development.

Point the checkout at them with:
  CHARGES_BASE_URL=http://127.0.0.1:12001 INTENTS_BASE_URL=http://127.0.0.1:12002 mxcheckout serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}

			var opts []fake.Option
			if key != "" {
				opts = append(opts, fake.WithKey(key))
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			servers := []struct {
				name    string
				addr    string
				handler http.Handler
			}{
				{"charges", chargesAddr, fake.NewCharges(opts...)},
				{"intents", intentsAddr, fake.NewIntents(opts...)},
			}

			errs := make(chan error, len(servers))
			running := make([]*http.Server, 0, len(servers))
			for _, s := range servers {
				l, err := net.Listen("tcp", s.addr)
				if err != nil {
					return fmt.Errorf("listening for %s double: %w", s.name, err)
				}
				srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
				running = append(running, srv)

				logger.Info("processor double started", slog.String("processor", s.name), slog.String("addr", l.Addr().String()))
				fmt.Fprintf(cmd.OutOrStdout(), "%s_BASE_URL=http://%s\n", envPrefix(s.name), l.Addr())

				go func(srv *http.Server, l net.Listener) {
					if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errs <- err
					}
				}(srv, l)
			}

			select {
			case <-ctx.Done():
			case err = <-errs:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, srv := range running {
				srv.Shutdown(shutdownCtx)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&chargesAddr, "charges-addr", "127.0.0.1:12001", "listen address of the charges double")
	cmd.Flags().StringVar(&intentsAddr, "intents-addr", "127.0.0.1:12002", "listen address of the intents double")
	cmd.Flags().StringVar(&key, "key", "", "require this bearer key on every request")

	return cmd
}

func envPrefix(processor string) string {
	switch processor {
	case "charges":
		return "CHARGES"
	case "intents":
		return "INTENTS"
	}
	return processor
}
