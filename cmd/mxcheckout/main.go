package main

import (
	"fmt"
	"os"

	"github.com/alovak/mxcheckout/checkout"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

var Version = "dev"

var (
	configPath string
	logLevel   = "info"
	logJSON    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mxcheckout",
		Short:         "Dual-processor checkout for card, cash voucher and bank transfer payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("MXCHECKOUT_CONFIG"), "YAML config file (env MXCHECKOUT_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON instead of text")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sandboxCmd())
	rootCmd.AddCommand(credentialsCmd())
	rootCmd.AddCommand(chargeCmd())
	rootCmd.AddCommand(lookupCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	if logJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

func loadConfig() (*checkout.Config, error) {
	return checkout.LoadConfig(configPath, os.Getenv)
}
