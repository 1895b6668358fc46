package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/alovak/mxcheckout/internal/credentials"
	"github.com/spf13/cobra"
)

func credentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Inspect processor credentials",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate processor keys from the environment",
		Long: `Load and validate processor keys from the environment.

Keys are printed masked. Unusable keys fail the check in production and
are reported as warnings elsewhere.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store := credentials.NewStore(logger, cfg.Environment, os.Getenv)
			loadErr := store.Load()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "environment:\t%s (production=%t)\n\n", cfg.Environment, store.Production())
			fmt.Fprintln(w, "PROCESSOR\tPUBLIC\tPRIVATE\tCLASS\tSTATUS")
			for _, spec := range credentials.DefaultSpecs {
				c, err := store.Credentials(spec.Processor)
				if err != nil {
					fmt.Fprintf(w, "%s\t%s\t%s\t-\tmissing (%s, %s)\n", spec.Processor,
						credentials.Mask(os.Getenv(spec.PublicEnv)), credentials.Mask(os.Getenv(spec.PrivateEnv)),
						spec.PublicEnv, spec.PrivateEnv)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\tok\n", c.Processor, credentials.Mask(c.PublicKey), credentials.Mask(c.PrivateKey), c.Environment)
			}
			w.Flush()

			return loadErr
		},
	})

	return cmd
}
