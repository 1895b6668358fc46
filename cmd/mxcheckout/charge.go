package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alovak/mxcheckout/checkout"
	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/alovak/mxcheckout/internal/credentials"
	"github.com/alovak/mxcheckout/internal/expiry"
	"github.com/alovak/mxcheckout/internal/processor"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// newRegistry builds the same registry serve uses, with credentials from the
// environment.
func newRegistry() (*processor.Registry, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	loc, err := expiry.LoadLocation(cfg.MerchantTZ)
	if err != nil {
		return nil, err
	}
	expiry.SetDefaultLocation(loc)

	store := credentials.NewStore(logger, cfg.Environment, os.Getenv)
	if err := store.Load(); err != nil {
		return nil, err
	}
	return checkout.NewRegistry(logger, cfg, store), nil
}

func chargeCmd() *cobra.Command {
	var (
		processorID string
		amount      string
		timeout     time.Duration
		req         models.ChargeRequest
		customer    models.CustomerInput
	)

	cmd := &cobra.Command{
		Use:   "charge",
		Short: "Create one charge and print the result as JSON",
		Example: `  mxcheckout charge --processor intents --method cash_voucher --amount 150.00 --reference APP-1
  mxcheckout charge --processor charges --method card --amount 99.90 --token tok_visa --reference APP-2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			req.Amount = d
			if customer.Email != "" || customer.Name != "" {
				req.Customer = &customer
			}

			registry, err := newRegistry()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			res, err := registry.Charge(ctx, models.ProcessorID(processorID), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&processorID, "processor", "p", string(models.ProcessorIntents), "processor id: charges or intents")
	f.StringVarP(&amount, "amount", "a", "", "amount in major units, e.g. 150.00")
	f.StringVar(&req.Currency, "currency", models.DefaultCurrency, "ISO 4217 currency")
	f.StringVarP((*string)(&req.Method), "method", "m", string(models.MethodCashVoucher), "card, cash_voucher or bank_transfer")
	f.StringVarP(&req.ApplicationReferenceID, "reference", "r", "", "application reference id")
	f.StringVar(&req.Description, "description", "", "charge description")
	f.StringVar(&req.CustomerID, "customer-id", "", "processor customer id")
	f.StringVar(&customer.Name, "customer-name", "", "customer name for billing details")
	f.StringVar(&customer.Email, "customer-email", "", "customer email for billing details")
	f.StringVar(&req.PaymentToken, "token", "", "card token (card only)")
	f.StringVar(&req.IdempotencyKey, "idempotency-key", "", "reuse a key to replay a charge")
	f.DurationVar(&timeout, "timeout", 60*time.Second, "overall deadline")
	cmd.MarkFlagRequired("amount")
	cmd.MarkFlagRequired("reference")

	return cmd
}

func lookupCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "lookup <processor> <transaction-id>",
		Short: "Fetch a charge's current state from the processor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := newRegistry()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			res, err := registry.LookupCharge(ctx, models.ProcessorID(args[0]), args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
