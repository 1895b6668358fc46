// Package processor holds the contract every payment processor adapter
// implements and the controllers shared by them: customer-reference fallback,
// lazy single-flight initialization and the registry callers charge through.
package processor

import (
	"context"

	"github.com/alovak/mxcheckout/checkout/models"
	"golang.org/x/exp/slices"
)

// Adapter wraps one external payment processor.
type Adapter interface {
	ID() models.ProcessorID
	SupportedMethods() []models.Method

	CreateCustomer(ctx context.Context, in models.CustomerInput, idempotencyKey string) (*models.Customer, error)
	// FindCustomerByEmail returns nil, nil when no customer matches or the
	// processor answers 404. Any other failure is returned.
	FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)

	CreateCardCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error)
	CreateCashVoucherCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error)
	GetCharge(ctx context.Context, externalTransactionID string) (*models.ChargeResult, error)
}

// BankTransferer is implemented by adapters that can create bank transfer
// charges. Its absence is a capability gap.
type BankTransferer interface {
	CreateBankTransferCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error)
}

func SupportsMethod(a Adapter, m models.Method) bool {
	return slices.Contains(a.SupportedMethods(), m)
}

// Dispatch routes req to the adapter operation for its method.
func Dispatch(ctx context.Context, a Adapter, req models.ChargeRequest) (*models.ChargeResult, error) {
	if !SupportsMethod(a, req.Method) {
		return nil, Unsupported(a.ID(), req.Method)
	}

	switch req.Method {
	case models.MethodCard:
		return a.CreateCardCharge(ctx, req)
	case models.MethodCashVoucher:
		return a.CreateCashVoucherCharge(ctx, req)
	case models.MethodBankTransfer:
		bt, ok := a.(BankTransferer)
		if !ok {
			return nil, Unsupported(a.ID(), req.Method)
		}
		return bt.CreateBankTransferCharge(ctx, req)
	}
	return nil, Unsupported(a.ID(), req.Method)
}
