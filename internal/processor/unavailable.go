package processor

import (
	"context"

	"github.com/alovak/mxcheckout/checkout/models"
)

// Unavailable is the adapter handed out after initialization failed. Every
// operation fails with ErrUnavailable and the original cause.
type Unavailable struct {
	id      models.ProcessorID
	methods []models.Method
	cause   error
}

func NewUnavailable(id models.ProcessorID, methods []models.Method, cause error) *Unavailable {
	return &Unavailable{id: id, methods: methods, cause: cause}
}

func (u *Unavailable) ID() models.ProcessorID { return u.id }

func (u *Unavailable) SupportedMethods() []models.Method { return u.methods }

func (u *Unavailable) Cause() error { return u.cause }

func (u *Unavailable) CreateCustomer(context.Context, models.CustomerInput, string) (*models.Customer, error) {
	return nil, unavailable(u.id, "create_customer", u.cause)
}

func (u *Unavailable) FindCustomerByEmail(context.Context, string) (*models.Customer, error) {
	return nil, unavailable(u.id, "find_customer", u.cause)
}

func (u *Unavailable) CreateCardCharge(context.Context, models.ChargeRequest) (*models.ChargeResult, error) {
	return nil, unavailable(u.id, "create_card_charge", u.cause)
}

func (u *Unavailable) CreateCashVoucherCharge(context.Context, models.ChargeRequest) (*models.ChargeResult, error) {
	return nil, unavailable(u.id, "create_cash_voucher_charge", u.cause)
}

func (u *Unavailable) CreateBankTransferCharge(context.Context, models.ChargeRequest) (*models.ChargeResult, error) {
	return nil, unavailable(u.id, "create_bank_transfer_charge", u.cause)
}

func (u *Unavailable) GetCharge(context.Context, string) (*models.ChargeResult, error) {
	return nil, unavailable(u.id, "get_charge", u.cause)
}
