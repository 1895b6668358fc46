package intents

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/alovak/mxcheckout/internal/processor"
)

const (
	typeCashVoucher  = "cash_voucher"
	typeBankTransfer = "bank_transfer"
	typeCard         = "card"

	nextActionCashVoucher  = "cash_voucher_display_details"
	nextActionBankTransfer = "display_bank_transfer_instructions"
	nextActionRedirect     = "redirect_to_url"
)

type customerBody struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

func (c customerBody) toModel() *models.Customer {
	return &models.Customer{
		ProcessorID:        ID,
		ExternalCustomerID: c.ID,
		Name:               c.Name,
		Email:              c.Email,
		Phone:              c.Phone,
	}
}

type billingDetails struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type paymentMethodBody struct {
	ID             string         `json:"id,omitempty"`
	Type           string         `json:"type"`
	BillingDetails billingDetails `json:"billing_details"`
}

type cardData struct {
	Type string `json:"type"`
	Card struct {
		Token string `json:"token"`
	} `json:"card"`
}

type intentCreate struct {
	Amount               int64             `json:"amount"`
	Currency             string            `json:"currency"`
	Description          string            `json:"description,omitempty"`
	Customer             string            `json:"customer,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	PaymentMethodTypes   []string          `json:"payment_method_types"`
	PaymentMethodData    *cardData         `json:"payment_method_data,omitempty"`
	PaymentMethodOptions *methodOptions    `json:"payment_method_options,omitempty"`
	RadarOptions         *radarOptions     `json:"radar_options,omitempty"`
	Confirm              bool              `json:"confirm,omitempty"`
}

type cashVoucherOptions struct {
	ExpiresAfterDays int `json:"expires_after_days"`
}

type methodOptions struct {
	CashVoucher *cashVoucherOptions `json:"cash_voucher,omitempty"`
}

type radarOptions struct {
	Session string `json:"session"`
}

type nextActionBody struct {
	Type                      string `json:"type"`
	CashVoucherDisplayDetails *struct {
		Number           string `json:"number"`
		ExpiresAt        int64  `json:"expires_at"`
		HostedVoucherURL string `json:"hosted_voucher_url"`
	} `json:"cash_voucher_display_details,omitempty"`
	DisplayBankTransferInstructions *struct {
		CLABE                 string `json:"clabe"`
		BankName              string `json:"bank_name"`
		Reference             string `json:"reference"`
		HostedInstructionsURL string `json:"hosted_instructions_url"`
	} `json:"display_bank_transfer_instructions,omitempty"`
	RedirectToURL *struct {
		URL string `json:"url"`
	} `json:"redirect_to_url,omitempty"`
}

type intentBody struct {
	ID                 string          `json:"id"`
	Status             string          `json:"status"`
	Amount             int64           `json:"amount"`
	Currency           string          `json:"currency"`
	Customer           string          `json:"customer"`
	PaymentMethod      string          `json:"payment_method"`
	PaymentMethodTypes []string        `json:"payment_method_types"`
	NextAction         *nextActionBody `json:"next_action"`
	CancellationReason string          `json:"cancellation_reason"`
	LastPaymentError   *struct {
		Code string `json:"code"`
	} `json:"last_payment_error"`
}

func (pi intentBody) method() models.Method {
	for _, t := range pi.PaymentMethodTypes {
		switch t {
		case typeCashVoucher:
			return models.MethodCashVoucher
		case typeBankTransfer:
			return models.MethodBankTransfer
		}
	}
	return models.MethodCard
}

func (pi intentBody) toResult(raw json.RawMessage) *models.ChargeResult {
	res := &models.ChargeResult{
		ProcessorID:           ID,
		ExternalTransactionID: pi.ID,
		Status:                mapStatus(pi),
		ProcessorStatus:       pi.Status,
		Method:                pi.method(),
		AmountMinor:           pi.Amount,
		Currency:              strings.ToUpper(pi.Currency),
		Raw:                   raw,
	}

	na := pi.NextAction
	if na == nil {
		return res
	}
	action := &models.NextAction{Type: na.Type}
	switch {
	case na.CashVoucherDisplayDetails != nil:
		d := na.CashVoucherDisplayDetails
		action.VoucherReference = d.Number
		action.HostedURL = d.HostedVoucherURL
		if d.ExpiresAt > 0 {
			t := time.Unix(d.ExpiresAt, 0).UTC()
			action.ExpiresAt = &t
		}
		res.VoucherReference = d.Number
		res.VoucherExpiresAt = action.ExpiresAt
	case na.DisplayBankTransferInstructions != nil:
		d := na.DisplayBankTransferInstructions
		action.BankReference = d.CLABE
		action.BankName = d.BankName
		action.HostedURL = d.HostedInstructionsURL
		res.BankReference = d.CLABE
	case na.RedirectToURL != nil:
		action.HostedURL = na.RedirectToURL.URL
	}
	res.NextActionRequired = action
	return res
}

func mapStatus(pi intentBody) models.Status {
	switch pi.Status {
	case "succeeded":
		return models.StatusPaid
	case "processing":
		return models.StatusProcessing
	case "requires_action":
		return models.StatusAwaitingPayment
	case "requires_payment_method":
		if pi.LastPaymentError != nil {
			return models.StatusFailed
		}
		return models.StatusPending
	case "requires_confirmation", "requires_capture":
		return models.StatusPending
	case "canceled":
		if pi.CancellationReason == "voucher_expired" || pi.CancellationReason == "abandoned" {
			return models.StatusExpired
		}
		return models.StatusCanceled
	}
	return models.StatusPending
}

type errorBody struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Param       string `json:"param"`
		Message     string `json:"message"`
	} `json:"error"`
}

func decodeError(status int, body []byte, e *processor.Error) {
	var out errorBody
	if err := json.Unmarshal(body, &out); err != nil {
		return
	}
	e.Type = out.Error.Type
	e.Code = out.Error.Code
	e.Param = out.Error.Param
	e.Message = out.Error.Message
	if out.Error.DeclineCode != "" {
		e.Message += " (" + out.Error.DeclineCode + ")"
	}
	if out.Error.Type == "authentication_error" {
		e.Kind = processor.ErrConfiguration
	}
}
