package charges

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/alovak/mxcheckout/internal/processor"
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

type paymentMethod struct {
	Type        string `json:"type"`
	TokenID     string `json:"token_id,omitempty"`
	Reference   string `json:"reference,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	ExpiresAt   int64  `json:"expires_at,omitempty"`
}

type chargeBody struct {
	ID                string        `json:"id,omitempty"`
	Status            string        `json:"status,omitempty"`
	Amount            int64         `json:"amount"`
	Currency          string        `json:"currency"`
	Description       string        `json:"description,omitempty"`
	ReferenceID       string        `json:"reference_id,omitempty"`
	CustomerID        string        `json:"customer_id,omitempty"`
	CustomerInfo      *customerBody `json:"customer_info,omitempty"`
	DeviceFingerprint string        `json:"device_fingerprint,omitempty"`
	PaymentMethod     paymentMethod `json:"payment_method"`
}

func (c chargeBody) method() models.Method {
	if c.PaymentMethod.Type == "cash" {
		return models.MethodCashVoucher
	}
	return models.MethodCard
}

func (c chargeBody) toResult(raw json.RawMessage) *models.ChargeResult {
	res := &models.ChargeResult{
		ProcessorID:           ID,
		ExternalTransactionID: c.ID,
		Status:                mapStatus(c.Status, c.method()),
		ProcessorStatus:       c.Status,
		Method:                c.method(),
		AmountMinor:           c.Amount,
		Currency:              strings.ToUpper(c.Currency),
		Raw:                   raw,
	}

	if res.Method == models.MethodCashVoucher {
		res.VoucherReference = c.PaymentMethod.Reference
		var expiresAt *time.Time
		if c.PaymentMethod.ExpiresAt > 0 {
			t := time.Unix(c.PaymentMethod.ExpiresAt, 0).UTC()
			expiresAt = &t
		}
		res.VoucherExpiresAt = expiresAt
		if res.Status == models.StatusAwaitingPayment {
			res.NextActionRequired = &models.NextAction{
				Type:             "pay_cash_voucher",
				VoucherReference: c.PaymentMethod.Reference,
				ExpiresAt:        expiresAt,
			}
		}
	}
	return res
}

func mapStatus(status string, method models.Method) models.Status {
	switch status {
	case "paid":
		return models.StatusPaid
	case "pending_payment":
		if method == models.MethodCashVoucher {
			return models.StatusAwaitingPayment
		}
		return models.StatusPending
	case "pre_authorized", "in_review":
		return models.StatusProcessing
	case "declined", "charged_back":
		return models.StatusFailed
	case "canceled", "refunded":
		return models.StatusCanceled
	case "expired":
		return models.StatusExpired
	}
	return models.StatusPending
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details []struct {
		Param   string `json:"param"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"details"`
}

func decodeError(status int, body []byte, e *processor.Error) {
	var out errorBody
	if err := json.Unmarshal(body, &out); err != nil {
		return
	}
	e.Type = out.Type
	e.Message = out.Message
	for _, d := range out.Details {
		if e.Code == "" {
			e.Code = d.Code
		}
		if d.Param != "" {
			e.Param = d.Param
			break
		}
	}
	if out.Type == "authentication_error" {
		e.Kind = processor.ErrConfiguration
	}
}
