package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type ProcessorID string

const (
	// ProcessorCharges is the single-call charges API. Voucher references come
	// back synchronously on the charge.
	ProcessorCharges ProcessorID = "charges"
	// ProcessorIntents is the payment intents API. Cash and bank transfer go
	// through create, attach method and confirm.
	ProcessorIntents ProcessorID = "intents"
)

type Method string

const (
	MethodCard         Method = "card"
	MethodCashVoucher  Method = "cash_voucher"
	MethodBankTransfer Method = "bank_transfer"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCard, MethodCashVoucher, MethodBankTransfer:
		return true
	}
	return false
}

// Status is the canonical charge status shared by every processor.
type Status string

const (
	StatusPending         Status = "pending"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusProcessing      Status = "processing"
	StatusPaid            Status = "paid"
	StatusFailed          Status = "failed"
	StatusCanceled        Status = "canceled"
	StatusExpired         Status = "expired"
)

// Final reports whether no further transition is expected from the processor.
func (s Status) Final() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

const DefaultCurrency = "MXN"

type ChargeRequest struct {
	Amount                 decimal.Decimal `json:"amount"`
	Currency               string          `json:"currency"`
	Method                 Method          `json:"method"`
	CustomerID             string          `json:"customer_id,omitempty"`
	Customer               *CustomerInput  `json:"customer,omitempty"`
	Description            string          `json:"description"`
	ApplicationReferenceID string          `json:"application_reference_id"`
	IdempotencyKey         string          `json:"idempotency_key,omitempty"`
	// PaymentToken is the tokenized card produced by the processor's front end
	// library. Required for card charges.
	PaymentToken      string `json:"payment_token,omitempty"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
}

// NextAction describes what the customer still has to do to complete payment.
type NextAction struct {
	Type             string     `json:"type"`
	VoucherReference string     `json:"voucher_reference,omitempty"`
	HostedURL        string     `json:"hosted_url,omitempty"`
	BankReference    string     `json:"bank_reference,omitempty"`
	BankName         string     `json:"bank_name,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

type ChargeResult struct {
	ProcessorID           ProcessorID     `json:"processor_id"`
	ExternalTransactionID string          `json:"external_transaction_id"`
	Status                Status          `json:"status"`
	ProcessorStatus       string          `json:"processor_status"`
	Method                Method          `json:"method"`
	AmountMinor           int64           `json:"amount_minor"`
	Currency              string          `json:"currency"`
	VoucherReference      string          `json:"voucher_reference,omitempty"`
	VoucherExpiresAt      *time.Time      `json:"voucher_expires_at,omitempty"`
	BankReference         string          `json:"bank_reference,omitempty"`
	NextActionRequired    *NextAction     `json:"next_action_required,omitempty"`
	Raw                   json.RawMessage `json:"raw,omitempty"`
}
