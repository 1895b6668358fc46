package models

import (
	"encoding/json"
	"time"
)

// ChargeRecord is the checkout's canonical order state for one processor
// transaction.
type ChargeRecord struct {
	ID                     string          `json:"id"`
	ProcessorID            ProcessorID     `json:"processor_id"`
	ExternalTransactionID  string          `json:"external_transaction_id"`
	ApplicationReferenceID string          `json:"application_reference_id"`
	IdempotencyKey         string          `json:"idempotency_key"`
	Method                 Method          `json:"method"`
	AmountMinor            int64           `json:"amount_minor"`
	Currency               string          `json:"currency"`
	Status                 Status          `json:"status"`
	VoucherReference       string          `json:"voucher_reference,omitempty"`
	BankReference          string          `json:"bank_reference,omitempty"`
	Raw                    json.RawMessage `json:"raw,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

func NewChargeRecord(id string, req ChargeRequest, res *ChargeResult) *ChargeRecord {
	return &ChargeRecord{
		ID:                     id,
		ProcessorID:            res.ProcessorID,
		ExternalTransactionID:  res.ExternalTransactionID,
		ApplicationReferenceID: req.ApplicationReferenceID,
		IdempotencyKey:         req.IdempotencyKey,
		Method:                 res.Method,
		AmountMinor:            res.AmountMinor,
		Currency:               res.Currency,
		Status:                 res.Status,
		VoucherReference:       res.VoucherReference,
		BankReference:          res.BankReference,
		Raw:                    res.Raw,
	}
}
