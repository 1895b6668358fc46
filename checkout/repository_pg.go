package checkout

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alovak/mxcheckout/checkout/models"
)

//go:embed schema.sql
var schema string

// NewPGRepository constructs a db-backed repository.
func NewPGRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Migrate creates the checkout schema when it does not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

const chargeColumns = `id, processor_id, external_transaction_id, application_reference_id, idempotency_key,
	method, amount_minor, currency, status, voucher_reference, bank_reference, raw, created_at, updated_at`

func (r *Repository) pgSaveCharge(ctx context.Context, rec *models.ChargeRecord) error {
	var raw any
	if len(rec.Raw) > 0 {
		raw = string(rec.Raw)
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO checkout.charges(`+chargeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (processor_id, external_transaction_id) DO UPDATE SET
			status = EXCLUDED.status,
			voucher_reference = COALESCE(NULLIF(EXCLUDED.voucher_reference, ''), checkout.charges.voucher_reference),
			bank_reference = COALESCE(NULLIF(EXCLUDED.bank_reference, ''), checkout.charges.bank_reference),
			raw = COALESCE(EXCLUDED.raw, checkout.charges.raw),
			updated_at = EXCLUDED.updated_at
		RETURNING `+chargeColumns,
		rec.ID, string(rec.ProcessorID), rec.ExternalTransactionID, rec.ApplicationReferenceID, rec.IdempotencyKey,
		string(rec.Method), rec.AmountMinor, strings.ToUpper(rec.Currency), string(rec.Status),
		rec.VoucherReference, rec.BankReference, raw, rec.CreatedAt, rec.UpdatedAt,
	)

	stored, err := scanCharge(row)
	if isUniqueViolation(err) {
		return fmt.Errorf("record id %s exists: %w", rec.ID, ErrConflict)
	}
	if err != nil {
		return err
	}
	*rec = *stored
	return nil
}

func (r *Repository) pgGetCharge(ctx context.Context, processor models.ProcessorID, externalID string) (*models.ChargeRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+chargeColumns+` FROM checkout.charges
		WHERE processor_id=$1 AND external_transaction_id=$2`, string(processor), externalID)

	rec, err := scanCharge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (r *Repository) pgListByApplication(ctx context.Context, applicationReferenceID string) ([]*models.ChargeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+chargeColumns+` FROM checkout.charges
		WHERE application_reference_id=$1 ORDER BY created_at ASC`, applicationReferenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.ChargeRecord{}
	for rows.Next() {
		rec, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCharge(s scanner) (*models.ChargeRecord, error) {
	var (
		rec                       models.ChargeRecord
		processor, method, status string
		currency                  string
		raw                       []byte
	)
	err := s.Scan(&rec.ID, &processor, &rec.ExternalTransactionID, &rec.ApplicationReferenceID, &rec.IdempotencyKey,
		&method, &rec.AmountMinor, &currency, &status, &rec.VoucherReference, &rec.BankReference, &raw,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.ProcessorID = models.ProcessorID(processor)
	rec.Method = models.Method(method)
	rec.Status = models.Status(status)
	rec.Currency = strings.TrimSpace(currency)
	if len(raw) > 0 {
		rec.Raw = raw
	}
	return &rec, nil
}
