package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/boltdb/bolt"
	"github.com/jackc/pgconn"
	"github.com/lib/pq"
)

var ErrNotFound = fmt.Errorf("not found")

var ErrConflict = fmt.Errorf("conflict")

// Repository keeps one ChargeRecord per (processor, external transaction id).
// It is backed by memory, postgres or a bolt file depending on the
// constructor used.
type Repository struct {
	mu      sync.RWMutex
	records map[string]*models.ChargeRecord

	db *sql.DB
	kv *bolt.DB

	now func() time.Time
}

func NewRepository() *Repository {
	return &Repository{
		records: make(map[string]*models.ChargeRecord),
		now:     time.Now,
	}
}

func recordKey(processor models.ProcessorID, externalID string) string {
	return string(processor) + ":" + externalID
}

// SaveCharge inserts rec or, when a record for the same transaction exists,
// updates its status, references and raw payload. The stored id and
// CreatedAt of an existing record win over the ones on rec.
func (r *Repository) SaveCharge(ctx context.Context, rec *models.ChargeRecord) error {
	if rec.ProcessorID == "" || rec.ExternalTransactionID == "" {
		return fmt.Errorf("record needs processor and external transaction id")
	}
	now := r.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	switch {
	case r.db != nil:
		return r.pgSaveCharge(ctx, rec)
	case r.kv != nil:
		return r.kvSaveCharge(rec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := recordKey(rec.ProcessorID, rec.ExternalTransactionID)
	if existing, ok := r.records[key]; ok {
		merge(existing, rec)
		*rec = *existing
		return nil
	}

	for _, other := range r.records {
		if other.ID == rec.ID {
			return fmt.Errorf("record id %s exists: %w", rec.ID, ErrConflict)
		}
	}

	stored := *rec
	r.records[key] = &stored
	return nil
}

// merge copies the fields that may change over a transaction's life.
func merge(dst, src *models.ChargeRecord) {
	dst.Status = src.Status
	if src.VoucherReference != "" {
		dst.VoucherReference = src.VoucherReference
	}
	if src.BankReference != "" {
		dst.BankReference = src.BankReference
	}
	if len(src.Raw) > 0 {
		dst.Raw = src.Raw
	}
	dst.UpdatedAt = src.UpdatedAt
}

func (r *Repository) GetCharge(ctx context.Context, processor models.ProcessorID, externalID string) (*models.ChargeRecord, error) {
	switch {
	case r.db != nil:
		return r.pgGetCharge(ctx, processor, externalID)
	case r.kv != nil:
		return r.kvGetCharge(processor, externalID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[recordKey(processor, externalID)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

// ListByApplication returns the records created for an application, oldest
// first.
func (r *Repository) ListByApplication(ctx context.Context, applicationReferenceID string) ([]*models.ChargeRecord, error) {
	var (
		out []*models.ChargeRecord
		err error
	)
	switch {
	case r.db != nil:
		return r.pgListByApplication(ctx, applicationReferenceID)
	case r.kv != nil:
		out, err = r.kvListByApplication(applicationReferenceID)
		if err != nil {
			return nil, err
		}
	default:
		r.mu.RLock()
		for _, rec := range r.records {
			if rec.ApplicationReferenceID == applicationReferenceID {
				cp := *rec
				out = append(out, &cp)
			}
		}
		r.mu.RUnlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if out == nil {
		out = []*models.ChargeRecord{}
	}
	return out, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	switch {
	case r.db != nil:
		return r.db.Close()
	case r.kv != nil:
		return r.kv.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
