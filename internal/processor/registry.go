package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/alovak/mxcheckout/internal/amount"
	"github.com/alovak/mxcheckout/internal/idempotency"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// ProcessorInfo is what callers (and the front end) may know about a
// processor without touching it.
type ProcessorInfo struct {
	ID        models.ProcessorID `json:"id"`
	State     string             `json:"state"`
	Methods   []models.Method    `json:"methods"`
	PublicKey string             `json:"public_key,omitempty"`
}

type entry struct {
	adapter   Adapter
	publicKey string
}

// Registry is the entry point the checkout charges through. It validates
// requests, fills in defaults and routes them to the processor's adapter.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[models.ProcessorID]entry
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger,
		entries: make(map[models.ProcessorID]entry),
	}
}

// Register adds a. publicKey is exposed through Processors and may be empty.
func (r *Registry) Register(a Adapter, publicKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[a.ID()] = entry{adapter: a, publicKey: publicKey}
}

func (r *Registry) Adapter(id models.ProcessorID) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, id)
	}
	return e.adapter, nil
}

// Charge normalizes req and creates the charge on processor id.
func (r *Registry) Charge(ctx context.Context, id models.ProcessorID, req models.ChargeRequest) (*models.ChargeResult, error) {
	a, err := r.Adapter(id)
	if err != nil {
		return nil, err
	}

	req, err = Normalize(req)
	if err != nil {
		return nil, err
	}

	logger := r.logger.With(
		slog.String("processor", string(id)),
		slog.String("method", string(req.Method)),
		slog.String("application_reference_id", req.ApplicationReferenceID),
		slog.String("idempotency_key", req.IdempotencyKey),
	)

	res, err := Dispatch(ctx, a, req)
	if err != nil {
		logger.Error("charge failed", slog.Any("err", err))
		return nil, err
	}

	logger.Info("charge created",
		slog.String("external_transaction_id", res.ExternalTransactionID),
		slog.String("status", string(res.Status)),
	)
	return res, nil
}

// Normalize applies defaults and checks the request invariants that hold for
// every processor. The idempotency key is fixed here so that the caller can
// record it before the first network call.
func Normalize(req models.ChargeRequest) (models.ChargeRequest, error) {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = models.DefaultCurrency
	}

	if !req.Method.Valid() {
		return req, fmt.Errorf("%w: unknown method %q", ErrInvalidRequest, req.Method)
	}
	if _, err := amount.ToMinor(req.Amount, req.Currency); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.ApplicationReferenceID == "" {
		return req, fmt.Errorf("%w: application_reference_id is required", ErrInvalidRequest)
	}
	if req.Method == models.MethodCard && req.PaymentToken == "" {
		return req, fmt.Errorf("%w: payment_token is required for card charges", ErrInvalidRequest)
	}

	req.IdempotencyKey = idempotency.Base(string(req.Method), req.IdempotencyKey)
	return req, nil
}

func (r *Registry) LookupCharge(ctx context.Context, id models.ProcessorID, externalTransactionID string) (*models.ChargeResult, error) {
	a, err := r.Adapter(id)
	if err != nil {
		return nil, err
	}
	if externalTransactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrInvalidRequest)
	}
	return a.GetCharge(ctx, externalTransactionID)
}

func (r *Registry) CreateCustomer(ctx context.Context, id models.ProcessorID, in models.CustomerInput, idempotencyKey string) (*models.Customer, error) {
	a, err := r.Adapter(id)
	if err != nil {
		return nil, err
	}
	if in.Email == "" || in.Name == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalidRequest)
	}
	return a.CreateCustomer(ctx, in, idempotency.Base("customer", idempotencyKey))
}

func (r *Registry) FindCustomerByEmail(ctx context.Context, id models.ProcessorID, email string) (*models.Customer, error) {
	a, err := r.Adapter(id)
	if err != nil {
		return nil, err
	}
	return a.FindCustomerByEmail(ctx, email)
}

// Processors lists registered processors ordered by id.
func (r *Registry) Processors() []ProcessorInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := maps.Keys(r.entries)
	slices.Sort(ids)

	infos := make([]ProcessorInfo, 0, len(ids))
	for _, id := range ids {
		e := r.entries[id]
		info := ProcessorInfo{
			ID:        id,
			State:     StateReady.String(),
			Methods:   e.adapter.SupportedMethods(),
			PublicKey: e.publicKey,
		}
		switch a := e.adapter.(type) {
		case *Lazy:
			info.State = a.State().String()
		case *Unavailable:
			info.State = StateFailed.String()
		}
		infos = append(infos, info)
	}
	return infos
}

// Warm initializes every lazy adapter and returns the joined failures.
func (r *Registry) Warm(ctx context.Context) error {
	r.mu.RLock()
	lazies := make([]*Lazy, 0, len(r.entries))
	for _, e := range r.entries {
		if l, ok := e.adapter.(*Lazy); ok {
			lazies = append(lazies, l)
		}
	}
	r.mu.RUnlock()

	var errs []error
	for _, l := range lazies {
		if _, err := l.Warm(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset returns processor id to its uninitialized state. Test isolation only.
func (r *Registry) Reset(id models.ProcessorID) error {
	a, err := r.Adapter(id)
	if err != nil {
		return err
	}
	if l, ok := a.(*Lazy); ok {
		l.Reset()
	}
	return nil
}
