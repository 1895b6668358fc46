package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/alovak/mxcheckout/internal/processor"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// Service is the checkout use case: it charges through the processor
// registry and keeps the charge ledger in the repository.
type Service struct {
	registry *processor.Registry
	repo     *Repository
	logger   *slog.Logger
}

func NewService(logger *slog.Logger, registry *processor.Registry, repo *Repository) *Service {
	return &Service{
		registry: registry,
		repo:     repo,
		logger:   logger.With(slog.String("component", "service")),
	}
}

// Charge creates the charge on processor id and records it. A failure to
// record is logged; the processor already holds the charge and the caller
// still gets the result.
func (s *Service) Charge(ctx context.Context, id models.ProcessorID, req models.ChargeRequest) (*models.ChargeResult, error) {
	req, err := processor.Normalize(req)
	if err != nil {
		return nil, err
	}

	res, err := s.registry.Charge(ctx, id, req)
	if err != nil {
		return nil, err
	}

	rec := models.NewChargeRecord(uuid.New().String(), req, res)
	if err := s.repo.SaveCharge(ctx, rec); err != nil {
		s.logger.Error("recording charge",
			slog.String("processor", string(id)),
			slog.String("external_transaction_id", res.ExternalTransactionID),
			slog.String("idempotency_key", req.IdempotencyKey),
			slog.Any("err", err),
		)
	}
	return res, nil
}

// Lookup fetches the current state of a transaction from the processor and
// refreshes the local record when there is one.
func (s *Service) Lookup(ctx context.Context, id models.ProcessorID, externalID string) (*models.ChargeResult, error) {
	res, err := s.registry.LookupCharge(ctx, id, externalID)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.GetCharge(ctx, id, externalID)
	switch {
	case errors.Is(err, ErrNotFound):
		return res, nil
	case err != nil:
		s.logger.Error("reading charge record", slog.String("external_transaction_id", externalID), slog.Any("err", err))
		return res, nil
	}

	refresh(rec, res)
	if err := s.repo.SaveCharge(ctx, rec); err != nil {
		s.logger.Error("refreshing charge record", slog.String("external_transaction_id", externalID), slog.Any("err", err))
	}
	return res, nil
}

// Reconcile handles a processor notification about externalID. The
// notification itself is not trusted: the state is re-read from the
// processor.
func (s *Service) Reconcile(ctx context.Context, id models.ProcessorID, externalID string) (*models.ChargeRecord, error) {
	rec, err := s.repo.GetCharge(ctx, id, externalID)
	if err != nil {
		return nil, fmt.Errorf("finding charge %s/%s: %w", id, externalID, err)
	}

	res, err := s.registry.LookupCharge(ctx, id, externalID)
	if err != nil {
		return nil, err
	}

	previous := rec.Status
	refresh(rec, res)
	if err := s.repo.SaveCharge(ctx, rec); err != nil {
		return nil, fmt.Errorf("updating charge: %w", err)
	}

	s.logger.Info("charge reconciled",
		slog.String("processor", string(id)),
		slog.String("external_transaction_id", externalID),
		slog.String("from", string(previous)),
		slog.String("to", string(rec.Status)),
	)
	return rec, nil
}

func refresh(rec *models.ChargeRecord, res *models.ChargeResult) {
	rec.Status = res.Status
	if res.VoucherReference != "" {
		rec.VoucherReference = res.VoucherReference
	}
	if res.BankReference != "" {
		rec.BankReference = res.BankReference
	}
	if len(res.Raw) > 0 {
		rec.Raw = res.Raw
	}
}

func (s *Service) ListCharges(ctx context.Context, applicationReferenceID string) ([]*models.ChargeRecord, error) {
	if applicationReferenceID == "" {
		return nil, fmt.Errorf("%w: application_reference_id is required", processor.ErrInvalidRequest)
	}
	return s.repo.ListByApplication(ctx, applicationReferenceID)
}

func (s *Service) CreateCustomer(ctx context.Context, id models.ProcessorID, in models.CustomerInput, idempotencyKey string) (*models.Customer, error) {
	return s.registry.CreateCustomer(ctx, id, in, idempotencyKey)
}

// FindCustomer returns ErrNotFound when the processor has no customer with
// that email.
func (s *Service) FindCustomer(ctx context.Context, id models.ProcessorID, email string) (*models.Customer, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", processor.ErrInvalidRequest)
	}
	c, err := s.registry.FindCustomerByEmail(ctx, id, email)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("customer %s on %s: %w", email, id, ErrNotFound)
	}
	return c, nil
}

func (s *Service) Processors() []processor.ProcessorInfo {
	return s.registry.Processors()
}
