package processor

import (
	"context"

	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/alovak/mxcheckout/internal/idempotency"
	"golang.org/x/exp/slog"
)

// CustomerRejection reports whether err is the processor refusing the
// request's customer reference. Matching is processor specific.
type CustomerRejection func(err error) bool

// AttemptFunc issues one attempt of a charge with the given idempotency key.
type AttemptFunc[T any] func(ctx context.Context, req models.ChargeRequest, key string) (T, error)

// WithCustomerFallback runs call with the request's base key. If the request
// carried a customer id and the processor rejected that reference, it strips
// the customer id and runs call exactly once more with the derived key. Every
// other failure is returned as is.
func WithCustomerFallback[T any](ctx context.Context, logger *slog.Logger, id models.ProcessorID, req models.ChargeRequest, rejected CustomerRejection, call AttemptFunc[T]) (T, error) {
	key := idempotency.New(string(req.Method), req.IdempotencyKey)

	res, err := call(ctx, req, key.Base())
	if err == nil || req.CustomerID == "" || !rejected(err) || ctx.Err() != nil {
		return res, err
	}

	derived, ok := key.Fallback()
	if !ok {
		return res, err
	}

	logger.Warn("customer reference rejected; retrying once without it",
		slog.String("processor", string(id)),
		slog.String("method", string(req.Method)),
		slog.String("customer_id", req.CustomerID),
		slog.String("idempotency_key", derived),
		slog.Any("err", err),
	)
	fallbacksTotal.WithLabelValues(string(id), string(req.Method)).Inc()

	retry := req
	retry.CustomerID = ""
	retry.IdempotencyKey = derived
	return call(ctx, retry, derived)
}
