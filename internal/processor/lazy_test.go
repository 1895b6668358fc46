package processor

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAdapter records calls and returns canned results.
type stubAdapter struct {
	id      models.ProcessorID
	methods []models.Method

	mu    sync.Mutex
	calls []models.ChargeRequest
	err   func(req models.ChargeRequest) error
}

func newStub(id models.ProcessorID, methods ...models.Method) *stubAdapter {
	if len(methods) == 0 {
		methods = []models.Method{models.MethodCard, models.MethodCashVoucher}
	}
	return &stubAdapter{id: id, methods: methods}
}

func (s *stubAdapter) ID() models.ProcessorID           { return s.id }
func (s *stubAdapter) SupportedMethods() []models.Method { return s.methods }

func (s *stubAdapter) CreateCustomer(_ context.Context, in models.CustomerInput, _ string) (*models.Customer, error) {
	return &models.Customer{ProcessorID: s.id, ExternalCustomerID: "cus_1", Name: in.Name, Email: in.Email}, nil
}

func (s *stubAdapter) FindCustomerByEmail(context.Context, string) (*models.Customer, error) {
	return nil, nil
}

func (s *stubAdapter) charge(req models.ChargeRequest) (*models.ChargeResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	if s.err != nil {
		if err := s.err(req); err != nil {
			return nil, err
		}
	}
	return &models.ChargeResult{ProcessorID: s.id, ExternalTransactionID: "tx_" + req.IdempotencyKey, Method: req.Method, Status: models.StatusPending}, nil
}

func (s *stubAdapter) CreateCardCharge(_ context.Context, req models.ChargeRequest) (*models.ChargeResult, error) {
	return s.charge(req)
}

func (s *stubAdapter) CreateCashVoucherCharge(_ context.Context, req models.ChargeRequest) (*models.ChargeResult, error) {
	return s.charge(req)
}

func (s *stubAdapter) GetCharge(_ context.Context, id string) (*models.ChargeResult, error) {
	return &models.ChargeResult{ProcessorID: s.id, ExternalTransactionID: id, Status: models.StatusPaid}, nil
}

func (s *stubAdapter) Calls() []models.ChargeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChargeRequest(nil), s.calls...)
}

func TestLazy_SingleFlight(t *testing.T) {
	var constructions int32
	release := make(chan struct{})

	lazy := NewLazy(discardLogger(), models.ProcessorIntents, []models.Method{models.MethodCard}, func(ctx context.Context) (Adapter, error) {
		atomic.AddInt32(&constructions, 1)
		<-release
		return newStub(models.ProcessorIntents, models.MethodCard), nil
	})
	require.Equal(t, StateUninitialized, lazy.State())

	const callers = 50
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := lazy.GetCharge(context.Background(), "pi_1")
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return lazy.State() == StateInitializing }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&constructions))
	require.Equal(t, StateReady, lazy.State())
}

func TestLazy_FailedInitFailsUniformly(t *testing.T) {
	var constructions int32
	cause := errors.New("bad credentials")
	lazy := NewLazy(discardLogger(), models.ProcessorCharges, []models.Method{models.MethodCard, models.MethodCashVoucher}, func(ctx context.Context) (Adapter, error) {
		atomic.AddInt32(&constructions, 1)
		return nil, cause
	})

	ctx := context.Background()
	_, err := lazy.CreateCardCharge(ctx, models.ChargeRequest{})
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, cause)
	require.Equal(t, StateFailed, lazy.State())

	_, err = lazy.FindCustomerByEmail(ctx, "a@example.com")
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = lazy.GetCharge(ctx, "ch_1")
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = lazy.CreateBankTransferCharge(ctx, models.ChargeRequest{})
	require.ErrorIs(t, err, ErrUnavailable)

	require.Equal(t, int32(1), atomic.LoadInt32(&constructions))

	state, err := lazy.Warm(ctx)
	require.Equal(t, StateFailed, state)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestLazy_PanicBecomesFailure(t *testing.T) {
	lazy := NewLazy(discardLogger(), models.ProcessorCharges, nil, func(ctx context.Context) (Adapter, error) {
		panic("sdk exploded")
	})

	_, err := lazy.GetCharge(context.Background(), "ch_1")
	require.ErrorIs(t, err, ErrUnavailable)
	require.Contains(t, err.Error(), "sdk exploded")
}

func TestLazy_ResetReinitializes(t *testing.T) {
	var constructions int32
	fail := true
	lazy := NewLazy(discardLogger(), models.ProcessorCharges, nil, func(ctx context.Context) (Adapter, error) {
		atomic.AddInt32(&constructions, 1)
		if fail {
			return nil, errors.New("down")
		}
		return newStub(models.ProcessorCharges), nil
	})

	ctx := context.Background()
	_, err := lazy.GetCharge(ctx, "ch_1")
	require.ErrorIs(t, err, ErrUnavailable)

	fail = false
	lazy.Reset()
	require.Equal(t, StateUninitialized, lazy.State())

	res, err := lazy.GetCharge(ctx, "ch_1")
	require.NoError(t, err)
	require.Equal(t, "ch_1", res.ExternalTransactionID)
	require.Equal(t, int32(2), atomic.LoadInt32(&constructions))
	require.Equal(t, StateReady, lazy.State())
}

func TestLazy_WaiterHonoursOwnContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	lazy := NewLazy(discardLogger(), models.ProcessorIntents, nil, func(ctx context.Context) (Adapter, error) {
		<-release
		return newStub(models.ProcessorIntents), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := lazy.GetCharge(ctx, "pi_1")
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, StateInitializing, lazy.State())
}

func TestLazy_InitTimeout(t *testing.T) {
	lazy := NewLazy(discardLogger(), models.ProcessorIntents, nil, func(ctx context.Context) (Adapter, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, WithInitTimeout(10*time.Millisecond))

	_, err := lazy.GetCharge(context.Background(), "pi_1")
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, StateFailed, lazy.State())
}

func TestLazy_BankTransferCapabilityGap(t *testing.T) {
	lazy := NewLazy(discardLogger(), models.ProcessorCharges, nil, func(ctx context.Context) (Adapter, error) {
		return newStub(models.ProcessorCharges), nil
	})

	_, err := lazy.CreateBankTransferCharge(context.Background(), models.ChargeRequest{})
	require.ErrorIs(t, err, ErrUnsupportedMethod)
}
