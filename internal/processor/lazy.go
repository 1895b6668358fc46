package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alovak/mxcheckout/checkout/models"
	"golang.org/x/exp/slog"
)

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// InitFunc constructs the underlying adapter. It is called at most once per
// generation no matter how many callers arrive concurrently.
type InitFunc func(ctx context.Context) (Adapter, error)

const DefaultInitTimeout = 10 * time.Second

// flight is one initialization attempt; every caller that arrives while it
// runs waits on done and gets the same adapter.
type flight struct {
	done    chan struct{}
	adapter Adapter
}

// Lazy defers adapter construction to first use. A failed initialization
// leaves an Unavailable adapter in place until Reset.
type Lazy struct {
	id      models.ProcessorID
	methods []models.Method
	init    InitFunc
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	current *flight
}

type LazyOption func(*Lazy)

func WithInitTimeout(d time.Duration) LazyOption {
	return func(l *Lazy) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func NewLazy(logger *slog.Logger, id models.ProcessorID, methods []models.Method, init InitFunc, opts ...LazyOption) *Lazy {
	l := &Lazy{
		id:      id,
		methods: methods,
		init:    init,
		timeout: DefaultInitTimeout,
		logger:  logger.With(slog.String("processor", string(id))),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Lazy) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Warm starts initialization, if needed, and waits for its outcome.
func (l *Lazy) Warm(ctx context.Context) (State, error) {
	a, err := l.resolve(ctx)
	if err != nil {
		return l.State(), err
	}
	if u, ok := a.(*Unavailable); ok {
		return StateFailed, unavailable(l.id, "initialize", u.Cause())
	}
	return StateReady, nil
}

// Reset returns to Uninitialized so the next caller initializes again. An
// in-flight initialization still completes for the callers waiting on it.
// Meant for test isolation.
func (l *Lazy) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateUninitialized
	l.current = nil
}

func (l *Lazy) resolve(ctx context.Context) (Adapter, error) {
	l.mu.Lock()
	f := l.current
	if f == nil {
		f = &flight{done: make(chan struct{})}
		l.current = f
		l.state = StateInitializing
		go l.initialize(f)
	}
	l.mu.Unlock()

	select {
	case <-f.done:
		return f.adapter, nil
	case <-ctx.Done():
		return nil, unavailable(l.id, "initialize", ctx.Err())
	}
}

// initialize runs detached from the first caller's context so a caller giving
// up does not fail everyone else waiting on the same flight.
func (l *Lazy) initialize(f *flight) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	start := time.Now()
	a, err := l.construct(ctx)

	state := StateReady
	if err != nil {
		state = StateFailed
		a = NewUnavailable(l.id, l.methods, err)
		l.logger.Error("processor initialization failed; calls will fail fast", slog.Any("err", err))
		initializationsTotal.WithLabelValues(string(l.id), "failed").Inc()
	} else {
		l.logger.Info("processor initialized", slog.Duration("took", time.Since(start)))
		initializationsTotal.WithLabelValues(string(l.id), "ready").Inc()
	}

	f.adapter = a
	l.mu.Lock()
	if l.current == f {
		l.state = state
	}
	l.mu.Unlock()
	close(f.done)
}

func (l *Lazy) construct(ctx context.Context) (a Adapter, err error) {
	defer func() {
		if r := recover(); r != nil {
			a, err = nil, fmt.Errorf("initializer panicked: %v", r)
		}
	}()
	a, err = l.init(ctx)
	if err == nil && a == nil {
		err = fmt.Errorf("initializer returned no adapter")
	}
	return a, err
}

func (l *Lazy) ID() models.ProcessorID { return l.id }

func (l *Lazy) SupportedMethods() []models.Method { return l.methods }

func (l *Lazy) CreateCustomer(ctx context.Context, in models.CustomerInput, idempotencyKey string) (*models.Customer, error) {
	a, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return a.CreateCustomer(ctx, in, idempotencyKey)
}

func (l *Lazy) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	a, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return a.FindCustomerByEmail(ctx, email)
}

func (l *Lazy) CreateCardCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error) {
	a, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return a.CreateCardCharge(ctx, req)
}

func (l *Lazy) CreateCashVoucherCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error) {
	a, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return a.CreateCashVoucherCharge(ctx, req)
}

func (l *Lazy) CreateBankTransferCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error) {
	a, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}
	bt, ok := a.(BankTransferer)
	if !ok {
		return nil, Unsupported(l.id, models.MethodBankTransfer)
	}
	return bt.CreateBankTransferCharge(ctx, req)
}

func (l *Lazy) GetCharge(ctx context.Context, externalTransactionID string) (*models.ChargeResult, error) {
	a, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return a.GetCharge(ctx, externalTransactionID)
}
