// Package intents adapts the payment intents API. Card charges are created
// and confirmed in one call; cash-voucher and bank-transfer charges go through
// the create, attach method and confirm sequence, and the consumer-facing
// reference only exists once the intent is confirmed.
package intents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/alovak/mxcheckout/internal/amount"
	"github.com/alovak/mxcheckout/internal/credentials"
	"github.com/alovak/mxcheckout/internal/expiry"
	"github.com/alovak/mxcheckout/internal/processor"
	"golang.org/x/exp/slog"
)

const (
	ID             = models.ProcessorIntents
	DefaultBaseURL = "https://api.intents.example.com"
)

var Methods = []models.Method{models.MethodCard, models.MethodCashVoucher, models.MethodBankTransfer}

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	VoucherTTLDays int
	HTTPClient     *http.Client
	// OnStage, if set, is told about every sequencer stage reached.
	OnStage StageHook
}

type Adapter struct {
	client *processor.Client
	cfg    Config
	logger *slog.Logger

	cash *sequencer
	bank *sequencer
}

func New(logger *slog.Logger, cfg Config, creds credentials.Credentials) (*Adapter, error) {
	if creds.PrivateKey == "" {
		return nil, fmt.Errorf("%w: %s secret key", credentials.ErrMissing, ID)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.VoucherTTLDays = expiry.TTLOrDefault(cfg.VoucherTTLDays)

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = processor.DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	client := processor.NewClient(logger, ID, cfg.BaseURL, hc)
	client.Authorize = processor.BearerAuth(creds.PrivateKey)
	client.DecodeError = decodeError

	logger = logger.With(slog.String("processor", string(ID)))
	logger.Info("intents adapter configured",
		slog.String("base_url", cfg.BaseURL),
		slog.Any("credentials", creds),
	)

	return &Adapter{
		client: client,
		cfg:    cfg,
		logger: logger,
		cash: &sequencer{
			client:         client,
			logger:         logger,
			onStage:        cfg.OnStage,
			method:         models.MethodCashVoucher,
			methodType:     typeCashVoucher,
			nextActionType: nextActionCashVoucher,
			ttlDays:        cfg.VoucherTTLDays,
		},
		bank: &sequencer{
			client:         client,
			logger:         logger,
			onStage:        cfg.OnStage,
			method:         models.MethodBankTransfer,
			methodType:     typeBankTransfer,
			nextActionType: nextActionBankTransfer,
		},
	}, nil
}

func NewLazy(logger *slog.Logger, cfg Config, source credentials.Source, opts ...processor.LazyOption) *processor.Lazy {
	return processor.NewLazy(logger, ID, Methods, func(ctx context.Context) (processor.Adapter, error) {
		creds, err := source.Credentials(ID)
		if err != nil {
			return nil, err
		}
		return New(logger, cfg, creds)
	}, opts...)
}

func (a *Adapter) ID() models.ProcessorID { return ID }

func (a *Adapter) SupportedMethods() []models.Method { return Methods }

func (a *Adapter) CreateCustomer(ctx context.Context, in models.CustomerInput, idempotencyKey string) (*models.Customer, error) {
	var out customerBody
	_, err := a.client.Do(ctx, processor.Call{
		Op:             "create_customer",
		Method:         http.MethodPost,
		Path:           "/v1/customers",
		Body:           customerBody{Name: in.Name, Email: in.Email, Phone: in.Phone},
		IdempotencyKey: idempotencyKey,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, processor.Incomplete(ID, "create_customer", "customer id missing", nil)
	}
	return out.toModel(), nil
}

func (a *Adapter) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	if email == "" {
		return nil, nil
	}

	var out struct {
		Data []customerBody `json:"data"`
	}
	_, err := a.client.Do(ctx, processor.Call{
		Op:     "find_customer",
		Method: http.MethodGet,
		Path:   "/v1/customers",
		Query:  url.Values{"email": {email}, "limit": {"1"}},
	}, &out)
	if err != nil {
		if processor.IsStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}

	for _, c := range out.Data {
		if strings.EqualFold(c.Email, email) {
			return c.toModel(), nil
		}
	}
	return nil, nil
}

// CreateCardCharge creates and confirms the intent in one call.
func (a *Adapter) CreateCardCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error) {
	return processor.WithCustomerFallback(ctx, a.logger, ID, req, CustomerRejected, a.cardCharge)
}

func (a *Adapter) cardCharge(ctx context.Context, req models.ChargeRequest, key string) (*models.ChargeResult, error) {
	minor, err := amount.ToMinor(req.Amount, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", processor.ErrInvalidRequest, err)
	}

	card := &cardData{Type: typeCard}
	card.Card.Token = req.PaymentToken
	create := intentCreate{
		Amount:             minor,
		Currency:           strings.ToLower(req.Currency),
		Description:        req.Description,
		Customer:           req.CustomerID,
		Metadata:           metadata(req),
		PaymentMethodTypes: []string{typeCard},
		PaymentMethodData:  card,
		Confirm:            true,
	}
	if req.DeviceFingerprint != "" {
		create.RadarOptions = &radarOptions{Session: req.DeviceFingerprint}
	}

	var out intentBody
	raw, err := a.client.Do(ctx, processor.Call{
		Op:             "create_intent",
		Method:         http.MethodPost,
		Path:           "/v1/payment_intents",
		Body:           create,
		IdempotencyKey: key,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, processor.Incomplete(ID, "create_intent", "payment intent id missing", raw)
	}
	if out.Status == "requires_action" && (out.NextAction == nil || out.NextAction.Type != nextActionRedirect) {
		return nil, processor.Incomplete(ID, "create_intent", "card requires an action the checkout cannot present", raw)
	}
	return out.toResult(raw), nil
}

func (a *Adapter) CreateCashVoucherCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error) {
	return processor.WithCustomerFallback(ctx, a.logger, ID, req, CustomerRejected, a.cash.run)
}

func (a *Adapter) CreateBankTransferCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error) {
	return processor.WithCustomerFallback(ctx, a.logger, ID, req, CustomerRejected, a.bank.run)
}

func (a *Adapter) GetCharge(ctx context.Context, externalTransactionID string) (*models.ChargeResult, error) {
	var out intentBody
	raw, err := a.client.Do(ctx, processor.Call{
		Op:     "get_intent",
		Method: http.MethodGet,
		Path:   "/v1/payment_intents/" + url.PathEscape(externalTransactionID),
	}, &out)
	if err != nil {
		if pe, ok := processor.AsError(err); ok && pe.StatusCode == http.StatusNotFound && pe.Code == "resource_missing" {
			return nil, processor.NotFound(ID, "get_intent", "payment intent "+externalTransactionID, pe)
		}
		return nil, err
	}
	return out.toResult(raw), nil
}

// CustomerRejected matches a 400 or 404 resource_missing error on the customer
// parameter.
func CustomerRejected(err error) bool {
	pe, ok := processor.AsError(err)
	if !ok || !errors.Is(err, processor.ErrRejected) {
		return false
	}
	if pe.StatusCode != http.StatusBadRequest && pe.StatusCode != http.StatusNotFound {
		return false
	}
	return pe.Code == "resource_missing" && pe.Param == "customer"
}
