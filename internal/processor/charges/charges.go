// Package charges adapts the single-call charges API. Card and cash-voucher
// charges are one POST each and the voucher reference comes back on the
// charge itself.
package charges

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
	ID             = models.ProcessorCharges
	DefaultBaseURL = "https://api.charges.example.com"
	// listLimit bounds the client-side customer scan.
	listLimit = 250
)

var Methods = []models.Method{models.MethodCard, models.MethodCashVoucher}

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	VoucherTTLDays int
	HTTPClient     *http.Client
}

type Adapter struct {
	client *processor.Client
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New builds the adapter from creds. It fails with a configuration error when
// the private key is missing.
func New(logger *slog.Logger, cfg Config, creds credentials.Credentials) (*Adapter, error) {
	if creds.PrivateKey == "" {
		return nil, fmt.Errorf("%w: %s private key", credentials.ErrMissing, ID)
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
	logger.Info("charges adapter configured",
		slog.String("base_url", cfg.BaseURL),
		slog.Any("credentials", creds),
	)

	return &Adapter{
		client: client,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// NewLazy defers credential lookup and construction to first use.
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
		Path:           "/customers",
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

// FindCustomerByEmail scans the customer list since the API cannot filter by
// email. The match is case-insensitive and the first hit wins.
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
		Path:   "/customers",
		Query:  url.Values{"limit": {fmt.Sprint(listLimit)}},
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

func (a *Adapter) CreateCardCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error) {
	return processor.WithCustomerFallback(ctx, a.logger, ID, req, CustomerRejected,
		func(ctx context.Context, req models.ChargeRequest, key string) (*models.ChargeResult, error) {
			return a.createCharge(ctx, req, key, paymentMethod{
				Type:    "card",
				TokenID: req.PaymentToken,
			})
		})
}

func (a *Adapter) CreateCashVoucherCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error) {
	deadline := expiry.VoucherDeadline(a.now(), a.cfg.VoucherTTLDays)
	return processor.WithCustomerFallback(ctx, a.logger, ID, req, CustomerRejected,
		func(ctx context.Context, req models.ChargeRequest, key string) (*models.ChargeResult, error) {
			res, err := a.createCharge(ctx, req, key, paymentMethod{
				Type:      "cash",
				ExpiresAt: deadline.Unix(),
			})
			if err != nil {
				return nil, err
			}
			if res.VoucherReference == "" {
				return nil, processor.Incomplete(ID, "create_cash_voucher_charge", "charge created without a voucher reference", res.Raw)
			}
			return res, nil
		})
}

func (a *Adapter) createCharge(ctx context.Context, req models.ChargeRequest, key string, pm paymentMethod) (*models.ChargeResult, error) {
	minor, err := amount.ToMinor(req.Amount, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", processor.ErrInvalidRequest, err)
	}

	body := chargeBody{
		Amount:            minor,
		Currency:          req.Currency,
		Description:       req.Description,
		ReferenceID:       req.ApplicationReferenceID,
		CustomerID:        req.CustomerID,
		DeviceFingerprint: req.DeviceFingerprint,
		PaymentMethod:     pm,
	}
	if req.Customer != nil {
		body.CustomerInfo = &customerBody{Name: req.Customer.Name, Email: req.Customer.Email, Phone: req.Customer.Phone}
	}

	var out chargeBody
	raw, err := a.client.Do(ctx, processor.Call{
		Op:             "create_charge",
		Method:         http.MethodPost,
		Path:           "/charges",
		Body:           body,
		IdempotencyKey: key,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, processor.Incomplete(ID, "create_charge", "charge id missing", raw)
	}
	return out.toResult(raw), nil
}

func (a *Adapter) GetCharge(ctx context.Context, externalTransactionID string) (*models.ChargeResult, error) {
	var out chargeBody
	raw, err := a.client.Do(ctx, processor.Call{
		Op:     "get_charge",
		Method: http.MethodGet,
		Path:   "/charges/" + url.PathEscape(externalTransactionID),
	}, &out)
	if err != nil {
		if pe, ok := processor.AsError(err); ok && pe.StatusCode == http.StatusNotFound {
			return nil, processor.NotFound(ID, "get_charge", "charge "+externalTransactionID, pe)
		}
		return nil, err
	}
	return out.toResult(raw), nil
}

// CustomerRejected matches the API refusing the customer_id reference: a 404
// or 422 whose type names a missing resource or invalid parameter and whose
// details point at customer_id.
func CustomerRejected(err error) bool {
	pe, ok := processor.AsError(err)
	if !ok || !errors.Is(err, processor.ErrRejected) {
		return false
	}
	if pe.StatusCode != http.StatusNotFound && pe.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	if pe.Type != "resource_not_found_error" && pe.Type != "parameter_validation_error" {
		return false
	}
	return pe.Param == "customer_id"
}
