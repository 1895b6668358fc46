package checkout_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alovak/mxcheckout/checkout"
	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/alovak/mxcheckout/internal/credentials"
	"github.com/alovak/mxcheckout/internal/processor"
	"github.com/alovak/mxcheckout/internal/processor/fake"
	"github.com/alovak/mxcheckout/internal/refgen"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

var testCredentials = credentials.StaticSource{
	models.ProcessorCharges: {Processor: models.ProcessorCharges, PublicKey: "key_test_pub_0000001111", PrivateKey: "key_test_9f8e7d6c5b4a39281706abcd"},
	models.ProcessorIntents: {Processor: models.ProcessorIntents, PublicKey: "pk_test_51Habc2222222222222", PrivateKey: "sk_test_51Habc1111111111111"},
}

type env struct {
	router  chi.Router
	charges *fake.Charges
	intents *fake.Intents
	repo    *checkout.Repository
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T, chargesOpts []fake.Option, intentsOpts ...fake.Option) *env {
	t.Helper()

	e := &env{
		charges: fake.NewCharges(chargesOpts...),
		intents: fake.NewIntents(intentsOpts...),
		repo:    checkout.NewRepository(),
	}
	chargesSrv := httptest.NewServer(e.charges)
	t.Cleanup(chargesSrv.Close)
	intentsSrv := httptest.NewServer(e.intents)
	t.Cleanup(intentsSrv.Close)

	cfg := checkout.DefaultConfig()
	cfg.ChargesBaseURL = chargesSrv.URL
	cfg.IntentsBaseURL = intentsSrv.URL

	logger := discardLogger()
	registry := checkout.NewRegistry(logger, cfg, testCredentials)
	api := checkout.NewAPI(checkout.NewService(logger, registry, e.repo))

	e.router = chi.NewRouter()
	api.AppendRoutes(e.router)
	return e
}

func (e *env) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestCreateCharge(t *testing.T) {
	t.Run("cash voucher on charges", func(t *testing.T) {
		e := newEnv(t, nil)

		w := e.do(t, http.MethodPost, "/charges", map[string]any{
			"processor":                "charges",
			"amount":                   "150.00",
			"currency":                 "mxn",
			"method":                   "cash_voucher",
			"description":              "permit fee",
			"application_reference_id": "APP-1",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		res := decodeBody[models.ChargeResult](t, w)
		require.Equal(t, models.StatusAwaitingPayment, res.Status)
		require.Equal(t, int64(15000), res.AmountMinor)
		require.True(t, refgen.ValidLuhn(res.VoucherReference), res.VoucherReference)

		w = e.do(t, http.MethodGet, "/charges?application_reference_id=APP-1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		records := decodeBody[[]models.ChargeRecord](t, w)
		require.Len(t, records, 1)
		require.Equal(t, res.ExternalTransactionID, records[0].ExternalTransactionID)
		require.Regexp(t, `^cash_voucher-`, records[0].IdempotencyKey)
	})

	t.Run("bank transfer on intents", func(t *testing.T) {
		e := newEnv(t, nil)

		w := e.do(t, http.MethodPost, "/charges", map[string]any{
			"processor":                "intents",
			"amount":                   2500,
			"method":                   "bank_transfer",
			"application_reference_id": "APP-2",
			"customer":                 map[string]string{"name": "Ana", "email": "ana@example.com"},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		res := decodeBody[models.ChargeResult](t, w)
		require.True(t, refgen.ValidCLABE(res.BankReference), res.BankReference)
		require.Equal(t, "MXN", res.Currency)
	})

	t.Run("idempotency key header replays the charge", func(t *testing.T) {
		e := newEnv(t, nil)
		body := map[string]any{
			"processor":                "charges",
			"amount":                   "99.90",
			"method":                   "cash_voucher",
			"application_reference_id": "APP-3",
		}

		first := decodeBody[models.ChargeResult](t, e.do(t, http.MethodPost, "/charges", body, "Idempotency-Key", "order-3"))
		second := decodeBody[models.ChargeResult](t, e.do(t, http.MethodPost, "/charges", body, "Idempotency-Key", "order-3"))

		require.Equal(t, first.ExternalTransactionID, second.ExternalTransactionID)
		require.Equal(t, 1, e.charges.ChargeCount())

		records := decodeBody[[]models.ChargeRecord](t, e.do(t, http.MethodGet, "/charges?application_reference_id=APP-3", nil))
		require.Len(t, records, 1)
		require.Equal(t, "order-3", records[0].IdempotencyKey)
	})

	t.Run("error mapping", func(t *testing.T) {
		tests := []struct {
			name   string
			env    func(t *testing.T) *env
			body   map[string]any
			status int
		}{
			{
				name:   "non-positive amount",
				body:   map[string]any{"processor": "charges", "amount": "0", "method": "cash_voucher", "application_reference_id": "A"},
				status: http.StatusUnprocessableEntity,
			},
			{
				name:   "unknown processor",
				body:   map[string]any{"processor": "paypal", "amount": "10", "method": "cash_voucher", "application_reference_id": "A"},
				status: http.StatusUnprocessableEntity,
			},
			{
				name:   "bank transfer on charges",
				body:   map[string]any{"processor": "charges", "amount": "10", "method": "bank_transfer", "application_reference_id": "A"},
				status: http.StatusUnprocessableEntity,
			},
			{
				name:   "card declined",
				body:   map[string]any{"processor": "intents", "amount": "10", "method": "card", "payment_token": fake.DeclinedToken, "application_reference_id": "A"},
				status: http.StatusPaymentRequired,
			},
			{
				name: "voucher without reference",
				env: func(t *testing.T) *env {
					return newEnv(t, []fake.Option{fake.WithoutReference()})
				},
				body:   map[string]any{"processor": "charges", "amount": "10", "method": "cash_voucher", "application_reference_id": "A"},
				status: http.StatusBadGateway,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				e := newEnv(t, nil)
				if tt.env != nil {
					e = tt.env(t)
				}
				w := e.do(t, http.MethodPost, "/charges", tt.body)
				require.Equal(t, tt.status, w.Code, w.Body.String())
				require.NotEmpty(t, decodeBody[map[string]any](t, w)["error"])
			})
		}
	})
}

func TestGetChargeRefreshesRecord(t *testing.T) {
	e := newEnv(t, nil)

	created := decodeBody[models.ChargeResult](t, e.do(t, http.MethodPost, "/charges", map[string]any{
		"processor":                "charges",
		"amount":                   "150",
		"method":                   "cash_voucher",
		"application_reference_id": "APP-9",
	}))
	require.True(t, e.charges.MarkPaid(created.ExternalTransactionID))

	w := e.do(t, http.MethodGet, "/charges/charges/"+created.ExternalTransactionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.StatusPaid, decodeBody[models.ChargeResult](t, w).Status)

	records := decodeBody[[]models.ChargeRecord](t, e.do(t, http.MethodGet, "/charges?application_reference_id=APP-9", nil))
	require.Len(t, records, 1)
	require.Equal(t, models.StatusPaid, records[0].Status)

	w = e.do(t, http.MethodGet, "/charges/charges/ch_missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/charges", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestWebhookReconciles(t *testing.T) {
	e := newEnv(t, nil)

	created := decodeBody[models.ChargeResult](t, e.do(t, http.MethodPost, "/charges", map[string]any{
		"processor":                "intents",
		"amount":                   "300",
		"method":                   "cash_voucher",
		"application_reference_id": "APP-5",
	}))
	require.Equal(t, models.StatusAwaitingPayment, created.Status)
	require.True(t, e.intents.MarkPaid(created.ExternalTransactionID))

	// the payload's status is ignored; the processor is asked
	w := e.do(t, http.MethodPost, "/webhooks/intents", map[string]any{
		"type": "payment_intent.canceled",
		"data": map[string]any{"object": map[string]any{"id": created.ExternalTransactionID, "status": "canceled"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decodeBody[models.ChargeRecord](t, w)
	require.Equal(t, models.StatusPaid, rec.Status)
	require.Equal(t, "APP-5", rec.ApplicationReferenceID)

	w = e.do(t, http.MethodPost, "/webhooks/intents", map[string]any{"id": "pi_unknown"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/webhooks/intents", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCustomers(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodPost, "/customers", map[string]any{
		"processor": "intents",
		"name":      "Luis",
		"email":     "luis@example.com",
	}, "Idempotency-Key", "customer-luis")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[models.Customer](t, w)
	require.NotEmpty(t, created.ExternalCustomerID)

	w = e.do(t, http.MethodGet, "/customers?processor=intents&email=luis@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, created.ExternalCustomerID, decodeBody[models.Customer](t, w).ExternalCustomerID)

	w = e.do(t, http.MethodGet, "/customers?processor=charges&email=luis@example.com", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/customers", map[string]any{"processor": "charges", "name": "No Email"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestProcessors(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodGet, "/processors", nil)
	require.Equal(t, http.StatusOK, w.Code)

	infos := decodeBody[[]processor.ProcessorInfo](t, w)
	require.Len(t, infos, 2)
	require.Equal(t, models.ProcessorCharges, infos[0].ID)
	require.Equal(t, "uninitialized", infos[0].State)
	require.Equal(t, "key_test_pub_0000001111", infos[0].PublicKey)
	require.Contains(t, infos[1].Methods, models.MethodBankTransfer)
}
