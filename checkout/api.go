package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/alovak/mxcheckout/internal/processor"
	"github.com/go-chi/chi/v5"
)

// API is a HTTP API for the checkout service
type API struct {
	checkout *Service
}

func NewAPI(checkout *Service) *API {
	return &API{
		checkout: checkout,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/charges", func(r chi.Router) {
		r.Post("/", a.createCharge)
		r.Get("/", a.listCharges)
		r.Get("/{processor}/{id}", a.getCharge)
	})
	r.Route("/customers", func(r chi.Router) {
		r.Post("/", a.createCustomer)
		r.Get("/", a.findCustomer)
	})
	r.Get("/processors", a.listProcessors)
	r.Post("/webhooks/{processor}", a.webhook)
}

type createCharge struct {
	Processor models.ProcessorID `json:"processor"`
	models.ChargeRequest
}

func (a *API) createCharge(w http.ResponseWriter, r *http.Request) {
	var create createCharge
	if err := json.NewDecoder(r.Body).Decode(&create); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		create.IdempotencyKey = key
	}

	res, err := a.checkout.Charge(r.Context(), create.Processor, create.ChargeRequest)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

func (a *API) getCharge(w http.ResponseWriter, r *http.Request) {
	id := models.ProcessorID(chi.URLParam(r, "processor"))

	res, err := a.checkout.Lookup(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (a *API) listCharges(w http.ResponseWriter, r *http.Request) {
	records, err := a.checkout.ListCharges(r.Context(), r.URL.Query().Get("application_reference_id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

type createCustomer struct {
	Processor models.ProcessorID `json:"processor"`
	models.CustomerInput
}

func (a *API) createCustomer(w http.ResponseWriter, r *http.Request) {
	var create createCustomer
	if err := json.NewDecoder(r.Body).Decode(&create); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	customer, err := a.checkout.CreateCustomer(r.Context(), create.Processor, create.CustomerInput, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, customer)
}

func (a *API) findCustomer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	customer, err := a.checkout.FindCustomer(r.Context(), models.ProcessorID(q.Get("processor")), q.Get("email"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, customer)
}

func (a *API) listProcessors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.checkout.Processors())
}

// webhookEvent accepts both a bare {"id": ...} and the event envelope
// {"data": {"object": {"id": ...}}}. Anything else in the payload, the status
// included, is ignored.
type webhookEvent struct {
	ID   string `json:"id"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

func (e webhookEvent) transactionID() string {
	if e.Data.Object.ID != "" {
		return e.Data.Object.ID
	}
	return e.ID
}

func (a *API) webhook(w http.ResponseWriter, r *http.Request) {
	id := models.ProcessorID(chi.URLParam(r, "processor"))

	var event webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	txID := event.transactionID()
	if txID == "" {
		writeError(w, http.StatusBadRequest, errors.New("transaction id missing"))
		return
	}

	rec, err := a.checkout.Reconcile(r.Context(), id, txID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, processor.ErrInvalidRequest), errors.Is(err, processor.ErrUnsupportedMethod):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound), errors.Is(err, processor.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, processor.ErrIncompleteResult):
		return http.StatusBadGateway
	case errors.Is(err, processor.ErrUnavailable), errors.Is(err, processor.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, processor.ErrRejected):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error     string             `json:"error"`
	Processor models.ProcessorID `json:"processor,omitempty"`
	Code      string             `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	if pe, ok := processor.AsError(err); ok {
		resp.Processor = pe.Processor
		resp.Code = pe.Code
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
