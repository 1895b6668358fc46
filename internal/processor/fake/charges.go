package fake

import (
	"net/http"
	"strings"
	"time"

	"github.com/alovak/mxcheckout/internal/expiry"
	"github.com/alovak/mxcheckout/internal/refgen"
	"github.com/go-chi/chi/v5"
)

type chargesCustomer struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

type chargesPaymentMethod struct {
	Type        string `json:"type"`
	TokenID     string `json:"token_id,omitempty"`
	Reference   string `json:"reference,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	ExpiresAt   int64  `json:"expires_at,omitempty"`
	Last4       string `json:"last4,omitempty"`
}

type chargesCharge struct {
	ID                string               `json:"id"`
	Object            string               `json:"object"`
	Livemode          bool                 `json:"livemode"`
	Status            string               `json:"status"`
	Amount            int64                `json:"amount"`
	Currency          string               `json:"currency"`
	Description       string               `json:"description"`
	ReferenceID       string               `json:"reference_id"`
	CustomerID        string               `json:"customer_id,omitempty"`
	DeviceFingerprint string               `json:"device_fingerprint,omitempty"`
	PaymentMethod     chargesPaymentMethod `json:"payment_method"`
	CreatedAt         int64                `json:"created_at"`
	PaidAt            int64                `json:"paid_at,omitempty"`
}

type chargesDetail struct {
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type chargesError struct {
	Object  string          `json:"object"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Details []chargesDetail `json:"details,omitempty"`
}

func chargesFailure(typ, msg string, details ...chargesDetail) chargesError {
	return chargesError{Object: "error", Type: typ, Message: msg, Details: details}
}

// Charges is a double of the single-call charges API.
type Charges struct {
	*server

	customers map[string]*chargesCustomer
	charges   map[string]*chargesCharge
}

func NewCharges(opts ...Option) *Charges {
	f := &Charges{
		server:    newServer(opts),
		customers: make(map[string]*chargesCustomer),
		charges:   make(map[string]*chargesCharge),
	}

	f.router.Post("/customers", f.createCustomer)
	f.router.Get("/customers", f.listCustomers)
	f.router.Post("/charges", f.createCharge)
	f.router.Get("/charges/{id}", f.getCharge)

	return f
}

// AddCustomer seeds a customer with a fixed id.
func (f *Charges) AddCustomer(id, name, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[id] = &chargesCustomer{ID: id, Object: "customer", Name: name, Email: email, CreatedAt: time.Now().Unix()}
}

// MarkPaid simulates the customer paying at the store.
func (f *Charges) MarkPaid(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.charges[id]
	if !ok {
		return false
	}
	c.Status = "paid"
	c.PaidAt = time.Now().Unix()
	return true
}

// ChargeCount is the number of distinct charges created.
func (f *Charges) ChargeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.charges)
}

func (f *Charges) createCustomer(w http.ResponseWriter, r *http.Request) {
	var in chargesCustomer
	if err := decode(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, chargesFailure("parameter_validation_error", err.Error()))
		return
	}

	f.idempotent(w, r, func() (int, any) {
		if in.Email == "" || in.Name == "" {
			return http.StatusUnprocessableEntity, chargesFailure("parameter_validation_error", "name and email are required",
				chargesDetail{Param: "email", Code: "required", Message: "email is required"})
		}
		c := &chargesCustomer{
			ID:        newID("cus"),
			Object:    "customer",
			Name:      in.Name,
			Email:     in.Email,
			Phone:     in.Phone,
			CreatedAt: time.Now().Unix(),
		}
		f.customers[c.ID] = c
		return http.StatusOK, c
	})
}

// listCustomers ignores any filter; this API has no server-side search.
func (f *Charges) listCustomers(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	data := make([]*chargesCustomer, 0, len(f.customers))
	for _, c := range f.customers {
		data = append(data, c)
	}
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "has_more": false, "data": data})
}

func (f *Charges) createCharge(w http.ResponseWriter, r *http.Request) {
	var in chargesCharge
	if err := decode(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, chargesFailure("parameter_validation_error", err.Error()))
		return
	}

	f.idempotent(w, r, func() (int, any) {
		if in.Amount <= 0 {
			return http.StatusUnprocessableEntity, chargesFailure("parameter_validation_error", "amount must be positive",
				chargesDetail{Param: "amount", Code: "invalid", Message: "amount must be greater than 0"})
		}
		if in.CustomerID != "" {
			if _, ok := f.customers[in.CustomerID]; !ok || f.opts.rejectCustomers {
				return http.StatusNotFound, chargesFailure("resource_not_found_error", "customer not found",
					chargesDetail{Param: "customer_id", Code: "not_found", Message: "customer " + in.CustomerID + " was not found"})
			}
		}

		now := time.Now()
		c := &chargesCharge{
			ID:                newID("ch"),
			Object:            "charge",
			Amount:            in.Amount,
			Currency:          strings.ToUpper(in.Currency),
			Description:       in.Description,
			ReferenceID:       in.ReferenceID,
			CustomerID:        in.CustomerID,
			DeviceFingerprint: in.DeviceFingerprint,
			CreatedAt:         now.Unix(),
		}

		switch in.PaymentMethod.Type {
		case "card":
			if in.PaymentMethod.TokenID == "" {
				return http.StatusUnprocessableEntity, chargesFailure("parameter_validation_error", "token_id is required",
					chargesDetail{Param: "payment_method.token_id", Code: "required", Message: "token_id is required"})
			}
			if in.PaymentMethod.TokenID == DeclinedToken {
				return http.StatusPaymentRequired, chargesFailure("processing_error", "the card was declined",
					chargesDetail{Code: "card_declined", Message: "insufficient funds"})
			}
			c.Status = "paid"
			c.PaidAt = now.Unix()
			c.PaymentMethod = chargesPaymentMethod{Type: "card", Last4: "4242"}
		case "cash":
			expiresAt := in.PaymentMethod.ExpiresAt
			if expiresAt == 0 {
				expiresAt = expiry.VoucherDeadline(now, expiry.DefaultTTLDays).Unix()
			}
			reference := ""
			if !f.opts.omitReference {
				var err error
				if reference, err = refgen.Voucher(refgen.DefaultVoucherLen); err != nil {
					return http.StatusInternalServerError, chargesFailure("api_error", err.Error())
				}
			}
			c.Status = "pending_payment"
			c.PaymentMethod = chargesPaymentMethod{Type: "cash", Reference: reference, ServiceName: "OXXO", ExpiresAt: expiresAt}
		default:
			return http.StatusUnprocessableEntity, chargesFailure("parameter_validation_error", "unsupported payment method",
				chargesDetail{Param: "payment_method.type", Code: "invalid", Message: "type must be card or cash"})
		}

		f.charges[c.ID] = c
		return http.StatusOK, c
	})
}

func (f *Charges) getCharge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	f.mu.Lock()
	c, ok := f.charges[id]
	var snapshot chargesCharge
	if ok {
		snapshot = *c
	}
	f.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, chargesFailure("resource_not_found_error", "charge not found",
			chargesDetail{Param: "id", Code: "not_found", Message: "charge " + id + " was not found"}))
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
