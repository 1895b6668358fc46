package fake

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alovak/mxcheckout/internal/expiry"
	"github.com/alovak/mxcheckout/internal/refgen"
	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slices"
)

type intentsCustomer struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Created int64  `json:"created"`
}

type intentsBillingDetails struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type intentsPaymentMethod struct {
	ID             string                `json:"id"`
	Object         string                `json:"object"`
	Type           string                `json:"type"`
	BillingDetails intentsBillingDetails `json:"billing_details"`
}

type intentsCashVoucher struct {
	Number           string `json:"number,omitempty"`
	ExpiresAt        int64  `json:"expires_at"`
	HostedVoucherURL string `json:"hosted_voucher_url"`
}

type intentsBankTransfer struct {
	CLABE                 string `json:"clabe,omitempty"`
	BankName              string `json:"bank_name"`
	Reference             string `json:"reference"`
	HostedInstructionsURL string `json:"hosted_instructions_url"`
}

type intentsNextAction struct {
	Type                            string               `json:"type"`
	CashVoucherDisplayDetails       *intentsCashVoucher  `json:"cash_voucher_display_details,omitempty"`
	DisplayBankTransferInstructions *intentsBankTransfer `json:"display_bank_transfer_instructions,omitempty"`
}

type intentsIntent struct {
	ID                 string             `json:"id"`
	Object             string             `json:"object"`
	Livemode           bool               `json:"livemode"`
	Status             string             `json:"status"`
	Amount             int64              `json:"amount"`
	AmountReceived     int64              `json:"amount_received"`
	Currency           string             `json:"currency"`
	Description        string             `json:"description"`
	Customer           string             `json:"customer,omitempty"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
	PaymentMethod      string             `json:"payment_method,omitempty"`
	PaymentMethodTypes []string           `json:"payment_method_types"`
	NextAction         *intentsNextAction `json:"next_action"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
	Created            int64              `json:"created"`

	expiresAfterDays int
}

type intentsCreate struct {
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	Description        string            `json:"description"`
	Customer           string            `json:"customer"`
	Metadata           map[string]string `json:"metadata"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	PaymentMethodData  *struct {
		Type string `json:"type"`
		Card struct {
			Token string `json:"token"`
		} `json:"card"`
	} `json:"payment_method_data"`
	PaymentMethodOptions struct {
		CashVoucher struct {
			ExpiresAfterDays int `json:"expires_after_days"`
		} `json:"cash_voucher"`
	} `json:"payment_method_options"`
	Confirm bool `json:"confirm"`
}

type intentsErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code,omitempty"`
	DeclineCode string `json:"decline_code,omitempty"`
	Param       string `json:"param,omitempty"`
	Message     string `json:"message"`
}

func intentsFailure(typ, code, param, msg string) map[string]intentsErrorBody {
	return map[string]intentsErrorBody{"error": {Type: typ, Code: code, Param: param, Message: msg}}
}

// Intents is a double of the payment intents API.
type Intents struct {
	*server

	customers map[string]*intentsCustomer
	methods   map[string]*intentsPaymentMethod
	intents   map[string]*intentsIntent
}

func NewIntents(opts ...Option) *Intents {
	f := &Intents{
		server:    newServer(opts),
		customers: make(map[string]*intentsCustomer),
		methods:   make(map[string]*intentsPaymentMethod),
		intents:   make(map[string]*intentsIntent),
	}

	f.router.Route("/v1", func(r chi.Router) {
		r.Post("/customers", f.createCustomer)
		r.Get("/customers", f.searchCustomers)
		r.Post("/payment_methods", f.createPaymentMethod)
		r.Post("/payment_intents", f.createIntent)
		r.Get("/payment_intents/{id}", f.getIntent)
		r.Post("/payment_intents/{id}/confirm", f.confirmIntent)
	})

	return f
}

func (f *Intents) AddCustomer(id, name, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[id] = &intentsCustomer{ID: id, Object: "customer", Name: name, Email: email, Created: time.Now().Unix()}
}

// MarkPaid simulates the voucher or transfer being paid.
func (f *Intents) MarkPaid(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	pi, ok := f.intents[id]
	if !ok {
		return false
	}
	pi.Status = "succeeded"
	pi.AmountReceived = pi.Amount
	pi.NextAction = nil
	return true
}

func (f *Intents) IntentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.intents)
}

func (f *Intents) createCustomer(w http.ResponseWriter, r *http.Request) {
	var in intentsCustomer
	if err := decode(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, intentsFailure("invalid_request_error", "parameter_invalid", "", err.Error()))
		return
	}

	f.idempotent(w, r, func() (int, any) {
		if in.Email == "" {
			return http.StatusBadRequest, intentsFailure("invalid_request_error", "parameter_missing", "email", "email is required")
		}
		c := &intentsCustomer{
			ID:      newID("cus"),
			Object:  "customer",
			Name:    in.Name,
			Email:   in.Email,
			Phone:   in.Phone,
			Created: time.Now().Unix(),
		}
		f.customers[c.ID] = c
		return http.StatusOK, c
	})
}

func (f *Intents) searchCustomers(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")

	f.mu.Lock()
	data := []*intentsCustomer{}
	for _, c := range f.customers {
		if email == "" || strings.EqualFold(c.Email, email) {
			data = append(data, c)
		}
	}
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "has_more": false, "data": data})
}

func (f *Intents) createPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var in intentsPaymentMethod
	if err := decode(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, intentsFailure("invalid_request_error", "parameter_invalid", "", err.Error()))
		return
	}

	f.idempotent(w, r, func() (int, any) {
		switch in.Type {
		case "cash_voucher", "bank_transfer":
		default:
			return http.StatusBadRequest, intentsFailure("invalid_request_error", "parameter_invalid", "type", "unsupported payment method type "+in.Type)
		}
		pm := &intentsPaymentMethod{
			ID:             newID("pm"),
			Object:         "payment_method",
			Type:           in.Type,
			BillingDetails: in.BillingDetails,
		}
		f.methods[pm.ID] = pm
		return http.StatusOK, pm
	})
}

func (f *Intents) createIntent(w http.ResponseWriter, r *http.Request) {
	var in intentsCreate
	if err := decode(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, intentsFailure("invalid_request_error", "parameter_invalid", "", err.Error()))
		return
	}

	f.idempotent(w, r, func() (int, any) {
		if in.Amount <= 0 {
			return http.StatusBadRequest, intentsFailure("invalid_request_error", "parameter_invalid_integer", "amount", "amount must be a positive integer")
		}
		if in.Customer != "" {
			if _, ok := f.customers[in.Customer]; !ok || f.opts.rejectCustomers {
				return http.StatusBadRequest, intentsFailure("invalid_request_error", "resource_missing", "customer", fmt.Sprintf("No such customer: '%s'", in.Customer))
			}
		}
		if len(in.PaymentMethodTypes) == 0 {
			in.PaymentMethodTypes = []string{"card"}
		}

		pi := &intentsIntent{
			ID:                 newID("pi"),
			Object:             "payment_intent",
			Status:             "requires_payment_method",
			Amount:             in.Amount,
			Currency:           strings.ToLower(in.Currency),
			Description:        in.Description,
			Customer:           in.Customer,
			Metadata:           in.Metadata,
			PaymentMethodTypes: in.PaymentMethodTypes,
			Created:            time.Now().Unix(),
			expiresAfterDays:   in.PaymentMethodOptions.CashVoucher.ExpiresAfterDays,
		}

		if in.Confirm {
			if in.PaymentMethodData == nil || in.PaymentMethodData.Type != "card" || in.PaymentMethodData.Card.Token == "" {
				return http.StatusBadRequest, intentsFailure("invalid_request_error", "parameter_missing", "payment_method_data", "confirm requires card payment_method_data")
			}
			if in.PaymentMethodData.Card.Token == DeclinedToken {
				body := intentsFailure("card_error", "card_declined", "", "Your card was declined.")
				e := body["error"]
				e.DeclineCode = "insufficient_funds"
				body["error"] = e
				return http.StatusPaymentRequired, body
			}
			pi.PaymentMethod = newID("pm")
			pi.Status = "succeeded"
			pi.AmountReceived = pi.Amount
		}

		f.intents[pi.ID] = pi
		return http.StatusOK, pi
	})
}

func (f *Intents) confirmIntent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in struct {
		PaymentMethod string `json:"payment_method"`
	}
	if err := decode(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, intentsFailure("invalid_request_error", "parameter_invalid", "", err.Error()))
		return
	}

	f.idempotent(w, r, func() (int, any) {
		pi, ok := f.intents[id]
		if !ok {
			return http.StatusNotFound, intentsFailure("invalid_request_error", "resource_missing", "intent", "No such payment_intent: '"+id+"'")
		}
		if pi.Status != "requires_payment_method" && pi.Status != "requires_confirmation" {
			return http.StatusBadRequest, intentsFailure("invalid_request_error", "payment_intent_unexpected_state", "", "payment intent is "+pi.Status)
		}
		pm, ok := f.methods[in.PaymentMethod]
		if !ok {
			return http.StatusBadRequest, intentsFailure("invalid_request_error", "resource_missing", "payment_method", "No such payment_method: '"+in.PaymentMethod+"'")
		}
		if !slices.Contains(pi.PaymentMethodTypes, pm.Type) {
			return http.StatusBadRequest, intentsFailure("invalid_request_error", "payment_intent_incompatible_payment_method", "payment_method", pm.Type+" is not allowed on this intent")
		}

		next, err := f.nextAction(pi, pm.Type)
		if err != nil {
			return http.StatusInternalServerError, intentsFailure("api_error", "", "", err.Error())
		}
		pi.PaymentMethod = pm.ID
		pi.Status = "requires_action"
		pi.NextAction = next
		return http.StatusOK, pi
	})
}

func (f *Intents) nextAction(pi *intentsIntent, methodType string) (*intentsNextAction, error) {
	switch methodType {
	case "cash_voucher":
		days := pi.expiresAfterDays
		if days <= 0 {
			days = expiry.DefaultTTLDays
		}
		details := &intentsCashVoucher{
			ExpiresAt:        expiry.VoucherDeadline(time.Now(), days).Unix(),
			HostedVoucherURL: "https://payments.example.test/vouchers/" + pi.ID,
		}
		if !f.opts.omitReference {
			number, err := refgen.Voucher(refgen.DefaultVoucherLen)
			if err != nil {
				return nil, err
			}
			details.Number = number
		}
		return &intentsNextAction{Type: "cash_voucher_display_details", CashVoucherDisplayDetails: details}, nil
	case "bank_transfer":
		reference, err := refgen.Digits(7)
		if err != nil {
			return nil, err
		}
		details := &intentsBankTransfer{
			BankName:              "STP",
			Reference:             reference,
			HostedInstructionsURL: "https://payments.example.test/transfers/" + pi.ID,
		}
		if !f.opts.omitReference {
			clabe, err := refgen.CLABE("646", "180")
			if err != nil {
				return nil, err
			}
			details.CLABE = clabe
		}
		return &intentsNextAction{Type: "display_bank_transfer_instructions", DisplayBankTransferInstructions: details}, nil
	}
	return nil, fmt.Errorf("no next action for %s", methodType)
}

func (f *Intents) getIntent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	f.mu.Lock()
	pi, ok := f.intents[id]
	var snapshot intentsIntent
	if ok {
		snapshot = *pi
	}
	f.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, intentsFailure("invalid_request_error", "resource_missing", "intent", "No such payment_intent: '"+id+"'"))
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
