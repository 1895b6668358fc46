package intents

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/alovak/mxcheckout/internal/amount"
	"github.com/alovak/mxcheckout/internal/idempotency"
	"github.com/alovak/mxcheckout/internal/processor"
	"golang.org/x/exp/slog"
)

// Stage is a step of the confirmation sequence. Stages are only ever reached
// in order.
type Stage int

const (
	StageCreated Stage = iota + 1
	StageMethodAttached
	StageConfirmed
)

func (s Stage) String() string {
	switch s {
	case StageCreated:
		return "created"
	case StageMethodAttached:
		return "method_attached"
	case StageConfirmed:
		return "confirmed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageHook observes each stage as it completes, e.g. intent id after Created.
type StageHook func(stage Stage, intentID string)

// sequencer runs create intent, create payment method and confirm for one
// attempt. Each call gets its own idempotency slot derived from the attempt
// key.
type sequencer struct {
	client  *processor.Client
	logger  *slog.Logger
	onStage StageHook

	method         models.Method
	methodType     string
	nextActionType string
	ttlDays        int
}

func (s *sequencer) run(ctx context.Context, req models.ChargeRequest, key string) (*models.ChargeResult, error) {
	minor, err := amount.ToMinor(req.Amount, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", processor.ErrInvalidRequest, err)
	}

	logger := s.logger.With(
		slog.String("method", string(s.method)),
		slog.String("idempotency_key", key),
	)

	create := intentCreate{
		Amount:             minor,
		Currency:           strings.ToLower(req.Currency),
		Description:        req.Description,
		Customer:           req.CustomerID,
		Metadata:           metadata(req),
		PaymentMethodTypes: []string{s.methodType},
	}
	if s.method == models.MethodCashVoucher {
		create.PaymentMethodOptions = &methodOptions{CashVoucher: &cashVoucherOptions{ExpiresAfterDays: s.ttlDays}}
	}
	if req.DeviceFingerprint != "" {
		create.RadarOptions = &radarOptions{Session: req.DeviceFingerprint}
	}

	var intent intentBody
	raw, err := s.client.Do(ctx, processor.Call{
		Op:             "create_intent",
		Method:         http.MethodPost,
		Path:           "/v1/payment_intents",
		Body:           create,
		IdempotencyKey: key,
	}, &intent)
	if err != nil {
		return nil, err
	}
	if intent.ID == "" {
		return nil, processor.Incomplete(ID, "create_intent", "payment intent id missing", raw)
	}
	s.reached(logger, StageCreated, intent.ID)

	pm := paymentMethodBody{Type: s.methodType}
	if req.Customer != nil {
		pm.BillingDetails = billingDetails{Name: req.Customer.Name, Email: req.Customer.Email, Phone: req.Customer.Phone}
	}
	var method paymentMethodBody
	raw, err = s.client.Do(ctx, processor.Call{
		Op:             "create_payment_method",
		Method:         http.MethodPost,
		Path:           "/v1/payment_methods",
		Body:           pm,
		IdempotencyKey: idempotency.Step(key, "method"),
	}, &method)
	if err != nil {
		return nil, err
	}
	if method.ID == "" {
		return nil, processor.Incomplete(ID, "create_payment_method", "payment method id missing", raw)
	}
	s.reached(logger, StageMethodAttached, intent.ID)

	var confirmed intentBody
	raw, err = s.client.Do(ctx, processor.Call{
		Op:             "confirm_intent",
		Method:         http.MethodPost,
		Path:           "/v1/payment_intents/" + url.PathEscape(intent.ID) + "/confirm",
		Body:           map[string]string{"payment_method": method.ID},
		IdempotencyKey: idempotency.Step(key, "confirm"),
	}, &confirmed)
	if err != nil {
		return nil, err
	}
	s.reached(logger, StageConfirmed, intent.ID)

	if err := s.validate(confirmed, raw); err != nil {
		logger.Error("confirmed intent is not payable", slog.String("intent", intent.ID), slog.Any("err", err))
		return nil, err
	}
	return confirmed.toResult(raw), nil
}

// validate enforces that a confirmed intent tells the customer how to pay: a
// next action of the requested kind carrying a non-empty reference.
func (s *sequencer) validate(pi intentBody, raw json.RawMessage) error {
	na := pi.NextAction
	if na == nil {
		return processor.Incomplete(ID, "confirm_intent", "confirmed intent has no next action", raw)
	}
	if na.Type != s.nextActionType {
		return processor.Incomplete(ID, "confirm_intent", fmt.Sprintf("next action %q does not match %s", na.Type, s.method), raw)
	}

	switch s.method {
	case models.MethodCashVoucher:
		if na.CashVoucherDisplayDetails == nil || na.CashVoucherDisplayDetails.Number == "" {
			return processor.Incomplete(ID, "confirm_intent", "voucher number missing", raw)
		}
	case models.MethodBankTransfer:
		if na.DisplayBankTransferInstructions == nil || na.DisplayBankTransferInstructions.CLABE == "" {
			return processor.Incomplete(ID, "confirm_intent", "CLABE missing", raw)
		}
	}
	return nil
}

func (s *sequencer) reached(logger *slog.Logger, stage Stage, intentID string) {
	logger.Debug("sequencer stage reached", slog.String("stage", stage.String()), slog.String("intent", intentID))
	processor.ObserveStage(string(ID), string(s.method), stage.String())
	if s.onStage != nil {
		s.onStage(stage, intentID)
	}
}

func metadata(req models.ChargeRequest) map[string]string {
	if req.ApplicationReferenceID == "" {
		return nil
	}
	return map[string]string{"application_reference_id": req.ApplicationReferenceID}
}
