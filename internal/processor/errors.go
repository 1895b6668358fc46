package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/alovak/mxcheckout/internal/credentials"
)

var (
	ErrConfiguration     = credentials.ErrConfiguration
	ErrUnavailable       = errors.New("processor unavailable")
	ErrRejected          = errors.New("processor rejected request")
	ErrIncompleteResult  = errors.New("incomplete charge result")
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedMethod = errors.New("payment method not supported by processor")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnknownProcessor  = fmt.Errorf("%w: unknown processor", ErrInvalidRequest)
)

// Error carries the processor id, the failed operation and the raw provider
// payload. Kind is one of the sentinels above.
type Error struct {
	Kind       error
	Processor  models.ProcessorID
	Op         string
	StatusCode int
	Type       string
	Code       string
	Param      string
	Message    string
	Raw        json.RawMessage
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %v", e.Processor, e.Op, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " %s", e.Code)
	}
	if e.Param != "" {
		fmt.Fprintf(&b, " (%s)", e.Param)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// AsError extracts the *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func unavailable(id models.ProcessorID, op string, cause error) *Error {
	return &Error{Kind: ErrUnavailable, Processor: id, Op: op, Err: cause}
}

// Incomplete reports a call sequence that returned success without the data
// needed to actually pay.
func Incomplete(id models.ProcessorID, op, msg string, raw json.RawMessage) *Error {
	return &Error{Kind: ErrIncompleteResult, Processor: id, Op: op, Message: msg, Raw: raw}
}

func NotFound(id models.ProcessorID, op, what string, cause *Error) *Error {
	e := &Error{Kind: ErrNotFound, Processor: id, Op: op, Message: what}
	if cause != nil {
		e.StatusCode = cause.StatusCode
		e.Type = cause.Type
		e.Code = cause.Code
		e.Raw = cause.Raw
	}
	return e
}

func Unsupported(id models.ProcessorID, method models.Method) *Error {
	return &Error{Kind: ErrUnsupportedMethod, Processor: id, Op: "charge", Message: string(method)}
}

// IsStatus reports whether err is a processor response with the given HTTP status.
func IsStatus(err error, status int) bool {
	pe, ok := AsError(err)
	return ok && pe.StatusCode == status
}
