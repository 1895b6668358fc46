package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alovak/mxcheckout/checkout/models"
	"golang.org/x/exp/slog"
)

const DefaultTimeout = 30 * time.Second

// ErrorDecoder fills provider specific fields (Type, Code, Param, Message) of
// a non-2xx response. It may also override Kind.
type ErrorDecoder func(status int, body []byte, e *Error)

// Client is the JSON over HTTPS transport shared by the adapters.
type Client struct {
	Processor   models.ProcessorID
	Base        string
	HTTP        *http.Client
	Authorize   func(r *http.Request)
	DecodeError ErrorDecoder
	logger      *slog.Logger
}

func NewClient(logger *slog.Logger, id models.ProcessorID, base string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		Processor: id,
		Base:      strings.TrimRight(base, "/"),
		HTTP:      hc,
		logger:    logger.With(slog.String("processor", string(id))),
	}
}

type Call struct {
	Op             string
	Method         string
	Path           string
	Query          url.Values
	Body           any
	IdempotencyKey string
}

// Do issues call and decodes a 2xx body into out. It returns the raw response
// body alongside so adapters can attach it to results and errors.
func (c *Client) Do(ctx context.Context, call Call, out any) (json.RawMessage, error) {
	start := time.Now()
	raw, err := c.do(ctx, call, out)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if pe, ok := AsError(err); ok {
			outcome = outcomeLabel(pe.Kind)
		}
	}
	requestsTotal.WithLabelValues(string(c.Processor), call.Op, outcome).Inc()
	requestDuration.WithLabelValues(string(c.Processor), call.Op).Observe(time.Since(start).Seconds())

	c.logger.Debug("processor call",
		slog.String("op", call.Op),
		slog.String("method", call.Method),
		slog.String("path", call.Path),
		slog.String("idempotency_key", call.IdempotencyKey),
		slog.String("outcome", outcome),
		slog.Duration("took", time.Since(start)),
	)
	return raw, err
}

func (c *Client) do(ctx context.Context, call Call, out any) (json.RawMessage, error) {
	u, err := url.Parse(c.Base + call.Path)
	if err != nil {
		return nil, &Error{Kind: ErrConfiguration, Processor: c.Processor, Op: call.Op, Err: fmt.Errorf("parse base: %w", err)}
	}
	if len(call.Query) > 0 {
		u.RawQuery = call.Query.Encode()
	}

	var body io.Reader
	if call.Body != nil {
		b, err := json.Marshal(call.Body)
		if err != nil {
			return nil, &Error{Kind: ErrInvalidRequest, Processor: c.Processor, Op: call.Op, Err: fmt.Errorf("encode body: %w", err)}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, u.String(), body)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidRequest, Processor: c.Processor, Op: call.Op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if call.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", call.IdempotencyKey)
	}
	if c.Authorize != nil {
		c.Authorize(req)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, unavailable(c.Processor, call.Op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable(c.Processor, call.Op, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode/100 != 2 {
		e := &Error{
			Kind:       ErrRejected,
			Processor:  c.Processor,
			Op:         call.Op,
			StatusCode: resp.StatusCode,
			Raw:        json.RawMessage(raw),
		}
		if c.DecodeError != nil {
			c.DecodeError(resp.StatusCode, raw, e)
		}
		if e.Message == "" {
			e.Message = strings.TrimSpace(string(raw))
		}
		return e.Raw, e
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, &Error{Kind: ErrIncompleteResult, Processor: c.Processor, Op: call.Op, Raw: raw, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return raw, nil
}

func outcomeLabel(kind error) string {
	switch {
	case errors.Is(kind, ErrUnavailable):
		return "unavailable"
	case errors.Is(kind, ErrRejected):
		return "rejected"
	case errors.Is(kind, ErrIncompleteResult):
		return "incomplete"
	case errors.Is(kind, ErrNotFound):
		return "not_found"
	}
	return "error"
}

// BearerAuth sets an Authorization: Bearer header.
func BearerAuth(key string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+key)
	}
}

// BasicAuth authenticates with key as the user name and an empty password.
func BasicAuth(key string) func(*http.Request) {
	return func(r *http.Request) {
		r.SetBasicAuth(key, "")
	}
}
