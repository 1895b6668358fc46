// Package fake provides in-process doubles of both processor APIs. They
// deduplicate POSTs by Idempotency-Key the way the real services do, mint
// real-looking references and can be told to misbehave.
package fake

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// DeclinedToken is a card token both doubles decline.
const DeclinedToken = "tok_declined"

type options struct {
	rejectCustomers  bool
	omitReference    bool
	failStatus       int
	requireBearerKey string
}

type Option func(*options)

// WithRejectedCustomers rejects every charge that names a customer, known or
// not.
func WithRejectedCustomers() Option {
	return func(o *options) { o.rejectCustomers = true }
}

// WithoutReference makes charges succeed while leaving out the voucher number
// or CLABE.
func WithoutReference() Option {
	return func(o *options) { o.omitReference = true }
}

// WithFailure answers every request with status.
func WithFailure(status int) Option {
	return func(o *options) { o.failStatus = status }
}

// WithKey requires "Authorization: Bearer key".
func WithKey(key string) Option {
	return func(o *options) { o.requireBearerKey = key }
}

type replay struct {
	status int
	body   []byte
}

// server holds what both doubles share: the lock around all state, the
// idempotency replay table and the request log.
type server struct {
	router chi.Router
	opts   options

	mu      sync.Mutex
	replays map[string]replay
	hits    map[string]int
	log     []string
}

func newServer(opts []Option) *server {
	s := &server{
		router:  chi.NewRouter(),
		replays: make(map[string]replay),
		hits:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	s.router.Use(s.record, s.authenticate)
	return s
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		line := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.hits[line]++
		s.log = append(s.log, line)
		s.mu.Unlock()
	})
}

func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || key == "" || (s.opts.requireBearerKey != "" && key != s.opts.requireBearerKey) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"type":    "authentication_error",
				"message": "invalid api key",
				"error":   map[string]string{"type": "authentication_error", "code": "invalid_api_key"},
			})
			return
		}
		if s.opts.failStatus != 0 {
			writeJSON(w, s.opts.failStatus, map[string]any{
				"type":    "api_error",
				"message": "injected failure",
				"error":   map[string]string{"type": "api_error", "message": "injected failure"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// idempotent runs handle under the state lock, or replays the stored response
// when the request repeats an Idempotency-Key on the same path.
func (s *server) idempotent(w http.ResponseWriter, r *http.Request, handle func() (int, any)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Header.Get("Idempotency-Key")
	slot := r.Method + " " + r.URL.Path + " " + key
	if key != "" {
		if rp, ok := s.replays[slot]; ok {
			w.Header().Set("Idempotent-Replayed", "true")
			writeRaw(w, rp.status, rp.body)
			return
		}
	}

	status, payload := handle()
	body, _ := json.Marshal(payload)
	// only successes are cached so a rejected request can be fixed and resent
	if key != "" && status/100 == 2 {
		s.replays[slot] = replay{status: status, body: body}
	}
	writeRaw(w, status, body)
}

// Hits returns how many requests were made to "METHOD /path", e.g.
// "POST /charges".
func (s *server) Hits(request string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[request]
}

// Log returns "METHOD /path" for every request in arrival order.
func (s *server) Log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, _ := json.Marshal(v)
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
