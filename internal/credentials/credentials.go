// Package credentials loads per-processor API keys once at startup and checks
// that their environment class matches the deployment.
package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alovak/mxcheckout/checkout/models"
	"golang.org/x/exp/slog"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrMissing       = fmt.Errorf("%w: credentials missing", ErrConfiguration)
	ErrMalformed     = fmt.Errorf("%w: credentials malformed", ErrConfiguration)
)

// Environment is the class a key belongs to, guessed from its prefix.
type Environment string

const (
	EnvironmentUnknown Environment = ""
	EnvironmentTest    Environment = "test"
	EnvironmentLive    Environment = "live"
)

type Credentials struct {
	Processor   models.ProcessorID
	PublicKey   string
	PrivateKey  string
	Environment Environment
}

// LogValue keeps raw keys out of every log line.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("processor", string(c.Processor)),
		slog.String("public_key", Mask(c.PublicKey)),
		slog.String("private_key", Mask(c.PrivateKey)),
		slog.String("environment", string(c.Environment)),
	)
}

func (c Credentials) String() string {
	return fmt.Sprintf("%s{public=%s private=%s env=%s}", c.Processor, Mask(c.PublicKey), Mask(c.PrivateKey), c.Environment)
}

// Source supplies credentials for a processor. It must answer synchronously.
type Source interface {
	Credentials(id models.ProcessorID) (Credentials, error)
}

// StaticSource is a fixed Source, mostly for tests and one-shot commands.
type StaticSource map[models.ProcessorID]Credentials

func (s StaticSource) Credentials(id models.ProcessorID) (Credentials, error) {
	c, ok := s[id]
	if !ok {
		return Credentials{}, fmt.Errorf("%w: %s", ErrMissing, id)
	}
	return c, nil
}

// Mask renders a key as {first8}...{last4}. Keys too short to mask that way
// are starred out entirely.
func Mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) < 13 {
		return strings.Repeat("*", len(key))
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// ClassOf guesses a key's environment from its prefix. Prefixes are a
// heuristic only.
func ClassOf(key string) Environment {
	k := strings.ToLower(key)
	switch {
	case strings.Contains(k, "_test_"), strings.HasPrefix(k, "test_"):
		return EnvironmentTest
	case strings.Contains(k, "_live_"), strings.HasPrefix(k, "live_"):
		return EnvironmentLive
	}
	return EnvironmentUnknown
}

func validate(key string) error {
	if key == "" {
		return ErrMissing
	}
	if strings.TrimSpace(key) != key || strings.ContainsAny(key, " \t\r\n") {
		return ErrMalformed
	}
	return nil
}
