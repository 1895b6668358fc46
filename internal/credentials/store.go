package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alovak/mxcheckout/checkout/models"
	"golang.org/x/exp/slog"
)

// Spec names the environment variables holding one processor's keys.
type Spec struct {
	Processor  models.ProcessorID
	PublicEnv  string
	PrivateEnv string
}

var DefaultSpecs = []Spec{
	{Processor: models.ProcessorCharges, PublicEnv: "CHARGES_PUBLIC_KEY", PrivateEnv: "CHARGES_PRIVATE_KEY"},
	{Processor: models.ProcessorIntents, PublicEnv: "INTENTS_PUBLIC_KEY", PrivateEnv: "INTENTS_SECRET_KEY"},
}

// IsProduction reports whether a deployment environment name is production.
func IsProduction(deployment string) bool {
	switch strings.ToLower(deployment) {
	case "production", "prod", "live":
		return true
	}
	return false
}

// Store reads keys from the environment once and caches them for the process
// lifetime.
type Store struct {
	logger     *slog.Logger
	production bool
	lookup     func(string) string
	specs      []Spec

	mu     sync.RWMutex
	loaded bool
	creds  map[models.ProcessorID]Credentials
}

// NewStore builds a Store for the given deployment environment. lookup
// defaults to os.Getenv and specs to DefaultSpecs.
func NewStore(logger *slog.Logger, deployment string, lookup func(string) string, specs ...Spec) *Store {
	if lookup == nil {
		lookup = os.Getenv
	}
	if len(specs) == 0 {
		specs = DefaultSpecs
	}
	return &Store{
		logger:     logger.With(slog.String("component", "credentials")),
		production: IsProduction(deployment),
		lookup:     lookup,
		specs:      specs,
	}
}

// Load reads and validates every configured processor's keys. Missing or
// malformed keys are fatal in production and a warning elsewhere; environment
// class mismatches are always only a warning.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() error {
	creds := make(map[models.ProcessorID]Credentials, len(s.specs))
	var errs []error

	for _, spec := range s.specs {
		c := Credentials{
			Processor:  spec.Processor,
			PublicKey:  s.lookup(spec.PublicEnv),
			PrivateKey: s.lookup(spec.PrivateEnv),
		}
		logger := s.logger.With(slog.String("processor", string(spec.Processor)))

		if err := errors.Join(validate(c.PublicKey), validate(c.PrivateKey)); err != nil {
			err = fmt.Errorf("%s (%s, %s): %w", spec.Processor, spec.PublicEnv, spec.PrivateEnv, err)
			if s.production {
				logger.Error("credentials unusable", slog.Any("err", err), slog.Any("credentials", c))
				errs = append(errs, err)
			} else {
				logger.Warn("credentials unusable; processor will be unavailable", slog.Any("err", err), slog.Any("credentials", c))
			}
			continue
		}

		c.Environment = ClassOf(c.PrivateKey)
		s.checkEnvironment(logger, c)
		creds[spec.Processor] = c
		logger.Info("credentials loaded", slog.Any("credentials", c))
	}

	s.creds = creds
	s.loaded = true
	return errors.Join(errs...)
}

func (s *Store) checkEnvironment(logger *slog.Logger, c Credentials) {
	if pub := ClassOf(c.PublicKey); pub != c.Environment {
		logger.Warn("public and private key environment classes differ",
			slog.String("public", string(pub)), slog.String("private", string(c.Environment)))
	}
	switch {
	case c.Environment == EnvironmentUnknown:
		logger.Warn("unrecognized key prefix; cannot verify environment class", slog.Any("credentials", c))
	case s.production && c.Environment == EnvironmentTest:
		logger.Warn("test key configured in production", slog.Any("credentials", c))
	case !s.production && c.Environment == EnvironmentLive:
		logger.Warn("live key configured outside production", slog.Any("credentials", c))
	}
}

// Credentials returns the cached keys for id, loading them on first use.
func (s *Store) Credentials(id models.ProcessorID) (Credentials, error) {
	s.mu.RLock()
	if s.loaded {
		c, ok := s.creds[id]
		s.mu.RUnlock()
		if !ok {
			return Credentials{}, fmt.Errorf("%w: %s", ErrMissing, id)
		}
		return c, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	if !s.loaded {
		// Startup already decided whether missing keys are fatal.
		_ = s.load()
	}
	s.mu.Unlock()
	return s.Credentials(id)
}

func (s *Store) Production() bool {
	return s.production
}

// Reset drops the cache so the next call reloads. Test isolation only.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.creds = nil
}
