package checkout

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alovak/mxcheckout/internal/credentials"
	"github.com/alovak/mxcheckout/internal/expiry"
	"gopkg.in/yaml.v3"
)

// Config is a configuration for the checkout application
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	// Environment is the deployment class: production, staging, development or test.
	Environment string `yaml:"environment"`
	// RepoBackend selects where charge records live: mem, pg or bolt.
	RepoBackend string `yaml:"repo_backend"`
	DBDSN       string `yaml:"db_dsn"`
	BoltPath    string `yaml:"bolt_path"`

	ChargesBaseURL       string        `yaml:"charges_base_url"`
	IntentsBaseURL       string        `yaml:"intents_base_url"`
	ProcessorTimeout     time.Duration `yaml:"processor_timeout"`
	ProcessorInitTimeout time.Duration `yaml:"processor_init_timeout"`

	VoucherTTLDays int `yaml:"voucher_ttl_days"`
	// MerchantTZ is the IANA timezone voucher deadlines are computed in.
	MerchantTZ string `yaml:"merchant_tz"`

	// Credentials overrides the environment backed credential store.
	Credentials credentials.Source `yaml:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:             "localhost:8080",
		Environment:          "development",
		RepoBackend:          "mem",
		BoltPath:             "mxcheckout.db",
		ProcessorTimeout:     30 * time.Second,
		ProcessorInitTimeout: 10 * time.Second,
		VoucherTTLDays:       expiry.DefaultTTLDays,
		MerchantTZ:           expiry.DefaultTZ,
	}
}

// LoadConfig starts from DefaultConfig, applies the YAML file at path (if
// any) and then environment overrides read through getenv.
func LoadConfig(path string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(k string, dst *string) {
		if v := getenv(k); v != "" {
			*dst = v
		}
	}
	dur := func(k string, dst *time.Duration) error {
		v := getenv(k)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		*dst = d
		return nil
	}

	str("HTTP_ADDR", &c.HTTPAddr)
	str("ENVIRONMENT", &c.Environment)
	str("REPO_BACKEND", &c.RepoBackend)
	str("DB_DSN", &c.DBDSN)
	str("BOLT_PATH", &c.BoltPath)
	str("CHARGES_BASE_URL", &c.ChargesBaseURL)
	str("INTENTS_BASE_URL", &c.IntentsBaseURL)
	str("MERCHANT_TZ", &c.MerchantTZ)

	if err := dur("PROCESSOR_TIMEOUT", &c.ProcessorTimeout); err != nil {
		return err
	}
	if err := dur("PROCESSOR_INIT_TIMEOUT", &c.ProcessorInitTimeout); err != nil {
		return err
	}
	if v := getenv("VOUCHER_TTL_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VOUCHER_TTL_DAYS: %w", err)
		}
		c.VoucherTTLDays = days
	}
	return nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.RepoBackend) {
	case "mem", "bolt":
	case "pg":
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required for pg backend")
		}
	default:
		return fmt.Errorf("unsupported REPO_BACKEND=%s", c.RepoBackend)
	}
	if err := expiry.ValidateTTL(c.VoucherTTLDays); err != nil {
		return err
	}
	if _, err := expiry.LoadLocation(c.MerchantTZ); err != nil {
		return err
	}
	return nil
}

func (c *Config) Production() bool {
	return credentials.IsProduction(c.Environment)
}
