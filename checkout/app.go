package checkout

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alovak/mxcheckout/checkout/models"
	"github.com/alovak/mxcheckout/internal/credentials"
	"github.com/alovak/mxcheckout/internal/expiry"
	"github.com/alovak/mxcheckout/internal/middleware"
	"github.com/alovak/mxcheckout/internal/processor"
	"github.com/alovak/mxcheckout/internal/processor/charges"
	"github.com/alovak/mxcheckout/internal/processor/intents"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/slog"
)

// App is the main application, it contains all the components of the checkout
// service and is responsible for starting and stopping them.
type App struct {
	srv    *http.Server
	wg     *sync.WaitGroup
	Addr   string
	logger *slog.Logger
	config *Config

	repo     *Repository
	registry *processor.Registry
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "checkout"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		wg:     &sync.WaitGroup{},
		logger: logger,
		config: config,
	}
}

func (a *App) Start() error {
	a.logger.Info("starting app...",
		slog.String("environment", a.config.Environment),
		slog.String("repo_backend", a.config.RepoBackend),
	)

	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	loc, err := expiry.LoadLocation(a.config.MerchantTZ)
	if err != nil {
		return err
	}
	expiry.SetDefaultLocation(loc)

	source, err := a.credentialSource()
	if err != nil {
		return err
	}

	repository, err := OpenRepository(a.config)
	if err != nil {
		return err
	}
	a.repo = repository

	a.registry = NewRegistry(a.logger, a.config, source)
	svc := NewService(a.logger, a.registry, repository)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.NewStructuredLogger(a.logger))
	router.Use(middleware.Metrics)

	api := NewAPI(svc)
	api.AppendRoutes(router)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := repository.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		if cerr := repository.Close(); cerr != nil {
			a.logger.Error("closing repository", "err", cerr)
		}
		a.repo = nil
		return fmt.Errorf("listening tcp port: %w", err)
	}

	a.Addr = l.Addr().String()

	a.srv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}

			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	return nil
}

// credentialSource returns the configured source, or loads the environment
// backed store. Unusable keys stop startup only in production.
func (a *App) credentialSource() (credentials.Source, error) {
	if a.config.Credentials != nil {
		return a.config.Credentials, nil
	}

	store := credentials.NewStore(a.logger, a.config.Environment, os.Getenv)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	return store, nil
}

// OpenRepository builds the repository selected by config.RepoBackend. The
// memory backend is refused in production.
func OpenRepository(config *Config) (*Repository, error) {
	switch strings.ToLower(config.RepoBackend) {
	case "pg":
		if config.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is required for pg backend")
		}
		db, err := sql.Open("postgres", config.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxIdleConns(5)
		db.SetMaxOpenConns(10)
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		repo := NewPGRepository(db)
		if err := repo.Migrate(context.Background()); err != nil {
			db.Close()
			return nil, err
		}
		return repo, nil
	case "bolt":
		return NewBoltRepository(config.BoltPath)
	case "mem":
		if config.Production() {
			return nil, fmt.Errorf("mem repository is disabled in production; use pg or bolt")
		}
		return NewRepository(), nil
	}
	return nil, fmt.Errorf("unsupported REPO_BACKEND=%s", config.RepoBackend)
}

// NewRegistry registers both processors behind lazy initializers. Public
// keys are read from source up front; a processor without usable keys is
// still registered and fails on use.
func NewRegistry(logger *slog.Logger, config *Config, source credentials.Source) *processor.Registry {
	opts := []processor.LazyOption{processor.WithInitTimeout(config.ProcessorInitTimeout)}

	registry := processor.NewRegistry(logger)
	registry.Register(charges.NewLazy(logger, charges.Config{
		BaseURL:        config.ChargesBaseURL,
		Timeout:        config.ProcessorTimeout,
		VoucherTTLDays: config.VoucherTTLDays,
	}, source, opts...), publicKey(source, charges.ID))
	registry.Register(intents.NewLazy(logger, intents.Config{
		BaseURL:        config.IntentsBaseURL,
		Timeout:        config.ProcessorTimeout,
		VoucherTTLDays: config.VoucherTTLDays,
	}, source, opts...), publicKey(source, intents.ID))

	return registry
}

func publicKey(source credentials.Source, id models.ProcessorID) string {
	c, err := source.Credentials(id)
	if err != nil {
		return ""
	}
	return c.PublicKey
}

// Warm initializes every processor adapter now instead of on first use.
func (a *App) Warm(ctx context.Context) error {
	return a.registry.Warm(ctx)
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	if a.srv != nil {
		a.srv.Shutdown(context.Background())
	}

	a.wg.Wait()

	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.logger.Error("closing repository", "err", err)
		}
	}

	a.logger.Info("app stopped")
}
