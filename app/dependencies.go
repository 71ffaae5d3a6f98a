package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/JalalSordo/para/auth"
	"github.com/JalalSordo/para/cache"
	"github.com/JalalSordo/para/config"
	"github.com/JalalSordo/para/internal/observability"
	"github.com/JalalSordo/para/middleware"
	"github.com/JalalSordo/para/repositories"
	"github.com/JalalSordo/para/repositories/memory"
	"github.com/JalalSordo/para/repositories/postgres"
	"github.com/JalalSordo/para/services/apps"
	"github.com/JalalSordo/para/services/providers"
	"github.com/JalalSordo/para/services/session"
	"github.com/JalalSordo/para/services/users"
	"github.com/JalalSordo/para/token"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Cache   cache.Cache
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory, nil with the memory store
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Apps      repositories.AppRepository
	Users     repositories.UserRepository
	TxManager repositories.TransactionManager

	// Services
	AppRegistry      *apps.Registry
	UserService      *users.Service
	ProviderRegistry *providers.Registry
	Sessions         *session.Service

	// HTTP
	AuthHandler *auth.Handler
	AuthFilter  *middleware.JWTAuthFilter
	RateLimiter *middleware.RateLimiter

	httpClient *http.Client
	closers    []func() error
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:     cfg,
		Logger:     logger,
		Metrics:    observability.NewMetrics(nil),
		httpClient: &http.Client{Timeout: cfg.Providers.Timeout},
	}

	if err := deps.initStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := deps.initCache(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	deps.initServices(cfg)

	if err := deps.initProviders(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("store", cfg.Store.Backend),
		zap.String("cache", cfg.Cache.Backend),
		zap.Strings("providers", deps.ProviderRegistry.Names()))
	return deps, nil
}

// initStore opens PostgreSQL or falls back to the in-memory store
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	if cfg.Store.Backend == config.StoreBackendMemory {
		store := memory.NewStore()
		repos := store.NewRepositories()
		d.Apps = repos.Apps
		d.Users = repos.Users
		d.TxManager = store.TransactionManager()
		d.Logger.Warn("using in-memory store, data is lost on restart")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.closers = append(d.closers, factory.Close)

	if cfg.Store.InitSchema {
		if err := factory.InitSchema(ctx); err != nil {
			_ = factory.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	repos := factory.NewRepositories()
	d.Apps = repos.Apps
	d.Users = repos.Users
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
	return nil
}

// initCache builds the per-tenant cache backend
func (d *Dependencies) initCache(ctx context.Context, cfg *config.Config) error {
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		rc, err := cache.NewRedisCache(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		d.Cache = rc
		d.closers = append(d.closers, rc.Close)
	case config.CacheBackendMap:
		d.Cache = cache.NewMapCache()
	default:
		d.Cache = cache.NewLRUCache(cfg.Cache.MaxEntries)
	}
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) {
	d.AppRegistry = apps.NewRegistry(d.Apps, d.Cache, cfg.Cache.SecretTTL, d.Logger).
		WithRecorder(d.Metrics)
	d.UserService = users.NewService(d.Users, d.TxManager, d.Logger)
}

// initProviders registers every enabled identity provider
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry := providers.NewRegistry(cfg.Auth.CredentialSeparator, d.Logger)
	pc := cfg.Providers

	profiles := []struct {
		cfg   config.ProfileProviderConfig
		build func(string, providers.UserResolver, *http.Client, time.Duration) *providers.ProfileProvider
	}{
		{pc.Facebook, providers.NewFacebookProvider},
		{pc.Google, providers.NewGoogleProvider},
		{pc.GitHub, providers.NewGitHubProvider},
		{pc.LinkedIn, providers.NewLinkedInProvider},
	}
	for _, p := range profiles {
		if !p.cfg.Enabled {
			continue
		}
		if err := registry.Register(p.build(p.cfg.ProfileURL, d.UserService, d.httpClient, pc.Timeout)); err != nil {
			return err
		}
	}

	if pc.Twitter.Enabled {
		tw := providers.NewTwitterProvider(pc.Twitter.ConsumerKey, pc.Twitter.ConsumerSecret,
			pc.Twitter.VerifyURL, d.UserService, d.httpClient, pc.Timeout)
		if err := registry.Register(tw); err != nil {
			return err
		}
	}

	if registry.Count() == 0 {
		d.Logger.Warn("no identity providers configured")
	}

	d.ProviderRegistry = registry
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	d.Sessions = session.NewService(d.AppRegistry, d.UserService, d.ProviderRegistry,
		token.NewCodec(), cfg.Auth.SessionTimeout, d.Logger).
		WithRecorder(d.Metrics)

	d.AuthHandler = auth.NewHandler(d.Sessions, d.Logger)
	d.AuthFilter = middleware.NewJWTAuthFilter(cfg.Auth.ManagementPath, cfg.Auth.ProtectedPrefix,
		d.Sessions, d.AuthHandler, d.Logger)
	d.RateLimiter = middleware.NewRateLimiter(cfg.Auth.IssueRateLimit, cfg.Auth.IssueRateBurst, d.Logger)
	d.Logger.Info("auth filter initialized",
		zap.String("management_path", cfg.Auth.ManagementPath),
		zap.String("protected_prefix", cfg.Auth.ProtectedPrefix),
		zap.Duration("session_timeout", d.Sessions.Timeout()))
}

// Close gracefully shuts down all dependencies. It is safe to call twice.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil

	if d.httpClient != nil {
		d.httpClient.CloseIdleConnections()
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
