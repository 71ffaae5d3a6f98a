// Package apps manages the tenant registry: app creation, secret rotation and
// the signing-secret lookup used by the session service.
package apps

import (
	"context"
	"errors"
	"time"

	"github.com/JalalSordo/para/cache"
	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/repositories"
	"github.com/JalalSordo/para/services"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// SecretCacheKey is the key under which an app's secret is cached in the app's namespace
const SecretCacheKey = "app:secret"

// CreateResult is returned by Create and ResetSecret. Credentials are only
// available here and are never persisted on the app.
type CreateResult struct {
	ID          string              `json:"id"`
	App         *models.App         `json:"app"`
	Credentials *models.Credentials `json:"credentials"`
}

// LookupRecorder observes where resolved secrets were served from
type LookupRecorder interface {
	RecordSecretLookup(source string)
}

// Registry is the tenant registry service
type Registry struct {
	repo      repositories.AppRepository
	cache     cache.Cache
	secretTTL time.Duration
	group     singleflight.Group
	recorder  LookupRecorder
	logger    *zap.Logger
}

// NewRegistry creates a Registry. A nil cache disables secret caching.
func NewRegistry(repo repositories.AppRepository, c cache.Cache, secretTTL time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		repo:      repo,
		cache:     c,
		secretTTL: secretTTL,
		logger:    logger,
	}
}

// WithRecorder attaches a secret lookup recorder
func (r *Registry) WithRecorder(rec LookupRecorder) *Registry {
	r.recorder = rec
	return r
}

func (r *Registry) record(source string) {
	if r.recorder != nil {
		r.recorder.RecordSecretLookup(source)
	}
}

// Register builds an unsaved app from a display name
func (r *Registry) Register(name string) *models.App {
	return models.NewApp(name)
}

// Create persists app, generating a secret when none is set.
// It returns nil, nil when an app with the same identifier already exists,
// and app is only modified once the store accepted it.
func (r *Registry) Create(ctx context.Context, app *models.App) (*CreateResult, error) {
	if app == nil || app.ID == "" {
		return nil, services.ErrInvalidAppName
	}
	candidate := *app
	if !candidate.HasSecret() {
		if err := candidate.ResetSecret(); err != nil {
			return nil, services.ErrInternal.Wrap(err)
		}
	}

	id, err := r.repo.Create(ctx, &candidate)
	if err != nil {
		r.logger.Error("failed to create app", zap.String("app_id", app.ID), zap.Error(err))
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	if id == "" {
		r.logger.Info("app already exists", zap.String("app_id", app.ID))
		return nil, nil
	}
	*app = candidate

	r.logger.Info("app created", zap.String("app_id", id))
	return &CreateResult{ID: id, App: app, Credentials: app.Credentials()}, nil
}

// Read loads an app by name or identifier. Unknown apps yield nil, nil.
func (r *Registry) Read(ctx context.Context, id string) (*models.App, error) {
	id = models.AppIdentifier(id)
	if id == "" {
		return nil, nil
	}
	app, err := r.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	return app, nil
}

func (r *Registry) mustRead(ctx context.Context, id string) (*models.App, error) {
	app, err := r.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, services.ErrAppNotFound
	}
	return app, nil
}

// ResetSecret rotates the app's secret and returns a fresh credentials view.
// Tokens signed with the old secret no longer verify.
func (r *Registry) ResetSecret(ctx context.Context, id string) (*CreateResult, error) {
	app, err := r.mustRead(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := app.ResetSecret(); err != nil {
		return nil, services.ErrInternal.Wrap(err)
	}
	if err := r.save(ctx, app); err != nil {
		return nil, err
	}

	r.logger.Info("app secret rotated", zap.String("app_id", app.ID))
	return &CreateResult{ID: app.ID, App: app, Credentials: app.Credentials()}, nil
}

// SetActive enables or disables an app. Disabled apps cannot sign or verify tokens.
func (r *Registry) SetActive(ctx context.Context, id string, active bool) (*models.App, error) {
	app, err := r.mustRead(ctx, id)
	if err != nil {
		return nil, err
	}
	app.Active = active
	app.UpdatedAt = time.Now()
	if err := r.save(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// UpdateDatatypes adds then removes custom datatypes
func (r *Registry) UpdateDatatypes(ctx context.Context, id string, add, remove []string) (*models.App, error) {
	app, err := r.mustRead(ctx, id)
	if err != nil {
		return nil, err
	}
	app.AddDatatypes(add...)
	app.RemoveDatatypes(remove...)
	app.UpdatedAt = time.Now()
	if err := r.save(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

func (r *Registry) save(ctx context.Context, app *models.App) error {
	if err := r.repo.Update(ctx, app); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrAppNotFound
		}
		return services.ErrDatabaseError.Wrap(err)
	}
	r.evict(ctx, app.ID)
	return nil
}

// secrets scopes the cache to an app's namespace
func (r *Registry) secrets(id string) *cache.Namespaced {
	if r.cache == nil {
		return nil
	}
	return cache.In(r.cache, id)
}

func (r *Registry) evict(ctx context.Context, id string) {
	ns := r.secrets(id)
	if ns == nil {
		return
	}
	if err := ns.Remove(ctx, SecretCacheKey); err != nil {
		r.logger.Warn("failed to evict cached secret", zap.String("app_id", id), zap.Error(err))
	}
}

// ResolveSecret returns the signing secret of an active app. Lookups go
// through the app's cache namespace; concurrent misses share one store read.
func (r *Registry) ResolveSecret(ctx context.Context, appID string) (string, error) {
	id := models.AppIdentifier(appID)
	if id == "" {
		return "", services.ErrAppNotFound
	}

	ns := r.secrets(id)
	if ns != nil {
		data, ok, err := ns.Get(ctx, SecretCacheKey)
		if err != nil {
			r.logger.Warn("secret cache read failed", zap.String("app_id", id), zap.Error(err))
		} else if ok {
			r.record("cache")
			return string(data), nil
		}
	}

	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		r.record("store")
		app, err := r.Read(ctx, id)
		if err != nil {
			return "", err
		}
		if app == nil || !app.Active {
			return "", services.ErrAppNotFound
		}
		if app.HasSecret() && ns != nil {
			if err := ns.Put(ctx, SecretCacheKey, []byte(app.Secret), r.secretTTL); err != nil {
				r.logger.Warn("secret cache write failed", zap.String("app_id", id), zap.Error(err))
			}
		}
		return app.Secret, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
