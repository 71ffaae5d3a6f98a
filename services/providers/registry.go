package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/services"
	"go.uber.org/zap"
)

// DefaultSeparator joins the parts of a compound credential
const DefaultSeparator = ":"

var (
	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")

	// ErrInvalidProvider is returned for nil or unnamed providers
	ErrInvalidProvider = errors.New("provider must be non-nil and named")
)

// Registry maps provider names to adapters. Unknown names are rejected
// rather than falling through to a default.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	separator string
	logger    *zap.Logger
}

// NewRegistry creates an empty registry splitting compound credentials on separator
func NewRegistry(separator string, logger *zap.Logger) *Registry {
	if separator == "" {
		separator = DefaultSeparator
	}
	return &Registry{
		providers: make(map[string]Provider),
		separator: separator,
		logger:    logger,
	}
}

// Register adds a provider under its lower-cased name
func (r *Registry) Register(p Provider) error {
	if p == nil || strings.TrimSpace(p.Name()) == "" {
		return ErrInvalidProvider
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(p.Name())
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, name)
	}
	r.providers[name] = p
	return nil
}

// Get retrieves a provider by name, case-insensitively
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Names returns the registered provider names in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered providers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// Split breaks a raw credential into exactly n non-blank parts
func (r *Registry) Split(raw string, n int) ([]string, error) {
	if n <= 1 {
		if strings.TrimSpace(raw) == "" {
			return nil, services.ErrMalformedCredential
		}
		return []string{raw}, nil
	}
	parts := strings.Split(raw, r.separator)
	if len(parts) != n {
		return nil, services.ErrMalformedCredential.WithDetail("expected_parts", n)
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil, services.ErrMalformedCredential.WithDetail("expected_parts", n)
		}
	}
	return parts, nil
}

// Resolve dispatches a raw credential to the named provider and returns the
// authenticated user. Adapter failures surface as authentication failures;
// storage failures stay internal.
func (r *Registry) Resolve(ctx context.Context, name, appID, raw string) (*models.User, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, services.ErrProviderNotFound.WithDetail("provider", name)
	}

	creds, err := r.Split(raw, p.Arity())
	if err != nil {
		return nil, err
	}

	user, err := p.GetOrCreateUser(ctx, appID, creds...)
	if err != nil && services.IsInternalError(err) {
		return nil, err
	}
	if err != nil || user == nil {
		r.logger.Info("provider authentication failed",
			zap.String("provider", p.Name()),
			zap.String("app_id", appID),
			zap.Error(err),
		)
		return nil, authenticationFailed(p.Name(), err)
	}
	return user, nil
}

func authenticationFailed(provider string, cause error) error {
	return services.NewDomainError(
		services.ErrorTypeAuthenticationFailed,
		fmt.Sprintf("Failed to authenticate user with %s", provider),
		services.ErrAuthenticationFailed.Wrap(cause),
	)
}
