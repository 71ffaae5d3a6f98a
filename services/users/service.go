package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/repositories"
	"github.com/JalalSordo/para/services"
	"go.uber.org/zap"
)

// Profile is what an identity provider reports about an authenticated user
type Profile struct {
	Provider string
	ID       string
	Name     string
	Email    string
	Picture  string
}

// Identifier returns the tenant-unique identifier for the profile
func (p Profile) Identifier() string {
	return models.ProviderIdentifier(p.Provider, p.ID)
}

// Service manages users within tenants
type Service struct {
	repo   repositories.UserRepository
	txMgr  repositories.TransactionManager
	logger *zap.Logger
}

// NewService creates a user service
func NewService(repo repositories.UserRepository, txMgr repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		txMgr:  txMgr,
		logger: logger,
	}
}

// GetOrCreate returns the user matching the profile in appID, creating it on
// first sign-in. Profile changes (name, email, picture) are written back.
func (s *Service) GetOrCreate(ctx context.Context, appID string, p Profile) (*models.User, error) {
	if strings.TrimSpace(appID) == "" || strings.TrimSpace(p.Provider) == "" || strings.TrimSpace(p.ID) == "" {
		return nil, services.ErrInvalidInput.WithDetail("reason", "profile requires app, provider and id")
	}
	identifier := p.Identifier()

	user, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.User, error) {
		existing, err := s.repo.GetByIdentifier(ctx, appID, identifier)
		if err == nil {
			if applyProfile(existing, p) {
				existing.UpdatedAt = time.Now()
				if err := s.repo.Overwrite(ctx, existing); err != nil {
					return nil, err
				}
			}
			return existing, nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}

		user := models.NewUser(appID, identifier, p.Name, p.Email)
		user.Picture = p.Picture
		if err := s.repo.Create(ctx, user); err != nil {
			return nil, err
		}
		s.logger.Info("user created",
			zap.String("app_id", appID),
			zap.String("user_id", user.ID),
			zap.String("provider", strings.ToLower(p.Provider)),
		)
		return user, nil
	})

	if errors.Is(err, repositories.ErrDuplicate) {
		// lost a race with a concurrent first sign-in
		user, err = s.repo.GetByIdentifier(ctx, appID, identifier)
	}
	if err != nil {
		s.logger.Error("failed to get or create user",
			zap.String("app_id", appID),
			zap.String("identifier", identifier),
			zap.Error(err),
		)
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	return user, nil
}

// applyProfile copies changed, non-blank profile attributes onto u
func applyProfile(u *models.User, p Profile) bool {
	changed := false
	if p.Name != "" && p.Name != u.Name {
		u.Name = p.Name
		changed = true
	}
	if p.Email != "" && p.Email != u.Email {
		u.Email = p.Email
		changed = true
	}
	if p.Picture != "" && p.Picture != u.Picture {
		u.Picture = p.Picture
		changed = true
	}
	return changed
}

// Read loads a user within a tenant
func (s *Service) Read(ctx context.Context, appID, id string) (*models.User, error) {
	user, err := s.repo.Read(ctx, appID, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	return user, nil
}

// Overwrite persists the full user record
func (s *Service) Overwrite(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()
	if err := s.repo.Overwrite(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrUserNotFound
		}
		return services.ErrDatabaseError.Wrap(err)
	}
	return nil
}
