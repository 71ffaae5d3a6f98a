package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/repositories"
	"go.uber.org/zap"
)

const userColumns = `id, app_id, identifier, name, email, picture, active, revoke_tokens_at, created_at, updated_at`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.AppID,
		user.Identifier,
		user.Name,
		user.Email,
		user.Picture,
		user.Active,
		nullableMillis(user.RevokeTokensAt),
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Identifier, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID), zap.String("appid", user.AppID))
	return nil
}

// Read retrieves a user by id within a tenant
func (r *UserRepository) Read(ctx context.Context, appID, id string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE app_id = $1 AND id = $2
	`
	return r.queryOne(ctx, query, appID, id)
}

// GetByIdentifier retrieves a user by provider identifier within a tenant
func (r *UserRepository) GetByIdentifier(ctx context.Context, appID, identifier string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE app_id = $1 AND identifier = $2
	`
	return r.queryOne(ctx, query, appID, identifier)
}

func (r *UserRepository) queryOne(ctx context.Context, query string, appID, key string) (*models.User, error) {
	executor := GetExecutor(ctx, r.db)
	user := &models.User{}
	var revokeAt sql.NullInt64

	err := executor.QueryRowContext(ctx, query, appID, key).Scan(
		&user.ID,
		&user.AppID,
		&user.Identifier,
		&user.Name,
		&user.Email,
		&user.Picture,
		&user.Active,
		&revokeAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s in %s: %w", key, appID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if revokeAt.Valid {
		ms := revokeAt.Int64
		user.RevokeTokensAt = &ms
	}
	return user, nil
}

// Overwrite replaces the stored user record
func (r *UserRepository) Overwrite(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET name = $3,
		    email = $4,
		    picture = $5,
		    active = $6,
		    revoke_tokens_at = $7,
		    updated_at = $8
		WHERE app_id = $1 AND id = $2
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		user.AppID,
		user.ID,
		user.Name,
		user.Email,
		user.Picture,
		user.Active,
		nullableMillis(user.RevokeTokensAt),
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", user.ID, repositories.ErrNotFound)
	}

	r.logger.Debug("user updated", zap.String("id", user.ID))
	return nil
}

func nullableMillis(ms *int64) sql.NullInt64 {
	if ms == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *ms, Valid: true}
}
