package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/repositories"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// AppRepository implements the repositories.AppRepository interface
type AppRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAppRepository creates a new app repository
func NewAppRepository(db *DB, logger *zap.Logger) repositories.AppRepository {
	return &AppRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts app unless its identifier is taken. Returns "" when it is.
func (r *AppRepository) Create(ctx context.Context, app *models.App) (string, error) {
	query := `
		INSERT INTO apps (id, appid, name, secret, shared, datatypes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		app.ID,
		app.Appid,
		app.Name,
		app.Secret,
		app.Shared,
		pq.Array(app.Datatypes),
		app.Active,
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create app: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		r.logger.Debug("app already exists", zap.String("id", app.ID))
		return "", nil
	}

	r.logger.Debug("app created", zap.String("id", app.ID))
	return app.ID, nil
}

// GetByID retrieves an app by identifier
func (r *AppRepository) GetByID(ctx context.Context, id string) (*models.App, error) {
	query := `
		SELECT id, appid, name, secret, shared, datatypes, active, created_at, updated_at
		FROM apps
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	app := &models.App{}

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&app.ID,
		&app.Appid,
		&app.Name,
		&app.Secret,
		&app.Shared,
		pq.Array(&app.Datatypes),
		&app.Active,
		&app.CreatedAt,
		&app.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("app %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get app: %w", err)
	}

	if app.Datatypes == nil {
		app.Datatypes = []string{}
	}
	return app, nil
}

// Update overwrites the mutable fields of an app
func (r *AppRepository) Update(ctx context.Context, app *models.App) error {
	query := `
		UPDATE apps
		SET name = $2,
		    secret = $3,
		    shared = $4,
		    datatypes = $5,
		    active = $6,
		    updated_at = $7
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		app.ID,
		app.Name,
		app.Secret,
		app.Shared,
		pq.Array(app.Datatypes),
		app.Active,
		app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update app: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("app %s: %w", app.ID, repositories.ErrNotFound)
	}

	r.logger.Debug("app updated", zap.String("id", app.ID))
	return nil
}
