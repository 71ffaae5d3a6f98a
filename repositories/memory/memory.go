// Package memory provides in-process repositories for development and tests.
// Records are copied on the way in and out so callers never share state with the store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/repositories"
)

// Store holds apps and users behind one lock
type Store struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	apps  map[string]models.App
	users map[string]map[string]models.User // app id -> user id -> user
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		apps:  make(map[string]models.App),
		users: make(map[string]map[string]models.User),
	}
}

// NewRepositories returns repositories backed by s
func (s *Store) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Apps:  &AppRepository{store: s},
		Users: &UserRepository{store: s},
	}
}

// TransactionManager returns a manager whose transactions serialize writers
func (s *Store) TransactionManager() repositories.TransactionManager {
	return &TransactionManager{store: s}
}

// AppRepository implements repositories.AppRepository
type AppRepository struct {
	store *Store
}

func copyApp(a models.App) *models.App {
	a.Datatypes = append([]string{}, a.Datatypes...)
	return &a
}

// Create stores app unless its identifier is taken
func (r *AppRepository) Create(_ context.Context, app *models.App) (string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.apps[app.ID]; ok {
		return "", nil
	}
	r.store.apps[app.ID] = *copyApp(*app)
	return app.ID, nil
}

// GetByID retrieves an app by identifier
func (r *AppRepository) GetByID(_ context.Context, id string) (*models.App, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	app, ok := r.store.apps[id]
	if !ok {
		return nil, fmt.Errorf("app %s: %w", id, repositories.ErrNotFound)
	}
	return copyApp(app), nil
}

// Update overwrites an existing app
func (r *AppRepository) Update(_ context.Context, app *models.App) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.apps[app.ID]; !ok {
		return fmt.Errorf("app %s: %w", app.ID, repositories.ErrNotFound)
	}
	r.store.apps[app.ID] = *copyApp(*app)
	return nil
}

// UserRepository implements repositories.UserRepository
type UserRepository struct {
	store *Store
}

func copyUser(u models.User) *models.User {
	if u.RevokeTokensAt != nil {
		ms := *u.RevokeTokensAt
		u.RevokeTokensAt = &ms
	}
	return &u
}

// Create stores a new user; identifiers are unique per app
func (r *UserRepository) Create(_ context.Context, user *models.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	byID := r.store.users[user.AppID]
	if byID == nil {
		byID = make(map[string]models.User)
		r.store.users[user.AppID] = byID
	}
	for _, u := range byID {
		if u.Identifier == user.Identifier {
			return fmt.Errorf("user %s: %w", user.Identifier, repositories.ErrDuplicate)
		}
	}
	if _, ok := byID[user.ID]; ok {
		return fmt.Errorf("user %s: %w", user.ID, repositories.ErrDuplicate)
	}
	byID[user.ID] = *copyUser(*user)
	return nil
}

// Read retrieves a user by id within a tenant
func (r *UserRepository) Read(_ context.Context, appID, id string) (*models.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u, ok := r.store.users[appID][id]
	if !ok {
		return nil, fmt.Errorf("user %s in %s: %w", id, appID, repositories.ErrNotFound)
	}
	return copyUser(u), nil
}

// GetByIdentifier retrieves a user by provider identifier within a tenant
func (r *UserRepository) GetByIdentifier(_ context.Context, appID, identifier string) (*models.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, u := range r.store.users[appID] {
		if u.Identifier == identifier {
			return copyUser(u), nil
		}
	}
	return nil, fmt.Errorf("user %s in %s: %w", identifier, appID, repositories.ErrNotFound)
}

// Overwrite replaces the stored user record
func (r *UserRepository) Overwrite(_ context.Context, user *models.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	byID := r.store.users[user.AppID]
	if _, ok := byID[user.ID]; !ok {
		return fmt.Errorf("user %s: %w", user.ID, repositories.ErrNotFound)
	}
	byID[user.ID] = *copyUser(*user)
	return nil
}

// TransactionManager serializes transactional sections. It does not roll back
// writes; the memory store is for development only.
type TransactionManager struct {
	store *Store
}

// Begin starts a transaction
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	tm.store.txMu.Lock()
	return &Transaction{ctx: ctx, release: tm.store.txMu.Unlock}, nil
}

// InTransaction runs fn while holding the writer lock
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx.Context(), tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Transaction is a memory transaction
type Transaction struct {
	ctx     context.Context
	release func()
	once    sync.Once
}

// Commit ends the transaction
func (t *Transaction) Commit() error {
	t.once.Do(t.release)
	return nil
}

// Rollback ends the transaction
func (t *Transaction) Rollback() error {
	t.once.Do(t.release)
	return nil
}

// Context returns the transaction context
func (t *Transaction) Context() context.Context {
	return t.ctx
}
