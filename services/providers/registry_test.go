package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockProvider is a mock implementation of Provider
type MockProvider struct {
	mock.Mock
	name  string
	arity int
}

func (m *MockProvider) Name() string { return m.name }
func (m *MockProvider) Arity() int   { return m.arity }

func (m *MockProvider) GetOrCreateUser(ctx context.Context, appID string, credentials ...string) (*models.User, error) {
	args := m.Called(ctx, appID, credentials)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry("", zap.NewNop())

	require.NoError(t, r.Register(&MockProvider{name: "GitHub", arity: 1}))
	require.NoError(t, r.Register(&MockProvider{name: "twitter", arity: 2}))

	err := r.Register(&MockProvider{name: "github", arity: 1})
	assert.ErrorIs(t, err, ErrProviderAlreadyRegistered)

	assert.ErrorIs(t, r.Register(nil), ErrInvalidProvider)
	assert.ErrorIs(t, r.Register(&MockProvider{name: " "}), ErrInvalidProvider)

	assert.Equal(t, 2, r.Count())
	assert.Equal(t, []string{"github", "twitter"}, r.Names())

	p, ok := r.Get(" GITHUB ")
	assert.True(t, ok)
	assert.Equal(t, "GitHub", p.Name())

	_, ok = r.Get("myspace")
	assert.False(t, ok)
}

func TestRegistry_Split(t *testing.T) {
	r := NewRegistry(":", zap.NewNop())

	tests := []struct {
		name    string
		raw     string
		n       int
		want    []string
		wantErr bool
	}{
		{name: "single part kept whole", raw: "a:b", n: 1, want: []string{"a:b"}},
		{name: "two parts", raw: "tok1:tok2", n: 2, want: []string{"tok1", "tok2"}},
		{name: "missing separator", raw: "tok1", n: 2, wantErr: true},
		{name: "too many parts", raw: "a:b:c", n: 2, wantErr: true},
		{name: "blank part", raw: "tok1: ", n: 2, wantErr: true},
		{name: "blank single", raw: "  ", n: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Split(tt.raw, tt.n)
			if tt.wantErr {
				assert.ErrorIs(t, err, services.ErrMalformedCredential)
				assert.True(t, services.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_Resolve(t *testing.T) {
	ctx := context.Background()
	user := &models.User{ID: "u1", AppID: "app:a"}

	t.Run("splits compound credentials", func(t *testing.T) {
		tw := &MockProvider{name: "twitter", arity: 2}
		tw.On("GetOrCreateUser", mock.Anything, "app:a", []string{"tok1", "tok2"}).Return(user, nil)
		r := NewRegistry("", zap.NewNop())
		require.NoError(t, r.Register(tw))

		got, err := r.Resolve(ctx, "twitter", "app:a", "tok1:tok2")
		require.NoError(t, err)
		assert.Same(t, user, got)
		tw.AssertExpectations(t)
	})

	t.Run("malformed compound credential never reaches the adapter", func(t *testing.T) {
		tw := &MockProvider{name: "twitter", arity: 2}
		r := NewRegistry("", zap.NewNop())
		require.NoError(t, r.Register(tw))

		_, err := r.Resolve(ctx, "twitter", "app:a", "tok1")
		assert.ErrorIs(t, err, services.ErrMalformedCredential)
		tw.AssertNotCalled(t, "GetOrCreateUser", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown provider", func(t *testing.T) {
		r := NewRegistry("", zap.NewNop())
		_, err := r.Resolve(ctx, "myspace", "app:a", "tok")
		assert.ErrorIs(t, err, services.ErrProviderNotFound)
		assert.True(t, services.IsValidationError(err))
	})

	t.Run("adapter failure", func(t *testing.T) {
		gh := &MockProvider{name: "github", arity: 1}
		gh.On("GetOrCreateUser", mock.Anything, "app:a", []string{"bad"}).Return(nil, errors.New("401 from upstream"))
		r := NewRegistry("", zap.NewNop())
		require.NoError(t, r.Register(gh))

		_, err := r.Resolve(ctx, "github", "app:a", "bad")
		require.Error(t, err)
		assert.True(t, services.IsAuthenticationFailedError(err))
		assert.Equal(t, "Failed to authenticate user with github", services.GetErrorMessage(err))
		assert.ErrorIs(t, err, services.ErrAuthenticationFailed)
		assert.ErrorContains(t, err, "401 from upstream")
	})

	t.Run("nil user", func(t *testing.T) {
		gh := &MockProvider{name: "github", arity: 1}
		gh.On("GetOrCreateUser", mock.Anything, "app:a", []string{"tok"}).Return(nil, nil)
		r := NewRegistry("", zap.NewNop())
		require.NoError(t, r.Register(gh))

		_, err := r.Resolve(ctx, "github", "app:a", "tok")
		assert.True(t, services.IsAuthenticationFailedError(err))
	})

	t.Run("store failure stays internal", func(t *testing.T) {
		gh := &MockProvider{name: "github", arity: 1}
		gh.On("GetOrCreateUser", mock.Anything, "app:a", []string{"tok"}).
			Return(nil, services.ErrDatabaseError.Wrap(errors.New("conn refused")))
		r := NewRegistry("", zap.NewNop())
		require.NoError(t, r.Register(gh))

		_, err := r.Resolve(ctx, "github", "app:a", "tok")
		assert.True(t, services.IsInternalError(err))
		assert.False(t, services.IsAuthenticationFailedError(err))
	})
}
