package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JalalSordo/para/cache"
	"github.com/JalalSordo/para/internal/observability"
	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/repositories/memory"
	"github.com/JalalSordo/para/services"
	"github.com/JalalSordo/para/services/apps"
	"github.com/JalalSordo/para/services/providers"
	"github.com/JalalSordo/para/services/users"
	"github.com/JalalSordo/para/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubProvider accepts any credential except "bad" and uses the first part as the external id
type stubProvider struct {
	name     string
	arity    int
	resolver providers.UserResolver
	seen     [][]string
}

func (p *stubProvider) Name() string { return p.name }
func (p *stubProvider) Arity() int   { return p.arity }

func (p *stubProvider) GetOrCreateUser(ctx context.Context, appID string, creds ...string) (*models.User, error) {
	p.seen = append(p.seen, creds)
	if creds[0] == "bad" {
		return nil, errors.New("provider rejected token")
	}
	return p.resolver.GetOrCreate(ctx, appID, users.Profile{Provider: p.name, ID: creds[0], Name: "User " + creds[0]})
}

type fixture struct {
	svc     *Service
	apps    *apps.Registry
	users   *users.Service
	twitter *stubProvider
	clock   *testClock
	metrics *observability.Metrics
	appID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	repos := store.NewRepositories()
	registry := apps.NewRegistry(repos.Apps, cache.NewLRUCache(100), time.Minute, zap.NewNop())
	res, err := registry.Create(ctx, registry.Register("My App"))
	require.NoError(t, err)
	_, err = registry.Create(ctx, registry.Register("Other App"))
	require.NoError(t, err)

	userSvc := users.NewService(repos.Users, store.TransactionManager(), zap.NewNop())
	provs := providers.NewRegistry(":", zap.NewNop())
	twitter := &stubProvider{name: "twitter", arity: 2, resolver: userSvc}
	require.NoError(t, provs.Register(&stubProvider{name: "github", arity: 1, resolver: userSvc}))
	require.NoError(t, provs.Register(twitter))

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	svc := NewService(registry, userSvc, provs, token.NewCodec(), 24*time.Hour, zaptest.NewLogger(t)).
		WithClock(clock.Now).
		WithRecorder(metrics)

	return &fixture{
		svc:     svc,
		apps:    registry,
		users:   userSvc,
		twitter: twitter,
		clock:   clock,
		metrics: metrics,
		appID:   res.ID,
	}
}

func (f *fixture) issue(t *testing.T, provider, credential string) *Result {
	t.Helper()
	res, err := f.svc.Issue(context.Background(), IssueRequest{Provider: provider, AppID: f.appID, Token: credential})
	require.NoError(t, err)
	return res
}

func (f *fixture) count(op, outcome string) float64 {
	return testutil.ToFloat64(f.metrics.TokenOperationsTotal.WithLabelValues(op, outcome))
}

func TestEvaluate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	claims := token.NewClaims("u1", "app:a", now, time.Hour)
	iat := now.UnixMilli()
	before := iat - 1
	after := iat + 1

	// issued at .700, cutovers inside the same second
	subSecond := token.NewClaims("u1", "app:a", now.Add(700*time.Millisecond), time.Hour)
	subIat := now.Add(700 * time.Millisecond).UnixMilli()
	subBefore := now.Add(500 * time.Millisecond).UnixMilli()
	subAfter := subIat + 1

	tests := []struct {
		name     string
		claims   *token.Claims
		sigOK    bool
		revokeAt *int64
		at       time.Time
		want     State
	}{
		{"nil claims", nil, true, nil, now, StateInvalid},
		{"bad signature", claims, false, nil, now, StateInvalid},
		{"bad signature wins over revocation", claims, false, &after, now, StateInvalid},
		{"valid", claims, true, nil, now.Add(time.Minute), StateValid},
		{"revocation before issue", claims, true, &before, now, StateValid},
		{"revocation equal to issue is not revoked", claims, true, &iat, now, StateValid},
		{"revocation after issue", claims, true, &after, now, StateRevoked},
		{"revocation wins over expiry", claims, true, &after, now.Add(2 * time.Hour), StateRevoked},
		{"expired at exact expiry", claims, true, nil, now.Add(time.Hour), StateExpired},
		{"expired later", claims, true, &before, now.Add(48 * time.Hour), StateExpired},
		{"sub-second issue, earlier cutover", subSecond, true, &subBefore, now.Add(time.Second), StateValid},
		{"sub-second issue, equal cutover", subSecond, true, &subIat, now.Add(time.Second), StateValid},
		{"sub-second issue, later cutover", subSecond, true, &subAfter, now.Add(time.Second), StateRevoked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.claims, tt.sigOK, tt.revokeAt, tt.at); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "valid", StateValid.String())
	assert.Equal(t, "expired", StateExpired.String())
	assert.Equal(t, "revoked", StateRevoked.String())
	assert.Equal(t, "invalid", StateInvalid.String())
}

func TestService_Issue(t *testing.T) {
	ctx := context.Background()

	t.Run("signs claims for the resolved user", func(t *testing.T) {
		f := newFixture(t)
		res := f.issue(t, "github", "42")

		assert.Equal(t, "github:42", res.User.Identifier)
		assert.Equal(t, f.clock.Now().Add(24*time.Hour), res.ExpiresAt)

		claims, err := token.NewCodec().Parse(res.Token)
		require.NoError(t, err)
		assert.Equal(t, res.User.ID, claims.Subject)
		assert.Equal(t, f.appID, claims.AppID)
		assert.Equal(t, claims.IssuedAt, claims.NotBefore)
		assert.Equal(t, 1.0, f.count(OpIssue, "success"))
	})

	t.Run("accepts the raw app name", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.svc.Issue(ctx, IssueRequest{Provider: "GitHub", AppID: "my app", Token: "1"})
		require.NoError(t, err)
		assert.Equal(t, "app:myapp", res.User.AppID)
	})

	t.Run("compound credential is split for twitter", func(t *testing.T) {
		f := newFixture(t)
		f.issue(t, "twitter", "tok1:tok2")
		require.Len(t, f.twitter.seen, 1)
		assert.Equal(t, []string{"tok1", "tok2"}, f.twitter.seen[0])

		_, err := f.svc.Issue(ctx, IssueRequest{Provider: "twitter", AppID: f.appID, Token: "tok1"})
		assert.True(t, services.IsValidationError(err))
		assert.Len(t, f.twitter.seen, 1)
	})

	t.Run("failures", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Issue(ctx, IssueRequest{Provider: "github", AppID: f.appID})
		assert.ErrorIs(t, err, services.ErrMissingParameters)

		_, err = f.svc.Issue(ctx, IssueRequest{Provider: "myspace", AppID: f.appID, Token: "1"})
		assert.ErrorIs(t, err, services.ErrProviderNotFound)

		_, err = f.svc.Issue(ctx, IssueRequest{Provider: "github", AppID: f.appID, Token: "bad"})
		assert.True(t, services.IsAuthenticationFailedError(err))
		assert.Equal(t, "Failed to authenticate user with github", services.GetErrorMessage(err))

		_, err = f.svc.Issue(ctx, IssueRequest{Provider: "github", AppID: "app:ghost", Token: "1"})
		assert.ErrorIs(t, err, services.ErrAppNotFound)

		assert.Equal(t, 1.0, f.count(OpIssue, "bad_request"))
		assert.Equal(t, 1.0, f.count(OpIssue, string(services.ErrorTypeAuthenticationFailed)))
	})
}

func TestService_RefreshIsIdempotentWhileValid(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "github", "42")

	f.clock.Advance(time.Hour)
	res, err := f.svc.Refresh(context.Background(), issued.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.Token, res.Token)
	assert.Equal(t, issued.ExpiresAt, res.ExpiresAt)
	assert.Equal(t, 1.0, f.count(OpRefresh, "unchanged"))
}

func TestService_RefreshReissuesExpiredToken(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "github", "42")

	f.clock.Advance(25 * time.Hour)
	res, err := f.svc.Refresh(context.Background(), issued.Token)
	require.NoError(t, err)
	assert.NotEqual(t, issued.Token, res.Token)
	assert.True(t, res.ExpiresAt.After(issued.ExpiresAt))

	codec := token.NewCodec()
	oldClaims, err := codec.Parse(issued.Token)
	require.NoError(t, err)
	newClaims, err := codec.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, oldClaims.Subject, newClaims.Subject)
	assert.Equal(t, oldClaims.AppID, newClaims.AppID)

	principal, err := f.svc.Authenticate(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, principal.User.ID)
	assert.Equal(t, 1.0, f.count(OpRefresh, "reissued"))
}

func TestService_RefreshRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := f.svc.Refresh(ctx, tok)
		assert.ErrorIs(t, err, services.ErrMustReauthenticate, tok)
	}

	// forged with a foreign secret
	issued := f.issue(t, "github", "42")
	claims, err := token.NewCodec().Parse(issued.Token)
	require.NoError(t, err)
	forged, err := token.NewCodec().Sign(claims, "not-the-app-secret")
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, forged)
	assert.ErrorIs(t, err, services.ErrMustReauthenticate)

	// unknown user
	ghost, err := token.NewCodec().Sign(token.NewClaims("ghost", f.appID, f.clock.Now(), time.Hour), "whatever")
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, ghost)
	assert.ErrorIs(t, err, services.ErrMustReauthenticate)
}

func TestService_RevokeThenReissue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.issue(t, "github", "42")
	f.clock.Advance(time.Second)
	second := f.issue(t, "github", "42")

	f.clock.Advance(time.Second)
	at, err := f.svc.Revoke(ctx, second.Token, nil)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), at)

	stored, err := f.users.Read(ctx, f.appID, second.User.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RevokeTokensAt)
	assert.Equal(t, at.UnixMilli(), *stored.RevokeTokensAt)

	for _, tok := range []string{first.Token, second.Token} {
		_, err := f.svc.Refresh(ctx, tok)
		assert.ErrorIs(t, err, services.ErrMustReauthenticate)

		_, err = f.svc.Authenticate(ctx, tok)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	}

	f.clock.Advance(time.Second)
	fresh := f.issue(t, "github", "42")
	assert.Nil(t, fresh.User.RevokeTokensAt)

	principal, err := f.svc.Authenticate(ctx, fresh.Token)
	require.NoError(t, err)
	assert.Equal(t, f.appID, principal.AppID)

	stored, err = f.users.Read(ctx, f.appID, fresh.User.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.RevokeTokensAt)
}

func TestService_RevokeAtIssueTimeKeepsToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	issued := f.issue(t, "github", "42")

	at := f.clock.Now()
	got, err := f.svc.Revoke(ctx, issued.Token, &at)
	require.NoError(t, err)
	assert.Equal(t, at, got)

	_, err = f.svc.Authenticate(ctx, issued.Token)
	assert.NoError(t, err)
}

func TestService_RevocationWithinIssueSecond(t *testing.T) {
	tests := []struct {
		name        string
		cutover     time.Duration // relative to issue time
		wantRevoked bool
	}{
		{"cutover earlier in the same second", -200 * time.Millisecond, false},
		{"cutover at the issue millisecond", 0, false},
		{"cutover one millisecond later", time.Millisecond, true},
		{"cutover later in the same second", 250 * time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			f.clock.Advance(700 * time.Millisecond)
			issued := f.issue(t, "github", "42")

			at := f.clock.Now().Add(tt.cutover)
			_, err := f.svc.Revoke(ctx, issued.Token, &at)
			require.NoError(t, err)

			_, authErr := f.svc.Authenticate(ctx, issued.Token)
			_, refreshErr := f.svc.Refresh(ctx, issued.Token)
			if tt.wantRevoked {
				assert.ErrorIs(t, authErr, services.ErrInvalidToken)
				assert.ErrorIs(t, refreshErr, services.ErrMustReauthenticate)
			} else {
				assert.NoError(t, authErr)
				assert.NoError(t, refreshErr)
			}
		})
	}
}

func TestService_RevokeFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Revoke(ctx, "garbage", nil)
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	issued := f.issue(t, "github", "42")
	claims, err := token.NewCodec().Parse(issued.Token)
	require.NoError(t, err)
	forged, err := token.NewCodec().Sign(claims, "forged-secret")
	require.NoError(t, err)

	_, err = f.svc.Revoke(ctx, forged, nil)
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	stored, err := f.users.Read(ctx, f.appID, issued.User.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.RevokeTokensAt)
}

func TestService_RevokeAcceptsExpiredToken(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "github", "42")
	f.clock.Advance(48 * time.Hour)

	_, err := f.svc.Revoke(context.Background(), issued.Token, nil)
	assert.NoError(t, err)
}

func TestService_RevokeRejectsRevokedToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	issued := f.issue(t, "github", "42")

	f.clock.Advance(time.Second)
	at, err := f.svc.Revoke(ctx, issued.Token, nil)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.svc.Revoke(ctx, issued.Token, nil)
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	stored, err := f.users.Read(ctx, f.appID, issued.User.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RevokeTokensAt)
	assert.Equal(t, at.UnixMilli(), *stored.RevokeTokensAt, "cutover must not move")
	assert.Equal(t, float64(1), f.count(OpRevoke, "revoked"))
}

func TestService_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	issued := f.issue(t, "github", "42")

	secretA, err := f.apps.ResolveSecret(ctx, "app:myapp")
	require.NoError(t, err)
	secretB, err := f.apps.ResolveSecret(ctx, "app:otherapp")
	require.NoError(t, err)
	require.NotEqual(t, secretA, secretB)

	codec := token.NewCodec()
	assert.True(t, codec.VerifySignature(issued.Token, secretA))
	assert.False(t, codec.VerifySignature(issued.Token, secretB))

	// the same user id claimed under the other app does not verify there
	claims, err := codec.Parse(issued.Token)
	require.NoError(t, err)
	claims.AppID = "app:otherapp"
	moved, err := codec.Sign(claims, secretA)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, moved)
	assert.Error(t, err)
}

func TestService_SecretRotationInvalidatesTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	issued := f.issue(t, "github", "42")

	_, err := f.apps.ResetSecret(ctx, f.appID)
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, issued.Token)
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	_, err = f.svc.Refresh(ctx, issued.Token)
	assert.ErrorIs(t, err, services.ErrMustReauthenticate)
}

func TestService_AuthenticateInactiveUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	issued := f.issue(t, "github", "42")

	user, err := f.users.Read(ctx, f.appID, issued.User.ID)
	require.NoError(t, err)
	user.Active = false
	require.NoError(t, f.users.Overwrite(ctx, user))

	_, err = f.svc.Authenticate(ctx, issued.Token)
	assert.ErrorIs(t, err, services.ErrInvalidToken)
	assert.Equal(t, 1.0, f.count(OpAuthenticate, "inactive"))
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, 0, zap.NewNop())
	assert.Equal(t, DefaultTimeout, svc.Timeout())
	assert.NotNil(t, svc.codec)
}
