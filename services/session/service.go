package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/services"
	"github.com/JalalSordo/para/token"
	"go.uber.org/zap"
)

// Operation names used for metrics
const (
	OpIssue        = "issue"
	OpRefresh      = "refresh"
	OpRevoke       = "revoke"
	OpAuthenticate = "authenticate"
)

// DefaultTimeout is the session lifetime used when none is configured
const DefaultTimeout = 24 * time.Hour

// SecretResolver returns the signing secret of an app
type SecretResolver interface {
	ResolveSecret(ctx context.Context, appID string) (string, error)
}

// UserStore reads and persists users within their app
type UserStore interface {
	Read(ctx context.Context, appID, id string) (*models.User, error)
	Overwrite(ctx context.Context, user *models.User) error
}

// ProviderResolver authenticates an external credential with a named provider
type ProviderResolver interface {
	Resolve(ctx context.Context, provider, appID, credential string) (*models.User, error)
}

// Recorder observes token operation outcomes
type Recorder interface {
	RecordTokenOperation(operation, outcome string)
}

// IssueRequest is the body of a token issuance request
type IssueRequest struct {
	Provider string `json:"provider" validate:"required"`
	AppID    string `json:"appid" validate:"required"`
	Token    string `json:"token" validate:"required"`
}

// Result is a user together with a signed session token
type Result struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// Principal is the authenticated identity attached to a request
type Principal struct {
	User   *models.User
	AppID  string
	Claims *token.Claims
}

// Service is the token lifecycle controller
type Service struct {
	secrets   SecretResolver
	users     UserStore
	providers ProviderResolver
	codec     *token.Codec
	timeout   time.Duration
	now       func() time.Time
	recorder  Recorder
	logger    *zap.Logger
}

// NewService creates a session service. A non-positive timeout uses DefaultTimeout.
func NewService(secrets SecretResolver, users UserStore, providers ProviderResolver, codec *token.Codec, timeout time.Duration, logger *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if codec == nil {
		codec = token.NewCodec()
	}
	return &Service{
		secrets:   secrets,
		users:     users,
		providers: providers,
		codec:     codec,
		timeout:   timeout,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithRecorder attaches an outcome recorder
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// Timeout returns the configured session lifetime
func (s *Service) Timeout() time.Duration {
	return s.timeout
}

func (s *Service) record(op, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordTokenOperation(op, outcome)
	}
}

// Issue authenticates the external credential with the named provider and
// signs a new session token for the resolved user in the app. A successful
// issue clears any standing revocation on the user.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Result, error) {
	if strings.TrimSpace(req.Provider) == "" || strings.TrimSpace(req.AppID) == "" || strings.TrimSpace(req.Token) == "" {
		s.record(OpIssue, "bad_request")
		return nil, services.ErrMissingParameters
	}
	appID := models.AppIdentifier(req.AppID)

	// the app is checked first so users are never created under unknown apps
	secret, err := s.secrets.ResolveSecret(ctx, appID)
	if err != nil {
		s.record(OpIssue, outcomeOf(err))
		return nil, err
	}

	user, err := s.providers.Resolve(ctx, req.Provider, appID, req.Token)
	if err != nil {
		s.record(OpIssue, outcomeOf(err))
		return nil, err
	}

	claims := token.NewClaims(user.ID, appID, s.now(), s.timeout)
	signed, err := s.sign(claims, secret)
	if err != nil {
		s.record(OpIssue, "signing_failure")
		return nil, err
	}

	if user.ClearRevocation() {
		user.UpdatedAt = s.now()
		if err := s.users.Overwrite(ctx, user); err != nil {
			s.logger.Error("failed to clear revocation",
				zap.String("app_id", appID),
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
			s.record(OpIssue, "error")
			return nil, err
		}
	}

	s.record(OpIssue, "success")
	s.logger.Info("session token issued",
		zap.String("app_id", appID),
		zap.String("user_id", user.ID),
		zap.String("provider", strings.ToLower(req.Provider)),
	)
	return &Result{User: user, Token: signed, ExpiresAt: claims.ExpiresAtTime()}, nil
}

// Refresh returns the same token while it is valid and a newly signed one
// once it has expired. Revoked and invalid tokens require a fresh login.
func (s *Service) Refresh(ctx context.Context, tokenString string) (*Result, error) {
	r, err := s.resolve(ctx, tokenString)
	if err != nil {
		s.record(OpRefresh, outcomeOf(err))
		return nil, err
	}

	switch r.state {
	case StateValid:
		s.record(OpRefresh, "unchanged")
		return &Result{User: r.user, Token: tokenString, ExpiresAt: r.claims.ExpiresAtTime()}, nil
	case StateExpired:
		claims := r.claims.Reissue(s.now(), s.timeout)
		signed, err := s.sign(claims, r.secret)
		if err != nil {
			s.record(OpRefresh, "signing_failure")
			return nil, err
		}
		s.record(OpRefresh, "reissued")
		s.logger.Debug("session token reissued",
			zap.String("app_id", claims.AppID),
			zap.String("user_id", claims.Subject),
		)
		return &Result{User: r.user, Token: signed, ExpiresAt: claims.ExpiresAtTime()}, nil
	default:
		s.record(OpRefresh, r.state.String())
		return nil, services.ErrMustReauthenticate
	}
}

// Revoke sets the user's revocation cutover to at (now when nil). Every token
// issued before the cutover, including the presented one, stops validating.
// The presented token must be Valid or Expired; revoked tokens are rejected.
func (s *Service) Revoke(ctx context.Context, tokenString string, at *time.Time) (time.Time, error) {
	r, err := s.resolve(ctx, tokenString)
	if err != nil {
		if services.IsUnauthorizedError(err) || services.IsNotFoundError(err) {
			err = services.ErrInvalidToken
		}
		s.record(OpRevoke, outcomeOf(err))
		return time.Time{}, err
	}
	switch r.state {
	case StateInvalid:
		s.record(OpRevoke, "invalid")
		return time.Time{}, services.ErrInvalidToken
	case StateRevoked:
		s.record(OpRevoke, "revoked")
		return time.Time{}, services.ErrInvalidToken
	}

	cutover := s.now()
	if at != nil {
		cutover = *at
	}
	cutover = time.UnixMilli(cutover.UnixMilli())

	r.user.SetRevokeTokensAt(&cutover)
	r.user.UpdatedAt = s.now()
	if err := s.users.Overwrite(ctx, r.user); err != nil {
		s.logger.Error("failed to persist revocation",
			zap.String("app_id", r.claims.AppID),
			zap.String("user_id", r.user.ID),
			zap.Error(err),
		)
		s.record(OpRevoke, "error")
		return time.Time{}, err
	}

	s.record(OpRevoke, "success")
	s.logger.Info("user tokens revoked",
		zap.String("app_id", r.claims.AppID),
		zap.String("user_id", r.user.ID),
		zap.Time("revoke_tokens_at", cutover),
	)
	return cutover, nil
}

// Authenticate validates a bearer token for passive authentication. Only
// tokens in StateValid produce a principal.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*Principal, error) {
	r, err := s.resolve(ctx, tokenString)
	if err != nil {
		s.record(OpAuthenticate, outcomeOf(err))
		return nil, err
	}
	if r.state != StateValid {
		s.record(OpAuthenticate, r.state.String())
		return nil, services.ErrInvalidToken.WithDetail("state", r.state.String())
	}
	if !r.user.Active {
		s.record(OpAuthenticate, "inactive")
		return nil, services.ErrInvalidToken.WithDetail("state", "inactive")
	}
	s.record(OpAuthenticate, "success")
	return &Principal{User: r.user, AppID: r.claims.AppID, Claims: r.claims}, nil
}

// resolved is a parsed token with its app secret, user and state
type resolved struct {
	claims *token.Claims
	secret string
	user   *models.User
	state  State
}

// resolve parses the token and loads the secret and user it refers to.
// Unknown apps and users surface as ErrMustReauthenticate; store failures stay internal.
func (s *Service) resolve(ctx context.Context, tokenString string) (*resolved, error) {
	claims, err := s.codec.Parse(tokenString)
	if err != nil {
		return nil, services.ErrMustReauthenticate.Wrap(err)
	}
	appID := models.AppIdentifier(claims.AppID)

	secret, err := s.secrets.ResolveSecret(ctx, appID)
	if err != nil {
		if services.IsNotFoundError(err) {
			return nil, services.ErrMustReauthenticate.Wrap(err)
		}
		return nil, err
	}

	user, err := s.users.Read(ctx, appID, claims.Subject)
	if err != nil {
		if services.IsNotFoundError(err) {
			return nil, services.ErrMustReauthenticate.Wrap(err)
		}
		return nil, err
	}

	sigOK := s.codec.VerifySignature(tokenString, secret)
	return &resolved{
		claims: claims,
		secret: secret,
		user:   user,
		state:  Evaluate(claims, sigOK, user.RevokeTokensAt, s.now()),
	}, nil
}

func (s *Service) sign(claims *token.Claims, secret string) (string, error) {
	signed, err := s.codec.Sign(claims, secret)
	if err != nil {
		s.logger.Error("failed to sign session token",
			zap.String("app_id", claims.AppID),
			zap.Error(err),
		)
		return "", services.ErrSigningFailed.Wrap(err)
	}
	return signed, nil
}

// outcomeOf maps an error to a metrics outcome label
func outcomeOf(err error) string {
	var de *services.DomainError
	if errors.As(err, &de) {
		return string(de.Type)
	}
	return "error"
}
