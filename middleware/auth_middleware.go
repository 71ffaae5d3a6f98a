package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/JalalSordo/para/services/session"
	"github.com/JalalSordo/para/utils"
	"go.uber.org/zap"
)

// Authenticator validates bearer tokens for passive authentication
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*session.Principal, error)
}

// ManagementHandler serves the token management endpoint
type ManagementHandler interface {
	HandleIssue(w http.ResponseWriter, r *http.Request)
	HandleRefresh(w http.ResponseWriter, r *http.Request)
	HandleRevoke(w http.ResponseWriter, r *http.Request)
}

// JWTAuthFilter routes token management requests and passively
// authenticates protected API requests
type JWTAuthFilter struct {
	managementPath  string
	protectedPrefix string
	auth            Authenticator
	management      ManagementHandler
	logger          *zap.Logger
}

// NewJWTAuthFilter creates the filter. managementPath is matched exactly;
// requests under protectedPrefix are passively authenticated.
func NewJWTAuthFilter(managementPath, protectedPrefix string, auth Authenticator, management ManagementHandler, logger *zap.Logger) *JWTAuthFilter {
	return &JWTAuthFilter{
		managementPath:  strings.TrimSuffix(managementPath, "/"),
		protectedPrefix: protectedPrefix,
		auth:            auth,
		management:      management,
		logger:          logger,
	}
}

// Handler wraps next with the filter. Management requests never reach next;
// every other request does, with or without a principal.
func (f *JWTAuthFilter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.isManagement(r) {
			f.serveManagement(w, r)
			return
		}

		if f.isProtected(r) && GetPrincipalFromContext(r.Context()) == nil {
			r = f.authenticate(w, r)
		}
		next.ServeHTTP(w, r)
	})
}

func (f *JWTAuthFilter) isManagement(r *http.Request) bool {
	return strings.TrimSuffix(r.URL.Path, "/") == f.managementPath
}

func (f *JWTAuthFilter) isProtected(r *http.Request) bool {
	return f.protectedPrefix != "" && strings.HasPrefix(r.URL.Path, f.protectedPrefix)
}

func (f *JWTAuthFilter) serveManagement(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		f.management.HandleIssue(w, r)
	case http.MethodGet:
		f.management.HandleRefresh(w, r)
	case http.MethodDelete:
		f.management.HandleRevoke(w, r)
	default:
		w.Header().Set("Allow", strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodDelete}, ", "))
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	}
}

// authenticate attaches a principal for a valid token. Missing and invalid
// tokens only set a challenge header.
func (f *JWTAuthFilter) authenticate(w http.ResponseWriter, r *http.Request) *http.Request {
	ctx := r.Context()
	requestID := GetRequestIDFromContext(ctx)

	tok := utils.ExtractBearerToken(r)
	if tok == "" {
		utils.SetChallenge(w, utils.ChallengeBearer)
		return r
	}

	principal, err := f.auth.Authenticate(ctx, tok)
	if err != nil {
		f.logger.Debug("token rejected",
			zap.String("request_id", requestID),
			zap.Error(err))
		utils.SetChallenge(w, utils.ChallengeInvalidToken)
		return r
	}

	f.logger.Debug("authentication successful",
		zap.String("request_id", requestID),
		zap.String("app_id", principal.AppID),
		zap.String("user_id", principal.User.ID))
	return r.WithContext(WithPrincipal(ctx, principal))
}

// RequireAuthenticated rejects requests without a principal
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetPrincipalFromContext(r.Context()) == nil {
			challenge := w.Header().Get("WWW-Authenticate")
			if challenge == "" {
				challenge = utils.ChallengeBearer
			}
			_ = utils.WriteUnauthorizedChallenge(w, challenge, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
