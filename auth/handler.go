// Package auth serves the session token management endpoint: issuing tokens
// through an identity provider, refreshing them and revoking all of a user's
// tokens.
package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JalalSordo/para/handlers"
	"github.com/JalalSordo/para/internal/observability"
	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/services"
	"github.com/JalalSordo/para/services/session"
	"github.com/JalalSordo/para/utils"
	"go.uber.org/zap"
)

const (
	// RevokeTokensAtParam optionally sets the revocation cutover in epoch milliseconds
	RevokeTokensAtParam = "revokeTokensAt"

	maxBodyBytes = 1 << 20
)

// SessionService is the token lifecycle used by the handler
type SessionService interface {
	Issue(ctx context.Context, req session.IssueRequest) (*session.Result, error)
	Refresh(ctx context.Context, token string) (*session.Result, error)
	Revoke(ctx context.Context, token string, at *time.Time) (time.Time, error)
}

// TokenResponse is returned by issue and refresh
type TokenResponse struct {
	User  *models.User `json:"user"`
	Token TokenInfo    `json:"token"`
}

// TokenInfo describes a signed session token; Expires is epoch milliseconds
type TokenInfo struct {
	AccessToken string `json:"access_token"`
	Expires     int64  `json:"expires"`
}

// RevokeResponse confirms a revocation
type RevokeResponse struct {
	Message        string `json:"message"`
	RevokeTokensAt int64  `json:"revokeTokensAt"`
}

// Handler handles the token management endpoint
type Handler struct {
	sessions SessionService
	logger   *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(sessions SessionService, logger *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		logger:   logger,
	}
}

// HandleIssue exchanges a provider credential for a session token.
// Body: {"provider": "...", "appid": "...", "token": "..."}; the same names
// are accepted as query parameters.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	var req session.IssueRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && err != io.EOF {
		h.log(r).Debug("invalid issue request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	// query parameters fill whatever the body left blank
	q := r.URL.Query()
	req.Provider = firstNonBlank(req.Provider, q.Get("provider"))
	req.AppID = firstNonBlank(req.AppID, q.Get("appid"))
	req.Token = firstNonBlank(req.Token, q.Get("token"))
	if err := utils.ValidateStruct(req); err != nil {
		details := make(map[string]interface{})
		for field, msg := range utils.GetValidationFields(err) {
			details[field] = msg
		}
		_ = utils.WriteBadRequest(w, services.GetErrorMessage(services.ErrMissingParameters), details)
		return
	}

	res, err := h.sessions.Issue(r.Context(), req)
	if err != nil {
		handlers.HandleServiceError(w, err, h.log(r))
		return
	}
	h.writeToken(w, res)
}

// HandleRefresh returns the presented token while it is valid, or a newly
// signed one once it has expired
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	tok := utils.ExtractBearerToken(r)
	if tok == "" {
		handlers.HandleServiceError(w, services.ErrMustReauthenticate, h.log(r))
		return
	}

	res, err := h.sessions.Refresh(r.Context(), tok)
	if err != nil {
		handlers.HandleServiceError(w, err, h.log(r))
		return
	}
	h.writeToken(w, res)
}

// HandleRevoke revokes every token of the presented token's user issued
// before revokeTokensAt (default: now)
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	var at *time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get(RevokeTokensAtParam)); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			handlers.HandleServiceError(w, services.ErrInvalidRevocationTime.WithDetail(RevokeTokensAtParam, raw), h.log(r))
			return
		}
		t := time.UnixMilli(ms)
		at = &t
	}

	tok := utils.ExtractBearerToken(r)
	if tok == "" {
		handlers.HandleServiceError(w, services.ErrInvalidToken, h.log(r))
		return
	}

	cutover, err := h.sessions.Revoke(r.Context(), tok, at)
	if err != nil {
		handlers.HandleServiceError(w, err, h.log(r))
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, RevokeResponse{
		Message:        "All tokens will be revoked at " + cutover.UTC().Format(time.RFC3339),
		RevokeTokensAt: cutover.UnixMilli(),
	})
}

// log returns the handler logger tagged with the request id
func (h *Handler) log(r *http.Request) *zap.Logger {
	return observability.LoggerFromContext(r.Context(), h.logger)
}

func (h *Handler) writeToken(w http.ResponseWriter, res *session.Result) {
	if err := utils.WriteJSON(w, http.StatusOK, TokenResponse{
		User: res.User,
		Token: TokenInfo{
			AccessToken: res.Token,
			Expires:     res.ExpiresAt.UnixMilli(),
		},
	}); err != nil {
		h.logger.Error("failed to write token response", zap.Error(err))
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
