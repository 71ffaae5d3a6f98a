package handlers

import (
	"net/http"
	"time"

	"github.com/JalalSordo/para/middleware"
	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/utils"
	"go.uber.org/zap"
)

// MeResponse describes the authenticated caller
type MeResponse struct {
	User      *models.User `json:"user"`
	AppID     string       `json:"appid"`
	IssuedAt  int64        `json:"issuedAt,omitempty"`
	ExpiresAt int64        `json:"expiresAt,omitempty"`
}

// MeHandler serves the principal attached by the auth filter
type MeHandler struct {
	logger *zap.Logger
}

// NewMeHandler creates a new MeHandler
func NewMeHandler(logger *zap.Logger) *MeHandler {
	return &MeHandler{logger: logger}
}

// HandleMe handles GET /api/v1/me
func (h *MeHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		_ = utils.WriteUnauthorizedChallenge(w, utils.ChallengeBearer, "Authentication required")
		return
	}

	resp := MeResponse{
		User:  principal.User,
		AppID: principal.AppID,
	}
	if c := principal.Claims; c != nil {
		resp.IssuedAt = millis(c.IssuedAtTime())
		resp.ExpiresAt = millis(c.ExpiresAtTime())
	}
	_ = utils.WriteOK(w, resp)
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
