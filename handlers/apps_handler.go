package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/JalalSordo/para/models"
	"github.com/JalalSordo/para/services"
	"github.com/JalalSordo/para/services/apps"
	"github.com/JalalSordo/para/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxAdminBody = 64 << 10

// AppRegistry is the tenant registry used by the admin endpoints
type AppRegistry interface {
	Register(name string) *models.App
	Create(ctx context.Context, app *models.App) (*apps.CreateResult, error)
	Read(ctx context.Context, id string) (*models.App, error)
	ResetSecret(ctx context.Context, id string) (*apps.CreateResult, error)
	SetActive(ctx context.Context, id string, active bool) (*models.App, error)
	UpdateDatatypes(ctx context.Context, id string, add, remove []string) (*models.App, error)
}

// CreateAppRequest is the body of POST /api/v1/apps
type CreateAppRequest struct {
	Name      string   `json:"name" validate:"required,max=255"`
	Shared    bool     `json:"shared"`
	Datatypes []string `json:"datatypes" validate:"omitempty,dive,required,max=64"`
}

// UpdateAppRequest is the body of PATCH /api/v1/apps/{id}
type UpdateAppRequest struct {
	Active          *bool    `json:"active"`
	AddDatatypes    []string `json:"addDatatypes" validate:"omitempty,dive,required,max=64"`
	RemoveDatatypes []string `json:"removeDatatypes"`
}

// AppsHandler serves tenant administration
type AppsHandler struct {
	registry AppRegistry
	logger   *zap.Logger
}

// NewAppsHandler creates a new AppsHandler
func NewAppsHandler(registry AppRegistry, logger *zap.Logger) *AppsHandler {
	return &AppsHandler{
		registry: registry,
		logger:   logger,
	}
}

// Routes mounts the admin endpoints on a chi router
func (h *AppsHandler) Routes(r chi.Router) {
	r.Post("/", h.HandleCreate)
	r.Get("/{id}", h.HandleGet)
	r.Patch("/{id}", h.HandleUpdate)
	r.Post("/{id}/secret", h.HandleResetSecret)
}

// HandleCreate handles POST /api/v1/apps
func (h *AppsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateAppRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	app := h.registry.Register(req.Name)
	app.Shared = req.Shared
	app.AddDatatypes(req.Datatypes...)

	result, err := h.registry.Create(r.Context(), app)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if result == nil {
		HandleServiceError(w, services.ErrAppExists.WithDetail("id", app.ID), h.logger)
		return
	}

	_ = utils.WriteCreated(w, result)
}

// HandleGet handles GET /api/v1/apps/{id}
func (h *AppsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	app, err := h.registry.Read(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if app == nil {
		_ = utils.WriteNotFound(w, "App not found")
		return
	}
	_ = utils.WriteOK(w, app)
}

// HandleResetSecret handles POST /api/v1/apps/{id}/secret
func (h *AppsHandler) HandleResetSecret(w http.ResponseWriter, r *http.Request) {
	result, err := h.registry.ResetSecret(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	_ = utils.WriteOK(w, result)
}

// HandleUpdate handles PATCH /api/v1/apps/{id}
func (h *AppsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateAppRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var (
		app *models.App
		err error
	)
	if req.Active != nil {
		if app, err = h.registry.SetActive(ctx, id, *req.Active); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if len(req.AddDatatypes) > 0 || len(req.RemoveDatatypes) > 0 || app == nil {
		if app, err = h.registry.UpdateDatatypes(ctx, id, req.AddDatatypes, req.RemoveDatatypes); err != nil {
			h.writeError(w, err)
			return
		}
	}

	_ = utils.WriteOK(w, app)
}

func (h *AppsHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxAdminBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Debug("invalid admin request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return false
	}
	return true
}

// writeError reports unknown apps as 404 on admin routes
func (h *AppsHandler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrAppNotFound) {
		_ = utils.WriteNotFound(w, "App not found")
		return
	}
	HandleServiceError(w, err, h.logger)
}
