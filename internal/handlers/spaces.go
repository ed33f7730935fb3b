package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clientdeck/clientdeck/internal/middleware"
	"github.com/clientdeck/clientdeck/internal/models"
	"github.com/clientdeck/clientdeck/internal/services"
	appErrors "github.com/clientdeck/clientdeck/pkg/errors"
	"github.com/clientdeck/clientdeck/pkg/response"
)

// SpaceHandler exposes staff-side space management.
type SpaceHandler struct {
	spaces *services.SpaceService
	audit  *services.AuditService
}

// NewSpaceHandler constructs a SpaceHandler.
func NewSpaceHandler(spaces *services.SpaceService, audit *services.AuditService) *SpaceHandler {
	return &SpaceHandler{spaces: spaces, audit: audit}
}

type createSpaceRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type updateSpaceRequest struct {
	Name                *string `json:"name" validate:"omitempty,max=200"`
	AccessMode          *string `json:"access_mode" validate:"omitempty,oneof=public restricted"`
	RequireEmailCapture *bool   `json:"require_email_capture"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active completed archived"`
}

type setPasswordRequest struct {
	// Empty password clears the gate.
	Password string `json:"password" validate:"omitempty,min=8,max=128"`
}

// POST /api/spaces
func (h *SpaceHandler) Create(c *gin.Context) {
	var req createSpaceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	space, err := h.spaces.Create(requestContext(c), req.Name, c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"space": space})
}

// GET /api/spaces
func (h *SpaceHandler) List(c *gin.Context) {
	spaces, err := h.spaces.List(requestContext(c))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"spaces": spaces})
}

// GET /api/spaces/:id
func (h *SpaceHandler) Get(c *gin.Context) {
	space, err := h.spaces.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, spaceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"space": space})
}

// PATCH /api/spaces/:id
func (h *SpaceHandler) Update(c *gin.Context) {
	var req updateSpaceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	var mode *models.SpaceAccessMode
	if req.AccessMode != nil {
		m := models.SpaceAccessMode(*req.AccessMode)
		mode = &m
	}

	space, err := h.spaces.Update(requestContext(c), c.Param("id"), req.Name, mode, req.RequireEmailCapture)
	if err != nil {
		response.Error(c, spaceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"space": space})
}

// POST /api/spaces/:id/status
func (h *SpaceHandler) Transition(c *gin.Context) {
	var req transitionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	space, err := h.spaces.Transition(ctx, c.Param("id"), models.SpaceStatus(req.Status))
	if err != nil {
		response.Error(c, spaceError(err))
		return
	}

	if h.audit != nil {
		h.audit.Record(ctx, space.ID, c.GetString(middleware.CtxUserIDKey),
			services.AuditActionSpaceTransition, string(space.Status))
	}

	response.Success(c, http.StatusOK, gin.H{"space": space})
}

// PUT /api/spaces/:id/password
func (h *SpaceHandler) SetPassword(c *gin.Context) {
	var req setPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	spaceID := c.Param("id")
	if err := h.spaces.SetPassword(ctx, spaceID, req.Password); err != nil {
		response.Error(c, spaceError(err))
		return
	}

	if h.audit != nil {
		h.audit.Record(ctx, spaceID, c.GetString(middleware.CtxUserIDKey),
			services.AuditActionPasswordModified, "")
	}

	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

func spaceError(err error) error {
	switch {
	case errors.Is(err, services.ErrSpaceNotFound):
		return appErrors.ErrNotFound
	case errors.Is(err, services.ErrInvalidTransition):
		return appErrors.NewBadRequest("The requested status change is not allowed")
	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}
