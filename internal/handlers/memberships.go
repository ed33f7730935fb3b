package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clientdeck/clientdeck/internal/middleware"
	"github.com/clientdeck/clientdeck/internal/services"
	appErrors "github.com/clientdeck/clientdeck/pkg/errors"
	"github.com/clientdeck/clientdeck/pkg/response"
)

// MembershipHandler exposes the staff-side invitation surface.
type MembershipHandler struct {
	portal      *services.PortalAccessService
	memberships *services.MembershipService
	audit       *services.AuditService
}

// NewMembershipHandler constructs a MembershipHandler.
func NewMembershipHandler(
	portal *services.PortalAccessService,
	memberships *services.MembershipService,
	audit *services.AuditService,
) *MembershipHandler {
	return &MembershipHandler{
		portal:      portal,
		memberships: memberships,
		audit:       audit,
	}
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/spaces/:id/memberships
func (h *MembershipHandler) Invite(c *gin.Context) {
	var req inviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.portal.Invite(requestContext(c), c.Param("id"), req.Email, c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateMembership):
			response.Error(c, appErrors.ErrDuplicateEmail)
		case errors.Is(err, services.ErrSpaceNotFound):
			response.Error(c, appErrors.ErrNotFound)
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"membership": result.Membership,
		"link":       result.Link,
		"dispatched": result.Dispatched,
	})
}

// GET /api/spaces/:id/memberships
func (h *MembershipHandler) List(c *gin.Context) {
	memberships, err := h.memberships.List(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"memberships": memberships})
}

// DELETE /api/spaces/:id/memberships/:membershipID
func (h *MembershipHandler) Revoke(c *gin.Context) {
	ctx := requestContext(c)
	spaceID := c.Param("id")

	membership, err := h.memberships.Get(ctx, spaceID, c.Param("membershipID"))
	if err != nil {
		response.Error(c, membershipError(err))
		return
	}

	if err := h.memberships.Revoke(ctx, spaceID, membership.ID); err != nil {
		response.Error(c, membershipError(err))
		return
	}

	if h.audit != nil {
		h.audit.Record(ctx, spaceID, c.GetString(middleware.CtxUserIDKey),
			services.AuditActionCustomerRevoked, membership.Email)
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// POST /api/spaces/:id/memberships/:membershipID/resend
func (h *MembershipHandler) Resend(c *gin.Context) {
	link, err := h.portal.ResendInvite(requestContext(c), c.Param("id"), c.Param("membershipID"))
	if err != nil {
		response.Error(c, membershipError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"link": link})
}

func membershipError(err error) error {
	switch {
	case errors.Is(err, services.ErrMembershipNotFound), errors.Is(err, services.ErrSpaceNotFound):
		return appErrors.ErrNotFound
	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}
