package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/clientdeck/clientdeck/internal/auth"
	"github.com/clientdeck/clientdeck/internal/services"
	appErrors "github.com/clientdeck/clientdeck/pkg/errors"
	"github.com/clientdeck/clientdeck/pkg/response"
)

// accessRequestMessage is returned for every self-service link request,
// approved or not. Changing it for one branch would reintroduce the
// enumeration oracle the constant response exists to prevent.
const accessRequestMessage = "If this email is registered for the space, a new access link has been sent."

// PortalHandler exposes the customer-facing portal surface. No staff
// authentication applies here; access is governed entirely by tokens,
// sessions and the space lifecycle.
type PortalHandler struct {
	portal      *services.PortalAccessService
	spaces      *services.SpaceService
	memberships *services.MembershipService
	sessions    *iauth.PortalSessionService
}

// NewPortalHandler constructs a PortalHandler.
func NewPortalHandler(
	portal *services.PortalAccessService,
	spaces *services.SpaceService,
	memberships *services.MembershipService,
	sessions *iauth.PortalSessionService,
) *PortalHandler {
	return &PortalHandler{
		portal:      portal,
		spaces:      spaces,
		memberships: memberships,
		sessions:    sessions,
	}
}

// GET /space/:spaceID/access?token=...
//
// Redeems a single-use token: on success the space-scoped session cookie is
// set and the customer is redirected into the portal.
func (h *PortalHandler) Redeem(c *gin.Context) {
	spaceID := c.Param("spaceID")
	token := c.Query("token")

	redemption, err := h.portal.RedeemToken(requestContext(c), spaceID, token)
	if err != nil {
		response.Error(c, portalError(err))
		return
	}

	h.sessions.SetSessionCookie(c, redemption.SpaceID, redemption.Credential)
	c.Redirect(http.StatusFound, fmt.Sprintf("/space/%s/shared", redemption.SpaceID))
}

// GET /space/:spaceID/shared/access
//
// The access page: the redirect target for cookie-less visitors. Reveals only
// what an uninvited visitor may learn about the space.
func (h *PortalHandler) AccessPage(c *gin.Context) {
	space, err := h.spaces.Get(requestContext(c), c.Param("spaceID"))
	if err != nil {
		response.Error(c, portalError(err))
		return
	}

	switch space.Status {
	case "draft":
		response.Error(c, appErrors.ErrPortalNotReady)
		return
	case "archived":
		response.Error(c, appErrors.ErrPortalArchived)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"space_name":            space.Name,
		"access_mode":           space.AccessMode,
		"password_required":     space.PasswordProtected(),
		"require_email_capture": space.RequireEmailCapture,
	})
}

type accessRequestPayload struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /space/:spaceID/shared/access/request
//
// Self-service link re-request. The response is byte-identical whether or not
// the email is approved.
func (h *PortalHandler) RequestAccess(c *gin.Context) {
	var req accessRequestPayload
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.portal.RequestAccess(requestContext(c), c.Param("spaceID"), req.Email); err != nil {
		// RequestAccess swallows internal failures by contract; an error here
		// would still not be allowed to change the response.
		_ = err
	}

	response.Success(c, http.StatusOK, gin.H{"message": accessRequestMessage})
}

type passwordCheckPayload struct {
	Password string `json:"password" validate:"required"`
}

// POST /space/:spaceID/shared/access/password
//
// Shared-password gate for restricted spaces, layered on top of the session.
func (h *PortalHandler) CheckPassword(c *gin.Context) {
	var req passwordCheckPayload
	if !bindAndValidate(c, &req) {
		return
	}

	ok, err := h.spaces.CheckPassword(requestContext(c), c.Param("spaceID"), req.Password)
	if err != nil {
		response.Error(c, portalError(err))
		return
	}

	if !ok {
		response.Error(c, appErrors.New("PASSWORD_INCORRECT", "The password is incorrect", http.StatusUnauthorized))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"granted": true})
}

// GET /space/:spaceID/shared
//
// Portal root. PortalGuard only checked cookie presence; this handler performs
// the deep verification: signature, expiry, space binding, space lifecycle,
// and that the membership has not been revoked since the session was minted.
func (h *PortalHandler) PortalRoot(c *gin.Context) {
	spaceID := c.Param("spaceID")
	ctx := requestContext(c)

	credential, err := c.Cookie(iauth.PortalSessionCookieName(spaceID))
	if err != nil {
		c.Redirect(http.StatusFound, fmt.Sprintf("/space/%s/shared/access", spaceID))
		return
	}

	claims, err := h.sessions.Verify(credential, spaceID)
	if err != nil {
		c.Redirect(http.StatusFound, fmt.Sprintf("/space/%s/shared/access", spaceID))
		return
	}

	space, err := h.spaces.Get(ctx, spaceID)
	if err != nil {
		response.Error(c, portalError(err))
		return
	}

	switch space.Status {
	case "draft":
		response.Error(c, appErrors.ErrPortalNotReady)
		return
	case "archived":
		response.Error(c, appErrors.ErrPortalArchived)
		return
	}

	// Sessions are stateless, so revocation is enforced here: a customer
	// whose membership was removed loses access on the next page load.
	approved, err := h.memberships.IsApproved(ctx, spaceID, claims.Email)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	if !approved {
		c.Redirect(http.StatusFound, fmt.Sprintf("/space/%s/shared/access", spaceID))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"space": gin.H{
			"id":          space.ID,
			"name":        space.Name,
			"status":      space.Status,
			"access_mode": space.AccessMode,
		},
		"email":             claims.Email,
		"password_required": space.PasswordProtected(),
	})
}

func portalError(err error) error {
	switch {
	case errors.Is(err, services.ErrPortalNotReady):
		return appErrors.ErrPortalNotReady
	case errors.Is(err, services.ErrPortalArchived):
		return appErrors.ErrPortalArchived
	case errors.Is(err, services.ErrInvalidOrExpiredLink):
		return appErrors.ErrInvalidOrExpiredLink
	case errors.Is(err, services.ErrSpaceNotFound):
		return appErrors.ErrNotFound
	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}
