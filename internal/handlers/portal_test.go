package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/clientdeck/clientdeck/internal/auth"
	"github.com/clientdeck/clientdeck/internal/database/testutil"
	"github.com/clientdeck/clientdeck/internal/middleware"
	"github.com/clientdeck/clientdeck/internal/models"
	"github.com/clientdeck/clientdeck/internal/services"
)

type portalTestEnv struct {
	db          *gorm.DB
	router      *gin.Engine
	spaces      *services.SpaceService
	memberships *services.MembershipService
	portal      *services.PortalAccessService
	sessions    *iauth.PortalSessionService
}

func newPortalTestEnv(t *testing.T) *portalTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	spaces, err := services.NewSpaceService(db)
	require.NoError(t, err)
	memberships, err := services.NewMembershipService(db)
	require.NoError(t, err)
	tokens, err := services.NewTokenService(db)
	require.NoError(t, err)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	sessions, err := iauth.NewPortalSessionService(iauth.PortalSessionConfig{
		Secret: "0123456789abcdef0123456789abcdef",
		Issuer: "clientdeck-test",
	})
	require.NoError(t, err)

	portal, err := services.NewPortalAccessService(
		spaces, memberships, tokens, sessions, audit, nil,
		services.WithSynchronousDispatch(),
	)
	require.NoError(t, err)

	handler := NewPortalHandler(portal, spaces, memberships, sessions)

	r := gin.New()
	space := r.Group("/space/:spaceID")
	{
		space.GET("/access", handler.Redeem)

		shared := space.Group("/shared")
		shared.Use(middleware.PortalGuard())
		{
			shared.GET("", handler.PortalRoot)
			shared.GET("/access", handler.AccessPage)
			shared.POST("/access/request", handler.RequestAccess)
			shared.POST("/access/password", handler.CheckPassword)
		}
	}

	return &portalTestEnv{
		db:          db,
		router:      r,
		spaces:      spaces,
		memberships: memberships,
		portal:      portal,
		sessions:    sessions,
	}
}

func (env *portalTestEnv) activeSpaceWithInvite(t *testing.T) (*models.Space, string) {
	t.Helper()
	ctx := context.Background()

	space, err := env.spaces.Create(ctx, "Acme", "staff-1")
	require.NoError(t, err)

	result, err := env.portal.Invite(ctx, space.ID, "customer@example.com", "staff-1")
	require.NoError(t, err)

	parsed, err := url.Parse(result.Link)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)

	return space, token
}

func TestPortalRedeemSetsCookieAndRedirects(t *testing.T) {
	env := newPortalTestEnv(t)
	space, token := env.activeSpaceWithInvite(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/space/"+space.ID+"/access?token="+url.QueryEscape(token), nil)
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/space/"+space.ID+"/shared", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	require.Equal(t, iauth.PortalSessionCookieName(space.ID), cookie.Name)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, "/", cookie.Path)

	claims, err := env.sessions.Verify(cookie.Value, space.ID)
	require.NoError(t, err)
	require.Equal(t, "customer@example.com", claims.Email)
}

func TestPortalRedeemInvalidToken(t *testing.T) {
	env := newPortalTestEnv(t)
	space, _ := env.activeSpaceWithInvite(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/space/"+space.ID+"/access?token=bogus", nil)
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_OR_EXPIRED_LINK")
	require.Empty(t, rec.Result().Cookies())
}

func TestPortalRedeemArchivedSpace(t *testing.T) {
	env := newPortalTestEnv(t)
	space, token := env.activeSpaceWithInvite(t)

	_, err := env.spaces.Transition(context.Background(), space.ID, models.SpaceStatusArchived)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/space/"+space.ID+"/access?token="+url.QueryEscape(token), nil)
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusGone, rec.Code)
	require.Contains(t, rec.Body.String(), "PORTAL_ARCHIVED")
}

func TestPortalAccessPageStates(t *testing.T) {
	env := newPortalTestEnv(t)
	ctx := context.Background()

	draft, err := env.spaces.Create(ctx, "Draft Space", "staff-1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/space/"+draft.ID+"/shared/access", nil)
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "PORTAL_NOT_READY")

	_, err = env.spaces.Transition(ctx, draft.ID, models.SpaceStatusActive)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/space/"+draft.ID+"/shared/access", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Draft Space")
}

func TestPortalRequestAccessResponseIsConstant(t *testing.T) {
	env := newPortalTestEnv(t)
	space, _ := env.activeSpaceWithInvite(t)

	post := func(email string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost,
			"/space/"+space.ID+"/shared/access/request",
			strings.NewReader(`{"email":"`+email+`"}`))
		req.Header.Set("Content-Type", "application/json")
		env.router.ServeHTTP(rec, req)
		return rec
	}

	approved := post("customer@example.com")
	unknown := post("stranger@example.com")

	// Byte-identical responses: status, headers and body must not reveal
	// whether the email is registered.
	require.Equal(t, http.StatusOK, approved.Code)
	require.Equal(t, approved.Code, unknown.Code)
	require.Equal(t, approved.Body.String(), unknown.Body.String())
}

func TestPortalRootVerifiesSessionAndMembership(t *testing.T) {
	env := newPortalTestEnv(t)
	space, _ := env.activeSpaceWithInvite(t)

	credential, err := env.sessions.Mint(space.ID, "customer@example.com")
	require.NoError(t, err)

	get := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/space/"+space.ID+"/shared", nil)
		req.AddCookie(&http.Cookie{
			Name:  iauth.PortalSessionCookieName(space.ID),
			Value: credential,
		})
		env.router.ServeHTTP(rec, req)
		return rec
	}

	rec := get()
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Email string `json:"email"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, "customer@example.com", body.Data.Email)

	// Revocation takes effect on the next page load even though the
	// session credential itself is still cryptographically valid.
	memberships, err := env.memberships.List(context.Background(), space.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	require.NoError(t, env.memberships.Revoke(context.Background(), space.ID, memberships[0].ID))

	rec = get()
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/space/"+space.ID+"/shared/access", rec.Header().Get("Location"))
}

func TestPortalRootRejectsForeignSpaceSession(t *testing.T) {
	env := newPortalTestEnv(t)
	spaceA, _ := env.activeSpaceWithInvite(t)

	other, err := env.spaces.Create(context.Background(), "Other", "staff-1")
	require.NoError(t, err)
	_, err = env.spaces.Transition(context.Background(), other.ID, models.SpaceStatusActive)
	require.NoError(t, err)

	// Session minted for space A presented under space B's cookie name.
	credential, err := env.sessions.Mint(spaceA.ID, "customer@example.com")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/space/"+other.ID+"/shared", nil)
	req.AddCookie(&http.Cookie{
		Name:  iauth.PortalSessionCookieName(other.ID),
		Value: credential,
	})
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/space/"+other.ID+"/shared/access", rec.Header().Get("Location"))
}

func TestPortalPasswordCheck(t *testing.T) {
	env := newPortalTestEnv(t)
	space, _ := env.activeSpaceWithInvite(t)

	ctx := context.Background()
	mode := models.SpaceAccessRestricted
	_, err := env.spaces.Update(ctx, space.ID, nil, &mode, nil)
	require.NoError(t, err)
	require.NoError(t, env.spaces.SetPassword(ctx, space.ID, "hunter2hunter2"))

	post := func(password string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost,
			"/space/"+space.ID+"/shared/access/password",
			strings.NewReader(`{"password":"`+password+`"}`))
		req.Header.Set("Content-Type", "application/json")
		env.router.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, post("hunter2hunter2").Code)
	require.Equal(t, http.StatusUnauthorized, post("wrong").Code)
}
