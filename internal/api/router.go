package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/clientdeck/clientdeck/internal/auth"
	"github.com/clientdeck/clientdeck/internal/handlers"
	"github.com/clientdeck/clientdeck/internal/middleware"
	"github.com/clientdeck/clientdeck/internal/services"
)

// Dependencies carries the constructed services the router wires into
// handlers. Everything is built once in the server entrypoint and shared.
type Dependencies struct {
	DB          *gorm.DB
	JWT         *iauth.JWTService
	Sessions    *iauth.PortalSessionService
	Users       *services.UserService
	Spaces      *services.SpaceService
	Memberships *services.MembershipService
	Audit       *services.AuditService
	Portal      *services.PortalAccessService
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return fmt.Errorf("database handle must be provided")
	case d.JWT == nil:
		return fmt.Errorf("jwt service must be provided")
	case d.Sessions == nil:
		return fmt.Errorf("portal session service must be provided")
	case d.Users == nil, d.Spaces == nil, d.Memberships == nil, d.Portal == nil:
		return fmt.Errorf("services must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers both the
// staff API under /api and the customer-facing portal under /space.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	// Basic rate limiting: 100 requests/minute per IP+path
	r.Use(middleware.RateLimit(100, time.Minute))

	// Health endpoint (public)
	r.GET("/health", handlers.Health(deps.DB))

	// Customer-facing portal. No staff auth; PortalGuard redirects cookie-less
	// visitors on guarded routes, and handlers perform deep verification.
	portalHandler := handlers.NewPortalHandler(deps.Portal, deps.Spaces, deps.Memberships, deps.Sessions)

	space := r.Group("/space/:spaceID")
	{
		space.GET("/access", portalHandler.Redeem)

		shared := space.Group("/shared")
		shared.Use(middleware.PortalGuard())
		{
			shared.GET("", portalHandler.PortalRoot)
			shared.GET("/access", portalHandler.AccessPage)
			// Tighter window on the request endpoint: it sends mail.
			shared.POST("/access/request", middleware.RateLimit(10, time.Minute), portalHandler.RequestAccess)
			shared.POST("/access/password", middleware.RateLimit(20, time.Minute), portalHandler.CheckPassword)
		}
	}

	// Public staff auth routes
	authHandler := handlers.NewAuthHandler(deps.Users, deps.JWT)
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", middleware.RateLimit(20, time.Minute), authHandler.Login)
	}

	// Protected staff routes
	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	spaceHandler := handlers.NewSpaceHandler(deps.Spaces, deps.Audit)
	membershipHandler := handlers.NewMembershipHandler(deps.Portal, deps.Memberships, deps.Audit)
	auditHandler := handlers.NewAuditHandler(deps.Audit)

	spaces := api.Group("/spaces")
	{
		spaces.POST("", spaceHandler.Create)
		spaces.GET("", spaceHandler.List)
		spaces.GET("/:id", spaceHandler.Get)
		spaces.PATCH("/:id", spaceHandler.Update)
		spaces.POST("/:id/status", spaceHandler.Transition)
		spaces.PUT("/:id/password", spaceHandler.SetPassword)

		spaces.POST("/:id/memberships", membershipHandler.Invite)
		spaces.GET("/:id/memberships", membershipHandler.List)
		spaces.DELETE("/:id/memberships/:membershipID", membershipHandler.Revoke)
		spaces.POST("/:id/memberships/:membershipID/resend", membershipHandler.Resend)

		spaces.GET("/:id/audit", auditHandler.List)
	}

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
