package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/clientdeck/clientdeck/internal/auth"
)

// PortalGuard is the edge gate for shared-portal routes. It only checks that
// the space-scoped session cookie is present; clients with no cookie at all
// are redirected to the access page before any handler runs. Signature and
// expiry verification is deliberately left to the page handlers via
// PortalSessionService.Verify.
func PortalGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		spaceID := c.Param("spaceID")
		if spaceID == "" {
			c.Next()
			return
		}

		if isAccessPath(c.Request.URL.Path, spaceID) {
			c.Next()
			return
		}

		if _, err := c.Cookie(iauth.PortalSessionCookieName(spaceID)); err != nil {
			c.Redirect(http.StatusFound, fmt.Sprintf("/space/%s/shared/access", spaceID))
			c.Abort()
			return
		}

		c.Next()
	}
}

// isAccessPath exempts the access page and its sub-routes (request, password)
// from the cookie requirement; they are exactly the routes a cookie-less
// customer must be able to reach.
func isAccessPath(path, spaceID string) bool {
	prefix := fmt.Sprintf("/space/%s/shared/access", spaceID)
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
