package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultPortalSessionTTL is the non-renewing lifetime of a portal session.
const DefaultPortalSessionTTL = 30 * 24 * time.Hour

// MinPortalSecretLength is the minimum acceptable signing secret size in bytes.
const MinPortalSecretLength = 32

// portalSessionCookiePrefix scopes the cookie name to one space so sessions
// for different spaces coexist in the same browser.
const portalSessionCookiePrefix = "portal_session_"

// ErrPortalSessionInvalid is the only failure PortalSessionService.Verify
// returns. Signature, expiry and space-binding failures are indistinguishable
// to the caller.
var ErrPortalSessionInvalid = errors.New("portal session: invalid credential")

// PortalClaims is the signed payload of a portal session credential.
type PortalClaims struct {
	Email   string `json:"email"`
	SpaceID string `json:"space_id"`
	jwt.RegisteredClaims
}

// PortalSessionConfig bundles configuration for the portal session codec.
type PortalSessionConfig struct {
	Secret       string
	Issuer       string
	SessionTTL   time.Duration
	SecureCookie bool // set the Secure flag on minted cookies (production)
	Clock        func() time.Time
}

// PortalSessionService mints and verifies the space-scoped credential a
// customer holds after redeeming an access token. Credentials are stateless:
// verification is pure computation and needs no store access.
type PortalSessionService struct {
	secret       []byte
	issuer       string
	ttl          time.Duration
	secureCookie bool
	now          func() time.Time
}

// NewPortalSessionService constructs the codec, enforcing a minimum secret length.
func NewPortalSessionService(cfg PortalSessionConfig) (*PortalSessionService, error) {
	if len(cfg.Secret) < MinPortalSecretLength {
		return nil, fmt.Errorf("portal session: secret must be at least %d bytes", MinPortalSecretLength)
	}

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultPortalSessionTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &PortalSessionService{
		secret:       []byte(cfg.Secret),
		issuer:       cfg.Issuer,
		ttl:          ttl,
		secureCookie: cfg.SecureCookie,
		now:          now,
	}, nil
}

// SessionTTL returns the configured session lifetime.
func (s *PortalSessionService) SessionTTL() time.Duration {
	return s.ttl
}

// Mint issues a signed credential binding email to exactly one space.
func (s *PortalSessionService) Mint(spaceID, email string) (string, error) {
	if spaceID == "" {
		return "", errors.New("portal session: space id is required")
	}
	if email == "" {
		return "", errors.New("portal session: email is required")
	}

	now := s.now()
	claims := &PortalClaims{
		Email:   email,
		SpaceID: spaceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("portal session: sign credential: %w", err)
	}

	return signed, nil
}

// Verify checks signature and expiry, and that the embedded space matches the
// space implied by the route being accessed. A credential minted for space A is
// never honoured on space B, regardless of how it was presented.
func (s *PortalSessionService) Verify(credential, expectedSpaceID string) (*PortalClaims, error) {
	if credential == "" || expectedSpaceID == "" {
		return nil, ErrPortalSessionInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims PortalClaims
	_, err := parser.ParseWithClaims(credential, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrPortalSessionInvalid
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrPortalSessionInvalid
	}
	if claims.Email == "" || claims.SpaceID == "" {
		return nil, ErrPortalSessionInvalid
	}
	if claims.SpaceID != expectedSpaceID {
		return nil, ErrPortalSessionInvalid
	}

	return &claims, nil
}

// PortalSessionCookieName returns the cookie name carrying the session for a space.
func PortalSessionCookieName(spaceID string) string {
	return portalSessionCookiePrefix + spaceID
}

// SetSessionCookie places a minted credential on the response using the
// cookie contract: httpOnly, SameSite=Lax, path=/, expiry matching the
// credential. Secure is controlled by configuration so local development
// over plain HTTP keeps working.
func (s *PortalSessionService) SetSessionCookie(c *gin.Context, spaceID, credential string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		PortalSessionCookieName(spaceID),
		credential,
		int(s.ttl.Seconds()),
		"/",
		"",
		s.secureCookie,
		true,
	)
}
