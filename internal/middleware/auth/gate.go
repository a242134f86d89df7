package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/launchkit/launchkit/internal/models"
	"github.com/launchkit/launchkit/internal/rbac"
	"github.com/launchkit/launchkit/internal/session"
)

const (
	CookieName = "session_token"

	ctxSession = "session"
	ctxUser    = "user"
)

// Gate guards routes. RedirectAnonymous is the cheap layer: it looks only at
// whether a token is present and never touches the store. Require is the
// authoritative layer and always validates against the store; no route may
// rely on the cheap layer alone.
type Gate struct {
	Sessions *session.Manager
}

func NewGate(s *session.Manager) *Gate {
	return &Gate{Sessions: s}
}

// BearerFromRequest extracts the session token from the cookie or the
// Authorization header.
func BearerFromRequest(c echo.Context) string {
	if ck, err := c.Cookie(CookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func wantsHTML(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get("Accept"), "text/html")
}

// RedirectAnonymous bounces visitors without any token to the login page,
// preserving the requested destination. It makes no authorization decision.
func (g *Gate) RedirectAnonymous(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if BearerFromRequest(c) == "" {
			if wantsHTML(c) {
				dest := c.Request().URL.RequestURI()
				return c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(dest))
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		return next(c)
	}
}

// Require validates the session against the store and checks the caller's
// role against the minimum. It runs even when RedirectAnonymous already let
// the request through.
func (g *Gate) Require(min rbac.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			bearer := BearerFromRequest(c)
			s, user, err := g.Sessions.ValidateWithUser(c.Request().Context(), bearer)
			if err != nil {
				if wantsHTML(c) {
					dest := c.Request().URL.RequestURI()
					return c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(dest))
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !rbac.Authorize(rbac.Role(user.Role), min) {
				if wantsHTML(c) {
					return c.Redirect(http.StatusFound, "/")
				}
				// Same body for every privilege failure: no hints about which
				// role would have passed.
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			c.Set(ctxSession, s)
			c.Set(ctxUser, user)
			return next(c)
		}
	}
}

// CurrentUser returns the user attached by Require.
func CurrentUser(c echo.Context) (*models.User, bool) {
	u, ok := c.Get(ctxUser).(*models.User)
	return u, ok
}

// CurrentSession returns the session attached by Require.
func CurrentSession(c echo.Context) (*models.Session, bool) {
	s, ok := c.Get(ctxSession).(*models.Session)
	return s, ok
}
