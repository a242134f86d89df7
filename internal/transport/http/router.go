package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"github.com/launchkit/launchkit/internal/handlers"
	authmw "github.com/launchkit/launchkit/internal/middleware/auth"
	"github.com/launchkit/launchkit/internal/middleware/csrf"
	"github.com/launchkit/launchkit/internal/rbac"
)

type Deps struct {
	DB                *gorm.DB
	Gate              *authmw.Gate
	AuthHandler       *handlers.AuthHandler
	UserHandler       *handlers.UserHandler
	PostHandler       *handlers.PostHandler
	ContactHandler    *handlers.ContactHandler
	NewsletterHandler *handlers.NewsletterHandler
	SearchHandler     *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	// Credential endpoints are throttled; everything else is not.
	limited := middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(5))

	v1.POST("/register", d.AuthHandler.Register, limited)
	v1.POST("/login", d.AuthHandler.Login, limited)
	v1.POST("/logout", d.AuthHandler.Logout)
	v1.POST("/password-reset", d.AuthHandler.RequestPasswordReset, limited)

	// The mailed links land on the bare paths, outside the API prefix.
	e.GET("/verify-email/:token", d.AuthHandler.VerifyEmail)
	e.POST("/reset-password/:token", d.AuthHandler.ResetPassword, limited)

	v1.GET("/posts", d.PostHandler.ListPosts)
	v1.GET("/posts/:slug", d.PostHandler.GetPost)
	v1.GET("/search", d.SearchHandler.Search)

	v1.POST("/contact", d.ContactHandler.Submit)

	v1.POST("/newsletter/subscribe", d.NewsletterHandler.Subscribe, limited)
	v1.GET("/newsletter/confirm/:token", d.NewsletterHandler.Confirm)
	v1.GET("/newsletter/unsubscribe/:token", d.NewsletterHandler.Unsubscribe)

	// Cookie-authenticated mutating routes get the double-submit CSRF check on
	// top of the session gate.
	protect := csrf.Middleware(csrf.Config{})

	me := v1.Group("/me", protect, d.Gate.Require(rbac.RoleUser))
	me.GET("", d.UserHandler.Me)
	me.PATCH("", d.UserHandler.UpdateMe)
	me.POST("/password", d.UserHandler.ChangePassword)

	// RedirectAnonymous is only a fast bounce for visitors with no token at
	// all; Require is the check that counts.
	editor := v1.Group("/editor", d.Gate.RedirectAnonymous, protect, d.Gate.Require(rbac.RoleEditor))
	editor.POST("/posts", d.PostHandler.CreatePost)
	editor.PATCH("/posts/:id", d.PostHandler.UpdatePost)
	editor.DELETE("/posts/:id", d.PostHandler.DeletePost)

	admin := v1.Group("/admin", d.Gate.RedirectAnonymous, protect, d.Gate.Require(rbac.RoleAdmin))
	admin.GET("/users", d.UserHandler.ListUsers)
	admin.PATCH("/users/:id/role", d.UserHandler.UpdateRole)
	admin.DELETE("/users/:id", d.UserHandler.DeleteUser)
	admin.GET("/contact", d.ContactHandler.List)
	admin.DELETE("/contact/:id", d.ContactHandler.Delete)
}
