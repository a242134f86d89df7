package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/launchkit/launchkit/internal/hash"
	authmw "github.com/launchkit/launchkit/internal/middleware/auth"
	"github.com/launchkit/launchkit/internal/models"
	"github.com/launchkit/launchkit/internal/mykafka"
	"github.com/launchkit/launchkit/internal/rbac"
	"github.com/launchkit/launchkit/internal/session"
	"github.com/launchkit/launchkit/internal/token"
)

const minPasswordLen = 8

type AuthHandler struct {
	DB       *gorm.DB
	Sessions *session.Manager
	Producer *mykafka.Producer
}

func CreateCookie(name string, value string, path string, expTime time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expTime,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}

func (h *AuthHandler) publish(c echo.Context, topic, key string, event map[string]interface{}) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, topic, key, event); err != nil {
		c.Logger().Errorf("kafka publish error: %v", err)
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	req.Email = session.NormalizeEmail(req.Email)
	fields := map[string]string{}
	if !validEmail(req.Email) {
		fields["email"] = "a valid email address is required"
	}
	if len(req.Password) < minPasswordLen {
		fields["password"] = fmt.Sprintf("password must be at least %d characters", minPasswordLen)
	}
	if len(fields) > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": fields})
	}

	var existing models.User
	err := h.DB.Where("email = ?", req.Email).First(&existing).Error
	if err == nil {
		return echo.NewHTTPError(http.StatusConflict, "email already registered")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	passwordHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	user := models.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Role:         string(rbac.RoleUser),
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	if err := h.Sessions.RequestVerification(c.Request().Context(), user.Email); err != nil {
		c.Logger().Errorf("verification mail error: %v", err)
	}

	h.publish(c, mykafka.TopicUserEvents, user.ID, map[string]interface{}{
		"type":   "user_registered",
		"userID": user.ID,
		"email":  user.Email,
	})

	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	meta := session.Meta{IP: c.RealIP(), UserAgent: c.Request().UserAgent()}
	s, err := h.Sessions.Login(c.Request().Context(), req.Email, req.Password, meta)
	if errors.Is(err, session.ErrInvalidCredentials) {
		// One message for unknown email and wrong password alike.
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	c.SetCookie(CreateCookie(authmw.CookieName, s.Token, "/", s.ExpiresAt))

	h.publish(c, mykafka.TopicUserEvents, s.UserID, map[string]interface{}{
		"type":   "user_logged_in",
		"userID": s.UserID,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"token":      s.Token,
		"expires_at": s.ExpiresAt,
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	bearer := authmw.BearerFromRequest(c)
	if err := h.Sessions.Logout(c.Request().Context(), bearer); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	expired := time.Now().Add(-1 * time.Hour)
	c.SetCookie(CreateCookie(authmw.CookieName, "", "/", expired))

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	err := h.Sessions.VerifyEmail(c.Request().Context(), c.Param("token"))
	if errors.Is(err, token.ErrNotFound) || errors.Is(err, token.ErrExpired) {
		return echo.NewHTTPError(http.StatusGone, "link expired or already used, request a new one")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "email verified"})
}

func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	req.Email = session.NormalizeEmail(req.Email)
	if !validEmail(req.Email) {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": map[string]string{"email": "a valid email address is required"}})
	}

	if err := h.Sessions.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	// The same answer whether or not the address is registered.
	return c.JSON(http.StatusOK, echo.Map{"message": "check your email for a reset link"})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if len(req.Password) < minPasswordLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": map[string]string{"password": fmt.Sprintf("password must be at least %d characters", minPasswordLen)}})
	}

	err := h.Sessions.ResetPassword(c.Request().Context(), c.Param("token"), req.Password)
	if errors.Is(err, token.ErrNotFound) || errors.Is(err, token.ErrExpired) {
		return echo.NewHTTPError(http.StatusGone, "link expired or already used, request a new one")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated, log in with your new password"})
}
