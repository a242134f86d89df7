package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/launchkit/launchkit/internal/hash"
	authmw "github.com/launchkit/launchkit/internal/middleware/auth"
	"github.com/launchkit/launchkit/internal/models"
	"github.com/launchkit/launchkit/internal/mykafka"
	"github.com/launchkit/launchkit/internal/rbac"
	"github.com/launchkit/launchkit/internal/session"
	"github.com/launchkit/launchkit/internal/util"
)

type UserHandler struct {
	DB       *gorm.DB
	Sessions *session.Manager
	Producer *mykafka.Producer
}

func (h *UserHandler) publish(c echo.Context, key string, event map[string]interface{}) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, mykafka.TopicUserEvents, key, event); err != nil {
		c.Logger().Errorf("kafka publish error: %v", err)
	}
}

func (h *UserHandler) Me(c echo.Context) error {
	user, ok := authmw.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UserHandler) UpdateMe(c echo.Context) error {
	user, ok := authmw.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req struct {
		Name      *string `json:"name"`
		AvatarURL *string `json:"avatar_url"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.AvatarURL != nil {
		user.AvatarURL = *req.AvatarURL
	}
	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]interface{}{"name": user.Name, "avatar_url": user.AvatarURL}).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UserHandler) ChangePassword(c echo.Context) error {
	user, ok := authmw.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if len(req.NewPassword) < minPasswordLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": map[string]string{"new_password": "password too short"}})
	}
	if !hash.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		return echo.NewHTTPError(http.StatusBadRequest, "current password is incorrect")
	}

	newHash, err := hash.HashPassword(req.NewPassword)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}
	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).
		Update("password_hash", newHash).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	// Other devices must log in again; the session used here stays valid.
	if s, ok := authmw.CurrentSession(c); ok {
		if err := h.Sessions.InvalidateOthers(c.Request().Context(), user.ID, s.Token); err != nil {
			c.Logger().Errorf("session invalidation error: %v", err)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

func (h *UserHandler) ListUsers(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.User{}).Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	var users []models.User
	if err := h.DB.Order("created_at ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data": users,
		"meta": pageMeta(page, limit, offset, total),
	})
}

func (h *UserHandler) UpdateRole(c echo.Context) error {
	actor, ok := authmw.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	id := c.Param("id")
	// Self-demotion and self-elevation are both rejected, rank notwithstanding.
	if id == actor.ID {
		return echo.NewHTTPError(http.StatusForbidden, "cannot change your own role")
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if !rbac.Valid(rbac.Role(req.Role)) {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": map[string]string{"role": "unknown role"}})
	}

	var user models.User
	if err := h.DB.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", id).
		Update("role", req.Role).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}
	user.Role = req.Role

	h.publish(c, user.ID, map[string]interface{}{
		"type":    "user_role_changed",
		"userID":  user.ID,
		"role":    req.Role,
		"actorID": actor.ID,
	})

	return c.JSON(http.StatusOK, user)
}

func (h *UserHandler) DeleteUser(c echo.Context) error {
	actor, ok := authmw.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	id := c.Param("id")
	if id == actor.ID {
		return echo.NewHTTPError(http.StatusForbidden, "cannot delete your own account")
	}

	var user models.User
	if err := h.DB.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	// Explicit cascade: sessions and owned posts go with the account.
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.Session{}).Error; err != nil {
			return err
		}
		if err := tx.Where("author_id = ?", id).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", id).Error
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	h.publish(c, id, map[string]interface{}{
		"type":    "user_deleted",
		"userID":  id,
		"actorID": actor.ID,
	})

	return c.NoContent(http.StatusNoContent)
}
