package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/launchkit/launchkit/internal/mailer"
	"github.com/launchkit/launchkit/internal/models"
	"github.com/launchkit/launchkit/internal/session"
	"github.com/launchkit/launchkit/internal/util"
)

type ContactHandler struct {
	DB        *gorm.DB
	Mail      mailer.Mailer
	Recipient string
}

func (h *ContactHandler) Submit(c echo.Context) error {
	var req struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	req.Email = session.NormalizeEmail(req.Email)
	fields := map[string]string{}
	if strings.TrimSpace(req.Name) == "" {
		fields["name"] = "name is required"
	}
	if !validEmail(req.Email) {
		fields["email"] = "a valid email address is required"
	}
	if strings.TrimSpace(req.Body) == "" {
		fields["body"] = "message is required"
	}
	if len(fields) > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": fields})
	}

	msg := models.ContactMessage{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Body:    req.Body,
	}
	if err := h.DB.Create(&msg).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	if h.Recipient != "" {
		err := h.Mail.Send(c.Request().Context(), mailer.Message{
			To:      h.Recipient,
			Subject: fmt.Sprintf("Contact form: %s", req.Subject),
			Body:    fmt.Sprintf("From: %s <%s>\n\n%s", req.Name, req.Email, req.Body),
		})
		if err != nil {
			c.Logger().Errorf("contact mail error: %v", err)
		}
	}

	return c.JSON(http.StatusCreated, msg)
}

func (h *ContactHandler) List(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.ContactMessage{}).Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	var messages []models.ContactMessage
	if err := h.DB.Order("created_at DESC").Offset(offset).Limit(limit).Find(&messages).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data": messages,
		"meta": pageMeta(page, limit, offset, total),
	})
}

func (h *ContactHandler) Delete(c echo.Context) error {
	id := parseIntDefault(c.Param("id"), 0)
	if id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.DB.Delete(&models.ContactMessage{}, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}
	return c.NoContent(http.StatusNoContent)
}
