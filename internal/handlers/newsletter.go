package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/launchkit/launchkit/internal/mailer"
	"github.com/launchkit/launchkit/internal/models"
	"github.com/launchkit/launchkit/internal/mykafka"
	"github.com/launchkit/launchkit/internal/session"
)

const (
	purposeNewsletterConfirm     = "newsletter_confirm"
	purposeNewsletterUnsubscribe = "newsletter_unsubscribe"

	confirmTTL = 48 * time.Hour
)

// NewsletterHandler manages double-opt-in subscriptions. The confirm and
// unsubscribe links carry signed stateless tokens instead of stored rows: no
// row exists yet at confirm time, and unsubscribe links embedded in old mails
// must keep working forever.
type NewsletterHandler struct {
	DB       *gorm.DB
	Mail     mailer.Mailer
	Producer *mykafka.Producer
	Secret   []byte
	BaseURL  string
}

func (h *NewsletterHandler) signToken(email, purpose string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":     email,
		"purpose": purpose,
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(h.Secret)
}

func (h *NewsletterHandler) parseToken(value, purpose string) (string, error) {
	t, err := jwt.Parse(value, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signature method: %v", t.Header["alg"])
		}
		return h.Secret, nil
	})
	if err != nil || !t.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token")
	}
	if p, _ := claims["purpose"].(string); p != purpose {
		return "", fmt.Errorf("invalid token")
	}
	email, _ := claims["sub"].(string)
	if email == "" {
		return "", fmt.Errorf("invalid token")
	}
	return email, nil
}

func (h *NewsletterHandler) publish(c echo.Context, key string, event map[string]interface{}) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, mykafka.TopicNewsletterEvents, key, event); err != nil {
		c.Logger().Errorf("kafka publish error: %v", err)
	}
}

func (h *NewsletterHandler) Subscribe(c echo.Context) error {
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

	var sub models.NewsletterSubscriber
	err := h.DB.Where("email = ?", req.Email).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sub = models.NewsletterSubscriber{Email: req.Email}
		if err := h.DB.Create(&sub).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
		}
	} else if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	// Already-confirmed subscribers get the same answer; the response never
	// reveals subscription state.
	if !sub.Confirmed {
		confirm, err := h.signToken(req.Email, purposeNewsletterConfirm, confirmTTL)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
		}
		unsub, err := h.signToken(req.Email, purposeNewsletterUnsubscribe, 0)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
		}
		err = h.Mail.Send(c.Request().Context(), mailer.Message{
			To:      req.Email,
			Subject: "Confirm your subscription",
			Body: fmt.Sprintf(
				"Confirm your newsletter subscription:\n\n%s/api/v1/newsletter/confirm/%s\n\nNot you? Ignore this mail or unsubscribe:\n%s/api/v1/newsletter/unsubscribe/%s",
				h.BaseURL, confirm, h.BaseURL, unsub,
			),
		})
		if err != nil {
			c.Logger().Errorf("newsletter mail error: %v", err)
		}
	}

	h.publish(c, req.Email, map[string]interface{}{
		"type":  "newsletter_subscribe_requested",
		"email": req.Email,
	})

	return c.JSON(http.StatusOK, echo.Map{"message": "check your inbox to confirm your subscription"})
}

func (h *NewsletterHandler) Confirm(c echo.Context) error {
	email, err := h.parseToken(c.Param("token"), purposeNewsletterConfirm)
	if err != nil {
		return echo.NewHTTPError(http.StatusGone, "link expired or already used, request a new one")
	}

	res := h.DB.Model(&models.NewsletterSubscriber{}).
		Where("email = ?", email).
		Update("confirmed", true)
	if res.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}
	if res.RowsAffected == 0 {
		// Row was removed between subscribe and confirm; recreate it confirmed.
		sub := models.NewsletterSubscriber{Email: email, Confirmed: true}
		if err := h.DB.Create(&sub).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
		}
	}

	h.publish(c, email, map[string]interface{}{
		"type":  "newsletter_confirmed",
		"email": email,
	})

	return c.JSON(http.StatusOK, echo.Map{"message": "subscription confirmed"})
}

func (h *NewsletterHandler) Unsubscribe(c echo.Context) error {
	email, err := h.parseToken(c.Param("token"), purposeNewsletterUnsubscribe)
	if err != nil {
		return echo.NewHTTPError(http.StatusGone, "invalid unsubscribe link")
	}

	if err := h.DB.Where("email = ?", email).Delete(&models.NewsletterSubscriber{}).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "try again later")
	}

	h.publish(c, email, map[string]interface{}{
		"type":  "newsletter_unsubscribed",
		"email": email,
	})

	return c.JSON(http.StatusOK, echo.Map{"message": "you are unsubscribed"})
}
