package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/launchkit/launchkit/internal/hash"
	"github.com/launchkit/launchkit/internal/logging"
	"github.com/launchkit/launchkit/internal/mailer"
	"github.com/launchkit/launchkit/internal/models"
	"github.com/launchkit/launchkit/internal/token"
)

const TTL = 7 * 24 * time.Hour

var (
	// ErrInvalidCredentials covers both unknown email and wrong password;
	// callers must not be able to tell them apart.
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	ErrInvalidSession     = errors.New("session: invalid session")
)

// Meta is optional client metadata recorded on login.
type Meta struct {
	IP        string
	UserAgent string
}

// Manager owns login sessions and the email verification / password reset
// flows built on the token store.
type Manager struct {
	DB      *gorm.DB
	Tokens  *token.Store
	Mail    mailer.Mailer
	BaseURL string
}

func NewManager(db *gorm.DB, tokens *token.Store, mail mailer.Mailer, baseURL string) *Manager {
	return &Manager{DB: db, Tokens: tokens, Mail: mail, BaseURL: strings.TrimRight(baseURL, "/")}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies the credentials and creates a session row with a fresh
// opaque bearer token.
func (m *Manager) Login(ctx context.Context, email, password string, meta Meta) (*models.Session, error) {
	var user models.User
	err := m.DB.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	bearer, err := token.NewValue()
	if err != nil {
		return nil, err
	}
	s := models.Session{
		ID:        uuid.NewString(),
		Token:     bearer,
		UserID:    user.ID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		ExpiresAt: time.Now().Add(TTL),
	}
	if err := m.DB.WithContext(ctx).Create(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate returns the session for the bearer token, or ErrInvalidSession if
// the token is unknown or past its expiry. Expired rows are removed lazily.
func (m *Manager) Validate(ctx context.Context, bearer string) (*models.Session, error) {
	if bearer == "" {
		return nil, ErrInvalidSession
	}
	var s models.Session
	err := m.DB.WithContext(ctx).Where("token = ?", bearer).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}
	if !time.Now().Before(s.ExpiresAt) {
		m.DB.WithContext(ctx).Where("id = ?", s.ID).Delete(&models.Session{})
		return nil, ErrInvalidSession
	}
	return &s, nil
}

// ValidateWithUser validates the bearer token and loads its owner. A session
// whose user has disappeared is treated as invalid.
func (m *Manager) ValidateWithUser(ctx context.Context, bearer string) (*models.Session, *models.User, error) {
	s, err := m.Validate(ctx, bearer)
	if err != nil {
		return nil, nil, err
	}
	var user models.User
	if err := m.DB.WithContext(ctx).Where("id = ?", s.UserID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidSession
		}
		return nil, nil, err
	}
	return s, &user, nil
}

// Logout deletes the session row. Idempotent: an unknown token is not an
// error.
func (m *Manager) Logout(ctx context.Context, bearer string) error {
	if bearer == "" {
		return nil
	}
	return m.DB.WithContext(ctx).Where("token = ?", bearer).Delete(&models.Session{}).Error
}

// InvalidateAll removes every session owned by the user.
func (m *Manager) InvalidateAll(ctx context.Context, userID string) error {
	return m.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Session{}).Error
}

// InvalidateOthers removes every session of the user except the one carrying
// keepToken.
func (m *Manager) InvalidateOthers(ctx context.Context, userID, keepToken string) error {
	return m.DB.WithContext(ctx).
		Where("user_id = ? AND token <> ?", userID, keepToken).
		Delete(&models.Session{}).Error
}

// SweepExpired removes sessions past their expiry and returns the count.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	res := m.DB.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

// RequestVerification issues a verification token and mails the link.
func (m *Manager) RequestVerification(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	value, err := m.Tokens.Issue(ctx, email, token.PurposeVerify, token.VerifyTTL)
	if err != nil {
		return err
	}
	return m.Mail.Send(ctx, mailer.Message{
		To:      email,
		Subject: "Verify your email address",
		Body:    fmt.Sprintf("Confirm your email address by opening this link:\n\n%s/verify-email/%s\n\nThe link is valid for 24 hours.", m.BaseURL, value),
	})
}

// VerifyEmail consumes a verification token and marks the account verified.
func (m *Manager) VerifyEmail(ctx context.Context, value string) error {
	email, err := m.Tokens.Consume(ctx, value, token.PurposeVerify)
	if err != nil {
		return err
	}
	res := m.DB.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).
		Update("email_verified", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return token.ErrNotFound
	}
	return nil
}

// RequestPasswordReset behaves identically whether or not the email belongs
// to an account: a token row is written either way and the caller always gets
// nil. The reset link is only mailed when there is a matching user, which the
// caller cannot observe.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	value, err := m.Tokens.Issue(ctx, email, token.PurposeReset, token.ResetTTL)
	if err != nil {
		return err
	}

	var user models.User
	err = m.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := m.Mail.Send(ctx, mailer.Message{
		To:      email,
		Subject: "Reset your password",
		Body:    fmt.Sprintf("Reset your password by opening this link:\n\n%s/reset-password/%s\n\nThe link is valid for 1 hour. If you did not request this, ignore this mail.", m.BaseURL, value),
	}); err != nil {
		// Swallowed: a delivery error must not make the response distinguishable.
		logging.FromContext(ctx).Error("reset mail failed", "error", err)
	}
	return nil
}

// ResetPassword consumes a reset token, stores the new password and forces
// re-login everywhere by dropping every session of the user.
func (m *Manager) ResetPassword(ctx context.Context, value, newPassword string) error {
	email, err := m.Tokens.Consume(ctx, value, token.PurposeReset)
	if err != nil {
		return err
	}

	var user models.User
	err = m.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// A token issued for an address that never registered.
		return token.ErrNotFound
	}
	if err != nil {
		return err
	}

	newHash, err := hash.HashPassword(newPassword)
	if err != nil {
		return err
	}
	err = m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("password_hash", newHash).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", user.ID).Delete(&models.Session{}).Error
	})
	if err != nil {
		return err
	}

	if err := m.Mail.Send(ctx, mailer.Message{
		To:      email,
		Subject: "Your password was changed",
		Body:    "Your password was just changed. If this was not you, reset it immediately and contact support.",
	}); err != nil {
		logging.FromContext(ctx).Error("password change notice failed", "error", err)
	}
	return nil
}
