package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/launchkit/launchkit/internal/models"
)

const (
	PurposeVerify = "verify"
	PurposeReset  = "reset"

	VerifyTTL = 24 * time.Hour
	ResetTTL  = time.Hour
)

var (
	ErrNotFound = errors.New("token: not found")
	ErrExpired  = errors.New("token: expired")
)

// Store issues and consumes single-use verification and reset tokens.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// NewValue returns a 256-bit random opaque token, hex encoded so it is safe as
// a URL path segment.
func NewValue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Issue persists a fresh token for the subject. Any pending token of the same
// purpose is replaced, so repeated requests never accumulate rows.
func (s *Store) Issue(ctx context.Context, email, purpose string, ttl time.Duration) (string, error) {
	value, err := NewValue()
	if err != nil {
		return "", err
	}
	row := models.VerificationToken{
		ID:        uuid.NewString(),
		Email:     email,
		Token:     value,
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(ttl),
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ? AND purpose = ?", email, purpose).
			Delete(&models.VerificationToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// Consume deletes the token and returns its subject email. The delete is
// guarded by the row id and decided by RowsAffected, so when the same token is
// presented concurrently exactly one caller wins the row; everyone else gets
// ErrNotFound. An expired token is removed as a side effect and reported as
// ErrExpired only to the caller that won the delete.
func (s *Store) Consume(ctx context.Context, value, purpose string) (string, error) {
	var row models.VerificationToken
	err := s.DB.WithContext(ctx).
		Where("token = ? AND purpose = ?", value, purpose).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	res := s.DB.WithContext(ctx).Where("id = ?", row.ID).Delete(&models.VerificationToken{})
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", ErrNotFound
	}

	if !time.Now().Before(row.ExpiresAt) {
		return "", ErrExpired
	}
	return row.Email, nil
}

// SweepExpired removes every token past its expiry and returns the count.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&models.VerificationToken{})
	return res.RowsAffected, res.Error
}
