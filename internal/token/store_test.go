package token

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/launchkit/launchkit/internal/models"
	"github.com/launchkit/launchkit/internal/testutil"
)

func TestIssueConsumeRoundTrip(t *testing.T) {
	s := NewStore(testutil.NewDB(t))
	ctx := context.Background()

	value, err := s.Issue(ctx, "a@x.com", PurposeVerify, VerifyTTL)
	require.NoError(t, err)
	require.NotEmpty(t, value)

	email, err := s.Consume(ctx, value, PurposeVerify)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", email)
}

func TestConsumeIsSingleUse(t *testing.T) {
	s := NewStore(testutil.NewDB(t))
	ctx := context.Background()

	value, err := s.Issue(ctx, "a@x.com", PurposeVerify, VerifyTTL)
	require.NoError(t, err)

	_, err = s.Consume(ctx, value, PurposeVerify)
	require.NoError(t, err)

	_, err = s.Consume(ctx, value, PurposeVerify)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConsumeConcurrentSingleWinner(t *testing.T) {
	s := NewStore(testutil.NewDB(t))
	ctx := context.Background()

	value, err := s.Issue(ctx, "a@x.com", PurposeReset, ResetTTL)
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Consume(ctx, value, PurposeReset)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, ErrNotFound)
		}
	}
	require.Equal(t, 1, wins, "exactly one concurrent consume may succeed")
}

func TestConsumeUnknownToken(t *testing.T) {
	s := NewStore(testutil.NewDB(t))

	_, err := s.Consume(context.Background(), "no-such-token", PurposeVerify)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConsumeWrongPurpose(t *testing.T) {
	s := NewStore(testutil.NewDB(t))
	ctx := context.Background()

	value, err := s.Issue(ctx, "a@x.com", PurposeVerify, VerifyTTL)
	require.NoError(t, err)

	_, err = s.Consume(ctx, value, PurposeReset)
	require.ErrorIs(t, err, ErrNotFound)

	// Still consumable under its own purpose.
	_, err = s.Consume(ctx, value, PurposeVerify)
	require.NoError(t, err)
}

func TestConsumeExpiredTokenDeletesRow(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewStore(db)
	ctx := context.Background()

	row := models.VerificationToken{
		ID:        uuid.NewString(),
		Email:     "a@x.com",
		Token:     "expired-token",
		Purpose:   PurposeReset,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, db.Create(&row).Error)

	_, err := s.Consume(ctx, "expired-token", PurposeReset)
	require.ErrorIs(t, err, ErrExpired)

	// The expired row is gone; a second attempt leaks nothing about its
	// earlier existence.
	_, err = s.Consume(ctx, "expired-token", PurposeReset)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIssueReplacesPendingToken(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewStore(db)
	ctx := context.Background()

	first, err := s.Issue(ctx, "a@x.com", PurposeVerify, VerifyTTL)
	require.NoError(t, err)
	second, err := s.Issue(ctx, "a@x.com", PurposeVerify, VerifyTTL)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	var count int64
	require.NoError(t, db.Model(&models.VerificationToken{}).
		Where("email = ? AND purpose = ?", "a@x.com", PurposeVerify).
		Count(&count).Error)
	require.EqualValues(t, 1, count, "re-issuing must not accumulate rows")

	_, err = s.Consume(ctx, first, PurposeVerify)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Consume(ctx, second, PurposeVerify)
	require.NoError(t, err)
}

func TestIssueDifferentPurposesCoexist(t *testing.T) {
	s := NewStore(testutil.NewDB(t))
	ctx := context.Background()

	verify, err := s.Issue(ctx, "a@x.com", PurposeVerify, VerifyTTL)
	require.NoError(t, err)
	reset, err := s.Issue(ctx, "a@x.com", PurposeReset, ResetTTL)
	require.NoError(t, err)

	_, err = s.Consume(ctx, verify, PurposeVerify)
	require.NoError(t, err)
	_, err = s.Consume(ctx, reset, PurposeReset)
	require.NoError(t, err)
}

func TestSweepExpired(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewStore(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.VerificationToken{
		ID: uuid.NewString(), Email: "old@x.com", Token: "old",
		Purpose: PurposeVerify, ExpiresAt: time.Now().Add(-time.Hour),
	}).Error)
	_, err := s.Issue(ctx, "fresh@x.com", PurposeVerify, VerifyTTL)
	require.NoError(t, err)

	n, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	var count int64
	require.NoError(t, db.Model(&models.VerificationToken{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
