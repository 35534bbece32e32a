package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingotutor/cache"
	applog "lingotutor/logger"
)

func newAuthService(t *testing.T) (*AuthService, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore()
	return NewAuthService(newTestDB(t), store, applog.Nop(), "test-secret", time.Hour), store
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	auth, _ := newAuthService(t)

	reg, err := auth.Register(ctx, " Learner@Example.com ", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "learner@example.com", reg.User.Email)
	assert.NotEmpty(t, reg.Token)

	sess, err := auth.ValidateToken(ctx, reg.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, sess.UserID)
	assert.True(t, sess.Active())

	login, err := auth.Login(ctx, "learner@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)

	_, err = auth.Login(ctx, "learner@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = auth.Login(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	auth, _ := newAuthService(t)

	_, err := auth.Register(ctx, "not-an-email", "secret123")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = auth.Register(ctx, "a@example.com", "123")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = auth.Register(ctx, "a@example.com", "secret123")
	require.NoError(t, err)
	_, err = auth.Register(ctx, "A@example.com", "other-secret")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestValidateTokenRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	auth, _ := newAuthService(t)
	reg, err := auth.Register(ctx, "a@example.com", "secret123")
	require.NoError(t, err)

	_, err = auth.ValidateToken(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   reg.User.ID.String(),
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = auth.ValidateToken(ctx, forged)
	assert.ErrorIs(t, err, ErrUnauthorized)

	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = auth.ValidateToken(ctx, reg.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSignOutRevokesTokenAndClearsUserCache(t *testing.T) {
	ctx := context.Background()
	auth, store := newAuthService(t)
	reg, err := auth.Register(ctx, "a@example.com", "secret123")
	require.NoError(t, err)
	sess, err := auth.ValidateToken(ctx, reg.Token)
	require.NoError(t, err)

	threadsKey := cache.ThreadsKey(sess.UserID)
	require.NoError(t, store.Set(ctx, threadsKey, []string{"cached"}, time.Minute))
	other := cache.ThreadsKey(uuid.New())
	require.NoError(t, store.Set(ctx, other, []string{"cached"}, time.Minute))

	require.NoError(t, auth.SignOut(ctx, sess))
	assert.Equal(t, SignedOut, sess.State)
	assert.False(t, sess.Active())

	var v []string
	ok, err := store.Get(ctx, threadsKey, &v)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = store.Get(ctx, other, &v)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = auth.ValidateToken(ctx, reg.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.ErrorIs(t, auth.SignOut(ctx, sess), ErrUnauthorized)

	fresh, err := auth.Login(ctx, "a@example.com", "secret123")
	require.NoError(t, err)
	_, err = auth.ValidateToken(ctx, fresh.Token)
	assert.NoError(t, err)
}

func TestValidateTokenFailsClosedWhenRevocationUnreadable(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	healthy := NewAuthService(db, cache.NewMemoryStore(), applog.Nop(), "test-secret", time.Hour)
	reg, err := healthy.Register(ctx, "learner@example.com", "secret123")
	require.NoError(t, err)

	down := &failingStore{Store: cache.NewMemoryStore(), err: errors.New("redis: connection refused")}
	auth := NewAuthService(db, down, applog.Nop(), "test-secret", time.Hour)

	_, err = auth.ValidateToken(ctx, reg.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSignOutSignalsSessionKey(t *testing.T) {
	ctx := context.Background()
	auth, store := newAuthService(t)
	reg, err := auth.Register(ctx, "learner@example.com", "secret123")
	require.NoError(t, err)
	sess, err := auth.ValidateToken(ctx, reg.Token)
	require.NoError(t, err)

	rec := recordInvalidations(store)
	require.NoError(t, auth.SignOut(ctx, sess))
	assert.Contains(t, rec.Keys(), cache.SessionKey(reg.User.ID, sess.TokenID))
}
