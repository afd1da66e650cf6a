package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dataplunge/dataplunge/internal/apperror"
	"github.com/dataplunge/dataplunge/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.InMemoryStore) {
	t.Helper()
	sessions, err := NewTokenService("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	store := storage.NewInMemoryStore()
	svc := NewService(store.Users(), NewPasswordServiceWithCost(bcrypt.MinCost), sessions, zap.NewNop())
	return svc, store
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, token, err := svc.Register(ctx, "ada@example.com", "correct-horse", "Ada Lovelace")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.NotEmpty(t, token)
	assert.NotEmpty(t, user.PasswordHash)

	got, loginToken, err := svc.Login(ctx, "ada@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, loginToken)

	userID, err := svc.ValidateSession(loginToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "ada@example.com", "correct-horse", "")
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "ada@example.com", "another-pass", "")
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "not-an-email", "correct-horse", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, _, err = svc.Register(ctx, "ada@example.com", "short", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestLogin_WrongCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "ada@example.com", "correct-horse", "")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, _, err = svc.Login(ctx, "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestLogin_PasswordlessAccountRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Google-only accounts have no password hash and cannot use
	// password login.
	_, _, err := svc.GoogleSignIn(ctx, &GoogleProfile{Sub: "g-1", Email: "ada@example.com", Name: "Ada"})
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "ada@example.com", "anything-at-all")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestGoogleSignIn_CreatesLinksAndReuses(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// New Google identity creates an account.
	created, _, err := svc.GoogleSignIn(ctx, &GoogleProfile{Sub: "g-1", Email: "ada@example.com", Name: "Ada"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	// Same identity signs into the same account.
	again, _, err := svc.GoogleSignIn(ctx, &GoogleProfile{Sub: "g-1", Email: "ada@example.com", Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	// A Google identity matching an existing email links instead of
	// creating a duplicate.
	registered, _, err := svc.Register(ctx, "grace@example.com", "correct-horse", "Grace Hopper")
	require.NoError(t, err)

	linked, _, err := svc.GoogleSignIn(ctx, &GoogleProfile{Sub: "g-2", Email: "grace@example.com", Name: "Grace"})
	require.NoError(t, err)
	assert.Equal(t, registered.ID, linked.ID)

	stored, err := store.Users().GetByGoogleID(ctx, "g-2")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, registered.ID, stored.ID)
}

func TestCurrentUser_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CurrentUser(context.Background(), 9999)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
