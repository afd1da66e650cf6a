package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dataplunge/dataplunge/internal/apperror"
	"github.com/dataplunge/dataplunge/internal/models"
	"github.com/dataplunge/dataplunge/internal/storage"
)

const minPasswordLength = 8

// Service implements registration, password login, and Google sign-in
// on top of the user repository.
type Service struct {
	users     storage.UserRepo
	passwords *PasswordService
	sessions  *TokenService
	logger    *zap.Logger
}

// NewService creates the authentication service.
func NewService(users storage.UserRepo, passwords *PasswordService, sessions *TokenService, logger *zap.Logger) *Service {
	return &Service{
		users:     users,
		passwords: passwords,
		sessions:  sessions,
		logger:    logger,
	}
}

// Register creates an email/password account and returns the user with
// a signed session token.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (*models.User, string, error) {
	user := &models.User{Email: email, FullName: fullName}
	if err := user.Validate(); err != nil {
		return nil, "", apperror.ValidationFailed("email", err.Error())
	}
	if len(password) < minPasswordLength {
		return nil, "", apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", apperror.Conflict("user", email)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, "", apperror.ValidationFailed("password", err.Error())
	}
	user.PasswordHash = hash

	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return s.issueSession(ctx, user)
}

// Login verifies email/password credentials and issues a session token.
// Wrong email and wrong password produce the same error so the endpoint
// does not leak which accounts exist.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if user == nil || user.PasswordHash == "" {
		return nil, "", apperror.Unauthorized("invalid email or password")
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, "", apperror.Unauthorized("invalid email or password")
	}
	return s.issueSession(ctx, user)
}

// GoogleSignIn resolves a verified Google profile to a local account:
// by Google ID first, then by email (linking the Google ID to the
// existing account), creating a new passwordless account otherwise.
func (s *Service) GoogleSignIn(ctx context.Context, profile *GoogleProfile) (*models.User, string, error) {
	user, err := s.users.GetByGoogleID(ctx, profile.Sub)
	if err != nil {
		return nil, "", err
	}
	if user != nil {
		return s.issueSession(ctx, user)
	}

	user, err = s.users.GetByEmail(ctx, profile.Email)
	if err != nil {
		return nil, "", err
	}
	if user != nil {
		if err := s.users.LinkGoogleID(ctx, user.ID, profile.Sub); err != nil {
			return nil, "", err
		}
		user.GoogleOAuthID = profile.Sub
		s.logger.Info("google account linked", zap.Int64("user_id", user.ID))
		return s.issueSession(ctx, user)
	}

	user = &models.User{
		Email:         profile.Email,
		FullName:      profile.Name,
		GoogleOAuthID: profile.Sub,
	}
	if err := user.Validate(); err != nil {
		return nil, "", apperror.ValidationFailed("email", err.Error())
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}
	s.logger.Info("user created via google sign-in", zap.Int64("user_id", user.ID))
	return s.issueSession(ctx, user)
}

// CurrentUser loads the user behind a validated session.
func (s *Service) CurrentUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.NotFound("user", fmt.Sprintf("%d", userID))
	}
	return user, nil
}

// ValidateSession verifies a bearer token and returns the user ID.
func (s *Service) ValidateSession(token string) (int64, error) {
	userID, err := s.sessions.Validate(token)
	if err != nil {
		return 0, apperror.Unauthorized(err.Error())
	}
	return userID, nil
}

func (s *Service) issueSession(ctx context.Context, user *models.User) (*models.User, string, error) {
	token, err := s.sessions.Generate(user.ID)
	if err != nil {
		return nil, "", err
	}
	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to record last login", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return user, token, nil
}
