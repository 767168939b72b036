package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskapi/internal/auth"
	apperrors "taskapi/internal/errors"
	"taskapi/internal/model"
	"taskapi/internal/repository"
)

const bcryptCost = 10

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// dummyHash is compared against when a username does not exist so that a
// failed login costs the same either way.
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcryptCost)
	if err != nil {
		panic(fmt.Sprintf("generate dummy hash: %v", err))
	}
	return hash
})

// AuthService handles registration and authentication.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*model.User, error)
	CreateUser(ctx context.Context, username, email, password string, role model.Role) (*model.User, error)
	VerifyCredentials(ctx context.Context, username, password string) (*model.User, error)
	Login(ctx context.Context, username, password string) (accessToken string, expiresAt time.Time, user *model.User, err error)
}

type authService struct {
	userRepo repository.UserRepository
	tokens   *auth.TokenService
	logger   *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(userRepo repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) AuthService {
	return &authService{
		userRepo: userRepo,
		tokens:   tokens,
		logger:   logger,
	}
}

// Register creates a regular user. Registration never grants admin.
func (s *authService) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	return s.CreateUser(ctx, username, email, password, model.RoleUser)
}

// CreateUser hashes password and stores a new user. The uniqueness checks
// and the insert share one transaction; the unique indexes catch whatever
// slips between concurrent registrations.
func (s *authService) CreateUser(ctx context.Context, username, email, password string, role model.Role) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	switch {
	case username == "":
		return nil, apperrors.NewValidationError("username", "is required")
	case email == "":
		return nil, apperrors.NewValidationError("email", "is required")
	case password == "":
		return nil, apperrors.NewValidationError("password", "is required")
	case len(password) > maxPasswordBytes:
		return nil, apperrors.NewValidationError("password", "must be at most 72 bytes")
	case !role.Valid():
		return nil, apperrors.NewValidationError("role", "must be user or admin")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         role,
	}

	err = s.userRepo.WithTransaction(ctx, func(ctx context.Context, users repository.UserRepository, _ repository.TaskRepository) error {
		taken, err := users.UsernameExists(ctx, username)
		if err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if taken {
			return apperrors.ErrUsernameTaken
		}

		taken, err = users.EmailExists(ctx, email)
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken {
			return apperrors.ErrEmailTaken
		}

		return users.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user created", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// VerifyCredentials returns the user when password matches. Unknown users
// and wrong passwords produce the same error.
func (s *authService) VerifyCredentials(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if apperrors.KindOf(err) != apperrors.KindNotFound {
			return nil, fmt.Errorf("find user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	return user, nil
}

// Login verifies credentials and issues an access token.
func (s *authService) Login(ctx context.Context, username, password string) (accessToken string, expiresAt time.Time, user *model.User, err error) {
	user, err = s.VerifyCredentials(ctx, username, password)
	if err != nil {
		return "", time.Time{}, nil, err
	}

	accessToken, expiresAt, err = s.tokens.Issue(user.ID)
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("generate access token: %w", err)
	}
	return accessToken, expiresAt, user, nil
}
