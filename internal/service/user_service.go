package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"taskapi/internal/auth"
	apperrors "taskapi/internal/errors"
	"taskapi/internal/model"
	"taskapi/internal/policy"
	"taskapi/internal/repository"
)

// UserService exposes account operations beyond authentication.
type UserService interface {
	Me(ctx context.Context, token string) (*model.User, error)
	ListUsers(ctx context.Context, token string) ([]model.User, error)
	DeleteUser(ctx context.Context, token string, id uuid.UUID) (int64, error)
	RemoveUser(ctx context.Context, id uuid.UUID) (int64, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

type userService struct {
	principals PrincipalResolver
	repo       repository.UserRepository
	cache      auth.PrincipalCacheInterface
	logger     *slog.Logger
}

// NewUserService builds a UserService. cache may be nil.
func NewUserService(principals PrincipalResolver, repo repository.UserRepository, cache auth.PrincipalCacheInterface, logger *slog.Logger) UserService {
	if cache == nil {
		cache = auth.NewPrincipalCache(nil)
	}
	return &userService{principals: principals, repo: repo, cache: cache, logger: logger}
}

// Me returns the account the token belongs to.
func (s *userService) Me(ctx context.Context, token string) (*model.User, error) {
	principal, err := s.principals.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, principal.UserID)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context, token string) ([]model.User, error) {
	if err := s.requireManageUsers(ctx, token); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

// DeleteUser removes a user and their tasks on behalf of an admin. It
// returns the number of tasks removed.
func (s *userService) DeleteUser(ctx context.Context, token string, id uuid.UUID) (int64, error) {
	if err := s.requireManageUsers(ctx, token); err != nil {
		return 0, err
	}
	return s.RemoveUser(ctx, id)
}

// RemoveUser deletes a user together with every task they own. It performs
// no authorization and backs both the admin endpoint and the CLI. The user
// row is locked first, which serializes against CreateTask.
func (s *userService) RemoveUser(ctx context.Context, id uuid.UUID) (int64, error) {
	var removed int64
	err := s.repo.WithTransaction(ctx, func(ctx context.Context, users repository.UserRepository, tasks repository.TaskRepository) error {
		if _, err := users.FindByIDForUpdate(ctx, id); err != nil {
			return err
		}

		n, err := tasks.DeleteByOwner(ctx, id)
		if err != nil {
			return fmt.Errorf("delete tasks: %w", err)
		}
		removed = n
		return users.Delete(ctx, id)
	})
	if err != nil {
		return 0, err
	}

	if err := s.cache.Evict(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "evict principal failed", "user_id", id, "error", err)
	}
	s.logger.InfoContext(ctx, "user deleted", "user_id", id, "tasks_removed", removed)
	return removed, nil
}

func (s *userService) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.repo.FindByUsername(ctx, username)
}

func (s *userService) requireManageUsers(ctx context.Context, token string) error {
	principal, err := s.principals.Resolve(ctx, token)
	if err != nil {
		return err
	}
	if policy.Authorize(principal, policy.OpManageUsers, nil) == policy.Deny {
		s.logger.WarnContext(ctx, "access denied", "user_id", principal.UserID, "role", principal.Role, "operation", policy.OpManageUsers)
		return apperrors.ErrForbidden
	}
	return nil
}
