package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	apperrors "taskapi/internal/errors"
	"taskapi/internal/model"
	"taskapi/internal/policy"
	"taskapi/internal/repository"
)

// TaskService is the authenticated entry point for task operations. Every
// method resolves the bearer token first and then asks the policy.
type TaskService interface {
	ListTasks(ctx context.Context, token string) ([]model.Task, error)
	ListAllTasks(ctx context.Context, token string) ([]model.Task, error)
	GetTask(ctx context.Context, token string, id uuid.UUID) (*model.Task, error)
	CreateTask(ctx context.Context, token string, draft model.TaskDraft) (*model.Task, error)
	UpdateTask(ctx context.Context, token string, id uuid.UUID, patch model.TaskPatch) (*model.Task, error)
	DeleteTask(ctx context.Context, token string, id uuid.UUID) error
}

type taskService struct {
	principals PrincipalResolver
	users      repository.UserRepository
	tasks      repository.TaskRepository
	logger     *slog.Logger
}

// NewTaskService creates a new task service.
func NewTaskService(principals PrincipalResolver, users repository.UserRepository, tasks repository.TaskRepository, logger *slog.Logger) TaskService {
	return &taskService{
		principals: principals,
		users:      users,
		tasks:      tasks,
		logger:     logger,
	}
}

// ListTasks returns every task for an admin and the caller's own tasks
// otherwise.
func (s *taskService) ListTasks(ctx context.Context, token string) ([]model.Task, error) {
	principal, err := s.principals.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if policy.Authorize(principal, policy.OpListTasks, nil) == policy.Deny {
		return nil, s.deny(ctx, principal, policy.OpListTasks, uuid.Nil)
	}

	if policy.ListScope(principal) == policy.ScopeAll {
		return s.tasks.ListAll(ctx)
	}
	return s.tasks.ListByOwner(ctx, principal.UserID)
}

// ListAllTasks returns every task. Only admins may call it.
func (s *taskService) ListAllTasks(ctx context.Context, token string) ([]model.Task, error) {
	principal, err := s.principals.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if policy.Authorize(principal, policy.OpListAllTasks, nil) == policy.Deny {
		return nil, s.deny(ctx, principal, policy.OpListAllTasks, uuid.Nil)
	}
	return s.tasks.ListAll(ctx)
}

func (s *taskService) GetTask(ctx context.Context, token string, id uuid.UUID) (*model.Task, error) {
	principal, err := s.principals.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	task, err := s.tasks.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if policy.Authorize(principal, policy.OpReadTask, task) == policy.Deny {
		return nil, s.deny(ctx, principal, policy.OpReadTask, id)
	}
	return task, nil
}

// CreateTask stores a task owned by the caller. Any owner named in draft is
// discarded. The owner row stays locked until the insert commits, so a
// concurrent user removal either runs first or sees the new task.
func (s *taskService) CreateTask(ctx context.Context, token string, draft model.TaskDraft) (*model.Task, error) {
	principal, err := s.principals.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if policy.Authorize(principal, policy.OpCreateTask, nil) == policy.Deny {
		return nil, s.deny(ctx, principal, policy.OpCreateTask, uuid.Nil)
	}

	draft.UserID = nil
	owner := policy.OwnerFor(principal)
	var task *model.Task
	err = s.users.WithTransaction(ctx, func(ctx context.Context, users repository.UserRepository, tasks repository.TaskRepository) error {
		if _, err := users.FindByIDForUpdate(ctx, owner); err != nil {
			if apperrors.KindOf(err) == apperrors.KindNotFound {
				return apperrors.ErrInvalidToken
			}
			return fmt.Errorf("lock owner: %w", err)
		}

		created, err := tasks.Insert(ctx, draft, owner)
		if err != nil {
			return err
		}
		task = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "task created", "task_id", task.ID, "user_id", task.UserID)
	return task, nil
}

// UpdateTask locks the stored task, authorizes against it and applies patch
// in the same transaction.
func (s *taskService) UpdateTask(ctx context.Context, token string, id uuid.UUID, patch model.TaskPatch) (*model.Task, error) {
	principal, err := s.principals.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	var updated *model.Task
	err = s.tasks.WithTransaction(ctx, func(ctx context.Context, tasks repository.TaskRepository) error {
		current, err := tasks.FindForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if policy.Authorize(principal, policy.OpUpdateTask, current) == policy.Deny {
			return s.deny(ctx, principal, policy.OpUpdateTask, id)
		}

		updated, err = tasks.Update(ctx, id, patch)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "task updated", "task_id", id, "user_id", principal.UserID)
	return updated, nil
}

// DeleteTask removes a task after authorizing against the locked record.
func (s *taskService) DeleteTask(ctx context.Context, token string, id uuid.UUID) error {
	principal, err := s.principals.Resolve(ctx, token)
	if err != nil {
		return err
	}

	err = s.tasks.WithTransaction(ctx, func(ctx context.Context, tasks repository.TaskRepository) error {
		current, err := tasks.FindForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if policy.Authorize(principal, policy.OpDeleteTask, current) == policy.Deny {
			return s.deny(ctx, principal, policy.OpDeleteTask, id)
		}
		return tasks.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "task deleted", "task_id", id, "user_id", principal.UserID)
	return nil
}

func (s *taskService) deny(ctx context.Context, principal policy.Principal, op policy.Operation, taskID uuid.UUID) error {
	attrs := []any{"user_id", principal.UserID, "role", principal.Role, "operation", op}
	if taskID != uuid.Nil {
		attrs = append(attrs, "task_id", taskID)
	}
	s.logger.WarnContext(ctx, "access denied", attrs...)
	return fmt.Errorf("%s: %w", op, apperrors.ErrForbidden)
}
