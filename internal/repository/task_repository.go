package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "taskapi/internal/errors"
	"taskapi/internal/model"
)

// TaskRepository defines task persistence operations.
type TaskRepository interface {
	Find(ctx context.Context, id uuid.UUID) (*model.Task, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*model.Task, error)
	ListAll(ctx context.Context) ([]model.Task, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Task, error)
	Insert(ctx context.Context, draft model.TaskDraft, ownerID uuid.UUID) (*model.Task, error)
	Update(ctx context.Context, id uuid.UUID, patch model.TaskPatch) (*model.Task, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
	// Transaction methods
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repo TaskRepository) error) error
}

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

// Find finds a task by ID.
func (r *taskRepository) Find(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, translateTaskErr(err)
	}
	return &task, nil
}

// FindForUpdate finds a task by ID with a row-level lock held until the
// surrounding transaction ends.
func (r *taskRepository) FindForUpdate(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&task).Error; err != nil {
		return nil, translateTaskErr(err)
	}
	return &task, nil
}

// ListAll lists every task.
func (r *taskRepository) ListAll(ctx context.Context) ([]model.Task, error) {
	tasks := []model.Task{}
	if err := r.db.WithContext(ctx).Order("created_at, id").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListByOwner lists the tasks owned by ownerID.
func (r *taskRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Task, error) {
	tasks := []model.Task{}
	if err := r.db.WithContext(ctx).Where("user_id = ?", ownerID).
		Order("created_at, id").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// Insert creates a task owned by ownerID from draft. draft.UserID is ignored.
func (r *taskRepository) Insert(ctx context.Context, draft model.TaskDraft, ownerID uuid.UUID) (*model.Task, error) {
	if ownerID == uuid.Nil {
		return nil, apperrors.NewValidationError("user_id", "is required")
	}

	title, err := model.NormalizeTitle(draft.Title)
	if err != nil {
		return nil, err
	}
	status, err := model.ParseTaskStatus(draft.Status)
	if err != nil {
		return nil, err
	}
	priority, err := model.ParseTaskPriority(draft.Priority)
	if err != nil {
		return nil, err
	}
	task := &model.Task{
		Title:       title,
		Description: normalizeDescription(draft.Description),
		Status:      status,
		Priority:    priority,
		UserID:      ownerID,
	}
	if draft.DueDate != nil && strings.TrimSpace(*draft.DueDate) != "" {
		due, err := model.ParseDueDate(*draft.DueDate)
		if err != nil {
			return nil, err
		}
		task.DueDate = &due
	}

	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

// Update applies the fields present in patch and returns the stored result.
// updated_at is kept at millisecond precision, matching the DATETIME(3)
// columns, and always moves forward even when the clock has not.
func (r *taskRepository) Update(ctx context.Context, id uuid.UUID, patch model.TaskPatch) (*model.Task, error) {
	updates, err := patchColumns(patch)
	if err != nil {
		return nil, err
	}

	current, err := r.FindForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	now := r.db.NowFunc().Truncate(time.Millisecond)
	if next := current.UpdatedAt.Truncate(time.Millisecond).Add(time.Millisecond); now.Before(next) {
		now = next
	}
	updates["updated_at"] = now

	if err := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, err
	}
	return r.Find(ctx, id)
}

// Delete removes a task. Deleting a missing task yields ErrTaskNotFound.
func (r *taskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrTaskNotFound
	}
	return nil
}

// DeleteByOwner removes every task owned by ownerID and reports how many.
func (r *taskRepository) DeleteByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", ownerID).Delete(&model.Task{})
	return res.RowsAffected, res.Error
}

// WithTransaction executes a function within a database transaction.
func (r *taskRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo TaskRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &taskRepository{db: tx}
		return fn(ctx, txRepo)
	})
}

// patchColumns converts patch into column updates. Only the fields of
// model.TaskPatch can ever reach the database this way.
func patchColumns(patch model.TaskPatch) (map[string]interface{}, error) {
	updates := map[string]interface{}{}

	if patch.Title != nil {
		title, err := model.NormalizeTitle(*patch.Title)
		if err != nil {
			return nil, err
		}
		updates["title"] = title
	}
	if patch.Description != nil {
		updates["description"] = normalizeDescription(patch.Description)
	}
	if patch.Status != nil {
		if *patch.Status == "" {
			return nil, apperrors.NewValidationError("status", "must not be empty")
		}
		status, err := model.ParseTaskStatus(*patch.Status)
		if err != nil {
			return nil, err
		}
		updates["status"] = status
	}
	if patch.Priority != nil {
		if *patch.Priority == "" {
			return nil, apperrors.NewValidationError("priority", "must not be empty")
		}
		priority, err := model.ParseTaskPriority(*patch.Priority)
		if err != nil {
			return nil, err
		}
		updates["priority"] = priority
	}
	if patch.DueDate != nil {
		if strings.TrimSpace(*patch.DueDate) == "" {
			updates["due_date"] = nil
		} else {
			due, err := model.ParseDueDate(*patch.DueDate)
			if err != nil {
				return nil, err
			}
			updates["due_date"] = due
		}
	}
	return updates, nil
}

func normalizeDescription(description *string) *string {
	if description == nil || *description == "" {
		return nil
	}
	d := *description
	return &d
}

func translateTaskErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrTaskNotFound
	}
	return err
}
