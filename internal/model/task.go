package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "taskapi/internal/errors"
)

// TaskStatus represents the progress of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// TaskPriority represents the urgency of a task.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// MaxTitleLength bounds Task.Title in characters.
const MaxTitleLength = 100

// Task is a unit of work owned by exactly one user.
type Task struct {
	ID          uuid.UUID    `json:"id" gorm:"type:char(36);primaryKey"`
	Title       string       `json:"title" gorm:"size:100;not null"`
	Description *string      `json:"description" gorm:"type:text"`
	Status      TaskStatus   `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Priority    TaskPriority `json:"priority" gorm:"type:varchar(20);not null;default:'medium'"`
	DueDate     *time.Time   `json:"due_date"`
	UserID      uuid.UUID    `json:"user_id" gorm:"type:char(36);not null;index"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// BeforeCreate sets UUID before creating the record.
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TaskDraft is the input for creating a task. UserID is accepted on the
// wire but never trusted; the owner always comes from the caller's principal.
type TaskDraft struct {
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *string    `json:"due_date,omitempty"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
}

// TaskPatch carries a partial update. A nil field is left untouched. The
// fields of this struct are the complete set of columns a client may change.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	// DueDate set to "" clears the due date.
	DueDate *string `json:"due_date,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil && p.DueDate == nil
}

// ParseTaskStatus validates s, applying the default when empty.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case "":
		return TaskStatusPending, nil
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return TaskStatus(s), nil
	}
	return "", apperrors.NewValidationError("status", "must be one of pending, in_progress, completed")
}

// ParseTaskPriority validates s, applying the default when empty.
func ParseTaskPriority(s string) (TaskPriority, error) {
	switch TaskPriority(s) {
	case "":
		return TaskPriorityMedium, nil
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return TaskPriority(s), nil
	}
	return "", apperrors.NewValidationError("priority", "must be one of low, medium, high")
}

// NormalizeTitle trims title and checks it is present and within bounds.
func NormalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperrors.NewValidationError("title", "is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", apperrors.NewValidationError("title", "must be at most 100 characters")
	}
	return title, nil
}

var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseDueDate parses an ISO-8601 timestamp. Values without a zone are UTC.
func ParseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperrors.NewValidationError("due_date", "must be a valid ISO-8601 timestamp")
}
