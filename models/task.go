package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// TaskStatus represents the possible statuses of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in-progress"
	StatusDone       TaskStatus = "done"
	StatusCancelled  TaskStatus = "cancelled"
	StatusArchived   TaskStatus = "archived"
)

// TaskPriority represents the priority levels of a task.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// IsActive reports whether the status represents work that is still open.
func (s TaskStatus) IsActive() bool {
	switch s {
	case StatusPending, StatusInProgress:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status can no longer gate other work.
// Cancelled work cannot block dependents; neither can archived work.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusDone, StatusCancelled, StatusArchived:
		return true
	default:
		return false
	}
}

// Task represents a unit of work.
//
// The ID is either a durable identity assigned by the persistence layer
// (e.g. "task-1a2b3c4d") or a client-side temporary identity
// (e.g. "temp-9f8e7d6c") for a task that has not been committed yet.
type Task struct {
	ID          string       `json:"id" validate:"required,trackid"`
	ParentID    *string      `json:"parentId,omitempty" validate:"omitempty,trackid"`
	Title       string       `json:"title" validate:"required,min=1,max=255"`
	Description string       `json:"description,omitempty"`
	Status      TaskStatus   `json:"status" validate:"required,oneof=pending in-progress done cancelled archived"`
	Priority    TaskPriority `json:"priority" validate:"required,oneof=low medium high urgent"`
	CreatedAt   time.Time    `json:"createdAt" validate:"required"`
	UpdatedAt   time.Time    `json:"updatedAt" validate:"required"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// TaskList represents a collection of tasks.
type TaskList struct {
	Tasks      []Task `json:"tasks" validate:"dive"`
	TotalCount int    `json:"totalCount"`
}

// Dependency is a directed edge between two tasks: the dependent cannot be
// considered complete or startable until the dependency task is done.
type Dependency struct {
	DependentID  string `json:"dependentId" validate:"required,trackid"`
	DependencyID string `json:"dependencyId" validate:"required,trackid"`
}

// global validator instance
var validate *validator.Validate

// trackIDPattern matches durable identities (prefix + suffix), temporary
// identities ("temp-" marker) and hierarchical codes from external stores
// (e.g. "A-BCDE").
var trackIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func init() {
	validate = newValidator()
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("trackid", validateTrackID)
	return v
}

func validateTrackID(fl validator.FieldLevel) bool {
	return trackIDPattern.MatchString(fl.Field().String())
}

// ValidateStruct performs validation on any struct that has validation tags.
func ValidateStruct(s interface{}) error {
	if validate == nil {
		// Safeguard for tests running in isolation.
		validate = newValidator()
	}
	err := validate.Struct(s)
	if err != nil {
		validationErrors := err.(validator.ValidationErrors)
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, fmt.Sprintf("Validation failed on field '%s': rule '%s' (value: '%v')", e.StructNamespace(), e.Tag(), e.Value()))
		}
		return fmt.Errorf("%s", strings.Join(errorMessages, "; "))
	}
	return nil
}

// NewTask creates a task with default status, priority and timestamps.
func NewTask(id, title string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        id,
		Title:     title,
		Status:    StatusPending,
		Priority:  PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
