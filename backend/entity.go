package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Kind identifies an entity table
type Kind string

const (
	KindTask   Kind = "task"
	KindDomain Kind = "domain"
)

// Kinds lists every synchronized entity type, in the order they are processed
var Kinds = []Kind{KindDomain, KindTask}

// Entity is the common shape of every synchronized record.
// The ID is the conflict key: two versions with the same ID are the same logical record.
type Entity interface {
	Kind() Kind
	EntityID() string
	LastModified() time.Time
	IsDeleted() bool
	// Touch stamps the entity as modified at now
	Touch(now time.Time)
}

// TaskStatus is the workflow state of a task
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// ParseTaskStatus accepts the canonical names plus a few aliases used on the command line
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "todo", "":
		return StatusTodo, nil
	case "in_progress", "in-progress", "doing", "started":
		return StatusInProgress, nil
	case "done", "completed":
		return StatusDone, nil
	default:
		return "", fmt.Errorf("unknown task status %q", s)
	}
}

// Task is a unit of work
type Task struct {
	ID                string     `json:"id" validate:"required"`
	Title             string     `json:"title" validate:"required,max=500"`
	Description       string     `json:"description,omitempty"`
	Status            TaskStatus `json:"status" validate:"oneof=todo in_progress done"`
	Priority          int        `json:"priority" validate:"min=0,max=3"`
	DomainID          string     `json:"domainId,omitempty"`
	DueDate           *time.Time `json:"dueDate,omitempty"`
	EstimatedDuration *int       `json:"estimatedDuration,omitempty" validate:"omitempty,min=0"`
	ActualDuration    *int       `json:"actualDuration,omitempty" validate:"omitempty,min=0"`
	Order             int        `json:"order"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	DeletedAt         *time.Time `json:"deletedAt,omitempty"`
}

func (t *Task) Kind() Kind              { return KindTask }
func (t *Task) EntityID() string        { return t.ID }
func (t *Task) LastModified() time.Time { return t.UpdatedAt }
func (t *Task) IsDeleted() bool         { return t.DeletedAt != nil }

func (t *Task) Touch(now time.Time) {
	t.UpdatedAt = Timestamp(now)
}

// SetStatus changes the status and keeps CompletedAt consistent with it:
// CompletedAt is set iff the status is done.
func (t *Task) SetStatus(status TaskStatus, now time.Time) {
	if status == StatusDone {
		if t.Status != StatusDone || t.CompletedAt == nil {
			completed := Timestamp(now)
			t.CompletedAt = &completed
		}
	} else {
		t.CompletedAt = nil
	}
	t.Status = status
}

// Validate checks field constraints and the completedAt invariant
func (t *Task) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid task %s: %w", t.ID, err)
	}
	if (t.Status == StatusDone) != (t.CompletedAt != nil) {
		return fmt.Errorf("invalid task %s: completedAt must be set iff status is done", t.ID)
	}
	return nil
}

// Domain is a category tasks can belong to
type Domain struct {
	ID          string     `json:"id" validate:"required"`
	Name        string     `json:"name" validate:"required,max=100"`
	Color       string     `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Icon        string     `json:"icon,omitempty"`
	Description string     `json:"description,omitempty"`
	IsDefault   bool       `json:"isDefault"`
	Order       int        `json:"order"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

func (d *Domain) Kind() Kind              { return KindDomain }
func (d *Domain) EntityID() string        { return d.ID }
func (d *Domain) LastModified() time.Time { return d.UpdatedAt }
func (d *Domain) IsDeleted() bool         { return d.DeletedAt != nil }

func (d *Domain) Touch(now time.Time) {
	d.UpdatedAt = Timestamp(now)
}

func (d *Domain) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid domain %s: %w", d.ID, err)
	}
	return nil
}

var validate = validator.New()

// NewID returns a fresh client-generated identifier
func NewID() string {
	return uuid.NewString()
}

// NewTask creates a todo task with a new identifier and creation timestamps
func NewTask(title string, now time.Time) *Task {
	ts := Timestamp(now)
	return &Task{
		ID:        NewID(),
		Title:     title,
		Status:    StatusTodo,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

// NewDomain creates a domain with a new identifier and creation timestamps
func NewDomain(name string, now time.Time) *Domain {
	ts := Timestamp(now)
	return &Domain{
		ID:        NewID(),
		Name:      name,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

// Timestamp normalizes a time to the precision the local store keeps (UTC milliseconds).
// Every updatedAt comparison happens on normalized values.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Normalize truncates all timestamps of an entity received from elsewhere
func Normalize(e Entity) {
	switch v := e.(type) {
	case *Task:
		v.CreatedAt = Timestamp(v.CreatedAt)
		v.UpdatedAt = Timestamp(v.UpdatedAt)
		v.CompletedAt = timestampPtr(v.CompletedAt)
		v.DeletedAt = timestampPtr(v.DeletedAt)
		v.DueDate = timestampPtr(v.DueDate)
	case *Domain:
		v.CreatedAt = Timestamp(v.CreatedAt)
		v.UpdatedAt = Timestamp(v.UpdatedAt)
		v.DeletedAt = timestampPtr(v.DeletedAt)
	}
}

func timestampPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ts := Timestamp(*t)
	return &ts
}

// NewerThan reports whether candidate should replace current under last-write-wins:
// only a strictly later updatedAt wins, ties keep current.
func NewerThan(candidate, current Entity) bool {
	return candidate.LastModified().After(current.LastModified())
}

// TasksOf extracts the tasks from a mixed entity slice
func TasksOf(entities []Entity) []Task {
	tasks := make([]Task, 0, len(entities))
	for _, e := range entities {
		if t, ok := e.(*Task); ok {
			tasks = append(tasks, *t)
		}
	}
	return tasks
}

// DomainsOf extracts the domains from a mixed entity slice
func DomainsOf(entities []Entity) []Domain {
	domains := make([]Domain, 0, len(entities))
	for _, e := range entities {
		if d, ok := e.(*Domain); ok {
			domains = append(domains, *d)
		}
	}
	return domains
}
