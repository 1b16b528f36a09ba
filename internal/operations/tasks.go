package operations

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tasksync/backend"
	"tasksync/internal/utils"
)

// Store is the local mutation path used by the CLI. Every write stamps updatedAt,
// so it becomes part of the next change-set.
type Store interface {
	Put(e backend.Entity) error
	Delete(kind backend.Kind, id string) error
	Tasks() ([]backend.Task, error)
	Domains() ([]backend.Domain, error)
}

// Service applies user edits to the local store
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a service writing to store
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SetClock replaces the clock used for createdAt and completedAt
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// TaskInput holds the fields of a new task
type TaskInput struct {
	Title             string
	Description       string
	Status            string
	Priority          int
	Domain            string // domain id prefix or name
	DueDate           *time.Time
	EstimatedDuration *int
}

// AddTask creates a task. Order places it after the current last task.
func (s *Service) AddTask(in TaskInput) (*backend.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("task title cannot be empty")
	}
	if err := utils.ValidatePriority(in.Priority); err != nil {
		return nil, err
	}
	status, err := parseStatus(in.Status)
	if err != nil {
		return nil, err
	}

	tasks, err := s.store.Tasks()
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	now := s.now()
	task := backend.NewTask(title, now)
	task.Description = in.Description
	task.Priority = in.Priority
	task.DueDate = in.DueDate
	task.EstimatedDuration = in.EstimatedDuration
	task.Order = nextTaskOrder(tasks)
	task.SetStatus(status, now)

	if in.Domain != "" {
		domain, err := s.FindDomain(in.Domain)
		if err != nil {
			return nil, err
		}
		task.DomainID = domain.ID
	}

	if err := s.store.Put(task); err != nil {
		return nil, fmt.Errorf("error adding task: %w", err)
	}
	utils.Debugf("Added task %s (%s)", task.ID, task.Title)
	return task, nil
}

// UpdateTaskStatus moves a task to status and keeps completedAt consistent.
// actualMinutes, when set, records the time spent.
func (s *Service) UpdateTaskStatus(ref, status string, actualMinutes *int) (*backend.Task, error) {
	target, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	task, err := s.FindTask(ref)
	if err != nil {
		return nil, err
	}

	task.SetStatus(target, s.now())
	if actualMinutes != nil {
		task.ActualDuration = actualMinutes
	}
	if err := s.store.Put(task); err != nil {
		return nil, fmt.Errorf("error updating task: %w", err)
	}
	return task, nil
}

// DeleteTask removes a task. The deletion propagates on the next sync.
func (s *Service) DeleteTask(ref string) (*backend.Task, error) {
	task, err := s.FindTask(ref)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(backend.KindTask, task.ID); err != nil {
		return nil, fmt.Errorf("error deleting task: %w", err)
	}
	return task, nil
}

// DomainInput holds the fields of a new domain
type DomainInput struct {
	Name        string
	Color       string
	Icon        string
	Description string
	IsDefault   bool
}

// AddDomain creates a domain. Names are unique, case-insensitively.
// Marking it default clears the flag on the previous default.
func (s *Service) AddDomain(in DomainInput) (*backend.Domain, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("domain name cannot be empty")
	}

	domains, err := s.store.Domains()
	if err != nil {
		return nil, fmt.Errorf("failed to load domains: %w", err)
	}
	order := 0
	for _, d := range domains {
		if strings.EqualFold(d.Name, name) {
			return nil, fmt.Errorf("domain '%s' already exists", d.Name)
		}
		if d.Order >= order {
			order = d.Order + 1
		}
	}

	domain := backend.NewDomain(name, s.now())
	domain.Color = in.Color
	domain.Icon = in.Icon
	domain.Description = in.Description
	domain.IsDefault = in.IsDefault
	domain.Order = order

	if in.IsDefault {
		for i := range domains {
			if domains[i].IsDefault {
				previous := domains[i]
				previous.IsDefault = false
				if err := s.store.Put(&previous); err != nil {
					return nil, fmt.Errorf("error clearing default domain: %w", err)
				}
			}
		}
	}

	if err := s.store.Put(domain); err != nil {
		return nil, fmt.Errorf("error adding domain: %w", err)
	}
	return domain, nil
}

// DeleteDomain removes a domain. Tasks keep their reference; the UI shows them
// without a domain once the domain is gone.
func (s *Service) DeleteDomain(ref string) (*backend.Domain, error) {
	domain, err := s.FindDomain(ref)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(backend.KindDomain, domain.ID); err != nil {
		return nil, fmt.Errorf("error deleting domain: %w", err)
	}
	return domain, nil
}

// TaskFilter narrows ListTasks
type TaskFilter struct {
	Statuses []backend.TaskStatus
	DomainID string
}

// ListTasks returns live tasks matching filter, sorted by sortBy
// ("order", "priority", "due", "created", "title"; default order).
func (s *Service) ListTasks(filter TaskFilter, sortBy string) ([]backend.Task, error) {
	tasks, err := s.store.Tasks()
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	filtered := tasks[:0]
	for _, t := range tasks {
		if filter.DomainID != "" && t.DomainID != filter.DomainID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		filtered = append(filtered, t)
	}

	if err := SortTasks(filtered, sortBy); err != nil {
		return nil, err
	}
	return filtered, nil
}

// ListDomains returns live domains in display order
func (s *Service) ListDomains() ([]backend.Domain, error) {
	domains, err := s.store.Domains()
	if err != nil {
		return nil, fmt.Errorf("failed to load domains: %w", err)
	}
	return domains, nil
}

// FindTask resolves a live task by ID prefix
func (s *Service) FindTask(ref string) (*backend.Task, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, utils.ErrTaskNotFound(ref)
	}

	tasks, err := s.store.Tasks()
	if err != nil {
		return nil, fmt.Errorf("error searching for tasks: %w", err)
	}

	var matches []backend.Task
	for _, t := range tasks {
		if t.ID == ref {
			return &t, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}

	switch len(matches) {
	case 0:
		return nil, utils.ErrTaskNotFound(ref)
	case 1:
		return &matches[0], nil
	default:
		return nil, utils.ErrAmbiguousTask(ref, len(matches))
	}
}

// FindDomain resolves a live domain by exact name (case-insensitive) or ID prefix
func (s *Service) FindDomain(ref string) (*backend.Domain, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, utils.ErrDomainNotFound(ref)
	}

	domains, err := s.store.Domains()
	if err != nil {
		return nil, fmt.Errorf("error searching for domains: %w", err)
	}

	var byPrefix []backend.Domain
	for _, d := range domains {
		if strings.EqualFold(d.Name, ref) || d.ID == ref {
			return &d, nil
		}
		if strings.HasPrefix(d.ID, ref) {
			byPrefix = append(byPrefix, d)
		}
	}
	if len(byPrefix) == 1 {
		return &byPrefix[0], nil
	}
	return nil, utils.ErrDomainNotFound(ref)
}

// SortTasks sorts tasks in place. Ties fall back to the order index.
func SortTasks(tasks []backend.Task, sortBy string) error {
	var less func(a, b *backend.Task) bool

	switch strings.ToLower(sortBy) {
	case "", "order":
		less = func(a, b *backend.Task) bool { return a.Order < b.Order }
	case "priority":
		// Higher priority first, 0 (none) last
		less = func(a, b *backend.Task) bool { return a.Priority > b.Priority }
	case "due":
		less = func(a, b *backend.Task) bool { return compareDatePointers(a.DueDate, b.DueDate, true) }
	case "created":
		less = func(a, b *backend.Task) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "title":
		less = func(a, b *backend.Task) bool { return strings.ToLower(a.Title) < strings.ToLower(b.Title) }
	default:
		return fmt.Errorf("unknown sort field '%s' (valid: order, priority, due, created, title)", sortBy)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := &tasks[i], &tasks[j]
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.Order < b.Order
	})
	return nil
}

// ParseStatusFilter splits comma-separated status flags into statuses
func ParseStatusFilter(values []string) ([]backend.TaskStatus, error) {
	var statuses []backend.TaskStatus
	for _, value := range values {
		for part := range strings.SplitSeq(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, err := parseStatus(part)
			if err != nil {
				return nil, err
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

func parseStatus(s string) (backend.TaskStatus, error) {
	status, err := backend.ParseTaskStatus(s)
	if err != nil {
		return "", utils.ErrInvalidStatus(s, []string{
			string(backend.StatusTodo), string(backend.StatusInProgress), string(backend.StatusDone),
		})
	}
	return status, nil
}

func nextTaskOrder(tasks []backend.Task) int {
	order := 0
	for _, t := range tasks {
		if t.Order >= order {
			order = t.Order + 1
		}
	}
	return order
}

func containsStatus(statuses []backend.TaskStatus, status backend.TaskStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// compareDatePointers compares two date pointers, handling nil values.
// nilsLast determines whether nil values should be considered greater than non-nil.
func compareDatePointers(a, b *time.Time, nilsLast bool) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil {
		return !nilsLast
	}
	if b == nil {
		return nilsLast
	}
	return a.Before(*b)
}
