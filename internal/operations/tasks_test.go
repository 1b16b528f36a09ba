package operations

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tasksync/backend"
	"tasksync/backend/sqlite"
	"tasksync/internal/utils"
)

func setupService(t *testing.T) (*Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store), store
}

func TestAddTask(t *testing.T) {
	svc, store := setupService(t)

	work, err := svc.AddDomain(DomainInput{Name: "Work", Color: "#ff0000"})
	if err != nil {
		t.Fatalf("AddDomain() error = %v", err)
	}

	minutes := 30
	task, err := svc.AddTask(TaskInput{
		Title:             "  Write report  ",
		Priority:          2,
		Domain:            "work",
		EstimatedDuration: &minutes,
	})
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}

	if task.Title != "Write report" {
		t.Errorf("Title = %q, want trimmed", task.Title)
	}
	if task.Status != backend.StatusTodo {
		t.Errorf("Status = %q, want todo", task.Status)
	}
	if task.DomainID != work.ID {
		t.Errorf("DomainID = %q, want %q", task.DomainID, work.ID)
	}

	stored, err := store.GetTask(task.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetTask() = %v, %v", stored, err)
	}
	if stored.EstimatedDuration == nil || *stored.EstimatedDuration != 30 {
		t.Errorf("EstimatedDuration = %v, want 30", stored.EstimatedDuration)
	}

	second, err := svc.AddTask(TaskInput{Title: "Second"})
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if second.Order <= task.Order {
		t.Errorf("Order = %d, want after %d", second.Order, task.Order)
	}
}

func TestAddTaskValidation(t *testing.T) {
	svc, _ := setupService(t)

	tests := []struct {
		name  string
		input TaskInput
	}{
		{"empty title", TaskInput{Title: "   "}},
		{"priority too high", TaskInput{Title: "x", Priority: 4}},
		{"negative priority", TaskInput{Title: "x", Priority: -1}},
		{"unknown status", TaskInput{Title: "x", Status: "blocked"}},
		{"unknown domain", TaskInput{Title: "x", Domain: "nowhere"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.AddTask(tt.input); err == nil {
				t.Errorf("AddTask(%+v) should fail", tt.input)
			}
		})
	}
}

func TestAddTaskDoneSetsCompletedAt(t *testing.T) {
	svc, _ := setupService(t)

	task, err := svc.AddTask(TaskInput{Title: "Already done", Status: "done"})
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if task.CompletedAt == nil {
		t.Error("CompletedAt should be set for a done task")
	}
}

func TestUpdateTaskStatus(t *testing.T) {
	svc, store := setupService(t)
	task, err := svc.AddTask(TaskInput{Title: "Ship"})
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	created := task.UpdatedAt

	clock := created.Add(time.Minute)
	store.SetClock(func() time.Time { return clock })

	spent := 45
	done, err := svc.UpdateTaskStatus(task.ID[:8], "done", &spent)
	if err != nil {
		t.Fatalf("UpdateTaskStatus(done) error = %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatal("CompletedAt should be set")
	}
	if !done.UpdatedAt.After(created) {
		t.Errorf("UpdatedAt = %v, want after %v", done.UpdatedAt, created)
	}
	if done.ActualDuration == nil || *done.ActualDuration != 45 {
		t.Errorf("ActualDuration = %v, want 45", done.ActualDuration)
	}

	reopened, err := svc.UpdateTaskStatus(task.ID, "in-progress", nil)
	if err != nil {
		t.Fatalf("UpdateTaskStatus(in-progress) error = %v", err)
	}
	if reopened.CompletedAt != nil {
		t.Error("CompletedAt should be cleared when leaving done")
	}
	if reopened.Status != backend.StatusInProgress {
		t.Errorf("Status = %q, want in_progress", reopened.Status)
	}

	if _, err := svc.UpdateTaskStatus(task.ID, "later", nil); err == nil {
		t.Error("UpdateTaskStatus() should reject an unknown status")
	}
}

func TestDeleteTask(t *testing.T) {
	svc, store := setupService(t)
	task, err := svc.AddTask(TaskInput{Title: "Throwaway"})
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}

	if _, err := svc.DeleteTask(task.ID); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}

	tasks, err := svc.ListTasks(TaskFilter{}, "")
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("ListTasks() = %d tasks, want 0", len(tasks))
	}

	tomb, err := store.GetTask(task.ID)
	if err != nil || tomb == nil {
		t.Fatalf("tombstone should remain in the store: %v, %v", tomb, err)
	}
	if tomb.DeletedAt == nil {
		t.Error("DeletedAt should be set")
	}

	if _, err := svc.DeleteTask(task.ID); err == nil {
		t.Error("deleting a deleted task should report not found")
	}
}

func TestFindTask(t *testing.T) {
	svc, store := setupService(t)

	for _, id := range []string{"aaaa-1111", "aaaa-2222", "bbbb-3333"} {
		task := backend.NewTask("task "+id, time.Now())
		task.ID = id
		if err := store.Put(task); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	tests := []struct {
		name    string
		ref     string
		wantID  string
		wantErr string
	}{
		{"exact id", "aaaa-1111", "aaaa-1111", ""},
		{"unique prefix", "bb", "bbbb-3333", ""},
		{"ambiguous prefix", "aaaa", "", "matches 2 tasks"},
		{"no match", "zzz", "", "no task found"},
		{"empty", "", "", "no task found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := svc.FindTask(tt.ref)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("FindTask(%q) error = %v, want containing %q", tt.ref, err, tt.wantErr)
				}
				var withSuggestion *utils.ErrorWithSuggestion
				if !errors.As(err, &withSuggestion) {
					t.Errorf("FindTask(%q) error should carry a suggestion", tt.ref)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindTask(%q) error = %v", tt.ref, err)
			}
			if task.ID != tt.wantID {
				t.Errorf("FindTask(%q) = %q, want %q", tt.ref, task.ID, tt.wantID)
			}
		})
	}
}

func TestDomains(t *testing.T) {
	svc, _ := setupService(t)

	home, err := svc.AddDomain(DomainInput{Name: "Home", IsDefault: true})
	if err != nil {
		t.Fatalf("AddDomain(Home) error = %v", err)
	}
	if _, err := svc.AddDomain(DomainInput{Name: "home"}); err == nil {
		t.Error("AddDomain() should reject a duplicate name")
	}
	if _, err := svc.AddDomain(DomainInput{Name: "Bad", Color: "red"}); err == nil {
		t.Error("AddDomain() should reject a non-hex color")
	}

	work, err := svc.AddDomain(DomainInput{Name: "Work", IsDefault: true})
	if err != nil {
		t.Fatalf("AddDomain(Work) error = %v", err)
	}

	domains, err := svc.ListDomains()
	if err != nil {
		t.Fatalf("ListDomains() error = %v", err)
	}
	if len(domains) != 2 {
		t.Fatalf("ListDomains() = %d domains, want 2", len(domains))
	}
	for _, d := range domains {
		if d.ID == home.ID && d.IsDefault {
			t.Error("the previous default should be cleared")
		}
		if d.ID == work.ID && !d.IsDefault {
			t.Error("the new domain should be default")
		}
	}

	if _, err := svc.DeleteDomain("HOME"); err != nil {
		t.Fatalf("DeleteDomain() error = %v", err)
	}
	domains, _ = svc.ListDomains()
	if len(domains) != 1 || domains[0].ID != work.ID {
		t.Errorf("ListDomains() after delete = %+v, want only Work", domains)
	}
}

func TestListTasksFilterAndSort(t *testing.T) {
	svc, _ := setupService(t)
	work, _ := svc.AddDomain(DomainInput{Name: "Work"})

	inputs := []TaskInput{
		{Title: "c-low", Priority: 1, Domain: "Work"},
		{Title: "a-high", Priority: 3, Domain: "Work", Status: "in_progress"},
		{Title: "b-none", Priority: 0},
	}
	for _, in := range inputs {
		if _, err := svc.AddTask(in); err != nil {
			t.Fatalf("AddTask(%s) error = %v", in.Title, err)
		}
	}

	byPriority, err := svc.ListTasks(TaskFilter{}, "priority")
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	gotTitles := titles(byPriority)
	if gotTitles != "a-high,c-low,b-none" {
		t.Errorf("priority order = %s", gotTitles)
	}

	byTitle, _ := svc.ListTasks(TaskFilter{}, "title")
	if got := titles(byTitle); got != "a-high,b-none,c-low" {
		t.Errorf("title order = %s", got)
	}

	inWork, _ := svc.ListTasks(TaskFilter{DomainID: work.ID}, "")
	if got := titles(inWork); got != "c-low,a-high" {
		t.Errorf("domain filter = %s", got)
	}

	statuses, err := ParseStatusFilter([]string{"in-progress,done"})
	if err != nil {
		t.Fatalf("ParseStatusFilter() error = %v", err)
	}
	active, _ := svc.ListTasks(TaskFilter{Statuses: statuses}, "")
	if got := titles(active); got != "a-high" {
		t.Errorf("status filter = %s", got)
	}

	if _, err := svc.ListTasks(TaskFilter{}, "color"); err == nil {
		t.Error("ListTasks() should reject an unknown sort field")
	}
}

func TestCompareDatePointers(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)

	if !compareDatePointers(&early, &late, true) {
		t.Error("earlier date should sort first")
	}
	if !compareDatePointers(&early, nil, true) {
		t.Error("nil should sort last when nilsLast")
	}
	if compareDatePointers(nil, &early, true) {
		t.Error("nil should not sort before a date when nilsLast")
	}
	if compareDatePointers(nil, nil, true) {
		t.Error("two nils are equal")
	}
}

func titles(tasks []backend.Task) string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Title
	}
	return strings.Join(names, ",")
}
