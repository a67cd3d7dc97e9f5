package task

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the workflow state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists every status in board column order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusCompleted}

// ParseStatus converts raw text into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// IsValid reports whether s is one of the enumerated statuses.
func (s Status) IsValid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// Label returns the human readable form used in notifications ("in progress").
func (s Status) Label() string {
	return strings.Replace(string(s), "-", " ", 1)
}

// Priority represents how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority converts raw text into a Priority, rejecting unknown values.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	}
	return "", fmt.Errorf("invalid priority %q", s)
}

// IsValid reports whether p is one of the enumerated priorities.
func (p Priority) IsValid() bool {
	_, err := ParsePriority(string(p))
	return err == nil
}

// Task is the core domain entity. Only the task service creates, mutates or
// destroys one.
type Task struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Labels      []string   `json:"labels"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	c := t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.Labels != nil {
		c.Labels = append([]string{}, t.Labels...)
	}
	return c
}

// Fields is a partial update. Nil fields are left untouched.
type Fields struct {
	Title       *string
	Description *string
	Status      *Status
	Priority    *Priority
	// DueDateSet distinguishes "clear the due date" (DueDateSet with a nil
	// DueDate) from "leave it alone".
	DueDateSet bool
	DueDate    *time.Time
	Labels     *[]string
}

// IsEmpty reports whether no field would change.
func (f Fields) IsEmpty() bool {
	return f.Title == nil && f.Description == nil && f.Status == nil &&
		f.Priority == nil && !f.DueDateSet && f.Labels == nil
}

// Apply writes the non-nil fields onto t and stamps UpdatedAt.
func (f Fields) Apply(t *Task, now time.Time) {
	if f.Title != nil {
		t.Title = *f.Title
	}
	if f.Description != nil {
		t.Description = *f.Description
	}
	if f.Status != nil {
		t.Status = *f.Status
	}
	if f.Priority != nil {
		t.Priority = *f.Priority
	}
	if f.DueDateSet {
		if f.DueDate == nil {
			t.DueDate = nil
		} else {
			d := *f.DueDate
			t.DueDate = &d
		}
	}
	if f.Labels != nil {
		t.Labels = append([]string{}, (*f.Labels)...)
	}
	t.UpdatedAt = NextUpdatedAt(t.UpdatedAt, now)
}

// NextUpdatedAt returns now, or one microsecond past prev when the clock has
// not advanced, so UpdatedAt always moves forward on a mutation.
func NextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

// Filter selects tasks by status. The zero value matches everything.
type Filter struct {
	status Status
}

// FilterAll matches every task.
var FilterAll = Filter{}

// ParseFilter never fails: absent, "all" or unknown values mean FilterAll.
func ParseFilter(s string) Filter {
	st, err := ParseStatus(strings.TrimSpace(s))
	if err != nil {
		return FilterAll
	}
	return Filter{status: st}
}

// FilterFor builds a filter matching a single status.
func FilterFor(s Status) Filter {
	if !s.IsValid() {
		return FilterAll
	}
	return Filter{status: s}
}

// Status returns the selected status, or false for FilterAll.
func (f Filter) Status() (Status, bool) {
	return f.status, f.status != ""
}

// Matches reports whether t passes the filter.
func (f Filter) Matches(t Task) bool {
	return f.status == "" || t.Status == f.status
}

// String returns "all" or the selected status.
func (f Filter) String() string {
	if f.status == "" {
		return "all"
	}
	return string(f.status)
}
