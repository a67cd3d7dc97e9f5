package task

import (
	"strings"
	"time"
)

// DateLayout is the wire format of a due date.
const DateLayout = "2006-01-02"

// Payload carries raw field values of a create or update request. A nil
// pointer (or nil Labels) means the field was not provided.
type Payload struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Status      *string  `json:"status,omitempty"`
	Priority    *string  `json:"priority,omitempty"`
	DueDate     *string  `json:"due_date,omitempty"`
	Labels      []string `json:"labels"`
}

// Validated is a payload that passed validation with defaults applied.
type Validated struct {
	Title       string
	Description string
	Status      Status
	Priority    Priority
	DueDate     *time.Time
	Labels      []string
}

// NewTask builds an unsaved task owned by ownerID.
func (v Validated) NewTask(ownerID string) Task {
	return Task{
		OwnerID:     ownerID,
		Title:       v.Title,
		Description: v.Description,
		Status:      v.Status,
		Priority:    v.Priority,
		DueDate:     v.DueDate,
		Labels:      v.Labels,
	}
}

// Validate checks a creation payload. Fields are checked in declaration order
// and the first failure is returned.
func Validate(p Payload) (Validated, error) {
	var v Validated

	if p.Title != nil {
		v.Title = strings.TrimSpace(*p.Title)
	}
	if v.Title == "" {
		return Validated{}, &ValidationError{Field: "title", Reason: "Title is required"}
	}

	if p.Description != nil {
		v.Description = strings.TrimSpace(*p.Description)
	}

	v.Status = StatusTodo
	if p.Status != nil {
		st, err := ParseStatus(*p.Status)
		if err != nil {
			return Validated{}, &ValidationError{Field: "status", Reason: "Status must be one of todo, in-progress, completed"}
		}
		v.Status = st
	}

	v.Priority = PriorityMedium
	if p.Priority != nil {
		pr, err := ParsePriority(*p.Priority)
		if err != nil {
			return Validated{}, &ValidationError{Field: "priority", Reason: "Priority must be one of low, medium, high"}
		}
		v.Priority = pr
	}

	if p.DueDate != nil {
		d, err := ParseDueDate(*p.DueDate)
		if err != nil {
			return Validated{}, err
		}
		v.DueDate = d
	}

	v.Labels = NormalizeLabels(p.Labels)
	return v, nil
}

// ValidatePatch checks only the provided fields of an update payload with the
// same rules as Validate and returns them as a partial update.
func ValidatePatch(p Payload) (Fields, error) {
	var f Fields

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return Fields{}, &ValidationError{Field: "title", Reason: "Title is required"}
		}
		f.Title = &title
	}

	if p.Description != nil {
		desc := strings.TrimSpace(*p.Description)
		f.Description = &desc
	}

	if p.Status != nil {
		st, err := ParseStatus(*p.Status)
		if err != nil {
			return Fields{}, &ValidationError{Field: "status", Reason: "Status must be one of todo, in-progress, completed"}
		}
		f.Status = &st
	}

	if p.Priority != nil {
		pr, err := ParsePriority(*p.Priority)
		if err != nil {
			return Fields{}, &ValidationError{Field: "priority", Reason: "Priority must be one of low, medium, high"}
		}
		f.Priority = &pr
	}

	if p.DueDate != nil {
		d, err := ParseDueDate(*p.DueDate)
		if err != nil {
			return Fields{}, err
		}
		f.DueDateSet = true
		f.DueDate = d
	}

	if p.Labels != nil {
		labels := NormalizeLabels(p.Labels)
		f.Labels = &labels
	}

	return f, nil
}

// ParseDueDate parses a calendar date. Empty input means no due date; an
// RFC 3339 timestamp is accepted and truncated to its date.
func ParseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	d, err := time.Parse(DateLayout, s)
	if err != nil {
		ts, tsErr := time.Parse(time.RFC3339, s)
		if tsErr != nil {
			return nil, &ValidationError{Field: "dueDate", Reason: "Due date must be a valid date (YYYY-MM-DD)"}
		}
		d = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	return &d, nil
}

// NormalizeLabels trims every label and drops empty ones, keeping order and
// duplicates. The result is never nil.
func NormalizeLabels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, l := range in {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// ParseLabels splits a comma separated label list as submitted by a form.
func ParseLabels(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	return NormalizeLabels(strings.Split(s, ","))
}

// FormatDueDate renders a due date in DateLayout, or "" when unset.
func FormatDueDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format(DateLayout)
}
