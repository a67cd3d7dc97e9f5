package api

import (
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/example/task-manager/domain/task"
)

// LabelList decodes either a JSON array of strings or a single
// comma-separated string.
type LabelList []string

func (l *LabelList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = domain.NormalizeLabels(list)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("labels must be an array of strings or a comma separated string")
	}
	*l = domain.ParseLabels(s)
	return nil
}

// TaskRequest is the body of create and update requests. Absent fields are
// left untouched on update.
type TaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	DueDate     *string    `json:"due_date"`
	Labels      *LabelList `json:"labels"`
}

func (r TaskRequest) payload() domain.Payload {
	p := domain.Payload{
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		Priority:    r.Priority,
		DueDate:     r.DueDate,
	}
	if r.Labels != nil {
		p.Labels = []string(*r.Labels)
		if p.Labels == nil {
			p.Labels = []string{}
		}
	}
	return p
}

// StatusRequest is the body of PATCH /tasks/:id/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// TaskResponse is the HTTP representation of a task.
type TaskResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	DueDate     string    `json:"due_date,omitempty"`
	Labels      []string  `json:"labels"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toTaskResponse(t domain.Task) TaskResponse {
	labels := t.Labels
	if labels == nil {
		labels = []string{}
	}
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		DueDate:     domain.FormatDueDate(t.DueDate),
		Labels:      labels,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// ListTasksResponse is the HTTP response for listing tasks.
type ListTasksResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Total  int            `json:"total"`
	Filter string         `json:"filter"`
}

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest represents a token refresh request.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UserResponse represents a user response.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// HealthResponse is the HTTP response for health check.
type HealthResponse struct {
	Status  string         `json:"status"`
	Modules map[string]any `json:"modules,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}
