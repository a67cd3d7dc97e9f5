package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	domain "github.com/example/task-manager/domain/task"
)

// RemoteError is a non-validation failure reported by the API. It matches
// the domain sentinel of its kind with errors.Is.
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return target == domain.ErrUnauthorized
	case http.StatusNotFound:
		return target == domain.ErrNotFound
	case http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return target == domain.ErrStoreUnavailable
	}
	return false
}

// HTTPRemote implements Remote against the task manager HTTP API.
type HTTPRemote struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

var _ Remote = (*HTTPRemote)(nil)

// NewHTTPRemote creates a remote for the API at baseURL
// (e.g. "http://localhost:3000"). Requests carry no timeout of their own:
// they end when the server answers or the caller's context is done.
func NewHTTPRemote(baseURL string) *HTTPRemote {
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// SetToken sets the bearer token sent with every task request.
func (r *HTTPRemote) SetToken(token string) {
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
}

// Token returns the current access token.
func (r *HTTPRemote) Token() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.token
}

// Login exchanges credentials for tokens and keeps the access token.
func (r *HTTPRemote) Login(ctx context.Context, email, password string) error {
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := r.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &resp); err != nil {
		return err
	}
	r.SetToken(resp.AccessToken)
	return nil
}

// wireTask mirrors the API's task representation.
type wireTask struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	DueDate     string    `json:"due_date"`
	Labels      []string  `json:"labels"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (w wireTask) task() (domain.Task, error) {
	status, err := domain.ParseStatus(w.Status)
	if err != nil {
		return domain.Task{}, fmt.Errorf("server sent %w", err)
	}
	priority, err := domain.ParsePriority(w.Priority)
	if err != nil {
		return domain.Task{}, fmt.Errorf("server sent %w", err)
	}
	due, err := domain.ParseDueDate(w.DueDate)
	if err != nil {
		return domain.Task{}, fmt.Errorf("server sent invalid due date %q", w.DueDate)
	}
	labels := w.Labels
	if labels == nil {
		labels = []string{}
	}

	return domain.Task{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		Status:      status,
		Priority:    priority,
		DueDate:     due,
		Labels:      labels,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}, nil
}

func (r *HTTPRemote) ListTasks(ctx context.Context, filter domain.Filter) ([]domain.Task, error) {
	var resp struct {
		Tasks []wireTask `json:"tasks"`
	}
	path := "/api/v1/tasks?status=" + url.QueryEscape(filter.String())
	if err := r.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	tasks := make([]domain.Task, 0, len(resp.Tasks))
	for _, w := range resp.Tasks {
		t, err := w.task()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (r *HTTPRemote) CreateTask(ctx context.Context, payload domain.Payload) (domain.Task, error) {
	return r.taskCall(ctx, http.MethodPost, "/api/v1/tasks", payload)
}

func (r *HTTPRemote) UpdateTask(ctx context.Context, id string, payload domain.Payload) (domain.Task, error) {
	return r.taskCall(ctx, http.MethodPut, "/api/v1/tasks/"+url.PathEscape(id), payload)
}

func (r *HTTPRemote) SetStatus(ctx context.Context, id string, status domain.Status) (domain.Task, error) {
	body := map[string]string{"status": string(status)}
	return r.taskCall(ctx, http.MethodPatch, "/api/v1/tasks/"+url.PathEscape(id)+"/status", body)
}

func (r *HTTPRemote) DeleteTask(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodDelete, "/api/v1/tasks/"+url.PathEscape(id), nil, nil)
}

func (r *HTTPRemote) taskCall(ctx context.Context, method, path string, body any) (domain.Task, error) {
	var w wireTask
	if err := r.do(ctx, method, path, body, &w); err != nil {
		return domain.Task{}, err
	}
	return w.task()
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// do sends a JSON request and decodes a JSON response into out. Error
// responses become *domain.ValidationError (400 with a field) or
// *RemoteError.
func (r *HTTPRemote) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := r.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &RemoteError{
			StatusCode: http.StatusServiceUnavailable,
			Code:       "unreachable",
			Message:    "Could not reach the task service",
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		if resp.StatusCode == http.StatusBadRequest && eb.Field != "" {
			return &domain.ValidationError{Field: eb.Field, Reason: eb.Message}
		}
		if eb.Message == "" {
			eb.Message = http.StatusText(resp.StatusCode)
		}
		return &RemoteError{StatusCode: resp.StatusCode, Code: eb.Error, Message: eb.Message}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
