package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	user "github.com/example/task-manager/domain/user"
	"github.com/example/task-manager/modules/auth"
	"github.com/example/task-manager/modules/broadcast"
	"github.com/gofiber/fiber/v2"
)

type testServer struct {
	app   *fiber.App
	tasks *fakeTaskPort
	auth  *mockAuthPort
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{tasks: &fakeTaskPort{}, auth: &mockAuthPort{}}
	s.app = newApp(NewHandlers(s.tasks, s.auth, nil), s.auth, nil, Config{}, nil)
	return s
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("invalid JSON response %q: %v", raw, err)
		}
	}
	return resp, decoded
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"missing header", "", http.StatusUnauthorized, "Authorization header is required"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "Authorization header is required"},
		{"invalid token", "Bearer nope", http.StatusUnauthorized, "Invalid or expired token"},
		{"expired token", "Bearer expired", http.StatusUnauthorized, "Invalid or expired token"},
		{"valid token", "Bearer token-alice", http.StatusOK, "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(AuthMiddleware(&mockAuthPort{}))
			app.Get("/", func(c *fiber.Ctx) error {
				return c.SendString(ownerID(c))
			})

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %q", body, tt.wantBody)
			}
		})
	}
}

func TestAuthMiddleware_QueryTokenOnlyForWebSocket(t *testing.T) {
	for _, tc := range []struct {
		name       string
		handler    fiber.Handler
		wantStatus int
	}{
		{"api", AuthMiddleware(&mockAuthPort{}), http.StatusUnauthorized},
		{"websocket", WebSocketAuthMiddleware(&mockAuthPort{}), http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(tc.handler)
			app.Get("/", func(c *fiber.Ctx) error { return c.SendString(ownerID(c)) })

			resp, err := app.Test(httptest.NewRequest("GET", "/?token=token-bob", nil), -1)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
		})
	}
}

func TestTasks_CRUD(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "POST", "/api/v1/tasks", "token-alice",
		`{"title":"  Write docs ","priority":"high","due_date":"2024-05-01","labels":"docs, writing"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body = %v", resp.StatusCode, body)
	}
	id, _ := body["id"].(string)
	if body["title"] != "Write docs" || body["status"] != "todo" || body["priority"] != "high" {
		t.Errorf("create body = %v", body)
	}
	if body["due_date"] != "2024-05-01" {
		t.Errorf("due_date = %v, want 2024-05-01", body["due_date"])
	}
	if labels, _ := body["labels"].([]any); len(labels) != 2 || labels[0] != "docs" {
		t.Errorf("labels = %v, want [docs writing]", body["labels"])
	}

	resp, body = s.do(t, "GET", "/api/v1/tasks/"+id, "token-alice", "")
	if resp.StatusCode != http.StatusOK || body["id"] != id {
		t.Fatalf("get status = %d, body = %v", resp.StatusCode, body)
	}

	resp, body = s.do(t, "PUT", "/api/v1/tasks/"+id, "token-alice", `{"description":"all of it","labels":[]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, body = %v", resp.StatusCode, body)
	}
	if body["title"] != "Write docs" || body["description"] != "all of it" {
		t.Errorf("update body = %v", body)
	}
	if labels, _ := body["labels"].([]any); len(labels) != 0 {
		t.Errorf("labels = %v, want cleared", body["labels"])
	}

	resp, body = s.do(t, "PATCH", "/api/v1/tasks/"+id+"/status", "token-alice", `{"status":"completed"}`)
	if resp.StatusCode != http.StatusOK || body["status"] != "completed" {
		t.Fatalf("set status = %d, body = %v", resp.StatusCode, body)
	}

	resp, body = s.do(t, "GET", "/api/v1/tasks?status=completed", "token-alice", "")
	if resp.StatusCode != http.StatusOK || body["total"] != float64(1) || body["filter"] != "completed" {
		t.Fatalf("list completed = %d, body = %v", resp.StatusCode, body)
	}
	_, body = s.do(t, "GET", "/api/v1/tasks?status=todo", "token-alice", "")
	if body["total"] != float64(0) {
		t.Errorf("list todo total = %v, want 0", body["total"])
	}

	resp, _ = s.do(t, "DELETE", "/api/v1/tasks/"+id, "token-alice", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	resp, body = s.do(t, "DELETE", "/api/v1/tasks/"+id, "token-alice", "")
	if resp.StatusCode != http.StatusNotFound || body["error"] != "not_found" {
		t.Fatalf("second delete = %d, body = %v", resp.StatusCode, body)
	}
}

func TestTasks_OwnerIsolation(t *testing.T) {
	s := newTestServer(t)

	_, body := s.do(t, "POST", "/api/v1/tasks", "token-alice", `{"title":"private"}`)
	id, _ := body["id"].(string)

	resp, _ := s.do(t, "GET", "/api/v1/tasks/"+id, "token-bob", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("bob get status = %d, want 404", resp.StatusCode)
	}
	_, body = s.do(t, "GET", "/api/v1/tasks", "token-bob", "")
	if body["total"] != float64(0) {
		t.Errorf("bob list total = %v, want 0", body["total"])
	}
}

func TestTasks_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		storeErr   error
		wantStatus int
		wantError  string
		wantField  string
	}{
		{"missing title", "POST", "/api/v1/tasks", `{"description":"x"}`, nil, 400, "validation_failed", "title"},
		{"bad due date", "POST", "/api/v1/tasks", `{"title":"a","due_date":"2024-13-01"}`, nil, 400, "validation_failed", "dueDate"},
		{"bad labels", "POST", "/api/v1/tasks", `{"title":"a","labels":42}`, nil, 400, "bad_request", ""},
		{"bad status", "PATCH", "/api/v1/tasks/x/status", `{"status":"done"}`, nil, 400, "validation_failed", "status"},
		{"unknown task", "GET", "/api/v1/tasks/missing", "", nil, 404, "not_found", ""},
		{"store down", "GET", "/api/v1/tasks", "", errors.New("dial tcp: refused"), 503, "store_unavailable", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.tasks.err = tt.storeErr

			resp, body := s.do(t, tt.method, tt.path, "token-alice", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %v)", resp.StatusCode, tt.wantStatus, body)
			}
			if body["error"] != tt.wantError {
				t.Errorf("error = %v, want %q", body["error"], tt.wantError)
			}
			if tt.wantField != "" && body["field"] != tt.wantField {
				t.Errorf("field = %v, want %q", body["field"], tt.wantField)
			}
			if strings.Contains(body["message"].(string), "dial tcp") {
				t.Errorf("message leaks driver error: %v", body["message"])
			}
		})
	}
}

func TestTasks_RequireAuth(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(t, "GET", "/api/v1/tasks", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthRoutes(t *testing.T) {
	s := newTestServer(t)
	s.auth.registerFunc = func(_ context.Context, email, _ string) (*user.User, error) {
		if email == "taken@example.com" {
			return nil, auth.ErrUserExists
		}
		if email == "short@example.com" {
			return nil, auth.ErrWeakPassword
		}
		return &user.User{ID: "u1", Email: email, CreatedAt: time.Now()}, nil
	}
	s.auth.loginFunc = func(_ context.Context, _, password string) (*user.TokenPair, error) {
		if password != "password123" {
			return nil, auth.ErrInvalidCredentials
		}
		return &user.TokenPair{AccessToken: "a", RefreshToken: "r", ExpiresIn: 900, TokenType: "Bearer"}, nil
	}

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"register", "/api/v1/auth/register", `{"email":"new@example.com","password":"password123"}`, 201},
		{"register taken", "/api/v1/auth/register", `{"email":"taken@example.com","password":"password123"}`, 409},
		{"register weak", "/api/v1/auth/register", `{"email":"short@example.com","password":"x"}`, 400},
		{"register missing", "/api/v1/auth/register", `{"email":""}`, 400},
		{"login", "/api/v1/auth/login", `{"email":"a@example.com","password":"password123"}`, 200},
		{"login wrong", "/api/v1/auth/login", `{"email":"a@example.com","password":"nope"}`, 401},
		{"refresh missing", "/api/v1/auth/refresh", `{}`, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, "POST", tt.path, "", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %v)", resp.StatusCode, tt.wantStatus, body)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	h := NewHandlers(&fakeTaskPort{}, &mockAuthPort{}, nil)

	app := newApp(h, &mockAuthPort{}, nil, Config{}, []HealthChecker{staticHealth{"task", true}})
	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil), -1)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthy: status = %v, err = %v", resp.StatusCode, err)
	}

	app = newApp(h, &mockAuthPort{}, nil, Config{}, []HealthChecker{staticHealth{"task", true}, staticHealth{"auth", false}})
	resp, err = app.Test(httptest.NewRequest("GET", "/health", nil), -1)
	if err != nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy: status = %v, err = %v", resp.StatusCode, err)
	}
}

type fakeNotifications []broadcast.Notification

func (f fakeNotifications) Notifications(ownerID string, limit int) []broadcast.Notification {
	out := []broadcast.Notification{}
	for _, n := range f {
		if n.OwnerID == ownerID && (limit <= 0 || len(out) < limit) {
			out = append(out, n)
		}
	}
	return out
}

func TestNotifications(t *testing.T) {
	src := fakeNotifications{
		{OwnerID: "alice", TaskID: "t1", Message: "Task deleted"},
		{OwnerID: "bob", TaskID: "t2", Message: "Task 'x' created"},
	}
	s := newTestServer(t)
	s.app = newApp(NewHandlers(s.tasks, s.auth, src), s.auth, nil, Config{}, nil)

	resp, body := s.do(t, "GET", "/api/v1/notifications", "token-alice", "")
	if resp.StatusCode != http.StatusOK || body["total"] != float64(1) {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}

	resp, _ = s.do(t, "GET", "/api/v1/notifications?limit=-1", "token-alice", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", resp.StatusCode)
	}
}

func TestLabelList_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`["a"," b ",""]`, []string{"a", "b"}},
		{`"a, b,,c"`, []string{"a", "b", "c"}},
		{`""`, []string{}},
		{`[]`, []string{}},
	}
	for _, tt := range tests {
		var l LabelList
		if err := json.Unmarshal([]byte(tt.in), &l); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
		}
		if len(l) != len(tt.want) {
			t.Fatalf("Unmarshal(%s) = %v, want %v", tt.in, l, tt.want)
		}
		for i := range l {
			if l[i] != tt.want[i] {
				t.Errorf("Unmarshal(%s)[%d] = %q, want %q", tt.in, i, l[i], tt.want[i])
			}
		}
	}

	var l LabelList
	if err := json.Unmarshal([]byte(`{"x":1}`), &l); err == nil {
		t.Error("Unmarshal(object) error = nil, want error")
	}
}

func TestTaskRequest_Payload(t *testing.T) {
	var absent TaskRequest
	if absent.payload().Labels != nil {
		t.Error("absent labels should stay nil")
	}

	var req TaskRequest
	if err := json.Unmarshal([]byte(`{"labels":""}`), &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if p := req.payload(); p.Labels == nil || len(p.Labels) != 0 {
		t.Errorf("Labels = %#v, want empty non-nil", p.Labels)
	}

}
