package api

import (
	"strconv"

	domain "github.com/example/task-manager/domain/task"
	"github.com/example/task-manager/modules/auth"
	"github.com/example/task-manager/modules/broadcast"
	"github.com/example/task-manager/modules/task"
	"github.com/gofiber/fiber/v2"
)

// NotificationSource lists an owner's recent activity.
type NotificationSource interface {
	Notifications(ownerID string, limit int) []broadcast.Notification
}

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	tasks         task.TaskPort
	auth          auth.AuthPort
	notifications NotificationSource
}

// NewHandlers creates a new Handlers instance. notifications may be nil.
func NewHandlers(tasks task.TaskPort, authPort auth.AuthPort, notifications NotificationSource) *Handlers {
	return &Handlers{
		tasks:         tasks,
		auth:          authPort,
		notifications: notifications,
	}
}

// Register handles POST /api/v1/auth/register.
func (h *Handlers) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "Email and password are required")
	}

	user, err := h.auth.Register(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return authError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

// Login handles POST /api/v1/auth/login.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "Email and password are required")
	}

	tokens, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return authError(c, err)
	}
	return c.JSON(tokens)
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *Handlers) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.RefreshToken == "" {
		return badRequest(c, "Refresh token is required")
	}

	tokens, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return authError(c, err)
	}
	return c.JSON(tokens)
}

// ListTasks handles GET /api/v1/tasks?status=.
func (h *Handlers) ListTasks(c *fiber.Ctx) error {
	filter := domain.ParseFilter(c.Query("status"))

	tasks, err := h.tasks.ListTasks(c.UserContext(), ownerID(c), filter)
	if err != nil {
		return taskError(c, err)
	}

	resp := ListTasksResponse{
		Tasks:  make([]TaskResponse, 0, len(tasks)),
		Total:  len(tasks),
		Filter: filter.String(),
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, toTaskResponse(t))
	}
	return c.JSON(resp)
}

// GetTask handles GET /api/v1/tasks/:id.
func (h *Handlers) GetTask(c *fiber.Ctx) error {
	t, err := h.tasks.GetTask(c.UserContext(), ownerID(c), c.Params("id"))
	if err != nil {
		return taskError(c, err)
	}
	return c.JSON(toTaskResponse(t))
}

// CreateTask handles POST /api/v1/tasks.
func (h *Handlers) CreateTask(c *fiber.Ctx) error {
	var req TaskRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	t, err := h.tasks.CreateTask(c.UserContext(), ownerID(c), req.payload())
	if err != nil {
		return taskError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toTaskResponse(t))
}

// UpdateTask handles PUT /api/v1/tasks/:id.
func (h *Handlers) UpdateTask(c *fiber.Ctx) error {
	var req TaskRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	t, err := h.tasks.UpdateTask(c.UserContext(), ownerID(c), c.Params("id"), req.payload())
	if err != nil {
		return taskError(c, err)
	}
	return c.JSON(toTaskResponse(t))
}

// SetStatus handles PATCH /api/v1/tasks/:id/status.
func (h *Handlers) SetStatus(c *fiber.Ctx) error {
	var req StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	t, err := h.tasks.SetStatus(c.UserContext(), ownerID(c), c.Params("id"), req.Status)
	if err != nil {
		return taskError(c, err)
	}
	return c.JSON(toTaskResponse(t))
}

// DeleteTask handles DELETE /api/v1/tasks/:id.
func (h *Handlers) DeleteTask(c *fiber.Ctx) error {
	if err := h.tasks.DeleteTask(c.UserContext(), ownerID(c), c.Params("id")); err != nil {
		return taskError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Notifications handles GET /api/v1/notifications?limit=.
func (h *Handlers) Notifications(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit < 0 {
		return badRequest(c, "limit must be a non-negative integer")
	}

	notifications := []broadcast.Notification{}
	if h.notifications != nil {
		notifications = h.notifications.Notifications(ownerID(c), limit)
	}
	return c.JSON(fiber.Map{
		"notifications": notifications,
		"total":         len(notifications),
	})
}
