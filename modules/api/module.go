package api

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/task-manager/modules/auth"
	"github.com/example/task-manager/modules/broadcast"
	"github.com/example/task-manager/modules/task"
	"github.com/go-monolith/mono"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// HealthChecker is a module whose health is reported on /health.
type HealthChecker interface {
	Name() string
	Health(ctx context.Context) mono.HealthStatus
}

// Config holds the HTTP server settings.
type Config struct {
	Addr        string
	CORSOrigins string
	// RateLimit, when set, runs on every /api/v1 route.
	RateLimit fiber.Handler
}

// APIModule is the HTTP and websocket surface.
type APIModule struct {
	app         *fiber.App
	config      Config
	taskAdapter task.TaskPort
	authAdapter auth.AuthPort
	broadcast   *broadcast.BroadcastModule
	checks      []HealthChecker
}

var (
	_ mono.Module                = (*APIModule)(nil)
	_ mono.DependentModule       = (*APIModule)(nil)
	_ mono.HealthCheckableModule = (*APIModule)(nil)
)

// NewModule creates a new APIModule.
func NewModule(config Config) *APIModule {
	if config.Addr == "" {
		config.Addr = ":3000"
	}
	return &APIModule{config: config}
}

func (m *APIModule) Name() string {
	return "api"
}

func (m *APIModule) Dependencies() []string {
	return []string{"auth", "task"}
}

func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "auth":
		m.authAdapter = auth.NewAuthAdapter(container)
	case "task":
		m.taskAdapter = task.NewTaskAdapter(container)
	}
}

// SetBroadcast sets the broadcast module (called from main.go); its hub is
// not exposed via ServiceContainer.
func (m *APIModule) SetBroadcast(b *broadcast.BroadcastModule) {
	m.broadcast = b
}

// AddHealthCheck reports c on /health.
func (m *APIModule) AddHealthCheck(c HealthChecker) {
	m.checks = append(m.checks, c)
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.authAdapter == nil {
		return fmt.Errorf("auth dependency not set")
	}
	if m.taskAdapter == nil {
		return fmt.Errorf("task dependency not set")
	}

	var notifications NotificationSource
	var hub *broadcast.Hub
	if m.broadcast != nil {
		notifications = m.broadcast
		hub = m.broadcast.GetHub()
	}

	m.app = newApp(
		NewHandlers(m.taskAdapter, m.authAdapter, notifications),
		m.authAdapter,
		hub,
		m.config,
		m.checks,
	)

	go func() {
		if err := m.app.Listen(m.config.Addr); err != nil {
			log.Printf("[api] HTTP server error: %v", err)
		}
	}()

	log.Printf("[api] HTTP server started on %s", m.config.Addr)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(_ context.Context) error {
	if m.app == nil {
		return nil
	}
	log.Println("[api] Shutting down HTTP server...")
	return m.app.Shutdown()
}

func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"addr": m.config.Addr,
		},
	}
}

// newApp builds the Fiber application. hub may be nil, in which case /ws is
// not served.
func newApp(h *Handlers, authPort auth.AuthPort, hub *broadcast.Hub, config Config, checks []HealthChecker) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		Next: func(c *fiber.Ctx) bool {
			return websocket.IsWebSocketUpgrade(c)
		},
	}))
	corsConfig := cors.ConfigDefault
	if config.CORSOrigins != "" {
		corsConfig.AllowOrigins = config.CORSOrigins
	}
	app.Use(cors.New(corsConfig))

	app.Get("/health", healthHandler(checks))

	if hub != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		}, WebSocketAuthMiddleware(authPort))
		app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
			owner, _ := conn.Locals(OwnerContextKey).(string)
			hub.Serve(conn, owner)
		}))
	}

	v1 := app.Group("/api/v1")

	// Public routes are limited per IP, protected ones per owner.
	authRoutes := v1.Group("/auth")
	if config.RateLimit != nil {
		authRoutes.Use(config.RateLimit)
	}
	authRoutes.Post("/register", h.Register)
	authRoutes.Post("/login", h.Login)
	authRoutes.Post("/refresh", h.Refresh)

	protected := v1.Group("", AuthMiddleware(authPort))
	if config.RateLimit != nil {
		protected.Use(config.RateLimit)
	}

	tasks := protected.Group("/tasks")
	tasks.Get("/", h.ListTasks)
	tasks.Post("/", h.CreateTask)
	tasks.Get("/:id", h.GetTask)
	tasks.Put("/:id", h.UpdateTask)
	tasks.Patch("/:id/status", h.SetStatus)
	tasks.Delete("/:id", h.DeleteTask)

	protected.Get("/notifications", h.Notifications)

	return app
}

// healthHandler reports 503 when any checked module is unhealthy.
func healthHandler(checks []HealthChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		resp := HealthResponse{
			Status:  "healthy",
			Modules: make(map[string]any, len(checks)),
		}
		for _, check := range checks {
			status := check.Health(c.UserContext())
			resp.Modules[check.Name()] = status
			if !status.Healthy {
				resp.Status = "unhealthy"
			}
		}

		code := fiber.StatusOK
		if resp.Status != "healthy" {
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(resp)
	}
}
