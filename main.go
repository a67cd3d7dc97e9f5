package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/example/task-manager/middleware/ratelimit"
	apimod "github.com/example/task-manager/modules/api"
	authmod "github.com/example/task-manager/modules/auth"
	broadcastmod "github.com/example/task-manager/modules/broadcast"
	cachemod "github.com/example/task-manager/modules/cache"
	"github.com/example/task-manager/modules/store"
	taskmod "github.com/example/task-manager/modules/task"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	// Load configuration from environment
	httpAddr := getEnv("HTTP_ADDR", ":3000")
	storeConfig := store.Config{
		Driver:      getEnv("STORE_DRIVER", store.DriverSQLite),
		DBPath:      getEnv("DB_PATH", "./tasks.db"),
		DBDebug:     getEnvBool("DB_DEBUG", false),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		NATSURL:     getEnv("NATS_URL", "nats://localhost:4222"),
		Bucket:      getEnv("KV_BUCKET", "tasks"),
	}
	redisAddr := getEnv("REDIS_ADDR", "")
	cacheTTL := getEnvDuration("CACHE_TTL", 5*time.Minute)
	rateLimit := getEnvInt("RATE_LIMIT_PER_MINUTE", 120)
	corsOrigins := getEnv("CORS_ALLOWED_ORIGINS", "")
	shutdownTimeout := getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)

	log.Println("=== Task Manager ===")
	log.Printf("HTTP Addr: %s", httpAddr)
	log.Printf("Store: %s", storeConfig.Driver)
	if redisAddr != "" {
		log.Printf("Redis: %s (cache TTL: %s, rate limit: %d/min)", redisAddr, cacheTTL, rateLimit)
	} else {
		log.Println("Redis: disabled (no cache, no rate limiting)")
	}

	taskStore, err := store.New(storeConfig)
	if err != nil {
		log.Fatalf("Failed to configure task store: %v", err)
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
		mono.WithShutdownTimeout(shutdownTimeout),
	)
	if err != nil {
		log.Fatalf("Failed to create mono application: %v", err)
	}

	logger := app.Logger()

	// Create modules
	authModule := authmod.NewModule()
	taskModule := taskmod.NewModule(taskStore, logger)
	broadcastModule := broadcastmod.NewModule(logger)

	apiConfig := apimod.Config{
		Addr:        httpAddr,
		CORSOrigins: corsOrigins,
	}

	var cachePlugin *cachemod.PluginModule
	var rateLimiter *ratelimit.Middleware
	if redisAddr != "" {
		cachePlugin = cachemod.NewPluginModuleWithConfig(redisAddr, "tasks:", cacheTTL)
		if err := app.RegisterPlugin(cachePlugin, "cache"); err != nil {
			log.Fatalf("Failed to register cache plugin: %v", err)
		}

		rateLimiter = ratelimit.New(
			ratelimit.WithRedisAddr(redisAddr),
			ratelimit.WithRedisPassword(getEnv("REDIS_PASSWORD", "")),
			ratelimit.WithLimit(rateLimit, time.Minute),
			ratelimit.WithOwnerLocal(apimod.OwnerContextKey),
		)
		apiConfig.RateLimit = rateLimiter.Handler()
	}

	apiModule := apimod.NewModule(apiConfig)
	apiModule.SetBroadcast(broadcastModule)
	apiModule.AddHealthCheck(authModule)
	apiModule.AddHealthCheck(taskModule)
	apiModule.AddHealthCheck(broadcastModule)
	if cachePlugin != nil {
		apiModule.AddHealthCheck(cachePlugin)
	}

	// Register modules. The rate limiter goes first so its Redis client is
	// ready before the HTTP server accepts requests.
	if rateLimiter != nil {
		app.Register(rateLimiter)
	}
	app.Register(authModule)      // Accounts + JWT
	app.Register(taskModule)      // Task service + event emitter
	app.Register(broadcastModule) // WebSocket hub + event consumer
	app.Register(apiModule)       // HTTP/WebSocket API

	// Start modules (this handles Init and Start)
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start app: %v", err)
	}

	printStartupInfo(httpAddr)

	// Setup graceful shutdown using gelmium/graceful-shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	// Wait for shutdown signal and exit with appropriate code
	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(addr string) {
	log.Println("=== Application Started ===")
	log.Printf("API available at http://localhost%s", addr)
	log.Println("Endpoints:")
	log.Println("  GET    /health                      - Health check")
	log.Println("  POST   /api/v1/auth/register        - Create account")
	log.Println("  POST   /api/v1/auth/login           - Sign in")
	log.Println("  POST   /api/v1/auth/refresh         - Refresh tokens")
	log.Println("  GET    /api/v1/tasks?status=        - List tasks (all|todo|in-progress|completed)")
	log.Println("  GET    /api/v1/tasks/:id            - Get task")
	log.Println("  POST   /api/v1/tasks                - Create task")
	log.Println("  PUT    /api/v1/tasks/:id            - Update task")
	log.Println("  PATCH  /api/v1/tasks/:id/status     - Change status")
	log.Println("  DELETE /api/v1/tasks/:id            - Delete task")
	log.Println("  GET    /api/v1/notifications        - Recent notifications")
	log.Println("  WS     /ws?token=                   - Task change notices")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown")
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvBool returns environment variable as bool or default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: invalid bool value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns environment variable as duration or default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}
