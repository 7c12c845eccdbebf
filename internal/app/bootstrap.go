package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"job-harvester/internal/config"
	"job-harvester/internal/delivery/http/handler"
	"job-harvester/internal/delivery/http/middleware"
	"job-harvester/internal/delivery/http/routes"
	"job-harvester/internal/infrastructure/cache"
	"job-harvester/internal/ws"

	"github.com/gofiber/fiber/v3"
)

const ShutdownTimeout = 10 * time.Second

type App struct {
	Fiber     *fiber.App
	Container *Container
}

func New(c *Container) *App {
	f := fiber.New(fiber.Config{AppName: c.Config.App.AppName})

	registerGlobalMiddleware(f, c.Logger)
	registerRoutes(f, c)

	return &App{Fiber: f, Container: c}
}

// Bootstrap builds and starts the container and the fiber app. cleanup stops
// running tasks and background loops.
func Bootstrap(cfg config.Config, logger *log.Logger, opts ...Option) (*App, func() error, error) {
	c, err := NewContainer(cfg, logger, opts...)
	if err != nil {
		return nil, nil, err
	}
	c.Start(context.Background())

	cleanup := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return c.Close(ctx)
	}
	return New(c), cleanup, nil
}

func registerGlobalMiddleware(app *fiber.App, logger *log.Logger) {
	if app == nil {
		return
	}

	app.Use(middleware.NewAccessLogMiddleware(logger, "/health", "/metrics").Middleware())
	app.Use(middleware.NewErrorMiddleware(logger).Middleware())
}

func registerRoutes(app *fiber.App, c *Container) {
	if app == nil {
		return
	}

	deps := routes.Deps{
		Scrape: handler.NewScrapeHandler(c.Orchestrator, c.Sources),
		WS:     ws.NewHandler(c.Hub, c.Logger),
	}

	var pinger handler.Pinger
	if c.Redis != nil {
		pinger = c.Redis
	}
	deps.Health = handler.NewHealthHandler(c.Config.App.AppName, pinger, c.Hub.ClientCount)

	if c.Metrics != nil {
		deps.Metrics = c.Metrics.Handler()
	}
	if c.Config.RateLimit.PerMinute > 0 {
		limiter := cache.NewRateLimiter(c.Redis, "task_create", c.Config.RateLimit.PerMinute, time.Minute)
		deps.RateLimit = middleware.NewRateLimitMiddleware(limiter, c.Logger).Middleware()
	}

	routes.NewRegistry(deps).Register(app)
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}

// Serve listens on addr until ctx is done, then shuts the server down and
// runs cleanup.
func Serve(ctx context.Context, a *App, addr string, cleanup func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Fiber.Listen(addr)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := a.Fiber.ShutdownWithContext(sctx); err != nil {
			a.Container.Logger.Printf("server event=shutdown_error err=%v", err)
		}
	}

	if cleanup != nil {
		if err := cleanup(); err != nil {
			a.Container.Logger.Printf("server event=cleanup_error err=%v", err)
		}
	}
	return serveErr
}
