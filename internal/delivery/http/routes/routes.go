package routes

import (
	"net/http"

	"job-harvester/internal/delivery/http/handler"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
)

// Deps are the handlers and hooks the registry mounts. Nil members are
// skipped.
type Deps struct {
	Health    *handler.HealthHandler
	Scrape    *handler.ScrapeHandler
	WS        WSRoutes
	Metrics   http.Handler
	RateLimit fiber.Handler
}

type WSRoutes interface {
	RegisterRoutes(r fiber.Router)
}

type Registry struct {
	deps Deps
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps}
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil {
		return
	}

	r.registerHealth(app)
	r.registerMetrics(app)
	r.registerWS(app)
	r.registerAPI(app)
}

func (r *Registry) registerHealth(app *fiber.App) {
	if r.deps.Health != nil {
		r.deps.Health.RegisterRoutes(app)
	}
}

func (r *Registry) registerMetrics(app *fiber.App) {
	if r.deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(r.deps.Metrics))
	}
}

func (r *Registry) registerWS(app *fiber.App) {
	if r.deps.WS != nil {
		r.deps.WS.RegisterRoutes(app)
	}
}

func (r *Registry) registerAPI(app *fiber.App) {
	if r.deps.Scrape == nil {
		return
	}
	r.deps.Scrape.RegisterRoutes(app.Group("/api/scrape"), r.deps.RateLimit)
}
