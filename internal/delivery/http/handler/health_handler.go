package handler

import (
	"context"
	"time"

	"job-harvester/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	appName string
	redis   Pinger
	clients func() int
}

type healthResponse struct {
	App       string `json:"app"`
	Status    string `json:"status"`
	Redis     string `json:"redis"`
	WSClients int    `json:"ws_clients"`
}

// NewHealthHandler reports liveness. Redis being down is reported but does
// not fail the check because every redis consumer degrades without it.
func NewHealthHandler(appName string, redis Pinger, clients func() int) *HealthHandler {
	return &HealthHandler{appName: appName, redis: redis, clients: clients}
}

func (h *HealthHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/health", h.Health)
}

func (h *HealthHandler) Health(c fiber.Ctx) error {
	res := healthResponse{App: h.appName, Status: "ok", Redis: "disabled"}
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.Context(), time.Second)
		defer cancel()
		if err := h.redis.Ping(ctx); err != nil {
			res.Redis = "bypass"
		} else {
			res.Redis = "up"
		}
	}
	if h.clients != nil {
		res.WSClients = h.clients()
	}
	return response.OK(c, response.MessageOK, res)
}
