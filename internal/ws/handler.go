package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gorilla/websocket"
)

type Handler struct {
	hub    *Hub
	logger *log.Logger
}

func NewHandler(hub *Hub, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{hub: hub, logger: logger}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleTasksWS upgrades to a websocket streaming task_updated events. The
// optional ?task_id= query narrows the stream to one task.
func (h *Handler) HandleTasksWS(c fiber.Ctx) error {
	if h == nil || h.hub == nil {
		return fiber.ErrServiceUnavailable
	}

	return adaptor.HTTPHandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Printf("ws event=upgrade_error err=%v", err)
			return
		}

		client := NewClient(h.hub, conn, strings.TrimSpace(r.URL.Query().Get("task_id")))
		h.hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	})(c)
}

func (h *Handler) RegisterRoutes(r fiber.Router) {
	r.Get("/ws/tasks", h.HandleTasksWS)
}
