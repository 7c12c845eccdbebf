package ws

import (
	"context"
	"log"
	"sync"
)

// Message is one broadcast frame. An empty TaskID reaches every client;
// otherwise only clients watching all tasks or that task receive it.
type Message struct {
	TaskID  string
	Payload []byte
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex
	logger     *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 1024),
		register:   make(chan *Client, 128),
		unregister: make(chan *Client, 128),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the client set until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.stopped) })
			h.mutex.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			if client == nil {
				continue
			}
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Printf("ws event=connected task=%q total_clients=%d", client.taskID, total)

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mutex.RLock()
			targets := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				if c.wants(msg.TaskID) {
					targets = append(targets, c)
				}
			}
			h.mutex.RUnlock()

			for _, client := range targets {
				select {
				case client.send <- msg.Payload:
				default:
					// A client that cannot keep up is dropped rather than
					// stalling every other subscriber.
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	if client == nil {
		return
	}
	h.mutex.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mutex.Unlock()
	if ok {
		h.logger.Printf("ws event=disconnected total_clients=%d", total)
	}
}

// Register and Unregister are no-ops once Run has stopped.
func (h *Hub) Register(client *Client) {
	if h == nil {
		return
	}
	select {
	case h.register <- client:
	case <-h.stopped:
	}
}

func (h *Hub) Unregister(client *Client) {
	if h == nil {
		return
	}
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// Broadcast never blocks; messages are dropped when the hub is backed up.
func (h *Hub) Broadcast(msg Message) {
	if h == nil {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Printf("ws event=broadcast_dropped task=%s reason=buffer_full", msg.TaskID)
	}
}

func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
