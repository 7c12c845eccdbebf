package ws

import (
	"encoding/json"
	"time"

	"job-harvester/internal/task"
)

type TaskUpdatedEvent struct {
	Type             string `json:"type"`
	Change           string `json:"change"`
	TaskID           string `json:"task_id"`
	Status           string `json:"status"`
	Progress         int    `json:"progress"`
	Total            int    `json:"total"`
	AwaitingApproval bool   `json:"awaiting_approval"`
	NextURL          string `json:"next_url"`
	Timestamp        string `json:"timestamp"`
}

// Publisher turns registry events into hub broadcasts. Its Publish method is
// a task.Listener.
type Publisher struct {
	hub *Hub
}

func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

func (p *Publisher) Publish(ev task.Event) {
	if p == nil || p.hub == nil {
		return
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	b, err := json.Marshal(TaskUpdatedEvent{
		Type:             "task_updated",
		Change:           string(ev.Kind),
		TaskID:           ev.TaskID,
		Status:           string(ev.Status),
		Progress:         ev.Progress,
		Total:            ev.Total,
		AwaitingApproval: ev.AwaitingApproval,
		NextURL:          ev.NextURL,
		Timestamp:        at.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	p.hub.Broadcast(Message{TaskID: ev.TaskID, Payload: b})
}
