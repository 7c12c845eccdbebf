package task

import (
	"time"

	"job-harvester/internal/domain/harvest"
)

type EventKind string

const (
	EventCreated  EventKind = "created"
	EventStatus   EventKind = "status"
	EventLog      EventKind = "log"
	EventResult   EventKind = "result"
	EventJobs     EventKind = "jobs"
	EventApproval EventKind = "approval"
)

// Event is a lightweight summary of a task mutation. Listeners that need
// the full task re-read it from the registry.
type Event struct {
	Kind             EventKind
	TaskID           string
	Status           harvest.TaskStatus
	Progress         int
	Total            int
	AwaitingApproval bool
	NextURL          string
	At               time.Time
}

type Listener func(Event)

func eventFor(kind EventKind, t *harvest.Task, at time.Time) Event {
	return Event{
		Kind:             kind,
		TaskID:           t.ID,
		Status:           t.Status,
		Progress:         t.Progress,
		Total:            t.Total,
		AwaitingApproval: t.AwaitingApproval,
		NextURL:          t.NextURL,
		At:               at,
	}
}
