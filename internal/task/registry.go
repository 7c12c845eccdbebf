package task

import (
	"sync"
	"time"

	"job-harvester/internal/domain/harvest"

	"github.com/google/uuid"
)

// Registry owns every Task. Callers only ever see clones; all mutation goes
// through the methods below, each of which holds the lock for a single
// read-modify-write and never across I/O. Listeners run after the lock is
// released.
type Registry struct {
	mu       sync.RWMutex
	tasks    map[string]*harvest.Task
	listener Listener
	now      func() time.Time
	newID    func() string
}

type Option func(*Registry)

func WithListener(l Listener) Option {
	return func(r *Registry) { r.listener = l }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tasks: make(map[string]*harvest.Task),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Create(total int) harvest.Task {
	if total < 0 {
		total = 0
	}
	t := &harvest.Task{
		ID:        r.newID(),
		Status:    harvest.TaskPending,
		Total:     total,
		Logs:      make([]string, 0),
		Results:   make([]harvest.Result, 0),
		CreatedAt: r.now().UTC(),
	}

	r.mu.Lock()
	r.tasks[t.ID] = t
	out := t.Clone()
	ev := eventFor(EventCreated, t, r.now())
	r.mu.Unlock()

	r.emit(ev)
	return out
}

// Get returns a deep copy of the task; ok is false for unknown ids.
func (r *Registry) Get(id string) (harvest.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return harvest.Task{}, false
	}
	return t.Clone(), true
}

func (r *Registry) Controls(id string) (harvest.Controls, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return harvest.Controls{}, false
	}
	return harvest.Controls{
		Status:           t.Status,
		AwaitingApproval: t.AwaitingApproval,
		ApproveAll:       t.ApproveAll,
		SkipNext:         t.SkipNext,
	}, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// SetStatus only moves forward: pending -> running -> completed|failed.
func (r *Registry) SetStatus(id string, status harvest.TaskStatus) error {
	return r.mutate(id, EventStatus, true, func(t *harvest.Task) error {
		if !validTransition(t.Status, status) {
			return ErrInvalidTransition
		}
		t.Status = status
		if status.Terminal() {
			now := r.now().UTC()
			t.FinishedAt = &now
			t.AwaitingApproval = false
			t.NextURL = ""
		}
		return nil
	})
}

func (r *Registry) AppendLog(id string, message string) error {
	return r.mutate(id, EventLog, false, func(t *harvest.Task) error {
		t.Logs = append(t.Logs, message)
		return nil
	})
}

// SetApproval keeps AwaitingApproval and NextURL in lockstep: clearing the
// flag always clears the url.
func (r *Registry) SetApproval(id string, awaiting bool, nextURL string) error {
	return r.mutate(id, EventApproval, false, func(t *harvest.Task) error {
		if !awaiting {
			nextURL = ""
		}
		t.AwaitingApproval = awaiting
		t.NextURL = nextURL
		return nil
	})
}

func (r *Registry) SetApproveAll(id string, value bool) error {
	return r.mutate(id, EventApproval, false, func(t *harvest.Task) error {
		t.ApproveAll = value
		return nil
	})
}

func (r *Registry) SetSkipNext(id string, value bool) error {
	return r.mutate(id, EventApproval, false, func(t *harvest.Task) error {
		t.SkipNext = value
		return nil
	})
}

// Evict drops terminal tasks that finished before cutoff and returns their ids.
func (r *Registry) Evict(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for id, t := range r.tasks {
		if !t.Status.Terminal() || t.FinishedAt == nil {
			continue
		}
		if t.FinishedAt.Before(cutoff) {
			delete(r.tasks, id)
			out = append(out, id)
		}
	}
	return out
}

// mutate runs fn under the write lock. Terminal tasks are read-only unless
// allowTerminal is set, in which case fn decides.
func (r *Registry) mutate(id string, kind EventKind, allowTerminal bool, fn func(t *harvest.Task) error) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if !allowTerminal && t.Status.Terminal() {
		r.mu.Unlock()
		return ErrTerminal
	}
	if err := fn(t); err != nil {
		r.mu.Unlock()
		return err
	}
	ev := eventFor(kind, t, r.now())
	r.mu.Unlock()

	r.emit(ev)
	return nil
}

func (r *Registry) emit(ev Event) {
	if r.listener == nil {
		return
	}
	r.listener(ev)
}

func validTransition(from, to harvest.TaskStatus) bool {
	switch from {
	case harvest.TaskPending:
		return to == harvest.TaskRunning
	case harvest.TaskRunning:
		return to == harvest.TaskCompleted || to == harvest.TaskFailed
	default:
		return false
	}
}
