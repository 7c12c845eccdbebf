package task

import (
	"context"
	"sync"
	"time"

	"job-harvester/internal/domain/harvest"
)

const DefaultPollInterval = 500 * time.Millisecond

// ControlStore is the part of the registry a Gate needs.
type ControlStore interface {
	SetApproval(id string, awaiting bool, nextURL string) error
	Controls(id string) (harvest.Controls, bool)
}

type Decision int

const (
	// Approved means a single approveNext token was consumed.
	Approved Decision = iota + 1
	// ApprovedAll means the sticky approve-all flag is set.
	ApprovedAll
	// Skip means the skip-next flag was observed; the caller records the
	// skipped result and clears the flag.
	Skip
)

func (d Decision) String() string {
	switch d {
	case Approved:
		return "approved"
	case ApprovedAll:
		return "approved_all"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// Gate paces one task's worker. wake holds at most one token so repeated
// approveNext calls never bank more than a single source.
type Gate struct {
	taskID string
	store  ControlStore
	poll   time.Duration

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func NewGate(taskID string, store ControlStore, poll time.Duration) *Gate {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Gate{
		taskID: taskID,
		store:  store,
		poll:   poll,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Signal releases one pending or future Await. It never blocks.
func (g *Gate) Signal() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// Close releases every blocked Await with ErrGateClosed. Safe to call twice.
func (g *Gate) Close() {
	g.once.Do(func() { close(g.done) })
}

func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Await marks the task as awaiting approval for source and blocks until a
// token arrives, approve-all or skip-next is observed, the gate closes or
// ctx ends. Flags win over a token when both are present.
func (g *Gate) Await(ctx context.Context, source string) (Decision, error) {
	select {
	case <-g.done:
		return 0, ErrGateClosed
	default:
	}

	// Tokens sent before this source was announced belong to no one.
	select {
	case <-g.wake:
	default:
	}

	if err := g.store.SetApproval(g.taskID, true, source); err != nil {
		return 0, err
	}

	if d, ok, err := g.check(); err != nil || ok {
		return d, err
	}

	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	for {
		select {
		case <-g.wake:
			if d, ok, err := g.check(); err != nil || ok {
				return d, err
			}
			return Approved, nil
		case <-ticker.C:
			if d, ok, err := g.check(); err != nil || ok {
				return d, err
			}
		case <-g.done:
			return 0, ErrGateClosed
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (g *Gate) check() (Decision, bool, error) {
	c, ok := g.store.Controls(g.taskID)
	if !ok {
		return 0, false, ErrNotFound
	}
	if c.ApproveAll {
		return ApprovedAll, true, nil
	}
	if c.SkipNext {
		return Skip, true, nil
	}
	return 0, false, nil
}
