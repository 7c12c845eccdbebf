// Package orchestrator drives harvest tasks: one worker per task walks its
// sources in order, pausing at the approval gate before each one.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"job-harvester/internal/browser"
	"job-harvester/internal/domain/harvest"
	"job-harvester/internal/recency"
	"job-harvester/internal/scraper"
	"job-harvester/internal/task"
)

var (
	ErrNoSources    = errors.New("no sources to scrape")
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

const defaultEmitBuffer = 64

// StrategySelector resolves the strategy and platform label for a source.
type StrategySelector interface {
	Select(url string) scraper.Strategy
	Platform(url string) string
	Plan(urls []string) []scraper.PlanEntry
}

type Option func(*Orchestrator)

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.poll = d }
}

func WithEmitBuffer(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.emitBuffer = n
		}
	}
}

func WithRecency(f recency.Filter) Option {
	return func(o *Orchestrator) { o.filter = f }
}

type Orchestrator struct {
	registry *task.Registry
	selector StrategySelector
	launcher browser.Launcher
	recorder Recorder
	logger   *log.Logger

	poll       time.Duration
	emitBuffer int
	filter     recency.Filter

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	closing bool
	gates   map[string]*task.Gate
	done    map[string]chan struct{}
}

func New(registry *task.Registry, selector StrategySelector, launcher browser.Launcher, logger *log.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		registry:   registry,
		selector:   selector,
		launcher:   launcher,
		recorder:   nopRecorder{},
		logger:     logger,
		poll:       task.DefaultPollInterval,
		emitBuffer: defaultEmitBuffer,
		filter:     recency.NewFilter(recency.DefaultWindow, false),
		baseCtx:    ctx,
		cancel:     cancel,
		gates:      make(map[string]*task.Gate),
		done:       make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartTask registers a task for sources and dispatches its worker. Blank
// and repeated sources are dropped, keeping first-seen order.
func (o *Orchestrator) StartTask(sources []string) (string, error) {
	urls := normalizeSources(sources)
	if len(urls) == 0 {
		return "", ErrNoSources
	}

	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return "", ErrShuttingDown
	}
	t := o.registry.Create(len(urls))
	gate := task.NewGate(t.ID, o.registry, o.poll)
	o.gates[t.ID] = gate
	o.done[t.ID] = make(chan struct{})
	o.wg.Add(1)
	o.mu.Unlock()

	if err := o.registry.SetStatus(t.ID, harvest.TaskRunning); err != nil {
		o.forget(t.ID)
		o.wg.Done()
		return "", err
	}
	o.recorder.TaskStarted()
	o.logger.Printf("orchestrator task=%s event=started sources=%d", t.ID, len(urls))

	go o.run(t.ID, urls, gate)
	return t.ID, nil
}

func (o *Orchestrator) GetTask(id string) (harvest.Task, bool) {
	return o.registry.Get(id)
}

func (o *Orchestrator) Plan(urls []string) []scraper.PlanEntry {
	return o.selector.Plan(urls)
}

// ApproveNext releases the worker for exactly one source.
func (o *Orchestrator) ApproveNext(id string) error {
	if err := o.checkControllable(id); err != nil {
		return err
	}
	if err := o.registry.SetApproval(id, false, ""); err != nil {
		return err
	}
	if g := o.gate(id); g != nil {
		g.Signal()
	}
	return nil
}

// ApproveAll stops gating for the rest of the task and releases the
// current wait, if any.
func (o *Orchestrator) ApproveAll(id string) error {
	if err := o.checkControllable(id); err != nil {
		return err
	}
	if err := o.registry.SetApproveAll(id, true); err != nil {
		return err
	}
	if g := o.gate(id); g != nil {
		g.Signal()
	}
	return nil
}

// SkipNext makes the worker drop the source it is (or will next be)
// waiting on.
func (o *Orchestrator) SkipNext(id string) error {
	if err := o.checkControllable(id); err != nil {
		return err
	}
	return o.registry.SetSkipNext(id, true)
}

// Wait blocks until the task is terminal or ctx ends, then returns its
// final snapshot.
func (o *Orchestrator) Wait(ctx context.Context, id string) (harvest.Task, error) {
	o.mu.Lock()
	ch := o.done[id]
	o.mu.Unlock()

	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return harvest.Task{}, ctx.Err()
		}
	}
	t, ok := o.registry.Get(id)
	if !ok {
		return harvest.Task{}, task.ErrNotFound
	}
	return t, nil
}

// Shutdown stops accepting tasks, disposes every gate and waits for the
// workers. Workers released this way mark their tasks failed.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closing = true
	gates := make([]*task.Gate, 0, len(o.gates))
	for _, g := range o.gates {
		gates = append(gates, g)
	}
	o.mu.Unlock()

	o.cancel()
	for _, g := range gates {
		g.Close()
	}

	finished := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) checkControllable(id string) error {
	c, ok := o.registry.Controls(id)
	if !ok {
		return task.ErrNotFound
	}
	if c.Status.Terminal() {
		return task.ErrTerminal
	}
	return nil
}

// forget drops the task's gate and closes its done channel.
func (o *Orchestrator) forget(id string) {
	o.mu.Lock()
	g := o.gates[id]
	ch := o.done[id]
	delete(o.gates, id)
	delete(o.done, id)
	o.mu.Unlock()

	if g != nil {
		g.Close()
	}
	if ch != nil {
		close(ch)
	}
}

func (o *Orchestrator) gate(id string) *task.Gate {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gates[id]
}

func normalizeSources(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (o *Orchestrator) logTask(id, msg string) {
	if err := o.registry.AppendLog(id, msg); err != nil {
		o.logger.Printf("orchestrator task=%s append_log_err=%v", id, err)
	}
}

func (o *Orchestrator) logTaskf(id, format string, args ...any) {
	o.logTask(id, fmt.Sprintf(format, args...))
}
