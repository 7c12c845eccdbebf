package orchestrator

import (
	"fmt"
	"log"
	"sync"

	"job-harvester/internal/domain/harvest"
	"job-harvester/internal/recency"
	"job-harvester/internal/task"
)

type emission struct {
	jobs  []harvest.Job
	stats map[string]any
}

// emitter carries one source's streamed batches to the registry. Strategies
// may call Emit from many goroutines; a single drain goroutine applies them
// in arrival order, and a full buffer blocks the producer.
type emitter struct {
	registry *task.Registry
	taskID   string
	source   string
	filter   recency.Filter
	recorder Recorder
	logger   *log.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan emission
	done   chan struct{}
}

func newEmitter(o *Orchestrator, taskID, source string) *emitter {
	e := &emitter{
		registry: o.registry,
		taskID:   taskID,
		source:   source,
		filter:   o.filter,
		recorder: o.recorder,
		logger:   o.logger,
		ch:       make(chan emission, o.emitBuffer),
		done:     make(chan struct{}),
	}
	go e.drain()
	return e
}

// Emit is the scraper.EmitFunc handed to strategies. Batches arriving after
// Close are dropped.
func (e *emitter) Emit(jobs []harvest.Job, stats map[string]any) {
	if len(jobs) == 0 && stats == nil {
		return
	}
	batch := emission{jobs: make([]harvest.Job, len(jobs)), stats: stats}
	copy(batch.jobs, jobs)

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	e.ch <- batch
}

// Close stops intake and waits until every accepted batch is applied.
func (e *emitter) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
	e.mu.Unlock()
	<-e.done
}

func (e *emitter) drain() {
	defer close(e.done)
	for b := range e.ch {
		recent := e.filter.Apply(b.jobs)
		if len(recent) == 0 && b.stats == nil {
			continue
		}
		st, err := e.registry.StreamJobs(e.taskID, e.source, recent, b.stats)
		if err != nil {
			e.logger.Printf("orchestrator task=%s source=%s stream_err=%v", e.taskID, e.source, err)
			continue
		}
		e.recorder.JobsStreamed(st.Added)
		if len(recent) > 0 {
			_ = e.registry.AppendLog(e.taskID, fmt.Sprintf("Streamed %d new jobs from %s", len(recent), e.source))
		}
	}
}
