package task

import (
	"context"
	"log"
	"time"
)

// Janitor evicts finished tasks older than the retention window. A zero
// retention keeps tasks for the life of the process.
type Janitor struct {
	registry  *Registry
	retention time.Duration
	interval  time.Duration
	logger    *log.Logger
	now       func() time.Time
}

func NewJanitor(registry *Registry, retention, interval time.Duration, logger *log.Logger) *Janitor {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		registry:  registry,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

func (j *Janitor) Enabled() bool {
	return j != nil && j.registry != nil && j.retention > 0
}

// Sweep runs one eviction pass and returns the number of tasks removed.
func (j *Janitor) Sweep() int {
	if !j.Enabled() {
		return 0
	}
	ids := j.registry.Evict(j.now().Add(-j.retention))
	if len(ids) > 0 {
		j.logger.Printf("janitor event=task_evicted count=%d retention=%s", len(ids), j.retention)
	}
	return len(ids)
}

// Run sweeps on every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if !j.Enabled() {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}
