package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"job-harvester/internal/browser"
	"job-harvester/internal/domain/harvest"
	"job-harvester/internal/scraper"
	"job-harvester/internal/task"
)

// run is the task's worker. Only a browser launch failure, a closed gate or
// a cancelled context fails the task; source errors become result data.
func (o *Orchestrator) run(id string, sources []string, gate *task.Gate) {
	start := time.Now()
	status := harvest.TaskCompleted
	defer func() {
		if r := recover(); r != nil {
			o.logTaskf(id, "Task failed: %v", r)
			o.logger.Printf("orchestrator task=%s event=panic err=%v", id, r)
			status = harvest.TaskFailed
		}
		o.finish(id, status, start)
	}()

	ctx := o.baseCtx
	sess, err := o.launcher.Launch(ctx)
	if err != nil {
		o.logTaskf(id, "Task failed: %v", err)
		o.logger.Printf("orchestrator task=%s event=launch_failed err=%v", id, err)
		status = harvest.TaskFailed
		return
	}
	defer func() {
		if err := sess.Close(); err != nil {
			o.logger.Printf("orchestrator task=%s event=browser_close err=%v", id, err)
		}
	}()

	n := len(sources)
	for i, src := range sources {
		o.logTaskf(id, "Ready to scrape site %d/%d: %s. Awaiting approval.", i+1, n, src)

		waitStart := time.Now()
		decision, err := gate.Await(ctx, src)
		o.recorder.ApprovalWaited(time.Since(waitStart))
		if err != nil {
			o.logTaskf(id, "Task failed: %v", err)
			o.logger.Printf("orchestrator task=%s source=%s event=gate_released err=%v", id, src, err)
			status = harvest.TaskFailed
			return
		}

		if decision == task.Skip {
			o.skipSource(id, i, n, src)
			continue
		}

		if err := o.registry.SetApproval(id, false, ""); err != nil {
			o.logger.Printf("orchestrator task=%s clear_approval_err=%v", id, err)
		}
		o.logTaskf(id, "Approval received. Processing site %d/%d: %s", i+1, n, src)
		o.processSource(ctx, id, sess, src)
	}
}

func (o *Orchestrator) skipSource(id string, i, n int, src string) {
	platform := o.selector.Platform(src)
	o.logTaskf(id, "Skipped site %d/%d: %s", i+1, n, src)

	err := o.registry.MergeResult(id, harvest.Result{
		URL:      src,
		Status:   harvest.ResultSkipped,
		Platform: platform,
		Jobs:     []harvest.Job{},
	})
	if err != nil {
		o.logger.Printf("orchestrator task=%s source=%s skip_result_err=%v", id, src, err)
	}
	_ = o.registry.SetSkipNext(id, false)
	_ = o.registry.SetApproval(id, false, "")

	name := ""
	if st := o.selector.Select(src); st != nil {
		name = st.Name()
	}
	o.recorder.SourceFinished(name, platform, harvest.ResultSkipped, 0)
}

func (o *Orchestrator) processSource(ctx context.Context, id string, sess browser.Session, src string) {
	st := o.selector.Select(src)
	platform := o.selector.Platform(src)

	o.logTaskf(id, "Using %s for %s", st.Name(), src)
	if err := o.registry.InitResultPlaceholder(id, src); err != nil {
		o.logger.Printf("orchestrator task=%s source=%s placeholder_err=%v", id, src, err)
	}

	em := newEmitter(o, id, src)
	began := time.Now()
	jobs, err := extract(ctx, st, sess, src, em.Emit)
	em.Close()
	elapsed := time.Since(began)

	if err != nil && !errors.Is(err, scraper.ErrNoJobs) {
		o.logTaskf(id, "Error scraping %s: %v", src, err)
		o.logger.Printf("orchestrator task=%s source=%s status=error err=%v", id, src, err)
		mergeErr := o.registry.MergeResult(id, harvest.Result{
			URL:      src,
			Status:   harvest.ResultError,
			Platform: platform,
			Error:    err.Error(),
		})
		if mergeErr != nil {
			o.logger.Printf("orchestrator task=%s source=%s result_err=%v", id, src, mergeErr)
		}
		o.recorder.SourceFinished(st.Name(), platform, harvest.ResultError, elapsed)
		return
	}
	if err != nil {
		o.logTaskf(id, "No jobs listed at %s: %v", src, err)
	}

	recent := o.filter.Apply(jobs)
	if len(recent) > 0 {
		folded, err := o.registry.StreamJobs(id, src, recent, nil)
		if err != nil {
			o.logger.Printf("orchestrator task=%s source=%s fold_err=%v", id, src, err)
		}
		o.recorder.JobsStreamed(folded.Added)
	}
	err = o.registry.MergeResult(id, harvest.Result{
		URL:           src,
		Status:        harvest.ResultSuccess,
		Platform:      platform,
		TotalFound:    len(jobs),
		FilteredCount: len(recent),
	})
	if err != nil {
		o.logger.Printf("orchestrator task=%s source=%s result_err=%v", id, src, err)
	}
	o.logTaskf(id, "Successfully scraped %d jobs from %s, filtered to %d recent jobs", len(jobs), src, len(recent))
	o.logger.Printf("orchestrator task=%s source=%s status=success found=%d recent=%d elapsed=%s", id, src, len(jobs), len(recent), elapsed)
	o.recorder.SourceFinished(st.Name(), platform, harvest.ResultSuccess, elapsed)
}

// extract runs the strategy, turning a panic into an ordinary error.
func extract(ctx context.Context, st scraper.Strategy, sess browser.Session, src string, emit scraper.EmitFunc) (jobs []harvest.Job, err error) {
	defer func() {
		if r := recover(); r != nil {
			jobs = nil
			err = fmt.Errorf("strategy %s panicked: %v", st.Name(), r)
		}
	}()
	return st.Extract(ctx, sess, src, emit)
}

func (o *Orchestrator) finish(id string, status harvest.TaskStatus, start time.Time) {
	if err := o.registry.SetStatus(id, status); err != nil {
		o.logger.Printf("orchestrator task=%s set_status_err=%v", id, err)
	}
	o.forget(id)
	elapsed := time.Since(start)
	o.recorder.TaskFinished(status, elapsed)
	o.logger.Printf("orchestrator task=%s event=finished status=%s elapsed=%s", id, status, elapsed)
	o.wg.Done()
}
