package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"job-harvester/internal/browser"
	"job-harvester/internal/domain/harvest"
	"job-harvester/internal/scraper"
	"job-harvester/internal/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeSession) Render(context.Context, string) (browser.Page, error) {
	return browser.Page{}, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeStrategy struct {
	name    string
	match   string
	extract func(ctx context.Context, url string, emit scraper.EmitFunc) ([]harvest.Job, error)
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) CanHandle(url string) bool {
	return f.match != "" && strings.Contains(url, f.match)
}

func (f *fakeStrategy) Extract(ctx context.Context, _ browser.Session, url string, emit scraper.EmitFunc) ([]harvest.Job, error) {
	if f.extract == nil {
		return nil, nil
	}
	return f.extract(ctx, url, emit)
}

type harness struct {
	registry *task.Registry
	orch     *Orchestrator
	session  *fakeSession
}

func newHarness(t *testing.T, launchErr error, strategies ...scraper.Strategy) *harness {
	t.Helper()
	sess := &fakeSession{}
	launcher := browser.LauncherFunc(func(context.Context) (browser.Session, error) {
		if launchErr != nil {
			return nil, launchErr
		}
		return sess, nil
	})
	fallback := &fakeStrategy{name: "Generic"}
	reg := task.NewRegistry()
	o := New(reg, scraper.NewSelector(fallback, strategies...), launcher,
		log.New(io.Discard, "", 0),
		WithPollInterval(5*time.Millisecond),
		WithEmitBuffer(4),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return &harness{registry: reg, orch: o, session: sess}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitAwaiting(t *testing.T, id, url string) {
	t.Helper()
	waitFor(t, "awaiting "+url, func() bool {
		tk, _ := h.orch.GetTask(id)
		return tk.AwaitingApproval && tk.NextURL == url
	})
}

func (h *harness) waitDone(t *testing.T, id string) harvest.Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	tk, err := h.orch.Wait(ctx, id)
	require.NoError(t, err)
	return tk
}

func TestStartTaskRejectsEmpty(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.StartTask(nil)
	assert.ErrorIs(t, err, ErrNoSources)
	_, err = h.orch.StartTask([]string{" ", ""})
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestApproveAllCompletesEvenWhenSourceFails(t *testing.T) {
	failing := &fakeStrategy{name: "Broken", match: "x", extract: func(context.Context, string, scraper.EmitFunc) ([]harvest.Job, error) {
		return nil, errors.New("selector drifted")
	}}
	h := newHarness(t, nil, failing)

	id, err := h.orch.StartTask([]string{"https://x", "https://y"})
	require.NoError(t, err)
	require.NoError(t, h.orch.ApproveAll(id))
	_ = h.orch.ApproveNext(id)
	_ = h.orch.ApproveNext(id)

	tk := h.waitDone(t, id)
	assert.Equal(t, harvest.TaskCompleted, tk.Status)
	assert.Equal(t, 2, tk.Total)
	require.Len(t, tk.Results, 2)
	assert.Equal(t, 2, tk.Progress)

	assert.Equal(t, "https://x", tk.Results[0].URL)
	assert.Equal(t, harvest.ResultError, tk.Results[0].Status)
	assert.Equal(t, "selector drifted", tk.Results[0].Error)
	assert.Equal(t, "Broken", tk.Results[0].Platform)
	assert.Equal(t, harvest.ResultSuccess, tk.Results[1].Status)
	assert.False(t, tk.AwaitingApproval)
	assert.Empty(t, tk.NextURL)
	assert.NotNil(t, tk.FinishedAt)
	assert.True(t, h.session.closed)
}

func TestApproveNextGatesEachSource(t *testing.T) {
	var calls sync.Map
	st := &fakeStrategy{name: "Board", match: "board", extract: func(_ context.Context, url string, _ scraper.EmitFunc) ([]harvest.Job, error) {
		calls.Store(url, true)
		return []harvest.Job{{Title: "Role", Link: url + "/1"}}, nil
	}}
	h := newHarness(t, nil, st)

	id, err := h.orch.StartTask([]string{"https://board/a", "https://board/b"})
	require.NoError(t, err)

	h.waitAwaiting(t, id, "https://board/a")
	_, ran := calls.Load("https://board/b")
	assert.False(t, ran)

	require.NoError(t, h.orch.ApproveNext(id))
	h.waitAwaiting(t, id, "https://board/b")

	tk, _ := h.orch.GetTask(id)
	require.Len(t, tk.Results, 1)
	assert.Equal(t, harvest.ResultSuccess, tk.Results[0].Status)
	assert.Equal(t, 1, tk.Results[0].TotalFound)
	assert.Equal(t, 1, tk.Results[0].FilteredCount)
	assert.Equal(t, harvest.TaskRunning, tk.Status)

	require.NoError(t, h.orch.ApproveNext(id))
	tk = h.waitDone(t, id)
	assert.Equal(t, harvest.TaskCompleted, tk.Status)
	assert.Len(t, tk.Results, 2)
	assert.Contains(t, tk.Logs, "Ready to scrape site 1/2: https://board/a. Awaiting approval.")
	assert.Contains(t, tk.Logs, "Approval received. Processing site 2/2: https://board/b")
}

func TestSkipConsumesExactlyOneSource(t *testing.T) {
	var mu sync.Mutex
	var extracted []string
	st := &fakeStrategy{name: "Board", match: "board", extract: func(_ context.Context, url string, _ scraper.EmitFunc) ([]harvest.Job, error) {
		mu.Lock()
		extracted = append(extracted, url)
		mu.Unlock()
		return nil, nil
	}}
	h := newHarness(t, nil, st)

	id, err := h.orch.StartTask([]string{"https://board/a", "https://board/b"})
	require.NoError(t, err)

	h.waitAwaiting(t, id, "https://board/a")
	require.NoError(t, h.orch.SkipNext(id))
	h.waitAwaiting(t, id, "https://board/b")

	tk, _ := h.orch.GetTask(id)
	require.Len(t, tk.Results, 1)
	assert.Equal(t, harvest.ResultSkipped, tk.Results[0].Status)
	assert.Equal(t, "Board", tk.Results[0].Platform)
	assert.False(t, tk.SkipNext)
	assert.Contains(t, tk.Logs, "Skipped site 1/2: https://board/a")

	require.NoError(t, h.orch.ApproveNext(id))
	tk = h.waitDone(t, id)
	assert.Equal(t, harvest.TaskCompleted, tk.Status)
	assert.Equal(t, harvest.ResultSuccess, tk.Results[1].Status)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"https://board/b"}, extracted)
}

func TestSkippedGenericSourceUsesDomainPlatform(t *testing.T) {
	h := newHarness(t, nil)
	id, err := h.orch.StartTask([]string{"https://careers.acme.io/open"})
	require.NoError(t, err)

	h.waitAwaiting(t, id, "https://careers.acme.io/open")
	require.NoError(t, h.orch.SkipNext(id))
	tk := h.waitDone(t, id)
	require.Len(t, tk.Results, 1)
	assert.Equal(t, "Acme", tk.Results[0].Platform)
}

func TestLaunchFailureFailsTask(t *testing.T) {
	h := newHarness(t, fmt.Errorf("%w: chrome not found", browser.ErrLaunch))

	id, err := h.orch.StartTask([]string{"https://x"})
	require.NoError(t, err)

	tk := h.waitDone(t, id)
	assert.Equal(t, harvest.TaskFailed, tk.Status)
	assert.Empty(t, tk.Results)
	require.NotEmpty(t, tk.Logs)
	assert.True(t, strings.HasPrefix(tk.Logs[len(tk.Logs)-1], "Task failed:"))

	assert.ErrorIs(t, h.orch.ApproveNext(id), task.ErrTerminal)
}

func TestStreamedBatchesMergeByLink(t *testing.T) {
	st := &fakeStrategy{name: "Board", match: "board", extract: func(_ context.Context, url string, emit scraper.EmitFunc) ([]harvest.Job, error) {
		emit([]harvest.Job{{Title: "A", Link: "l1"}, {Title: "B", Link: "l2"}}, map[string]any{"pages": 1})

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				emit([]harvest.Job{{Link: fmt.Sprintf("l%d", 1+i%2), Description: "detail"}}, nil)
			}(i)
		}
		wg.Wait()
		return []harvest.Job{
			{Title: "A", Link: "l1", Description: "detail"},
			{Title: "B", Link: "l2", Description: "detail"},
			{Title: "C", Link: "l3"},
		}, nil
	}}
	h := newHarness(t, nil, st)

	id, err := h.orch.StartTask([]string{"https://board/a"})
	require.NoError(t, err)
	require.NoError(t, h.orch.ApproveAll(id))

	tk := h.waitDone(t, id)
	require.Len(t, tk.Results, 1)
	res := tk.Results[0]
	require.Len(t, res.Jobs, 3)
	assert.Equal(t, "A", res.Jobs[0].Title)
	assert.Equal(t, "detail", res.Jobs[0].Description)
	assert.Equal(t, "B", res.Jobs[1].Title)
	assert.Equal(t, "C", res.Jobs[2].Title)
	assert.Equal(t, 3, res.TotalFound)
	assert.Equal(t, 3, res.FilteredCount)
	assert.Equal(t, map[string]any{"pages": 1}, res.Stats)
}

func TestRecencyFilterDropsOldJobs(t *testing.T) {
	old := time.Now().Add(-90 * 24 * time.Hour)
	st := &fakeStrategy{name: "Board", match: "board", extract: func(_ context.Context, _ string, emit scraper.EmitFunc) ([]harvest.Job, error) {
		jobs := []harvest.Job{{Title: "Old", Link: "o", PostedAt: &old}, {Title: "New", Link: "n", AgeText: "2 days ago"}}
		emit(jobs, nil)
		return jobs, nil
	}}
	h := newHarness(t, nil, st)

	id, err := h.orch.StartTask([]string{"https://board/a"})
	require.NoError(t, err)
	require.NoError(t, h.orch.ApproveAll(id))

	tk := h.waitDone(t, id)
	res := tk.Results[0]
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, "New", res.Jobs[0].Title)
	assert.Equal(t, 2, res.TotalFound)
	assert.Equal(t, 1, res.FilteredCount)
}

func TestStrategyPanicBecomesErrorResult(t *testing.T) {
	st := &fakeStrategy{name: "Board", match: "board", extract: func(context.Context, string, scraper.EmitFunc) ([]harvest.Job, error) {
		panic("nil map")
	}}
	h := newHarness(t, nil, st)

	id, err := h.orch.StartTask([]string{"https://board/a"})
	require.NoError(t, err)
	require.NoError(t, h.orch.ApproveAll(id))

	tk := h.waitDone(t, id)
	assert.Equal(t, harvest.TaskCompleted, tk.Status)
	assert.Equal(t, harvest.ResultError, tk.Results[0].Status)
	assert.Contains(t, tk.Results[0].Error, "nil map")
}

func TestNoJobsIsNotAnError(t *testing.T) {
	st := &fakeStrategy{name: "Board", match: "board", extract: func(context.Context, string, scraper.EmitFunc) ([]harvest.Job, error) {
		return nil, fmt.Errorf("%w: login wall", scraper.ErrNoJobs)
	}}
	h := newHarness(t, nil, st)

	id, err := h.orch.StartTask([]string{"https://board/a"})
	require.NoError(t, err)
	require.NoError(t, h.orch.ApproveAll(id))

	tk := h.waitDone(t, id)
	assert.Equal(t, harvest.ResultSuccess, tk.Results[0].Status)
	assert.Empty(t, tk.Results[0].Jobs)
}

func TestDuplicateSourcesAreDropped(t *testing.T) {
	h := newHarness(t, nil)
	id, err := h.orch.StartTask([]string{"https://a", "https://a", " https://b "})
	require.NoError(t, err)
	require.NoError(t, h.orch.ApproveAll(id))

	tk := h.waitDone(t, id)
	assert.Equal(t, 2, tk.Total)
	assert.Len(t, tk.Results, 2)
}

func TestShutdownReleasesBlockedWorker(t *testing.T) {
	h := newHarness(t, nil)
	id, err := h.orch.StartTask([]string{"https://a"})
	require.NoError(t, err)
	h.waitAwaiting(t, id, "https://a")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.orch.Shutdown(ctx))

	tk, ok := h.orch.GetTask(id)
	require.True(t, ok)
	assert.Equal(t, harvest.TaskFailed, tk.Status)
	assert.False(t, tk.AwaitingApproval)

	_, err = h.orch.StartTask([]string{"https://b"})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestControlsOnUnknownTask(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.orch.ApproveNext("nope"), task.ErrNotFound)
	assert.ErrorIs(t, h.orch.ApproveAll("nope"), task.ErrNotFound)
	assert.ErrorIs(t, h.orch.SkipNext("nope"), task.ErrNotFound)
	_, err := h.orch.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestPlan(t *testing.T) {
	h := newHarness(t, nil, &fakeStrategy{name: "Board", match: "board"})
	plan := h.orch.Plan([]string{"https://board/a", "https://jobs.acme.com"})
	require.Len(t, plan, 2)
	assert.Equal(t, "Board", plan[0].Strategy)
	assert.Equal(t, "Generic", plan[1].Strategy)
	assert.Equal(t, "Acme", plan[1].Platform)
}
