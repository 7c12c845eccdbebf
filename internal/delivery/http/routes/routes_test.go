package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"job-harvester/internal/delivery/http/handler"
	"job-harvester/internal/delivery/http/middleware"
	"job-harvester/internal/domain/harvest"
	"job-harvester/internal/infrastructure/cache"
	"job-harvester/internal/orchestrator"
	"job-harvester/internal/scraper"
	"job-harvester/internal/task"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	mu         sync.Mutex
	started    [][]string
	startErr   error
	tasks      map[string]harvest.Task
	approved   []string
	approveAll []string
	skipped    []string
	controlErr error
}

func newFakeService() *fakeService {
	return &fakeService{tasks: map[string]harvest.Task{}}
}

func (f *fakeService) StartTask(sources []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, sources)
	id := "task-1"
	results := make([]harvest.Result, 0, len(sources))
	for _, s := range sources {
		results = append(results, harvest.Result{URL: s, Status: harvest.ResultSuccess, Platform: "Generic", Jobs: []harvest.Job{}})
	}
	f.tasks[id] = harvest.Task{ID: id, Status: harvest.TaskCompleted, Total: len(sources), Progress: len(sources), Results: results}
	return id, nil
}

func (f *fakeService) GetTask(id string) (harvest.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	return t, ok
}

func (f *fakeService) Plan(urls []string) []scraper.PlanEntry {
	out := make([]scraper.PlanEntry, 0, len(urls))
	for _, u := range urls {
		out = append(out, scraper.PlanEntry{URL: u, Strategy: "Generic", Platform: "Acme"})
	}
	return out
}

func (f *fakeService) ApproveNext(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = append(f.approved, id)
	return f.controlErr
}

func (f *fakeService) ApproveAll(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approveAll = append(f.approveAll, id)
	return f.controlErr
}

func (f *fakeService) SkipNext(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skipped = append(f.skipped, id)
	return f.controlErr
}

func (f *fakeService) Wait(ctx context.Context, id string) (harvest.Task, error) {
	t, ok := f.GetTask(id)
	if !ok {
		return harvest.Task{}, task.ErrNotFound
	}
	return t, nil
}

type stubLimiter struct {
	allowed bool
}

func (s stubLimiter) Allow(context.Context, string) (cache.Decision, error) {
	if s.allowed {
		return cache.Decision{Allowed: true, Limit: 1, Remaining: 0}, nil
	}
	return cache.Decision{Allowed: false, Limit: 1, Remaining: 0, RetryAfter: 1500 * time.Millisecond}, nil
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newApp(t *testing.T, svc handler.TaskService, sources handler.SourceLoader, limiter middleware.Limiter) *fiber.App {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	app := fiber.New()
	app.Use(middleware.NewErrorMiddleware(logger).Middleware())

	deps := Deps{
		Health:  handler.NewHealthHandler("harvester", nil, func() int { return 2 }),
		Scrape:  handler.NewScrapeHandler(svc, sources),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("harvester_up 1\n")) }),
	}
	if limiter != nil {
		deps.RateLimit = middleware.NewRateLimitMiddleware(limiter, logger).Middleware()
	}
	NewRegistry(deps).Register(app)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := app.Test(req)
	require.NoError(t, err)

	var env envelope
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	_ = res.Body.Close()
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return res, env
}

func staticSources(urls ...string) handler.SourceLoader {
	return func() ([]string, error) { return urls, nil }
}

func TestStart_WithURLs(t *testing.T) {
	svc := newFakeService()
	app := newApp(t, svc, nil, nil)

	res, env := doJSON(t, app, http.MethodPost, "/api/scrape/start", map[string]any{"urls": []string{"https://a.example/jobs"}})
	require.Equal(t, http.StatusOK, res.StatusCode)

	var data struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "task-1", data.TaskID)
	assert.Equal(t, [][]string{{"https://a.example/jobs"}}, svc.started)
}

func TestStart_FallsBackToPlatformsFile(t *testing.T) {
	svc := newFakeService()
	app := newApp(t, svc, staticSources("https://b.example", "https://c.example"), nil)

	res, _ := doJSON(t, app, http.MethodPost, "/api/scrape/start", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, [][]string{{"https://b.example", "https://c.example"}}, svc.started)
}

func TestStart_NoSources(t *testing.T) {
	app := newApp(t, newFakeService(), staticSources(), nil)

	res, env := doJSON(t, app, http.MethodPost, "/api/scrape/start", map[string]any{"urls": []string{" "}})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "no urls provided", env.Message)
}

func TestStart_PlatformsFileUnreadableIsMasked(t *testing.T) {
	app := newApp(t, newFakeService(), func() ([]string, error) { return nil, errors.New("open: no such file") }, nil)

	res, env := doJSON(t, app, http.MethodPost, "/api/scrape/start", nil)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "internal server error", env.Message)
}

func TestStart_ShuttingDown(t *testing.T) {
	svc := newFakeService()
	svc.startErr = orchestrator.ErrShuttingDown
	app := newApp(t, svc, nil, nil)

	res, _ := doJSON(t, app, http.MethodPost, "/api/scrape/start", map[string]any{"urls": []string{"https://a.example"}})
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestStatus(t *testing.T) {
	svc := newFakeService()
	_, _ = svc.StartTask([]string{"https://a.example"})
	app := newApp(t, svc, nil, nil)

	res, env := doJSON(t, app, http.MethodGet, "/api/scrape/status/task-1", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var got harvest.Task
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "task-1", got.ID)
	assert.Equal(t, harvest.TaskCompleted, got.Status)
	require.Len(t, got.Results, 1)

	res, env = doJSON(t, app, http.MethodGet, "/api/scrape/status/nope", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "Task not found", env.Message)
}

func TestControls(t *testing.T) {
	svc := newFakeService()
	app := newApp(t, svc, nil, nil)

	for _, path := range []string{"/api/scrape/approve/t", "/api/scrape/approve_all/t", "/api/scrape/skip/t"} {
		res, _ := doJSON(t, app, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusOK, res.StatusCode, path)
	}
	assert.Equal(t, []string{"t"}, svc.approved)
	assert.Equal(t, []string{"t"}, svc.approveAll)
	assert.Equal(t, []string{"t"}, svc.skipped)
}

func TestControls_ErrorMapping(t *testing.T) {
	svc := newFakeService()
	app := newApp(t, svc, nil, nil)

	svc.controlErr = task.ErrNotFound
	res, _ := doJSON(t, app, http.MethodPost, "/api/scrape/approve/t", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	svc.controlErr = task.ErrTerminal
	res, env := doJSON(t, app, http.MethodPost, "/api/scrape/skip/t", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "Task already finished", env.Message)
}

func TestPlan(t *testing.T) {
	app := newApp(t, newFakeService(), staticSources("https://a.example", "https://b.example"), nil)

	res, env := doJSON(t, app, http.MethodGet, "/api/scrape/plan", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var data struct {
		TotalURLs int                 `json:"total_urls"`
		Plan      []scraper.PlanEntry `json:"plan"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 2, data.TotalURLs)
	assert.Equal(t, "https://b.example", data.Plan[1].URL)
}

func TestScrapeOne(t *testing.T) {
	svc := newFakeService()
	app := newApp(t, svc, nil, nil)

	res, env := doJSON(t, app, http.MethodPost, "/api/scrape/one", map[string]string{"url": "https://a.example"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	var got harvest.Result
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "https://a.example", got.URL)
	assert.Equal(t, harvest.ResultSuccess, got.Status)
	assert.Equal(t, []string{"task-1"}, svc.approveAll)

	res, _ = doJSON(t, app, http.MethodPost, "/api/scrape/one", map[string]string{"url": ""})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestScrapeAll(t *testing.T) {
	app := newApp(t, newFakeService(), staticSources("https://a.example", "https://b.example"), nil)

	res, env := doJSON(t, app, http.MethodPost, "/api/scrape/", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var data struct {
		Status       string           `json:"status"`
		TotalURLs    int              `json:"total_urls"`
		ScrapedCount int              `json:"scraped_count"`
		Results      []harvest.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "completed", data.Status)
	assert.Equal(t, 2, data.TotalURLs)
	assert.Equal(t, 2, data.ScrapedCount)
}

func TestRateLimit_OnlyTaskCreation(t *testing.T) {
	svc := newFakeService()
	app := newApp(t, svc, nil, stubLimiter{allowed: false})

	res, env := doJSON(t, app, http.MethodPost, "/api/scrape/start", map[string]any{"urls": []string{"https://a.example"}})
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, "2", res.Header.Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", env.Message)
	assert.Empty(t, svc.started)

	res, _ = doJSON(t, app, http.MethodPost, "/api/scrape/approve/t", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRateLimit_Allowed(t *testing.T) {
	app := newApp(t, newFakeService(), nil, stubLimiter{allowed: true})

	res, _ := doJSON(t, app, http.MethodPost, "/api/scrape/start", map[string]any{"urls": []string{"https://a.example"}})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "1", res.Header.Get("X-RateLimit-Limit"))
}

func TestHealthAndMetrics(t *testing.T) {
	app := newApp(t, newFakeService(), nil, nil)

	res, env := doJSON(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var h struct {
		Status    string `json:"status"`
		Redis     string `json:"redis"`
		WSClients int    `json:"ws_clients"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "disabled", h.Redis)
	assert.Equal(t, 2, h.WSClients)

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	assert.Contains(t, string(body), "harvester_up 1")
}
