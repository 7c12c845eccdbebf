package handler

import (
	"context"
	"errors"
	"strings"

	"job-harvester/internal/delivery/http/middleware"
	"job-harvester/internal/domain/harvest"
	"job-harvester/internal/orchestrator"
	"job-harvester/internal/pkg/response"
	"job-harvester/internal/scraper"
	"job-harvester/internal/task"

	"github.com/gofiber/fiber/v3"
)

// TaskService is the orchestrator surface the façade drives.
type TaskService interface {
	StartTask(sources []string) (string, error)
	GetTask(id string) (harvest.Task, bool)
	Plan(urls []string) []scraper.PlanEntry
	ApproveNext(id string) error
	ApproveAll(id string) error
	SkipNext(id string) error
	Wait(ctx context.Context, id string) (harvest.Task, error)
}

// SourceLoader returns the configured default source list.
type SourceLoader func() ([]string, error)

type ScrapeHandler struct {
	svc     TaskService
	sources SourceLoader
}

type startRequest struct {
	URLs []string `json:"urls"`
}

type startResponse struct {
	TaskID string `json:"task_id"`
}

type oneRequest struct {
	URL string `json:"url"`
}

type planResponse struct {
	TotalURLs int                 `json:"total_urls"`
	Plan      []scraper.PlanEntry `json:"plan"`
}

type batchResponse struct {
	Status       string           `json:"status"`
	TaskID       string           `json:"task_id"`
	TotalURLs    int              `json:"total_urls"`
	ScrapedCount int              `json:"scraped_count"`
	Results      []harvest.Result `json:"results"`
}

func NewScrapeHandler(svc TaskService, sources SourceLoader) *ScrapeHandler {
	return &ScrapeHandler{svc: svc, sources: sources}
}

// RegisterRoutes mounts the façade on r. A non-nil limit runs in front of the
// routes that create tasks only.
func (h *ScrapeHandler) RegisterRoutes(r fiber.Router, limit fiber.Handler) {
	if r == nil {
		return
	}

	r.Get("/status/:id", h.Status)
	r.Post("/approve/:id", h.Approve)
	r.Post("/approve_all/:id", h.ApproveAll)
	r.Post("/skip/:id", h.Skip)
	r.Get("/plan", h.Plan)

	create := func(path string, fn fiber.Handler) {
		if limit == nil {
			r.Post(path, fn)
			return
		}
		r.Post(path, limit, fn)
	}
	create("/start", h.Start)
	create("/one", h.ScrapeOne)
	create("/", h.ScrapeAll)
}

func (h *ScrapeHandler) Start(c fiber.Ctx) error {
	var req startRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return middleware.NewAppError(fiber.StatusBadRequest, response.MessageBadRequest, nil, err)
		}
	}

	urls := req.URLs
	if len(cleanURLs(urls)) == 0 {
		var err error
		if urls, err = h.defaultSources(); err != nil {
			return err
		}
	}

	id, err := h.svc.StartTask(urls)
	if err != nil {
		return mapTaskError(err)
	}
	return response.OK(c, "Task started", startResponse{TaskID: id})
}

func (h *ScrapeHandler) Status(c fiber.Ctx) error {
	t, ok := h.svc.GetTask(c.Params("id"))
	if !ok {
		return middleware.NewAppError(fiber.StatusNotFound, "Task not found", nil, nil)
	}
	return response.OK(c, response.MessageOK, t)
}

func (h *ScrapeHandler) Approve(c fiber.Ctx) error {
	if err := h.svc.ApproveNext(c.Params("id")); err != nil {
		return mapTaskError(err)
	}
	return response.OK(c, "Approved", nil)
}

func (h *ScrapeHandler) ApproveAll(c fiber.Ctx) error {
	if err := h.svc.ApproveAll(c.Params("id")); err != nil {
		return mapTaskError(err)
	}
	return response.OK(c, "Approved all remaining sites", nil)
}

func (h *ScrapeHandler) Skip(c fiber.Ctx) error {
	if err := h.svc.SkipNext(c.Params("id")); err != nil {
		return mapTaskError(err)
	}
	return response.OK(c, "Skipping next site", nil)
}

func (h *ScrapeHandler) Plan(c fiber.Ctx) error {
	urls, err := h.defaultSources()
	if err != nil {
		return err
	}
	plan := h.svc.Plan(urls)
	return response.OK(c, response.MessageOK, planResponse{TotalURLs: len(plan), Plan: plan})
}

// ScrapeOne runs a single source without approval pauses and returns its
// result once the task is finished.
func (h *ScrapeHandler) ScrapeOne(c fiber.Ctx) error {
	var req oneRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, response.MessageBadRequest, nil, err)
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return middleware.NewAppError(fiber.StatusBadRequest, "url is required", nil, nil)
	}

	t, err := h.runUnattended(c.Context(), []string{url})
	if err != nil {
		return err
	}
	if len(t.Results) == 0 {
		return middleware.NewAppError(fiber.StatusBadGateway, "scrape produced no result", nil, nil)
	}
	return response.OK(c, response.MessageOK, t.Results[0])
}

// ScrapeAll runs every configured source without approval pauses.
func (h *ScrapeHandler) ScrapeAll(c fiber.Ctx) error {
	urls, err := h.defaultSources()
	if err != nil {
		return err
	}
	t, err := h.runUnattended(c.Context(), urls)
	if err != nil {
		return err
	}
	return response.OK(c, response.MessageOK, batchResponse{
		Status:       string(t.Status),
		TaskID:       t.ID,
		TotalURLs:    t.Total,
		ScrapedCount: len(t.Results),
		Results:      t.Results,
	})
}

func (h *ScrapeHandler) runUnattended(ctx context.Context, urls []string) (harvest.Task, error) {
	id, err := h.svc.StartTask(urls)
	if err != nil {
		return harvest.Task{}, mapTaskError(err)
	}
	// The worker may already have failed on launch; a terminal task is fine.
	if err := h.svc.ApproveAll(id); err != nil && !errors.Is(err, task.ErrTerminal) {
		return harvest.Task{}, mapTaskError(err)
	}
	t, err := h.svc.Wait(ctx, id)
	if err != nil {
		return harvest.Task{}, mapTaskError(err)
	}
	return t, nil
}

func (h *ScrapeHandler) defaultSources() ([]string, error) {
	if h.sources == nil {
		return nil, middleware.NewAppError(fiber.StatusBadRequest, "no urls provided", nil, nil)
	}
	urls, err := h.sources()
	if err != nil {
		return nil, middleware.NewAppError(fiber.StatusInternalServerError, "failed to read platforms file", nil, err)
	}
	if len(urls) == 0 {
		return nil, middleware.NewAppError(fiber.StatusBadRequest, "no urls provided", nil, nil)
	}
	return urls, nil
}

func cleanURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func mapTaskError(err error) error {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return middleware.NewAppError(fiber.StatusNotFound, "Task not found", nil, err)
	case errors.Is(err, task.ErrTerminal):
		return middleware.NewAppError(fiber.StatusConflict, "Task already finished", nil, err)
	case errors.Is(err, orchestrator.ErrNoSources):
		return middleware.NewAppError(fiber.StatusBadRequest, "no urls provided", nil, err)
	case errors.Is(err, orchestrator.ErrShuttingDown):
		return middleware.NewAppError(fiber.StatusServiceUnavailable, "server is shutting down", nil, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return middleware.NewAppError(fiber.StatusServiceUnavailable, "request cancelled before the task finished", nil, err)
	default:
		return middleware.NewAppError(fiber.StatusInternalServerError, response.MessageInternalServerError, nil, err)
	}
}
