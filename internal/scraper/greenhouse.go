package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"job-harvester/internal/browser"
	"job-harvester/internal/domain/harvest"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

var greenhouseDescription = []string{
	"#content", "#main", ".content", ".main", ".job-description", "[itemprop='description']",
}

// GreenhouseStrategy lists a Greenhouse board with colly, streams the list,
// then enriches each posting with its description.
type GreenhouseStrategy struct {
	opts     Options
	detailer detailer
}

func NewGreenhouseStrategy(opts Options) *GreenhouseStrategy {
	opts = opts.withDefaults()
	return &GreenhouseStrategy{opts: opts, detailer: newDetailer(opts)}
}

func (s *GreenhouseStrategy) Name() string { return "Greenhouse" }

func (s *GreenhouseStrategy) CanHandle(url string) bool {
	return strings.Contains(url, "greenhouse.io")
}

func (s *GreenhouseStrategy) Extract(ctx context.Context, _ browser.Session, url string, emit EmitFunc) ([]harvest.Job, error) {
	if strings.Contains(url, "my.greenhouse.io") {
		return nil, fmt.Errorf("%w: greenhouse login page", ErrNoJobs)
	}

	jobs, err := s.list(ctx, url)
	if err != nil {
		return nil, err
	}
	s.opts.Logger.Printf("scraper strategy=greenhouse url=%s listed=%d", url, len(jobs))
	emitSafe(emit, jobs, map[string]any{"pages": 1, "listed": len(jobs)})

	enriched, failed := s.detailer.enrich(ctx, jobs, func(doc *goquery.Document) string {
		return firstText(doc, greenhouseDescription...)
	}, emit)
	if failed > 0 {
		s.opts.Logger.Printf("scraper strategy=greenhouse url=%s detail_failures=%d", url, failed)
	}
	return enriched, ctx.Err()
}

func (s *GreenhouseStrategy) list(ctx context.Context, listURL string) ([]harvest.Job, error) {
	c := newCollector(listURL)

	var mu sync.Mutex
	openings := make([]harvest.Job, 0)
	anchors := make([]harvest.Job, 0)

	c.OnHTML(".opening", func(e *colly.HTMLElement) {
		a := e.DOM.Find("a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		link := e.Request.AbsoluteURL(strings.TrimSpace(href))
		if link == "" {
			return
		}
		loc := strings.TrimSpace(e.DOM.Find(".location").First().Text())
		mu.Lock()
		openings = append(openings, greenhouseJob(collapseSpace(a.Text()), loc, link))
		mu.Unlock()
	})

	c.OnHTML("a[href*='/jobs/']", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(strings.TrimSpace(e.Attr("href")))
		if link == "" {
			return
		}
		title, loc := splitAnchorText(e.DOM.Text())
		mu.Lock()
		anchors = append(anchors, greenhouseJob(title, loc, link))
		mu.Unlock()
	})

	var reqErr error
	c.OnError(func(r *colly.Response, err error) {
		reqErr = err
	})

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := c.Visit(listURL); err != nil {
		return nil, err
	}
	c.Wait()
	if reqErr != nil {
		return nil, reqErr
	}

	found := openings
	if len(found) == 0 {
		found = anchors
	}
	return dedupeByLink(found), nil
}

func greenhouseJob(title, location, link string) harvest.Job {
	return harvest.Job{
		Title:    pickNonEmpty(title, "Unknown"),
		Company:  "Greenhouse Board",
		Location: pickNonEmpty(location, "Unknown"),
		Link:     link,
		Platform: "Greenhouse",
	}
}

// splitAnchorText treats a multi-line anchor as "title ... location".
func splitAnchorText(raw string) (string, string) {
	lines := make([]string, 0)
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	switch len(lines) {
	case 0:
		return "", ""
	case 1:
		return lines[0], ""
	default:
		return lines[0], lines[len(lines)-1]
	}
}

func dedupeByLink(jobs []harvest.Job) []harvest.Job {
	seen := make(map[string]struct{}, len(jobs))
	out := make([]harvest.Job, 0, len(jobs))
	for _, j := range jobs {
		k := j.Key()
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, j)
	}
	return out
}
