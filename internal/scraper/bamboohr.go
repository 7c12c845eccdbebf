package scraper

import (
	"context"
	"strings"

	"job-harvester/internal/browser"
	"job-harvester/internal/domain/harvest"

	"github.com/PuerkitoBio/goquery"
)

const bambooHRCap = 100

// BambooHRStrategy reads job anchors from the rendered careers page; the
// board is built client side so a plain GET sees nothing.
type BambooHRStrategy struct {
	opts Options
}

func NewBambooHRStrategy(opts Options) *BambooHRStrategy {
	return &BambooHRStrategy{opts: opts.withDefaults()}
}

func (s *BambooHRStrategy) Name() string { return "BambooHR" }

func (s *BambooHRStrategy) CanHandle(url string) bool {
	return strings.Contains(url, "bamboohr.com")
}

func (s *BambooHRStrategy) Extract(ctx context.Context, sess browser.Session, url string, emit EmitFunc) ([]harvest.Job, error) {
	if sess == nil {
		return nil, browser.ErrClosed
	}
	page, err := sess.Render(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, err
	}

	base := pickNonEmpty(page.URL, url)
	jobs := make([]harvest.Job, 0)
	doc.Find(`a[href*="jobs/view"], a[href*="/jobs/"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if len(jobs) >= bambooHRCap {
			return false
		}
		href, _ := a.Attr("href")
		link := absoluteURL(base, href)
		title := collapseSpace(a.Text())
		if link == "" || len(title) < 3 {
			return true
		}
		jobs = append(jobs, harvest.Job{
			Title:    truncate(title, 120),
			Company:  "BambooHR Board",
			Location: "Unknown",
			Link:     link,
			Platform: "BambooHR",
		})
		return true
	})

	jobs = dedupeByLink(jobs)
	emitSafe(emit, jobs, map[string]any{"pages": 1})
	return jobs, nil
}
