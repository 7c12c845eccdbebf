package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"job-harvester/internal/browser"
	"job-harvester/internal/domain/harvest"
)

const (
	defaultWorkingNomadsAPI = "https://www.workingnomads.com/api/exposed_jobs/"
	workingNomadsCap        = 200
)

type WorkingNomadsStrategy struct {
	opts   Options
	apiURL string
}

func NewWorkingNomadsStrategy(opts Options) *WorkingNomadsStrategy {
	return &WorkingNomadsStrategy{opts: opts.withDefaults(), apiURL: defaultWorkingNomadsAPI}
}

func (s *WorkingNomadsStrategy) WithAPIURL(u string) *WorkingNomadsStrategy {
	if u = strings.TrimSpace(u); u != "" {
		s.apiURL = u
	}
	return s
}

func (s *WorkingNomadsStrategy) Name() string { return "WorkingNomads" }

func (s *WorkingNomadsStrategy) CanHandle(url string) bool {
	return strings.Contains(url, "workingnomads.com")
}

type workingNomadsItem struct {
	Title       string `json:"title"`
	CompanyName string `json:"company_name"`
	URL         string `json:"url"`
	Location    string `json:"location"`
	PubDate     string `json:"pub_date"`
	PublishedAt string `json:"published_at"`
	Date        string `json:"date"`
}

func (s *WorkingNomadsStrategy) Extract(ctx context.Context, _ browser.Session, url string, emit EmitFunc) ([]harvest.Job, error) {
	body, err := httpGetWithRetry(ctx, s.opts.Client, s.apiURL, 2)
	if err != nil {
		return nil, fmt.Errorf("workingnomads api: %w", err)
	}
	items, err := decodeWorkingNomads(body)
	if err != nil {
		return nil, err
	}

	out := make([]harvest.Job, 0, len(items))
	for _, it := range items {
		if len(out) >= workingNomadsCap {
			break
		}
		title := truncate(it.Title, 120)
		if title == "" || (it.CompanyName == "" && it.URL == "") {
			continue
		}
		out = append(out, harvest.Job{
			Title:    title,
			Company:  pickNonEmpty(it.CompanyName, "Unknown"),
			Location: pickNonEmpty(it.Location, "Unknown"),
			Link:     pickNonEmpty(it.URL, url),
			Platform: "WorkingNomads",
			PostedAt: parseRFC3339OrNil(pickNonEmpty(it.PubDate, it.PublishedAt, it.Date)),
		})
	}
	emitSafe(emit, out, map[string]any{"pages": 1})
	return out, nil
}

// decodeWorkingNomads accepts either a bare array or {"jobs": [...]}.
func decodeWorkingNomads(body []byte) ([]workingNomadsItem, error) {
	var items []workingNomadsItem
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Jobs []workingNomadsItem `json:"jobs"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode workingnomads: %w", err)
	}
	return wrapped.Jobs, nil
}
