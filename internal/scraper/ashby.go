package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"job-harvester/internal/browser"
	"job-harvester/internal/domain/harvest"
)

const defaultAshbyAPI = "https://api.ashbyhq.com"

var ashbyAppData = regexp.MustCompile(`(?s)window\.__appData\s*=\s*(\{.*?\});`)

// AshbyStrategy reads the public posting API and falls back to the
// __appData blob embedded in the rendered board.
type AshbyStrategy struct {
	opts    Options
	apiBase string
}

func NewAshbyStrategy(opts Options) *AshbyStrategy {
	return &AshbyStrategy{opts: opts.withDefaults(), apiBase: defaultAshbyAPI}
}

// WithAPIBase points the strategy at another posting API host.
func (s *AshbyStrategy) WithAPIBase(base string) *AshbyStrategy {
	if b := strings.TrimSpace(base); b != "" {
		s.apiBase = strings.TrimRight(b, "/")
	}
	return s
}

func (s *AshbyStrategy) Name() string { return "Ashby" }

func (s *AshbyStrategy) CanHandle(url string) bool {
	return strings.Contains(url, "ashbyhq.com")
}

type ashbyBoard struct {
	Jobs []struct {
		Title            string `json:"title"`
		Location         string `json:"location"`
		JobURL           string `json:"jobUrl"`
		PublishedAt      string `json:"publishedAt"`
		DescriptionPlain string `json:"descriptionPlain"`
		IsListed         *bool  `json:"isListed"`
	} `json:"jobs"`
}

type ashbyAppPayload struct {
	JobPostings []ashbyPosting `json:"jobPostings"`
	JobBoard    struct {
		JobPostings []ashbyPosting `json:"jobPostings"`
	} `json:"jobBoard"`
}

type ashbyPosting struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	LocationName       string `json:"locationName"`
	SecondaryLocations []any  `json:"secondaryLocations"`
	PublishedDate      string `json:"publishedDate"`
}

func (s *AshbyStrategy) Extract(ctx context.Context, sess browser.Session, rawURL string, emit EmitFunc) ([]harvest.Job, error) {
	org := ashbyOrg(rawURL)
	if org == "" {
		return nil, fmt.Errorf("%w: no ashby organization in %s", ErrNoJobs, rawURL)
	}

	jobs, apiErr := s.fromAPI(ctx, org)
	source := "api"
	if apiErr != nil {
		s.opts.Logger.Printf("scraper strategy=ashby org=%s api_err=%v", org, apiErr)
		var err error
		jobs, err = s.fromPage(ctx, sess, rawURL, org)
		if err != nil {
			return nil, fmt.Errorf("ashby api: %v; page: %w", apiErr, err)
		}
		source = "page"
	}
	emitSafe(emit, jobs, map[string]any{"pages": 1, "source": source})
	return jobs, nil
}

func (s *AshbyStrategy) fromAPI(ctx context.Context, org string) ([]harvest.Job, error) {
	endpoint := fmt.Sprintf("%s/posting-api/job-board/%s", s.apiBase, url.PathEscape(org))
	body, err := httpGetWithRetry(ctx, s.opts.Client, endpoint, 2)
	if err != nil {
		return nil, err
	}
	var board ashbyBoard
	if err := json.Unmarshal(body, &board); err != nil {
		return nil, err
	}
	out := make([]harvest.Job, 0, len(board.Jobs))
	for _, j := range board.Jobs {
		if j.IsListed != nil && !*j.IsListed {
			continue
		}
		if strings.TrimSpace(j.JobURL) == "" {
			continue
		}
		out = append(out, harvest.Job{
			Title:       pickNonEmpty(j.Title, "Unknown"),
			Company:     capitalize(org),
			Location:    pickNonEmpty(j.Location, "Unknown"),
			Link:        strings.TrimSpace(j.JobURL),
			Description: strings.TrimSpace(j.DescriptionPlain),
			Platform:    "Ashby",
			PostedAt:    parseRFC3339OrNil(j.PublishedAt),
		})
	}
	return dedupeByLink(out), nil
}

func (s *AshbyStrategy) fromPage(ctx context.Context, sess browser.Session, rawURL, org string) ([]harvest.Job, error) {
	if sess == nil {
		return nil, browser.ErrClosed
	}
	page, err := sess.Render(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	m := ashbyAppData.FindStringSubmatch(page.HTML)
	if m == nil {
		return nil, fmt.Errorf("%w: no __appData on page", ErrNoJobs)
	}
	var payload ashbyAppPayload
	if err := json.Unmarshal([]byte(m[1]), &payload); err != nil {
		return nil, fmt.Errorf("decode __appData: %w", err)
	}
	postings := payload.JobPostings
	if len(postings) == 0 {
		postings = payload.JobBoard.JobPostings
	}

	base := strings.TrimRight(strings.SplitN(rawURL, "?", 2)[0], "/")
	out := make([]harvest.Job, 0, len(postings))
	for _, p := range postings {
		if p.ID == "" {
			continue
		}
		loc := pickNonEmpty(p.LocationName, "Unknown")
		if n := len(p.SecondaryLocations); n > 0 {
			loc = fmt.Sprintf("%s (+%d)", loc, n)
		}
		out = append(out, harvest.Job{
			Title:    pickNonEmpty(p.Title, "Unknown"),
			Company:  capitalize(org),
			Location: loc,
			Link:     base + "/" + p.ID,
			Platform: "Ashby",
			PostedAt: parseRFC3339OrNil(p.PublishedDate),
		})
	}
	return dedupeByLink(out), nil
}

// ashbyOrg returns the board slug: the first path segment of the url.
func ashbyOrg(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			return seg
		}
	}
	return ""
}
