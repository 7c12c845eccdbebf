// Package scraper holds the extraction strategies and the selector that
// routes a source url to one of them.
package scraper

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"job-harvester/internal/browser"
	"job-harvester/internal/domain/harvest"
)

// ErrNoJobs marks a source that was reachable but cannot list any jobs
// (a login wall, an empty board). It is not an extraction failure.
var ErrNoJobs = errors.New("source has no jobs")

// EmitFunc streams an incremental batch. Implementations must be safe for
// concurrent use; stats may be nil.
type EmitFunc func(jobs []harvest.Job, stats map[string]any)

// Strategy extracts jobs from one kind of source. Extract may call emit any
// number of times before returning its full list.
type Strategy interface {
	Name() string
	CanHandle(url string) bool
	Extract(ctx context.Context, s browser.Session, url string, emit EmitFunc) ([]harvest.Job, error)
}

// Options are shared by every built-in strategy.
type Options struct {
	Client        *http.Client
	DetailWorkers int
	DetailRPS     int
	Logger        *log.Logger
}

func (o Options) withDefaults() Options {
	if o.Client == nil {
		o.Client = defaultHTTPClient()
	}
	if o.DetailWorkers <= 0 {
		o.DetailWorkers = 4
	}
	if o.DetailRPS < 0 {
		o.DetailRPS = 0
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

func emitSafe(emit EmitFunc, jobs []harvest.Job, stats map[string]any) {
	if emit == nil || len(jobs) == 0 {
		return
	}
	emit(jobs, stats)
}

var subdomainPrefixes = map[string]bool{
	"jobs":          true,
	"careers":       true,
	"apply":         true,
	"myworkdayjobs": true,
}

// DomainLabel derives a display name from a url's host: "www." is dropped,
// a jobs/careers/apply subdomain yields the next label, talent-soft hosts
// lose their -career/-jobs suffix.
func DomainLabel(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return "Generic"
	}
	domain := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	parts := strings.Split(domain, ".")
	if len(parts) < 2 {
		return capitalize(domain)
	}
	switch {
	case subdomainPrefixes[parts[0]]:
		return capitalize(parts[1])
	case strings.Contains(domain, "talent-soft"):
		name := strings.ReplaceAll(parts[0], "-career", "")
		name = strings.ReplaceAll(name, "-jobs", "")
		return capitalize(name)
	default:
		return capitalize(parts[0])
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
