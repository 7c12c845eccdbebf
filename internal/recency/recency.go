// Package recency drops jobs posted outside a time window.
package recency

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"job-harvester/internal/domain/harvest"
)

const DefaultWindow = 720 * time.Hour

var (
	agoPattern   = regexp.MustCompile(`(\d+)\s*(minute|minutes|hour|hours|day|days|week|weeks)\s*ago`)
	unitPattern  = regexp.MustCompile(`(\d+)\s*(minute|minutes|hour|hours|day|days|week|weeks)`)
	agoHintWords = []string{"posted", "ago", "since", "updated"}
	dateLayouts  = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "Jan 2, 2006", "January 2, 2006"}
)

// Filter keeps jobs whose posting time is within Window of Now. Jobs with no
// recognizable date are kept unless RequireDate is set.
type Filter struct {
	Window      time.Duration
	RequireDate bool
	Now         func() time.Time
}

func NewFilter(window time.Duration, requireDate bool) Filter {
	if window <= 0 {
		window = DefaultWindow
	}
	return Filter{Window: window, RequireDate: requireDate, Now: time.Now}
}

func (f Filter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f Filter) Apply(jobs []harvest.Job) []harvest.Job {
	out := make([]harvest.Job, 0, len(jobs))
	if len(jobs) == 0 {
		return out
	}
	window := f.Window
	if window <= 0 {
		window = DefaultWindow
	}
	now := f.now()
	cutoff := now.Add(-window)

	for _, j := range jobs {
		posted, ok := PostedTime(j, now)
		if !ok {
			if !f.RequireDate {
				out = append(out, j)
			}
			continue
		}
		if !posted.Before(cutoff) {
			out = append(out, j)
		}
	}
	return out
}

// PostedTime prefers the structured PostedAt and falls back to AgeText.
func PostedTime(j harvest.Job, now time.Time) (time.Time, bool) {
	if j.PostedAt != nil && !j.PostedAt.IsZero() {
		return *j.PostedAt, true
	}
	return ParseAge(j.AgeText, now)
}

// ParseAge understands relative phrases such as "just posted", "yesterday",
// "3 days ago" or "posted 5 hours", plus a few absolute date layouts.
func ParseAge(text string, now time.Time) (time.Time, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return time.Time{}, false
	}

	switch {
	case strings.Contains(t, "just posted"), strings.Contains(t, "today"):
		return now, true
	case strings.Contains(t, "yesterday"):
		return now.Add(-24 * time.Hour), true
	}

	if m := agoPattern.FindStringSubmatch(t); m != nil {
		if d, ok := unitDuration(m[1], m[2]); ok {
			return now.Add(-d), true
		}
	}
	if m := unitPattern.FindStringSubmatch(t); m != nil && containsAny(t, agoHintWords) {
		if d, ok := unitDuration(m[1], m[2]); ok {
			return now.Add(-d), true
		}
	}

	raw := strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func unitDuration(amount, unit string) (time.Duration, bool) {
	n, err := strconv.Atoi(amount)
	if err != nil || n < 0 {
		return 0, false
	}
	d := time.Duration(n)
	switch {
	case strings.HasPrefix(unit, "minute"):
		return d * time.Minute, true
	case strings.HasPrefix(unit, "hour"):
		return d * time.Hour, true
	case strings.HasPrefix(unit, "day"):
		return d * 24 * time.Hour, true
	case strings.HasPrefix(unit, "week"):
		return d * 7 * 24 * time.Hour, true
	}
	return 0, false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
