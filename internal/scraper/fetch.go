package scraper

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	maxResponseSize = 5 << 20
)

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func httpHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept-Language": "en-US,en;q=0.9,fr;q=0.8",
	}
}

func httpGetWithRetry(ctx context.Context, client *http.Client, rawURL string, attempts int) ([]byte, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		body, err := httpGet(ctx, client, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(300*(i+1)) * time.Millisecond):
		}
	}
	return nil, lastErr
}

func httpGet(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range httpHeaders() {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get %s: status %d", rawURL, resp.StatusCode)
	}
	return readAllLimit(resp.Body, maxResponseSize)
}

func readAllLimit(r io.Reader, max int64) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: max + 1}
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > max {
		return nil, fmt.Errorf("response too large")
	}
	return b, nil
}

// newCollector returns a colly collector restricted to rawURL's host.
func newCollector(rawURL string) *colly.Collector {
	var c *colly.Collector
	if host := hostFromURL(rawURL); host != "" {
		c = colly.NewCollector(colly.AllowedDomains(host))
	} else {
		c = colly.NewCollector()
	}
	_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 2, RandomDelay: 500 * time.Millisecond})
	c.OnRequest(func(r *colly.Request) {
		for k, v := range httpHeaders() {
			r.Headers.Set(k, v)
		}
	})
	return c
}

func hostFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(u.Host); err == nil {
		return h
	}
	return u.Host
}

// absoluteURL resolves href against base; it returns "" when either is unusable.
func absoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return ""
	}
	h, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(h).String()
}

func pickNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func parseRFC3339OrNil(s string) *time.Time {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	tm, err := time.Parse(time.RFC3339, v)
	if err != nil {
		if len(v) >= 10 {
			if d, derr := time.Parse("2006-01-02", v[:10]); derr == nil {
				return &d
			}
		}
		return nil
	}
	tm = tm.UTC()
	return &tm
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
