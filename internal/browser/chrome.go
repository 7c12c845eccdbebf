package browser

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

type ChromeOptions struct {
	Headless    bool
	NavTimeout  time.Duration
	SettleDelay time.Duration
	UserAgent   string
	ExecPath    string
}

type ChromeLauncher struct {
	opts   ChromeOptions
	logger *log.Logger
}

func NewChromeLauncher(opts ChromeOptions, logger *log.Logger) *ChromeLauncher {
	if logger == nil {
		logger = log.Default()
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 45 * time.Second
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &ChromeLauncher{opts: opts, logger: logger}
}

func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(l.opts.UserAgent),
	)
	if p := strings.TrimSpace(l.opts.ExecPath); p != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(p))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Running with no actions starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	l.logger.Printf("event=browser_launched headless=%t", l.opts.Headless)
	return &chromeSession{
		ctx:    browserCtx,
		cancel: func() { browserCancel(); allocCancel() },
		opts:   l.opts,
		logger: l.logger,
	}, nil
}

type chromeSession struct {
	ctx    context.Context
	cancel func()
	opts   ChromeOptions
	logger *log.Logger

	mu     sync.RWMutex
	closed bool
}

// Render navigates a fresh tab to url and returns the settled DOM. A timed
// out navigation is retried once with double the timeout.
func (s *chromeSession) Render(ctx context.Context, url string) (Page, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return Page{}, ErrClosed
	}

	p, err := s.render(ctx, url, s.opts.NavTimeout)
	if err == nil {
		return p, nil
	}
	if ctx.Err() != nil {
		return Page{}, ctx.Err()
	}
	s.logger.Printf("event=render_retry url=%s err=%v", url, err)
	return s.render(ctx, url, 2*s.opts.NavTimeout)
}

func (s *chromeSession) render(ctx context.Context, url string, timeout time.Duration) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(s.ctx)
	defer tabCancel()

	runCtx, runCancel := context.WithTimeout(tabCtx, timeout)
	defer runCancel()

	// Tie the tab to the caller's context as well as the browser's.
	stop := context.AfterFunc(ctx, runCancel)
	defer stop()

	var out Page
	err := chromedp.Run(runCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx)
			return err
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.opts.SettleDelay),
		chromedp.Location(&out.URL),
		chromedp.Title(&out.Title),
		chromedp.OuterHTML("html", &out.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return Page{}, fmt.Errorf("render %s: %w", url, err)
	}
	return out, nil
}

func (s *chromeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return nil
}
