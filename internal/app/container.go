package app

import (
	"context"
	"errors"
	"log"
	"net/http"

	"job-harvester/internal/browser"
	"job-harvester/internal/config"
	"job-harvester/internal/infrastructure/cache"
	"job-harvester/internal/metrics"
	"job-harvester/internal/orchestrator"
	"job-harvester/internal/platforms"
	"job-harvester/internal/recency"
	"job-harvester/internal/scraper"
	"job-harvester/internal/task"
	"job-harvester/internal/ws"

	"github.com/prometheus/client_golang/prometheus"
)

// Container owns the long-lived components of a harvester process.
type Container struct {
	Config       config.Config
	Logger       *log.Logger
	Registry     *task.Registry
	Orchestrator *orchestrator.Orchestrator
	Hub          *ws.Hub
	Redis        *cache.Redis
	Metrics      *metrics.Collector
	Janitor      *task.Janitor

	stop context.CancelFunc
}

type Option func(*options)

type options struct {
	launcher browser.Launcher
	selector orchestrator.StrategySelector
	client   *http.Client
	redis    bool
}

// WithLauncher replaces the chromedp launcher.
func WithLauncher(l browser.Launcher) Option {
	return func(o *options) { o.launcher = l }
}

func WithSelector(s orchestrator.StrategySelector) Option {
	return func(o *options) { o.selector = s }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithoutRedis skips the redis connection; rate limiting then allows all.
func WithoutRedis() Option {
	return func(o *options) { o.redis = false }
}

func NewContainer(cfg config.Config, logger *log.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = log.Default()
	}
	o := options{redis: true}
	for _, opt := range opts {
		opt(&o)
	}

	hub := ws.NewHub(logger)
	registry := task.NewRegistry(task.WithListener(ws.NewPublisher(hub).Publish))

	if o.launcher == nil {
		o.launcher = browser.NewChromeLauncher(browser.ChromeOptions{
			Headless:   cfg.Browser.Headless,
			NavTimeout: cfg.Browser.NavTimeout,
			ExecPath:   cfg.Browser.ExecPath,
		}, logger)
	}
	if o.selector == nil {
		o.selector = scraper.NewDefaultSelector(scraper.Options{
			Client:        o.client,
			DetailWorkers: cfg.Scraper.DetailWorkers,
			DetailRPS:     cfg.Scraper.DetailRPS,
			Logger:        logger,
		})
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithPollInterval(cfg.Harvest.ApprovalPollInterval),
		orchestrator.WithEmitBuffer(cfg.Harvest.EmitBuffer),
		orchestrator.WithRecency(recency.NewFilter(cfg.Harvest.RecencyWindow, cfg.Harvest.RecencyRequireDate)),
	}
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(prometheus.NewRegistry())
		orchOpts = append(orchOpts, orchestrator.WithRecorder(collector))
	}

	var rdb *cache.Redis
	if o.redis && cfg.RateLimit.PerMinute > 0 {
		rdb = cache.NewRedis(cache.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
		}, logger)
	}

	return &Container{
		Config:       cfg,
		Logger:       logger,
		Registry:     registry,
		Orchestrator: orchestrator.New(registry, o.selector, o.launcher, logger, orchOpts...),
		Hub:          hub,
		Redis:        rdb,
		Metrics:      collector,
		Janitor:      task.NewJanitor(registry, cfg.Harvest.TaskRetention, cfg.Harvest.JanitorInterval, logger),
	}, nil
}

// Start launches the background loops. They stop on Close or when ctx ends.
func (c *Container) Start(ctx context.Context) {
	ctx, c.stop = context.WithCancel(ctx)
	go c.Hub.Run(ctx)
	go c.Janitor.Run(ctx)
}

// Sources reads the configured platforms file.
func (c *Container) Sources() ([]string, error) {
	return platforms.ParseFile(c.Config.Harvest.PlatformsFile)
}

// Close stops running tasks first so their final events still reach the hub.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if err := c.Orchestrator.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if c.stop != nil {
		c.stop()
	}
	if err := c.Redis.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
