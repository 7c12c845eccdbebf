package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig
	Harvest   HarvestConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
}

type AppConfig struct {
	AppName     string
	Environment string
	HTTPPort    string
}

type HarvestConfig struct {
	PlatformsFile        string
	ApprovalPollInterval time.Duration
	TaskRetention        time.Duration
	JanitorInterval      time.Duration
	RecencyWindow        time.Duration
	RecencyRequireDate   bool
	EmitBuffer           int
}

type BrowserConfig struct {
	Headless   bool
	NavTimeout time.Duration
	ExecPath   string
}

type ScraperConfig struct {
	DetailWorkers int
	DetailRPS     int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

type RateLimitConfig struct {
	PerMinute int
}

type MetricsConfig struct {
	Enabled bool
}

var (
	errMissingRequiredEnv = errors.New("missing required environment variables")
	errInvalidValue       = errors.New("invalid configuration values")
)

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present, and HARVESTER_CONFIG may point at a
// YAML file of KEY: value defaults that real environment variables override.
func Load() (Config, error) {
	return LoadWithDefaults(nil)
}

// LoadWithDefaults is Load with a lowest-priority set of values, used by
// commands that do not need every required key.
func LoadWithDefaults(fallback map[string]string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	defaults, err := readYAMLDefaults(strings.TrimSpace(os.Getenv("HARVESTER_CONFIG")))
	if err != nil {
		return Config{}, err
	}

	return load(func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(v)
		}
		if v, ok := defaults[key]; ok {
			return v
		}
		return fallback[key]
	})
}

func readYAMLDefaults(path string) (map[string]string, error) {
	out := map[string]string{}
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out, nil
}

func load(get func(key string) string) (Config, error) {
	cfg := Config{}

	var missing, invalid []string
	req := func(key string) string {
		v := get(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	opt := func(key, def string) string {
		if v := get(key); v != "" {
			return v
		}
		return def
	}
	dur := func(key string, def time.Duration) time.Duration {
		v := get(key)
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			invalid = append(invalid, key)
			return def
		}
		return d
	}
	num := func(key string, def int) int {
		v := get(key)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			invalid = append(invalid, key)
			return def
		}
		return n
	}
	flag := func(key string, def bool) bool {
		v := get(key)
		if v == "" {
			return def
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			invalid = append(invalid, key)
			return def
		}
		return b
	}

	cfg.App = AppConfig{
		AppName:     req("APP_NAME"),
		Environment: req("APP_ENV"),
		HTTPPort:    req("HTTP_PORT"),
	}

	cfg.Harvest = HarvestConfig{
		PlatformsFile:        opt("PLATFORMS_FILE", "job platforms.txt"),
		ApprovalPollInterval: dur("APPROVAL_POLL_INTERVAL", 500*time.Millisecond),
		TaskRetention:        dur("TASK_RETENTION", 0),
		JanitorInterval:      dur("JANITOR_INTERVAL", time.Minute),
		RecencyWindow:        dur("RECENCY_WINDOW", 720*time.Hour),
		RecencyRequireDate:   flag("RECENCY_REQUIRE_DATE", false),
		EmitBuffer:           num("EMIT_BUFFER", 64),
	}

	cfg.Browser = BrowserConfig{
		Headless:   flag("BROWSER_HEADLESS", true),
		NavTimeout: dur("BROWSER_NAV_TIMEOUT", 45*time.Second),
		ExecPath:   opt("BROWSER_EXEC_PATH", ""),
	}

	cfg.Scraper = ScraperConfig{
		DetailWorkers: num("DETAIL_WORKERS", 4),
		DetailRPS:     num("DETAIL_RPS", 3),
	}

	cfg.Redis = RedisConfig{
		Host:     opt("REDIS_HOST", "localhost"),
		Port:     opt("REDIS_PORT", "6379"),
		Password: opt("REDIS_PASSWORD", ""),
	}

	cfg.RateLimit = RateLimitConfig{
		PerMinute: num("RATE_LIMIT_PER_MINUTE", 30),
	}

	cfg.Metrics = MetricsConfig{
		Enabled: flag("METRICS_ENABLED", true),
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errInvalidValue, strings.Join(invalid, ", "))
	}

	return cfg, nil
}
