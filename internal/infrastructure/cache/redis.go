package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrUnavailable = errors.New("redis unavailable")

type Options struct {
	Host        string
	Port        string
	Password    string
	PingTimeout time.Duration
}

// Redis wraps a go-redis client. When the server cannot be reached at
// startup the client is nil and every operation degrades to a no-op.
type Redis struct {
	client *redis.Client
	logger *log.Logger

	warnedUnavailable atomic.Bool
}

func NewRedis(opts Options, logger *log.Logger) *Redis {
	if logger == nil {
		logger = log.Default()
	}
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(opts.Port)
	if port == "" {
		port = "6379"
	}
	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: opts.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Printf("cache event=bypass reason=unavailable err=%v", err)
		_ = client.Close()
		return &Redis{logger: logger}
	}
	return &Redis{client: client, logger: logger}
}

func (r *Redis) Available() bool {
	return r != nil && r.client != nil
}

func (r *Redis) warnUnavailableOnce(err error) {
	if r == nil || r.logger == nil {
		return
	}
	if r.warnedUnavailable.CompareAndSwap(false, true) {
		r.logger.Printf("cache event=bypass reason=error err=%v", err)
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	if !r.Available() {
		return ErrUnavailable
	}
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	if !r.Available() {
		return nil
	}
	return r.client.Close()
}
