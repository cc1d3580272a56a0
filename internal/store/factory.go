package store

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Driver names a Store implementation.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
	DriverSQLite Driver = "sqlite"
)

// Option configures New.
type Option func(*options)

type options struct {
	redisClient *redis.Client
	redisTTL    time.Duration
	keyPrefix   string
	sqlitePath  string
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) Option {
	return func(o *options) {
		o.redisClient = client
	}
}

// WithRedisTTL expires idle sessions and logs after ttl. Zero keeps them forever.
func WithRedisTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.redisTTL = ttl
	}
}

// WithKeyPrefix namespaces redis keys.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithSQLitePath sets the database file for the sqlite driver.
func WithSQLitePath(path string) Option {
	return func(o *options) {
		o.sqlitePath = path
	}
}

// New returns the Store implementation named by driver.
func New(driver Driver, opts ...Option) (Store, error) {
	cfg := &options{keyPrefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(cfg)
	}

	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStore(cfg.redisClient, cfg.keyPrefix, cfg.redisTTL), nil
	case DriverSQLite:
		if cfg.sqlitePath == "" {
			return nil, ErrInvalidConfig
		}
		return NewSQLiteStore(cfg.sqlitePath)
	default:
		return nil, ErrInvalidDriver
	}
}
