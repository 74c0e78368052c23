// Package config holds the bus configuration surface and its validation.
package config

import (
	"errors"
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

// Config groups the settings required to initialise the message bus. Zero
// values fall back to the defaults documented on each field.
type Config struct {
	// MaxConcurrentMessages bounds the number of dispatches executing at
	// the same time. Defaults to 100.
	MaxConcurrentMessages int `env:"HERALD_MAX_CONCURRENT_MESSAGES" envDefault:"100"`

	// RateLimit is the number of admissions allowed per RateInterval.
	// Zero disables rate limiting.
	RateLimit int `env:"HERALD_RATE_LIMIT" envDefault:"0"`

	// RateInterval is the window over which RateLimit applies. Defaults to
	// one second.
	RateInterval time.Duration `env:"HERALD_RATE_INTERVAL" envDefault:"1s"`

	// HealthQueueThreshold is the admission queue depth beyond which the
	// flow controller reports unhealthy. Defaults to 1000.
	HealthQueueThreshold int `env:"HERALD_HEALTH_QUEUE_THRESHOLD" envDefault:"1000"`

	// CorrelationTimeout is how long correlation records are kept before
	// lazy expiry. Defaults to 5 minutes.
	CorrelationTimeout time.Duration `env:"HERALD_CORRELATION_TIMEOUT" envDefault:"5m"`

	// EnableDeadLetterQueue turns the dead-letter store on. Defaults to true.
	EnableDeadLetterQueue bool `env:"HERALD_ENABLE_DLQ" envDefault:"true"`

	// DeadLetterQueueCapacity bounds the dead-letter store. Oldest entries
	// are evicted once the capacity is exceeded. Defaults to 1000.
	DeadLetterQueueCapacity int `env:"HERALD_DLQ_CAPACITY" envDefault:"1000"`

	// DeadLetterTopic, when set together with a transport publisher, mirrors
	// dead-letter entries to that topic.
	DeadLetterTopic string `env:"HERALD_DLQ_TOPIC"`

	// Default retry policy tuning. Zero values fall back to library defaults
	// (3 attempts, 100ms initial interval, 10s cap).
	RetryMaxAttempts     int           `env:"HERALD_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryInitialInterval time.Duration `env:"HERALD_RETRY_INITIAL_INTERVAL" envDefault:"100ms"`
	RetryMaxInterval     time.Duration `env:"HERALD_RETRY_MAX_INTERVAL" envDefault:"10s"`

	// MetricsEnabled registers Prometheus collectors for the bus and the
	// dead-letter queue.
	MetricsEnabled bool `env:"HERALD_METRICS_ENABLED" envDefault:"false"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		MaxConcurrentMessages:   100,
		RateInterval:            time.Second,
		HealthQueueThreshold:    1000,
		CorrelationTimeout:      5 * time.Minute,
		EnableDeadLetterQueue:   true,
		DeadLetterQueueCapacity: 1000,
		RetryMaxAttempts:        3,
		RetryInitialInterval:    100 * time.Millisecond,
		RetryMaxInterval:        10 * time.Second,
	}
}

// FromEnv builds a Config from HERALD_* environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("herald: parsing config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for impossible values. All violations are
// reported at once as a joined error.
func (c *Config) Validate() error {
	var errs []error

	if c.MaxConcurrentMessages <= 0 {
		errs = append(errs, fmt.Errorf("max concurrent messages must be positive, got %d", c.MaxConcurrentMessages))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %d", c.RateLimit))
	}
	if c.RateLimit > 0 && c.RateInterval <= 0 {
		errs = append(errs, fmt.Errorf("rate interval must be positive when rate limit is set, got %s", c.RateInterval))
	}
	if c.HealthQueueThreshold < 0 {
		errs = append(errs, fmt.Errorf("health queue threshold must not be negative, got %d", c.HealthQueueThreshold))
	}
	if c.CorrelationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("correlation timeout must be positive, got %s", c.CorrelationTimeout))
	}
	if c.EnableDeadLetterQueue && c.DeadLetterQueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("dead letter queue capacity must be positive, got %d", c.DeadLetterQueueCapacity))
	}
	if c.RetryMaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry max attempts must not be negative, got %d", c.RetryMaxAttempts))
	}
	if c.RetryInitialInterval < 0 {
		errs = append(errs, fmt.Errorf("retry initial interval must not be negative, got %s", c.RetryInitialInterval))
	}
	if c.RetryMaxInterval > 0 && c.RetryMaxInterval < c.RetryInitialInterval {
		errs = append(errs, fmt.Errorf("retry max interval %s is below the initial interval %s", c.RetryMaxInterval, c.RetryInitialInterval))
	}

	return errors.Join(errs...)
}

func (c Config) String() string {
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(c))
}
