// Package config loads run settings: built-in defaults, then an optional YAML
// file, then INNSEARCH_* environment variables. Command line flags are
// applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"innsearch/internal/anonymity"
	"innsearch/internal/report"
	"innsearch/internal/retry"
	liststrings "innsearch/pkg/platform/strings"
)

const envPrefix = "INNSEARCH_"

type Config struct {
	Input string `yaml:"input"`
	// Output defaults to a timestamped workbook in the working directory.
	Output      string `yaml:"output"`
	Concurrency int    `yaml:"concurrency"`

	Sources   SourcesConfig   `yaml:"sources"`
	Retry     RetryConfig     `yaml:"retry"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Tor       TorConfig       `yaml:"tor"`
	Challenge ChallengeConfig `yaml:"challenge"`
	Cache     CacheConfig     `yaml:"cache"`
	Store     StoreConfig     `yaml:"store"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	S3        report.Config   `yaml:"s3"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// SourcesConfig lists sources in priority order.
type SourcesConfig struct {
	Order        []string      `yaml:"order"`
	Timeout      time.Duration `yaml:"timeout"`
	NalogURL     string        `yaml:"nalog_url"`
	OGUURL       string        `yaml:"ogu_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxJitter   time.Duration `yaml:"max_jitter"`
}

// BreakerConfig enables per-source circuit breaking when Threshold > 0.
type BreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

type TorConfig struct {
	Enabled          bool `yaml:"enabled"`
	anonymity.Config `yaml:",inline"`
}

// ChallengeConfig points at the recognition model server. An empty ModelURL
// disables challenge solving.
type ChallengeConfig struct {
	ModelURL   string        `yaml:"model_url"`
	Vocabulary string        `yaml:"vocabulary"`
	Width      int           `yaml:"width"`
	Height     int           `yaml:"height"`
	Timeout    time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	// Driver is "", "memory" or "redis".
	Driver string        `yaml:"driver"`
	TTL    time.Duration `yaml:"ttl"`
	Redis  RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StoreConfig adds a SQL sink next to the workbook. Driver is "", "sqlite"
// or "postgres".
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	Partitions  int32    `yaml:"partitions"`
	Replication int16    `yaml:"replication"`
	Buffer      int      `yaml:"buffer"`
}

type MetricsConfig struct {
	// Addr serves /metrics and /healthz during the run; empty disables it.
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func Default() *Config {
	return &Config{
		Concurrency: 15,
		Sources: SourcesConfig{
			Order:        []string{"nalog", "ogu"},
			Timeout:      30 * time.Second,
			PollInterval: time.Second,
			MaxPolls:     10,
		},
		Retry: RetryConfig{
			MaxAttempts: retry.DefaultMaxAttempts,
			BaseDelay:   retry.DefaultBaseDelay,
			MaxJitter:   retry.DefaultMaxJitter,
		},
		Breaker: BreakerConfig{Cooldown: time.Minute},
		Tor: TorConfig{
			Enabled: true,
			Config:  anonymity.DefaultConfig(),
		},
		Challenge: ChallengeConfig{
			Vocabulary: "0123456789",
			Width:      200,
			Height:     60,
			Timeout:    10 * time.Second,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
			Redis: RedisConfig{
				PoolSize:     10,
				MinIdleConns: 2,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
		},
		Kafka: KafkaConfig{
			Topic:       "inn-resolutions",
			Partitions:  1,
			Replication: 1,
			Buffer:      1024,
		},
		S3:  report.Config{Region: "us-east-1"},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if any) and
// the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.Sources.Order = liststrings.DedupeAndTrimLower(cfg.Sources.Order)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from INNSEARCH_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(envPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = liststrings.SplitList(v)
		}
	}
	// Source names are matched case-insensitively, like the --sources flag.
	names := func(name string, dst *[]string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = liststrings.DedupeAndTrimLower(liststrings.SplitList(v))
		}
	}

	str("INPUT", &c.Input)
	str("OUTPUT", &c.Output)
	num("CONCURRENCY", &c.Concurrency)
	names("SOURCES", &c.Sources.Order)
	dur("SOURCE_TIMEOUT", &c.Sources.Timeout)
	num("RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts)
	dur("RETRY_BASE_DELAY", &c.Retry.BaseDelay)
	dur("RETRY_MAX_JITTER", &c.Retry.MaxJitter)
	num("BREAKER_THRESHOLD", &c.Breaker.Threshold)
	flag("TOR_ENABLED", &c.Tor.Enabled)
	str("TOR_BINARY", &c.Tor.Binary)
	str("TOR_SOCKS_ADDR", &c.Tor.SocksAddr)
	str("TOR_CONTROL_ADDR", &c.Tor.ControlAddr)
	str("TOR_CONTROL_PASSWORD", &c.Tor.ControlPassword)
	str("CHALLENGE_MODEL_URL", &c.Challenge.ModelURL)
	str("CACHE_DRIVER", &c.Cache.Driver)
	str("REDIS_URL", &c.Cache.Redis.URL)
	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("S3_BUCKET", &c.S3.Bucket)
	str("S3_REGION", &c.S3.Region)
	str("S3_ENDPOINT", &c.S3.Endpoint)
	flag("S3_PATH_STYLE", &c.S3.PathStyle)
	str("METRICS_ADDR", &c.Metrics.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File)

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Input == "" {
		errs = append(errs, errors.New("input workbook is required"))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts))
	}
	if len(c.Sources.Order) == 0 {
		errs = append(errs, errors.New("at least one source is required"))
	}
	for _, name := range c.Sources.Order {
		if name != "nalog" && name != "ogu" {
			errs = append(errs, fmt.Errorf("unknown source %q", name))
		}
	}
	switch c.Cache.Driver {
	case "", "memory":
	case "redis":
		if c.Cache.Redis.URL == "" {
			errs = append(errs, errors.New("cache.redis.url is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache driver %q", c.Cache.Driver))
	}
	switch c.Store.Driver {
	case "":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
