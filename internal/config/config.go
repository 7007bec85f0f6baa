package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Chichichkin/RedisLoggingAgent/internal/logging"
	"github.com/Chichichkin/RedisLoggingAgent/internal/logging/endpoint"
)

// Sink holds the options recognized by the Redis sink. Durations are
// configured in milliseconds.
type Sink struct {
	Endpoints             string `yaml:"endpoints"`
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	Username              string `yaml:"username"`
	Password              string `yaml:"password"`
	Key                   string `yaml:"key"`
	QueueCapacity         int    `yaml:"queueCapacity"`
	BatchCapacity         int    `yaml:"batchCapacity"`
	FlushIntervalMillis   int64  `yaml:"flushIntervalMillis"`
	FlushPartialBatches   bool   `yaml:"flushPartialBatches"`
	PurgeOnPushFailure    bool   `yaml:"purgeOnPushFailure"`
	ShutdownTimeoutMillis int64  `yaml:"shutdownTimeoutMillis"`
	ExposeMetrics         bool   `yaml:"exposeMetrics"`
	StrictAuth            bool   `yaml:"strictAuth"`
	DialTimeoutMillis     int64  `yaml:"dialTimeoutMillis"`
	Encoding              string `yaml:"encoding"`
	Compression           string `yaml:"compression"`
}

// legacySink picks up deprecated and alternative option names. Pointers
// tell an absent key from a zero value.
type legacySink struct {
	Sink struct {
		// Deprecated alias of flushIntervalMillis, used only when the
		// latter is absent.
		Period              int64  `yaml:"period"`
		FlushIntervalMillis *int64 `yaml:"flushIntervalMillis"`

		DestinationKey          string `yaml:"destinationKey"`
		FlushPartialBatchesOnly *bool  `yaml:"flushPartialBatchesOnly"`
		FlushPartialBatches     *bool  `yaml:"flushPartialBatches"`
	} `yaml:"sink"`
}

type Daemon struct {
	LogRootPath     string        `yaml:"logRootPath"`
	NodeName        string        `yaml:"nodeName"`
	Workers         int           `yaml:"workers"`
	FileQueueSize   int           `yaml:"fileQueueSize"`
	ScanInterval    time.Duration `yaml:"scanInterval"`
	FileIdleTimeout time.Duration `yaml:"fileIdleTimeout"`
	ReportInterval  time.Duration `yaml:"reportInterval"`
}

type Config struct {
	Sink        Sink   `yaml:"sink"`
	Daemon      Daemon `yaml:"daemon"`
	MetricsAddr string `yaml:"metricsAddr"`
	LogLevel    string `yaml:"logLevel"`
}

func DefaultSink() Sink {
	return Sink{
		Host:                  "localhost",
		Port:                  6379,
		QueueCapacity:         5000,
		BatchCapacity:         100,
		FlushIntervalMillis:   500,
		PurgeOnPushFailure:    true,
		ShutdownTimeoutMillis: 1000,
		ExposeMetrics:         true,
		DialTimeoutMillis:     2000,
		Encoding:              "json",
		Compression:           "none",
	}
}

func Default() Config {
	return Config{
		Sink: DefaultSink(),
		Daemon: Daemon{
			LogRootPath:     "/var/log/pods",
			NodeName:        "unknown",
			Workers:         4,
			FileQueueSize:   50,
			ScanInterval:    30 * time.Second,
			FileIdleTimeout: 5 * time.Minute,
			ReportInterval:  30 * time.Second,
		},
		MetricsAddr: ":9090",
		LogLevel:    "info",
	}
}

// Load starts from the defaults, overlays the yaml file at path (if any) and
// then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		var legacy legacySink
		if err := yaml.Unmarshal(raw, &legacy); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		legacy.apply(&cfg.Sink)
	}
	cfg.applyEnv()
	return cfg, nil
}

// apply copies alias values into s where the primary key was not set.
func (l legacySink) apply(s *Sink) {
	if l.Sink.FlushIntervalMillis == nil && l.Sink.Period > 0 {
		s.FlushIntervalMillis = l.Sink.Period
	}
	if s.Key == "" {
		s.Key = l.Sink.DestinationKey
	}
	if l.Sink.FlushPartialBatches == nil && l.Sink.FlushPartialBatchesOnly != nil {
		s.FlushPartialBatches = *l.Sink.FlushPartialBatchesOnly
	}
}

func (c *Config) applyEnv() {
	s := &c.Sink
	s.Endpoints = getEnv("REDIS_ENDPOINTS", s.Endpoints)
	s.Host = getEnv("REDIS_HOST", s.Host)
	s.Port = getEnvAsInt("REDIS_PORT", s.Port)
	s.Username = getEnv("REDIS_USERNAME", s.Username)
	s.Password = getEnv("REDIS_PASSWORD", s.Password)
	s.Key = getEnv("REDIS_KEY", s.Key)
	s.QueueCapacity = getEnvAsInt("QUEUE_CAPACITY", s.QueueCapacity)
	s.BatchCapacity = getEnvAsInt("BATCH_CAPACITY", s.BatchCapacity)
	s.FlushIntervalMillis = int64(getEnvAsInt("FLUSH_INTERVAL_MILLIS", int(s.FlushIntervalMillis)))
	s.PurgeOnPushFailure = getEnvAsBool("PURGE_ON_PUSH_FAILURE", s.PurgeOnPushFailure)
	s.FlushPartialBatches = getEnvAsBool("FLUSH_PARTIAL_BATCHES", s.FlushPartialBatches)
	s.ShutdownTimeoutMillis = int64(getEnvAsInt("SHUTDOWN_TIMEOUT_MILLIS", int(s.ShutdownTimeoutMillis)))
	s.DialTimeoutMillis = int64(getEnvAsInt("DIAL_TIMEOUT_MILLIS", int(s.DialTimeoutMillis)))
	s.ExposeMetrics = getEnvAsBool("EXPOSE_METRICS", s.ExposeMetrics)
	s.StrictAuth = getEnvAsBool("STRICT_AUTH", s.StrictAuth)
	s.Encoding = getEnv("ENCODING", s.Encoding)
	s.Compression = getEnv("COMPRESSION", s.Compression)

	d := &c.Daemon
	d.LogRootPath = getEnv("LOG_PATH", d.LogRootPath)
	d.NodeName = getEnv("NODE_NAME", d.NodeName)
	d.Workers = getEnvAsInt("WORKERS", d.Workers)
	d.ScanInterval = getEnvAsDuration("SCAN_INTERVAL", d.ScanInterval)
	d.FileIdleTimeout = getEnvAsDuration("FILE_IDLE_TIMEOUT", d.FileIdleTimeout)

	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

func (s Sink) FlushInterval() time.Duration {
	return time.Duration(s.FlushIntervalMillis) * time.Millisecond
}

func (s Sink) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutMillis) * time.Millisecond
}

func (s Sink) DialTimeout() time.Duration {
	return time.Duration(s.DialTimeoutMillis) * time.Millisecond
}

// EndpointList resolves the endpoints to fail over between. A non-empty
// Endpoints list wins over Host/Port.
func (s Sink) EndpointList() ([]endpoint.Endpoint, error) {
	if strings.TrimSpace(s.Endpoints) != "" {
		return endpoint.ParseList(s.Endpoints)
	}
	if s.Host == "" {
		return nil, logging.NewConfigError("host", "must set 'endpoints' or 'host'")
	}
	ep, err := endpoint.Parse(fmt.Sprintf("%s:%d", s.Host, s.Port))
	if err != nil {
		return nil, logging.NewConfigError("port", "invalid host/port %s:%d", s.Host, s.Port)
	}
	return []endpoint.Endpoint{ep}, nil
}

// Validate returns a *logging.ConfigError for the first unusable option.
func (s Sink) Validate() error {
	if s.Key == "" {
		return logging.NewConfigError("key", "must set 'key'")
	}
	if s.FlushInterval() <= 0 {
		return logging.NewConfigError("flushIntervalMillis", "must be > 0, got %d", s.FlushIntervalMillis)
	}
	if s.QueueCapacity <= 0 {
		return logging.NewConfigError("queueCapacity", "must be > 0, got %d", s.QueueCapacity)
	}
	if s.BatchCapacity <= 0 {
		return logging.NewConfigError("batchCapacity", "must be > 0, got %d", s.BatchCapacity)
	}
	// 0 waits for the worker without a bound.
	if s.ShutdownTimeoutMillis < 0 {
		return logging.NewConfigError("shutdownTimeoutMillis", "must be >= 0, got %d", s.ShutdownTimeoutMillis)
	}
	if s.DialTimeoutMillis <= 0 {
		return logging.NewConfigError("dialTimeoutMillis", "must be > 0, got %d", s.DialTimeoutMillis)
	}
	if _, err := s.EndpointList(); err != nil {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	if err := c.Sink.Validate(); err != nil {
		return err
	}
	if c.Daemon.Workers <= 0 {
		return logging.NewConfigError("daemon.workers", "must be > 0, got %d", c.Daemon.Workers)
	}
	if c.Daemon.ScanInterval <= 0 {
		return logging.NewConfigError("daemon.scanInterval", "must be > 0, got %s", c.Daemon.ScanInterval)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}
