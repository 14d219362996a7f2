package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the FAL queue API and the retry/throttle policy.
const (
	DefaultQueueURL          = "https://queue.fal.run"
	DefaultEndpoint          = "fal-ai/qwen-image-edit-plus-lora-gallery/multiple-angles"
	DefaultOutputDir         = "generated_views"
	DefaultThrottleDelay     = 1500 * time.Millisecond
	DefaultMaxRetries        = 5
	DefaultInitialRetryDelay = 2 * time.Second
	DefaultRetryMultiplier   = 2.0
	DefaultMaxRetryDelay     = 60 * time.Second
	DefaultPollInterval      = 500 * time.Millisecond
	DefaultRequestTimeout    = 300 * time.Second
	DefaultMinImageDimension = 64
	DefaultLogFile           = "multiangle.log"
	DefaultHistoryDBName     = "history.db"
)

// Config holds all configuration values
type Config struct {
	// FAL credentials and endpoints
	FalKey   string
	QueueURL string
	Endpoint string

	// Output
	OutputDir   string
	HistoryDB   string // empty disables run history
	MetricsFile string // empty disables the metrics textfile

	// Retry/throttle policy
	ThrottleDelay     time.Duration
	MaxRetries        int // total attempts per angle, including the first
	InitialRetryDelay time.Duration
	RetryMultiplier   float64
	MaxRetryDelay     time.Duration
	PollInterval      time.Duration
	RequestTimeout    time.Duration

	// Input validation
	MinImageDimension int

	// Logging
	LogLevel string
	LogFile  string
	DevMode  bool

	AllowSelfSignedCerts bool
}

// fileConfig mirrors Config for the optional YAML file. Pointer fields
// distinguish "absent" from a zero value.
type fileConfig struct {
	FalKey               *string  `yaml:"fal_key"`
	QueueURL             *string  `yaml:"fal_queue_url"`
	Endpoint             *string  `yaml:"fal_endpoint"`
	OutputDir            *string  `yaml:"output_dir"`
	HistoryDB            *string  `yaml:"history_db"`
	MetricsFile          *string  `yaml:"metrics_file"`
	ThrottleDelayMS      *int64   `yaml:"throttle_delay_ms"`
	MaxRetries           *int     `yaml:"max_retries"`
	InitialRetryDelayMS  *int64   `yaml:"initial_retry_delay_ms"`
	RetryMultiplier      *float64 `yaml:"retry_backoff_multiplier"`
	MaxRetryDelayMS      *int64   `yaml:"max_retry_delay_ms"`
	PollIntervalMS       *int64   `yaml:"poll_interval_ms"`
	RequestTimeout       *float64 `yaml:"request_timeout"`
	MinImageDimension    *int     `yaml:"min_image_dimension"`
	LogLevel             *string  `yaml:"log_level"`
	LogFile              *string  `yaml:"log_file"`
	DevMode              *bool    `yaml:"dev_mode"`
	AllowSelfSignedCerts *bool    `yaml:"allow_self_signed_certs"`
}

// DefaultConfig returns a Config populated with built-in defaults and no credentials.
func DefaultConfig() *Config {
	return &Config{
		QueueURL:          DefaultQueueURL,
		Endpoint:          DefaultEndpoint,
		OutputDir:         DefaultOutputDir,
		HistoryDB:         filepath.Join(DefaultOutputDir, DefaultHistoryDBName),
		ThrottleDelay:     DefaultThrottleDelay,
		MaxRetries:        DefaultMaxRetries,
		InitialRetryDelay: DefaultInitialRetryDelay,
		RetryMultiplier:   DefaultRetryMultiplier,
		MaxRetryDelay:     DefaultMaxRetryDelay,
		PollInterval:      DefaultPollInterval,
		RequestTimeout:    DefaultRequestTimeout,
		MinImageDimension: DefaultMinImageDimension,
		LogLevel:          "info",
		LogFile:           DefaultLogFile,
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file at
// configPath, and the environment, in that order of increasing precedence.
// A missing FAL_KEY is reported as a MISSING_AUTH ConfigError.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	historyExplicit := false

	if configPath != "" {
		fc, err := readFileConfig(configPath)
		if err != nil {
			return nil, err
		}
		historyExplicit = fc.HistoryDB != nil
		cfg.applyFile(fc)
	}

	cfg.FalKey = GetEnvOrDefault("FAL_KEY", cfg.FalKey)
	cfg.QueueURL = GetEnvOrDefault("FAL_QUEUE_URL", cfg.QueueURL)
	cfg.Endpoint = GetEnvOrDefault("FAL_ENDPOINT", cfg.Endpoint)
	cfg.OutputDir = GetEnvOrDefault("OUTPUT_DIR", cfg.OutputDir)
	cfg.MetricsFile = GetEnvOrDefault("METRICS_FILE", cfg.MetricsFile)

	cfg.ThrottleDelay = ParseMillisEnv("THROTTLE_DELAY_MS", cfg.ThrottleDelay)
	cfg.MaxRetries = ParseIntEnv("MAX_RETRIES", cfg.MaxRetries)
	cfg.InitialRetryDelay = ParseMillisEnv("INITIAL_RETRY_DELAY_MS", cfg.InitialRetryDelay)
	cfg.RetryMultiplier = ParseFloat64Env("RETRY_BACKOFF_MULTIPLIER", cfg.RetryMultiplier)
	cfg.MaxRetryDelay = ParseMillisEnv("MAX_RETRY_DELAY_MS", cfg.MaxRetryDelay)
	cfg.PollInterval = ParseMillisEnv("POLL_INTERVAL_MS", cfg.PollInterval)
	cfg.RequestTimeout = ParseDurationEnv("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.MinImageDimension = ParseIntEnv("MIN_IMAGE_DIMENSION", cfg.MinImageDimension)

	cfg.LogLevel = GetEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = GetEnvOrDefault("LOG_FILE", cfg.LogFile)
	cfg.DevMode = ParseBoolEnv("DEV_MODE", cfg.DevMode)
	cfg.AllowSelfSignedCerts = ParseBoolEnv("ALLOW_SELF_SIGNED_CERTS", cfg.AllowSelfSignedCerts)

	// HISTORY_DB set to an empty string disables history, so presence matters here.
	if v, ok := os.LookupEnv("HISTORY_DB"); ok {
		cfg.HistoryDB = v
		historyExplicit = true
	}
	if !historyExplicit {
		cfg.HistoryDB = filepath.Join(cfg.OutputDir, DefaultHistoryDBName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrInvalidConfigFile(path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, ErrInvalidConfigFile(path, err)
	}
	return &fc, nil
}

func (c *Config) applyFile(fc *fileConfig) {
	setString(&c.FalKey, fc.FalKey)
	setString(&c.QueueURL, fc.QueueURL)
	setString(&c.Endpoint, fc.Endpoint)
	setString(&c.OutputDir, fc.OutputDir)
	setString(&c.HistoryDB, fc.HistoryDB)
	setString(&c.MetricsFile, fc.MetricsFile)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFile, fc.LogFile)
	setMillis(&c.ThrottleDelay, fc.ThrottleDelayMS)
	setMillis(&c.InitialRetryDelay, fc.InitialRetryDelayMS)
	setMillis(&c.MaxRetryDelay, fc.MaxRetryDelayMS)
	setMillis(&c.PollInterval, fc.PollIntervalMS)
	if fc.MaxRetries != nil {
		c.MaxRetries = *fc.MaxRetries
	}
	if fc.RetryMultiplier != nil {
		c.RetryMultiplier = *fc.RetryMultiplier
	}
	if fc.RequestTimeout != nil {
		c.RequestTimeout = time.Duration(*fc.RequestTimeout * float64(time.Second))
	}
	if fc.MinImageDimension != nil {
		c.MinImageDimension = *fc.MinImageDimension
	}
	if fc.DevMode != nil {
		c.DevMode = *fc.DevMode
	}
	if fc.AllowSelfSignedCerts != nil {
		c.AllowSelfSignedCerts = *fc.AllowSelfSignedCerts
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setMillis(dst *time.Duration, v *int64) {
	if v != nil && *v >= 0 {
		*dst = time.Duration(*v) * time.Millisecond
	}
}

// Validate checks credentials and policy knobs. It returns the first problem found.
func (c *Config) Validate() error {
	if c.FalKey == "" {
		return ErrMissingAuth("FAL_KEY")
	}

	u, err := url.Parse(c.QueueURL)
	if err != nil {
		return ErrInvalidServerURL(c.QueueURL, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidServerURL(c.QueueURL, "scheme must be http or https")
	}
	if u.Host == "" {
		return ErrInvalidServerURL(c.QueueURL, "missing host")
	}

	if c.Endpoint == "" {
		return ErrMissingConfig("FAL_ENDPOINT")
	}
	if c.OutputDir == "" {
		return ErrMissingConfig("OUTPUT_DIR")
	}
	if c.MaxRetries < 1 {
		return ErrInvalidParameter("MAX_RETRIES", c.MaxRetries, 1, "unbounded")
	}
	if c.RetryMultiplier < 1 {
		return ErrInvalidParameter("RETRY_BACKOFF_MULTIPLIER", c.RetryMultiplier, 1, "unbounded")
	}
	if c.MaxRetryDelay < c.InitialRetryDelay {
		return &ConfigError{
			Code:    ErrCodeInvalidParameter,
			Message: fmt.Sprintf("MAX_RETRY_DELAY_MS (%s) is smaller than INITIAL_RETRY_DELAY_MS (%s)", c.MaxRetryDelay, c.InitialRetryDelay),
		}
	}
	if c.PollInterval <= 0 {
		return ErrInvalidParameter("POLL_INTERVAL_MS", c.PollInterval.Milliseconds(), 1, "unbounded")
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidParameter("REQUEST_TIMEOUT", c.RequestTimeout.Seconds(), 1, "unbounded")
	}
	if c.MinImageDimension < 1 {
		return ErrInvalidParameter("MIN_IMAGE_DIMENSION", c.MinImageDimension, 1, "unbounded")
	}
	return nil
}

// GetHTTPClient returns an HTTP client configured with TLS settings based on AllowSelfSignedCerts.
// Every outbound request to FAL and its CDN goes through a client built here.
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}
