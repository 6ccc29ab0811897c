package config

import (
	"time"

	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/logger"
)

// ClientConfig is the single configuration structure shared by the sharing
// client, the table reader and the CLI.
type ClientConfig struct {
	// Profile is the path to the credential file
	Profile string `yaml:"profile" json:"profile"`

	// HTTP settings for the sharing server
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Reader settings for table materialization
	Reader ReaderConfig `yaml:"reader" json:"reader"`

	// Storage settings for non-HTTP file URLs
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Logging configures the zap logger
	Logging logger.Config `yaml:"logging" json:"logging"`

	// Observability toggles tracing and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// HTTPConfig contains transport settings.
type HTTPConfig struct {
	// Timeout bounds a single request, retries included
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// NumRetries is the number of retries after the first attempt
	NumRetries int `yaml:"num_retries" json:"num_retries"`
	// RetryWaitMin is the initial backoff
	RetryWaitMin time.Duration `yaml:"retry_wait_min" json:"retry_wait_min"`
	// RetryWaitMax caps the backoff
	RetryWaitMax time.Duration `yaml:"retry_wait_max" json:"retry_wait_max"`
	// RateLimitPerSec limits requests per second (0 = unlimited)
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// RateLimitBurst is the limiter burst size
	RateLimitBurst int `yaml:"rate_limit_burst" json:"rate_limit_burst"`
	// EnableHTTP2 negotiates HTTP/2 over TLS
	EnableHTTP2 bool `yaml:"enable_http2" json:"enable_http2"`
	// MaxIdleConnsPerHost sizes the connection pool
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host"`
	// UserAgent overrides the built-in user agent
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	// MaxPages caps listing pagination (0 = unlimited)
	MaxPages int `yaml:"max_pages" json:"max_pages"`
	// MaxResults is sent as the page size hint (0 = server default)
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// ReaderConfig contains table materialization settings.
type ReaderConfig struct {
	// MaxConcurrency bounds concurrent file reads
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`
	// BatchSize is the arrow record batch size used when decoding parquet
	BatchSize int64 `yaml:"batch_size" json:"batch_size"`
	// FileTimeout bounds a single file download (0 = none)
	FileTimeout time.Duration `yaml:"file_timeout" json:"file_timeout"`
}

// StorageConfig selects which file URL schemes besides http and https are
// opened. All of them are off by default since the sharing server picks the
// URLs.
type StorageConfig struct {
	// AllowLocalFiles lets file:// URLs read the local filesystem
	AllowLocalFiles bool      `yaml:"allow_local_files" json:"allow_local_files"`
	S3              S3Config  `yaml:"s3" json:"s3"`
	GCS             GCSConfig `yaml:"gcs" json:"gcs"`
}

// S3Config configures the S3 opener
type S3Config struct {
	// Enabled opens s3:// URLs with the default AWS credential chain
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	Region         string `yaml:"region" json:"region"`
	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style" json:"force_path_style"`
}

// GCSConfig configures the GCS opener
type GCSConfig struct {
	// Enabled opens gs:// URLs with application default credentials
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Anonymous bool   `yaml:"anonymous" json:"anonymous"`
}

// ObservabilityConfig configures tracing. Prometheus collectors are always
// registered; exposing them is up to the embedding program.
type ObservabilityConfig struct {
	// EnableTracing exports spans to stdout
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// ServiceName is the trace resource name
	ServiceName string `yaml:"service_name" json:"service_name"`
}

// Default returns a ClientConfig with production defaults.
func Default() *ClientConfig {
	return &ClientConfig{
		HTTP: HTTPConfig{
			Timeout:             30 * time.Second,
			NumRetries:          3,
			RetryWaitMin:        500 * time.Millisecond,
			RetryWaitMax:        10 * time.Second,
			RateLimitPerSec:     0,
			RateLimitBurst:      1,
			EnableHTTP2:         true,
			MaxIdleConnsPerHost: 16,
		},
		Reader: ReaderConfig{
			MaxConcurrency: 8,
			BatchSize:      4096,
		},
		Storage: StorageConfig{
			S3: S3Config{Region: "us-east-1"},
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Observability: ObservabilityConfig{
			ServiceName: "deltashare",
		},
	}
}

// Validate checks that every value is within range.
func (c *ClientConfig) Validate() error {
	if c.HTTP.Timeout <= 0 {
		return errors.New(errors.ErrorTypeConfig, "http.timeout must be positive")
	}
	if c.HTTP.NumRetries < 0 {
		return errors.New(errors.ErrorTypeConfig, "http.num_retries cannot be negative")
	}
	if c.HTTP.RetryWaitMax < c.HTTP.RetryWaitMin {
		return errors.New(errors.ErrorTypeConfig, "http.retry_wait_max must not be below http.retry_wait_min")
	}
	if c.HTTP.RateLimitPerSec < 0 {
		return errors.New(errors.ErrorTypeConfig, "http.rate_limit_per_sec cannot be negative")
	}
	if c.HTTP.RateLimitPerSec > 0 && c.HTTP.RateLimitBurst <= 0 {
		return errors.New(errors.ErrorTypeConfig, "http.rate_limit_burst must be positive when rate limiting")
	}
	if c.HTTP.MaxPages < 0 {
		return errors.New(errors.ErrorTypeConfig, "http.max_pages cannot be negative")
	}
	if c.HTTP.MaxResults < 0 {
		return errors.New(errors.ErrorTypeConfig, "http.max_results cannot be negative")
	}
	if c.Reader.MaxConcurrency <= 0 {
		return errors.New(errors.ErrorTypeConfig, "reader.max_concurrency must be positive")
	}
	if c.Reader.BatchSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "reader.batch_size must be positive")
	}
	if c.Reader.FileTimeout < 0 {
		return errors.New(errors.ErrorTypeConfig, "reader.file_timeout cannot be negative")
	}
	return nil
}

// IsRateLimited returns true if rate limiting is enabled
func (h *HTTPConfig) IsRateLimited() bool {
	return h.RateLimitPerSec > 0
}
