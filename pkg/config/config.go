// Package config provides configuration management for crxget.
// Configuration is read from a YAML file (JSON documents parse as well), merged over
// DefaultConfig and validated once; the acquisition pipeline only ever reads it.
package config

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glorpus-work/crxget/pkg/auth"
	"github.com/glorpus-work/crxget/pkg/errors"
	"github.com/glorpus-work/crxget/pkg/fsutil"
	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Download    DownloadConfig    `yaml:"download"`
	Output      OutputConfig      `yaml:"output"`
	Performance PerformanceConfig `yaml:"performance"`
	Security    SecurityConfig    `yaml:"security"`
	Hooks       HooksConfig       `yaml:"hooks"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DownloadConfig controls the fetcher.
type DownloadConfig struct {
	MaxFileSizeMB     int     `yaml:"max_file_size_mb"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RetryAttempts     int     `yaml:"retry_attempts"`
	RetryDelaySeconds float64 `yaml:"retry_delay_seconds"`
	UserAgent         string  `yaml:"user_agent"`
	BaseURL           string  `yaml:"base_url"`
	ProdVersion       string  `yaml:"prod_version"`
	AuthType          string  `yaml:"auth_type"`
	AuthUsername      string  `yaml:"auth_username"`
	AuthSecret        string  `yaml:"auth_secret" secret:"true"`
	AuthHeader        string  `yaml:"auth_header"`
}

// OutputConfig controls where results land.
type OutputConfig struct {
	DefaultDirectory string `yaml:"default_directory"`
	ExtractDirectory string `yaml:"extract_directory"`
	AutoCleanup      bool   `yaml:"auto_cleanup"`
	AutoExtract      bool   `yaml:"auto_extract"`
}

// PerformanceConfig controls concurrency and caching.
type PerformanceConfig struct {
	MaxConcurrentDownloads int  `yaml:"max_concurrent_downloads"`
	ChunkSize              int  `yaml:"chunk_size"`
	EnableCaching          bool `yaml:"enable_caching"`
}

// SecurityConfig toggles validation steps.
type SecurityConfig struct {
	ValidateExtensionID bool `yaml:"validate_extension_id"`
	CheckFileIntegrity  bool `yaml:"check_file_integrity"`
	ReverifyOnDisk      bool `yaml:"reverify_on_disk"`
}

// HooksConfig points at optional Tengo scripts.
type HooksConfig struct {
	PostAcquire string `yaml:"post_acquire"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default configuration values.
const (
	DefaultMaxFileSizeMB          = 100
	DefaultTimeoutSeconds         = 30
	DefaultRetryAttempts          = 3
	DefaultRetryDelaySeconds      = 2.0
	DefaultMaxConcurrentDownloads = 3
	DefaultChunkSize              = 8192
	DefaultUserAgent              = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultBaseURL          = "https://clients2.google.com/service/update2/crx"
	DefaultProdVersion      = "120.0.0.0"
	DefaultOutputDirectory  = "./downloads"
	DefaultExtractDirectory = "./extensions"

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Download: DownloadConfig{
			MaxFileSizeMB:     DefaultMaxFileSizeMB,
			TimeoutSeconds:    DefaultTimeoutSeconds,
			RetryAttempts:     DefaultRetryAttempts,
			RetryDelaySeconds: DefaultRetryDelaySeconds,
			UserAgent:         DefaultUserAgent,
			BaseURL:           DefaultBaseURL,
			ProdVersion:       DefaultProdVersion,
		},
		Output: OutputConfig{
			DefaultDirectory: DefaultOutputDirectory,
			ExtractDirectory: DefaultExtractDirectory,
			AutoCleanup:      true,
			AutoExtract:      true,
		},
		Performance: PerformanceConfig{
			MaxConcurrentDownloads: DefaultMaxConcurrentDownloads,
			ChunkSize:              DefaultChunkSize,
			EnableCaching:          true,
		},
		Security: SecurityConfig{
			ValidateExtensionID: true,
			CheckFileIntegrity:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader decodes configuration over the defaults, so a partial document
// only overrides the keys it names. Unknown keys are rejected.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	config := DefaultConfig()

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes the configuration atomically.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	if err := os.MkdirAll(filepath.Dir(path), fsutil.DirModeSecure); err != nil {
		return errors.Wrap(errors.ErrConfigDirectory, err.Error())
	}

	data, err := c.ToYAML()
	if err != nil {
		return err
	}

	if err := fsutil.WriteFileAtomic(path, data, fsutil.FileModeSecure); err != nil {
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}
	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	var b strings.Builder
	encoder := yaml.NewEncoder(&b)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	if err := encoder.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	return []byte(b.String()), nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	for _, check := range []func() error{c.validateDownload, c.validateOutput, c.validatePerformance, c.validateLogging} {
		if err := check(); err != nil {
			return fmt.Errorf("%w: %w", errors.ErrConfigValidation, err)
		}
	}
	return nil
}

func (c *Config) validateDownload() error {
	d := c.Download
	if d.MaxFileSizeMB < 1 {
		return fmt.Errorf("download.max_file_size_mb must be positive, got %d", d.MaxFileSizeMB)
	}
	if d.TimeoutSeconds < 1 {
		return fmt.Errorf("download.timeout_seconds must be positive, got %d", d.TimeoutSeconds)
	}
	if d.RetryAttempts < 1 {
		return fmt.Errorf("download.retry_attempts must be at least 1, got %d", d.RetryAttempts)
	}
	if d.RetryDelaySeconds < 0 {
		return fmt.Errorf("download.retry_delay_seconds cannot be negative, got %g", d.RetryDelaySeconds)
	}
	if !strings.HasPrefix(d.BaseURL, "http://") && !strings.HasPrefix(d.BaseURL, "https://") {
		return fmt.Errorf("download.base_url must be an http(s) URL, got %q", d.BaseURL)
	}
	if _, err := version.NewVersion(d.ProdVersion); err != nil {
		return fmt.Errorf("download.prod_version %q: %w", d.ProdVersion, err)
	}
	if _, err := d.Authenticator(); err != nil {
		return fmt.Errorf("download.auth_type: %w", err)
	}
	return nil
}

func (c *Config) validateOutput() error {
	if strings.TrimSpace(c.Output.DefaultDirectory) == "" {
		return fmt.Errorf("output.default_directory cannot be empty")
	}
	if c.Output.AutoExtract && strings.TrimSpace(c.Output.ExtractDirectory) == "" {
		return fmt.Errorf("output.extract_directory cannot be empty when auto_extract is enabled")
	}
	return nil
}

func (c *Config) validatePerformance() error {
	if c.Performance.MaxConcurrentDownloads < 1 {
		return fmt.Errorf("performance.max_concurrent_downloads must be at least 1, got %d", c.Performance.MaxConcurrentDownloads)
	}
	if c.Performance.ChunkSize < 1 {
		return fmt.Errorf("performance.chunk_size must be positive, got %d", c.Performance.ChunkSize)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.Logging.Format)
	}
	return nil
}

// applyDefaults fills in string values left empty by the document.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Download.UserAgent == "" {
		c.Download.UserAgent = defaults.Download.UserAgent
	}
	if c.Download.BaseURL == "" {
		c.Download.BaseURL = defaults.Download.BaseURL
	}
	if c.Download.ProdVersion == "" {
		c.Download.ProdVersion = defaults.Download.ProdVersion
	}
	if c.Output.DefaultDirectory == "" {
		c.Output.DefaultDirectory = defaults.Output.DefaultDirectory
	}
	if c.Output.ExtractDirectory == "" {
		c.Output.ExtractDirectory = defaults.Output.ExtractDirectory
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
}

// Authenticator builds the credentials applied to every download request.
// It is nil unless auth_type is set.
func (d DownloadConfig) Authenticator() (auth.Authenticator, error) {
	return auth.New(auth.Type(d.AuthType), d.AuthUsername, d.AuthSecret, d.AuthHeader)
}

// Timeout returns the per-attempt network timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Download.TimeoutSeconds) * time.Second
}

// RetryDelay returns the linear backoff unit.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Download.RetryDelaySeconds * float64(time.Second))
}

// MaxBytes returns the download size cap in bytes.
func (c *Config) MaxBytes() int64 {
	return int64(c.Download.MaxFileSizeMB) << 20
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "crxget", "config.yaml"), nil
}
