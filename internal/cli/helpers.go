package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/glorpus-work/crxget/internal/logger"
	"github.com/glorpus-work/crxget/pkg/archive"
	"github.com/glorpus-work/crxget/pkg/cache"
	"github.com/glorpus-work/crxget/pkg/config"
	"github.com/glorpus-work/crxget/pkg/download"
	"github.com/glorpus-work/crxget/pkg/extension"
	"github.com/glorpus-work/crxget/pkg/hook"
	"github.com/glorpus-work/crxget/pkg/orchestrator"
	"github.com/glorpus-work/crxget/pkg/platform"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	Verbose    *bool
	Quiet      *bool
	LogLevel   *string
	LogFormat  *string
)

// loadConfig loads the configuration file (or the defaults) and configures logging from it
// and the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	initLogging(cfg)
	return cfg, nil
}

func getConfigPath() string {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath
	}

	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		// An empty path is rejected with a descriptive error once the file is read or written.
		logger.Warn("Failed to get default config path, using empty path", logger.Fields{"error": err})
		return ""
	}
	return defaultPath
}

// downloadPolicy maps the download and performance settings onto a fetcher policy.
func downloadPolicy(cfg *config.Config) (download.Policy, error) {
	authenticator, err := cfg.Download.Authenticator()
	if err != nil {
		return download.Policy{}, err
	}
	return download.Policy{
		MaxAttempts:    cfg.Download.RetryAttempts,
		BaseDelay:      cfg.RetryDelay(),
		AttemptTimeout: cfg.Timeout(),
		MaxBytes:       cfg.MaxBytes(),
		ChunkSize:      cfg.Performance.ChunkSize,
		UserAgent:      cfg.Download.UserAgent,
		Auth:           authenticator,
	}, nil
}

// loadHookRunner returns the post-acquire script runner, or nil when no script is configured.
func loadHookRunner(cfg *config.Config) (hook.Runner, error) {
	if cfg.Hooks.PostAcquire == "" {
		return nil, nil
	}
	executor := hook.NewTengoExecutor()
	if err := hook.LoadScriptFile(executor, hook.PostAcquire, cfg.Hooks.PostAcquire); err != nil {
		return nil, err
	}
	logger.Debug("Loaded post-acquire hook", logger.Fields{"path": cfg.Hooks.PostAcquire})
	return executor, nil
}

// newOrchestrator wires the acquisition pipeline from cfg.
func newOrchestrator(ctx context.Context, cfg *config.Config, hooks orchestrator.Hooks) (*orchestrator.Orchestrator, error) {
	p, err := platform.Detect(ctx)
	if err != nil {
		logger.Debug("Falling back to runtime platform", logger.Fields{"error": err})
		p = platform.CurrentPlatform()
	}

	resolver, err := extension.NewResolver(cfg.Download.BaseURL, p, cfg.Download.ProdVersion)
	if err != nil {
		return nil, err
	}

	runner, err := loadHookRunner(cfg)
	if err != nil {
		return nil, err
	}

	var extractor orchestrator.Extractor
	if cfg.Output.AutoExtract {
		extractor = archive.NewExtractor(cfg.Output.ExtractDirectory)
	}

	var c cache.Cache
	if cfg.Performance.EnableCaching {
		c = cache.NewMemory()
	}

	logger.Debug("Acquisition pipeline configured", logger.Fields{
		"platform":    p.String(),
		"auth":        cfg.Download.AuthType,
		"output_dir":  cfg.Output.DefaultDirectory,
		"extract_dir": cfg.Output.ExtractDirectory,
		"workers":     cfg.Performance.MaxConcurrentDownloads,
	})

	policy, err := downloadPolicy(cfg)
	if err != nil {
		return nil, err
	}
	fetcher := download.NewFetcher(&http.Client{}, policy)
	return orchestrator.New(resolver, fetcher, c, extractor, runner, orchestrator.OptionsFromConfig(cfg), hooks), nil
}
