package cli

import (
	"github.com/glorpus-work/crxget/internal/logger"
	"github.com/glorpus-work/crxget/pkg/config"
)

// logLevel picks the effective log level. An explicit --log-level wins over
// --verbose and --quiet, which win over the configuration file.
func logLevel(cfg *config.Config) string {
	switch {
	case LogLevel != nil && *LogLevel != "":
		return *LogLevel
	case Verbose != nil && *Verbose:
		return "debug"
	case Quiet != nil && *Quiet:
		return "error"
	default:
		return cfg.Logging.Level
	}
}

func logFormat(cfg *config.Config) logger.OutputFormat {
	format := cfg.Logging.Format
	if LogFormat != nil && *LogFormat != "" {
		format = *LogFormat
	}
	if format == string(logger.FormatJSON) {
		return logger.FormatJSON
	}
	return logger.FormatText
}

// initLogging configures the global logger for CLI operations
func initLogging(cfg *config.Config) {
	level := logLevel(cfg)
	if !logger.ValidLevel(level) {
		logger.Warn("Unknown log level, using info", logger.Fields{"level": level})
		level = "info"
	}
	logger.InitLogger(level, logFormat(cfg))
}

// quiet reports whether progress and summaries should be suppressed.
func quiet() bool {
	return Quiet != nil && *Quiet
}
