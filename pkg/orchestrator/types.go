//go:generate mockgen -destination=./mocks/orchestrator.go . Resolver,Extractor

package orchestrator

import (
	"context"

	"github.com/glorpus-work/crxget/pkg/cache"
	"github.com/glorpus-work/crxget/pkg/config"
	"github.com/glorpus-work/crxget/pkg/download"
	pkgerrors "github.com/glorpus-work/crxget/pkg/errors"
	"github.com/glorpus-work/crxget/pkg/hook"
)

// Resolver turns an extension identifier into a download URL.
type Resolver interface {
	Resolve(id string) (string, error)
}

// Extractor unpacks a persisted archive into the per-extension directory.
type Extractor interface {
	ExtractFile(ctx context.Context, archivePath, id, label string) (string, int, error)
}

// Orchestrator ties the resolver, fetcher, cache, extractor and hooks together.
type Orchestrator struct {
	Resolver  Resolver
	Fetcher   download.Fetcher
	Cache     cache.Cache // optional
	Extractor Extractor   // optional; required when Options.AutoExtract is set
	Runner    hook.Runner // optional
	Options   Options
	Hooks     Hooks // Hooks for progress and event notifications
}

// Options are the configuration switches the pipeline reads. They are fixed for the
// lifetime of an Orchestrator.
type Options struct {
	OutputDir      string
	AutoCleanup    bool
	AutoExtract    bool
	EnableCaching  bool
	ValidateID     bool
	CheckIntegrity bool
	ReverifyOnDisk bool
	Concurrency    int
}

// OptionsFromConfig maps the user configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		OutputDir:      cfg.Output.DefaultDirectory,
		AutoCleanup:    cfg.Output.AutoCleanup,
		AutoExtract:    cfg.Output.AutoExtract,
		EnableCaching:  cfg.Performance.EnableCaching,
		ValidateID:     cfg.Security.ValidateExtensionID,
		CheckIntegrity: cfg.Security.CheckFileIntegrity,
		ReverifyOnDisk: cfg.Security.ReverifyOnDisk,
		Concurrency:    cfg.Performance.MaxConcurrentDownloads,
	}
}

// Event represents a simple progress notification.
type Event struct {
	Phase string // resolving|downloading|decoding|verifying|writing|extracting|done|unavailable|error
	ID    string // extension ID
	Msg   string

	// Set for downloading events only. Total is -1 when unknown.
	Read  int64
	Total int64
}

// Event phases.
const (
	PhaseResolving   = "resolving"
	PhaseDownloading = "downloading"
	PhaseDecoding    = "decoding"
	PhaseVerifying   = "verifying"
	PhaseWriting     = "writing"
	PhaseExtracting  = "extracting"
	PhaseDone        = "done"
	PhaseUnavailable = "unavailable"
	PhaseError       = "error"
)

// Hooks carries callbacks for progress events. During a batch OnEvent is called from
// several goroutines at once.
type Hooks struct {
	OnEvent func(Event)
}

func emit(h Hooks, e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

// AcquireOptions control a single acquisition.
type AcquireOptions struct {
	// Filename overrides the archive name. A missing ".zip" suffix is added and relative
	// names are placed in Options.OutputDir.
	Filename string
	// Label prefixes the archive and extraction directory names.
	Label string
	// KeepContainer keeps the transient .crx even when Options.AutoCleanup is set.
	KeepContainer bool
}

// BatchOptions control AcquireBatch.
type BatchOptions struct {
	Concurrency   int // defaults to Options.Concurrency
	KeepContainer bool
	Labels        map[string]string // per-ID labels
}

// Status is the outcome of one acquisition.
type Status string

// Acquisition statuses.
const (
	StatusSucceeded   Status = "succeeded"
	StatusUnavailable Status = "unavailable"
	StatusFailed      Status = "failed"
)

// Result describes the outcome for one extension.
type Result struct {
	ID             string
	Status         Status
	ArchivePath    string
	ContainerPath  string // set only when the transient container was kept
	ExtractDir     string
	ContainerBytes int64
	ArchiveBytes   int64
	Files          int
	Attempts       int
	FromCache      bool

	Err  error
	Kind pkgerrors.Kind
}

// request is everything derived from an ID before the first fetch. It is never mutated.
type request struct {
	id            string
	url           string
	cacheKey      string
	label         string
	containerPath string
	archivePath   string
}
