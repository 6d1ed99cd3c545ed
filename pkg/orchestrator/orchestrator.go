package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/crxget/internal/logger"
	"github.com/glorpus-work/crxget/pkg/archive"
	"github.com/glorpus-work/crxget/pkg/cache"
	"github.com/glorpus-work/crxget/pkg/crx"
	"github.com/glorpus-work/crxget/pkg/download"
	pkgerrors "github.com/glorpus-work/crxget/pkg/errors"
	"github.com/glorpus-work/crxget/pkg/extension"
	"github.com/glorpus-work/crxget/pkg/fsutil"
	"github.com/glorpus-work/crxget/pkg/hook"
)

const (
	containerExt = ".crx"
	archiveExt   = ".zip"
)

// New constructs an Orchestrator from its collaborators. Helper for wiring.
// Hooks can be empty if no event handling is needed.
func New(resolver Resolver, fetcher download.Fetcher, c cache.Cache, extractor Extractor, runner hook.Runner, opts Options, hooks Hooks) *Orchestrator {
	return &Orchestrator{
		Resolver:  resolver,
		Fetcher:   fetcher,
		Cache:     c,
		Extractor: extractor,
		Runner:    runner,
		Options:   opts,
		Hooks:     hooks,
	}
}

func (o *Orchestrator) check() error {
	if o.Resolver == nil {
		return fmt.Errorf("resolver is not configured")
	}
	if o.Fetcher == nil {
		return fmt.Errorf("fetcher is not configured")
	}
	if o.Options.OutputDir == "" {
		return fmt.Errorf("output directory is not configured")
	}
	if o.Options.AutoExtract && o.Extractor == nil {
		return fmt.Errorf("extractor is not configured")
	}
	return nil
}

// Acquire downloads, converts and optionally extracts one extension.
//
// The returned Result is never nil. A failed acquisition returns the same error that is
// stored in Result.Err. An extension the store refuses to serve yields StatusUnavailable
// and a nil error.
func (o *Orchestrator) Acquire(ctx context.Context, id string, opts AcquireOptions) (*Result, error) {
	if err := o.check(); err != nil {
		return &Result{ID: id, Status: StatusFailed, Err: err, Kind: pkgerrors.KindUnknown}, err
	}
	res := o.acquire(ctx, id, opts)
	return res, res.Err
}

func (o *Orchestrator) acquire(ctx context.Context, id string, opts AcquireOptions) *Result {
	res := &Result{ID: id}

	if err := ctx.Err(); err != nil {
		return o.fail(res, pkgerrors.Mark(err, pkgerrors.ErrCanceled))
	}
	if o.Options.ValidateID {
		if err := extension.ValidateID(id); err != nil {
			return o.fail(res, err)
		}
	}

	emit(o.Hooks, Event{Phase: PhaseResolving, ID: id})
	req, err := o.newRequest(id, opts)
	if err != nil {
		return o.fail(res, err)
	}

	data, unavailable, err := o.obtain(ctx, req, res)
	if err != nil {
		return o.fail(res, err)
	}
	if unavailable {
		res.Status = StatusUnavailable
		res.Kind = pkgerrors.KindUnavailable
		logger.Info("Extension is not available for download", logger.Fields{"id": id})
		emit(o.Hooks, Event{Phase: PhaseUnavailable, ID: id})
		return res
	}
	res.ContainerBytes = int64(len(data))

	wroteArchive := false
	if err := o.convert(ctx, req, data, res, &wroteArchive); err != nil {
		o.discard(req, wroteArchive)
		return o.fail(res, err)
	}

	if o.Options.AutoCleanup && !opts.KeepContainer {
		if err := fsutil.RemoveIfExists(req.containerPath); err != nil {
			logger.Warn("Failed to remove transient container", logger.Fields{"path": req.containerPath, "error": err})
		}
	} else {
		res.ContainerPath = req.containerPath
	}

	res.Status = StatusSucceeded
	logger.Info("Acquired extension", logger.Fields{
		"id":      id,
		"archive": res.ArchivePath,
		"bytes":   res.ArchiveBytes,
		"cached":  res.FromCache,
	})
	emit(o.Hooks, Event{Phase: PhaseDone, ID: id, Msg: res.ArchivePath})
	return res
}

func (o *Orchestrator) newRequest(id string, opts AcquireOptions) (request, error) {
	url, err := o.Resolver.Resolve(id)
	if err != nil {
		return request{}, err
	}
	return request{
		id:            id,
		url:           url,
		cacheKey:      cache.Key(id, url),
		label:         opts.Label,
		containerPath: filepath.Join(o.Options.OutputDir, id+containerExt),
		archivePath:   o.archivePath(id, opts),
	}, nil
}

// archivePath returns "<label>_<id>.zip" or the caller's override below the output directory.
func (o *Orchestrator) archivePath(id string, opts AcquireOptions) string {
	name := opts.Filename
	if name == "" {
		return filepath.Join(o.Options.OutputDir, archive.DirName(opts.Label, id)+archiveExt)
	}
	if !strings.EqualFold(filepath.Ext(name), archiveExt) {
		name += archiveExt
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.Options.OutputDir, name)
}

// obtain returns the container bytes from the cache or the network.
func (o *Orchestrator) obtain(ctx context.Context, req request, res *Result) ([]byte, bool, error) {
	caching := o.Options.EnableCaching && o.Cache != nil
	if caching {
		if data, ok := o.Cache.Get(req.cacheKey); ok {
			logger.Debug("Using cached container", logger.Fields{"id": req.id, "key": req.cacheKey})
			res.FromCache = true
			return data, false, nil
		}
	}

	emit(o.Hooks, Event{Phase: PhaseDownloading, ID: req.id, Msg: req.url, Total: -1})
	payload, err := o.Fetcher.Fetch(ctx, req.url, func(read, total int64) {
		emit(o.Hooks, Event{Phase: PhaseDownloading, ID: req.id, Read: read, Total: total})
	})
	if err != nil {
		return nil, false, err
	}
	res.Attempts = payload.Attempts
	if payload.Unavailable {
		return nil, true, nil
	}

	if caching {
		o.Cache.Put(req.cacheKey, payload.Data)
	}
	return payload.Data, false, nil
}

// convert writes the transient container, unwraps and checks the archive, persists it and
// runs the optional steps that follow.
func (o *Orchestrator) convert(ctx context.Context, req request, data []byte, res *Result, wroteArchive *bool) error {
	if err := fsutil.EnsureDir(o.Options.OutputDir); err != nil {
		return pkgerrors.Mark(err, pkgerrors.ErrFileSystem)
	}
	if err := fsutil.WriteFileAtomic(req.containerPath, data, fsutil.FileModeDefault); err != nil {
		return pkgerrors.Mark(fmt.Errorf("failed to write container: %w", err), pkgerrors.ErrFileSystem)
	}

	emit(o.Hooks, Event{Phase: PhaseDecoding, ID: req.id})
	container, err := crx.Decode(data)
	if err != nil {
		return err
	}
	logger.Debug("Decoded container", logger.Fields{
		"id":      req.id,
		"version": container.Header.Version,
		"offset":  container.Offset,
	})

	if o.Options.CheckIntegrity {
		emit(o.Hooks, Event{Phase: PhaseVerifying, ID: req.id})
		if err := archive.Verify(container.Archive); err != nil {
			return err
		}
	}

	emit(o.Hooks, Event{Phase: PhaseWriting, ID: req.id, Msg: req.archivePath})
	if err := fsutil.EnsureFileDir(req.archivePath); err != nil {
		return pkgerrors.Mark(err, pkgerrors.ErrFileSystem)
	}
	if err := fsutil.WriteFileAtomic(req.archivePath, container.Archive, fsutil.FileModeDefault); err != nil {
		return pkgerrors.Mark(fmt.Errorf("failed to write archive: %w", err), pkgerrors.ErrFileSystem)
	}
	*wroteArchive = true
	res.ArchivePath = req.archivePath
	res.ArchiveBytes = int64(len(container.Archive))

	if o.Options.AutoExtract {
		emit(o.Hooks, Event{Phase: PhaseExtracting, ID: req.id})
		dir, files, err := o.Extractor.ExtractFile(ctx, req.archivePath, req.id, req.label)
		if err != nil {
			return err
		}
		res.ExtractDir = dir
		res.Files = files
	}

	if o.Options.ReverifyOnDisk {
		emit(o.Hooks, Event{Phase: PhaseVerifying, ID: req.id, Msg: req.archivePath})
		if err := archive.VerifyFile(req.archivePath); err != nil {
			return err
		}
	}

	o.runPostAcquire(ctx, res)
	return nil
}

// runPostAcquire runs the post-acquire hook. Hook failures never fail the acquisition.
func (o *Orchestrator) runPostAcquire(ctx context.Context, res *Result) {
	if o.Runner == nil {
		return
	}
	err := o.Runner.Execute(ctx, hook.PostAcquire, hook.HookContext{
		ExtensionID:  res.ID,
		ArchivePath:  res.ArchivePath,
		ExtractDir:   res.ExtractDir,
		ArchiveBytes: res.ArchiveBytes,
		Files:        res.Files,
		FromCache:    res.FromCache,
	})
	if err != nil {
		logger.Warn("Post-acquire hook failed", logger.Fields{"id": res.ID, "error": err})
	}
}

// discard removes the files a failed acquisition left behind.
func (o *Orchestrator) discard(req request, wroteArchive bool) {
	paths := []string{req.containerPath}
	if wroteArchive {
		paths = append(paths, req.archivePath)
	}
	for _, p := range paths {
		if err := fsutil.RemoveIfExists(p); err != nil {
			logger.Warn("Failed to clean up after failed acquisition", logger.Fields{"path": p, "error": err})
		}
	}
}

func (o *Orchestrator) fail(res *Result, err error) *Result {
	res.Status = StatusFailed
	res.Err = err
	res.Kind = pkgerrors.KindOf(err)
	res.ArchivePath = ""
	res.ExtractDir = ""
	logger.Error("Failed to acquire extension", logger.Fields{"id": res.ID, "kind": string(res.Kind), "error": err})
	emit(o.Hooks, Event{Phase: PhaseError, ID: res.ID, Msg: err.Error()})
	return res
}

