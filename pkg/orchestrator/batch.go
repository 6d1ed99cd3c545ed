package orchestrator

import (
	"context"
	"sort"
	"sync"

	"github.com/glorpus-work/crxget/internal/logger"
	pkgerrors "github.com/glorpus-work/crxget/pkg/errors"
	"github.com/glorpus-work/crxget/pkg/extension"
	"github.com/hashicorp/go-multierror"
)

// BatchResult maps every requested ID to its outcome.
type BatchResult struct {
	IDs     []string // de-duplicated, in request order
	Results map[string]*Result
}

// Succeeded returns the number of extensions that were acquired.
func (b *BatchResult) Succeeded() int { return b.count(StatusSucceeded) }

// Unavailable returns the number of extensions the store declined to serve.
func (b *BatchResult) Unavailable() int { return b.count(StatusUnavailable) }

// Failed returns the number of extensions that failed.
func (b *BatchResult) Failed() int { return b.count(StatusFailed) }

func (b *BatchResult) count(s Status) int {
	n := 0
	for _, r := range b.Results {
		if r.Status == s {
			n++
		}
	}
	return n
}

// FailedIDs returns the IDs of failed extensions, sorted.
func (b *BatchResult) FailedIDs() []string {
	var ids []string
	for id, r := range b.Results {
		if r.Status == StatusFailed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Err combines the errors of all failed extensions, or returns nil.
func (b *BatchResult) Err() error {
	var result *multierror.Error
	for _, id := range b.IDs {
		if r, ok := b.Results[id]; ok && r.Err != nil {
			result = multierror.Append(result, pkgerrors.Wrap(r.Err, id))
		}
	}
	return result.ErrorOrNil()
}

// AcquireBatch acquires ids with a bounded pool of workers.
//
// Malformed IDs fail the whole batch before anything is fetched. Otherwise the returned
// error is nil and per-ID failures are reported in the BatchResult. Once ctx is done no
// further IDs are started; those are reported as canceled while work already in flight
// runs to completion.
func (o *Orchestrator) AcquireBatch(ctx context.Context, ids []string, opts BatchOptions) (*BatchResult, error) {
	if err := o.check(); err != nil {
		return nil, err
	}
	if o.Options.ValidateID {
		if err := extension.ValidateIDs(ids); err != nil {
			return nil, err
		}
	}

	unique := dedupe(ids)
	br := &BatchResult{IDs: unique, Results: make(map[string]*Result, len(unique))}
	if len(unique) == 0 {
		return br, nil
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = o.Options.Concurrency
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	concurrency = min(concurrency, len(unique))

	var mu sync.Mutex
	record := func(r *Result) {
		mu.Lock()
		br.Results[r.ID] = r
		mu.Unlock()
	}

	// In-flight items must finish their cleanup even after an interrupt.
	taskCtx := context.WithoutCancel(ctx)

	tasks := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range tasks {
				res, _ := o.Acquire(taskCtx, id, AcquireOptions{
					Label:         opts.Labels[id],
					KeepContainer: opts.KeepContainer,
				})
				record(res)
			}
		}()
	}

	dispatched := dispatch(ctx, tasks, unique)
	close(tasks)

	for _, id := range unique[dispatched:] {
		record(o.fail(&Result{ID: id}, pkgerrors.Mark(context.Cause(ctx), pkgerrors.ErrCanceled)))
	}
	wg.Wait()

	logger.Info("Batch finished", logger.Fields{
		"total":       len(unique),
		"succeeded":   br.Succeeded(),
		"unavailable": br.Unavailable(),
		"failed":      br.Failed(),
	})
	return br, nil
}

// dispatch hands ids to the workers until ctx is done and returns how many were handed out.
func dispatch(ctx context.Context, tasks chan<- string, ids []string) int {
	for i, id := range ids {
		if ctx.Err() != nil {
			return i
		}
		select {
		case <-ctx.Done():
			return i
		case tasks <- id:
		}
	}
	return len(ids)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
