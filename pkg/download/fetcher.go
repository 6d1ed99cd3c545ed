// Package download fetches extension containers over HTTP with bounded retries.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
	"github.com/glorpus-work/crxget/internal/logger"
	pkgerrors "github.com/glorpus-work/crxget/pkg/errors"
)

const (
	refererHeader = "https://chrome.google.com/"
	acceptHeader  = "application/octet-stream, application/x-chrome-extension, */*"
)

// HTTPFetcher is the net/http Fetcher.
type HTTPFetcher struct {
	client *http.Client
	policy Policy
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewFetcher creates a fetcher. A nil client uses a dedicated client without an overall
// timeout; every attempt is bounded by Policy.AttemptTimeout instead.
func NewFetcher(client *http.Client, policy Policy) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{client: client, policy: policy.withDefaults()}
}

// Policy returns the effective policy after defaults were applied.
func (f *HTTPFetcher) Policy() Policy {
	return f.policy
}

// Fetch implements Fetcher.
//
// Timeouts and connection failures are retried up to Policy.MaxAttempts times with a linear
// delay. Unexpected status codes and oversized bodies fail immediately.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, progress ProgressFunc) (*Payload, error) {
	attempts := 0
	terminal := false
	operation := func() (*Payload, error) {
		attempts++
		p, err := f.attempt(ctx, url, progress)
		if err != nil {
			var permanent *backoff.PermanentError
			terminal = errors.As(err, &permanent)
			return nil, err
		}
		p.Attempts = attempts
		return p, nil
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("Download attempt failed, retrying", logger.Fields{
			"url":     url,
			"attempt": attempts,
			"wait":    wait.String(),
			"error":   err.Error(),
		})
	}

	payload, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newLinearBackOff(f.policy.BaseDelay)),
		backoff.WithMaxTries(uint(f.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return payload, nil
	}

	if terminal {
		// Retry only unwraps permanent errors before the last attempt
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Unwrap()
		}
		return nil, err
	}
	if ctx.Err() != nil && !errors.Is(err, pkgerrors.ErrNetwork) {
		return nil, pkgerrors.Mark(err, pkgerrors.ErrCanceled)
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}

// attempt performs one request. Errors wrapped in backoff.Permanent are not retried.
func (f *HTTPFetcher) attempt(ctx context.Context, url string, progress ProgressFunc) (*Payload, error) {
	actx, cancel := context.WithTimeout(ctx, f.policy.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w: %w", pkgerrors.ErrNetwork, err))
	}
	req.Header.Set("User-Agent", f.policy.UserAgent)
	req.Header.Set("Referer", refererHeader)
	req.Header.Set("Accept", acceptHeader)
	if f.policy.Auth != nil {
		if err := f.policy.Auth.Apply(req); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to authenticate request: %w: %w", pkgerrors.ErrNetwork, err))
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", describeTransportError(err), pkgerrors.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return &Payload{Unavailable: true}, nil
	default:
		return nil, backoff.Permanent(fmt.Errorf("unexpected status code: %d: %w", resp.StatusCode, pkgerrors.ErrNetwork))
	}

	contentType := resp.Header.Get("Content-Type")
	if isMarkup(contentType) {
		// the store answers with an HTML page when it has nothing to serve
		return &Payload{Unavailable: true, ContentType: contentType}, nil
	}

	if resp.ContentLength > f.policy.MaxBytes {
		return nil, backoff.Permanent(f.sizeError(resp.ContentLength))
	}

	data, err := f.readBody(resp.Body, resp.ContentLength, progress)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrSizeExceeded) {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("reading body: %s: %w: %w", describeTransportError(err), pkgerrors.ErrNetwork, err)
	}

	return &Payload{Data: data, ContentType: contentType}, nil
}

// readBody streams the body in ChunkSize pieces and stops as soon as MaxBytes is exceeded.
func (f *HTTPFetcher) readBody(body io.Reader, total int64, progress ProgressFunc) ([]byte, error) {
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}
	chunk := make([]byte, f.policy.ChunkSize)

	var read int64
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			read += int64(n)
			if read > f.policy.MaxBytes {
				return nil, f.sizeError(read)
			}
			buf.Write(chunk[:n])
			if progress != nil {
				progress(read, total)
			}
		}
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (f *HTTPFetcher) sizeError(size int64) error {
	return fmt.Errorf("%w: %s exceeds limit of %s", pkgerrors.ErrSizeExceeded,
		humanize.IBytes(uint64(size)), humanize.IBytes(uint64(f.policy.MaxBytes)))
}

func isMarkup(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "text/html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func describeTransportError(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "attempt timed out"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "attempt timed out"
	default:
		return "connection failed"
	}
}
