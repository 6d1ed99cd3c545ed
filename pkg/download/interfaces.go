package download

import (
	"context"
	"time"

	"github.com/glorpus-work/crxget/pkg/auth"
)

//go:generate mockgen -destination=./mocks/fetcher.go . Fetcher

// Fetcher downloads extension containers.
type Fetcher interface {
	// Fetch downloads url into memory. A response the service marks as "nothing to
	// serve" yields a Payload with Unavailable set and a nil error. progress may be nil.
	Fetch(ctx context.Context, url string, progress ProgressFunc) (*Payload, error)
}

// ProgressFunc receives the number of bytes read so far and the expected total,
// which is -1 when the server did not announce a length.
type ProgressFunc func(read, total int64)

// Payload is the outcome of a successful fetch.
type Payload struct {
	Data        []byte
	ContentType string
	Unavailable bool
	Attempts    int
}

// Policy controls retries and limits for a Fetcher.
type Policy struct {
	MaxAttempts    int           // total attempts, including the first
	BaseDelay      time.Duration // attempt k waits BaseDelay*(k-1) before starting
	AttemptTimeout time.Duration // bounds one request including the body read
	MaxBytes       int64         // hard cap on the body size
	ChunkSize      int           // read granularity
	UserAgent      string
	Auth           auth.Authenticator // optional, for self-hosted mirrors
}

// Defaults used when a Policy field is left zero.
const (
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 2 * time.Second
	DefaultAttemptTimeout = 30 * time.Second
	DefaultMaxBytes       = 100 << 20
	DefaultChunkSize      = 8192
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		AttemptTimeout: DefaultAttemptTimeout,
		MaxBytes:       DefaultMaxBytes,
		ChunkSize:      DefaultChunkSize,
		UserAgent:      DefaultUserAgent,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = d.AttemptTimeout
	}
	if p.MaxBytes <= 0 {
		p.MaxBytes = d.MaxBytes
	}
	if p.ChunkSize <= 0 {
		p.ChunkSize = d.ChunkSize
	}
	if p.UserAgent == "" {
		p.UserAgent = d.UserAgent
	}
	return p
}
