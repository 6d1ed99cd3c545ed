package download

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// linearBackOff waits base, 2*base, 3*base, ... between attempts.
type linearBackOff struct {
	base time.Duration
	n    int64
}

var _ backoff.BackOff = (*linearBackOff)(nil)

func newLinearBackOff(base time.Duration) *linearBackOff {
	return &linearBackOff{base: base}
}

// NextBackOff is called after the n-th failed attempt and returns the wait before attempt n+1.
func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.base * time.Duration(b.n)
}

func (b *linearBackOff) Reset() {
	b.n = 0
}
