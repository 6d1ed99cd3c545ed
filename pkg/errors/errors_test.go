package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		msg      string
		expected string
	}{
		{name: "wrap nil error", err: nil, msg: "additional context"},
		{name: "wrap standard error", err: errors.New("original error"), msg: "additional context", expected: "additional context: original error"},
		{name: "wrap sentinel", err: ErrNetwork, msg: "fetch", expected: "fetch: network error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Wrap(tt.err, tt.msg)
			if tt.err == nil {
				assert.NoError(t, result)
				return
			}
			assert.EqualError(t, result, tt.expected)
			assert.ErrorIs(t, result, tt.err)
		})
	}
}

func TestWrapf(t *testing.T) {
	assert.NoError(t, Wrapf(nil, "x %d", 1))

	err := Wrapf(ErrFileSystem, "failed to write %s in %d attempts", "a.zip", 2)
	assert.EqualError(t, err, "failed to write a.zip in 2 attempts: file system error")
	assert.ErrorIs(t, err, ErrFileSystem)
}

func TestMark(t *testing.T) {
	cause := errors.New("disk full")

	marked := Mark(cause, ErrFileSystem)
	assert.ErrorIs(t, marked, ErrFileSystem)
	assert.ErrorIs(t, marked, cause)
	assert.EqualError(t, marked, "file system error: disk full")

	// already tagged errors are returned unchanged
	assert.Same(t, marked, Mark(marked, ErrFileSystem))
	assert.NoError(t, Mark(nil, ErrNetwork))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "plain", err: errors.New("boom"), want: KindUnknown},
		{name: "invalid id", err: fmt.Errorf("%w: abc", ErrInvalidIdentifier), want: KindInvalidIdentifier},
		{name: "network with status", err: fmt.Errorf("unexpected status code: 500: %w", ErrNetwork), want: KindNetwork},
		{name: "size", err: Wrap(ErrSizeExceeded, "fetch"), want: KindSizeExceeded},
		{name: "corrupt", err: ErrCorruptContainer, want: KindCorruptContainer},
		{name: "version", err: ErrUnsupportedContainerVersion, want: KindUnsupportedContainerVersion},
		{name: "integrity", err: Mark(errors.New("crc"), ErrIntegrityFailure), want: KindIntegrityFailure},
		{name: "extract", err: ErrExtractionFailure, want: KindExtractionFailure},
		{name: "filesystem", err: ErrFileSystem, want: KindFileSystem},
		{name: "canceled", err: ErrCanceled, want: KindCanceled},
		{name: "specific wins over generic", err: Mark(ErrSizeExceeded, ErrNetwork), want: KindSizeExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
