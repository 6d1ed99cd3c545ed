package errors

import (
	stderrors "errors"
	"fmt"
)

// Acquisition errors. Every pipeline failure wraps exactly one of these.
var (
	ErrInvalidIdentifier           = fmt.Errorf("invalid extension identifier")
	ErrNetwork                     = fmt.Errorf("network error")
	ErrUnavailable                 = fmt.Errorf("extension unavailable")
	ErrSizeExceeded                = fmt.Errorf("download size limit exceeded")
	ErrCorruptContainer            = fmt.Errorf("corrupt container")
	ErrUnsupportedContainerVersion = fmt.Errorf("unsupported container version")
	ErrIntegrityFailure            = fmt.Errorf("archive integrity check failed")
	ErrExtractionFailure           = fmt.Errorf("extraction failed")
	ErrFileSystem                  = fmt.Errorf("file system error")
	ErrCanceled                    = fmt.Errorf("acquisition canceled")
)

// Config errors.
var (
	ErrEmptyConfigPath  = fmt.Errorf("config file path cannot be empty")
	ErrConfigParse      = fmt.Errorf("failed to parse config")
	ErrConfigValidation = fmt.Errorf("invalid configuration")
	ErrConfigEncode     = fmt.Errorf("failed to encode config")
	ErrConfigDirectory  = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate = fmt.Errorf("failed to create config file")
	ErrConfigExists     = fmt.Errorf("config file already exists")
	ErrAuthType         = fmt.Errorf("unsupported authentication type")
)

// Hook errors.
var (
	ErrHookLoad      = fmt.Errorf("failed to load hook")
	ErrHookExecution = fmt.Errorf("error executing hook")
	ErrHookScript    = fmt.Errorf("hook script error")
)

// Kind is the tag carried by a failed acquisition result.
type Kind string

// Kinds, one per acquisition sentinel.
const (
	KindNone                        Kind = ""
	KindInvalidIdentifier           Kind = "invalid_identifier"
	KindNetwork                     Kind = "network"
	KindUnavailable                 Kind = "unavailable"
	KindSizeExceeded                Kind = "size_exceeded"
	KindCorruptContainer            Kind = "corrupt_container"
	KindUnsupportedContainerVersion Kind = "unsupported_container_version"
	KindIntegrityFailure            Kind = "integrity_failure"
	KindExtractionFailure           Kind = "extraction_failure"
	KindFileSystem                  Kind = "filesystem"
	KindCanceled                    Kind = "canceled"
	KindUnknown                     Kind = "unknown"
)

var kinds = []struct {
	sentinel error
	kind     Kind
}{
	{ErrInvalidIdentifier, KindInvalidIdentifier},
	{ErrUnavailable, KindUnavailable},
	{ErrSizeExceeded, KindSizeExceeded},
	{ErrUnsupportedContainerVersion, KindUnsupportedContainerVersion},
	{ErrCorruptContainer, KindCorruptContainer},
	{ErrIntegrityFailure, KindIntegrityFailure},
	{ErrExtractionFailure, KindExtractionFailure},
	{ErrCanceled, KindCanceled},
	{ErrNetwork, KindNetwork},
	{ErrFileSystem, KindFileSystem},
}

// KindOf returns the tag of the first acquisition sentinel found in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if stderrors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindUnknown
}

// Mark tags err with sentinel so that errors.Is matches both.
func Mark(err, sentinel error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
