// Package archive validates and unpacks the ZIP archives embedded in extension containers.
package archive

import (
	"bytes"
	"fmt"
	"io"

	pkgerrors "github.com/glorpus-work/crxget/pkg/errors"
	"github.com/klauspost/compress/zip"
)

// EntryError reports the archive entry that failed validation.
type EntryError struct {
	Name string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s: entry %q: %v", pkgerrors.ErrIntegrityFailure, e.Name, e.Err)
}

// Unwrap exposes both the integrity sentinel and the underlying cause.
func (e *EntryError) Unwrap() []error {
	return []error{pkgerrors.ErrIntegrityFailure, e.Err}
}

// Verify opens data as a ZIP archive and reads every entry so its CRC-32 is checked.
// It returns an *EntryError for the first corrupt entry.
func Verify(data []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: open archive: %w", pkgerrors.ErrIntegrityFailure, err)
	}
	return verifyEntries(zr.File)
}

// VerifyFile is Verify for an archive on disk.
func VerifyFile(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: open archive %s: %w", pkgerrors.ErrIntegrityFailure, path, err)
	}
	defer func() { _ = zr.Close() }()

	return verifyEntries(zr.File)
}

func verifyEntries(files []*zip.File) error {
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := verifyEntry(f); err != nil {
			return &EntryError{Name: f.Name, Err: err}
		}
	}
	return nil
}

func verifyEntry(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	// zip returns ErrChecksum from the final Read when the CRC does not match
	_, err = io.Copy(io.Discard, rc)
	return err
}
