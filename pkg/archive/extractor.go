package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/crxget/internal/logger"
	pkgerrors "github.com/glorpus-work/crxget/pkg/errors"
	"github.com/glorpus-work/crxget/pkg/fsutil"
	"github.com/mholt/archives"
)

// Extractor unpacks archives into per-extension directories below a root.
type Extractor struct {
	root string
}

// NewExtractor creates an Extractor writing below root.
func NewExtractor(root string) *Extractor {
	return &Extractor{root: root}
}

// SanitizeLabel keeps ASCII letters, digits, spaces, '-' and '_', trims trailing
// spaces and replaces the remaining spaces with underscores.
func SanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimRight(b.String(), " "), " ", "_")
}

// DirName returns the directory name used for an extension: "<label>_<id>",
// or just the id when the label sanitizes to nothing.
func DirName(label, id string) string {
	if safe := SanitizeLabel(label); safe != "" {
		return safe + "_" + id
	}
	return id
}

// Path returns the destination directory for id and label.
func (e *Extractor) Path(id, label string) string {
	return filepath.Join(e.root, DirName(label, id))
}

// ExtractBytes unpacks an in-memory ZIP archive and returns the destination
// directory and the number of regular files written.
func (e *Extractor) ExtractBytes(ctx context.Context, data []byte, id, label string) (string, int, error) {
	return e.extract(ctx, id, label, func(ctx context.Context, dir string) (int, error) {
		return unpackZip(ctx, bytes.NewReader(data), dir)
	})
}

// ExtractFile is ExtractBytes for an archive on disk.
func (e *Extractor) ExtractFile(ctx context.Context, archivePath, id, label string) (string, int, error) {
	return e.extract(ctx, id, label, func(ctx context.Context, dir string) (int, error) {
		f, err := os.Open(archivePath)
		if err != nil {
			return 0, fmt.Errorf("failed to open archive file: %w", err)
		}
		defer func() { _ = f.Close() }()
		return unpackZip(ctx, f, dir)
	})
}

// extract removes any previous tree, unpacks into a hidden sibling directory and renames
// it into place. On failure the previous tree stays removed and nothing new is left behind.
func (e *Extractor) extract(ctx context.Context, id, label string, unpack func(context.Context, string) (int, error)) (string, int, error) {
	dest := e.Path(id, label)

	if err := fsutil.EnsureDir(e.root); err != nil {
		return "", 0, wrapExtractorError(err, e.root)
	}
	if err := os.RemoveAll(dest); err != nil {
		return "", 0, wrapExtractorError(err, dest)
	}

	tmp, err := os.MkdirTemp(e.root, ".extract-*")
	if err != nil {
		return "", 0, wrapExtractorError(err, e.root)
	}

	files, err := unpack(ctx, tmp)
	if err != nil {
		if rmErr := os.RemoveAll(tmp); rmErr != nil {
			logger.Warn("Failed to remove partial extraction", logger.Fields{"dir": tmp, "error": rmErr})
		}
		return "", 0, wrapExtractorError(err, "")
	}

	if err := os.Chmod(tmp, fsutil.DirModeDefault); err != nil {
		_ = os.RemoveAll(tmp)
		return "", 0, wrapExtractorError(err, tmp)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.RemoveAll(tmp)
		return "", 0, wrapExtractorError(err, dest)
	}

	logger.Debug("Extracted archive", logger.Fields{"dir": dest, "files": files})
	return dest, files, nil
}

func unpackZip(ctx context.Context, r io.Reader, dir string) (int, error) {
	count := 0
	handler := func(ctx context.Context, f archives.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := validatePath(dir, f.NameInArchive)
		if err != nil {
			return err
		}
		if target == "" {
			return nil
		}

		switch {
		case f.IsDir():
			return os.MkdirAll(target, fsutil.DirModeDefault)
		case f.Mode()&fs.ModeSymlink != 0 || f.LinkTarget != "":
			// links cannot be represented safely in an unpacked extension
			logger.Debug("Skipping link entry", logger.Fields{"entry": f.NameInArchive})
			return nil
		case !f.Mode().IsRegular():
			return nil
		}

		if err := writeRegularFile(f, target); err != nil {
			return err
		}
		count++
		return nil
	}

	if err := (archives.Zip{}).Extract(ctx, r, handler); err != nil {
		return 0, err
	}
	return count, nil
}

func writeRegularFile(f archives.FileInfo, target string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open entry %s: %w", f.NameInArchive, err)
	}
	defer func() { _ = src.Close() }()

	if err := fsutil.EnsureFileDir(target); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", f.NameInArchive, err)
	}

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = fsutil.FileModeDefault
	}
	dst, err := fsutil.CreateFilePerm(target, perm|0o200)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", target, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("failed to copy entry %s: %w", f.NameInArchive, err)
	}
	return dst.Close()
}

// validatePath ensures the entry resolves to a path inside dir.
// It returns "" for entries naming dir itself.
func validatePath(dir, name string) (string, error) {
	if name == "" || name == "." || name == "./" {
		return "", nil
	}

	cleanPath := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleanPath) || filepath.VolumeName(cleanPath) != "" {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}

	targetPath := filepath.Join(dir, cleanPath)
	relPath, err := filepath.Rel(dir, targetPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}
	return targetPath, nil
}

// wrapExtractorError tags err as an extraction failure and adds path context.
func wrapExtractorError(err error, path string) error {
	if path != "" {
		err = fmt.Errorf("error processing %s: %w", filepath.ToSlash(path), err)
	}
	return pkgerrors.Mark(err, pkgerrors.ErrExtractionFailure)
}
