package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	pkgerrors "github.com/glorpus-work/crxget/pkg/errors"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "aapocclcgogkmnckokdopfmhonfmgoek"

type entry struct {
	name    string
	content string
	store   bool
}

func buildZip(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		method := zip.Deflate
		if e.store {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		require.NoError(t, err)
		if e.content != "" {
			_, err = w.Write([]byte(e.content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// listFiles returns the regular files below dir as slash-separated relative paths.
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

func TestVerify(t *testing.T) {
	data := buildZip(t,
		entry{name: "manifest.json", content: `{"name":"demo"}`},
		entry{name: "js/"},
		entry{name: "js/background.js", content: "console.log('hi')"},
	)
	assert.NoError(t, Verify(data))

	path := filepath.Join(t.TempDir(), "a.zip")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	assert.NoError(t, VerifyFile(path))
}

func TestVerify_CorruptEntry(t *testing.T) {
	data := buildZip(t,
		entry{name: "ok.txt", content: "fine", store: true},
		entry{name: "bad.txt", content: "this content will be flipped", store: true},
	)

	idx := bytes.Index(data, []byte("will be flipped"))
	require.Positive(t, idx)
	data[idx] ^= 0xFF

	err := Verify(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrIntegrityFailure)
	assert.ErrorIs(t, err, zip.ErrChecksum)

	var entryErr *EntryError
	require.ErrorAs(t, err, &entryErr)
	assert.Equal(t, "bad.txt", entryErr.Name)
	assert.Contains(t, err.Error(), "bad.txt")

	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	assert.ErrorIs(t, VerifyFile(path), pkgerrors.ErrIntegrityFailure)
}

func TestVerify_NotAZip(t *testing.T) {
	assert.ErrorIs(t, Verify([]byte("definitely not a zip")), pkgerrors.ErrIntegrityFailure)
	assert.ErrorIs(t, VerifyFile(filepath.Join(t.TempDir(), "missing.zip")), pkgerrors.ErrIntegrityFailure)
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"uBlock Origin", "uBlock_Origin"},
		{"Dark Reader!!", "Dark_Reader"},
		{"a/b\\c:d", "abcd"},
		{"trailing   ", "trailing"},
		{"  leading", "__leading"},
		{"Grammarly: AI Writing", "Grammarly_AI_Writing"},
		{"日本語", ""},
		{"", ""},
		{"keep-dash_and_underscore", "keep-dash_and_underscore"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeLabel(tt.in))
		})
	}
}

func TestDirName(t *testing.T) {
	assert.Equal(t, "Dark_Reader_"+testID, DirName("Dark Reader", testID))
	assert.Equal(t, testID, DirName("", testID))
	assert.Equal(t, testID, DirName("???", testID))
}

func TestExtractor_ExtractBytes(t *testing.T) {
	root := t.TempDir()
	data := buildZip(t,
		entry{name: "manifest.json", content: `{"name":"demo"}`},
		entry{name: "icons/"},
		entry{name: "icons/16.png", content: "png"},
		entry{name: "_locales/en/messages.json", content: "{}"},
	)

	e := NewExtractor(root)
	dir, files, err := e.ExtractBytes(context.Background(), data, testID, "Demo Ext")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "Demo_Ext_"+testID), dir)
	assert.Equal(t, 3, files)
	assert.Equal(t, []string{"_locales/en/messages.json", "icons/16.png", "manifest.json"}, listFiles(t, dir))

	content, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"demo"}`, string(content))

	// no temporary directories left behind
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExtractor_Idempotent(t *testing.T) {
	root := t.TempDir()
	e := NewExtractor(root)

	first := buildZip(t,
		entry{name: "manifest.json", content: "v1"},
		entry{name: "old-only.js", content: "stale"},
	)
	second := buildZip(t,
		entry{name: "manifest.json", content: "v2"},
		entry{name: "new-only.js", content: "fresh"},
	)

	_, _, err := e.ExtractBytes(context.Background(), first, testID, "Label")
	require.NoError(t, err)

	archivePath := filepath.Join(t.TempDir(), "second.zip")
	require.NoError(t, os.WriteFile(archivePath, second, 0o644))

	dir, files, err := e.ExtractFile(context.Background(), archivePath, testID, "Label")
	require.NoError(t, err)

	assert.Equal(t, 2, files)
	assert.Equal(t, []string{"manifest.json", "new-only.js"}, listFiles(t, dir))

	content, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))
}

func TestExtractor_FailureRemovesPreviousTree(t *testing.T) {
	root := t.TempDir()
	e := NewExtractor(root)

	good := buildZip(t, entry{name: "manifest.json", content: "v1"})
	dir, _, err := e.ExtractBytes(context.Background(), good, testID, "")
	require.NoError(t, err)

	_, _, err = e.ExtractBytes(context.Background(), []byte("garbage"), testID, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrExtractionFailure)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "previous directory should stay removed")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial extraction should remain")
}

func TestExtractor_RejectsTraversal(t *testing.T) {
	root := t.TempDir()
	e := NewExtractor(filepath.Join(root, "out"))

	data := buildZip(t,
		entry{name: "manifest.json", content: "{}"},
		entry{name: "../escape.txt", content: "pwned"},
	)

	_, _, err := e.ExtractBytes(context.Background(), data, testID, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrExtractionFailure)

	_, statErr := os.Stat(filepath.Join(root, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractor_CorruptEntry(t *testing.T) {
	data := buildZip(t, entry{name: "a.txt", content: "checksummed content", store: true})
	idx := bytes.Index(data, []byte("checksummed"))
	require.Positive(t, idx)
	data[idx] ^= 0xFF

	_, _, err := NewExtractor(t.TempDir()).ExtractBytes(context.Background(), data, testID, "")
	assert.ErrorIs(t, err, pkgerrors.ErrExtractionFailure)
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		entry   string
		want    string
		wantErr bool
	}{
		{name: "plain", entry: "a/b.txt", want: filepath.Join(dir, "a", "b.txt")},
		{name: "root", entry: "./", want: ""},
		{name: "inner dotdot", entry: "a/../b.txt", want: filepath.Join(dir, "b.txt")},
		{name: "parent", entry: "../x", wantErr: true},
		{name: "deep parent", entry: "a/../../x", wantErr: true},
		{name: "absolute", entry: "/etc/passwd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validatePath(dir, tt.entry)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
