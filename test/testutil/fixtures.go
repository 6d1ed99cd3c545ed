// Package testutil provides fixtures shared by the crxget tests: synthetic CRX
// containers, a fake update service and throwaway configuration files.
package testutil

import (
	"bytes"
	"path/filepath"
	"sort"
	"testing"

	"github.com/glorpus-work/crxget/pkg/config"
	"github.com/glorpus-work/crxget/pkg/crx"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

// ValidFiles is the content of the archive wrapped by ValidCRX.
var ValidFiles = map[string]string{
	"manifest.json":  `{"name":"test","version":"1.0"}`,
	"js/content.js":  "console.log('hi')",
	"icons/icon.txt": "icon",
}

// BuildZip returns a ZIP archive holding files. Entries are stored uncompressed
// in name order.
func BuildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// CorruptZip returns an archive whose single entry fails its CRC check.
func CorruptZip(t *testing.T) []byte {
	t.Helper()
	data := BuildZip(t, map[string]string{"manifest.json": `{"name":"broken-payload"}`})
	i := bytes.Index(data, []byte("broken-payload"))
	require.Positive(t, i)
	data[i] ^= 0xff
	return data
}

// BuildCRX wraps archive in a container of the given version with placeholder
// key, signature or header bytes.
func BuildCRX(t *testing.T, ver uint32, archive []byte) []byte {
	t.Helper()
	var parts [][]byte
	if ver == crx.Version2 {
		parts = [][]byte{[]byte("public-key"), []byte("signature")}
	} else {
		parts = [][]byte{[]byte("protobuf-header")}
	}
	data, err := crx.Encode(ver, archive, parts...)
	require.NoError(t, err)
	return data
}

// ValidCRX returns a CRX3 container around ValidFiles.
func ValidCRX(t *testing.T) []byte {
	t.Helper()
	return BuildCRX(t, crx.Version3, BuildZip(t, ValidFiles))
}

// SetupTestConfig writes a configuration pointing at baseURL with output directories
// in a temporary directory and returns its path. mutate may adjust it before saving.
func SetupTestConfig(t *testing.T, baseURL string, mutate func(*config.Config)) string {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Download.BaseURL = baseURL
	cfg.Download.RetryAttempts = 1
	cfg.Download.RetryDelaySeconds = 0
	cfg.Output.DefaultDirectory = filepath.Join(dir, "downloads")
	cfg.Output.ExtractDirectory = filepath.Join(dir, "extensions")
	if mutate != nil {
		mutate(cfg)
	}

	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.SaveConfig(configPath))
	return configPath
}
