package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glorpus-work/crxget/pkg/archive"
	"github.com/glorpus-work/crxget/pkg/cache"
	"github.com/glorpus-work/crxget/pkg/config"
	"github.com/glorpus-work/crxget/pkg/crx"
	"github.com/glorpus-work/crxget/pkg/download"
	pkgerrors "github.com/glorpus-work/crxget/pkg/errors"
	"github.com/glorpus-work/crxget/pkg/extension"
	"github.com/glorpus-work/crxget/pkg/hook"
	"github.com/glorpus-work/crxget/pkg/platform"
	"github.com/glorpus-work/crxget/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testID(c byte) string {
	return strings.Repeat(string(c), extension.IDLength)
}

// newStore serves bodies keyed by extension ID. Unknown IDs get 204.
func newStore(t *testing.T, bodies map[string][]byte) *testutil.StoreServer {
	t.Helper()
	s := testutil.NewStoreServer(t)
	for id, body := range bodies {
		s.Add(id, body)
	}
	return s
}

func testOptions(t *testing.T) Options {
	return Options{
		OutputDir:      filepath.Join(t.TempDir(), "downloads"),
		AutoCleanup:    true,
		AutoExtract:    true,
		EnableCaching:  true,
		ValidateID:     true,
		CheckIntegrity: true,
		Concurrency:    2,
	}
}

func testPolicy() download.Policy {
	return download.Policy{
		MaxAttempts:    2,
		BaseDelay:      5 * time.Millisecond,
		AttemptTimeout: 2 * time.Second,
		MaxBytes:       1 << 20,
		ChunkSize:      256,
		UserAgent:      "crxget-test",
	}
}

func newTestOrchestrator(t *testing.T, baseURL string, opts Options, policy download.Policy) *Orchestrator {
	t.Helper()
	resolver, err := extension.NewResolver(baseURL, platform.New("linux", "amd64"), "")
	require.NoError(t, err)
	extractDir := filepath.Join(filepath.Dir(opts.OutputDir), "extensions")
	return New(resolver, download.NewFetcher(nil, policy), cache.NewMemory(), archive.NewExtractor(extractDir), nil, opts, Hooks{})
}

// filesIn lists the names directly inside dir. A missing dir yields nothing.
func filesIn(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestAcquire_Success(t *testing.T) {
	id := testID('a')
	s := newStore(t, map[string][]byte{id: testutil.ValidCRX(t)})
	orch := newTestOrchestrator(t, s.URL, testOptions(t), testPolicy())

	var mu sync.Mutex
	var phases []string
	orch.Hooks = Hooks{OnEvent: func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if len(phases) == 0 || phases[len(phases)-1] != e.Phase {
			phases = append(phases, e.Phase)
		}
	}}

	res, err := orch.Acquire(context.Background(), id, AcquireOptions{})
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, pkgerrors.KindNone, res.Kind)
	assert.Equal(t, filepath.Join(orch.Options.OutputDir, id+".zip"), res.ArchivePath)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.FromCache)
	assert.Empty(t, res.ContainerPath)
	assert.Positive(t, res.ContainerBytes)
	assert.Greater(t, res.ContainerBytes, res.ArchiveBytes)

	require.NoError(t, archive.VerifyFile(res.ArchivePath))
	manifest, err := os.ReadFile(filepath.Join(res.ExtractDir, "manifest.json"))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), `"name":"test"`)

	assert.Equal(t, []string{id + ".zip"}, filesIn(t, orch.Options.OutputDir), "transient container must be removed")
	assert.Equal(t, []string{
		PhaseResolving, PhaseDownloading, PhaseDecoding, PhaseVerifying, PhaseWriting, PhaseExtracting, PhaseDone,
	}, phases)
}

func TestAcquire_V2WithOverrides(t *testing.T) {
	id := testID('b')
	s := newStore(t, map[string][]byte{id: testutil.BuildCRX(t, crx.Version2, testutil.BuildZip(t, map[string]string{"a.txt": "a"}))})

	opts := testOptions(t)
	orch := newTestOrchestrator(t, s.URL, opts, testPolicy())

	res, err := orch.Acquire(context.Background(), id, AcquireOptions{
		Filename:      "custom",
		Label:         "My Ext!",
		KeepContainer: true,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(opts.OutputDir, "custom.zip"), res.ArchivePath)
	assert.Equal(t, filepath.Join(opts.OutputDir, id+".crx"), res.ContainerPath)
	assert.Equal(t, "My_Ext_"+id, filepath.Base(res.ExtractDir))
	assert.ElementsMatch(t, []string{"custom.zip", id + ".crx"}, filesIn(t, opts.OutputDir))
}

func TestAcquire_Unavailable(t *testing.T) {
	s := newStore(t, nil)
	opts := testOptions(t)
	orch := newTestOrchestrator(t, s.URL, opts, testPolicy())

	var phases []string
	orch.Hooks = Hooks{OnEvent: func(e Event) { phases = append(phases, e.Phase) }}

	res, err := orch.Acquire(context.Background(), testID('c'), AcquireOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, res.Status)
	assert.Equal(t, pkgerrors.KindUnavailable, res.Kind)
	assert.Empty(t, res.ArchivePath)
	assert.Equal(t, int64(1), s.Requests())
	assert.Empty(t, filesIn(t, opts.OutputDir))
	assert.Equal(t, PhaseUnavailable, phases[len(phases)-1])
}

func TestAcquire_SizeExceeded(t *testing.T) {
	id := testID('d')
	big := testutil.BuildCRX(t, crx.Version3, testutil.BuildZip(t, map[string]string{"big.bin": strings.Repeat("x", 8192)}))
	s := newStore(t, map[string][]byte{id: big})

	opts := testOptions(t)
	policy := testPolicy()
	policy.MaxBytes = 1024
	orch := newTestOrchestrator(t, s.URL, opts, policy)

	res, err := orch.Acquire(context.Background(), id, AcquireOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrSizeExceeded)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, pkgerrors.KindSizeExceeded, res.Kind)
	assert.Empty(t, filesIn(t, opts.OutputDir), "neither archive nor transient container may exist")
}

func TestAcquire_DecodeFailuresCleanUp(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		kind pkgerrors.Kind
	}{
		{name: "bad magic", body: []byte("<?xml version='1.0'?><gupdate/>"), kind: pkgerrors.KindCorruptContainer},
		{name: "unsupported version", body: append([]byte("Cr24"), 9, 0, 0, 0, 0, 0, 0, 0), kind: pkgerrors.KindUnsupportedContainerVersion},
		{name: "corrupt entry", body: testutil.BuildCRX(t, crx.Version3, testutil.CorruptZip(t)), kind: pkgerrors.KindIntegrityFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := testID('e')
			s := newStore(t, map[string][]byte{id: tt.body})
			opts := testOptions(t)
			orch := newTestOrchestrator(t, s.URL, opts, testPolicy())

			res, err := orch.Acquire(context.Background(), id, AcquireOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, tt.kind, pkgerrors.KindOf(err))
			assert.Empty(t, filesIn(t, opts.OutputDir))
		})
	}
}

func TestAcquire_IntegrityCheckDisabled(t *testing.T) {
	id := testID('f')
	s := newStore(t, map[string][]byte{id: testutil.BuildCRX(t, crx.Version3, testutil.CorruptZip(t))})

	opts := testOptions(t)
	opts.CheckIntegrity = false
	opts.AutoExtract = false
	orch := newTestOrchestrator(t, s.URL, opts, testPolicy())

	res, err := orch.Acquire(context.Background(), id, AcquireOptions{})
	require.NoError(t, err)
	assert.FileExists(t, res.ArchivePath)
	assert.Empty(t, res.ExtractDir)
}

func TestAcquire_ReverifyOnDisk(t *testing.T) {
	id := testID('g')
	s := newStore(t, map[string][]byte{id: testutil.ValidCRX(t)})

	opts := testOptions(t)
	opts.ReverifyOnDisk = true
	orch := newTestOrchestrator(t, s.URL, opts, testPolicy())

	var verifying int
	orch.Hooks = Hooks{OnEvent: func(e Event) {
		if e.Phase == PhaseVerifying {
			verifying++
		}
	}}

	_, err := orch.Acquire(context.Background(), id, AcquireOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, verifying)
}

func TestAcquire_Cache(t *testing.T) {
	id := testID('h')
	s := newStore(t, map[string][]byte{id: testutil.ValidCRX(t)})

	t.Run("enabled", func(t *testing.T) {
		orch := newTestOrchestrator(t, s.URL, testOptions(t), testPolicy())
		before := s.Hits(id)

		first, err := orch.Acquire(context.Background(), id, AcquireOptions{})
		require.NoError(t, err)
		second, err := orch.Acquire(context.Background(), id, AcquireOptions{Label: "again"})
		require.NoError(t, err)

		assert.False(t, first.FromCache)
		assert.True(t, second.FromCache)
		assert.Equal(t, 1, s.Hits(id)-before)
		assert.Equal(t, int64(1), orch.Cache.(*cache.Memory).Info().Hits)
	})

	t.Run("disabled", func(t *testing.T) {
		opts := testOptions(t)
		opts.EnableCaching = false
		orch := newTestOrchestrator(t, s.URL, opts, testPolicy())
		before := s.Hits(id)

		for i := 0; i < 2; i++ {
			res, err := orch.Acquire(context.Background(), id, AcquireOptions{})
			require.NoError(t, err)
			assert.False(t, res.FromCache)
		}
		assert.Equal(t, 2, s.Hits(id)-before)
	})
}

func TestAcquire_ExtractionFailureRemovesArchive(t *testing.T) {
	id := testID('i')
	s := newStore(t, map[string][]byte{id: testutil.ValidCRX(t)})

	opts := testOptions(t)
	orch := newTestOrchestrator(t, s.URL, opts, testPolicy())
	orch.Extractor = failingExtractor{}

	res, err := orch.Acquire(context.Background(), id, AcquireOptions{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.KindExtractionFailure, res.Kind)
	assert.Empty(t, res.ArchivePath)
	assert.Empty(t, filesIn(t, opts.OutputDir))
}

type failingExtractor struct{}

func (failingExtractor) ExtractFile(context.Context, string, string, string) (string, int, error) {
	return "", 0, pkgerrors.Mark(fmt.Errorf("no space left on device"), pkgerrors.ErrExtractionFailure)
}

func TestAcquire_PostAcquireHook(t *testing.T) {
	id := testID('j')
	s := newStore(t, map[string][]byte{id: testutil.ValidCRX(t)})

	tests := []struct {
		name   string
		script string
	}{
		{name: "succeeds", script: `fmt := import("fmt"); fmt.println(extension_id, files)`},
		{name: "reports error", script: `err := "refused " + extension_id`},
		{name: "does not compile", script: `this is not tengo`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := newTestOrchestrator(t, s.URL, testOptions(t), testPolicy())
			runner := hook.NewTengoExecutor()
			runner.AddScript(hook.PostAcquire, tt.script)
			orch.Runner = runner

			res, err := orch.Acquire(context.Background(), id, AcquireOptions{})
			require.NoError(t, err, "hook failures must not fail the acquisition")
			assert.Equal(t, StatusSucceeded, res.Status)
			assert.FileExists(t, res.ArchivePath)
		})
	}
}

func TestAcquire_InvalidID(t *testing.T) {
	s := newStore(t, nil)
	orch := newTestOrchestrator(t, s.URL, testOptions(t), testPolicy())

	res, err := orch.Acquire(context.Background(), "not-an-id", AcquireOptions{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.KindInvalidIdentifier, res.Kind)
	assert.Equal(t, int64(0), s.Requests())
}

func TestAcquire_CanceledContext(t *testing.T) {
	s := newStore(t, map[string][]byte{testID('k'): testutil.ValidCRX(t)})
	orch := newTestOrchestrator(t, s.URL, testOptions(t), testPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := orch.Acquire(ctx, testID('k'), AcquireOptions{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.KindCanceled, res.Kind)
	assert.Equal(t, int64(0), s.Requests())
}

func TestAcquire_NotConfigured(t *testing.T) {
	tests := []struct {
		name string
		orch *Orchestrator
	}{
		{name: "no resolver", orch: &Orchestrator{Options: Options{OutputDir: "out"}}},
		{name: "no output dir", orch: &Orchestrator{Resolver: &extension.Resolver{}, Fetcher: download.NewFetcher(nil, download.Policy{})}},
		{name: "no extractor", orch: &Orchestrator{
			Resolver: &extension.Resolver{},
			Fetcher:  download.NewFetcher(nil, download.Policy{}),
			Options:  Options{OutputDir: "out", AutoExtract: true},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.orch.Acquire(context.Background(), testID('a'), AcquireOptions{})
			require.Error(t, err)
			assert.Equal(t, StatusFailed, res.Status)
		})
	}
}

func TestArchivePath(t *testing.T) {
	id := testID('a')
	abs := filepath.Join(t.TempDir(), "elsewhere.zip")
	orch := &Orchestrator{Options: Options{OutputDir: "out"}}

	tests := []struct {
		name string
		opts AcquireOptions
		want string
	}{
		{name: "default", want: filepath.Join("out", id+".zip")},
		{name: "label", opts: AcquireOptions{Label: "uBlock Origin"}, want: filepath.Join("out", "uBlock_Origin_"+id+".zip")},
		{name: "label without safe characters", opts: AcquireOptions{Label: "!!!"}, want: filepath.Join("out", id+".zip")},
		{name: "override adds suffix", opts: AcquireOptions{Filename: "ext"}, want: filepath.Join("out", "ext.zip")},
		{name: "override keeps suffix", opts: AcquireOptions{Filename: "ext.ZIP"}, want: filepath.Join("out", "ext.ZIP")},
		{name: "absolute override", opts: AcquireOptions{Filename: abs}, want: abs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orch.archivePath(id, tt.opts))
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.DefaultDirectory = "/srv/crx"
	cfg.Security.ReverifyOnDisk = true
	cfg.Performance.MaxConcurrentDownloads = 7

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, Options{
		OutputDir:      "/srv/crx",
		AutoCleanup:    true,
		AutoExtract:    true,
		EnableCaching:  true,
		ValidateID:     true,
		CheckIntegrity: true,
		ReverifyOnDisk: true,
		Concurrency:    7,
	}, opts)
}
