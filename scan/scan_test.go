package scan

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagedex/index"
)

func openTestStore(t *testing.T) *index.Store {
	t.Helper()
	store, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func writePNG(t *testing.T, path string, seed uint8) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x) * seed, G: uint8(y), B: seed, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestRunEmptyDirectory(t *testing.T) {
	store := openTestStore(t)

	report, err := Run(context.Background(), Options{
		Root:  t.TempDir(),
		Store: store,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Seen)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, 0, report.Failed)
	assert.Empty(t, report.Failures)
}

func TestRunIndexesSupportedFiles(t *testing.T) {
	store := openTestStore(t)
	root := t.TempDir()

	writePNG(t, filepath.Join(root, "a.png"), 3)
	writePNG(t, filepath.Join(root, "b.png"), 5)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	writePNG(t, filepath.Join(root, "sub", "c.png"), 7)
	// Ineligible files are not even counted as seen.
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	report, err := Run(context.Background(), Options{
		Root:   root,
		Prefix: "vault",
		Store:  store,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Seen)
	assert.Equal(t, 3, report.Indexed)
	assert.Equal(t, 0, report.Failed)

	stats, err := store.Stats(context.Background(), "vault")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalImages)
}

func TestRunRescanSkipsUnchanged(t *testing.T) {
	store := openTestStore(t)
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.png"), 3)

	opts := Options{Root: root, Store: store}

	first, err := Run(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, 1, first.Indexed)

	second, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Indexed)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 1, second.Skipped)
}

func TestRunForceReprocesses(t *testing.T) {
	store := openTestStore(t)
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.png"), 3)

	_, err := Run(context.Background(), Options{Root: root, Store: store})
	require.NoError(t, err)

	report, err := Run(context.Background(), Options{Root: root, Store: store, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 0, report.Skipped)
}

func TestRunRecordsPerFileFailures(t *testing.T) {
	store := openTestStore(t)
	root := t.TempDir()

	writePNG(t, filepath.Join(root, "good.png"), 3)
	// Not a RAW container at all, fails decoding but not the scan.
	junk := bytes.Repeat([]byte{0x42, 0x13, 0x00, 0x99}, 128)
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.arw"), junk, 0o644))

	report, err := Run(context.Background(), Options{Root: root, Store: store})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Seen)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Path, "broken.arw")
	assert.Error(t, report.Failures[0].Err)
}

func TestRunDetectsModifiedFile(t *testing.T) {
	store := openTestStore(t)
	root := t.TempDir()
	path := filepath.Join(root, "a.png")
	writePNG(t, path, 3)

	_, err := Run(context.Background(), Options{Root: root, Store: store})
	require.NoError(t, err)

	writePNG(t, path, 9)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))

	report, err := Run(context.Background(), Options{Root: root, Store: store})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
}

func TestRunMissingRoot(t *testing.T) {
	store := openTestStore(t)
	_, err := Run(context.Background(), Options{
		Root:  filepath.Join(t.TempDir(), "nope"),
		Store: store,
	})
	assert.Error(t, err)
}

func TestRunRootIsFile(t *testing.T) {
	store := openTestStore(t)
	path := filepath.Join(t.TempDir(), "file.png")
	writePNG(t, path, 3)

	_, err := Run(context.Background(), Options{Root: path, Store: store})
	assert.Error(t, err)
}

func TestRunNoStore(t *testing.T) {
	_, err := Run(context.Background(), Options{Root: t.TempDir()})
	assert.Error(t, err)
}

func TestRunCancelledContext(t *testing.T) {
	store := openTestStore(t)
	root := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writePNG(t, filepath.Join(root, name), 3)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Run(ctx, Options{Root: root, Store: store})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 3, report.Seen)
	assert.Equal(t, 0, report.Indexed)
}
