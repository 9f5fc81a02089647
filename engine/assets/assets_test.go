package assets

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/headless"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.RGBA{R: 255, A: 255})
	src.Set(0, 1, color.RGBA{B: 255, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, src))
}

func TestLoadImageDecodesToRGBA8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lut.png")
	writePNG(t, path)

	img, err := LoadImage(path, false)
	require.NoError(t, err)
	assert.Equal(t, "lut.png", img.Name)
	assert.Equal(t, metadata.NewExtent(2, 2), img.Extent)
	require.Len(t, img.Pixels, 16)
	assert.Equal(t, []byte{255, 0, 0, 255}, img.Pixels[0:4])

	flipped, err := LoadImage(path, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 255, 255}, flipped.Pixels[0:4])
}

func TestLoadImageRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
	_, err := LoadImage(path, false)
	assert.Error(t, err)
}

func TestResizedAndSolid(t *testing.T) {
	img := Solid(metadata.NewExtent(4, 4), color.RGBA{G: 200, A: 255})
	small := img.Resized(metadata.NewExtent(2, 1))
	assert.Equal(t, metadata.NewExtent(2, 1), small.Extent)
	require.Len(t, small.Pixels, 8)
	assert.Equal(t, byte(200), small.Pixels[1])
}

func TestUploadCreatesSampledImage(t *testing.T) {
	d := headless.New()
	tex, err := Solid(metadata.NewExtent(8, 8), color.RGBA{A: 255}).Upload(d)
	require.NoError(t, err)
	assert.Equal(t, tex.Image, tex.DescriptorInfo().Image)
	assert.Equal(t, 1, d.Stats().ImageWrites)

	tex.Destroy(d)
	assert.Equal(t, 1, d.Stats().ImagesDestroyed)
}

func TestShaderTrackerReportsWrites(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "inc"), 0o755))
	tracker, err := NewShaderTracker(dir, 8)
	require.NoError(t, err)
	defer tracker.Close()

	frag := filepath.Join(tracker.Root(), "grade.frag")
	require.NoError(t, os.WriteFile(frag, []byte("void main() {}"), 0o644))

	var files []string
	assert.Eventually(t, func() bool {
		files = append(files, tracker.DrainChanged()...)
		return len(files) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, files, frag)
	assert.Empty(t, tracker.DrainChanged())
}

func TestShaderTrackerOverflowReportsEveryKnownFile(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewShaderTracker(dir, 1)
	require.NoError(t, err)
	defer tracker.Close()

	a := filepath.Join(tracker.Root(), "a.vert")
	b := filepath.Join(tracker.Root(), "b.frag")
	tracker.markChanged(a)
	tracker.markChanged(b)
	tracker.markChanged(a)

	assert.Equal(t, []string{a, b}, tracker.DrainChanged())
	assert.Empty(t, tracker.DrainChanged())
}

func TestShaderTrackerIgnoresEditorFiles(t *testing.T) {
	assert.True(t, ignored("/tmp/.grade.frag.swp"))
	assert.True(t, ignored("/tmp/grade.frag~"))
	assert.False(t, ignored("/tmp/grade.frag"))
}

func TestShaderTrackerCloseTwice(t *testing.T) {
	tracker, err := NewShaderTracker(t.TempDir(), 4)
	require.NoError(t, err)
	require.NoError(t, tracker.Close())
	assert.ErrorIs(t, tracker.Close(), core.ErrTrackerClosed)
}
