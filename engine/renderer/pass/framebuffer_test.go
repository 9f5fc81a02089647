package pass

import (
	"testing"

	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameBufferRejectsZeroExtent(t *testing.T) {
	dev, ctx := newTestContext(t)
	fb := NewFrameBufferResource(ctx, "grading", false)
	assert.False(t, fb.Create(metadata.NewExtent(0, 600), metadata.ImageFormatRGBA32Sfloat, 1, 1))
	assert.False(t, fb.IsCreated())
	assert.Zero(t, dev.Stats().ImagesCreated)

	require.True(t, fb.Create(metadata.NewExtent(800, 600), metadata.ImageFormatRGBA32Sfloat, 1, 2))
	assert.False(t, fb.Resize(metadata.NewExtent(800, 0), 0))
	assert.Equal(t, metadata.NewExtent(800, 600), fb.Extent())
	assert.NotNil(t, fb.FrontImageInfo(1))
}

func TestFrameBufferCoalescesResizeRequests(t *testing.T) {
	dev, ctx := newTestContext(t)
	fb := NewFrameBufferResource(ctx, "grading", false)
	require.True(t, fb.Create(metadata.NewExtent(640, 480), metadata.ImageFormatRGBA32Sfloat, 1, 1))
	dev.ResetStats()

	fb.RequestResize(metadata.NewExtent(256, 256), 0)
	fb.RequestResize(metadata.NewExtent(800, 600), 0)
	assert.True(t, fb.HasPendingResize())
	require.True(t, fb.ResizeIfNeeded())
	assert.False(t, fb.ResizeIfNeeded())

	assert.Equal(t, []metadata.Extent{metadata.NewExtent(800, 600)}, dev.ImageExtents)
	assert.Equal(t, 1, fb.ResizeCount())
	assert.Equal(t, 1, dev.Stats().ImagesDestroyed)

	// same size is not a resize
	fb.RequestResize(metadata.NewExtent(800, 600), 1)
	assert.False(t, fb.ResizeIfNeeded())
	assert.Equal(t, 1, fb.ResizeCount())
}

func TestFrameBufferPingPong(t *testing.T) {
	_, ctx := newTestContext(t)
	fb := NewFrameBufferResource(ctx, "feedback", true)
	require.True(t, fb.Create(metadata.NewExtent(64, 64), metadata.ImageFormatRGBA8Unorm, 1, 1))

	front := fb.FrontImageInfo(0)
	back := fb.BackImageInfo(0)
	require.NotNil(t, front)
	require.NotNil(t, back)
	assert.NotEqual(t, front.Image, back.Image)
	target := fb.Target()

	fb.Swap()
	assert.Equal(t, back.Image, fb.FrontImageInfo(0).Image)
	assert.Equal(t, front.Image, fb.BackImageInfo(0).Image)
	assert.NotEqual(t, target, fb.Target())

	single := NewFrameBufferResource(ctx, "single", false)
	require.True(t, single.Create(metadata.NewExtent(64, 64), metadata.ImageFormatRGBA8Unorm, 1, 1))
	img := single.FrontImageInfo(0).Image
	single.Swap()
	assert.Equal(t, img, single.FrontImageInfo(0).Image)
	assert.Equal(t, img, single.BackImageInfo(0).Image)
}

func TestFrameBufferRespectsDeviceLimit(t *testing.T) {
	_, ctx := newTestContext(t)
	fb := NewFrameBufferResource(ctx, "huge", false)
	limit := ctx.Limits().MaxImageDimension2D
	assert.False(t, fb.Create(metadata.NewExtent(limit+1, 16), metadata.ImageFormatRGBA8Unorm, 1, 1))
}

func TestFrameBufferDestroy(t *testing.T) {
	dev, ctx := newTestContext(t)
	fb := NewFrameBufferResource(ctx, "grading", true)
	require.True(t, fb.Create(metadata.NewExtent(32, 32), metadata.ImageFormatRGBA8Unorm, 1, 2))
	fb.Destroy()
	fb.Destroy()
	s := dev.Stats()
	assert.Equal(t, s.ImagesCreated, s.ImagesDestroyed)
	assert.Nil(t, fb.FrontImageInfo(0))
}
