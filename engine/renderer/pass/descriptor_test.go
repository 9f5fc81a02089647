package pass

import (
	"testing"

	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutKindCollision(t *testing.T) {
	_, ctx := newTestContext(t)
	table := NewDescriptorResourceTable(ctx, "test")
	require.True(t, table.AddOrSetLayoutDescriptor(0, metadata.ResourceKindTexture2D, metadata.StageMaskGraphics))
	require.True(t, table.Build())
	assert.False(t, table.NeedsLayoutRebuild())

	assert.False(t, table.AddOrSetLayoutDescriptor(0, metadata.ResourceKindStorageBuffer, metadata.StageMaskGraphics))
	assert.True(t, table.NeedsLayoutRebuild())
	kind, _ := table.Kind(0)
	assert.Equal(t, metadata.ResourceKindStorageBuffer, kind)

	// stage changes keep the kind but still need a new layout
	require.True(t, table.Build())
	assert.True(t, table.AddOrSetLayoutDescriptor(0, metadata.ResourceKindStorageBuffer, metadata.StageMaskCompute))
	assert.True(t, table.NeedsLayoutRebuild())
}

func TestUnconnectedBindingsUsePlaceholders(t *testing.T) {
	dev, ctx := newTestContext(t)
	table := NewDescriptorResourceTable(ctx, "test")
	require.True(t, table.AddOrSetLayoutDescriptor(0, metadata.ResourceKindTexture2D, metadata.StageMaskGraphics))
	require.True(t, table.AddOrSetLayoutDescriptor(1, metadata.ResourceKindStorageBuffer, metadata.StageMaskGraphics))
	require.True(t, table.Build())
	require.True(t, table.UpdateDescriptors())
	assert.True(t, table.IsWritten())

	writes := dev.SetWrites(table.Set())
	require.Len(t, writes, 2)
	assert.True(t, writes[0].Placeholder)
	assert.NotNil(t, writes[0].Image)
	assert.True(t, writes[1].Placeholder)
	assert.NotNil(t, writes[1].Buffer)

	img, err := dev.CreateImage(gpu.ImageCreateInfo{Extent: metadata.NewExtent(4, 4), Format: metadata.ImageFormatRGBA8Unorm})
	require.NoError(t, err)
	require.True(t, table.AddOrSetWriteDescriptorImage(0, metadata.ResourceKindTexture2D, &gpu.DescriptorImageInfo{Image: img}))
	require.True(t, table.UpdateDescriptors())
	pushed, ok := table.Pushed(0)
	require.True(t, ok)
	assert.False(t, pushed.Placeholder)
	assert.Equal(t, img, pushed.Image.Image)

	// disconnecting falls back to the placeholder again
	require.True(t, table.AddOrSetWriteDescriptorImage(0, metadata.ResourceKindTexture2D, nil))
	assert.True(t, table.NeedsUpdate())
	require.True(t, table.UpdateDescriptors())
	pushed, _ = table.Pushed(0)
	assert.True(t, pushed.Placeholder)
}

func TestMismatchedWriteIsSkipped(t *testing.T) {
	dev, ctx := newTestContext(t)
	table := NewDescriptorResourceTable(ctx, "test")
	require.True(t, table.AddOrSetLayoutDescriptor(0, metadata.ResourceKindTexture2D, metadata.StageMaskGraphics))
	require.True(t, table.Build())
	require.True(t, table.UpdateDescriptors())
	before := dev.SetWrites(table.Set())
	updates := dev.Stats().DescriptorUpdates

	img, err := dev.CreateImage(gpu.ImageCreateInfo{Extent: metadata.NewExtent(4, 4), Format: metadata.ImageFormatRGBA8Unorm, Cube: true})
	require.NoError(t, err)
	require.True(t, table.AddOrSetWriteDescriptorImage(0, metadata.ResourceKindTextureCube, &gpu.DescriptorImageInfo{Image: img}))

	assert.False(t, table.UpdateDescriptors())
	assert.Equal(t, updates, dev.Stats().DescriptorUpdates)
	assert.Equal(t, before, dev.SetWrites(table.Set()))
}

func TestWritesNeedADeclaredBinding(t *testing.T) {
	_, ctx := newTestContext(t)
	table := NewDescriptorResourceTable(ctx, "test")
	assert.False(t, table.AddOrSetWriteDescriptorBuffer(3, metadata.ResourceKindUniformBuffer, nil))
	assert.False(t, table.AddOrSetWriteDescriptorBuffer(3, metadata.ResourceKindTexture2D, nil))
	assert.False(t, table.UpdateDescriptors(), "update before build")
}

func TestIdenticalWritesDoNotDirtyTheTable(t *testing.T) {
	_, ctx := newTestContext(t)
	table := NewDescriptorResourceTable(ctx, "test")
	require.True(t, table.AddOrSetLayoutDescriptor(0, metadata.ResourceKindUniformBuffer, metadata.StageMaskGraphics))
	require.True(t, table.Build())
	info := &gpu.DescriptorBufferInfo{Buffer: 42, Range: 16}
	require.True(t, table.AddOrSetWriteDescriptorBuffer(0, metadata.ResourceKindUniformBuffer, info))
	table.needsUpdate = false

	require.True(t, table.AddOrSetWriteDescriptorBuffer(0, metadata.ResourceKindUniformBuffer, &gpu.DescriptorBufferInfo{Buffer: 42, Range: 16}))
	assert.False(t, table.NeedsUpdate())
}

func TestBindingsAreSorted(t *testing.T) {
	_, ctx := newTestContext(t)
	table := NewDescriptorResourceTable(ctx, "test")
	for _, b := range []uint32{4, 0, 2} {
		require.True(t, table.AddOrSetLayoutDescriptor(b, metadata.ResourceKindUniformBuffer, metadata.StageMaskGraphics))
	}
	var got []uint32
	for _, b := range table.Bindings() {
		got = append(got, b.Binding)
	}
	assert.Equal(t, []uint32{0, 2, 4}, got)

	table.RemoveLayoutDescriptor(2)
	assert.Len(t, table.Bindings(), 2)
}

func TestStagedLayoutLeavesTheCurrentSetUsable(t *testing.T) {
	dev, ctx := newTestContext(t)
	table := NewDescriptorResourceTable(ctx, "test")
	require.True(t, table.AddOrSetLayoutDescriptor(0, metadata.ResourceKindUniformBuffer, metadata.StageMaskGraphics))
	require.True(t, table.Build())
	require.True(t, table.UpdateDescriptors())
	layout, set := table.Layout(), table.Set()

	require.True(t, table.AddOrSetLayoutDescriptor(1, metadata.ResourceKindTexture2D, metadata.StageMaskGraphics))
	require.True(t, table.Stage())
	assert.False(t, table.NeedsLayoutRebuild())
	assert.True(t, table.HasStaged())
	assert.NotEqual(t, layout, table.NextLayout())
	assert.Equal(t, layout, table.Layout())
	assert.Equal(t, set, table.Set())

	// only the bindings of the current layout are written meanwhile
	require.True(t, table.UpdateDescriptors())
	assert.True(t, table.IsWritten())
	assert.Len(t, dev.SetWrites(set), 1)

	// staging again replaces the staged pair
	first := table.NextLayout()
	require.True(t, table.Stage())
	assert.NotEqual(t, first, table.NextLayout())

	next := table.NextLayout()
	require.True(t, table.Commit())
	assert.False(t, table.HasStaged())
	assert.Equal(t, next, table.Layout())
	assert.False(t, table.IsWritten())
	assert.Empty(t, dev.SetWrites(set))
	require.True(t, table.UpdateDescriptors())
	assert.True(t, table.IsWritten())
	assert.Len(t, dev.SetWrites(table.Set()), 2)
	assert.False(t, table.Commit(), "nothing staged")
}
