package pass

import (
	"context"
	"testing"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/shaders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func computeSources(code string) []shaders.Source {
	return shaders.StageSources("particles", map[metadata.StageKind]string{metadata.StageCompute: code})
}

func TestPipelineKeepsFallbackOnCompileFailure(t *testing.T) {
	dev, ctx := newTestContext(t)
	layout, err := dev.CreateDescriptorLayout(nil)
	require.NoError(t, err)

	p := NewPipelineResource(ctx, shaders.StubCompiler{}, "particles", metadata.GenericTypeCompute1D)
	assert.Equal(t, metadata.PipelineStateUncompiled, p.State())

	require.True(t, p.Compile(context.Background(), computeSources(particlesComp)))
	assert.Equal(t, metadata.PipelineStateCompiled, p.State())
	require.True(t, p.Build(PipelineBuildInfo{Layout: layout}))
	assert.Equal(t, metadata.PipelineStateReady, p.State())
	good := p.Handle()

	p.Invalidate()
	assert.Equal(t, metadata.PipelineStateStale, p.State())

	assert.False(t, p.Compile(context.Background(), computeSources("#version 450\nvoid main() {")))
	assert.Equal(t, metadata.PipelineStateCompileFailed, p.State())
	assert.True(t, core.Is(p.LastError(), core.ErrShaderCompilation))
	assert.True(t, p.HasFallback())
	assert.Equal(t, good, p.Handle())
	assert.True(t, dev.IsLive(good))
}

func TestPipelineKeepsFallbackOnBuildFailure(t *testing.T) {
	dev, ctx := newTestContext(t)
	layout, err := dev.CreateDescriptorLayout(nil)
	require.NoError(t, err)

	p := NewPipelineResource(ctx, shaders.StubCompiler{}, "particles", metadata.GenericTypeCompute1D)
	require.True(t, p.Compile(context.Background(), computeSources(particlesComp)))
	require.True(t, p.Build(PipelineBuildInfo{Layout: layout}))
	good := p.Handle()

	dev.FailNextPipelines(1)
	assert.False(t, p.Build(PipelineBuildInfo{Layout: layout}))
	assert.Equal(t, good, p.Handle())
	assert.Equal(t, 1, dev.LivePipelines())

	require.True(t, p.Build(PipelineBuildInfo{Layout: layout}))
	assert.NotEqual(t, good, p.Handle())
	assert.False(t, dev.IsLive(good))
	assert.Equal(t, 2, p.BuildCount())
}

func TestPipelineStageRequirements(t *testing.T) {
	_, ctx := newTestContext(t)
	raster := NewPipelineResource(ctx, shaders.StubCompiler{}, "grading", metadata.GenericTypePixel)
	only := shaders.StageSources("grading", map[metadata.StageKind]string{metadata.StageFragment: gradingFrag})
	assert.False(t, raster.Compile(context.Background(), only))
	assert.False(t, raster.HasModules())

	compute := NewPipelineResource(ctx, shaders.StubCompiler{}, "particles", metadata.GenericTypeCompute2D)
	assert.False(t, compute.Build(PipelineBuildInfo{}), "build before compile")
}

func TestRayTracingPipelineNeedsSupport(t *testing.T) {
	dev, ctx := newTestContext(t)
	layout, err := dev.CreateDescriptorLayout(nil)
	require.NoError(t, err)
	p := NewPipelineResource(ctx, shaders.StubCompiler{}, "rt", metadata.GenericTypeRtx)
	require.True(t, p.Compile(context.Background(), shaders.StageSources("rt", map[metadata.StageKind]string{
		metadata.StageRayGen: "#version 460\nvoid main() {}\n",
	})))
	assert.False(t, p.Build(PipelineBuildInfo{Layout: layout}))
	assert.True(t, core.Is(p.LastError(), core.ErrUnsupported))
}

func TestPipelineDestroy(t *testing.T) {
	dev, ctx := newTestContext(t)
	layout, err := dev.CreateDescriptorLayout(nil)
	require.NoError(t, err)
	p := NewPipelineResource(ctx, shaders.StubCompiler{}, "particles", metadata.GenericTypeCompute1D)
	require.True(t, p.Compile(context.Background(), computeSources(particlesComp)))
	require.True(t, p.Build(PipelineBuildInfo{Layout: layout}))

	p.Destroy()
	p.Destroy()
	assert.Zero(t, dev.LivePipelines())
	assert.Equal(t, metadata.PipelineStateUncompiled, p.State())
	assert.False(t, p.HasModules())
}
