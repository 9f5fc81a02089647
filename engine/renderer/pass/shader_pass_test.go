package pass

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumo/engine/math"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/headless"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/shaders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixelPassUploadsOnlyChangedBuffers(t *testing.T) {
	dev, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	require.True(t, p.InitPixel(metadata.NewExtent(640, 480), 1, false))
	assert.Equal(t, metadata.PassStateLoaded, p.State())
	assert.Equal(t, 1, p.beforeInit)
	assert.Equal(t, 1, p.afterSucceed)
	dev.ResetStats()

	var writes []int
	for frame := uint64(1); frame <= 3; frame++ {
		before := dev.Stats().BufferWrites
		cmds := runFrame(t, dev, p, frame)
		writes = append(writes, dev.Stats().BufferWrites-before)

		draws := headless.Filter(cmds, headless.OpDrawIndexed)
		require.Len(t, draws, 1, "frame %d", frame)
		assert.Equal(t, uint32(6), draws[0].Counts[0])
		assert.Equal(t, frame, p.LastExecutedFrame())
	}
	assert.Equal(t, []int{1, 0, 0}, writes)

	p.Buffer("params").SetFloat("u_gain", 1.5)
	runFrame(t, dev, p, 4)
	assert.Equal(t, 2, dev.Stats().BufferWrites)
	data, ok := dev.BufferData(p.Buffer("params").Handle())
	require.True(t, ok)
	gain, _ := p.Buffer("params").Bytes("u_gain")
	assert.Equal(t, gain, data[:4])
}

func TestRenderPassRecordsInOrder(t *testing.T) {
	dev, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	require.True(t, p.InitPixel(metadata.NewExtent(64, 64), 1, false))

	cmds := runFrame(t, dev, p, 1)
	var ops []headless.Op
	for _, c := range cmds {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []headless.Op{
		headless.OpBeginRenderPass,
		headless.OpSetViewport,
		headless.OpSetLineWidth,
		headless.OpBindPipeline,
		headless.OpBindDescriptorSet,
		headless.OpBindVertexBuffer,
		headless.OpBindIndexBuffer,
		headless.OpDrawIndexed,
		headless.OpEndRenderPass,
	}, ops)
	assert.Equal(t, uint64(p.Pipeline().Handle()), cmds[3].Handle)
	assert.Equal(t, uint64(p.Descriptors().Set()), cmds[4].Handle)
}

func TestResizeRequestsCoalesce(t *testing.T) {
	dev, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	require.True(t, p.InitPixel(metadata.NewExtent(640, 480), 1, false))
	pipeline := p.Pipeline().Handle()
	builds := p.Pipeline().BuildCount()
	dev.ResetStats()

	require.True(t, p.NeedResizeByResizeEvent(metadata.NewExtent(256, 256), 0))
	require.True(t, p.NeedResizeByResizeEvent(metadata.NewExtent(800, 600), 0))
	assert.Equal(t, metadata.PassStateNeedsResize, p.State())

	runFrame(t, dev, p, 1)
	assert.Equal(t, []metadata.Extent{metadata.NewExtent(800, 600)}, dev.ImageExtents)
	assert.Equal(t, metadata.NewExtent(800, 600), p.GetOutputSize())
	assert.Equal(t, metadata.PassStateLoaded, p.State())
	assert.Equal(t, 1, p.resized)

	// the pipeline does not depend on the attachments
	assert.Equal(t, pipeline, p.Pipeline().Handle())
	assert.Equal(t, builds, p.Pipeline().BuildCount())
	assert.Zero(t, dev.Stats().PipelinesCreated)
}

func TestResizePermissions(t *testing.T) {
	_, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	assert.False(t, p.NeedResizeByResizeEvent(metadata.NewExtent(10, 10), 0), "not loaded")
	require.True(t, p.InitPixel(metadata.NewExtent(64, 64), 1, false))

	assert.False(t, p.NeedResizeByHand(metadata.NewExtent(32, 32), 0))
	p.AllowResizeByHand(true)
	assert.True(t, p.NeedResizeByHand(metadata.NewExtent(32, 32), 0))
	assert.True(t, p.ResizeIfNeeded())
	assert.True(t, p.IsJustResized())

	p.AllowResizeOnResizeEvents(false)
	assert.False(t, p.NeedResizeByResizeEvent(metadata.NewExtent(128, 128), 0))

	p.AllowResizeOnResizeEvents(true)
	assert.False(t, p.NeedResizeByResizeEventIfChanged(metadata.NewExtent(32, 32), 0))
	assert.False(t, p.NeedResizeByResizeEvent(metadata.NewExtent(0, 128), 0))
}

func TestBufferQualityScalesOutput(t *testing.T) {
	_, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	p.SetBufferQuality(9)
	assert.Equal(t, float32(1), p.BufferQuality())
	p.SetBufferQuality(0.5)
	require.True(t, p.InitPixel(metadata.NewExtent(64, 64), 1, false))

	require.True(t, p.NeedResizeByResizeEvent(metadata.NewExtent(800, 600), 0))
	require.True(t, p.ResizeIfNeeded())
	assert.Equal(t, metadata.NewExtent(400, 300), p.GetOutputSize())
	assert.InDelta(t, 4.0/3.0, p.GetOutputRatio(), 1e-6)
}

func TestFailedReloadKeepsThePreviousPipeline(t *testing.T) {
	dev, ctx := newTestContext(t)
	dir := t.TempDir()
	p := newGradingPass(ctx, shaders.StubCompiler{})
	p.SetShaderDir(dir)
	require.True(t, p.InitPixel(metadata.NewExtent(64, 64), 1, false))

	frag := filepath.Join(dir, "grading.frag")
	written, err := os.ReadFile(frag)
	require.NoError(t, err)
	assert.Equal(t, gradingFrag, string(written))
	assert.Contains(t, p.WatchedFiles(), frag)

	good := p.Pipeline().Handle()
	require.NoError(t, os.WriteFile(frag, []byte(brokenFrag), 0o644))
	assert.False(t, p.UpdateShaders([]string{filepath.Join(dir, "other.frag")}))
	require.True(t, p.UpdateShaders([]string{frag}))

	assert.False(t, p.RebuildIfNeeded())
	assert.Equal(t, metadata.PassStateNeedsRebuild, p.State())
	assert.Equal(t, metadata.PipelineStateCompileFailed, p.PipelineState())
	assert.True(t, p.Pipeline().HasFallback())

	cmds := runFrame(t, dev, p, 1)
	binds := headless.Filter(cmds, headless.OpBindPipeline)
	require.Len(t, binds, 1)
	assert.Equal(t, uint64(good), binds[0].Handle)
	assert.Len(t, headless.Filter(cmds, headless.OpDrawIndexed), 1)

	// no retry until the source changes again
	created := dev.Stats().PipelinesCreated
	assert.False(t, p.RebuildIfNeeded())
	assert.Equal(t, created, dev.Stats().PipelinesCreated)

	fixed := gradingFrag + "// tweaked\n"
	require.NoError(t, os.WriteFile(frag, []byte(fixed), 0o644))
	require.True(t, p.UpdateShaders([]string{frag}))
	require.True(t, p.RebuildIfNeeded())
	assert.Equal(t, metadata.PassStateLoaded, p.State())
	assert.Equal(t, metadata.PipelineStateReady, p.PipelineState())
	assert.NotEqual(t, good, p.Pipeline().Handle())
	assert.False(t, dev.IsLive(good))
}

func TestInitFailureReleasesEverything(t *testing.T) {
	dev, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	p.frag = brokenFrag

	assert.False(t, p.InitPixel(metadata.NewExtent(64, 64), 1, false))
	assert.Equal(t, metadata.PassStateUnloaded, p.State())
	assert.Equal(t, 1, p.afterFail)
	assert.Zero(t, p.afterSucceed)
	s := dev.Stats()
	assert.Equal(t, s.BuffersCreated, s.BuffersDestroyed)
	assert.Zero(t, dev.LivePipelines())
	assert.Nil(t, p.FrameBuffer())

	p.frag = gradingFrag
	require.True(t, p.InitPixel(metadata.NewExtent(64, 64), 1, false))
	assert.Equal(t, 1, p.afterSucceed)
}

func TestInitRejectsZeroExtent(t *testing.T) {
	dev, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	assert.False(t, p.InitPixel(metadata.NewExtent(0, 0), 1, false))
	assert.Zero(t, dev.Stats().ImagesCreated)

	require.True(t, p.InitPixel(metadata.NewExtent(8, 8), 1, false))
	assert.False(t, p.InitPixel(metadata.NewExtent(8, 8), 1, false), "already loaded")
}

func TestUnitReleasesInOneWait(t *testing.T) {
	dev, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	require.True(t, p.InitPixel(metadata.NewExtent(64, 64), 2, true))
	runFrame(t, dev, p, 1)

	waits := dev.Stats().WaitIdles
	p.Unit()
	s := dev.Stats()
	assert.Equal(t, waits+1, s.WaitIdles)
	assert.Equal(t, s.BuffersCreated, s.BuffersDestroyed)
	assert.Equal(t, s.PipelinesCreated, s.PipelinesDestroyed)
	assert.Zero(t, dev.LivePipelines())
	assert.Equal(t, metadata.PassStateUnloaded, p.State())
	assert.False(t, p.Mesh.IsBuilt())

	p.Unit()
	assert.Equal(t, s, dev.Stats())

	cmd, err := dev.BeginCommands()
	require.NoError(t, err)
	assert.False(t, p.Execute(cmd, 2))
}

func TestTextureInputsFallBackToPlaceholders(t *testing.T) {
	dev, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	require.True(t, p.InitPixel(metadata.NewExtent(64, 64), 1, false))
	w, ok := p.Descriptors().Pushed(1)
	require.True(t, ok)
	assert.True(t, w.Placeholder)

	img, err := dev.CreateImage(gpu.ImageCreateInfo{Extent: metadata.NewExtent(16, 16), Format: metadata.ImageFormatRGBA8Unorm})
	require.NoError(t, err)
	size := metadata.NewExtent(16, 16)
	p.SetTexture(1, &gpu.DescriptorImageInfo{Image: img}, &size)
	require.True(t, p.EnableTextureUse("u_use_input"))
	runFrame(t, dev, p, 1)

	w, _ = p.Descriptors().Pushed(1)
	assert.False(t, w.Placeholder)
	assert.Equal(t, img, w.Image.Image)
	got, ok := p.TextureInputSize(1)
	require.True(t, ok)
	assert.Equal(t, size, got)
	use, _ := p.Buffer("params").Float("u_use_input")
	assert.Equal(t, float32(1), use)

	p.SetTexture(1, nil, nil)
	runFrame(t, dev, p, 2)
	w, _ = p.Descriptors().Pushed(1)
	assert.True(t, w.Placeholder)
	_, ok = p.TextureInputSize(1)
	assert.False(t, ok)
}

func TestCanRenderGatesExecute(t *testing.T) {
	dev, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	require.True(t, p.InitPixel(metadata.NewExtent(64, 64), 1, false))
	p.SetCanRender(false)
	cmds := runFrame(t, dev, p, 1)
	assert.Empty(t, cmds)
	assert.Zero(t, p.LastExecutedFrame())
}

func TestTopologyChanges(t *testing.T) {
	dev, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	p.EnableDynamicTopology(true)
	require.True(t, p.InitPixel(metadata.NewExtent(64, 64), 1, false))
	builds := p.Pipeline().BuildCount()

	p.SetPrimitiveTopology(metadata.TopologyTriangleStrip)
	assert.Equal(t, metadata.PassStateLoaded, p.State())
	cmds := runFrame(t, dev, p, 1)
	topo := headless.Filter(cmds, headless.OpSetTopology)
	require.Len(t, topo, 1)
	assert.Equal(t, metadata.TopologyTriangleStrip, topo[0].Topology)
	assert.Equal(t, builds, p.Pipeline().BuildCount())

	p.SetPrimitiveTopology(metadata.TopologyLineList)
	assert.Equal(t, metadata.PassStateNeedsRebuild, p.State())
	require.True(t, p.RebuildIfNeeded())
	assert.Equal(t, builds+1, p.Pipeline().BuildCount())
}

func TestLineWidthIsClamped(t *testing.T) {
	_, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	p.SetLineWidthRange(4, 1, 2)
	p.SetLineWidth(10)
	lw := p.GetLineWidth()
	assert.Equal(t, float32(1), lw.Min)
	assert.Equal(t, float32(4), lw.Value)
}

func TestPushConstants(t *testing.T) {
	dev, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	require.True(t, p.InitPixel(metadata.NewExtent(64, 64), 1, false))
	assert.False(t, p.SetPushConstants(metadata.StageMaskGraphics, make([]byte, 6)))
	assert.False(t, p.SetPushConstants(metadata.StageMaskGraphics, make([]byte, ctx.Limits().MaxPushConstantsSize+4)))

	require.True(t, p.SetPushConstants(metadata.StageMaskGraphics, []byte{1, 0, 0, 0}))
	assert.Equal(t, metadata.PassStateNeedsRebuild, p.State())
	cmds := runFrame(t, dev, p, 1)
	push := headless.Filter(cmds, headless.OpPushConstants)
	require.Len(t, push, 1)
	assert.Equal(t, []byte{1, 0, 0, 0}, push[0].Data)

	// same size, no rebuild
	require.True(t, p.SetPushConstants(metadata.StageMaskGraphics, []byte{2, 0, 0, 0}))
	assert.Equal(t, metadata.PassStateLoaded, p.State())
}

func TestComputeDispatchSize(t *testing.T) {
	limits := gpu.DefaultLimits()
	limits.MaxComputeWorkGroupCount = [3]uint32{4, 65535, 65535}
	dev, ctx := newTestContext(t, headless.WithLimits(limits))

	p := newParticlesPass(ctx)
	require.True(t, p.InitCompute2D(metadata.NewExtent(100, 50)))
	assert.Equal(t, math.NewUVec3(4, 7, 1), p.DispatchSize())

	p.SetCountIterations(3)
	cmds := runFrame(t, dev, p, 1)
	dispatches := headless.Filter(cmds, headless.OpDispatch)
	require.Len(t, dispatches, 3)
	assert.Equal(t, [3]uint32{4, 7, 1}, dispatches[0].Counts)
	assert.Empty(t, headless.Filter(cmds, headless.OpBeginRenderPass))
	assert.Nil(t, p.FrameBuffer())

	require.True(t, p.NeedResizeByResizeEvent(metadata.NewExtent(16, 16), 0))
	require.True(t, p.ResizeIfNeeded())
	assert.Equal(t, math.NewUVec3(2, 2, 1), p.DispatchSize())
}

func TestComputeLocalGroupSizeIsClamped(t *testing.T) {
	_, ctx := newTestContext(t)
	p := newParticlesPass(ctx)
	p.SetLocalGroupSize(math.NewUVec3(1024, 0, 1))
	assert.Equal(t, math.NewUVec3(128, 1, 1), p.LocalGroupSize())
	p.SetDispatchSize1D(1000)
	assert.Equal(t, math.NewUVec3(8, 1, 1), p.DispatchSize())
}

func TestStorageBufferSharing(t *testing.T) {
	dev, ctx := newTestContext(t)
	producer := newParticlesPass(ctx)
	require.True(t, producer.InitCompute1D(1024))

	consumer := &storageReader{}
	consumer.ComputePass = NewComputePass(ctx, shaders.StubCompiler{}, "reader", consumer, math.NewUVec3(64, 1, 1))
	require.True(t, consumer.InitCompute1D(1024))
	w, _ := consumer.Descriptors().Pushed(0)
	assert.True(t, w.Placeholder)

	info := producer.GetDescriptorBufferInfo(0)
	require.NotNil(t, info)
	consumer.SetStorageBuffer(0, info)
	runFrame(t, dev, consumer, 1)
	w, _ = consumer.Descriptors().Pushed(0)
	assert.False(t, w.Placeholder)
	assert.Equal(t, info.Buffer, w.Buffer.Buffer)
}

type storageReader struct {
	*ComputePass
}

func (s *storageReader) StageSources() map[metadata.StageKind]string {
	return map[metadata.StageKind]string{metadata.StageCompute: particlesComp}
}

func (s *storageReader) DeclareDescriptors() bool {
	return s.AddStorageBufferInput(0, metadata.StageMaskCompute)
}

func TestPassXMLRoundTrip(t *testing.T) {
	_, ctx := newTestContext(t)
	src := newGradingPass(ctx, shaders.StubCompiler{})
	require.True(t, src.InitPixel(metadata.NewExtent(64, 64), 1, false))
	ubo := src.Buffer("params")
	require.True(t, ubo.SetFloat("u_gain", 2.5))
	require.True(t, ubo.SetVec3("u_tint", math.NewVec3(0.25, 0.5, 1)))
	require.True(t, ubo.SetInt32("u_mode", 3))
	src.SetCanRender(false)
	src.SetCountIterations(2)

	data := src.GetXML("\t")
	assert.Contains(t, data, `<field name="u_gain" type="float">2.5</field>`)

	dst := newGradingPass(ctx, shaders.StubCompiler{})
	require.True(t, dst.SetFromXML(data))
	require.True(t, dst.InitPixel(metadata.NewExtent(64, 64), 1, false))

	gain, _ := dst.Buffer("params").Float("u_gain")
	assert.InDelta(t, 2.5, gain, 1e-6)
	tint, _ := dst.Buffer("params").Vec3("u_tint")
	assert.True(t, tint.Compare(math.NewVec3(0.25, 0.5, 1), 1e-6))
	mode, _ := dst.Buffer("params").Int32("u_mode")
	assert.Equal(t, int32(3), mode)
	assert.False(t, dst.CanRender())
	assert.Equal(t, uint32(2), dst.CountIterations())
	assert.Equal(t, src.GetXML("\t"), dst.GetXML("\t"))

	assert.False(t, dst.SetFromXML("<shader_pass>"))
}

func TestModelRebuild(t *testing.T) {
	dev, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	require.True(t, p.InitPixel(metadata.NewExtent(64, 64), 1, false))
	before := p.Mesh.vertexBuffer.Handle()

	p.SetModel(func() ([]math.QuadVertex, []uint32) {
		v, _ := FullScreenQuad()
		return v[:3], nil
	})
	p.RebuildIfNeeded()
	assert.NotEqual(t, before, p.Mesh.vertexBuffer.Handle())
	cmds := runFrame(t, dev, p, 1)
	draws := headless.Filter(cmds, headless.OpDraw)
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(3), draws[0].Counts[0])
}

type pointCloud struct {
	*VertexShaderPass
}

func (p *pointCloud) StageSources() map[metadata.StageKind]string {
	return map[metadata.StageKind]string{
		metadata.StageVertex:   "#version 450\nvoid main() { gl_PointSize = 2.0; }\n",
		metadata.StageFragment: "#version 450\nvoid main() {}\n",
	}
}

func TestVertexPassWithoutModel(t *testing.T) {
	dev, ctx := newTestContext(t)
	p := &pointCloud{}
	p.VertexShaderPass = NewVertexShaderPass(ctx, shaders.StubCompiler{}, "points", p, nil)
	p.SetCountVertexs(1000)
	require.True(t, p.InitPixel(metadata.NewExtent(64, 64), 1, false))
	assert.Equal(t, metadata.TopologyPointList, p.Topology())

	cmds := runFrame(t, dev, p, 1)
	draws := headless.Filter(cmds, headless.OpDraw)
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(1000), draws[0].Counts[0])
	assert.Empty(t, headless.Filter(cmds, headless.OpBindVertexBuffer))
}

type tracer struct {
	*RtxPass
}

func (r *tracer) StageSources() map[metadata.StageKind]string {
	return map[metadata.StageKind]string{
		metadata.StageRayGen:  "#version 460\nvoid main() {}\n",
		metadata.StageRayMiss: "#version 460\nvoid main() {}\n",
	}
}

func (r *tracer) DeclareDescriptors() bool {
	return r.AddAccelStructInput(0, metadata.StageMaskRayTracing)
}

func TestRtxPass(t *testing.T) {
	_, plain := newTestContext(t)
	r := &tracer{}
	r.RtxPass = NewRtxPass(plain, shaders.StubCompiler{}, "rt", r)
	assert.False(t, r.InitRtx(metadata.NewExtent(32, 32)))

	dev, ctx := newTestContext(t, headless.WithRayTracing())
	r = &tracer{}
	r.RtxPass = NewRtxPass(ctx, shaders.StubCompiler{}, "rt", r)
	require.True(t, r.InitRtx(metadata.NewExtent(32, 16)))

	cmds := runFrame(t, dev, r, 1)
	rays := headless.Filter(cmds, headless.OpTraceRays)
	require.Len(t, rays, 1)
	assert.Equal(t, [3]uint32{32, 16, 1}, rays[0].Counts)
	assert.Equal(t, uint64(r.sbt.Handle()), rays[0].Handle)
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestShaderDirHoldsOnlyTheStagesOfThePass(t *testing.T) {
	_, ctx := newTestContext(t)

	quadDir := t.TempDir()
	g := newGradingPass(ctx, shaders.StubCompiler{})
	g.SetShaderDir(quadDir)
	require.True(t, g.InitPixel(metadata.NewExtent(64, 64), 1, false))
	assert.ElementsMatch(t, []string{"grading.vert", "grading.frag"}, dirNames(t, quadDir))
	assert.ElementsMatch(t, []string{
		filepath.Join(quadDir, "grading.vert"),
		filepath.Join(quadDir, "grading.frag"),
	}, g.WatchedFiles())

	computeDir := t.TempDir()
	p := newParticlesPass(ctx)
	p.SetShaderDir(computeDir)
	require.True(t, p.InitCompute2D(metadata.NewExtent(32, 32)))
	assert.Equal(t, []string{"particles.comp"}, dirNames(t, computeDir))
	assert.Equal(t, []string{filepath.Join(computeDir, "particles.comp")}, p.WatchedFiles())

	// a stage file given by hand is still read when the pass has no code for it
	geom := filepath.Join(quadDir, "extra.geom")
	require.NoError(t, os.WriteFile(geom, []byte("#version 450\nvoid main() {}\n"), 0o644))
	g.SetShaderFile(metadata.StageGeometry, geom)
	g.ReloadShaders()
	require.True(t, g.RebuildIfNeeded())
	assert.Contains(t, g.WatchedFiles(), geom)
}

func TestResizeIfChangedComparesWithThePendingRequest(t *testing.T) {
	dev, ctx := newTestContext(t)
	p := newGradingPass(ctx, shaders.StubCompiler{})
	require.True(t, p.InitPixel(metadata.NewExtent(64, 64), 1, false))

	require.True(t, p.NeedResizeByResizeEvent(metadata.NewExtent(800, 600), 0))
	assert.False(t, p.NeedResizeByResizeEventIfChanged(metadata.NewExtent(800, 600), 0))
	// going back to the current size replaces the pending request
	assert.True(t, p.NeedResizeByResizeEventIfChanged(metadata.NewExtent(64, 64), 0))
	runFrame(t, dev, p, 1)
	assert.Equal(t, metadata.NewExtent(64, 64), p.GetOutputSize())

	require.True(t, p.NeedResizeByResizeEvent(metadata.NewExtent(800, 600), 0))
	assert.True(t, p.NeedResizeByResizeEventIfChanged(metadata.NewExtent(512, 512), 0))
	runFrame(t, dev, p, 2)
	assert.Equal(t, metadata.NewExtent(512, 512), p.GetOutputSize())
	assert.False(t, p.NeedResizeByResizeEventIfChanged(metadata.NewExtent(512, 512), 0))
}

func TestLayoutChangeWithBrokenSourceKeepsDrawing(t *testing.T) {
	dev, ctx := newTestContext(t)
	dir := t.TempDir()
	p := newGradingPass(ctx, shaders.StubCompiler{})
	p.SetShaderDir(dir)
	require.True(t, p.InitPixel(metadata.NewExtent(64, 64), 1, false))
	runFrame(t, dev, p, 1)

	good := p.Pipeline().Handle()
	oldSet := p.Descriptors().Set()
	oldLayout := p.Descriptors().Layout()

	frag := filepath.Join(dir, "grading.frag")
	require.NoError(t, os.WriteFile(frag, []byte(brokenFrag), 0o644))
	require.True(t, p.UpdateShaders([]string{frag}))
	require.True(t, p.AddTextureInput(2, metadata.ResourceKindTexture2D, metadata.StageMaskGraphics))

	cmds := runFrame(t, dev, p, 2)
	assert.Equal(t, metadata.PassStateNeedsRebuild, p.State())
	assert.True(t, p.Descriptors().HasStaged())
	assert.Equal(t, oldLayout, p.Descriptors().Layout())
	assert.True(t, p.AreWeValidForRender())

	binds := headless.Filter(cmds, headless.OpBindPipeline)
	require.Len(t, binds, 1)
	assert.Equal(t, uint64(good), binds[0].Handle)
	sets := headless.Filter(cmds, headless.OpBindDescriptorSet)
	require.Len(t, sets, 1)
	assert.Equal(t, uint64(oldSet), sets[0].Handle)
	assert.Len(t, headless.Filter(cmds, headless.OpDrawIndexed), 1)
	assert.Len(t, dev.SetWrites(oldSet), 2)

	require.NoError(t, os.WriteFile(frag, []byte(gradingFrag), 0o644))
	require.True(t, p.UpdateShaders([]string{frag}))
	cmds = runFrame(t, dev, p, 3)
	assert.Equal(t, metadata.PassStateLoaded, p.State())
	assert.False(t, p.Descriptors().HasStaged())
	assert.NotEqual(t, oldSet, p.Descriptors().Set())
	assert.Empty(t, dev.SetWrites(oldSet))
	assert.Len(t, dev.SetWrites(p.Descriptors().Set()), 3)
	assert.False(t, dev.IsLive(good))

	sets = headless.Filter(cmds, headless.OpBindDescriptorSet)
	require.Len(t, sets, 1)
	assert.Equal(t, uint64(p.Descriptors().Set()), sets[0].Handle)
}

func TestRtxShaderBindingTableHoldsGroupHandles(t *testing.T) {
	dev, ctx := newTestContext(t, headless.WithRayTracing())
	r := &tracer{}
	r.RtxPass = NewRtxPass(ctx, shaders.StubCompiler{}, "rt", r)
	require.True(t, r.InitRtx(metadata.NewExtent(32, 16)))

	check := func() {
		t.Helper()
		handles, err := dev.ShaderGroupHandles(r.Pipeline().Handle(), sbtHandleSize)
		require.NoError(t, err)
		require.Len(t, handles, 2*sbtHandleSize)

		records, ok := r.ShaderBindingTable()
		require.True(t, ok)
		require.Len(t, records, 2*sbtBaseAlignment)
		assert.Equal(t, handles[:sbtHandleSize], records[:sbtHandleSize])
		assert.Equal(t, handles[sbtHandleSize:], records[sbtBaseAlignment:sbtBaseAlignment+sbtHandleSize])
		assert.NotEqual(t, make([]byte, len(records)), records)

		data, ok := dev.BufferData(r.sbt.Handle())
		require.True(t, ok)
		assert.Equal(t, records, data)
	}
	check()
	first, _ := r.ShaderBindingTable()

	r.ReloadShaders()
	require.True(t, r.RebuildIfNeeded())
	check()
	second, _ := r.ShaderBindingTable()
	assert.NotEqual(t, first, second)
}
