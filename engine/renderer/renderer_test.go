package renderer

import (
	"testing"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/headless"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/pass"
	"github.com/spaghettifunk/lumo/engine/renderer/shaders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vert = `#version 450
layout(location = 0) in vec2 aPosition;
void main() { gl_Position = vec4(aPosition, 0.0, 1.0); }
`

const frag = `#version 450
layout(location = 0) out vec4 fragColor;
void main() { fragColor = vec4(1.0); }
`

type imagePass struct {
	*pass.QuadShaderPass
	withInput bool
}

func newImagePass(ctx *gpu.GraphicsContext, name string, withInput bool) *imagePass {
	p := &imagePass{withInput: withInput}
	p.QuadShaderPass = pass.NewQuadShaderPass(ctx, shaders.StubCompiler{}, name, p)
	return p
}

func (p *imagePass) StageSources() map[metadata.StageKind]string {
	return map[metadata.StageKind]string{metadata.StageVertex: vert, metadata.StageFragment: frag}
}

func (p *imagePass) DeclareBuffers() bool {
	return p.AddUBO("params", 0, metadata.StageMaskGraphics).RegisterFloat("u_gain", 1)
}

func (p *imagePass) DeclareDescriptors() bool {
	if !p.withInput {
		return true
	}
	return p.AddTextureInput(1, metadata.ResourceKindTexture2D, metadata.StageMaskGraphics)
}

func setup(t *testing.T) (*headless.Device, *gpu.GraphicsContext, *BaseRenderer) {
	t.Helper()
	dev := headless.New()
	ctx := gpu.NewGraphicsContext(dev)
	t.Cleanup(ctx.Destroy)
	return dev, ctx, NewBaseRenderer(ctx)
}

func chain(t *testing.T, ctx *gpu.GraphicsContext, r *BaseRenderer, pingPong bool) (*imagePass, *imagePass, PassID, PassID) {
	t.Helper()
	src := newImagePass(ctx, "source", false)
	require.True(t, src.InitPixel(metadata.NewExtent(64, 64), 1, pingPong))
	dst := newImagePass(ctx, "grading", true)
	require.True(t, dst.InitPixel(metadata.NewExtent(64, 64), 1, false))
	srcID, err := r.Add(src)
	require.NoError(t, err)
	dstID, err := r.Add(dst)
	require.NoError(t, err)
	require.NoError(t, r.Connect(Link{Producer: srcID, Output: 0, Consumer: dstID, Input: 1, Kind: LinkTexture}))
	return src, dst, srcID, dstID
}

func TestAddRejectsDuplicateNames(t *testing.T) {
	_, ctx, r := setup(t)
	_, err := r.Add(newImagePass(ctx, "source", false))
	require.NoError(t, err)
	_, err = r.Add(newImagePass(ctx, "source", false))
	assert.True(t, core.Is(err, core.ErrInvalidConfig))
	_, err = r.Add(nil)
	assert.Error(t, err)
}

func TestRenderExecutesPassesInOrder(t *testing.T) {
	dev, ctx, r := setup(t)
	src, dst, _, _ := chain(t, ctx, r, false)
	require.NoError(t, r.Render())
	assert.Equal(t, 2, r.Executed())
	assert.Equal(t, uint64(1), r.Frame())
	assert.Equal(t, uint64(1), src.LastExecutedFrame())
	assert.Equal(t, uint64(1), dst.LastExecutedFrame())

	frames := dev.Frames()
	require.Len(t, frames, 1)
	begins := headless.Filter(frames[0], headless.OpBeginRenderPass)
	require.Len(t, begins, 2)
	assert.Equal(t, uint64(src.FrameBuffer().Target()), begins[0].Handle)
	assert.Equal(t, uint64(dst.FrameBuffer().Target()), begins[1].Handle)

	src.SetCanRender(false)
	require.NoError(t, r.Render())
	assert.Equal(t, 1, r.Executed())
}

func TestLinksFollowResizes(t *testing.T) {
	dev, ctx, r := setup(t)
	src, dst, _, _ := chain(t, ctx, r, false)
	require.NoError(t, r.Render())

	front, _ := src.GetDescriptorImageInfo(0)
	w, ok := dst.Descriptors().Pushed(1)
	require.True(t, ok)
	assert.False(t, w.Placeholder)
	assert.Equal(t, front.Image, w.Image.Image)
	size, _ := dst.TextureInputSize(1)
	assert.Equal(t, metadata.NewExtent(64, 64), size)

	old := front.Image
	r.NeedResizeByResizeEvent(metadata.NewExtent(128, 96))
	require.NoError(t, r.Render())

	front, _ = src.GetDescriptorImageInfo(0)
	assert.NotEqual(t, old, front.Image)
	_, live := dev.ImageInfo(old)
	assert.False(t, live)
	w, _ = dst.Descriptors().Pushed(1)
	assert.Equal(t, front.Image, w.Image.Image)
	size, _ = dst.TextureInputSize(1)
	assert.Equal(t, metadata.NewExtent(128, 96), size)
}

func TestPingPongConsumerReadsTheFrameJustDrawn(t *testing.T) {
	_, ctx, r := setup(t)
	src, dst, _, _ := chain(t, ctx, r, true)
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Render())
		front, _ := src.GetDescriptorImageInfo(0)
		w, _ := dst.Descriptors().Pushed(1)
		assert.Equal(t, front.Image, w.Image.Image, "frame %d", i+1)
	}
}

func TestRemoveAndDisconnectFallBackToPlaceholders(t *testing.T) {
	dev, ctx, r := setup(t)
	_, dst, srcID, dstID := chain(t, ctx, r, false)
	require.NoError(t, r.Render())

	assert.True(t, r.Disconnect(dstID, 1))
	assert.False(t, r.Disconnect(dstID, 1))
	require.NoError(t, r.Render())
	w, _ := dst.Descriptors().Pushed(1)
	assert.True(t, w.Placeholder)

	require.NoError(t, r.Connect(Link{Producer: srcID, Consumer: dstID, Input: 1, Kind: LinkTexture}))
	pipelines := dev.LivePipelines()
	assert.True(t, r.Remove(srcID))
	assert.False(t, r.Remove(srcID))
	assert.Equal(t, pipelines-1, dev.LivePipelines())
	assert.Empty(t, r.Links())
	require.NoError(t, r.Render())
	w, _ = dst.Descriptors().Pushed(1)
	assert.True(t, w.Placeholder)
	assert.Len(t, r.Passes(), 1)
}

func TestConnectValidatesEnds(t *testing.T) {
	_, ctx, r := setup(t)
	_, _, srcID, dstID := chain(t, ctx, r, false)
	assert.Error(t, r.Connect(Link{Producer: PassID{}, Consumer: dstID, Kind: LinkTexture}))
	assert.Error(t, r.Connect(Link{Producer: srcID, Consumer: PassID{}, Kind: LinkTexture}))
	assert.Error(t, r.Connect(Link{Producer: srcID, Consumer: dstID, Kind: LinkKind(42)}))

	// replacing the link of a binding keeps a single link
	require.NoError(t, r.Connect(Link{Producer: srcID, Output: 0, Consumer: dstID, Input: 1, Kind: LinkTexture}))
	assert.Len(t, r.Links(), 1)
}

func TestUpdateShadersReportsScheduledPasses(t *testing.T) {
	_, ctx, r := setup(t)
	dir := t.TempDir()
	p := newImagePass(ctx, "source", false)
	p.SetShaderDir(dir)
	require.True(t, p.InitPixel(metadata.NewExtent(16, 16), 1, false))
	_, err := r.Add(p)
	require.NoError(t, err)

	assert.Nil(t, r.UpdateShaders(nil))
	assert.Empty(t, r.UpdateShaders([]string{dir + "/unrelated.frag"}))
	assert.Equal(t, []string{"source"}, r.UpdateShaders([]string{dir + "/source.frag"}))
	assert.Equal(t, metadata.PassStateNeedsRebuild, p.State())
	require.NoError(t, r.Render())
	assert.Equal(t, metadata.PassStateLoaded, p.State())
}

func TestRendererXMLRoundTrip(t *testing.T) {
	_, ctx, r := setup(t)
	src, _, _, _ := chain(t, ctx, r, false)
	require.True(t, src.Buffer("params").SetFloat("u_gain", 0.75))
	src.SetCanRender(false)
	data := r.GetXML()
	assert.Contains(t, data, `<pass name="source">`)
	assert.Contains(t, data, `<pass name="grading">`)

	_, ctx2, r2 := setup(t)
	other := newImagePass(ctx2, "source", false)
	_, err := r2.Add(other)
	require.NoError(t, err)
	require.True(t, r2.SetFromXML(data))
	require.True(t, other.InitPixel(metadata.NewExtent(16, 16), 1, false))

	gain, _ := other.Buffer("params").Float("u_gain")
	assert.InDelta(t, 0.75, gain, 1e-6)
	assert.False(t, other.CanRender())
	assert.False(t, r2.SetFromXML("<renderer>"))
}

type orderPass struct {
	name string
	log  *[]string
}

func (o *orderPass) Name() string { return o.name }
func (o *orderPass) State() metadata.PassState { return metadata.PassStateLoaded }
func (o *orderPass) ResizeIfNeeded() bool { return false }
func (o *orderPass) RebuildIfNeeded() bool { return false }
func (o *orderPass) PrepareFrame() bool { return true }
func (o *orderPass) Execute(gpu.CommandBuffer, uint64) bool { return true }
func (o *orderPass) NeedResizeByResizeEvent(metadata.Extent, uint32) bool { return false }
func (o *orderPass) UpdateShaders([]string) bool { return false }
func (o *orderPass) GetXML(string) string { return "" }
func (o *orderPass) SetFromXML(string) bool { return true }
func (o *orderPass) Unit() { *o.log = append(*o.log, o.name) }

func TestUnitTearsDownInReverseOrder(t *testing.T) {
	dev, _, r := setup(t)
	var log []string
	for _, n := range []string{"a", "b", "c"} {
		_, err := r.Add(&orderPass{name: n, log: &log})
		require.NoError(t, err)
	}
	waits := dev.Stats().WaitIdles
	r.Unit()
	assert.Equal(t, []string{"c", "b", "a"}, log)
	assert.Equal(t, waits+1, dev.Stats().WaitIdles)

	_, err := ParseBackendType("metal")
	assert.Error(t, err)
	b, err := ParseBackendType("Headless")
	require.NoError(t, err)
	assert.Equal(t, Headless, b)
}
