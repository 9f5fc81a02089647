package pass

import (
	"testing"

	"github.com/spaghettifunk/lumo/engine/math"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/headless"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/shaders"
	"github.com/stretchr/testify/require"
)

const quadVert = `#version 450
layout(location = 0) in vec2 aPosition;
layout(location = 1) in vec2 aUV;
layout(location = 0) out vec2 vUV;
void main() {
	vUV = aUV;
	gl_Position = vec4(aPosition, 0.0, 1.0);
}
`

const gradingFrag = `#version 450
layout(location = 0) in vec2 vUV;
layout(location = 0) out vec4 fragColor;
layout(std140, binding = 0) uniform UBO {
	float u_gain;
	float u_use_input;
	vec3 u_tint;
	int u_mode;
};
layout(binding = 1) uniform sampler2D u_input;
void main() {
	vec4 c = mix(vec4(1.0), texture(u_input, vUV), u_use_input);
	fragColor = vec4(c.rgb * u_tint * u_gain, 1.0);
}
`

const brokenFrag = `#version 450
void main() {
	fragColor = vec4(1.0
`

const particlesComp = `#version 450
layout(local_size_x = 8, local_size_y = 8) in;
layout(std430, binding = 0) buffer Particles { vec4 p[]; };
void main() {
	p[gl_GlobalInvocationID.x].xyz += vec3(0.01);
}
`

func newTestContext(t *testing.T, opts ...headless.Option) (*headless.Device, *gpu.GraphicsContext) {
	t.Helper()
	dev := headless.New(opts...)
	ctx := gpu.NewGraphicsContext(dev)
	t.Cleanup(ctx.Destroy)
	return dev, ctx
}

type gradingPass struct {
	*QuadShaderPass

	frag string

	beforeInit   int
	afterSucceed int
	afterFail    int
	resized      int
}

func newGradingPass(ctx *gpu.GraphicsContext, compiler shaders.Compiler) *gradingPass {
	g := &gradingPass{frag: gradingFrag}
	g.QuadShaderPass = NewQuadShaderPass(ctx, compiler, "grading", g)
	return g
}

func (g *gradingPass) StageSources() map[metadata.StageKind]string {
	return map[metadata.StageKind]string{
		metadata.StageVertex:   quadVert,
		metadata.StageFragment: g.frag,
	}
}

func (g *gradingPass) DeclareBuffers() bool {
	ubo := g.AddUBO("params", 0, metadata.StageMaskGraphics)
	return ubo.RegisterFloat("u_gain", 1) &&
		ubo.RegisterFloat("u_use_input", 0) &&
		ubo.RegisterVec3("u_tint", math.NewVec3(1, 1, 1)) &&
		ubo.RegisterInt32("u_mode", 0)
}

func (g *gradingPass) DeclareDescriptors() bool {
	return g.AddTextureInput(1, metadata.ResourceKindTexture2D, metadata.StageMaskGraphics)
}

func (g *gradingPass) ActionBeforeInit()       { g.beforeInit++ }
func (g *gradingPass) ActionAfterInitSucceed() { g.afterSucceed++ }
func (g *gradingPass) ActionAfterInitFail()    { g.afterFail++ }
func (g *gradingPass) WasJustResized()         { g.resized++ }

type particlesPass struct {
	*ComputePass
}

func newParticlesPass(ctx *gpu.GraphicsContext) *particlesPass {
	p := &particlesPass{}
	p.ComputePass = NewComputePass(ctx, shaders.StubCompiler{}, "particles", p, math.NewUVec3(8, 8, 1))
	return p
}

func (p *particlesPass) StageSources() map[metadata.StageKind]string {
	return map[metadata.StageKind]string{metadata.StageCompute: particlesComp}
}

func (p *particlesPass) DeclareBuffers() bool {
	_, ok := p.AddSBO("particles", 0, metadata.StageMaskCompute).RegisterByteSize("data", 1024*16)
	return ok
}

// runFrame drives one frame the way the renderer does and returns its commands.
func runFrame(t *testing.T, dev *headless.Device, p interface {
	ResizeIfNeeded() bool
	RebuildIfNeeded() bool
	PrepareFrame() bool
	Execute(gpu.CommandBuffer, uint64) bool
}, frame uint64) []headless.Command {
	t.Helper()
	p.ResizeIfNeeded()
	p.RebuildIfNeeded()
	p.PrepareFrame()
	cmd, err := dev.BeginCommands()
	require.NoError(t, err)
	p.Execute(cmd, frame)
	require.NoError(t, dev.Submit(cmd))
	frames := dev.Frames()
	return frames[len(frames)-1]
}
