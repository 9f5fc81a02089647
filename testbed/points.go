package testbed

import (
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/pass"
	"github.com/spaghettifunk/lumo/engine/renderer/shaders"
)

// PointsPass splats a particle buffer, fed at binding 0, as soft points. It
// has no model: every vertex is fetched from the buffer by gl_VertexIndex.
type PointsPass struct {
	*pass.VertexShaderPass
}

func NewPointsPass(ctx *gpu.GraphicsContext, compiler shaders.Compiler, name string, count uint32) *PointsPass {
	p := &PointsPass{}
	p.VertexShaderPass = pass.NewVertexShaderPass(ctx, compiler, name, p, nil)
	p.SetCountVertexs(count)
	p.SetBlend(true)
	p.SetClearColor([4]float32{0, 0, 0, 1})
	return p
}

func (p *PointsPass) StageSources() map[metadata.StageKind]string {
	return map[metadata.StageKind]string{
		metadata.StageVertex:   pointsVert,
		metadata.StageFragment: pointsFrag,
	}
}

func (p *PointsPass) DeclareBuffers() bool {
	params := p.AddUBO("params", 1, metadata.StageMaskGraphics)
	return params.RegisterFloat("u_point_size", 2) &&
		params.RegisterFloat("u_aspect", 1) &&
		params.RegisterFloat("u_speed_scale", 1.5)
}

func (p *PointsPass) DeclareDescriptors() bool {
	return p.AddStorageBufferInput(0, metadata.StageMaskGraphics)
}

func (p *PointsPass) ActionBeforeInit()       {}
func (p *PointsPass) ActionAfterInitFail()    {}
func (p *PointsPass) ActionAfterInitSucceed() { p.updateAspect() }

// WasJustResized keeps the points round when the output changes shape.
func (p *PointsPass) WasJustResized() {
	p.updateAspect()
}

func (p *PointsPass) updateAspect() {
	if params := p.Buffer("params"); params != nil {
		params.SetFloat("u_aspect", p.GetOutputRatio())
	}
}
