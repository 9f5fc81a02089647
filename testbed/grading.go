package testbed

import (
	"github.com/spaghettifunk/lumo/engine/assets"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/math"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/pass"
	"github.com/spaghettifunk/lumo/engine/renderer/shaders"
)

const (
	gradingInputBinding = 1
	gradingLUTBinding   = 2
)

// GradingPass tone maps the image linked at binding 1 and, when a LUT image
// is loaded, remaps each channel through it.
type GradingPass struct {
	*pass.QuadShaderPass

	lut *assets.Texture
}

func NewGradingPass(ctx *gpu.GraphicsContext, compiler shaders.Compiler, name string) *GradingPass {
	g := &GradingPass{}
	g.QuadShaderPass = pass.NewQuadShaderPass(ctx, compiler, name, g)
	return g
}

func (g *GradingPass) StageSources() map[metadata.StageKind]string {
	return map[metadata.StageKind]string{
		metadata.StageVertex:   quadVert,
		metadata.StageFragment: gradingFrag,
	}
}

func (g *GradingPass) DeclareBuffers() bool {
	params := g.AddUBO("params", 0, metadata.StageMaskGraphics)
	return params.RegisterFloat("u_gain", 1) &&
		params.RegisterFloat("u_exposure", 0) &&
		params.RegisterFloat("u_use_input", 0) &&
		params.RegisterFloat("u_use_lut", 0) &&
		params.RegisterVec3("u_tint", math.NewVec3(1, 1, 1)) &&
		params.RegisterFloat("u_vignette", 0.35)
}

func (g *GradingPass) DeclareDescriptors() bool {
	return g.AddTextureInput(gradingInputBinding, metadata.ResourceKindTexture2D, metadata.StageMaskGraphics) &&
		g.AddTextureInput(gradingLUTBinding, metadata.ResourceKindTexture2D, metadata.StageMaskGraphics)
}

func (g *GradingPass) ActionBeforeInit()       {}
func (g *GradingPass) ActionAfterInitFail()    {}
func (g *GradingPass) ActionAfterInitSucceed() { g.bindLUT() }

// LoadLUT reads a curve image, a horizontal strip read along its middle row,
// and samples it from the next frame on. The previous LUT is released.
func (g *GradingPass) LoadLUT(path string) error {
	img, err := assets.LoadImage(path, false)
	if err != nil {
		return err
	}
	device := g.Context().Device
	tex, err := img.Upload(device)
	if err != nil {
		return core.Wrapf(err, "lut %s", path)
	}
	if g.lut != nil {
		g.SetTexture(gradingLUTBinding, nil, nil)
		g.lut.Destroy(device)
	}
	g.lut = tex
	g.bindLUT()
	core.LogInfo("pass %s: lut %s (%s)", g.Name(), img.Name, img.Extent)
	return nil
}

func (g *GradingPass) bindLUT() {
	if g.lut == nil || g.State() == metadata.PassStateUnloaded {
		return
	}
	extent := g.lut.Extent
	g.SetTexture(gradingLUTBinding, g.lut.DescriptorInfo(), &extent)
	g.EnableTextureUse("u_use_lut")
}

// SetExposure is in stops.
func (g *GradingPass) SetExposure(stops float32) {
	if params := g.Buffer("params"); params != nil {
		params.SetFloat("u_exposure", stops)
	}
}

// Unit unloads the pass and frees the LUT.
func (g *GradingPass) Unit() {
	g.QuadShaderPass.Unit()
	if g.lut != nil {
		g.lut.Destroy(g.Context().Device)
		g.lut = nil
	}
}
