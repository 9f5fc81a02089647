package pass

import (
	"github.com/spaghettifunk/lumo/engine/math"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/shaders"
)

// ComputePass dispatches a compute shader over a 1D, 2D or 3D domain.
// It owns a pipeline and buffers but no framebuffer.
type ComputePass struct {
	*ShaderPass
}

// NewComputePass builds an unloaded compute pass whose shader declares
// local_size equal to localGroupSize.
func NewComputePass(ctx *gpu.GraphicsContext, compiler shaders.Compiler, name string, impl Program, localGroupSize math.UVec3) *ComputePass {
	c := &ComputePass{ShaderPass: NewShaderPass(ctx, compiler, name, impl)}
	c.SetLocalGroupSize(localGroupSize)
	return c
}
