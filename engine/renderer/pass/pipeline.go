package pass

import (
	"context"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/shaders"
)

// PipelineBuildInfo is everything besides the shader modules a pipeline is created from.
type PipelineBuildInfo struct {
	Layout       gpu.DescriptorLayoutHandle
	RenderTarget gpu.RenderTargetHandle
	Vertex       *metadata.VertexLayout

	Topology        metadata.Topology
	DynamicTopology bool
	CullMode        metadata.FaceCullMode
	Blend           bool
	ColorCount      uint32

	PushConstants     *gpu.PushConstantRange
	MaxRecursionDepth uint32
}

/**
 * @brief The compiled stages of a pass and the pipeline built from them.
 * A failed compile or build keeps the previous pipeline bound.
 */
type PipelineResource struct {
	ctx      *gpu.GraphicsContext
	compiler shaders.Compiler
	name     string
	kind     metadata.GenericType

	modules []shaders.Module
	handle  gpu.PipelineHandle
	state   metadata.PipelineState

	lastError error
	builds    int
}

func NewPipelineResource(ctx *gpu.GraphicsContext, compiler shaders.Compiler, name string, kind metadata.GenericType) *PipelineResource {
	return &PipelineResource{
		ctx:      ctx,
		compiler: compiler,
		name:     name,
		kind:     kind,
		state:    metadata.PipelineStateUncompiled,
	}
}

func (p *PipelineResource) State() metadata.PipelineState {
	return p.state
}

func (p *PipelineResource) Handle() gpu.PipelineHandle {
	return p.handle
}

// HasFallback reports whether a previously built pipeline is still bound.
func (p *PipelineResource) HasFallback() bool {
	return p.handle != gpu.InvalidHandle
}

// LastError is the error of the last failed compile or build.
func (p *PipelineResource) LastError() error {
	return p.lastError
}

func (p *PipelineResource) BuildCount() int {
	return p.builds
}

func (p *PipelineResource) HasModules() bool {
	return len(p.modules) > 0
}

func (p *PipelineResource) fail(err error) bool {
	p.lastError = err
	p.state = metadata.PipelineStateCompileFailed
	if p.handle != gpu.InvalidHandle {
		core.LogWarn("pipeline %s: keeping the previous pipeline", p.name)
	}
	return false
}

func (p *PipelineResource) checkStages(sources []shaders.Source) error {
	has := map[metadata.StageKind]bool{}
	for _, s := range sources {
		has[s.Stage] = true
	}
	switch {
	case p.kind == metadata.GenericTypePixel:
		if !has[metadata.StageVertex] || !has[metadata.StageFragment] {
			return core.Newf("a raster pipeline needs a vertex and a fragment stage")
		}
	case p.kind.IsCompute():
		if !has[metadata.StageCompute] || len(sources) != 1 {
			return core.Newf("a compute pipeline needs exactly one compute stage")
		}
	case p.kind == metadata.GenericTypeRtx:
		if !has[metadata.StageRayGen] {
			return core.Newf("a ray tracing pipeline needs a raygen stage")
		}
	}
	return nil
}

// Compile compiles every stage. On failure the previously compiled modules
// and pipeline are kept.
func (p *PipelineResource) Compile(ctx context.Context, sources []shaders.Source) bool {
	if err := p.checkStages(sources); err != nil {
		core.LogError("pipeline %s: %s", p.name, err)
		return p.fail(err)
	}
	modules, err := shaders.CompileAll(ctx, p.compiler, sources)
	if err != nil {
		core.LogError("pipeline %s: compilation failed: %s", p.name, err)
		return p.fail(err)
	}
	p.modules = modules
	p.lastError = nil
	p.state = metadata.PipelineStateCompiled
	return true
}

func (p *PipelineResource) stages() []gpu.ShaderStage {
	out := make([]gpu.ShaderStage, 0, len(p.modules))
	for _, m := range p.modules {
		out = append(out, gpu.ShaderStage{Kind: m.Stage, SPIRV: m.SPIRV, Entry: m.Entry})
	}
	return out
}

// Build creates the pipeline from the compiled modules. The old pipeline is
// destroyed only once the new one exists.
func (p *PipelineResource) Build(info PipelineBuildInfo) bool {
	if len(p.modules) == 0 {
		core.LogError("pipeline %s: build without compiled stages", p.name)
		return p.fail(core.Newf("no compiled stages"))
	}
	if info.Layout == gpu.InvalidHandle {
		core.LogError("pipeline %s: build without a descriptor layout", p.name)
		return p.fail(core.Wrapf(core.ErrInvalidHandle, "descriptor layout"))
	}

	var (
		h   gpu.PipelineHandle
		err error
	)
	dev := p.ctx.Device
	switch {
	case p.kind == metadata.GenericTypePixel:
		h, err = dev.CreateGraphicsPipeline(gpu.GraphicsPipelineCreateInfo{
			Name:            p.name,
			Stages:          p.stages(),
			Layout:          info.Layout,
			RenderTarget:    info.RenderTarget,
			Vertex:          info.Vertex,
			Topology:        info.Topology,
			DynamicTopology: info.DynamicTopology,
			CullMode:        info.CullMode,
			Blend:           info.Blend,
			PushConstants:   info.PushConstants,
			ColorCount:      max(info.ColorCount, 1),
		})
	case p.kind.IsCompute():
		h, err = dev.CreateComputePipeline(gpu.ComputePipelineCreateInfo{
			Name:          p.name,
			Stage:         p.stages()[0],
			Layout:        info.Layout,
			PushConstants: info.PushConstants,
		})
	case p.kind == metadata.GenericTypeRtx:
		h, err = dev.CreateRayTracingPipeline(gpu.RayTracingPipelineCreateInfo{
			Name:              p.name,
			Stages:            p.stages(),
			Layout:            info.Layout,
			PushConstants:     info.PushConstants,
			MaxRecursionDepth: max(info.MaxRecursionDepth, 1),
		})
	default:
		err = core.Wrapf(core.ErrUnsupported, "pass type %s", p.kind)
	}
	if err != nil {
		core.LogError("pipeline %s: build failed: %s", p.name, err)
		return p.fail(err)
	}

	if p.handle != gpu.InvalidHandle {
		if err := dev.WaitIdle(); err != nil {
			core.LogWarn("pipeline %s: wait idle before swap: %s", p.name, err)
		}
		dev.DestroyPipeline(p.handle)
	}
	p.handle = h
	p.lastError = nil
	p.state = metadata.PipelineStateReady
	p.builds++
	core.LogDebug("pipeline %s: ready", p.name)
	return true
}

// Invalidate marks the pipeline out of date after a source or layout change.
func (p *PipelineResource) Invalidate() {
	if p.handle != gpu.InvalidHandle {
		p.state = metadata.PipelineStateStale
	} else if p.state != metadata.PipelineStateCompileFailed {
		p.state = metadata.PipelineStateUncompiled
	}
}

func (p *PipelineResource) Destroy() {
	if p.handle == gpu.InvalidHandle {
		p.modules = nil
		p.state = metadata.PipelineStateUncompiled
		return
	}
	if err := p.ctx.Device.WaitIdle(); err != nil {
		core.LogWarn("pipeline %s: wait idle before destroy: %s", p.name, err)
	}
	p.release()
}

func (p *PipelineResource) release() {
	if p.handle != gpu.InvalidHandle {
		p.ctx.Device.DestroyPipeline(p.handle)
		p.handle = gpu.InvalidHandle
	}
	p.modules = nil
	p.state = metadata.PipelineStateUncompiled
}
