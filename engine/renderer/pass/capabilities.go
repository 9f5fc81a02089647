package pass

import (
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

// Program is implemented by every concrete pass: it provides the GLSL of each stage.
type Program interface {
	StageSources() map[metadata.StageKind]string
}

// BufferDeclarer registers the uniform and storage buffers of a pass, through
// AddUBO and AddSBO, during Init.
type BufferDeclarer interface {
	DeclareBuffers() bool
}

// DescriptorDeclarer declares the bindings a pass needs besides its own buffers.
type DescriptorDeclarer interface {
	DeclareDescriptors() bool
}

// ModelBuilder owns mesh data rebuilt wholesale. DestroyModel is called with
// the device idle.
type ModelBuilder interface {
	BuildModel() bool
	DestroyModel()
}

// Drawer issues the draw of a raster pass. Without it the pass draws
// CountVertexs vertices with no bound vertex buffer.
type Drawer interface {
	DrawModel(cmd gpu.CommandBuffer)
}

// Tracer issues the trace rays command of a ray tracing pass.
type Tracer interface {
	RecordTraceRays(cmd gpu.CommandBuffer)
}

type InitHooks interface {
	ActionBeforeInit()
	ActionAfterInitSucceed()
	ActionAfterInitFail()
}

type CompilationHooks interface {
	ActionBeforeCompilation()
	ActionAfterCompilation()
}

// PipelineBuiltHook runs after every successful pipeline build, once the
// descriptor set of the new pipeline is in place.
type PipelineBuiltHook interface {
	ActionAfterPipelineBuilt()
}

type DrawHooks interface {
	ActionBeforeDraw(cmd gpu.CommandBuffer)
	ActionAfterDraw(cmd gpu.CommandBuffer)
}

type ResizeHooks interface {
	WasJustResized()
}

// HasTextureInputs receives textures produced by other passes. A nil info
// disconnects the binding, which then samples a placeholder.
type HasTextureInputs interface {
	SetTexture(binding uint32, info *gpu.DescriptorImageInfo, size *metadata.Extent)
}

// HasTextureOutputs exposes the attachments of a pass to consumers.
type HasTextureOutputs interface {
	GetDescriptorImageInfo(binding uint32) (*gpu.DescriptorImageInfo, metadata.Extent)
}

// HasBufferInputs receives storage buffers owned by other passes.
type HasBufferInputs interface {
	SetStorageBuffer(binding uint32, info *gpu.DescriptorBufferInfo)
}

// HasBufferOutputs exposes the buffers of a pass to consumers.
type HasBufferOutputs interface {
	GetDescriptorBufferInfo(binding uint32) *gpu.DescriptorBufferInfo
}

// Renderable records the work of one frame.
type Renderable interface {
	Execute(cmd gpu.CommandBuffer, frame uint64) bool
}

// Schedulable can be switched off without being destroyed.
type Schedulable interface {
	SetCanRender(v bool)
	CanRender() bool
	LastExecutedFrame() uint64
}
