package gpu

import "github.com/spaghettifunk/lumo/engine/renderer/metadata"

// Device is the graphics backend. Every call happens on the render goroutine.
type Device interface {
	CreateBuffer(info BufferCreateInfo) (BufferHandle, error)
	WriteBuffer(buffer BufferHandle, offset uint64, data []byte) error
	DestroyBuffer(buffer BufferHandle)

	CreateImage(info ImageCreateInfo) (ImageHandle, error)
	WriteImage(image ImageHandle, pixels []byte) error
	DestroyImage(image ImageHandle)

	CreateRenderTarget(info RenderTargetCreateInfo) (RenderTargetHandle, error)
	DestroyRenderTarget(target RenderTargetHandle)

	CreateDescriptorLayout(bindings []LayoutBinding) (DescriptorLayoutHandle, error)
	DestroyDescriptorLayout(layout DescriptorLayoutHandle)
	AllocateDescriptorSet(layout DescriptorLayoutHandle) (DescriptorSetHandle, error)
	FreeDescriptorSet(set DescriptorSetHandle)
	UpdateDescriptorSet(set DescriptorSetHandle, writes []DescriptorWrite) error

	CreateGraphicsPipeline(info GraphicsPipelineCreateInfo) (PipelineHandle, error)
	CreateComputePipeline(info ComputePipelineCreateInfo) (PipelineHandle, error)
	CreateRayTracingPipeline(info RayTracingPipelineCreateInfo) (PipelineHandle, error)
	// ShaderGroupHandles returns the handle of every shader group of a ray
	// tracing pipeline, handleSize bytes each, in stage order.
	ShaderGroupHandles(pipeline PipelineHandle, handleSize uint32) ([]byte, error)
	DestroyPipeline(pipeline PipelineHandle)

	// BeginCommands starts recording a primary command buffer for one frame.
	BeginCommands() (CommandBuffer, error)
	// Submit ends recording, submits and blocks until the GPU is done with it.
	Submit(cmd CommandBuffer) error

	// WaitIdle blocks until no submitted work is in flight.
	WaitIdle() error
	Limits() Limits
	Destroy()
}

// CommandBuffer records the commands of one frame.
type CommandBuffer interface {
	BeginRenderPass(target RenderTargetHandle, extent metadata.Extent, clear bool, clearColor [4]float32)
	EndRenderPass()
	SetViewport(extent metadata.Extent)
	SetLineWidth(width float32)
	SetPrimitiveTopology(topology metadata.Topology)
	BindPipeline(pipeline PipelineHandle)
	BindDescriptorSet(pipeline PipelineHandle, set DescriptorSetHandle)
	BindVertexBuffer(buffer BufferHandle)
	BindIndexBuffer(buffer BufferHandle)
	PushConstants(pipeline PipelineHandle, stages metadata.StageMask, data []byte)
	Draw(vertexCount, instanceCount uint32)
	DrawIndexed(indexCount, instanceCount uint32)
	Dispatch(x, y, z uint32)
	TraceRays(sbt BufferHandle, width, height, depth uint32)
}
