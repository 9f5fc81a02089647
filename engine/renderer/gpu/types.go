package gpu

import "github.com/spaghettifunk/lumo/engine/renderer/metadata"

// Handles are opaque ids issued by a Device. Zero is never a live object.
type (
	BufferHandle           uint64
	ImageHandle            uint64
	RenderTargetHandle     uint64
	DescriptorLayoutHandle uint64
	DescriptorSetHandle    uint64
	PipelineHandle         uint64
	AccelStructHandle      uint64
)

const InvalidHandle = 0

/**
 * @brief Describes a buffer to be created on the device.
 */
type BufferCreateInfo struct {
	/** @brief Debug name. */
	Name string
	/** @brief Size in bytes. Must be greater than zero. */
	Size uint64
	/** @brief What the buffer is bound as. */
	Usage metadata.BufferUsage
	/** @brief Texel format, used only by texel buffers. */
	TexelFormat metadata.ImageFormat
}

// ImageUsage is a bit set of the ways an image is accessed.
type ImageUsage uint32

const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageColorAttachment
	ImageUsageTransferDst
	ImageUsageStorage
)

/**
 * @brief Describes an image (with its view and sampler) to be created on the device.
 */
type ImageCreateInfo struct {
	Name   string
	Extent metadata.Extent
	Format metadata.ImageFormat
	Usage  ImageUsage
	/** @brief Creates a 6 layer cube compatible image when set. */
	Cube bool
	/** @brief Samples per pixel, 1 when zero. */
	SampleCount uint32
}

/**
 * @brief A render pass plus framebuffer over a set of color attachments.
 */
type RenderTargetCreateInfo struct {
	Name        string
	Extent      metadata.Extent
	Format      metadata.ImageFormat
	Attachments []ImageHandle
	SampleCount uint32
}

// LayoutBinding declares one slot of a descriptor set layout.
type LayoutBinding struct {
	Binding uint32
	Kind    metadata.ResourceKind
	Stages  metadata.StageMask
}

type DescriptorBufferInfo struct {
	Buffer BufferHandle
	Offset uint64
	Range  uint64
}

type DescriptorImageInfo struct {
	Image ImageHandle
}

type DescriptorTexelBufferInfo struct {
	Buffer BufferHandle
}

type DescriptorAccelStructInfo struct {
	AccelStruct AccelStructHandle
}

// DescriptorWrite is the concrete resource pushed into one binding. Exactly one
// info pointer matching Kind is set.
type DescriptorWrite struct {
	Binding     uint32
	Kind        metadata.ResourceKind
	Buffer      *DescriptorBufferInfo
	Image       *DescriptorImageInfo
	TexelBuffer *DescriptorTexelBufferInfo
	AccelStruct *DescriptorAccelStructInfo
	/** @brief Set when the write points at an internal default resource. */
	Placeholder bool
}

// Matches reports whether the write carries the info its kind needs.
func (w DescriptorWrite) Matches(kind metadata.ResourceKind) bool {
	if w.Kind != kind {
		return false
	}
	switch kind {
	case metadata.ResourceKindTexture2D, metadata.ResourceKindTextureCube:
		return w.Image != nil
	case metadata.ResourceKindStorageBuffer, metadata.ResourceKindUniformBuffer:
		return w.Buffer != nil
	case metadata.ResourceKindTexelBuffer:
		return w.TexelBuffer != nil
	case metadata.ResourceKindAccelerationStructure:
		return w.AccelStruct != nil
	}
	return false
}

// ShaderStage is one compiled SPIR-V module handed to pipeline creation.
type ShaderStage struct {
	Kind  metadata.StageKind
	SPIRV []uint32
	Entry string
}

type PushConstantRange struct {
	Stages metadata.StageMask
	Size   uint32
}

type GraphicsPipelineCreateInfo struct {
	Name            string
	Stages          []ShaderStage
	Layout          DescriptorLayoutHandle
	RenderTarget    RenderTargetHandle
	Vertex          *metadata.VertexLayout
	Topology        metadata.Topology
	DynamicTopology bool
	CullMode        metadata.FaceCullMode
	Blend           bool
	PushConstants   *PushConstantRange
	ColorCount      uint32
}

type ComputePipelineCreateInfo struct {
	Name          string
	Stage         ShaderStage
	Layout        DescriptorLayoutHandle
	PushConstants *PushConstantRange
}

type RayTracingPipelineCreateInfo struct {
	Name              string
	Stages            []ShaderStage
	Layout            DescriptorLayoutHandle
	PushConstants     *PushConstantRange
	MaxRecursionDepth uint32
}

// Limits are the device properties passes clamp their requests against.
type Limits struct {
	MaxComputeWorkGroupCount [3]uint32
	MaxComputeWorkGroupSize  [3]uint32
	MaxUniformBufferRange    uint32
	MaxStorageBufferRange    uint32
	MaxPushConstantsSize     uint32
	MaxImageDimension2D      uint32
	RayTracing               bool
}

// DefaultLimits are the guaranteed minimums of the Vulkan 1.0 core profile.
func DefaultLimits() Limits {
	return Limits{
		MaxComputeWorkGroupCount: [3]uint32{65535, 65535, 65535},
		MaxComputeWorkGroupSize:  [3]uint32{128, 128, 64},
		MaxUniformBufferRange:    16384,
		MaxStorageBufferRange:    1 << 27,
		MaxPushConstantsSize:     128,
		MaxImageDimension2D:      4096,
	}
}
