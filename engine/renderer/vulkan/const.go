package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

/**
 * @brief Max number of descriptor sets the shared pool can hand out.
 * @todo TODO: grow the pool on ErrorOutOfPoolMemory instead of failing.
 */
const VULKAN_MAX_DESCRIPTOR_SETS uint32 = 1024

/** @brief Descriptors of each type reserved in the shared pool. */
const VULKAN_DESCRIPTORS_PER_TYPE uint32 = 4096

// Timeout used when waiting on the per frame fence.
const VULKAN_FENCE_TIMEOUT_NS uint64 = 5_000_000_000

func vkFormat(f metadata.ImageFormat) vk.Format {
	switch f {
	case metadata.ImageFormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case metadata.ImageFormatRGBA16Sfloat:
		return vk.FormatR16g16b16a16Sfloat
	case metadata.ImageFormatRGBA32Sfloat:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.ImageFormatR32Sfloat:
		return vk.FormatR32Sfloat
	}
	return vk.FormatR8g8b8a8Unorm
}

func vkDescriptorType(k metadata.ResourceKind) vk.DescriptorType {
	switch k {
	case metadata.ResourceKindTexture2D, metadata.ResourceKindTextureCube:
		return vk.DescriptorTypeCombinedImageSampler
	case metadata.ResourceKindStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case metadata.ResourceKindUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case metadata.ResourceKindTexelBuffer:
		return vk.DescriptorTypeUniformTexelBuffer
	case metadata.ResourceKindAccelerationStructure:
		return vk.DescriptorTypeAccelerationStructure
	}
	return vk.DescriptorTypeUniformBuffer
}

func vkStage(s metadata.StageKind) vk.ShaderStageFlagBits {
	switch s {
	case metadata.StageVertex:
		return vk.ShaderStageVertexBit
	case metadata.StageFragment:
		return vk.ShaderStageFragmentBit
	case metadata.StageGeometry:
		return vk.ShaderStageGeometryBit
	case metadata.StageTessControl:
		return vk.ShaderStageTessellationControlBit
	case metadata.StageTessEval:
		return vk.ShaderStageTessellationEvaluationBit
	case metadata.StageCompute:
		return vk.ShaderStageComputeBit
	case metadata.StageRayGen:
		return vk.ShaderStageRaygenBit
	case metadata.StageRayMiss:
		return vk.ShaderStageMissBit
	case metadata.StageRayClosestHit:
		return vk.ShaderStageClosestHitBit
	case metadata.StageRayAnyHit:
		return vk.ShaderStageAnyHitBit
	case metadata.StageRayIntersection:
		return vk.ShaderStageIntersectionBit
	}
	return vk.ShaderStageAll
}

func vkStageFlags(m metadata.StageMask) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	for _, s := range m.Stages() {
		flags |= vk.ShaderStageFlags(vkStage(s))
	}
	return flags
}

func vkTopology(t metadata.Topology) vk.PrimitiveTopology {
	switch t {
	case metadata.TopologyPointList:
		return vk.PrimitiveTopologyPointList
	case metadata.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	case metadata.TopologyLineStrip:
		return vk.PrimitiveTopologyLineStrip
	case metadata.TopologyTriangleList:
		return vk.PrimitiveTopologyTriangleList
	case metadata.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case metadata.TopologyTriangleFan:
		return vk.PrimitiveTopologyTriangleFan
	case metadata.TopologyPatchList:
		return vk.PrimitiveTopologyPatchList
	}
	return vk.PrimitiveTopologyTriangleList
}

func vkCullMode(m metadata.FaceCullMode) vk.CullModeFlags {
	switch m {
	case metadata.FaceCullModeNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case metadata.FaceCullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case metadata.FaceCullModeFrontAndBack:
		return vk.CullModeFlags(vk.CullModeFrontAndBack)
	case metadata.FaceCullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

func vkAttributeFormat(f metadata.AttributeFormat) vk.Format {
	switch f {
	case metadata.AttributeFormatFloat:
		return vk.FormatR32Sfloat
	case metadata.AttributeFormatVec2:
		return vk.FormatR32g32Sfloat
	case metadata.AttributeFormatVec3:
		return vk.FormatR32g32b32Sfloat
	case metadata.AttributeFormatVec4:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.AttributeFormatUint:
		return vk.FormatR32Uint
	}
	return vk.FormatR32Sfloat
}

func vkBufferUsage(u metadata.BufferUsage) vk.BufferUsageFlags {
	var bits vk.BufferUsageFlagBits
	switch u {
	case metadata.BufferUsageUniform:
		bits = vk.BufferUsageUniformBufferBit
	case metadata.BufferUsageStorage:
		bits = vk.BufferUsageStorageBufferBit | vk.BufferUsageVertexBufferBit
	case metadata.BufferUsageVertex:
		bits = vk.BufferUsageVertexBufferBit
	case metadata.BufferUsageIndex:
		bits = vk.BufferUsageIndexBufferBit
	case metadata.BufferUsageTexel:
		bits = vk.BufferUsageUniformTexelBufferBit
	case metadata.BufferUsageShaderBindingTable:
		bits = vk.BufferUsageStorageBufferBit
	}
	return vk.BufferUsageFlags(bits | vk.BufferUsageTransferDstBit | vk.BufferUsageTransferSrcBit)
}

func vkImageUsage(u gpu.ImageUsage) vk.ImageUsageFlags {
	var bits vk.ImageUsageFlagBits
	if u&gpu.ImageUsageSampled != 0 {
		bits |= vk.ImageUsageSampledBit
	}
	if u&gpu.ImageUsageColorAttachment != 0 {
		bits |= vk.ImageUsageColorAttachmentBit
	}
	if u&gpu.ImageUsageTransferDst != 0 {
		bits |= vk.ImageUsageTransferDstBit
	}
	if u&gpu.ImageUsageStorage != 0 {
		bits |= vk.ImageUsageStorageBit
	}
	return vk.ImageUsageFlags(bits)
}

func vkSampleCount(n uint32) vk.SampleCountFlagBits {
	switch n {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	case 16:
		return vk.SampleCount16Bit
	}
	return vk.SampleCount1Bit
}
