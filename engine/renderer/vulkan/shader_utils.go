package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

// NewShaderStage wraps compiled SPIR-V words in a module ready for pipeline creation.
func NewShaderStage(context *VulkanContext, stage gpu.ShaderStage) (*VulkanShaderStage, error) {
	if len(stage.SPIRV) == 0 {
		return nil, core.Wrapf(core.ErrShaderCompilation, "%s stage has no SPIR-V", stage.Kind)
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(stage.SPIRV) * 4),
		PCode:    stage.SPIRV,
	}
	var module vk.ShaderModule
	if err := check(vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &module), "vkCreateShaderModule"); err != nil {
		return nil, err
	}
	entry := stage.Entry
	if entry == "" {
		entry = "main"
	}
	return &VulkanShaderStage{
		Handle: module,
		ShaderStageCreateInfo: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vkStage(stage.Kind),
			Module: module,
			PName:  VulkanSafeString(entry),
		},
	}, nil
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Handle != nil {
		vk.DestroyShaderModule(context.Device.LogicalDevice, s.Handle, context.Allocator)
		s.Handle = nil
	}
}

// newShaderStages builds every stage or none.
func newShaderStages(context *VulkanContext, stages []gpu.ShaderStage) ([]*VulkanShaderStage, error) {
	out := make([]*VulkanShaderStage, 0, len(stages))
	for _, st := range stages {
		s, err := NewShaderStage(context, st)
		if err != nil {
			destroyShaderStages(context, out)
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func destroyShaderStages(context *VulkanContext, stages []*VulkanShaderStage) {
	for _, s := range stages {
		s.Destroy(context)
	}
}
