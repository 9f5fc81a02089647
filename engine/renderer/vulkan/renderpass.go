package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

// VulkanRenderpass renders into sampled color attachments. It holds two
// compatible passes: one clears the attachments, the other keeps what is there.
// Both leave the attachments ready to be sampled.
type VulkanRenderpass struct {
	Clear      vk.RenderPass
	Load       vk.RenderPass
	ColorCount uint32
	Samples    vk.SampleCountFlagBits
}

func RenderpassCreate(context *VulkanContext, format metadata.ImageFormat, colorCount uint32, samples uint32) (*VulkanRenderpass, error) {
	if colorCount == 0 {
		colorCount = 1
	}
	outRenderpass := &VulkanRenderpass{ColorCount: colorCount, Samples: vkSampleCount(samples)}

	var err error
	if outRenderpass.Clear, err = createRenderpass(context, format, colorCount, samples, true); err != nil {
		return nil, err
	}
	if outRenderpass.Load, err = createRenderpass(context, format, colorCount, samples, false); err != nil {
		outRenderpass.Destroy(context)
		return nil, err
	}
	return outRenderpass, nil
}

func createRenderpass(context *VulkanContext, format metadata.ImageFormat, colorCount, samples uint32, clear bool) (vk.RenderPass, error) {
	loadOp := vk.AttachmentLoadOpLoad
	initialLayout := vk.ImageLayoutShaderReadOnlyOptimal
	if clear {
		loadOp = vk.AttachmentLoadOpClear
		// Do not expect any particular layout before render pass starts.
		initialLayout = vk.ImageLayoutUndefined
	}

	attachments := make([]vk.AttachmentDescription, colorCount)
	references := make([]vk.AttachmentReference, colorCount)
	for i := uint32(0); i < colorCount; i++ {
		attachments[i] = vk.AttachmentDescription{
			Format:         vkFormat(format),
			Samples:        vkSampleCount(samples),
			LoadOp:         loadOp,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initialLayout,
			// Transitioned to after the render pass, ready for the next consumer.
			FinalLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}
		references[i] = vk.AttachmentReference{
			Attachment: i,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: colorCount,
		PColorAttachments:    references,
	}

	dependencies := []vk.SubpassDependency{
		{
			SrcSubpass:    vk.SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit),
			SrcAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
		},
		{
			SrcSubpass:    0,
			DstSubpass:    vk.SubpassExternal,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit),
			DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
		},
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: colorCount,
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}

	var pRenderPass vk.RenderPass
	if err := check(vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &pRenderPass), "vkCreateRenderPass"); err != nil {
		return nil, err
	}
	return pRenderPass, nil
}

func (vr *VulkanRenderpass) Destroy(context *VulkanContext) {
	if vr.Clear != nil {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Clear, context.Allocator)
		vr.Clear = nil
	}
	if vr.Load != nil {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Load, context.Allocator)
		vr.Load = nil
	}
}

func (vr *VulkanRenderpass) Begin(commandBuffer *VulkanCommandBuffer, frameBuffer vk.Framebuffer, extent metadata.Extent, clear bool, color [4]float32) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Load,
		Framebuffer: frameBuffer,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{
				Width:  extent.Width,
				Height: extent.Height,
			},
		},
	}
	if clear {
		beginInfo.RenderPass = vr.Clear
		clearValues := make([]vk.ClearValue, vr.ColorCount)
		for i := range clearValues {
			clearValues[i].SetColor(color[:])
		}
		beginInfo.ClearValueCount = vr.ColorCount
		beginInfo.PClearValues = clearValues
	}

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}
