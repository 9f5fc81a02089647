package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	outFramebuffer := &VulkanFramebuffer{
		Attachments: append([]vk.ImageView(nil), attachments...),
	}
	// Both variants of the render pass are compatible, either one works here.
	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Clear,
		AttachmentCount: uint32(len(outFramebuffer.Attachments)),
		PAttachments:    outFramebuffer.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}
	var pFramebuffer vk.Framebuffer
	if err := check(vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &pFramebuffer), "vkCreateFramebuffer"); err != nil {
		return nil, err
	}
	outFramebuffer.Handle = pFramebuffer
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != nil {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
	}
	vfb.Handle = nil
	vfb.Attachments = nil
}

// VulkanRenderTarget is a render pass plus the framebuffer over its attachments.
// The attachment images are owned by the caller.
type VulkanRenderTarget struct {
	Renderpass  *VulkanRenderpass
	Framebuffer *VulkanFramebuffer
}

func NewVulkanRenderTarget(context *VulkanContext, info gpu.RenderTargetCreateInfo, images []*VulkanImage) (*VulkanRenderTarget, error) {
	if info.Extent.IsZero() {
		return nil, core.Wrapf(core.ErrZeroExtent, "render target %q", info.Name)
	}
	rp, err := RenderpassCreate(context, info.Format, uint32(len(images)), info.SampleCount)
	if err != nil {
		return nil, err
	}
	views := make([]vk.ImageView, len(images))
	for i, img := range images {
		views[i] = img.View
	}
	fb, err := FramebufferCreate(context, rp, info.Extent.Width, info.Extent.Height, views)
	if err != nil {
		rp.Destroy(context)
		return nil, err
	}
	return &VulkanRenderTarget{Renderpass: rp, Framebuffer: fb}, nil
}

func (rt *VulkanRenderTarget) Destroy(context *VulkanContext) {
	if rt.Framebuffer != nil {
		rt.Framebuffer.Destroy(context)
		rt.Framebuffer = nil
	}
	if rt.Renderpass != nil {
		rt.Renderpass.Destroy(context)
		rt.Renderpass = nil
	}
}
