package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

// VulkanImage owns its memory, view and sampler. Between commands a sampled
// image is always kept in SHADER_READ_ONLY_OPTIMAL.
type VulkanImage struct {
	Handle  vk.Image
	Memory  vk.DeviceMemory
	View    vk.ImageView
	Sampler vk.Sampler
	Width   uint32
	Height  uint32
	Format  metadata.ImageFormat
	Layers  uint32
	Layout  vk.ImageLayout
}

func NewVulkanImage(context *VulkanContext, info gpu.ImageCreateInfo) (*VulkanImage, error) {
	if info.Extent.IsZero() {
		return nil, core.Wrapf(core.ErrZeroExtent, "image %q", info.Name)
	}
	img := &VulkanImage{
		Width:  info.Extent.Width,
		Height: info.Extent.Height,
		Format: info.Format,
		Layers: 1,
		Layout: vk.ImageLayoutUndefined,
	}
	var flags vk.ImageCreateFlags
	viewType := vk.ImageViewType2d
	if info.Cube {
		img.Layers = 6
		flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
		viewType = vk.ImageViewTypeCube
	}
	device := context.Device.LogicalDevice

	if err := check(vk.CreateImage(device, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: vk.ImageType2d,
		Format:    vkFormat(info.Format),
		Extent: vk.Extent3D{
			Width:  img.Width,
			Height: img.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   img.Layers,
		Samples:       vkSampleCount(info.SampleCount),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vkImageUsage(info.Usage | gpu.ImageUsageTransferDst),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, context.Allocator, &img.Handle), "vkCreateImage"); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, img.Handle, &requirements)
	memory, err := context.allocate(requirements, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		img.Destroy(context)
		return nil, err
	}
	img.Memory = memory
	if err := check(vk.BindImageMemory(device, img.Handle, img.Memory, 0), "vkBindImageMemory"); err != nil {
		img.Destroy(context)
		return nil, err
	}

	if err := check(vk.CreateImageView(device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: viewType,
		Format:   vkFormat(info.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: img.subresourceRange(),
	}, context.Allocator, &img.View), "vkCreateImageView"); err != nil {
		img.Destroy(context)
		return nil, err
	}

	if info.Usage&gpu.ImageUsageSampled != 0 {
		if err := check(vk.CreateSampler(device, &vk.SamplerCreateInfo{
			SType:                   vk.StructureTypeSamplerCreateInfo,
			MagFilter:               vk.FilterLinear,
			MinFilter:               vk.FilterLinear,
			MipmapMode:              vk.SamplerMipmapModeLinear,
			AddressModeU:            vk.SamplerAddressModeClampToEdge,
			AddressModeV:            vk.SamplerAddressModeClampToEdge,
			AddressModeW:            vk.SamplerAddressModeClampToEdge,
			AnisotropyEnable:        vk.False,
			MaxAnisotropy:           1,
			BorderColor:             vk.BorderColorIntOpaqueBlack,
			UnnormalizedCoordinates: vk.False,
			CompareEnable:           vk.False,
		}, context.Allocator, &img.Sampler), "vkCreateSampler"); err != nil {
			img.Destroy(context)
			return nil, err
		}
	}
	return img, nil
}

func (img *VulkanImage) subresourceRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LevelCount: 1,
		LayerCount: img.Layers,
	}
}

// Transition records a layout change for every layer of the image.
func (img *VulkanImage) Transition(cmd *VulkanCommandBuffer, newLayout vk.ImageLayout) {
	if img.Layout == newLayout {
		return
	}
	vk.CmdPipelineBarrier(cmd.Handle,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit),
			DstAccessMask:       vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
			OldLayout:           img.Layout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.Handle,
			SubresourceRange:    img.subresourceRange(),
		}})
	img.Layout = newLayout
}

// CopyFrom records an upload of the whole image from a staging buffer holding
// every layer back to back.
func (img *VulkanImage) CopyFrom(cmd *VulkanCommandBuffer, staging *VulkanBuffer) {
	vk.CmdCopyBufferToImage(cmd.Handle, staging.Handle, img.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: img.Layers,
		},
		ImageExtent: vk.Extent3D{Width: img.Width, Height: img.Height, Depth: 1},
	}})
}

// ByteSize is the number of bytes a full upload needs.
func (img *VulkanImage) ByteSize() uint64 {
	return uint64(img.Width) * uint64(img.Height) * uint64(img.Format.BytesPerPixel()) * uint64(img.Layers)
}

func (img *VulkanImage) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if img.Sampler != nil {
		vk.DestroySampler(device, img.Sampler, context.Allocator)
		img.Sampler = nil
	}
	if img.View != nil {
		vk.DestroyImageView(device, img.View, context.Allocator)
		img.View = nil
	}
	if img.Handle != nil {
		vk.DestroyImage(device, img.Handle, context.Allocator)
		img.Handle = nil
	}
	if img.Memory != nil {
		vk.FreeMemory(device, img.Memory, context.Allocator)
		img.Memory = nil
	}
}
