package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

// VulkanBuffer lives in host visible, coherent memory and stays mapped, so
// writes are plain copies.
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	// Only set for texel buffers.
	View   vk.BufferView
	Size   uint64
	Usage  metadata.BufferUsage
	mapped unsafe.Pointer
}

func NewVulkanBuffer(context *VulkanContext, info gpu.BufferCreateInfo) (*VulkanBuffer, error) {
	if info.Size == 0 {
		return nil, core.Wrapf(core.ErrResourceCreation, "buffer %q has zero size", info.Name)
	}
	b := &VulkanBuffer{Size: info.Size, Usage: info.Usage}
	device := context.Device.LogicalDevice

	if err := check(vk.CreateBuffer(device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vkBufferUsage(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}, context.Allocator, &b.Handle), "vkCreateBuffer"); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, b.Handle, &requirements)
	memory, err := context.allocate(requirements, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		b.Destroy(context)
		return nil, err
	}
	b.Memory = memory
	if err := check(vk.BindBufferMemory(device, b.Handle, b.Memory, 0), "vkBindBufferMemory"); err != nil {
		b.Destroy(context)
		return nil, err
	}
	if err := check(vk.MapMemory(device, b.Memory, 0, vk.DeviceSize(info.Size), 0, &b.mapped), "vkMapMemory"); err != nil {
		b.Destroy(context)
		return nil, err
	}

	if info.Usage == metadata.BufferUsageTexel {
		if err := check(vk.CreateBufferView(device, &vk.BufferViewCreateInfo{
			SType:  vk.StructureTypeBufferViewCreateInfo,
			Buffer: b.Handle,
			Format: vkFormat(info.TexelFormat),
			Range:  vk.DeviceSize(vk.WholeSize),
		}, context.Allocator, &b.View), "vkCreateBufferView"); err != nil {
			b.Destroy(context)
			return nil, err
		}
	}
	return b, nil
}

func (b *VulkanBuffer) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.Size {
		return core.Newf("write of %d bytes at %d overflows buffer of %d bytes", len(data), offset, b.Size)
	}
	if len(data) == 0 {
		return nil
	}
	dst := unsafe.Slice((*byte)(b.mapped), b.Size)
	copy(dst[offset:], data)
	return nil
}

func (b *VulkanBuffer) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if b.View != nil {
		vk.DestroyBufferView(device, b.View, context.Allocator)
		b.View = nil
	}
	if b.mapped != nil {
		vk.UnmapMemory(device, b.Memory)
		b.mapped = nil
	}
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(device, b.Handle, context.Allocator)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, b.Memory, context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
}
