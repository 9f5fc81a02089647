package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

/**
 * @brief A descriptor set layout plus the bindings it was built from.
 */
type VulkanDescriptorLayout struct {
	Handle   vk.DescriptorSetLayout
	Bindings []gpu.LayoutBinding
}

/**
 * @brief A descriptor set allocated from the shared pool.
 */
type VulkanDescriptorSet struct {
	Handle vk.DescriptorSet
	Layout gpu.DescriptorLayoutHandle
}

// descriptorPoolCreate builds the one pool every set comes from. Sets are freed
// individually when a pass rebuilds its table.
func descriptorPoolCreate(context *VulkanContext) error {
	kinds := []vk.DescriptorType{
		vk.DescriptorTypeCombinedImageSampler,
		vk.DescriptorTypeStorageBuffer,
		vk.DescriptorTypeUniformBuffer,
		vk.DescriptorTypeUniformTexelBuffer,
	}
	sizes := make([]vk.DescriptorPoolSize, len(kinds))
	for i, k := range kinds {
		sizes[i] = vk.DescriptorPoolSize{Type: k, DescriptorCount: VULKAN_DESCRIPTORS_PER_TYPE}
	}
	var pool vk.DescriptorPool
	if err := check(vk.CreateDescriptorPool(context.Device.LogicalDevice, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       VULKAN_MAX_DESCRIPTOR_SETS,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, context.Allocator, &pool), "vkCreateDescriptorPool"); err != nil {
		return err
	}
	context.DescriptorPool = pool
	return nil
}

func descriptorPoolDestroy(context *VulkanContext) {
	if context.DescriptorPool != nil {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, context.DescriptorPool, context.Allocator)
		context.DescriptorPool = nil
	}
}

func NewDescriptorLayout(context *VulkanContext, bindings []gpu.LayoutBinding) (*VulkanDescriptorLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, 0, len(bindings))
	for _, b := range bindings {
		if b.Kind == metadata.ResourceKindAccelerationStructure {
			return nil, core.Wrapf(core.ErrUnsupported, "binding %d: acceleration structures", b.Binding)
		}
		vkBindings = append(vkBindings, vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vkDescriptorType(b.Kind),
			DescriptorCount: 1,
			StageFlags:      vkStageFlags(b.Stages),
		})
	}
	layout := &VulkanDescriptorLayout{Bindings: append([]gpu.LayoutBinding(nil), bindings...)}
	if err := check(vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}, context.Allocator, &layout.Handle), "vkCreateDescriptorSetLayout"); err != nil {
		return nil, err
	}
	return layout, nil
}

func (l *VulkanDescriptorLayout) Destroy(context *VulkanContext) {
	if l.Handle != nil {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, l.Handle, context.Allocator)
		l.Handle = nil
	}
}

func (l *VulkanDescriptorLayout) binding(index uint32) (gpu.LayoutBinding, bool) {
	for _, b := range l.Bindings {
		if b.Binding == index {
			return b, true
		}
	}
	return gpu.LayoutBinding{}, false
}

func AllocateDescriptorSet(context *VulkanContext, layout *VulkanDescriptorLayout) (vk.DescriptorSet, error) {
	var set vk.DescriptorSet
	if err := check(vk.AllocateDescriptorSets(context.Device.LogicalDevice, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     context.DescriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.Handle},
	}, &set), "vkAllocateDescriptorSets"); err != nil {
		return nil, err
	}
	return set, nil
}

func FreeDescriptorSet(context *VulkanContext, set vk.DescriptorSet) {
	if set == nil {
		return
	}
	vk.FreeDescriptorSets(context.Device.LogicalDevice, context.DescriptorPool, 1, []vk.DescriptorSet{set})
}

// descriptorResolver looks up the native objects behind write handles.
type descriptorResolver interface {
	buffer(h gpu.BufferHandle) (*VulkanBuffer, bool)
	image(h gpu.ImageHandle) (*VulkanImage, bool)
}

// UpdateDescriptorSet translates writes into one vkUpdateDescriptorSets call.
// A write that does not match the layout fails the whole update.
func UpdateDescriptorSet(context *VulkanContext, set vk.DescriptorSet, layout *VulkanDescriptorLayout, writes []gpu.DescriptorWrite, objects descriptorResolver) error {
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		b, ok := layout.binding(w.Binding)
		if !ok {
			return core.Wrapf(core.ErrLayoutMismatch, "binding %d is not in the layout", w.Binding)
		}
		if !w.Matches(b.Kind) {
			return core.Wrapf(core.ErrLayoutMismatch, "binding %d expects %s, got %s", w.Binding, b.Kind, w.Kind)
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  vkDescriptorType(b.Kind),
		}
		switch b.Kind {
		case metadata.ResourceKindTexture2D, metadata.ResourceKindTextureCube:
			img, ok := objects.image(w.Image.Image)
			if !ok {
				return core.Wrapf(core.ErrInvalidHandle, "binding %d: image %d", w.Binding, w.Image.Image)
			}
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     img.Sampler,
				ImageView:   img.View,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}}
		case metadata.ResourceKindStorageBuffer, metadata.ResourceKindUniformBuffer:
			buf, ok := objects.buffer(w.Buffer.Buffer)
			if !ok {
				return core.Wrapf(core.ErrInvalidHandle, "binding %d: buffer %d", w.Binding, w.Buffer.Buffer)
			}
			rng := vk.DeviceSize(w.Buffer.Range)
			if rng == 0 {
				rng = vk.DeviceSize(vk.WholeSize)
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf.Handle,
				Offset: vk.DeviceSize(w.Buffer.Offset),
				Range:  rng,
			}}
		case metadata.ResourceKindTexelBuffer:
			buf, ok := objects.buffer(w.TexelBuffer.Buffer)
			if !ok || buf.View == nil {
				return core.Wrapf(core.ErrInvalidHandle, "binding %d: texel buffer %d", w.Binding, w.TexelBuffer.Buffer)
			}
			write.PTexelBufferView = []vk.BufferView{buf.View}
		case metadata.ResourceKindAccelerationStructure:
			return core.Wrapf(core.ErrUnsupported, "binding %d: acceleration structures", w.Binding)
		}
		vkWrites = append(vkWrites, write)
	}
	if len(vkWrites) > 0 {
		vk.UpdateDescriptorSets(context.Device.LogicalDevice, uint32(len(vkWrites)), vkWrites, 0, nil)
	}
	return nil
}
