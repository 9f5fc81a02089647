package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

type Options struct {
	AppName string
	// Enables the Khronos validation layer and the debug report callback.
	Validation     bool
	PreferDiscrete bool
}

// VulkanBackend is a gpu.Device rendering offscreen. Pass outputs are sampled
// images, nothing is presented.
type VulkanBackend struct {
	context *VulkanContext
	limits  gpu.Limits
	// Set when the device can switch topology inside a pipeline (Vulkan 1.3).
	dynamicTopology bool

	next      uint64
	buffers   map[gpu.BufferHandle]*VulkanBuffer
	images    map[gpu.ImageHandle]*VulkanImage
	targets   map[gpu.RenderTargetHandle]*VulkanRenderTarget
	layouts   map[gpu.DescriptorLayoutHandle]*VulkanDescriptorLayout
	sets      map[gpu.DescriptorSetHandle]*VulkanDescriptorSet
	pipelines map[gpu.PipelineHandle]*VulkanPipeline

	frame      *VulkanCommandBuffer
	frameFence *VulkanFence
}

var (
	_ gpu.Device        = (*VulkanBackend)(nil)
	_ gpu.CommandBuffer = (*VulkanCommandBuffer)(nil)
)

func New(opts Options) (*VulkanBackend, error) {
	b := &VulkanBackend{
		context:   &VulkanContext{Allocator: nil},
		buffers:   make(map[gpu.BufferHandle]*VulkanBuffer),
		images:    make(map[gpu.ImageHandle]*VulkanImage),
		targets:   make(map[gpu.RenderTargetHandle]*VulkanRenderTarget),
		layouts:   make(map[gpu.DescriptorLayoutHandle]*VulkanDescriptorLayout),
		sets:      make(map[gpu.DescriptorSetHandle]*VulkanDescriptorSet),
		pipelines: make(map[gpu.PipelineHandle]*VulkanPipeline),
	}
	if err := b.initialize(opts); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

func (b *VulkanBackend) initialize(opts Options) error {
	// glfw must already be initialized by the platform layer.
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return core.Wrapf(core.ErrUnsupported, "GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return core.Wrapf(core.ErrUnsupported, "failed to initialize vk: %s", err)
	}

	if err := b.createInstance(opts); err != nil {
		return err
	}
	if err := DeviceCreate(b.context, opts.PreferDiscrete); err != nil {
		return err
	}
	if err := descriptorPoolCreate(b.context); err != nil {
		return err
	}

	fence, err := NewFence(b.context, false)
	if err != nil {
		return err
	}
	b.frameFence = fence

	b.limits = b.context.Device.limits()
	api := vk.Version(b.context.Device.Properties.ApiVersion)
	b.dynamicTopology = api.Major() > 1 || api.Minor() >= 3
	core.LogInfo("Vulkan backend ready.")
	return nil
}

func (b *VulkanBackend) createInstance(opts Options) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 3, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(opts.AppName),
		PEngineName:        VulkanSafeString("Lumo"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if opts.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	requiredValidationLayerNames := []string{}
	if opts.Validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		requiredValidationLayerNames = []string{"VK_LAYER_KHRONOS_validation"}

		var availableLayerCount uint32
		if err := check(vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
			return err
		}
		availableLayers := make([]vk.LayerProperties, availableLayerCount)
		if err := check(vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers), "vkEnumerateInstanceLayerProperties"); err != nil {
			return err
		}
		for _, required := range requiredValidationLayerNames {
			found := false
			for j := range availableLayers {
				availableLayers[j].Deref()
				if required == cString(availableLayers[j].LayerName[:]) {
					found = true
					break
				}
			}
			if !found {
				return core.Wrapf(core.ErrUnsupported, "required validation layer is missing: %s", required)
			}
		}
		core.LogInfo("All required validation layers are present.")
	}
	createInfo.EnabledLayerCount = uint32(len(requiredValidationLayerNames))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredValidationLayerNames)

	if err := check(vk.CreateInstance(&createInfo, b.context.Allocator, &b.context.Instance), "vkCreateInstance"); err != nil {
		return err
	}
	if err := vk.InitInstance(b.context.Instance); err != nil {
		return core.Wrapf(core.ErrUnsupported, "init instance: %s", err)
	}
	core.LogInfo("Vulkan Instance created.")

	if opts.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := check(vk.CreateDebugReportCallback(b.context.Instance, &debugCreateInfo, nil, &dbg), "vkCreateDebugReportCallback"); err != nil {
			return err
		}
		b.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func (b *VulkanBackend) id() uint64 {
	b.next++
	return b.next
}

func (b *VulkanBackend) buffer(h gpu.BufferHandle) (*VulkanBuffer, bool) {
	v, ok := b.buffers[h]
	return v, ok
}

func (b *VulkanBackend) image(h gpu.ImageHandle) (*VulkanImage, bool) {
	v, ok := b.images[h]
	return v, ok
}

func (b *VulkanBackend) CreateBuffer(info gpu.BufferCreateInfo) (gpu.BufferHandle, error) {
	buf, err := NewVulkanBuffer(b.context, info)
	if err != nil {
		return gpu.InvalidHandle, core.Wrapf(err, "buffer %q", info.Name)
	}
	h := gpu.BufferHandle(b.id())
	b.buffers[h] = buf
	return h, nil
}

func (b *VulkanBackend) WriteBuffer(buffer gpu.BufferHandle, offset uint64, data []byte) error {
	buf, ok := b.buffers[buffer]
	if !ok {
		return core.Wrapf(core.ErrInvalidHandle, "buffer %d", buffer)
	}
	return buf.Write(offset, data)
}

func (b *VulkanBackend) DestroyBuffer(buffer gpu.BufferHandle) {
	if buf, ok := b.buffers[buffer]; ok {
		buf.Destroy(b.context)
		delete(b.buffers, buffer)
	}
}

func (b *VulkanBackend) CreateImage(info gpu.ImageCreateInfo) (gpu.ImageHandle, error) {
	if dim := b.limits.MaxImageDimension2D; dim > 0 && (info.Extent.Width > dim || info.Extent.Height > dim) {
		return gpu.InvalidHandle, core.Wrapf(core.ErrResourceCreation, "image %q of %s exceeds %d", info.Name, info.Extent, dim)
	}
	img, err := NewVulkanImage(b.context, info)
	if err != nil {
		return gpu.InvalidHandle, core.Wrapf(err, "image %q", info.Name)
	}
	layout := vk.ImageLayoutShaderReadOnlyOptimal
	if info.Usage&(gpu.ImageUsageSampled|gpu.ImageUsageColorAttachment) == 0 {
		layout = vk.ImageLayoutGeneral
	}
	if err := b.singleUse(func(cmd *VulkanCommandBuffer) {
		img.Transition(cmd, layout)
	}); err != nil {
		img.Destroy(b.context)
		return gpu.InvalidHandle, err
	}
	h := gpu.ImageHandle(b.id())
	b.images[h] = img
	return h, nil
}

func (b *VulkanBackend) WriteImage(image gpu.ImageHandle, pixels []byte) error {
	img, ok := b.images[image]
	if !ok {
		return core.Wrapf(core.ErrInvalidHandle, "image %d", image)
	}
	if uint64(len(pixels)) != img.ByteSize() {
		return core.Newf("image upload of %d bytes, expected %d", len(pixels), img.ByteSize())
	}
	staging, err := NewVulkanBuffer(b.context, gpu.BufferCreateInfo{
		Name:  "staging",
		Size:  img.ByteSize(),
		Usage: metadata.BufferUsageStorage,
	})
	if err != nil {
		return err
	}
	defer staging.Destroy(b.context)
	if err := staging.Write(0, pixels); err != nil {
		return err
	}
	final := img.Layout
	return b.singleUse(func(cmd *VulkanCommandBuffer) {
		img.Transition(cmd, vk.ImageLayoutTransferDstOptimal)
		img.CopyFrom(cmd, staging)
		img.Transition(cmd, final)
	})
}

func (b *VulkanBackend) DestroyImage(image gpu.ImageHandle) {
	if img, ok := b.images[image]; ok {
		img.Destroy(b.context)
		delete(b.images, image)
	}
}

// singleUse records fn into a throwaway command buffer and waits for it.
func (b *VulkanBackend) singleUse(fn func(cmd *VulkanCommandBuffer)) error {
	device := b.context.Device
	return lockPool.SafeCall(CommandPoolManagement, func() error {
		cmd, err := AllocateAndBeginSingleUse(b.context, device.CommandPool)
		if err != nil {
			return err
		}
		fn(cmd)
		return lockPool.SafeQueueCall(device.QueueIndex, func() error {
			return cmd.EndSingleUse(b.context, device.CommandPool, device.Queue)
		})
	})
}

func (b *VulkanBackend) CreateRenderTarget(info gpu.RenderTargetCreateInfo) (gpu.RenderTargetHandle, error) {
	if len(info.Attachments) == 0 {
		return gpu.InvalidHandle, core.Wrapf(core.ErrResourceCreation, "render target %q has no attachments", info.Name)
	}
	images := make([]*VulkanImage, 0, len(info.Attachments))
	for _, a := range info.Attachments {
		img, ok := b.images[a]
		if !ok {
			return gpu.InvalidHandle, core.Wrapf(core.ErrInvalidHandle, "render target %q attachment %d", info.Name, a)
		}
		images = append(images, img)
	}
	rt, err := NewVulkanRenderTarget(b.context, info, images)
	if err != nil {
		return gpu.InvalidHandle, err
	}
	h := gpu.RenderTargetHandle(b.id())
	b.targets[h] = rt
	return h, nil
}

func (b *VulkanBackend) DestroyRenderTarget(target gpu.RenderTargetHandle) {
	if rt, ok := b.targets[target]; ok {
		rt.Destroy(b.context)
		delete(b.targets, target)
	}
}

func (b *VulkanBackend) CreateDescriptorLayout(bindings []gpu.LayoutBinding) (gpu.DescriptorLayoutHandle, error) {
	layout, err := NewDescriptorLayout(b.context, bindings)
	if err != nil {
		return gpu.InvalidHandle, err
	}
	h := gpu.DescriptorLayoutHandle(b.id())
	b.layouts[h] = layout
	return h, nil
}

func (b *VulkanBackend) DestroyDescriptorLayout(layout gpu.DescriptorLayoutHandle) {
	if l, ok := b.layouts[layout]; ok {
		l.Destroy(b.context)
		delete(b.layouts, layout)
	}
}

func (b *VulkanBackend) AllocateDescriptorSet(layout gpu.DescriptorLayoutHandle) (gpu.DescriptorSetHandle, error) {
	l, ok := b.layouts[layout]
	if !ok {
		return gpu.InvalidHandle, core.Wrapf(core.ErrInvalidHandle, "descriptor layout %d", layout)
	}
	var set vk.DescriptorSet
	if err := lockPool.SafeCall(DescriptorManagement, func() error {
		var err error
		set, err = AllocateDescriptorSet(b.context, l)
		return err
	}); err != nil {
		return gpu.InvalidHandle, err
	}
	h := gpu.DescriptorSetHandle(b.id())
	b.sets[h] = &VulkanDescriptorSet{Handle: set, Layout: layout}
	return h, nil
}

func (b *VulkanBackend) FreeDescriptorSet(set gpu.DescriptorSetHandle) {
	s, ok := b.sets[set]
	if !ok {
		return
	}
	_ = lockPool.SafeCall(DescriptorManagement, func() error {
		FreeDescriptorSet(b.context, s.Handle)
		return nil
	})
	delete(b.sets, set)
}

func (b *VulkanBackend) UpdateDescriptorSet(set gpu.DescriptorSetHandle, writes []gpu.DescriptorWrite) error {
	s, ok := b.sets[set]
	if !ok {
		return core.Wrapf(core.ErrInvalidHandle, "descriptor set %d", set)
	}
	l, ok := b.layouts[s.Layout]
	if !ok {
		return core.Wrapf(core.ErrInvalidHandle, "descriptor set %d outlived its layout", set)
	}
	return UpdateDescriptorSet(b.context, s.Handle, l, writes, b)
}

func vertexInput(layout *metadata.VertexLayout) *VulkanVertexInput {
	if layout == nil {
		return nil
	}
	in := &VulkanVertexInput{Stride: layout.Stride}
	for _, a := range layout.Attributes {
		in.Attributes = append(in.Attributes, vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  0,
			Format:   vkAttributeFormat(a.Format),
			Offset:   a.Offset,
		})
	}
	return in
}

func (b *VulkanBackend) CreateGraphicsPipeline(info gpu.GraphicsPipelineCreateInfo) (gpu.PipelineHandle, error) {
	target, ok := b.targets[info.RenderTarget]
	if !ok {
		return gpu.InvalidHandle, core.Wrapf(core.ErrInvalidHandle, "pipeline %q render target %d", info.Name, info.RenderTarget)
	}
	layout, ok := b.layouts[info.Layout]
	if !ok {
		return gpu.InvalidHandle, core.Wrapf(core.ErrInvalidHandle, "pipeline %q layout %d", info.Name, info.Layout)
	}
	stages, err := newShaderStages(b.context, info.Stages)
	if err != nil {
		return gpu.InvalidHandle, core.Wrapf(err, "pipeline %q", info.Name)
	}
	// Modules are not needed once the pipeline exists.
	defer destroyShaderStages(b.context, stages)

	createInfos := make([]vk.PipelineShaderStageCreateInfo, len(stages))
	for i, s := range stages {
		createInfos[i] = s.ShaderStageCreateInfo
	}
	if info.DynamicTopology && !b.dynamicTopology {
		core.LogWarn("pipeline %q: dynamic topology needs Vulkan 1.3, using %s", info.Name, info.Topology)
	}
	p, err := NewGraphicsPipeline(b.context, &VulkanPipelineConfig{
		Name:                info.Name,
		Target:              target,
		Vertex:              vertexInput(info.Vertex),
		DescriptorSetLayout: layout.Handle,
		Stages:              createInfos,
		Info:                info,
		DynamicTopology:     info.DynamicTopology && b.dynamicTopology,
	})
	if err != nil {
		return gpu.InvalidHandle, core.Wrapf(err, "pipeline %q", info.Name)
	}
	h := gpu.PipelineHandle(b.id())
	b.pipelines[h] = p
	return h, nil
}

func (b *VulkanBackend) CreateComputePipeline(info gpu.ComputePipelineCreateInfo) (gpu.PipelineHandle, error) {
	layout, ok := b.layouts[info.Layout]
	if !ok {
		return gpu.InvalidHandle, core.Wrapf(core.ErrInvalidHandle, "pipeline %q layout %d", info.Name, info.Layout)
	}
	stage, err := NewShaderStage(b.context, info.Stage)
	if err != nil {
		return gpu.InvalidHandle, core.Wrapf(err, "pipeline %q", info.Name)
	}
	defer stage.Destroy(b.context)

	p, err := NewComputePipeline(b.context, info.Name, stage.ShaderStageCreateInfo, layout.Handle, info.PushConstants)
	if err != nil {
		return gpu.InvalidHandle, core.Wrapf(err, "pipeline %q", info.Name)
	}
	h := gpu.PipelineHandle(b.id())
	b.pipelines[h] = p
	return h, nil
}

func (b *VulkanBackend) CreateRayTracingPipeline(info gpu.RayTracingPipelineCreateInfo) (gpu.PipelineHandle, error) {
	return gpu.InvalidHandle, core.Wrapf(core.ErrUnsupported, "ray tracing pipeline %q", info.Name)
}

func (b *VulkanBackend) ShaderGroupHandles(pipeline gpu.PipelineHandle, handleSize uint32) ([]byte, error) {
	return nil, core.Wrapf(core.ErrUnsupported, "shader group handles of pipeline %d", pipeline)
}

func (b *VulkanBackend) DestroyPipeline(pipeline gpu.PipelineHandle) {
	if p, ok := b.pipelines[pipeline]; ok {
		p.Destroy(b.context)
		delete(b.pipelines, pipeline)
	}
}

func (b *VulkanBackend) BeginCommands() (gpu.CommandBuffer, error) {
	device := b.context.Device
	if b.frame == nil {
		var cmd *VulkanCommandBuffer
		if err := lockPool.SafeCall(CommandPoolManagement, func() error {
			var err error
			cmd, err = NewVulkanCommandBuffer(b.context, device.CommandPool)
			return err
		}); err != nil {
			return nil, err
		}
		cmd.backend = b
		b.frame = cmd
	}
	if b.frame.State != COMMAND_BUFFER_STATE_READY {
		if err := b.frame.Reset(); err != nil {
			return nil, err
		}
	}
	if err := b.frame.Begin(true); err != nil {
		return nil, err
	}
	return b.frame, nil
}

func (b *VulkanBackend) Submit(cmd gpu.CommandBuffer) error {
	frame, ok := cmd.(*VulkanCommandBuffer)
	if !ok || frame != b.frame {
		return core.Newf("submit of a command buffer not begun on this device")
	}
	frame.EndRenderPass()
	if err := frame.End(); err != nil {
		return err
	}
	device := b.context.Device
	if err := lockPool.SafeQueueCall(device.QueueIndex, func() error {
		return check(vk.QueueSubmit(device.Queue, 1, []vk.SubmitInfo{{
			SType:              vk.StructureTypeSubmitInfo,
			CommandBufferCount: 1,
			PCommandBuffers:    []vk.CommandBuffer{frame.Handle},
		}}, b.frameFence.Handle), "vkQueueSubmit")
	}); err != nil {
		return err
	}
	frame.State = COMMAND_BUFFER_STATE_SUBMITTED
	if err := b.frameFence.Wait(b.context, VULKAN_FENCE_TIMEOUT_NS); err != nil {
		return err
	}
	return b.frameFence.Reset(b.context)
}

func (b *VulkanBackend) WaitIdle() error {
	if b.context.Device == nil || b.context.Device.LogicalDevice == nil {
		return nil
	}
	return check(vk.DeviceWaitIdle(b.context.Device.LogicalDevice), "vkDeviceWaitIdle")
}

func (b *VulkanBackend) Limits() gpu.Limits {
	return b.limits
}

func (b *VulkanBackend) Destroy() {
	if b.context.Device != nil && b.context.Device.LogicalDevice != nil {
		if err := b.WaitIdle(); err != nil {
			core.LogWarn("vulkan: wait idle before shutdown failed: %s", err)
		}
		leaked := len(b.pipelines) + len(b.sets) + len(b.layouts) + len(b.targets) + len(b.images) + len(b.buffers)
		if leaked > 0 {
			core.LogWarn("vulkan: releasing %d objects still alive at shutdown", leaked)
		}
		for h := range b.pipelines {
			b.DestroyPipeline(h)
		}
		for h := range b.sets {
			b.FreeDescriptorSet(h)
		}
		for h := range b.layouts {
			b.DestroyDescriptorLayout(h)
		}
		for h := range b.targets {
			b.DestroyRenderTarget(h)
		}
		for h := range b.images {
			b.DestroyImage(h)
		}
		for h := range b.buffers {
			b.DestroyBuffer(h)
		}
		if b.frame != nil {
			b.frame.Free(b.context, b.context.Device.CommandPool)
			b.frame = nil
		}
		if b.frameFence != nil {
			b.frameFence.Destroy(b.context)
			b.frameFence = nil
		}
		descriptorPoolDestroy(b.context)
	}
	DeviceDestroy(b.context)

	if b.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(b.context.Instance, b.context.debugMessenger, b.context.Allocator)
		b.context.debugMessenger = vk.NullDebugReportCallback
	}
	if b.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(b.context.Instance, b.context.Allocator)
		b.context.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
