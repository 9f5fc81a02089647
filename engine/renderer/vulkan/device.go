package vulkan

import (
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
)

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	// One family serves graphics, compute and transfer.
	QueueIndex uint32
	Queue      vk.Queue

	CommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Compute              bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
	DiscreteGPU          bool
}

var rayTracingExtensions = []string{
	"VK_KHR_acceleration_structure",
	"VK_KHR_ray_tracing_pipeline",
	"VK_KHR_deferred_host_operations",
}

func DeviceCreate(context *VulkanContext, preferDiscrete bool) error {
	device, err := SelectPhysicalDevice(context.Instance, preferDiscrete)
	if err != nil {
		return err
	}
	context.Device = device

	core.LogInfo("Creating logical device...")

	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: device.QueueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy:  device.Features.SamplerAnisotropy,
		WideLines:          device.Features.WideLines,
		GeometryShader:     device.Features.GeometryShader,
		TessellationShader: device.Features.TessellationShader,
	}

	available, err := deviceExtensions(device.PhysicalDevice)
	if err != nil {
		return err
	}
	extensionNames := []string{}
	if _, ok := available["VK_KHR_portability_subset"]; ok {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}
	// TODO: enable these once acceleration structure builds exist on this backend.
	if hasAll(available, rayTracingExtensions) {
		core.LogInfo("Device exposes ray tracing extensions; ray tracing passes stay disabled.")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}
	var logical vk.Device
	if err := check(vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logical), "vkCreateDevice"); err != nil {
		return err
	}
	device.LogicalDevice = logical
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, device.QueueIndex, 0, &queue)
	device.Queue = queue

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.QueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := check(vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &pool), "vkCreateCommandPool"); err != nil {
		return err
	}
	device.CommandPool = pool
	core.LogInfo("Command pool created.")
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	device := context.Device
	if device == nil {
		return
	}
	device.Queue = nil

	if device.CommandPool != nil {
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(device.LogicalDevice, device.CommandPool, context.Allocator)
		device.CommandPool = nil
	}
	if device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}
	// Physical devices are not destroyed.
	device.PhysicalDevice = nil
	context.Device = nil
}

// SelectPhysicalDevice picks the first device with a queue family that does
// both graphics and compute. Discrete GPUs win when preferDiscrete is set.
func SelectPhysicalDevice(instance vk.Instance, preferDiscrete bool) (*VulkanDevice, error) {
	var physicalDeviceCount uint32
	if err := check(vk.EnumeratePhysicalDevices(instance, &physicalDeviceCount, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}
	if physicalDeviceCount == 0 {
		return nil, core.Wrapf(core.ErrUnsupported, "no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := check(vk.EnumeratePhysicalDevices(instance, &physicalDeviceCount, physicalDevices), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:    true,
		Compute:     true,
		DiscreteGPU: preferDiscrete && runtime.GOOS != "darwin",
	}

	var fallback *VulkanDevice
	for _, physical := range physicalDevices {
		candidate, ok := physicalDeviceMeetsRequirements(physical, &requirements)
		if !ok {
			continue
		}
		if requirements.DiscreteGPU && candidate.Properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
			if fallback == nil {
				fallback = candidate
			}
			continue
		}
		logDevice(candidate)
		return candidate, nil
	}
	if fallback != nil {
		core.LogInfo("No discrete GPU found, falling back.")
		logDevice(fallback)
		return fallback, nil
	}
	return nil, core.Wrapf(core.ErrUnsupported, "no physical devices were found which meet the requirements")
}

func physicalDeviceMeetsRequirements(physical vk.PhysicalDevice, requirements *VulkanPhysicalDeviceRequirements) (*VulkanDevice, bool) {
	device := &VulkanDevice{PhysicalDevice: physical}
	vk.GetPhysicalDeviceProperties(physical, &device.Properties)
	device.Properties.Deref()
	device.Properties.Limits.Deref()
	vk.GetPhysicalDeviceFeatures(physical, &device.Features)
	device.Features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(physical, &device.Memory)
	device.Memory.Deref()

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &queueFamilyCount, queueFamilies)

	var required vk.QueueFlags
	if requirements.Graphics {
		required |= vk.QueueFlags(vk.QueueGraphicsBit)
	}
	if requirements.Compute {
		required |= vk.QueueFlags(vk.QueueComputeBit)
	}
	found := false
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&required == required {
			device.QueueIndex = uint32(i)
			found = true
			break
		}
	}
	name := cString(device.Properties.DeviceName[:])
	if !found {
		core.LogInfo("Device '%s' has no graphics and compute queue, skipping.", name)
		return nil, false
	}

	if len(requirements.DeviceExtensionNames) > 0 {
		available, err := deviceExtensions(physical)
		if err != nil || !hasAll(available, requirements.DeviceExtensionNames) {
			core.LogInfo("Device '%s' lacks required extensions, skipping.", name)
			return nil, false
		}
	}
	if requirements.SamplerAnisotropy && device.Features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device '%s' does not support samplerAnisotropy, skipping.", name)
		return nil, false
	}
	return device, true
}

func deviceExtensions(physical vk.PhysicalDevice) (map[string]struct{}, error) {
	var count uint32
	if err := check(vk.EnumerateDeviceExtensionProperties(physical, "", &count, nil), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if err := check(vk.EnumerateDeviceExtensionProperties(physical, "", &count, props), "vkEnumerateDeviceExtensionProperties"); err != nil {
			return nil, err
		}
	}
	out := make(map[string]struct{}, count)
	for i := range props {
		props[i].Deref()
		out[cString(props[i].ExtensionName[:])] = struct{}{}
	}
	return out, nil
}

func hasAll(available map[string]struct{}, names []string) bool {
	for _, n := range names {
		if _, ok := available[n]; !ok {
			return false
		}
	}
	return true
}

func logDevice(device *VulkanDevice) {
	props := device.Properties
	core.LogInfo("Selected device: '%s'.", cString(props.DeviceName[:]))
	switch props.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(props.ApiVersion).Major(),
		vk.Version(props.ApiVersion).Minor(),
		vk.Version(props.ApiVersion).Patch(),
	)
	for j := 0; j < int(device.Memory.MemoryHeapCount); j++ {
		heap := device.Memory.MemoryHeaps[j]
		heap.Deref()
		sizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", sizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", sizeGib)
		}
	}
}

// limits maps the device properties onto what passes clamp against.
func (d *VulkanDevice) limits() gpu.Limits {
	l := d.Properties.Limits
	return gpu.Limits{
		MaxComputeWorkGroupCount: l.MaxComputeWorkGroupCount,
		MaxComputeWorkGroupSize:  l.MaxComputeWorkGroupSize,
		MaxUniformBufferRange:    l.MaxUniformBufferRange,
		MaxStorageBufferRange:    l.MaxStorageBufferRange,
		MaxPushConstantsSize:     l.MaxPushConstantsSize,
		MaxImageDimension2D:      l.MaxImageDimension2D,
		RayTracing:               false,
	}
}
