package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandBuffer is a primary command buffer. Frame buffers also record
// the gpu.CommandBuffer calls against the backend's objects.
type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	State  VulkanCommandBufferState

	backend *VulkanBackend
	// Pipeline bound last, used by descriptor and push constant binds.
	bound *VulkanPipeline
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		State: COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := check(vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles), "vkAllocateCommandBuffers"); err != nil {
		return nil, err
	}
	vCommandBuffer.Handle = handles[0]
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY
	return vCommandBuffer, nil
}

func (v *VulkanCommandBuffer) Free(context *VulkanContext, pool vk.CommandPool) {
	if v.Handle != nil {
		vk.FreeCommandBuffers(context.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{v.Handle})
	}
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(isSingleUse bool) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := check(vk.BeginCommandBuffer(v.Handle, beginInfo), "vkBeginCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	v.bound = nil
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if err := check(vk.EndCommandBuffer(v.Handle), "vkEndCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

// Reset makes a submitted buffer recordable again.
func (v *VulkanCommandBuffer) Reset() error {
	if err := check(vk.ResetCommandBuffer(v.Handle, 0), "vkResetCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

// AllocateAndBeginSingleUse allocates a command buffer and begins recording to it.
func AllocateAndBeginSingleUse(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(context, pool)
	if err != nil {
		return nil, err
	}
	if err := cb.Begin(true); err != nil {
		cb.Free(context, pool)
		return nil, err
	}
	return cb, nil
}

// EndSingleUse ends recording, submits, waits for the queue and frees the buffer.
func (v *VulkanCommandBuffer) EndSingleUse(context *VulkanContext, pool vk.CommandPool, queue vk.Queue) error {
	defer v.Free(context, pool)
	if err := v.End(); err != nil {
		return err
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	if err := check(vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence), "vkQueueSubmit"); err != nil {
		return err
	}
	return check(vk.QueueWaitIdle(queue), "vkQueueWaitIdle")
}

// barrier makes every prior write visible to every later access. Passes run
// back to back in one buffer, so the next pass may read what the last one wrote.
func (v *VulkanCommandBuffer) barrier() {
	vk.CmdPipelineBarrier(v.Handle,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 1, []vk.MemoryBarrier{{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(vk.AccessMemoryWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
		}}, 0, nil, 0, nil)
}

func (v *VulkanCommandBuffer) BeginRenderPass(target gpu.RenderTargetHandle, extent metadata.Extent, clear bool, clearColor [4]float32) {
	rt, ok := v.backend.targets[target]
	if !ok {
		core.LogWarn("begin render pass on unknown target %d", target)
		return
	}
	v.barrier()
	rt.Renderpass.Begin(v, rt.Framebuffer.Handle, extent, clear, clearColor)
}

func (v *VulkanCommandBuffer) EndRenderPass() {
	if v.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return
	}
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *VulkanCommandBuffer) SetViewport(extent metadata.Extent) {
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}})
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{{
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}})
}

func (v *VulkanCommandBuffer) SetLineWidth(width float32) {
	if v.backend.context.Device.Features.WideLines == vk.False {
		width = 1
	}
	vk.CmdSetLineWidth(v.Handle, width)
}

func (v *VulkanCommandBuffer) SetPrimitiveTopology(topology metadata.Topology) {
	if !v.backend.dynamicTopology {
		return
	}
	vk.CmdSetPrimitiveTopology(v.Handle, vkTopology(topology))
}

func (v *VulkanCommandBuffer) BindPipeline(pipeline gpu.PipelineHandle) {
	p, ok := v.backend.pipelines[pipeline]
	if !ok {
		core.LogWarn("bind of unknown pipeline %d", pipeline)
		return
	}
	if p.BindPoint == vk.PipelineBindPointCompute {
		v.barrier()
	}
	p.Bind(v)
	v.bound = p
}

func (v *VulkanCommandBuffer) BindDescriptorSet(pipeline gpu.PipelineHandle, set gpu.DescriptorSetHandle) {
	p, ok := v.backend.pipelines[pipeline]
	if !ok {
		return
	}
	s, ok := v.backend.sets[set]
	if !ok {
		core.LogWarn("bind of unknown descriptor set %d", set)
		return
	}
	vk.CmdBindDescriptorSets(v.Handle, p.BindPoint, p.PipelineLayout, 0, 1, []vk.DescriptorSet{s.Handle}, 0, nil)
}

func (v *VulkanCommandBuffer) BindVertexBuffer(buffer gpu.BufferHandle) {
	b, ok := v.backend.buffers[buffer]
	if !ok {
		return
	}
	vk.CmdBindVertexBuffers(v.Handle, 0, 1, []vk.Buffer{b.Handle}, []vk.DeviceSize{0})
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buffer gpu.BufferHandle) {
	b, ok := v.backend.buffers[buffer]
	if !ok {
		return
	}
	vk.CmdBindIndexBuffer(v.Handle, b.Handle, 0, vk.IndexTypeUint32)
}

func (v *VulkanCommandBuffer) PushConstants(pipeline gpu.PipelineHandle, stages metadata.StageMask, data []byte) {
	p, ok := v.backend.pipelines[pipeline]
	if !ok || len(data) == 0 {
		return
	}
	vk.CmdPushConstants(v.Handle, p.PipelineLayout, vkStageFlags(stages), 0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (v *VulkanCommandBuffer) Draw(vertexCount, instanceCount uint32) {
	vk.CmdDraw(v.Handle, vertexCount, instanceCount, 0, 0)
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, 0, 0, 0)
}

func (v *VulkanCommandBuffer) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(v.Handle, x, y, z)
}

func (v *VulkanCommandBuffer) TraceRays(sbt gpu.BufferHandle, width, height, depth uint32) {
	core.LogWarn("trace rays (%dx%dx%d) dropped: ray tracing is not available on this backend", width, height, depth)
}
