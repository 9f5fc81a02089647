package headless

import (
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

type Op string

const (
	OpBeginRenderPass   Op = "begin_render_pass"
	OpEndRenderPass     Op = "end_render_pass"
	OpSetViewport       Op = "set_viewport"
	OpSetLineWidth      Op = "set_line_width"
	OpSetTopology       Op = "set_topology"
	OpBindPipeline      Op = "bind_pipeline"
	OpBindDescriptorSet Op = "bind_descriptor_set"
	OpBindVertexBuffer  Op = "bind_vertex_buffer"
	OpBindIndexBuffer   Op = "bind_index_buffer"
	OpPushConstants     Op = "push_constants"
	OpDraw              Op = "draw"
	OpDrawIndexed       Op = "draw_indexed"
	OpDispatch          Op = "dispatch"
	OpTraceRays         Op = "trace_rays"
)

// Command is one recorded call. Handle and Counts are filled per Op.
type Command struct {
	Op       Op
	Handle   uint64
	Extent   metadata.Extent
	Counts   [3]uint32
	Clear    bool
	Topology metadata.Topology
	Data     []byte
	Width    float32
}

type CommandBuffer struct {
	device    *Device
	Commands  []Command
	submitted bool
}

func (c *CommandBuffer) record(cmd Command) {
	c.Commands = append(c.Commands, cmd)
}

func (c *CommandBuffer) BeginRenderPass(target gpu.RenderTargetHandle, extent metadata.Extent, clear bool, clearColor [4]float32) {
	c.record(Command{Op: OpBeginRenderPass, Handle: uint64(target), Extent: extent, Clear: clear})
}

func (c *CommandBuffer) EndRenderPass() {
	c.record(Command{Op: OpEndRenderPass})
}

func (c *CommandBuffer) SetViewport(extent metadata.Extent) {
	c.record(Command{Op: OpSetViewport, Extent: extent})
}

func (c *CommandBuffer) SetLineWidth(width float32) {
	c.record(Command{Op: OpSetLineWidth, Width: width})
}

func (c *CommandBuffer) SetPrimitiveTopology(topology metadata.Topology) {
	c.record(Command{Op: OpSetTopology, Topology: topology})
}

func (c *CommandBuffer) BindPipeline(pipeline gpu.PipelineHandle) {
	c.record(Command{Op: OpBindPipeline, Handle: uint64(pipeline)})
}

func (c *CommandBuffer) BindDescriptorSet(pipeline gpu.PipelineHandle, set gpu.DescriptorSetHandle) {
	c.record(Command{Op: OpBindDescriptorSet, Handle: uint64(set)})
}

func (c *CommandBuffer) BindVertexBuffer(buffer gpu.BufferHandle) {
	c.record(Command{Op: OpBindVertexBuffer, Handle: uint64(buffer)})
}

func (c *CommandBuffer) BindIndexBuffer(buffer gpu.BufferHandle) {
	c.record(Command{Op: OpBindIndexBuffer, Handle: uint64(buffer)})
}

func (c *CommandBuffer) PushConstants(pipeline gpu.PipelineHandle, stages metadata.StageMask, data []byte) {
	c.record(Command{Op: OpPushConstants, Handle: uint64(pipeline), Data: append([]byte(nil), data...)})
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount uint32) {
	c.record(Command{Op: OpDraw, Counts: [3]uint32{vertexCount, instanceCount, 0}})
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount uint32) {
	c.record(Command{Op: OpDrawIndexed, Counts: [3]uint32{indexCount, instanceCount, 0}})
}

func (c *CommandBuffer) Dispatch(x, y, z uint32) {
	c.record(Command{Op: OpDispatch, Counts: [3]uint32{x, y, z}})
}

func (c *CommandBuffer) TraceRays(sbt gpu.BufferHandle, width, height, depth uint32) {
	c.record(Command{Op: OpTraceRays, Handle: uint64(sbt), Counts: [3]uint32{width, height, depth}})
}

// Filter returns the commands with the given op.
func Filter(cmds []Command, op Op) []Command {
	out := []Command{}
	for _, c := range cmds {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}
