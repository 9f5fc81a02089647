package pass

import (
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/math"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/shaders"
)

const (
	sbtHandleSize    = 32
	sbtBaseAlignment = 64
)

// RtxPass traces rays over its output size. Besides the pipeline it owns the
// shader binding table, one aligned record per ray tracing stage holding the
// group handle the device reports for it. The table is rewritten after every
// pipeline build.
type RtxPass struct {
	*ShaderPass

	sbt *BufferResource
}

func NewRtxPass(ctx *gpu.GraphicsContext, compiler shaders.Compiler, name string, impl Program) *RtxPass {
	return &RtxPass{ShaderPass: NewShaderPass(ctx, compiler, name, impl)}
}

// BuildModel creates the shader binding table.
func (r *RtxPass) BuildModel() bool {
	if !r.ctx.Limits().RayTracing {
		core.LogError("rtx %s: %s", r.name, core.Wrapf(core.ErrUnsupported, "ray tracing"))
		return false
	}
	groups := uint32(0)
	for stage, code := range r.impl.StageSources() {
		if code != "" && stage.Mask()&metadata.StageMaskRayTracing != 0 {
			groups++
		}
	}
	if groups == 0 {
		core.LogError("rtx %s: no ray tracing stage", r.name)
		return false
	}
	b := NewBufferResource(r.ctx, r.name+"_sbt", metadata.BufferUsageShaderBindingTable)
	if _, ok := b.RegisterByteSize("records", groups*math.AlignUp(uint32(sbtHandleSize), sbtBaseAlignment)); !ok {
		return false
	}
	if !b.Create() || !b.Upload(true) {
		b.release()
		return false
	}
	r.sbt = b
	if r.pipeline.Handle() != gpu.InvalidHandle {
		return r.writeShaderBindingTable()
	}
	return true
}

// ActionAfterPipelineBuilt refreshes the shader binding table, whose records
// hold the group handles of the pipeline just built.
func (r *RtxPass) ActionAfterPipelineBuilt() {
	r.writeShaderBindingTable()
}

func (r *RtxPass) writeShaderBindingTable() bool {
	if r.sbt == nil {
		return false
	}
	handles, err := r.ctx.Device.ShaderGroupHandles(r.pipeline.Handle(), sbtHandleSize)
	if err != nil {
		core.LogError("rtx %s: shader group handles: %s", r.name, err)
		return false
	}
	stride := math.AlignUp(uint32(sbtHandleSize), sbtBaseAlignment)
	records := make([]byte, r.sbt.Size())
	groups := uint32(len(handles)) / sbtHandleSize
	if groups*stride > uint32(len(records)) {
		core.LogError("rtx %s: %d shader groups do not fit the binding table", r.name, groups)
		return false
	}
	for g := uint32(0); g < groups; g++ {
		copy(records[g*stride:], handles[g*sbtHandleSize:(g+1)*sbtHandleSize])
	}
	return r.sbt.SetBytes("records", records) && r.sbt.Upload(false)
}

// ShaderBindingTable returns the records of the table as last written.
func (r *RtxPass) ShaderBindingTable() ([]byte, bool) {
	if r.sbt == nil {
		return nil, false
	}
	return r.sbt.Bytes("records")
}

func (r *RtxPass) DestroyModel() {
	if r.sbt != nil {
		r.sbt.release()
		r.sbt = nil
	}
}

func (r *RtxPass) RecordTraceRays(cmd gpu.CommandBuffer) {
	if r.sbt == nil {
		return
	}
	size := r.GetOutputSize()
	cmd.TraceRays(r.sbt.Handle(), size.Width, size.Height, 1)
}

// AddAccelStructInput declares the top level acceleration structure binding.
func (r *RtxPass) AddAccelStructInput(binding uint32, stages metadata.StageMask) bool {
	return r.table.AddOrSetLayoutDescriptor(binding, metadata.ResourceKindAccelerationStructure, stages)
}

// SetAccelStruct binds a top level acceleration structure; nil binds the null one.
func (r *RtxPass) SetAccelStruct(binding uint32, info *gpu.DescriptorAccelStructInfo) bool {
	return r.table.AddOrSetWriteDescriptorAccelStruct(binding, info)
}
