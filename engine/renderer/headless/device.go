package headless

import (
	"encoding/binary"
	"sync"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

// Stats counts every call that reached the device.
type Stats struct {
	BuffersCreated       int
	BuffersDestroyed     int
	BufferWrites         int
	ImagesCreated        int
	ImagesDestroyed      int
	ImageWrites          int
	RenderTargetsCreated int
	LayoutsCreated       int
	SetsAllocated        int
	DescriptorUpdates    int
	PipelinesCreated     int
	PipelinesDestroyed   int
	Submits              int
	WaitIdles            int
}

type bufferObject struct {
	info gpu.BufferCreateInfo
	data []byte
}

type renderTarget struct {
	info gpu.RenderTargetCreateInfo
}

type pipelineObject struct {
	name       string
	layout     gpu.DescriptorLayoutHandle
	stages     []metadata.StageKind
	rayTracing bool
}

// Device is an in-memory gpu.Device. It keeps buffer contents, image extents
// and every recorded command so tests can inspect what a frame did.
type Device struct {
	mu     sync.Mutex
	limits gpu.Limits
	next   uint64

	buffers   map[gpu.BufferHandle]*bufferObject
	images    map[gpu.ImageHandle]gpu.ImageCreateInfo
	targets   map[gpu.RenderTargetHandle]renderTarget
	layouts   map[gpu.DescriptorLayoutHandle][]gpu.LayoutBinding
	sets      map[gpu.DescriptorSetHandle]gpu.DescriptorLayoutHandle
	setWrites map[gpu.DescriptorSetHandle]map[uint32]gpu.DescriptorWrite
	pipelines map[gpu.PipelineHandle]pipelineObject

	stats Stats
	// ImageExtents records the extent of every image ever created, in order.
	ImageExtents []metadata.Extent
	frames       [][]Command

	failPipelines int
	failBuffers   int
}

type Option func(*Device)

// WithLimits overrides the reported device limits.
func WithLimits(l gpu.Limits) Option {
	return func(d *Device) {
		d.limits = l
	}
}

// WithRayTracing reports ray tracing support.
func WithRayTracing() Option {
	return func(d *Device) {
		d.limits.RayTracing = true
	}
}

func New(opts ...Option) *Device {
	d := &Device{
		limits:    gpu.DefaultLimits(),
		buffers:   make(map[gpu.BufferHandle]*bufferObject),
		images:    make(map[gpu.ImageHandle]gpu.ImageCreateInfo),
		targets:   make(map[gpu.RenderTargetHandle]renderTarget),
		layouts:   make(map[gpu.DescriptorLayoutHandle][]gpu.LayoutBinding),
		sets:      make(map[gpu.DescriptorSetHandle]gpu.DescriptorLayoutHandle),
		setWrites: make(map[gpu.DescriptorSetHandle]map[uint32]gpu.DescriptorWrite),
		pipelines: make(map[gpu.PipelineHandle]pipelineObject),
	}
	for _, o := range opts {
		o(d)
	}
	core.LogDebug("Headless device created.")
	return d
}

func (d *Device) id() uint64 {
	d.next++
	return d.next
}

// FailNextPipelines makes the next n pipeline creations fail.
func (d *Device) FailNextPipelines(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failPipelines = n
}

// FailNextBuffers makes the next n buffer creations fail.
func (d *Device) FailNextBuffers(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failBuffers = n
}

func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Device) ResetStats() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = Stats{}
	d.ImageExtents = nil
}

// BufferData returns a copy of the current contents of a live buffer.
func (d *Device) BufferData(h gpu.BufferHandle) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[h]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, true
}

// ImageInfo returns the creation info of a live image.
func (d *Device) ImageInfo(h gpu.ImageHandle) (gpu.ImageCreateInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.images[h]
	return info, ok
}

// SetWrites returns the last write pushed to every binding of a set.
func (d *Device) SetWrites(h gpu.DescriptorSetHandle) map[uint32]gpu.DescriptorWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[uint32]gpu.DescriptorWrite, len(d.setWrites[h]))
	for k, v := range d.setWrites[h] {
		out[k] = v
	}
	return out
}

// LivePipelines is the number of pipelines not destroyed yet.
func (d *Device) LivePipelines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pipelines)
}

// IsLive reports whether a pipeline handle still names a pipeline.
func (d *Device) IsLive(p gpu.PipelineHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pipelines[p]
	return ok
}

// Frames returns the commands of every submitted command buffer.
func (d *Device) Frames() [][]Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]Command(nil), d.frames...)
}

func (d *Device) CreateBuffer(info gpu.BufferCreateInfo) (gpu.BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failBuffers > 0 {
		d.failBuffers--
		return gpu.InvalidHandle, core.Wrapf(core.ErrResourceCreation, "buffer %q", info.Name)
	}
	if info.Size == 0 {
		return gpu.InvalidHandle, core.Wrapf(core.ErrResourceCreation, "buffer %q has zero size", info.Name)
	}
	h := gpu.BufferHandle(d.id())
	d.buffers[h] = &bufferObject{info: info, data: make([]byte, info.Size)}
	d.stats.BuffersCreated++
	return h, nil
}

func (d *Device) WriteBuffer(h gpu.BufferHandle, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[h]
	if !ok {
		return core.Wrapf(core.ErrInvalidHandle, "buffer %d", h)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return core.Newf("write of %d bytes at %d overflows buffer %q of %d bytes", len(data), offset, b.info.Name, len(b.data))
	}
	copy(b.data[offset:], data)
	d.stats.BufferWrites++
	return nil
}

func (d *Device) DestroyBuffer(h gpu.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[h]; ok {
		delete(d.buffers, h)
		d.stats.BuffersDestroyed++
	}
}

func (d *Device) CreateImage(info gpu.ImageCreateInfo) (gpu.ImageHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Extent.IsZero() {
		return gpu.InvalidHandle, core.Wrapf(core.ErrZeroExtent, "image %q", info.Name)
	}
	h := gpu.ImageHandle(d.id())
	d.images[h] = info
	d.ImageExtents = append(d.ImageExtents, info.Extent)
	d.stats.ImagesCreated++
	return h, nil
}

func (d *Device) WriteImage(h gpu.ImageHandle, pixels []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.images[h]; !ok {
		return core.Wrapf(core.ErrInvalidHandle, "image %d", h)
	}
	d.stats.ImageWrites++
	return nil
}

func (d *Device) DestroyImage(h gpu.ImageHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.images[h]; ok {
		delete(d.images, h)
		d.stats.ImagesDestroyed++
	}
}

func (d *Device) CreateRenderTarget(info gpu.RenderTargetCreateInfo) (gpu.RenderTargetHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Extent.IsZero() {
		return gpu.InvalidHandle, core.Wrapf(core.ErrZeroExtent, "render target %q", info.Name)
	}
	for _, a := range info.Attachments {
		if _, ok := d.images[a]; !ok {
			return gpu.InvalidHandle, core.Wrapf(core.ErrInvalidHandle, "attachment %d of %q", a, info.Name)
		}
	}
	h := gpu.RenderTargetHandle(d.id())
	d.targets[h] = renderTarget{info: info}
	d.stats.RenderTargetsCreated++
	return h, nil
}

func (d *Device) DestroyRenderTarget(h gpu.RenderTargetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.targets, h)
}

func (d *Device) CreateDescriptorLayout(bindings []gpu.LayoutBinding) (gpu.DescriptorLayoutHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := map[uint32]bool{}
	for _, b := range bindings {
		if seen[b.Binding] {
			return gpu.InvalidHandle, core.Wrapf(core.ErrLayoutMismatch, "binding %d declared twice", b.Binding)
		}
		seen[b.Binding] = true
	}
	h := gpu.DescriptorLayoutHandle(d.id())
	d.layouts[h] = append([]gpu.LayoutBinding(nil), bindings...)
	d.stats.LayoutsCreated++
	return h, nil
}

func (d *Device) DestroyDescriptorLayout(h gpu.DescriptorLayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.layouts, h)
}

func (d *Device) AllocateDescriptorSet(layout gpu.DescriptorLayoutHandle) (gpu.DescriptorSetHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.layouts[layout]; !ok {
		return gpu.InvalidHandle, core.Wrapf(core.ErrInvalidHandle, "descriptor layout %d", layout)
	}
	h := gpu.DescriptorSetHandle(d.id())
	d.sets[h] = layout
	d.setWrites[h] = make(map[uint32]gpu.DescriptorWrite)
	d.stats.SetsAllocated++
	return h, nil
}

func (d *Device) FreeDescriptorSet(h gpu.DescriptorSetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sets, h)
	delete(d.setWrites, h)
}

func (d *Device) UpdateDescriptorSet(h gpu.DescriptorSetHandle, writes []gpu.DescriptorWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	layout, ok := d.sets[h]
	if !ok {
		return core.Wrapf(core.ErrInvalidHandle, "descriptor set %d", h)
	}
	declared := map[uint32]metadata.ResourceKind{}
	for _, b := range d.layouts[layout] {
		declared[b.Binding] = b.Kind
	}
	for _, w := range writes {
		kind, ok := declared[w.Binding]
		if !ok || !w.Matches(kind) {
			return core.Wrapf(core.ErrLayoutMismatch, "binding %d", w.Binding)
		}
	}
	for _, w := range writes {
		d.setWrites[h][w.Binding] = w
	}
	d.stats.DescriptorUpdates++
	return nil
}

func (d *Device) addPipeline(name string, layout gpu.DescriptorLayoutHandle, stages []gpu.ShaderStage) (gpu.PipelineHandle, error) {
	if d.failPipelines > 0 {
		d.failPipelines--
		return gpu.InvalidHandle, core.Wrapf(core.ErrResourceCreation, "pipeline %q", name)
	}
	if _, ok := d.layouts[layout]; !ok {
		return gpu.InvalidHandle, core.Wrapf(core.ErrInvalidHandle, "pipeline %q layout %d", name, layout)
	}
	kinds := make([]metadata.StageKind, 0, len(stages))
	for _, s := range stages {
		if len(s.SPIRV) == 0 {
			return gpu.InvalidHandle, core.Newf("pipeline %q: empty %s module", name, s.Kind)
		}
		kinds = append(kinds, s.Kind)
	}
	h := gpu.PipelineHandle(d.id())
	d.pipelines[h] = pipelineObject{name: name, layout: layout, stages: kinds}
	d.stats.PipelinesCreated++
	return h, nil
}

func (d *Device) CreateGraphicsPipeline(info gpu.GraphicsPipelineCreateInfo) (gpu.PipelineHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.targets[info.RenderTarget]; !ok {
		return gpu.InvalidHandle, core.Wrapf(core.ErrInvalidHandle, "pipeline %q render target %d", info.Name, info.RenderTarget)
	}
	return d.addPipeline(info.Name, info.Layout, info.Stages)
}

func (d *Device) CreateComputePipeline(info gpu.ComputePipelineCreateInfo) (gpu.PipelineHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addPipeline(info.Name, info.Layout, []gpu.ShaderStage{info.Stage})
}

func (d *Device) CreateRayTracingPipeline(info gpu.RayTracingPipelineCreateInfo) (gpu.PipelineHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.limits.RayTracing {
		return gpu.InvalidHandle, core.Wrapf(core.ErrUnsupported, "ray tracing pipeline %q", info.Name)
	}
	h, err := d.addPipeline(info.Name, info.Layout, info.Stages)
	if err != nil {
		return h, err
	}
	p := d.pipelines[h]
	p.rayTracing = true
	d.pipelines[h] = p
	return h, nil
}

// ShaderGroupHandles fills each handle with the pipeline handle followed by
// the group index, both little endian, so records can be told apart.
func (d *Device) ShaderGroupHandles(h gpu.PipelineHandle, handleSize uint32) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[h]
	if !ok {
		return nil, core.Wrapf(core.ErrInvalidHandle, "pipeline %d", h)
	}
	if !p.rayTracing {
		return nil, core.Newf("pipeline %q has no shader groups", p.name)
	}
	if handleSize < 12 {
		return nil, core.Newf("shader group handle size %d", handleSize)
	}
	out := make([]byte, int(handleSize)*len(p.stages))
	for i := range p.stages {
		rec := out[i*int(handleSize):]
		binary.LittleEndian.PutUint64(rec, uint64(h))
		binary.LittleEndian.PutUint32(rec[8:], uint32(i))
	}
	return out, nil
}

func (d *Device) DestroyPipeline(h gpu.PipelineHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pipelines[h]; ok {
		delete(d.pipelines, h)
		d.stats.PipelinesDestroyed++
	}
}

func (d *Device) BeginCommands() (gpu.CommandBuffer, error) {
	return &CommandBuffer{device: d}, nil
}

func (d *Device) Submit(cmd gpu.CommandBuffer) error {
	cb, ok := cmd.(*CommandBuffer)
	if !ok || cb.device != d {
		return core.Newf("command buffer was not recorded by this device")
	}
	if cb.submitted {
		return core.Newf("command buffer submitted twice")
	}
	cb.submitted = true
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, cb.Commands)
	d.stats.Submits++
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.WaitIdles++
	return nil
}

func (d *Device) Limits() gpu.Limits {
	return d.limits
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := len(d.buffers) + len(d.images) + len(d.pipelines); n > 0 {
		core.LogWarn("Headless device destroyed with %d live objects.", n)
	}
}
