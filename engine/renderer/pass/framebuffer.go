package pass

import (
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

type attachmentSet struct {
	images []gpu.ImageHandle
	target gpu.RenderTargetHandle
}

type resizeRequest struct {
	size  metadata.Extent
	count uint32
}

/**
 * @brief Color attachments and the render target of a raster pass. With ping
 * pong enabled two attachment sets alternate: one is drawn into while the
 * other holds the last finished frame.
 */
type FrameBufferResource struct {
	ctx      *gpu.GraphicsContext
	name     string
	pingPong bool

	extent  metadata.Extent
	format  metadata.ImageFormat
	samples uint32
	count   uint32

	sets  [2]attachmentSet
	front int

	pending *resizeRequest
	resizes int
	created bool
}

func NewFrameBufferResource(ctx *gpu.GraphicsContext, name string, pingPong bool) *FrameBufferResource {
	return &FrameBufferResource{ctx: ctx, name: name, pingPong: pingPong}
}

func (f *FrameBufferResource) setCount() int {
	if f.pingPong {
		return 2
	}
	return 1
}

func (f *FrameBufferResource) createSet(size metadata.Extent, count uint32) (attachmentSet, error) {
	var set attachmentSet
	dev := f.ctx.Device
	for i := uint32(0); i < count; i++ {
		img, err := dev.CreateImage(gpu.ImageCreateInfo{
			Name:        f.name,
			Extent:      size,
			Format:      f.format,
			Usage:       gpu.ImageUsageColorAttachment | gpu.ImageUsageSampled,
			SampleCount: f.samples,
		})
		if err != nil {
			f.destroySet(&set)
			return attachmentSet{}, err
		}
		set.images = append(set.images, img)
	}
	target, err := dev.CreateRenderTarget(gpu.RenderTargetCreateInfo{
		Name:        f.name,
		Extent:      size,
		Format:      f.format,
		Attachments: set.images,
		SampleCount: f.samples,
	})
	if err != nil {
		f.destroySet(&set)
		return attachmentSet{}, err
	}
	set.target = target
	return set, nil
}

func (f *FrameBufferResource) destroySet(set *attachmentSet) {
	if set.target != gpu.InvalidHandle {
		f.ctx.Device.DestroyRenderTarget(set.target)
	}
	for _, img := range set.images {
		f.ctx.Device.DestroyImage(img)
	}
	*set = attachmentSet{}
}

func (f *FrameBufferResource) build(size metadata.Extent, count uint32) ([2]attachmentSet, error) {
	var sets [2]attachmentSet
	if size.IsZero() {
		return sets, core.Wrapf(core.ErrZeroExtent, "framebuffer %s: %s", f.name, size)
	}
	if limit := f.ctx.Limits().MaxImageDimension2D; limit > 0 && (size.Width > limit || size.Height > limit) {
		return sets, core.Wrapf(core.ErrResourceCreation, "framebuffer %s: %s exceeds %d", f.name, size, limit)
	}
	for i := 0; i < f.setCount(); i++ {
		set, err := f.createSet(size, count)
		if err != nil {
			for j := 0; j < i; j++ {
				f.destroySet(&sets[j])
			}
			return sets, err
		}
		sets[i] = set
	}
	return sets, nil
}

// Create allocates the attachments and the render target. A zero sized
// extent is rejected before anything reaches the device.
func (f *FrameBufferResource) Create(size metadata.Extent, format metadata.ImageFormat, samples, count uint32) bool {
	if f.created {
		core.LogWarn("framebuffer %s: already created", f.name)
		return true
	}
	f.format = format
	f.samples = max(samples, 1)
	count = max(count, 1)
	sets, err := f.build(size, count)
	if err != nil {
		core.LogError("framebuffer %s: %s", f.name, err)
		return false
	}
	f.sets = sets
	f.extent = size
	f.count = count
	f.front = 0
	f.created = true
	return true
}

// Resize recreates every attachment at size. The new attachments are built
// before the old ones are released, so a failure leaves the framebuffer usable.
// Image handles change: consumers must fetch their descriptor infos again.
func (f *FrameBufferResource) Resize(size metadata.Extent, count uint32) bool {
	if !f.created {
		core.LogError("framebuffer %s: resize before create", f.name)
		return false
	}
	if count == 0 {
		count = f.count
	}
	sets, err := f.build(size, count)
	if err != nil {
		core.LogError("framebuffer %s: resize to %s failed: %s", f.name, size, err)
		return false
	}
	if err := f.ctx.Device.WaitIdle(); err != nil {
		core.LogWarn("framebuffer %s: wait idle before resize: %s", f.name, err)
	}
	for i := range f.sets {
		f.destroySet(&f.sets[i])
	}
	f.sets = sets
	f.extent = size
	f.count = count
	f.front = 0
	f.resizes++
	core.LogDebug("framebuffer %s: resized to %s", f.name, size)
	return true
}

// RequestResize records a resize for the next ResizeIfNeeded. Only the last
// request made before that point is applied.
func (f *FrameBufferResource) RequestResize(size metadata.Extent, count uint32) {
	f.pending = &resizeRequest{size: size, count: count}
}

func (f *FrameBufferResource) HasPendingResize() bool {
	return f.pending != nil
}

// ResizeIfNeeded applies the pending request, if any. It must run before
// command recording starts.
func (f *FrameBufferResource) ResizeIfNeeded() bool {
	if f.pending == nil {
		return false
	}
	req := *f.pending
	f.pending = nil
	if req.size == f.extent && (req.count == 0 || req.count == f.count) {
		return false
	}
	return f.Resize(req.size, req.count)
}

func (f *FrameBufferResource) back() int {
	if f.pingPong {
		return 1 - f.front
	}
	return f.front
}

// Target is the render target the next draw writes into.
func (f *FrameBufferResource) Target() gpu.RenderTargetHandle {
	return f.sets[f.back()].target
}

// Swap makes the set just drawn into the front one. No op without ping pong.
func (f *FrameBufferResource) Swap() {
	if f.pingPong {
		f.front = 1 - f.front
	}
}

func (f *FrameBufferResource) imageInfo(set, attachment int) *gpu.DescriptorImageInfo {
	if !f.created || attachment < 0 || attachment >= len(f.sets[set].images) {
		return nil
	}
	return &gpu.DescriptorImageInfo{Image: f.sets[set].images[attachment]}
}

// FrontImageInfo is the attachment holding the last finished frame.
func (f *FrameBufferResource) FrontImageInfo(attachment uint32) *gpu.DescriptorImageInfo {
	return f.imageInfo(f.front, int(attachment))
}

// BackImageInfo is the attachment currently drawn into.
func (f *FrameBufferResource) BackImageInfo(attachment uint32) *gpu.DescriptorImageInfo {
	return f.imageInfo(f.back(), int(attachment))
}

func (f *FrameBufferResource) Extent() metadata.Extent {
	return f.extent
}

func (f *FrameBufferResource) Format() metadata.ImageFormat {
	return f.format
}

func (f *FrameBufferResource) ColorCount() uint32 {
	return f.count
}

func (f *FrameBufferResource) IsCreated() bool {
	return f.created
}

func (f *FrameBufferResource) IsPingPong() bool {
	return f.pingPong
}

// ResizeCount is the number of applied resizes.
func (f *FrameBufferResource) ResizeCount() int {
	return f.resizes
}

func (f *FrameBufferResource) Destroy() {
	if !f.created {
		return
	}
	if err := f.ctx.Device.WaitIdle(); err != nil {
		core.LogWarn("framebuffer %s: wait idle before destroy: %s", f.name, err)
	}
	f.release()
}

func (f *FrameBufferResource) release() {
	for i := range f.sets {
		f.destroySet(&f.sets[i])
	}
	f.created = false
	f.pending = nil
}
