package gpu

import (
	"github.com/google/uuid"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

// GraphicsContext is built once at startup and handed to every component
// that needs the device.
type GraphicsContext struct {
	Device Device
	limits Limits

	placeholders map[metadata.ResourceKind]DescriptorWrite
	owned        struct {
		buffers []BufferHandle
		images  []ImageHandle
	}
}

func NewGraphicsContext(device Device) *GraphicsContext {
	return &GraphicsContext{
		Device:       device,
		limits:       device.Limits(),
		placeholders: make(map[metadata.ResourceKind]DescriptorWrite),
	}
}

func (c *GraphicsContext) Limits() Limits {
	return c.limits
}

// Placeholder returns a write for binding that points at a default resource
// of kind. The default resources are created on first use and live until Destroy.
func (c *GraphicsContext) Placeholder(binding uint32, kind metadata.ResourceKind) (DescriptorWrite, error) {
	w, ok := c.placeholders[kind]
	if !ok {
		var err error
		if w, err = c.createPlaceholder(kind); err != nil {
			return DescriptorWrite{}, err
		}
		c.placeholders[kind] = w
	}
	w.Binding = binding
	w.Placeholder = true
	return w, nil
}

func (c *GraphicsContext) createPlaceholder(kind metadata.ResourceKind) (DescriptorWrite, error) {
	// Debug name, unique per object.
	name := "placeholder_" + kind.String() + "_" + uuid.NewString()[:8]
	switch kind {
	case metadata.ResourceKindTexture2D, metadata.ResourceKindTextureCube:
		img, err := c.Device.CreateImage(ImageCreateInfo{
			Name:   name,
			Extent: metadata.NewExtent(1, 1),
			Format: metadata.ImageFormatRGBA8Unorm,
			Usage:  ImageUsageSampled | ImageUsageTransferDst,
			Cube:   kind == metadata.ResourceKindTextureCube,
		})
		if err != nil {
			return DescriptorWrite{}, core.Wrapf(err, "placeholder %s", kind)
		}
		layers := 1
		if kind == metadata.ResourceKindTextureCube {
			layers = 6
		}
		if err := c.Device.WriteImage(img, make([]byte, 4*layers)); err != nil {
			c.Device.DestroyImage(img)
			return DescriptorWrite{}, core.Wrapf(err, "placeholder %s", kind)
		}
		c.owned.images = append(c.owned.images, img)
		return DescriptorWrite{Kind: kind, Image: &DescriptorImageInfo{Image: img}}, nil
	case metadata.ResourceKindStorageBuffer, metadata.ResourceKindUniformBuffer, metadata.ResourceKindTexelBuffer:
		usage := metadata.BufferUsageUniform
		switch kind {
		case metadata.ResourceKindStorageBuffer:
			usage = metadata.BufferUsageStorage
		case metadata.ResourceKindTexelBuffer:
			usage = metadata.BufferUsageTexel
		}
		buf, err := c.Device.CreateBuffer(BufferCreateInfo{
			Name:        name,
			Size:        16,
			Usage:       usage,
			TexelFormat: metadata.ImageFormatRGBA8Unorm,
		})
		if err != nil {
			return DescriptorWrite{}, core.Wrapf(err, "placeholder %s", kind)
		}
		if err := c.Device.WriteBuffer(buf, 0, make([]byte, 16)); err != nil {
			c.Device.DestroyBuffer(buf)
			return DescriptorWrite{}, core.Wrapf(err, "placeholder %s", kind)
		}
		c.owned.buffers = append(c.owned.buffers, buf)
		if kind == metadata.ResourceKindTexelBuffer {
			return DescriptorWrite{Kind: kind, TexelBuffer: &DescriptorTexelBufferInfo{Buffer: buf}}, nil
		}
		return DescriptorWrite{Kind: kind, Buffer: &DescriptorBufferInfo{Buffer: buf, Range: 16}}, nil
	case metadata.ResourceKindAccelerationStructure:
		// A null acceleration structure is valid with the nullDescriptor feature.
		return DescriptorWrite{Kind: kind, AccelStruct: &DescriptorAccelStructInfo{}}, nil
	}
	return DescriptorWrite{}, core.Wrapf(core.ErrUnsupported, "no placeholder for %s", kind)
}

// Destroy releases the default resources. The device itself is owned by the caller.
func (c *GraphicsContext) Destroy() {
	if len(c.owned.buffers) == 0 && len(c.owned.images) == 0 {
		return
	}
	if err := c.Device.WaitIdle(); err != nil {
		core.LogWarn("graphics context: wait idle before teardown failed: %s", err)
	}
	for _, b := range c.owned.buffers {
		c.Device.DestroyBuffer(b)
	}
	for _, i := range c.owned.images {
		c.Device.DestroyImage(i)
	}
	c.owned.buffers = nil
	c.owned.images = nil
	c.placeholders = make(map[metadata.ResourceKind]DescriptorWrite)
}
