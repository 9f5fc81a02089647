package assets

import (
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is decoded pixel data in RGBA8, rows top to bottom.
type Image struct {
	Name   string
	Extent metadata.Extent
	Pixels []byte
}

// LoadImage decodes png, jpeg, bmp, tiff or webp files.
func LoadImage(path string, flipY bool) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return nil, core.Wrapf(err, "decode %s", path)
	}
	core.LogDebug("loaded %s image %s", format, path)
	img := FromImage(src, flipY)
	img.Name = filepath.Base(path)
	return img, nil
}

// FromImage converts any image.Image to RGBA8.
func FromImage(src image.Image, flipY bool) *Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	if flipY {
		flip(dst)
	}
	return &Image{
		Extent: metadata.NewExtent(uint32(b.Dx()), uint32(b.Dy())),
		Pixels: dst.Pix,
	}
}

func flip(img *image.RGBA) {
	h := img.Bounds().Dy()
	row := make([]byte, img.Stride)
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*img.Stride : (y+1)*img.Stride]
		bottom := img.Pix[(h-1-y)*img.Stride : (h-y)*img.Stride]
		copy(row, top)
		copy(top, bottom)
		copy(bottom, row)
	}
}

// Resized scales the image with a bilinear filter.
func (img *Image) Resized(size metadata.Extent) *Image {
	src := &image.RGBA{
		Pix:    img.Pixels,
		Stride: int(img.Extent.Width) * 4,
		Rect:   image.Rect(0, 0, int(img.Extent.Width), int(img.Extent.Height)),
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(size.Width), int(size.Height)))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return &Image{Name: img.Name, Extent: size, Pixels: dst.Pix}
}

// Solid is a one-colored image, used when a texture file cannot be read.
func Solid(size metadata.Extent, c color.RGBA) *Image {
	dst := image.NewRGBA(image.Rect(0, 0, int(size.Width), int(size.Height)))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return &Image{Name: "solid", Extent: size, Pixels: dst.Pix}
}

// Texture is an uploaded image, ready to be handed to a pass texture input.
type Texture struct {
	Image  gpu.ImageHandle
	Extent metadata.Extent
}

func (t *Texture) DescriptorInfo() *gpu.DescriptorImageInfo {
	return &gpu.DescriptorImageInfo{Image: t.Image}
}

// Upload creates a sampled RGBA8 image on device and writes the pixels.
func (img *Image) Upload(device gpu.Device) (*Texture, error) {
	h, err := device.CreateImage(gpu.ImageCreateInfo{
		Name:   img.Name,
		Extent: img.Extent,
		Format: metadata.ImageFormatRGBA8Unorm,
		Usage:  gpu.ImageUsageSampled | gpu.ImageUsageTransferDst,
	})
	if err != nil {
		return nil, err
	}
	if err := device.WriteImage(h, img.Pixels); err != nil {
		device.DestroyImage(h)
		return nil, err
	}
	return &Texture{Image: h, Extent: img.Extent}, nil
}

func (t *Texture) Destroy(device gpu.Device) {
	if t.Image != gpu.InvalidHandle {
		device.DestroyImage(t.Image)
		t.Image = gpu.InvalidHandle
	}
}
