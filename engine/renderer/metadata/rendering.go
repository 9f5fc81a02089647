package metadata

import "fmt"

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	/** @brief No faces are culled. */
	FaceCullModeNone FaceCullMode = iota
	/** @brief Only front faces are culled. */
	FaceCullModeFront
	/** @brief Only back faces are culled. */
	FaceCullModeBack
	/** @brief Both front and back faces are culled. */
	FaceCullModeFrontAndBack
)

// Topology is the primitive assembly mode of a raster pass.
type Topology int

const (
	TopologyPointList Topology = iota
	TopologyLineList
	TopologyLineStrip
	TopologyTriangleList
	TopologyTriangleStrip
	TopologyTriangleFan
	TopologyPatchList
)

// TopologyFamily groups topologies that can be switched dynamically without a new pipeline.
type TopologyFamily int

const (
	TopologyFamilyPoint TopologyFamily = iota
	TopologyFamilyLine
	TopologyFamilyTriangle
	TopologyFamilyPatch
)

func (t Topology) Family() TopologyFamily {
	switch t {
	case TopologyPointList:
		return TopologyFamilyPoint
	case TopologyLineList, TopologyLineStrip:
		return TopologyFamilyLine
	case TopologyTriangleList, TopologyTriangleStrip, TopologyTriangleFan:
		return TopologyFamilyTriangle
	case TopologyPatchList:
		return TopologyFamilyPatch
	}
	return TopologyFamilyTriangle
}

func (t Topology) String() string {
	switch t {
	case TopologyPointList:
		return "point_list"
	case TopologyLineList:
		return "line_list"
	case TopologyLineStrip:
		return "line_strip"
	case TopologyTriangleList:
		return "triangle_list"
	case TopologyTriangleStrip:
		return "triangle_strip"
	case TopologyTriangleFan:
		return "triangle_fan"
	case TopologyPatchList:
		return "patch_list"
	}
	return fmt.Sprintf("Topology(%d)", int(t))
}

// ImageFormat is the subset of color formats attachments and textures are created with.
type ImageFormat int

const (
	ImageFormatRGBA8Unorm ImageFormat = iota
	ImageFormatRGBA16Sfloat
	ImageFormatRGBA32Sfloat
	ImageFormatR32Sfloat
)

// BytesPerPixel returns the texel size of the format.
func (f ImageFormat) BytesPerPixel() uint32 {
	switch f {
	case ImageFormatRGBA8Unorm, ImageFormatR32Sfloat:
		return 4
	case ImageFormatRGBA16Sfloat:
		return 8
	case ImageFormatRGBA32Sfloat:
		return 16
	}
	return 4
}

// AttributeFormat describes one vertex attribute's component layout.
type AttributeFormat int

const (
	AttributeFormatFloat AttributeFormat = iota
	AttributeFormatVec2
	AttributeFormatVec3
	AttributeFormatVec4
	AttributeFormatUint
)

func (f AttributeFormat) Size() uint32 {
	switch f {
	case AttributeFormatFloat, AttributeFormatUint:
		return 4
	case AttributeFormatVec2:
		return 8
	case AttributeFormatVec3:
		return 12
	case AttributeFormatVec4:
		return 16
	}
	return 4
}

type VertexAttribute struct {
	Location uint32
	Format   AttributeFormat
	Offset   uint32
}

// VertexLayout is the vertex input state of a raster pipeline.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}
