package metadata

import "fmt"

// ResourceKind is the closed set of resources a descriptor binding can expose.
type ResourceKind int

/** @brief Descriptor resource kinds. */
const (
	/** @brief A sampled 2D image. */
	ResourceKindTexture2D ResourceKind = iota
	/** @brief A sampled cube map. */
	ResourceKindTextureCube
	/** @brief A read/write storage buffer. */
	ResourceKindStorageBuffer
	/** @brief A read-only uniform buffer. */
	ResourceKindUniformBuffer
	/** @brief A uniform texel buffer. */
	ResourceKindTexelBuffer
	/** @brief A top level ray tracing acceleration structure. */
	ResourceKindAccelerationStructure
)

// AllResourceKinds lists every kind, in declaration order.
var AllResourceKinds = []ResourceKind{
	ResourceKindTexture2D,
	ResourceKindTextureCube,
	ResourceKindStorageBuffer,
	ResourceKindUniformBuffer,
	ResourceKindTexelBuffer,
	ResourceKindAccelerationStructure,
}

func (k ResourceKind) String() string {
	switch k {
	case ResourceKindTexture2D:
		return "TEXTURE_2D"
	case ResourceKindTextureCube:
		return "TEXTURE_CUBE"
	case ResourceKindStorageBuffer:
		return "STORAGE_BUFFER"
	case ResourceKindUniformBuffer:
		return "UNIFORM_BUFFER"
	case ResourceKindTexelBuffer:
		return "TEXEL_BUFFER"
	case ResourceKindAccelerationStructure:
		return "ACCELERATION_STRUCTURE"
	}
	return fmt.Sprintf("ResourceKind(%d)", int(k))
}

// IsImage reports whether the kind is written with image infos.
func (k ResourceKind) IsImage() bool {
	switch k {
	case ResourceKindTexture2D, ResourceKindTextureCube:
		return true
	case ResourceKindStorageBuffer, ResourceKindUniformBuffer, ResourceKindTexelBuffer, ResourceKindAccelerationStructure:
		return false
	}
	return false
}

// IsBuffer reports whether the kind is written with buffer infos.
func (k ResourceKind) IsBuffer() bool {
	switch k {
	case ResourceKindStorageBuffer, ResourceKindUniformBuffer:
		return true
	case ResourceKindTexture2D, ResourceKindTextureCube, ResourceKindTexelBuffer, ResourceKindAccelerationStructure:
		return false
	}
	return false
}

// ParseResourceKind maps the persisted name back to a kind.
func ParseResourceKind(s string) (ResourceKind, error) {
	for _, k := range AllResourceKinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown resource kind %q", s)
}
