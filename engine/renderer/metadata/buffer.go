package metadata

// BufferUsage is what a GPU buffer is bound as.
type BufferUsage int

const (
	BufferUsageUniform BufferUsage = iota
	BufferUsageStorage
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageTexel
	BufferUsageShaderBindingTable
)

func (u BufferUsage) String() string {
	switch u {
	case BufferUsageUniform:
		return "uniform"
	case BufferUsageStorage:
		return "storage"
	case BufferUsageVertex:
		return "vertex"
	case BufferUsageIndex:
		return "index"
	case BufferUsageTexel:
		return "texel"
	case BufferUsageShaderBindingTable:
		return "shader_binding_table"
	}
	return "unknown"
}

// DescriptorKind is the descriptor type a buffer of this usage binds as.
// Vertex and index buffers are never bound through descriptors.
func (u BufferUsage) DescriptorKind() (ResourceKind, bool) {
	switch u {
	case BufferUsageUniform:
		return ResourceKindUniformBuffer, true
	case BufferUsageStorage:
		return ResourceKindStorageBuffer, true
	case BufferUsageTexel:
		return ResourceKindTexelBuffer, true
	case BufferUsageVertex, BufferUsageIndex, BufferUsageShaderBindingTable:
		return 0, false
	}
	return 0, false
}
