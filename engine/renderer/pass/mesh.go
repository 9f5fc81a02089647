package pass

import (
	"bytes"
	"encoding/binary"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/math"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/shaders"
)

// ModelFunc produces the vertices and indices of a mesh. Indices may be empty.
type ModelFunc[V any] func() ([]V, []uint32)

/**
 * @brief CPU mesh data and its GPU vertex and index buffers.
 */
type MeshInfo[V any] struct {
	Vertices []V
	Indices  []uint32

	vertexBuffer *BufferResource
	indexBuffer  *BufferResource
}

// Count is the number of indices, or of vertices for a non indexed mesh.
func (m *MeshInfo[V]) Count() uint32 {
	if len(m.Indices) > 0 {
		return uint32(len(m.Indices))
	}
	return uint32(len(m.Vertices))
}

func (m *MeshInfo[V]) IsBuilt() bool {
	return m.vertexBuffer != nil
}

/**
 * @brief A raster pass drawing a mesh of V vertices. Without a model the pass
 * draws CountVertexs vertices and the vertex shader builds them itself.
 */
type MeshShaderPass[V any] struct {
	*ShaderPass

	Mesh   MeshInfo[V]
	model  ModelFunc[V]
	layout *metadata.VertexLayout
}

func NewMeshShaderPass[V any](ctx *gpu.GraphicsContext, compiler shaders.Compiler, name string, impl Program, layout *metadata.VertexLayout, model ModelFunc[V]) *MeshShaderPass[V] {
	m := &MeshShaderPass[V]{
		ShaderPass: NewShaderPass(ctx, compiler, name, impl),
		model:      model,
		layout:     layout,
	}
	if model != nil {
		m.SetVertexLayout(layout)
	}
	return m
}

// SetModel replaces the mesh source; a loaded pass rebuilds it at the next safe point.
func (m *MeshShaderPass[V]) SetModel(model ModelFunc[V]) {
	hadModel := m.model != nil
	m.model = model
	if hadModel != (model != nil) {
		if model != nil {
			m.SetVertexLayout(m.layout)
		} else {
			m.SetVertexLayout(nil)
		}
		m.requestPipelineRebuild()
	}
	m.NeedNewModelUpdate()
}

func encode[T any](values []T) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, values); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *MeshShaderPass[V]) upload(name string, usage metadata.BufferUsage, data []byte) (*BufferResource, error) {
	b := NewBufferResource(m.ctx, m.name+"_"+name, usage)
	if _, ok := b.RegisterByteSize(name, uint32(len(data))); !ok {
		return nil, core.Newf("registering %s", name)
	}
	b.SetBytes(name, data)
	if !b.Create() || !b.Upload(true) {
		b.release()
		return nil, core.Wrapf(core.ErrResourceCreation, "%s buffer", name)
	}
	return b, nil
}

func (m *MeshShaderPass[V]) BuildModel() bool {
	if m.model == nil {
		return true
	}
	vertices, indices := m.model()
	if len(vertices) == 0 {
		core.LogError("mesh %s: model has no vertex", m.name)
		return false
	}
	if m.vertexLayout != nil {
		if size := binary.Size(vertices[0]); size != int(m.vertexLayout.Stride) {
			core.LogError("mesh %s: vertex is %d bytes but the layout stride is %d", m.name, size, m.vertexLayout.Stride)
			return false
		}
	}
	vdata, err := encode(vertices)
	if err != nil {
		core.LogError("mesh %s: encoding vertices: %s", m.name, err)
		return false
	}
	vb, err := m.upload("vertices", metadata.BufferUsageVertex, vdata)
	if err != nil {
		core.LogError("mesh %s: %s", m.name, err)
		return false
	}
	var ib *BufferResource
	if len(indices) > 0 {
		idata, err := encode(indices)
		if err != nil {
			vb.release()
			core.LogError("mesh %s: encoding indices: %s", m.name, err)
			return false
		}
		if ib, err = m.upload("indices", metadata.BufferUsageIndex, idata); err != nil {
			vb.release()
			core.LogError("mesh %s: %s", m.name, err)
			return false
		}
	}
	m.Mesh = MeshInfo[V]{Vertices: vertices, Indices: indices, vertexBuffer: vb, indexBuffer: ib}
	return true
}

// DestroyModel frees the mesh buffers. The device must be idle.
func (m *MeshShaderPass[V]) DestroyModel() {
	if m.Mesh.vertexBuffer != nil {
		m.Mesh.vertexBuffer.release()
	}
	if m.Mesh.indexBuffer != nil {
		m.Mesh.indexBuffer.release()
	}
	m.Mesh = MeshInfo[V]{}
}

func (m *MeshShaderPass[V]) DrawModel(cmd gpu.CommandBuffer) {
	if !m.Mesh.IsBuilt() {
		cmd.Draw(m.countVertexs, m.countInstances)
		return
	}
	cmd.BindVertexBuffer(m.Mesh.vertexBuffer.Handle())
	if m.Mesh.indexBuffer != nil {
		cmd.BindIndexBuffer(m.Mesh.indexBuffer.Handle())
		cmd.DrawIndexed(m.Mesh.Count(), m.countInstances)
		return
	}
	cmd.Draw(m.Mesh.Count(), m.countInstances)
}

// QuadVertexLayout is the vertex input of QuadShaderPass: position then uv.
var QuadVertexLayout = metadata.VertexLayout{
	Stride: 16,
	Attributes: []metadata.VertexAttribute{
		{Location: 0, Format: metadata.AttributeFormatVec2, Offset: 0},
		{Location: 1, Format: metadata.AttributeFormatVec2, Offset: 8},
	},
}

// PointVertexLayout is the vertex input of point and line meshes: position then colour.
var PointVertexLayout = metadata.VertexLayout{
	Stride: 28,
	Attributes: []metadata.VertexAttribute{
		{Location: 0, Format: metadata.AttributeFormatVec3, Offset: 0},
		{Location: 1, Format: metadata.AttributeFormatVec4, Offset: 12},
	},
}

// FullScreenQuad covers the viewport in clip space, with uv from 0 to 1.
func FullScreenQuad() ([]math.QuadVertex, []uint32) {
	return []math.QuadVertex{
			{Position: math.NewVec2(-1, -1), Texcoord: math.NewVec2(0, 0)},
			{Position: math.NewVec2(1, -1), Texcoord: math.NewVec2(1, 0)},
			{Position: math.NewVec2(1, 1), Texcoord: math.NewVec2(1, 1)},
			{Position: math.NewVec2(-1, 1), Texcoord: math.NewVec2(0, 1)},
		},
		[]uint32{0, 1, 2, 0, 2, 3}
}

// QuadShaderPass draws a full screen quad, the base of most image effects.
type QuadShaderPass struct {
	*MeshShaderPass[math.QuadVertex]
}

func NewQuadShaderPass(ctx *gpu.GraphicsContext, compiler shaders.Compiler, name string, impl Program) *QuadShaderPass {
	layout := QuadVertexLayout
	return &QuadShaderPass{
		MeshShaderPass: NewMeshShaderPass[math.QuadVertex](ctx, compiler, name, impl, &layout, FullScreenQuad),
	}
}

// VertexShaderPass draws raw vertices, points by default. With no model the
// vertex shader generates CountVertexs vertices from gl_VertexIndex.
type VertexShaderPass struct {
	*MeshShaderPass[math.PointVertex]
}

func NewVertexShaderPass(ctx *gpu.GraphicsContext, compiler shaders.Compiler, name string, impl Program, model ModelFunc[math.PointVertex]) *VertexShaderPass {
	layout := PointVertexLayout
	v := &VertexShaderPass{
		MeshShaderPass: NewMeshShaderPass[math.PointVertex](ctx, compiler, name, impl, &layout, model),
	}
	v.SetPrimitiveTopology(metadata.TopologyPointList)
	v.EnableDynamicTopology(true)
	return v
}
