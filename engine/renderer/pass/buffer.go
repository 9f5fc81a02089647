package pass

import (
	"encoding/binary"
	gomath "math"
	"slices"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/math"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

// FieldKind is the scalar type of a registered buffer field. Raw fields hold
// arbitrary bytes and are not persisted.
type FieldKind int

const (
	FieldRaw FieldKind = iota
	FieldFloat
	FieldVec2
	FieldVec3
	FieldVec4
	FieldInt32
	FieldUint32
)

func (k FieldKind) String() string {
	switch k {
	case FieldRaw:
		return "raw"
	case FieldFloat:
		return "float"
	case FieldVec2:
		return "vec2"
	case FieldVec3:
		return "vec3"
	case FieldVec4:
		return "vec4"
	case FieldInt32:
		return "int"
	case FieldUint32:
		return "uint"
	}
	return "unknown"
}

func (k FieldKind) size() uint32 {
	switch k {
	case FieldFloat, FieldInt32, FieldUint32:
		return 4
	case FieldVec2:
		return 8
	case FieldVec3:
		return 12
	case FieldVec4:
		return 16
	}
	return 0
}

type bufferField struct {
	key    string
	kind   FieldKind
	offset uint32
	size   uint32
}

/**
 * @brief A uniform or storage buffer: the GPU buffer plus a byte exact CPU
 * mirror. Data crosses to the GPU only when the mirror is dirty.
 */
type BufferResource struct {
	ctx   *gpu.GraphicsContext
	name  string
	usage metadata.BufferUsage

	binding uint32
	stages  metadata.StageMask

	fields []bufferField
	index  map[string]int

	mirror   []byte
	used     uint32
	maxAlign uint32

	handle    gpu.BufferHandle
	allocated uint64

	dirty        bool
	needRecreate bool
	uploads      int
}

func NewBufferResource(ctx *gpu.GraphicsContext, name string, usage metadata.BufferUsage) *BufferResource {
	return &BufferResource{
		ctx:      ctx,
		name:     name,
		usage:    usage,
		index:    make(map[string]int),
		maxAlign: 1,
	}
}

func (b *BufferResource) Name() string {
	return b.name
}

func (b *BufferResource) Usage() metadata.BufferUsage {
	return b.usage
}

// Binding is the descriptor binding the buffer is exposed at by its pass.
func (b *BufferResource) Binding() uint32 {
	return b.binding
}

func (b *BufferResource) Stages() metadata.StageMask {
	return b.stages
}

// FieldAlignment is the alignment given to a field of size bytes.
// It approximates std140/std430 and does not special case arrays of vec3
// or nested structs.
func FieldAlignment(size uint32) uint32 {
	return math.Min(16, math.NextPow2(size))
}

// RegisterByteSize appends a field of size bytes and returns its offset.
// It fails for an empty field or a key already in use.
func (b *BufferResource) RegisterByteSize(key string, size uint32) (uint32, bool) {
	return b.register(key, FieldRaw, size)
}

func (b *BufferResource) register(key string, kind FieldKind, size uint32) (uint32, bool) {
	if size == 0 {
		core.LogError("buffer %s: field %q has a zero size", b.name, key)
		return 0, false
	}
	if _, ok := b.index[key]; ok {
		core.LogError("buffer %s: field %q is already registered", b.name, key)
		return 0, false
	}
	align := FieldAlignment(size)
	offset := math.AlignUp(b.used, align)
	b.used = offset + size
	b.maxAlign = math.Max(b.maxAlign, align)

	b.index[key] = len(b.fields)
	b.fields = append(b.fields, bufferField{key: key, kind: kind, offset: offset, size: size})

	grown := make([]byte, math.AlignUp(b.used, b.maxAlign))
	copy(grown, b.mirror)
	b.mirror = grown

	if b.handle != gpu.InvalidHandle && uint64(len(b.mirror)) > b.allocated {
		b.needRecreate = true
	}
	b.dirty = true
	return offset, true
}

func (b *BufferResource) RegisterFloat(key string, v float32) bool {
	if _, ok := b.register(key, FieldFloat, 4); !ok {
		return false
	}
	return b.SetFloat(key, v)
}

func (b *BufferResource) RegisterVec2(key string, v math.Vec2) bool {
	if _, ok := b.register(key, FieldVec2, 8); !ok {
		return false
	}
	return b.SetVec2(key, v)
}

func (b *BufferResource) RegisterVec3(key string, v math.Vec3) bool {
	if _, ok := b.register(key, FieldVec3, 12); !ok {
		return false
	}
	return b.SetVec3(key, v)
}

func (b *BufferResource) RegisterVec4(key string, v math.Vec4) bool {
	if _, ok := b.register(key, FieldVec4, 16); !ok {
		return false
	}
	return b.SetVec4(key, v)
}

func (b *BufferResource) RegisterInt32(key string, v int32) bool {
	if _, ok := b.register(key, FieldInt32, 4); !ok {
		return false
	}
	return b.SetInt32(key, v)
}

func (b *BufferResource) RegisterUint32(key string, v uint32) bool {
	if _, ok := b.register(key, FieldUint32, 4); !ok {
		return false
	}
	return b.SetUint32(key, v)
}

// Offset returns the byte offset of a registered field.
func (b *BufferResource) Offset(key string) (uint32, bool) {
	i, ok := b.index[key]
	if !ok {
		return 0, false
	}
	return b.fields[i].offset, true
}

func (b *BufferResource) field(key string, kind FieldKind) (bufferField, bool) {
	i, ok := b.index[key]
	if !ok {
		core.LogWarn("buffer %s: unknown field %q", b.name, key)
		return bufferField{}, false
	}
	f := b.fields[i]
	if kind != FieldRaw && f.kind != kind {
		core.LogWarn("buffer %s: field %q is a %s, not a %s", b.name, key, f.kind, kind)
		return bufferField{}, false
	}
	return f, true
}

// SetBytes copies data at the start of a field. Data longer than the field is rejected.
func (b *BufferResource) SetBytes(key string, data []byte) bool {
	f, ok := b.field(key, FieldRaw)
	if !ok {
		return false
	}
	if uint32(len(data)) > f.size {
		core.LogWarn("buffer %s: %d bytes do not fit field %q of %d bytes", b.name, len(data), key, f.size)
		return false
	}
	b.write(f.offset, data)
	return true
}

// Bytes returns a copy of the mirror bytes of a field. Changes go through
// SetBytes.
func (b *BufferResource) Bytes(key string) ([]byte, bool) {
	i, ok := b.index[key]
	if !ok {
		return nil, false
	}
	f := b.fields[i]
	return slices.Clone(b.mirror[f.offset : f.offset+f.size]), true
}

func (b *BufferResource) write(offset uint32, data []byte) {
	dst := b.mirror[offset : offset+uint32(len(data))]
	for i := range data {
		if dst[i] != data[i] {
			copy(dst, data)
			b.dirty = true
			return
		}
	}
}

func (b *BufferResource) putWords(key string, kind FieldKind, words ...uint32) bool {
	f, ok := b.field(key, kind)
	if !ok {
		return false
	}
	var tmp [16]byte
	for i, w := range words {
		binary.LittleEndian.PutUint32(tmp[i*4:], w)
	}
	b.write(f.offset, tmp[:len(words)*4])
	return true
}

func (b *BufferResource) words(key string, kind FieldKind) ([]uint32, bool) {
	i, ok := b.index[key]
	if !ok || b.fields[i].kind != kind {
		return nil, false
	}
	f := b.fields[i]
	out := make([]uint32, f.size/4)
	for j := range out {
		out[j] = binary.LittleEndian.Uint32(b.mirror[f.offset+uint32(j)*4:])
	}
	return out, true
}

func (b *BufferResource) SetFloat(key string, v float32) bool {
	return b.putWords(key, FieldFloat, gomath.Float32bits(v))
}

func (b *BufferResource) SetVec2(key string, v math.Vec2) bool {
	return b.putWords(key, FieldVec2, gomath.Float32bits(v.X), gomath.Float32bits(v.Y))
}

func (b *BufferResource) SetVec3(key string, v math.Vec3) bool {
	return b.putWords(key, FieldVec3, gomath.Float32bits(v.X), gomath.Float32bits(v.Y), gomath.Float32bits(v.Z))
}

func (b *BufferResource) SetVec4(key string, v math.Vec4) bool {
	return b.putWords(key, FieldVec4, gomath.Float32bits(v.X), gomath.Float32bits(v.Y), gomath.Float32bits(v.Z), gomath.Float32bits(v.W))
}

func (b *BufferResource) SetInt32(key string, v int32) bool {
	return b.putWords(key, FieldInt32, uint32(v))
}

func (b *BufferResource) SetUint32(key string, v uint32) bool {
	return b.putWords(key, FieldUint32, v)
}

func (b *BufferResource) Float(key string) (float32, bool) {
	w, ok := b.words(key, FieldFloat)
	if !ok {
		return 0, false
	}
	return gomath.Float32frombits(w[0]), true
}

func (b *BufferResource) Vec2(key string) (math.Vec2, bool) {
	w, ok := b.words(key, FieldVec2)
	if !ok {
		return math.Vec2{}, false
	}
	return math.NewVec2(gomath.Float32frombits(w[0]), gomath.Float32frombits(w[1])), true
}

func (b *BufferResource) Vec3(key string) (math.Vec3, bool) {
	w, ok := b.words(key, FieldVec3)
	if !ok {
		return math.Vec3{}, false
	}
	return math.NewVec3(gomath.Float32frombits(w[0]), gomath.Float32frombits(w[1]), gomath.Float32frombits(w[2])), true
}

func (b *BufferResource) Vec4(key string) (math.Vec4, bool) {
	w, ok := b.words(key, FieldVec4)
	if !ok {
		return math.Vec4{}, false
	}
	return math.NewVec4(gomath.Float32frombits(w[0]), gomath.Float32frombits(w[1]), gomath.Float32frombits(w[2]), gomath.Float32frombits(w[3])), true
}

func (b *BufferResource) Int32(key string) (int32, bool) {
	w, ok := b.words(key, FieldInt32)
	if !ok {
		return 0, false
	}
	return int32(w[0]), true
}

func (b *BufferResource) Uint32(key string) (uint32, bool) {
	w, ok := b.words(key, FieldUint32)
	if !ok {
		return 0, false
	}
	return w[0], true
}

// Size is the size of the CPU mirror, a multiple of the largest field alignment.
func (b *BufferResource) Size() uint32 {
	return uint32(len(b.mirror))
}

func (b *BufferResource) SetDirty() {
	b.dirty = true
}

func (b *BufferResource) IsDirty() bool {
	return b.dirty
}

// UploadCount is the number of times the mirror was written to the GPU.
func (b *BufferResource) UploadCount() int {
	return b.uploads
}

func (b *BufferResource) Handle() gpu.BufferHandle {
	return b.handle
}

// DescriptorInfo covers the whole buffer, nil before Create.
func (b *BufferResource) DescriptorInfo() *gpu.DescriptorBufferInfo {
	if b.handle == gpu.InvalidHandle {
		return nil
	}
	return &gpu.DescriptorBufferInfo{Buffer: b.handle, Offset: 0, Range: uint64(len(b.mirror))}
}

// Create allocates the GPU buffer for the current mirror. Nothing is copied:
// the buffer stays dirty until the first Upload.
func (b *BufferResource) Create() bool {
	if b.handle != gpu.InvalidHandle {
		return true
	}
	if err := b.allocate(); err != nil {
		core.LogError("buffer %s: %s", b.name, err)
		return false
	}
	b.dirty = true
	return true
}

func (b *BufferResource) allocate() error {
	size := uint64(len(b.mirror))
	if size == 0 {
		return core.Wrapf(core.ErrResourceCreation, "no field registered")
	}
	limits := b.ctx.Limits()
	if b.usage == metadata.BufferUsageUniform && size > uint64(limits.MaxUniformBufferRange) {
		return core.Wrapf(core.ErrResourceCreation, "%d bytes exceed the uniform range of %d", size, limits.MaxUniformBufferRange)
	}
	if b.usage == metadata.BufferUsageStorage && size > uint64(limits.MaxStorageBufferRange) {
		return core.Wrapf(core.ErrResourceCreation, "%d bytes exceed the storage range of %d", size, limits.MaxStorageBufferRange)
	}
	h, err := b.ctx.Device.CreateBuffer(gpu.BufferCreateInfo{Name: b.name, Size: size, Usage: b.usage})
	if err != nil {
		return err
	}
	b.handle = h
	b.allocated = size
	b.needRecreate = false
	return nil
}

// Upload copies the mirror to the GPU when it is dirty or force is set,
// recreating the buffer first if fields were added after Create.
// Uploading an empty mirror is a warned no op.
func (b *BufferResource) Upload(force bool) bool {
	if !force && !b.dirty {
		return true
	}
	if len(b.mirror) == 0 {
		core.LogWarn("buffer %s: nothing to upload, no field registered", b.name)
		return true
	}
	if b.handle == gpu.InvalidHandle || b.needRecreate {
		if b.handle != gpu.InvalidHandle {
			if err := b.ctx.Device.WaitIdle(); err != nil {
				core.LogError("buffer %s: wait idle before recreate: %s", b.name, err)
				return false
			}
			b.ctx.Device.DestroyBuffer(b.handle)
			b.handle = gpu.InvalidHandle
		}
		if err := b.allocate(); err != nil {
			core.LogError("buffer %s: %s", b.name, err)
			return false
		}
	}
	if err := b.ctx.Device.WriteBuffer(b.handle, 0, b.mirror); err != nil {
		core.LogError("buffer %s: upload failed: %s", b.name, err)
		return false
	}
	b.dirty = false
	b.uploads++
	return true
}

// Destroy waits for the device and frees the GPU buffer. The mirror and its
// fields are kept so the buffer can be created again.
func (b *BufferResource) Destroy() {
	if b.handle == gpu.InvalidHandle {
		return
	}
	if err := b.ctx.Device.WaitIdle(); err != nil {
		core.LogWarn("buffer %s: wait idle before destroy: %s", b.name, err)
	}
	b.release()
}

func (b *BufferResource) release() {
	if b.handle == gpu.InvalidHandle {
		return
	}
	b.ctx.Device.DestroyBuffer(b.handle)
	b.handle = gpu.InvalidHandle
	b.allocated = 0
	b.needRecreate = false
	b.dirty = true
}
