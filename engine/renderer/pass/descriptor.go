package pass

import (
	"maps"
	"slices"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

type descriptorSlot struct {
	binding uint32
	kind    metadata.ResourceKind
	stages  metadata.StageMask
	// write is nil until a resource is recorded. A nil write, or one whose
	// info pointer is nil, is filled with a placeholder at update time.
	write *gpu.DescriptorWrite
}

/**
 * @brief The descriptor set layout of a pass and the writes pushed into its set.
 */
type DescriptorResourceTable struct {
	ctx  *gpu.GraphicsContext
	name string

	slots map[uint32]*descriptorSlot

	layout gpu.DescriptorLayoutHandle
	set    gpu.DescriptorSetHandle
	// live is the kind of each binding the current layout was created with.
	live map[uint32]metadata.ResourceKind
	// staged holds a layout built for the new declarations until Commit.
	staged *stagedLayout

	needsLayoutRebuild bool
	needsUpdate        bool
	// pushed is what the device set currently holds, per binding.
	pushed  map[uint32]gpu.DescriptorWrite
	updates int
}

type stagedLayout struct {
	layout gpu.DescriptorLayoutHandle
	set    gpu.DescriptorSetHandle
	kinds  map[uint32]metadata.ResourceKind
}

func NewDescriptorResourceTable(ctx *gpu.GraphicsContext, name string) *DescriptorResourceTable {
	return &DescriptorResourceTable{
		ctx:    ctx,
		name:   name,
		slots:  make(map[uint32]*descriptorSlot),
		pushed: make(map[uint32]gpu.DescriptorWrite),
	}
}

// AddOrSetLayoutDescriptor declares binding or updates its stages. It returns
// false when binding is already declared with another kind; the layout must
// then be rebuilt before the set can be written again.
func (t *DescriptorResourceTable) AddOrSetLayoutDescriptor(binding uint32, kind metadata.ResourceKind, stages metadata.StageMask) bool {
	slot, ok := t.slots[binding]
	if !ok {
		t.slots[binding] = &descriptorSlot{binding: binding, kind: kind, stages: stages}
		t.needsLayoutRebuild = true
		t.needsUpdate = true
		return true
	}
	if slot.kind != kind {
		core.LogWarn("descriptors %s: binding %d changes from %s to %s", t.name, binding, slot.kind, kind)
		slot.kind = kind
		slot.stages = stages
		slot.write = nil
		t.needsLayoutRebuild = true
		t.needsUpdate = true
		return false
	}
	if slot.stages != stages {
		slot.stages = stages
		t.needsLayoutRebuild = true
		t.needsUpdate = true
	}
	return true
}

// RemoveLayoutDescriptor drops a binding from the layout.
func (t *DescriptorResourceTable) RemoveLayoutDescriptor(binding uint32) {
	if _, ok := t.slots[binding]; ok {
		delete(t.slots, binding)
		t.needsLayoutRebuild = true
		t.needsUpdate = true
	}
}

func (t *DescriptorResourceTable) record(w gpu.DescriptorWrite) bool {
	slot, ok := t.slots[w.Binding]
	if !ok {
		core.LogError("descriptors %s: write to undeclared binding %d", t.name, w.Binding)
		return false
	}
	if slot.write != nil && sameWrite(*slot.write, w) {
		return true
	}
	slot.write = &w
	t.needsUpdate = true
	return true
}

func sameWrite(a, b gpu.DescriptorWrite) bool {
	if a.Binding != b.Binding || a.Kind != b.Kind {
		return false
	}
	switch {
	case a.Buffer != nil || b.Buffer != nil:
		return a.Buffer != nil && b.Buffer != nil && *a.Buffer == *b.Buffer
	case a.Image != nil || b.Image != nil:
		return a.Image != nil && b.Image != nil && *a.Image == *b.Image
	case a.TexelBuffer != nil || b.TexelBuffer != nil:
		return a.TexelBuffer != nil && b.TexelBuffer != nil && *a.TexelBuffer == *b.TexelBuffer
	case a.AccelStruct != nil || b.AccelStruct != nil:
		return a.AccelStruct != nil && b.AccelStruct != nil && *a.AccelStruct == *b.AccelStruct
	}
	return true
}

// AddOrSetWriteDescriptorBuffer records a uniform or storage buffer for binding.
// A nil info binds the placeholder buffer of kind.
func (t *DescriptorResourceTable) AddOrSetWriteDescriptorBuffer(binding uint32, kind metadata.ResourceKind, info *gpu.DescriptorBufferInfo) bool {
	if !kind.IsBuffer() || kind == metadata.ResourceKindTexelBuffer {
		core.LogError("descriptors %s: %s is not a buffer descriptor", t.name, kind)
		return false
	}
	w := gpu.DescriptorWrite{Binding: binding, Kind: kind}
	if info != nil {
		cp := *info
		w.Buffer = &cp
	}
	return t.record(w)
}

// AddOrSetWriteDescriptorImage records a 2D or cube texture for binding.
// A nil info binds the placeholder texture of kind.
func (t *DescriptorResourceTable) AddOrSetWriteDescriptorImage(binding uint32, kind metadata.ResourceKind, info *gpu.DescriptorImageInfo) bool {
	if !kind.IsImage() {
		core.LogError("descriptors %s: %s is not an image descriptor", t.name, kind)
		return false
	}
	w := gpu.DescriptorWrite{Binding: binding, Kind: kind}
	if info != nil {
		cp := *info
		w.Image = &cp
	}
	return t.record(w)
}

func (t *DescriptorResourceTable) AddOrSetWriteDescriptorTexelBuffer(binding uint32, info *gpu.DescriptorTexelBufferInfo) bool {
	w := gpu.DescriptorWrite{Binding: binding, Kind: metadata.ResourceKindTexelBuffer}
	if info != nil {
		cp := *info
		w.TexelBuffer = &cp
	}
	return t.record(w)
}

func (t *DescriptorResourceTable) AddOrSetWriteDescriptorAccelStruct(binding uint32, info *gpu.DescriptorAccelStructInfo) bool {
	w := gpu.DescriptorWrite{Binding: binding, Kind: metadata.ResourceKindAccelerationStructure}
	if info != nil {
		cp := *info
		w.AccelStruct = &cp
	}
	return t.record(w)
}

// Bindings returns the declared layout, sorted by binding.
func (t *DescriptorResourceTable) Bindings() []gpu.LayoutBinding {
	keys := slices.Sorted(maps.Keys(t.slots))
	out := make([]gpu.LayoutBinding, 0, len(keys))
	for _, k := range keys {
		s := t.slots[k]
		out = append(out, gpu.LayoutBinding{Binding: s.binding, Kind: s.kind, Stages: s.stages})
	}
	return out
}

// Build creates the layout and allocates the set, replacing any previous
// ones. Every binding is written again on the next UpdateDescriptors.
func (t *DescriptorResourceTable) Build() bool {
	if !t.Stage() {
		return false
	}
	return t.Commit()
}

// Stage creates a layout and set for the current declarations without
// touching the ones in use. They replace them on Commit; staging again
// drops the earlier staged pair.
func (t *DescriptorResourceTable) Stage() bool {
	bindings := t.Bindings()
	layout, err := t.ctx.Device.CreateDescriptorLayout(bindings)
	if err != nil {
		core.LogError("descriptors %s: layout creation failed: %s", t.name, err)
		return false
	}
	set, err := t.ctx.Device.AllocateDescriptorSet(layout)
	if err != nil {
		t.ctx.Device.DestroyDescriptorLayout(layout)
		core.LogError("descriptors %s: set allocation failed: %s", t.name, err)
		return false
	}
	t.dropStaged()
	kinds := make(map[uint32]metadata.ResourceKind, len(bindings))
	for _, b := range bindings {
		kinds[b.Binding] = b.Kind
	}
	t.staged = &stagedLayout{layout: layout, set: set, kinds: kinds}
	t.needsLayoutRebuild = false
	t.needsUpdate = true
	return true
}

// Commit makes the staged layout and set current and frees the previous pair.
func (t *DescriptorResourceTable) Commit() bool {
	if t.staged == nil {
		return false
	}
	if t.layout != gpu.InvalidHandle {
		if err := t.ctx.Device.WaitIdle(); err != nil {
			core.LogWarn("descriptors %s: wait idle before layout swap: %s", t.name, err)
		}
		t.release()
	}
	t.layout, t.set, t.live = t.staged.layout, t.staged.set, t.staged.kinds
	t.staged = nil
	t.needsUpdate = true
	t.pushed = make(map[uint32]gpu.DescriptorWrite)
	return true
}

func (t *DescriptorResourceTable) HasStaged() bool {
	return t.staged != nil
}

// NextLayout is the layout a pipeline built now has to use: the staged one
// when there is one.
func (t *DescriptorResourceTable) NextLayout() gpu.DescriptorLayoutHandle {
	if t.staged != nil {
		return t.staged.layout
	}
	return t.layout
}

func (t *DescriptorResourceTable) dropStaged() {
	if t.staged == nil {
		return
	}
	t.ctx.Device.FreeDescriptorSet(t.staged.set)
	t.ctx.Device.DestroyDescriptorLayout(t.staged.layout)
	t.staged = nil
}

func (t *DescriptorResourceTable) resolve(slot *descriptorSlot) (gpu.DescriptorWrite, error) {
	if slot.write != nil {
		w := *slot.write
		if w.Buffer != nil || w.Image != nil || w.TexelBuffer != nil || w.AccelStruct != nil {
			return w, nil
		}
	}
	w, err := t.ctx.Placeholder(slot.binding, slot.kind)
	if err != nil {
		return gpu.DescriptorWrite{}, err
	}
	core.LogDebug("descriptors %s: binding %d uses the %s placeholder", t.name, slot.binding, slot.kind)
	return w, nil
}

// UpdateDescriptors pushes a write for every binding of the current layout.
// When a recorded write does not fit its slot the update is skipped and the
// set keeps its previous content. While the declarations differ from the
// current layout only the bindings it still shares with them are written;
// Commit marks the table dirty again.
func (t *DescriptorResourceTable) UpdateDescriptors() bool {
	if t.set == gpu.InvalidHandle {
		core.LogError("descriptors %s: update before build", t.name)
		return false
	}
	keys := slices.Sorted(maps.Keys(t.live))
	writes := make([]gpu.DescriptorWrite, 0, len(keys))
	for _, k := range keys {
		slot, ok := t.slots[k]
		if !ok || slot.kind != t.live[k] {
			continue
		}
		w, err := t.resolve(slot)
		if err != nil {
			core.LogError("descriptors %s: binding %d: %s", t.name, k, err)
			return false
		}
		if !w.Matches(slot.kind) {
			core.LogError("descriptors %s: %s",
				t.name, core.Wrapf(core.ErrLayoutMismatch, "binding %d is declared %s but written as %s", k, slot.kind, w.Kind))
			return false
		}
		writes = append(writes, w)
	}
	if err := t.ctx.Device.UpdateDescriptorSet(t.set, writes); err != nil {
		core.LogError("descriptors %s: update failed: %s", t.name, err)
		return false
	}
	for _, w := range writes {
		t.pushed[w.Binding] = w
	}
	t.needsUpdate = false
	t.updates++
	return true
}

func (t *DescriptorResourceTable) NeedsUpdate() bool {
	return t.needsUpdate
}

func (t *DescriptorResourceTable) NeedsLayoutRebuild() bool {
	return t.needsLayoutRebuild
}

// MarkDirty forces the next UpdateDescriptors to push every binding again.
func (t *DescriptorResourceTable) MarkDirty() {
	t.needsUpdate = true
}

// IsWritten reports whether every binding of the current layout holds a
// pushed write.
func (t *DescriptorResourceTable) IsWritten() bool {
	if t.set == gpu.InvalidHandle {
		return false
	}
	for b := range t.live {
		if _, ok := t.pushed[b]; !ok {
			return false
		}
	}
	return true
}

// Pushed returns the write the set holds at binding.
func (t *DescriptorResourceTable) Pushed(binding uint32) (gpu.DescriptorWrite, bool) {
	w, ok := t.pushed[binding]
	return w, ok
}

func (t *DescriptorResourceTable) Kind(binding uint32) (metadata.ResourceKind, bool) {
	s, ok := t.slots[binding]
	if !ok {
		return 0, false
	}
	return s.kind, true
}

func (t *DescriptorResourceTable) Layout() gpu.DescriptorLayoutHandle {
	return t.layout
}

func (t *DescriptorResourceTable) Set() gpu.DescriptorSetHandle {
	return t.set
}

func (t *DescriptorResourceTable) UpdateCount() int {
	return t.updates
}

// Destroy frees the set and layout. Declarations and recorded writes are kept.
func (t *DescriptorResourceTable) Destroy() {
	if t.layout == gpu.InvalidHandle && t.staged == nil {
		return
	}
	if err := t.ctx.Device.WaitIdle(); err != nil {
		core.LogWarn("descriptors %s: wait idle before destroy: %s", t.name, err)
	}
	t.dropStaged()
	t.release()
}

func (t *DescriptorResourceTable) release() {
	if t.set != gpu.InvalidHandle {
		t.ctx.Device.FreeDescriptorSet(t.set)
		t.set = gpu.InvalidHandle
	}
	if t.layout != gpu.InvalidHandle {
		t.ctx.Device.DestroyDescriptorLayout(t.layout)
		t.layout = gpu.InvalidHandle
	}
	t.live = nil
	t.pushed = make(map[uint32]gpu.DescriptorWrite)
	t.needsUpdate = true
}
