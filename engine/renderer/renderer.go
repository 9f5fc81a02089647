package renderer

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/google/uuid"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/pass"
)

// Pass is the part of a shader pass the renderer drives. Every pass built on
// pass.ShaderPass implements it.
type Pass interface {
	Name() string
	State() metadata.PassState
	ResizeIfNeeded() bool
	RebuildIfNeeded() bool
	PrepareFrame() bool
	Execute(cmd gpu.CommandBuffer, frame uint64) bool
	NeedResizeByResizeEvent(size metadata.Extent, countColorBuffers uint32) bool
	UpdateShaders(files []string) bool
	GetXML(offset string) string
	SetFromXML(data string) bool
	Unit()
}

type PassID = uuid.UUID

// LinkKind is the kind of resource a link carries from producer to consumer.
type LinkKind int

const (
	// LinkTexture feeds an attachment of the producer to a sampled texture binding.
	LinkTexture LinkKind = iota
	// LinkStorageBuffer feeds a buffer of the producer to a storage buffer binding.
	LinkStorageBuffer
)

func (k LinkKind) String() string {
	switch k {
	case LinkTexture:
		return "texture"
	case LinkStorageBuffer:
		return "storage_buffer"
	}
	return "unknown"
}

// Link connects output Output of Producer to binding Input of Consumer.
type Link struct {
	Producer PassID
	Output   uint32
	Consumer PassID
	Input    uint32
	Kind     LinkKind
}

/**
 * @brief Owns the passes of a frame, executed in insertion order, and the
 * links between them. Links are resolved again before every consumer runs,
 * so resized or ping-ponged attachments are always seen.
 */
type BaseRenderer struct {
	ctx *gpu.GraphicsContext

	passes map[PassID]Pass
	order  []PassID
	links  []Link

	frame    uint64
	executed int
}

func NewBaseRenderer(ctx *gpu.GraphicsContext) *BaseRenderer {
	return &BaseRenderer{
		ctx:    ctx,
		passes: make(map[PassID]Pass),
	}
}

func (r *BaseRenderer) Context() *gpu.GraphicsContext {
	return r.ctx
}

// Add appends a pass to the frame. Pass names must be unique: they key the
// saved configuration.
func (r *BaseRenderer) Add(p Pass) (PassID, error) {
	if p == nil {
		return uuid.Nil, core.Wrapf(core.ErrInvalidConfig, "nil pass")
	}
	if _, ok := r.Find(p.Name()); ok {
		return uuid.Nil, core.Wrapf(core.ErrInvalidConfig, "pass %q already added", p.Name())
	}
	id := uuid.New()
	r.passes[id] = p
	r.order = append(r.order, id)
	core.LogDebug("renderer: pass %s added as %s", p.Name(), id)
	return id, nil
}

// Remove unloads a pass and drops its links. Consumers it fed fall back to
// placeholders.
func (r *BaseRenderer) Remove(id PassID) bool {
	p, ok := r.passes[id]
	if !ok {
		return false
	}
	for _, l := range append([]Link(nil), r.links...) {
		if l.Producer == id || l.Consumer == id {
			r.disconnect(l)
		}
	}
	p.Unit()
	delete(r.passes, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *BaseRenderer) Pass(id PassID) (Pass, bool) {
	p, ok := r.passes[id]
	return p, ok
}

// Find looks a pass up by name.
func (r *BaseRenderer) Find(name string) (PassID, bool) {
	for _, id := range r.order {
		if r.passes[id].Name() == name {
			return id, true
		}
	}
	return uuid.Nil, false
}

// Passes returns the passes in execution order.
func (r *BaseRenderer) Passes() []Pass {
	out := make([]Pass, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.passes[id])
	}
	return out
}

func (r *BaseRenderer) Links() []Link {
	return append([]Link(nil), r.links...)
}

// Connect links an output of producer to an input of consumer. A link already
// feeding the same consumer binding is replaced.
func (r *BaseRenderer) Connect(l Link) error {
	producer, ok := r.passes[l.Producer]
	if !ok {
		return core.Wrapf(core.ErrInvalidConfig, "unknown producer %s", l.Producer)
	}
	consumer, ok := r.passes[l.Consumer]
	if !ok {
		return core.Wrapf(core.ErrInvalidConfig, "unknown consumer %s", l.Consumer)
	}
	switch l.Kind {
	case LinkTexture:
		if _, ok := producer.(pass.HasTextureOutputs); !ok {
			return core.Wrapf(core.ErrInvalidConfig, "pass %s has no texture output", producer.Name())
		}
		if _, ok := consumer.(pass.HasTextureInputs); !ok {
			return core.Wrapf(core.ErrInvalidConfig, "pass %s has no texture input", consumer.Name())
		}
	case LinkStorageBuffer:
		if _, ok := producer.(pass.HasBufferOutputs); !ok {
			return core.Wrapf(core.ErrInvalidConfig, "pass %s has no buffer output", producer.Name())
		}
		if _, ok := consumer.(pass.HasBufferInputs); !ok {
			return core.Wrapf(core.ErrInvalidConfig, "pass %s has no buffer input", consumer.Name())
		}
	default:
		return core.Wrapf(core.ErrInvalidConfig, "link kind %s", l.Kind)
	}
	for i, old := range r.links {
		if old.Consumer == l.Consumer && old.Input == l.Input && old.Kind == l.Kind {
			r.links[i] = l
			r.wire(l)
			return nil
		}
	}
	r.links = append(r.links, l)
	r.wire(l)
	return nil
}

// Disconnect removes the link feeding binding input of consumer.
func (r *BaseRenderer) Disconnect(consumer PassID, input uint32) bool {
	for _, l := range r.links {
		if l.Consumer == consumer && l.Input == input {
			r.disconnect(l)
			return true
		}
	}
	return false
}

func (r *BaseRenderer) disconnect(l Link) {
	for i, old := range r.links {
		if old == l {
			r.links = append(r.links[:i], r.links[i+1:]...)
			break
		}
	}
	consumer, ok := r.passes[l.Consumer]
	if !ok {
		return
	}
	switch l.Kind {
	case LinkTexture:
		if in, ok := consumer.(pass.HasTextureInputs); ok {
			in.SetTexture(l.Input, nil, nil)
		}
	case LinkStorageBuffer:
		if in, ok := consumer.(pass.HasBufferInputs); ok {
			in.SetStorageBuffer(l.Input, nil)
		}
	}
}

// wire pushes the current output of the producer into the consumer. Writes
// identical to the recorded one are ignored by the descriptor table.
func (r *BaseRenderer) wire(l Link) {
	producer, consumer := r.passes[l.Producer], r.passes[l.Consumer]
	switch l.Kind {
	case LinkTexture:
		out := producer.(pass.HasTextureOutputs)
		in := consumer.(pass.HasTextureInputs)
		info, size := out.GetDescriptorImageInfo(l.Output)
		if info == nil {
			in.SetTexture(l.Input, nil, nil)
			return
		}
		in.SetTexture(l.Input, info, &size)
	case LinkStorageBuffer:
		out := producer.(pass.HasBufferOutputs)
		in := consumer.(pass.HasBufferInputs)
		in.SetStorageBuffer(l.Input, out.GetDescriptorBufferInfo(l.Output))
	}
}

func (r *BaseRenderer) wireInputs(consumer PassID) {
	for _, l := range r.links {
		if l.Consumer == consumer {
			r.wire(l)
		}
	}
}

// NeedResizeByResizeEvent forwards a window resize to every pass. Each pass
// keeps only the last request and applies it at the start of the next frame.
func (r *BaseRenderer) NeedResizeByResizeEvent(size metadata.Extent) {
	for _, id := range r.order {
		r.passes[id].NeedResizeByResizeEvent(size, 0)
	}
}

// UpdateShaders hands the changed files to every pass and returns the names
// of the passes that scheduled a rebuild.
func (r *BaseRenderer) UpdateShaders(files []string) []string {
	if len(files) == 0 {
		return nil
	}
	var names []string
	for _, id := range r.order {
		if p := r.passes[id]; p.UpdateShaders(files) {
			names = append(names, p.Name())
		}
	}
	return names
}

// Render records and submits one frame. Resizes and rebuilds are applied
// before recording starts; inputs are wired right before their consumer runs.
func (r *BaseRenderer) Render() error {
	r.frame++
	for _, id := range r.order {
		r.passes[id].ResizeIfNeeded()
	}
	for _, id := range r.order {
		r.passes[id].RebuildIfNeeded()
	}

	cmd, err := r.ctx.Device.BeginCommands()
	if err != nil {
		return core.Wrapf(err, "frame %d", r.frame)
	}
	r.executed = 0
	for _, id := range r.order {
		r.wireInputs(id)
		p := r.passes[id]
		p.PrepareFrame()
		if p.Execute(cmd, r.frame) {
			r.executed++
		}
	}
	if err := r.ctx.Device.Submit(cmd); err != nil {
		return core.Wrapf(err, "frame %d", r.frame)
	}
	return nil
}

// Frame is the index of the last rendered frame.
func (r *BaseRenderer) Frame() uint64 {
	return r.frame
}

// Executed is the number of passes that recorded work in the last frame.
func (r *BaseRenderer) Executed() int {
	return r.executed
}

type rendererXML struct {
	XMLName xml.Name  `xml:"renderer"`
	Passes  []passXML `xml:"pass"`
}

type passXML struct {
	Name  string `xml:"name,attr"`
	Inner string `xml:",innerxml"`
}

// GetXML saves the configuration of every pass, each under <pass name="...">.
func (r *BaseRenderer) GetXML() string {
	var sb strings.Builder
	sb.WriteString("<renderer>\n")
	for _, id := range r.order {
		p := r.passes[id]
		var name bytes.Buffer
		_ = xml.EscapeText(&name, []byte(p.Name()))
		sb.WriteString("\t<pass name=\"" + name.String() + "\">\n")
		sb.WriteString(p.GetXML("\t\t"))
		sb.WriteString("\t</pass>\n")
	}
	sb.WriteString("</renderer>\n")
	return sb.String()
}

// SetFromXML restores what GetXML saved. Passes missing from the renderer
// are skipped with a warning.
func (r *BaseRenderer) SetFromXML(data string) bool {
	var doc rendererXML
	if err := xml.Unmarshal([]byte(data), &doc); err != nil {
		core.LogError("renderer: xml decoding failed: %s", err)
		return false
	}
	ok := true
	for _, px := range doc.Passes {
		id, found := r.Find(px.Name)
		if !found {
			core.LogWarn("renderer: saved pass %s no longer exists", px.Name)
			continue
		}
		if !r.passes[id].SetFromXML(strings.TrimSpace(px.Inner)) {
			ok = false
		}
	}
	return ok
}

// Unit waits for the device and unloads every pass, last added first.
func (r *BaseRenderer) Unit() {
	if err := r.ctx.Device.WaitIdle(); err != nil {
		core.LogWarn("renderer: wait idle before teardown: %s", err)
	}
	for i := len(r.order) - 1; i >= 0; i-- {
		r.passes[r.order[i]].Unit()
	}
}
