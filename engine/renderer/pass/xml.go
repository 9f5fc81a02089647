package pass

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/math"
)

// PassXML is the persisted configuration of a pass: its flags and the typed
// fields of its buffers. Raw fields are not saved.
type PassXML struct {
	XMLName         xml.Name    `xml:"shader_pass"`
	CanRender       bool        `xml:"can_render"`
	ResizeByEvent   bool        `xml:"resize_by_event"`
	ResizeByHand    bool        `xml:"resize_by_hand"`
	BufferQuality   float32     `xml:"buffer_quality"`
	LineWidth       float32     `xml:"line_width"`
	CountIterations uint32      `xml:"count_iterations"`
	Buffers         []BufferXML `xml:"buffer"`
}

type BufferXML struct {
	Name   string     `xml:"name,attr"`
	Fields []FieldXML `xml:"field"`
}

type FieldXML struct {
	Name  string `xml:"name,attr"`
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

func formatFloats(vs ...float32) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, ";")
}

func parseFloats(s string, n int) ([]float32, error) {
	parts := strings.Split(strings.TrimSpace(s), ";")
	if len(parts) != n {
		return nil, core.Newf("expected %d components in %q", n, s)
	}
	out := make([]float32, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(v)
	}
	return out, nil
}

// fieldString formats a typed field the way it is persisted.
func (b *BufferResource) fieldString(f bufferField) (string, bool) {
	switch f.kind {
	case FieldFloat:
		v, _ := b.Float(f.key)
		return formatFloat(v), true
	case FieldVec2:
		v, _ := b.Vec2(f.key)
		return formatFloats(v.X, v.Y), true
	case FieldVec3:
		v, _ := b.Vec3(f.key)
		return formatFloats(v.X, v.Y, v.Z), true
	case FieldVec4:
		v, _ := b.Vec4(f.key)
		return formatFloats(v.X, v.Y, v.Z, v.W), true
	case FieldInt32:
		v, _ := b.Int32(f.key)
		return strconv.FormatInt(int64(v), 10), true
	case FieldUint32:
		v, _ := b.Uint32(f.key)
		return strconv.FormatUint(uint64(v), 10), true
	case FieldRaw:
		return "", false
	}
	return "", false
}

// setFieldString parses value into a registered typed field.
func (b *BufferResource) setFieldString(key, value string) error {
	i, ok := b.index[key]
	if !ok {
		return core.Newf("unknown field %q", key)
	}
	f := b.fields[i]
	switch f.kind {
	case FieldFloat:
		v, err := parseFloats(value, 1)
		if err != nil {
			return err
		}
		b.SetFloat(key, v[0])
	case FieldVec2:
		v, err := parseFloats(value, 2)
		if err != nil {
			return err
		}
		b.SetVec2(key, math.NewVec2(v[0], v[1]))
	case FieldVec3:
		v, err := parseFloats(value, 3)
		if err != nil {
			return err
		}
		b.SetVec3(key, math.NewVec3(v[0], v[1], v[2]))
	case FieldVec4:
		v, err := parseFloats(value, 4)
		if err != nil {
			return err
		}
		b.SetVec4(key, math.NewVec4(v[0], v[1], v[2], v[3]))
	case FieldInt32:
		v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
		if err != nil {
			return err
		}
		b.SetInt32(key, int32(v))
	case FieldUint32:
		v, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
		if err != nil {
			return err
		}
		b.SetUint32(key, uint32(v))
	case FieldRaw:
		return core.Newf("field %q holds raw bytes", key)
	}
	return nil
}

func (b *BufferResource) toXML() (BufferXML, bool) {
	out := BufferXML{Name: b.name}
	for _, f := range b.fields {
		if v, ok := b.fieldString(f); ok {
			out.Fields = append(out.Fields, FieldXML{Name: f.key, Type: f.kind.String(), Value: v})
		}
	}
	return out, len(out.Fields) > 0
}

// XMLState snapshots the persisted configuration.
func (p *ShaderPass) XMLState() PassXML {
	state := PassXML{
		CanRender:       p.canRender,
		ResizeByEvent:   p.resizeByEvent,
		ResizeByHand:    p.resizeByHand,
		BufferQuality:   p.bufferQuality,
		LineWidth:       p.lineWidth.Value,
		CountIterations: p.countIterations,
	}
	for _, b := range p.buffers {
		if bx, ok := b.toXML(); ok {
			state.Buffers = append(state.Buffers, bx)
		}
	}
	if len(p.buffers) == 0 && p.xmlPending != nil {
		state.Buffers = p.xmlPending.Buffers
	}
	return state
}

// ApplyXMLState restores a snapshot. Buffer fields of a pass not loaded yet are
// kept and applied once its buffers are declared.
func (p *ShaderPass) ApplyXMLState(state PassXML) bool {
	p.canRender = state.CanRender
	p.resizeByEvent = state.ResizeByEvent
	p.resizeByHand = state.ResizeByHand
	p.SetBufferQuality(state.BufferQuality)
	if state.LineWidth > 0 {
		p.SetLineWidth(state.LineWidth)
	}
	p.SetCountIterations(state.CountIterations)
	if len(p.buffers) == 0 {
		pending := state
		p.xmlPending = &pending
		return true
	}
	return p.applyBufferXML(state.Buffers)
}

func (p *ShaderPass) applyBufferXML(buffers []BufferXML) bool {
	ok := true
	for _, bx := range buffers {
		b := p.Buffer(bx.Name)
		if b == nil {
			core.LogWarn("pass %s: saved buffer %s no longer exists", p.name, bx.Name)
			ok = false
			continue
		}
		for _, f := range bx.Fields {
			if err := b.setFieldString(f.Name, f.Value); err != nil {
				core.LogWarn("pass %s: buffer %s: %s", p.name, bx.Name, err)
				ok = false
			}
		}
	}
	return ok
}

// GetXML serializes the pass configuration, each line prefixed by offset.
func (p *ShaderPass) GetXML(offset string) string {
	data, err := xml.MarshalIndent(p.XMLState(), offset, "\t")
	if err != nil {
		core.LogError("pass %s: xml encoding failed: %s", p.name, err)
		return ""
	}
	return string(data) + "\n"
}

// SetFromXML restores a configuration produced by GetXML.
func (p *ShaderPass) SetFromXML(data string) bool {
	var state PassXML
	if err := xml.Unmarshal([]byte(data), &state); err != nil {
		core.LogError("pass %s: xml decoding failed: %s", p.name, err)
		return false
	}
	return p.ApplyXMLState(state)
}
