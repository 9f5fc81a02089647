package pass

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/math"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/shaders"
)

// LineWidth is the range and current value of the rasterized line width.
type LineWidth struct {
	Min     float32
	Max     float32
	Default float32
	Value   float32
}

/**
 * @brief One unit of GPU work: a draw, a dispatch or a trace. The pass owns
 * its buffers, descriptor table, pipeline and, for raster passes, its
 * framebuffer, and sequences their lifecycle.
 */
type ShaderPass struct {
	ctx      *gpu.GraphicsContext
	compiler shaders.Compiler
	name     string
	impl     Program

	genericType metadata.GenericType
	state       metadata.PassState

	buffers  []*BufferResource
	table    *DescriptorResourceTable
	pipeline *PipelineResource
	fbo      *FrameBufferResource
	// builtLayout is the descriptor layout the current pipeline was built against.
	builtLayout gpu.DescriptorLayoutHandle

	/** @brief Raster state. */
	pingPong          bool
	colorFormat       metadata.ImageFormat
	sampleCount       uint32
	countColorBuffers uint32
	clearColor        [4]float32
	clearEachFrame    bool
	needClear         bool
	baseTopology      metadata.Topology
	topology          metadata.Topology
	dynamicTopology   bool
	cullMode          metadata.FaceCullMode
	blend             bool
	lineWidth         LineWidth
	vertexLayout      *metadata.VertexLayout

	/** @brief Sizing. */
	outputSize    metadata.Extent
	outputSize3D  math.UVec3
	bufferQuality float32
	resizeByEvent bool
	resizeByHand  bool
	justResized   bool
	pendingResize *resizeRequest

	/** @brief Compute dispatch. */
	localGroupSize math.UVec3
	dispatchSize   math.UVec3

	countVertexs    uint32
	countInstances  uint32
	countIterations uint32

	pushStages metadata.StageMask
	pushData   []byte

	/** @brief Shader sources. */
	shaderDir    string
	stageFiles   map[metadata.StageKind]string
	watched      map[string]bool
	includeDirs  []string
	defines      map[string]string
	headerCode   string
	maxRecursion uint32

	inputSizes map[uint32]metadata.Extent
	xmlPending *PassXML

	canRender         bool
	rebuildPending    bool
	sourcesChanged    bool
	awaitingSourceFix bool
	needModelUpdate   bool
	lastFrame         uint64
}

// NewShaderPass builds an unloaded pass. impl is the concrete pass embedding
// the returned value; its optional interfaces are looked up on every Init.
func NewShaderPass(ctx *gpu.GraphicsContext, compiler shaders.Compiler, name string, impl Program) *ShaderPass {
	return &ShaderPass{
		ctx:               ctx,
		compiler:          compiler,
		name:              name,
		impl:              impl,
		state:             metadata.PassStateUnloaded,
		table:             NewDescriptorResourceTable(ctx, name),
		colorFormat:       metadata.ImageFormatRGBA32Sfloat,
		sampleCount:       1,
		countColorBuffers: 1,
		clearEachFrame:    true,
		baseTopology:      metadata.TopologyTriangleList,
		topology:          metadata.TopologyTriangleList,
		lineWidth:         LineWidth{Min: 1, Max: 1, Default: 1, Value: 1},
		bufferQuality:     1,
		resizeByEvent:     true,
		localGroupSize:    math.NewUVec3(1, 1, 1),
		dispatchSize:      math.NewUVec3(1, 1, 1),
		countVertexs:      1,
		countInstances:    1,
		countIterations:   1,
		stageFiles:        make(map[metadata.StageKind]string),
		watched:           make(map[string]bool),
		defines:           make(map[string]string),
		inputSizes:        make(map[uint32]metadata.Extent),
		maxRecursion:      1,
		canRender:         true,
	}
}

func (p *ShaderPass) Name() string {
	return p.name
}

func (p *ShaderPass) Context() *gpu.GraphicsContext {
	return p.ctx
}

func (p *ShaderPass) State() metadata.PassState {
	return p.state
}

func (p *ShaderPass) GenericType() metadata.GenericType {
	return p.genericType
}

func (p *ShaderPass) PipelineState() metadata.PipelineState {
	if p.pipeline == nil {
		return metadata.PipelineStateUncompiled
	}
	return p.pipeline.State()
}

func (p *ShaderPass) Pipeline() *PipelineResource {
	return p.pipeline
}

func (p *ShaderPass) FrameBuffer() *FrameBufferResource {
	return p.fbo
}

func (p *ShaderPass) Descriptors() *DescriptorResourceTable {
	return p.table
}

func (p *ShaderPass) Buffers() []*BufferResource {
	return p.buffers
}

// Buffer returns the buffer declared under name.
func (p *ShaderPass) Buffer(name string) *BufferResource {
	for _, b := range p.buffers {
		if b.name == name {
			return b
		}
	}
	return nil
}

func (p *ShaderPass) isActive() bool {
	switch p.state {
	case metadata.PassStateLoaded, metadata.PassStateNeedsResize, metadata.PassStateNeedsRebuild:
		return true
	}
	return false
}

func (p *ShaderPass) settledState() metadata.PassState {
	switch {
	case p.pendingResize != nil:
		return metadata.PassStateNeedsResize
	case p.rebuildPending:
		return metadata.PassStateNeedsRebuild
	}
	return metadata.PassStateLoaded
}

// ---------------------------------------------------------------------------
// configuration, before Init

func (p *ShaderPass) SetColorFormat(f metadata.ImageFormat) {
	p.colorFormat = f
}

func (p *ShaderPass) SetSampleCount(n uint32) {
	p.sampleCount = max(n, 1)
}

func (p *ShaderPass) SetClearColor(c [4]float32) {
	p.clearColor = c
}

// SetClearEachFrame off keeps the previous content of the attachments between frames.
func (p *ShaderPass) SetClearEachFrame(v bool) {
	p.clearEachFrame = v
}

// NeedToClearFBOThisFrame forces one clear on the next draw.
func (p *ShaderPass) NeedToClearFBOThisFrame() {
	p.needClear = true
}

func (p *ShaderPass) SetCullMode(m metadata.FaceCullMode) {
	if p.cullMode != m {
		p.cullMode = m
		p.requestPipelineRebuild()
	}
}

func (p *ShaderPass) SetBlend(v bool) {
	if p.blend != v {
		p.blend = v
		p.requestPipelineRebuild()
	}
}

func (p *ShaderPass) SetVertexLayout(l *metadata.VertexLayout) {
	p.vertexLayout = l
}

// EnableDynamicTopology lets SetPrimitiveTopology switch within the topology
// family of the pipeline without rebuilding it.
func (p *ShaderPass) EnableDynamicTopology(v bool) {
	p.dynamicTopology = v
}

func (p *ShaderPass) SetPrimitiveTopology(t metadata.Topology) {
	if !p.isActive() {
		p.baseTopology, p.topology = t, t
		return
	}
	if t == p.topology {
		return
	}
	if p.dynamicTopology && t.Family() == p.baseTopology.Family() {
		p.topology = t
		return
	}
	p.baseTopology, p.topology = t, t
	p.requestPipelineRebuild()
}

func (p *ShaderPass) Topology() metadata.Topology {
	return p.topology
}

// SetLineWidthRange sets the accepted line widths and resets the width to def.
func (p *ShaderPass) SetLineWidthRange(lo, hi, def float32) {
	if hi < lo {
		lo, hi = hi, lo
	}
	p.lineWidth = LineWidth{Min: lo, Max: hi, Default: def, Value: math.Clamp(def, lo, hi)}
}

func (p *ShaderPass) SetLineWidth(v float32) {
	p.lineWidth.Value = math.Clamp(v, p.lineWidth.Min, p.lineWidth.Max)
}

func (p *ShaderPass) GetLineWidth() LineWidth {
	return p.lineWidth
}

func (p *ShaderPass) AllowResizeOnResizeEvents(v bool) {
	p.resizeByEvent = v
}

func (p *ShaderPass) AllowResizeByHand(v bool) {
	p.resizeByHand = v
}

func (p *ShaderPass) ResizingByResizeEventIsAllowed() bool {
	return p.resizeByEvent
}

func (p *ShaderPass) ResizingByHandIsAllowed() bool {
	return p.resizeByHand
}

// SetBufferQuality scales every requested output size. Values outside
// (0, 4] fall back to 1.
func (p *ShaderPass) SetBufferQuality(q float32) {
	if q <= 0 || q > 4 {
		q = 1
	}
	p.bufferQuality = q
}

func (p *ShaderPass) BufferQuality() float32 {
	return p.bufferQuality
}

// SetShaderDir makes every stage read its code from <dir>/<name>.<ext>, the
// file being written with the built in code when missing. Those files are
// watched for hot reload.
func (p *ShaderPass) SetShaderDir(dir string) {
	p.shaderDir = dir
}

// SetShaderFile binds one stage to a file on disk.
func (p *ShaderPass) SetShaderFile(stage metadata.StageKind, path string) {
	p.stageFiles[stage] = path
}

func (p *ShaderPass) AddIncludeDir(dir string) {
	p.includeDirs = append(p.includeDirs, dir)
}

// SetDefines replaces the #define set injected in every stage.
func (p *ShaderPass) SetDefines(defines map[string]string) {
	p.defines = make(map[string]string, len(defines))
	for k, v := range defines {
		p.defines[k] = v
	}
	p.ReloadShaders()
}

// SetHeaderCode is inserted in every stage right after #version.
func (p *ShaderPass) SetHeaderCode(code string) {
	p.headerCode = code
	p.ReloadShaders()
}

func (p *ShaderPass) SetMaxRecursionDepth(n uint32) {
	p.maxRecursion = max(n, 1)
}

func (p *ShaderPass) SetCountVertexs(n uint32) {
	p.countVertexs = max(n, 1)
}

func (p *ShaderPass) SetCountInstances(n uint32) {
	p.countInstances = max(n, 1)
}

// SetCountIterations repeats the draw or dispatch n times in one frame.
func (p *ShaderPass) SetCountIterations(n uint32) {
	p.countIterations = max(n, 1)
}

func (p *ShaderPass) CountVertexs() uint32 {
	return p.countVertexs
}

func (p *ShaderPass) CountInstances() uint32 {
	return p.countInstances
}

func (p *ShaderPass) CountIterations() uint32 {
	return p.countIterations
}

// SetPushConstants sets the push constant block. Its size must be a multiple
// of 4 within the device limit; changing the size rebuilds the pipeline.
func (p *ShaderPass) SetPushConstants(stages metadata.StageMask, data []byte) bool {
	if len(data)%4 != 0 {
		core.LogError("pass %s: push constants of %d bytes are not 4 byte aligned", p.name, len(data))
		return false
	}
	if limit := p.ctx.Limits().MaxPushConstantsSize; uint32(len(data)) > limit {
		core.LogError("pass %s: push constants of %d bytes exceed the limit of %d", p.name, len(data), limit)
		return false
	}
	layoutChanged := len(data) != len(p.pushData) || stages != p.pushStages
	p.pushStages = stages
	p.pushData = append(p.pushData[:0], data...)
	if layoutChanged {
		p.requestPipelineRebuild()
	}
	return true
}

func (p *ShaderPass) SetCanRender(v bool) {
	p.canRender = v
}

func (p *ShaderPass) CanRender() bool {
	return p.canRender
}

func (p *ShaderPass) LastExecutedFrame() uint64 {
	return p.lastFrame
}

// ---------------------------------------------------------------------------
// compute

func (p *ShaderPass) clampGroupCount(v uint32, axis int) uint32 {
	return math.Clamp(v, 1, max(p.ctx.Limits().MaxComputeWorkGroupCount[axis], 1))
}

// SetLocalGroupSize must match the local_size of the compute shader. Each
// axis is clamped to the device limit.
func (p *ShaderPass) SetLocalGroupSize(size math.UVec3) {
	limits := p.ctx.Limits().MaxComputeWorkGroupSize
	p.localGroupSize = math.NewUVec3(
		math.Clamp(size.X, 1, max(limits[0], 1)),
		math.Clamp(size.Y, 1, max(limits[1], 1)),
		math.Clamp(size.Z, 1, max(limits[2], 1)),
	)
}

func (p *ShaderPass) LocalGroupSize() math.UVec3 {
	return p.localGroupSize
}

func (p *ShaderPass) SetDispatchSize1D(size uint32) {
	p.dispatchSize = math.NewUVec3(p.clampGroupCount(math.DivCeil(size, p.localGroupSize.X), 0), 1, 1)
}

func (p *ShaderPass) SetDispatchSize2D(size metadata.Extent) {
	p.dispatchSize = math.NewUVec3(
		p.clampGroupCount(math.DivCeil(size.Width, p.localGroupSize.X), 0),
		p.clampGroupCount(math.DivCeil(size.Height, p.localGroupSize.Y), 1),
		1,
	)
}

func (p *ShaderPass) SetDispatchSize3D(size math.UVec3) {
	p.dispatchSize = math.NewUVec3(
		p.clampGroupCount(math.DivCeil(size.X, p.localGroupSize.X), 0),
		p.clampGroupCount(math.DivCeil(size.Y, p.localGroupSize.Y), 1),
		p.clampGroupCount(math.DivCeil(size.Z, p.localGroupSize.Z), 2),
	)
}

func (p *ShaderPass) DispatchSize() math.UVec3 {
	return p.dispatchSize
}

func (p *ShaderPass) updateDispatch() {
	switch p.genericType {
	case metadata.GenericTypeCompute1D:
		p.SetDispatchSize1D(p.outputSize3D.X)
	case metadata.GenericTypeCompute2D:
		p.SetDispatchSize2D(p.outputSize)
	case metadata.GenericTypeCompute3D:
		p.SetDispatchSize3D(p.outputSize3D)
	}
}

// ---------------------------------------------------------------------------
// declarations, from DeclareBuffers and DeclareDescriptors

func (p *ShaderPass) addBuffer(name string, usage metadata.BufferUsage, binding uint32, stages metadata.StageMask) *BufferResource {
	if b := p.Buffer(name); b != nil {
		core.LogWarn("pass %s: buffer %s declared twice", p.name, name)
		return b
	}
	b := NewBufferResource(p.ctx, name, usage)
	b.binding = binding
	b.stages = stages
	p.buffers = append(p.buffers, b)
	return b
}

// AddUBO declares a uniform buffer exposed at binding.
func (p *ShaderPass) AddUBO(name string, binding uint32, stages metadata.StageMask) *BufferResource {
	return p.addBuffer(name, metadata.BufferUsageUniform, binding, stages)
}

// AddSBO declares a storage buffer exposed at binding.
func (p *ShaderPass) AddSBO(name string, binding uint32, stages metadata.StageMask) *BufferResource {
	return p.addBuffer(name, metadata.BufferUsageStorage, binding, stages)
}

// AddTextureInput declares a sampled texture binding, bound to a placeholder
// until SetTexture provides a texture.
func (p *ShaderPass) AddTextureInput(binding uint32, kind metadata.ResourceKind, stages metadata.StageMask) bool {
	if !kind.IsImage() {
		core.LogError("pass %s: %s is not a texture kind", p.name, kind)
		return false
	}
	return p.table.AddOrSetLayoutDescriptor(binding, kind, stages)
}

// AddStorageBufferInput declares a storage buffer binding fed by another pass.
func (p *ShaderPass) AddStorageBufferInput(binding uint32, stages metadata.StageMask) bool {
	return p.table.AddOrSetLayoutDescriptor(binding, metadata.ResourceKindStorageBuffer, stages)
}

// ---------------------------------------------------------------------------
// init

// InitPixel loads a raster pass drawing into countColorBuffers attachments of size.
func (p *ShaderPass) InitPixel(size metadata.Extent, countColorBuffers uint32, pingPong bool) bool {
	p.countColorBuffers = max(countColorBuffers, 1)
	p.pingPong = pingPong
	return p.init(metadata.GenericTypePixel, size, math.NewUVec3(size.Width, size.Height, 1))
}

func (p *ShaderPass) InitCompute1D(size uint32) bool {
	return p.init(metadata.GenericTypeCompute1D, metadata.NewExtent(size, 1), math.NewUVec3(size, 1, 1))
}

func (p *ShaderPass) InitCompute2D(size metadata.Extent) bool {
	return p.init(metadata.GenericTypeCompute2D, size, math.NewUVec3(size.Width, size.Height, 1))
}

func (p *ShaderPass) InitCompute3D(size math.UVec3) bool {
	return p.init(metadata.GenericTypeCompute3D, metadata.NewExtent(size.X, size.Y), size)
}

func (p *ShaderPass) InitRtx(size metadata.Extent) bool {
	return p.init(metadata.GenericTypeRtx, size, math.NewUVec3(size.Width, size.Height, 1))
}

func (p *ShaderPass) init(kind metadata.GenericType, size metadata.Extent, size3 math.UVec3) bool {
	if p.state != metadata.PassStateUnloaded {
		core.LogWarn("pass %s: init while %s", p.name, p.state)
		return false
	}
	p.genericType = kind
	p.state = metadata.PassStateInitializing
	p.pipeline = NewPipelineResource(p.ctx, p.compiler, p.name, kind)

	hooks, hasHooks := p.impl.(InitHooks)
	if hasHooks {
		hooks.ActionBeforeInit()
	}
	if err := p.load(size, size3); err != nil {
		core.LogError("pass %s: init failed: %s", p.name, err)
		p.teardown()
		p.state = metadata.PassStateUnloaded
		if hasHooks {
			hooks.ActionAfterInitFail()
		}
		return false
	}
	p.state = metadata.PassStateLoaded
	core.LogDebug("pass %s: loaded as %s %s", p.name, kind, p.outputSize)
	if hasHooks {
		hooks.ActionAfterInitSucceed()
	}
	return true
}

func (p *ShaderPass) load(size metadata.Extent, size3 math.UVec3) error {
	if size.IsZero() {
		return core.Wrapf(core.ErrZeroExtent, "output size %s", size)
	}
	p.outputSize = size
	p.outputSize3D = size3
	p.topology = p.baseTopology

	if mb, ok := p.impl.(ModelBuilder); ok {
		if !mb.BuildModel() {
			return core.Wrapf(core.ErrResourceCreation, "model")
		}
	}

	p.buffers = nil
	if bd, ok := p.impl.(BufferDeclarer); ok {
		if !bd.DeclareBuffers() {
			return core.Newf("buffer declaration failed")
		}
	}
	if p.xmlPending != nil {
		p.applyBufferXML(p.xmlPending.Buffers)
		p.xmlPending = nil
	}
	for _, b := range p.buffers {
		if !b.Create() {
			return core.Wrapf(core.ErrResourceCreation, "buffer %s", b.name)
		}
	}

	switch {
	case p.genericType == metadata.GenericTypePixel:
		p.fbo = NewFrameBufferResource(p.ctx, p.name, p.pingPong)
		if !p.fbo.Create(size, p.colorFormat, p.sampleCount, p.countColorBuffers) {
			return core.Wrapf(core.ErrResourceCreation, "framebuffer")
		}
		p.needClear = true
	case p.genericType.IsCompute():
		p.updateDispatch()
	}

	for _, b := range p.buffers {
		kind, ok := b.usage.DescriptorKind()
		if !ok {
			continue
		}
		if !p.table.AddOrSetLayoutDescriptor(b.binding, kind, b.stages) {
			return core.Wrapf(core.ErrLayoutMismatch, "buffer %s at binding %d", b.name, b.binding)
		}
		p.table.AddOrSetWriteDescriptorBuffer(b.binding, kind, b.DescriptorInfo())
	}
	if dd, ok := p.impl.(DescriptorDeclarer); ok {
		if !dd.DeclareDescriptors() {
			return core.Newf("descriptor declaration failed")
		}
	}
	if !p.table.Build() {
		return core.Wrapf(core.ErrResourceCreation, "descriptor layout")
	}
	if !p.table.UpdateDescriptors() {
		return core.Wrapf(core.ErrLayoutMismatch, "initial descriptor update")
	}

	if !p.compile() {
		return core.Wrapf(core.ErrShaderCompilation, "%v", p.pipeline.LastError())
	}
	if !p.build() {
		return core.Wrapf(core.ErrResourceCreation, "pipeline: %v", p.pipeline.LastError())
	}
	p.rebuildPending = false
	p.sourcesChanged = false
	p.awaitingSourceFix = false
	return nil
}

// ---------------------------------------------------------------------------
// shaders

// stagePath is the file backing a stage. The shader directory only backs
// stages the pass has built-in code for.
func (p *ShaderPass) stagePath(stage metadata.StageKind, hasCode bool) string {
	if f := p.stageFiles[stage]; f != "" {
		return f
	}
	if p.shaderDir != "" && hasCode {
		return filepath.Join(p.shaderDir, p.name+"."+stage.Extension())
	}
	return ""
}

func cleanPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// stageSources reads the code of every stage, from disk when the stage is
// file backed, and runs the pre-processor over it.
func (p *ShaderPass) stageSources() ([]shaders.Source, error) {
	codes := p.impl.StageSources()
	pp := shaders.Preprocessor{
		IncludeDirs: append([]string(nil), p.includeDirs...),
		Defines:     p.defines,
		Header:      p.headerCode,
	}
	if p.shaderDir != "" {
		pp.IncludeDirs = append(pp.IncludeDirs, p.shaderDir)
	}
	watched := make(map[string]bool)
	var out []shaders.Source
	for _, stage := range metadata.AllStageKinds {
		code := codes[stage]
		path := p.stagePath(stage, code != "")
		if code == "" && path == "" {
			continue
		}
		if path != "" {
			data, err := os.ReadFile(path)
			switch {
			case err == nil:
				code = string(data)
			case os.IsNotExist(err) && code != "":
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return nil, core.Wrapf(err, "shader dir for %s", path)
				}
				if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
					return nil, core.Wrapf(err, "writing %s", path)
				}
			default:
				return nil, core.Wrapf(err, "reading %s", path)
			}
			watched[cleanPath(path)] = true
		}
		expanded, used, err := pp.Process(p.name, code)
		if err != nil {
			return nil, err
		}
		for _, u := range used {
			watched[cleanPath(u)] = true
		}
		out = append(out, shaders.Source{Stage: stage, Name: p.name, Code: expanded})
	}
	p.watched = watched
	return out, nil
}

func (p *ShaderPass) compile() bool {
	hooks, hasHooks := p.impl.(CompilationHooks)
	if hasHooks {
		hooks.ActionBeforeCompilation()
	}
	ok := false
	if sources, err := p.stageSources(); err != nil {
		core.LogError("pass %s: %s", p.name, err)
		p.pipeline.fail(err)
	} else {
		ok = p.pipeline.Compile(context.Background(), sources)
	}
	if hasHooks {
		hooks.ActionAfterCompilation()
	}
	return ok
}

func (p *ShaderPass) buildInfo() PipelineBuildInfo {
	info := PipelineBuildInfo{
		Layout:            p.table.NextLayout(),
		Vertex:            p.vertexLayout,
		Topology:          p.baseTopology,
		DynamicTopology:   p.dynamicTopology,
		CullMode:          p.cullMode,
		Blend:             p.blend,
		ColorCount:        p.countColorBuffers,
		MaxRecursionDepth: p.maxRecursion,
	}
	if p.fbo != nil {
		info.RenderTarget = p.fbo.Target()
		info.ColorCount = p.fbo.ColorCount()
	}
	if len(p.pushData) > 0 {
		info.PushConstants = &gpu.PushConstantRange{Stages: p.pushStages, Size: uint32(len(p.pushData))}
	}
	return info
}

// build creates the pipeline. A staged descriptor layout replaces the current
// one only once a pipeline was built against it, so a failed build leaves the
// previous pipeline with the set it was built for.
func (p *ShaderPass) build() bool {
	if !p.pipeline.Build(p.buildInfo()) {
		return false
	}
	if p.table.Commit() {
		for _, b := range p.buffers {
			if kind, ok := b.usage.DescriptorKind(); ok {
				p.table.AddOrSetWriteDescriptorBuffer(b.binding, kind, b.DescriptorInfo())
			}
		}
		if !p.table.UpdateDescriptors() {
			core.LogWarn("pass %s: descriptors not written after the layout swap", p.name)
		}
	}
	p.builtLayout = p.table.Layout()
	if hook, ok := p.impl.(PipelineBuiltHook); ok {
		hook.ActionAfterPipelineBuilt()
	}
	return true
}

func (p *ShaderPass) requestPipelineRebuild() {
	if !p.isActive() {
		return
	}
	p.rebuildPending = true
	p.awaitingSourceFix = false
	p.pipeline.Invalidate()
	p.state = p.settledState()
}

// ReloadShaders recompiles every stage at the next safe point.
func (p *ShaderPass) ReloadShaders() {
	if !p.isActive() {
		return
	}
	p.sourcesChanged = true
	p.requestPipelineRebuild()
}

// UpdateShaders receives the files changed on disk since the last frame and
// schedules a rebuild when one of them is a source of this pass.
func (p *ShaderPass) UpdateShaders(files []string) bool {
	if !p.isActive() {
		return false
	}
	for _, f := range files {
		if p.watched[cleanPath(f)] {
			core.LogInfo("pass %s: %s changed, rebuild scheduled", p.name, f)
			p.ReloadShaders()
			return true
		}
	}
	return false
}

// WatchedFiles are the files UpdateShaders reacts to.
func (p *ShaderPass) WatchedFiles() []string {
	out := make([]string, 0, len(p.watched))
	for f := range p.watched {
		out = append(out, f)
	}
	return out
}

// NeedNewModelUpdate rebuilds the mesh at the next safe point.
func (p *ShaderPass) NeedNewModelUpdate() {
	p.needModelUpdate = true
}

func (p *ShaderPass) rebuildModel() {
	p.needModelUpdate = false
	mb, ok := p.impl.(ModelBuilder)
	if !ok {
		return
	}
	if err := p.ctx.Device.WaitIdle(); err != nil {
		core.LogWarn("pass %s: wait idle before model rebuild: %s", p.name, err)
	}
	mb.DestroyModel()
	if !mb.BuildModel() {
		core.LogError("pass %s: model rebuild failed", p.name)
	}
	p.table.MarkDirty()
}

// RebuildIfNeeded applies model, layout and pipeline changes. It runs at the
// start of a frame, before any command is recorded. A failed compile leaves
// the previous pipeline bound and the pass in NeedsRebuild until its sources
// change again.
func (p *ShaderPass) RebuildIfNeeded() bool {
	if !p.isActive() {
		return false
	}
	if p.needModelUpdate {
		p.rebuildModel()
	}
	if p.table.NeedsLayoutRebuild() {
		if !p.table.Stage() {
			p.state = p.settledState()
			return false
		}
		p.rebuildPending = true
		p.awaitingSourceFix = false
	}
	if p.table.NeedsUpdate() {
		p.table.UpdateDescriptors()
	}
	if !p.rebuildPending || p.awaitingSourceFix {
		return false
	}

	ok := true
	if p.sourcesChanged || !p.pipeline.HasModules() {
		ok = p.compile()
		if ok {
			p.sourcesChanged = false
		}
	}
	if ok {
		ok = p.build()
	}
	if ok {
		p.rebuildPending = false
		core.LogInfo("pass %s: pipeline rebuilt", p.name)
	} else {
		p.awaitingSourceFix = true
		if p.pipeline.HasFallback() {
			core.LogWarn("pass %s: rebuild failed, rendering with the previous pipeline", p.name)
		}
	}
	p.state = p.settledState()
	return ok
}

// ---------------------------------------------------------------------------
// resize

func (p *ShaderPass) requestResize(size metadata.Extent, count uint32) bool {
	if !p.isActive() {
		return false
	}
	scaled := size.Scale(p.bufferQuality)
	if scaled.IsZero() {
		core.LogDebug("pass %s: resize to %s ignored", p.name, size)
		return false
	}
	p.pendingResize = &resizeRequest{size: scaled, count: count}
	if p.fbo != nil {
		p.fbo.RequestResize(scaled, count)
	}
	p.state = p.settledState()
	return true
}

// NeedResizeByResizeEvent records a resize coming from the window. It is
// applied by the next ResizeIfNeeded.
func (p *ShaderPass) NeedResizeByResizeEvent(size metadata.Extent, countColorBuffers uint32) bool {
	if !p.resizeByEvent {
		return false
	}
	return p.requestResize(size, countColorBuffers)
}

// NeedResizeByResizeEventIfChanged is NeedResizeByResizeEvent ignoring
// requests for the size already pending, or the current one when none is.
func (p *ShaderPass) NeedResizeByResizeEventIfChanged(size metadata.Extent, countColorBuffers uint32) bool {
	target, count := p.outputSize, p.countColorBuffers
	if p.pendingResize != nil {
		target = p.pendingResize.size
		if p.pendingResize.count != 0 {
			count = p.pendingResize.count
		}
	}
	if size.Scale(p.bufferQuality) == target && (countColorBuffers == 0 || countColorBuffers == count) {
		return false
	}
	return p.NeedResizeByResizeEvent(size, countColorBuffers)
}

// NeedResizeByHand records a resize asked by the user rather than the window.
func (p *ShaderPass) NeedResizeByHand(size metadata.Extent, countColorBuffers uint32) bool {
	if !p.resizeByHand {
		return false
	}
	return p.requestResize(size, countColorBuffers)
}

// ResizeIfNeeded applies the last pending resize. The pipeline is left untouched.
func (p *ShaderPass) ResizeIfNeeded() bool {
	if p.pendingResize == nil {
		return false
	}
	req := *p.pendingResize
	p.pendingResize = nil
	resized := false
	switch {
	case p.fbo != nil:
		if p.fbo.ResizeIfNeeded() {
			p.outputSize = p.fbo.Extent()
			p.countColorBuffers = p.fbo.ColorCount()
			resized = true
		}
	case req.size != p.outputSize:
		p.outputSize = req.size
		p.outputSize3D = math.NewUVec3(req.size.Width, req.size.Height, p.outputSize3D.Z)
		p.updateDispatch()
		resized = true
	}
	p.state = p.settledState()
	if resized {
		p.justResized = true
		p.needClear = true
		if h, ok := p.impl.(ResizeHooks); ok {
			h.WasJustResized()
		}
	}
	return resized
}

// IsJustResized is true from a resize until the next Execute.
func (p *ShaderPass) IsJustResized() bool {
	return p.justResized
}

func (p *ShaderPass) GetOutputSize() metadata.Extent {
	return p.outputSize
}

func (p *ShaderPass) GetOutputRatio() float32 {
	return p.outputSize.Ratio()
}

// ---------------------------------------------------------------------------
// inputs and outputs

func (p *ShaderPass) SetTexture(binding uint32, info *gpu.DescriptorImageInfo, size *metadata.Extent) {
	kind, ok := p.table.Kind(binding)
	if !ok || !kind.IsImage() {
		core.LogWarn("pass %s: binding %d is not a texture input", p.name, binding)
		return
	}
	p.table.AddOrSetWriteDescriptorImage(binding, kind, info)
	if info != nil && size != nil {
		p.inputSizes[binding] = *size
	} else {
		delete(p.inputSizes, binding)
	}
}

// TextureInputSize is the size given with the texture bound at binding.
func (p *ShaderPass) TextureInputSize(binding uint32) (metadata.Extent, bool) {
	s, ok := p.inputSizes[binding]
	return s, ok
}

func (p *ShaderPass) SetStorageBuffer(binding uint32, info *gpu.DescriptorBufferInfo) {
	kind, ok := p.table.Kind(binding)
	if !ok || kind != metadata.ResourceKindStorageBuffer {
		core.LogWarn("pass %s: binding %d is not a storage buffer input", p.name, binding)
		return
	}
	p.table.AddOrSetWriteDescriptorBuffer(binding, kind, info)
}

// GetDescriptorImageInfo returns the front attachment at binding and the output size.
func (p *ShaderPass) GetDescriptorImageInfo(binding uint32) (*gpu.DescriptorImageInfo, metadata.Extent) {
	if p.fbo == nil || !p.fbo.IsCreated() {
		return nil, metadata.Extent{}
	}
	return p.fbo.FrontImageInfo(binding), p.fbo.Extent()
}

// GetDescriptorBufferInfo returns the buffer this pass declared at binding.
func (p *ShaderPass) GetDescriptorBufferInfo(binding uint32) *gpu.DescriptorBufferInfo {
	for _, b := range p.buffers {
		if b.binding == binding {
			return b.DescriptorInfo()
		}
	}
	return nil
}

func (p *ShaderPass) setTextureUse(key string, v float32) bool {
	for _, b := range p.buffers {
		if _, ok := b.index[key]; ok {
			return b.SetFloat(key, v)
		}
	}
	core.LogWarn("pass %s: no texture use field %q", p.name, key)
	return false
}

// EnableTextureUse sets the float field key to 1 so the shader samples the texture.
func (p *ShaderPass) EnableTextureUse(key string) bool {
	return p.setTextureUse(key, 1)
}

func (p *ShaderPass) DisableTextureUse(key string) bool {
	return p.setTextureUse(key, 0)
}

// ---------------------------------------------------------------------------
// frame

// PrepareFrame uploads dirty buffers and pushes pending descriptor writes.
// Execute calls it too; a second call in the same frame does nothing.
func (p *ShaderPass) PrepareFrame() bool {
	if !p.isActive() {
		return false
	}
	ok := true
	for _, b := range p.buffers {
		before := b.Handle()
		if !b.Upload(false) {
			ok = false
			continue
		}
		if b.Handle() != before {
			if kind, has := b.usage.DescriptorKind(); has {
				p.table.AddOrSetWriteDescriptorBuffer(b.binding, kind, b.DescriptorInfo())
			}
		}
	}
	if p.table.NeedsLayoutRebuild() {
		p.rebuildPending = true
		p.state = p.settledState()
		return false
	}
	if p.table.NeedsUpdate() && !p.table.UpdateDescriptors() {
		ok = false
	}
	return ok
}

// AreWeValidForRender reports whether Execute would record anything.
func (p *ShaderPass) AreWeValidForRender() bool {
	return p.canRender && p.isActive() &&
		p.pipeline != nil && p.pipeline.Handle() != gpu.InvalidHandle &&
		p.builtLayout == p.table.Layout() &&
		p.table.IsWritten()
}

// Execute records the work of the pass. It does nothing while the pass is
// not loaded or cannot render; a pass waiting for a rebuild keeps drawing
// with its previous pipeline.
func (p *ShaderPass) Execute(cmd gpu.CommandBuffer, frame uint64) bool {
	if !p.isActive() || !p.canRender {
		return false
	}
	p.PrepareFrame()
	if !p.AreWeValidForRender() {
		return false
	}
	switch {
	case p.genericType == metadata.GenericTypePixel:
		p.draw(cmd)
	case p.genericType.IsCompute():
		p.dispatch(cmd)
	case p.genericType == metadata.GenericTypeRtx:
		p.trace(cmd)
	default:
		return false
	}
	p.lastFrame = frame
	p.justResized = false
	return true
}

func (p *ShaderPass) bind(cmd gpu.CommandBuffer) {
	cmd.BindPipeline(p.pipeline.Handle())
	cmd.BindDescriptorSet(p.pipeline.Handle(), p.table.Set())
	if len(p.pushData) > 0 {
		cmd.PushConstants(p.pipeline.Handle(), p.pushStages, p.pushData)
	}
}

func (p *ShaderPass) draw(cmd gpu.CommandBuffer) {
	extent := p.fbo.Extent()
	cmd.BeginRenderPass(p.fbo.Target(), extent, p.clearEachFrame || p.needClear, p.clearColor)
	cmd.SetViewport(extent)
	cmd.SetLineWidth(p.lineWidth.Value)
	if p.dynamicTopology {
		cmd.SetPrimitiveTopology(p.topology)
	}
	p.bind(cmd)

	hooks, hasHooks := p.impl.(DrawHooks)
	if hasHooks {
		hooks.ActionBeforeDraw(cmd)
	}
	drawer, hasDrawer := p.impl.(Drawer)
	for i := uint32(0); i < p.countIterations; i++ {
		if hasDrawer {
			drawer.DrawModel(cmd)
		} else {
			cmd.Draw(p.countVertexs, p.countInstances)
		}
	}
	if hasHooks {
		hooks.ActionAfterDraw(cmd)
	}
	cmd.EndRenderPass()
	p.fbo.Swap()
	p.needClear = false
}

func (p *ShaderPass) dispatch(cmd gpu.CommandBuffer) {
	p.bind(cmd)
	hooks, hasHooks := p.impl.(DrawHooks)
	if hasHooks {
		hooks.ActionBeforeDraw(cmd)
	}
	for i := uint32(0); i < p.countIterations; i++ {
		cmd.Dispatch(p.dispatchSize.X, p.dispatchSize.Y, p.dispatchSize.Z)
	}
	if hasHooks {
		hooks.ActionAfterDraw(cmd)
	}
}

func (p *ShaderPass) trace(cmd gpu.CommandBuffer) {
	tracer, ok := p.impl.(Tracer)
	if !ok {
		core.LogWarn("pass %s: ray tracing pass without a tracer", p.name)
		return
	}
	p.bind(cmd)
	hooks, hasHooks := p.impl.(DrawHooks)
	if hasHooks {
		hooks.ActionBeforeDraw(cmd)
	}
	for i := uint32(0); i < p.countIterations; i++ {
		tracer.RecordTraceRays(cmd)
	}
	if hasHooks {
		hooks.ActionAfterDraw(cmd)
	}
}

// ---------------------------------------------------------------------------
// teardown

// Unit destroys every GPU object of the pass after waiting for the device:
// pipeline first, then framebuffer, descriptors, buffers and mesh data.
func (p *ShaderPass) Unit() {
	if p.state == metadata.PassStateUnloaded {
		return
	}
	p.state = metadata.PassStateDestroying
	if err := p.ctx.Device.WaitIdle(); err != nil {
		core.LogWarn("pass %s: wait idle before teardown: %s", p.name, err)
	}
	p.teardown()
	p.state = metadata.PassStateUnloaded
	core.LogDebug("pass %s: unloaded", p.name)
}

// teardown expects the device to be idle.
func (p *ShaderPass) teardown() {
	if p.pipeline != nil {
		p.pipeline.release()
	}
	p.builtLayout = gpu.InvalidHandle
	if p.fbo != nil {
		p.fbo.release()
		p.fbo = nil
	}
	p.table.release()
	for _, b := range p.buffers {
		b.release()
	}
	p.buffers = nil
	if mb, ok := p.impl.(ModelBuilder); ok {
		mb.DestroyModel()
	}
	p.pendingResize = nil
	p.rebuildPending = false
	p.sourcesChanged = false
	p.awaitingSourceFix = false
	p.needModelUpdate = false
}
