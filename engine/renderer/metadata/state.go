package metadata

// PassState is the lifecycle state of a shader pass.
type PassState int

const (
	PassStateUnloaded PassState = iota
	PassStateInitializing
	PassStateLoaded
	PassStateNeedsResize
	PassStateNeedsRebuild
	PassStateDestroying
)

func (s PassState) String() string {
	switch s {
	case PassStateUnloaded:
		return "Unloaded"
	case PassStateInitializing:
		return "Initializing"
	case PassStateLoaded:
		return "Loaded"
	case PassStateNeedsResize:
		return "NeedsResize"
	case PassStateNeedsRebuild:
		return "NeedsRebuild"
	case PassStateDestroying:
		return "Destroying"
	}
	return "Unknown"
}

// PipelineState tracks a pipeline resource between compilation and use.
type PipelineState int

const (
	// Nothing compiled yet.
	PipelineStateUncompiled PipelineState = iota
	// Stages compiled, pipeline object not built from them yet.
	PipelineStateCompiled
	// A pipeline exists but its sources or layout changed.
	PipelineStateStale
	// The pipeline matches the current sources and layout.
	PipelineStateReady
	// The last compile or build failed. Any previous pipeline is still used.
	PipelineStateCompileFailed
)

func (s PipelineState) String() string {
	switch s {
	case PipelineStateUncompiled:
		return "Uncompiled"
	case PipelineStateCompiled:
		return "Compiled"
	case PipelineStateStale:
		return "PipelineStale"
	case PipelineStateReady:
		return "Ready"
	case PipelineStateCompileFailed:
		return "CompileFailed"
	}
	return "Unknown"
}

// GenericType is the kind of work a pass issues.
type GenericType int

const (
	GenericTypeNone GenericType = iota
	GenericTypePixel
	GenericTypeCompute1D
	GenericTypeCompute2D
	GenericTypeCompute3D
	GenericTypeRtx
)

func (g GenericType) IsCompute() bool {
	return g == GenericTypeCompute1D || g == GenericTypeCompute2D || g == GenericTypeCompute3D
}

func (g GenericType) String() string {
	switch g {
	case GenericTypeNone:
		return "NONE"
	case GenericTypePixel:
		return "PIXEL"
	case GenericTypeCompute1D:
		return "COMPUTE_1D"
	case GenericTypeCompute2D:
		return "COMPUTE_2D"
	case GenericTypeCompute3D:
		return "COMPUTE_3D"
	case GenericTypeRtx:
		return "RTX"
	}
	return "UNKNOWN"
}
