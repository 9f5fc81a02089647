package metadata

import "fmt"

// StageKind identifies one shader stage of a pipeline.
type StageKind int

const (
	StageVertex StageKind = iota
	StageFragment
	StageGeometry
	StageTessControl
	StageTessEval
	StageCompute
	StageRayGen
	StageRayMiss
	StageRayClosestHit
	StageRayAnyHit
	StageRayIntersection
)

// AllStageKinds lists every stage in pipeline order.
var AllStageKinds = []StageKind{
	StageVertex, StageTessControl, StageTessEval, StageGeometry, StageFragment,
	StageCompute,
	StageRayGen, StageRayMiss, StageRayClosestHit, StageRayAnyHit, StageRayIntersection,
}

func (s StageKind) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageGeometry:
		return "geometry"
	case StageTessControl:
		return "tess_control"
	case StageTessEval:
		return "tess_eval"
	case StageCompute:
		return "compute"
	case StageRayGen:
		return "raygen"
	case StageRayMiss:
		return "miss"
	case StageRayClosestHit:
		return "closest_hit"
	case StageRayAnyHit:
		return "any_hit"
	case StageRayIntersection:
		return "intersection"
	}
	return fmt.Sprintf("StageKind(%d)", int(s))
}

// Extension is the file extension used for the stage's GLSL source.
func (s StageKind) Extension() string {
	switch s {
	case StageVertex:
		return "vert"
	case StageFragment:
		return "frag"
	case StageGeometry:
		return "geom"
	case StageTessControl:
		return "ctrl"
	case StageTessEval:
		return "eval"
	case StageCompute:
		return "comp"
	case StageRayGen:
		return "rgen"
	case StageRayMiss:
		return "miss"
	case StageRayClosestHit:
		return "chit"
	case StageRayAnyHit:
		return "ahit"
	case StageRayIntersection:
		return "rint"
	}
	return "glsl"
}

// GlslcStage is the value glslc expects for -fshader-stage.
func (s StageKind) GlslcStage() string {
	switch s {
	case StageVertex:
		return "vert"
	case StageFragment:
		return "frag"
	case StageGeometry:
		return "geom"
	case StageTessControl:
		return "tesc"
	case StageTessEval:
		return "tese"
	case StageCompute:
		return "comp"
	case StageRayGen:
		return "rgen"
	case StageRayMiss:
		return "rmiss"
	case StageRayClosestHit:
		return "rchit"
	case StageRayAnyHit:
		return "rahit"
	case StageRayIntersection:
		return "rint"
	}
	return ""
}

// Mask returns the single-bit stage mask for s.
func (s StageKind) Mask() StageMask {
	return StageMask(1) << uint(s)
}

// StageMask is a bit set of StageKind values.
type StageMask uint32

const (
	StageMaskNone     StageMask = 0
	StageMaskGraphics           = StageMask(1)<<uint(StageVertex) | StageMask(1)<<uint(StageFragment) |
		StageMask(1)<<uint(StageGeometry) | StageMask(1)<<uint(StageTessControl) | StageMask(1)<<uint(StageTessEval)
	StageMaskCompute    = StageMask(1) << uint(StageCompute)
	StageMaskRayTracing = StageMask(1)<<uint(StageRayGen) | StageMask(1)<<uint(StageRayMiss) |
		StageMask(1)<<uint(StageRayClosestHit) | StageMask(1)<<uint(StageRayAnyHit) | StageMask(1)<<uint(StageRayIntersection)
)

func (m StageMask) Has(s StageKind) bool {
	return m&s.Mask() != 0
}

// Stages expands the mask in pipeline order.
func (m StageMask) Stages() []StageKind {
	out := []StageKind{}
	for _, s := range AllStageKinds {
		if m.Has(s) {
			out = append(out, s)
		}
	}
	return out
}
