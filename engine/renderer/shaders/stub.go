package shaders

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
)

// StubCompiler stands in for glslc on the headless backend. It rejects
// sources that are obviously malformed and returns a SPIR-V header followed by
// a hash of the code, so different sources give different modules.
type StubCompiler struct{}

func (StubCompiler) CompileStage(ctx context.Context, src Source) (Module, error) {
	if err := ctx.Err(); err != nil {
		return Module{}, err
	}
	if msg := checkSyntax(src.Code); msg != "" {
		return Module{}, &CompileError{Name: src.Name, Stage: src.Stage, Log: msg}
	}
	h := fnv.New32a()
	h.Write([]byte(src.Code))
	return Module{
		Stage: src.Stage,
		SPIRV: []uint32{SpirvMagic, 0x00010500, 0, 1, 0, uint32(src.Stage), h.Sum32()},
		Entry: "main",
	}, nil
}

func checkSyntax(code string) string {
	if !strings.Contains(code, "#version") {
		return "error: missing #version directive"
	}
	if !strings.Contains(code, "void main") {
		return "error: missing entry point main"
	}
	depth := 0
	for _, r := range code {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return "error: unexpected '}'"
			}
		}
	}
	if depth != 0 {
		return "error: unexpected end of file, unbalanced braces"
	}
	return ""
}

// StageSources builds one Source per non empty entry of codes.
func StageSources(name string, codes map[metadata.StageKind]string) []Source {
	out := make([]Source, 0, len(codes))
	for _, s := range metadata.AllStageKinds {
		if c, ok := codes[s]; ok && c != "" {
			out = append(out, Source{Stage: s, Name: name, Code: c})
		}
	}
	return out
}
