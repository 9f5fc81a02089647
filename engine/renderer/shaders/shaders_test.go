package shaders

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frag = `#version 450
layout(location = 0) out vec4 fragColor;
void main() {
	fragColor = vec4(1.0);
}
`

func TestBytesToWords(t *testing.T) {
	words := []uint32{SpirvMagic, 0x00010000, 7}
	got, err := BytesToWords(WordsToBytes(words))
	require.NoError(t, err)
	assert.Equal(t, words, got)

	_, err = BytesToWords([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = BytesToWords([]byte{0, 0, 0, 0})
	assert.Error(t, err)
}

func TestDefinesGoAfterVersion(t *testing.T) {
	p := &Preprocessor{Defines: map[string]string{"USE_FOG": "", "SAMPLES": "4"}}
	out, used, err := p.Process("grading", frag)
	require.NoError(t, err)
	assert.Empty(t, used)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "#version 450", lines[0])
	assert.Equal(t, "#define SAMPLES 4", lines[1])
	assert.Equal(t, "#define USE_FOG", lines[2])
}

func TestIncludesAreResolvedOnce(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "common.glsl"), []byte("float luma(vec3 c) { return dot(c, vec3(0.299, 0.587, 0.114)); }\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loop.glsl"), []byte("#include \"loop.glsl\"\n#include \"common.glsl\"\n"), 0o644))

	p := &Preprocessor{IncludeDirs: []string{dir}}
	code := "#version 450\n#include \"loop.glsl\"\n#include \"common.glsl\"\nvoid main() {}\n"
	out, used, err := p.Process("grading", code)
	require.NoError(t, err)
	assert.Len(t, used, 2)
	assert.Equal(t, 1, strings.Count(out, "float luma"))

	_, _, err = p.Process("grading", "#include \"missing.glsl\"\n")
	assert.Error(t, err)
}

func TestCompileAllKeepsOrderAndFailsFast(t *testing.T) {
	sources := StageSources("quad", map[metadata.StageKind]string{
		metadata.StageFragment: frag,
		metadata.StageVertex:   "#version 450\nvoid main() { gl_Position = vec4(0.0); }\n",
	})
	require.Len(t, sources, 2)
	assert.Equal(t, metadata.StageVertex, sources[0].Stage)

	mods, err := CompileAll(context.Background(), StubCompiler{}, sources)
	require.NoError(t, err)
	require.Len(t, mods, 2)
	assert.Equal(t, metadata.StageVertex, mods[0].Stage)
	assert.Equal(t, metadata.StageFragment, mods[1].Stage)
	assert.Equal(t, "main", mods[1].Entry)

	var calls int32
	failing := FuncCompiler(func(ctx context.Context, src Source) (Module, error) {
		atomic.AddInt32(&calls, 1)
		if src.Stage == metadata.StageFragment {
			return Module{}, &CompileError{Name: src.Name, Stage: src.Stage, Log: "syntax error"}
		}
		return Module{SPIRV: []uint32{SpirvMagic}}, nil
	})
	_, err = CompileAll(context.Background(), failing, sources)
	require.Error(t, err)
	assert.True(t, core.Is(err, core.ErrShaderCompilation))
}

func TestStubCompilerRejectsMalformedSource(t *testing.T) {
	_, err := StubCompiler{}.CompileStage(context.Background(), Source{Stage: metadata.StageFragment, Name: "bad", Code: "#version 450\nvoid main() {\n"})
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Log, "unbalanced")
}

func TestGlslcCompiler(t *testing.T) {
	g := NewGlslcCompiler("", t.TempDir())
	if !g.Available() {
		t.Skip("glslc not on PATH")
	}
	mod, err := g.CompileStage(context.Background(), Source{Stage: metadata.StageFragment, Name: "grading pass", Code: frag})
	require.NoError(t, err)
	assert.Equal(t, SpirvMagic, mod.SPIRV[0])
	assert.FileExists(t, filepath.Join(g.CacheDir, "grading_pass.frag"))

	_, err = g.CompileStage(context.Background(), Source{Stage: metadata.StageFragment, Name: "broken", Code: "#version 450\nvoid main() { nope }\n"})
	assert.True(t, core.Is(err, core.ErrShaderCompilation))
}
