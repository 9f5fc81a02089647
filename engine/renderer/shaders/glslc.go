package shaders

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/lumo/engine/core"
)

// GlslcCompiler shells out to glslc. Sources are written to CacheDir as
// <name>.<ext> before compiling, next to the produced <name>.<ext>.spv.
type GlslcCompiler struct {
	Path      string
	CacheDir  string
	TargetEnv string
	Args      []string
}

func NewGlslcCompiler(path, cacheDir string) *GlslcCompiler {
	if path == "" {
		path = "glslc"
	}
	return &GlslcCompiler{
		Path:      path,
		CacheDir:  cacheDir,
		TargetEnv: "vulkan1.2",
	}
}

// Available reports whether the glslc binary can be found.
func (g *GlslcCompiler) Available() bool {
	_, err := exec.LookPath(g.Path)
	return err == nil
}

// StagePath is where the source of a stage is cached on disk.
func (g *GlslcCompiler) StagePath(src Source) string {
	return filepath.Join(g.CacheDir, sanitize(src.Name)+"."+src.Stage.Extension())
}

func (g *GlslcCompiler) CompileStage(ctx context.Context, src Source) (Module, error) {
	if err := os.MkdirAll(g.CacheDir, 0o755); err != nil {
		return Module{}, core.Wrapf(err, "creating shader cache %s", g.CacheDir)
	}
	in := g.StagePath(src)
	out := in + ".spv"
	if err := os.WriteFile(in, []byte(src.Code), 0o644); err != nil {
		return Module{}, core.Wrapf(err, "writing %s", in)
	}

	args := []string{"-fshader-stage=" + src.Stage.GlslcStage()}
	if g.TargetEnv != "" {
		args = append(args, "--target-env="+g.TargetEnv)
	}
	args = append(args, g.Args...)
	args = append(args, in, "-o", out)

	core.LogDebug("Executing: %s %s", g.Path, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, g.Path, args...)
	var b bytes.Buffer
	cmd.Stdout = &b
	cmd.Stderr = &b
	if err := cmd.Run(); err != nil {
		log := strings.TrimSpace(b.String())
		if log == "" {
			log = err.Error()
		}
		return Module{}, &CompileError{Name: src.Name, Stage: src.Stage, Log: log}
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return Module{}, core.Wrapf(err, "reading %s", out)
	}
	words, err := BytesToWords(data)
	if err != nil {
		return Module{}, &CompileError{Name: src.Name, Stage: src.Stage, Log: err.Error()}
	}
	return Module{Stage: src.Stage, SPIRV: words, Entry: "main"}, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
}
