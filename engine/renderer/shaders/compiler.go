package shaders

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"golang.org/x/sync/errgroup"
)

// Source is the GLSL text of one stage.
type Source struct {
	Stage metadata.StageKind
	// Name identifies the source in logs and in the shader cache, usually the pass name.
	Name string
	Code string
}

// Module is one compiled stage.
type Module struct {
	Stage metadata.StageKind
	SPIRV []uint32
	Entry string
}

// CompileError carries the compiler diagnostics of a failed stage.
type CompileError struct {
	Name  string
	Stage metadata.StageKind
	Log   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Name, e.Stage, e.Log)
}

func (e *CompileError) Unwrap() error {
	return core.ErrShaderCompilation
}

// Compiler turns one GLSL stage into SPIR-V.
type Compiler interface {
	CompileStage(ctx context.Context, src Source) (Module, error)
}

// FuncCompiler adapts a function to the Compiler interface.
type FuncCompiler func(ctx context.Context, src Source) (Module, error)

func (f FuncCompiler) CompileStage(ctx context.Context, src Source) (Module, error) {
	return f(ctx, src)
}

// CompileAll compiles every stage concurrently. The first failure cancels the
// others and is returned; modules come back in the order of sources.
func CompileAll(ctx context.Context, c Compiler, sources []Source) ([]Module, error) {
	modules := make([]Module, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			m, err := c.CompileStage(ctx, src)
			if err != nil {
				return err
			}
			if len(m.SPIRV) == 0 {
				return &CompileError{Name: src.Name, Stage: src.Stage, Log: "compiler produced an empty module"}
			}
			if m.Entry == "" {
				m.Entry = "main"
			}
			m.Stage = src.Stage
			modules[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return modules, nil
}
