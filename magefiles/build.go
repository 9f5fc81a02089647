//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const (
	shaderDir = "assets/shaders"
	spirvDir  = "build/shaders"
)

var shaderExtensions = map[string]bool{
	".vert": true, ".frag": true, ".geom": true, ".comp": true,
	".rgen": true, ".rmiss": true, ".rchit": true, ".rahit": true, ".rint": true,
}

// Compiles every GLSL stage under assets/shaders to SPIR-V, to catch errors
// before the engine does.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the lumo binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/lumo", "."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	if _, err := os.Stat(shaderDir); os.IsNotExist(err) {
		fmt.Printf("%s does not exist yet, the engine writes it on its first run\n", shaderDir)
		return nil
	}
	var stages []string
	err := filepath.WalkDir(shaderDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && shaderExtensions[filepath.Ext(path)] {
			stages = append(stages, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, src := range stages {
		rel, _ := filepath.Rel(shaderDir, src)
		out := filepath.Join(spirvDir, strings.ReplaceAll(rel, string(filepath.Separator), "_")+".spv")
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.2", "-I", shaderDir, src, "-o", out)); err != nil {
			return err
		}
	}
	fmt.Printf("%d shader stages compiled\n", len(stages))
	return nil
}
