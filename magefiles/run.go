//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

type Test mg.Namespace

// Runs the testbed in a window, with lumo.toml when present.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs(runArgs()...), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the testbed on the headless backend for a few hundred frames.
func (Run) Headless() error {
	args := append(runArgs(), "-headless", "-frames", "300")
	if _, err := executeCmd("go", withArgs(args...), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs every test of the module.
func (Test) All() error {
	// glfw is a cgo package.
	if _, err := executeCmd("go", withArgs("test", "-count=1", "./..."), withEnv("CGO_ENABLED=1"), withStream()); err != nil {
		return err
	}
	return nil
}

func runArgs() []string {
	args := []string{"run", "."}
	if _, err := os.Stat("lumo.toml"); err == nil {
		args = append(args, "-config", "lumo.toml")
	}
	return args
}
