package renderer

import (
	"strings"

	"github.com/spaghettifunk/lumo/engine/core"
)

// BackendType selects the gpu.Device implementation the engine starts with.
type BackendType uint8

const (
	Vulkan BackendType = iota
	// Headless records commands in memory; nothing reaches a GPU.
	Headless
)

func (b BackendType) String() string {
	switch b {
	case Vulkan:
		return "vulkan"
	case Headless:
		return "headless"
	}
	return "unknown"
}

func ParseBackendType(s string) (BackendType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vulkan", "":
		return Vulkan, nil
	case "headless":
		return Headless, nil
	}
	return 0, core.Wrapf(core.ErrInvalidConfig, "unknown backend %q", s)
}
