package engine

import "github.com/spaghettifunk/lumo/engine/config"

// Game is what an application plugs into the engine: its configuration and
// the callbacks the frame loop invokes.
type Game struct {
	Config *config.EngineConfig
	State  interface{}

	FnInitialize Initialize
	FnUpdate     Update
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

// Initialize runs once the device and the renderer exist; it adds the passes.
type Initialize func(e *Engine) error

// Update runs before every frame is rendered.
type Update func(deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
