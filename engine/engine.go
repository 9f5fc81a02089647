package engine

import (
	"os"
	"sync/atomic"

	"github.com/spaghettifunk/lumo/engine/assets"
	"github.com/spaghettifunk/lumo/engine/config"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/platform"
	"github.com/spaghettifunk/lumo/engine/renderer"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/headless"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/shaders"
	"github.com/spaghettifunk/lumo/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	EngineStageStopped
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	cfg          *config.EngineConfig
	backend      renderer.BackendType

	events   *core.EventSystem
	platform *platform.Platform
	device   gpu.Device
	context  *gpu.GraphicsContext
	renderer *renderer.BaseRenderer
	compiler shaders.Compiler
	tracker  *assets.ShaderTracker

	clock    *core.Clock
	metrics  *core.FrameMetrics
	lastTime float64

	width       uint32
	height      uint32
	isRunning   bool
	isSuspended bool
	// Set from other goroutines, e.g. a signal handler.
	quit atomic.Bool
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.Config == nil {
		return nil, core.Wrapf(core.ErrInvalidConfig, "game without configuration")
	}
	if err := g.Config.Validate(); err != nil {
		return nil, err
	}
	backend, err := renderer.ParseBackendType(g.Config.Backend)
	if err != nil {
		return nil, err
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		cfg:          g.Config,
		backend:      backend,
		events:       core.NewEventSystem(),
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
		width:        g.Config.Width,
		height:       g.Config.Height,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	if err := core.SetLogLevel(e.cfg.LogLevel); err != nil {
		return err
	}

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	e.events.Register(core.EVENT_CODE_RESIZED, e.onResized)

	device, err := e.newDevice()
	if err != nil {
		return err
	}
	e.device = device
	e.context = gpu.NewGraphicsContext(device)
	e.renderer = renderer.NewBaseRenderer(e.context)
	e.compiler = e.newCompiler()

	if _, err := os.Stat(e.cfg.ShaderDir); err == nil {
		if e.tracker, err = assets.NewShaderTracker(e.cfg.ShaderDir, e.cfg.WatchQueue); err != nil {
			core.LogWarn("shader hot reload disabled: %s", err)
		}
	} else {
		core.LogWarn("shader directory %s not found, hot reload disabled", e.cfg.ShaderDir)
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}
	e.restoreState()

	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	core.LogInfo("%s initialized with the %s backend, %d passes", e.cfg.Name, e.backend, len(e.renderer.Passes()))
	return nil
}

// newDevice picks the backend. The Vulkan one needs the window system up
// first, since glfw provides the loader.
func (e *Engine) newDevice() (gpu.Device, error) {
	switch e.backend {
	case renderer.Headless:
		return headless.New(), nil
	default:
		e.platform = platform.New(e.events)
		if err := e.platform.Startup(e.cfg.Name, e.cfg.Width, e.cfg.Height); err != nil {
			return nil, err
		}
		if w, h := e.platform.FramebufferSize(); w > 0 && h > 0 {
			e.width, e.height = w, h
		}
		backend, err := vulkan.New(vulkan.Options{
			AppName:        e.cfg.Name,
			Validation:     e.cfg.Validation,
			PreferDiscrete: e.cfg.PreferDiscrete,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	}
}

func (e *Engine) newCompiler() shaders.Compiler {
	glslc := shaders.NewGlslcCompiler(e.cfg.Glslc, e.cfg.ShaderCacheDir)
	if glslc.Available() {
		return glslc
	}
	if e.backend == renderer.Vulkan {
		core.LogError("%s not found: shaders cannot be compiled for the GPU", e.cfg.Glslc)
	} else {
		core.LogWarn("%s not found, using the syntax-only compiler", e.cfg.Glslc)
	}
	return shaders.StubCompiler{}
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning = true
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		if e.quit.Load() {
			break
		}
		if e.platform != nil {
			e.platform.PumpMessages()
			if e.platform.ShouldClose() {
				break
			}
		}
		if e.isSuspended {
			if e.platform != nil {
				e.platform.WaitEvents(0.1)
			}
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if e.tracker != nil {
			if files := e.tracker.DrainChanged(); len(files) > 0 {
				rebuilt := e.renderer.UpdateShaders(files)
				e.events.Fire(core.EventContext{
					Type: core.EVENT_CODE_SHADERS_CHANGED,
					Data: &core.ShadersChangedEvent{Files: files},
				})
				core.LogDebug("%d shader files changed, %d passes rebuilding", len(files), len(rebuilt))
			}
		}

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err)
				return err
			}
		}

		if err := e.renderer.Render(); err != nil {
			core.LogError("render failed, shutting down: %s", err)
			return err
		}

		e.clock.Update()
		e.metrics.Update(e.clock.Elapsed() - currentTime)
		if n := e.metrics.TotalFrames(); n%600 == 0 {
			core.LogDebug("frame %d: %.1f fps, %.2f ms", n, e.metrics.FPS(), e.metrics.FrameTime())
		}
		e.lastTime = currentTime

		if e.cfg.MaxFrames > 0 && e.metrics.TotalFrames() >= e.cfg.MaxFrames {
			core.LogInfo("rendered %d frames, stopping", e.cfg.MaxFrames)
			break
		}
	}
	e.isRunning = false
	e.clock.Stop()
	return nil
}

// Stop asks the frame loop to return. Safe to call from any goroutine.
func (e *Engine) Stop() {
	e.quit.Store(true)
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageStopped {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	var firstErr error
	if e.renderer != nil {
		e.saveState()
		e.renderer.Unit()
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			firstErr = err
		}
	}
	if e.tracker != nil {
		if err := e.tracker.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.context != nil {
		e.context.Destroy()
	}
	if e.device != nil {
		e.device.Destroy()
	}
	if e.platform != nil {
		e.platform.Shutdown()
	}
	e.events.Shutdown()
	e.currentStage = EngineStageStopped
	return firstErr
}

func (e *Engine) restoreState() {
	if e.cfg.StateFile == "" {
		return
	}
	data, err := os.ReadFile(e.cfg.StateFile)
	if err != nil {
		if !os.IsNotExist(err) {
			core.LogWarn("cannot read %s: %s", e.cfg.StateFile, err)
		}
		return
	}
	if !e.renderer.SetFromXML(string(data)) {
		core.LogWarn("state in %s was only partly applied", e.cfg.StateFile)
	}
}

func (e *Engine) saveState() {
	if e.cfg.StateFile == "" {
		return
	}
	if err := os.WriteFile(e.cfg.StateFile, []byte(e.renderer.GetXML()), 0o644); err != nil {
		core.LogWarn("cannot save state to %s: %s", e.cfg.StateFile, err)
	}
}

func (e *Engine) Config() *config.EngineConfig {
	return e.cfg
}

func (e *Engine) Context() *gpu.GraphicsContext {
	return e.context
}

func (e *Engine) Renderer() *renderer.BaseRenderer {
	return e.renderer
}

func (e *Engine) Compiler() shaders.Compiler {
	return e.compiler
}

func (e *Engine) Events() *core.EventSystem {
	return e.events
}

func (e *Engine) Metrics() *core.FrameMetrics {
	return e.metrics
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// GetFramebufferSize returns the width and height (in this order) of the
// output surface.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) bool {
	if context.Type == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	width, height := se.WindowWidth, se.WindowHeight
	if width == e.width && height == e.height {
		return false
	}

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	e.renderer.NeedResizeByResizeEvent(metadata.NewExtent(width, height))
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError("game resize failed: %s", err)
		}
	}
	return true
}
