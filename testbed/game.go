package testbed

import (
	"github.com/spaghettifunk/lumo/engine"
	"github.com/spaghettifunk/lumo/engine/config"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/renderer"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/pass"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	engine *engine.Engine

	time      float64
	particles []*ParticlesPass
	points    []*PointsPass
	grading   []*GradingPass
}

// NewTestGame builds the passes listed in cfg and chains them: every point
// pass draws the latest particle buffer before it, and every grading pass
// grades the latest image before it.
func NewTestGame(cfg *config.EngineConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Config: cfg,
			State:  &gameState{},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogInfo("initializing testbed...")
	state := g.state()
	state.engine = e

	r := e.Renderer()
	var (
		lastBuffer  *renderer.PassID
		lastImage   *renderer.PassID
		lastCount   uint32
		lastGrading *GradingPass
	)
	for _, pc := range g.Config.Passes {
		if pc.Kind == config.PassKindRtx {
			core.LogWarn("pass %s: the testbed has no ray tracing pass, skipped", pc.Name)
			continue
		}
		p, err := g.build(e, pc, lastCount)
		if err != nil {
			return err
		}
		id, err := r.Add(p)
		if err != nil {
			return err
		}

		switch p := p.(type) {
		case *ParticlesPass:
			state.particles = append(state.particles, p)
			lastBuffer, lastCount = &id, p.Count()
		case *PointsPass:
			state.points = append(state.points, p)
			if lastBuffer != nil {
				if err := r.Connect(renderer.Link{Producer: *lastBuffer, Output: 0, Consumer: id, Input: 0, Kind: renderer.LinkStorageBuffer}); err != nil {
					return err
				}
			}
			lastImage = &id
		case *GradingPass:
			state.grading = append(state.grading, p)
			if lastImage != nil {
				if err := r.Connect(renderer.Link{Producer: *lastImage, Output: 0, Consumer: id, Input: gradingInputBinding, Kind: renderer.LinkTexture}); err != nil {
					return err
				}
				p.EnableTextureUse("u_use_input")
			}
			lastImage = &id
			lastGrading = p
		}
	}
	if lastGrading != nil {
		core.LogDebug("testbed: %s is the final image", lastGrading.Name())
	}
	return nil
}

// build creates and initializes the pass described by pc. Raster passes
// without a size follow the window.
func (g *TestGame) build(e *engine.Engine, pc config.PassConfig, particleCount uint32) (renderer.Pass, error) {
	ctx, compiler := e.Context(), e.Compiler()
	size := metadata.NewExtent(pc.Width, pc.Height)
	if size.IsZero() {
		size = metadata.NewExtent(e.GetFramebufferSize())
	}

	var (
		sp *pass.ShaderPass
		rp renderer.Pass
		ok bool
	)
	switch pc.Kind {
	case config.PassKindCompute:
		p := NewParticlesPass(ctx, compiler, pc.Name, pc.Width*pc.Height)
		sp, rp = p.ShaderPass, p
		configure(sp, pc, g.Config.ShaderDir)
		ok = p.InitCompute1D(p.Count())
	case config.PassKindVertex:
		if particleCount == 0 {
			return nil, core.Wrapf(core.ErrInvalidConfig, "pass %s: no particle pass before it", pc.Name)
		}
		p := NewPointsPass(ctx, compiler, pc.Name, particleCount)
		sp, rp = p.ShaderPass, p
		configure(sp, pc, g.Config.ShaderDir)
		ok = p.InitPixel(size, 1, false)
	case config.PassKindQuad:
		p := NewGradingPass(ctx, compiler, pc.Name)
		sp, rp = p.ShaderPass, p
		configure(sp, pc, g.Config.ShaderDir)
		if pc.Texture != "" {
			if err := p.LoadLUT(pc.Texture); err != nil {
				core.LogWarn("pass %s: %s, grading without a lut", pc.Name, err)
			}
		}
		ok = p.InitPixel(size, 1, false)
	default:
		return nil, core.Wrapf(core.ErrInvalidConfig, "pass %s: kind %q", pc.Name, pc.Kind)
	}
	if !ok {
		return nil, core.Wrapf(core.ErrResourceCreation, "pass %s failed to initialize", pc.Name)
	}
	core.LogDebug("testbed: pass %s (%s) ready at %s", pc.Name, pc.Kind, sp.GetOutputSize())
	return rp, nil
}

func configure(p *pass.ShaderPass, pc config.PassConfig, shaderDir string) {
	if shaderDir != "" {
		p.SetShaderDir(shaderDir)
	}
	if len(pc.Defines) > 0 {
		p.SetDefines(pc.Defines)
	}
	p.AllowResizeOnResizeEvents(pc.ResizeByEvent)
	p.AllowResizeByHand(pc.ResizeByHand)
	p.SetBufferQuality(pc.BufferQuality)
	p.SetCanRender(!pc.Disabled)
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	state.time += deltaTime
	for _, p := range state.particles {
		p.Update(state.time, deltaTime)
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.state()
	if state.engine != nil {
		m := state.engine.Metrics()
		core.LogInfo("testbed: %d frames, %.1f fps on average", m.TotalFrames(), m.FPS())
	}
	return nil
}
