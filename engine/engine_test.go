package engine

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumo/engine/config"
	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/math"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/pass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fillComp = `#version 450
layout(local_size_x = 32) in;
layout(std430, binding = 0) buffer Values { float v[]; };
layout(std140, binding = 1) uniform Params { float u_value; };
void main() {
	v[gl_GlobalInvocationID.x] = u_value;
}
`

type fillPass struct {
	*pass.ComputePass
}

func (f *fillPass) StageSources() map[metadata.StageKind]string {
	return map[metadata.StageKind]string{metadata.StageCompute: fillComp}
}

func (f *fillPass) DeclareBuffers() bool {
	if _, ok := f.AddSBO("values", 0, metadata.StageMaskCompute).RegisterByteSize("data", 64*4); !ok {
		return false
	}
	return f.AddUBO("params", 1, metadata.StageMaskCompute).RegisterFloat("u_value", 1)
}

func testConfig(t *testing.T) *config.EngineConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Backend = "headless"
	cfg.ShaderDir = filepath.Join(dir, "missing")
	cfg.ShaderCacheDir = filepath.Join(dir, "cache")
	cfg.Glslc = filepath.Join(dir, "no-glslc")
	cfg.Passes = nil
	cfg.MaxFrames = 5
	return cfg
}

// withFillPass adds a single compute pass named "fill" during Initialize.
func withFillPass(g *Game) *fillPass {
	f := &fillPass{}
	g.FnInitialize = func(e *Engine) error {
		f.ComputePass = pass.NewComputePass(e.Context(), e.Compiler(), "fill", f, math.NewUVec3(32, 1, 1))
		if !f.InitCompute1D(64) {
			return core.Newf("fill pass did not load")
		}
		_, err := e.Renderer().Add(f)
		return err
	}
	return f
}

func start(t *testing.T, g *Game) *Engine {
	t.Helper()
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.True(t, core.Is(err, core.ErrInvalidConfig))

	cfg := testConfig(t)
	cfg.Backend = "metal"
	_, err = New(&Game{Config: cfg})
	assert.True(t, core.Is(err, core.ErrInvalidConfig))
}

func TestRunStopsAfterMaxFrames(t *testing.T) {
	updates := 0
	g := &Game{Config: testConfig(t), FnUpdate: func(float64) error {
		updates++
		return nil
	}}
	withFillPass(g)
	e := start(t, g)
	assert.Equal(t, EngineStageInitialized, e.Stage())

	require.NoError(t, e.Run())
	assert.Equal(t, 5, updates)
	assert.Equal(t, uint64(5), e.Metrics().TotalFrames())
	assert.Equal(t, uint64(5), e.Renderer().Frame())
	assert.Equal(t, 1, e.Renderer().Executed())

	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageStopped, e.Stage())
	assert.NoError(t, e.Shutdown())
}

func TestStopEndsTheLoop(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxFrames = 0
	var e *Engine
	updates := 0
	g := &Game{Config: cfg, FnUpdate: func(float64) error {
		updates++
		if updates == 3 {
			e.Stop()
		}
		return nil
	}}
	e = start(t, g)
	require.NoError(t, e.Run())
	assert.Equal(t, 3, updates)
}

func TestUpdateErrorEndsRun(t *testing.T) {
	boom := errors.New("boom")
	g := &Game{Config: testConfig(t), FnUpdate: func(float64) error { return boom }}
	e := start(t, g)
	assert.ErrorIs(t, e.Run(), boom)
}

func TestResizeEventsReachTheGame(t *testing.T) {
	var sizes [][2]uint32
	g := &Game{Config: testConfig(t), FnOnResize: func(w, h uint32) error {
		sizes = append(sizes, [2]uint32{w, h})
		return nil
	}}
	e := start(t, g)
	require.Equal(t, [][2]uint32{{1280, 720}}, sizes)

	resize := func(w, h uint32) bool {
		return e.Events().Fire(core.EventContext{
			Type: core.EVENT_CODE_RESIZED,
			Data: &core.SystemEvent{WindowWidth: w, WindowHeight: h},
		})
	}
	assert.True(t, resize(640, 360))
	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(640), w)
	assert.Equal(t, uint32(360), h)
	assert.False(t, resize(640, 360))

	assert.True(t, resize(0, 0))
	assert.True(t, e.isSuspended)
	assert.True(t, resize(800, 600))
	assert.False(t, e.isSuspended)
	assert.Equal(t, [][2]uint32{{1280, 720}, {640, 360}, {800, 600}}, sizes)
}

func TestQuitEventEndsTheLoop(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxFrames = 0
	var e *Engine
	g := &Game{Config: cfg, FnUpdate: func(float64) error {
		e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		return nil
	}}
	e = start(t, g)
	require.NoError(t, e.Run())
	assert.Equal(t, uint64(1), e.Metrics().TotalFrames())
}

func TestStateFileRestoresPassSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.StateFile = filepath.Join(t.TempDir(), "state.xml")

	g := &Game{Config: cfg}
	f := withFillPass(g)
	e := start(t, g)
	require.True(t, f.Buffer("params").SetFloat("u_value", 0.25))
	f.SetCanRender(false)
	require.NoError(t, e.Shutdown())
	require.FileExists(t, cfg.StateFile)

	g = &Game{Config: cfg}
	f = withFillPass(g)
	start(t, g)
	v, ok := f.Buffer("params").Float("u_value")
	require.True(t, ok)
	assert.Equal(t, float32(0.25), v)
	assert.False(t, f.CanRender())
}
