package testbed

import (
	"encoding/binary"
	gomath "math"
	"math/rand/v2"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/spaghettifunk/lumo/engine/math"
	"github.com/spaghettifunk/lumo/engine/renderer/gpu"
	"github.com/spaghettifunk/lumo/engine/renderer/metadata"
	"github.com/spaghettifunk/lumo/engine/renderer/pass"
	"github.com/spaghettifunk/lumo/engine/renderer/shaders"
)

// particle matches the std430 layout of the Particle struct in the shader.
type particle struct {
	Pos math.Vec4
	Vel math.Vec4
}

const particleSize = 32

// ParticlesPass integrates a swirl of particles on the GPU. Its storage
// buffer, at binding 0, is the output other passes draw from.
type ParticlesPass struct {
	*pass.ComputePass

	count uint32
	seed  uint64
}

func NewParticlesPass(ctx *gpu.GraphicsContext, compiler shaders.Compiler, name string, count uint32) *ParticlesPass {
	p := &ParticlesPass{count: count, seed: 1}
	p.ComputePass = pass.NewComputePass(ctx, compiler, name, p, math.NewUVec3(64, 1, 1))
	return p
}

func (p *ParticlesPass) Count() uint32 {
	return p.count
}

func (p *ParticlesPass) StageSources() map[metadata.StageKind]string {
	return map[metadata.StageKind]string{metadata.StageCompute: particlesComp}
}

func (p *ParticlesPass) DeclareBuffers() bool {
	if _, ok := p.AddSBO("particles", 0, metadata.StageMaskCompute).RegisterByteSize("data", p.count*particleSize); !ok {
		return false
	}
	params := p.AddUBO("params", 1, metadata.StageMaskCompute)
	return params.RegisterFloat("u_time", 0) &&
		params.RegisterFloat("u_delta", 0) &&
		params.RegisterUint32("u_count", p.count) &&
		params.RegisterFloat("u_damping", 0.995) &&
		params.RegisterFloat("u_swirl", 0.8)
}

func (p *ParticlesPass) ActionBeforeInit()       {}
func (p *ParticlesPass) ActionAfterInitFail()    {}
func (p *ParticlesPass) ActionAfterInitSucceed() { p.Reset() }

// Reset scatters the particles on a disc again.
func (p *ParticlesPass) Reset() bool {
	sbo := p.Buffer("particles")
	if sbo == nil {
		return false
	}
	data, err := binary.Append(nil, binary.LittleEndian, seedParticles(p.count, p.seed))
	if err != nil {
		core.LogError("pass %s: encoding particles: %s", p.Name(), err)
		return false
	}
	return sbo.SetBytes("data", data)
}

// Update advances the simulation clock, in seconds.
func (p *ParticlesPass) Update(time, delta float64) {
	params := p.Buffer("params")
	if params == nil {
		return
	}
	params.SetFloat("u_time", float32(time))
	// Long stalls (a dragged window) would throw everything off screen.
	params.SetFloat("u_delta", float32(min(delta, 0.05)))
}

func seedParticles(count uint32, seed uint64) []particle {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]particle, count)
	for i := range out {
		r := 0.2 + 0.7*gomath.Sqrt(rng.Float64())
		a := rng.Float64() * 2 * gomath.Pi
		x, y := float32(r*gomath.Cos(a)), float32(r*gomath.Sin(a))
		out[i] = particle{
			Pos: math.NewVec4(x, y, 0, 0),
			Vel: math.NewVec4(-y*0.3, x*0.3, 0, 0),
		}
	}
	return out
}
