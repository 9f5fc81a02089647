package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/lumo/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint32(1280), cfg.Width)
	assert.Len(t, cfg.Passes, 3)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumo.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
width = 640
backend = "headless"
max_frames = 10

[[passes]]
name = "grading"
kind = "quad"
resize_by_event = true
defines = { USE_LUT = "1" }
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(640), cfg.Width)
	assert.Equal(t, uint32(720), cfg.Height)
	assert.Equal(t, "headless", cfg.Backend)
	assert.Equal(t, uint64(10), cfg.MaxFrames)

	require.Len(t, cfg.Passes, 1)
	p, ok := cfg.Pass("grading")
	require.True(t, ok)
	assert.Equal(t, float32(1), p.BufferQuality)
	assert.Equal(t, "1", p.Defines["USE_LUT"])
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumo.toml")
	require.NoError(t, os.WriteFile(path, []byte("widht = 640\n"), 0o644))
	_, err := Load(path)
	assert.True(t, core.Is(err, core.ErrInvalidConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *EngineConfig)
	}{
		{"zero width", func(cfg *EngineConfig) { cfg.Width = 0 }},
		{"unknown backend", func(cfg *EngineConfig) { cfg.Backend = "metal" }},
		{"unknown level", func(cfg *EngineConfig) { cfg.LogLevel = "chatty" }},
		{"unknown kind", func(cfg *EngineConfig) { cfg.Passes[0].Kind = "mesh" }},
		{"half size", func(cfg *EngineConfig) { cfg.Passes[2].Width = 10 }},
		{"zero compute", func(cfg *EngineConfig) { cfg.Passes[0].Width = 0 }},
		{"duplicate", func(cfg *EngineConfig) { cfg.Passes[1].Name = cfg.Passes[0].Name }},
		{"no queue", func(cfg *EngineConfig) { cfg.WatchQueue = 0 }},
		{"cache is the shader dir", func(cfg *EngineConfig) { cfg.ShaderCacheDir = cfg.ShaderDir }},
		{"cache inside the shader dir", func(cfg *EngineConfig) { cfg.ShaderCacheDir = filepath.Join(cfg.ShaderDir, "cache") }},
		{"shader dir inside the cache", func(cfg *EngineConfig) { cfg.ShaderDir = filepath.Join(cfg.ShaderCacheDir, "src") }},
		{"same dir spelled differently", func(cfg *EngineConfig) { cfg.ShaderCacheDir = cfg.ShaderDir + "/./" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.True(t, core.Is(cfg.Validate(), core.ErrInvalidConfig))
		})
	}
}

func TestSiblingShaderDirsAreValid(t *testing.T) {
	cfg := Default()
	cfg.ShaderDir = filepath.Join("assets", "shaders")
	cfg.ShaderCacheDir = filepath.Join("assets", "shaders-cache")
	assert.NoError(t, cfg.Validate())
	cfg.ShaderCacheDir = ""
	assert.NoError(t, cfg.Validate())
}

func TestEncodedConfigLoadsBack(t *testing.T) {
	cfg := Default()
	cfg.Passes[1].Defines = map[string]string{"POINT_SIZE": "2.0"}
	data, err := cfg.Encode()
	require.NoError(t, err)

	back := &EngineConfig{}
	require.NoError(t, back.Decode(data))
	assert.Equal(t, cfg.Width, back.Width)
	assert.Equal(t, cfg.ShaderDir, back.ShaderDir)
	require.Len(t, back.Passes, 3)
	assert.Equal(t, "2.0", back.Passes[1].Defines["POINT_SIZE"])
	assert.NoError(t, back.Validate())
}
