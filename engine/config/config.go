package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/lumo/engine/core"
)

// Pass kinds a PassConfig may name.
const (
	PassKindQuad    = "quad"
	PassKindVertex  = "vertex"
	PassKindCompute = "compute"
	PassKindRtx     = "rtx"
)

type EngineConfig struct {
	Name     string `toml:"name"`
	Width    uint32 `toml:"width"`
	Height   uint32 `toml:"height"`
	LogLevel string `toml:"log_level"`
	// "vulkan" or "headless".
	Backend        string `toml:"backend"`
	Validation     bool   `toml:"validation"`
	PreferDiscrete bool   `toml:"prefer_discrete"`
	ShaderDir      string `toml:"shader_dir"`
	ShaderCacheDir string `toml:"shader_cache_dir"`
	Glslc          string `toml:"glslc"`
	// Zero runs until the window closes.
	MaxFrames uint64 `toml:"max_frames"`
	// Capacity of the changed shader file queue.
	WatchQueue int `toml:"watch_queue"`
	// XML state restored at startup and written at shutdown, when set.
	StateFile string `toml:"state_file"`

	Passes []PassConfig `toml:"passes"`
}

type PassConfig struct {
	Name          string            `toml:"name"`
	Kind          string            `toml:"kind"`
	Width         uint32            `toml:"width"`
	Height        uint32            `toml:"height"`
	ResizeByEvent bool              `toml:"resize_by_event"`
	ResizeByHand  bool              `toml:"resize_by_hand"`
	BufferQuality float32           `toml:"buffer_quality"`
	Defines       map[string]string `toml:"defines"`
	// Image file sampled by the pass, for passes that take one.
	Texture string `toml:"texture"`
	// Disabled passes are built but never executed.
	Disabled bool `toml:"disabled"`
}

func Default() *EngineConfig {
	return &EngineConfig{
		Name:           "Lumo",
		Width:          1280,
		Height:         720,
		LogLevel:       "info",
		Backend:        "vulkan",
		ShaderDir:      "assets/shaders",
		ShaderCacheDir: ".cache/shaders",
		Glslc:          "glslc",
		WatchQueue:     256,
		Passes: []PassConfig{
			{Name: "particles", Kind: PassKindCompute, Width: 4096, Height: 1, BufferQuality: 1},
			{Name: "points", Kind: PassKindVertex, ResizeByEvent: true, BufferQuality: 1},
			{Name: "grading", Kind: PassKindQuad, ResizeByEvent: true, BufferQuality: 1},
		},
	}
}

// Load overlays the file at path on top of Default. An empty path returns the
// defaults.
func Load(path string) (*EngineConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := cfg.Decode(data); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	core.LogDebug("configuration loaded from %s", path)
	return cfg, cfg.Validate()
}

// Decode overlays TOML data on cfg. Unknown keys are rejected.
func (cfg *EngineConfig) Decode(data []byte) error {
	var probe struct {
		Passes []PassConfig `toml:"passes"`
	}
	if err := toml.Unmarshal(data, &probe); err != nil {
		return errors.Wrap(core.ErrInvalidConfig, err.Error())
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	// A file listing passes replaces the default list instead of merging into it.
	if len(probe.Passes) > 0 {
		cfg.Passes = nil
	}
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return errors.Wrap(core.ErrInvalidConfig, strict.String())
		}
		return errors.Wrap(core.ErrInvalidConfig, err.Error())
	}
	for i := range cfg.Passes {
		if cfg.Passes[i].BufferQuality == 0 {
			cfg.Passes[i].BufferQuality = 1
		}
	}
	return nil
}

func (cfg *EngineConfig) Validate() error {
	if cfg.Width == 0 || cfg.Height == 0 {
		return errors.Wrapf(core.ErrInvalidConfig, "window size %dx%d", cfg.Width, cfg.Height)
	}
	switch strings.ToLower(cfg.Backend) {
	case "vulkan", "headless":
	default:
		return errors.Wrapf(core.ErrInvalidConfig, "unknown backend %q", cfg.Backend)
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Wrapf(core.ErrInvalidConfig, "unknown log level %q", cfg.LogLevel)
	}
	if cfg.WatchQueue < 1 {
		return errors.Wrapf(core.ErrInvalidConfig, "watch queue of %d", cfg.WatchQueue)
	}
	// The compiler writes expanded sources into the cache dir, which must
	// never overwrite or sit among the watched ones.
	if overlaps(cfg.ShaderDir, cfg.ShaderCacheDir) {
		return errors.Wrapf(core.ErrInvalidConfig, "shader cache dir %q overlaps shader dir %q", cfg.ShaderCacheDir, cfg.ShaderDir)
	}
	names := make(map[string]bool, len(cfg.Passes))
	for _, p := range cfg.Passes {
		if err := p.Validate(); err != nil {
			return err
		}
		if names[p.Name] {
			return errors.Wrapf(core.ErrInvalidConfig, "pass %q declared twice", p.Name)
		}
		names[p.Name] = true
	}
	return nil
}

// overlaps reports whether a and b are the same directory or one holds the other.
func overlaps(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	within := func(parent, child string) bool {
		rel, err := filepath.Rel(parent, child)
		return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
	}
	return within(absA, absB) || within(absB, absA)
}

func (p PassConfig) Validate() error {
	if p.Name == "" {
		return errors.Wrap(core.ErrInvalidConfig, "pass without a name")
	}
	switch p.Kind {
	case PassKindQuad, PassKindVertex, PassKindRtx:
		// Zero follows the window.
		if (p.Width == 0) != (p.Height == 0) {
			return errors.Wrapf(core.ErrInvalidConfig, "pass %q: size %dx%d", p.Name, p.Width, p.Height)
		}
	case PassKindCompute:
		if p.Width == 0 || p.Height == 0 {
			return errors.Wrapf(core.ErrInvalidConfig, "pass %q: compute size %dx%d", p.Name, p.Width, p.Height)
		}
	default:
		return errors.Wrapf(core.ErrInvalidConfig, "pass %q: unknown kind %q", p.Name, p.Kind)
	}
	if p.BufferQuality < 0 {
		return errors.Wrapf(core.ErrInvalidConfig, "pass %q: buffer quality %g", p.Name, p.BufferQuality)
	}
	return nil
}

// Pass returns the configuration of the named pass.
func (cfg *EngineConfig) Pass(name string) (PassConfig, bool) {
	for _, p := range cfg.Passes {
		if p.Name == name {
			return p, true
		}
	}
	return PassConfig{}, false
}

// Encode writes cfg as TOML.
func (cfg *EngineConfig) Encode() ([]byte, error) {
	return toml.Marshal(cfg)
}
