// Package config provides configuration loading for threadforge.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/threadforge/pkg/logging"
	"github.com/chazu/threadforge/pkg/params"
	"github.com/chazu/threadforge/pkg/thread"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks the environment variables read by Load.
	EnvPrefix = "THREADFORGE_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Config is the complete threadforge configuration.
type Config struct {
	Log     logging.Config `koanf:"log" yaml:"log"`
	Render  Render         `koanf:"render" yaml:"render"`
	Thread  params.Values  `koanf:"thread" yaml:"thread"`
	Presets []PresetConfig `koanf:"presets" yaml:"presets"`
}

// Render controls meshing and output.
type Render struct {
	Cells     int    `koanf:"cells" yaml:"cells"`
	OutputDir string `koanf:"output_dir" yaml:"output_dir"`
}

// PresetConfig is a user-defined preset. CutAngle is in degrees.
type PresetConfig struct {
	Name       string  `koanf:"name" yaml:"name"`
	Length     float64 `koanf:"length" yaml:"length"`
	Major      float64 `koanf:"major" yaml:"major"`
	Minor      float64 `koanf:"minor" yaml:"minor"`
	Pitch      float64 `koanf:"pitch" yaml:"pitch"`
	CutAngle   float64 `koanf:"cut_angle" yaml:"cut_angle"`
	NotchWidth float64 `koanf:"notch_width" yaml:"notch_width"`
}

// Preset converts the entry to a thread.Preset.
func (p PresetConfig) Preset() thread.Preset {
	return thread.Preset{
		Name:       p.Name,
		Length:     p.Length,
		Major:      p.Major,
		Minor:      p.Minor,
		Pitch:      p.Pitch,
		CutAngle:   thread.Degrees(p.CutAngle),
		NotchWidth: p.NotchWidth,
	}
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:    logging.DefaultConfig(),
		Render: Render{Cells: 200, OutputDir: "."},
		Thread: params.Defaults(),
	}
}

// DefaultPath returns ~/.config/threadforge/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "threadforge", "config.yaml"), nil
}

// Load reads configuration from the YAML file at path, then overrides it
// with THREADFORGE_ environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (THREADFORGE_RENDER_CELLS, THREADFORGE_THREAD_PITCH, etc.)
//  2. YAML config file
//  3. Built-in defaults
//
// An empty path uses DefaultPath. A missing file at the default path is not
// an error; a missing file at an explicit path is.
//
// Environment variables drop the prefix, lowercase, and split on the first
// underscore only:
//
//	THREADFORGE_RENDER_OUTPUT_DIR -> render.output_dir
//	THREADFORGE_THREAD_MAJOR_DIAMETER -> thread.major_diameter
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	var content []byte
	if _, err := os.Stat(path); err == nil {
		content, err = readFile(path)
		if err != nil {
			return nil, err
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return load(content)
}

// LoadBytes is Load for in-memory YAML; environment variables still apply.
func LoadBytes(content []byte) (*Config, error) {
	return load(content)
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func load(content []byte) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal over the defaults so absent keys keep their default values.
	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps THREADFORGE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if c.Render.Cells < 8 {
		return fmt.Errorf("render cells %d, need at least 8", c.Render.Cells)
	}
	cat, err := c.Catalog()
	if err != nil {
		return err
	}
	if err := params.New(cat).Validate(c.Thread); err != nil {
		return fmt.Errorf("thread: %w", err)
	}
	return nil
}

// Catalog returns the built-in presets plus the configured ones. A
// configured preset replaces a built-in of the same name.
func (c *Config) Catalog() (*thread.Catalog, error) {
	cat := thread.NewCatalog()
	for i, p := range c.Presets {
		if err := cat.Add(p.Preset()); err != nil {
			return nil, fmt.Errorf("presets[%d]: %w", i, err)
		}
	}
	return cat, nil
}
