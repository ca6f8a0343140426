// Package config loads the toolchain configuration.
//
// Settings come from three places, highest precedence first: environment
// variables (optionally seeded from a .env file), a YAML or TOML config file,
// and built-in defaults. Everything is resolved once into a
// translate.Toolchain before the pipeline starts.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/roach88/stagerun/internal/toolexec"
	"github.com/roach88/stagerun/internal/translate"
)

// DefaultEnvFile is loaded when present and no env file is named explicitly.
const DefaultEnvFile = ".env"

// Tool settings for one external tool.
type Tool struct {
	Path      string   `yaml:"path" toml:"path"`
	ExtraArgs []string `yaml:"extra_args" toml:"extra_args"`
}

// Config is the decoded config file.
type Config struct {
	// Tools is keyed by default tool name, e.g. "llc".
	Tools         map[string]Tool `yaml:"tools" toml:"tools"`
	RuntimeLibDir string          `yaml:"runtime_lib_dir" toml:"runtime_lib_dir"`
	LinkLibs      []string        `yaml:"link_libs" toml:"link_libs"`
	ModuleName    string          `yaml:"module_name" toml:"module_name"`
	Journal       string          `yaml:"journal" toml:"journal"`
}

// toolNames lists the configurable tools in pipeline order.
var toolNames = []string{
	translate.ToolHugrMLIRTranslate,
	translate.ToolHugrMLIROpt,
	translate.ToolMLIRTranslate,
	translate.ToolLLC,
	translate.ToolClang,
}

// Load reads a config file. The format follows the extension: .yaml and .yml
// are YAML, .toml is TOML. Unknown fields and tool names are errors. Relative
// paths in the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	case ".toml":
		if err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q: use .yaml, .yml or .toml", ext)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return &cfg, nil
}

func (c *Config) validate() error {
	for name := range c.Tools {
		if !slices.Contains(toolNames, name) {
			return fmt.Errorf("unknown tool %q: must be one of %s", name, strings.Join(toolNames, ", "))
		}
	}
	return nil
}

// resolvePaths makes relative paths absolute against base. Bare tool names
// without a separator are left alone so they are still looked up on $PATH.
func (c *Config) resolvePaths(base string) {
	for name, t := range c.Tools {
		if t.Path != "" && strings.ContainsRune(t.Path, filepath.Separator) && !filepath.IsAbs(t.Path) {
			t.Path = filepath.Join(base, t.Path)
			c.Tools[name] = t
		}
	}
	if c.RuntimeLibDir != "" && !filepath.IsAbs(c.RuntimeLibDir) {
		c.RuntimeLibDir = filepath.Join(base, c.RuntimeLibDir)
	}
	if c.Journal != "" && !filepath.IsAbs(c.Journal) {
		c.Journal = filepath.Join(base, c.Journal)
	}
}

// LoadEnvFile adds the variables in path to the process environment without
// overriding variables that are already set. With required false a missing
// file is not an error.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Toolchain resolves the toolchain: environment overrides first, then the
// config file, then default tool names. A nil Config is valid.
func (c *Config) Toolchain(lookup toolexec.LookupFunc) translate.Toolchain {
	tc := translate.DefaultToolchain(lookup)
	if c == nil {
		return tc
	}

	for _, tool := range []*toolexec.Tool{&tc.GraphTranslate, &tc.Lower, &tc.LLVMTranslate, &tc.LLC, &tc.Clang} {
		settings, ok := c.Tools[tool.Name]
		if !ok {
			continue
		}
		if settings.Path != "" && !tool.FromOverride() {
			*tool = tool.WithPath(settings.Path, toolexec.OriginConfig)
		}
		tool.ExtraArgs = slices.Clone(settings.ExtraArgs)
	}
	if tc.RuntimeLibDir == "" {
		tc.RuntimeLibDir = c.RuntimeLibDir
	}
	if c.LinkLibs != nil {
		tc.LinkLibs = slices.Clone(c.LinkLibs)
	}
	tc.ModuleName = c.ModuleName
	return tc
}
