package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	aerrors "git.home.luguber.info/inful/assetforge/internal/errors"
)

// DefaultFileName is the configuration file looked up when none is given.
const DefaultFileName = "assetforge.yaml"

// Config represents the application configuration
type Config struct {
	Mode    Mode          `yaml:"mode"`
	Assets  AssetsConfig  `yaml:"assets"`
	Public  PublicConfig  `yaml:"public"`
	Output  OutputConfig  `yaml:"output"`
	Release ReleaseConfig `yaml:"release"`
	Serve   ServeConfig   `yaml:"serve"`
}

// AssetsConfig describes the asset root: files that get hashed and rewritten.
type AssetsConfig struct {
	Dir          string   `yaml:"dir"`
	IgnorePrefix string   `yaml:"ignore_prefix"`     // Files starting with this are never published; "" disables
	Exclude      []string `yaml:"exclude,omitempty"` // doublestar globs matched against logical keys
}

// PublicConfig describes the pass-through tree copied verbatim.
type PublicConfig struct {
	Dir string `yaml:"dir"`
}

// OutputConfig describes the release output tree:
// <dir>/<public_dir>/ holds the public copy and <dir>/<public_dir>/<assets_dir>/ the processed assets.
type OutputConfig struct {
	Dir       string `yaml:"dir"`
	PublicDir string `yaml:"public_dir"`
	AssetsDir string `yaml:"assets_dir"`
}

// ReleaseConfig holds the release-mode switches.
type ReleaseConfig struct {
	Hashed      bool   `yaml:"hashed"`
	Flatten     bool   `yaml:"flatten"`
	Minify      bool   `yaml:"minify"`
	Precompress bool   `yaml:"precompress"`
	URLPrefix   string `yaml:"url_prefix"` // Prepended to published paths in rewritten stylesheets
	Workers     int    `yaml:"workers"`    // 0 means one per CPU
}

// ServeConfig configures the serve command.
type ServeConfig struct {
	Addr         string `yaml:"addr"`
	AssetsPrefix string `yaml:"assets_prefix"`
	LiveReload   bool   `yaml:"live_reload"`
	Metrics      bool   `yaml:"metrics"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Mode: ModeDevelopment,
		Assets: AssetsConfig{
			Dir:          "assets",
			IgnorePrefix: "_",
		},
		Public: PublicConfig{Dir: "public"},
		Output: OutputConfig{
			Dir:       "dist",
			PublicDir: "public",
			AssetsDir: "assets",
		},
		Release: ReleaseConfig{
			Hashed:    true,
			Minify:    true,
			URLPrefix: "/",
		},
		Serve: ServeConfig{
			Addr:         ":8080",
			AssetsPrefix: "/assets",
			LiveReload:   true,
		},
	}
}

// Load loads configuration from the specified file. Values not present in the
// file keep their defaults; ${VAR} references are expanded from the environment
// after .env files have been loaded.
func Load(configPath string) (*Config, error) {
	if _, err := loadEnvFile(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, aerrors.ConfigNotFound(configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, aerrors.IOError("read", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, aerrors.ConfigInvalid("yaml", err.Error())
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configPath when it exists and falls back to defaults otherwise.
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}
	if _, err := loadEnvFile(); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills fields that an explicit empty YAML value must not leave blank.
// IgnorePrefix is left alone: "" is a meaningful setting.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	c.Mode = NormalizeMode(string(c.Mode))
	if c.Assets.Dir == "" {
		c.Assets.Dir = d.Assets.Dir
	}
	if c.Public.Dir == "" {
		c.Public.Dir = d.Public.Dir
	}
	if c.Output.Dir == "" {
		c.Output.Dir = d.Output.Dir
	}
	if c.Output.PublicDir == "" {
		c.Output.PublicDir = d.Output.PublicDir
	}
	if c.Output.AssetsDir == "" {
		c.Output.AssetsDir = d.Output.AssetsDir
	}
	if c.Release.URLPrefix == "" {
		c.Release.URLPrefix = d.Release.URLPrefix
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = d.Serve.Addr
	}
	if c.Serve.AssetsPrefix == "" {
		c.Serve.AssetsPrefix = d.Serve.AssetsPrefix
	}
}

// OutputPublicPath is the directory receiving the public copy.
func (c *Config) OutputPublicPath() string {
	return filepath.Join(c.Output.Dir, c.Output.PublicDir)
}

// OutputAssetsPath is the directory receiving processed assets.
func (c *Config) OutputAssetsPath() string {
	return filepath.Join(c.Output.Dir, c.Output.PublicDir, c.Output.AssetsDir)
}

// ServedURLPrefix is the url_prefix under which the serve command exposes
// processed assets.
func (c *Config) ServedURLPrefix() string {
	return strings.TrimRight(c.Serve.AssetsPrefix, "/") + "/"
}

// URLPrefixServed reports whether stylesheet references rewritten with
// release.url_prefix resolve through the serve command's assets mount.
// Absolute and protocol-relative prefixes point elsewhere and always pass.
func (c *Config) URLPrefixServed() bool {
	p := c.Release.URLPrefix
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return true
	}
	return strings.HasPrefix(p, c.ServedURLPrefix())
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Default()
	example.Assets.Exclude = []string{"**/*.psd"}
	example.Release.URLPrefix = example.ServedURLPrefix()

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
