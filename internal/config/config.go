// Package config загружает настройки сервера из YAML и флагов командной строки.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/annelo/modular-character/internal/input"
	"github.com/annelo/modular-character/internal/modular"
)

// Config holds everything needed to build the world and its servers.
type Config struct {
	Tick     time.Duration `yaml:"tick"`
	Workers  int           `yaml:"workers"`
	AssetDir string        `yaml:"asset_dir"`
	Latency  Latency       `yaml:"latency"`
	Log      Log           `yaml:"log"`

	GRPCAddr  string `yaml:"grpc_addr"`
	PluginDir string `yaml:"plugin_dir"`

	// Skeleton is the scene spawned under every character as its armature.
	Skeleton string `yaml:"skeleton"`
	// Catalog overrides the stock variants per region name.
	Catalog map[string][]string `yaml:"catalog"`
	Keys    map[string]KeyPair  `yaml:"keys"`

	Animation Animation `yaml:"animation"`

	// Characters are spawned at start; the first one is driven by the keyboard.
	Characters []string `yaml:"characters"`
}

// Latency configures the simulated slow asset pipeline. Zero Max disables it.
type Latency struct {
	Max  time.Duration `yaml:"max"`
	Seed int64         `yaml:"seed"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// KeyPair binds the decrement and increment keys of one region.
type KeyPair struct {
	Decrement string `yaml:"decrement"`
	Increment string `yaml:"increment"`
}

// Animation configures clip cycling on animated nodes.
type Animation struct {
	Pattern string        `yaml:"pattern"`
	Clips   int           `yaml:"clips"`
	Length  time.Duration `yaml:"length"`
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	AssetDir  string
	GRPCAddr  string
	PluginDir string
	LogLevel  string
	Workers   int
	Latency   time.Duration
	Seed      int64
}

// Default returns the stock configuration.
func Default() Config {
	catalog := make(map[string][]string)
	for r, paths := range modular.DefaultPaths() {
		catalog[r.String()] = paths
	}
	return Config{
		Tick:      16 * time.Millisecond,
		Workers:   runtime.NumCPU(),
		AssetDir:  "assets",
		Log:       Log{Level: "info"},
		GRPCAddr:  ":50051",
		PluginDir: "plugins",
		Skeleton:  "witch.yaml#Scene1",
		Catalog:   catalog,
		Keys: map[string]KeyPair{
			modular.Head.String(): {Decrement: "q", Increment: "w"},
			modular.Body.String(): {Decrement: "e", Increment: "r"},
			modular.Legs.String(): {Decrement: "t", Increment: "y"},
			modular.Feet.String(): {Decrement: "u", Increment: "i"},
		},
		Animation: Animation{
			Pattern: "witch.yaml#Animation%d",
			Clips:   2,
			Length:  2 * time.Second,
		},
		Characters: []string{"player"},
	}
}

// Load reads a YAML config file on top of Default. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	// Относительный каталог ассетов считается от файла конфигурации
	if cfg.AssetDir != "" && !filepath.IsAbs(cfg.AssetDir) {
		cfg.AssetDir = filepath.Join(filepath.Dir(path), cfg.AssetDir)
	}
	return cfg, nil
}

// Resolve applies CLI flags, which take priority when non-zero, and fills defaults.
func (c *Config) Resolve(flags Flags) {
	if flags.AssetDir != "" {
		c.AssetDir = flags.AssetDir
	}
	if flags.GRPCAddr != "" {
		c.GRPCAddr = flags.GRPCAddr
	}
	if flags.PluginDir != "" {
		c.PluginDir = flags.PluginDir
	}
	if flags.LogLevel != "" {
		c.Log.Level = flags.LogLevel
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}
	if flags.Latency > 0 {
		c.Latency.Max = flags.Latency
	}
	if flags.Seed != 0 {
		c.Latency.Seed = flags.Seed
	}

	if c.Tick <= 0 {
		c.Tick = 16 * time.Millisecond
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Animation.Clips <= 0 {
		c.Animation.Clips = 1
	}
}

// Validate reports every problem found in the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Tick <= 0 {
		errs = append(errs, errors.New("tick must be positive"))
	}
	if c.Latency.Max < 0 {
		errs = append(errs, errors.New("latency.max must not be negative"))
	}
	if c.Skeleton == "" {
		errs = append(errs, errors.New("skeleton is required"))
	}
	if _, err := c.BuildCatalog(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Bindings(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Characters) == 0 {
		errs = append(errs, errors.New("at least one character is required"))
	}
	seen := make(map[string]bool)
	for _, name := range c.Characters {
		if seen[name] {
			errs = append(errs, fmt.Errorf("duplicate character %q", name))
		}
		seen[name] = true
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// BuildCatalog converts the catalog section into a modular.Catalog.
func (c Config) BuildCatalog() (modular.Catalog, error) {
	paths := make(map[modular.Region][]string, len(c.Catalog))
	for name, list := range c.Catalog {
		r, err := modular.ParseRegion(name)
		if err != nil {
			return modular.Catalog{}, err
		}
		paths[r] = list
	}
	return modular.NewCatalog(paths)
}

// Binding is a resolved key pair of a region.
type Binding struct {
	Region    modular.Region
	Decrement input.Key
	Increment input.Key
}

// Bindings resolves the keys section in region order. Every region needs both keys
// and no key may be bound twice.
func (c Config) Bindings() ([]Binding, error) {
	used := make(map[input.Key]string)
	var out []Binding
	for _, r := range modular.Regions() {
		pair, ok := c.Keys[r.String()]
		if !ok {
			return nil, fmt.Errorf("keys: no binding for %s", r)
		}
		dec, err := parseKey(pair.Decrement)
		if err != nil {
			return nil, fmt.Errorf("keys: %s decrement: %w", r, err)
		}
		inc, err := parseKey(pair.Increment)
		if err != nil {
			return nil, fmt.Errorf("keys: %s increment: %w", r, err)
		}
		for _, k := range []input.Key{dec, inc} {
			if other, dup := used[k]; dup {
				return nil, fmt.Errorf("keys: %q bound to both %s and %s", string(k), other, r)
			}
			used[k] = r.String()
		}
		out = append(out, Binding{Region: r, Decrement: dec, Increment: inc})
	}
	for name := range c.Keys {
		if _, err := modular.ParseRegion(name); err != nil {
			return nil, fmt.Errorf("keys: %w", err)
		}
	}
	return out, nil
}

func parseKey(s string) (input.Key, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("key %q must be a single character", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return input.Key(r), nil
}
