package plugin

import (
	"encoding/json"
	"expvar"
	"fmt"
	"os"
	"path/filepath"
	pluginpkg "plugin"
	"reflect"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/annelo/modular-character/internal/gameloop"
	"github.com/annelo/modular-character/internal/modular"
)

// PluginMeta holds metadata for a plugin
type PluginMeta struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Author      string `json:"author" yaml:"author"`
	Description string `json:"description" yaml:"description"`
}

// HookType defines a named event hook
type HookType string

// Segment hook types mirror the game loop events
const (
	HookVariantRequested  = HookType(gameloop.EventVariantRequested)
	HookSegmentRebuilt    = HookType(gameloop.EventSegmentRebuilt)
	HookInstanceAbandoned = HookType(gameloop.EventInstanceAbandoned)
	HookSegmentLoadFailed = HookType(gameloop.EventSegmentLoadFailed)
	// Plugin load/unload hook types
	HookBeforePluginLoad   HookType = "BeforePluginLoad"
	HookAfterPluginLoad    HookType = "AfterPluginLoad"
	HookBeforePluginUnload HookType = "BeforePluginUnload"
	HookAfterPluginUnload  HookType = "AfterPluginUnload"
)

// HookFor returns the hook fired for a game loop event.
func HookFor(ev gameloop.Event) HookType {
	return HookType(ev.Type)
}

// HookFunc is the signature for hook handlers. args can be event-specific.
type HookFunc func(args ...interface{})

// CommandFunc is the signature for admin CLI command handlers.
type CommandFunc func(args []string) (string, error)

// CommandRegistration holds a single CLI command registration.
type CommandRegistration struct {
	// Name is the command name.
	Name string
	// Description is a brief help text for the command.
	Description string
	// Handler executes the command logic.
	Handler CommandFunc
}

// VariantRegistration is an extra segment variant contributed to a region's catalog.
type VariantRegistration struct {
	Region modular.Region
	Path   string
}

// PluginRegistry allows registration of catalog variants, game systems, hooks and commands.
type PluginRegistry interface {
	// RegisterCatalogVariant appends a scene path to the variants of a region.
	RegisterCatalogVariant(region modular.Region, path string)
	// CatalogVariants returns all registered variants in registration order.
	CatalogVariants() []VariantRegistration
	// RegisterGameSystem registers a game loop system to be ticked every tick.
	RegisterGameSystem(sys gameloop.System)
	// GameSystems returns all registered game loop systems.
	GameSystems() []gameloop.System
	// RegisterPluginMeta registers metadata for a plugin.
	RegisterPluginMeta(meta PluginMeta)
	// PluginMetas returns all registered plugin metadata.
	PluginMetas() []PluginMeta
	// RegisterHook registers a hook handler for a given hook type.
	RegisterHook(hook HookType, fn HookFunc)
	// Hooks returns all handlers registered for a hook type.
	Hooks(hook HookType) []HookFunc
	// RegisterCommand registers an admin CLI command.
	RegisterCommand(name, description string, handler CommandFunc)
	// Commands returns all registered admin CLI commands.
	Commands() []CommandRegistration
	// MarkCore marks the boundary between core and plugin registrations.
	MarkCore()
	// ClearPlugins removes all registrations added after MarkCore.
	ClearPlugins()
	// RegisterPluginConfig registers a sample config struct for a plugin.
	RegisterPluginConfig(name string, sample interface{})
	// LoadPluginConfig loads a plugin's config YAML from the given directory into the registry.
	LoadPluginConfig(name, dir string) error
	// PluginConfig returns the loaded config object for a plugin.
	PluginConfig(name string) interface{}
}

// DefaultRegistry is the default implementation of PluginRegistry.
type DefaultRegistry struct {
	// variants is a list of extra catalog variants.
	variants []VariantRegistration
	// gameSystems is a list of all registered game loop systems.
	gameSystems []gameloop.System
	// pluginMetas holds metadata for loaded plugins.
	pluginMetas []PluginMeta
	// commands holds registered admin CLI commands.
	commands []CommandRegistration
	// hooks holds registered hook handlers.
	hooks map[HookType][]HookFunc
	// configSamples maps plugin name to a sample config struct pointer.
	configSamples map[string]interface{}
	// configs maps plugin name to the loaded config object pointer.
	configs map[string]interface{}
	// mu protects all registry data structures for concurrent access.
	mu sync.RWMutex
	// coreVariantCount is the number of variants at core mark.
	coreVariantCount int
	// coreSystemCount is the number of gameSystems at core mark.
	coreSystemCount int
	// coreCommandCount is the number of commands at core mark.
	coreCommandCount int
	// corePluginMetaCount is the number of pluginMetas at core mark.
	corePluginMetaCount int
	// coreHooks is a snapshot of hooks at core mark.
	coreHooks map[HookType][]HookFunc
}

// NewDefaultRegistry returns a new DefaultRegistry instance.
func NewDefaultRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		hooks:         make(map[HookType][]HookFunc),
		configSamples: make(map[string]interface{}),
		configs:       make(map[string]interface{}),
	}
}

// RegisterCatalogVariant appends a variant to the registry.
func (r *DefaultRegistry) RegisterCatalogVariant(region modular.Region, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants = append(r.variants, VariantRegistration{Region: region, Path: path})
}

// RegisterGameSystem appends a gameloop.System to the registry.
func (r *DefaultRegistry) RegisterGameSystem(sys gameloop.System) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gameSystems = append(r.gameSystems, sys)
}

// RegisterPluginMeta appends plugin metadata to the registry.
func (r *DefaultRegistry) RegisterPluginMeta(meta PluginMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pluginMetas = append(r.pluginMetas, meta)
}

// RegisterHook appends a hook handler for a given hook type.
func (r *DefaultRegistry) RegisterHook(hook HookType, fn HookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[hook] = append(r.hooks[hook], fn)
}

// RegisterCommand appends a CLI command registration to the registry.
func (r *DefaultRegistry) RegisterCommand(name, description string, handler CommandFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, CommandRegistration{Name: name, Description: description, Handler: handler})
}

// RegisterPluginConfig registers a sample config struct for a plugin in the registry.
func (r *DefaultRegistry) RegisterPluginConfig(name string, sample interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configSamples[name] = sample
	r.configs[name] = sample
}

// LoadPluginConfig loads a plugin's YAML config from dir/name.yaml into the registry.
func (r *DefaultRegistry) LoadPluginConfig(name, dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sample, ok := r.configSamples[name]
	if !ok {
		return nil
	}
	t := reflect.TypeOf(sample)
	if t.Kind() != reflect.Ptr {
		return fmt.Errorf("config sample for %s must be a pointer to struct", name)
	}
	newPtr := reflect.New(t.Elem()).Interface()
	path := filepath.Join(dir, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, newPtr); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	r.configs[name] = newPtr
	return nil
}

// PluginConfig returns the loaded config object for a plugin, or default sample.
func (r *DefaultRegistry) PluginConfig(name string) interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[name]
}

// CatalogVariants returns all registered catalog variants.
func (r *DefaultRegistry) CatalogVariants() []VariantRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]VariantRegistration(nil), r.variants...)
}

// GameSystems returns all registered game systems.
func (r *DefaultRegistry) GameSystems() []gameloop.System {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]gameloop.System(nil), r.gameSystems...)
}

// PluginMetas returns all registered plugin metadata.
func (r *DefaultRegistry) PluginMetas() []PluginMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]PluginMeta(nil), r.pluginMetas...)
}

// Hooks returns all registered hook handlers for the given hook type.
func (r *DefaultRegistry) Hooks(hook HookType) []HookFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]HookFunc(nil), r.hooks[hook]...)
}

// Commands returns all registered CLI command registrations.
func (r *DefaultRegistry) Commands() []CommandRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]CommandRegistration(nil), r.commands...)
}

// MarkCore marks the current registry state as the core, so plugin additions can be cleared later.
func (r *DefaultRegistry) MarkCore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coreVariantCount = len(r.variants)
	r.coreSystemCount = len(r.gameSystems)
	r.coreCommandCount = len(r.commands)
	r.corePluginMetaCount = len(r.pluginMetas)
	// Snapshot hooks map
	r.coreHooks = make(map[HookType][]HookFunc, len(r.hooks))
	for k, v := range r.hooks {
		r.coreHooks[k] = append([]HookFunc{}, v...)
	}
}

// ClearPlugins removes all registrations added after the last core mark.
func (r *DefaultRegistry) ClearPlugins() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.coreVariantCount <= len(r.variants) {
		r.variants = r.variants[:r.coreVariantCount]
	}
	if r.coreSystemCount <= len(r.gameSystems) {
		r.gameSystems = r.gameSystems[:r.coreSystemCount]
	}
	if r.coreCommandCount <= len(r.commands) {
		r.commands = r.commands[:r.coreCommandCount]
	}
	if r.corePluginMetaCount <= len(r.pluginMetas) {
		r.pluginMetas = r.pluginMetas[:r.corePluginMetaCount]
	}
	// Restore hooks to core snapshot
	r.hooks = make(map[HookType][]HookFunc, len(r.coreHooks))
	for k, v := range r.coreHooks {
		r.hooks[k] = append([]HookFunc{}, v...)
	}
}

// Fire calls every handler of hook with args. A panicking handler is logged and skipped.
func Fire(reg PluginRegistry, logger *zap.SugaredLogger, hook HookType, args ...interface{}) {
	for _, h := range reg.Hooks(hook) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					hookPanicCount.Add(1)
					if logger != nil {
						logger.Errorf("panic in %s hook: %v", hook, r)
					}
				}
			}()
			h(args...)
		}()
	}
}

// ApplyVariants returns catalog extended by every registered variant.
func ApplyVariants(reg PluginRegistry, catalog modular.Catalog) modular.Catalog {
	for _, v := range reg.CatalogVariants() {
		if !v.Region.Valid() {
			continue
		}
		catalog = catalog.With(v.Region, v.Path)
	}
	return catalog
}

// PluginAPIVersion defines the current plugin API version.
const PluginAPIVersion = "1"

// PluginManager handles loading of plugins from shared object files.
type PluginManager struct {
	// Dir is the directory where plugin .so files are located.
	Dir    string
	logger *zap.SugaredLogger
	// mu protects LoadPlugins from concurrent execution.
	mu sync.Mutex
}

// NewPluginManager creates a PluginManager for a given directory.
func NewPluginManager(dir string, logger *zap.SugaredLogger) *PluginManager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PluginManager{Dir: dir, logger: logger}
}

// Metrics for plugin loading
var (
	pluginLoadCount  = expvar.NewInt("plugins_loaded")
	pluginSkipCount  = expvar.NewInt("plugins_skipped")
	pluginErrorCount = expvar.NewInt("plugins_errors")
	hookPanicCount   = expvar.NewInt("plugin_hook_panics")
)

// readMeta looks for base.json, base.yaml or base.yml next to the plugin.
func (pm *PluginManager) readMeta(base string) (PluginMeta, bool) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		metaPath := filepath.Join(pm.Dir, base+ext)
		data, err := os.ReadFile(metaPath)
		if err != nil {
			continue
		}
		var meta PluginMeta
		if ext == ".json" {
			err = json.Unmarshal(data, &meta)
		} else {
			err = yaml.Unmarshal(data, &meta)
		}
		if err != nil {
			pm.logger.Warnf("failed to parse plugin metadata %s: %v", metaPath, err)
			continue
		}
		return meta, true
	}
	return PluginMeta{}, false
}

// LoadPlugins loads all plugins in pm.Dir and invokes their Register function.
func (pm *PluginManager) LoadPlugins(reg PluginRegistry) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	files, err := os.ReadDir(pm.Dir)
	if err != nil {
		pluginErrorCount.Add(1)
		return fmt.Errorf("cannot read plugin directory %s: %w", pm.Dir, err)
	}
	for _, f := range files {
		if filepath.Ext(f.Name()) != ".so" {
			continue
		}
		base := strings.TrimSuffix(f.Name(), ".so")
		if meta, ok := pm.readMeta(base); ok {
			// Version check
			if meta.Version != PluginAPIVersion {
				pm.logger.Warnf("skipping plugin %s: version mismatch (got %s, expected %s)", meta.Name, meta.Version, PluginAPIVersion)
				pluginSkipCount.Add(1)
				continue
			}
			reg.RegisterPluginMeta(meta)
		}
		pluginPath := filepath.Join(pm.Dir, f.Name())
		Fire(reg, pm.logger, HookBeforePluginLoad, pluginPath)
		p, err := pluginpkg.Open(pluginPath)
		if err != nil {
			pluginErrorCount.Add(1)
			return fmt.Errorf("failed to open plugin %s: %w", pluginPath, err)
		}
		sym, err := p.Lookup("Register")
		if err != nil {
			// Skip plugins without Register function
			pluginErrorCount.Add(1)
			pm.logger.Warnf("no Register symbol in %s: %v", pluginPath, err)
			continue
		}
		pm.register(reg, sym, base, pluginPath)
	}
	return nil
}

// register invokes the plugin's Register symbol, catching panics.
func (pm *PluginManager) register(reg PluginRegistry, sym pluginpkg.Symbol, base, pluginPath string) {
	defer func() {
		if r := recover(); r != nil {
			pluginErrorCount.Add(1)
			pm.logger.Errorf("panic in plugin %s Register: %v", pluginPath, r)
		}
	}()
	registerFunc, ok := sym.(func(PluginRegistry))
	if !ok {
		pluginErrorCount.Add(1)
		pm.logger.Errorf("invalid Register signature in %s", pluginPath)
		return
	}
	registerFunc(reg)
	if err := reg.LoadPluginConfig(base, pm.Dir); err != nil {
		pluginErrorCount.Add(1)
		pm.logger.Errorf("failed to load config for plugin %s: %v", base, err)
	}
	pluginLoadCount.Add(1)
	Fire(reg, pm.logger, HookAfterPluginLoad, pluginPath)
}

// UnloadPlugins triggers unload hooks for all loaded plugins.
func (pm *PluginManager) UnloadPlugins(reg PluginRegistry) {
	for _, meta := range reg.PluginMetas() {
		Fire(reg, pm.logger, HookBeforePluginUnload, meta)
	}
	for _, meta := range reg.PluginMetas() {
		Fire(reg, pm.logger, HookAfterPluginUnload, meta)
	}
}

// ReloadPlugins unloads existing plugins and reloads them.
func (pm *PluginManager) ReloadPlugins(reg PluginRegistry) error {
	pm.UnloadPlugins(reg)
	reg.ClearPlugins()
	return pm.LoadPlugins(reg)
}
