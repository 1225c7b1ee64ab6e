package plugin_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/modular-character/internal/animation"
	"github.com/annelo/modular-character/internal/gameloop"
	"github.com/annelo/modular-character/internal/modular"
	"github.com/annelo/modular-character/internal/plugin"
)

func TestDefaultRegistry_RegisterAndRetrieve(t *testing.T) {
	reg := plugin.NewDefaultRegistry()

	// Catalog variant registration
	reg.RegisterCatalogVariant(modular.Head, "knight.yaml#Scene2")
	variants := reg.CatalogVariants()
	assert.Len(t, variants, 1, "expected one catalog variant")
	assert.Equal(t, modular.Head, variants[0].Region)
	assert.Equal(t, "knight.yaml#Scene2", variants[0].Path)

	// Game system registration
	sys := animation.NewPlaybackSystem()
	reg.RegisterGameSystem(sys)
	systems := reg.GameSystems()
	assert.Len(t, systems, 1, "expected one game system")
	assert.Equal(t, sys, systems[0])

	// Plugin metadata registration
	meta := plugin.PluginMeta{Name: "test-plugin", Version: "1.0.0", Author: "tester", Description: "desc"}
	reg.RegisterPluginMeta(meta)
	metas := reg.PluginMetas()
	assert.Len(t, metas, 1, "expected one plugin meta")
	assert.Equal(t, meta, metas[0])

	// Hook registration and invocation
	var got gameloop.Event
	reg.RegisterHook(plugin.HookSegmentRebuilt, func(args ...interface{}) {
		if len(args) == 1 {
			if ev, ok := args[0].(gameloop.Event); ok {
				got = ev
			}
		}
	})
	assert.Len(t, reg.Hooks(plugin.HookSegmentRebuilt), 1, "expected one hook for SegmentRebuilt")

	ev := gameloop.Event{Type: gameloop.EventSegmentRebuilt, Region: "head", Variant: 2}
	plugin.Fire(reg, nil, plugin.HookFor(ev), ev)
	assert.Equal(t, ev, got, "hook should have received the event")

	// Command registration and invocation
	calledCmd := false
	cmdFunc := func(args []string) (string, error) {
		calledCmd = true
		return "out: " + strings.Join(args, ","), nil
	}
	reg.RegisterCommand("testcmd", "test command", cmdFunc)
	cmds := reg.Commands()
	assert.Len(t, cmds, 1, "expected one command")
	assert.Equal(t, "testcmd", cmds[0].Name)
	assert.Equal(t, "test command", cmds[0].Description)
	out, err := cmds[0].Handler([]string{"a", "b"})
	assert.NoError(t, err)
	assert.Equal(t, "out: a,b", out)
	assert.True(t, calledCmd, "command handler should have been called")
}

func TestFire_RecoversPanickingHook(t *testing.T) {
	reg := plugin.NewDefaultRegistry()
	second := false
	reg.RegisterHook(plugin.HookSegmentLoadFailed, func(args ...interface{}) { panic("bad hook") })
	reg.RegisterHook(plugin.HookSegmentLoadFailed, func(args ...interface{}) { second = true })

	assert.NotPanics(t, func() { plugin.Fire(reg, nil, plugin.HookSegmentLoadFailed) })
	assert.True(t, second, "later hooks still run")
}

func TestApplyVariants(t *testing.T) {
	reg := plugin.NewDefaultRegistry()
	reg.RegisterCatalogVariant(modular.Feet, "knight.yaml#Scene5")
	reg.RegisterCatalogVariant(modular.Region(42), "nowhere.yaml#Scene0")

	base := modular.DefaultCatalog()
	catalog := plugin.ApplyVariants(reg, base)
	assert.Equal(t, base.Len(modular.Feet)+1, catalog.Len(modular.Feet))
	assert.Equal(t, "knight.yaml#Scene5", catalog.Path(modular.Feet, catalog.Len(modular.Feet)-1))
	assert.Equal(t, base.Len(modular.Head), catalog.Len(modular.Head))
}

func TestDefaultRegistry_MarkCoreAndClearPlugins(t *testing.T) {
	reg := plugin.NewDefaultRegistry()

	// Core registrations
	reg.RegisterCatalogVariant(modular.Body, "core.yaml#Scene3")
	reg.RegisterGameSystem(animation.NewPlaybackSystem())
	coreMeta := plugin.PluginMeta{Name: "core", Version: plugin.PluginAPIVersion}
	reg.RegisterPluginMeta(coreMeta)
	hookFunc := func(args ...interface{}) {}
	reg.RegisterHook(plugin.HookVariantRequested, hookFunc)
	cmdFunc := func(args []string) (string, error) { return "", nil }
	reg.RegisterCommand("corecmd", "core command", cmdFunc)

	// Mark core boundary
	reg.MarkCore()

	// Plugin additions
	reg.RegisterCatalogVariant(modular.Body, "plugin.yaml#Scene3")
	reg.RegisterGameSystem(animation.NewCycleSystem("clip%d", 2, 0))
	reg.RegisterPluginMeta(plugin.PluginMeta{Name: "p1", Version: plugin.PluginAPIVersion})
	reg.RegisterHook(plugin.HookInstanceAbandoned, func(args ...interface{}) {})
	reg.RegisterCommand("plugincmd", "plugin command", cmdFunc)

	// Before clear assertions
	assert.Len(t, reg.CatalogVariants(), 2)
	assert.Len(t, reg.GameSystems(), 2)
	assert.Len(t, reg.PluginMetas(), 2)
	assert.Len(t, reg.Hooks(plugin.HookVariantRequested), 1)
	assert.Len(t, reg.Hooks(plugin.HookInstanceAbandoned), 1)
	assert.Len(t, reg.Commands(), 2)

	// Clear plugin registrations
	reg.ClearPlugins()

	// After clear assertions
	assert.Len(t, reg.CatalogVariants(), 1)
	assert.Len(t, reg.GameSystems(), 1)
	assert.Len(t, reg.PluginMetas(), 1)
	assert.Len(t, reg.Hooks(plugin.HookVariantRequested), 1)
	assert.Len(t, reg.Hooks(plugin.HookInstanceAbandoned), 0)
	assert.Len(t, reg.Commands(), 1)
}

// Test loading of plugin configuration YAML into registry
func TestDefaultRegistry_LoadPluginConfig(t *testing.T) {
	type SampleConfig struct {
		Value int    `yaml:"value"`
		Name  string `yaml:"name"`
	}
	reg := plugin.NewDefaultRegistry()
	reg.RegisterPluginConfig("testplugin", &SampleConfig{})
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "testplugin.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("value: 42\nname: hello"), 0644))

	err := reg.LoadPluginConfig("testplugin", dir)
	assert.NoError(t, err)
	sc, ok := reg.PluginConfig("testplugin").(*SampleConfig)
	require.True(t, ok, "expected SampleConfig pointer")
	assert.Equal(t, 42, sc.Value)
	assert.Equal(t, "hello", sc.Name)

	// missing file keeps the sample
	reg.RegisterPluginConfig("other", &SampleConfig{Value: 7})
	require.NoError(t, reg.LoadPluginConfig("other", dir))
	assert.Equal(t, 7, reg.PluginConfig("other").(*SampleConfig).Value)

	reg.RegisterPluginConfig("byvalue", SampleConfig{})
	assert.Error(t, reg.LoadPluginConfig("byvalue", dir))
}

// Test concurrent registration and retrieval to ensure thread-safety
func TestDefaultRegistry_ConcurrentAccess(t *testing.T) {
	reg := plugin.NewDefaultRegistry()
	const N = 100
	var wg sync.WaitGroup
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.RegisterCatalogVariant(modular.Region(i%4), "v.yaml#Scene0")
		}(i)
	}
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.CatalogVariants()
		}()
	}
	wg.Wait()
	assert.Len(t, reg.CatalogVariants(), N)
}
