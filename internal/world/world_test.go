package world_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/annelo/modular-character/internal/asset"
	"github.com/annelo/modular-character/internal/config"
	"github.com/annelo/modular-character/internal/modular"
	"github.com/annelo/modular-character/internal/plugin"
	"github.com/annelo/modular-character/internal/roster"
	"github.com/annelo/modular-character/internal/world"
)

func startWorld(t *testing.T, reg plugin.PluginRegistry) *world.World {
	t.Helper()
	cfg := config.Default()
	cfg.Tick = time.Millisecond
	cfg.AssetDir = "../../assets"

	w, err := world.New(cfg, reg, world.NewSource(cfg), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return w
}

func headVariant(w *world.World, name string) func() bool {
	return func() bool {
		c, err := w.Roster.Get(name)
		return err == nil && c.Built() && c.Slots[modular.Head].Variant == 1
	}
}

func TestWorld_BuildsStockCharacter(t *testing.T) {
	reg := plugin.NewDefaultRegistry()
	var rebuilt atomic.Int32
	reg.RegisterHook(plugin.HookSegmentRebuilt, func(args ...interface{}) { rebuilt.Add(1) })
	reg.RegisterCatalogVariant(modular.Head, "scifi_torso.yaml#Scene0")

	w := startWorld(t, reg)
	require.Eventually(t, w.Roster.Ready, 5*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, rebuilt.Load(), int32(4))
	assert.Equal(t, 5, w.Segments.Catalog().Len(modular.Head))

	c, err := w.Roster.Get("player")
	require.NoError(t, err)
	assert.True(t, c.Controlled)
	assert.Equal(t, "witch.yaml#Scene2", c.Slots[modular.Head].Path)
}

func TestWorld_CommandsRunOnLoop(t *testing.T) {
	w := startWorld(t, plugin.NewDefaultRegistry())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Eventually(t, w.Roster.Ready, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, w.Cycle(ctx, "player", modular.Head, 1))
	require.Eventually(t, headVariant(w, "player"), 5*time.Second, 5*time.Millisecond)

	require.NoError(t, w.Spawn(ctx, "npc"))
	assert.Error(t, w.Spawn(ctx, "npc"))
	require.Eventually(t, func() bool {
		return len(w.Roster.All()) == 2 && w.Roster.Ready()
	}, 5*time.Second, 5*time.Millisecond)

	// клавиши управляют только игроком
	w.Press(w.Bindings[modular.Head].Increment)
	require.Eventually(t, func() bool {
		c, err := w.Roster.Get("player")
		return err == nil && c.Built() && c.Slots[modular.Head].Variant == 2
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, w.Control(ctx, "npc"))
	w.Press(w.Bindings[modular.Head].Increment)
	require.Eventually(t, headVariant(w, "npc"), 5*time.Second, 5*time.Millisecond)

	require.NoError(t, w.Despawn(ctx, "npc"))
	assert.ErrorIs(t, w.Despawn(ctx, "npc"), roster.ErrNotFound)
	assert.ErrorIs(t, w.Cycle(ctx, "ghost", modular.Feet, 1), roster.ErrNotFound)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Characters = nil
	_, err := world.New(cfg, plugin.NewDefaultRegistry(), asset.NewMemorySource(nil), nil)
	assert.Error(t, err)
}

func TestNewSource(t *testing.T) {
	cfg := config.Default()
	assert.IsType(t, asset.DirSource{}, world.NewSource(cfg))
	cfg.Latency.Max = 50 * time.Millisecond
	assert.IsType(t, &asset.LatencySource{}, world.NewSource(cfg))
}
