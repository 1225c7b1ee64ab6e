package animation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/modular-character/internal/animation"
	"github.com/annelo/modular-character/internal/asset"
	"github.com/annelo/modular-character/internal/ecs"
	"github.com/annelo/modular-character/internal/gameloop"
	"github.com/annelo/modular-character/internal/render"
)

func TestCycleSystem_AdvancesWhenClipFinishes(t *testing.T) {
	w := ecs.NewWorld()
	assets := asset.NewServer(asset.NewMemorySource(nil))
	t.Cleanup(assets.Close)

	target := w.Spawn()
	ecs.Insert(w, target, render.AnimationTarget{})
	plain := w.Spawn()

	loop := gameloop.NewLoop(time.Millisecond, gameloop.Dependencies{World: w, Assets: assets},
		animation.NewPlaybackSystem(),
		animation.NewCycleSystem("anim.yaml#Animation%d", 3, 100*time.Millisecond),
	)
	step := func() { loop.Step(context.Background(), 60*time.Millisecond) }

	step()
	p, ok := ecs.Get[*animation.Player](w, target)
	require.True(t, ok)
	assert.Equal(t, "anim.yaml#Animation0", p.Clip.Path())
	assert.False(t, ecs.Has[*animation.Player](w, plain))

	step()
	assert.Equal(t, 60*time.Millisecond, p.Elapsed)

	step()
	cycle, _ := ecs.Get[*animation.Cycle](w, target)
	assert.Equal(t, 1, cycle.Index)
	assert.Equal(t, "anim.yaml#Animation1", p.Clip.Path())
	assert.Zero(t, p.Elapsed)
}

func TestCycleSystem_WrapsAndSkipsPaused(t *testing.T) {
	w := ecs.NewWorld()
	assets := asset.NewServer(asset.NewMemorySource(nil))
	t.Cleanup(assets.Close)
	target := w.Spawn()
	ecs.Insert(w, target, render.AnimationTarget{})

	loop := gameloop.NewLoop(time.Millisecond, gameloop.Dependencies{World: w, Assets: assets},
		animation.NewCycleSystem("clip%d", 2, time.Second),
	)
	loop.Step(context.Background(), time.Millisecond)
	p, _ := ecs.Get[*animation.Player](w, target)
	cycle, _ := ecs.Get[*animation.Cycle](w, target)

	p.Paused = true
	loop.Step(context.Background(), time.Millisecond)
	assert.Equal(t, 1, cycle.Index)
	assert.False(t, p.Paused)

	p.Paused = true
	loop.Step(context.Background(), time.Millisecond)
	assert.Equal(t, 0, cycle.Index)
	assert.Equal(t, "clip0", p.Clip.Path())

	// состояние уходит вместе с сущностью
	w.Despawn(target)
	assert.False(t, ecs.Has[*animation.Cycle](w, target))
}

func TestPlayer_Finished(t *testing.T) {
	var p animation.Player
	assert.False(t, p.Finished())
	p.Elapsed = time.Second
	assert.False(t, p.Finished(), "no clip")
}
