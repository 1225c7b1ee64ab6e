// Package animation cycles through animation clips on every animated entity.
package animation

import (
	"context"
	"fmt"
	"time"

	"github.com/annelo/modular-character/internal/asset"
	"github.com/annelo/modular-character/internal/ecs"
	"github.com/annelo/modular-character/internal/gameloop"
	"github.com/annelo/modular-character/internal/render"
)

// Player is the playback state of one animated entity.
type Player struct {
	Clip    asset.Handle
	Elapsed time.Duration
	Length  time.Duration
	Paused  bool
}

// Play restarts playback with a new clip.
func (p *Player) Play(clip asset.Handle, length time.Duration) {
	p.Clip = clip
	p.Elapsed = 0
	p.Length = length
	p.Paused = false
}

// Finished reports whether the current clip has played to its end.
func (p *Player) Finished() bool {
	return !p.Clip.IsZero() && p.Elapsed >= p.Length
}

// Cycle is the clip index last started on an entity.
type Cycle struct {
	Index int
}

// PlaybackSystem advances every unpaused player by the tick duration.
type PlaybackSystem struct {
	deps gameloop.Dependencies
}

func NewPlaybackSystem() *PlaybackSystem { return &PlaybackSystem{} }

func (s *PlaybackSystem) Name() string { return "animation_playback" }
func (s *PlaybackSystem) Phase() gameloop.Phase { return gameloop.PhasePostUpdate }

func (s *PlaybackSystem) Init(deps gameloop.Dependencies) error {
	s.deps = deps
	return nil
}

func (s *PlaybackSystem) Tick(ctx context.Context, dt time.Duration) {
	ecs.Each(s.deps.World, func(_ ecs.Entity, p *Player) {
		if p.Paused || p.Finished() {
			return
		}
		p.Elapsed += dt
	})
}

// CycleSystem attaches a Player and Cycle to every animation target on first sight,
// starts clip 0, and moves to the next clip whenever the current one finishes or is paused.
type CycleSystem struct {
	deps    gameloop.Dependencies
	pattern string
	clips   int
	length  time.Duration
}

// NewCycleSystem creates a cycler over clips named fmt.Sprintf(pattern, index).
func NewCycleSystem(pattern string, clips int, length time.Duration) *CycleSystem {
	if clips < 1 {
		clips = 1
	}
	return &CycleSystem{pattern: pattern, clips: clips, length: length}
}

func (s *CycleSystem) Name() string { return "animation_cycle" }
func (s *CycleSystem) Phase() gameloop.Phase { return gameloop.PhasePostUpdate }

func (s *CycleSystem) Init(deps gameloop.Dependencies) error {
	s.deps = deps
	return nil
}

func (s *CycleSystem) Tick(ctx context.Context, dt time.Duration) {
	w := s.deps.World
	for _, e := range ecs.Query[render.AnimationTarget](w) {
		p, seen := ecs.Get[*Player](w, e)
		cycle, _ := ecs.Get[*Cycle](w, e)
		switch {
		case !seen || cycle == nil:
			p = &Player{}
			cycle = &Cycle{}
			ecs.Insert(w, e, p)
			ecs.Insert(w, e, cycle)
		case p.Finished() || p.Paused:
			cycle.Index = (cycle.Index + 1) % s.clips
		default:
			continue
		}
		p.Play(s.deps.Assets.Ref(fmt.Sprintf(s.pattern, cycle.Index)), s.length)
	}
}
