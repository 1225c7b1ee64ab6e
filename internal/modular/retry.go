package modular

import (
	"context"
	"time"

	"github.com/annelo/modular-character/internal/ecs"
	"github.com/annelo/modular-character/internal/gameloop"
)

// RetrySystem re-flags slots whose instance was not ready so the update engine
// checks them again on the next tick. It never issues a new load.
type RetrySystem struct {
	svc *Service
}

func NewRetrySystem(svc *Service) *RetrySystem { return &RetrySystem{svc: svc} }

func (r *RetrySystem) Name() string { return "segment_retry" }
func (r *RetrySystem) Phase() gameloop.Phase { return gameloop.PhasePostUpdate }
func (r *RetrySystem) Init(deps gameloop.Dependencies) error { return nil }

func (r *RetrySystem) Tick(ctx context.Context, dt time.Duration) {
	for _, ev := range r.svc.drainResets() {
		// персонаж мог быть удалён между тиками
		if !ecs.Has[*Segments](r.svc.world, ev.Entity) {
			continue
		}
		r.svc.MarkChanged(ev.Entity, ev.Region)
		segmentRetries.Add(1)
	}
}
