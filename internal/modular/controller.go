package modular

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/annelo/modular-character/internal/ecs"
	"github.com/annelo/modular-character/internal/gameloop"
	"github.com/annelo/modular-character/internal/input"
)

// Controlled marks the character driven by keyboard cycle controllers.
type Controlled struct{}

// CycleController maps two keys to stepping one region's variant of the controlled character.
// When both keys go down in the same tick the increment wins.
type CycleController struct {
	svc    *Service
	region Region
	dec    input.Key
	inc    input.Key
	input  *input.ButtonInput
	logger *zap.SugaredLogger
}

func NewCycleController(svc *Service, region Region, dec, inc input.Key) *CycleController {
	return &CycleController{svc: svc, region: region, dec: dec, inc: inc, logger: svc.logger}
}

func (c *CycleController) Name() string { return "cycle_" + c.region.String() }
func (c *CycleController) Phase() gameloop.Phase { return gameloop.PhaseControl }

func (c *CycleController) Init(deps gameloop.Dependencies) error {
	c.input = deps.Input
	if deps.Logger != nil {
		c.logger = deps.Logger
	}
	return nil
}

func (c *CycleController) Tick(ctx context.Context, dt time.Duration) {
	if c.input == nil {
		return
	}
	var delta int
	switch {
	case c.input.JustPressed(c.inc):
		delta = 1
	case c.input.JustPressed(c.dec):
		delta = -1
	default:
		return
	}

	owner, ok := c.controlled()
	if !ok {
		return
	}
	if err := c.svc.RequestVariant(owner, c.region, delta); err != nil {
		c.logger.Errorf("cycle %s: %v", c.region, err)
	}
}

// controlled finds the one character carrying both Controlled and Segments.
func (c *CycleController) controlled() (ecs.Entity, bool) {
	w := c.svc.world
	var found []ecs.Entity
	for _, e := range ecs.Query[Controlled](w) {
		if ecs.Has[*Segments](w, e) {
			found = append(found, e)
		}
	}
	if len(found) != 1 {
		c.logger.Errorf("cycle %s: expected exactly one controlled character, found %d", c.region, len(found))
		return ecs.Invalid, false
	}
	return found[0], true
}
