package modular

import (
	"errors"
	"expvar"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/annelo/modular-character/internal/asset"
	"github.com/annelo/modular-character/internal/ecs"
	"github.com/annelo/modular-character/internal/gameloop"
	"github.com/annelo/modular-character/internal/scene"
)

// ErrNotCharacter is returned when an entity carries no Segments.
var ErrNotCharacter = errors.New("modular: entity is not a modular character")

// Metrics for segment swaps
var (
	segmentsRebuilt     = expvar.NewInt("segments_rebuilt")
	segmentRetries      = expvar.NewInt("segment_retries")
	instancesAbandoned  = expvar.NewInt("instances_abandoned")
	segmentLoadFailures = expvar.NewInt("segment_load_failures")
)

// Config wires a Service to its collaborators.
type Config struct {
	World    *ecs.World
	Assets   *asset.Server
	Scenes   *scene.Spawner
	Catalog  Catalog
	Skeleton string
	Logger   *zap.SugaredLogger
	Emit     func(gameloop.Event)
}

// Service owns slot state transitions shared by the cycle controllers, the
// update engine and the retry system. It runs on the game loop goroutine.
type Service struct {
	world    *ecs.World
	assets   *asset.Server
	scenes   *scene.Spawner
	catalog  Catalog
	skeleton string
	logger   *zap.SugaredLogger
	emit     func(gameloop.Event)

	dirty  *dirtySet
	resets []ResetChanged
}

// NewService creates a service. A nil logger is replaced by a no-op logger and
// a catalog with an empty region by DefaultCatalog.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	catalog := cfg.Catalog
	if !catalog.complete() {
		logger.Warn("catalog has a region without variants, using default catalog")
		catalog = DefaultCatalog()
	}
	return &Service{
		world:    cfg.World,
		assets:   cfg.Assets,
		scenes:   cfg.Scenes,
		catalog:  catalog,
		skeleton: cfg.Skeleton,
		logger:   logger,
		emit:     cfg.Emit,
		dirty:    newDirtySet(),
	}
}

// Catalog returns the variants available per region.
func (s *Service) Catalog() Catalog { return s.catalog }

// SpawnCharacter creates a character entity named name, starts loading variant 0
// of every region and spawns the skeleton as a child instance.
func (s *Service) SpawnCharacter(name string) ecs.Entity {
	e := s.world.Spawn()
	ecs.Insert(s.world, e, ecs.Name(name))
	segs := NewSegments()
	ecs.Insert(s.world, e, segs)
	for _, r := range Regions() {
		s.load(e, segs.Slot(r), 0)
	}
	if s.skeleton != "" {
		segs.Skeleton = s.scenes.SpawnAsChild(s.assets.Load(s.skeleton), e)
	}
	return e
}

// DespawnCharacter drops every outstanding load of the character and despawns it
// with its skeleton and segments.
func (s *Service) DespawnCharacter(owner ecs.Entity) error {
	segs, ok := ecs.Get[*Segments](s.world, owner)
	if !ok {
		return ErrNotCharacter
	}
	for _, r := range Regions() {
		if slot := segs.Slot(r); slot.HasPending() {
			s.scenes.DespawnInstance(slot.Pending)
			slot.Pending = uuid.Nil
		}
	}
	if segs.Skeleton != uuid.Nil {
		s.scenes.DespawnInstance(segs.Skeleton)
	}
	s.world.DespawnRecursive(owner)
	return nil
}

// Control makes owner the only character driven by the cycle controllers.
func (s *Service) Control(owner ecs.Entity) error {
	if !ecs.Has[*Segments](s.world, owner) {
		return ErrNotCharacter
	}
	for _, e := range ecs.Query[Controlled](s.world) {
		ecs.Remove[Controlled](s.world, e)
	}
	ecs.Insert(s.world, owner, Controlled{})
	return nil
}

// Characters returns every entity carrying Segments in spawn order.
func (s *Service) Characters() []ecs.Entity {
	return ecs.Query[*Segments](s.world)
}

// Segments returns the slots of a character.
func (s *Service) Segments(owner ecs.Entity) (*Segments, error) {
	segs, ok := ecs.Get[*Segments](s.world, owner)
	if !ok {
		return nil, ErrNotCharacter
	}
	return segs, nil
}

func (s *Service) slot(owner ecs.Entity, r Region) (*Slot, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRegion, r)
	}
	segs, err := s.Segments(owner)
	if err != nil {
		return nil, err
	}
	return segs.Slot(r), nil
}

// RequestVariant steps the slot of r by delta with wraparound and starts loading
// the new variant. A load already in flight for the slot is abandoned.
func (s *Service) RequestVariant(owner ecs.Entity, r Region, delta int) error {
	slot, err := s.slot(owner, r)
	if err != nil {
		return err
	}
	s.replace(owner, slot, slot.Next(delta, s.catalog.Len(r)))
	return nil
}

// SetVariant loads an absolute variant index, wrapped into range.
func (s *Service) SetVariant(owner ecs.Entity, r Region, id int) error {
	slot, err := s.slot(owner, r)
	if err != nil {
		return err
	}
	s.replace(owner, slot, Wrap(id, s.catalog.Len(r)))
	return nil
}

func (s *Service) replace(owner ecs.Entity, slot *Slot, id int) {
	if slot.HasPending() {
		s.scenes.DespawnInstance(slot.Pending)
		instancesAbandoned.Add(1)
		s.logger.Debugf("abandoned %s variant %d load for %v", slot.Region, slot.VariantID, owner)
		s.emitEvent(gameloop.Event{
			Type:      gameloop.EventInstanceAbandoned,
			Character: owner,
			Region:    slot.Region.String(),
			Variant:   slot.VariantID,
			Path:      s.catalog.Path(slot.Region, slot.VariantID),
		})
		slot.Pending = uuid.Nil
	}
	s.load(owner, slot, id)
}

func (s *Service) load(owner ecs.Entity, slot *Slot, id int) {
	slot.VariantID = id
	path := s.catalog.Path(slot.Region, id)
	slot.Pending = s.scenes.Spawn(s.assets.Load(path))
	s.MarkChanged(owner, slot.Region)
	s.emitEvent(gameloop.Event{
		Type:      gameloop.EventVariantRequested,
		Character: owner,
		Region:    slot.Region.String(),
		Variant:   id,
		Path:      path,
	})
}

// MarkChanged flags a slot for the next update engine pass without touching its state.
func (s *Service) MarkChanged(owner ecs.Entity, r Region) {
	s.dirty.mark(slotKey{owner: owner, region: r})
}

// IsChanged reports whether a slot is waiting for the update engine.
func (s *Service) IsChanged(owner ecs.Entity, r Region) bool {
	return s.dirty.contains(slotKey{owner: owner, region: r})
}

func (s *Service) sendReset(ev ResetChanged) {
	s.resets = append(s.resets, ev)
}

func (s *Service) drainResets() []ResetChanged {
	out := s.resets
	s.resets = nil
	return out
}

// PendingResets returns the number of retry signals not yet consumed.
func (s *Service) PendingResets() int { return len(s.resets) }

func (s *Service) emitEvent(ev gameloop.Event) {
	if s.emit != nil {
		s.emit(ev)
	}
}

func sortKeys(keys []slotKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].owner != keys[j].owner {
			return keys[i].owner < keys[j].owner
		}
		return keys[i].region < keys[j].region
	})
}
