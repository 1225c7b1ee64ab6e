// Package scene instantiates loaded scene assets as batches of entities.
package scene

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/annelo/modular-character/internal/asset"
	"github.com/annelo/modular-character/internal/ecs"
	"github.com/annelo/modular-character/internal/render"
)

// InstanceID identifies one scene instance.
type InstanceID = uuid.UUID

// State is the lifecycle state of an instance.
type State int

const (
	Unknown State = iota
	Pending
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type instance struct {
	handle   asset.Handle
	parent   ecs.Entity
	state    State
	entities []ecs.Entity
}

// Spawner turns scene handles into entities once their assets are loaded.
// It is owned by the game loop goroutine.
type Spawner struct {
	assets    *asset.Server
	world     *ecs.World
	logger    *zap.SugaredLogger
	instances map[InstanceID]*instance
	queue     []InstanceID
}

// NewSpawner creates a spawner writing into world.
func NewSpawner(world *ecs.World, assets *asset.Server, logger *zap.SugaredLogger) *Spawner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Spawner{
		assets:    assets,
		world:     world,
		logger:    logger,
		instances: make(map[InstanceID]*instance),
	}
}

// Spawn queues a top-level instance of h.
func (s *Spawner) Spawn(h asset.Handle) InstanceID {
	return s.SpawnAsChild(h, ecs.Invalid)
}

// SpawnAsChild queues an instance whose root nodes are parented under parent.
func (s *Spawner) SpawnAsChild(h asset.Handle, parent ecs.Entity) InstanceID {
	id := uuid.New()
	s.instances[id] = &instance{handle: h, parent: parent, state: Pending}
	s.queue = append(s.queue, id)
	return id
}

// State reports the state of an instance. Despawned instances are Unknown.
func (s *Spawner) State(id InstanceID) State {
	if inst, ok := s.instances[id]; ok {
		return inst.state
	}
	return Unknown
}

// InstanceIsReady reports whether every entity of the instance has been spawned.
func (s *Spawner) InstanceIsReady(id InstanceID) bool {
	return s.State(id) == Ready
}

// InstanceFailed reports whether the instance's asset failed to load.
func (s *Spawner) InstanceFailed(id InstanceID) bool {
	return s.State(id) == Failed
}

// IterInstanceEntities returns the entities of a ready instance in spawn order.
func (s *Spawner) IterInstanceEntities(id InstanceID) []ecs.Entity {
	inst, ok := s.instances[id]
	if !ok {
		return nil
	}
	out := make([]ecs.Entity, len(inst.entities))
	copy(out, inst.entities)
	return out
}

// DespawnInstance forgets the instance and despawns whatever it spawned.
// A pending instance is dropped before it materialises.
func (s *Spawner) DespawnInstance(id InstanceID) {
	inst, ok := s.instances[id]
	if !ok {
		return
	}
	delete(s.instances, id)
	for _, e := range inst.entities {
		s.world.DespawnRecursive(e)
	}
}

// Pending returns the number of instances still waiting for their asset.
func (s *Spawner) Pending() int {
	n := 0
	for _, id := range s.queue {
		if _, ok := s.instances[id]; ok {
			n++
		}
	}
	return n
}

// Update materialises queued instances whose assets have loaded. Instances whose
// asset failed are marked Failed and left for their owner to despawn.
func (s *Spawner) Update() {
	queue := s.queue
	s.queue = s.queue[:0:0]
	for _, id := range queue {
		inst, ok := s.instances[id]
		if !ok {
			continue
		}
		switch s.assets.State(inst.handle) {
		case asset.Loaded:
			sc, ok := s.assets.Scene(inst.handle)
			if !ok {
				s.logger.Errorf("asset %s is loaded but is not a scene", inst.handle.Path())
				inst.state = Failed
				continue
			}
			s.instantiate(inst, sc)
			inst.state = Ready
		case asset.Failed:
			inst.state = Failed
		default:
			s.queue = append(s.queue, id)
		}
	}
}

func (s *Spawner) instantiate(inst *instance, sc *asset.Scene) {
	w := s.world
	nodes := make([]ecs.Entity, len(sc.Nodes))
	for i, n := range sc.Nodes {
		e := w.Spawn()
		nodes[i] = e
		inst.entities = append(inst.entities, e)
		if n.Name != "" {
			ecs.Insert(w, e, ecs.Name(n.Name))
		}
		if n.Animated {
			ecs.Insert(w, e, render.AnimationTarget{})
		}
	}
	for i, n := range sc.Nodes {
		for _, c := range n.Children {
			if err := w.AddChild(nodes[i], nodes[c]); err != nil {
				s.logger.Warnf("scene %s: cannot parent node %d under %d: %v", inst.handle.Path(), c, i, err)
			}
		}
	}
	for i, n := range sc.Nodes {
		for _, p := range n.Primitives {
			e := w.Spawn()
			inst.entities = append(inst.entities, e)
			if p.Name != "" {
				ecs.Insert(w, e, ecs.Name(p.Name))
			}
			joints := make([]ecs.Entity, len(p.Joints))
			for k, j := range p.Joints {
				joints[k] = nodes[j]
			}
			ecs.Insert(w, e, render.Mesh3d{Mesh: p.Mesh, Material: p.Material})
			ecs.Insert(w, e, render.Aabb{Center: p.Center, HalfExtents: p.HalfExtents})
			ecs.Insert(w, e, render.SkinnedMesh{InverseBindposes: p.InverseBindposes, Joints: joints})
			_ = w.AddChild(nodes[i], e)
		}
	}
	if inst.parent == ecs.Invalid {
		return
	}
	if !w.Alive(inst.parent) {
		s.logger.Warnf("scene %s: parent %v no longer exists, spawning at top level", inst.handle.Path(), inst.parent)
		return
	}
	for _, r := range sc.Roots() {
		_ = w.AddChild(inst.parent, nodes[r])
	}
}
