package modular

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/annelo/modular-character/internal/ecs"
	"github.com/annelo/modular-character/internal/gameloop"
	"github.com/annelo/modular-character/internal/render"
	"github.com/annelo/modular-character/internal/scene"
)

// UpdateEngine rebuilds every slot flagged changed once its pending instance is ready.
type UpdateEngine struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewUpdateEngine(svc *Service) *UpdateEngine {
	return &UpdateEngine{svc: svc, logger: svc.logger}
}

func (u *UpdateEngine) Name() string { return "segment_update" }
func (u *UpdateEngine) Phase() gameloop.Phase { return gameloop.PhaseUpdate }

func (u *UpdateEngine) Init(deps gameloop.Dependencies) error {
	if deps.Logger != nil {
		u.logger = deps.Logger
	}
	return nil
}

func (u *UpdateEngine) Tick(ctx context.Context, dt time.Duration) {
	w := u.svc.world
	for _, key := range u.svc.dirty.drain() {
		segs, ok := ecs.Get[*Segments](w, key.owner)
		if !ok {
			continue
		}
		u.process(key.owner, segs, segs.Slot(key.region))
	}
}

func (u *UpdateEngine) process(owner ecs.Entity, segs *Segments, slot *Slot) {
	if !slot.HasPending() {
		return
	}
	scenes := u.svc.scenes
	switch scenes.State(slot.Pending) {
	case scene.Pending:
		u.retry(owner, slot)
		return
	case scene.Failed, scene.Unknown:
		u.abandonFailed(owner, slot)
		return
	}
	// Кости скелета должны существовать, иначе суставы сегмента останутся непривязанными.
	if segs.Skeleton != uuid.Nil && scenes.State(segs.Skeleton) == scene.Pending {
		u.retry(owner, slot)
		return
	}
	u.rebuild(owner, slot)
}

func (u *UpdateEngine) retry(owner ecs.Entity, slot *Slot) {
	u.svc.sendReset(ResetChanged{Entity: owner, Region: slot.Region})
}

func (u *UpdateEngine) abandonFailed(owner ecs.Entity, slot *Slot) {
	path := u.svc.catalog.Path(slot.Region, slot.VariantID)
	u.logger.Errorf("segment %s variant %d (%s) of %v failed to load, keeping current meshes",
		slot.Region, slot.VariantID, path, owner)
	u.svc.scenes.DespawnInstance(slot.Pending)
	slot.Pending = uuid.Nil
	segmentLoadFailures.Add(1)
	u.svc.emitEvent(gameloop.Event{
		Type:      gameloop.EventSegmentLoadFailed,
		Character: owner,
		Region:    slot.Region.String(),
		Variant:   slot.VariantID,
		Path:      path,
	})
}

func (u *UpdateEngine) rebuild(owner ecs.Entity, slot *Slot) {
	w := u.svc.world
	scenes := u.svc.scenes

	// Delete old
	u.logger.Debugf("deleting old %s segment of %v (%d entities)", slot.Region, owner, len(slot.Entities))
	if len(slot.Entities) > 0 {
		w.RemoveChildren(owner, slot.Entities...)
	}
	for _, e := range slot.Entities {
		w.DespawnRecursive(e)
	}
	slot.Entities = nil

	// Group primitives by mesh node
	groups := make(map[ecs.Entity][]ecs.Entity)
	var meshes []ecs.Entity
	for _, e := range scenes.IterInstanceEntities(slot.Pending) {
		if !render.IsPrimitive(w, e) {
			continue
		}
		parent, ok := w.Parent(e)
		if !ok {
			u.logger.Errorf("mesh primitive %v did not have a parent", e)
			continue
		}
		if _, seen := groups[parent]; !seen {
			meshes = append(meshes, parent)
		}
		groups[parent] = append(groups[parent], e)
	}
	sort.Slice(meshes, func(i, j int) bool { return meshes[i] < meshes[j] })

	// Rebuild mesh hierarchy; containers are attached after all joints are resolved
	// so the bone search only sees the skeleton.
	for _, mesh := range meshes {
		container := w.Spawn()
		if name, ok := ecs.NameOf(w, mesh); ok {
			ecs.Insert(w, container, ecs.Name(name))
		} else {
			u.logger.Warnf("mesh %v did not have a name", mesh)
		}
		for _, prim := range groups[mesh] {
			_ = w.AddChild(container, u.clonePrimitive(owner, prim))
		}
		slot.Entities = append(slot.Entities, container)
	}
	for _, container := range slot.Entities {
		_ = w.AddChild(owner, container)
	}

	path := u.svc.catalog.Path(slot.Region, slot.VariantID)
	scenes.DespawnInstance(slot.Pending)
	slot.Pending = uuid.Nil
	segmentsRebuilt.Add(1)
	u.logger.Infof("rebuilt %s segment of %v from %s (%d meshes)", slot.Region, owner, path, len(slot.Entities))
	u.svc.emitEvent(gameloop.Event{
		Type:      gameloop.EventSegmentRebuilt,
		Character: owner,
		Region:    slot.Region.String(),
		Variant:   slot.VariantID,
		Path:      path,
		Entities:  len(slot.Entities),
	})
}

func (u *UpdateEngine) clonePrimitive(owner, prim ecs.Entity) ecs.Entity {
	w := u.svc.world
	mesh, _ := ecs.Get[render.Mesh3d](w, prim)
	aabb, _ := ecs.Get[render.Aabb](w, prim)
	skin, _ := ecs.Get[render.SkinnedMesh](w, prim)

	e := w.Spawn()
	if name, ok := ecs.NameOf(w, prim); ok {
		ecs.Insert(w, e, ecs.Name(name))
	}
	ecs.Insert(w, e, mesh)
	ecs.Insert(w, e, aabb)
	ecs.Insert(w, e, render.SkinnedMesh{
		InverseBindposes: skin.InverseBindposes,
		Joints:           RemapJoints(w, owner, skin.Joints, u.logger),
	})
	ecs.Insert(w, e, render.NoAutomaticBatching{})
	return e
}

// RemapJoints replaces every joint by the first descendant of root with the same
// name. Joints without a match or without a name are dropped.
func RemapJoints(w *ecs.World, root ecs.Entity, joints []ecs.Entity, logger *zap.SugaredLogger) []ecs.Entity {
	out := make([]ecs.Entity, 0, len(joints))
	for _, joint := range joints {
		name, ok := ecs.NameOf(w, joint)
		if !ok {
			if logger != nil {
				logger.Errorf("joint %v had no name", joint)
			}
			continue
		}
		if bone, ok := w.FindDescendantByName(root, name); ok {
			out = append(out, bone)
		}
	}
	return out
}
