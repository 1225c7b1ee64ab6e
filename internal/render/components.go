// Package render holds the components a renderer reads from a mesh primitive.
package render

import (
	"github.com/annelo/modular-character/internal/asset"
	"github.com/annelo/modular-character/internal/ecs"
)

// Mesh3d binds geometry and material to an entity.
type Mesh3d struct {
	Mesh     asset.Handle
	Material asset.Handle
}

// Aabb is an axis-aligned bounding box in local space.
type Aabb struct {
	Center      [3]float32
	HalfExtents [3]float32
}

// SkinnedMesh lists the joint entities that deform a primitive.
type SkinnedMesh struct {
	InverseBindposes asset.Handle
	Joints           []ecs.Entity
}

// NoAutomaticBatching excludes an entity from draw-call batching.
type NoAutomaticBatching struct{}

// IsPrimitive reports whether e carries every component of a skinned mesh primitive.
func IsPrimitive(w *ecs.World, e ecs.Entity) bool {
	return ecs.Has[Mesh3d](w, e) && ecs.Has[Aabb](w, e) && ecs.Has[SkinnedMesh](w, e)
}

// AnimationTarget marks a scene node that drives skeletal animation.
type AnimationTarget struct{}
