package modular

import (
	"github.com/google/uuid"

	"github.com/annelo/modular-character/internal/ecs"
	"github.com/annelo/modular-character/internal/scene"
)

// Slot is the state of one body region of a character.
type Slot struct {
	Region    Region
	VariantID int
	// Pending is the in-flight scene instance, uuid.Nil when none.
	Pending scene.InstanceID
	// Entities are the rebuilt mesh-group containers parented under the character.
	Entities []ecs.Entity
}

// HasPending reports whether a load is outstanding.
func (s *Slot) HasPending() bool {
	return s.Pending != uuid.Nil
}

// Next returns the variant delta steps away, wrapping at both ends of n variants.
func (s *Slot) Next(delta, n int) int {
	return Wrap(s.VariantID+delta, n)
}

// Wrap maps any index onto [0, n).
func Wrap(i, n int) int {
	if n <= 0 {
		return 0
	}
	return (i%n + n) % n
}

// Segments is the component holding every slot of a character.
type Segments struct {
	slots [regionCount]*Slot
	// Skeleton is the instance of the character's armature, spawned once.
	Skeleton scene.InstanceID
}

// NewSegments creates one empty slot per region.
func NewSegments() *Segments {
	s := &Segments{}
	for _, r := range Regions() {
		s.slots[r] = &Slot{Region: r}
	}
	return s
}

// Slot returns the slot of r, or nil for an invalid region.
func (s *Segments) Slot(r Region) *Slot {
	if !r.Valid() {
		return nil
	}
	return s.slots[r]
}

// ResetChanged asks for a slot to be re-examined on the next tick.
type ResetChanged struct {
	Entity ecs.Entity
	Region Region
}

type slotKey struct {
	owner  ecs.Entity
	region Region
}

// dirtySet holds slots changed since the update engine last ran.
type dirtySet struct {
	keys map[slotKey]struct{}
}

func newDirtySet() *dirtySet {
	return &dirtySet{keys: make(map[slotKey]struct{})}
}

func (d *dirtySet) mark(k slotKey) {
	d.keys[k] = struct{}{}
}

func (d *dirtySet) contains(k slotKey) bool {
	_, ok := d.keys[k]
	return ok
}

// drain empties the set and returns its keys ordered by owner, then region.
func (d *dirtySet) drain() []slotKey {
	out := make([]slotKey, 0, len(d.keys))
	for k := range d.keys {
		out = append(out, k)
	}
	clear(d.keys)
	sortKeys(out)
	return out
}
