// Package roster хранит снимки состояния персонажей для чтения вне игрового цикла.
package roster

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/annelo/modular-character/internal/ecs"
	"github.com/annelo/modular-character/internal/gameloop"
	"github.com/annelo/modular-character/internal/modular"
)

// ErrNotFound возвращается, если персонажа с таким именем нет
var ErrNotFound = errors.New("персонаж не найден")

// SlotStatus описывает состояние одного сегмента
type SlotStatus struct {
	Region  string
	Variant int
	Path    string
	Loading bool
	Meshes  int
}

// Character содержит снимок одного персонажа
type Character struct {
	Name       string
	Entity     ecs.Entity
	Controlled bool
	Slots      []SlotStatus
}

// Built сообщает, что все сегменты собраны и ни один не загружается
func (c Character) Built() bool {
	for _, s := range c.Slots {
		if s.Loading || s.Meshes == 0 {
			return false
		}
	}
	return len(c.Slots) > 0
}

// Roster управляет снимками персонажей
type Roster struct {
	characters map[string]Character
	mu         sync.RWMutex
}

// NewRoster создает пустой реестр
func NewRoster() *Roster {
	return &Roster{characters: make(map[string]Character)}
}

// Replace заменяет все снимки разом
func (r *Roster) Replace(chars []Character) {
	next := make(map[string]Character, len(chars))
	for _, c := range chars {
		next[c.Name] = c
	}
	r.mu.Lock()
	r.characters = next
	r.mu.Unlock()
}

// Get возвращает снимок персонажа по имени
func (r *Roster) Get(name string) (Character, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.characters[name]
	if !exists {
		return Character{}, ErrNotFound
	}
	return c, nil
}

// All возвращает снимки всех персонажей по имени
func (r *Roster) All() []Character {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Character, 0, len(r.characters))
	for _, c := range r.characters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Ready сообщает, что есть хотя бы один персонаж и все они собраны
func (r *Roster) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.characters) == 0 {
		return false
	}
	for _, c := range r.characters {
		if !c.Built() {
			return false
		}
	}
	return true
}

// SnapshotSystem переписывает реестр в конце каждого тика
type SnapshotSystem struct {
	roster *Roster
	svc    *modular.Service
	world  *ecs.World
}

func NewSnapshotSystem(r *Roster, svc *modular.Service) *SnapshotSystem {
	return &SnapshotSystem{roster: r, svc: svc}
}

func (s *SnapshotSystem) Name() string { return "roster_snapshot" }
func (s *SnapshotSystem) Phase() gameloop.Phase { return gameloop.PhaseCleanup }

func (s *SnapshotSystem) Init(deps gameloop.Dependencies) error {
	s.world = deps.World
	return nil
}

func (s *SnapshotSystem) Tick(ctx context.Context, dt time.Duration) {
	s.roster.Replace(Snapshot(s.world, s.svc))
}

// Snapshot описывает всех персонажей сервиса
func Snapshot(w *ecs.World, svc *modular.Service) []Character {
	catalog := svc.Catalog()
	var out []Character
	for _, e := range svc.Characters() {
		segs, err := svc.Segments(e)
		if err != nil {
			continue
		}
		name, _ := ecs.NameOf(w, e)
		c := Character{Name: name, Entity: e, Controlled: ecs.Has[modular.Controlled](w, e)}
		for _, r := range modular.Regions() {
			slot := segs.Slot(r)
			c.Slots = append(c.Slots, SlotStatus{
				Region:  r.String(),
				Variant: slot.VariantID,
				Path:    catalog.Path(r, slot.VariantID),
				Loading: slot.HasPending(),
				Meshes:  len(slot.Entities),
			})
		}
		out = append(out, c)
	}
	return out
}
