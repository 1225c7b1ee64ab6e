// Package ecs содержит хранилище сущностей и компонентов, на котором строится персонаж.
//
// World не потокобезопасен: им владеет горутина игрового цикла, остальные
// горутины передают работу через gameloop.Loop.Submit.
package ecs

import (
	"fmt"
	"reflect"
	"sort"
)

// Entity идентифицирует сущность. Идентификаторы монотонно растут и не переиспользуются,
// поэтому сортировка по Entity совпадает с порядком создания.
type Entity uint64

// Invalid никогда не выдаётся Spawn.
const Invalid Entity = 0

func (e Entity) String() string {
	return fmt.Sprintf("Entity(%d)", uint64(e))
}

// anyStore позволяет миру удалять компоненты сущности без знания их типов.
type anyStore interface {
	remove(e Entity)
	has(e Entity) bool
}

// World хранит живые сущности, иерархию родитель/потомок и типизированные хранилища компонентов.
type World struct {
	next     Entity
	alive    map[Entity]struct{}
	parents  map[Entity]Entity
	children map[Entity][]Entity
	stores   map[reflect.Type]anyStore
}

// NewWorld создаёт пустой мир.
func NewWorld() *World {
	return &World{
		next:     1,
		alive:    make(map[Entity]struct{}),
		parents:  make(map[Entity]Entity),
		children: make(map[Entity][]Entity),
		stores:   make(map[reflect.Type]anyStore),
	}
}

// Spawn резервирует новую сущность без компонентов.
func (w *World) Spawn() Entity {
	e := w.next
	w.next++
	w.alive[e] = struct{}{}
	return e
}

// Alive сообщает, существует ли сущность.
func (w *World) Alive(e Entity) bool {
	_, ok := w.alive[e]
	return ok
}

// Len возвращает количество живых сущностей.
func (w *World) Len() int {
	return len(w.alive)
}

// Despawn удаляет одну сущность со всеми компонентами. Её потомки становятся корнями.
func (w *World) Despawn(e Entity) bool {
	if !w.Alive(e) {
		return false
	}
	w.detach(e)
	for _, child := range w.children[e] {
		delete(w.parents, child)
	}
	delete(w.children, e)
	for _, s := range w.stores {
		s.remove(e)
	}
	delete(w.alive, e)
	return true
}

// DespawnRecursive удаляет сущность и всё её поддерево, возвращает число удалённых сущностей.
func (w *World) DespawnRecursive(e Entity) int {
	if !w.Alive(e) {
		return 0
	}
	w.detach(e)
	return w.despawnTree(e)
}

func (w *World) despawnTree(e Entity) int {
	n := 0
	for _, child := range w.children[e] {
		n += w.despawnTree(child)
	}
	delete(w.children, e)
	delete(w.parents, e)
	for _, s := range w.stores {
		s.remove(e)
	}
	delete(w.alive, e)
	return n + 1
}

// Entities возвращает все живые сущности по возрастанию.
func (w *World) Entities() []Entity {
	out := make([]Entity, 0, len(w.alive))
	for e := range w.alive {
		out = append(out, e)
	}
	sortEntities(out)
	return out
}

func sortEntities(es []Entity) {
	sort.Slice(es, func(i, j int) bool { return es[i] < es[j] })
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func storeFor[T any](w *World) *Store[T] {
	t := typeOf[T]()
	if s, ok := w.stores[t]; ok {
		return s.(*Store[T])
	}
	s := newStore[T]()
	w.stores[t] = s
	return s
}

// Insert добавляет или заменяет компонент типа T у живой сущности.
func Insert[T any](w *World, e Entity, v T) bool {
	if !w.Alive(e) {
		return false
	}
	storeFor[T](w).set(e, v)
	return true
}

// Get возвращает компонент типа T.
func Get[T any](w *World, e Entity) (T, bool) {
	return storeFor[T](w).get(e)
}

// Has сообщает, есть ли у сущности компонент типа T.
func Has[T any](w *World, e Entity) bool {
	return storeFor[T](w).has(e)
}

// Remove снимает компонент типа T с сущности.
func Remove[T any](w *World, e Entity) {
	storeFor[T](w).remove(e)
}

// Query возвращает сущности с компонентом T по возрастанию.
func Query[T any](w *World) []Entity {
	return storeFor[T](w).entities()
}

// Each вызывает fn для каждой сущности с компонентом T в порядке возрастания.
func Each[T any](w *World, fn func(Entity, T)) {
	s := storeFor[T](w)
	for _, e := range s.entities() {
		if v, ok := s.get(e); ok {
			fn(e, v)
		}
	}
}
