package ecs

// Store хранит компоненты одного типа.
type Store[T any] struct {
	components map[Entity]T
	order      []Entity
	sorted     bool
}

func newStore[T any]() *Store[T] {
	return &Store[T]{
		components: make(map[Entity]T),
		order:      make([]Entity, 0, 64),
		sorted:     true,
	}
}

func (s *Store[T]) set(e Entity, v T) {
	if _, exists := s.components[e]; !exists {
		if n := len(s.order); n > 0 && s.order[n-1] > e {
			s.sorted = false
		}
		s.order = append(s.order, e)
	}
	s.components[e] = v
}

func (s *Store[T]) get(e Entity) (T, bool) {
	v, ok := s.components[e]
	return v, ok
}

func (s *Store[T]) has(e Entity) bool {
	_, ok := s.components[e]
	return ok
}

func (s *Store[T]) remove(e Entity) {
	if _, exists := s.components[e]; !exists {
		return
	}
	delete(s.components, e)
	for i, other := range s.order {
		if other == e {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// entities возвращает копию списка, чтобы вызывающий мог менять мир во время обхода.
func (s *Store[T]) entities() []Entity {
	if !s.sorted {
		sortEntities(s.order)
		s.sorted = true
	}
	out := make([]Entity, len(s.order))
	copy(out, s.order)
	return out
}
