package ecs

import "errors"

var (
	// ErrDeadEntity возвращается при работе с несуществующей сущностью.
	ErrDeadEntity = errors.New("ecs: entity does not exist")
	// ErrHierarchyCycle возвращается, если привязка создала бы цикл.
	ErrHierarchyCycle = errors.New("ecs: parenting would create a cycle")
)

// Name задаёт отображаемое имя сущности.
type Name string

// NameOf возвращает имя сущности, если оно задано.
func NameOf(w *World, e Entity) (string, bool) {
	n, ok := Get[Name](w, e)
	return string(n), ok
}

// AddChild делает child потомком parent, отвязывая его от прежнего родителя.
func (w *World) AddChild(parent, child Entity) error {
	if !w.Alive(parent) || !w.Alive(child) {
		return ErrDeadEntity
	}
	for p := parent; ; {
		if p == child {
			return ErrHierarchyCycle
		}
		next, ok := w.parents[p]
		if !ok {
			break
		}
		p = next
	}
	w.detach(child)
	w.parents[child] = parent
	w.children[parent] = append(w.children[parent], child)
	return nil
}

// RemoveChildren отвязывает перечисленных потомков от parent. Сущности остаются живыми.
func (w *World) RemoveChildren(parent Entity, kids ...Entity) {
	for _, kid := range kids {
		if p, ok := w.parents[kid]; ok && p == parent {
			w.detach(kid)
		}
	}
}

func (w *World) detach(e Entity) {
	p, ok := w.parents[e]
	if !ok {
		return
	}
	delete(w.parents, e)
	siblings := w.children[p]
	for i, s := range siblings {
		if s == e {
			w.children[p] = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	if len(w.children[p]) == 0 {
		delete(w.children, p)
	}
}

// Parent возвращает родителя сущности.
func (w *World) Parent(e Entity) (Entity, bool) {
	p, ok := w.parents[e]
	return p, ok
}

// Children возвращает копию списка прямых потомков в порядке привязки.
func (w *World) Children(e Entity) []Entity {
	kids := w.children[e]
	out := make([]Entity, len(kids))
	copy(out, kids)
	return out
}

// Descendants обходит поддерево root в глубину (pre-order), без самого root.
func (w *World) Descendants(root Entity) []Entity {
	var out []Entity
	w.walk(root, func(e Entity) bool {
		out = append(out, e)
		return true
	})
	return out
}

// FindDescendant возвращает первого потомка root в порядке обхода в глубину, для которого match истинно.
func (w *World) FindDescendant(root Entity, match func(Entity) bool) (Entity, bool) {
	found := Invalid
	w.walk(root, func(e Entity) bool {
		if match(e) {
			found = e
			return false
		}
		return true
	})
	return found, found != Invalid
}

// FindDescendantByName ищет первого потомка с точным совпадением имени.
func (w *World) FindDescendantByName(root Entity, name string) (Entity, bool) {
	return w.FindDescendant(root, func(e Entity) bool {
		n, ok := NameOf(w, e)
		return ok && n == name
	})
}

// walk возвращает false, если обход прерван.
func (w *World) walk(e Entity, visit func(Entity) bool) bool {
	for _, child := range w.children[e] {
		if !visit(child) {
			return false
		}
		if !w.walk(child, visit) {
			return false
		}
	}
	return true
}
