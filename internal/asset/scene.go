package asset

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Scene is a decoded scene fragment: a flat node list where nodes reference
// children and joints by index.
type Scene struct {
	Label string
	Nodes []Node
}

// Node is one scene node. Nodes with primitives form a mesh group.
type Node struct {
	Name       string
	Children   []int
	Animated   bool
	Primitives []Primitive
}

// Primitive is one renderable geometry+material piece skinned to scene nodes.
type Primitive struct {
	Name             string
	Mesh             Handle
	Material         Handle
	InverseBindposes Handle
	Center           [3]float32
	HalfExtents      [3]float32
	Joints           []int
}

// Roots returns indices of nodes that are nobody's child, in ascending order.
func (s *Scene) Roots() []int {
	isChild := make([]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		for _, c := range n.Children {
			isChild[c] = true
		}
	}
	var roots []int
	for i, child := range isChild {
		if !child {
			roots = append(roots, i)
		}
	}
	return roots
}

type document struct {
	Scenes map[string]sceneDoc `yaml:"scenes"`
}

type sceneDoc struct {
	Nodes []nodeDoc `yaml:"nodes"`
}

type nodeDoc struct {
	Name       string         `yaml:"name"`
	Children   []int          `yaml:"children"`
	Animated   bool           `yaml:"animated"`
	Primitives []primitiveDoc `yaml:"primitives"`
}

type primitiveDoc struct {
	Name      string  `yaml:"name"`
	Mesh      string  `yaml:"mesh"`
	Material  string  `yaml:"material"`
	Bindposes string  `yaml:"bindposes"`
	Aabb      aabbDoc `yaml:"aabb"`
	Joints    []int   `yaml:"joints"`
}

type aabbDoc struct {
	Center      [3]float32 `yaml:"center"`
	HalfExtents [3]float32 `yaml:"half_extents"`
}

// decodeScene parses a scene document and validates the requested label.
// Sub-asset paths are returned unresolved; the server turns them into handles.
func decodeScene(data []byte, label string) (sceneDoc, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return sceneDoc{}, fmt.Errorf("parse scene document: %w", err)
	}
	sd, ok := doc.Scenes[label]
	if !ok {
		return sceneDoc{}, fmt.Errorf("scene %q not found in document", label)
	}
	if err := sd.validate(); err != nil {
		return sceneDoc{}, fmt.Errorf("scene %q: %w", label, err)
	}
	return sd, nil
}

func (sd sceneDoc) validate() error {
	n := len(sd.Nodes)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = -1
	}
	for i, node := range sd.Nodes {
		for _, c := range node.Children {
			if c < 0 || c >= n {
				return fmt.Errorf("node %d: child index %d out of range", i, c)
			}
			if c == i {
				return fmt.Errorf("node %d: is its own child", i)
			}
			if parent[c] >= 0 {
				return fmt.Errorf("node %d: has two parents (%d and %d)", c, parent[c], i)
			}
			parent[c] = i
		}
		for pi, p := range node.Primitives {
			for _, j := range p.Joints {
				if j < 0 || j >= n {
					return fmt.Errorf("node %d primitive %d: joint index %d out of range", i, pi, j)
				}
			}
		}
	}
	// Каждый узел должен дойти до корня за n шагов, иначе в графе цикл.
	for i := range sd.Nodes {
		steps := 0
		for p := parent[i]; p >= 0; p = parent[p] {
			steps++
			if steps > n {
				return fmt.Errorf("node %d: parent cycle", i)
			}
		}
	}
	return nil
}
