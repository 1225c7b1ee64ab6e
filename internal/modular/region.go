// Package modular composes characters from hot-swappable body segments.
//
// Each character carries one Slot per Region. Requesting a variant spawns the
// segment's scene fragment; the update engine waits for the fragment to become
// ready, clones its skinned primitives under the character, rebinds their joints
// to the character's own skeleton by name and discards the fragment.
package modular

import (
	"errors"
	"fmt"
	"strings"
)

// Region is a swappable body region.
type Region uint8

const (
	Head Region = iota
	Body
	Legs
	Feet

	regionCount = 4
)

// ErrUnknownRegion is returned for region values or names outside Head..Feet.
var ErrUnknownRegion = errors.New("modular: unknown region")

// Regions returns all regions in slot order.
func Regions() []Region {
	return []Region{Head, Body, Legs, Feet}
}

func (r Region) Valid() bool { return r < regionCount }

func (r Region) String() string {
	switch r {
	case Head:
		return "head"
	case Body:
		return "body"
	case Legs:
		return "legs"
	case Feet:
		return "feet"
	default:
		return fmt.Sprintf("region(%d)", uint8(r))
	}
}

// ParseRegion accepts region names case-insensitively.
func ParseRegion(s string) (Region, error) {
	for _, r := range Regions() {
		if strings.EqualFold(s, r.String()) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRegion, s)
}

// Catalog is the fixed list of scene paths available per region.
type Catalog struct {
	paths [regionCount][]string
}

// NewCatalog builds a catalog. Every region needs at least one path.
func NewCatalog(paths map[Region][]string) (Catalog, error) {
	var c Catalog
	for r, list := range paths {
		if !r.Valid() {
			return Catalog{}, fmt.Errorf("%w: %d", ErrUnknownRegion, r)
		}
		c.paths[r] = append([]string(nil), list...)
	}
	for _, r := range Regions() {
		if len(c.paths[r]) == 0 {
			return Catalog{}, fmt.Errorf("modular: catalog for %s is empty", r)
		}
	}
	return c, nil
}

// DefaultCatalog returns the stock witch/scifi/soldier/adventurer segments.
func DefaultCatalog() Catalog {
	c, _ := NewCatalog(DefaultPaths())
	return c
}

// DefaultPaths returns the stock catalog paths.
func DefaultPaths() map[Region][]string {
	return map[Region][]string{
		Head: {
			"witch.yaml#Scene2",
			"scifi.yaml#Scene2",
			"soldier.yaml#Scene2",
			"adventurer.yaml#Scene2",
		},
		Body: {
			"witch.yaml#Scene3",
			"scifi.yaml#Scene3",
			"soldier.yaml#Scene3",
			"adventurer.yaml#Scene3",
			"scifi_torso.yaml#Scene0",
		},
		Legs: {
			"witch.yaml#Scene4",
			"scifi.yaml#Scene4",
			"soldier.yaml#Scene4",
			"adventurer.yaml#Scene4",
			"witch_legs.yaml#Scene0",
		},
		Feet: {
			"witch.yaml#Scene5",
			"scifi.yaml#Scene5",
			"soldier.yaml#Scene5",
			"adventurer.yaml#Scene5",
		},
	}
}

// Len returns the number of variants of r.
func (c Catalog) Len(r Region) int {
	if !r.Valid() {
		return 0
	}
	return len(c.paths[r])
}

// complete reports whether every region has at least one variant.
func (c Catalog) complete() bool {
	for _, r := range Regions() {
		if len(c.paths[r]) == 0 {
			return false
		}
	}
	return true
}

// Path returns the scene path of variant id of r.
func (c Catalog) Path(r Region, id int) string {
	return c.paths[r][id]
}

// Paths returns a copy of r's variants.
func (c Catalog) Paths(r Region) []string {
	return append([]string(nil), c.paths[r]...)
}

// With returns a catalog with extra variants appended to r.
func (c Catalog) With(r Region, paths ...string) Catalog {
	out := c
	for _, region := range Regions() {
		out.paths[region] = append([]string(nil), c.paths[region]...)
	}
	out.paths[r] = append(out.paths[r], paths...)
	return out
}
