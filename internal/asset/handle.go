// Package asset resolves asset paths to content asynchronously.
//
// A path has the form "file#Label". Loading the same path twice yields the same Handle.
// Loads run on a worker pool; finished results become visible only when Server.Update
// commits them, which the game loop does once per tick.
package asset

import (
	"fmt"
	"strings"
)

// Handle identifies a loaded or loading asset. Handles are comparable.
type Handle struct {
	id   uint64
	path string
}

// Path returns the asset path the handle was created for.
func (h Handle) Path() string { return h.path }

// IsZero reports whether the handle is the zero value.
func (h Handle) IsZero() bool { return h.id == 0 }

func (h Handle) String() string {
	if h.IsZero() {
		return "Handle(none)"
	}
	return fmt.Sprintf("Handle(%d:%s)", h.id, h.path)
}

// LoadState describes the progress of an asset load.
type LoadState int

const (
	NotLoaded LoadState = iota
	Loading
	Loaded
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "not_loaded"
	}
}

// SplitPath splits "file#Label" into its file and label parts.
func SplitPath(path string) (file, label string) {
	if i := strings.LastIndexByte(path, '#'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}
