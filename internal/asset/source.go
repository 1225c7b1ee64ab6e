package asset

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
)

// Source reads raw asset files.
type Source interface {
	Read(ctx context.Context, file string) ([]byte, error)
}

// DirSource reads files relative to a directory.
type DirSource struct {
	Root string
}

func (d DirSource) Read(ctx context.Context, file string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(file)))
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", file, err)
	}
	return data, nil
}

// MemorySource serves files from memory. Safe for concurrent use.
type MemorySource struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemorySource returns a source pre-filled with files.
func NewMemorySource(files map[string]string) *MemorySource {
	m := &MemorySource{files: make(map[string][]byte, len(files))}
	for name, body := range files {
		m.files[name] = []byte(body)
	}
	return m
}

// Put adds or replaces a file.
func (m *MemorySource) Put(file, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[file] = []byte(body)
}

func (m *MemorySource) Read(ctx context.Context, file string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[file]
	if !ok {
		return nil, fmt.Errorf("read asset %s: %w", file, os.ErrNotExist)
	}
	return data, nil
}

// LatencySource delays every read of an inner source by a per-file amount drawn
// from 1D perlin noise, so demo runs see loads resolve over several ticks.
type LatencySource struct {
	inner Source
	max   time.Duration
	noise *perlin.Perlin
}

// NewLatencySource wraps inner. A zero max disables the delay.
func NewLatencySource(inner Source, max time.Duration, seed int64) *LatencySource {
	return &LatencySource{
		inner: inner,
		max:   max,
		noise: perlin.NewPerlin(2, 2, 3, seed),
	}
}

// Delay returns the delay applied to file, in [0, max].
func (l *LatencySource) Delay(file string) time.Duration {
	if l.max <= 0 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(file))
	n := l.noise.Noise1D(float64(h.Sum32()%10007) / 97.0)
	// Noise1D stays roughly within [-1, 1].
	f := math.Max(0, math.Min(1, (n+1)/2))
	return time.Duration(f * float64(l.max))
}

func (l *LatencySource) Read(ctx context.Context, file string) ([]byte, error) {
	if d := l.Delay(file); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return l.inner.Read(ctx, file)
}
