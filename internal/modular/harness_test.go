package modular_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/annelo/modular-character/internal/asset"
	"github.com/annelo/modular-character/internal/ecs"
	"github.com/annelo/modular-character/internal/gameloop"
	"github.com/annelo/modular-character/internal/input"
	"github.com/annelo/modular-character/internal/modular"
	"github.com/annelo/modular-character/internal/render"
	"github.com/annelo/modular-character/internal/scene"
)

const skeletonPath = "skel.yaml#Skeleton"

const skeletonDoc = `
scenes:
  Skeleton:
    nodes:
      - name: Armature
        animated: true
        children: [1, 2]
      - name: hand_L
      - name: hand_R
`

var labels = map[modular.Region]string{
	modular.Head: "Head",
	modular.Body: "Body",
	modular.Legs: "Legs",
	modular.Feet: "Feet",
}

// Клавиши контроллеров: уменьшение, увеличение
var keys = map[modular.Region][2]input.Key{
	modular.Head: {'q', 'e'},
	modular.Body: {'a', 'd'},
	modular.Legs: {'z', 'c'},
	modular.Feet: {'1', '3'},
}

// variantDoc builds a file with one scene per region. Every scene has three mesh
// nodes and a rig holding bones hand_L, hand_R and ghost.
func variantDoc(file string) string {
	var b strings.Builder
	b.WriteString("scenes:\n")
	for _, r := range modular.Regions() {
		l := labels[r]
		fmt.Fprintf(&b, "  %s:\n    nodes:\n", l)
		fmt.Fprintf(&b, `      - name: %[1]sA
        primitives:
          - name: %[1]sA.0
            mesh: %[2]s#%[1]sA0
            material: %[2]s#Mat
            joints: [4, 5, 6]
          - name: %[1]sA.1
            mesh: %[2]s#%[1]sA1
            material: %[2]s#Mat
            joints: [4]
      - name: %[1]sB
        primitives:
          - name: %[1]sB.0
            mesh: %[2]s#%[1]sB0
            material: %[2]s#Mat
            joints: [5]
      - name: %[1]sC
        primitives:
          - name: %[1]sC.0
            mesh: %[2]s#%[1]sC0
            material: %[2]s#Mat
      - name: Rig
        children: [4, 5, 6]
      - name: hand_L
      - name: hand_R
      - name: ghost
`, l, file)
	}
	return b.String()
}

func testCatalog(t *testing.T) modular.Catalog {
	t.Helper()
	paths := make(map[modular.Region][]string)
	for _, r := range modular.Regions() {
		for v := 0; v < 3; v++ {
			paths[r] = append(paths[r], fmt.Sprintf("v%d.yaml#%s", v, labels[r]))
		}
	}
	c, err := modular.NewCatalog(paths)
	require.NoError(t, err)
	return c
}

// gatedSource holds reads of selected files until released.
type gatedSource struct {
	inner asset.Source

	mu    sync.Mutex
	gates map[string]chan struct{}
}

func (g *gatedSource) Hold(file string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gates[file] = make(chan struct{})
}

func (g *gatedSource) Release(file string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ch, ok := g.gates[file]; ok {
		close(ch)
		delete(g.gates, file)
	}
}

func (g *gatedSource) ReleaseAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for file, ch := range g.gates {
		close(ch)
		delete(g.gates, file)
	}
}

func (g *gatedSource) Read(ctx context.Context, file string) ([]byte, error) {
	g.mu.Lock()
	ch := g.gates[file]
	g.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.inner.Read(ctx, file)
}

type harness struct {
	t      *testing.T
	world  *ecs.World
	files  *asset.MemorySource
	src    *gatedSource
	assets *asset.Server
	scenes *scene.Spawner
	input  *input.ButtonInput
	svc    *modular.Service
	loop   *gameloop.Loop

	mu     sync.Mutex
	events []gameloop.Event
}

func newHarness(t *testing.T, catalog modular.Catalog) *harness {
	t.Helper()
	files := map[string]string{"skel.yaml": skeletonDoc}
	for v := 0; v < 3; v++ {
		name := fmt.Sprintf("v%d.yaml", v)
		files[name] = variantDoc(name)
	}
	logger := zaptest.NewLogger(t).Sugar()

	h := &harness{t: t, world: ecs.NewWorld(), input: input.NewButtonInput()}
	h.files = asset.NewMemorySource(files)
	h.src = &gatedSource{inner: h.files, gates: make(map[string]chan struct{})}
	h.assets = asset.NewServer(h.src, asset.WithLogger(logger))
	t.Cleanup(func() {
		h.src.ReleaseAll()
		h.assets.Close()
	})
	h.scenes = scene.NewSpawner(h.world, h.assets, logger)
	h.svc = modular.NewService(modular.Config{
		World:    h.world,
		Assets:   h.assets,
		Scenes:   h.scenes,
		Catalog:  catalog,
		Skeleton: skeletonPath,
		Logger:   logger,
		Emit:     h.record,
	})

	systems := []gameloop.System{
		gameloop.NewAssetSystem(),
		modular.NewUpdateEngine(h.svc),
		modular.NewRetrySystem(h.svc),
		gameloop.NewInputClearSystem(),
	}
	for _, r := range modular.Regions() {
		systems = append(systems, modular.NewCycleController(h.svc, r, keys[r][0], keys[r][1]))
	}
	h.loop = gameloop.NewLoop(time.Millisecond, gameloop.Dependencies{
		World:  h.world,
		Assets: h.assets,
		Scenes: h.scenes,
		Input:  h.input,
		Logger: logger,
	}, systems...)
	return h
}

func (h *harness) record(ev gameloop.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *harness) eventsOf(typ gameloop.EventType) []gameloop.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []gameloop.Event
	for _, ev := range h.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (h *harness) step() {
	h.loop.Step(context.Background(), 16*time.Millisecond)
}

// waitState blocks until the committed state of path reaches want.
func (h *harness) waitState(path string, want asset.LoadState) {
	h.t.Helper()
	handle := h.assets.Ref(path)
	require.Eventually(h.t, func() bool {
		h.assets.Update()
		return h.assets.State(handle) == want
	}, 5*time.Second, time.Millisecond, "asset %s never reached state %v", path, want)
}

// spawn creates a controlled character and waits until every slot is built.
func (h *harness) spawn(name string) ecs.Entity {
	h.t.Helper()
	owner := h.svc.SpawnCharacter(name)
	require.NoError(h.t, h.svc.Control(owner))
	h.settle(owner)
	return owner
}

// settle waits for the loads of every pending slot and runs one tick.
func (h *harness) settle(owner ecs.Entity) {
	h.t.Helper()
	segs, err := h.svc.Segments(owner)
	require.NoError(h.t, err)
	h.waitState(skeletonPath, asset.Loaded)
	for _, r := range modular.Regions() {
		if slot := segs.Slot(r); slot.HasPending() {
			h.waitState(h.svc.Catalog().Path(r, slot.VariantID), asset.Loaded)
		}
	}
	h.step()
	for _, r := range modular.Regions() {
		require.False(h.t, segs.Slot(r).HasPending(), "%s still pending", r)
	}
}

func (h *harness) tap(keys ...input.Key) {
	for _, k := range keys {
		h.input.Tap(k)
	}
}

func (h *harness) slot(owner ecs.Entity, r modular.Region) *modular.Slot {
	h.t.Helper()
	segs, err := h.svc.Segments(owner)
	require.NoError(h.t, err)
	return segs.Slot(r)
}

type primSnap struct {
	Name     string
	Mesh     string
	Material string
	Joints   []string
}

type meshSnap struct {
	Name  string
	Prims []primSnap
}

// snapshot describes the built segment of r without entity identities.
func (h *harness) snapshot(owner ecs.Entity, r modular.Region) []meshSnap {
	var out []meshSnap
	for _, container := range h.slot(owner, r).Entities {
		name, _ := ecs.NameOf(h.world, container)
		ms := meshSnap{Name: name}
		for _, prim := range h.world.Children(container) {
			pname, _ := ecs.NameOf(h.world, prim)
			mesh, _ := ecs.Get[render.Mesh3d](h.world, prim)
			skin, _ := ecs.Get[render.SkinnedMesh](h.world, prim)
			ps := primSnap{Name: pname, Mesh: mesh.Mesh.Path(), Material: mesh.Material.Path()}
			for _, j := range skin.Joints {
				jn, _ := ecs.NameOf(h.world, j)
				ps.Joints = append(ps.Joints, jn)
			}
			ms.Prims = append(ms.Prims, ps)
		}
		out = append(out, ms)
	}
	return out
}
