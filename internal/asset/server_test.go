package asset_test

import (
	"context"
	"testing"
	"time"

	"github.com/annelo/modular-character/internal/asset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const witchDoc = `
scenes:
  Scene2:
    nodes:
      - name: Head
        primitives:
          - name: Head.0
            mesh: witch.yaml#Mesh0/Primitive0
            material: witch.yaml#Material0
            bindposes: witch.yaml#Skin0
            aabb: {center: [0, 1.6, 0], half_extents: [0.2, 0.2, 0.2]}
            joints: [1]
        children: [1]
      - name: head_bone
`

func waitLoaded(t *testing.T, s *asset.Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestServer_LoadDeduplicatesAndCommitsOnUpdate(t *testing.T) {
	s := asset.NewServer(asset.NewMemorySource(map[string]string{"witch.yaml": witchDoc}))
	defer s.Close()

	h1 := s.Load("witch.yaml#Scene2")
	h2 := s.Load("witch.yaml#Scene2")
	assert.Equal(t, h1, h2, "repeated loads of the same path must share a handle")
	assert.Equal(t, "witch.yaml#Scene2", h1.Path())

	waitLoaded(t, s)
	require.Equal(t, asset.Loaded, s.State(h1))

	scene, ok := s.Scene(h1)
	require.True(t, ok)
	require.Len(t, scene.Nodes, 2)
	assert.Equal(t, []int{0}, scene.Roots())

	prim := scene.Nodes[0].Primitives[0]
	assert.Equal(t, "witch.yaml#Mesh0/Primitive0", prim.Mesh.Path())
	assert.Equal(t, asset.Loaded, s.State(prim.Mesh))
	assert.Equal(t, []int{1}, prim.Joints)
	assert.Equal(t, [3]float32{0, 1.6, 0}, prim.Center)
}

func TestServer_MissingFileFails(t *testing.T) {
	s := asset.NewServer(asset.NewMemorySource(nil))
	defer s.Close()

	h := s.Load("nope.yaml#Scene0")
	waitLoaded(t, s)
	assert.Equal(t, asset.Failed, s.State(h))
	assert.Error(t, s.Err(h))
	_, ok := s.Scene(h)
	assert.False(t, ok)
}

func TestServer_MissingLabelFails(t *testing.T) {
	s := asset.NewServer(asset.NewMemorySource(map[string]string{"witch.yaml": witchDoc}))
	defer s.Close()

	h := s.Load("witch.yaml#Scene9")
	waitLoaded(t, s)
	assert.Equal(t, asset.Failed, s.State(h))
}

func TestServer_RejectsBadIndices(t *testing.T) {
	bad := `
scenes:
  Scene0:
    nodes:
      - name: a
        children: [3]
`
	s := asset.NewServer(asset.NewMemorySource(map[string]string{"bad.yaml": bad}))
	defer s.Close()

	h := s.Load("bad.yaml#Scene0")
	waitLoaded(t, s)
	assert.Equal(t, asset.Failed, s.State(h))
	assert.Contains(t, s.Err(h).Error(), "out of range")
}

func TestServer_StateIsLoadingUntilUpdate(t *testing.T) {
	s := asset.NewServer(asset.NewMemorySource(map[string]string{"witch.yaml": witchDoc}))
	defer s.Close()

	h := s.Load("witch.yaml#Scene2")
	// Без Update результат не виден, даже если чтение уже завершилось.
	assert.Equal(t, asset.Loading, s.State(h))
	waitLoaded(t, s)
	assert.Equal(t, asset.Loaded, s.State(h))
}

func TestSplitPath(t *testing.T) {
	file, label := asset.SplitPath("witch.yaml#Scene2")
	assert.Equal(t, "witch.yaml", file)
	assert.Equal(t, "Scene2", label)

	file, label = asset.SplitPath("plain.yaml")
	assert.Equal(t, "plain.yaml", file)
	assert.Empty(t, label)
}

func TestLatencySource_DelayIsBoundedAndStable(t *testing.T) {
	src := asset.NewLatencySource(asset.NewMemorySource(nil), 200*time.Millisecond, 7)
	for _, f := range []string{"witch.yaml", "scifi.yaml", "soldier.yaml", "adventurer.yaml"} {
		d := src.Delay(f)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 200*time.Millisecond)
		assert.Equal(t, d, src.Delay(f))
	}

	off := asset.NewLatencySource(asset.NewMemorySource(nil), 0, 7)
	assert.Zero(t, off.Delay("witch.yaml"))
}
