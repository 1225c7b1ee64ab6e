package asset

import (
	"context"
	"expvar"
	"sync"

	"go.uber.org/zap"
)

var (
	assetsLoaded = expvar.NewInt("assets_loaded")
	assetErrors  = expvar.NewInt("asset_errors")
)

// Option configures a Server.
type Option func(*Server)

// WithWorkers bounds the number of concurrent reads. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

// WithLogger sets the logger used for load failures.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

type entry struct {
	handle Handle
	state  LoadState
	scene  *Scene
	err    error
}

type result struct {
	path string
	doc  sceneDoc
	err  error
}

// Server deduplicates loads by path and resolves them in the background.
type Server struct {
	src    Source
	logger *zap.SugaredLogger
	sem    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	nextID uint64
	byPath map[string]*entry
	done   []result
}

// NewServer creates a server reading from src.
func NewServer(src Source, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		src:    src,
		logger: zap.NewNop().Sugar(),
		sem:    make(chan struct{}, 4),
		ctx:    ctx,
		cancel: cancel,
		byPath: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the handle for a scene path and starts loading it on the first request.
// Failed loads are not retried. Meshes and materials referenced by a scene become
// Loaded when that scene is committed.
func (s *Server) Load(path string) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byPath[path]; ok {
		if e.state == NotLoaded {
			s.startLocked(e)
		}
		return e.handle
	}
	e := s.newEntryLocked(path)
	s.startLocked(e)
	return e.handle
}

// Ref returns the handle for path without starting a load. Animation clips and
// other assets that are only referenced by identity use it.
func (s *Server) Ref(path string) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byPath[path]; ok {
		return e.handle
	}
	return s.newEntryLocked(path).handle
}

func (s *Server) newEntryLocked(path string) *entry {
	s.nextID++
	e := &entry{handle: Handle{id: s.nextID, path: path}}
	s.byPath[path] = e
	return e
}

func (s *Server) startLocked(e *entry) {
	e.state = Loading
	path := e.handle.path
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case s.sem <- struct{}{}:
		case <-s.ctx.Done():
			s.finish(result{path: path, err: s.ctx.Err()})
			return
		}
		defer func() { <-s.sem }()

		file, label := SplitPath(path)
		data, err := s.src.Read(s.ctx, file)
		if err != nil {
			s.finish(result{path: path, err: err})
			return
		}
		doc, err := decodeScene(data, label)
		s.finish(result{path: path, doc: doc, err: err})
	}()
}

func (s *Server) finish(r result) {
	s.mu.Lock()
	s.done = append(s.done, r)
	s.mu.Unlock()
}

// Update commits loads finished since the last call and returns how many were committed.
func (s *Server) Update() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := s.done
	s.done = nil
	for _, r := range done {
		e := s.byPath[r.path]
		if r.err != nil {
			e.state = Failed
			e.err = r.err
			assetErrors.Add(1)
			s.logger.Errorf("asset %s failed to load: %v", r.path, r.err)
			continue
		}
		e.scene = s.resolveLocked(r.path, r.doc)
		e.state = Loaded
		assetsLoaded.Add(1)
	}
	return len(done)
}

// resolveLocked converts sub-asset paths into handles. Sub-assets are loaded together
// with the document that references them.
func (s *Server) resolveLocked(path string, sd sceneDoc) *Scene {
	_, label := SplitPath(path)
	scene := &Scene{Label: label, Nodes: make([]Node, len(sd.Nodes))}
	for i, nd := range sd.Nodes {
		node := Node{Name: nd.Name, Children: nd.Children, Animated: nd.Animated}
		for _, pd := range nd.Primitives {
			node.Primitives = append(node.Primitives, Primitive{
				Name:             pd.Name,
				Mesh:             s.subAssetLocked(pd.Mesh),
				Material:         s.subAssetLocked(pd.Material),
				InverseBindposes: s.subAssetLocked(pd.Bindposes),
				Center:           pd.Aabb.Center,
				HalfExtents:      pd.Aabb.HalfExtents,
				Joints:           pd.Joints,
			})
		}
		scene.Nodes[i] = node
	}
	return scene
}

func (s *Server) subAssetLocked(path string) Handle {
	if path == "" {
		return Handle{}
	}
	e, ok := s.byPath[path]
	if !ok {
		e = s.newEntryLocked(path)
	}
	e.state = Loaded
	return e.handle
}

// State reports the committed load state of h.
func (s *Server) State(h Handle) LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byPath[h.path]; ok && e.handle == h {
		return e.state
	}
	return NotLoaded
}

// Err returns the load error of a failed asset.
func (s *Server) Err(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byPath[h.path]; ok && e.handle == h {
		return e.err
	}
	return nil
}

// Scene returns the decoded scene for a loaded handle.
func (s *Server) Scene(h Handle) (*Scene, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byPath[h.path]
	if !ok || e.handle != h || e.state != Loaded || e.scene == nil {
		return nil, false
	}
	return e.scene, true
}

// Wait blocks until every in-flight load has finished, then commits them.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.Update()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels outstanding reads and waits for workers to exit.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}
