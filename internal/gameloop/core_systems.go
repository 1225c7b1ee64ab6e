package gameloop

import (
	"context"
	"time"
)

// InputClearSystem сбрасывает нажатия текущего тика в конце тика.
type InputClearSystem struct {
	deps Dependencies
}

func NewInputClearSystem() *InputClearSystem { return &InputClearSystem{} }

func (s *InputClearSystem) Name() string { return "input_clear" }
func (s *InputClearSystem) Phase() Phase { return PhaseCleanup }

func (s *InputClearSystem) Init(deps Dependencies) error {
	s.deps = deps
	return nil
}

func (s *InputClearSystem) Tick(ctx context.Context, dt time.Duration) {
	if s.deps.Input != nil {
		s.deps.Input.Clear()
	}
}

// AssetSystem фиксирует завершённые загрузки и материализует готовые сцены.
type AssetSystem struct {
	deps Dependencies
}

func NewAssetSystem() *AssetSystem { return &AssetSystem{} }

func (s *AssetSystem) Name() string { return "assets" }
func (s *AssetSystem) Phase() Phase { return PhasePreUpdate }

func (s *AssetSystem) Init(deps Dependencies) error {
	s.deps = deps
	return nil
}

func (s *AssetSystem) Tick(ctx context.Context, dt time.Duration) {
	s.deps.Assets.Update()
	s.deps.Scenes.Update()
}
