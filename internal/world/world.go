// Package world отвечает за инициализацию и связывание компонентов игрового мира
package world

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/annelo/modular-character/internal/animation"
	"github.com/annelo/modular-character/internal/asset"
	"github.com/annelo/modular-character/internal/config"
	"github.com/annelo/modular-character/internal/ecs"
	"github.com/annelo/modular-character/internal/gameloop"
	"github.com/annelo/modular-character/internal/input"
	"github.com/annelo/modular-character/internal/modular"
	"github.com/annelo/modular-character/internal/plugin"
	"github.com/annelo/modular-character/internal/roster"
	"github.com/annelo/modular-character/internal/scene"
)

// World представляет полный игровой мир со всеми системами
type World struct {
	ECS      *ecs.World
	Assets   *asset.Server
	Scenes   *scene.Spawner
	Input    *input.ButtonInput
	Segments *modular.Service
	Roster   *roster.Roster
	Loop     *gameloop.Loop
	Bindings []config.Binding

	registry plugin.PluginRegistry
	logger   *zap.SugaredLogger
}

// NewSource возвращает источник ассетов из каталога, с задержками, если они включены
func NewSource(cfg config.Config) asset.Source {
	var src asset.Source = asset.DirSource{Root: cfg.AssetDir}
	if cfg.Latency.Max > 0 {
		src = asset.NewLatencySource(src, cfg.Latency.Max, cfg.Latency.Seed)
	}
	return src
}

// New создает мир по конфигурации и порождает стартовых персонажей.
// Варианты сегментов из плагинов добавляются в каталог.
func New(cfg config.Config, reg plugin.PluginRegistry, src asset.Source, logger *zap.SugaredLogger) (*World, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	catalog, err := cfg.BuildCatalog()
	if err != nil {
		return nil, err
	}
	catalog = plugin.ApplyVariants(reg, catalog)
	bindings, err := cfg.Bindings()
	if err != nil {
		return nil, err
	}

	w := &World{
		ECS:      ecs.NewWorld(),
		Input:    input.NewButtonInput(),
		Roster:   roster.NewRoster(),
		Bindings: bindings,
		registry: reg,
		logger:   logger,
	}
	w.Assets = asset.NewServer(src, asset.WithWorkers(cfg.Workers), asset.WithLogger(logger))
	w.Scenes = scene.NewSpawner(w.ECS, w.Assets, logger)
	w.Segments = modular.NewService(modular.Config{
		World:    w.ECS,
		Assets:   w.Assets,
		Scenes:   w.Scenes,
		Catalog:  catalog,
		Skeleton: cfg.Skeleton,
		Logger:   logger,
		Emit:     w.emit,
	})

	// Системы в порядке регистрации внутри фазы
	systems := []gameloop.System{gameloop.NewAssetSystem()}
	for _, b := range bindings {
		systems = append(systems, modular.NewCycleController(w.Segments, b.Region, b.Decrement, b.Increment))
	}
	systems = append(systems,
		modular.NewUpdateEngine(w.Segments),
		modular.NewRetrySystem(w.Segments),
		animation.NewPlaybackSystem(),
		animation.NewCycleSystem(cfg.Animation.Pattern, cfg.Animation.Clips, cfg.Animation.Length),
		roster.NewSnapshotSystem(w.Roster, w.Segments),
		gameloop.NewInputClearSystem(),
	)
	systems = append(systems, reg.GameSystems()...)

	deps := gameloop.Dependencies{
		World:  w.ECS,
		Assets: w.Assets,
		Scenes: w.Scenes,
		Input:  w.Input,
		Logger: logger,
	}
	w.Loop = gameloop.NewLoop(cfg.Tick, deps, systems...)

	// Цикл ещё не запущен, мир можно менять напрямую
	for i, name := range cfg.Characters {
		e := w.Segments.SpawnCharacter(name)
		if i == 0 {
			_ = w.Segments.Control(e)
		}
		logger.Infof("spawned character %s as %v", name, e)
	}
	return w, nil
}

// emit пробрасывает событие сегмента в хуки плагинов
func (w *World) emit(ev gameloop.Event) {
	w.logger.Debugw("segment event",
		"type", ev.Type,
		"character", ev.Character,
		"region", ev.Region,
		"variant", ev.Variant,
		"path", ev.Path,
	)
	plugin.Fire(w.registry, w.logger, plugin.HookFor(ev), ev)
}

// Run запускает игровой цикл до отмены ctx
func (w *World) Run(ctx context.Context) {
	w.Loop.Run(ctx)
}

// Close останавливает загрузку ассетов
func (w *World) Close() {
	w.Assets.Close()
}

// Press передаёт нажатие клавиши в следующий тик
func (w *World) Press(k input.Key) {
	w.Loop.Submit(func() { w.Input.Tap(k) })
}

// Cycle сдвигает вариант сегмента персонажа name на delta
func (w *World) Cycle(ctx context.Context, name string, region modular.Region, delta int) error {
	return w.Loop.Do(ctx, func() error {
		e, err := w.find(name)
		if err != nil {
			return err
		}
		return w.Segments.RequestVariant(e, region, delta)
	})
}

// Spawn порождает нового персонажа с уникальным именем
func (w *World) Spawn(ctx context.Context, name string) error {
	return w.Loop.Do(ctx, func() error {
		if _, err := w.find(name); err == nil {
			return fmt.Errorf("character %q already exists", name)
		}
		w.Segments.SpawnCharacter(name)
		return nil
	})
}

// Despawn удаляет персонажа вместе со скелетом и сегментами
func (w *World) Despawn(ctx context.Context, name string) error {
	return w.Loop.Do(ctx, func() error {
		e, err := w.find(name)
		if err != nil {
			return err
		}
		return w.Segments.DespawnCharacter(e)
	})
}

// Control передаёт управление с клавиатуры персонажу name
func (w *World) Control(ctx context.Context, name string) error {
	return w.Loop.Do(ctx, func() error {
		e, err := w.find(name)
		if err != nil {
			return err
		}
		return w.Segments.Control(e)
	})
}

// find ищет персонажа по имени; вызывается только на горутине цикла
func (w *World) find(name string) (ecs.Entity, error) {
	for _, e := range w.Segments.Characters() {
		if n, ok := ecs.NameOf(w.ECS, e); ok && n == name {
			return e, nil
		}
	}
	return ecs.Invalid, fmt.Errorf("%w: %s", roster.ErrNotFound, name)
}
