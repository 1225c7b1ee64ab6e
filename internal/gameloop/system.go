package gameloop

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/annelo/modular-character/internal/asset"
	"github.com/annelo/modular-character/internal/ecs"
	"github.com/annelo/modular-character/internal/input"
	"github.com/annelo/modular-character/internal/scene"
)

// Phase задаёт порядок выполнения систем внутри одного тика.
type Phase int

const (
	PhaseInput      Phase = iota // применение отложенных команд и ввода
	PhasePreUpdate               // фиксация загрузок и материализация сцен
	PhaseControl                 // переключение вариантов сегментов
	PhaseUpdate                  // пересборка сегментов
	PhasePostUpdate              // повторные попытки, анимация
	PhaseCleanup                 // снимки состояния, сброс ввода
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre_update"
	case PhaseControl:
		return "control"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post_update"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// System описывает логику, выполняемую каждый тик цикла.
type System interface {
	// Init вызывается один раз перед запуском цикла.
	Init(deps Dependencies) error
	// Tick вызывается каждый игровой тик.
	Tick(ctx context.Context, dt time.Duration)
	// Name возвращает читаемое имя системы.
	Name() string
	// Phase определяет, в какой части тика выполняется система.
	Phase() Phase
}

// EventType различает события цикла, видимые снаружи (хуки плагинов, метрики).
type EventType string

const (
	EventVariantRequested  EventType = "VariantRequested"
	EventSegmentRebuilt    EventType = "SegmentRebuilt"
	EventInstanceAbandoned EventType = "InstanceAbandoned"
	EventSegmentLoadFailed EventType = "SegmentLoadFailed"
)

// Event описывает изменение состояния сегмента персонажа.
type Event struct {
	Type      EventType
	Character ecs.Entity
	Region    string
	Variant   int
	Path      string
	Entities  int
}

// Dependencies передаются системам при инициализации.
type Dependencies struct {
	World  *ecs.World
	Assets *asset.Server
	Scenes *scene.Spawner
	Input  *input.ButtonInput
	Logger *zap.SugaredLogger
}
