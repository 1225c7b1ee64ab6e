package gameloop

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Loop — главный цикл, вызывающий Tick всех зарегистрированных систем по фазам.
// Мир принадлежит горутине цикла; другие горутины передают работу через Submit и Do.
type Loop struct {
	systems []System
	tickDur time.Duration
	deps    Dependencies

	mu      sync.Mutex
	pending []func()
	ticks   uint64
}

// NewLoop создаёт цикл с заданной длительностью тика.
func NewLoop(tick time.Duration, deps Dependencies, systems ...System) *Loop {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	sorted := make([]System, len(systems))
	copy(sorted, systems)
	// Порядок регистрации внутри одной фазы сохраняется
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Phase() < sorted[j].Phase()
	})
	// Инициализируем все системы
	for _, s := range sorted {
		if err := s.Init(deps); err != nil {
			deps.Logger.Errorf("[GameLoop] init %s error: %v", s.Name(), err)
		}
	}
	return &Loop{systems: sorted, tickDur: tick, deps: deps}
}

// Systems возвращает системы в порядке выполнения.
func (l *Loop) Systems() []System {
	out := make([]System, len(l.systems))
	copy(out, l.systems)
	return out
}

// Ticks возвращает число выполненных тиков.
func (l *Loop) Ticks() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}

// Submit ставит fn в очередь; она выполнится в начале следующего тика на горутине цикла.
func (l *Loop) Submit(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
}

// Do выполняет fn на горутине цикла и ждёт завершения.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	l.Submit(func() { done <- fn() })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Step выполняет один тик: сначала отложенные команды, затем системы по фазам.
func (l *Loop) Step(ctx context.Context, dt time.Duration) {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, fn := range pending {
		l.safely("submitted command", fn)
	}

	for _, s := range l.systems {
		sys := s
		l.safely(sys.Name(), func() { sys.Tick(ctx, dt) })
	}

	l.mu.Lock()
	l.ticks++
	l.mu.Unlock()
}

func (l *Loop) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.deps.Logger.Errorf("[GameLoop] panic in %s: %v", name, r)
		}
	}()
	fn()
}

// Run запускает бесконечный цикл до отмены ctx.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.tickDur)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case t := <-ticker.C:
			dt := t.Sub(last)
			last = t
			l.Step(ctx, dt)
		case <-ctx.Done():
			l.deps.Logger.Info("[GameLoop] stopped")
			return
		}
	}
}
