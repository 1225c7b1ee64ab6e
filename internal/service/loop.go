package service

import (
	"context"
	"expvar"
	"time"

	"github.com/annelo/modular-character/internal/world"
)

// Start запускает игровой цикл и мониторинг готовности. Мир должен быть подключен.
func (s *CharacterService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.world == nil {
		return ErrNoWorld
	}
	if s.cancel != nil {
		return nil
	}
	w := s.world
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		w.Run(ctx)
	}()
	go s.monitorReadiness(ctx, w)
	go s.monitorStats(ctx)
	return nil
}

// monitorReadiness переключает health-статус, когда все сегменты собраны или начали загрузку
func (s *CharacterService) monitorReadiness(ctx context.Context, w *world.World) {
	ticker := time.NewTicker(s.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ready := w.Roster.Ready()
			s.mu.Lock()
			changed := ready != s.serving
			s.serving = ready
			s.mu.Unlock()
			if changed {
				s.setServing(ready)
				s.logger.Infof("characters ready: %v", ready)
			}
		case <-ctx.Done():
			return
		}
	}
}

// monitorStats периодически пишет счётчики сегментов в лог
func (s *CharacterService) monitorStats(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.logger.Infow("segment stats", Stats()...)
		case <-ctx.Done():
			return
		}
	}
}

// Stats возвращает пары ключ-значение счётчиков для логов
func Stats() []interface{} {
	var kv []interface{}
	for _, name := range []string{
		"segments_rebuilt", "segment_retries", "instances_abandoned",
		"segment_load_failures", "assets_loaded", "asset_errors",
	} {
		if v := expvar.Get(name); v != nil {
			kv = append(kv, name, v.String())
		}
	}
	return kv
}
