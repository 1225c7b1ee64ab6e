package service

// Stop переводит health в NOT_SERVING, останавливает цикл, выгружает плагины и загрузчик ассетов.
func (s *CharacterService) Stop() {
	s.health.Shutdown()

	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	if s.plugins != nil {
		s.plugins.UnloadPlugins(s.registry)
	}
	if w := s.World(); w != nil {
		w.Close()
	}
	s.logger.Info("character service stopped")
}
