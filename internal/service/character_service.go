package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/annelo/modular-character/internal/plugin"
	"github.com/annelo/modular-character/internal/world"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "modular.CharacterService"

// ErrNoWorld is returned by commands issued before a world is attached.
var ErrNoWorld = errors.New("service: world is not attached")

// CharacterService запускает игровой мир и публикует его готовность через gRPC health
type CharacterService struct {
	// logger for structured logging
	logger   *zap.SugaredLogger
	world    *world.World
	registry plugin.PluginRegistry
	plugins  *plugin.PluginManager
	health   *health.Server

	// HealthInterval задаёт период проверки готовности персонажей
	HealthInterval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	serving bool
}

// NewCharacterService создает сервис без мира; мир подключается через Attach. pm может быть nil.
func NewCharacterService(reg plugin.PluginRegistry, pm *plugin.PluginManager, logger *zap.SugaredLogger) *CharacterService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &CharacterService{
		logger:         logger,
		registry:       reg,
		plugins:        pm,
		health:         health.NewServer(),
		HealthInterval: 100 * time.Millisecond,
	}
	s.setServing(false)
	return s
}

// RegisterServer регистрирует health-сервис на gRPC сервере
func (s *CharacterService) RegisterServer(grpcServer *grpc.Server) {
	healthpb.RegisterHealthServer(grpcServer, s.health)
}

// Health возвращает health-сервер
func (s *CharacterService) Health() *health.Server { return s.health }

// Attach подключает собранный мир
func (s *CharacterService) Attach(w *world.World) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.world = w
}

// World возвращает обслуживаемый мир или nil
func (s *CharacterService) World() *world.World {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.world
}

func (s *CharacterService) attached() (*world.World, error) {
	if w := s.World(); w != nil {
		return w, nil
	}
	return nil, ErrNoWorld
}

func (s *CharacterService) setServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
