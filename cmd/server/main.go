package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	yaml "gopkg.in/yaml.v3"

	"github.com/annelo/modular-character/internal/config"
	"github.com/annelo/modular-character/internal/logging"
	"github.com/annelo/modular-character/internal/plugin"
	"github.com/annelo/modular-character/internal/service"
	"github.com/annelo/modular-character/internal/world"
)

var (
	configPath = flag.String("config", "", "Путь к YAML файлу конфигурации")
	assetDir   = flag.String("assets", "", "Каталог со сценами персонажей")
	addr       = flag.String("addr", "", "Адрес gRPC сервера")
	pluginDir  = flag.String("plugins", "", "Каталог плагинов")
	logLevel   = flag.String("log-level", "", "Уровень логирования")
	workers    = flag.Int("workers", 0, "Число параллельных загрузок ассетов")
	latency    = flag.Duration("latency", 0, "Максимальная искусственная задержка загрузки")
	seed       = flag.Int64("seed", 0, "Сид профиля задержек")
)

func main() {
	// Парсим флаги командной строки
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Не удалось загрузить конфигурацию: %v", err)
	}
	cfg.Resolve(config.Flags{
		AssetDir:  *assetDir,
		GRPCAddr:  *addr,
		PluginDir: *pluginDir,
		LogLevel:  *logLevel,
		Workers:   *workers,
		Latency:   *latency,
		Seed:      *seed,
	})

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Не удалось создать логгер: %v", err)
	}
	defer logger.Sync()

	// Создаем TCP-слушатель
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatalf("Не удалось создать слушателя: %v", err)
	}
	grpcServer := grpc.NewServer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1) Инициализируем реестр и core-команды, затем обозначаем границу core-регистраций
	reg := plugin.NewDefaultRegistry()
	pm := plugin.NewPluginManager(cfg.PluginDir, logger)
	characterService := service.NewCharacterService(reg, pm, logger)
	characterService.RegisterServer(grpcServer)
	characterService.RegisterCommands()

	stop := func() {
		cancel()
		characterService.Stop()
		grpcServer.GracefulStop()
	}
	registerAdminCommands(reg, pm, stop)
	reg.MarkCore()

	// 2) Плагины могут добавить варианты сегментов, поэтому загружаем их до сборки мира
	if err := pm.LoadPlugins(reg); err != nil {
		logger.Warnf("Ошибка при загрузке плагинов: %v", err)
	}

	w, err := world.New(cfg, reg, world.NewSource(cfg), logger)
	if err != nil {
		logger.Fatalf("Не удалось собрать мир: %v", err)
	}
	characterService.Attach(w)
	if err := characterService.Start(ctx); err != nil {
		logger.Fatalf("Не удалось запустить сервис: %v", err)
	}

	// Включаем reflection для инструментов вроде grpcurl
	reflection.Register(grpcServer)

	// Обрабатываем сигналы для корректного завершения
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		logger.Info("Получен сигнал завершения, останавливаем сервер...")
		stop()
	}()
	go runREPL(reg)

	logger.Infof("Сервер персонажей запущен на %s", cfg.GRPCAddr)
	if err := grpcServer.Serve(lis); err != nil {
		logger.Fatalf("Ошибка запуска сервера: %v", err)
	}
}

// registerAdminCommands регистрирует встроенные команды CLI
func registerAdminCommands(reg *plugin.DefaultRegistry, pm *plugin.PluginManager, stop func()) {
	reg.RegisterCommand("reload", "Reload plugins", func(args []string) (string, error) {
		if err := pm.ReloadPlugins(reg); err != nil {
			return "", err
		}
		return "Plugins reloaded, new catalog variants apply after restart\n", nil
	})
	reg.RegisterCommand("stop", "Stop server", func(args []string) (string, error) {
		go stop()
		return "Server stopping\n", nil
	})
	reg.RegisterCommand("help", "List commands", func(args []string) (string, error) {
		var sb strings.Builder
		for _, cmd := range reg.Commands() {
			sb.WriteString(fmt.Sprintf("%s - %s\n", cmd.Name, cmd.Description))
		}
		return sb.String(), nil
	})
	// List loaded plugins
	reg.RegisterCommand("plugins", "List loaded plugins", func(args []string) (string, error) {
		var sb strings.Builder
		for _, meta := range reg.PluginMetas() {
			sb.WriteString(fmt.Sprintf("%s v%s by %s: %s\n", meta.Name, meta.Version, meta.Author, meta.Description))
		}
		return sb.String(), nil
	})
	// Show plugin config
	reg.RegisterCommand("config", "Show plugin config: config <pluginName>", func(args []string) (string, error) {
		if len(args) < 1 {
			return "Usage: config <pluginName>\n", nil
		}
		name := args[0]
		cfg := reg.PluginConfig(name)
		if cfg == nil {
			return fmt.Sprintf("No config for plugin %s\n", name), nil
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
}

// runREPL читает команды администратора из stdin
func runREPL(reg plugin.PluginRegistry) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}
		name, args := parts[0], parts[1:]
		found := false
		for _, cmdReg := range reg.Commands() {
			if cmdReg.Name == name {
				found = true
				out, err := cmdReg.Handler(args)
				if err != nil {
					fmt.Printf("Error: %v\n", err)
				} else {
					fmt.Print(out)
				}
				break
			}
		}
		if !found {
			fmt.Printf("Неизвестная команда: %s\n", name)
		}
	}
}
