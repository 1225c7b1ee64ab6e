package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nsf/termbox-go"

	"github.com/annelo/modular-character/internal/config"
	"github.com/annelo/modular-character/internal/gameloop"
	"github.com/annelo/modular-character/internal/input"
	"github.com/annelo/modular-character/internal/logging"
	"github.com/annelo/modular-character/internal/plugin"
	"github.com/annelo/modular-character/internal/roster"
	"github.com/annelo/modular-character/internal/world"
)

var (
	configPath = flag.String("config", "", "Путь к YAML файлу конфигурации")
	assetDir   = flag.String("assets", "", "Каталог со сценами персонажей")
	pluginDir  = flag.String("plugins", "", "Каталог плагинов")
	logFile    = flag.String("log", "viewer.log", "Файл журнала")
	logLevel   = flag.String("log-level", "", "Уровень логирования")
	latency    = flag.Duration("latency", 0, "Максимальная искусственная задержка загрузки")
	seed       = flag.Int64("seed", 0, "Сид профиля задержек")
)

// viewer хранит состояние терминального интерфейса
type viewer struct {
	world *world.World

	mu       sync.Mutex
	messages []string
}

func (v *viewer) addMessage(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = append(v.messages, msg)
	if len(v.messages) > 5 {
		v.messages = v.messages[len(v.messages)-5:]
	}
}

func (v *viewer) lastMessages() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.messages...)
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Не удалось загрузить конфигурацию: %v", err)
	}
	cfg.Resolve(config.Flags{
		AssetDir:  *assetDir,
		PluginDir: *pluginDir,
		LogLevel:  *logLevel,
		Latency:   *latency,
		Seed:      *seed,
	})

	// Терминал занят интерфейсом, поэтому журнал пишем в файл
	logger, err := logging.ToFile(cfg.Log.Level, *logFile)
	if err != nil {
		log.Fatalf("Не удалось создать логгер: %v", err)
	}
	defer logger.Sync()

	reg := plugin.NewDefaultRegistry()
	reg.MarkCore()
	pm := plugin.NewPluginManager(cfg.PluginDir, logger)
	if err := pm.LoadPlugins(reg); err != nil {
		logger.Warnf("Ошибка при загрузке плагинов: %v", err)
	}
	defer pm.UnloadPlugins(reg)

	w, err := world.New(cfg, reg, world.NewSource(cfg), logger)
	if err != nil {
		log.Fatalf("Не удалось собрать мир: %v", err)
	}
	defer w.Close()

	v := &viewer{world: w}
	reg.RegisterHook(plugin.HookSegmentLoadFailed, func(args ...interface{}) {
		for _, arg := range args {
			if ev, ok := arg.(gameloop.Event); ok {
				v.addMessage(fmt.Sprintf("Ошибка загрузки %s: %s", ev.Region, ev.Path))
			}
		}
	})

	if err := termbox.Init(); err != nil {
		log.Fatalf("Не удалось инициализировать терминал: %v", err)
	}
	defer termbox.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Перерисовываем экран с фиксированной частотой
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				v.render()
			case <-ctx.Done():
				return
			}
		}
	}()

	v.processInput(ctx)
}

// processInput обрабатывает ввод с клавиатуры до Esc или Ctrl+C
func (v *viewer) processInput(ctx context.Context) {
	for {
		switch ev := termbox.PollEvent(); ev.Type {
		case termbox.EventKey:
			switch ev.Key {
			case termbox.KeyEsc, termbox.KeyCtrlC:
				return
			case termbox.KeyTab:
				v.switchCharacter(ctx)
				continue
			}
			if ev.Ch != 0 {
				v.world.Press(input.Key(ev.Ch))
			}
		case termbox.EventError:
			log.Fatalf("Ошибка терминала: %v", ev.Err)
		}
	}
}

// switchCharacter передаёт управление следующему персонажу по имени
func (v *viewer) switchCharacter(ctx context.Context) {
	chars := v.world.Roster.All()
	if len(chars) < 2 {
		return
	}
	next := chars[0].Name
	for i, c := range chars {
		if c.Controlled {
			next = chars[(i+1)%len(chars)].Name
			break
		}
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := v.world.Control(ctx, next); err != nil {
		v.addMessage(fmt.Sprintf("Ошибка: %v", err))
		return
	}
	v.addMessage(fmt.Sprintf("Управление: %s", next))
}

// render отображает персонажей, их сегменты и подсказки по клавишам
func (v *viewer) render() {
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	width, height := termbox.Size()

	y := 0
	drawText(0, y, width, "----- Персонажи -----", termbox.ColorWhite, termbox.ColorDefault)
	y++
	for _, c := range v.world.Roster.All() {
		fg := termbox.ColorWhite
		title := c.Name
		if c.Controlled {
			fg = termbox.ColorGreen
			title += " *"
		}
		drawText(0, y, width, title, fg, termbox.ColorDefault)
		y++
		for _, slot := range c.Slots {
			drawText(2, y, width-2, slotLine(slot), slotColor(slot), termbox.ColorDefault)
			y++
		}
	}

	y++
	drawText(0, y, width, "----- Сообщения -----", termbox.ColorWhite, termbox.ColorDefault)
	y++
	for _, msg := range v.lastMessages() {
		drawText(0, y, width, msg, termbox.ColorCyan, termbox.ColorDefault)
		y++
	}

	helpY := height - len(v.world.Bindings) - 1
	if helpY < y+1 {
		helpY = y + 1
	}
	for i, b := range v.world.Bindings {
		help := fmt.Sprintf("%-4s  %c: назад  %c: вперёд", b.Region, b.Decrement, b.Increment)
		drawText(0, helpY+i, width, help, termbox.ColorYellow, termbox.ColorDefault)
	}
	drawText(0, helpY+len(v.world.Bindings), width, "Tab: следующий персонаж  Esc: выход", termbox.ColorWhite, termbox.ColorDefault)

	termbox.Flush()
}

func slotLine(s roster.SlotStatus) string {
	state := fmt.Sprintf("meshes=%d", s.Meshes)
	if s.Loading {
		state = "загрузка..."
	}
	return fmt.Sprintf("%-4s %2d  %-28s %s", s.Region, s.Variant, s.Path, state)
}

func slotColor(s roster.SlotStatus) termbox.Attribute {
	switch {
	case s.Loading:
		return termbox.ColorYellow
	case s.Meshes == 0:
		return termbox.ColorRed
	default:
		return termbox.ColorDefault
	}
}

// drawText отображает текст с ограничением по ширине
func drawText(x, y, maxWidth int, text string, fg, bg termbox.Attribute) {
	for i, ch := range clipText(text, maxWidth) {
		termbox.SetCell(x+i, y, ch, fg, bg)
	}
}

// clipText обрезает текст до maxWidth символов; при узком окне возвращает nil
func clipText(text string, maxWidth int) []rune {
	if maxWidth <= 0 {
		return nil
	}
	runes := []rune(text)
	if len(runes) > maxWidth {
		runes = runes[:maxWidth]
	}
	return runes
}
