package main

import (
	"fmt"
	"log"

	"github.com/annelo/modular-character/internal/gameloop"
	"github.com/annelo/modular-character/internal/modular"
	"github.com/annelo/modular-character/internal/plugin"
)

// Register is invoked by PluginManager to register catalog variants, hooks and commands
func Register(reg plugin.PluginRegistry) {
	// Extra knight segments
	reg.RegisterCatalogVariant(modular.Head, "knight.yaml#Scene2")
	reg.RegisterCatalogVariant(modular.Body, "knight.yaml#Scene3")

	// Sample plugin hook: log every rebuilt segment
	reg.RegisterHook(plugin.HookSegmentRebuilt, func(args ...interface{}) {
		if len(args) == 1 {
			if ev, ok := args[0].(gameloop.Event); ok {
				log.Printf("[SamplePlugin] %s segment of %v now variant %d", ev.Region, ev.Character, ev.Variant)
			}
		}
	})

	// Sample plugin configuration structure
	type SamplePluginConfig struct {
		Greeting string `yaml:"greeting"`
		Value    int    `yaml:"value"`
	}
	reg.RegisterPluginConfig("sampleplugin", &SamplePluginConfig{})

	// Sample plugin CLI command: show plugin info
	reg.RegisterCommand("sampleinfo", "Show sample plugin info", func(args []string) (string, error) {
		cfg := reg.PluginConfig("sampleplugin").(*SamplePluginConfig)
		return fmt.Sprintf("Greeting: %s, Value: %d\n", cfg.Greeting, cfg.Value), nil
	})
}

func main() {}
