package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/annelo/modular-character/internal/modular"
)

// commandTimeout ограничивает ожидание команды на горутине цикла
const commandTimeout = 5 * time.Second

// RegisterCommands регистрирует команды администратора для управления персонажами
func (s *CharacterService) RegisterCommands() {
	s.registry.RegisterCommand("status", "Show characters and their segments", s.cmdStatus)
	s.registry.RegisterCommand("cycle", "Cycle a segment: cycle <character> <region> <+1|-1>", s.cmdCycle)
	s.registry.RegisterCommand("spawn", "Spawn a character: spawn <name>", s.cmdSpawn)
	s.registry.RegisterCommand("despawn", "Despawn a character: despawn <name>", s.cmdDespawn)
	s.registry.RegisterCommand("control", "Drive a character from the keyboard: control <name>", s.cmdControl)
}

func (s *CharacterService) cmdStatus(args []string) (string, error) {
	w, err := s.attached()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, c := range w.Roster.All() {
		marker := ""
		if c.Controlled {
			marker = " *"
		}
		fmt.Fprintf(&sb, "%s (%v)%s\n", c.Name, c.Entity, marker)
		for _, slot := range c.Slots {
			state := "idle"
			if slot.Loading {
				state = "loading"
			}
			fmt.Fprintf(&sb, "  %-4s %d %-28s %-7s meshes=%d\n", slot.Region, slot.Variant, slot.Path, state, slot.Meshes)
		}
	}
	if sb.Len() == 0 {
		return "No characters\n", nil
	}
	return sb.String(), nil
}

func (s *CharacterService) cmdCycle(args []string) (string, error) {
	if len(args) != 3 {
		return "Usage: cycle <character> <region> <+1|-1>\n", nil
	}
	region, err := modular.ParseRegion(args[1])
	if err != nil {
		return "", err
	}
	delta, err := strconv.Atoi(args[2])
	if err != nil {
		return "", fmt.Errorf("invalid delta %q: %w", args[2], err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	w, err := s.attached()
	if err != nil {
		return "", err
	}
	if err := w.Cycle(ctx, args[0], region, delta); err != nil {
		return "", err
	}
	return fmt.Sprintf("Requested %s %+d for %s\n", region, delta, args[0]), nil
}

func (s *CharacterService) cmdSpawn(args []string) (string, error) {
	if len(args) != 1 {
		return "Usage: spawn <name>\n", nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	w, err := s.attached()
	if err != nil {
		return "", err
	}
	if err := w.Spawn(ctx, args[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Spawned %s\n", args[0]), nil
}

func (s *CharacterService) cmdDespawn(args []string) (string, error) {
	if len(args) != 1 {
		return "Usage: despawn <name>\n", nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	w, err := s.attached()
	if err != nil {
		return "", err
	}
	if err := w.Despawn(ctx, args[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Despawned %s\n", args[0]), nil
}

func (s *CharacterService) cmdControl(args []string) (string, error) {
	if len(args) != 1 {
		return "Usage: control <name>\n", nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	w, err := s.attached()
	if err != nil {
		return "", err
	}
	if err := w.Control(ctx, args[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Controlling %s\n", args[0]), nil
}
