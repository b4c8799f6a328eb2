package logger

import (
	"log/slog"
	"path/filepath"
	"testing"

	coreconfig "github.com/m3rciful/chatgate/core/config"
)

func TestResolveSettingsDefaults(t *testing.T) {
	s := resolveSettings(nil)
	if s.format != formatJSON || s.level != slog.LevelInfo || s.profile != "prod" {
		t.Fatalf("defaults = %+v", s)
	}
	if s.sample != [2]int{1, 50} || s.file != "" {
		t.Fatalf("defaults = %+v", s)
	}
}

func TestResolveSettingsFromConfig(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Logging.Profile = "Dev"
	cfg.Logging.Level = "warning"
	cfg.Logging.KeysOrder = "event, ts,,level"
	cfg.Logging.DebugSample = "0"
	cfg.Logging.Dir = "logs"
	cfg.Logging.BotFile = "bot.log"

	s := resolveSettings(cfg)
	if s.format != formatKV {
		t.Fatalf("dev profile should default to kv, got %s", s.format)
	}
	if s.level != slog.LevelWarn {
		t.Fatalf("level = %v", s.level)
	}
	if len(s.keyOrder) != 3 || s.keyOrder[0] != "event" || s.keyOrder[2] != "level" {
		t.Fatalf("keyOrder = %v", s.keyOrder)
	}
	if s.sample != [2]int{0, 0} {
		t.Fatalf("sample = %v", s.sample)
	}
	if s.file != filepath.Join("logs", "bot.log") {
		t.Fatalf("file = %q", s.file)
	}

	cfg.Logging.Format = "json"
	cfg.Logging.DebugSample = "garbage"
	s = resolveSettings(cfg)
	if s.format != formatJSON || s.sample != [2]int{1, 50} {
		t.Fatalf("explicit json and bad sample = %+v", s)
	}
}
