package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/chatgate/core/buildinfo"
	coreconfig "github.com/m3rciful/chatgate/core/config"
)

const (
	queueSize     = 64 * 1024
	defaultSample = "1/50"
)

var (
	initOnce sync.Once

	closeMu sync.Mutex
	closed  bool
	sink    *asyncWriter
	files   []io.Closer

	levelVar      slog.LevelVar
	debugSampler  = newRatioSampler(parseRatioSpec(defaultSample))
	traceOverride bool

	// L is the base logger. Until InitLogger runs it points at slog.Default().
	L *slog.Logger

	// TG logs Telegram transport events.
	TG *slog.Logger
	// TWire logs handler wiring steps.
	TWire *slog.Logger
	// BOT logs dispatcher decisions: gates, dialogs, commands.
	BOT *slog.Logger
	// CFG logs configuration loads, reloads and edits.
	CFG *slog.Logger
	// DB logs database-related events.
	DB *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
)

func init() {
	L = slog.Default()
	wireComponents()
}

// settings is the logging section of the configuration with defaults applied.
type settings struct {
	format   logFormat
	level    slog.Level
	keyOrder []string
	profile  string
	sample   [2]int
	file     string
}

func resolveSettings(cfg *coreconfig.Config) settings {
	s := settings{
		format:   formatJSON,
		level:    slog.LevelInfo,
		keyOrder: append([]string(nil), defaultKeyOrder...),
		profile:  "prod",
	}
	s.sample[0], s.sample[1] = parseRatioSpec(defaultSample)
	if cfg == nil {
		return s
	}
	lc := cfg.Logging

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}
	if order := splitKeys(lc.KeysOrder); len(order) > 0 {
		s.keyOrder = order
	}
	if spec := strings.TrimSpace(lc.DebugSample); spec != "" {
		// "0" disables sampling; malformed specs keep the default
		if num, den := parseRatioSpec(spec); num > 0 && den > 0 {
			s.sample = [2]int{num, den}
		} else if spec == "0" {
			s.sample = [2]int{0, 0}
		}
	}
	if dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && name != "" {
		s.file = filepath.Join(dir, name)
	}
	return s
}

func splitKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// InitLogger installs the structured handler as the slog default. Only the first
// call has an effect. A log file that cannot be opened is logged as a warning
// and output goes to stdout only.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		var fileErr error
		s := resolveSettings(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(s.sample[0], s.sample[1])
		traceOverride = envFlag("TRACE") || envFlag("LOG_TRACE")

		outputs := []io.Writer{os.Stdout}
		if s.file != "" {
			f, err := openLogFile(s.file)
			if err != nil {
				fileErr = err
			} else {
				outputs = append(outputs, f)
				files = append(files, f)
			}
		}
		sink = newAsyncWriter(outputs, queueSize)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   sink,
			format:   s.format,
			keyOrder: s.keyOrder,
		}))
		slog.SetDefault(L)
		wireComponents()

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", "app"),
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", s.profile),
		)
		if fileErr != nil {
			L.Warn("log file disabled", slog.String("event", "log_file"), slog.String("err", fileErr.Error()))
		}
	})
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", path, err)
	}
	return f, nil
}

func wireComponents() {
	TG = Component("tg")
	TWire = Component("tg.wire")
	BOT = Component("bot")
	CFG = Component("config")
	DB = Component("db")
	MIG = Component("db.migrate")
}

// Shutdown drains queued log lines and closes the log file. Later calls are no-ops.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if sink != nil {
		errs = append(errs, sink.Close())
	}
	for _, f := range files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// LogEvent logs attrs under an explicit event name. A nil logger means the one
// stored in ctx, or L.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to a component name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// ShouldSampleDebug reports whether a high-volume debug event should be logged.
// TRACE=1 or LOG_TRACE=1 lets every event through.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
