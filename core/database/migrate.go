package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	coreconfig "github.com/m3rciful/chatgate/core/config"
	"github.com/m3rciful/chatgate/core/logger"
)

// DefaultMigrationsDir is used when the database section names no directory.
const DefaultMigrationsDir = "migrations"

const readyTimeout = 30 * time.Second

// RunMigrations waits for the server and applies every pending up migration
// from the configured directory. An up-to-date schema is not an error.
func RunMigrations(ctx context.Context, cfg coreconfig.DatabaseConfig) error {
	if err := WaitForPostgres(ctx, DSN(cfg), readyTimeout); err != nil {
		migFail("db not ready", err)
		return fmt.Errorf("database not ready: %w", err)
	}
	dir, err := migrationsDir(cfg)
	if err != nil {
		migFail("migrations dir lookup failed", err)
		return err
	}
	set := scanMigrations(dir)
	logFiles("migrations resolved", "resolve", set.names(), slog.String("path", dir))

	m, err := migrate.New("file://"+dir, URL(cfg))
	if err != nil {
		migFail("init failed", err)
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.MIG.Warn("close failed",
				slog.String("event", "db.migrate"),
				slog.String("err", errors.Join(srcErr, dbErr).Error()),
			)
		}
	}()

	from, _, _ := m.Version()
	start := time.Now()
	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		err = nil
	case err != nil:
		logger.MIG.Error("migration failed",
			slog.String("event", "apply"),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return fmt.Errorf("migration execution failed: %w", err)
	}
	to, _, _ := m.Version()

	applied := set.between(uint64(from), uint64(to))
	if len(applied) > 0 {
		logFiles("applied files", "apply", applied)
	}
	logger.MIG.Info("migrations summary",
		slog.String("event", "summary"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

func migFail(msg string, err error) {
	logger.MIG.Error(msg, slog.String("event", "db.migrate"), slog.String("err", err.Error()))
}

func logFiles(msg, event string, names []string, extra ...slog.Attr) {
	attrs := append([]slog.Attr{
		slog.String("event", event),
		slog.Int("files_total", len(names)),
	}, extra...)
	if preview, truncated := logger.SummarizeStrings(names, 6); preview != "" {
		attrs = append(attrs, slog.String("files_preview", preview))
		if truncated {
			attrs = append(attrs, slog.Bool("files_truncated", true))
		}
	}
	logger.MIG.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

func migrationsDir(cfg coreconfig.DatabaseConfig) (string, error) {
	dir := strings.TrimSpace(cfg.MigrationsDir)
	if dir == "" {
		dir = DefaultMigrationsDir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve migrations dir: %w", err)
	}
	return abs, nil
}

type migrationFile struct {
	version uint64
	name    string
}

// migrationSet holds the up migrations of a directory ordered by file name.
type migrationSet []migrationFile

func scanMigrations(dir string) migrationSet {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var set migrationSet
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(e.Name(), "_")
		v, _ := strconv.ParseUint(prefix, 10, 64)
		set = append(set, migrationFile{version: v, name: e.Name()})
	}
	slices.SortFunc(set, func(a, b migrationFile) int { return strings.Compare(a.name, b.name) })
	return set
}

func (s migrationSet) names() []string {
	out := make([]string, 0, len(s))
	for _, f := range s {
		out = append(out, f.name)
	}
	return out
}

// between returns the files with from < version <= to.
func (s migrationSet) between(from, to uint64) []string {
	var out []string
	for _, f := range s {
		if f.version > from && f.version <= to {
			out = append(out, f.name)
		}
	}
	return out
}
