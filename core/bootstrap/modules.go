package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	coreconfig "github.com/m3rciful/chatgate/core/config"
	coredatabase "github.com/m3rciful/chatgate/core/database"
	"github.com/m3rciful/chatgate/core/logger"
)

// Seeder loads initial data into the configuration store.
type Seeder interface {
	Seed(ctx context.Context, store coreconfig.Store) error
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc func(ctx context.Context, store coreconfig.Store) error

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context, store coreconfig.Store) error {
	return f(ctx, store)
}

// Modules groups optional bootstrapping hooks.
type Modules struct {
	Seeders []Seeder
}

// SeedFromFile copies the YAML file at path into an empty store.
func SeedFromFile(path string) Seeder {
	return SeederFunc(func(ctx context.Context, store coreconfig.Store) error {
		_, err := store.Load(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, coredatabase.ErrNoRevision) {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read seed config: %w", err)
		}
		if _, err := coreconfig.Decode(data, coreconfig.Lenient); err != nil {
			return fmt.Errorf("seed config: %w", err)
		}
		if err := store.Save(ctx, data); err != nil {
			return err
		}
		logger.CFG.LogAttrs(ctx, slog.LevelInfo, "config seeded",
			slog.String("event", "config.seed"),
			slog.String("store", store.Describe()),
		)
		return nil
	})
}
