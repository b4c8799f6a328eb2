package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/chatgate/core/config"
	coredatabase "github.com/m3rciful/chatgate/core/database"
	"github.com/m3rciful/chatgate/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config
	// ConfigPath is the file the configuration was loaded from.
	ConfigPath string
	Modules    Modules

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(context.Context, coreconfig.DatabaseConfig) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	// Config is the configuration to start with. With the postgres store it is
	// the newest stored revision.
	Config *coreconfig.Config
	Store  coreconfig.Store
	DB     *sqlx.DB
}

// Close releases the database connection, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger and selects the configuration store. The postgres
// store additionally connects, migrates and seeds the database.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	if opts.Config.Store.Driver != coreconfig.StorePostgres {
		return &Result{Config: opts.Config, Store: coreconfig.NewFileStore(opts.ConfigPath)}, nil
	}

	dbCfg := opts.Config.Database
	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(ctx, dbCfg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	res := &Result{Config: opts.Config, Store: coredatabase.NewPostgresStore(db), DB: db}
	seeders := opts.Modules.Seeders
	if len(seeders) == 0 && opts.ConfigPath != "" {
		seeders = []Seeder{SeedFromFile(opts.ConfigPath)}
	}
	for _, s := range seeders {
		if err := s.Seed(ctx, res.Store); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: seeding failed: %w", err)
		}
	}

	res.Config = activeConfig(ctx, res.Store, opts.Config)
	return res, nil
}

// activeConfig prefers the stored revision and falls back to the file configuration.
func activeConfig(ctx context.Context, store coreconfig.Store, fallback *coreconfig.Config) *coreconfig.Config {
	data, err := store.Load(ctx)
	if err != nil {
		logger.CFG.Warn("stored config unavailable",
			slog.String("event", "config.load"),
			slog.String("store", store.Describe()),
			slog.String("err", err.Error()),
		)
		return fallback
	}
	cfg, err := coreconfig.Decode(data, coreconfig.Lenient)
	if err != nil {
		logger.CFG.Warn("stored config invalid",
			slog.String("event", "config.load"),
			slog.String("store", store.Describe()),
			slog.String("err", err.Error()),
		)
		return fallback
	}
	attrs := []any{
		slog.String("event", "config.load"),
		slog.String("store", store.Describe()),
		slog.Int("users", len(cfg.Users)),
	}
	if rc, ok := store.(revisionCounter); ok {
		if n, err := rc.Revisions(ctx); err == nil {
			attrs = append(attrs, slog.Int("revisions", n))
		}
	}
	logger.CFG.Info("stored config active", attrs...)
	return cfg
}

// revisionCounter is implemented by stores that keep history.
type revisionCounter interface {
	Revisions(ctx context.Context) (int, error)
}
