package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/chatgate/core/bootstrap"
	"github.com/m3rciful/chatgate/core/bot"
	coreconfig "github.com/m3rciful/chatgate/core/config"
	"github.com/m3rciful/chatgate/core/logger"
	"github.com/m3rciful/chatgate/core/telegram"
)

// Options describe how to load configuration, build the dispatcher and run it.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	// Help renders /help; nil disables it.
	Help bot.HelpProvider
	// Modules adds bootstrap seeders.
	Modules bootstrap.Modules
	// Setup registers additional commands and transitions before start.
	Setup func(d *bot.Dispatcher) error

	// Connect overrides the telebot transport.
	Connect        func(*coreconfig.Config) (telegram.Transport, error)
	LoggerInit     func(*coreconfig.Config) error
	ShutdownLogger func() error
}

// Run loads configuration, bootstraps infrastructure and runs the bot until SIGINT or SIGTERM.
func Run(opts Options) error {
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := coreconfig.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startedAt := time.Now()
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:     cfg,
		ConfigPath: cfgPath,
		Modules:    opts.Modules,
		LoggerInit: opts.LoggerInit,
	})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.DB.Warn("db close failed", slog.String("event", "db.close"), slog.String("err", err.Error()))
		}
	}()

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	connect := opts.Connect
	if connect == nil {
		connect = telegram.Connect
	}
	d, err := bot.New(bot.Options{
		Config:  res.Config,
		Store:   res.Store,
		Connect: connect,
		Help:    opts.Help,
	})
	if err != nil {
		logger.BOT.Error("startup aborted",
			slog.String("event", "startup"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return err
	}
	if opts.Setup != nil {
		if err := opts.Setup(d); err != nil {
			return fmt.Errorf("cmd: setup failed: %w", err)
		}
	}

	app := logger.Component("app")
	app.Info("app ready",
		slog.String("event", "ready"),
		slog.String("version", d.Identity().Version),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)
	err = d.Start(ctx)
	app.Info("shutting down...",
		slog.String("event", "shutdown"),
		slog.Int64("messages", d.Identity().Messages()),
	)
	return err
}
