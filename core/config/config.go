package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration text that cannot be parsed or misses required keys.
var ErrInvalid = errors.New("invalid config")

// Top-level keys that carry the access lists and the bot token.
const (
	KeyToken  = "telegram_bot_token"
	KeyUsers  = "users"
	KeyAdmins = "admins"
)

// TelegramConfig holds transport settings.
type TelegramConfig struct {
	RunMode string `yaml:"run_mode,omitempty" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds,omitempty" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// KeepPendingUpdates disables dropping the update backlog on start.
	KeepPendingUpdates bool `yaml:"keep_pending_updates,omitempty" envconfig:"TELEGRAM_KEEP_PENDING_UPDATES"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url,omitempty" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen,omitempty" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port,omitempty" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level,omitempty" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format,omitempty" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order,omitempty"`
	DebugSample string `yaml:"debug_sample,omitempty"`
	Dir         string `yaml:"dir,omitempty"`
	BotFile     string `yaml:"bot_file,omitempty"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile,omitempty"`
}

// StoreConfig selects where the configuration is persisted after edits.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty" envconfig:"CONFIG_STORE"`
}

// DatabaseConfig holds Postgres connection settings used by the postgres store.
type DatabaseConfig struct {
	Host           string `yaml:"host,omitempty" envconfig:"DB_HOST"`
	Port           string `yaml:"port,omitempty" envconfig:"DB_PORT"`
	User           string `yaml:"user,omitempty" envconfig:"DB_USER"`
	Password       string `yaml:"password,omitempty" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name,omitempty" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode,omitempty" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections,omitempty" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir,omitempty" envconfig:"DB_MIGRATIONS_DIR"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"

	// StoreFile keeps the configuration in the YAML file it was loaded from.
	StoreFile = "file"
	// StorePostgres keeps configuration revisions in Postgres.
	StorePostgres = "postgres"
)

// Mode controls how strictly Decode checks the presence of top-level keys.
type Mode int

const (
	// Lenient requires the token and users keys; admins may be absent.
	Lenient Mode = iota
	// Strict additionally requires the admins key. Used for reloads and edits.
	Strict
)

// Config is the bot configuration. A decoded Config is never mutated; reloads
// replace it as a whole.
type Config struct {
	Token  string  `yaml:"telegram_bot_token" envconfig:"BOT_TOKEN"`
	Users  []int64 `yaml:"users" ignored:"true"`
	Admins []int64 `yaml:"admins,omitempty" ignored:"true"`

	Telegram TelegramConfig `yaml:"telegram,omitempty"`
	Webhook  WebhookConfig  `yaml:"webhook,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Database DatabaseConfig `yaml:"database,omitempty"`

	// Extra keeps keys this package does not know about, for derived bots.
	Extra map[string]any `yaml:",inline" ignored:"true"`

	raw    []byte
	keys   map[string]struct{}
	users  map[int64]struct{}
	admins map[int64]struct{}
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Decode(data, Lenient)
}

// Decode parses configuration text, applies environment overrides and validates the result.
func Decode(data []byte, mode Mode) (*Config, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalid)
	}
	if err := validation.Validate(doc, keyRules(mode)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := Normalize(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	cfg.raw = append([]byte(nil), data...)
	cfg.keys = make(map[string]struct{}, len(doc))
	for k := range doc {
		cfg.keys[k] = struct{}{}
	}
	cfg.users = idSet(cfg.Users)
	cfg.admins = idSet(cfg.Admins)
	return &cfg, nil
}

func keyRules(mode Mode) validation.MapRule {
	admins := validation.Key(KeyAdmins)
	if mode == Lenient {
		admins = admins.Optional()
	}
	return validation.Map(
		validation.Key(KeyToken),
		validation.Key(KeyUsers),
		admins,
	).AllowExtraKeys()
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	cfg.Telegram.RunMode = rm

	store := strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if store == "" {
		store = StoreFile
	}
	cfg.Store.Driver = store

	err := validation.ValidateStruct(cfg,
		validation.Field(&cfg.Token, validation.Required.Error("telegram token is required")),
	)
	if err != nil {
		return err
	}
	err = validation.ValidateStruct(&cfg.Telegram,
		validation.Field(&cfg.Telegram.RunMode, validation.In(RunModeWebhook, RunModeLongpoll)),
		validation.Field(&cfg.Telegram.LongPollTimeoutSeconds, validation.Min(0)),
	)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if rm == RunModeWebhook {
		err = validation.ValidateStruct(&cfg.Webhook,
			validation.Field(&cfg.Webhook.URL, validation.Required),
			validation.Field(&cfg.Webhook.Listen, validation.Required),
			validation.Field(&cfg.Webhook.Port, validation.Required, validation.Min(1)),
		)
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
	}
	err = validation.ValidateStruct(&cfg.Store,
		validation.Field(&cfg.Store.Driver, validation.In(StoreFile, StorePostgres)),
	)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if store == StorePostgres {
		err = validation.ValidateStruct(&cfg.Database,
			validation.Field(&cfg.Database.Host, validation.Required),
			validation.Field(&cfg.Database.Name, validation.Required),
		)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether the top-level key was present in the decoded text.
func (c *Config) Has(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.keys[key]
	return ok
}

// HasAdmins reports whether an admins list was configured at all.
func (c *Config) HasAdmins() bool {
	return c.Has(KeyAdmins)
}

// IsUser reports whether chatID is on the allow-list.
func (c *Config) IsUser(chatID int64) bool {
	if c == nil {
		return false
	}
	_, ok := c.users[chatID]
	return ok
}

// IsAdmin reports whether chatID is both a user and an admin.
func (c *Config) IsAdmin(chatID int64) bool {
	if !c.HasAdmins() || !c.IsUser(chatID) {
		return false
	}
	_, ok := c.admins[chatID]
	return ok
}

// Text returns the configuration as it was written, or a YAML encoding when no
// source text is known.
func (c *Config) Text() (string, error) {
	if c == nil {
		return "", fmt.Errorf("nil config")
	}
	if len(c.raw) > 0 {
		return string(c.raw), nil
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(out), nil
}
