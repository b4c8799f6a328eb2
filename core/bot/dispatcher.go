package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/chatgate/core/buildinfo"
	"github.com/m3rciful/chatgate/core/config"
	"github.com/m3rciful/chatgate/core/logger"
	"github.com/m3rciful/chatgate/core/telegram"
	"github.com/m3rciful/chatgate/core/telegram/middleware"
	"github.com/m3rciful/chatgate/core/telegram/router"
	"github.com/m3rciful/chatgate/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// ErrConstruction wraps every failure of New.
var ErrConstruction = errors.New("bot construction failed")

// Options configures New.
type Options struct {
	Config *config.Config
	// Store backs reloads and edits. Defaults to nothing: reloads and edits fail.
	Store config.Store
	// Connect creates the transport for the given configuration.
	Connect func(cfg *config.Config) (telegram.Transport, error)
	// Help renders /help, /start and the answer to unknown commands. Nil disables them.
	Help HelpProvider
	// Version overrides the resolved build version.
	Version string
	// States overrides the in-memory dialog state store.
	States state.Manager
	// Now overrides the clock.
	Now func() time.Time
}

// Dispatcher authorizes chats, routes commands and drives per-chat dialogs.
type Dispatcher struct {
	live      *config.Live
	store     config.Store
	transport telegram.Transport
	help      HelpProvider
	identity  *Identity
	states    state.Manager
	registry  *telegram.Registry
	now       func() time.Time

	mu          sync.RWMutex
	transitions map[state.State]Transition
	routes      map[string]tele.HandlerFunc
	fallback    tele.HandlerFunc
}

var _ middleware.Authorizer = (*Dispatcher)(nil)

// New builds a Dispatcher and registers the built-in commands with the transport.
// Failures are logged and returned wrapped in ErrConstruction.
func New(opts Options) (*Dispatcher, error) {
	d, err := newDispatcher(opts)
	if err != nil {
		logger.BOT.LogAttrs(context.Background(), slog.LevelError, "construct failed",
			slog.String("event", "construct"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	return d, nil
}

func newDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Config == nil {
		return nil, errors.New("nil config")
	}
	if opts.Connect == nil {
		return nil, errors.New("no transport connector")
	}
	transport, err := opts.Connect(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	if transport == nil {
		return nil, errors.New("transport: connector returned nil")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	version := opts.Version
	if version == "" {
		version = buildinfo.Current()
	}
	states := opts.States
	if states == nil {
		states = state.NewMemoryManager()
	}

	d := &Dispatcher{
		live:        config.NewLive(opts.Config),
		store:       opts.Store,
		transport:   transport,
		help:        opts.Help,
		identity:    newIdentity(version, now()),
		states:      states,
		registry:    telegram.NewRegistry(),
		now:         now,
		transitions: make(map[state.State]Transition),
		routes:      make(map[string]tele.HandlerFunc),
	}
	if err := d.registerBuiltins(); err != nil {
		return nil, err
	}
	d.RegisterTransition(StateConfigMenu, configMenuTransition)
	d.RegisterTransition(StateConfigEdit, configEditTransition)

	d.bind(router.CommandRoutes(d.registry, d)...)
	router.Bind(transport, router.TextRoute(d.OnTextMessage))
	transport.OnError(d.onError)

	logger.BOT.Info("dispatcher ready",
		slog.String("event", "construct"),
		slog.String("status", "ok"),
		slog.String("version", version),
		slog.String("store", d.describeStore()),
	)
	return d, nil
}

// Start registers the unknown-command fallback, publishes the command menu and
// receives updates until ctx is done. It must be called once.
func (d *Dispatcher) Start(ctx context.Context) error {
	fallback := router.FallbackRoute(d.cmdHelp, d)
	d.mu.Lock()
	d.fallback = fallback.Handler
	d.mu.Unlock()
	router.Bind(d.transport, telegram.Route{Endpoint: fallback.Endpoint, Handler: d.onUnknownCommand})
	if err := d.transport.SetCommands(d.registry.ListCommands(true)); err != nil {
		logger.TG.Warn("set commands failed",
			slog.String("event", "set_commands"),
			slog.String("err", err.Error()),
		)
	}
	err := d.transport.Start(ctx)
	logger.BOT.Info("dispatcher stopped",
		slog.String("event", "stop"),
		slog.Int("open_dialogs", d.states.Active()),
		slog.Int64("messages", d.identity.Messages()),
	)
	return err
}

// bind remembers each command route for case-insensitive lookup and hands it to the transport.
func (d *Dispatcher) bind(routes ...telegram.Route) {
	d.mu.Lock()
	for _, r := range routes {
		d.routes[r.Endpoint] = r.Handler
	}
	d.mu.Unlock()
	router.Bind(d.transport, routes...)
}

// onUnknownCommand resolves commands the transport matched only by exact name,
// such as "/INFO", and answers everything else with help.
func (d *Dispatcher) onUnknownCommand(c tele.Context) error {
	d.mu.RLock()
	h := d.fallback
	if name, ok := telegram.CommandName(c.Text()); ok {
		if key, _, found := d.registry.LookupCommand(name); found && d.routes[key] != nil {
			h = d.routes[key]
		}
	}
	d.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h(c)
}

// SendMessage forwards text to the transport and counts it on success. opts may be nil.
func (d *Dispatcher) SendMessage(ctx context.Context, chatID int64, text string, opts *tele.SendOptions) error {
	if err := d.transport.Send(ctx, chatID, text, opts); err != nil {
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "send.failed",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	d.identity.count()
	middleware.CountSend(ctx, opts != nil && opts.ReplyMarkup != nil)
	return nil
}

// IsAuthorized reports whether chatID is a configured user. A pass counts as one
// processed message; a rejection sends "Unauthorized: <chatID>" and is not counted.
func (d *Dispatcher) IsAuthorized(ctx context.Context, chatID int64) bool {
	if d.Config().IsUser(chatID) {
		d.identity.count()
		return true
	}
	d.reject(ctx, chatID, "user", fmt.Sprintf(msgUnauthorized, chatID))
	return false
}

// IsAdmin reports whether chatID is a configured user and admin. Counting and
// rejection follow IsAuthorized.
func (d *Dispatcher) IsAdmin(ctx context.Context, chatID int64) bool {
	if d.Config().IsAdmin(chatID) {
		d.identity.count()
		return true
	}
	d.reject(ctx, chatID, "admin", msgAdminsOnly)
	return false
}

func (d *Dispatcher) reject(ctx context.Context, chatID int64, gate, notice string) {
	logger.LogEvent(ctx, logger.BOT, slog.LevelInfo, "gate.denied",
		slog.String("status", "ok"),
		slog.String("outcome", "denied"),
		slog.String("gate", gate),
		slog.Int64("chat_id", chatID),
	)
	if err := d.transport.Send(ctx, chatID, notice, nil); err != nil {
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "send.failed",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}

// OnTextMessage handles plain text: the chat must be authorized, and a chat in
// a dialog gets its transition applied. Other text is accepted silently.
func (d *Dispatcher) OnTextMessage(c tele.Context) error {
	return d.handleText(middleware.Context(c), middleware.ChatID(c), c.Text())
}

func (d *Dispatcher) handleText(ctx context.Context, chatID int64, text string) error {
	if !d.IsAuthorized(ctx, chatID) {
		return nil
	}
	if !d.states.InProgress(chatID) {
		return nil
	}
	current := d.states.GetState(chatID)
	tr := d.transition(current)
	if tr == nil {
		logger.LogEvent(ctx, logger.BOT, slog.LevelWarn, "dialog.orphan",
			slog.String("status", "fail"),
			slog.String("state", string(current)),
		)
		d.states.ClearState(chatID)
		return nil
	}
	next, actions := tr(current, text)
	logger.LogEvent(ctx, logger.BOT, slog.LevelDebug, "dialog.transition",
		slog.String("status", "ok"),
		slog.String("state", string(current)),
		slog.String("next_state", string(next)),
		slog.Int("actions", len(actions)),
	)
	return d.execute(ctx, chatID, next, actions)
}

// RegisterCommand adds a command and binds it to the transport. name must start with "/".
func (d *Dispatcher) RegisterCommand(name string, cmd telegram.Command) error {
	if err := d.registry.RegisterCommand(name, cmd); err != nil {
		return err
	}
	d.bind(router.CommandRoute(name, cmd, d)...)
	return nil
}

// RegisterTransition sets the transition applied to text from chats in st.
func (d *Dispatcher) RegisterTransition(st state.State, tr Transition) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tr == nil {
		delete(d.transitions, st)
		return
	}
	d.transitions[st] = tr
}

func (d *Dispatcher) transition(st state.State) Transition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.transitions[st]
}

// Await puts the chat into st; its next plain text goes to the transition of st.
func (d *Dispatcher) Await(chatID int64, st state.State) {
	d.states.SetState(chatID, st)
}

// Release returns the chat to idle.
func (d *Dispatcher) Release(chatID int64) {
	d.states.ClearState(chatID)
}

// DialogState returns the current dialog state of the chat.
func (d *Dispatcher) DialogState(chatID int64) state.State {
	return d.states.GetState(chatID)
}

// ReloadConfig re-reads the configuration from the store and activates it if it
// passes strict validation. On error the active configuration is kept.
func (d *Dispatcher) ReloadConfig(ctx context.Context) error {
	if d.store == nil {
		return errors.New("no config store")
	}
	data, err := d.store.Load(ctx)
	if err != nil {
		d.logConfig(ctx, "config.reload", err)
		return err
	}
	cfg, err := config.Decode(data, config.Strict)
	if err != nil {
		d.logConfig(ctx, "config.reload", err)
		return err
	}
	d.live.Swap(cfg)
	d.logConfig(ctx, "config.reload", nil)
	return nil
}

// applyConfig persists raw and activates cfg. Nothing changes if saving fails.
func (d *Dispatcher) applyConfig(ctx context.Context, raw string, cfg *config.Config) error {
	if d.store == nil {
		return errors.New("no config store")
	}
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := d.store.Save(ctx, []byte(raw)); err != nil {
		d.logConfig(ctx, "config.edit", err)
		return err
	}
	d.live.Swap(cfg)
	d.logConfig(ctx, "config.edit", nil)
	return nil
}

func (d *Dispatcher) logConfig(ctx context.Context, event string, err error) {
	if err != nil {
		logger.LogEvent(ctx, logger.CFG, slog.LevelWarn, event,
			slog.String("status", "fail"),
			slog.String("outcome", "invalid"),
			slog.String("store", d.describeStore()),
			slog.String("err", err.Error()),
		)
		return
	}
	cfg := d.Config()
	logger.LogEvent(ctx, logger.CFG, slog.LevelInfo, event,
		slog.String("status", "ok"),
		slog.String("store", d.describeStore()),
		slog.Int("users", len(cfg.Users)),
		slog.Int("admins", len(cfg.Admins)),
	)
}

func (d *Dispatcher) describeStore() string {
	if d.store == nil {
		return "none"
	}
	return d.store.Describe()
}

// Config returns the active configuration.
func (d *Dispatcher) Config() *config.Config {
	return d.live.Current()
}

// Identity returns version, start time and message counter.
func (d *Dispatcher) Identity() *Identity {
	return d.identity
}

// Commands returns the registered commands keyed by "/name".
func (d *Dispatcher) Commands() map[string]telegram.Command {
	return d.registry.Commands()
}

func (d *Dispatcher) onError(ctx context.Context, err error) {
	logger.LogEvent(ctx, logger.TG, slog.LevelError, "handler.error",
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
}
