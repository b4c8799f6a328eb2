package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	coreconfig "github.com/m3rciful/chatgate/core/config"
	"github.com/m3rciful/chatgate/core/logger"
	"github.com/m3rciful/chatgate/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Transport is the messaging platform as seen by the dispatcher.
type Transport interface {
	// Send delivers text to a chat. opts may be nil.
	Send(ctx context.Context, chatID int64, text string, opts *tele.SendOptions) error
	// Handle binds h to an endpoint: "/name", OnText or OnUnknownCommand.
	Handle(endpoint string, h tele.HandlerFunc)
	// OnError receives handler errors that were not answered in chat.
	OnError(fn func(ctx context.Context, err error))
	// SetCommands publishes the command menu.
	SetCommands(cmds []tele.Command) error
	// Start receives updates until ctx is done.
	Start(ctx context.Context) error
}

// TransportOptions configures NewTransport.
type TransportOptions struct {
	Token  string
	Poller PollerOptions
	// Client overrides the HTTP client built from the poll timeout.
	Client *http.Client
	// Offline skips the getMe call at construction.
	Offline bool
	// APIURL overrides the Bot API endpoint.
	APIURL string
	// Synchronous runs handlers on the update goroutine.
	Synchronous bool
}

// TeleTransport implements Transport on top of telebot.
type TeleTransport struct {
	bot    *tele.Bot
	poller PollerOptions

	mu      sync.RWMutex
	text    tele.HandlerFunc
	unknown tele.HandlerFunc
	onError func(context.Context, error)
}

var _ Transport = (*TeleTransport)(nil)

// NewTransport connects to the Bot API and returns a transport ready for Handle calls.
func NewTransport(opts TransportOptions) (*TeleTransport, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram: empty token")
	}
	client := opts.Client
	if client == nil {
		client = BuildHTTPClient(opts.Poller.timeout())
	}
	t := &TeleTransport{poller: opts.Poller}

	poller := BuildPoller(opts.Poller)
	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		URL:         opts.APIURL,
		Token:       opts.Token,
		Poller:      poller,
		Client:      client,
		Offline:     opts.Offline,
		Synchronous: opts.Synchronous,
		OnError:     t.handleError,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	t.bot = bot
	took := logger.RoundMS(time.Since(buildStart))

	switch p := poller.(type) {
	case *tele.Webhook:
		logger.TG.LogAttrs(context.Background(), slog.LevelInfo, "webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", took),
		)
	default:
		logger.TG.LogAttrs(context.Background(), slog.LevelInfo, "polling mode",
			slog.String("event", "mode"),
			slog.String("mode", "polling"),
			slog.Int("timeout_seconds", int(opts.Poller.timeout()/time.Second)),
			slog.Duration("duration", took),
		)
	}

	mws := DefaultMiddlewares()
	names := make([]string, 0, len(mws))
	for _, m := range mws {
		bot.Use(m.Use)
		names = append(names, m.Name)
	}
	logger.TWire.LogAttrs(context.Background(), slog.LevelDebug, "register.middleware",
		slog.String("chain", strings.Join(names, ",")),
	)
	bot.Handle(tele.OnText, t.routeText)
	return t, nil
}

// Username reports the bot account name, empty when offline.
func (t *TeleTransport) Username() string {
	if t.bot == nil || t.bot.Me == nil {
		return ""
	}
	return t.bot.Me.Username
}

// Send implements Transport.
func (t *TeleTransport) Send(_ context.Context, chatID int64, text string, opts *tele.SendOptions) error {
	var err error
	if opts != nil {
		_, err = t.bot.Send(tele.ChatID(chatID), text, opts)
	} else {
		_, err = t.bot.Send(tele.ChatID(chatID), text)
	}
	return err
}

// Handle implements Transport.
func (t *TeleTransport) Handle(endpoint string, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	switch endpoint {
	case OnText:
		t.mu.Lock()
		t.text = h
		t.mu.Unlock()
	case OnUnknownCommand:
		t.mu.Lock()
		t.unknown = h
		t.mu.Unlock()
	default:
		t.bot.Handle(endpoint, h)
	}
	logger.TWire.LogAttrs(context.Background(), slog.LevelDebug, "register.route",
		slog.String("handler", endpoint),
	)
}

// OnError implements Transport.
func (t *TeleTransport) OnError(fn func(ctx context.Context, err error)) {
	t.mu.Lock()
	t.onError = fn
	t.mu.Unlock()
}

// SetCommands implements Transport.
func (t *TeleTransport) SetCommands(cmds []tele.Command) error {
	return t.bot.SetCommands(cmds)
}

// Start implements Transport. It returns nil once ctx is cancelled.
func (t *TeleTransport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !t.poller.webhook() {
		if err := t.bot.RemoveWebhook(t.poller.DropPending); err != nil {
			logger.TG.Warn("failed to delete webhook",
				slog.String("event", "delete_webhook"),
				slog.String("mode", "polling"),
				slog.String("err", err.Error()),
			)
		} else {
			logger.TG.Info("webhook deleted",
				slog.String("event", "delete_webhook"),
				slog.String("mode", "polling"),
				slog.Bool("drop_pending", t.poller.DropPending),
			)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.bot.Start()
	}()
	logger.TG.Info("bot started", slog.String("event", "start"), slog.String("username", t.Username()))

	<-ctx.Done()
	t.bot.Stop()
	<-done
	logger.TG.Info("bot stopped", slog.String("event", "stop"))
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// routeText splits OnText updates into unmatched commands and plain text.
// A lone "/" or "/ text" names no command and counts as text.
func (t *TeleTransport) routeText(c tele.Context) error {
	t.mu.RLock()
	h := t.text
	if _, ok := CommandName(c.Text()); ok {
		h = t.unknown
	}
	t.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h(c)
}

func (t *TeleTransport) handleError(err error, c tele.Context) {
	ctx := context.Background()
	if c != nil {
		ctx = middleware.Context(c)
	}
	t.mu.RLock()
	fn := t.onError
	t.mu.RUnlock()
	if fn != nil {
		fn(ctx, err)
		return
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelError, "handler.error", slog.String("err", err.Error()))
}

// Connect builds a TeleTransport from configuration.
func Connect(cfg *coreconfig.Config) (Transport, error) {
	t, err := NewTransport(TransportOptions{
		Token:  cfg.Token,
		Poller: PollerOptionsFrom(cfg),
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
