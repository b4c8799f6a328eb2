package telegram

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/chatgate/core/config"

	tele "gopkg.in/telebot.v4"
)

// DefaultLongPollTimeout bounds a single getUpdates request.
const DefaultLongPollTimeout = 30 * time.Second

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen string
	Port   int
	URL    string
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
	// DropPending discards the update backlog present at start.
	DropPending bool
}

// PollerOptionsFrom maps configuration onto PollerOptions.
func PollerOptionsFrom(cfg *coreconfig.Config) PollerOptions {
	return PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
		DropPending: !cfg.Telegram.KeepPendingUpdates,
	}
}

func (o PollerOptions) webhook() bool {
	return strings.EqualFold(strings.TrimSpace(o.RunMode), coreconfig.RunModeWebhook)
}

func (o PollerOptions) timeout() time.Duration {
	if o.LongPollTimeoutSeconds <= 0 {
		return DefaultLongPollTimeout
	}
	return time.Duration(o.LongPollTimeoutSeconds) * time.Second
}

// BuildPoller returns a Telebot poller based on provided options.
func BuildPoller(opts PollerOptions) tele.Poller {
	if opts.webhook() {
		return &tele.Webhook{
			Listen:      fmt.Sprintf("%s:%d", opts.Webhook.Listen, opts.Webhook.Port),
			Endpoint:    &tele.WebhookEndpoint{PublicURL: opts.Webhook.URL},
			DropUpdates: opts.DropPending,
		}
	}
	return &tele.LongPoller{Timeout: opts.timeout()}
}
