package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/m3rciful/chatgate/core/logger"
	"github.com/m3rciful/chatgate/core/telegram"
	"github.com/m3rciful/chatgate/core/telegram/keyboard"
	"github.com/m3rciful/chatgate/core/telegram/middleware"
	"github.com/m3rciful/chatgate/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

func (d *Dispatcher) registerBuiltins() error {
	builtins := []struct {
		name string
		cmd  telegram.Command
	}{
		{"/info", telegram.Command{Handler: d.cmdInfo, Description: "Version, Laufzeit und Nachrichtenzähler"}},
		{"/help", telegram.Command{Handler: d.cmdHelp, Description: "Hilfe anzeigen", Aliases: []string{"start"}}},
		{"/cancel", telegram.Command{Handler: d.cmdCancel, Description: "Aktuellen Dialog abbrechen"}},
		{"/config", telegram.Command{Handler: d.cmdConfig, Description: "Konfiguration anzeigen oder ändern", AdminOnly: true}},
	}
	for _, b := range builtins {
		if err := d.registry.RegisterCommand(b.name, b.cmd); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) cmdInfo(c tele.Context) error {
	id := d.identity
	now := d.now()
	text := fmt.Sprintf(msgInfo, id.Version, FormatDate(id.StartedAt), id.Uptime(now), id.Messages())
	return d.SendMessage(middleware.Context(c), middleware.ChatID(c), text, nil)
}

func (d *Dispatcher) cmdHelp(c tele.Context) error {
	if d.help == nil {
		return nil
	}
	ctx, chatID := middleware.Context(c), middleware.ChatID(c)
	admin := d.Config().IsAdmin(chatID)
	text := d.help.Help(ctx, HelpRequest{
		ChatID:   chatID,
		Admin:    admin,
		Commands: d.visibleCommands(admin),
	})
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return d.SendMessage(ctx, chatID, text, nil)
}

// visibleCommands lists non-hidden commands; admin-only ones only for admins.
func (d *Dispatcher) visibleCommands(admin bool) []tele.Command {
	var out []tele.Command
	for name, c := range d.registry.Commands() {
		if c.Hidden || (c.AdminOnly && !admin) {
			continue
		}
		out = append(out, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: c.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}

func (d *Dispatcher) cmdCancel(c tele.Context) error {
	chatID := middleware.ChatID(c)
	return d.cancel(middleware.Context(c), chatID, d.states.GetState(chatID))
}

// cancel returns the chat to idle. prev is the state the dialog was in.
func (d *Dispatcher) cancel(ctx context.Context, chatID int64, prev state.State) error {
	d.Release(chatID)
	logger.LogEvent(ctx, logger.BOT, slog.LevelInfo, "dialog.cancel",
		slog.String("status", "ok"),
		slog.String("outcome", "cancelled"),
		slog.String("state", string(prev)),
	)
	return d.SendMessage(ctx, chatID, msgCancelled, &tele.SendOptions{ReplyMarkup: keyboard.RemoveKeyboard()})
}

func (d *Dispatcher) cmdConfig(c tele.Context) error {
	chatID := middleware.ChatID(c)
	if err := d.SendMessage(middleware.Context(c), chatID, msgMenuPrompt, &tele.SendOptions{ReplyMarkup: configMenu()}); err != nil {
		return err
	}
	d.Await(chatID, StateConfigMenu)
	return nil
}

// execute moves the chat to next and runs actions in order.
func (d *Dispatcher) execute(ctx context.Context, chatID int64, next state.State, actions []Action) error {
	prev := d.states.GetState(chatID)
	d.states.SetState(chatID, next)
	removeKB := &tele.SendOptions{ReplyMarkup: keyboard.RemoveKeyboard()}

	var errs []error
	for _, a := range actions {
		var err error
		switch a := a.(type) {
		case Reply:
			var opts *tele.SendOptions
			if a.Markup != nil {
				opts = &tele.SendOptions{ReplyMarkup: a.Markup}
			}
			err = d.SendMessage(ctx, chatID, a.Text, opts)
		case ShowConfig:
			err = d.showConfig(ctx, chatID)
		case ReloadConfig:
			if rerr := d.ReloadConfig(ctx); rerr != nil {
				err = d.SendMessage(ctx, chatID, fmt.Sprintf(msgReloadFailed, reason(rerr)), removeKB)
			} else {
				err = d.SendMessage(ctx, chatID, msgDone, removeKB)
			}
		case ApplyConfig:
			if aerr := d.applyConfig(ctx, a.Raw, a.Config); aerr != nil {
				d.Await(chatID, StateConfigEdit)
				reply := invalidConfigReply(aerr)
				err = d.SendMessage(ctx, chatID, reply.Text, &tele.SendOptions{ReplyMarkup: reply.Markup})
			} else {
				err = d.SendMessage(ctx, chatID, msgDone, removeKB)
			}
		case CancelDialog:
			err = d.cancel(ctx, chatID, prev)
		default:
			err = fmt.Errorf("unknown action %T", a)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) showConfig(ctx context.Context, chatID int64) error {
	text, err := d.Config().Text()
	if err != nil {
		return err
	}
	parts := chunkText(text, maxMessageLen)
	for i, part := range parts {
		var opts *tele.SendOptions
		if i == len(parts)-1 {
			opts = &tele.SendOptions{ReplyMarkup: keyboard.RemoveKeyboard()}
		}
		if err := d.SendMessage(ctx, chatID, part, opts); err != nil {
			return err
		}
	}
	return nil
}
