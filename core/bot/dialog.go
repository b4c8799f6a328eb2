package bot

import (
	"fmt"
	"strings"

	"github.com/m3rciful/chatgate/core/config"
	"github.com/m3rciful/chatgate/core/telegram/keyboard"
	"github.com/m3rciful/chatgate/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// Dialog states of the config flow.
const (
	StateConfigMenu state.State = "config.menu"
	StateConfigEdit state.State = "config.edit"
)

// Transition computes the next state of a chat and what to do for the text it sent.
// Transitions must not touch the Dispatcher; side effects are expressed as actions.
type Transition func(current state.State, text string) (state.State, []Action)

// Action is a side effect requested by a Transition.
type Action interface {
	action()
}

// Reply sends Text with an optional keyboard.
type Reply struct {
	Text   string
	Markup *tele.ReplyMarkup
}

// ShowConfig sends the active configuration text.
type ShowConfig struct{}

// ReloadConfig re-reads the configuration from the store.
type ReloadConfig struct{}

// ApplyConfig persists Raw and activates Config. On failure the chat is
// returned to StateConfigEdit.
type ApplyConfig struct {
	Raw    string
	Config *config.Config
}

// CancelDialog ends the dialog and confirms it.
type CancelDialog struct{}

func (Reply) action()        {}
func (ShowConfig) action()   {}
func (ReloadConfig) action() {}
func (ApplyConfig) action()  {}
func (CancelDialog) action() {}

func configMenu() *tele.ReplyMarkup {
	return keyboard.OneTime(
		[]string{btnContent, btnReload},
		[]string{btnEdit, btnCancel},
	)
}

func configMenuTransition(_ state.State, text string) (state.State, []Action) {
	switch text {
	case btnContent:
		return state.StateIdle, []Action{ShowConfig{}}
	case btnReload:
		return state.StateIdle, []Action{ReloadConfig{}}
	case btnEdit:
		return StateConfigEdit, []Action{Reply{Text: msgEditPrompt, Markup: keyboard.ForceReply()}}
	case btnCancel:
		return state.StateIdle, []Action{CancelDialog{}}
	default:
		return StateConfigMenu, []Action{Reply{Text: msgMenuRetry, Markup: configMenu()}}
	}
}

func configEditTransition(_ state.State, text string) (state.State, []Action) {
	cfg, err := config.Decode([]byte(text), config.Strict)
	if err != nil {
		return StateConfigEdit, []Action{invalidConfigReply(err)}
	}
	return state.StateIdle, []Action{ApplyConfig{Raw: text, Config: cfg}}
}

func invalidConfigReply(err error) Reply {
	return Reply{Text: fmt.Sprintf(msgEditInvalid, reason(err)), Markup: keyboard.ForceReply()}
}

// reason strips the sentinel prefix and trailing period from a config error.
func reason(err error) string {
	msg := strings.TrimPrefix(err.Error(), config.ErrInvalid.Error()+": ")
	return strings.TrimSuffix(msg, ".")
}
