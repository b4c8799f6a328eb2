package telegram

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Endpoints understood by Transport.Handle besides "/command" names.
const (
	// OnText receives plain text that is not a command.
	OnText = tele.OnText
	// OnUnknownCommand receives "/..." messages no command handler matched.
	OnUnknownCommand = "\aunknown_command"
)

// Route declares a single handler bound to an endpoint.
type Route struct {
	Endpoint string
	Handler  tele.HandlerFunc
}

// CommandName extracts "/name" from text such as "/name@bot payload".
func CommandName(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := text
	if i := strings.IndexAny(name, " \n\t"); i >= 0 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if len(name) < 2 {
		return "", false
	}
	return strings.ToLower(name), true
}
