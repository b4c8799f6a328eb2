package bot

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// HelpRequest carries what a HelpProvider may render.
type HelpRequest struct {
	ChatID int64
	// Admin is true when the chat passes the admin check.
	Admin bool
	// Commands lists the commands visible to this chat, sorted by name.
	Commands []tele.Command
}

// HelpProvider renders the /help answer. An empty result sends nothing.
type HelpProvider interface {
	Help(ctx context.Context, req HelpRequest) string
}

// HelpFunc adapts a function to HelpProvider.
type HelpFunc func(ctx context.Context, req HelpRequest) string

// Help implements HelpProvider.
func (f HelpFunc) Help(ctx context.Context, req HelpRequest) string {
	return f(ctx, req)
}

// CommandList renders header followed by one "/name - description" line per command.
func CommandList(header string) HelpProvider {
	return HelpFunc(func(_ context.Context, req HelpRequest) string {
		var b strings.Builder
		if header != "" {
			b.WriteString(header)
			b.WriteString("\n\n")
		}
		for _, c := range req.Commands {
			fmt.Fprintf(&b, "/%s - %s\n", c.Text, c.Description)
		}
		return strings.TrimRight(b.String(), "\n")
	})
}
