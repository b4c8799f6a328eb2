package middleware

import (
	"context"
	"log/slog"

	"github.com/m3rciful/chatgate/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Level selects which gate a handler sits behind.
type Level int

const (
	// LevelPublic lets every chat through.
	LevelPublic Level = iota
	// LevelUser requires the chat to be a configured user.
	LevelUser
	// LevelAdmin requires the chat to be a configured admin.
	LevelAdmin
)

// Authorizer decides access per chat. Implementations notify rejected chats themselves.
type Authorizer interface {
	IsAuthorized(ctx context.Context, chatID int64) bool
	IsAdmin(ctx context.Context, chatID int64) bool
}

// Access drops updates from chats that fail the gate for level.
func Access(auth Authorizer, level Level) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if auth == nil || level == LevelPublic {
			return next
		}
		return func(c tele.Context) error {
			ctx := Context(c)
			chatID := ChatID(c)
			allowed := false
			switch level {
			case LevelAdmin:
				allowed = auth.IsAdmin(ctx, chatID)
			default:
				allowed = auth.IsAuthorized(ctx, chatID)
			}
			if !allowed {
				logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "access.skip",
					slog.String("status", "ok"),
					slog.String("outcome", "denied"),
				)
				return nil
			}
			return next(c)
		}
	}
}
