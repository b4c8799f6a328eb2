package telegram

import (
	"github.com/m3rciful/chatgate/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Middleware names a shared middleware for wiring logs.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// DefaultMiddlewares builds the chain every update passes before its handler.
func DefaultMiddlewares() []Middleware {
	return []Middleware{
		{Name: "recover", Use: middleware.Recover},
		{Name: "logger", Use: middleware.Logger},
		{Name: "metrics", Use: middleware.Metrics},
	}
}
