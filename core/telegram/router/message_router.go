package router

import (
	tg "github.com/m3rciful/chatgate/core/telegram"
	"github.com/m3rciful/chatgate/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// TextRoute binds plain text to h. The handler does its own authorization.
func TextRoute(h tele.HandlerFunc) tg.Route {
	return tg.Route{Endpoint: tg.OnText, Handler: wrap("text", h)}
}

// FallbackRoute answers commands nobody registered, for authorized chats only.
func FallbackRoute(h tele.HandlerFunc, auth middleware.Authorizer) tg.Route {
	return tg.Route{
		Endpoint: tg.OnUnknownCommand,
		Handler:  wrap("unknown_command", h, middleware.Access(auth, middleware.LevelUser)),
	}
}

// Bind registers routes on the transport.
func Bind(t tg.Transport, routes ...tg.Route) {
	for _, r := range routes {
		t.Handle(r.Endpoint, r.Handler)
	}
}
