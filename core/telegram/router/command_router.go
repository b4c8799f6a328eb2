package router

import (
	"log/slog"

	"github.com/m3rciful/chatgate/core/logger"
	tg "github.com/m3rciful/chatgate/core/telegram"
	"github.com/m3rciful/chatgate/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRoutes prepares command handlers, aliases included, wrapped with shared
// middleware. Admin-only commands sit behind the admin gate, the rest behind the user gate.
func CommandRoutes(reg *tg.Registry, auth middleware.Authorizer) []tg.Route {
	if reg == nil {
		return nil
	}
	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for key, def := range cmds {
		routes = append(routes, CommandRoute(key, def, auth)...)
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(cmds)),
		slog.Int("routes", len(routes)),
	)
	return routes
}

// CommandRoute wraps one command and returns a route for its name and each alias.
func CommandRoute(key string, def tg.Command, auth middleware.Authorizer) []tg.Route {
	level := middleware.LevelUser
	if def.AdminOnly {
		level = middleware.LevelAdmin
	}
	h := wrap(normalizeHandlerName(key), def.Handler, middleware.Access(auth, level))
	routes := []tg.Route{{Endpoint: key, Handler: h}}
	for _, alias := range def.Aliases {
		if alias == "" {
			continue
		}
		if alias[0] != '/' {
			alias = "/" + alias
		}
		routes = append(routes, tg.Route{Endpoint: alias, Handler: h})
	}
	return routes
}

// wrap applies gates around the summarized handler. Recover, logger and
// metrics run earlier, from the transport's shared chain.
func wrap(name string, h tele.HandlerFunc, gates ...tele.MiddlewareFunc) tele.HandlerFunc {
	h = withSummary(name, h)
	for i := len(gates) - 1; i >= 0; i-- {
		h = gates[i](h)
	}
	return h
}
