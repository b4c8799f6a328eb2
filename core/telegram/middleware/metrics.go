package middleware

import (
	"context"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

type countersKey struct{}

const countersName = "counters"

type counters struct {
	messages atomic.Int64
	keyboard atomic.Bool
}

// Metrics attaches per-update reply counters to c and to its stored context.
// Replies go out through the transport with that context, so CountSend
// reaches the same counters GetCounters reads.
func Metrics(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		cnt := &counters{}
		c.Set(countersName, cnt)
		StoreContext(c, context.WithValue(Context(c), countersKey{}, cnt))
		return next(c)
	}
}

// CountSend records one outbound message for the current update.
func CountSend(ctx context.Context, withKeyboard bool) {
	cnt, _ := ctx.Value(countersKey{}).(*counters)
	if cnt == nil {
		return
	}
	cnt.messages.Add(1)
	if withKeyboard {
		cnt.keyboard.Store(true)
	}
}

// GetCounters reads message count and keyboard presence for the current update.
func GetCounters(c tele.Context) (int, bool) {
	cnt, _ := c.Get(countersName).(*counters)
	if cnt == nil {
		return 0, false
	}
	return int(cnt.messages.Load()), cnt.keyboard.Load()
}
