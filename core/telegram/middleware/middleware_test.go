package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/chatgate/core/logger"

	tele "gopkg.in/telebot.v4"
)

type fakeAuth struct {
	users, admins map[int64]bool
	calls         []string
}

func (f *fakeAuth) IsAuthorized(_ context.Context, chatID int64) bool {
	f.calls = append(f.calls, "user")
	return f.users[chatID]
}

func (f *fakeAuth) IsAdmin(_ context.Context, chatID int64) bool {
	f.calls = append(f.calls, "admin")
	return f.admins[chatID]
}

func newContext(t *testing.T, updateID int, chatID int64, text string) tele.Context {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Token: "123:offline", Offline: true})
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	return b.NewContext(tele.Update{
		ID: updateID,
		Message: &tele.Message{
			Text:   text,
			Chat:   &tele.Chat{ID: chatID, Type: tele.ChatPrivate},
			Sender: &tele.User{ID: chatID, Username: "anna"},
		},
	})
}

func TestAccessLevels(t *testing.T) {
	auth := &fakeAuth{users: map[int64]bool{7: true, 42: true}, admins: map[int64]bool{42: true}}
	var reached []int64
	next := func(c tele.Context) error {
		reached = append(reached, ChatID(c))
		return nil
	}

	user := Access(auth, LevelUser)(next)
	admin := Access(auth, LevelAdmin)(next)
	public := Access(auth, LevelPublic)(next)

	for _, id := range []int64{7, 42, 99} {
		_ = user(newContext(t, 1, id, "/x"))
		_ = admin(newContext(t, 1, id, "/x"))
		_ = public(newContext(t, 1, id, "/x"))
	}
	want := []int64{7, 7, 42, 42, 42, 99}
	if len(reached) != len(want) {
		t.Fatalf("reached = %v, want %v", reached, want)
	}
	for i := range want {
		if reached[i] != want[i] {
			t.Fatalf("reached = %v, want %v", reached, want)
		}
	}
	if len(auth.calls) != 6 {
		t.Fatalf("authorizer calls = %v", auth.calls)
	}
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	h := Recover(func(tele.Context) error { panic("boom") })
	if err := h(newContext(t, 1, 1, "")); err == nil {
		t.Fatal("expected error from recovered panic")
	}
	sentinel := errors.New("x")
	h = Recover(func(tele.Context) error { return sentinel })
	if err := h(newContext(t, 1, 1, "")); !errors.Is(err, sentinel) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoggerStoresContext(t *testing.T) {
	var ctx context.Context
	h := Logger(func(c tele.Context) error {
		ctx = Context(c)
		return nil
	})
	_ = h(newContext(t, 5, 42, "/info"))
	if logger.RIDFrom(ctx) == "" || logger.ChatIDFrom(ctx) != 42 || logger.UpdateIDFrom(ctx) != 5 {
		t.Fatalf("context not enriched: rid=%q chat=%d", logger.RIDFrom(ctx), logger.ChatIDFrom(ctx))
	}
}

func TestContextBuildsWithoutLogger(t *testing.T) {
	c := newContext(t, 9, 7, "hi")
	ctx := Context(c)
	if logger.ChatIDFrom(ctx) != 7 || logger.UserIDFrom(ctx) != 7 {
		t.Fatalf("chat=%d user=%d", logger.ChatIDFrom(ctx), logger.UserIDFrom(ctx))
	}
	if Context(c) != ctx {
		t.Fatal("context must be cached on first use")
	}
	if got := logger.HandlerFrom(WithHandler(c, "info")); got != "info" {
		t.Fatalf("handler = %q", got)
	}
}

func TestMetricsCounters(t *testing.T) {
	c := newContext(t, 1, 1, "")
	h := Recover(Metrics(func(c tele.Context) error {
		ctx := Context(c)
		CountSend(ctx, false)
		CountSend(ctx, true)
		return nil
	}))
	_ = h(c)
	if msgs, kb := GetCounters(c); msgs != 2 || !kb {
		t.Fatalf("counters = %d, %v", msgs, kb)
	}
	CountSend(context.Background(), true)
	if n, _ := GetCounters(newContext(t, 2, 1, "")); n != 0 {
		t.Fatal("counters without Metrics must be zero")
	}
}
