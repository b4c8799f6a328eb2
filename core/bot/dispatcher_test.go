package bot

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/chatgate/core/config"
	"github.com/m3rciful/chatgate/core/logger"
	"github.com/m3rciful/chatgate/core/telegram"
	"github.com/m3rciful/chatgate/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

const baseConfig = `telegram_bot_token: "123:abc"
users: [42, 43]
admins: [42]
`

type sent struct {
	chatID int64
	text   string
	opts   *tele.SendOptions
}

type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]tele.HandlerFunc
	sent     []sent
	commands []tele.Command
	sendErr  error
	started  bool
	onError  func(context.Context, error)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]tele.HandlerFunc)}
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, text string, opts *tele.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sent{chatID: chatID, text: text, opts: opts})
	return nil
}

func (f *fakeTransport) Handle(endpoint string, h tele.HandlerFunc) {
	f.handlers[endpoint] = h
}

func (f *fakeTransport) OnError(fn func(context.Context, error)) { f.onError = fn }

func (f *fakeTransport) SetCommands(cmds []tele.Command) error {
	f.commands = cmds
	return nil
}

func (f *fakeTransport) Start(ctx context.Context) error {
	f.started = true
	<-ctx.Done()
	return nil
}

func (f *fakeTransport) take() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

type memStore struct {
	data    []byte
	saveErr error
	saves   int
}

func (s *memStore) Load(context.Context) ([]byte, error) { return s.data, nil }

func (s *memStore) Save(_ context.Context, data []byte) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.data = append([]byte(nil), data...)
	return nil
}

func (s *memStore) Describe() string { return "mem" }

type harness struct {
	t     *testing.T
	d     *Dispatcher
	tr    *fakeTransport
	store *memStore
	bot   *tele.Bot
}

func newHarness(t *testing.T, help HelpProvider) *harness {
	t.Helper()
	cfg, err := config.Decode([]byte(baseConfig), config.Lenient)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tr := newFakeTransport()
	store := &memStore{data: []byte(baseConfig)}
	d, err := New(Options{
		Config:  cfg,
		Store:   store,
		Connect: func(*config.Config) (telegram.Transport, error) { return tr, nil },
		Help:    help,
		Version: "1.2.3",
		Now:     func() time.Time { return time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := tele.NewBot(tele.Settings{Token: "123:offline", Offline: true})
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	return &harness{t: t, d: d, tr: tr, store: store, bot: b}
}

// update builds the context telebot hands to handlers for a private text message.
func (h *harness) update(chatID int64, text string) tele.Context {
	return h.bot.NewContext(tele.Update{
		ID: 1,
		Message: &tele.Message{
			Text:   text,
			Chat:   &tele.Chat{ID: chatID, Type: tele.ChatPrivate},
			Sender: &tele.User{ID: chatID},
		},
	})
}

func (h *harness) send(endpoint string, chatID int64, text string) {
	h.t.Helper()
	handler, ok := h.tr.handlers[endpoint]
	if !ok {
		h.t.Fatalf("no handler for %q", endpoint)
	}
	if err := handler(h.update(chatID, text)); err != nil {
		h.t.Fatalf("%s %q: %v", endpoint, text, err)
	}
}

func (h *harness) command(chatID int64, name string) { h.send(name, chatID, name) }

func (h *harness) text(chatID int64, text string) { h.send(telegram.OnText, chatID, text) }

func TestIsAuthorized(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if !h.d.IsAuthorized(ctx, 42) {
		t.Fatal("42 must be authorized")
	}
	if got := h.d.Identity().Messages(); got != 1 {
		t.Fatalf("messages = %d, want 1", got)
	}
	if len(h.tr.take()) != 0 {
		t.Fatal("authorized chat must not receive a notice")
	}

	if h.d.IsAuthorized(ctx, 7) {
		t.Fatal("7 must be rejected")
	}
	out := h.tr.take()
	if len(out) != 1 || out[0].chatID != 7 || out[0].text != "Unauthorized: 7" {
		t.Fatalf("sent = %+v", out)
	}
	if got := h.d.Identity().Messages(); got != 1 {
		t.Fatalf("rejection changed the counter: %d", got)
	}
}

func TestIsAdmin(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	cases := []struct {
		chatID int64
		want   bool
	}{
		{42, true},
		{43, false}, // user, not admin
		{7, false},  // neither
	}
	for _, tc := range cases {
		if got := h.d.IsAdmin(ctx, tc.chatID); got != tc.want {
			t.Fatalf("IsAdmin(%d) = %v", tc.chatID, got)
		}
		out := h.tr.take()
		if tc.want && len(out) != 0 {
			t.Fatalf("admin %d got notice %+v", tc.chatID, out)
		}
		if !tc.want && (len(out) != 1 || out[0].text != "Nur für Admins") {
			t.Fatalf("non-admin %d sent = %+v", tc.chatID, out)
		}
	}
}

func TestIsAdminRequiresAdminsKey(t *testing.T) {
	cfg, err := config.Decode([]byte("telegram_bot_token: x\nusers: [42]\n"), config.Lenient)
	if err != nil {
		t.Fatal(err)
	}
	tr := newFakeTransport()
	d, err := New(Options{
		Config:  cfg,
		Connect: func(*config.Config) (telegram.Transport, error) { return tr, nil },
		Version: "v",
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.IsAdmin(context.Background(), 42) {
		t.Fatal("no admins key means nobody is admin")
	}
}

func TestInfoCountsTwicePerCall(t *testing.T) {
	h := newHarness(t, nil)
	h.command(42, "/info")
	if got := h.d.Identity().Messages(); got != 2 {
		t.Fatalf("after first info: %d", got)
	}
	h.command(42, "/info")
	if got := h.d.Identity().Messages(); got != 4 {
		t.Fatalf("after second info: %d", got)
	}
	out := h.tr.take()
	if len(out) != 2 {
		t.Fatalf("sent = %+v", out)
	}
	want := "Version: 1.2.3\nAm Leben seit: Mon 4. Mar - 10:30 (gerade eben)\nNachrichten verarbeitet: 3\n"
	if out[1].text != want {
		t.Fatalf("info = %q\nwant %q", out[1].text, want)
	}
}

func TestInfoFromNonMember(t *testing.T) {
	h := newHarness(t, nil)
	h.command(7, "/info")
	out := h.tr.take()
	if len(out) != 1 || out[0].text != "Unauthorized: 7" {
		t.Fatalf("sent = %+v", out)
	}
	if h.d.Identity().Messages() != 0 {
		t.Fatal("counter must stay unchanged")
	}
}

func TestConfigEditRejectAndCancel(t *testing.T) {
	h := newHarness(t, nil)

	h.command(42, "/config")
	out := h.tr.take()
	if len(out) != 1 || out[0].text != "Aktion?" {
		t.Fatalf("menu = %+v", out)
	}
	kb := out[0].opts.ReplyMarkup
	if !kb.OneTimeKeyboard || len(kb.ReplyKeyboard) != 2 || kb.ReplyKeyboard[1][0].Text != "Bearbeiten" {
		t.Fatalf("keyboard = %+v", kb)
	}
	if h.d.DialogState(42) != StateConfigMenu {
		t.Fatalf("state = %q", h.d.DialogState(42))
	}

	h.text(42, "Bearbeiten")
	out = h.tr.take()
	if len(out) != 1 || !strings.HasPrefix(out[0].text, "Inhalt der Config Datei eingeben!") || !out[0].opts.ReplyMarkup.ForceReply {
		t.Fatalf("edit prompt = %+v", out)
	}

	h.text(42, "telegram_bot_token: x\nusers: [42]\n")
	out = h.tr.take()
	if len(out) != 1 || !strings.HasPrefix(out[0].text, "Ungültige config: ") || !strings.Contains(out[0].text, "admins") {
		t.Fatalf("re-prompt = %+v", out)
	}
	if h.d.DialogState(42) != StateConfigEdit {
		t.Fatalf("state after invalid edit = %q", h.d.DialogState(42))
	}
	if !h.d.Config().IsAdmin(42) || h.store.saves != 0 {
		t.Fatal("invalid edit must not touch the configuration")
	}

	h.command(42, "/cancel")
	out = h.tr.take()
	if len(out) != 1 || out[0].text != "Abgebrochen" || !out[0].opts.ReplyMarkup.RemoveKeyboard {
		t.Fatalf("cancel = %+v", out)
	}
	if h.d.DialogState(42) != state.StateIdle {
		t.Fatal("cancel must clear the dialog")
	}

	h.text(42, "telegram_bot_token: y\nusers: [1]\nadmins: [1]\n")
	if out = h.tr.take(); len(out) != 0 {
		t.Fatalf("idle text produced %+v", out)
	}
}

func TestConfigEditApplies(t *testing.T) {
	h := newHarness(t, nil)
	h.command(42, "/config")
	h.text(42, "Bearbeiten")
	replacement := "telegram_bot_token: \"123:abc\"\nusers: [42, 7]\nadmins: [42]\nmotd: hallo\n"
	h.text(42, replacement)

	out := h.tr.take()
	if last := out[len(out)-1]; last.text != "Erledigt" {
		t.Fatalf("last reply = %+v", last)
	}
	if string(h.store.data) != replacement {
		t.Fatalf("store = %q", h.store.data)
	}
	if !h.d.Config().IsUser(7) || h.d.Config().Extra["motd"] != "hallo" {
		t.Fatal("live configuration not replaced")
	}
	if h.d.DialogState(42) != state.StateIdle {
		t.Fatal("dialog must end after a successful edit")
	}
	if !h.d.IsAuthorized(context.Background(), 7) {
		t.Fatal("new user must pass the gate")
	}
}

func TestConfigEditSaveFailureKeepsDialog(t *testing.T) {
	h := newHarness(t, nil)
	h.store.saveErr = errors.New("disk full")
	h.command(42, "/config")
	h.text(42, "Bearbeiten")
	h.text(42, "telegram_bot_token: z\nusers: [42]\nadmins: [42]\n")

	out := h.tr.take()
	if last := out[len(out)-1]; !strings.Contains(last.text, "disk full") {
		t.Fatalf("last reply = %+v", last)
	}
	if h.d.DialogState(42) != StateConfigEdit {
		t.Fatalf("state = %q", h.d.DialogState(42))
	}
	if h.d.Config().Token != "123:abc" {
		t.Fatal("configuration changed despite save failure")
	}
}

func TestConfigMenuChoices(t *testing.T) {
	h := newHarness(t, nil)

	h.command(42, "/config")
	h.text(42, "Vielleicht")
	out := h.tr.take()
	if last := out[len(out)-1]; last.text != "Bitte wähle eine der folgenden Möglichkeiten" || last.opts.ReplyMarkup == nil {
		t.Fatalf("retry = %+v", last)
	}
	if h.d.DialogState(42) != StateConfigMenu {
		t.Fatal("unknown choice must keep the menu")
	}

	h.text(42, "Inhalt")
	out = h.tr.take()
	if len(out) != 1 || out[0].text != baseConfig {
		t.Fatalf("content = %+v", out)
	}

	h.store.data = []byte("telegram_bot_token: n\nusers: [42, 99]\nadmins: [42]\n")
	h.command(42, "/config")
	h.text(42, "Neuladen")
	out = h.tr.take()
	if last := out[len(out)-1]; last.text != "Erledigt" {
		t.Fatalf("reload = %+v", last)
	}
	if !h.d.Config().IsUser(99) {
		t.Fatal("reload did not swap the configuration")
	}

	h.store.data = []byte("telegram_bot_token: n\nusers: [1]\n")
	h.command(42, "/config")
	h.text(42, "Neuladen")
	out = h.tr.take()
	if last := out[len(out)-1]; !strings.HasPrefix(last.text, "Neuladen fehlgeschlagen") {
		t.Fatalf("failed reload = %+v", last)
	}
	if !h.d.Config().IsAdmin(42) {
		t.Fatal("failed reload must keep the prior configuration")
	}

	h.command(42, "/config")
	h.text(42, "Abbrechen")
	out = h.tr.take()
	if last := out[len(out)-1]; last.text != "Abgebrochen" {
		t.Fatalf("menu cancel = %+v", last)
	}
	if h.d.DialogState(42) != state.StateIdle {
		t.Fatal("menu cancel must clear the dialog")
	}
}

func TestConfigRequiresAdmin(t *testing.T) {
	h := newHarness(t, nil)
	h.command(43, "/config")
	out := h.tr.take()
	if len(out) != 1 || out[0].text != "Nur für Admins" {
		t.Fatalf("sent = %+v", out)
	}
	if h.d.DialogState(43) != state.StateIdle {
		t.Fatal("rejected chat must not enter the dialog")
	}
}

func TestHelpAndStart(t *testing.T) {
	h := newHarness(t, CommandList("Befehle:"))
	h.command(43, "/start")
	out := h.tr.take()
	if len(out) != 1 {
		t.Fatalf("sent = %+v", out)
	}
	if strings.Contains(out[0].text, "/config") || !strings.Contains(out[0].text, "/info - ") {
		t.Fatalf("user help = %q", out[0].text)
	}

	h.command(42, "/help")
	out = h.tr.take()
	if !strings.Contains(out[0].text, "/config - ") {
		t.Fatalf("admin help = %q", out[0].text)
	}
}

func TestHelpWithoutProviderIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.command(42, "/help")
	if out := h.tr.take(); len(out) != 0 {
		t.Fatalf("sent = %+v", out)
	}
	if h.d.Identity().Messages() != 1 {
		t.Fatal("only the gate is counted")
	}
}

func TestStartRegistersFallback(t *testing.T) {
	h := newHarness(t, HelpFunc(func(context.Context, HelpRequest) string { return "hilfe" }))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !h.tr.started || len(h.tr.commands) != 3 {
		t.Fatalf("started=%v commands=%+v", h.tr.started, h.tr.commands)
	}
	h.send(telegram.OnUnknownCommand, 42, "/wasauchimmer")
	if out := h.tr.take(); len(out) != 1 || out[0].text != "hilfe" {
		t.Fatalf("fallback = %+v", out)
	}
	h.send(telegram.OnUnknownCommand, 7, "/wasauchimmer")
	if out := h.tr.take(); len(out) != 1 || out[0].text != "Unauthorized: 7" {
		t.Fatalf("fallback for stranger = %+v", out)
	}
}

func TestRegisterCommandAndTransition(t *testing.T) {
	h := newHarness(t, nil)
	const awaitName state.State = "name"
	err := h.d.RegisterCommand("/hello", telegram.Command{
		Description: "Begrüßung",
		Handler: func(c tele.Context) error {
			chatID := c.Chat().ID
			h.d.Await(chatID, awaitName)
			return h.d.SendMessage(context.Background(), chatID, "Name?", nil)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	h.d.RegisterTransition(awaitName, func(_ state.State, text string) (state.State, []Action) {
		return state.StateIdle, []Action{Reply{Text: "Hallo " + text}}
	})

	h.command(43, "/hello")
	h.text(43, "Ada")
	out := h.tr.take()
	if len(out) != 2 || out[1].text != "Hallo Ada" {
		t.Fatalf("sent = %+v", out)
	}
	if _, ok := h.d.Commands()["/hello"]; !ok {
		t.Fatal("command not listed")
	}
	if err := h.d.RegisterCommand("/info", telegram.Command{Description: "x", Handler: func(tele.Context) error { return nil }}); err == nil {
		t.Fatal("duplicate command must fail")
	}
}

func TestSendFailureIsNotCounted(t *testing.T) {
	h := newHarness(t, nil)
	h.tr.sendErr = errors.New("network down")
	if err := h.d.SendMessage(context.Background(), 42, "x", nil); err == nil {
		t.Fatal("expected send error")
	}
	if h.d.Identity().Messages() != 0 {
		t.Fatal("failed send must not be counted")
	}
}

func TestNewConstructionErrors(t *testing.T) {
	cfg, _ := config.Decode([]byte(baseConfig), config.Lenient)
	cases := []Options{
		{},
		{Config: cfg},
		{Config: cfg, Connect: func(*config.Config) (telegram.Transport, error) {
			return nil, errors.New("malformed token")
		}},
	}
	for i, opts := range cases {
		d, err := New(opts)
		if d != nil || !errors.Is(err, ErrConstruction) {
			t.Fatalf("case %d: d=%v err=%v", i, d, err)
		}
	}
}

func TestConcurrentDialogs(t *testing.T) {
	h := newHarness(t, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(chat int64) {
			defer wg.Done()
			h.d.Await(chat, StateConfigMenu)
			_ = h.d.OnTextMessage(h.update(chat, "Abbrechen"))
		}(42 + int64(i%2))
	}
	wg.Wait()
	if h.d.DialogState(42) != state.StateIdle || h.d.DialogState(43) != state.StateIdle {
		t.Fatal("dialogs not cleared")
	}
}

func TestCancelCommandFromMenu(t *testing.T) {
	h := newHarness(t, nil)
	h.command(42, "/config")
	h.tr.take()

	h.command(42, "/cancel")
	out := h.tr.take()
	if len(out) != 1 || out[0].text != "Abgebrochen" || !out[0].opts.ReplyMarkup.RemoveKeyboard {
		t.Fatalf("cancel = %+v", out)
	}
	if h.d.DialogState(42) != state.StateIdle {
		t.Fatalf("state = %q", h.d.DialogState(42))
	}
	h.text(42, "Inhalt")
	if out = h.tr.take(); len(out) != 0 {
		t.Fatalf("menu choice after cancel produced %+v", out)
	}
}

// captureBOT redirects the dispatcher logger into a buffer for one test.
func captureBOT(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := logger.BOT
	logger.BOT = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() { logger.BOT = prev })
	return &buf
}

func TestCancelLogsDialogState(t *testing.T) {
	h := newHarness(t, nil)
	logs := captureBOT(t)

	h.command(42, "/config")
	h.text(42, "Abbrechen")
	if !strings.Contains(logs.String(), "event=dialog.cancel") || !strings.Contains(logs.String(), "state=config.menu") {
		t.Fatalf("menu cancel log = %s", logs.String())
	}

	logs.Reset()
	h.command(42, "/config")
	h.text(42, "Bearbeiten")
	h.command(42, "/cancel")
	if !strings.Contains(logs.String(), "state=config.edit") {
		t.Fatalf("command cancel log = %s", logs.String())
	}
}

func TestUnknownCommandResolvesRegisteredNames(t *testing.T) {
	h := newHarness(t, HelpFunc(func(context.Context, HelpRequest) string { return "hilfe" }))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.send(telegram.OnUnknownCommand, 42, "/INFO")
	out := h.tr.take()
	if len(out) != 1 || !strings.HasPrefix(out[0].text, "Version: 1.2.3") {
		t.Fatalf("/INFO = %+v", out)
	}

	h.send(telegram.OnUnknownCommand, 43, "/Config")
	if out = h.tr.take(); len(out) != 1 || out[0].text != "Nur für Admins" {
		t.Fatalf("/Config from user = %+v", out)
	}
	if h.d.DialogState(43) != state.StateIdle {
		t.Fatal("gate must still apply to resolved commands")
	}

	h.send(telegram.OnUnknownCommand, 42, "/START")
	if out = h.tr.take(); len(out) != 1 || out[0].text != "hilfe" {
		t.Fatalf("alias = %+v", out)
	}
}

func TestStartLogsOpenDialogs(t *testing.T) {
	h := newHarness(t, nil)
	logs := captureBOT(t)
	h.d.Await(42, StateConfigMenu)
	h.d.Await(43, StateConfigEdit)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.Contains(logs.String(), "open_dialogs=2") {
		t.Fatalf("stop log = %s", logs.String())
	}
}
