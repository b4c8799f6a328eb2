package telegram

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func nopHandler(tele.Context) error { return nil }

func TestRegisterCommandValidation(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCommand("info", Command{Handler: nopHandler, Description: "x"}); err == nil {
		t.Fatal("expected error for missing slash")
	}
	if err := reg.RegisterCommand("/info", Command{Description: "x"}); err == nil {
		t.Fatal("expected error for nil handler")
	}
	if err := reg.RegisterCommand("/info", Command{Handler: nopHandler, Description: "Info"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterCommand("/info", Command{Handler: nopHandler, Description: "Info"}); err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestLookupCommandAliases(t *testing.T) {
	reg := NewRegistry()
	_ = reg.RegisterCommand("/help", Command{Handler: nopHandler, Description: "Hilfe", Aliases: []string{"start"}})

	for _, name := range []string{"/help", "help", "/start", "start"} {
		key, _, ok := reg.LookupCommand(name)
		if !ok || key != "/help" {
			t.Fatalf("LookupCommand(%q) = %q, %v", name, key, ok)
		}
	}
	if _, _, ok := reg.LookupCommand("/nope"); ok {
		t.Fatal("unexpected match")
	}
}

func TestListCommandsVisibleOnly(t *testing.T) {
	reg := NewRegistry()
	_ = reg.RegisterCommand("/info", Command{Handler: nopHandler, Description: "Info"})
	_ = reg.RegisterCommand("/config", Command{Handler: nopHandler, Description: "Config", AdminOnly: true})
	_ = reg.RegisterCommand("/cancel", Command{Handler: nopHandler, Description: "Abbrechen"})
	_ = reg.RegisterCommand("/debug", Command{Handler: nopHandler, Description: "Debug", Hidden: true})

	visible := reg.ListCommands(true)
	if len(visible) != 2 || visible[0].Text != "cancel" || visible[1].Text != "info" {
		t.Fatalf("visible = %+v", visible)
	}
	if all := reg.ListCommands(false); len(all) != 4 {
		t.Fatalf("all = %+v", all)
	}
	if n := len(reg.Commands()); n != 4 {
		t.Fatalf("Commands() len = %d", n)
	}
}
