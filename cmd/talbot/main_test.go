package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/basket/talbot/internal/channels"
)

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	body := "# comment\nTALBOT_TEST_A=hello\nTALBOT_TEST_B=\"quoted\"\n\nNOT_A_PAIR\n=novalue\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	t.Setenv("TALBOT_TEST_A", "")
	t.Setenv("TALBOT_TEST_B", "")
	os.Unsetenv("TALBOT_TEST_A")
	os.Unsetenv("TALBOT_TEST_B")

	loadDotEnv(path)

	if got := os.Getenv("TALBOT_TEST_A"); got != "hello" {
		t.Errorf("TALBOT_TEST_A = %q, want hello", got)
	}
	if got := os.Getenv("TALBOT_TEST_B"); got != "quoted" {
		t.Errorf("TALBOT_TEST_B = %q, want quotes stripped", got)
	}
}

func TestLoadDotEnv_DoesNotOverrideExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("TALBOT_TEST_C=file\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	t.Setenv("TALBOT_TEST_C", "env")
	loadDotEnv(path)

	if got := os.Getenv("TALBOT_TEST_C"); got != "env" {
		t.Errorf("TALBOT_TEST_C = %q, existing env should win", got)
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	// Must not panic or create anything.
	loadDotEnv(filepath.Join(t.TempDir(), "does-not-exist"))
}

func TestDeliverer_BeforeChannelAssigned(t *testing.T) {
	var channel *channels.TelegramChannel
	d := deliverer{get: func() *channels.TelegramChannel { return channel }}

	if err := d.SendToChat(context.Background(), 1, "x"); err == nil {
		t.Fatal("expected error while channel is unassigned")
	}
	if err := d.SendToUser(context.Background(), 1, "x"); err == nil {
		t.Fatal("expected error while channel is unassigned")
	}
}

func TestDeliverer_ForwardsToAssignedChannel(t *testing.T) {
	var channel *channels.TelegramChannel
	d := deliverer{get: func() *channels.TelegramChannel { return channel }}

	channel = channels.NewTelegramChannel(channels.TelegramConfig{})

	// The channel is assigned but not started; its own guard fires,
	// which proves the closure resolved the late-bound value.
	err := d.SendToChat(context.Background(), 1, "x")
	if err == nil || !strings.Contains(err.Error(), "not started") {
		t.Fatalf("err = %v, want the channel's not-started guard", err)
	}
}
