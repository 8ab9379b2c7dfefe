package ratelimit

import (
	"testing"
	"time"
)

func TestAllowMessageLimit(t *testing.T) {
	l := New(Config{MessagesPerWindow: 3, MessageWindow: time.Minute, ChatPerWindow: 10, ChatWindow: 10 * time.Second})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.AllowMessage("wallet-a", 0) {
			t.Fatalf("expected message %d to be allowed", i)
		}
	}
	if l.AllowMessage("wallet-a", 0) {
		t.Fatal("expected 4th message within the window to be rejected")
	}
}

func TestAllowMessagePerKeyIsolation(t *testing.T) {
	l := New(Config{MessagesPerWindow: 1, MessageWindow: time.Minute, ChatPerWindow: 1, ChatWindow: time.Minute})
	defer l.Stop()

	if !l.AllowMessage("wallet-a", 0) {
		t.Fatal("expected first message for wallet-a to be allowed")
	}
	if !l.AllowMessage("wallet-b", 0) {
		t.Fatal("expected wallet-b's limit to be independent of wallet-a's")
	}
	if l.AllowMessage("wallet-a", 0) {
		t.Fatal("expected wallet-a to still be rate limited")
	}
}

func TestAllowMessagePerCallOverride(t *testing.T) {
	l := New(Config{MessagesPerWindow: 1, MessageWindow: time.Minute, ChatPerWindow: 1, ChatWindow: time.Minute})
	defer l.Stop()

	if !l.AllowMessage("wallet-a", 2) {
		t.Fatal("expected first message under the overridden limit to be allowed")
	}
	if !l.AllowMessage("wallet-a", 2) {
		t.Fatal("expected second message under the overridden limit of 2 to be allowed")
	}
	if l.AllowMessage("wallet-a", 2) {
		t.Fatal("expected third message to exceed the overridden limit of 2")
	}
}

func TestAllowChatSeparateFromMessage(t *testing.T) {
	l := New(Config{MessagesPerWindow: 0, MessageWindow: time.Minute, ChatPerWindow: 2, ChatWindow: time.Minute})
	defer l.Stop()

	if !l.AllowChat("wallet-a") {
		t.Fatal("expected first chat message to be allowed even though message limit is 0")
	}
	if !l.AllowChat("wallet-a") {
		t.Fatal("expected second chat message to be allowed")
	}
	if l.AllowChat("wallet-a") {
		t.Fatal("expected third chat message to be rejected")
	}
}

func TestRemoveClientResetsState(t *testing.T) {
	l := New(Config{MessagesPerWindow: 1, MessageWindow: time.Minute, ChatPerWindow: 1, ChatWindow: time.Minute})
	defer l.Stop()

	if !l.AllowMessage("wallet-a", 0) {
		t.Fatal("expected first message to be allowed")
	}
	l.RemoveClient("wallet-a")
	if !l.AllowMessage("wallet-a", 0) {
		t.Fatal("expected limiter state to be cleared after RemoveClient")
	}
}

func TestWindowSlides(t *testing.T) {
	w := newWindow(50*time.Millisecond, 1)
	now := time.Now()
	if !w.allow(now, 0) {
		t.Fatal("expected first event to be allowed")
	}
	if w.allow(now.Add(10 * time.Millisecond), 0) {
		t.Fatal("expected second event inside the window to be rejected")
	}
	if !w.allow(now.Add(60 * time.Millisecond), 0) {
		t.Fatal("expected event after the window elapsed to be allowed")
	}
}
