package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type call struct {
	method string
	userID int64
	arg    string
}

type fakeHandler struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeHandler) record(method string, userID int64, arg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method: method, userID: userID, arg: arg})
}

func (f *fakeHandler) Start(ctx context.Context, userID int64, username string) {
	f.record("start", userID, username)
}
func (f *fakeHandler) Help(ctx context.Context, userID int64)        { f.record("help", userID, "") }
func (f *fakeHandler) ShowAddress(ctx context.Context, userID int64) { f.record("address", userID, "") }
func (f *fakeHandler) ShowSecret(ctx context.Context, userID int64)  { f.record("secret", userID, "") }
func (f *fakeHandler) History(ctx context.Context, userID int64)     { f.record("history", userID, "") }
func (f *fakeHandler) Status(ctx context.Context, userID int64)      { f.record("status", userID, "") }
func (f *fakeHandler) Stats(ctx context.Context, userID int64)       { f.record("stats", userID, "") }
func (f *fakeHandler) Confirm(ctx context.Context, userID int64)     { f.record("confirm", userID, "") }
func (f *fakeHandler) Cancel(ctx context.Context, userID int64)      { f.record("cancel", userID, "") }
func (f *fakeHandler) HandleText(ctx context.Context, userID int64, text string) {
	f.record("text", userID, text)
}

func (f *fakeHandler) last() (call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}, false
	}
	return f.calls[len(f.calls)-1], true
}

func message(userID int64, chatType, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, UserName: "alice"},
		Chat:      &tgbotapi.Chat{ID: userID, Type: chatType},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		msg.Entities = []tgbotapi.MessageEntity{{
			Type:   "bot_command",
			Offset: 0,
			Length: len(strings.Fields(text)[0]),
		}}
	}
	return tgbotapi.Update{Message: msg}
}

func TestHandleUpdateRouting(t *testing.T) {
	tests := []struct {
		text   string
		method string
		arg    string
	}{
		{"/start", "start", "alice"},
		{"/help", "help", ""},
		{"/myaddy", "address", ""},
		{"/myAddy", "address", ""},
		{"/tradehistory", "history", ""},
		{"/status", "status", ""},
		{"/stats", "stats", ""},
		{"/confirm", "confirm", ""},
		{"/cancel", "cancel", ""},
		{"/confirm@capwatch_bot", "confirm", ""},
		{"  245k  ", "text", "245k"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			h := &fakeHandler{}
			b := newBot(BotConfig{})
			b.SetHandler(h)

			b.handleUpdate(context.Background(), message(7, "private", tt.text))

			got, ok := h.last()
			if !ok {
				t.Fatalf("no handler call for %q", tt.text)
			}
			if got.method != tt.method || got.userID != 7 || got.arg != tt.arg {
				t.Errorf("call = %+v, want %s(%d, %q)", got, tt.method, 7, tt.arg)
			}
		})
	}
}

func TestHandleUpdateIgnored(t *testing.T) {
	h := &fakeHandler{}
	b := newBot(BotConfig{})
	b.SetHandler(h)

	b.handleUpdate(context.Background(), message(7, "group", "/confirm"))
	b.handleUpdate(context.Background(), message(7, "private", "   "))
	b.handleUpdate(context.Background(), tgbotapi.Update{})

	if _, ok := h.last(); ok {
		t.Errorf("expected no handler calls, got %+v", h.calls)
	}
}

func TestGetUserLock(t *testing.T) {
	b := newBot(BotConfig{})

	if b.getUserLock(1) != b.getUserLock(1) {
		t.Error("same user should get the same lock")
	}
	if b.getUserLock(1) == b.getUserLock(2) {
		t.Error("different users should get different locks")
	}
}

func TestNewBotDefaults(t *testing.T) {
	b := newBot(BotConfig{})
	if b.config.WorkerPoolSize != 50 || b.config.UpdateQueueSize != 500 {
		t.Errorf("defaults = %d/%d", b.config.WorkerPoolSize, b.config.UpdateQueueSize)
	}
	if cap(b.updateQueue) != 500 {
		t.Errorf("queue capacity = %d", cap(b.updateQueue))
	}
}

func TestGetUserIDFromUpdate(t *testing.T) {
	if id := getUserIDFromUpdate(message(99, "private", "hi")); id != 99 {
		t.Errorf("user id = %d", id)
	}
	if id := getUserIDFromUpdate(tgbotapi.Update{}); id != 0 {
		t.Errorf("empty update user id = %d", id)
	}
}

func TestEscapeHTML(t *testing.T) {
	if got := escapeHTML("<b>&</b>"); got != "&lt;b&gt;&amp;&lt;/b&gt;" {
		t.Errorf("escapeHTML() = %q", got)
	}
}
