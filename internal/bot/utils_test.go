package bot

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"medbot/internal/conversation"
)

func TestRender_LongCaptionIsSplit(t *testing.T) {
	short := render(1, conversation.Reply{Text: "Нурофен", Photo: []byte("front"), HTML: true})
	if len(short) != 1 {
		t.Fatalf("Expected 1 message for a short caption, got %d", len(short))
	}

	long := render(1, conversation.Reply{Text: strings.Repeat("я", captionLimit+1), Photo: []byte("front")})
	if len(long) != 2 {
		t.Fatalf("Expected photo and text, got %d messages", len(long))
	}
	photo, ok := long[0].(tgbotapi.PhotoConfig)
	if !ok {
		t.Fatalf("Expected PhotoConfig first, got %T", long[0])
	}
	if photo.Caption != "" {
		t.Error("Expected photo without caption")
	}
	if msg, ok := long[1].(tgbotapi.MessageConfig); !ok || len([]rune(msg.Text)) != captionLimit+1 {
		t.Errorf("Expected full text in the second message, got %#v", long[1])
	}
}

func TestRender_Document(t *testing.T) {
	out := render(1, conversation.Reply{
		Text:     "📎 drugs_10.json",
		Document: &conversation.Document{Name: "drugs_10.json", Data: []byte("[]")},
	})
	doc, ok := out[0].(tgbotapi.DocumentConfig)
	if !ok {
		t.Fatalf("Expected DocumentConfig, got %T", out[0])
	}
	file, ok := doc.File.(tgbotapi.FileBytes)
	if !ok || file.Name != "drugs_10.json" || string(file.Bytes) != "[]" {
		t.Errorf("Unexpected document %#v", doc.File)
	}
}

func TestReplyMarkup(t *testing.T) {
	inline, ok := replyMarkup(conversation.Reply{
		Choices: [][]conversation.Choice{{{Label: "Так", Data: "confirm"}, {Label: "Ні", Data: "reject"}}},
	}).(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatal("Expected inline keyboard for choices")
	}
	if got := *inline.InlineKeyboard[0][1].CallbackData; got != "reject" {
		t.Errorf("Expected callback data reject, got %q", got)
	}

	keyboard, ok := replyMarkup(conversation.Reply{
		RequestContact: true,
		Keyboard:       [][]string{{conversation.LabelCancel}},
	}).(tgbotapi.ReplyKeyboardMarkup)
	if !ok {
		t.Fatal("Expected reply keyboard")
	}
	if len(keyboard.Keyboard) != 2 || !keyboard.Keyboard[0][0].RequestContact {
		t.Errorf("Expected contact button first, got %#v", keyboard.Keyboard)
	}
	if !keyboard.ResizeKeyboard {
		t.Error("Expected resized keyboard")
	}

	if _, ok := replyMarkup(conversation.Reply{RemoveKeyboard: true}).(tgbotapi.ReplyKeyboardRemove); !ok {
		t.Error("Expected keyboard removal")
	}
	if replyMarkup(conversation.Reply{Text: "plain"}) != nil {
		t.Error("Expected no markup")
	}
}

func TestSend_RetriesTransientErrors(t *testing.T) {
	api := &fakeAPI{sendErr: &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}}
	bot := newBot(api, "123:TEST", nil, Options{}, zap.NewNop())

	bot.sendText(1, "hi")
	if len(api.sent) != sendAttempts {
		t.Errorf("Expected %d attempts, got %d", sendAttempts, len(api.sent))
	}

	api = &fakeAPI{sendErr: errors.New("Bad Request: chat not found")}
	bot = newBot(api, "123:TEST", nil, Options{}, zap.NewNop())

	bot.sendText(1, "hi")
	if len(api.sent) != 1 {
		t.Errorf("Expected a single attempt for permanent errors, got %d", len(api.sent))
	}
}

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad request"), false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped url timeout", &url.Error{Op: "Get", URL: "x", Err: context.DeadlineExceeded}, true},
	}
	for _, tc := range cases {
		if got := shouldRetry(tc.err); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestUserLimiter(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l := newUserLimiter(rate.Limit(1), 2)
	l.now = func() time.Time { return now }

	if !l.Allow(1) || !l.Allow(1) {
		t.Fatal("Expected burst of 2 to be allowed")
	}
	if l.Allow(1) {
		t.Error("Expected third update to be limited")
	}

	now = now.Add(time.Second)
	if !l.Allow(1) {
		t.Error("Expected a token after one second")
	}

	now = now.Add(5 * time.Minute)
	l.Allow(2)
	if n := l.Prune(3 * time.Minute); n != 1 {
		t.Errorf("Expected 1 pruned user, got %d", n)
	}

	var disabled *userLimiter
	if !disabled.Allow(1) || disabled.Prune(time.Minute) != 0 {
		t.Error("Expected nil limiter to allow everything")
	}
}

func TestUserLocks(t *testing.T) {
	var locks userLocks

	unlock := locks.lock(1)
	if n := locks.Len(); n != 1 {
		t.Fatalf("Expected 1 held lock, got %d", n)
	}

	// Another user is not blocked
	unlockOther := locks.lock(2)
	unlockOther()

	// The same user waits for the first holder
	acquired := make(chan struct{})
	go func() {
		release := locks.lock(1)
		close(acquired)
		release()
	}()
	select {
	case <-acquired:
		t.Fatal("Expected second update of user 1 to wait")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Expected second update of user 1 to proceed")
	}

	deadline := time.Now().Add(time.Second)
	for locks.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected released locks to be dropped, %d left", locks.Len())
		}
		time.Sleep(time.Millisecond)
	}
}
