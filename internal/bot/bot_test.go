package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"taskflow/internal/auth"
	"taskflow/internal/live"
	"taskflow/internal/model"
	"taskflow/internal/repository"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return tgbotapi.Message{}, r.err
	}
	r.sent = append(r.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (r *recordingSender) last() tgbotapi.MessageConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

type memUsers struct {
	users map[string]*model.User
}

func (m *memUsers) Get(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) LinkTelegram(_ context.Context, userID string, chatID int64) error {
	for _, u := range m.users {
		if u.TelegramChatID != nil && *u.TelegramChatID == chatID {
			u.TelegramChatID = nil
		}
	}
	m.users[userID].TelegramChatID = &chatID
	return nil
}

func (m *memUsers) UnlinkTelegram(_ context.Context, chatID int64) (*model.User, error) {
	for _, u := range m.users {
		if u.TelegramChatID != nil && *u.TelegramChatID == chatID {
			u.TelegramChatID = nil
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) ListTelegramLinked(context.Context) ([]model.User, error) {
	var out []model.User
	for _, u := range m.users {
		if u.TelegramChatID != nil {
			out = append(out, *u)
		}
	}
	return out, nil
}

type stubInbox struct{}

func (stubInbox) List(context.Context, string, int) ([]model.Notification, error) {
	return []model.Notification{
		{Content: "Reminder: Task \"<b>Pay</b>\" is due soon!", CreatedAt: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)},
		{Content: "seen", IsRead: true},
	}, nil
}

func (stubInbox) UnreadCount(context.Context, string) (int64, error) {
	return 1, nil
}

type fixture struct {
	bot      *Bot
	sender   *recordingSender
	registry *live.Registry
	users    *memUsers
	token    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	tokens := auth.NewTokens("secret")
	token, err := tokens.Issue("alice", time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	f := &fixture{
		sender:   &recordingSender{},
		registry: live.NewRegistry(log),
		users:    &memUsers{users: map[string]*model.User{"alice": {ID: "alice", Name: "Alice"}}},
		token:    token,
	}
	f.bot = newBot(f.sender, Deps{
		Users:         f.users,
		Notifications: stubInbox{},
		Sessions:      f.registry,
		Tokens:        tokens,
		Log:           log,
	})
	return f
}

func command(chatID int64, text string) *tgbotapi.Message {
	name, _, _ := strings.Cut(text, " ")
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID, Type: "private"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func TestStartLinksChatAndPushes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.bot.handleMessage(ctx, command(42, "/start "+f.token)); err != nil {
		t.Fatalf("handleMessage failed: %v", err)
	}
	if !strings.Contains(f.sender.last().Text, "Alice") {
		t.Errorf("Expected greeting with the user's name, got %q", f.sender.last().Text)
	}
	if f.users.users["alice"].TelegramChatID == nil {
		t.Fatalf("Expected chat linked in the store")
	}

	if !f.registry.Push(ctx, "alice", model.Notification{Content: "Task <x> assigned"}) {
		t.Fatalf("Expected push delivered to the chat")
	}
	got := f.sender.last()
	if got.ChatID != 42 || got.Text != "🔔 Task &lt;x&gt; assigned" || got.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("Unexpected pushed message %+v", got)
	}
}

func TestStartRejectsBadToken(t *testing.T) {
	f := newFixture(t)
	if err := f.bot.handleMessage(context.Background(), command(42, "/start nope")); err != nil {
		t.Fatalf("handleMessage failed: %v", err)
	}
	if f.registry.Count("alice") != 0 {
		t.Errorf("Expected no session for a bad token")
	}
	if !strings.Contains(f.sender.last().Text, "not valid") {
		t.Errorf("Expected rejection message, got %q", f.sender.last().Text)
	}
}

func TestRelinkReplacesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.bot.handleMessage(ctx, command(1, "/start "+f.token))
	_ = f.bot.handleMessage(ctx, command(2, "/start "+f.token))
	if n := f.registry.Count("alice"); n != 1 {
		t.Errorf("Expected a single session after relinking, got %d", n)
	}
}

func TestStopDetaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.bot.handleMessage(ctx, command(42, "/start "+f.token))
	if err := f.bot.handleMessage(ctx, command(42, "/stop")); err != nil {
		t.Fatalf("handleMessage failed: %v", err)
	}
	if f.registry.Count("alice") != 0 {
		t.Errorf("Expected session removed")
	}
	if f.users.users["alice"].TelegramChatID != nil {
		t.Errorf("Expected chat unlinked in the store")
	}

	if err := f.bot.handleMessage(ctx, command(42, "/stop")); err != nil {
		t.Fatalf("handleMessage failed: %v", err)
	}
	if !strings.Contains(f.sender.last().Text, "not linked") {
		t.Errorf("Expected not-linked reply, got %q", f.sender.last().Text)
	}
}

func TestRestoreAttachesLinkedUsers(t *testing.T) {
	f := newFixture(t)
	chat := int64(9)
	f.users.users["alice"].TelegramChatID = &chat

	if err := f.bot.restore(context.Background()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if n := f.registry.Count("alice"); n != 1 {
		t.Errorf("Expected restored session, got %d", n)
	}
	f.bot.detachAll()
	if n := f.registry.Count("alice"); n != 0 {
		t.Errorf("Expected sessions removed, got %d", n)
	}
}

func TestNotificationsCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.bot.handleMessage(ctx, command(42, "/notifications"))
	if !strings.Contains(f.sender.last().Text, "not linked") {
		t.Errorf("Expected not-linked reply, got %q", f.sender.last().Text)
	}

	_ = f.bot.handleMessage(ctx, command(42, "/start "+f.token))
	_ = f.bot.handleMessage(ctx, command(42, "/notifications"))
	text := f.sender.last().Text
	if !strings.Contains(text, "unread: 1") || !strings.Contains(text, "&lt;b&gt;Pay&lt;/b&gt;") || !strings.Contains(text, "2024-01-02 09:30") {
		t.Errorf("Unexpected inbox text %q", text)
	}
}

func TestSessionSendFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.bot.handleMessage(ctx, command(42, "/start "+f.token))

	f.sender.err = errors.New("blocked by user")
	if f.registry.Push(ctx, "alice", model.Notification{Content: "x"}) {
		t.Errorf("Expected push to report failure")
	}
}
