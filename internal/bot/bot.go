package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"taskflow/internal/live"
	"taskflow/internal/logging"
	"taskflow/internal/model"
	"taskflow/internal/repository"
)

const (
	iconBell   = "🔔"
	iconUnread = "🟢"
	iconRead   = "⚪"

	recentLimit = 10
)

// UserStore links Telegram chats to users.
type UserStore interface {
	Get(ctx context.Context, id string) (*model.User, error)
	LinkTelegram(ctx context.Context, userID string, chatID int64) error
	UnlinkTelegram(ctx context.Context, chatID int64) (*model.User, error)
	ListTelegramLinked(ctx context.Context) ([]model.User, error)
}

type NotificationReader interface {
	List(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

type Sessions interface {
	Add(userID string, s live.Session) (remove func())
}

type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// sender is the part of the Telegram API the bot writes through.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Deps struct {
	Users         UserStore
	Notifications NotificationReader
	Sessions      Sessions
	Tokens        TokenVerifier
	Log           *zap.SugaredLogger
}

type linkedChat struct {
	userID string
	remove func()
}

// Bot delivers notifications to linked Telegram chats. A chat is linked with
// "/start <token>", using the same bearer token as the HTTP API.
type Bot struct {
	api  *tgbotapi.BotAPI
	send sender
	deps Deps
	log  *zap.SugaredLogger

	mu    sync.Mutex
	chats map[int64]linkedChat
}

func New(token string, deps Deps) (*Bot, error) {
	log := deps.Log.Named("telegram")
	if err := tgbotapi.SetLogger(logging.StdLogger(deps.Log, "telegram.api")); err != nil {
		return nil, fmt.Errorf("set bot logger: %w", err)
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Infow("bot authorized", "account", api.Self.UserName)

	b := newBot(api, deps)
	b.api = api
	return b, nil
}

func newBot(send sender, deps Deps) *Bot {
	return &Bot{
		send:  send,
		deps:  deps,
		log:   deps.Log.Named("telegram"),
		chats: make(map[int64]linkedChat),
	}
}

// Start re-attaches chats linked earlier, then polls updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.restore(ctx); err != nil {
		return err
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil || update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Warnw("handle message", "chat_id", update.Message.Chat.ID, "error", err)
		}
	}

	b.detachAll()
	return nil
}

func (b *Bot) restore(ctx context.Context) error {
	users, err := b.deps.Users.ListTelegramLinked(ctx)
	if err != nil {
		return fmt.Errorf("load linked chats: %w", err)
	}
	for _, u := range users {
		b.attach(u.ID, *u.TelegramChatID)
	}
	b.log.Infow("linked chats restored", "count", len(users))
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "I only understand commands. Try /help.")
	}

	b.log.Debugw("command", "chat_id", msg.Chat.ID, "command", msg.Command())
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "stop":
		return b.handleStop(ctx, msg)
	case "notifications":
		return b.handleNotifications(ctx, msg)
	case "help":
		return b.sendText(msg.Chat.ID, helpText)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /start &lt;token&gt; - link this chat to your account\n" +
	"• /notifications - show your latest notifications\n" +
	"• /stop - stop sending notifications here\n" +
	"• /help - this message"

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	raw := strings.TrimSpace(msg.CommandArguments())
	if raw == "" {
		return b.sendText(msg.Chat.ID, "👋 Send <code>/start &lt;token&gt;</code> with your API token to link this chat.")
	}

	userID, err := b.deps.Tokens.Verify(raw)
	if err != nil {
		return b.sendText(msg.Chat.ID, "⚠️ That token is not valid.")
	}
	user, err := b.deps.Users.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return b.sendText(msg.Chat.ID, "⚠️ That token belongs to no account.")
	}
	if err != nil {
		return err
	}

	if err := b.deps.Users.LinkTelegram(ctx, user.ID, msg.Chat.ID); err != nil {
		return err
	}
	b.attach(user.ID, msg.Chat.ID)
	b.log.Infow("chat linked", "chat_id", msg.Chat.ID, "user_id", user.ID)

	name := user.Name
	if name == "" {
		name = user.Email
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Linked to <b>%s</b>. Notifications will arrive here.", escape(name)))
}

func (b *Bot) handleStop(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.deps.Users.UnlinkTelegram(ctx, msg.Chat.ID)
	b.detach(msg.Chat.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return b.sendText(msg.Chat.ID, "This chat was not linked.")
	}
	if err != nil {
		return err
	}
	b.log.Infow("chat unlinked", "chat_id", msg.Chat.ID, "user_id", user.ID)
	return b.sendText(msg.Chat.ID, "🔕 Unlinked. Use /start &lt;token&gt; to link again.")
}

func (b *Bot) handleNotifications(ctx context.Context, msg *tgbotapi.Message) error {
	userID, ok := b.linkedUser(msg.Chat.ID)
	if !ok {
		return b.sendText(msg.Chat.ID, "This chat is not linked yet. Use /start &lt;token&gt;.")
	}

	list, err := b.deps.Notifications.List(ctx, userID, recentLimit)
	if err != nil {
		return err
	}
	unread, err := b.deps.Notifications.UnreadCount(ctx, userID)
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, formatInbox(list, unread))
}

// attach registers chatID as a live session of userID. A user has at most one chat
// and a chat belongs to at most one user, so older links on either side are dropped.
func (b *Bot) attach(userID string, chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, c := range b.chats {
		if id == chatID || c.userID == userID {
			c.remove()
			delete(b.chats, id)
		}
	}
	remove := b.deps.Sessions.Add(userID, &chatSession{bot: b, chatID: chatID})
	b.chats[chatID] = linkedChat{userID: userID, remove: remove}
}

func (b *Bot) detach(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.chats[chatID]; ok {
		prev.remove()
		delete(b.chats, chatID)
	}
}

func (b *Bot) detachAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for chatID, c := range b.chats {
		c.remove()
		delete(b.chats, chatID)
	}
}

func (b *Bot) linkedUser(chatID int64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.chats[chatID]
	return c.userID, ok
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.send.Send(msg)
	return err
}

// chatSession is a live session backed by one Telegram chat.
type chatSession struct {
	bot    *Bot
	chatID int64
}

func (s *chatSession) Send(ctx context.Context, n model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.bot.sendText(s.chatID, formatNotification(n))
}

func formatNotification(n model.Notification) string {
	return fmt.Sprintf("%s %s", iconBell, escape(n.Content))
}

func formatInbox(list []model.Notification, unread int64) string {
	if len(list) == 0 {
		return "📭 No notifications yet."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📬 <b>Notifications</b> · unread: %d\n\n", unread))
	for _, n := range list {
		icon := iconUnread
		if n.IsRead {
			icon = iconRead
		}
		sb.WriteString(fmt.Sprintf("%s %s\n   <i>%s</i>\n", icon, escape(n.Content), n.CreatedAt.UTC().Format("2006-01-02 15:04")))
	}
	return sb.String()
}

func escape(s string) string {
	return html.EscapeString(s)
}
