package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/config/channel"
)

// telegramMaxMsgLen stays under the Bot API's 4096-character cap.
const telegramMaxMsgLen = 4000

// TelegramChannel implements the Telegram bot via long polling. Private chats
// are always answered; in groups the bot must be @mentioned or replied to.
type TelegramChannel struct {
	Base
	cfg *channel.TelegramConfig
	bot *tgbotapi.BotAPI
}

// NewTelegramChannel creates a TelegramChannel.
func NewTelegramChannel(cfg *channel.TelegramConfig, b bus.Bus) *TelegramChannel {
	return &TelegramChannel{
		Base: NewBase(bus.ChannelTelegram, b, cfg.AllowFrom),
		cfg:  cfg,
	}
}

func (t *TelegramChannel) Name() string { return string(bus.ChannelTelegram) }

func (t *TelegramChannel) Start(ctx context.Context) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token not configured")
	}
	bot, err := tgbotapi.NewBotAPI(t.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	t.bot = bot
	slog.Info("telegram: connected", "username", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (t *TelegramChannel) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}

	content := msg.Text
	if content == "" {
		content = msg.Caption
	}
	if !msg.Chat.IsPrivate() {
		var addressed bool
		content, addressed = t.addressedInGroup(msg, content)
		if !addressed {
			return
		}
	}

	senderID := strconv.FormatInt(msg.From.ID, 10)
	if msg.From.UserName != "" {
		senderID = senderID + "|" + msg.From.UserName
	}

	t.HandleMessage(senderID, strconv.FormatInt(msg.Chat.ID, 10), content, map[string]any{
		"message_id": strconv.Itoa(msg.MessageID),
		"username":   msg.From.UserName,
		"is_group":   !msg.Chat.IsPrivate(),
	})
}

// addressedInGroup strips the bot's @username from content and reports
// whether the message was aimed at the bot.
func (t *TelegramChannel) addressedInGroup(msg *tgbotapi.Message, content string) (string, bool) {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil &&
		msg.ReplyToMessage.From.ID == t.bot.Self.ID {
		return content, true
	}
	handle := "@" + t.bot.Self.UserName
	if t.bot.Self.UserName == "" || !strings.Contains(content, handle) {
		return content, false
	}
	return strings.TrimSpace(strings.ReplaceAll(content, handle, "")), true
}

// SendTyping refreshes the "typing…" chat action once.
func (t *TelegramChannel) SendTyping(_ context.Context, chatID string) error {
	if t.bot == nil {
		return fmt.Errorf("telegram: bot not running")
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	_, err = t.bot.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping))
	return err
}

func (t *TelegramChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram: bot not running")
	}
	chatID, err := parseChatID(msg.ChatId())
	if err != nil {
		return err
	}

	var replyMsgID int
	if t.cfg.ReplyToMessage && msg.ReplyTo() != "" {
		replyMsgID, _ = strconv.Atoi(msg.ReplyTo())
	}

	for i, chunk := range SplitMessage(msg.Content(), telegramMaxMsgLen) {
		m := tgbotapi.NewMessage(chatID, chunk)
		if i == 0 && replyMsgID != 0 {
			m.ReplyToMessageID = replyMsgID
		}
		if _, err := t.bot.Send(m); err != nil {
			return fmt.Errorf("telegram: send: %w", err)
		}
	}
	return nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat_id: %s", s)
	}
	return id, nil
}
