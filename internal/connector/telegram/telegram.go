// Package telegram implements the Telegram chat transport.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/contrabot-io/contrabot/internal/connector"
)

// Config holds Telegram connector configuration.
type Config struct {
	Token     string  // Bot token from @BotFather
	AllowFrom []int64 // Allowed Telegram user IDs (empty = allow all)
}

// Connector implements connector.Connector for Telegram via long polling.
type Connector struct {
	bot     *tgbotapi.BotAPI
	config  Config
	handler connector.InboundHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// New creates a new Telegram connector.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("telegram bot authorized", "username", bot.Self.UserName)

	return &Connector{
		bot:     bot,
		config:  cfg,
		handler: handler,
		logger:  logger,
	}, nil
}

func (c *Connector) Name() string { return "telegram" }

// Start begins long-polling for updates. Blocks until context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := c.bot.GetUpdatesChan(u)

	c.logger.Info("telegram connector started", "bot", c.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			c.handleUpdate(ctx, update.Message)

		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.logger.Info("telegram connector stopped")
			return ctx.Err()
		}
	}
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send delivers a message to a Telegram chat. An asset key is resolved to a
// cached sticker and sent before the text.
func (c *Connector) Send(_ context.Context, msg connector.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat_id %q: %w", msg.ChatID, err)
	}

	if msg.Asset != "" {
		if fileID, ok := stickerFor(msg.Asset); ok {
			sticker := tgbotapi.NewSticker(chatID, tgbotapi.FileID(fileID))
			if _, err := c.bot.Send(sticker); err != nil {
				// A failed sticker never blocks the text reply.
				c.logger.Warn("sticker send failed", "asset", msg.Asset, "error", err)
			}
		} else {
			c.logger.Warn("unknown sticker asset", "asset", msg.Asset)
		}
	}

	if msg.Content == "" {
		return nil
	}

	_, err = c.bot.Send(tgbotapi.NewMessage(chatID, msg.Content))
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

func (c *Connector) handleUpdate(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if len(c.config.AllowFrom) > 0 && !contains(c.config.AllowFrom, userID) {
		c.logger.Warn("unauthorized user", "user_id", userID, "username", msg.From.UserName)
		return
	}

	// Commands arrive as plain "/cmd args" text; the dispatcher owns all
	// command routing. Everything else is free text, or empty for non-text
	// messages (stickers, photos) so the dialogue can reject them.
	text := msg.Text
	if msg.IsCommand() {
		text = "/" + msg.Command()
		if msg.CommandArguments() != "" {
			text += " " + msg.CommandArguments()
		}
	}

	if text != "" {
		typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
		c.bot.Send(typing)
	}

	inbound := connector.InboundMessage{
		Channel:  "telegram",
		SenderID: strconv.FormatInt(userID, 10),
		ChatID:   strconv.FormatInt(chatID, 10),
		Content:  text,
	}

	if err := c.handler(ctx, inbound); err != nil {
		c.logger.Error("inbound handler error", "chat_id", chatID, "error", err)
	}
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
