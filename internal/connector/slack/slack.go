// Package slackconn implements the Slack chat transport via Socket Mode.
package slackconn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/contrabot-io/contrabot/internal/connector"
)

// Config holds Slack connector configuration.
type Config struct {
	BotToken string   // xoxb-... Bot User OAuth Token
	AppToken string   // xapp-... App-Level Token (for Socket Mode)
	Channels []string // Optional: only respond in these channels (empty = all)
}

// Connector implements connector.Connector for Slack.
type Connector struct {
	api     *slack.Client
	socket  *socketmode.Client
	config  Config
	handler connector.InboundHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
	botID   string
}

// Slack has no sticker cache; asset keys degrade to emoji.
var assetEmoji = map[string]string{
	"hourglass":                ":hourglass_flowing_sand:",
	"error_cat":                ":crying_cat_face:",
	"error_cat_invalid_syntax": ":pouting_cat:",
	"success_cat":              ":smiley_cat:",
	"sleepy_cat":               ":sleeping:",
	"bye":                      ":wave:",
}

// New creates a new Slack connector.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: app_token is required (Socket Mode)")
	}

	if logger == nil {
		logger = slog.Default()
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))

	authResp, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}

	logger.Info("slack bot authorized", "user", authResp.User, "team", authResp.Team)

	return &Connector{
		api:     api,
		socket:  socketmode.New(api),
		config:  cfg,
		handler: handler,
		logger:  logger,
		botID:   authResp.UserID,
	}, nil
}

func (c *Connector) Name() string { return "slack" }

// Start begins listening for events via Socket Mode. Blocks until context is
// cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	go c.handleEvents(ctx)

	c.logger.Info("slack connector started (socket mode)")
	return c.socket.RunContext(ctx)
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send delivers a message to a Slack channel. Asset keys are rendered as a
// leading emoji line.
func (c *Connector) Send(_ context.Context, msg connector.OutboundMessage) error {
	text := msg.Content
	if emoji, ok := assetEmoji[msg.Asset]; ok {
		if text == "" {
			text = emoji
		} else {
			text = emoji + " " + text
		}
	}
	if text == "" {
		return nil
	}

	_, _, err := c.api.PostMessage(msg.ChatID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack: send message: %w", err)
	}
	return nil
}

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.socket.Events:
			switch event.Type {
			case socketmode.EventTypeEventsAPI:
				c.handleEventsAPI(ctx, event)
			case socketmode.EventTypeSlashCommand:
				c.handleSlashCommand(ctx, event)
			}
		}
	}
}

func (c *Connector) handleEventsAPI(ctx context.Context, event socketmode.Event) {
	eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}

	c.socket.Ack(*event.Request)

	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		c.handleMessage(ctx, ev)
	case *slackevents.AppMentionEvent:
		c.handleMention(ctx, ev)
	}
}

func (c *Connector) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	// Ignore bot messages (including our own) and subtypes (edits, deletes).
	if ev.BotID != "" || ev.User == "" || ev.User == c.botID {
		return
	}
	if ev.SubType != "" {
		return
	}
	if !c.isAllowedChannel(ev.Channel) {
		return
	}

	c.forward(ctx, ev.User, ev.Channel, ev.Text)
}

func (c *Connector) handleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	if ev.User == c.botID {
		return
	}
	c.forward(ctx, ev.User, ev.Channel, StripMention(ev.Text, c.botID))
}

func (c *Connector) handleSlashCommand(ctx context.Context, event socketmode.Event) {
	cmd, ok := event.Data.(slack.SlashCommand)
	if !ok {
		return
	}

	c.socket.Ack(*event.Request)

	// "/contrabot bookticket 24 38 2026-09-15" → "/bookticket 24 38 2026-09-15"
	text := strings.TrimSpace(cmd.Text)
	if text != "" && !strings.HasPrefix(text, "/") {
		text = "/" + text
	}
	if text == "" {
		text = "/help"
	}

	c.forward(ctx, cmd.UserID, cmd.ChannelID, text)
}

func (c *Connector) forward(ctx context.Context, user, channel, text string) {
	inbound := connector.InboundMessage{
		Channel:  "slack",
		SenderID: user,
		ChatID:   channel,
		Content:  text,
	}
	if err := c.handler(ctx, inbound); err != nil {
		c.logger.Error("slack inbound handler error",
			"channel", channel,
			"user", user,
			"error", err,
		)
	}
}

func (c *Connector) isAllowedChannel(channel string) bool {
	if len(c.config.Channels) == 0 {
		return true
	}
	for _, ch := range c.config.Channels {
		if ch == channel {
			return true
		}
	}
	return false
}

// StripMention removes the <@BOTID> mention from message text.
func StripMention(text, botID string) string {
	mention := fmt.Sprintf("<@%s>", botID)
	return strings.TrimSpace(strings.Replace(text, mention, "", 1))
}
