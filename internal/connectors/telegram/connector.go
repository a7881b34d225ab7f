// Package telegram provides the Telegram connector: long polling bot
// commands and the first-blood announcement chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/lewisedginton/ctfd_announcer/internal/connectors/commands"
	"github.com/lewisedginton/ctfd_announcer/internal/firstblood"
	"github.com/lewisedginton/ctfd_announcer/internal/markdown"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// ErrNotPolling is returned by Ready until Start is running.
var ErrNotPolling = errors.New("telegram bot is not polling")

// api is the part of the Bot API the connector uses.
type api interface {
	sendMessage(ctx context.Context, chatID any, text string) error
	sendTyping(ctx context.Context, chatID any) error
	getChat(ctx context.Context, chatID any) error
}

// Connector represents the Telegram connector
type Connector struct {
	bot      *bot.Bot
	api      api
	commands *commands.Registry
	chatID   any
	logger   logger.Logger
	polling  atomic.Bool
}

var _ firstblood.ChannelResolver = (*Connector)(nil)

// Config holds configuration for the Telegram connector
type Config struct {
	BotToken string // Bot token from @BotFather
	ChatID   string // announcement chat: numeric ID or @channelname
	Debug    bool
	Logger   logger.Logger
}

// NewConnector creates a new Telegram connector answering commands from
// registry. The token is verified with getMe.
func NewConnector(config Config, registry *commands.Registry) (*Connector, error) {
	if config.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("command registry is required")
	}
	if config.ChatID == "" {
		return nil, fmt.Errorf("announcement chat ID is required")
	}
	if config.Logger == nil {
		config.Logger = logger.NewNopLogger()
	}

	c := &Connector{
		commands: registry,
		chatID:   ParseChatID(config.ChatID),
		logger:   config.Logger.WithFields(logger.StringField("connector", "telegram")),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(c.handleUpdate),
	}
	if config.Debug {
		opts = append(opts, bot.WithDebug())
	}

	b, err := bot.New(config.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	c.bot = b
	c.api = botAPI{b: b}
	return c, nil
}

// ParseChatID returns an int64 for numeric chat IDs and the string
// otherwise, as the Bot API accepts both.
func ParseChatID(s string) any {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id
	}
	return s
}

// Start begins polling for updates. It blocks until ctx is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	c.logger.Info("Starting Telegram bot polling")
	c.polling.Store(true)
	defer c.polling.Store(false)

	c.bot.Start(ctx)
	return nil
}

// Ready implements the readiness probe.
func (c *Connector) Ready() error {
	if !c.polling.Load() {
		return ErrNotPolling
	}
	return nil
}

// ResolveChannel confirms the announcement chat is reachable.
func (c *Connector) ResolveChannel(ctx context.Context) (firstblood.Channel, error) {
	if err := c.api.getChat(ctx, c.chatID); err != nil {
		return nil, fmt.Errorf("getChat %v: %w", c.chatID, err)
	}
	return &chat{api: c.api, id: c.chatID}, nil
}

type chat struct {
	api api
	id  any
}

func (ch *chat) Send(ctx context.Context, message string) error {
	if err := ch.api.sendMessage(ctx, ch.id, markdown.Plain(message)); err != nil {
		return fmt.Errorf("sendMessage %v: %w", ch.id, err)
	}
	return nil
}

// botAPI adapts *bot.Bot to api.
type botAPI struct {
	b *bot.Bot
}

func (a botAPI) sendMessage(ctx context.Context, chatID any, text string) error {
	_, err := a.b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	return err
}

func (a botAPI) sendTyping(ctx context.Context, chatID any) error {
	_, err := a.b.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping})
	return err
}

func (a botAPI) getChat(ctx context.Context, chatID any) error {
	_, err := a.b.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	return err
}
