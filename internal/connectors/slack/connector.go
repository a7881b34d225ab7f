// Package slack provides the Slack connector: socket mode slash commands
// and the first-blood announcement channel.
package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/lewisedginton/ctfd_announcer/internal/connectors/commands"
	"github.com/lewisedginton/ctfd_announcer/internal/firstblood"
	"github.com/lewisedginton/ctfd_announcer/internal/markdown"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// ErrNotConnected is returned by Ready until the socket mode connection is up.
var ErrNotConnected = errors.New("slack socket mode not connected")

// api is the part of the Slack Web API the connector uses.
type api interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
}

// Connector represents the Slack Socket Mode connector
type Connector struct {
	client     api
	socketMode *socketmode.Client
	commands   *commands.Registry
	channelID  string
	logger     logger.Logger
	connected  atomic.Bool
}

var _ firstblood.ChannelResolver = (*Connector)(nil)

// Config holds configuration for the Slack connector
type Config struct {
	BotToken  string // xoxb-*
	AppToken  string // xapp-*
	ChannelID string // announcement channel
	Debug     bool
	Logger    logger.Logger
}

// NewConnector creates a new Slack connector answering commands from registry
func NewConnector(config Config, registry *commands.Registry) (*Connector, error) {
	if !strings.HasPrefix(config.BotToken, "xoxb-") {
		return nil, fmt.Errorf("invalid bot token format, expected xoxb-*")
	}
	if !strings.HasPrefix(config.AppToken, "xapp-") {
		return nil, fmt.Errorf("invalid app token format, expected xapp-*")
	}
	if registry == nil {
		return nil, fmt.Errorf("command registry is required")
	}
	if config.ChannelID == "" {
		return nil, fmt.Errorf("announcement channel ID is required")
	}
	if config.Logger == nil {
		config.Logger = logger.NewNopLogger()
	}

	client := slack.New(
		config.BotToken,
		slack.OptionAppLevelToken(config.AppToken),
		slack.OptionDebug(config.Debug),
	)

	return &Connector{
		client:     client,
		socketMode: socketmode.New(client, socketmode.OptionDebug(config.Debug)),
		commands:   registry,
		channelID:  config.ChannelID,
		logger:     config.Logger.WithFields(logger.StringField("connector", "slack")),
	}, nil
}

// Start begins the Socket Mode connection and event handling. It blocks
// until ctx is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	c.logger.Info("Starting Slack Socket Mode connector")

	go c.handleEvents(ctx)

	err := c.socketMode.RunContext(ctx)
	c.connected.Store(false)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("slack socket mode: %w", err)
	}
	return nil
}

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case envelope, ok := <-c.socketMode.Events:
			if !ok {
				return
			}
			c.handleEnvelope(ctx, envelope)
		}
	}
}

func (c *Connector) handleEnvelope(ctx context.Context, envelope socketmode.Event) {
	switch envelope.Type {
	case socketmode.EventTypeConnecting:
		c.logger.Info("Connecting to Slack with Socket Mode")

	case socketmode.EventTypeConnectionError:
		c.connected.Store(false)
		c.logger.Warn("Slack connection failed", logger.StringField("data", fmt.Sprintf("%v", envelope.Data)))

	case socketmode.EventTypeConnected:
		c.connected.Store(true)
		c.logger.Info("Connected to Slack with Socket Mode")

	case socketmode.EventTypeDisconnect:
		c.connected.Store(false)
		c.logger.Warn("Disconnected from Slack")

	case socketmode.EventTypeHello:

	case socketmode.EventTypeSlashCommand:
		c.handleSlashCommand(ctx, envelope)

	case socketmode.EventTypeEventsAPI, socketmode.EventTypeInteractive:
		if envelope.Request != nil {
			c.socketMode.Ack(*envelope.Request)
		}

	default:
		c.logger.Debug("Unsupported event type received", logger.StringField("type", string(envelope.Type)))
	}
}

// Ready implements the readiness probe.
func (c *Connector) Ready() error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	return nil
}

// ResolveChannel confirms the announcement channel exists and the bot can
// see it.
func (c *Connector) ResolveChannel(ctx context.Context) (firstblood.Channel, error) {
	info, err := c.client.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: c.channelID})
	if err != nil {
		return nil, fmt.Errorf("conversations.info %s: %w", c.channelID, err)
	}
	return &channel{client: c.client, id: info.ID}, nil
}

type channel struct {
	client api
	id     string
}

func (ch *channel) Send(ctx context.Context, message string) error {
	if _, _, err := ch.client.PostMessageContext(ctx, ch.id, slack.MsgOptionText(markdown.ForSlack(message), false)); err != nil {
		return fmt.Errorf("chat.postMessage %s: %w", ch.id, err)
	}
	return nil
}
