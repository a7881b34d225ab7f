package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/lewisedginton/ctfd_announcer/internal/connectors/commands"
	"github.com/lewisedginton/ctfd_announcer/internal/markdown"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// handleSlashCommand acks the envelope with an empty body, then posts the
// answer to the command's channel.
func (c *Connector) handleSlashCommand(ctx context.Context, envelope socketmode.Event) {
	if envelope.Request == nil {
		return
	}
	cmd, ok := envelope.Data.(slack.SlashCommand)
	ack := func() error {
		return c.socketMode.AckCtx(ctx, envelope.Request.EnvelopeID, nil)
	}
	if !ok {
		c.logger.Warn("Failed to parse slash command data", logger.StringField("data", fmt.Sprintf("%+v", envelope.Data)))
		_ = ack()
		return
	}
	c.respond(ctx, cmd, ack)
}

// respond runs the defer-then-follow-up flow for one slash command. The
// follow-up is posted from its own goroutine so the event loop never waits
// on CTFd.
func (c *Connector) respond(ctx context.Context, cmd slack.SlashCommand, ack func() error) <-chan struct{} {
	done := make(chan struct{})
	log := c.logger.WithFields(
		logger.CommandField(cmd.Command),
		logger.StringField("user_id", cmd.UserID),
		logger.StringField("channel_id", cmd.ChannelID),
	)

	if err := ack(); err != nil {
		log.Error("Failed to acknowledge slash command", logger.ErrorField(err))
		close(done)
		return done
	}

	go func() {
		defer close(done)
		reply := c.commands.Handle(ctx, commands.Request{
			Command:   cmd.Command,
			Args:      cmd.Text,
			UserID:    cmd.UserID,
			ChannelID: cmd.ChannelID,
			Platform:  "slack",
		})
		if reply == "" {
			return
		}
		if _, _, err := c.client.PostMessageContext(ctx, cmd.ChannelID, slack.MsgOptionText(markdown.ForSlack(reply), false)); err != nil {
			log.Error("Failed to send command response", logger.ErrorField(err))
		}
	}()
	return done
}
