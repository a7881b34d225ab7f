package telegram

import (
	"context"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/lewisedginton/ctfd_announcer/internal/connectors/commands"
	"github.com/lewisedginton/ctfd_announcer/internal/markdown"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// handleUpdate processes all incoming Telegram updates. Only commands are
// answered.
func (c *Connector) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}
	if msg.From != nil && msg.From.IsBot {
		return
	}
	command, args, ok := commands.Parse(msg.Text)
	if !ok {
		return
	}

	req := commands.Request{
		Command:   command,
		Args:      args,
		ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
		Platform:  "telegram",
	}
	if msg.From != nil {
		req.UserID = strconv.FormatInt(msg.From.ID, 10)
	}
	c.respond(ctx, msg.Chat.ID, req)
}

// respond sends a typing action as the acknowledgement, then the answer.
// A failed acknowledgement abandons the request.
func (c *Connector) respond(ctx context.Context, chatID int64, req commands.Request) {
	log := c.logger.WithFields(
		logger.CommandField(req.Command),
		logger.StringField("user_id", req.UserID),
		logger.StringField("channel_id", req.ChannelID),
	)

	if err := c.api.sendTyping(ctx, chatID); err != nil {
		log.Error("Failed to acknowledge command", logger.ErrorField(err))
		return
	}

	reply := c.commands.Handle(ctx, req)
	if reply == "" {
		return
	}
	if err := c.api.sendMessage(ctx, chatID, markdown.Plain(reply)); err != nil {
		log.Error("Failed to send command response", logger.ErrorField(err))
	}
}
