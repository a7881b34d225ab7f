package slack

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/ctfd_announcer/internal/connectors/commands"
	"github.com/lewisedginton/ctfd_announcer/internal/firstblood"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

type posted struct {
	channel string
	text    string
}

type fakeAPI struct {
	mu       sync.Mutex
	posts    []posted
	postErr  error
	infoErr  error
	infoSeen []string
}

func (f *fakeAPI) PostMessageContext(_ context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", "", f.postErr
	}
	_, values, err := slack.UnsafeApplyMsgOptions("", channelID, "", options...)
	if err != nil {
		return "", "", err
	}
	f.posts = append(f.posts, posted{channel: channelID, text: values.Get("text")})
	return channelID, "1700000000.000100", nil
}

func (f *fakeAPI) GetConversationInfoContext(_ context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoSeen = append(f.infoSeen, input.ChannelID)
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	ch := &slack.Channel{}
	ch.ID = input.ChannelID
	return ch, nil
}

func (f *fakeAPI) snapshot() []posted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]posted(nil), f.posts...)
}

func newTestConnector(api *fakeAPI) *Connector {
	registry := commands.NewRegistry()
	registry.Register("/about", "", func(context.Context, commands.Request) (string, error) {
		return "about text", nil
	})
	return &Connector{
		client:    api,
		commands:  registry,
		channelID: "C0ANNOUNCE",
		logger:    logger.NewNopLogger(),
	}
}

func TestNewConnectorValidatesTokens(t *testing.T) {
	registry := commands.NewRegistry()

	_, err := NewConnector(Config{BotToken: "bad", AppToken: "xapp-1", ChannelID: "C1"}, registry)
	assert.ErrorContains(t, err, "xoxb")

	_, err = NewConnector(Config{BotToken: "xoxb-1", AppToken: "bad", ChannelID: "C1"}, registry)
	assert.ErrorContains(t, err, "xapp")

	_, err = NewConnector(Config{BotToken: "xoxb-1", AppToken: "xapp-1"}, registry)
	assert.ErrorContains(t, err, "channel")

	c, err := NewConnector(Config{BotToken: "xoxb-1", AppToken: "xapp-1", ChannelID: "C1"}, registry)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Ready(), ErrNotConnected)
}

func TestResolveChannelAndSend(t *testing.T) {
	api := &fakeAPI{}
	c := newTestConnector(api)

	ch, err := c.ResolveChannel(context.Background())
	require.NoError(t, err)
	require.NoError(t, ch.Send(context.Background(), "First blood!"))

	assert.Equal(t, []string{"C0ANNOUNCE"}, api.infoSeen)
	assert.Equal(t, []posted{{channel: "C0ANNOUNCE", text: "First blood!"}}, api.snapshot())
}

func TestSendRendersSlackMarkup(t *testing.T) {
	api := &fakeAPI{}
	c := newTestConnector(api)

	ch, err := c.ResolveChannel(context.Background())
	require.NoError(t, err)
	require.NoError(t, ch.Send(context.Background(), firstblood.Message("pwn1", "A*Team <3")))

	assert.Equal(t, []posted{{
		channel: "C0ANNOUNCE",
		text:    ":drop_of_blood: First blood on *pwn1* by A*Team &lt;3!",
	}}, api.snapshot())
}

func TestResolveChannelFailure(t *testing.T) {
	api := &fakeAPI{infoErr: errors.New("channel_not_found")}
	c := newTestConnector(api)

	_, err := c.ResolveChannel(context.Background())
	assert.ErrorContains(t, err, "channel_not_found")
}

func TestSendFailure(t *testing.T) {
	api := &fakeAPI{postErr: errors.New("not_in_channel")}
	c := newTestConnector(api)

	ch, err := c.ResolveChannel(context.Background())
	require.NoError(t, err)
	assert.ErrorContains(t, ch.Send(context.Background(), "x"), "not_in_channel")
}

func TestRespondAcksThenFollowsUp(t *testing.T) {
	api := &fakeAPI{}
	c := newTestConnector(api)

	var acked bool
	done := c.respond(context.Background(), slack.SlashCommand{Command: "/about", ChannelID: "C0USER"}, func() error {
		acked = true
		assert.Empty(t, api.snapshot(), "follow-up must come after the ack")
		return nil
	})
	<-done

	assert.True(t, acked)
	assert.Equal(t, []posted{{channel: "C0USER", text: "about text"}}, api.snapshot())
}

func TestRespondUnknownCommand(t *testing.T) {
	api := &fakeAPI{}
	c := newTestConnector(api)

	<-c.respond(context.Background(), slack.SlashCommand{Command: "/flag", ChannelID: "C0USER"}, func() error { return nil })
	assert.Equal(t, []posted{{channel: "C0USER", text: "Unknown command: /flag"}}, api.snapshot())
}

func TestRespondAbandonsOnAckFailure(t *testing.T) {
	api := &fakeAPI{}
	c := newTestConnector(api)

	<-c.respond(context.Background(), slack.SlashCommand{Command: "/about", ChannelID: "C0USER"}, func() error {
		return errors.New("socket closed")
	})
	assert.Empty(t, api.snapshot())
}
