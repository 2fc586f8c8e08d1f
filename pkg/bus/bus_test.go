package bus

import (
	"context"
	"testing"
	"time"

	"botsim/pkg/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboundRoundTrip(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	require.True(t, mb.PublishInbound(InboundMessage{Channel: "telegram", BotID: "b1", ChatID: "7", Content: "/start"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.Equal(t, "b1", msg.BotID)
	assert.Equal(t, "/start", msg.Content)
}

func TestOutboundCarriesButtons(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	layout := engine.ButtonLayout{{{Text: "Go", CallbackData: "go"}}}
	require.True(t, mb.PublishOutbound(OutboundMessage{Channel: "telegram", ChatID: "7", Content: "Hi", Buttons: layout}))

	msg, ok := mb.SubscribeOutbound(context.Background())
	require.True(t, ok)
	assert.Equal(t, layout, msg.Buttons)
}

func TestConsumeStopsOnContext(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := mb.ConsumeInbound(ctx)
	assert.False(t, ok)
}

func TestPublishAfterClose(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()
	mb.Close()

	assert.False(t, mb.PublishInbound(InboundMessage{Content: "x"}))
	assert.False(t, mb.PublishOutbound(OutboundMessage{Content: "x"}))

	_, ok := mb.ConsumeInbound(context.Background())
	assert.False(t, ok)
}
