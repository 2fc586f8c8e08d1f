package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"botsim/pkg/bus"
	"botsim/pkg/logger"
)

// Channel is a live transport attached to one simulated bot.
type Channel interface {
	Name() string
	BotID() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

type BaseChannel struct {
	name      string
	botID     string
	bus       *bus.MessageBus
	allowList []string
	running   atomic.Bool
}

func NewBaseChannel(name, botID string, messageBus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		botID:     botID,
		bus:       messageBus,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) BotID() string { return c.botID }

func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

func (c *BaseChannel) setRunning(v bool) { c.running.Store(v) }

// IsAllowed matches a sender against the allow list by ID or username. An
// empty list admits everyone.
func (c *BaseChannel) IsAllowed(senderID, username string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		allowed = strings.TrimPrefix(strings.TrimSpace(allowed), "@")
		if allowed == "" {
			continue
		}
		if allowed == senderID || (username != "" && strings.EqualFold(allowed, username)) {
			return true
		}
	}
	return false
}

// HandleMessage publishes an inbound message for this channel's bot.
func (c *BaseChannel) HandleMessage(senderID, chatID, content string, metadata map[string]string) bool {
	ok := c.bus.PublishInbound(bus.InboundMessage{
		Channel:  c.name,
		BotID:    c.botID,
		SenderID: senderID,
		ChatID:   chatID,
		Content:  content,
		Metadata: metadata,
	})
	if !ok {
		logger.WarnCF(c.name, "Inbound message dropped", map[string]interface{}{
			logger.FieldBotID:  c.botID,
			logger.FieldChatID: chatID,
		})
	}
	return ok
}
