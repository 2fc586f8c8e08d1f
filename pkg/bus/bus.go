package bus

import (
	"context"
	"sync"
	"time"

	"botsim/pkg/logger"
)

const (
	queueSize         = 100
	queueWriteTimeout = 2 * time.Second
)

// MessageBus carries chat traffic between live channels and the relay:
// inbound from users, outbound replies back to the same chat.
type MessageBus struct {
	inbound   chan InboundMessage
	outbound  chan OutboundMessage
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, queueSize),
		outbound: make(chan OutboundMessage, queueSize),
	}
}

// enqueue sends msg on ch unless the bus is closed or ch stays full past
// the write timeout. It reports whether msg was queued.
func enqueue[T any](mb *MessageBus, ch chan T, msg T, direction string, fields func() map[string]interface{}) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}

	timer := time.NewTimer(queueWriteTimeout)
	defer timer.Stop()
	select {
	case ch <- msg:
		return true
	case <-timer.C:
		logger.ErrorCF("bus", direction+" queue full, message dropped", fields())
		return false
	}
}

// dequeue waits for the next message on ch. ok is false once the bus is
// closed and drained, or ctx is done.
func dequeue[T any](ctx context.Context, ch chan T) (msg T, ok bool) {
	select {
	case msg, ok = <-ch:
		return msg, ok
	case <-ctx.Done():
		return msg, false
	}
}

func (mb *MessageBus) PublishInbound(msg InboundMessage) bool {
	return enqueue(mb, mb.inbound, msg, "Inbound", func() map[string]interface{} {
		return map[string]interface{}{
			logger.FieldChannel:  msg.Channel,
			logger.FieldBotID:    msg.BotID,
			logger.FieldChatID:   msg.ChatID,
			logger.FieldSenderID: msg.SenderID,
		}
	})
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	return dequeue(ctx, mb.inbound)
}

func (mb *MessageBus) PublishOutbound(msg OutboundMessage) bool {
	return enqueue(mb, mb.outbound, msg, "Outbound", func() map[string]interface{} {
		return map[string]interface{}{
			logger.FieldChannel: msg.Channel,
			logger.FieldBotID:   msg.BotID,
			logger.FieldChatID:  msg.ChatID,
		}
	})
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	return dequeue(ctx, mb.outbound)
}

// Close closes both queues. Publishing afterwards is a no-op.
func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		mb.mu.Lock()
		mb.closed = true
		close(mb.inbound)
		close(mb.outbound)
		mb.mu.Unlock()
	})
}
