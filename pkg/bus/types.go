package bus

import "botsim/pkg/engine"

// InboundMessage is a chat message received by a live channel on behalf of
// one simulated bot.
type InboundMessage struct {
	Channel  string            `json:"channel"`
	BotID    string            `json:"bot_id"`
	SenderID string            `json:"sender_id"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is a simulated reply routed back to the channel and chat
// the inbound message came from.
type OutboundMessage struct {
	Channel string              `json:"channel"`
	BotID   string              `json:"bot_id"`
	ChatID  string              `json:"chat_id"`
	Content string              `json:"content"`
	Buttons engine.ButtonLayout `json:"buttons,omitempty"`
}
