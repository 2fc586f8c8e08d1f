package fleet

import (
	"errors"
	"time"

	"botsim/pkg/session"
)

type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusError   Status = "error"
)

var (
	ErrBotNotFound   = errors.New("bot not found")
	ErrBotNotRunning = errors.New("bot is not running")
	ErrNoButton      = errors.New("no button at that position")
	ErrClosed        = errors.New("fleet is closed")
)

// Bot is one simulated deployment. Records are replaced wholesale on every
// change, so a Bot returned by the manager is a stable snapshot.
type Bot struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Status     Status    `json:"status"`
	Code       string    `json:"code"`
	Token      string    `json:"token"`
	Language   string    `json:"language"`
	Logs       []string  `json:"logs"`
	CPU        float64   `json:"cpu_usage"`
	RAM        float64   `json:"ram_usage"`
	Generation uint64    `json:"generation"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
}

func (b Bot) clone() Bot {
	b.Logs = append([]string(nil), b.Logs...)
	return b
}

// Spec is the user-supplied part of a bot. Empty Code means the language's
// starter template.
type Spec struct {
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Language string `json:"language" yaml:"language"`
	Token    string `json:"token" yaml:"token"`
	Code     string `json:"code,omitempty" yaml:"code,omitempty"`
}

type EventType string

const (
	EventCreated EventType = "bot.created"
	EventUpdated EventType = "bot.updated"
	EventStatus  EventType = "bot.status"
	EventLog     EventType = "bot.log"
	EventMessage EventType = "bot.message"
	EventDeleted EventType = "bot.deleted"
)

// Event describes one change to a bot. Bot is the snapshot after the change;
// Message is set for EventMessage and Log for EventLog.
type Event struct {
	Type    EventType        `json:"type"`
	BotID   string           `json:"bot_id"`
	Bot     *Bot             `json:"bot,omitempty"`
	Log     string           `json:"log,omitempty"`
	Message *session.Message `json:"message,omitempty"`
}
