// Package relay feeds messages from live channels into the fleet and routes
// the simulated replies back to the chat they came from.
package relay

import (
	"context"
	"errors"

	"botsim/pkg/bus"
	"botsim/pkg/fleet"
	"botsim/pkg/lifecycle"
	"botsim/pkg/logger"
)

type Relay struct {
	bus    *bus.MessageBus
	fleet  *fleet.Manager
	runner *lifecycle.LoopRunner
}

func New(messageBus *bus.MessageBus, fm *fleet.Manager) *Relay {
	return &Relay{
		bus:    messageBus,
		fleet:  fm,
		runner: lifecycle.NewLoopRunner(),
	}
}

func (r *Relay) Start() bool {
	return r.runner.Start(r.loop)
}

func (r *Relay) Stop() bool {
	return r.runner.Stop()
}

func (r *Relay) loop(ctx context.Context) {
	logger.InfoC("relay", "Relay started")
	for {
		msg, ok := r.bus.ConsumeInbound(ctx)
		if !ok {
			logger.InfoC("relay", "Relay stopped")
			return
		}
		r.handle(msg)
	}
}

func (r *Relay) handle(msg bus.InboundMessage) {
	reply, err := r.fleet.SendMessage(msg.BotID, msg.Content)
	if err != nil {
		level := logger.WarnCF
		if !errors.Is(err, fleet.ErrBotNotRunning) && !errors.Is(err, fleet.ErrBotNotFound) {
			level = logger.ErrorCF
		}
		level("relay", "Inbound message not dispatched", map[string]interface{}{
			logger.FieldChannel: msg.Channel,
			logger.FieldBotID:   msg.BotID,
			logger.FieldError:   err.Error(),
		})
		return
	}
	if reply == nil {
		return
	}

	r.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		BotID:   msg.BotID,
		ChatID:  msg.ChatID,
		Content: reply.Text,
		Buttons: reply.Buttons,
	})
}
