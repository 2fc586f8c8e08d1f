// botsim - Telegram bot reply simulator
// License: MIT
//
// Copyright (c) 2026 botsim contributors

package channels

import (
	"context"
	"sync"
	"time"

	"botsim/pkg/bus"
	"botsim/pkg/config"
	"botsim/pkg/fleet"
	"botsim/pkg/logger"
)

const reconcileInterval = 10 * time.Second

// Factory builds the live channel for a running bot.
type Factory func(bot fleet.Bot) (Channel, error)

// Manager keeps one live channel per running bot, attaching when a bot goes
// live and detaching when it leaves running or is deleted.
type Manager struct {
	fleet       *fleet.Manager
	bus         *bus.MessageBus
	factory     Factory
	channels    map[string]Channel
	failed      map[string]uint64
	dispatchSem chan struct{}
	mu          sync.RWMutex
}

// NewManager bridges running bots to Telegram using their own tokens.
func NewManager(cfg *config.Config, fm *fleet.Manager, messageBus *bus.MessageBus) *Manager {
	tgCfg := cfg.Channels.Telegram
	return NewManagerWithFactory(fm, messageBus, func(bot fleet.Bot) (Channel, error) {
		return NewTelegramChannel(bot.ID, bot.Token, tgCfg, messageBus)
	})
}

func NewManagerWithFactory(fm *fleet.Manager, messageBus *bus.MessageBus, factory Factory) *Manager {
	return &Manager{
		fleet:    fm,
		bus:      messageBus,
		factory:  factory,
		channels: make(map[string]Channel),
		failed:   make(map[string]uint64),
		// Limit concurrent outbound sends to avoid unbounded goroutine growth.
		dispatchSem: make(chan struct{}, 32),
	}
}

// Run follows fleet events until ctx ends, then stops every channel.
func (m *Manager) Run(ctx context.Context) error {
	logger.InfoC("channels", "Channel manager started")

	events, cancel := m.fleet.Subscribe(128)
	defer cancel()

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	go m.dispatchOutbound(dispatchCtx)

	m.reconcile(ctx)
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.StopAll(context.Background())
			logger.InfoC("channels", "Channel manager stopped")
			return nil
		case <-ticker.C:
			m.reconcile(ctx)
		case ev, ok := <-events:
			if !ok {
				m.StopAll(context.Background())
				return nil
			}
			switch {
			case ev.Type == fleet.EventDeleted:
				m.detach(ctx, ev.BotID)
			case ev.Bot != nil:
				m.sync(ctx, *ev.Bot)
			}
		}
	}
}

// reconcile catches up on events a slow subscription may have lost.
func (m *Manager) reconcile(ctx context.Context) {
	live := make(map[string]bool)
	for _, b := range m.fleet.List() {
		live[b.ID] = true
		m.sync(ctx, b)
	}
	for _, id := range m.Attached() {
		if !live[id] {
			m.detach(ctx, id)
		}
	}
}

func (m *Manager) sync(ctx context.Context, bot fleet.Bot) {
	m.mu.RLock()
	_, attached := m.channels[bot.ID]
	failedGen, failed := m.failed[bot.ID]
	m.mu.RUnlock()

	switch {
	case bot.Status == fleet.StatusRunning && !attached:
		if failed && failedGen == bot.Generation {
			return
		}
		m.attach(ctx, bot)
	case bot.Status != fleet.StatusRunning && attached:
		m.detach(ctx, bot.ID)
	}
}

func (m *Manager) attach(ctx context.Context, bot fleet.Bot) {
	ch, err := m.factory(bot)
	if err == nil {
		err = ch.Start(ctx)
	}
	if err != nil {
		logger.ErrorCF("channels", "Failed to attach channel", map[string]interface{}{
			logger.FieldBotID: bot.ID,
			logger.FieldError: err.Error(),
		})
		m.mu.Lock()
		m.failed[bot.ID] = bot.Generation
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	delete(m.failed, bot.ID)
	m.channels[bot.ID] = ch
	m.mu.Unlock()
	logger.InfoCF("channels", "Channel attached", map[string]interface{}{
		logger.FieldBotID:   bot.ID,
		logger.FieldChannel: ch.Name(),
	})
}

func (m *Manager) detach(ctx context.Context, botID string) {
	m.mu.Lock()
	ch, ok := m.channels[botID]
	delete(m.channels, botID)
	delete(m.failed, botID)
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := ch.Stop(ctx); err != nil {
		logger.ErrorCF("channels", "Error stopping channel", map[string]interface{}{
			logger.FieldBotID:   botID,
			logger.FieldChannel: ch.Name(),
			logger.FieldError:   err.Error(),
		})
	}
	logger.InfoCF("channels", "Channel detached", map[string]interface{}{
		logger.FieldBotID: botID,
	})
}

func (m *Manager) StopAll(ctx context.Context) {
	for _, id := range m.Attached() {
		m.detach(ctx, id)
	}
}

// Attached lists the bot IDs with a live channel.
func (m *Manager) Attached() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) GetChannel(botID string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[botID]
	return ch, ok
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	logger.InfoC("channels", "Outbound dispatcher started")

	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			logger.InfoC("channels", "Outbound dispatcher stopped")
			return
		}

		channel, exists := m.GetChannel(msg.BotID)
		if !exists || channel.Name() != msg.Channel {
			logger.WarnCF("channels", "No live channel for outbound message", map[string]interface{}{
				logger.FieldChannel: msg.Channel,
				logger.FieldBotID:   msg.BotID,
			})
			continue
		}

		m.dispatchSem <- struct{}{}
		go func(c Channel, outbound bus.OutboundMessage) {
			defer func() { <-m.dispatchSem }()
			if err := c.Send(ctx, outbound); err != nil {
				logger.ErrorCF("channels", "Error sending message to channel", map[string]interface{}{
					logger.FieldChannel: outbound.Channel,
					logger.FieldBotID:   outbound.BotID,
					logger.FieldError:   err.Error(),
				})
			}
		}(channel, msg)
	}
}
