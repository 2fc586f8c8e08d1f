package fleet

import (
	"fmt"
	"time"

	"botsim/pkg/engine"
	"botsim/pkg/logger"
	"botsim/pkg/session"
)

const (
	logSimulating      = "Simulating bot response via code execution..."
	logPythonCaveat    = "Python simulation is regex-based and may not cover all edge cases."
	logNoReply         = "Code did not produce a reply for this message."
	simulationErrorFmt = "Sorry, an error occurred in the simulation: %s"
)

// SendMessage records text as a user message to a running bot, runs the
// bot's engine and records what it answers. The returned message is the
// bot's reply, or its error notice when the engine failed; nil means the
// code had no answer. Only fleet problems are returned as errors: engine
// failures always end up in the conversation.
func (m *Manager) SendMessage(id, text string) (*session.Message, error) {
	m.mu.Lock()
	bot, ok := m.bots[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("send to %s: %w", id, ErrBotNotFound)
	}
	if bot.Status != StatusRunning {
		m.mu.Unlock()
		return nil, fmt.Errorf("send to %s (%s): %w", id, bot.Status, ErrBotNotRunning)
	}
	code, token, lang := bot.Code, bot.Token, bot.Language
	epoch := m.cleared[id]

	m.appendMessageLocked(id, session.Message{Sender: session.SenderUser, Text: text})
	m.mutateLocked(id, func(e *edit) {
		e.log(fmt.Sprintf("User message received: \"%s\"", text))
		e.log(logSimulating)
		if lang == engine.LanguagePython {
			e.log(logPythonCaveat)
		}
	})
	m.mu.Unlock()

	m.metrics.messages.WithLabelValues(lang).Inc()
	started := time.Now()
	reply, simErr := m.engines.Simulate(lang, code, token, text)
	m.metrics.simulation.WithLabelValues(lang).Observe(time.Since(started).Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	// An edit, restart or delete during the simulation cleared the
	// conversation this answer belonged to. A plain stop keeps it, so the
	// outcome is still recorded.
	if _, ok := m.bots[id]; !ok || m.cleared[id] != epoch {
		m.metrics.staleTransitions.Inc()
		return nil, nil
	}

	switch {
	case simErr != nil:
		m.metrics.replies.WithLabelValues(lang, "error").Inc()
		msg := session.Message{Sender: session.SenderBot, Text: fmt.Sprintf(simulationErrorFmt, simErr.Error())}
		m.appendMessageLocked(id, msg)
		m.mutateLocked(id, func(e *edit) { e.log("Error: " + simErr.Error()) })
		logger.WarnCF("fleet", "Simulation failed", map[string]interface{}{
			logger.FieldBotID: id,
			logger.FieldError: simErr.Error(),
		})
		return &msg, nil
	case reply == nil:
		m.metrics.replies.WithLabelValues(lang, "none").Inc()
		m.mutateLocked(id, func(e *edit) { e.log(logNoReply) })
		return nil, nil
	default:
		m.metrics.replies.WithLabelValues(lang, "reply").Inc()
		msg := session.Message{Sender: session.SenderBot, Text: reply.Text, Buttons: reply.Buttons}
		m.appendMessageLocked(id, msg)
		m.mutateLocked(id, func(e *edit) { e.log(fmt.Sprintf("Simulation sent reply: \"%s\"", reply.Text)) })
		logger.DebugCF("fleet", "Simulation replied", map[string]interface{}{
			logger.FieldBotID:       id,
			logger.FieldReplyLength: len(reply.Text),
		})
		return &msg, nil
	}
}

// PressButton activates a button of the latest bot message that has a
// layout. It behaves exactly like sending the button's payload.
func (m *Manager) PressButton(id string, row, col int) (*session.Message, error) {
	if _, err := m.Get(id); err != nil {
		return nil, err
	}
	last, ok := m.sessions.LastWithButtons(id)
	if !ok {
		return nil, fmt.Errorf("press %d,%d on %s: %w", row, col, id, ErrNoButton)
	}
	button, ok := last.Buttons.At(row, col)
	if !ok {
		return nil, fmt.Errorf("press %d,%d on %s: %w", row, col, id, ErrNoButton)
	}
	return m.SendMessage(id, button.Payload())
}

func (m *Manager) appendMessageLocked(id string, msg session.Message) {
	if msg.Time.IsZero() {
		msg.Time = time.Now().UTC()
	}
	m.sessions.AddMessage(id, msg)
	m.publishLocked(Event{Type: EventMessage, BotID: id, Message: &msg})
}
