package fleet

import (
	"strings"
	"time"

	"botsim/pkg/logger"
)

const (
	logAttempt      = "Attempting to connect to Telegram API..."
	logValidate     = "Validating Telegram token..."
	logTokenOK      = "Token validation successful."
	logEstablish    = "Establishing connection to api.telegram.org..."
	logRunning      = "Successfully connected. Bot is now running and polling for updates."
	logInvalidToken = "Error: Invalid Telegram token format. Please check your token."

	minTokenPrefix = 6
)

// ValidateToken applies the Telegram token shape check used before going
// live: non-empty, with a ':' separator and more than five characters
// before it. The token is never sent anywhere.
func ValidateToken(token string) bool {
	prefix, _, found := strings.Cut(token, ":")
	return token != "" && found && len(prefix) >= minTokenPrefix
}

// connectLocked runs the connection sequence for generation gen:
// attempt, validate, then either fail or establish and go live.
func (m *Manager) connectLocked(id string, gen uint64) {
	m.mutateLocked(id, func(e *edit) { e.log(logAttempt) })

	d := m.opts.Delays
	m.afterLocked(id, gen, d.Attempt, func() {
		m.mutateLocked(id, func(e *edit) { e.log(logValidate) })

		m.afterLocked(id, gen, d.Validate, func() {
			bot := m.bots[id]
			if !ValidateToken(bot.Token) {
				m.mutateLocked(id, func(e *edit) {
					e.Status = StatusError
					e.log(logInvalidToken)
				})
				m.metrics.deployments.WithLabelValues("invalid_token").Inc()
				logger.WarnCF("fleet", "Token rejected", map[string]interface{}{
					logger.FieldBotID: id,
				})
				return
			}

			m.mutateLocked(id, func(e *edit) { e.log(logTokenOK) })
			m.afterLocked(id, gen, d.Establish, func() {
				m.mutateLocked(id, func(e *edit) { e.log(logEstablish) })
				m.afterLocked(id, gen, d.GoLive, func() {
					m.mutateLocked(id, func(e *edit) {
						e.Status = StatusRunning
						e.log(logRunning)
					})
					m.metrics.deployments.WithLabelValues("running").Inc()
				})
			})
		})
	})
}

// afterLocked schedules fn to run under the manager lock after delay, but
// only if the bot still exists at generation gen.
func (m *Manager) afterLocked(id string, gen uint64, delay time.Duration, fn func()) {
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.forgetTimerLocked(id, t)
		if m.closed {
			return
		}
		bot, ok := m.bots[id]
		if !ok || bot.Generation != gen {
			m.metrics.staleTransitions.Inc()
			logger.DebugCF("fleet", "Discarded stale transition", map[string]interface{}{
				logger.FieldBotID:      id,
				logger.FieldGeneration: gen,
			})
			return
		}
		fn()
	})
	m.timers[id] = append(m.timers[id], t)
}

func (m *Manager) forgetTimerLocked(id string, t *time.Timer) {
	ts := m.timers[id]
	for i, other := range ts {
		if other == t {
			ts = append(ts[:i], ts[i+1:]...)
			break
		}
	}
	if len(ts) == 0 {
		delete(m.timers, id)
		return
	}
	m.timers[id] = ts
}

func (m *Manager) cancelTimersLocked(id string) {
	for _, t := range m.timers[id] {
		t.Stop()
	}
	delete(m.timers, id)
}
