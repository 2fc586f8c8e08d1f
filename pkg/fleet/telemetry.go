package fleet

import (
	"math"
	"time"

	"botsim/pkg/logger"

	"github.com/robfig/cron/v3"
)

const logCrash = "Error: Unhandled exception. Bot halted."

var pollingLines = []string{
	"Polling for updates...",
	"API call to telegram successful. No new messages.",
	"Processing update queue... empty.",
	"Memory usage stable.",
	"CPU load nominal.",
	"Healthcheck passed.",
	"Connection to Telegram API is healthy.",
	"Checking for pending tasks...",
}

// startTelemetryLocked schedules the telemetry tick for a running bot. It
// is a no-op when the bot already has an entry.
func (m *Manager) startTelemetryLocked(id string) {
	if _, ok := m.telemetry[id]; ok || m.closed {
		return
	}
	interval := m.telemetryInterval()
	entry := m.cron.Schedule(cron.Every(interval), cron.FuncJob(func() { m.tick(id) }))
	m.telemetry[id] = entry
	logger.DebugCF("fleet", "Telemetry scheduled", map[string]interface{}{
		logger.FieldBotID: id,
		"interval":        interval.String(),
	})
}

func (m *Manager) stopTelemetryLocked(id string) {
	entry, ok := m.telemetry[id]
	if !ok {
		return
	}
	m.cron.Remove(entry)
	delete(m.telemetry, id)
}

// telemetryInterval picks a jittered interval in [TelemetryMin, TelemetryMax].
func (m *Manager) telemetryInterval() time.Duration {
	span := m.opts.TelemetryMax - m.opts.TelemetryMin
	if span <= 0 {
		return m.opts.TelemetryMin
	}
	return m.opts.TelemetryMin + time.Duration(m.random()*float64(span))
}

// tick fabricates one round of telemetry for a running bot. With
// CrashProbability the bot halts instead.
func (m *Manager) tick(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bot, ok := m.bots[id]
	if m.closed || !ok || bot.Status != StatusRunning {
		return
	}

	if m.random() < m.opts.CrashProbability {
		m.mutateLocked(id, func(e *edit) {
			e.Status = StatusError
			e.log(logCrash)
		})
		m.metrics.crashes.Inc()
		logger.WarnCF("fleet", "Simulated crash", map[string]interface{}{logger.FieldBotID: id})
		return
	}

	cpu := round2(m.random()*8 + 2)
	ram := round2(m.random()*25 + 25)
	line := pollingLines[int(m.random()*float64(len(pollingLines)))%len(pollingLines)]
	m.mutateLocked(id, func(e *edit) {
		e.CPU, e.RAM = cpu, ram
		e.log(line)
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
