package fleet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickFabricatesMetrics(t *testing.T) {
	m := newTestManager(t, nil)
	bot := launchRunning(t, m, Spec{Language: "python"})

	m.tick(bot.ID)

	after, err := m.Get(bot.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, after.Status)
	assert.InDelta(t, 6.0, after.CPU, 0.001)
	assert.InDelta(t, 37.5, after.RAM, 0.001)
	logs := stripTimestamps(after.Logs)
	assert.Equal(t, pollingLines[4], logs[len(logs)-1])
}

func TestTickCrashHaltsBotOnce(t *testing.T) {
	m := newTestManager(t, func(o *Options) { o.CrashProbability = 1 })
	bot := launchRunning(t, m, Spec{Language: "python"})
	require.Equal(t, 1, m.Stats().TelemetryEntries)

	m.tick(bot.ID)
	m.tick(bot.ID)

	after, err := m.Get(bot.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, after.Status)
	crashes := 0
	for _, l := range stripTimestamps(after.Logs) {
		if l == logCrash {
			crashes++
		}
	}
	assert.Equal(t, 1, crashes)
	assert.Equal(t, 0, m.Stats().TelemetryEntries)
	assert.Empty(t, m.TelemetryOrphans())
}

func TestTelemetryScheduledOncePerRunningBot(t *testing.T) {
	m := newTestManager(t, nil)
	a := launchRunning(t, m, Spec{Language: "python"})
	launchRunning(t, m, Spec{Language: "javascript"})
	assert.Equal(t, 2, m.Stats().TelemetryEntries)

	m.mu.Lock()
	m.startTelemetryLocked(a.ID)
	m.mu.Unlock()
	assert.Equal(t, 2, m.Stats().TelemetryEntries)

	_, err := m.Stop(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Stats().TelemetryEntries)
}

func TestTelemetryInterval(t *testing.T) {
	m := newTestManager(t, nil)
	assert.Equal(t, 6*time.Second, m.telemetryInterval())

	m.opts.TelemetryMax = m.opts.TelemetryMin
	assert.Equal(t, 5*time.Second, m.telemetryInterval())
}
