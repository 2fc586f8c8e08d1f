package fleet

import (
	"errors"
	"strings"
	"testing"
	"time"

	"botsim/pkg/engine"
	"botsim/pkg/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validToken = "123456:ABC-DEF"

func newTestManager(t *testing.T, tweak func(*Options)) *Manager {
	t.Helper()
	opts := DefaultOptions()
	opts.Delays = Delays{}
	opts.CrashProbability = 0
	opts.Random = func() float64 { return 0.5 }
	if tweak != nil {
		tweak(&opts)
	}
	m := NewManager(opts)
	t.Cleanup(m.Close)
	return m
}

func waitForStatus(t *testing.T, m *Manager, id string, want Status) Bot {
	t.Helper()
	require.Eventually(t, func() bool {
		b, err := m.Get(id)
		return err == nil && b.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	b, err := m.Get(id)
	require.NoError(t, err)
	return b
}

func stripTimestamps(logs []string) []string {
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		if i := strings.Index(l, "] "); i >= 0 && strings.HasPrefix(l, "[") {
			l = l[i+2:]
		}
		out = append(out, l)
	}
	return out
}

func TestLaunchRunsConnectionSequence(t *testing.T) {
	m := newTestManager(t, nil)

	bot, err := m.Launch(Spec{Language: "js", Token: validToken})
	require.NoError(t, err)
	assert.Equal(t, "Bot #1", bot.Name)
	assert.Equal(t, engine.LanguageJavaScript, bot.Language)
	assert.Equal(t, engine.JavaScriptTemplate, bot.Code)

	running := waitForStatus(t, m, bot.ID, StatusRunning)
	assert.Equal(t, []string{
		"Bot created.",
		"Deployment initiated...",
		logAttempt,
		logValidate,
		logTokenOK,
		logEstablish,
		logRunning,
	}, stripTimestamps(running.Logs))
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z\] Bot created\.$`, running.Logs[0])

	st := m.Stats()
	assert.Equal(t, 1, st.Running)
	assert.Equal(t, 1, st.TelemetryEntries)
	assert.Empty(t, m.TelemetryOrphans())

	second, err := m.Launch(Spec{Token: validToken})
	require.NoError(t, err)
	assert.Equal(t, "Bot #2", second.Name)
	assert.Equal(t, engine.LanguagePython, second.Language)
}

func TestLaunchRejectsUnknownLanguage(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := m.Launch(Spec{Language: "ruby", Token: validToken})
	assert.Error(t, err)
	assert.Empty(t, m.List())
}

func TestInvalidTokenEndsInError(t *testing.T) {
	m := newTestManager(t, nil)
	bot, err := m.Launch(Spec{Language: "python", Token: "12345:short"})
	require.NoError(t, err)

	failed := waitForStatus(t, m, bot.ID, StatusError)
	logs := stripTimestamps(failed.Logs)
	assert.Equal(t, logInvalidToken, logs[len(logs)-1])
	assert.NotContains(t, logs, logRunning)
	assert.Equal(t, 0, m.Stats().TelemetryEntries)
}

func TestValidateToken(t *testing.T) {
	cases := map[string]bool{
		"":               false,
		"no-separator":   false,
		"12345:abc":      false,
		"123456:abc":     true,
		"abcdefgh:":      true,
		":abcdef":        false,
		"1234567890:AAH": true,
	}
	for token, want := range cases {
		assert.Equal(t, want, ValidateToken(token), token)
	}
}

func TestStopDiscardsPendingTransitions(t *testing.T) {
	m := newTestManager(t, func(o *Options) {
		o.Delays = Delays{Attempt: 20 * time.Millisecond, Validate: 20 * time.Millisecond, Establish: 20 * time.Millisecond, GoLive: 20 * time.Millisecond}
	})
	bot, err := m.Launch(Spec{Language: "python", Token: validToken})
	require.NoError(t, err)

	stopped, err := m.Stop(bot.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, stopped.Status)
	assert.Equal(t, 0, m.Stats().PendingTimers)

	time.Sleep(150 * time.Millisecond)
	after, err := m.Get(bot.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, after.Status)
	logs := stripTimestamps(after.Logs)
	assert.NotContains(t, logs, logValidate)
	assert.Equal(t, "Bot stopped by user.", logs[len(logs)-1])
}

func TestUpdateMidSequenceUsesNewConfiguration(t *testing.T) {
	m := newTestManager(t, func(o *Options) {
		o.Delays = Delays{Attempt: 10 * time.Millisecond, Validate: 30 * time.Millisecond, Establish: 10 * time.Millisecond, GoLive: 10 * time.Millisecond, Redeploy: 10 * time.Millisecond}
	})
	bot, err := m.Launch(Spec{Language: "python", Token: validToken})
	require.NoError(t, err)

	updated, err := m.Update(bot.ID, Spec{Language: "javascript", Token: "bad", Code: "// new"})
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, updated.Status)
	assert.Equal(t, "// new", updated.Code)
	assert.Greater(t, updated.Generation, bot.Generation)

	failed := waitForStatus(t, m, bot.ID, StatusError)
	logs := stripTimestamps(failed.Logs)
	assert.Contains(t, logs, "Bot update initiated...")
	assert.Contains(t, logs, "Redeploying with new configuration...")
	assert.NotContains(t, logs, logRunning)

	time.Sleep(100 * time.Millisecond)
	final, err := m.Get(bot.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, final.Status)
}

func TestRestartClearsTranscriptAndRedeploys(t *testing.T) {
	m := newTestManager(t, nil)
	bot, err := m.Launch(Spec{Language: "python", Token: validToken})
	require.NoError(t, err)
	waitForStatus(t, m, bot.ID, StatusRunning)

	_, err = m.SendMessage(bot.ID, "/start")
	require.NoError(t, err)
	transcript, err := m.Transcript(bot.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)

	restarted, err := m.Restart(bot.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, restarted.Status)
	assert.Zero(t, restarted.CPU)

	transcript, err = m.Transcript(bot.ID)
	require.NoError(t, err)
	assert.Empty(t, transcript)

	running := waitForStatus(t, m, bot.ID, StatusRunning)
	assert.Contains(t, stripTimestamps(running.Logs), "Restarting bot...")
	assert.Equal(t, 1, m.Stats().TelemetryEntries)
}

func TestDeleteForgetsBot(t *testing.T) {
	m := newTestManager(t, nil)
	bot, err := m.Launch(Spec{Language: "python", Token: validToken})
	require.NoError(t, err)
	waitForStatus(t, m, bot.ID, StatusRunning)

	events, cancel := m.Subscribe(16)
	defer cancel()

	require.NoError(t, m.Delete(bot.ID))
	_, err = m.Get(bot.ID)
	assert.True(t, errors.Is(err, ErrBotNotFound))
	assert.True(t, errors.Is(m.Delete(bot.ID), ErrBotNotFound))
	assert.Equal(t, 0, m.Stats().TelemetryEntries)
	assert.Empty(t, m.TelemetryOrphans())

	select {
	case ev := <-events:
		assert.Equal(t, EventDeleted, ev.Type)
		assert.Equal(t, bot.ID, ev.BotID)
	case <-time.After(time.Second):
		t.Fatal("no delete event")
	}
}

func TestLogLimit(t *testing.T) {
	m := newTestManager(t, func(o *Options) { o.LogLimit = 5 })
	bot, err := m.Launch(Spec{Language: "python", Token: validToken})
	require.NoError(t, err)

	running := waitForStatus(t, m, bot.ID, StatusRunning)
	require.Len(t, running.Logs, 5)
	logs := stripTimestamps(running.Logs)
	assert.Equal(t, logRunning, logs[4])
	assert.NotContains(t, logs, "Bot created.")

	tail, err := m.Logs(bot.ID, 2)
	require.NoError(t, err)
	assert.Len(t, tail, 2)
}

func TestFindByNameAndPrefix(t *testing.T) {
	m := newTestManager(t, nil)
	bot, err := m.Launch(Spec{Name: "Echo", Language: "python", Token: validToken})
	require.NoError(t, err)

	found, err := m.Find("Echo")
	require.NoError(t, err)
	assert.Equal(t, bot.ID, found.ID)

	found, err = m.Find(bot.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, bot.ID, found.ID)

	_, err = m.Find("nobody")
	assert.True(t, errors.Is(err, ErrBotNotFound))
}

func TestSubscribeReceivesLifecycle(t *testing.T) {
	m := newTestManager(t, nil)
	events, cancel := m.Subscribe(64)
	defer cancel()

	bot, err := m.Launch(Spec{Language: "python", Token: validToken})
	require.NoError(t, err)

	seen := map[EventType]bool{}
	timeout := time.After(2 * time.Second)
	for !seen[EventStatus] {
		select {
		case ev := <-events:
			assert.Equal(t, bot.ID, ev.BotID)
			seen[ev.Type] = true
		case <-timeout:
			t.Fatalf("missing events, saw %v", seen)
		}
	}
	assert.True(t, seen[EventCreated])
	assert.True(t, seen[EventLog])
}

func TestCloseEndsSubscriptions(t *testing.T) {
	m := NewManager(DefaultOptions())
	events, _ := m.Subscribe(1)
	m.Close()
	_, ok := <-events
	assert.False(t, ok)

	_, err := m.Launch(Spec{Language: "python", Token: validToken})
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newTestManager(t, func(o *Options) { o.Registerer = reg })
	bot, err := m.Launch(Spec{Language: "python", Token: validToken})
	require.NoError(t, err)
	waitForStatus(t, m, bot.ID, StatusRunning)
	_, err = m.SendMessage(bot.ID, "/start")
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["botsim_bots"])
	assert.True(t, names["botsim_messages_total"])
	assert.True(t, names["botsim_simulation_outcomes_total"])
}

func TestTranscriptUnknownBot(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := m.Transcript("missing")
	assert.True(t, errors.Is(err, ErrBotNotFound))
	_, err = m.Logs("missing", 0)
	assert.True(t, errors.Is(err, ErrBotNotFound))
	_, err = m.Stop("missing")
	assert.True(t, errors.Is(err, ErrBotNotFound))
	_, err = m.Restart("missing")
	assert.True(t, errors.Is(err, ErrBotNotFound))
	_, err = m.Update("missing", Spec{Language: "python"})
	assert.True(t, errors.Is(err, ErrBotNotFound))
}

func TestSessionsShared(t *testing.T) {
	sessions := session.NewSessionManager("", 0)
	m := newTestManager(t, func(o *Options) { o.Sessions = sessions })
	bot, err := m.Launch(Spec{Language: "python", Token: validToken})
	require.NoError(t, err)
	waitForStatus(t, m, bot.ID, StatusRunning)

	_, err = m.SendMessage(bot.ID, "/start")
	require.NoError(t, err)
	assert.Equal(t, 2, sessions.MessageCount(bot.ID))
}
