package fleet

import (
	"errors"
	"fmt"
	"testing"

	"botsim/pkg/engine"
	"botsim/pkg/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func launchRunning(t *testing.T, m *Manager, spec Spec) Bot {
	t.Helper()
	if spec.Token == "" {
		spec.Token = validToken
	}
	bot, err := m.Launch(spec)
	require.NoError(t, err)
	return waitForStatus(t, m, bot.ID, StatusRunning)
}

func TestSendMessageRejectsNonRunning(t *testing.T) {
	m := newTestManager(t, nil)

	_, err := m.SendMessage("missing", "/start")
	assert.True(t, errors.Is(err, ErrBotNotFound))

	bot := launchRunning(t, m, Spec{Language: "python"})
	_, err = m.Stop(bot.ID)
	require.NoError(t, err)
	_, err = m.SendMessage(bot.ID, "/start")
	assert.True(t, errors.Is(err, ErrBotNotRunning))

	transcript, err := m.Transcript(bot.ID)
	require.NoError(t, err)
	assert.Empty(t, transcript)
}

func TestSendMessageJavaScriptReplyAndButtons(t *testing.T) {
	m := newTestManager(t, nil)
	bot := launchRunning(t, m, Spec{Language: "javascript"})

	reply, err := m.SendMessage(bot.ID, "/start")
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, session.SenderBot, reply.Sender)
	assert.Equal(t, "Welcome! I am your new bot. Choose an option:", reply.Text)
	require.Equal(t, 2, reply.Buttons.Count())

	logs, err := m.Logs(bot.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`User message received: "/start"`,
		logSimulating,
		`Simulation sent reply: "Welcome! I am your new bot. Choose an option:"`,
	}, stripTimestamps(logs))

	reply, err = m.PressButton(bot.ID, 0, 1)
	require.NoError(t, err)
	assert.Nil(t, reply)

	transcript, err := m.Transcript(bot.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 3)
	assert.Equal(t, session.Message{Sender: session.SenderUser, Text: "option_2"}, session.Message{Sender: transcript[2].Sender, Text: transcript[2].Text})

	logs, err = m.Logs(bot.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{logNoReply}, stripTimestamps(logs))
}

func TestSendMessagePythonLogsCaveat(t *testing.T) {
	m := newTestManager(t, nil)
	bot := launchRunning(t, m, Spec{Language: "python"})

	reply, err := m.SendMessage(bot.ID, "/start")
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, engine.ButtonLayout{{{Text: "Option 1"}, {Text: "Option 2"}, {Text: "Help"}}}, reply.Buttons)

	logs, err := m.Logs(bot.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, logPythonCaveat, stripTimestamps(logs)[2])

	reply, err = m.PressButton(bot.ID, 0, 2)
	require.NoError(t, err)
	assert.Nil(t, reply)

	transcript, err := m.Transcript(bot.ID)
	require.NoError(t, err)
	assert.Equal(t, "Help", transcript[len(transcript)-1].Text)
}

func TestSendMessageEngineFailureIsRecorded(t *testing.T) {
	m := newTestManager(t, nil)
	bot := launchRunning(t, m, Spec{Language: "javascript", Code: `const fs = require('fs');`})

	reply, err := m.SendMessage(bot.ID, "/start")
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "Sorry, an error occurred in the simulation: module not available")

	logs, err := m.Logs(bot.ID, 1)
	require.NoError(t, err)
	assert.Contains(t, stripTimestamps(logs)[0], "Error: module not available")

	transcript, err := m.Transcript(bot.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, session.SenderBot, transcript[1].Sender)
}

// blockingEngines returns engines whose JavaScript engine waits for release
// before failing, signalling entered once the call is in flight.
func blockingEngines(entered, release chan struct{}) *engine.Set {
	set := engine.NewSet(engine.SandboxOptions{})
	set.JavaScript = engine.EngineFunc(func(_, _, _ string) (*engine.Reply, error) {
		close(entered)
		<-release
		return nil, fmt.Errorf("%w: boom", engine.ErrExecution)
	})
	return set
}

func TestSendMessageFailureSurvivesStop(t *testing.T) {
	entered, release := make(chan struct{}), make(chan struct{})
	m := newTestManager(t, func(o *Options) { o.Engines = blockingEngines(entered, release) })
	bot := launchRunning(t, m, Spec{Language: "javascript", Code: "bot.start(() => {})"})

	type result struct {
		msg *session.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := m.SendMessage(bot.ID, "/start")
		done <- result{msg, err}
	}()

	<-entered
	_, err := m.Stop(bot.ID)
	require.NoError(t, err)
	close(release)

	res := <-done
	require.NoError(t, res.err)
	require.NotNil(t, res.msg)
	assert.Equal(t, "Sorry, an error occurred in the simulation: execution failed: boom", res.msg.Text)

	transcript, err := m.Transcript(bot.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, res.msg.Text, transcript[1].Text)

	logs, err := m.Logs(bot.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Error: execution failed: boom", stripTimestamps(logs)[0])
}

func TestSendMessageDroppedAfterRestart(t *testing.T) {
	entered, release := make(chan struct{}), make(chan struct{})
	m := newTestManager(t, func(o *Options) { o.Engines = blockingEngines(entered, release) })
	bot := launchRunning(t, m, Spec{Language: "javascript", Code: "bot.start(() => {})"})

	done := make(chan *session.Message, 1)
	go func() {
		msg, _ := m.SendMessage(bot.ID, "/start")
		done <- msg
	}()

	<-entered
	_, err := m.Restart(bot.ID)
	require.NoError(t, err)
	close(release)

	assert.Nil(t, <-done)
	transcript, err := m.Transcript(bot.ID)
	require.NoError(t, err)
	assert.Empty(t, transcript)
}

func TestPressButtonWithoutLayout(t *testing.T) {
	m := newTestManager(t, nil)
	bot := launchRunning(t, m, Spec{Language: "javascript"})

	_, err := m.PressButton(bot.ID, 0, 0)
	assert.True(t, errors.Is(err, ErrNoButton))

	_, err = m.SendMessage(bot.ID, "/start")
	require.NoError(t, err)
	_, err = m.PressButton(bot.ID, 1, 0)
	assert.True(t, errors.Is(err, ErrNoButton))
	_, err = m.PressButton("missing", 0, 0)
	assert.True(t, errors.Is(err, ErrBotNotFound))
}

func TestEngineIsReadPerMessage(t *testing.T) {
	m := newTestManager(t, nil)
	bot := launchRunning(t, m, Spec{Language: "javascript", Code: `
const { Telegraf } = require('telegraf');
const bot = new Telegraf(process.env.TELEGRAM_TOKEN);
bot.on('text', (ctx) => ctx.reply('echo ' + ctx.message.text));
`})

	for _, text := range []string{"one", "two"} {
		reply, err := m.SendMessage(bot.ID, text)
		require.NoError(t, err)
		require.NotNil(t, reply)
		assert.Equal(t, "echo "+text, reply.Text)
	}
}
