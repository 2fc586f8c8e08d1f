// Package tui provides interactive terminal front ends for chatting with a
// simulated bot.
package tui

import (
	"fmt"
	"strings"

	"botsim/pkg/fleet"
	"botsim/pkg/session"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const chromeHeight = 7

type (
	eventMsg        fleet.Event
	eventsClosedMsg struct{}
	actionDoneMsg   struct{ err error }
)

// Chat is a bubbletea model bound to one bot of an in-process fleet.
type Chat struct {
	fleet      *fleet.Manager
	botID      string
	bot        fleet.Bot
	transcript []session.Message
	lastLog    string
	err        error
	busy       bool

	input    textinput.Model
	viewport viewport.Model
	width    int
	ready    bool

	events <-chan fleet.Event
	cancel func()
}

func NewChat(fm *fleet.Manager, botID string) (*Chat, error) {
	bot, err := fm.Get(botID)
	if err != nil {
		return nil, err
	}
	transcript, err := fm.Transcript(botID)
	if err != nil {
		return nil, err
	}

	in := textinput.New()
	in.Placeholder = "Type a message, /command, or a number to press a button"
	in.CharLimit = 4096
	in.Focus()

	events, cancel := fm.Subscribe(256)
	return &Chat{
		fleet:      fm,
		botID:      botID,
		bot:        bot,
		transcript: transcript,
		input:      in,
		viewport:   viewport.New(80, 20),
		width:      80,
		events:     events,
		cancel:     cancel,
	}, nil
}

// Run starts the program on the alternate screen and blocks until it exits.
func (m *Chat) Run() error {
	defer m.cancel()
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m *Chat) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.events))
}

func waitForEvent(ch <-chan fleet.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.apply(fleet.Event(msg))
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, tea.Quit

	case actionDoneMsg:
		m.busy = false
		m.err = msg.err
		m.reloadTranscript()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Chat) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.cancel()
		return m, tea.Quit
	case tea.KeyCtrlR:
		m.err = nil
		_, err := m.fleet.Restart(m.botID)
		m.err = err
		return m, nil
	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.busy {
			return m, nil
		}
		m.input.Reset()
		m.busy = true
		return m, m.send(text)
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if msg.Type == tea.KeyRunes && m.input.Value() == "" && len(msg.Runes) == 1 {
		if r := msg.Runes[0]; r >= '1' && r <= '9' {
			if cmd := m.press(int(r - '0')); cmd != nil {
				return m, cmd
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Chat) send(text string) tea.Cmd {
	fm, id := m.fleet, m.botID
	return func() tea.Msg {
		_, err := fm.SendMessage(id, text)
		return actionDoneMsg{err: err}
	}
}

// press activates the button with the given hotkey, or returns nil when
// there is no such button.
func (m *Chat) press(key int) tea.Cmd {
	if m.busy {
		return nil
	}
	for _, ref := range flattenButtons(m.transcript) {
		if ref.Key != key {
			continue
		}
		m.busy = true
		fm, id := m.fleet, m.botID
		return func() tea.Msg {
			_, err := fm.PressButton(id, ref.Row, ref.Col)
			return actionDoneMsg{err: err}
		}
	}
	return nil
}

func (m *Chat) apply(ev fleet.Event) {
	if ev.BotID != m.botID {
		return
	}
	if ev.Bot != nil {
		m.bot = *ev.Bot
	}
	switch ev.Type {
	case fleet.EventLog:
		m.lastLog = ev.Log
	case fleet.EventMessage, fleet.EventUpdated:
		m.reloadTranscript()
	case fleet.EventDeleted:
		m.err = fleet.ErrBotNotFound
	}
}

func (m *Chat) reloadTranscript() {
	if transcript, err := m.fleet.Transcript(m.botID); err == nil {
		m.transcript = transcript
	}
	m.refresh()
}

func (m *Chat) refresh() {
	m.viewport.SetContent(renderTranscript(m.transcript, m.width))
	m.viewport.GotoBottom()
}

func renderTranscript(transcript []session.Message, width int) string {
	if len(transcript) == 0 {
		return dimStyle.Render("No messages yet. Try /start.")
	}
	wrap := lipgloss.NewStyle().Width(max(width-2, 10))
	var b strings.Builder
	for _, msg := range transcript {
		label := userStyle.Render("you")
		if msg.Sender == session.SenderBot {
			label = botStyle.Render("bot")
		}
		b.WriteString(wrap.Render(label + " " + msg.Text))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Chat) View() string {
	header := fmt.Sprintf("%s  %s  %s",
		titleStyle.Render(m.bot.Name),
		renderStatus(m.bot.Status),
		dimStyle.Render(m.bot.Language))

	var buttons []string
	for _, ref := range flattenButtons(m.transcript) {
		buttons = append(buttons, buttonStyle.Render(fmt.Sprintf("%d %s", ref.Key, ref.Button.Text)))
	}
	keyboard := dimStyle.Render("(no keyboard)")
	if len(buttons) > 0 {
		keyboard = lipgloss.JoinHorizontal(lipgloss.Top, buttons...)
	}

	footer := dimStyle.Render(m.lastLog)
	if m.err != nil {
		footer = errorStyle.Render("Error: " + m.err.Error())
	}
	help := dimStyle.Render("enter send • 1-9 press button • ctrl+r restart • esc quit")

	return strings.Join([]string{header, m.viewport.View(), keyboard, m.input.View(), footer, help}, "\n")
}
