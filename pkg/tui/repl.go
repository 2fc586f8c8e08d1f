package tui

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"botsim/pkg/fleet"
	"botsim/pkg/session"

	"github.com/chzyer/readline"
)

const replHelp = `Commands:
  :press N    press button N of the latest keyboard
  :logs [N]   show the last N log lines (default 10)
  :restart    restart the bot
  :status     show bot status
  :quit       leave
Anything else is sent to the bot as a message.`

// REPL is a line-oriented chat for terminals without full-screen support.
type REPL struct {
	fleet       *fleet.Manager
	botID       string
	historyFile string
}

func NewREPL(fm *fleet.Manager, botID, historyFile string) *REPL {
	return &REPL{fleet: fm, botID: botID, historyFile: historyFile}
}

func (r *REPL) Run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     r.historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintln(rl.Stdout(), replHelp)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		out, quit := r.Exec(line)
		if out != "" {
			fmt.Fprintln(rl.Stdout(), out)
		}
		if quit {
			return nil
		}
	}
}

// Exec handles one input line and returns what to print.
func (r *REPL) Exec(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	if !strings.HasPrefix(line, ":") {
		return r.reply(r.fleet.SendMessage(r.botID, line))
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q", ":exit":
		return "", true
	case ":help", ":h":
		return replHelp, false
	case ":press", ":p":
		if len(fields) < 2 {
			return "usage: :press N", false
		}
		key, err := strconv.Atoi(fields[1])
		if err != nil {
			return "usage: :press N", false
		}
		transcript, err := r.fleet.Transcript(r.botID)
		if err != nil {
			return "error: " + err.Error(), false
		}
		for _, ref := range flattenButtons(transcript) {
			if ref.Key == key {
				return r.reply(r.fleet.PressButton(r.botID, ref.Row, ref.Col))
			}
		}
		return fmt.Sprintf("no button %d", key), false
	case ":logs":
		n := 10
		if len(fields) > 1 {
			if v, err := strconv.Atoi(fields[1]); err == nil && v > 0 {
				n = v
			}
		}
		logs, err := r.fleet.Logs(r.botID, n)
		if err != nil {
			return "error: " + err.Error(), false
		}
		return strings.Join(logs, "\n"), false
	case ":restart":
		if _, err := r.fleet.Restart(r.botID); err != nil {
			return "error: " + err.Error(), false
		}
		return "restarting...", false
	case ":status":
		b, err := r.fleet.Get(r.botID)
		if err != nil {
			return "error: " + err.Error(), false
		}
		return fmt.Sprintf("%s [%s] %s cpu=%.2f%% ram=%.2fMB", b.Name, b.Status, b.Language, b.CPU, b.RAM), false
	}
	return fmt.Sprintf("unknown command %s (try :help)", fields[0]), false
}

func (r *REPL) reply(msg *session.Message, err error) (string, bool) {
	if err != nil {
		return "error: " + err.Error(), false
	}
	if msg == nil {
		return "(no reply)", false
	}
	return FormatReply(msg), false
}

// FormatReply renders a bot message and its numbered keyboard as plain text.
func FormatReply(msg *session.Message) string {
	var b strings.Builder
	b.WriteString("bot> ")
	b.WriteString(msg.Text)
	for _, ref := range flattenButtons([]session.Message{*msg}) {
		fmt.Fprintf(&b, "\n  [%d] %s", ref.Key, ref.Button.Text)
	}
	return b.String()
}
