// Package engine turns bot source code plus one incoming chat message into the
// reply that bot would send.
//
// Two engines share the Engine contract. The JavaScript engine runs the code
// inside a goja runtime that only exposes a mock of the Telegraf API. The
// Python engine never runs anything: it mines the source text for a
// CommandHandler registration and the literal reply of the bound function.
//
// Contract:
//   - Engines are stateless; every call starts from scratch so that edits to
//     the code between calls are always honoured.
//   - A nil *Reply with a nil error means "the bot does not answer this".
//   - Only the JavaScript engine returns errors, always as *SandboxError.
package engine

import (
	"fmt"
	"strings"
)

// Language tags understood by ForLanguage.
const (
	LanguagePython     = "python"
	LanguageJavaScript = "javascript"
)

// Engine simulates one bot reply.
type Engine interface {
	Simulate(code, token, message string) (*Reply, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(code, token, message string) (*Reply, error)

func (f EngineFunc) Simulate(code, token, message string) (*Reply, error) {
	return f(code, token, message)
}

// NormalizeLanguage maps user-facing spellings onto the two language tags.
func NormalizeLanguage(lang string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "python", "py", "python3":
		return LanguagePython, nil
	case "javascript", "js", "node", "nodejs":
		return LanguageJavaScript, nil
	default:
		return "", fmt.Errorf("unsupported language %q", lang)
	}
}

// Set holds one engine per language.
type Set struct {
	Python     Engine
	JavaScript Engine
}

// NewSet returns the default engines configured with opts.
func NewSet(opts SandboxOptions) *Set {
	return &Set{
		Python:     EngineFunc(func(code, _ string, message string) (*Reply, error) { return SimulatePython(code, message), nil }),
		JavaScript: NewSandbox(opts),
	}
}

// ForLanguage selects the engine for a language tag.
func (s *Set) ForLanguage(lang string) (Engine, error) {
	normalized, err := NormalizeLanguage(lang)
	if err != nil {
		return nil, err
	}
	if normalized == LanguageJavaScript {
		return s.JavaScript, nil
	}
	return s.Python, nil
}

// Simulate runs the engine matching lang.
func (s *Set) Simulate(lang, code, token, message string) (*Reply, error) {
	eng, err := s.ForLanguage(lang)
	if err != nil {
		return nil, err
	}
	return eng.Simulate(code, token, message)
}

// commandKey returns the leading "/command" token of a message, or "" for
// plain text.
func commandKey(message string) string {
	if !strings.HasPrefix(message, "/") {
		return ""
	}
	fields := strings.Fields(message)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
