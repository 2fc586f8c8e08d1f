package engine

import (
	"regexp"
	"strings"
)

var (
	topLevelDef   = regexp.MustCompile(`(?m)^(?:async[ \t]+)?def[ \t]`)
	replyTextCall = regexp.MustCompile(`reply_text\s*\(\s*(?:"((?:[^"\\\n]|\\.)*)"|'((?:[^'\\\n]|\\.)*)')`)
	keyboardLabel = regexp.MustCompile(`KeyboardButton\(\s*(?:"((?:[^"\\\n]|\\.)*)"|'((?:[^'\\\n]|\\.)*)')\s*\)`)
)

// SimulatePython answers message by reading the source instead of running
// it. Only "/command" messages can match; anything it cannot resolve yields
// nil.
func SimulatePython(code, message string) *Reply {
	key := commandKey(message)
	if key == "" {
		return nil
	}
	command := strings.TrimPrefix(key, "/")
	if command == "" {
		return nil
	}

	name, ok := findHandlerName(code, command)
	if !ok {
		return nil
	}
	body, ok := findFunctionBody(code, name)
	if !ok {
		return nil
	}
	text, ok := findReplyText(body)
	if !ok {
		return nil
	}

	reply := &Reply{Text: text}
	if labels := collectButtons(body); len(labels) > 0 {
		row := make([]Button, 0, len(labels))
		for _, l := range labels {
			row = append(row, Button{Text: l})
		}
		reply.Buttons = NewButtonLayout([][]Button{row})
	}
	return reply
}

// findHandlerName returns the function bound to command by a
// CommandHandler("command", fn) registration.
func findHandlerName(code, command string) (string, bool) {
	re, err := regexp.Compile(`CommandHandler\(\s*["']` + regexp.QuoteMeta(command) + `["']\s*,\s*(\w+)\s*[,)]`)
	if err != nil {
		return "", false
	}
	m := re.FindStringSubmatch(code)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// findFunctionBody returns the source of def name(...) from the end of its
// header up to the next top-level def or the end of the code.
func findFunctionBody(code, name string) (string, bool) {
	header, err := regexp.Compile(`(?m)^[ \t]*(?:async[ \t]+)?def[ \t]+` + regexp.QuoteMeta(name) + `[ \t]*\([^)]*\)[ \t]*(?:->[^:\n]*)?:`)
	if err != nil {
		return "", false
	}
	loc := header.FindStringIndex(code)
	if loc == nil {
		return "", false
	}
	rest := code[loc[1]:]
	if next := topLevelDef.FindStringIndex(rest); next != nil {
		rest = rest[:next[0]]
	}
	return rest, true
}

// findReplyText returns the first literal passed to reply_text in body.
func findReplyText(body string) (string, bool) {
	m := replyTextCall.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return unquoteLiteral(m[1], m[2]), true
}

// collectButtons returns every KeyboardButton label in body in source order.
func collectButtons(body string) []string {
	var labels []string
	for _, m := range keyboardLabel.FindAllStringSubmatch(body, -1) {
		labels = append(labels, unquoteLiteral(m[1], m[2]))
	}
	return labels
}

// unquoteLiteral decodes the simple escapes of a Python string literal. One of
// double or single holds the captured contents; the other is empty. Unknown
// escapes are kept as written.
func unquoteLiteral(double, single string) string {
	raw := double
	if raw == "" {
		raw = single
	}
	if !strings.Contains(raw, `\`) {
		return raw
	}

	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 == len(raw) {
			b.WriteByte(c)
			continue
		}
		i++
		switch next := raw[i]; next {
		case '\\', '\'', '"':
			b.WriteByte(next)
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte('\\')
			b.WriteByte(next)
		}
	}
	return b.String()
}
