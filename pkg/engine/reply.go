package engine

// Button is a single keyboard button. A reply button carries only Text; a
// callback button also carries CallbackData, which is what gets sent back when
// the button is pressed.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

// IsCallback reports whether the button is an inline callback button.
func (b Button) IsCallback() bool {
	return b.CallbackData != ""
}

// Payload is the message text produced by activating the button.
func (b Button) Payload() string {
	if b.CallbackData != "" {
		return b.CallbackData
	}
	return b.Text
}

// ButtonLayout is an ordered list of non-empty rows. A nil layout means "no
// buttons"; use NewButtonLayout to build one so the invariant holds.
type ButtonLayout [][]Button

// NewButtonLayout drops empty rows and returns nil when nothing is left.
func NewButtonLayout(rows [][]Button) ButtonLayout {
	var out ButtonLayout
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		out = append(out, append([]Button(nil), row...))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// At returns the button at row/col.
func (l ButtonLayout) At(row, col int) (Button, bool) {
	if row < 0 || row >= len(l) {
		return Button{}, false
	}
	if col < 0 || col >= len(l[row]) {
		return Button{}, false
	}
	return l[row][col], true
}

// Count returns the total number of buttons.
func (l ButtonLayout) Count() int {
	n := 0
	for _, row := range l {
		n += len(row)
	}
	return n
}

// Reply is what a simulated bot answers with.
type Reply struct {
	Text    string       `json:"text"`
	Buttons ButtonLayout `json:"buttons,omitempty"`
}
