package tui

import (
	"botsim/pkg/engine"
	"botsim/pkg/session"
)

// buttonRef locates one button of a layout by its 1-based hotkey.
type buttonRef struct {
	Key    int
	Row    int
	Col    int
	Button engine.Button
}

// flattenButtons numbers the buttons of the latest keyboard in reading order.
func flattenButtons(transcript []session.Message) []buttonRef {
	var layout engine.ButtonLayout
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Buttons.Count() > 0 {
			layout = transcript[i].Buttons
			break
		}
	}
	var out []buttonRef
	for r, row := range layout {
		for c, b := range row {
			out = append(out, buttonRef{Key: len(out) + 1, Row: r, Col: c, Button: b})
		}
	}
	return out
}
