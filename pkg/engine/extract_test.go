package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pyGreeter = `from telegram.ext import CommandHandler

def start(update, context):
    update.message.reply_text('Hi there')

dispatcher.add_handler(CommandHandler("start", start))
`

func TestSimulatePythonLiteralReply(t *testing.T) {
	reply := SimulatePython(pyGreeter, "/start")
	require.NotNil(t, reply)
	assert.Equal(t, "Hi there", reply.Text)
	assert.Nil(t, reply.Buttons)
}

func TestSimulatePythonUnregisteredCommand(t *testing.T) {
	assert.Nil(t, SimulatePython(pyGreeter, "/help"))
}

func TestSimulatePythonDeclines(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		message string
	}{
		{name: "plain text", code: pyGreeter, message: "start"},
		{name: "bare slash", code: pyGreeter, message: "/"},
		{name: "slash then space", code: pyGreeter, message: "/ start"},
		{name: "empty source", code: "", message: "/start"},
		{name: "garbage", code: "((((]]]] def def CommandHandler(", message: "/start"},
		{name: "function missing", code: `CommandHandler("start", nowhere)`, message: "/start"},
		{name: "computed reply", code: "def start(u, c):\n    u.message.reply_text(build())\nCommandHandler('start', start)\n", message: "/start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Nil(t, SimulatePython(tt.code, tt.message))
			})
		})
	}
}

func TestSimulatePythonTemplate(t *testing.T) {
	reply := SimulatePython(PythonTemplate, "/start")
	require.NotNil(t, reply)
	assert.Equal(t, "Hello! I am your new bot. Choose an option:", reply.Text)
	assert.Equal(t, ButtonLayout{{{Text: "Option 1"}, {Text: "Option 2"}, {Text: "Help"}}}, reply.Buttons)
}

func TestSimulatePythonBodyStopsAtNextDef(t *testing.T) {
	code := `async def menu(update: Update, context) -> None:
    await update.message.reply_text("Menu:")
    if True:
        def inner():
            pass
        KeyboardButton("Inner")

def other(update, context):
    update.message.reply_text("other")
    KeyboardButton("Leaked")

app.add_handler(CommandHandler( 'menu' , menu ))
`
	reply := SimulatePython(code, "/menu now")
	require.NotNil(t, reply)
	assert.Equal(t, "Menu:", reply.Text)
	assert.Equal(t, ButtonLayout{{{Text: "Inner"}}}, reply.Buttons)
}

func TestSimulatePythonEscapes(t *testing.T) {
	code := "def greet(u, c):\n    u.message.reply_text('it\\'s \"fine\"\\nok')\n    KeyboardButton(\"say \\\"hi\\\"\")\nCommandHandler('greet', greet)\n"
	reply := SimulatePython(code, "/greet")
	require.NotNil(t, reply)
	assert.Equal(t, "it's \"fine\"\nok", reply.Text)
	assert.Equal(t, ButtonLayout{{{Text: `say "hi"`}}}, reply.Buttons)
}

func TestUnquoteLiteral(t *testing.T) {
	tests := []struct {
		name           string
		double, single string
		want           string
	}{
		{"escaped double quotes in single quotes", "", `say \"hi\"`, `say "hi"`},
		{"escaped apostrophe in double quotes", `it\'s`, "", "it's"},
		{"backslash", `a\\b`, "", `a\b`},
		{"control escapes", `a\tb\rc`, "", "a\tb\rc"},
		{"unknown escape kept", `\d+`, "", `\d+`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, unquoteLiteral(tt.double, tt.single))
		})
	}
}

func TestSimulatePythonEscapedLiterals(t *testing.T) {
	code := "def hi(u, c):\n    u.message.reply_text('say \\\"hi\\\"')\ndef its(u, c):\n    u.message.reply_text(\"it\\'s\")\nCommandHandler('hi', hi)\nCommandHandler('its', its)\n"

	reply := SimulatePython(code, "/hi")
	require.NotNil(t, reply)
	assert.Equal(t, `say "hi"`, reply.Text)

	reply = SimulatePython(code, "/its")
	require.NotNil(t, reply)
	assert.Equal(t, "it's", reply.Text)
}

func TestSimulatePythonSpaceBeforeParen(t *testing.T) {
	code := "def start(update, context):\n    update.message.reply_text ('Hi')\nCommandHandler('start', start)\n"
	reply := SimulatePython(code, "/start")
	require.NotNil(t, reply)
	assert.Equal(t, "Hi", reply.Text)
}

func TestSimulatePythonIgnoresInlineButtons(t *testing.T) {
	code := `def menu(update, context):
    update.message.reply_text("Pick")
    InlineKeyboardButton("A", callback_data="x")
    KeyboardButton( "B" )
CommandHandler("menu", menu)
`
	reply := SimulatePython(code, "/menu")
	require.NotNil(t, reply)
	assert.Equal(t, ButtonLayout{{{Text: "B"}}}, reply.Buttons)
}

func TestSimulatePythonIsIdempotent(t *testing.T) {
	assert.Equal(t, SimulatePython(PythonTemplate, "/start"), SimulatePython(PythonTemplate, "/start"))
}

func TestFindHandlerNameQuotesCommand(t *testing.T) {
	name, ok := findHandlerName(`CommandHandler("a.b", dotted)`, "a.b")
	require.True(t, ok)
	assert.Equal(t, "dotted", name)

	_, ok = findHandlerName(`CommandHandler("axb", dotted)`, "a.b")
	assert.False(t, ok)
}
