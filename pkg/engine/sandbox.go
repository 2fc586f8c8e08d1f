package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

const (
	telegrafModule  = "telegraf"
	tokenEnvVar     = "TELEGRAM_TOKEN"
	defaultTimeout  = 2 * time.Second
	messageHandler  = "on_message"
	textHandler     = "on_text"
	startCommandKey = "/start"
	helpCommandKey  = "/help"
)

// InstancePolicy decides which Telegraf instance is used when the code
// constructs more than one.
type InstancePolicy string

const (
	InstanceLast   InstancePolicy = "last"
	InstanceFirst  InstancePolicy = "first"
	InstanceReject InstancePolicy = "reject"
)

// ParseInstancePolicy accepts "", "last", "first" and "reject".
func ParseInstancePolicy(s string) (InstancePolicy, error) {
	switch InstancePolicy(s) {
	case "", InstanceLast:
		return InstanceLast, nil
	case InstanceFirst, InstanceReject:
		return InstancePolicy(s), nil
	default:
		return "", fmt.Errorf("unknown instance policy %q", s)
	}
}

type SandboxOptions struct {
	// Timeout bounds code evaluation plus handler dispatch. Zero means 2s.
	Timeout        time.Duration
	InstancePolicy InstancePolicy
}

// Sandbox is the JavaScript engine. It is safe for concurrent use because
// every Simulate call builds its own runtime.
type Sandbox struct {
	opts SandboxOptions
}

func NewSandbox(opts SandboxOptions) *Sandbox {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.InstancePolicy == "" {
		opts.InstancePolicy = InstanceLast
	}
	return &Sandbox{opts: opts}
}

// Simulate evaluates code against a mocked Telegraf module and dispatches
// message to the matching handler. See the package doc for the contract.
func (s *Sandbox) Simulate(code, token, message string) (*Reply, error) {
	inv := &invocation{
		vm:    goja.New(),
		opts:  s.opts,
		token: token,
	}

	timer := time.AfterFunc(s.opts.Timeout, func() {
		inv.vm.Interrupt(fmt.Sprintf("timed out after %s", s.opts.Timeout))
	})
	defer timer.Stop()

	if err := inv.execute(code); err != nil {
		return nil, err
	}
	if inv.bot == nil {
		return nil, newSandboxError(ErrNoBotInstance, "no bot instance found: could not find a 'new Telegraf()' instance in your code")
	}

	handler, ok := inv.bot.lookup(message)
	if !ok {
		return nil, nil
	}
	if err := inv.dispatch(handler, message); err != nil {
		return nil, err
	}
	return inv.reply, nil
}

// invocation is the per-call state: one runtime, one handler table, one
// captured reply.
type invocation struct {
	vm          *goja.Runtime
	opts        SandboxOptions
	token       string
	bot         *mockBot
	constructed int
	// denied is the first failure raised by a shim; it outranks the generic
	// exception that surfaces from the runtime.
	denied *SandboxError
	reply  *Reply
}

type mockBot struct {
	handlers map[string]goja.Callable
}

func (b *mockBot) lookup(message string) (goja.Callable, bool) {
	if key := commandKey(message); key != "" {
		h, ok := b.handlers[key]
		return h, ok
	}
	if strings.HasPrefix(message, "/") {
		return nil, false
	}
	if h, ok := b.handlers[messageHandler]; ok {
		return h, true
	}
	h, ok := b.handlers[textHandler]
	return h, ok
}

// execute compiles code as the body of function(require, process) and calls it.
// Those two parameters are the only capabilities handed to the code.
func (inv *invocation) execute(code string) error {
	vm := inv.vm
	ctor := vm.Get("Function")
	compiled, err := vm.New(ctor, vm.ToValue("require"), vm.ToValue("process"), vm.ToValue(code))
	if err != nil {
		return executionError(describe(err), err, nil)
	}
	fn, ok := goja.AssertFunction(compiled)
	if !ok {
		return executionError("code did not compile to a function", nil, nil)
	}
	if _, err := fn(goja.Undefined(), vm.ToValue(inv.requireShim), inv.processShim()); err != nil {
		return executionError(describe(err), err, inv.denied)
	}
	if inv.denied != nil {
		return inv.denied
	}
	return nil
}

func (inv *invocation) dispatch(handler goja.Callable, message string) error {
	ret, err := handler(goja.Undefined(), inv.context(message), inv.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return goja.Undefined()
	}))
	if err != nil {
		return executionError(describe(err), err, inv.denied)
	}
	if ret == nil {
		return nil
	}
	if p, ok := ret.Export().(*goja.Promise); ok && p.State() == goja.PromiseStateRejected {
		reason := "promise rejected"
		if r := p.Result(); r != nil {
			reason = r.String()
		}
		return executionError(reason, nil, nil)
	}
	return nil
}

func (inv *invocation) requireShim(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	if name == telegrafModule {
		return inv.telegrafModule()
	}
	inv.deny(newSandboxError(ErrModuleNotAvailable, "module not available: '%s' cannot be required in this sandbox", name))
	return nil
}

// deny records err and throws it into the running script. User code may
// catch the exception, but the recorded failure still decides the result.
func (inv *invocation) deny(err *SandboxError) {
	if inv.denied == nil {
		inv.denied = err
	}
	panic(inv.vm.NewGoError(err))
}

func (inv *invocation) processShim() goja.Value {
	vm := inv.vm
	env := vm.NewObject()
	_ = env.Set(tokenEnvVar, inv.token)

	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	process := vm.NewObject()
	_ = process.Set("env", env)
	_ = process.Set("once", noop)
	_ = process.Set("on", noop)
	return process
}

func (inv *invocation) telegrafModule() goja.Value {
	vm := inv.vm
	module := vm.NewObject()
	_ = module.Set("Telegraf", inv.telegrafConstructor)
	_ = module.Set("Markup", inv.markupObject())
	return module
}

func (inv *invocation) telegrafConstructor(call goja.ConstructorCall) *goja.Object {
	vm := inv.vm
	inv.constructed++
	if inv.constructed > 1 && inv.opts.InstancePolicy == InstanceReject {
		inv.deny(newSandboxError(ErrMultipleInstances, "multiple bot instances: Telegraf was constructed %d times", inv.constructed))
	}

	bot := &mockBot{handlers: make(map[string]goja.Callable)}
	self := call.This

	register := func(keys []string, fnArg goja.Value) goja.Value {
		fn, ok := goja.AssertFunction(fnArg)
		if !ok {
			panic(vm.NewTypeError("handler must be a function"))
		}
		for _, key := range keys {
			bot.handlers[key] = fn
		}
		return self
	}
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }

	_ = self.Set("start", func(c goja.FunctionCall) goja.Value {
		return register([]string{startCommandKey}, c.Argument(0))
	})
	_ = self.Set("help", func(c goja.FunctionCall) goja.Value {
		return register([]string{helpCommandKey}, c.Argument(0))
	})
	_ = self.Set("command", func(c goja.FunctionCall) goja.Value {
		return register(prefixed("/", exportStrings(c.Argument(0))), c.Argument(1))
	})
	_ = self.Set("on", func(c goja.FunctionCall) goja.Value {
		return register(prefixed("on_", exportStrings(c.Argument(0))), c.Argument(1))
	})
	_ = self.Set("launch", noop)
	_ = self.Set("stop", noop)
	_ = self.Set("use", func(goja.FunctionCall) goja.Value { return self })
	_ = self.Set("catch", func(goja.FunctionCall) goja.Value { return self })

	if inv.bot == nil || inv.opts.InstancePolicy == InstanceLast {
		inv.bot = bot
	}
	return nil
}

func (inv *invocation) markupObject() *goja.Object {
	vm := inv.vm
	markup := vm.NewObject()
	_ = markup.Set("keyboard", func(c goja.FunctionCall) goja.Value {
		return inv.newMarkup("keyboard", c.Argument(0))
	})
	_ = markup.Set("inlineKeyboard", func(c goja.FunctionCall) goja.Value {
		return inv.newMarkup("inline_keyboard", c.Argument(0))
	})

	button := vm.NewObject()
	_ = button.Set("text", func(c goja.FunctionCall) goja.Value {
		b := vm.NewObject()
		_ = b.Set("text", c.Argument(0).String())
		return b
	})
	_ = button.Set("callback", func(c goja.FunctionCall) goja.Value {
		b := vm.NewObject()
		_ = b.Set("text", c.Argument(0).String())
		_ = b.Set("callback_data", c.Argument(1).String())
		return b
	})
	_ = markup.Set("button", button)
	return markup
}

// newMarkup mirrors Telegraf's Markup: the rows live under reply_markup and
// resize/oneTime chain on the same object.
func (inv *invocation) newMarkup(field string, rows goja.Value) goja.Value {
	vm := inv.vm
	inner := vm.NewObject()
	_ = inner.Set(field, rows)
	if field == "keyboard" {
		_ = inner.Set("resize_keyboard", true)
	}

	out := vm.NewObject()
	_ = out.Set("reply_markup", inner)
	_ = out.Set("resize", func(goja.FunctionCall) goja.Value {
		_ = inner.Set("resize_keyboard", true)
		return out
	})
	_ = out.Set("oneTime", func(goja.FunctionCall) goja.Value {
		_ = inner.Set("one_time_keyboard", true)
		return out
	})
	return out
}

// context builds the ctx object handed to a handler. Only the first reply
// call is captured.
func (inv *invocation) context(message string) goja.Value {
	vm := inv.vm

	from := vm.NewObject()
	_ = from.Set("id", 1)
	_ = from.Set("is_bot", false)
	_ = from.Set("first_name", "Demo")
	_ = from.Set("username", "demo_user")

	chat := vm.NewObject()
	_ = chat.Set("id", 1)
	_ = chat.Set("type", "private")

	msg := vm.NewObject()
	_ = msg.Set("text", message)
	_ = msg.Set("from", from)
	_ = msg.Set("chat", chat)

	ctx := vm.NewObject()
	_ = ctx.Set("message", msg)
	_ = ctx.Set("from", from)
	_ = ctx.Set("chat", chat)
	_ = ctx.Set("reply", func(c goja.FunctionCall) goja.Value {
		if inv.reply != nil {
			return goja.Undefined()
		}
		text := ""
		if arg := c.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			text = arg.String()
		}
		inv.reply = &Reply{Text: text, Buttons: extractButtons(c.Argument(1))}
		return goja.Undefined()
	})
	return ctx
}

// extractButtons reads reply_markup rows from a reply's extra argument,
// preferring inline rows over reply keyboard rows.
func extractButtons(extra goja.Value) ButtonLayout {
	if extra == nil || goja.IsUndefined(extra) || goja.IsNull(extra) {
		return nil
	}
	m, ok := extra.Export().(map[string]interface{})
	if !ok {
		return nil
	}
	if inner, ok := m["reply_markup"].(map[string]interface{}); ok {
		m = inner
	}
	if rows, ok := m["inline_keyboard"]; ok {
		return NewButtonLayout(parseRows(rows))
	}
	if rows, ok := m["keyboard"]; ok {
		return NewButtonLayout(parseRows(rows))
	}
	return nil
}

// parseRows accepts either rows of buttons or a flat list, which becomes a
// single row.
func parseRows(raw interface{}) [][]Button {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	flat := true
	for _, item := range items {
		if _, isRow := item.([]interface{}); isRow {
			flat = false
			break
		}
	}
	if flat {
		return [][]Button{parseButtons(items)}
	}

	rows := make([][]Button, 0, len(items))
	for _, item := range items {
		if row, isRow := item.([]interface{}); isRow {
			rows = append(rows, parseButtons(row))
			continue
		}
		rows = append(rows, parseButtons([]interface{}{item}))
	}
	return rows
}

func parseButtons(items []interface{}) []Button {
	out := make([]Button, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, Button{Text: v})
		case map[string]interface{}:
			if hidden, _ := v["hide"].(bool); hidden {
				continue
			}
			text, ok := v["text"]
			if !ok {
				continue
			}
			b := Button{Text: fmt.Sprint(text)}
			if data, ok := v["callback_data"]; ok && data != nil {
				b.CallbackData = fmt.Sprint(data)
			}
			out = append(out, b)
		}
	}
	return out
}

func exportStrings(v goja.Value) []string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	switch x := v.Export().(type) {
	case string:
		return []string{x}
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{v.String()}
	}
}

func prefixed(prefix string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, prefix+n)
	}
	return out
}

// describe turns a goja failure into a short message without stack frames.
func describe(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if v := ex.Value(); v != nil {
			return v.String()
		}
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprint(interrupted.Value())
	}
	return err.Error()
}
