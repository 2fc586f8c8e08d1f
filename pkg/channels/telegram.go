package channels

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoutil"

	"botsim/pkg/bus"
	"botsim/pkg/config"
	"botsim/pkg/engine"
	"botsim/pkg/logger"
)

const (
	telegramAPICallTimeout         = 15 * time.Second
	telegramMaxConcurrentHandlers  = 32
	telegramStopWaitHandlersPeriod = 5 * time.Second
	telegramRestartDelay           = 5 * time.Second
)

// TelegramChannel long-polls Telegram with a simulated bot's own token and
// relays its chats through the bus.
type TelegramChannel struct {
	*BaseChannel
	bot       *telego.Bot
	config    config.TelegramConfig
	username  string
	loop      runGroup
	handleSem chan struct{}
	handleWG  sync.WaitGroup
}

func NewTelegramChannel(botID, token string, cfg config.TelegramConfig, bus *bus.MessageBus) (*TelegramChannel, error) {
	bot, err := telego.NewBot(token, telego.WithDefaultLogger(false, false))
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", botID, bus, cfg.AllowFrom),
		bot:         bot,
		config:      cfg,
		handleSem:   make(chan struct{}, telegramMaxConcurrentHandlers),
	}, nil
}

// Probe checks a token against the Bot API and returns the bot's account.
func Probe(ctx context.Context, token string) (*telego.User, error) {
	bot, err := telego.NewBot(token, telego.WithDefaultLogger(false, false))
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, telegramAPICallTimeout)
	defer cancel()
	me, err := bot.GetMe(callCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}
	return me, nil
}

// BotLink is the t.me address of a bot account.
func BotLink(username string) string {
	return "https://t.me/" + username
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	if c.IsRunning() {
		return nil
	}
	logger.InfoCF("telegram", "Starting Telegram bridge (polling mode)", map[string]interface{}{
		logger.FieldBotID: c.BotID(),
	})

	runCtx := c.loop.begin(ctx)

	meCtx, cancelMe := context.WithTimeout(runCtx, telegramAPICallTimeout)
	me, err := c.bot.GetMe(meCtx)
	cancelMe()
	if err != nil {
		c.loop.end(0)
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	c.username = me.Username

	updates, err := c.bot.UpdatesViaLongPolling(runCtx, c.pollParams())
	if err != nil {
		c.loop.end(0)
		return fmt.Errorf("failed to start updates polling: %w", err)
	}
	c.setRunning(true)

	logger.InfoCF("telegram", "Telegram bridge connected", map[string]interface{}{
		logger.FieldBotID: c.BotID(),
		"username":        me.Username,
	})

	c.loop.spawn("telegram", "Update loop", map[string]interface{}{logger.FieldBotID: c.BotID()}, func() error {
		return c.updateLoop(runCtx, updates)
	}, func(error) { c.setRunning(false) })

	return nil
}

func (c *TelegramChannel) pollParams() *telego.GetUpdatesParams {
	timeout := c.config.PollTimeoutSec
	if timeout <= 0 {
		timeout = 30
	}
	return &telego.GetUpdatesParams{
		Timeout:        timeout,
		AllowedUpdates: []string{"message", "callback_query"},
	}
}

func (c *TelegramChannel) updateLoop(runCtx context.Context, updates <-chan telego.Update) error {
	for {
		select {
		case <-runCtx.Done():
			return runCtx.Err()
		case update, ok := <-updates:
			if !ok {
				logger.WarnCF("telegram", "Updates channel closed unexpectedly, attempting to restart polling...", map[string]interface{}{
					logger.FieldBotID: c.BotID(),
				})
				c.setRunning(false)

				select {
				case <-runCtx.Done():
					return runCtx.Err()
				case <-time.After(telegramRestartDelay):
				}

				newUpdates, err := c.bot.UpdatesViaLongPolling(runCtx, c.pollParams())
				if err != nil {
					logger.ErrorCF("telegram", "Failed to restart updates polling", map[string]interface{}{
						logger.FieldBotID: c.BotID(),
						logger.FieldError: err.Error(),
					})
					continue
				}
				updates = newUpdates
				c.setRunning(true)
				logger.InfoC("telegram", "Updates polling restarted successfully")
				continue
			}
			c.dispatchUpdate(runCtx, update)
		}
	}
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	if !c.IsRunning() {
		c.loop.end(0)
		return nil
	}
	logger.InfoCF("telegram", "Stopping Telegram bridge", map[string]interface{}{
		logger.FieldBotID: c.BotID(),
	})
	c.setRunning(false)
	if !c.loop.end(telegramStopWaitHandlersPeriod) {
		logger.WarnCF("telegram", "Update loop did not exit in time", map[string]interface{}{
			logger.FieldBotID: c.BotID(),
		})
	}

	done := make(chan struct{})
	go func() {
		c.handleWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(telegramStopWaitHandlersPeriod):
		logger.WarnC("telegram", "Timeout waiting for telegram update handlers to stop")
	}
	return nil
}

func (c *TelegramChannel) dispatchUpdate(runCtx context.Context, update telego.Update) {
	if update.Message == nil && update.CallbackQuery == nil {
		return
	}
	c.handleWG.Add(1)
	go func() {
		defer c.handleWG.Done()

		select {
		case <-runCtx.Done():
			return
		case c.handleSem <- struct{}{}:
		}
		defer func() { <-c.handleSem }()
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorCF("telegram", "Recovered panic in telegram update handler", map[string]interface{}{
					"panic": fmt.Sprintf("%v", r),
				})
			}
		}()

		if update.CallbackQuery != nil {
			c.handleCallback(runCtx, update.CallbackQuery)
			return
		}
		c.handleMessage(update.Message)
	}()
}

func (c *TelegramChannel) handleMessage(message *telego.Message) {
	in, ok := inboundFromMessage(message)
	if !ok {
		return
	}
	c.deliver(in)
}

// handleCallback acknowledges the press so the client stops its spinner,
// then treats the callback data as typed text.
func (c *TelegramChannel) handleCallback(runCtx context.Context, query *telego.CallbackQuery) {
	apiCtx, cancel := context.WithTimeout(runCtx, telegramAPICallTimeout)
	if err := c.bot.AnswerCallbackQuery(apiCtx, telegoutil.CallbackParams(query.ID)); err != nil {
		logger.DebugCF("telegram", "Callback answer failed", map[string]interface{}{
			logger.FieldBotID: c.BotID(),
			logger.FieldError: err.Error(),
		})
	}
	cancel()

	in, ok := inboundFromCallback(query)
	if !ok {
		return
	}
	c.deliver(in)
}

func (c *TelegramChannel) deliver(in inbound) {
	logger.InfoCF("telegram", "Telegram message received", map[string]interface{}{
		logger.FieldBotID:    c.BotID(),
		logger.FieldSenderID: in.senderID,
		logger.FieldPreview:  preview(in.content, 50),
	})

	if !c.IsAllowed(in.senderID, in.username) {
		logger.WarnCF("telegram", "Telegram message rejected by allowlist", map[string]interface{}{
			logger.FieldSenderID: in.senderID,
			logger.FieldChatID:   in.chatID,
		})
		return
	}
	c.HandleMessage(in.senderID, in.chatID, in.content, in.metadata)
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bridge not running")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	params := telegoutil.Message(telegoutil.ID(chatID), msg.Content)
	if markup := replyMarkup(msg.Buttons); markup != nil {
		params = params.WithReplyMarkup(markup)
	}

	sendCtx, cancel := context.WithTimeout(ctx, telegramAPICallTimeout)
	defer cancel()
	if _, err := c.bot.SendMessage(sendCtx, params); err != nil {
		logger.ErrorCF("telegram", "Telegram send failed", map[string]interface{}{
			logger.FieldBotID:  c.BotID(),
			logger.FieldChatID: msg.ChatID,
			logger.FieldError:  err.Error(),
		})
		return err
	}
	return nil
}

type inbound struct {
	senderID string
	username string
	chatID   string
	content  string
	metadata map[string]string
}

// inboundFromMessage keeps text messages from real users; everything else
// has no meaning to a simulated bot.
func inboundFromMessage(message *telego.Message) (inbound, bool) {
	if message == nil || message.From == nil || message.Text == "" {
		return inbound{}, false
	}
	user := message.From
	return inbound{
		senderID: strconv.FormatInt(user.ID, 10),
		username: user.Username,
		chatID:   strconv.FormatInt(message.Chat.ID, 10),
		content:  message.Text,
		metadata: map[string]string{
			"message_id": strconv.Itoa(message.MessageID),
			"username":   user.Username,
			"first_name": user.FirstName,
			"is_group":   strconv.FormatBool(message.Chat.Type != telego.ChatTypePrivate),
		},
	}, true
}

func inboundFromCallback(query *telego.CallbackQuery) (inbound, bool) {
	if query == nil || query.Data == "" || query.Message == nil {
		return inbound{}, false
	}
	chat := query.Message.GetChat()
	return inbound{
		senderID: strconv.FormatInt(query.From.ID, 10),
		username: query.From.Username,
		chatID:   strconv.FormatInt(chat.ID, 10),
		content:  query.Data,
		metadata: map[string]string{
			"callback_query_id": query.ID,
			"username":          query.From.Username,
			"first_name":        query.From.FirstName,
		},
	}, true
}

// replyMarkup renders a layout as an inline keyboard when any button carries
// callback data, and as a reply keyboard otherwise.
func replyMarkup(layout engine.ButtonLayout) telego.ReplyMarkup {
	if layout.Count() == 0 {
		return nil
	}

	inline := false
	for _, row := range layout {
		for _, b := range row {
			if b.IsCallback() {
				inline = true
			}
		}
	}

	if inline {
		rows := make([][]telego.InlineKeyboardButton, 0, len(layout))
		for _, row := range layout {
			buttons := make([]telego.InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, telegoutil.InlineKeyboardButton(b.Text).WithCallbackData(b.Payload()))
			}
			rows = append(rows, telegoutil.InlineKeyboardRow(buttons...))
		}
		return telegoutil.InlineKeyboard(rows...)
	}

	rows := make([][]telego.KeyboardButton, 0, len(layout))
	for _, row := range layout {
		buttons := make([]telego.KeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, telegoutil.KeyboardButton(b.Text))
		}
		rows = append(rows, telegoutil.KeyboardRow(buttons...))
	}
	return telegoutil.Keyboard(rows...).WithResizeKeyboard()
}
