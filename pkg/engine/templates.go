package engine

import (
	"fmt"
	"strings"
)

// PythonTemplate is the starter bot for the python engine.
const PythonTemplate = `import os
from telegram import Update, ReplyKeyboardMarkup, KeyboardButton
from telegram.ext import Updater, CommandHandler, CallbackContext

def start(update: Update, context: CallbackContext) -> None:
    """Greets the user and offers a reply keyboard."""
    keyboard = [
        [KeyboardButton("Option 1"), KeyboardButton("Option 2")],
        [KeyboardButton("Help")],
    ]
    reply_markup = ReplyKeyboardMarkup(keyboard, resize_keyboard=True)
    update.message.reply_text('Hello! I am your new bot. Choose an option:', reply_markup=reply_markup)

def main() -> None:
    # The token is read from the environment.
    updater = Updater(token=os.environ.get("TELEGRAM_TOKEN"))
    dispatcher = updater.dispatcher
    dispatcher.add_handler(CommandHandler("start", start))
    updater.start_polling()
    updater.idle()

if __name__ == '__main__':
    main()
`

// JavaScriptTemplate is the starter bot for the javascript engine.
const JavaScriptTemplate = `const { Telegraf, Markup } = require('telegraf');

// The token is read from the environment.
const bot = new Telegraf(process.env.TELEGRAM_TOKEN);

bot.start((ctx) => {
  return ctx.reply(
    'Welcome! I am your new bot. Choose an option:',
    Markup.inlineKeyboard([
      Markup.button.callback('Option 1', 'option_1'),
      Markup.button.callback('Option 2', 'option_2'),
    ])
  );
});

bot.command('help', (ctx) => ctx.reply('This is a help message.'));

bot.launch();

process.once('SIGINT', () => bot.stop('SIGINT'));
process.once('SIGTERM', () => bot.stop('SIGTERM'));
`

// Template returns the starter code for a language.
func Template(lang string) (string, error) {
	normalized, err := NormalizeLanguage(lang)
	if err != nil {
		return "", err
	}
	if normalized == LanguageJavaScript {
		return JavaScriptTemplate, nil
	}
	return PythonTemplate, nil
}

// FileExtension returns the source file extension for a language tag.
func FileExtension(lang string) string {
	if normalized, err := NormalizeLanguage(lang); err == nil && normalized == LanguageJavaScript {
		return "js"
	}
	return "py"
}

// DownloadName is the file name offered when a bot's code is downloaded:
// the lowercased name with every character outside [a-z0-9] replaced by "_".
func DownloadName(botName, lang string) string {
	base := "new_bot"
	if botName != "" {
		base = strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				return r
			}
			return '_'
		}, strings.ToLower(botName))
	}
	return fmt.Sprintf("%s.%s", base, FileExtension(lang))
}
