package logger

const (
	FieldBotID    = "bot_id"
	FieldBotName  = "bot_name"
	FieldChannel  = "channel"
	FieldChatID   = "chat_id"
	FieldSenderID = "sender_id"
	FieldLanguage = "language"
	FieldStatus   = "status"
	FieldPreview  = "preview"
	FieldError    = "error"

	FieldGeneration    = "generation"
	FieldMessageLength = "message_length"
	FieldReplyLength   = "reply_length"
)
