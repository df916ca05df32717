package telegram

import (
	"errors"
	"log/slog"

	"newsroom-ledger/internal/ledger"
)

// userMessage - текст ошибки для пользователя бота
func userMessage(err error) string {
	var e *ledger.Error
	if errors.As(err, &e) && e.UserMessage != "" {
		return e.UserMessage
	}
	return "Произошла внутренняя ошибка. Попробуйте позже."
}

// handleError сообщает пользователю об ошибке операции
func (s *Service) handleError(chatID int64, err error) {
	slog.Warn("Bot command failed", "chat_id", chatID, "code", ledger.CodeOf(err), "error", err)
	s.reply(chatID, "❌ "+userMessage(err))
}
