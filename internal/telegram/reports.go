package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"newsroom-ledger/internal/ledger"
)

func (s *Service) handleBalance(ctx context.Context, msg *tgbotapi.Message) {
	from, to, err := parsePeriod(strings.Fields(msg.CommandArguments()), s.ledger.Options().Location)
	if err != nil {
		s.handleError(msg.Chat.ID, err)
		return
	}

	sheet, err := s.ledger.Balance(ctx, from, to)
	if err != nil {
		s.handleError(msg.Chat.ID, err)
		return
	}
	s.reply(msg.Chat.ID, formatBalance(sheet))
}

func (s *Service) handleCampaigns(ctx context.Context, msg *tgbotapi.Message) {
	views, err := s.ledger.ListNotifications(ctx, false)
	if err != nil {
		s.handleError(msg.Chat.ID, err)
		return
	}
	s.reply(msg.Chat.ID, formatCampaigns(views))
}

func (s *Service) handleEmployee(ctx context.Context, msg *tgbotapi.Message) {
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		s.reply(msg.Chat.ID, "Использование: /employee <имя>\nПример: /employee Alex")
		return
	}

	sum, err := s.ledger.EmployeeSummary(ctx, name)
	if err != nil {
		s.handleError(msg.Chat.ID, err)
		return
	}
	s.reply(msg.Chat.ID, formatSummary(sum))
}

// handlePayout показывает долг и просит подтвердить выплату кнопкой
func (s *Service) handlePayout(ctx context.Context, msg *tgbotapi.Message) {
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		s.reply(msg.Chat.ID, "Использование: /payout <имя>\nПример: /payout Alex")
		return
	}

	sum, err := s.ledger.EmployeeSummary(ctx, name)
	if err != nil {
		s.handleError(msg.Chat.ID, err)
		return
	}
	if sum.UnpaidSends == 0 {
		s.reply(msg.Chat.ID, "ℹ️ "+name+": нечего выплачивать")
		return
	}

	token := s.addPending(name)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Выплатить", CallbackPayoutConfirm.WithID(token)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", CallbackPayoutCancel.WithID(token)),
		),
	)
	msgConfig := tgbotapi.NewMessage(msg.Chat.ID, formatSummary(sum)+"\n\nВыплатить всё неоплаченное?")
	msgConfig.ReplyMarkup = keyboard
	s.bot.Send(msgConfig)
}

func (s *Service) handleArchive(ctx context.Context, msg *tgbotapi.Message) {
	count, err := s.ledger.ArchiveExpired(ctx)
	if err != nil {
		s.handleError(msg.Chat.ID, err)
		return
	}
	s.reply(msg.Chat.ID, formatArchived(count))
}

func (s *Service) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	data := callback.Data

	switch {
	case strings.HasPrefix(data, CallbackPayoutConfirm.String()):
		s.confirmPayout(ctx, callback, strings.TrimPrefix(data, CallbackPayoutConfirm.String()))
	case strings.HasPrefix(data, CallbackPayoutCancel.String()):
		s.takePending(strings.TrimPrefix(data, CallbackPayoutCancel.String()))
		s.answerCallback(callback.ID, "Выплата отменена")
		s.editCallbackMessage(callback, "❌ Выплата отменена")
	default:
		s.answerCallback(callback.ID, "Неизвестное действие")
	}
}

func (s *Service) confirmPayout(ctx context.Context, callback *tgbotapi.CallbackQuery, token string) {
	sess, linked := s.sessionFor(callback.From.ID)
	if !linked || !sess.Role.IsPrivileged() {
		s.answerCallback(callback.ID, "У вас нет прав для выплат")
		return
	}

	employee, ok := s.takePending(token)
	if !ok {
		s.answerCallback(callback.ID, "Запрос устарел, повторите /payout")
		return
	}

	report, err := s.ledger.PayAllForEmployee(ledger.WithSession(ctx, sess), employee)
	if err != nil {
		s.answerCallback(callback.ID, "Ошибка выплаты")
		s.editCallbackMessage(callback, "❌ "+userMessage(err))
		return
	}

	s.answerCallback(callback.ID, "Готово")
	s.editCallbackMessage(callback, formatPayout(report))
}

func (s *Service) addPending(employee string) string {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prunePending()
	s.pending[token] = pendingPayout{employee: employee, created: s.now()}
	return token
}

// takePending забирает запрос подтверждения: каждый токен срабатывает один раз
func (s *Service) takePending(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prunePending()
	p, ok := s.pending[token]
	delete(s.pending, token)
	return p.employee, ok
}

// prunePending вызывается под s.mu
func (s *Service) prunePending() {
	deadline := s.now().Add(-pendingTTL)
	for token, p := range s.pending {
		if p.created.Before(deadline) {
			delete(s.pending, token)
		}
	}
}

func (s *Service) editCallbackMessage(callback *tgbotapi.CallbackQuery, text string) {
	if callback.Message == nil {
		return
	}
	editMsg := tgbotapi.NewEditMessageText(callback.Message.Chat.ID, callback.Message.MessageID, text)
	s.bot.Send(editMsg)
}

// parsePeriod: без аргументов - за всё время, одна дата - с неё, две - включительный период
func parsePeriod(args []string, loc *time.Location) (from, to *time.Time, err error) {
	if len(args) > 2 {
		return nil, nil, ledger.ErrValidationf("too many arguments: %d", len(args))
	}
	parse := func(v string) (*time.Time, error) {
		t, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			return nil, ledger.ErrValidationf("bad date %q, want YYYY-MM-DD", v)
		}
		return &t, nil
	}

	if len(args) >= 1 {
		if from, err = parse(args[0]); err != nil {
			return nil, nil, err
		}
	}
	if len(args) == 2 {
		if to, err = parse(args[1]); err != nil {
			return nil, nil, err
		}
		next := to.AddDate(0, 0, 1)
		to = &next
	}
	return from, to, nil
}
