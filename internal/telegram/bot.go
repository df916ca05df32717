package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"newsroom-ledger/internal/config"
	"newsroom-ledger/internal/db"
	"newsroom-ledger/internal/ledger"
)

// sender - часть BotAPI, которой пользуется сервис
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Service - бот для руководства редакции: отчёты, выплаты и уведомления о сбоях
type Service struct {
	bot    sender
	api    *tgbotapi.BotAPI
	repo   *db.Repository
	ledger *ledger.Service
	cfg    *config.Config

	now     func() time.Time
	mu      sync.Mutex
	pending map[string]pendingPayout // токен подтверждения -> запрос
}

// pendingTTL - сколько живёт неподтверждённый /payout
const pendingTTL = 15 * time.Minute

type pendingPayout struct {
	employee string
	created  time.Time
}

func New(cfg *config.Config, repo *db.Repository, svc *ledger.Service) (*Service, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	// Удаляем webhook чтобы использовать long-polling
	_, err = bot.Request(tgbotapi.DeleteWebhookConfig{})
	if err != nil {
		slog.Warn("Не удалось удалить webhook", "error", err)
	} else {
		slog.Info("Webhook удален, переключились на long-polling")
	}

	slog.Info("Авторизован как телеграм бот", "username", bot.Self.UserName)

	service := newService(bot, cfg, repo, svc)
	service.api = bot

	// Устанавливаем меню команд
	if err := service.setCommands(); err != nil {
		slog.Warn("Не удалось установить меню команд", "error", err)
	}

	return service, nil
}

func newService(bot sender, cfg *config.Config, repo *db.Repository, svc *ledger.Service) *Service {
	return &Service{
		bot:     bot,
		repo:    repo,
		ledger:  svc,
		cfg:     cfg,
		now:     time.Now,
		pending: make(map[string]pendingPayout),
	}
}

func (s *Service) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := s.api.GetUpdatesChan(u)
	defer s.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			s.handleUpdate(ctx, upd)
		}
	}
}

func (s *Service) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil && upd.Message.IsCommand() {
		s.handleCommand(ctx, upd.Message)
		return
	}

	if upd.CallbackQuery != nil {
		s.handleCallbackQuery(ctx, upd.CallbackQuery)
		return
	}
}

func (s *Service) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := Command(msg.Command())

	// Проверяем валидность команды
	if !cmd.IsValid() {
		s.handleUnknown(msg)
		return
	}

	sess, linked := s.sessionFor(msg.From.ID)
	if cmd.NeedsSession() && !linked {
		s.reply(msg.Chat.ID, "Ваш Telegram не привязан к сотруднику редакции. Используйте /whoami")
		return
	}
	if cmd.IsPrivileged() && !sess.Role.IsPrivileged() {
		s.reply(msg.Chat.ID, "У вас нет прав для этой команды")
		return
	}
	ctx = ledger.WithSession(ctx, sess)

	switch cmd {
	case CmdStart:
		s.handleStart(msg, sess, linked)
	case CmdHelp:
		s.handleHelp(msg, sess, linked)
	case CmdWhoAmI:
		s.handleWhoAmI(msg, sess, linked)
	case CmdBalance:
		s.handleBalance(ctx, msg)
	case CmdCampaigns:
		s.handleCampaigns(ctx, msg)
	case CmdEmployee:
		s.handleEmployee(ctx, msg)
	case CmdPayout:
		s.handlePayout(ctx, msg)
	case CmdArchive:
		s.handleArchive(ctx, msg)
	}
}

// sessionFor сопоставляет аккаунт Telegram с сотрудником; SUPER_ADMIN_ID всегда суперадмин
func (s *Service) sessionFor(tgID int64) (ledger.Session, bool) {
	var user db.User
	err := s.repo.DB().Where("telegram_id = ?", tgID).First(&user).Error
	if err == nil {
		role := ledger.Role(user.Role)
		if s.isSuperAdmin(tgID) {
			role = ledger.RoleSuper
		}
		return ledger.Session{UserID: user.ID, DisplayName: user.Name(), Role: role}, role.IsValid()
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Error("Failed to look up telegram user", "tg_id", tgID, "error", err)
	}

	if s.isSuperAdmin(tgID) {
		return ledger.Session{DisplayName: ledger.RoleSuper.DisplayName(), Role: ledger.RoleSuper}, true
	}
	return ledger.Session{}, false
}

func (s *Service) isSuperAdmin(tgID int64) bool {
	superAdminID, err := strconv.ParseInt(s.cfg.SuperAdminID, 10, 64)
	return err == nil && superAdminID == tgID
}

func (s *Service) handleStart(msg *tgbotapi.Message, sess ledger.Session, linked bool) {
	if !linked {
		s.reply(msg.Chat.ID, fmt.Sprintf("Бот учёта редакции.\n\nВаш Telegram ID: %d\nПередайте его администратору, чтобы получить доступ.", msg.From.ID))
		return
	}
	s.reply(msg.Chat.ID, fmt.Sprintf("Здравствуйте, %s!\n\nСправка: /help", sess.DisplayName))
}

func (s *Service) handleHelp(msg *tgbotapi.Message, sess ledger.Session, linked bool) {
	text := `📒 Учёт редакции

/whoami - кто я для бота`

	if linked {
		text += `
/balance [с по] - баланс, даты в формате 2026-01-31
/campaigns - активные рассылки
/employee <имя> - долг перед сотрудником за рассылки`
	}

	if sess.Role.IsPrivileged() {
		text += `

⚡ Команды администратора:
/payout <имя> - выплатить сотруднику все неоплаченные рассылки
/archive - архивировать завершившиеся рассылки`
	}

	s.reply(msg.Chat.ID, text)
}

func (s *Service) handleWhoAmI(msg *tgbotapi.Message, sess ledger.Session, linked bool) {
	if !linked {
		s.reply(msg.Chat.ID, fmt.Sprintf("Telegram ID: %d\nСотрудник не найден", msg.From.ID))
		return
	}
	s.reply(msg.Chat.ID, fmt.Sprintf("Telegram ID: %d\n👤 %s\nРоль: %s", msg.From.ID, sess.DisplayName, sess.Role.DisplayName()))
}

func (s *Service) handleUnknown(msg *tgbotapi.Message) {
	s.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
}

// Notify отправляет отчёт в чат администраторов
func (s *Service) Notify(_ context.Context, text string) error {
	chatID, ok := s.cfg.AdminChat()
	if !ok {
		return nil
	}
	_, err := s.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (s *Service) reply(chatID int64, text string) error {
	_, err := s.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		slog.Warn("Failed to send telegram message", "chat_id", chatID, "error", err)
	}
	return err
}

func (s *Service) answerCallback(callbackID, text string) {
	callback := tgbotapi.NewCallback(callbackID, text)
	s.bot.Request(callback)
}

func (s *Service) setCommands() error {
	commands := []tgbotapi.BotCommand{
		{Command: CmdStart.String(), Description: "🚀 Начать работу"},
		{Command: CmdHelp.String(), Description: "❓ Справка"},
		{Command: CmdBalance.String(), Description: "💰 Баланс"},
		{Command: CmdCampaigns.String(), Description: "📣 Активные рассылки"},
		{Command: CmdEmployee.String(), Description: "👤 Долг перед сотрудником"},
	}

	config := tgbotapi.NewSetMyCommands(commands...)
	_, err := s.bot.Request(config)
	return err
}
