package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"newsroom-ledger/internal/config"
	"newsroom-ledger/internal/ledger"
)

type Scheduler struct {
	cron     *cron.Cron
	ledger   *ledger.Service
	notifier ledger.Notifier
	cfg      *config.Config
}

// NewScheduler: notifier может быть nil, тогда отчёты только пишутся в лог
func NewScheduler(svc *ledger.Service, notifier ledger.Notifier, cfg *config.Config) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		ledger:   svc,
		notifier: notifier,
		cfg:      cfg,
	}
}

func (s *Scheduler) Start() error {
	// Cron-задача: архивирование завершившихся рассылок (по умолчанию в 00:10)
	_, err := s.cron.AddFunc(s.cfg.ArchiveCron, func() { s.archiveExpired(context.Background()) })
	if err != nil {
		return fmt.Errorf("failed to add archive job: %w", err)
	}

	// Cron-задача: ежедневный отчёт о балансе
	if s.cfg.ReportCron != "" {
		_, err = s.cron.AddFunc(s.cfg.ReportCron, func() { s.sendDailyReport(context.Background()) })
		if err != nil {
			return fmt.Errorf("failed to add report job: %w", err)
		}
	}

	// Запускаем планировщик
	s.cron.Start()
	slog.Info("Cron scheduler started", "archive", s.cfg.ArchiveCron, "report", s.cfg.ReportCron)

	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("Cron scheduler stopped")
}

// archiveExpired архивирует рассылки, у которых прошла дата окончания
func (s *Scheduler) archiveExpired(ctx context.Context) int {
	slog.Info("Running expired campaigns archive...")

	count, err := s.ledger.ArchiveExpired(ledger.WithSession(ctx, ledger.System))
	if err != nil {
		slog.Error("Error archiving expired campaigns", "error", err)
		return 0
	}

	if count == 0 {
		slog.Info("No expired campaigns found")
		return 0
	}

	slog.Info("Expired campaigns archived", "count", count)
	s.sendAdminReport(ctx, fmt.Sprintf("🕒 Автоматическая архивация:\n🗄 Рассылок в архиве: %d", count))
	return count
}

// sendDailyReport отправляет баланс за вчерашний день и за всё время
func (s *Scheduler) sendDailyReport(ctx context.Context) {
	ctx = ledger.WithSession(ctx, ledger.System)
	opts := s.ledger.Options()

	now := opts.Now().In(opts.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, opts.Location)
	yesterday := today.AddDate(0, 0, -1)

	day, err := s.ledger.Balance(ctx, &yesterday, &today)
	if err != nil {
		slog.Error("Error building daily report", "error", err)
		return
	}
	total, err := s.ledger.Balance(ctx, nil, nil)
	if err != nil {
		slog.Error("Error building daily report", "error", err)
		return
	}

	s.sendAdminReport(ctx, dailyReport(yesterday, day, total))
}

func dailyReport(day time.Time, sheet, total ledger.BalanceSheet) string {
	return fmt.Sprintf("📊 Итоги за %s\n➕ Доходы: %s ₽\n💳 Оплаты клиентов: %s ₽\n➖ Расходы: %s ₽\n\n💰 Баланс за всё время: %s ₽",
		day.Format("02.01.2006"),
		sheet.Income.StringFixed(2),
		sheet.ClientPayments.StringFixed(2),
		sheet.Expense.StringFixed(2),
		total.Balance.StringFixed(2),
	)
}

// sendAdminReport отправляет отчет в чат администраторов
func (s *Scheduler) sendAdminReport(ctx context.Context, message string) {
	if s.notifier == nil {
		slog.Info("Admin report", "message", message)
		return
	}
	if err := s.notifier.Notify(ctx, message); err != nil {
		slog.Warn("Failed to send admin report", "error", err)
	}
}
