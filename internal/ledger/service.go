package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"newsroom-ledger/internal/db"
	"newsroom-ledger/internal/metrics"
)

// Notifier доставляет служебные сообщения администраторам (отчёты о выплатах, сбои)
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string) error { return nil }

type Options struct {
	// DefaultEmployeeRate - оплата за одну отправку, если у рассылки своя ставка не задана.
	// Нулевое значение заменяется ставкой из DefaultOptions, конфиг ноль не пропускает.
	DefaultEmployeeRate decimal.Decimal
	// CeilingRatio - доля стоимости заказа, выше которой выплаты сотрудникам запрещены
	CeilingRatio decimal.Decimal
	// ReverseSalaryOnDelete: удаление выплаты сотруднику пишет INCOME "Отмена зарплаты"
	ReverseSalaryOnDelete bool
	Location              *time.Location
	Now                   func() time.Time
}

func DefaultOptions() Options {
	return Options{
		DefaultEmployeeRate: decimal.NewFromInt(52),
		CeilingRatio:        decimal.RequireFromString("0.85"),
		Location:            time.Local,
		Now:                 time.Now,
	}
}

// Service - единственная точка изменения денежных записей
type Service struct {
	repo     *db.Repository
	notifier Notifier
	opts     Options
}

func NewService(repo *db.Repository, opts Options) *Service {
	def := DefaultOptions()
	if opts.DefaultEmployeeRate.IsZero() {
		opts.DefaultEmployeeRate = def.DefaultEmployeeRate
	}
	if opts.CeilingRatio.IsZero() {
		opts.CeilingRatio = def.CeilingRatio
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	return &Service{repo: repo, notifier: nopNotifier{}, opts: opts}
}

// SetNotifier подключает канал отчётов после создания бота
func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

func (s *Service) Options() Options {
	return s.opts
}

func (s *Service) now() time.Time {
	return s.opts.Now().In(s.opts.Location)
}

func (s *Service) ceiling(totalPrice decimal.Decimal) decimal.Decimal {
	return totalPrice.Mul(s.opts.CeilingRatio).Round(2)
}

// finish - граница операции: метрика, лог и замена ошибок хранилища на STORAGE_FAILURE
func (s *Service) finish(ctx context.Context, op string, err error) error {
	metrics.ObserveOperation(op, CodeOf(err))
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		slog.Warn("Operation rejected", "op", op, "code", e.Code, "details", e.Details)
		return e
	}

	slog.Error("Storage failure", "op", op, "error", err)
	s.report(ctx, fmt.Sprintf("❌ Сбой операции %s: изменения отменены", op))
	return ErrStoragef("%s failed", op)
}

func (s *Service) report(ctx context.Context, text string) {
	if err := s.notifier.Notify(ctx, text); err != nil {
		slog.Warn("Failed to deliver admin report", "error", err)
	}
}

// forUpdate блокирует прочитанные строки до конца транзакции (в sqlite писатели и так сериализованы)
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFoundf(format, args...)
	}
	return err
}

type journalKey struct{}

// journal - проводки, записанные внутри одной транзакции БД
type journal struct {
	written []*db.Transaction
}

// withTransaction открывает транзакцию операции. Проводки попадают в метрики только после commit.
func (s *Service) withTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	j := &journal{}
	if err := s.repo.WithTransaction(context.WithValue(ctx, journalKey{}, j), fn); err != nil {
		return err
	}
	for _, t := range j.written {
		metrics.Transactions.WithLabelValues(t.Type, t.Category).Inc()
	}
	return nil
}

func writeTransaction(tx *gorm.DB, t *db.Transaction) error {
	if err := tx.Create(t).Error; err != nil {
		return fmt.Errorf("create %s transaction %q: %w", t.Type, t.Category, err)
	}
	if j, ok := tx.Statement.Context.Value(journalKey{}).(*journal); ok {
		j.written = append(j.written, t)
	}
	return nil
}

func uintPtr(v uint) *uint {
	return &v
}
