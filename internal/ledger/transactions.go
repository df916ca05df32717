package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"newsroom-ledger/internal/db"
)

type TransactionInput struct {
	Type        string
	Amount      decimal.Decimal
	Category    string
	Date        *time.Time
	Description string
}

type TransactionFilter struct {
	From     *time.Time
	To       *time.Time
	Type     string
	Category string
	OrderID  *uint
	Limit    int
}

// BalanceSheet: Balance = Income + ClientPayments - Expense
type BalanceSheet struct {
	From           *time.Time      `json:"from,omitempty"`
	To             *time.Time      `json:"to,omitempty"`
	Income         decimal.Decimal `json:"income"`
	Expense        decimal.Decimal `json:"expense"`
	ClientPayments decimal.Decimal `json:"clientPayments"`
	Balance        decimal.Decimal `json:"balance"`
}

// linkedCategories - категории, которые пишет сам движок; связанные с заказом строки руками не удаляются
var linkedCategories = map[string]bool{
	db.CategorySalary:         true,
	db.CategoryInvoicePaid:    true,
	db.CategoryInvoiceCancel:  true,
	db.CategoryOrderDeleted:   true,
	db.CategorySalaryReversed: true,
}

func IsReservedCategory(category string) bool {
	return linkedCategories[category]
}

func (s *Service) CreateTransaction(ctx context.Context, in TransactionInput) (t db.Transaction, err error) {
	defer func() { err = s.finish(ctx, "create_transaction", err) }()

	sess, err := requirePrivileged(ctx, "create transaction")
	if err != nil {
		return t, err
	}

	in.Type = strings.ToUpper(strings.TrimSpace(in.Type))
	in.Category = strings.TrimSpace(in.Category)
	if in.Type != db.TxIncome && in.Type != db.TxExpense {
		return t, ErrValidationf("transaction type must be INCOME or EXPENSE, got %q", in.Type)
	}
	if !in.Amount.IsPositive() {
		return t, ErrValidationf("transaction amount must be positive, got %s", in.Amount)
	}
	if in.Category == "" {
		return t, ErrValidationf("transaction category is required")
	}

	t = db.Transaction{
		Type:        in.Type,
		Amount:      in.Amount.Round(2),
		Category:    in.Category,
		Date:        s.now(),
		Description: in.Description,
		CreatedBy:   sess.DisplayName,
		CreatedByID: sess.idPtr(),
	}
	if in.Date != nil {
		t.Date = *in.Date
	}

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		return writeTransaction(tx, &t)
	})
	if err != nil {
		return db.Transaction{}, err
	}

	slog.Info("Manual transaction created", "transaction_id", t.ID, "type", t.Type, "category", t.Category, "amount", t.Amount)
	return t, nil
}

func (s *Service) DeleteTransaction(ctx context.Context, id uint) (err error) {
	defer func() { err = s.finish(ctx, "delete_transaction", err) }()

	if _, err := requirePrivileged(ctx, "delete transaction"); err != nil {
		return err
	}

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		var t db.Transaction
		if err := tx.First(&t, id).Error; err != nil {
			return notFound(err, "transaction %d", id)
		}
		linked := t.OrderID != nil || t.EmployeePaymentID != nil
		if linked && IsReservedCategory(t.Category) {
			return ErrValidationf("transaction %d (%s) is maintained by the ledger and cannot be deleted", id, t.Category)
		}
		return tx.Delete(&t).Error
	})
	if err != nil {
		return err
	}

	slog.Info("Manual transaction deleted", "transaction_id", id)
	return nil
}

func (s *Service) ListTransactions(ctx context.Context, f TransactionFilter) (list []db.Transaction, err error) {
	defer func() { err = s.finish(ctx, "list_transactions", err) }()

	if _, err := requireSession(ctx); err != nil {
		return nil, err
	}
	return s.listTransactions(ctx, f)
}

func (s *Service) listTransactions(ctx context.Context, f TransactionFilter) ([]db.Transaction, error) {
	q := s.repo.DB().WithContext(ctx).Order("date DESC, id DESC")
	if f.Type != "" {
		q = q.Where("type = ?", strings.ToUpper(f.Type))
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.OrderID != nil {
		q = q.Where("order_id = ?", *f.OrderID)
	}

	var all []db.Transaction
	if err := q.Find(&all).Error; err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	// sqlite хранит время строкой со смещением, поэтому период фильтруем по time.Time
	list := all[:0]
	for _, t := range all {
		if inPeriod(t.Date, f.From, f.To) {
			list = append(list, t)
		}
		if f.Limit > 0 && len(list) == f.Limit {
			break
		}
	}
	return list, nil
}

func inPeriod(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}

// Balance считает сводку за полуинтервал [from, to); nil границы не ограничивают
func (s *Service) Balance(ctx context.Context, from, to *time.Time) (sheet BalanceSheet, err error) {
	defer func() { err = s.finish(ctx, "balance", err) }()

	if _, err := requireSession(ctx); err != nil {
		return sheet, err
	}

	sheet = BalanceSheet{From: from, To: to}

	// суммы в Go: decimal не теряет копейки, в отличие от SUM() по REAL в sqlite
	list, err := s.listTransactions(ctx, TransactionFilter{From: from, To: to})
	if err != nil {
		return sheet, err
	}
	for _, t := range list {
		switch t.Type {
		case db.TxIncome:
			sheet.Income = sheet.Income.Add(t.Amount)
		case db.TxExpense:
			sheet.Expense = sheet.Expense.Add(t.Amount)
		}
	}

	var payments []db.Payment
	if err := s.repo.DB().WithContext(ctx).Select("amount", "payment_date").Find(&payments).Error; err != nil {
		return sheet, fmt.Errorf("load payments: %w", err)
	}
	for _, p := range payments {
		if inPeriod(p.PaymentDate, from, to) {
			sheet.ClientPayments = sheet.ClientPayments.Add(p.Amount)
		}
	}

	sheet.Balance = sheet.Income.Add(sheet.ClientPayments).Sub(sheet.Expense)
	return sheet, nil
}
