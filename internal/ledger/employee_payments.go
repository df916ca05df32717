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

type EmployeePaymentInput struct {
	Amount        decimal.Decimal
	PaymentDate   *time.Time
	PaymentMethod string
	Recipient     string
	Notes         string
}

type DeleteEmployeePaymentReport struct {
	Payment  db.EmployeePayment `json:"payment"`
	Reversal *db.Transaction    `json:"reversal,omitempty"`
}

// AddEmployeePayment: выплата, рост employeePaidAmount и расход "Зарплата" одной транзакцией
func (s *Service) AddEmployeePayment(ctx context.Context, orderID uint, in EmployeePaymentInput) (payment db.EmployeePayment, err error) {
	defer func() { err = s.finish(ctx, "add_employee_payment", err) }()

	sess, err := requireSession(ctx)
	if err != nil {
		return payment, err
	}
	if !in.Amount.IsPositive() {
		return payment, ErrValidationf("employee payment amount must be positive, got %s", in.Amount)
	}

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		var order db.Order
		if err := forUpdate(tx).First(&order, orderID).Error; err != nil {
			return notFound(err, "order %d", orderID)
		}
		if !sess.owns(order.CreatedByID, order.CreatedBy) {
			return ErrForbiddenf("user %d may not pay employees of order %d", sess.UserID, orderID)
		}

		payment = db.EmployeePayment{
			Amount:        in.Amount.Round(2),
			PaymentMethod: strings.TrimSpace(in.PaymentMethod),
			Recipient:     strings.TrimSpace(in.Recipient),
			Notes:         in.Notes,
		}
		if in.PaymentDate != nil {
			payment.PaymentDate = *in.PaymentDate
		}
		return s.payEmployeeTx(tx, sess, &order, &payment)
	})
	if err != nil {
		return db.EmployeePayment{}, err
	}

	slog.Info("Employee payment added", "order_id", orderID, "employee_payment_id", payment.ID, "amount", payment.Amount, "recipient", payment.Recipient)
	return payment, nil
}

// payEmployeeTx - общий путь ручной и автоматической выплаты. order должен быть прочитан с блокировкой.
func (s *Service) payEmployeeTx(tx *gorm.DB, sess Session, order *db.Order, payment *db.EmployeePayment) error {
	paid := order.EmployeePaidAmount.Add(payment.Amount)
	if ceiling := s.ceiling(order.TotalPrice); paid.GreaterThan(ceiling) {
		return ErrLimitExceededf("order %d: paid %s + %s exceeds ceiling %s",
			order.ID, order.EmployeePaidAmount, payment.Amount, ceiling)
	}

	payment.OrderID = order.ID
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = s.now()
	}
	if payment.ProcessedBy == "" {
		payment.ProcessedBy = sess.DisplayName
	}
	if payment.Recipient == "" {
		payment.Recipient = order.Employee
	}
	if payment.RecipientID == nil {
		id, err := resolveUserID(tx, payment.Recipient)
		if err != nil {
			return fmt.Errorf("resolve recipient %q: %w", payment.Recipient, err)
		}
		payment.RecipientID = id
	}

	if err := tx.Create(payment).Error; err != nil {
		return fmt.Errorf("create employee payment for order %d: %w", order.ID, err)
	}
	if err := tx.Model(order).Update("employee_paid_amount", paid).Error; err != nil {
		return fmt.Errorf("update paid amount of order %d: %w", order.ID, err)
	}
	order.EmployeePaidAmount = paid

	return writeTransaction(tx, &db.Transaction{
		Type:              db.TxExpense,
		Amount:            payment.Amount,
		Category:          db.CategorySalary,
		Date:              payment.PaymentDate,
		Description:       fmt.Sprintf("Выплата сотруднику %s по заказу #%d", payment.Recipient, order.ID),
		CreatedBy:         sess.DisplayName,
		CreatedByID:       sess.idPtr(),
		OrderID:           uintPtr(order.ID),
		EmployeePaymentID: uintPtr(payment.ID),
	})
}

// DeleteEmployeePayment уменьшает employeePaidAmount и удаляет выплату. Расход "Зарплата" остаётся;
// сторно "Отмена зарплаты" пишется только при включённом ReverseSalaryOnDelete.
func (s *Service) DeleteEmployeePayment(ctx context.Context, id uint) (report DeleteEmployeePaymentReport, err error) {
	defer func() { err = s.finish(ctx, "delete_employee_payment", err) }()

	sess, err := requireSession(ctx)
	if err != nil {
		return report, err
	}

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		var payment db.EmployeePayment
		if err := tx.First(&payment, id).Error; err != nil {
			return notFound(err, "employee payment %d", id)
		}
		// заказ блокируется первым, как в AddEmployeePayment и DeleteOrder
		var order db.Order
		if err := forUpdate(tx).First(&order, payment.OrderID).Error; err != nil {
			return notFound(err, "order %d of employee payment %d", payment.OrderID, id)
		}
		// выплату могли удалить, пока ждали блокировку заказа
		if err := forUpdate(tx).First(&payment, id).Error; err != nil {
			return notFound(err, "employee payment %d", id)
		}
		if !sess.owns(order.CreatedByID, order.CreatedBy) {
			return ErrForbiddenf("user %d may not delete employee payments of order %d", sess.UserID, order.ID)
		}

		paid := order.EmployeePaidAmount.Sub(payment.Amount)
		if paid.IsNegative() {
			slog.Warn("Employee paid amount drifted below zero", "order_id", order.ID, "paid", order.EmployeePaidAmount, "amount", payment.Amount)
			paid = decimal.Zero
		}
		if err := tx.Model(&order).Update("employee_paid_amount", paid).Error; err != nil {
			return fmt.Errorf("update paid amount of order %d: %w", order.ID, err)
		}
		res := tx.Delete(&payment)
		if res.Error != nil {
			return fmt.Errorf("delete employee payment %d: %w", id, res.Error)
		}
		if res.RowsAffected != 1 {
			return ErrNotFoundf("employee payment %d", id)
		}
		report.Payment = payment

		if !s.opts.ReverseSalaryOnDelete {
			return nil
		}
		reversal := &db.Transaction{
			Type:              db.TxIncome,
			Amount:            payment.Amount,
			Category:          db.CategorySalaryReversed,
			Date:              s.now(),
			Description:       fmt.Sprintf("Отмена выплаты #%d (%s) по заказу #%d", payment.ID, payment.Recipient, order.ID),
			CreatedBy:         sess.DisplayName,
			CreatedByID:       sess.idPtr(),
			OrderID:           uintPtr(order.ID),
			EmployeePaymentID: uintPtr(payment.ID),
		}
		if err := writeTransaction(tx, reversal); err != nil {
			return err
		}
		report.Reversal = reversal
		return nil
	})
	if err != nil {
		return DeleteEmployeePaymentReport{}, err
	}

	slog.Info("Employee payment deleted", "employee_payment_id", id, "order_id", report.Payment.OrderID, "reversed", report.Reversal != nil)
	return report, nil
}
