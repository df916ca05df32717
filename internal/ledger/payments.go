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

type PaymentInput struct {
	Amount        decimal.Decimal
	PaymentDate   *time.Time
	PaymentMethod string
	ReceivedBy    string
	ReceiptNumber string
	Notes         string
}

// AddPayment записывает деньги от клиента. Проводка не создаётся: платежи сами входят в баланс.
func (s *Service) AddPayment(ctx context.Context, orderID uint, in PaymentInput) (payment db.Payment, err error) {
	defer func() { err = s.finish(ctx, "add_payment", err) }()

	sess, err := requireSession(ctx)
	if err != nil {
		return payment, err
	}
	if !in.Amount.IsPositive() {
		return payment, ErrValidationf("payment amount must be positive, got %s", in.Amount)
	}

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		var order db.Order
		if err := tx.First(&order, orderID).Error; err != nil {
			return notFound(err, "order %d", orderID)
		}
		if !sess.owns(order.CreatedByID, order.CreatedBy) {
			return ErrForbiddenf("user %d may not add payments to order %d", sess.UserID, orderID)
		}

		payment = db.Payment{
			OrderID:       orderID,
			Amount:        in.Amount.Round(2),
			PaymentDate:   s.now(),
			PaymentMethod: strings.TrimSpace(in.PaymentMethod),
			ReceivedBy:    strings.TrimSpace(in.ReceivedBy),
			ReceiptNumber: strings.TrimSpace(in.ReceiptNumber),
			Notes:         in.Notes,
		}
		if in.PaymentDate != nil {
			payment.PaymentDate = *in.PaymentDate
		}
		if payment.ReceivedBy == "" {
			payment.ReceivedBy = sess.DisplayName
		}
		if err := tx.Create(&payment).Error; err != nil {
			return fmt.Errorf("create payment for order %d: %w", orderID, err)
		}
		return nil
	})
	if err != nil {
		return db.Payment{}, err
	}

	slog.Info("Client payment added", "order_id", orderID, "payment_id", payment.ID, "amount", payment.Amount)
	return payment, nil
}

func (s *Service) DeletePayment(ctx context.Context, id uint) (err error) {
	defer func() { err = s.finish(ctx, "delete_payment", err) }()

	sess, err := requireSession(ctx)
	if err != nil {
		return err
	}

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		var payment db.Payment
		if err := tx.First(&payment, id).Error; err != nil {
			return notFound(err, "payment %d", id)
		}
		var order db.Order
		if err := tx.First(&order, payment.OrderID).Error; err != nil {
			return notFound(err, "order %d of payment %d", payment.OrderID, id)
		}
		if !sess.owns(order.CreatedByID, order.CreatedBy) {
			return ErrForbiddenf("user %d may not delete payments of order %d", sess.UserID, order.ID)
		}
		return tx.Delete(&payment).Error
	})
	if err != nil {
		return err
	}

	slog.Info("Client payment deleted", "payment_id", id)
	return nil
}
