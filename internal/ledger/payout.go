package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"newsroom-ledger/internal/db"
	"newsroom-ledger/internal/metrics"
)

const payoutNote = "Выплата за рассылку (автоматически)"

// PayoutChunk - одна выплата по рассылке, связанной с заказом
type PayoutChunk struct {
	NotificationID    uint            `json:"notificationId"`
	OrderID           uint            `json:"orderId"`
	Entries           int             `json:"entries"`
	Amount            decimal.Decimal `json:"amount"`
	EmployeePaymentID uint            `json:"employeePaymentId"`
}

type PayoutFailure struct {
	NotificationID uint   `json:"notificationId"`
	Code           string `json:"code"`
}

type PayoutReport struct {
	BatchID             string          `json:"batchId"`
	Employee            string          `json:"employee"`
	NothingToPay        bool            `json:"nothingToPay"`
	Chunks              []PayoutChunk   `json:"chunks"`
	DirectNotifications []uint          `json:"directNotifications"`
	DirectEntries       int             `json:"directEntries"`
	Failures            []PayoutFailure `json:"failures,omitempty"`
	TotalAmount         decimal.Decimal `json:"totalAmount"`
}

// payoutPlan - неоплаченные отправки сотрудника в одной рассылке
type payoutPlan struct {
	notificationID uint
	orderID        *uint
	rate           decimal.Decimal
	sendIDs        []uint
}

type EmployeeSummary struct {
	Employee      string          `json:"employee"`
	UnpaidSends   int             `json:"unpaidSends"`
	UnpaidAmount  decimal.Decimal `json:"unpaidAmount"`
	PaidTotal     decimal.Decimal `json:"paidTotal"`
	PaymentsCount int             `json:"paymentsCount"`
}

// matchesEmployee: совпадает актуальное имя по userId или сохранённый снимок userName
func matchesEmployee(h db.NotificationSend, names map[uint]string, employee string) bool {
	resolved := h.UserName
	if h.UserID != nil {
		if name, ok := names[*h.UserID]; ok {
			resolved = name
		}
	}
	return resolved == employee || h.UserName == employee
}

// planPayout собирает неоплаченные отправки сотрудника по всем рассылкам
func (s *Service) planPayout(ctx context.Context, employee string) ([]payoutPlan, error) {
	tx := s.repo.DB().WithContext(ctx)

	names, err := userNames(tx)
	if err != nil {
		return nil, fmt.Errorf("load user directory: %w", err)
	}
	var list []db.Notification
	if err := withHistory(tx).Order("id").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}

	var plans []payoutPlan
	for _, n := range list {
		plan := payoutPlan{notificationID: n.ID, orderID: n.OrderID, rate: s.rateOf(n)}
		for _, h := range n.History {
			if !h.IsPaid && matchesEmployee(h, names, employee) {
				plan.sendIDs = append(plan.sendIDs, h.ID)
			}
		}
		if len(plan.sendIDs) > 0 {
			plans = append(plans, plan)
		}
	}
	return plans, nil
}

// PayAllForEmployee выплачивает сотруднику все неоплаченные отправки. Каждая рассылка с заказом -
// отдельная транзакция: сбой одной не откатывает уже проведённые. Рассылки без заказа помечаются
// оплаченными одной транзакцией без проводок.
func (s *Service) PayAllForEmployee(ctx context.Context, employee string) (report PayoutReport, err error) {
	const op = "pay_all_for_employee"
	defer func() {
		if err == nil && report.NothingToPay {
			metrics.ObserveOperation(op, CodeNothingToPay)
			return
		}
		err = s.finish(ctx, op, err)
	}()

	sess, err := requirePrivileged(ctx, "pay employee")
	if err != nil {
		return report, err
	}
	employee = strings.TrimSpace(employee)
	if employee == "" {
		return report, ErrValidationf("employee name is required")
	}

	report = PayoutReport{
		BatchID:     uuid.NewString(),
		Employee:    employee,
		TotalAmount: decimal.Zero,
	}

	plans, err := s.planPayout(ctx, employee)
	if err != nil {
		return report, err
	}
	if len(plans) == 0 {
		report.NothingToPay = true
		slog.Info("Nothing to pay", "employee", employee)
		return report, nil
	}

	var recipientID *uint
	if user, err := FindUserByNameOrID(s.repo.DB().WithContext(ctx), employee, nil); err == nil && user != nil {
		recipientID = uintPtr(user.ID)
	}

	var direct []payoutPlan
	var firstErr error
	for _, plan := range plans {
		if plan.orderID == nil {
			direct = append(direct, plan)
			continue
		}

		chunk, err := s.payChunk(ctx, sess, report.BatchID, employee, recipientID, plan)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			metrics.PayoutChunkFailures.Inc()
			slog.Error("Payout chunk failed", "batch_id", report.BatchID, "notification_id", plan.notificationID, "order_id", *plan.orderID, "error", err)
			report.Failures = append(report.Failures, PayoutFailure{NotificationID: plan.notificationID, Code: CodeOf(err)})
			continue
		}
		if chunk.Entries == 0 {
			continue
		}
		report.Chunks = append(report.Chunks, chunk)
		report.TotalAmount = report.TotalAmount.Add(chunk.Amount)
	}

	if len(direct) > 0 {
		entries, err := s.markPaidDirect(ctx, direct)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			slog.Error("Direct history payout failed", "batch_id", report.BatchID, "notifications", len(direct), "error", err)
			for _, plan := range direct {
				report.Failures = append(report.Failures, PayoutFailure{NotificationID: plan.notificationID, Code: CodeOf(err)})
			}
		} else {
			report.DirectEntries = entries
			for _, plan := range direct {
				report.DirectNotifications = append(report.DirectNotifications, plan.notificationID)
			}
		}
	}

	applied := len(report.Chunks) > 0 || report.DirectEntries > 0
	if !applied && firstErr != nil {
		return report, firstErr
	}
	if !applied {
		// всё успели оплатить параллельно
		report.NothingToPay = true
		return report, nil
	}

	metrics.PayoutAmount.Add(report.TotalAmount.InexactFloat64())
	slog.Info("Employee payout finished", "batch_id", report.BatchID, "employee", employee,
		"chunks", len(report.Chunks), "direct_entries", report.DirectEntries, "total", report.TotalAmount, "failures", len(report.Failures))
	s.report(ctx, payoutSummary(report))
	return report, nil
}

// payChunk перечитывает отправки под блокировкой: то, что оплатили параллельно, не платится дважды
func (s *Service) payChunk(ctx context.Context, sess Session, batchID, employee string, recipientID *uint, plan payoutPlan) (PayoutChunk, error) {
	chunk := PayoutChunk{NotificationID: plan.notificationID, OrderID: *plan.orderID}

	err := s.withTransaction(ctx, func(tx *gorm.DB) error {
		var sends []db.NotificationSend
		if err := forUpdate(tx).Where("id IN ? AND is_paid = ?", plan.sendIDs, false).Find(&sends).Error; err != nil {
			return fmt.Errorf("lock sends of notification %d: %w", plan.notificationID, err)
		}
		if len(sends) == 0 {
			return nil
		}

		var order db.Order
		if err := forUpdate(tx).First(&order, *plan.orderID).Error; err != nil {
			return notFound(err, "order %d linked to notification %d", *plan.orderID, plan.notificationID)
		}

		payment := db.EmployeePayment{
			Amount:      plan.rate.Mul(decimal.NewFromInt(int64(len(sends)))).Round(2),
			Recipient:   employee,
			RecipientID: recipientID,
			Notes:       payoutNote,
			BatchID:     batchID,
		}
		if err := s.payEmployeeTx(tx, sess, &order, &payment); err != nil {
			return err
		}

		ids := make([]uint, 0, len(sends))
		for _, h := range sends {
			ids = append(ids, h.ID)
		}
		err := tx.Model(&db.NotificationSend{}).Where("id IN ?", ids).Updates(map[string]interface{}{
			"is_paid":             true,
			"employee_payment_id": payment.ID,
		}).Error
		if err != nil {
			return fmt.Errorf("mark sends of notification %d paid: %w", plan.notificationID, err)
		}

		chunk.Entries = len(sends)
		chunk.Amount = payment.Amount
		chunk.EmployeePaymentID = payment.ID
		return nil
	})
	return chunk, err
}

func (s *Service) markPaidDirect(ctx context.Context, plans []payoutPlan) (int, error) {
	var ids []uint
	for _, plan := range plans {
		ids = append(ids, plan.sendIDs...)
	}

	var entries int
	err := s.withTransaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&db.NotificationSend{}).Where("id IN ? AND is_paid = ?", ids, false).Update("is_paid", true)
		if res.Error != nil {
			return fmt.Errorf("mark direct sends paid: %w", res.Error)
		}
		entries = int(res.RowsAffected)
		return nil
	})
	return entries, err
}

func payoutSummary(r PayoutReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💸 Выплата сотруднику %s\n", r.Employee)
	fmt.Fprintf(&b, "Сумма: %s ₽ (%d заказов)\n", r.TotalAmount.StringFixed(2), len(r.Chunks))
	if r.DirectEntries > 0 {
		fmt.Fprintf(&b, "Отмечено без проводок: %d отправок\n", r.DirectEntries)
	}
	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "⚠️ Не удалось: %d рассылок\n", len(r.Failures))
	}
	fmt.Fprintf(&b, "Пакет: %s", r.BatchID)
	return b.String()
}

// EmployeeSummary - сколько сотруднику должны за рассылки и сколько уже выплачено
func (s *Service) EmployeeSummary(ctx context.Context, employee string) (sum EmployeeSummary, err error) {
	defer func() { err = s.finish(ctx, "employee_summary", err) }()

	if _, err := requireSession(ctx); err != nil {
		return sum, err
	}
	employee = strings.TrimSpace(employee)
	if employee == "" {
		return sum, ErrValidationf("employee name is required")
	}

	sum = EmployeeSummary{Employee: employee, UnpaidAmount: decimal.Zero, PaidTotal: decimal.Zero}

	plans, err := s.planPayout(ctx, employee)
	if err != nil {
		return sum, err
	}
	for _, plan := range plans {
		n := len(plan.sendIDs)
		sum.UnpaidSends += n
		sum.UnpaidAmount = sum.UnpaidAmount.Add(plan.rate.Mul(decimal.NewFromInt(int64(n))))
	}

	var payments []db.EmployeePayment
	err = s.repo.DB().WithContext(ctx).
		Where("recipient = ?", employee).
		Or("recipient = ? AND order_id IN (?)", "", s.repo.DB().Model(&db.Order{}).Select("id").Where("employee = ?", employee)).
		Find(&payments).Error
	if err != nil {
		return sum, fmt.Errorf("load employee payments: %w", err)
	}
	for _, p := range payments {
		sum.PaidTotal = sum.PaidTotal.Add(p.Amount)
	}
	sum.PaymentsCount = len(payments)
	return sum, nil
}
