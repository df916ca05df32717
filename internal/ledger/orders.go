package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"newsroom-ledger/internal/db"
)

type OrderInput struct {
	Client      string
	ClientName  string
	Description string
	Service     string
	StartDate   *time.Time
	EndDate     *time.Time
	Employee    string
	TotalPrice  decimal.Decimal
}

func (in *OrderInput) validate() error {
	in.Client = strings.TrimSpace(in.Client)
	in.Employee = strings.TrimSpace(in.Employee)
	if in.Client == "" {
		return ErrValidationf("client is required")
	}
	if in.TotalPrice.IsNegative() {
		return ErrValidationf("totalPrice must not be negative, got %s", in.TotalPrice)
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return ErrValidationf("endDate %s is before startDate %s",
			in.EndDate.Format(time.DateOnly), in.StartDate.Format(time.DateOnly))
	}
	return nil
}

// OrderPatch - частичное изменение заказа; nil означает "не менять"
type OrderPatch struct {
	Client      *string
	ClientName  *string
	Description *string
	Service     *string
	StartDate   *time.Time
	EndDate     *time.Time
	Employee    *string
	TotalPrice  *decimal.Decimal
	IsPaid      *bool
}

type OrderFilter struct {
	Client     string
	Employee   string
	OnlyUnpaid bool
}

// OrderView - заказ с производными суммами для карточки заказа
type OrderView struct {
	db.Order
	ClientPaid      decimal.Decimal `json:"clientPaid"`
	Outstanding     decimal.Decimal `json:"outstanding"`
	PayoutCeiling   decimal.Decimal `json:"payoutCeiling"`
	PayoutRemaining decimal.Decimal `json:"payoutRemaining"`
}

type DeleteOrderReport struct {
	OrderID              uint             `json:"orderId"`
	Reversals            []db.Transaction `json:"reversals"`
	DeletedNotifications int              `json:"deletedNotifications"`
}

func (s *Service) CreateOrder(ctx context.Context, in OrderInput) (order db.Order, err error) {
	defer func() { err = s.finish(ctx, "create_order", err) }()

	sess, err := requireSession(ctx)
	if err != nil {
		return order, err
	}
	if err := in.validate(); err != nil {
		return order, err
	}

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		order, err = s.createOrderTx(tx, sess, in)
		return err
	})
	if err != nil {
		return db.Order{}, err
	}

	slog.Info("Order created", "order_id", order.ID, "client", order.Client, "total", order.TotalPrice, "employee", order.Employee)
	return order, nil
}

func (s *Service) createOrderTx(tx *gorm.DB, sess Session, in OrderInput) (db.Order, error) {
	employeeID, err := resolveUserID(tx, in.Employee)
	if err != nil {
		return db.Order{}, fmt.Errorf("resolve employee %q: %w", in.Employee, err)
	}

	order := db.Order{
		Client:             in.Client,
		ClientName:         strings.TrimSpace(in.ClientName),
		Description:        in.Description,
		Service:            strings.TrimSpace(in.Service),
		StartDate:          datePtr(in.StartDate),
		EndDate:            datePtr(in.EndDate),
		Employee:           in.Employee,
		EmployeeID:         employeeID,
		TotalPrice:         in.TotalPrice.Round(2),
		EmployeePaidAmount: decimal.Zero,
		CreatedBy:          sess.DisplayName,
		CreatedByID:        sess.idPtr(),
	}
	if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
		return db.Order{}, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

// UpdateOrder применяет patch; смена isPaid пишет приход "Счет оплачен" или сторно "Отмена счета"
// в той же транзакции, что и сам заказ.
func (s *Service) UpdateOrder(ctx context.Context, id uint, patch OrderPatch) (order db.Order, err error) {
	defer func() { err = s.finish(ctx, "update_order", err) }()

	sess, err := requireSession(ctx)
	if err != nil {
		return order, err
	}

	var toggled *db.Transaction
	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&order, id).Error; err != nil {
			return notFound(err, "order %d", id)
		}
		if !sess.owns(order.CreatedByID, order.CreatedBy) {
			return ErrForbiddenf("user %d may not update order %d", sess.UserID, id)
		}

		updates, err := s.orderUpdates(tx, &order, patch)
		if err != nil {
			return err
		}

		if patch.IsPaid != nil && *patch.IsPaid != order.IsPaid {
			updates["is_paid"] = *patch.IsPaid
			toggled = s.invoiceToggle(sess, &order, *patch.IsPaid, updates)
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&order).Omit(clause.Associations).Updates(updates).Error; err != nil {
			return fmt.Errorf("update order %d: %w", id, err)
		}
		if toggled != nil {
			if err := writeTransaction(tx, toggled); err != nil {
				return err
			}
		}
		return tx.First(&order, id).Error
	})
	if err != nil {
		return db.Order{}, err
	}

	if toggled != nil {
		slog.Info("Order invoice toggled", "order_id", id, "is_paid", order.IsPaid, "category", toggled.Category, "amount", toggled.Amount)
	} else {
		slog.Info("Order updated", "order_id", id)
	}
	return order, nil
}

// orderUpdates собирает изменённые колонки и проверяет, что патч не ломает потолок выплат
func (s *Service) orderUpdates(tx *gorm.DB, order *db.Order, patch OrderPatch) (map[string]interface{}, error) {
	updates := map[string]interface{}{}

	if patch.Client != nil {
		client := strings.TrimSpace(*patch.Client)
		if client == "" {
			return nil, ErrValidationf("client must not be empty")
		}
		updates["client"] = client
	}
	if patch.ClientName != nil {
		updates["client_name"] = strings.TrimSpace(*patch.ClientName)
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Service != nil {
		updates["service"] = strings.TrimSpace(*patch.Service)
	}

	// даты сверяются только когда патч их меняет
	if patch.StartDate != nil || patch.EndDate != nil {
		start, end := order.StartDate, order.EndDate
		if patch.StartDate != nil {
			start = datePtr(patch.StartDate)
			updates["start_date"] = *start
		}
		if patch.EndDate != nil {
			end = datePtr(patch.EndDate)
			updates["end_date"] = *end
		}
		if start != nil && end != nil && civil(*end).Before(civil(*start)) {
			return nil, ErrValidationf("endDate is before startDate")
		}
	}

	if patch.Employee != nil {
		employee := strings.TrimSpace(*patch.Employee)
		employeeID, err := resolveUserID(tx, employee)
		if err != nil {
			return nil, fmt.Errorf("resolve employee %q: %w", employee, err)
		}
		updates["employee"] = employee
		updates["employee_id"] = employeeID
	}

	if patch.TotalPrice != nil && !patch.TotalPrice.Equal(order.TotalPrice) {
		price := patch.TotalPrice.Round(2)
		if price.IsNegative() {
			return nil, ErrValidationf("totalPrice must not be negative, got %s", price)
		}
		stillPaid := order.IsPaid && (patch.IsPaid == nil || *patch.IsPaid)
		if stillPaid {
			// приход по счёту записан на старую сумму
			return nil, ErrValidationf("order %d is marked paid, unmark it before changing the price", order.ID)
		}
		if order.EmployeePaidAmount.GreaterThan(s.ceiling(price)) {
			return nil, ErrLimitExceededf("order %d: employees already got %s, new price %s allows %s",
				order.ID, order.EmployeePaidAmount, price, s.ceiling(price))
		}
		updates["total_price"] = price
	}

	return updates, nil
}

// invoiceToggle готовит проводку для смены isPaid. Сторно идёт на сумму, по которой был приход.
func (s *Service) invoiceToggle(sess Session, order *db.Order, paid bool, updates map[string]interface{}) *db.Transaction {
	t := &db.Transaction{
		Date:        s.now(),
		CreatedBy:   sess.DisplayName,
		CreatedByID: sess.idPtr(),
		OrderID:     uintPtr(order.ID),
	}
	if paid {
		amount := order.TotalPrice
		if price, ok := updates["total_price"].(decimal.Decimal); ok {
			amount = price
		}
		t.Type = db.TxIncome
		t.Category = db.CategoryInvoicePaid
		t.Amount = amount
		t.Description = fmt.Sprintf("Оплата счета по заказу #%d (%s)", order.ID, order.Client)
		return t
	}
	t.Type = db.TxExpense
	t.Category = db.CategoryInvoiceCancel
	t.Amount = order.TotalPrice
	t.Description = fmt.Sprintf("Отмена оплаты счета по заказу #%d (%s)", order.ID, order.Client)
	return t
}

func (s *Service) DeleteOrder(ctx context.Context, id uint) (report DeleteOrderReport, err error) {
	defer func() { err = s.finish(ctx, "delete_order", err) }()

	sess, err := requirePrivileged(ctx, "delete order")
	if err != nil {
		return report, err
	}

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		var order db.Order
		if err := forUpdate(tx).First(&order, id).Error; err != nil {
			return notFound(err, "order %d", id)
		}
		report, err = s.deleteOrderTx(tx, sess, &order)
		return err
	})
	if err != nil {
		return DeleteOrderReport{}, err
	}

	slog.Info("Order deleted", "order_id", id, "reversals", len(report.Reversals), "notifications", report.DeletedNotifications)
	return report, nil
}

// deleteOrderTx: сторно оплаченного счёта, сторно каждой выплаты сотруднику,
// удаление ссылающихся рассылок и самого заказа с платежами
func (s *Service) deleteOrderTx(tx *gorm.DB, sess Session, order *db.Order) (DeleteOrderReport, error) {
	report := DeleteOrderReport{OrderID: order.ID}
	now := s.now()

	var payouts []db.EmployeePayment
	if err := tx.Where("order_id = ?", order.ID).Order("id").Find(&payouts).Error; err != nil {
		return report, fmt.Errorf("load employee payments of order %d: %w", order.ID, err)
	}

	if order.IsPaid {
		report.Reversals = append(report.Reversals, db.Transaction{
			Type:        db.TxExpense,
			Amount:      order.TotalPrice,
			Category:    db.CategoryOrderDeleted,
			Date:        now,
			Description: fmt.Sprintf("Удаление оплаченного заказа #%d (%s)", order.ID, order.Client),
			CreatedBy:   sess.DisplayName,
			CreatedByID: sess.idPtr(),
			OrderID:     uintPtr(order.ID),
		})
	}
	for _, p := range payouts {
		report.Reversals = append(report.Reversals, db.Transaction{
			Type:              db.TxIncome,
			Amount:            p.Amount,
			Category:          db.CategoryOrderDeleted,
			Date:              now,
			Description:       fmt.Sprintf("Возврат выплаты #%d (%s) по удаленному заказу #%d", p.ID, p.Recipient, order.ID),
			CreatedBy:         sess.DisplayName,
			CreatedByID:       sess.idPtr(),
			OrderID:           uintPtr(order.ID),
			EmployeePaymentID: uintPtr(p.ID),
		})
	}
	for i := range report.Reversals {
		if err := writeTransaction(tx, &report.Reversals[i]); err != nil {
			return report, err
		}
	}

	var notificationIDs []uint
	if err := tx.Model(&db.Notification{}).Where("order_id = ?", order.ID).Pluck("id", &notificationIDs).Error; err != nil {
		return report, fmt.Errorf("find notifications of order %d: %w", order.ID, err)
	}
	if len(notificationIDs) > 0 {
		if err := tx.Where("notification_id IN ?", notificationIDs).Delete(&db.NotificationSend{}).Error; err != nil {
			return report, fmt.Errorf("delete send history: %w", err)
		}
		if err := tx.Where("id IN ?", notificationIDs).Delete(&db.Notification{}).Error; err != nil {
			return report, fmt.Errorf("delete notifications of order %d: %w", order.ID, err)
		}
	}
	report.DeletedNotifications = len(notificationIDs)

	if err := tx.Where("order_id = ?", order.ID).Delete(&db.Payment{}).Error; err != nil {
		return report, fmt.Errorf("delete payments of order %d: %w", order.ID, err)
	}
	if err := tx.Where("order_id = ?", order.ID).Delete(&db.EmployeePayment{}).Error; err != nil {
		return report, fmt.Errorf("delete employee payments of order %d: %w", order.ID, err)
	}
	if err := tx.Delete(&db.Order{}, order.ID).Error; err != nil {
		return report, fmt.Errorf("delete order %d: %w", order.ID, err)
	}
	return report, nil
}

func (s *Service) GetOrder(ctx context.Context, id uint) (view OrderView, err error) {
	defer func() { err = s.finish(ctx, "get_order", err) }()

	if _, err := requireSession(ctx); err != nil {
		return view, err
	}

	var order db.Order
	err = s.repo.DB().WithContext(ctx).
		Preload("Payments", func(tx *gorm.DB) *gorm.DB { return tx.Order("payment_date, id") }).
		Preload("EmployeePayments", func(tx *gorm.DB) *gorm.DB { return tx.Order("payment_date, id") }).
		First(&order, id).Error
	if err != nil {
		return view, notFound(err, "order %d", id)
	}
	return s.orderView(order), nil
}

func (s *Service) orderView(order db.Order) OrderView {
	view := OrderView{Order: order, ClientPaid: decimal.Zero, Outstanding: decimal.Zero}
	for _, p := range order.Payments {
		view.ClientPaid = view.ClientPaid.Add(p.Amount)
	}
	if !order.IsPaid {
		view.Outstanding = decimal.Max(decimal.Zero, order.TotalPrice.Sub(view.ClientPaid))
	}
	view.PayoutCeiling = s.ceiling(order.TotalPrice)
	view.PayoutRemaining = decimal.Max(decimal.Zero, view.PayoutCeiling.Sub(order.EmployeePaidAmount))
	return view
}

func (s *Service) ListOrders(ctx context.Context, f OrderFilter) (orders []db.Order, err error) {
	defer func() { err = s.finish(ctx, "list_orders", err) }()

	if _, err := requireSession(ctx); err != nil {
		return nil, err
	}

	q := s.repo.DB().WithContext(ctx).Order("created_at DESC, id DESC")
	if f.Client != "" {
		q = q.Where("client = ?", f.Client)
	}
	if f.Employee != "" {
		q = q.Where("employee = ?", f.Employee)
	}
	if f.OnlyUnpaid {
		q = q.Where("is_paid = ?", false)
	}
	if err := q.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
