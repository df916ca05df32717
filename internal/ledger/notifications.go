package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"newsroom-ledger/internal/db"
	"newsroom-ledger/internal/metrics"
)

type NotificationInput struct {
	Customer     string
	AdText       string
	Quantity     int
	StartDate    time.Time
	EndDate      time.Time
	StartTime    string
	EndTime      string
	EmployeeRate *decimal.Decimal
	// Price > 0 создаёт заказ "Рассылки" и связывает его с рассылкой
	Price *decimal.Decimal
	// Client и Employee - для создаваемого заказа; по умолчанию заказчик и автор
	Client   string
	Employee string
}

type NotificationPatch struct {
	Customer          *string
	AdText            *string
	Quantity          *int
	StartDate         *time.Time
	EndDate           *time.Time
	StartTime         *string
	EndTime           *string
	EmployeeRate      *decimal.Decimal
	ClearEmployeeRate bool
}

// NotificationView - рассылка с лимитами, посчитанными на текущий момент
type NotificationView struct {
	db.Notification
	SentToday   int `json:"sentToday"`
	TotalLimit  int `json:"totalLimit"`
	UnpaidSends int `json:"unpaidSends"`
}

type SendResult struct {
	Notification db.Notification     `json:"notification"`
	Send         db.NotificationSend `json:"send"`
	SentToday    int                 `json:"sentToday"`
	TotalLimit   int                 `json:"totalLimit"`
	Archived     bool                `json:"archived"`
}

type DeleteNotificationReport struct {
	NotificationID uint               `json:"notificationId"`
	Order          *DeleteOrderReport `json:"order,omitempty"`
}

func validClock(v string) bool {
	if v == "" {
		return true
	}
	_, err := time.Parse("15:04", v)
	return err == nil
}

func (in *NotificationInput) validate() error {
	in.Customer = strings.TrimSpace(in.Customer)
	if in.Customer == "" {
		return ErrValidationf("customer is required")
	}
	if strings.TrimSpace(in.AdText) == "" {
		return ErrValidationf("adText is required")
	}
	if in.Quantity < 1 {
		return ErrValidationf("quantity must be at least 1, got %d", in.Quantity)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return ErrValidationf("startDate and endDate are required")
	}
	if civil(dateOf(in.EndDate)).Before(civil(dateOf(in.StartDate))) {
		return ErrValidationf("endDate is before startDate")
	}
	if !validClock(in.StartTime) || !validClock(in.EndTime) {
		return ErrValidationf("startTime/endTime must be HH:MM, got %q/%q", in.StartTime, in.EndTime)
	}
	if in.EmployeeRate != nil && in.EmployeeRate.IsNegative() {
		return ErrValidationf("employeeRate must not be negative")
	}
	if in.Price != nil && in.Price.IsNegative() {
		return ErrValidationf("price must not be negative")
	}
	return nil
}

func (s *Service) rateOf(n db.Notification) decimal.Decimal {
	if n.EmployeeRate.Valid {
		return n.EmployeeRate.Decimal
	}
	return s.opts.DefaultEmployeeRate
}

func withHistory(tx *gorm.DB) *gorm.DB {
	return tx.Preload("History", func(tx *gorm.DB) *gorm.DB { return tx.Order("seq") })
}

// CreateNotification создаёт рассылку; при положительной цене сначала создаётся заказ
func (s *Service) CreateNotification(ctx context.Context, in NotificationInput) (n db.Notification, err error) {
	defer func() { err = s.finish(ctx, "create_notification", err) }()

	sess, err := requireSession(ctx)
	if err != nil {
		return n, err
	}
	if err := in.validate(); err != nil {
		return n, err
	}

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		n = db.Notification{
			Customer:  in.Customer,
			AdText:    in.AdText,
			Quantity:  in.Quantity,
			StartDate: dateOf(in.StartDate),
			EndDate:   dateOf(in.EndDate),
			StartTime: in.StartTime,
			EndTime:   in.EndTime,
			Author:    sess.DisplayName,
			AuthorID:  sess.idPtr(),
		}
		if in.EmployeeRate != nil {
			n.EmployeeRate = decimal.NewNullDecimal(in.EmployeeRate.Round(2))
		}

		if in.Price != nil && in.Price.IsPositive() {
			client := strings.TrimSpace(in.Client)
			if client == "" {
				client = in.Customer
			}
			employee := strings.TrimSpace(in.Employee)
			if employee == "" {
				employee = sess.DisplayName
			}
			order, err := s.createOrderTx(tx, sess, OrderInput{
				Client:      client,
				ClientName:  in.Customer,
				Description: in.AdText,
				Service:     db.ServiceMailing,
				StartDate:   &in.StartDate,
				EndDate:     &in.EndDate,
				Employee:    employee,
				TotalPrice:  *in.Price,
			})
			if err != nil {
				return err
			}
			n.OrderID = uintPtr(order.ID)
		}

		if err := tx.Omit(clause.Associations).Create(&n).Error; err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return db.Notification{}, err
	}

	var orderID uint
	if n.OrderID != nil {
		orderID = *n.OrderID
	}
	slog.Info("Notification created", "notification_id", n.ID, "customer", n.Customer, "quantity", n.Quantity, "order_id", orderID)
	return n, nil
}

func (s *Service) UpdateNotification(ctx context.Context, id uint, patch NotificationPatch) (n db.Notification, err error) {
	defer func() { err = s.finish(ctx, "update_notification", err) }()

	sess, err := requireSession(ctx)
	if err != nil {
		return n, err
	}

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&n, id).Error; err != nil {
			return notFound(err, "notification %d", id)
		}
		if !sess.owns(n.AuthorID, n.Author) {
			return ErrForbiddenf("user %d may not edit notification %d", sess.UserID, id)
		}

		updates := map[string]interface{}{}
		if patch.Customer != nil {
			customer := strings.TrimSpace(*patch.Customer)
			if customer == "" {
				return ErrValidationf("customer must not be empty")
			}
			updates["customer"] = customer
		}
		if patch.AdText != nil {
			if strings.TrimSpace(*patch.AdText) == "" {
				return ErrValidationf("adText must not be empty")
			}
			updates["ad_text"] = *patch.AdText
		}
		if patch.Quantity != nil {
			if *patch.Quantity < 1 {
				return ErrValidationf("quantity must be at least 1, got %d", *patch.Quantity)
			}
			updates["quantity"] = *patch.Quantity
		}
		if patch.StartDate != nil || patch.EndDate != nil {
			start, end := n.StartDate, n.EndDate
			if patch.StartDate != nil {
				start = dateOf(*patch.StartDate)
				updates["start_date"] = start
			}
			if patch.EndDate != nil {
				end = dateOf(*patch.EndDate)
				updates["end_date"] = end
			}
			if civil(end).Before(civil(start)) {
				return ErrValidationf("endDate is before startDate")
			}
		}
		for col, v := range map[string]*string{"start_time": patch.StartTime, "end_time": patch.EndTime} {
			if v == nil {
				continue
			}
			if !validClock(*v) {
				return ErrValidationf("%s must be HH:MM, got %q", col, *v)
			}
			updates[col] = *v
		}
		switch {
		case patch.ClearEmployeeRate:
			updates["employee_rate"] = decimal.NullDecimal{}
		case patch.EmployeeRate != nil:
			if patch.EmployeeRate.IsNegative() {
				return ErrValidationf("employeeRate must not be negative")
			}
			updates["employee_rate"] = decimal.NewNullDecimal(patch.EmployeeRate.Round(2))
		}

		if len(updates) > 0 {
			if err := tx.Model(&n).Omit(clause.Associations).Updates(updates).Error; err != nil {
				return fmt.Errorf("update notification %d: %w", id, err)
			}
		}
		return withHistory(tx).First(&n, id).Error
	})
	if err != nil {
		return db.Notification{}, err
	}

	slog.Info("Notification updated", "notification_id", id)
	return n, nil
}

// DeleteNotification удаляет рассылку с историей и связанный заказ по правилам DeleteOrder
func (s *Service) DeleteNotification(ctx context.Context, id uint) (report DeleteNotificationReport, err error) {
	defer func() { err = s.finish(ctx, "delete_notification", err) }()

	sess, err := requireSession(ctx)
	if err != nil {
		return report, err
	}
	report.NotificationID = id

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		var n db.Notification
		if err := forUpdate(tx).First(&n, id).Error; err != nil {
			return notFound(err, "notification %d", id)
		}
		if !sess.owns(n.AuthorID, n.Author) {
			return ErrForbiddenf("user %d may not delete notification %d", sess.UserID, id)
		}

		if err := tx.Where("notification_id = ?", id).Delete(&db.NotificationSend{}).Error; err != nil {
			return fmt.Errorf("delete history of notification %d: %w", id, err)
		}
		if err := tx.Delete(&db.Notification{}, id).Error; err != nil {
			return fmt.Errorf("delete notification %d: %w", id, err)
		}

		if n.OrderID == nil {
			return nil
		}
		var order db.Order
		err := forUpdate(tx).First(&order, *n.OrderID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Warn("Linked order already gone", "notification_id", id, "order_id", *n.OrderID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("load linked order %d: %w", *n.OrderID, err)
		}
		orderReport, err := s.deleteOrderTx(tx, sess, &order)
		if err != nil {
			return err
		}
		report.Order = &orderReport
		return nil
	})
	if err != nil {
		return DeleteNotificationReport{}, err
	}

	slog.Info("Notification deleted", "notification_id", id, "order_deleted", report.Order != nil)
	return report, nil
}

// RecordSend фиксирует одну отправку: проверка дневного лимита и запись истории
// выполняются под блокировкой строки рассылки.
func (s *Service) RecordSend(ctx context.Context, id uint, actingUserName string) (res SendResult, err error) {
	defer func() {
		switch CodeOf(err) {
		case "":
			metrics.Sends.WithLabelValues("ok").Inc()
		case CodeDailyLimitReached:
			metrics.Sends.WithLabelValues("daily_limit").Inc()
		}
		err = s.finish(ctx, "record_send", err)
	}()

	sess, err := requireSession(ctx)
	if err != nil {
		return res, err
	}
	now := s.now().Truncate(time.Millisecond)
	today := dayStart(now, s.opts.Location)

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		var n db.Notification
		if err := forUpdate(tx).First(&n, id).Error; err != nil {
			return notFound(err, "notification %d", id)
		}
		var history []db.NotificationSend
		if err := tx.Where("notification_id = ?", id).Order("seq").Find(&history).Error; err != nil {
			return fmt.Errorf("load history of notification %d: %w", id, err)
		}

		sentToday, lastSeq := 0, 0
		for _, h := range history {
			if !h.SentAt.Before(today) {
				sentToday++
			}
			if h.Seq > lastSeq {
				lastSeq = h.Seq
			}
		}
		if sentToday >= n.Quantity {
			return ErrDailyLimitf("notification %d: %d of %d sends used today", id, sentToday, n.Quantity)
		}

		user, err := FindUserByNameOrID(tx, actingUserName, sess.idPtr())
		if err != nil {
			return fmt.Errorf("resolve acting user: %w", err)
		}
		send := db.NotificationSend{
			NotificationID: id,
			Seq:            lastSeq + 1,
			UserName:       strings.TrimSpace(actingUserName),
			SentAt:         now,
		}
		if user != nil {
			send.UserID = uintPtr(user.ID)
			send.UserName = user.Name()
		}
		if send.UserName == "" {
			send.UserName = sess.DisplayName
		}
		if err := tx.Create(&send).Error; err != nil {
			return fmt.Errorf("append send to notification %d: %w", id, err)
		}

		limit := totalLimit(n.Quantity, n.StartDate, n.EndDate)
		sentCount := len(history) + 1
		archive := sentCount >= limit
		updates := map[string]interface{}{
			"sent_count":     sentCount,
			"last_sent_time": now,
		}
		if archive {
			updates["is_archived"] = true
		}
		if err := tx.Model(&n).Omit(clause.Associations).Updates(updates).Error; err != nil {
			return fmt.Errorf("update counters of notification %d: %w", id, err)
		}
		if err := withHistory(tx).First(&n, id).Error; err != nil {
			return err
		}

		res = SendResult{
			Notification: n,
			Send:         send,
			SentToday:    sentToday + 1,
			TotalLimit:   limit,
			Archived:     archive,
		}
		return nil
	})
	if err != nil {
		return SendResult{}, err
	}

	if res.Archived {
		metrics.Archived.WithLabelValues("limit").Inc()
	}
	slog.Info("Notification sent", "notification_id", id, "user", res.Send.UserName, "sent_today", res.SentToday, "sent_count", res.Notification.SentCount, "archived", res.Archived)
	return res, nil
}

// ToggleSingleHistoryPayout переключает isPaid у одной отправки по точному времени (мс).
// Проводки не создаются и не отменяются.
func (s *Service) ToggleSingleHistoryPayout(ctx context.Context, id uint, at time.Time) (send db.NotificationSend, err error) {
	defer func() { err = s.finish(ctx, "toggle_history_payout", err) }()

	if _, err := requirePrivileged(ctx, "toggle history payout"); err != nil {
		return send, err
	}

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		var n db.Notification
		if err := forUpdate(tx).First(&n, id).Error; err != nil {
			return notFound(err, "notification %d", id)
		}
		var history []db.NotificationSend
		if err := tx.Where("notification_id = ?", id).Order("seq").Find(&history).Error; err != nil {
			return fmt.Errorf("load history of notification %d: %w", id, err)
		}

		found := false
		for _, h := range history {
			if h.SentAt.UnixMilli() == at.UnixMilli() {
				send, found = h, true
				break
			}
		}
		if !found {
			return ErrNotFoundf("notification %d has no send at %d", id, at.UnixMilli())
		}

		send.IsPaid = !send.IsPaid
		return tx.Model(&db.NotificationSend{}).Where("id = ?", send.ID).Update("is_paid", send.IsPaid).Error
	})
	if err != nil {
		return db.NotificationSend{}, err
	}

	slog.Info("History payout toggled", "notification_id", id, "seq", send.Seq, "is_paid", send.IsPaid)
	return send, nil
}

func (s *Service) ToggleArchive(ctx context.Context, id uint) (n db.Notification, err error) {
	defer func() { err = s.finish(ctx, "toggle_archive", err) }()

	sess, err := requireSession(ctx)
	if err != nil {
		return n, err
	}

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&n, id).Error; err != nil {
			return notFound(err, "notification %d", id)
		}
		if !sess.owns(n.AuthorID, n.Author) {
			return ErrForbiddenf("user %d may not archive notification %d", sess.UserID, id)
		}
		if err := tx.Model(&n).Omit(clause.Associations).Update("is_archived", !n.IsArchived).Error; err != nil {
			return fmt.Errorf("toggle archive of notification %d: %w", id, err)
		}
		return withHistory(tx).First(&n, id).Error
	})
	if err != nil {
		return db.Notification{}, err
	}

	slog.Info("Notification archive toggled", "notification_id", id, "is_archived", n.IsArchived)
	return n, nil
}

func (s *Service) GetNotification(ctx context.Context, id uint) (view NotificationView, err error) {
	defer func() { err = s.finish(ctx, "get_notification", err) }()

	if _, err := requireSession(ctx); err != nil {
		return view, err
	}
	var n db.Notification
	if err := withHistory(s.repo.DB().WithContext(ctx)).First(&n, id).Error; err != nil {
		return view, notFound(err, "notification %d", id)
	}
	return s.notificationView(n), nil
}

func (s *Service) ListNotifications(ctx context.Context, includeArchived bool) (views []NotificationView, err error) {
	defer func() { err = s.finish(ctx, "list_notifications", err) }()

	if _, err := requireSession(ctx); err != nil {
		return nil, err
	}

	q := withHistory(s.repo.DB().WithContext(ctx)).Order("id DESC")
	if !includeArchived {
		q = q.Where("is_archived = ?", false)
	}
	var list []db.Notification
	if err := q.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	views = make([]NotificationView, 0, len(list))
	for _, n := range list {
		views = append(views, s.notificationView(n))
	}
	return views, nil
}

func (s *Service) notificationView(n db.Notification) NotificationView {
	today := dayStart(s.now(), s.opts.Location)
	view := NotificationView{Notification: n, TotalLimit: totalLimit(n.Quantity, n.StartDate, n.EndDate)}
	for _, h := range n.History {
		if !h.SentAt.Before(today) {
			view.SentToday++
		}
		if !h.IsPaid {
			view.UnpaidSends++
		}
	}
	return view
}

// ArchiveExpired архивирует рассылки, у которых endDate раньше сегодняшнего дня
func (s *Service) ArchiveExpired(ctx context.Context) (count int, err error) {
	defer func() { err = s.finish(ctx, "archive_expired", err) }()

	today := civil(dateOf(s.now()))

	var active []db.Notification
	if err := s.repo.DB().WithContext(ctx).Select("id", "end_date").
		Where("is_archived = ?", false).Find(&active).Error; err != nil {
		return 0, fmt.Errorf("load active notifications: %w", err)
	}

	var expired []uint
	for _, n := range active {
		if civil(n.EndDate).Before(today) {
			expired = append(expired, n.ID)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	err = s.withTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Model(&db.Notification{}).Where("id IN ? AND is_archived = ?", expired, false).
			Update("is_archived", true).Error
	})
	if err != nil {
		return 0, err
	}

	metrics.Archived.WithLabelValues("expired").Add(float64(len(expired)))
	slog.Info("Expired notifications archived", "count", len(expired))
	return len(expired), nil
}
