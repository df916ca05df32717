package ledger

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/datatypes"

	"newsroom-ledger/internal/db"
)

func TestCampaignDays(t *testing.T) {
	day := func(s string) datatypes.Date {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			t.Fatal(err)
		}
		return dateOf(d)
	}

	tests := []struct {
		name       string
		start, end string
		want       int
	}{
		{name: "single day", start: "2026-03-10", end: "2026-03-10", want: 1},
		{name: "three days", start: "2026-03-10", end: "2026-03-12", want: 3},
		{name: "reversed range", start: "2026-03-12", end: "2026-03-10", want: 3},
		{name: "across month", start: "2026-02-27", end: "2026-03-02", want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := campaignDays(day(tt.start), day(tt.end)); got != tt.want {
				t.Errorf("campaignDays(%s, %s) = %d, want %d", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestRecordSendDailyLimit(t *testing.T) {
	svc, repo, clock := setupTestService(t)
	ctx := asUser(t, repo, "alex")
	n := createTestNotification(t, svc, ctx, NotificationInput{Quantity: 3})

	for i := 1; i <= 3; i++ {
		clock.Set(testNow.Add(time.Duration(i) * time.Minute))
		res, err := svc.RecordSend(ctx, n.ID, "")
		if err != nil {
			t.Fatalf("send %d error = %v", i, err)
		}
		if res.SentToday != i {
			t.Errorf("send %d: SentToday = %d", i, res.SentToday)
		}
		if res.Send.UserName != "Alex" {
			t.Errorf("send %d: UserName = %q, want Alex", i, res.Send.UserName)
		}
	}

	_, err := svc.RecordSend(ctx, n.ID, "")
	assertCode(t, err, CodeDailyLimitReached)

	clock.Set(time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC))
	res, err := svc.RecordSend(ctx, n.ID, "")
	if err != nil {
		t.Fatalf("send after midnight error = %v", err)
	}
	if res.SentToday != 1 {
		t.Errorf("SentToday after midnight = %d, want 1", res.SentToday)
	}
	if res.Notification.SentCount != 4 || len(res.Notification.History) != 4 {
		t.Errorf("sentCount = %d, history = %d, want 4 and 4", res.Notification.SentCount, len(res.Notification.History))
	}
	if res.Notification.LastSentTime == nil || !res.Notification.LastSentTime.Equal(clock.Now()) {
		t.Errorf("LastSentTime = %v, want %v", res.Notification.LastSentTime, clock.Now())
	}
}

func TestRecordSendAutoArchive(t *testing.T) {
	svc, repo, _ := setupTestService(t)
	ctx := asUser(t, repo, "alex")
	n := createTestNotification(t, svc, ctx, NotificationInput{Quantity: 1, StartDate: testNow, EndDate: testNow})

	res, err := svc.RecordSend(ctx, n.ID, "")
	if err != nil {
		t.Fatalf("RecordSend() error = %v", err)
	}
	if res.TotalLimit != 1 {
		t.Errorf("TotalLimit = %d, want 1", res.TotalLimit)
	}
	if !res.Archived || !res.Notification.IsArchived {
		t.Error("notification not archived after reaching the campaign limit")
	}
}

func TestRecordSendFallsBackToPassedName(t *testing.T) {
	svc, repo, _ := setupTestService(t)
	n := createTestNotification(t, svc, asUser(t, repo, "admin"), NotificationInput{})

	// пользователя из сессии нет в справочнике
	ctx := WithSession(context.Background(), Session{UserID: 9999, DisplayName: "Гость", Role: RoleEmployee})
	res, err := svc.RecordSend(ctx, n.ID, "Внештатник")
	if err != nil {
		t.Fatalf("RecordSend() error = %v", err)
	}
	if res.Send.UserID != nil || res.Send.UserName != "Внештатник" {
		t.Errorf("send = %+v, want userName snapshot Внештатник without userId", res.Send)
	}

	_, err = svc.RecordSend(ctx, 9999, "")
	assertCode(t, err, CodeNotFound)
}

func TestConcurrentRecordSend(t *testing.T) {
	svc, repo, _ := setupTestService(t)
	ctx := asUser(t, repo, "alex")
	n := createTestNotification(t, svc, ctx, NotificationInput{Quantity: 5})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RecordSend(ctx, n.ID, ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 {
		t.Errorf("%d sends succeeded, want 5", succeeded)
	}
	var stored db.Notification
	repo.DB().First(&stored, n.ID)
	if history := historyOf(t, repo, n.ID); stored.SentCount != len(history) || len(history) != 5 {
		t.Errorf("sentCount = %d, history = %d, want 5 and 5", stored.SentCount, len(history))
	}
}

func TestCreateNotificationOrderLink(t *testing.T) {
	svc, repo, _ := setupTestService(t)
	ctx := asUser(t, repo, "ira")
	alex := testUser(t, repo, "alex")

	withPrice := createTestNotification(t, svc, ctx, NotificationInput{Price: decPtr("1500"), Employee: "Alex", Client: "+79005554433"})
	if withPrice.OrderID == nil {
		t.Fatal("OrderID not set for a priced notification")
	}
	var order db.Order
	if err := repo.DB().First(&order, *withPrice.OrderID).Error; err != nil {
		t.Fatalf("linked order not found: %v", err)
	}
	if order.Service != db.ServiceMailing || order.Client != "+79005554433" || order.ClientName != withPrice.Customer {
		t.Errorf("order = %+v", order)
	}
	assertDecimal(t, "order price", order.TotalPrice, "1500")
	if order.EmployeeID == nil || *order.EmployeeID != alex.ID {
		t.Errorf("order EmployeeID = %v, want %d", order.EmployeeID, alex.ID)
	}

	for _, price := range []*string{nil, ptr("0")} {
		in := NotificationInput{}
		if price != nil {
			in.Price = decPtr(*price)
		}
		n := createTestNotification(t, svc, ctx, in)
		if n.OrderID != nil {
			t.Errorf("price %v: OrderID = %d, want nil", price, *n.OrderID)
		}
	}

	var orders int64
	repo.DB().Model(&db.Order{}).Count(&orders)
	if orders != 1 {
		t.Errorf("got %d orders, want 1", orders)
	}

	_, err := svc.CreateNotification(ctx, NotificationInput{Customer: "X", AdText: "Y", Quantity: 0, StartDate: testNow, EndDate: testNow})
	assertCode(t, err, CodeValidationFailed)
}

func ptr(s string) *string {
	return &s
}

func TestDeleteNotificationDeletesLinkedOrder(t *testing.T) {
	svc, repo, _ := setupTestService(t)
	ctx := asUser(t, repo, "ira")

	n := createTestNotification(t, svc, ctx, NotificationInput{Price: decPtr("1000")})
	if _, err := svc.UpdateOrder(ctx, *n.OrderID, OrderPatch{IsPaid: boolPtr(true)}); err != nil {
		t.Fatalf("UpdateOrder() error = %v", err)
	}
	recordSends(t, svc, asUser(t, repo, "alex"), n.ID, 2)

	_, err := svc.DeleteNotification(asUser(t, repo, "alex"), n.ID)
	assertCode(t, err, CodeForbidden)

	report, err := svc.DeleteNotification(ctx, n.ID)
	if err != nil {
		t.Fatalf("DeleteNotification() error = %v", err)
	}
	if report.Order == nil || len(report.Order.Reversals) != 1 {
		t.Fatalf("order report = %+v, want one reversal", report.Order)
	}
	if r := report.Order.Reversals[0]; r.Type != db.TxExpense || r.Category != db.CategoryOrderDeleted {
		t.Errorf("reversal = %s/%s", r.Type, r.Category)
	}

	var orders, sends int64
	repo.DB().Model(&db.Order{}).Count(&orders)
	repo.DB().Model(&db.NotificationSend{}).Count(&sends)
	if orders != 0 || sends != 0 {
		t.Errorf("left %d orders and %d history entries, want none", orders, sends)
	}
}

func TestUpdateNotification(t *testing.T) {
	svc, repo, _ := setupTestService(t)
	ctx := asUser(t, repo, "ira")
	n := createTestNotification(t, svc, ctx, NotificationInput{EmployeeRate: decPtr("70")})

	qty := 8
	start := "09:00"
	updated, err := svc.UpdateNotification(ctx, n.ID, NotificationPatch{Quantity: &qty, StartTime: &start, ClearEmployeeRate: true})
	if err != nil {
		t.Fatalf("UpdateNotification() error = %v", err)
	}
	if updated.Quantity != 8 || updated.StartTime != "09:00" || updated.EmployeeRate.Valid {
		t.Errorf("updated = %+v", updated)
	}
	assertDecimal(t, "effective rate", svc.rateOf(updated), "52")

	bad := "25:99"
	_, err = svc.UpdateNotification(ctx, n.ID, NotificationPatch{EndTime: &bad})
	assertCode(t, err, CodeValidationFailed)

	_, err = svc.UpdateNotification(asUser(t, repo, "bob"), n.ID, NotificationPatch{Quantity: &qty})
	assertCode(t, err, CodeForbidden)
}

func TestNotificationDatesOrder(t *testing.T) {
	svc, repo, _ := setupTestService(t)
	ctx := asUser(t, repo, "ira")

	_, err := svc.CreateNotification(ctx, NotificationInput{
		Customer:  "ООО Ромашка",
		AdText:    "Скидки",
		Quantity:  1,
		StartDate: testNow,
		EndDate:   testNow.AddDate(0, 0, -5),
		Price:     decPtr("500"),
	})
	assertCode(t, err, CodeValidationFailed)

	var orders int64
	repo.DB().Model(&db.Order{}).Count(&orders)
	if orders != 0 {
		t.Errorf("got %d orders, want none for a rejected notification", orders)
	}

	// однодневная кампания допустима
	n := createTestNotification(t, svc, ctx, NotificationInput{EndDate: testNow, Price: decPtr("500")})

	early := testNow.AddDate(0, 0, -1)
	_, err = svc.UpdateNotification(ctx, n.ID, NotificationPatch{EndDate: &early})
	assertCode(t, err, CodeValidationFailed)

	late := testNow.AddDate(0, 0, 1)
	_, err = svc.UpdateNotification(ctx, n.ID, NotificationPatch{StartDate: &late})
	assertCode(t, err, CodeValidationFailed)

	desc := "новый текст заказа"
	if _, err := svc.UpdateOrder(ctx, *n.OrderID, OrderPatch{Description: &desc}); err != nil {
		t.Errorf("UpdateOrder() of the mailing order error = %v", err)
	}
}

func TestCreateNotificationLogsOrderID(t *testing.T) {
	svc, repo, _ := setupTestService(t)
	ctx := asUser(t, repo, "ira")

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	createdLine := func() string {
		for _, line := range strings.Split(buf.String(), "\n") {
			if strings.Contains(line, "Notification created") {
				return line
			}
		}
		t.Fatalf("no creation record in %q", buf.String())
		return ""
	}

	n := createTestNotification(t, svc, ctx, NotificationInput{Price: decPtr("500")})
	if line, want := createdLine(), fmt.Sprintf("order_id=%d", *n.OrderID); !strings.Contains(line, want) {
		t.Errorf("log = %q, want %s", line, want)
	}

	buf.Reset()
	createTestNotification(t, svc, ctx, NotificationInput{})
	if line := createdLine(); !strings.Contains(line, "order_id=0") {
		t.Errorf("log = %q, want order_id=0", line)
	}
}

func TestToggleSingleHistoryPayout(t *testing.T) {
	svc, repo, clock := setupTestService(t)
	alex := asUser(t, repo, "alex")
	admin := asUser(t, repo, "admin")
	n := createTestNotification(t, svc, alex, NotificationInput{})

	var stamps []time.Time
	for i := 0; i < 2; i++ {
		clock.Set(testNow.Add(time.Duration(i)*time.Minute + 250*time.Millisecond))
		res, err := svc.RecordSend(alex, n.ID, "")
		if err != nil {
			t.Fatalf("RecordSend() error = %v", err)
		}
		stamps = append(stamps, res.Send.SentAt)
	}

	_, err := svc.ToggleSingleHistoryPayout(alex, n.ID, stamps[1])
	assertCode(t, err, CodeForbidden)

	send, err := svc.ToggleSingleHistoryPayout(admin, n.ID, stamps[1])
	if err != nil {
		t.Fatalf("ToggleSingleHistoryPayout() error = %v", err)
	}
	if !send.IsPaid || send.Seq != 2 {
		t.Errorf("toggled send = %+v, want seq 2 paid", send)
	}
	history := historyOf(t, repo, n.ID)
	if history[0].IsPaid || !history[1].IsPaid {
		t.Errorf("history paid flags = %v/%v, want false/true", history[0].IsPaid, history[1].IsPaid)
	}

	var transactions int64
	repo.DB().Model(&db.Transaction{}).Count(&transactions)
	if transactions != 0 {
		t.Errorf("toggle wrote %d transactions, want 0", transactions)
	}

	_, err = svc.ToggleSingleHistoryPayout(admin, n.ID, stamps[1].Add(time.Millisecond))
	assertCode(t, err, CodeNotFound)
}

func TestToggleArchiveAndExpiry(t *testing.T) {
	svc, repo, _ := setupTestService(t)
	ctx := asUser(t, repo, "ira")

	n := createTestNotification(t, svc, ctx, NotificationInput{})
	for _, want := range []bool{true, false} {
		got, err := svc.ToggleArchive(ctx, n.ID)
		if err != nil {
			t.Fatalf("ToggleArchive() error = %v", err)
		}
		if got.IsArchived != want {
			t.Errorf("IsArchived = %v, want %v", got.IsArchived, want)
		}
	}

	expired := createTestNotification(t, svc, ctx, NotificationInput{StartDate: testNow.AddDate(0, 0, -5), EndDate: testNow.AddDate(0, 0, -1)})
	endsToday := createTestNotification(t, svc, ctx, NotificationInput{StartDate: testNow.AddDate(0, 0, -5), EndDate: testNow})

	count, err := svc.ArchiveExpired(context.Background())
	if err != nil {
		t.Fatalf("ArchiveExpired() error = %v", err)
	}
	if count != 1 {
		t.Errorf("archived %d notifications, want 1", count)
	}

	views, err := svc.ListNotifications(ctx, false)
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	active := map[uint]bool{}
	for _, v := range views {
		active[v.ID] = true
	}
	if active[expired.ID] || !active[endsToday.ID] || !active[n.ID] {
		t.Errorf("active notifications = %v", active)
	}
}
