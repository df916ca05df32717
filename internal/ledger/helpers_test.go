package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"newsroom-ledger/internal/db"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func setupTestService(t *testing.T) (*Service, *db.Repository, *testClock) {
	t.Helper()

	repo, err := db.NewRepository("sqlite", filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	setupTestData(t, repo)

	clock := &testClock{now: testNow}
	service := NewService(repo, Options{Location: time.UTC, Now: clock.Now})
	return service, repo, clock
}

func setupTestData(t *testing.T, repo *db.Repository) {
	t.Helper()

	users := []db.User{
		{Username: "chief", DisplayName: "Главред", Role: RoleSuper.String()},
		{Username: "admin", DisplayName: "Админ", Role: RoleAdmin.String()},
		{Username: "ira", DisplayName: "Ира", Role: RoleEditor.String()},
		{Username: "alex", DisplayName: "Alex", Role: RoleEmployee.String()},
		{Username: "maria", Role: RoleEmployee.String()},
		{Username: "bob", DisplayName: "Bob", Role: RoleEmployee.String()},
	}
	for i := range users {
		if err := repo.DB().Create(&users[i]).Error; err != nil {
			t.Fatalf("failed to create user %s: %v", users[i].Username, err)
		}
	}
}

func testUser(t *testing.T, repo *db.Repository, username string) db.User {
	t.Helper()
	var user db.User
	if err := repo.DB().Where("username = ?", username).First(&user).Error; err != nil {
		t.Fatalf("user %s not found: %v", username, err)
	}
	return user
}

// asUser - контекст с сессией пользователя из тестовых данных
func asUser(t *testing.T, repo *db.Repository, username string) context.Context {
	t.Helper()
	user := testUser(t, repo, username)
	return WithSession(context.Background(), Session{
		UserID:      user.ID,
		DisplayName: user.Name(),
		Role:        Role(user.Role),
	})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func boolPtr(v bool) *bool {
	return &v
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error with code %s, got %T: %v", code, err, err)
	}
	if e.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, e.Code, e.Details)
	}
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

func transactionsOf(t *testing.T, repo *db.Repository, orderID uint) []db.Transaction {
	t.Helper()
	var list []db.Transaction
	if err := repo.DB().Where("order_id = ?", orderID).Order("id").Find(&list).Error; err != nil {
		t.Fatalf("failed to load transactions: %v", err)
	}
	return list
}

func createTestOrder(t *testing.T, svc *Service, ctx context.Context, price string) db.Order {
	t.Helper()
	order, err := svc.CreateOrder(ctx, OrderInput{
		Client:     "+79001234567",
		ClientName: "ООО Ромашка",
		Service:    "Реклама",
		Employee:   "Alex",
		TotalPrice: dec(price),
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	return order
}

func createTestNotification(t *testing.T, svc *Service, ctx context.Context, in NotificationInput) db.Notification {
	t.Helper()
	if in.Customer == "" {
		in.Customer = "ООО Ромашка"
	}
	if in.AdText == "" {
		in.AdText = "Скидки на всё"
	}
	if in.Quantity == 0 {
		in.Quantity = 5
	}
	if in.StartDate.IsZero() {
		in.StartDate = testNow
	}
	if in.EndDate.IsZero() {
		in.EndDate = testNow.AddDate(0, 0, 10)
	}
	n, err := svc.CreateNotification(ctx, in)
	if err != nil {
		t.Fatalf("failed to create notification: %v", err)
	}
	return n
}

func recordSends(t *testing.T, svc *Service, ctx context.Context, id uint, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		if _, err := svc.RecordSend(ctx, id, ""); err != nil {
			t.Fatalf("send %d to notification %d failed: %v", i+1, id, err)
		}
	}
}
