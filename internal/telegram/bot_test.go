package telegram

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"newsroom-ledger/internal/config"
	"newsroom-ledger/internal/db"
	"newsroom-ledger/internal/ledger"
)

const (
	adminTgID    = int64(100)
	employeeTgID = int64(200)
	superTgID    = int64(999)
	adminChatID  = int64(555)
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeSender запоминает всё, что бот отправил бы в Telegram
type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.Chattable {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) lastText(t *testing.T) string {
	t.Helper()
	switch c := f.last(t).(type) {
	case tgbotapi.MessageConfig:
		return c.Text
	case tgbotapi.EditMessageTextConfig:
		return c.Text
	default:
		t.Fatalf("unexpected chattable %T", c)
	}
	return ""
}

func (f *fakeSender) lastAnswer(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if cb, ok := f.requests[i].(tgbotapi.CallbackConfig); ok {
			return cb.Text
		}
	}
	t.Fatal("no callback answer")
	return ""
}

func setupTestService(t *testing.T) (*Service, *fakeSender, *ledger.Service) {
	t.Helper()

	cfg := &config.Config{
		BotToken:     "test_token",
		SuperAdminID: "999",
		AdminChatID:  "555",
	}

	repo, err := db.NewRepository("sqlite", filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	setupTestData(t, repo)

	svc := ledger.NewService(repo, ledger.Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})
	fake := &fakeSender{}
	service := newService(fake, cfg, repo, svc)
	svc.SetNotifier(service)

	return service, fake, svc
}

func setupTestData(t *testing.T, repo *db.Repository) {
	admin, employee, super := adminTgID, employeeTgID, superTgID
	users := []db.User{
		{Username: "admin", DisplayName: "Админ", Role: ledger.RoleAdmin.String(), TelegramID: &admin},
		{Username: "alex", DisplayName: "Alex", Role: ledger.RoleEmployee.String(), TelegramID: &employee},
		{Username: "chief", Role: ledger.RoleEditor.String(), TelegramID: &super},
	}
	for i := range users {
		if err := repo.DB().Create(&users[i]).Error; err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
	}
}

func commandMessage(tgID int64, text string) *tgbotapi.Message {
	cmd := strings.SplitN(text, " ", 2)[0]
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: tgID},
		Chat:      &tgbotapi.Chat{ID: tgID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func TestSessionFor(t *testing.T) {
	service, _, _ := setupTestService(t)

	tests := []struct {
		name       string
		tgID       int64
		wantLinked bool
		wantRole   ledger.Role
		wantName   string
	}{
		{name: "Admin by telegram id", tgID: adminTgID, wantLinked: true, wantRole: ledger.RoleAdmin, wantName: "Админ"},
		{name: "Employee", tgID: employeeTgID, wantLinked: true, wantRole: ledger.RoleEmployee, wantName: "Alex"},
		{name: "Super admin from config overrides role", tgID: superTgID, wantLinked: true, wantRole: ledger.RoleSuper, wantName: "chief"},
		{name: "Stranger", tgID: 42, wantLinked: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, linked := service.sessionFor(tt.tgID)
			if linked != tt.wantLinked {
				t.Fatalf("sessionFor(%d) linked = %v, want %v", tt.tgID, linked, tt.wantLinked)
			}
			if !linked {
				return
			}
			if sess.Role != tt.wantRole || sess.DisplayName != tt.wantName {
				t.Errorf("sessionFor(%d) = %+v, want role %s name %s", tt.tgID, sess, tt.wantRole, tt.wantName)
			}
		})
	}
}

func TestCommandAccess(t *testing.T) {
	service, fake, _ := setupTestService(t)

	tests := []struct {
		name     string
		tgID     int64
		text     string
		contains string
	}{
		{name: "Unknown command", tgID: adminTgID, text: "/buy", contains: "Неизвестная команда"},
		{name: "Stranger asks balance", tgID: 42, text: "/balance", contains: "не привязан"},
		{name: "Stranger learns telegram id", tgID: 42, text: "/start", contains: "42"},
		{name: "Employee cannot pay out", tgID: employeeTgID, text: "/payout Alex", contains: "нет прав"},
		{name: "Employee cannot archive", tgID: employeeTgID, text: "/archive", contains: "нет прав"},
		{name: "Employee sees balance", tgID: employeeTgID, text: "/balance", contains: "Итого: 0.00 ₽"},
		{name: "Bad period", tgID: adminTgID, text: "/balance 01.03.2026", contains: "❌"},
		{name: "Admin archives", tgID: adminTgID, text: "/archive", contains: "Завершившихся рассылок нет"},
		{name: "Whoami", tgID: adminTgID, text: "/whoami", contains: "администратор"},
		{name: "Help for admin", tgID: adminTgID, text: "/help", contains: "/payout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service.handleCommand(context.Background(), commandMessage(tt.tgID, tt.text))
			if got := fake.lastText(t); !strings.Contains(got, tt.contains) {
				t.Errorf("reply to %q = %q, want it to contain %q", tt.text, got, tt.contains)
			}
		})
	}
}

func TestPayoutConfirmation(t *testing.T) {
	service, fake, svc := setupTestService(t)

	adminCtx := ledger.WithSession(context.Background(), ledger.Session{UserID: 1, DisplayName: "Админ", Role: ledger.RoleAdmin})
	alexCtx := ledger.WithSession(context.Background(), ledger.Session{UserID: 2, DisplayName: "Alex", Role: ledger.RoleEmployee})

	price := decimal.NewFromInt(1000)
	n, err := svc.CreateNotification(adminCtx, ledger.NotificationInput{
		Customer:  "ООО Ромашка",
		AdText:    "Скидки",
		Quantity:  5,
		StartDate: testNow,
		EndDate:   testNow.AddDate(0, 0, 3),
		Price:     &price,
	})
	if err != nil {
		t.Fatalf("CreateNotification() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.RecordSend(alexCtx, n.ID, ""); err != nil {
			t.Fatalf("RecordSend() error = %v", err)
		}
	}

	service.handleCommand(context.Background(), commandMessage(adminTgID, "/payout Alex"))
	msg, ok := fake.last(t).(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected confirmation message, got %T", fake.last(t))
	}
	if !strings.Contains(msg.Text, "104.00 ₽") {
		t.Errorf("confirmation = %q, want unpaid amount 104.00 ₽", msg.Text)
	}
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("confirmation has no inline keyboard")
	}
	confirm := *markup.InlineKeyboard[0][0].CallbackData

	callback := func(from int64) *tgbotapi.CallbackQuery {
		return &tgbotapi.CallbackQuery{
			ID:      "cb",
			From:    &tgbotapi.User{ID: from},
			Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: adminTgID}},
			Data:    confirm,
		}
	}

	service.handleCallbackQuery(context.Background(), callback(employeeTgID))
	if got := fake.lastAnswer(t); !strings.Contains(got, "нет прав") {
		t.Errorf("employee confirmation answer = %q", got)
	}

	service.handleCallbackQuery(context.Background(), callback(adminTgID))
	if got := fake.lastText(t); !strings.Contains(got, "Итого: 104.00 ₽") {
		t.Errorf("payout result = %q", got)
	}

	var reported bool
	for _, c := range fake.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ChatID == adminChatID && strings.Contains(m.Text, "Alex") {
			reported = true
		}
	}
	if !reported {
		t.Error("payout was not reported to the admin chat")
	}

	service.handleCallbackQuery(context.Background(), callback(adminTgID))
	if got := fake.lastAnswer(t); !strings.Contains(got, "устарел") {
		t.Errorf("second confirmation answer = %q, want stale token", got)
	}

	service.handleCommand(context.Background(), commandMessage(adminTgID, "/payout Alex"))
	if got := fake.lastText(t); !strings.Contains(got, "нечего выплачивать") {
		t.Errorf("repeat payout = %q", got)
	}
}

func TestPendingPayoutExpiry(t *testing.T) {
	service, _, _ := setupTestService(t)

	now := testNow
	service.now = func() time.Time { return now }

	stale := service.addPending("Alex")
	now = now.Add(pendingTTL / 2)
	fresh := service.addPending("Bob")

	now = now.Add(pendingTTL/2 + time.Minute)
	if _, ok := service.takePending(stale); ok {
		t.Error("expired token was accepted")
	}
	if len(service.pending) != 1 {
		t.Errorf("pending = %d entries, want 1 after pruning", len(service.pending))
	}
	if employee, ok := service.takePending(fresh); !ok || employee != "Bob" {
		t.Errorf("takePending(fresh) = %q, %v, want Bob", employee, ok)
	}
	if len(service.pending) != 0 {
		t.Errorf("pending = %d entries, want empty", len(service.pending))
	}
}

func TestNotify(t *testing.T) {
	service, fake, _ := setupTestService(t)

	if err := service.Notify(context.Background(), "отчёт"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	msg, ok := fake.last(t).(tgbotapi.MessageConfig)
	if !ok || msg.ChatID != adminChatID || msg.Text != "отчёт" {
		t.Errorf("Notify sent %+v", fake.last(t))
	}

	service.cfg = &config.Config{}
	before := len(fake.sent)
	if err := service.Notify(context.Background(), "никуда"); err != nil {
		t.Fatalf("Notify() without chat error = %v", err)
	}
	if len(fake.sent) != before {
		t.Error("Notify without admin chat should not send anything")
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantFrom string
		wantTo   string
		wantErr  bool
	}{
		{name: "All time", args: nil},
		{name: "Open end", args: []string{"2026-03-01"}, wantFrom: "2026-03-01"},
		{name: "Inclusive end", args: []string{"2026-03-01", "2026-03-31"}, wantFrom: "2026-03-01", wantTo: "2026-04-01"},
		{name: "Bad date", args: []string{"31.03.2026"}, wantErr: true},
		{name: "Too many", args: []string{"2026-03-01", "2026-03-02", "2026-03-03"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := parsePeriod(tt.args, time.UTC)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePeriod(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if tt.wantErr {
				if ledger.CodeOf(err) != ledger.CodeValidationFailed {
					t.Errorf("error code = %s", ledger.CodeOf(err))
				}
				return
			}
			if got := formatDate(from); got != tt.wantFrom {
				t.Errorf("from = %q, want %q", got, tt.wantFrom)
			}
			if got := formatDate(to); got != tt.wantTo {
				t.Errorf("to = %q, want %q", got, tt.wantTo)
			}
		})
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

func TestCommandTypes(t *testing.T) {
	tests := []struct {
		cmd          Command
		valid        bool
		needsSession bool
		privileged   bool
	}{
		{cmd: CmdStart, valid: true},
		{cmd: CmdWhoAmI, valid: true},
		{cmd: CmdBalance, valid: true, needsSession: true},
		{cmd: CmdPayout, valid: true, needsSession: true, privileged: true},
		{cmd: CmdArchive, valid: true, needsSession: true, privileged: true},
		{cmd: Command("buy"), valid: false, needsSession: true},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.String(), func(t *testing.T) {
			if got := tt.cmd.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
			if got := tt.cmd.NeedsSession(); got != tt.needsSession {
				t.Errorf("NeedsSession() = %v, want %v", got, tt.needsSession)
			}
			if got := tt.cmd.IsPrivileged(); got != tt.privileged {
				t.Errorf("IsPrivileged() = %v, want %v", got, tt.privileged)
			}
		})
	}

	if got := CallbackPayoutConfirm.WithID("abc"); got != "payout_ok_abc" {
		t.Errorf("WithID() = %q", got)
	}
}
