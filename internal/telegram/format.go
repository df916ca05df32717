package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"newsroom-ledger/internal/ledger"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2) + " ₽"
}

func formatBalance(sheet ledger.BalanceSheet) string {
	var b strings.Builder
	b.WriteString("💰 Баланс")
	switch {
	case sheet.From != nil && sheet.To != nil:
		fmt.Fprintf(&b, " с %s по %s", sheet.From.Format("02.01.2006"), sheet.To.AddDate(0, 0, -1).Format("02.01.2006"))
	case sheet.From != nil:
		fmt.Fprintf(&b, " с %s", sheet.From.Format("02.01.2006"))
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "➕ Доходы: %s\n", money(sheet.Income))
	fmt.Fprintf(&b, "💳 Оплаты клиентов: %s\n", money(sheet.ClientPayments))
	fmt.Fprintf(&b, "➖ Расходы: %s\n", money(sheet.Expense))
	fmt.Fprintf(&b, "\nИтого: %s", money(sheet.Balance))
	return b.String()
}

func formatSummary(sum ledger.EmployeeSummary) string {
	return fmt.Sprintf("👤 %s\n⏳ Не оплачено отправок: %d на %s\n✅ Выплачено: %s (%d выплат)",
		sum.Employee, sum.UnpaidSends, money(sum.UnpaidAmount), money(sum.PaidTotal), sum.PaymentsCount)
}

func formatPayout(r ledger.PayoutReport) string {
	if r.NothingToPay {
		return "ℹ️ " + r.Employee + ": нечего выплачивать"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💸 Выплата: %s\n", r.Employee)
	for _, c := range r.Chunks {
		fmt.Fprintf(&b, "• заказ #%d: %d отправок, %s\n", c.OrderID, c.Entries, money(c.Amount))
	}
	if r.DirectEntries > 0 {
		fmt.Fprintf(&b, "• без заказа: %d отправок\n", r.DirectEntries)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "⚠️ рассылка #%d: %s\n", f.NotificationID, f.Code)
	}
	fmt.Fprintf(&b, "\nИтого: %s", money(r.TotalAmount))
	return b.String()
}

func formatCampaigns(views []ledger.NotificationView) string {
	if len(views) == 0 {
		return "Активных рассылок нет"
	}

	var b strings.Builder
	b.WriteString("📣 Активные рассылки:\n")
	for _, v := range views {
		fmt.Fprintf(&b, "\n🆔 #%d %s\n📅 до %s\n📤 сегодня %d из %d, всего %d из %d\n",
			v.ID, v.Customer, time.Time(v.EndDate).Format("02.01.2006"), v.SentToday, v.Quantity, v.SentCount, v.TotalLimit)
	}
	return b.String()
}

func formatArchived(count int) string {
	if count == 0 {
		return "Завершившихся рассылок нет"
	}
	return fmt.Sprintf("🗄 Архивировано рассылок: %d", count)
}
