package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"newsroom-ledger/internal/db"
	"newsroom-ledger/internal/ledger"
)

const (
	SheetJournal = "Журнал"
	SheetOrders  = "Заказы"
	SheetSummary = "Итоги"
)

// Source - операции учёта, из которых собирается выгрузка
type Source interface {
	ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]db.Transaction, error)
	ListOrders(ctx context.Context, f ledger.OrderFilter) ([]db.Order, error)
	Balance(ctx context.Context, from, to *time.Time) (ledger.BalanceSheet, error)
}

// Period - полуоткрытый интервал [From, To); nil - без границы
type Period struct {
	From *time.Time
	To   *time.Time
}

// WriteLedger пишет книгу Excel: журнал проводок, заказы и итоги за период
func WriteLedger(ctx context.Context, src Source, p Period, w io.Writer) error {
	txs, err := src.ListTransactions(ctx, ledger.TransactionFilter{From: p.From, To: p.To})
	if err != nil {
		return err
	}
	orders, err := src.ListOrders(ctx, ledger.OrderFilter{})
	if err != nil {
		return err
	}
	sheet, err := src.Balance(ctx, p.From, p.To)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeJournal(f, bold, txs); err != nil {
		return err
	}
	if err := writeOrders(f, bold, orders); err != nil {
		return err
	}
	if err := writeSummary(f, bold, p, sheet); err != nil {
		return err
	}

	// NewFile создает Sheet1, он не нужен
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(SheetJournal); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func newSheet(f *excelize.File, name string, style int, headers []string, widths []float64) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(name, cell, header); err != nil {
			return err
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		if i < len(widths) {
			f.SetColWidth(name, col, col, widths[i])
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	return f.SetCellStyle(name, "A1", last, style)
}

func writeJournal(f *excelize.File, style int, txs []db.Transaction) error {
	headers := []string{"Дата", "Тип", "Категория", "Сумма", "Описание", "Заказ", "Автор"}
	if err := newSheet(f, SheetJournal, style, headers, []float64{18, 10, 22, 14, 40, 10, 20}); err != nil {
		return err
	}

	for i, t := range txs {
		row := []interface{}{
			t.Date.Format("02.01.2006 15:04"),
			t.Type,
			t.Category,
			t.Amount.InexactFloat64(),
			t.Description,
			nil,
			t.CreatedBy,
		}
		if t.OrderID != nil {
			row[5] = *t.OrderID
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetJournal, cell, &row); err != nil {
			return fmt.Errorf("write journal row %d: %w", i+2, err)
		}
	}
	return nil
}

func writeOrders(f *excelize.File, style int, orders []db.Order) error {
	headers := []string{"ID Заказа", "Клиент", "Услуга", "Сотрудник", "Стоимость", "Выплачено сотрудникам", "Счет оплачен", "Создан"}
	if err := newSheet(f, SheetOrders, style, headers, []float64{10, 20, 18, 20, 14, 20, 12, 18}); err != nil {
		return err
	}

	for i, o := range orders {
		paid := "нет"
		if o.IsPaid {
			paid = "да"
		}
		row := []interface{}{
			o.ID,
			o.Client,
			o.Service,
			o.Employee,
			o.TotalPrice.InexactFloat64(),
			o.EmployeePaidAmount.InexactFloat64(),
			paid,
			o.CreatedAt.Format("02.01.2006"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetOrders, cell, &row); err != nil {
			return fmt.Errorf("write order row %d: %w", i+2, err)
		}
	}
	return nil
}

func writeSummary(f *excelize.File, style int, p Period, sheet ledger.BalanceSheet) error {
	if err := newSheet(f, SheetSummary, style, []string{"Показатель", "Значение"}, []float64{24, 16}); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Период с", periodBound(p.From, 0)},
		{"Период по", periodBound(p.To, -1)},
		{"Доходы", sheet.Income.InexactFloat64()},
		{"Оплаты клиентов", sheet.ClientPayments.InexactFloat64()},
		{"Расходы", sheet.Expense.InexactFloat64()},
		{"Баланс", sheet.Balance.InexactFloat64()},
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetSummary, cell, &rows[i]); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+2, err)
		}
	}
	return nil
}

// periodBound: правая граница хранится исключающей, в отчёте показываем последний день
func periodBound(t *time.Time, shiftDays int) string {
	if t == nil {
		return "-"
	}
	return t.AddDate(0, 0, shiftDays).Format("02.01.2006")
}
