package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"newsroom-ledger/internal/export"
	"newsroom-ledger/internal/ledger"
)

// Даты в запросах - строки YYYY-MM-DD

type orderRequest struct {
	Client      string          `json:"client"`
	ClientName  string          `json:"clientName"`
	Description string          `json:"description"`
	Service     string          `json:"service"`
	StartDate   string          `json:"startDate"`
	EndDate     string          `json:"endDate"`
	Employee    string          `json:"employee"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

type orderPatchRequest struct {
	Client      *string          `json:"client"`
	ClientName  *string          `json:"clientName"`
	Description *string          `json:"description"`
	Service     *string          `json:"service"`
	StartDate   *string          `json:"startDate"`
	EndDate     *string          `json:"endDate"`
	Employee    *string          `json:"employee"`
	TotalPrice  *decimal.Decimal `json:"totalPrice"`
	IsPaid      *bool            `json:"isPaid"`
}

type paymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   string          `json:"paymentDate"`
	PaymentMethod string          `json:"paymentMethod"`
	ReceivedBy    string          `json:"receivedBy"`
	ReceiptNumber string          `json:"receiptNumber"`
	Notes         string          `json:"notes"`
}

type employeePaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   string          `json:"paymentDate"`
	PaymentMethod string          `json:"paymentMethod"`
	Recipient     string          `json:"recipient"`
	Notes         string          `json:"notes"`
}

type transactionRequest struct {
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
}

type notificationRequest struct {
	Customer     string           `json:"customer"`
	AdText       string           `json:"adText"`
	Quantity     int              `json:"quantity"`
	StartDate    string           `json:"startDate"`
	EndDate      string           `json:"endDate"`
	StartTime    string           `json:"startTime"`
	EndTime      string           `json:"endTime"`
	EmployeeRate *decimal.Decimal `json:"employeeRate"`
	Price        *decimal.Decimal `json:"price"`
	Client       string           `json:"client"`
	Employee     string           `json:"employee"`
}

type notificationPatchRequest struct {
	Customer          *string          `json:"customer"`
	AdText            *string          `json:"adText"`
	Quantity          *int             `json:"quantity"`
	StartDate         *string          `json:"startDate"`
	EndDate           *string          `json:"endDate"`
	StartTime         *string          `json:"startTime"`
	EndTime           *string          `json:"endTime"`
	EmployeeRate      *decimal.Decimal `json:"employeeRate"`
	ClearEmployeeRate bool             `json:"clearEmployeeRate"`
}

type sendRequest struct {
	UserName string `json:"userName"`
}

type toggleHistoryRequest struct {
	// Timestamp - время отправки в миллисекундах Unix
	Timestamp int64 `json:"timestamp"`
}

type payoutRequest struct {
	Employee string `json:"employee"`
}

func pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, ledger.ErrValidationf("bad id %q", chi.URLParam(r, "id"))
	}
	return uint(id), nil
}

// optionalDate: пустая строка - нет даты
func (s *Server) optionalDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := ledger.ParseDate(v)
	if err != nil {
		return nil, err
	}
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
	return &t, nil
}

func (s *Server) requiredDate(v, field string) (time.Time, error) {
	t, err := s.optionalDate(v)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, ledger.ErrValidationf("%s is required", field)
	}
	return *t, nil
}

func (s *Server) patchDate(v *string) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	return s.optionalDate(*v)
}

// Orders

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decode(r, &req); err != nil {
		respond(w, nil, err)
		return
	}
	start, err := s.optionalDate(req.StartDate)
	if err != nil {
		respond(w, nil, err)
		return
	}
	end, err := s.optionalDate(req.EndDate)
	if err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.CreateOrder(r.Context(), ledger.OrderInput{
		Client:      req.Client,
		ClientName:  req.ClientName,
		Description: req.Description,
		Service:     req.Service,
		StartDate:   start,
		EndDate:     end,
		Employee:    req.Employee,
		TotalPrice:  req.TotalPrice,
	})
	respond(w, res, err)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.svc.ListOrders(r.Context(), ledger.OrderFilter{
		Client:     q.Get("client"),
		Employee:   q.Get("employee"),
		OnlyUnpaid: q.Get("unpaid") == "true",
	})
	respond(w, res, err)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.GetOrder(r.Context(), id)
	respond(w, res, err)
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	var req orderPatchRequest
	if err := decode(r, &req); err != nil {
		respond(w, nil, err)
		return
	}
	patch := ledger.OrderPatch{
		Client:      req.Client,
		ClientName:  req.ClientName,
		Description: req.Description,
		Service:     req.Service,
		Employee:    req.Employee,
		TotalPrice:  req.TotalPrice,
		IsPaid:      req.IsPaid,
	}
	if patch.StartDate, err = s.patchDate(req.StartDate); err != nil {
		respond(w, nil, err)
		return
	}
	if patch.EndDate, err = s.patchDate(req.EndDate); err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.UpdateOrder(r.Context(), id, patch)
	respond(w, res, err)
}

func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.DeleteOrder(r.Context(), id)
	respond(w, res, err)
}

// Payments

func (s *Server) addPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	var req paymentRequest
	if err := decode(r, &req); err != nil {
		respond(w, nil, err)
		return
	}
	date, err := s.optionalDate(req.PaymentDate)
	if err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.AddPayment(r.Context(), id, ledger.PaymentInput{
		Amount:        req.Amount,
		PaymentDate:   date,
		PaymentMethod: req.PaymentMethod,
		ReceivedBy:    req.ReceivedBy,
		ReceiptNumber: req.ReceiptNumber,
		Notes:         req.Notes,
	})
	respond(w, res, err)
}

func (s *Server) deletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	respond(w, nil, s.svc.DeletePayment(r.Context(), id))
}

func (s *Server) addEmployeePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	var req employeePaymentRequest
	if err := decode(r, &req); err != nil {
		respond(w, nil, err)
		return
	}
	date, err := s.optionalDate(req.PaymentDate)
	if err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.AddEmployeePayment(r.Context(), id, ledger.EmployeePaymentInput{
		Amount:        req.Amount,
		PaymentDate:   date,
		PaymentMethod: req.PaymentMethod,
		Recipient:     req.Recipient,
		Notes:         req.Notes,
	})
	respond(w, res, err)
}

func (s *Server) deleteEmployeePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.DeleteEmployeePayment(r.Context(), id)
	respond(w, res, err)
}

// Transactions

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decode(r, &req); err != nil {
		respond(w, nil, err)
		return
	}
	date, err := s.optionalDate(req.Date)
	if err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.CreateTransaction(r.Context(), ledger.TransactionInput{
		Type:        req.Type,
		Amount:      req.Amount,
		Category:    req.Category,
		Date:        date,
		Description: req.Description,
	})
	respond(w, res, err)
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	respond(w, nil, s.svc.DeleteTransaction(r.Context(), id))
}

// period читает from/to (включительно) из query
func (s *Server) period(r *http.Request) (from, to *time.Time, err error) {
	q := r.URL.Query()
	if from, err = s.optionalDate(q.Get("from")); err != nil {
		return nil, nil, err
	}
	if to, err = s.optionalDate(q.Get("to")); err != nil {
		return nil, nil, err
	}
	if to != nil {
		next := to.AddDate(0, 0, 1)
		to = &next
	}
	return from, to, nil
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.period(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	q := r.URL.Query()
	f := ledger.TransactionFilter{From: from, To: to, Type: q.Get("type"), Category: q.Get("category")}
	if v := q.Get("orderId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respond(w, nil, ledger.ErrValidationf("bad orderId %q", v))
			return
		}
		orderID := uint(id)
		f.OrderID = &orderID
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			respond(w, nil, ledger.ErrValidationf("bad limit %q", v))
			return
		}
	}
	res, err := s.svc.ListTransactions(r.Context(), f)
	respond(w, res, err)
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.period(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.Balance(r.Context(), from, to)
	respond(w, res, err)
}

// Employees

func (s *Server) employeeSummary(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.EmployeeSummary(r.Context(), r.URL.Query().Get("name"))
	respond(w, res, err)
}

func (s *Server) payAllForEmployee(w http.ResponseWriter, r *http.Request) {
	var req payoutRequest
	if err := decode(r, &req); err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.PayAllForEmployee(r.Context(), req.Employee)
	respond(w, res, err)
}

// Notifications

func (s *Server) createNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := decode(r, &req); err != nil {
		respond(w, nil, err)
		return
	}
	start, err := s.requiredDate(req.StartDate, "startDate")
	if err != nil {
		respond(w, nil, err)
		return
	}
	end, err := s.requiredDate(req.EndDate, "endDate")
	if err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.CreateNotification(r.Context(), ledger.NotificationInput{
		Customer:     req.Customer,
		AdText:       req.AdText,
		Quantity:     req.Quantity,
		StartDate:    start,
		EndDate:      end,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		EmployeeRate: req.EmployeeRate,
		Price:        req.Price,
		Client:       req.Client,
		Employee:     req.Employee,
	})
	respond(w, res, err)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.ListNotifications(r.Context(), r.URL.Query().Get("archived") == "true")
	respond(w, res, err)
}

func (s *Server) getNotification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.GetNotification(r.Context(), id)
	respond(w, res, err)
}

func (s *Server) updateNotification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	var req notificationPatchRequest
	if err := decode(r, &req); err != nil {
		respond(w, nil, err)
		return
	}
	patch := ledger.NotificationPatch{
		Customer:          req.Customer,
		AdText:            req.AdText,
		Quantity:          req.Quantity,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		EmployeeRate:      req.EmployeeRate,
		ClearEmployeeRate: req.ClearEmployeeRate,
	}
	if patch.StartDate, err = s.patchDate(req.StartDate); err != nil {
		respond(w, nil, err)
		return
	}
	if patch.EndDate, err = s.patchDate(req.EndDate); err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.UpdateNotification(r.Context(), id, patch)
	respond(w, res, err)
}

func (s *Server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.DeleteNotification(r.Context(), id)
	respond(w, res, err)
}

func (s *Server) recordSend(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	var req sendRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			respond(w, nil, err)
			return
		}
	}
	res, err := s.svc.RecordSend(r.Context(), id, req.UserName)
	respond(w, res, err)
}

func (s *Server) toggleHistoryPayout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	var req toggleHistoryRequest
	if err := decode(r, &req); err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.ToggleSingleHistoryPayout(r.Context(), id, time.UnixMilli(req.Timestamp))
	respond(w, res, err)
}

func (s *Server) toggleArchive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respond(w, nil, err)
		return
	}
	res, err := s.svc.ToggleArchive(r.Context(), id)
	respond(w, res, err)
}

// exportLedger отдаёт книгу Excel; книга собирается в памяти, чтобы ошибка ушла конвертом
func (s *Server) exportLedger(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.period(r)
	if err != nil {
		respond(w, nil, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteLedger(r.Context(), s.svc, export.Period{From: from, To: to}, &buf); err != nil {
		respond(w, nil, err)
		return
	}

	name := fmt.Sprintf("ledger_%s.xlsx", time.Now().In(s.loc).Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Write(buf.Bytes())
}
