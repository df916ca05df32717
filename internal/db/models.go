package db

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Типы транзакций
const (
	TxIncome  = "INCOME"
	TxExpense = "EXPENSE"
)

// Зарезервированные категории транзакций
const (
	CategorySalary         = "Зарплата"
	CategoryInvoicePaid    = "Счет оплачен"
	CategoryInvoiceCancel  = "Отмена счета"
	CategoryOrderDeleted   = "Удаление заказа"
	CategorySalaryReversed = "Отмена зарплаты"
)

// ServiceMailing - услуга заказа, создаваемого вместе с рассылкой
const ServiceMailing = "Рассылки"

// User - сотрудники портала
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"uniqueIndex;size:100;not null" json:"username"`
	DisplayName string    `gorm:"size:200" json:"displayName"`
	Role        string    `gorm:"size:20;not null" json:"role"`
	TelegramID  *int64    `gorm:"uniqueIndex" json:"telegramId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Name возвращает отображаемое имя, а при его отсутствии - логин
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Order - заказ клиента
type Order struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	Client             string          `gorm:"size:50;not null;index" json:"client"`
	ClientName         string          `gorm:"size:200" json:"clientName"`
	Description        string          `gorm:"type:text" json:"description"`
	Service            string          `gorm:"size:100" json:"service"`
	StartDate          *datatypes.Date `json:"startDate,omitempty"`
	EndDate            *datatypes.Date `json:"endDate,omitempty"`
	Employee           string          `gorm:"size:200;index" json:"employee"`
	EmployeeID         *uint           `gorm:"index" json:"employeeId,omitempty"`
	TotalPrice         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"totalPrice"`
	EmployeePaidAmount decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"employeePaidAmount"`
	IsPaid             bool            `gorm:"not null" json:"isPaid"`
	CreatedBy          string          `gorm:"size:200" json:"createdBy"`
	CreatedByID        *uint           `gorm:"index" json:"createdById,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`

	// Relations
	Payments         []Payment         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"payments,omitempty"`
	EmployeePayments []EmployeePayment `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"employeePayments,omitempty"`
}

// Payment - поступление денег от клиента по заказу
type Payment struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	OrderID       uint            `gorm:"not null;index" json:"orderId"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	PaymentDate   time.Time       `gorm:"not null;index" json:"paymentDate"`
	PaymentMethod string          `gorm:"size:50" json:"paymentMethod"`
	ReceivedBy    string          `gorm:"size:200" json:"receivedBy"`
	ReceiptNumber string          `gorm:"size:100" json:"receiptNumber,omitempty"`
	Notes         string          `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// EmployeePayment - выплата сотруднику за работу по заказу
type EmployeePayment struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	OrderID       uint            `gorm:"not null;index" json:"orderId"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	PaymentDate   time.Time       `gorm:"not null;index" json:"paymentDate"`
	PaymentMethod string          `gorm:"size:50" json:"paymentMethod"`
	ProcessedBy   string          `gorm:"size:200" json:"processedBy"`
	Recipient     string          `gorm:"size:200;index" json:"recipient,omitempty"`
	RecipientID   *uint           `gorm:"index" json:"recipientId,omitempty"`
	Notes         string          `gorm:"type:text" json:"notes,omitempty"`
	BatchID       string          `gorm:"size:36;index" json:"batchId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Transaction - строка журнала доходов и расходов
type Transaction struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Type              string          `gorm:"size:10;not null;index;check:type IN ('INCOME','EXPENSE')" json:"type"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Category          string          `gorm:"size:100;not null;index" json:"category"`
	Date              time.Time       `gorm:"not null;index" json:"date"`
	Description       string          `gorm:"type:text" json:"description"`
	CreatedBy         string          `gorm:"size:200" json:"createdBy"`
	CreatedByID       *uint           `json:"createdById,omitempty"`
	OrderID           *uint           `gorm:"index" json:"orderId,omitempty"`
	EmployeePaymentID *uint           `gorm:"index" json:"employeePaymentId,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// Notification - рекламная рассылка
type Notification struct {
	ID           uint                `gorm:"primaryKey" json:"id"`
	Customer     string              `gorm:"size:200;not null" json:"customer"`
	AdText       string              `gorm:"type:text;not null" json:"adText"`
	Quantity     int                 `gorm:"not null" json:"quantity"`
	StartDate    datatypes.Date      `gorm:"not null" json:"startDate"`
	EndDate      datatypes.Date      `gorm:"not null;index" json:"endDate"`
	StartTime    string              `gorm:"size:5" json:"startTime"`
	EndTime      string              `gorm:"size:5" json:"endTime"`
	Author       string              `gorm:"size:200" json:"author"`
	AuthorID     *uint               `gorm:"index" json:"authorId,omitempty"`
	SentCount    int                 `gorm:"not null" json:"sentCount"`
	LastSentTime *time.Time          `json:"lastSentTime,omitempty"`
	EmployeeRate decimal.NullDecimal `gorm:"type:decimal(18,2)" json:"employeeRate"`
	IsArchived   bool                `gorm:"not null;index" json:"isArchived"`
	OrderID      *uint               `gorm:"index" json:"orderId,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`

	// Relations
	History []NotificationSend `gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE" json:"history"`
}

// NotificationSend - одна отправка рассылки; журнал неоплаченной работы
type NotificationSend struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	NotificationID    uint      `gorm:"not null;uniqueIndex:idx_send_seq,priority:1" json:"-"`
	Seq               int       `gorm:"not null;uniqueIndex:idx_send_seq,priority:2" json:"seq"`
	UserID            *uint     `gorm:"index" json:"userId,omitempty"`
	UserName          string    `gorm:"size:200;index" json:"userName"`
	SentAt            time.Time `gorm:"not null;index" json:"timestamp"`
	IsPaid            bool      `gorm:"not null" json:"isPaid"`
	EmployeePaymentID *uint     `gorm:"index" json:"employeePaymentId,omitempty"`
}
