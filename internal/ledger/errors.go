package ledger

import (
	"errors"
	"fmt"
)

// Error коды для различных типов ошибок
const (
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeDailyLimitReached = "DAILY_LIMIT_REACHED"
	CodeLimitExceeded     = "LIMIT_EXCEEDED"
	CodeNothingToPay      = "NOTHING_TO_PAY"
	CodeStorageFailure    = "STORAGE_FAILURE"
)

// Error представляет ошибку операции с кодом и сообщением для пользователя
type Error struct {
	Code        string
	Message     string
	UserMessage string
	Details     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
}

// Is сравнивает ошибки по коду, поэтому errors.Is(err, ErrForbidden) работает для любой детализации
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError создает новую ошибку операции
func NewError(code, message, userMessage, details string) *Error {
	return &Error{
		Code:        code,
		Message:     message,
		UserMessage: userMessage,
		Details:     details,
	}
}

// Образцы для errors.Is
var (
	ErrUnauthorized      = &Error{Code: CodeUnauthorized}
	ErrForbidden         = &Error{Code: CodeForbidden}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrValidationFailed  = &Error{Code: CodeValidationFailed}
	ErrDailyLimitReached = &Error{Code: CodeDailyLimitReached}
	ErrLimitExceeded     = &Error{Code: CodeLimitExceeded}
	ErrNothingToPay      = &Error{Code: CodeNothingToPay}
	ErrStorageFailure    = &Error{Code: CodeStorageFailure}
)

// CodeOf возвращает код ошибки; nil даёт пустую строку, чужие ошибки - STORAGE_FAILURE
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStorageFailure
}

// Вспомогательные функции для создания типичных ошибок

func ErrUnauthorizedf(details string, args ...interface{}) *Error {
	return NewError(
		CodeUnauthorized,
		"Session required",
		"Войдите в систему, чтобы продолжить.",
		fmt.Sprintf(details, args...),
	)
}

func ErrForbiddenf(details string, args ...interface{}) *Error {
	return NewError(
		CodeForbidden,
		"Permission denied",
		"У вас нет прав для выполнения этой операции.",
		fmt.Sprintf(details, args...),
	)
}

func ErrNotFoundf(details string, args ...interface{}) *Error {
	return NewError(
		CodeNotFound,
		"Entity not found",
		"Запись не найдена.",
		fmt.Sprintf(details, args...),
	)
}

func ErrValidationf(details string, args ...interface{}) *Error {
	return NewError(
		CodeValidationFailed,
		"Invalid input provided",
		"Неверный формат данных. Проверьте правильность ввода.",
		fmt.Sprintf(details, args...),
	)
}

func ErrDailyLimitf(details string, args ...interface{}) *Error {
	return NewError(
		CodeDailyLimitReached,
		"Daily send limit reached",
		"Дневной лимит рассылок исчерпан.",
		fmt.Sprintf(details, args...),
	)
}

func ErrLimitExceededf(details string, args ...interface{}) *Error {
	return NewError(
		CodeLimitExceeded,
		"Employee payout ceiling exceeded",
		"Сумма выплат сотруднику превышает 85% стоимости заказа.",
		fmt.Sprintf(details, args...),
	)
}

func ErrNothingToPayf(details string, args ...interface{}) *Error {
	return NewError(
		CodeNothingToPay,
		"Nothing to pay",
		"Нет неоплаченных рассылок для этого сотрудника.",
		fmt.Sprintf(details, args...),
	)
}

// ErrStoragef не раскрывает детали хранилища пользователю: они остаются в логах
func ErrStoragef(details string, args ...interface{}) *Error {
	return NewError(
		CodeStorageFailure,
		"Storage operation failed",
		"Ошибка базы данных. Попробуйте позже.",
		fmt.Sprintf(details, args...),
	)
}
