package ledger

import "errors"

// Result - ответ операции в форме {success, data?, error?}
type Result struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Notice  string       `json:"notice,omitempty"`
	Error   *ResultError `json:"error,omitempty"`
}

type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope превращает результат операции в Result; ошибки не выходят за границу
func Envelope(data interface{}, err error) Result {
	if err == nil {
		res := Result{Success: true, Data: data}
		if r, ok := data.(PayoutReport); ok && r.NothingToPay {
			res.Notice = CodeNothingToPay
		}
		return res
	}

	var e *Error
	if !errors.As(err, &e) {
		e = ErrStoragef("%v", err)
	}
	if e.Code == CodeNothingToPay {
		return Result{Success: true, Data: data, Notice: CodeNothingToPay}
	}
	return Result{
		Success: false,
		Error: &ResultError{
			Code:    e.Code,
			Message: e.UserMessage,
		},
	}
}
