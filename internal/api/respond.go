package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"newsroom-ledger/internal/ledger"
)

var statusByCode = map[string]int{
	ledger.CodeUnauthorized:      http.StatusUnauthorized,
	ledger.CodeForbidden:         http.StatusForbidden,
	ledger.CodeNotFound:          http.StatusNotFound,
	ledger.CodeValidationFailed:  http.StatusUnprocessableEntity,
	ledger.CodeDailyLimitReached: http.StatusConflict,
	ledger.CodeLimitExceeded:     http.StatusConflict,
	ledger.CodeStorageFailure:    http.StatusInternalServerError,
}

// respond пишет результат операции в конверте {success, data, error}
func respond(w http.ResponseWriter, data interface{}, err error) {
	res := ledger.Envelope(data, err)
	status := http.StatusOK
	if res.Error != nil {
		if s, ok := statusByCode[res.Error.Code]; ok {
			status = s
		} else {
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ledger.ErrValidationf("bad request body: %v", err)
	}
	return nil
}
