package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/centralbank/bankcore/backend/pkg/bankcore"
)

// ErrorResponse is the JSON shape of every error an HTTP handler in this
// repo returns.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// WriteError writes a standardized JSON error response with an
// application-chosen code, e.g. for request validation failures that never
// reach the banking core.
func WriteError(w http.ResponseWriter, statusCode int, code, message, traceID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: message,
		TraceID: traceID,
	})
}

// WriteSuccess writes a standardized JSON success response.
func WriteSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteBankingError translates an error returned by the banking core into
// an HTTP response, mapping the closed bankcore.Error taxonomy onto status
// codes and generating the trace ID that both the response and the server
// log line carry, so an operator can correlate one with the other.
func WriteBankingError(w http.ResponseWriter, err error) {
	traceID := uuid.NewString()

	var bankErr *bankcore.Error
	if errors.As(err, &bankErr) {
		status := http.StatusInternalServerError
		switch bankErr.Code {
		case bankcore.ErrNonExistingAccount.Code, bankcore.ErrNonExistingTransaction.Code:
			status = http.StatusNotFound
		case bankcore.ErrInsufficientBalance.Code, bankcore.ErrClosedAccount.Code:
			status = http.StatusConflict
		}
		log.Printf("api: banking error [trace %s]: %v", traceID, err)
		WriteError(w, status, strconv.Itoa(bankErr.Code), bankErr.Message, traceID)
		return
	}

	log.Printf("api: unhandled error [trace %s]: %v", traceID, err)
	WriteError(w, http.StatusInternalServerError, "0", "a database error occurred", traceID)
}
