package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/minibank/counter-service/internal/domain"
)

// Error codes exposed to clients.
const (
	codeValidation        = "VALIDATION_ERROR"
	codeNoCounter         = "NO_COUNTER_AVAILABLE"
	codeNotFound          = "NOT_FOUND"
	codeNotOwner          = "NOT_OWNER"
	codeNotAuthorized     = "NOT_AUTHORIZED_FOR_COUNTER"
	codeAlreadyResolved   = "ALREADY_RESOLVED"
	codeVersionConflict   = "VERSION_CONFLICT"
	codeInsufficientFunds = "INSUFFICIENT_FUNDS"
	codeInternal          = "INTERNAL_ERROR"

	// warningSettlementPending marks a confirmed transaction whose balance
	// effect is queued for reconciliation.
	warningSettlementPending = "SETTLEMENT_PENDING_RECONCILIATION"
)

// mapDomainError converts a domain error to an HTTP status and error code.
func mapDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrUnknownKind):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, codeInsufficientFunds
	case errors.Is(err, domain.ErrNoCounterAvailable):
		return http.StatusServiceUnavailable, codeNoCounter
	case errors.Is(err, domain.ErrTransactionNotFound), errors.Is(err, domain.ErrCounterNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, domain.ErrNotOwner):
		return http.StatusForbidden, codeNotOwner
	case errors.Is(err, domain.ErrNotAuthorizedForCounter):
		return http.StatusForbidden, codeNotAuthorized
	case errors.Is(err, domain.ErrAlreadyResolved):
		return http.StatusConflict, codeAlreadyResolved
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict, codeVersionConflict
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError sends the error envelope. current, when non-nil, is the
// authoritative record attached to conflict responses.
func writeError(w http.ResponseWriter, err error, current *domain.CounterTransaction) {
	status, code := mapDomainError(err)
	body := errorBody{
		Error: errorDetail{
			Code:    code,
			Message: err.Error(),
		},
	}
	if current != nil {
		resp := toTransactionResponse(current)
		body.Transaction = &resp
	}
	writeJSON(w, status, body)
}

func writeValidationError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error: errorDetail{Code: codeValidation, Message: message},
	})
}
