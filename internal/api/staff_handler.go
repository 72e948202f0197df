package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/minibank/counter-service/internal/domain"
)

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	if _, err := actorID(r, headerStaffID); err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Error: errorDetail{Code: codeValidation, Message: err.Error()},
		})
		return
	}

	counterID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeValidationError(w, "invalid counter id")
		return
	}

	txs, err := s.engine.ListQueue(r.Context(), counterID)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	// Polled continuously; never cache.
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, toListResponse(txs))
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	staffID, err := actorID(r, headerStaffID)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Error: errorDetail{Code: codeValidation, Message: err.Error()},
		})
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeValidationError(w, "invalid transaction id")
		return
	}

	tx, err := s.engine.Confirm(r.Context(), id, staffID)
	if domain.IsVersionConflict(err) {
		// Lost a race; one bounded retry against the refreshed record.
		tx, err = s.engine.Confirm(r.Context(), id, staffID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrSettlementInconsistency) {
			// The transition committed; surface the record with a distinct
			// warning instead of a generic failure. Reconciliation applies
			// the balance effect out-of-band.
			resp := toTransactionResponse(tx)
			resp.Warning = warningSettlementPending
			writeJSON(w, http.StatusOK, resp)
			return
		}
		writeError(w, err, tx)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}
