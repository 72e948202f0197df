package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/minibank/counter-service/internal/domain"
)

// Actor credentials are explicit per-request headers, never ambient state.
// The API gateway in front of this service resolves them from the session
// token before proxying.
const (
	headerCustomerID = "X-Customer-ID"
	headerStaffID    = "X-Staff-ID"
)

// actorID extracts and validates an actor credential header.
func actorID(r *http.Request, header string) (uuid.UUID, error) {
	value := r.Header.Get(header)
	if value == "" {
		return uuid.Nil, errors.New(header + " header is required")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, errors.New("invalid " + header + " header")
	}
	return id, nil
}

// pathID extracts the {id} path variable.
func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

type createParams struct {
	customerID uuid.UUID
	amount     decimal.Decimal
	counterID  *uuid.UUID
}

// parseCreateRequest validates the shared parts of deposit/withdraw creation.
func (s *Server) parseCreateRequest(w http.ResponseWriter, r *http.Request) (createParams, bool) {
	var params createParams

	customerID, err := actorID(r, headerCustomerID)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Error: errorDetail{Code: codeValidation, Message: err.Error()},
		})
		return params, false
	}

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "failed to parse request body")
		return params, false
	}
	if req.Amount == "" {
		writeValidationError(w, "amount is required")
		return params, false
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeValidationError(w, "invalid amount: must be a decimal string")
		return params, false
	}

	if req.CounterID != nil {
		counterID, err := uuid.Parse(*req.CounterID)
		if err != nil {
			writeValidationError(w, "invalid counterId")
			return params, false
		}
		params.counterID = &counterID
	}

	params.customerID = customerID
	params.amount = amount
	return params, true
}

func (s *Server) handleCreateDeposit(w http.ResponseWriter, r *http.Request) {
	params, ok := s.parseCreateRequest(w, r)
	if !ok {
		return
	}

	tx, err := s.engine.CreateDeposit(r.Context(), params.customerID, params.amount, params.counterID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleCreateWithdraw(w http.ResponseWriter, r *http.Request) {
	params, ok := s.parseCreateRequest(w, r)
	if !ok {
		return
	}

	tx, err := s.engine.CreateWithdraw(r.Context(), params.customerID, params.amount, params.counterID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	customerID, err := actorID(r, headerCustomerID)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Error: errorDetail{Code: codeValidation, Message: err.Error()},
		})
		return
	}

	txs, err := s.engine.ListForCustomer(r.Context(), customerID)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	// Polled continuously; never cache.
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, toListResponse(txs))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	customerID, err := actorID(r, headerCustomerID)
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

	tx, err := s.engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if tx.CustomerID != customerID {
		writeError(w, domain.ErrNotOwner, nil)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	customerID, err := actorID(r, headerCustomerID)
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

	tx, err := s.engine.Cancel(r.Context(), id, customerID)
	if domain.IsVersionConflict(err) {
		// Lost a race; one bounded retry against the refreshed record.
		tx, err = s.engine.Cancel(r.Context(), id, customerID)
	}
	if err != nil {
		writeError(w, err, tx)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}
