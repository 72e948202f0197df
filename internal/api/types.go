package api

import (
	"time"

	"github.com/minibank/counter-service/internal/domain"
)

// createTransactionRequest is the body of deposit/withdraw creation calls.
// CounterID is optional; when absent the assignment resolver picks one.
type createTransactionRequest struct {
	Amount    string  `json:"amount"`
	CounterID *string `json:"counterId,omitempty"`
}

// transactionResponse is the wire form of a transaction. Every mutating
// response carries the full authoritative record so clients never guess
// state from a bare status code.
type transactionResponse struct {
	ID              string  `json:"id"`
	Code            string  `json:"code"`
	Kind            string  `json:"kind"`
	CustomerID      string  `json:"customerId"`
	Amount          string  `json:"amount"`
	CounterID       string  `json:"counterId"`
	AssignedStaffID *string `json:"assignedStaffId,omitempty"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"createdAt"`
	ResolvedAt      *string `json:"resolvedAt,omitempty"`
	Version         int64   `json:"version"`

	// Warning flags a settlement queued for reconciliation after a
	// committed confirm. The transaction itself is SUCCESS.
	Warning string `json:"warning,omitempty"`
}

// listResponse wraps polled list reads.
type listResponse struct {
	Transactions []transactionResponse `json:"transactions"`
}

// errorBody is the error envelope. Transaction is set for conflict outcomes
// so the caller can display the resolved state without another fetch.
type errorBody struct {
	Error       errorDetail          `json:"error"`
	Transaction *transactionResponse `json:"transaction,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toTransactionResponse(tx *domain.CounterTransaction) transactionResponse {
	resp := transactionResponse{
		ID:         tx.ID.String(),
		Code:       tx.Code,
		Kind:       string(tx.Kind),
		CustomerID: tx.CustomerID.String(),
		Amount:     tx.Amount.String(),
		CounterID:  tx.CounterID.String(),
		Status:     string(tx.Status),
		CreatedAt:  tx.CreatedAt.UTC().Format(time.RFC3339),
		Version:    tx.Version,
	}
	if tx.AssignedStaffID != nil {
		staffID := tx.AssignedStaffID.String()
		resp.AssignedStaffID = &staffID
	}
	if tx.ResolvedAt != nil {
		at := tx.ResolvedAt.UTC().Format(time.RFC3339)
		resp.ResolvedAt = &at
	}
	return resp
}

func toListResponse(txs []*domain.CounterTransaction) listResponse {
	resp := listResponse{Transactions: make([]transactionResponse, 0, len(txs))}
	for _, tx := range txs {
		resp.Transactions = append(resp.Transactions, toTransactionResponse(tx))
	}
	return resp
}
