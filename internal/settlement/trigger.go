// Package settlement applies the monetary effect of confirmed counter
// transactions against the account service, and reconciles effects that
// failed after the state transition committed.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// HTTPTrigger invokes the account service's balance-effect endpoint. The
// cause id is the transaction id; the account service deduplicates on it, so
// retrying with the same cause id never double-applies. Calls go through a
// circuit breaker so a struggling account service doesn't pile up confirms.
type HTTPTrigger struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewHTTPTrigger creates an HTTPTrigger for the account service at baseURL.
func NewHTTPTrigger(baseURL string, logger *zap.Logger) *HTTPTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "account-service",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &HTTPTrigger{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: breaker,
		logger:  logger,
	}
}

type applyEffectRequest struct {
	CauseID string `json:"causeId"`
	Amount  string `json:"amount"` // signed decimal string
}

type balanceResponse struct {
	CustomerID string `json:"customerId"`
	Balance    string `json:"balance"`
}

// ApplyEffect posts the signed amount to the customer's account, keyed by
// causeID for idempotency.
func (t *HTTPTrigger) ApplyEffect(ctx context.Context, customerID uuid.UUID, signedAmount decimal.Decimal, causeID uuid.UUID) error {
	body, err := json.Marshal(applyEffectRequest{
		CauseID: causeID.String(),
		Amount:  signedAmount.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode balance effect: %w", err)
	}

	url := fmt.Sprintf("%s/internal/accounts/%s/balance-effects", t.baseURL, customerID)
	_, err = t.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		// 409 means the effect for this cause id was already applied, which
		// is the idempotent success case on retry.
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
			return nil, fmt.Errorf("account service returned %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply balance effect: %w", err)
	}
	return nil
}

// AvailableBalance fetches the customer's current balance for the advisory
// withdrawal pre-check.
func (t *HTTPTrigger) AvailableBalance(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/internal/accounts/%s/balance", t.baseURL, customerID)

	result, err := t.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("account service returned %d", resp.StatusCode)
		}

		var payload balanceResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("failed to decode balance: %w", err)
		}
		return payload.Balance, nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch balance: %w", err)
	}

	balance, err := decimal.NewFromString(result.(string))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance value: %w", err)
	}
	return balance, nil
}
