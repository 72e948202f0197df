// Package events publishes transaction lifecycle events to RabbitMQ so
// read-side consumers (notifications, dashboards) can observe state changes
// without polling the store. Publication is best-effort: the store remains
// the source of truth and clients still poll their views.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/minibank/counter-service/internal/domain"
)

// RabbitMQPublisher implements domain.EventPublisher over a topic exchange.
// Routing keys follow "counter.transactions.<event>".
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// lifecycleEventPayload is the wire format of a lifecycle event.
type lifecycleEventPayload struct {
	Event           string  `json:"event"`
	TransactionID   string  `json:"transactionId"`
	Code            string  `json:"code"`
	Kind            string  `json:"kind"`
	CustomerID      string  `json:"customerId"`
	Amount          string  `json:"amount"`
	CounterID       string  `json:"counterId"`
	AssignedStaffID *string `json:"assignedStaffId,omitempty"`
	Status          string  `json:"status"`
	OccurredAt      string  `json:"occurredAt"` // RFC 3339
}

// NewRabbitMQPublisher connects to RabbitMQ and declares the topic exchange.
func NewRabbitMQPublisher(url, exchange string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("RabbitMQ publisher initialized", zap.String("exchange", exchange))

	return &RabbitMQPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// PublishLifecycleEvent publishes a state-change event.
func (p *RabbitMQPublisher) PublishLifecycleEvent(ctx context.Context, event domain.LifecycleEvent) error {
	tx := event.Transaction

	payload := lifecycleEventPayload{
		Event:         string(event.Type),
		TransactionID: tx.ID.String(),
		Code:          tx.Code,
		Kind:          string(tx.Kind),
		CustomerID:    tx.CustomerID.String(),
		Amount:        tx.Amount.String(),
		CounterID:     tx.CounterID.String(),
		Status:        string(tx.Status),
		OccurredAt:    event.OccurredAt.Format(time.RFC3339),
	}
	if tx.AssignedStaffID != nil {
		staffID := tx.AssignedStaffID.String()
		payload.AssignedStaffID = &staffID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal lifecycle event: %w", err)
	}

	routingKey := "counter.transactions." + string(event.Type)
	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    tx.ID.String(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish lifecycle event: %w", err)
	}
	return nil
}

// Close closes the RabbitMQ channel and connection.
func (p *RabbitMQPublisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("error closing channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
