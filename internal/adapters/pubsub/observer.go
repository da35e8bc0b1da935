// Package pubsub implements domain.Observer over a RabbitMQ topic
// exchange, so recalculation and simulation progress can be consumed
// by an independent worker instead of blocking the caller that
// triggered the run.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
)

const exchangeName = "risk.events"

// Observer publishes every domain.Event to exchangeName, routed by
// "<tenantId>.<kind>" so a consumer can bind to one tenant, one event
// kind, or everything with a wildcard.
type Observer struct {
	channel *amqp091.Channel
	log     *zap.Logger
}

func Dial(amqpURL string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}
	return conn, nil
}

func NewObserver(conn *amqp091.Connection, log *zap.Logger) (*Observer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declaring exchange: %w", err)
	}
	return &Observer{channel: ch, log: log}, nil
}

// Publish never returns an error to the caller: a propagation or
// simulation run must complete regardless of whether anyone is
// listening for its progress events.
func (o *Observer) Publish(ctx context.Context, tenantID string, event domain.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		o.log.Warn("failed to marshal event", zap.String("kind", string(event.Kind)), zap.Error(err))
		return
	}

	routingKey := fmt.Sprintf("%s.%s", tenantID, event.Kind)
	err = o.channel.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    event.Timestamp,
	})
	if err != nil {
		o.log.Warn("failed to publish event", zap.String("routingKey", routingKey), zap.Error(err))
	}
}

func (o *Observer) Close() error {
	return o.channel.Close()
}
