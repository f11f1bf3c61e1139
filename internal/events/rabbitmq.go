package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

const publishTimeout = 5 * time.Second

// RabbitMQPublisher publishes decision events to a durable topic exchange in
// confirm mode, so a returned nil means the broker has taken ownership of the
// message.
type RabbitMQPublisher struct {
	exchange      string
	connection    *amqp.Connection
	channel       *amqp.Channel
	notifyConfirm chan amqp.Confirmation
	log           zerolog.Logger
}

func NewRabbitMQPublisher(url, exchange string, log zerolog.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	publisher := &RabbitMQPublisher{
		exchange:      exchange,
		connection:    conn,
		channel:       channel,
		notifyConfirm: make(chan amqp.Confirmation, 1),
		log:           log,
	}
	channel.NotifyPublish(publisher.notifyConfirm)

	log.Info().Str("exchange", exchange).Msg("event publisher connected")
	return publisher, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, event interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.channel.Publish(
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	select {
	case confirm := <-p.notifyConfirm:
		if confirm.Ack {
			p.log.Debug().Str("routing_key", routingKey).Msg("event confirmed")
			return nil
		}
		return errors.New("event published but not confirmed")
	case <-time.After(publishTimeout):
		return errors.New("publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *RabbitMQPublisher) Close() {
	if p.connection != nil && !p.connection.IsClosed() {
		p.connection.Close()
	}
}
