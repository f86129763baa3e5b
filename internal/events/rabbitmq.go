// Package events publishes booking lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

var eventTypes = []domain.BookingEventType{
	domain.EventBookingReserved,
	domain.EventBookingPaid,
	domain.EventBookingCancelled,
	domain.EventBookingExpired,
	domain.EventBookingFailed,
}

var errPublisherClosed = errors.New("rabbitmq publisher is closed")

// RabbitPublisher sends each event to the default exchange with the event type as
// routing key, so every type lands in its own durable queue.
type RabbitPublisher struct {
	url    string
	logger *slog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewRabbitPublisher(url string, logger *slog.Logger) (*RabbitPublisher, error) {
	p := &RabbitPublisher{
		url:    url,
		logger: logger,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *RabbitPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}

	for _, eventType := range eventTypes {
		_, err := ch.QueueDeclare(
			string(eventType),
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,
		)
		if err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return fmt.Errorf("rabbitmq: queue declare %s failed: %w", eventType, err)
		}
	}

	p.conn = conn
	p.ch = ch

	return nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, event domain.BookingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event failed: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.BookingID.String(),
		Type:         string(event.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errPublisherClosed
	}

	// A broker restart closes the channel; reconnect once before giving up.
	if p.conn == nil || p.conn.IsClosed() || p.ch.IsClosed() {
		p.logger.WarnContext(ctx, "rabbitmq connection lost, reconnecting")

		p.release()
		if err := p.connect(); err != nil {
			return err
		}
	}

	err = p.ch.PublishWithContext(ctx,
		"",                 // default exchange
		string(event.Type), // routing key = queue name
		false,              // mandatory
		false,              // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish failed: %w", err)
	}

	return nil
}

func (p *RabbitPublisher) release() {
	if p.ch != nil {
		_ = p.ch.Close()
	}

	if p.conn != nil {
		_ = p.conn.Close()
	}

	p.ch = nil
	p.conn = nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.release()

	return nil
}
