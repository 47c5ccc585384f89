package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/IshaanNene/pubharvest/internal/types"
)

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPReporter publishes each event as a JSON message on a durable queue.
type AMQPReporter struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     channel
	queue  string
	logger *slog.Logger
}

// NewAMQPReporter dials url and declares queue.
func NewAMQPReporter(url, queue string, logger *slog.Logger) (*AMQPReporter, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", queue, err)
	}

	r := newAMQPReporter(ch, queue, logger)
	r.conn = conn
	r.logger.Info("progress publisher connected", "queue", queue)
	return r, nil
}

func newAMQPReporter(ch channel, queue string, logger *slog.Logger) *AMQPReporter {
	return &AMQPReporter{
		ch:     ch,
		queue:  queue,
		logger: logger.With("component", "progress_amqp"),
	}
}

func (a *AMQPReporter) Report(_ context.Context, ev types.ProgressEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	err = a.ch.Publish(
		"",
		a.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.At,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish progress event: %w", err)
	}
	a.logger.Debug("progress published", "status", ev.Status, "current", ev.Current)
	return nil
}

func (a *AMQPReporter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var err error
	if a.ch != nil {
		err = a.ch.Close()
	}
	if a.conn != nil {
		if cerr := a.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
