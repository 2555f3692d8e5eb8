package notify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bugtrackr/apiserver/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitNotifier publishes bug events to a RabbitMQ queue.
type RabbitNotifier struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	queueDurable bool
}

// NewRabbitNotifier constructs a RabbitMQ notifier from config.
func NewRabbitNotifier(cfg config.RabbitMQConfig) (*RabbitNotifier, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &RabbitNotifier{
		conn:         conn,
		channel:      ch,
		queueDurable: cfg.QueueDurable,
	}, nil
}

// Publish sends the event to the bug-events queue as JSON.
func (r *RabbitNotifier) Publish(ctx context.Context, event Event) error {
	if _, err := r.channel.QueueDeclare(Channel, r.queueDurable, false, false, false, nil); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return r.channel.PublishWithContext(ctx, "", Channel, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   newMessageID(),
		Headers:     amqp.Table{"kind": event.Kind},
		Body:        body,
	})
}

// Close closes the underlying channel and connection.
func (r *RabbitNotifier) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func newMessageID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
