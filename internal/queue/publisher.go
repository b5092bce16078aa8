// Package queue connects the booking engine to RabbitMQ.  Booking events
// leave through a topic exchange; payment signals and notification work
// arrive through durable queues bound to topic exchanges.
package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes JSON messages to one topic exchange.  A channel is
// not safe for concurrent publishing, so publishes are serialized.
type Publisher struct {
    mu       sync.Mutex
    conn     *amqp.Connection
    ch       *amqp.Channel
    exchange string
}

// NewPublisher dials the broker and declares the exchange (durable topic).
func NewPublisher(url, exchange string) (*Publisher, error) {
    conn, err := amqp.Dial(url)
    if err != nil {
        return nil, fmt.Errorf("dial rabbitmq: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("open channel: %w", err)
    }
    if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return nil, fmt.Errorf("declare exchange: %w", err)
    }
    return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// PublishJSON marshals v and publishes it with the given routing key.
// Messages are marked persistent so they survive a broker restart.
func (p *Publisher) PublishJSON(ctx context.Context, key string, v any) error {
    body, err := json.Marshal(v)
    if err != nil {
        return fmt.Errorf("marshal %s: %w", key, err)
    }
    p.mu.Lock()
    defer p.mu.Unlock()
    return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    time.Now().UTC(),
        Body:         body,
    })
}

func (p *Publisher) Close() error {
    if p.ch != nil {
        _ = p.ch.Close()
    }
    if p.conn != nil {
        return p.conn.Close()
    }
    return nil
}
