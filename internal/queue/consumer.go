package queue

import (
    "context"
    "errors"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"
)

// ConsumerConfig describes one durable queue bound to a topic exchange.
type ConsumerConfig struct {
    URL      string
    Exchange string
    Queue    string
    Keys     []string
    Prefetch int
    Name     string // consumer tag, also used in log fields
}

// Handler processes one delivery.  Returning nil acks it, an error wrapped
// with Permanent rejects it without requeue, any other error requeues it.
type Handler func(ctx context.Context, d amqp.Delivery) error

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as one a redelivery cannot fix.
func Permanent(err error) error {
    if err == nil {
        return nil
    }
    return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
    var p permanentError
    return errors.As(err, &p)
}

// Consume connects to the broker and feeds deliveries to handle until ctx
// is cancelled.  Lost connections are redialed with exponential backoff
// capped at 30s.
func Consume(ctx context.Context, cfg ConsumerConfig, handle Handler, log logrus.FieldLogger) error {
    log = log.WithFields(logrus.Fields{"consumer": cfg.Name, "queue": cfg.Queue})
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return nil
        }
        conn, err := amqp.Dial(cfg.URL)
        if err != nil {
            log.WithError(err).Warnf("dial broker failed; retrying in %s", backoff)
            if !sleep(ctx, backoff) {
                return nil
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = consumeLoop(ctx, conn, cfg, handle, log)
        _ = conn.Close()
        if ctx.Err() != nil {
            return nil
        }
        log.WithError(err).Warn("consume loop ended; reconnecting")
        if !sleep(ctx, 2*time.Second) {
            return nil
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, cfg ConsumerConfig, handle Handler, log logrus.FieldLogger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    prefetch := cfg.Prefetch
    if prefetch <= 0 {
        prefetch = 50
    }
    if err := ch.Qos(prefetch, 0, false); err != nil {
        return fmt.Errorf("set qos: %w", err)
    }
    if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
        return fmt.Errorf("declare exchange: %w", err)
    }
    q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    for _, key := range cfg.Keys {
        if err := ch.QueueBind(q.Name, key, cfg.Exchange, false, nil); err != nil {
            return fmt.Errorf("bind %s: %w", key, err)
        }
    }

    msgs, err := ch.ConsumeWithContext(ctx, q.Name, cfg.Name, false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }
    log.Info("consuming")
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            settle(ctx, d, handle, log)
        }
    }
}

// settle runs handle and acknowledges d according to the outcome.
func settle(ctx context.Context, d amqp.Delivery, handle Handler, log logrus.FieldLogger) {
    err := handle(ctx, d)
    switch {
    case err == nil:
        _ = d.Ack(false)
    case IsPermanent(err):
        log.WithError(err).WithField("routing_key", d.RoutingKey).Error("reject message")
        _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
    default:
        log.WithError(err).WithField("routing_key", d.RoutingKey).Warn("requeue message")
        _ = d.Nack(false, true)
    }
}
