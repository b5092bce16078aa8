package queue

import (
    "context"
    "sync"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/iliyamo/court-slot-booking/internal/booking"
)

// JSONPublisher is the part of Publisher the emitter needs.
type JSONPublisher interface {
    PublishJSON(ctx context.Context, key string, v any) error
}

// AsyncEmitter implements booking.Emitter.  Each event is published from
// its own goroutine so the request that committed the booking never waits
// on the broker; failures are logged and dropped.
type AsyncEmitter struct {
    pub     JSONPublisher
    log     logrus.FieldLogger
    timeout time.Duration
    wg      sync.WaitGroup
}

var _ booking.Emitter = (*AsyncEmitter)(nil)

func NewAsyncEmitter(pub JSONPublisher, log logrus.FieldLogger, timeout time.Duration) *AsyncEmitter {
    if timeout <= 0 {
        timeout = 5 * time.Second
    }
    return &AsyncEmitter{pub: pub, log: log, timeout: timeout}
}

func (e *AsyncEmitter) Emit(ctx context.Context, ev booking.Event) {
    e.wg.Add(1)
    go func() {
        defer e.wg.Done()
        pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
        defer cancel()
        if err := e.pub.PublishJSON(pctx, string(ev.Type), ev); err != nil {
            e.log.WithError(err).WithFields(logrus.Fields{
                "event":             ev.Type,
                "booking_reference": ev.Reference,
            }).Error("publish booking event")
            return
        }
        e.log.WithFields(logrus.Fields{"event": ev.Type, "booking_reference": ev.Reference}).Debug("booking event published")
    }()
}

// Wait blocks until every in-flight publish has finished.  Call it during
// shutdown before closing the publisher.
func (e *AsyncEmitter) Wait() { e.wg.Wait() }
