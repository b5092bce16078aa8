package queue

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "sync"
    "testing"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus/hooks/test"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/court-slot-booking/internal/booking"
    "github.com/iliyamo/court-slot-booking/internal/model"
    "github.com/iliyamo/court-slot-booking/internal/notify"
)

// ackRecorder implements amqp.Acknowledger.
type ackRecorder struct {
    acked, nacked, requeued int
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked++; return nil }
func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
    a.nacked++
    if requeue {
        a.requeued++
    }
    return nil
}
func (a *ackRecorder) Reject(_ uint64, requeue bool) error { return a.Nack(0, false, requeue) }

func delivery(t *testing.T, ack *ackRecorder, key string, v any) amqp.Delivery {
    t.Helper()
    body, err := json.Marshal(v)
    require.NoError(t, err)
    return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, RoutingKey: key, Body: body}
}

func TestSettle(t *testing.T) {
    log, _ := test.NewNullLogger()
    ctx := context.Background()

    ack := &ackRecorder{}
    settle(ctx, amqp.Delivery{Acknowledger: ack}, func(context.Context, amqp.Delivery) error { return nil }, log)
    assert.Equal(t, 1, ack.acked)

    ack = &ackRecorder{}
    settle(ctx, amqp.Delivery{Acknowledger: ack}, func(context.Context, amqp.Delivery) error {
        return Permanent(errors.New("bad body"))
    }, log)
    assert.Equal(t, 1, ack.nacked)
    assert.Zero(t, ack.requeued)

    ack = &ackRecorder{}
    settle(ctx, amqp.Delivery{Acknowledger: ack}, func(context.Context, amqp.Delivery) error {
        return errors.New("db down")
    }, log)
    assert.Equal(t, 1, ack.requeued)
}

func TestPermanent(t *testing.T) {
    assert.NoError(t, Permanent(nil))
    err := Permanent(booking.ErrNotFound)
    assert.True(t, IsPermanent(err))
    assert.ErrorIs(t, err, booking.ErrNotFound)
    assert.False(t, IsPermanent(booking.ErrNotFound))
}

type fakePublisher struct {
    mu   sync.Mutex
    keys []string
    err  error
}

func (p *fakePublisher) PublishJSON(ctx context.Context, key string, _ any) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if _, ok := ctx.Deadline(); !ok {
        return errors.New("publish without deadline")
    }
    p.keys = append(p.keys, key)
    return p.err
}

func TestAsyncEmitterPublishesByType(t *testing.T) {
    log, hook := test.NewNullLogger()
    pub := &fakePublisher{}
    em := NewAsyncEmitter(pub, log, time.Second)

    ctx, cancel := context.WithCancel(context.Background())
    em.Emit(ctx, booking.Event{Type: booking.EventCreated, Reference: "BKAAAA2222"})
    cancel() // a finished request must not cancel the publish
    em.Emit(ctx, booking.Event{Type: booking.EventCancelled, Reference: "BKAAAA2222"})
    em.Wait()

    assert.ElementsMatch(t, []string{"booking.created", "booking.cancelled"}, pub.keys)
    for _, e := range hook.AllEntries() {
        assert.NotEqual(t, "publish booking event", e.Message)
    }
}

func TestAsyncEmitterLogsFailures(t *testing.T) {
    log, hook := test.NewNullLogger()
    em := NewAsyncEmitter(&fakePublisher{err: errors.New("channel closed")}, log, time.Second)
    em.Emit(context.Background(), booking.Event{Type: booking.EventConfirmed, Reference: "BKAAAA2222"})
    em.Wait()

    require.NotNil(t, hook.LastEntry())
    assert.Equal(t, "publish booking event", hook.LastEntry().Message)
    assert.Equal(t, "BKAAAA2222", hook.LastEntry().Data["booking_reference"])
}

type recordingNotifier struct {
    msgs []notify.Message
    err  error
}

func (n *recordingNotifier) Notify(_ context.Context, m notify.Message) error {
    n.msgs = append(n.msgs, m)
    return n.err
}

func TestNotificationHandler(t *testing.T) {
    log, _ := test.NewNullLogger()
    n := &recordingNotifier{}
    var journal bytes.Buffer
    h := NewNotificationHandler(n, &journal, log)

    ev := booking.Event{
        Type: booking.EventConfirmed, BookingID: 7, Reference: "BKAB12CD34",
        User:      model.Contact{UserID: 100, Email: "alice@example.com"},
        VenueName: "Smash Arena", CourtName: "Court 1", Date: "2030-03-16",
        StartTime: 18 * 60, EndTime: 19 * 60, TotalAmount: 65000,
        OccurredAt: time.Date(2030, 3, 15, 20, 0, 0, 0, time.UTC),
    }
    ack := &ackRecorder{}
    require.NoError(t, h.Handle(context.Background(), delivery(t, ack, "booking.confirmed", ev)))

    require.Len(t, n.msgs, 1)
    assert.Equal(t, "alice@example.com", n.msgs[0].To)
    assert.Equal(t, "Booking BKAB12CD34 confirmed", n.msgs[0].Subject)
    assert.Equal(t, `[2030-03-15T20:00:00Z] booking.confirmed | booking_reference=BKAB12CD34 | booking_id=7 | user_id=100 | venue="Smash Arena" | court="Court 1" | date=2030-03-16 18:00-19:00 | total=65000 paise`+"\n", journal.String())
}

func TestNotificationHandlerRejectsGarbage(t *testing.T) {
    log, _ := test.NewNullLogger()
    h := NewNotificationHandler(&recordingNotifier{}, nil, log)
    err := h.Handle(context.Background(), amqp.Delivery{RoutingKey: "booking.created", Body: []byte("{")})
    assert.True(t, IsPermanent(err))
}

func TestNotificationHandlerRetriesDeliveryFailure(t *testing.T) {
    log, _ := test.NewNullLogger()
    h := NewNotificationHandler(&recordingNotifier{err: errors.New("smtp down")}, nil, log)
    err := h.Handle(context.Background(), delivery(t, &ackRecorder{}, "booking.created", booking.Event{Type: booking.EventCreated}))
    require.Error(t, err)
    assert.False(t, IsPermanent(err))
}

type fakePayments struct {
    confirmed map[uint64]string
    failed    map[uint64]string
    err       error
}

func (f *fakePayments) ConfirmPayment(_ context.Context, id uint64, ref string) (model.Booking, error) {
    if f.err != nil {
        return model.Booking{}, f.err
    }
    f.confirmed[id] = ref
    return model.Booking{ID: id, Status: model.BookingConfirmed, PaymentStatus: model.PaymentCompleted}, nil
}

func (f *fakePayments) FailPayment(_ context.Context, id uint64, reason string) (model.Booking, error) {
    if f.err != nil {
        return model.Booking{}, f.err
    }
    f.failed[id] = reason
    return model.Booking{ID: id, Status: model.BookingPending, PaymentStatus: model.PaymentFailed}, nil
}

func TestPaymentHandler(t *testing.T) {
    log, _ := test.NewNullLogger()
    svc := &fakePayments{confirmed: map[uint64]string{}, failed: map[uint64]string{}}
    h := NewPaymentHandler(svc, log)
    ctx := context.Background()
    ack := &ackRecorder{}

    require.NoError(t, h.Handle(ctx, delivery(t, ack, RKPaymentCompleted, PaymentSignal{BookingID: 7, PaymentRef: "pay_1"})))
    assert.Equal(t, "pay_1", svc.confirmed[7])

    require.NoError(t, h.Handle(ctx, delivery(t, ack, RKPaymentFailed, PaymentSignal{BookingID: 8, Reason: "card declined"})))
    assert.Equal(t, "card declined", svc.failed[8])

    assert.NoError(t, h.Handle(ctx, delivery(t, ack, "payment.refunded", PaymentSignal{BookingID: 9})))

    err := h.Handle(ctx, delivery(t, ack, RKPaymentCompleted, PaymentSignal{}))
    assert.True(t, IsPermanent(err))
}

func TestPaymentHandlerClassifiesErrors(t *testing.T) {
    log, _ := test.NewNullLogger()
    ctx := context.Background()

    h := NewPaymentHandler(&fakePayments{err: booking.ErrInvalidTransition}, log)
    err := h.Handle(ctx, delivery(t, &ackRecorder{}, RKPaymentCompleted, PaymentSignal{BookingID: 7}))
    assert.True(t, IsPermanent(err))

    h = NewPaymentHandler(&fakePayments{err: booking.ErrNotFound}, log)
    err = h.Handle(ctx, delivery(t, &ackRecorder{}, RKPaymentCompleted, PaymentSignal{BookingID: 7}))
    assert.True(t, IsPermanent(err))

    h = NewPaymentHandler(&fakePayments{err: booking.ErrSlotConflict}, log)
    err = h.Handle(ctx, delivery(t, &ackRecorder{}, RKPaymentCompleted, PaymentSignal{BookingID: 7}))
    require.Error(t, err)
    assert.False(t, IsPermanent(err))
}
