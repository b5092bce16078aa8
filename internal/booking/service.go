// Package booking implements the slot booking engine: the availability
// ledger, reservation holds, the atomic committer and the booking
// lifecycle.  Storage is reached through Store so the engine can run on
// MySQL in production and on an in-memory store in tests.
package booking

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-slot-booking/internal/clock"
	"github.com/iliyamo/court-slot-booking/internal/model"
	"github.com/iliyamo/court-slot-booking/internal/utils"
)

// Defaults applied by NewService when an option is left zero.
const (
	DefaultHoldTTL     = 15 * time.Minute
	DefaultMaxHoldTTL  = 60 * time.Minute
	DefaultServiceFee  = 5000
	DefaultNoShowGrace = 30 * time.Minute
	DefaultSweepBatch  = 100
	DefaultHorizonDays = 90

	checkInCodeLength = 16
)

// Options configures a Service.
type Options struct {
	HoldTTL     time.Duration
	MaxHoldTTL  time.Duration
	ServiceFee  int64
	NoShowGrace time.Duration
	SweepBatch  int
	// HorizonDays bounds how far ahead slots can be held or booked and
	// how far ahead availability reads materialize ledger rows.
	HorizonDays int
	// Location is the venue time zone used to turn civil dates and times of
	// day into instants.
	Location *time.Location
	// PublicURL prefixes the QR verification link.
	PublicURL  string
	BcryptCost int

	Clock   clock.Clock
	Emitter Emitter
	Logger  logrus.FieldLogger
}

// Service is the booking engine.  It is safe for concurrent use; all
// coordination between callers happens in the store.
type Service struct {
	store Store
	opts  Options
	clock clock.Clock
	emit  Emitter
	log   logrus.FieldLogger

	genReference func() (string, error)
}

// NewService wires a Service over store.
func NewService(store Store, opts Options) *Service {
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = DefaultHoldTTL
	}
	if opts.MaxHoldTTL <= 0 {
		opts.MaxHoldTTL = DefaultMaxHoldTTL
	}
	if opts.ServiceFee < 0 {
		opts.ServiceFee = 0
	}
	if opts.NoShowGrace <= 0 {
		opts.NoShowGrace = DefaultNoShowGrace
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = DefaultSweepBatch
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = DefaultHorizonDays
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.BcryptCost <= 0 {
		opts.BcryptCost = utils.DefaultSecretCost
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Emitter == nil {
		opts.Emitter = NopEmitter{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Service{
		store:        store,
		opts:         opts,
		clock:        opts.Clock,
		emit:         opts.Emitter,
		log:          opts.Logger,
		genReference: randomReference,
	}
}

// ServiceFee is the flat fee added to every booking.
func (s *Service) ServiceFee() int64 { return s.opts.ServiceFee }

func (s *Service) now() time.Time { return s.clock.Now() }

// endsAt returns the instant at which a booking's window ends.
func (s *Service) endsAt(b model.Booking) time.Time {
	return b.EndTime.On(b.BookingDate, s.opts.Location)
}

// today is the current civil date in the venue time zone as midnight UTC.
func (s *Service) today() time.Time {
	y, m, d := s.now().In(s.opts.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) qrPayload(reference, code string) string {
	base := strings.TrimRight(s.opts.PublicURL, "/")
	return base + "/verify-booking/" + url.PathEscape(reference) + "?code=" + url.QueryEscape(code)
}

// publish enriches ev with directory data and hands it to the emitter.
// Lookup failures degrade the event rather than dropping it.
func (s *Service) publish(ctx context.Context, typ EventType, b model.Booking, extra func(*Event)) {
	ev := Event{
		Type:        typ,
		BookingID:   b.ID,
		Reference:   b.BookingReference,
		Status:      b.Status,
		User:        model.Contact{UserID: b.UserID},
		VenueID:     b.VenueID,
		CourtID:     b.CourtID,
		Date:        b.BookingDate.Format(model.DateLayout),
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		TotalAmount: b.TotalAmount,
		OccurredAt:  s.now(),
	}
	if b.CancellationReason != nil {
		ev.CancellationReason = *b.CancellationReason
	}
	log := s.log.WithFields(logrus.Fields{"event": typ, "booking_id": b.ID})
	if c, err := s.store.Contact(ctx, b.UserID); err == nil {
		ev.User = c
	} else {
		log.WithError(err).Warn("event: contact lookup failed")
	}
	if v, err := s.store.Venue(ctx, b.VenueID); err == nil {
		ev.VenueName = v.Name
		ev.VenueAddress = v.Address
	} else {
		log.WithError(err).Warn("event: venue lookup failed")
	}
	if c, err := s.store.Court(ctx, b.CourtID); err == nil {
		ev.CourtName = c.Name
	} else {
		log.WithError(err).Warn("event: court lookup failed")
	}
	if extra != nil {
		extra(&ev)
	}
	s.emit.Emit(context.WithoutCancel(ctx), ev)
}

func ids(slots []model.SlotAvailability) []uint64 {
	out := make([]uint64, len(slots))
	for i, sl := range slots {
		out[i] = sl.ID
	}
	return out
}

func definitionIDs(defs []model.TimeSlotDefinition) []uint64 {
	out := make([]uint64, len(defs))
	for i, d := range defs {
		out[i] = d.ID
	}
	return out
}
