package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/court-slot-booking/internal/model"
)

// memStore is an in-memory Store.  Transactions are serialized, which is
// the strongest form of the row locking the MySQL store performs, and a
// failed transaction restores the state it started from.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	courts   map[uint64]model.Court
	venues   map[uint64]model.Venue
	contacts map[uint64]model.Contact
	defs     []model.TimeSlotDefinition
	rules    []model.PricingRule

	state memState

	// failUpdateSlot, when set, is consulted before every slot update.
	failUpdateSlot func(model.SlotAvailability) error
	// duplicateRefs makes CreateBooking report a reference collision.
	duplicateRefs bool
}

type memState struct {
	slots           map[uint64]model.SlotAvailability
	holds           map[string]model.Hold
	bookings        map[uint64]model.Booking
	nextSlot        uint64
	nextBooking     uint64
	nextBookingSlot uint64
}

func (st memState) clone() memState {
	c := st
	c.slots = make(map[uint64]model.SlotAvailability, len(st.slots))
	for k, v := range st.slots {
		c.slots[k] = v
	}
	c.holds = make(map[string]model.Hold, len(st.holds))
	for k, v := range st.holds {
		c.holds[k] = v
	}
	c.bookings = make(map[uint64]model.Booking, len(st.bookings))
	for k, v := range st.bookings {
		c.bookings[k] = v
	}
	return c
}

func newMemStore() *memStore {
	return &memStore{
		courts:   map[uint64]model.Court{},
		venues:   map[uint64]model.Venue{},
		contacts: map[uint64]model.Contact{},
		state: memState{
			slots:    map[uint64]model.SlotAvailability{},
			holds:    map[string]model.Hold{},
			bookings: map[uint64]model.Booking{},
		},
	}
}

func (m *memStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()
	if err := fn(memTx{m}); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) Court(_ context.Context, id uint64) (model.Court, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courts[id]
	if !ok {
		return model.Court{}, ErrNotFound
	}
	return c, nil
}

func (m *memStore) Venue(_ context.Context, id uint64) (model.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.venues[id]
	if !ok {
		return model.Venue{}, ErrNotFound
	}
	return v, nil
}

func (m *memStore) Contact(_ context.Context, id uint64) (model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok {
		return model.Contact{}, ErrNotFound
	}
	return c, nil
}

func (m *memStore) Definitions(_ context.Context, courtID uint64, day time.Weekday) ([]model.TimeSlotDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TimeSlotDefinition
	for _, d := range m.defs {
		if d.CourtID == courtID && d.DayOfWeek == day && d.IsActive {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (m *memStore) Rules(_ context.Context, venueID, courtID uint64, date time.Time) ([]model.PricingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PricingRule
	for _, r := range m.rules {
		if r.VenueID != venueID || !r.IsActive {
			continue
		}
		if r.CourtID != nil && *r.CourtID != courtID {
			continue
		}
		if date.Before(r.ValidFrom) || date.After(r.ValidTo) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) definition(id uint64) model.TimeSlotDefinition {
	for _, d := range m.defs {
		if d.ID == id {
			return d
		}
	}
	return model.TimeSlotDefinition{}
}

func (m *memStore) ensureSlotsLocked(courtID uint64, date time.Time, defIDs []uint64) {
	for _, id := range defIDs {
		found := false
		for _, s := range m.state.slots {
			if s.CourtID == courtID && s.SlotDate.Equal(date) && s.DefinitionID == id {
				found = true
				break
			}
		}
		if found {
			continue
		}
		m.state.nextSlot++
		m.state.slots[m.state.nextSlot] = model.SlotAvailability{
			ID: m.state.nextSlot, CourtID: courtID, SlotDate: date, DefinitionID: id,
			State: model.SlotAvailable, Version: 1,
		}
	}
}

func (m *memStore) EnsureSlots(_ context.Context, courtID uint64, date time.Time, defIDs []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureSlotsLocked(courtID, date, defIDs)
	return nil
}

func (m *memStore) Slots(_ context.Context, courtID uint64, date time.Time) ([]model.SlotAvailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SlotAvailability
	for _, s := range m.state.slots {
		if s.CourtID == courtID && s.SlotDate.Equal(date) {
			s.Definition = m.definition(s.DefinitionID)
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Definition.StartTime < out[j].Definition.StartTime })
	return out, nil
}

func (m *memStore) Hold(_ context.Context, id string) (model.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.state.holds[id]
	if !ok {
		return model.Hold{}, ErrNotFound
	}
	return h, nil
}

func (m *memStore) ActiveHolds(_ context.Context, userID uint64, now time.Time) ([]model.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Hold
	for _, h := range m.state.holds {
		if h.UserID == userID && h.Active(now) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memStore) ExpiredHolds(_ context.Context, now time.Time, limit int) ([]model.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Hold
	for _, h := range m.state.holds {
		if h.Status == model.HoldReserved && !h.ExpiresAt.After(now) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Booking(_ context.Context, id uint64) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.state.bookings[id]
	if !ok {
		return model.Booking{}, ErrNotFound
	}
	return b, nil
}

func (m *memStore) BookingByReference(_ context.Context, ref string) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.state.bookings {
		if b.BookingReference == ref {
			return b, nil
		}
	}
	return model.Booking{}, ErrNotFound
}

func (m *memStore) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	_, err := m.BookingByReference(ctx, ref)
	return err == nil, nil
}

func (m *memStore) ListBookings(_ context.Context, f Filter) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.state.bookings {
		if f.UserID != 0 && b.UserID != f.UserID {
			continue
		}
		if f.CourtID != 0 && b.CourtID != f.CourtID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.Date != nil && !b.BookingDate.Equal(*f.Date) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) OverdueBookings(_ context.Context, onOrBefore time.Time) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.state.bookings {
		if b.Status == model.BookingConfirmed && b.CheckInStatus == model.NotCheckedIn && !b.BookingDate.After(onOrBefore) {
			out = append(out, b)
		}
	}
	return out, nil
}

// slot returns the raw ledger row for assertions.
func (m *memStore) slot(id uint64) model.SlotAvailability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.slots[id]
}

type memTx struct{ m *memStore }

func (t memTx) EnsureSlots(_ context.Context, courtID uint64, date time.Time, defIDs []uint64) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.ensureSlotsLocked(courtID, date, defIDs)
	return nil
}

func (t memTx) collect(match func(model.SlotAvailability) bool) []model.SlotAvailability {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	var out []model.SlotAvailability
	for _, s := range t.m.state.slots {
		if match(s) {
			s.Definition = t.m.definition(s.DefinitionID)
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t memTx) LockSlots(_ context.Context, courtID uint64, date time.Time, defIDs []uint64) ([]model.SlotAvailability, error) {
	want := map[uint64]bool{}
	for _, id := range defIDs {
		want[id] = true
	}
	return t.collect(func(s model.SlotAvailability) bool {
		return s.CourtID == courtID && s.SlotDate.Equal(date) && want[s.DefinitionID]
	}), nil
}

func (t memTx) LockSlotsByID(_ context.Context, ids []uint64) ([]model.SlotAvailability, error) {
	want := map[uint64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return t.collect(func(s model.SlotAvailability) bool { return want[s.ID] }), nil
}

func (t memTx) LockSlotsByHold(_ context.Context, holdID string) ([]model.SlotAvailability, error) {
	return t.collect(func(s model.SlotAvailability) bool { return s.HoldID != nil && *s.HoldID == holdID }), nil
}

func (t memTx) UpdateSlot(_ context.Context, s model.SlotAvailability) error {
	if t.m.failUpdateSlot != nil {
		if err := t.m.failUpdateSlot(s); err != nil {
			return err
		}
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	cur, ok := t.m.state.slots[s.ID]
	if !ok || cur.Version != s.Version {
		return ErrVersionConflict
	}
	cur.State = s.State
	cur.BookingID = s.BookingID
	cur.HoldID = s.HoldID
	cur.HoldExpiry = s.HoldExpiry
	cur.Version++
	t.m.state.slots[s.ID] = cur
	return nil
}

func (t memTx) LockHold(ctx context.Context, id string) (model.Hold, error) {
	return t.m.Hold(ctx, id)
}

func (t memTx) CreateHold(_ context.Context, h model.Hold) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.state.holds[h.ID] = h
	return nil
}

func (t memTx) SetHoldStatus(_ context.Context, id string, from, to model.HoldStatus) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	h, ok := t.m.state.holds[id]
	if !ok {
		return ErrNotFound
	}
	if h.Status != from {
		return ErrVersionConflict
	}
	h.Status = to
	t.m.state.holds[id] = h
	return nil
}

func (t memTx) CreateBooking(_ context.Context, b *model.Booking) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.m.duplicateRefs {
		return ErrDuplicateReference
	}
	for _, other := range t.m.state.bookings {
		if other.BookingReference == b.BookingReference {
			return ErrDuplicateReference
		}
	}
	t.m.state.nextBooking++
	b.ID = t.m.state.nextBooking
	slots := make([]model.BookingSlot, len(b.Slots))
	for i, bs := range b.Slots {
		t.m.state.nextBookingSlot++
		bs.ID = t.m.state.nextBookingSlot
		bs.BookingID = b.ID
		slots[i] = bs
	}
	b.Slots = slots
	t.m.state.bookings[b.ID] = *b
	return nil
}

func (t memTx) LockBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return t.m.Booking(ctx, id)
}

func (t memTx) UpdateBooking(_ context.Context, b model.Booking) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	cur, ok := t.m.state.bookings[b.ID]
	if !ok || cur.Version != b.Version {
		return ErrVersionConflict
	}
	b.Version++
	b.Slots = cur.Slots
	t.m.state.bookings[b.ID] = b
	return nil
}

// recorder is an Emitter that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
