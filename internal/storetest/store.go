// Package storetest provides an in-memory store implementing the slot,
// booking, consultant and reminder repositories plus a transaction manager.
// Transactions are serialized and roll back by restoring a snapshot, which
// is enough to observe atomicity and ordering in service tests.
package storetest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	bookingserrors "consultbook/internal/bookings/errors"
	bookingsrepo "consultbook/internal/bookings/repository"
	consultantserrors "consultbook/internal/consultants/errors"
	consultantsrepo "consultbook/internal/consultants/repository"
	remindererrors "consultbook/internal/reminders/errors"
	remindersrepo "consultbook/internal/reminders/repository"
	slotserrors "consultbook/internal/slots/errors"
	slotsrepo "consultbook/internal/slots/repository"
	"consultbook/pkg/db"
	"consultbook/pkg/model"
)

// Operation names accepted by FailOn and Calls.
const (
	OpSlotFind            = "slots.FindByID"
	OpSlotReserve         = "slots.Reserve"
	OpSlotRelease         = "slots.Release"
	OpSlotReleaseFor      = "slots.ReleaseFor"
	OpBookingCreate       = "bookings.Create"
	OpBookingFind         = "bookings.FindByID"
	OpBookingTransition   = "bookings.TransitionStatus"
	OpBookingList         = "bookings.List"
	OpConsultantFind      = "consultants.FindByID"
	OpReminderCreate      = "reminders.Create"
	OpReminderFind        = "reminders.FindByID"
	OpReminderTransition  = "reminders.Transition"
	OpReminderCancelBatch = "reminders.CancelPendingForBooking"
)

type txKey struct{}

type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	slots       map[string]*model.Slot
	bookings    map[string]*model.Booking
	consultants map[string]*model.Consultant
	reminders   map[string]*model.Reminder

	failures map[string]error
	calls    map[string]int
}

func New() *Store {
	return &Store{
		slots:       make(map[string]*model.Slot),
		bookings:    make(map[string]*model.Booking),
		consultants: make(map[string]*model.Consultant),
		reminders:   make(map[string]*model.Reminder),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
	}
}

func (s *Store) Slots() slotsrepo.SlotStore                       { return slotStore{s} }
func (s *Store) Bookings() bookingsrepo.BookingRepository         { return bookingStore{s} }
func (s *Store) Consultants() consultantsrepo.ConsultantRepository { return consultantStore{s} }
func (s *Store) Reminders() remindersrepo.ReminderRepository      { return reminderStore{s} }
func (s *Store) Tx() db.TransactionManager                        { return txManager{s} }

// FailOn makes every later call of op return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls reports how many times op was invoked, failed calls included.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Store) PutSlot(slot model.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.ID] = &slot
}

func (s *Store) PutConsultant(c model.Consultant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consultants[c.ID] = &c
}

func (s *Store) PutBooking(b model.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = &b
}

func (s *Store) PutReminder(r model.Reminder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[r.ID] = &r
}

func (s *Store) Slot(id string) (model.Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return model.Slot{}, false
	}
	return *slot, true
}

func (s *Store) Booking(id string) (model.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, false
	}
	return *b, true
}

func (s *Store) BookingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bookings)
}

// RemindersOf returns the reminders of bookingID ordered by schedule time.
func (s *Store) RemindersOf(bookingID string) []model.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reminder
	for _, r := range s.reminders {
		if r.BookingID == bookingID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}

// enter records a call of op and returns its injected failure. The caller
// must hold s.mu.
func (s *Store) enter(op string) error {
	s.calls[op]++
	return s.failures[op]
}

type snapshot struct {
	slots     map[string]model.Slot
	bookings  map[string]model.Booking
	reminders map[string]model.Reminder
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		slots:     make(map[string]model.Slot, len(s.slots)),
		bookings:  make(map[string]model.Booking, len(s.bookings)),
		reminders: make(map[string]model.Reminder, len(s.reminders)),
	}
	for k, v := range s.slots {
		snap.slots[k] = *v
	}
	for k, v := range s.bookings {
		snap.bookings[k] = *v
	}
	for k, v := range s.reminders {
		snap.reminders[k] = *v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = make(map[string]*model.Slot, len(snap.slots))
	for k, v := range snap.slots {
		s.slots[k] = &v
	}
	s.bookings = make(map[string]*model.Booking, len(snap.bookings))
	for k, v := range snap.bookings {
		s.bookings[k] = &v
	}
	s.reminders = make(map[string]*model.Reminder, len(snap.reminders))
	for k, v := range snap.reminders {
		s.reminders[k] = &v
	}
}

type txManager struct{ s *Store }

func (m txManager) ExecuteTransaction(ctx context.Context, fn db.TransactionFunc) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()

	snap := m.s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.s.restore(snap)
		return err
	}
	return nil
}

type slotStore struct{ s *Store }

func (r slotStore) FindByID(ctx context.Context, id string) (*model.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpSlotFind); err != nil {
		return nil, err
	}
	slot, ok := r.s.slots[id]
	if !ok {
		return nil, slotserrors.ErrNotFound
	}
	c := *slot
	return &c, nil
}

func (r slotStore) Reserve(ctx context.Context, slotID, bookingID string) (*model.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpSlotReserve); err != nil {
		return nil, err
	}
	slot, ok := r.s.slots[slotID]
	if !ok || slot.Status != model.SlotAvailable {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrSlotUnavailable, slotID)
	}
	id := bookingID
	slot.Status = model.SlotBooked
	slot.BookingID = &id
	slot.UpdatedAt = time.Now().UTC()
	c := *slot
	return &c, nil
}

func (r slotStore) Release(ctx context.Context, slotID string) (*model.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpSlotRelease); err != nil {
		return nil, err
	}
	slot, ok := r.s.slots[slotID]
	if !ok {
		return nil, slotserrors.ErrNotFound
	}
	release(slot)
	c := *slot
	return &c, nil
}

func (r slotStore) ReleaseFor(ctx context.Context, slotID, bookingID string) (*model.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpSlotReleaseFor); err != nil {
		return nil, err
	}
	slot, ok := r.s.slots[slotID]
	if !ok || slot.Status != model.SlotBooked || slot.BookingID == nil || *slot.BookingID != bookingID {
		return nil, fmt.Errorf("%w: slot %s booking %s", slotserrors.ErrNotHeld, slotID, bookingID)
	}
	release(slot)
	c := *slot
	return &c, nil
}

func release(slot *model.Slot) {
	slot.Status = model.SlotAvailable
	slot.BookingID = nil
	slot.UpdatedAt = time.Now().UTC()
}

type bookingStore struct{ s *Store }

func (r bookingStore) Create(ctx context.Context, booking *model.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpBookingCreate); err != nil {
		return err
	}
	for _, b := range r.s.bookings {
		if b.SlotID == booking.SlotID && b.Status.IsActive() {
			return fmt.Errorf("%w: %s", bookingserrors.ErrSlotTaken, booking.SlotID)
		}
	}
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	c := *booking
	r.s.bookings[booking.ID] = &c
	return nil
}

func (r bookingStore) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpBookingFind); err != nil {
		return nil, err
	}
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	c := *b
	return &c, nil
}

func (r bookingStore) List(ctx context.Context, filter bookingsrepo.ListFilter, limit int, offset int64) ([]*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpBookingList); err != nil {
		return nil, err
	}
	matched := r.matching(filter)
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if offset >= int64(len(matched)) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r bookingStore) Count(ctx context.Context, filter bookingsrepo.ListFilter) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.matching(filter))), nil
}

func (r bookingStore) matching(filter bookingsrepo.ListFilter) []*model.Booking {
	var out []*model.Booking
	for _, b := range r.s.bookings {
		if filter.CustomerID == "" || b.CustomerID == filter.CustomerID {
			c := *b
			out = append(out, &c)
		}
	}
	return out
}

func (r bookingStore) TransitionStatus(ctx context.Context, id string, change model.StatusChange) (*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpBookingTransition); err != nil {
		return nil, err
	}
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	if !slices.Contains(change.From, b.Status) {
		return nil, &bookingserrors.StatusConflictError{BookingID: id, Current: b.Status}
	}

	at := change.At.UTC()
	b.Status = change.To
	b.UpdatedAt = at
	if change.To == model.BookingCancelled {
		b.CancellationReason = change.CancellationReason
		b.CancelledBy = change.CancelledBy
		b.CancelledAt = &at
	}
	c := *b
	return &c, nil
}

type consultantStore struct{ s *Store }

func (r consultantStore) FindByID(ctx context.Context, id string) (*model.Consultant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpConsultantFind); err != nil {
		return nil, err
	}
	c, ok := r.s.consultants[id]
	if !ok {
		return nil, consultantserrors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

type reminderStore struct{ s *Store }

func (r reminderStore) Create(ctx context.Context, reminder *model.Reminder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpReminderCreate); err != nil {
		return err
	}
	now := time.Now().UTC()
	reminder.CreatedAt = now
	reminder.UpdatedAt = now
	c := *reminder
	r.s.reminders[reminder.ID] = &c
	return nil
}

func (r reminderStore) FindByID(ctx context.Context, id string) (*model.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpReminderFind); err != nil {
		return nil, err
	}
	rem, ok := r.s.reminders[id]
	if !ok {
		return nil, remindererrors.ErrNotFound
	}
	c := *rem
	return &c, nil
}

func (r reminderStore) FindByBooking(ctx context.Context, bookingID string) ([]*model.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Reminder
	for _, rem := range r.s.reminders {
		if rem.BookingID == bookingID {
			c := *rem
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r reminderStore) Transition(ctx context.Context, id string, t remindersrepo.Transition) (*model.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpReminderTransition); err != nil {
		return nil, err
	}
	rem, ok := r.s.reminders[id]
	if !ok {
		return nil, remindererrors.ErrNotFound
	}
	// Postgres rejects text that is not valid UTF-8
	if !utf8.ValidString(t.FailureReason) {
		return nil, fmt.Errorf("invalid byte sequence for encoding UTF8 in failure_reason")
	}
	if !slices.Contains(t.From, rem.Status) || (t.RetryBelow > 0 && rem.RetryCount >= t.RetryBelow) {
		return nil, &remindererrors.StatusConflictError{ReminderID: id, Current: rem.Status, RetryCount: rem.RetryCount}
	}

	at := t.At.UTC()
	rem.Status = t.To
	rem.UpdatedAt = at
	switch t.To {
	case model.ReminderSent:
		rem.SentAt = &at
	case model.ReminderDelivered:
		rem.DeliveredAt = &at
	case model.ReminderFailed:
		rem.FailedAt = &at
		rem.FailureReason = t.FailureReason
	}
	if t.IncrementRetry {
		rem.RetryCount++
	}
	c := *rem
	return &c, nil
}

func (r reminderStore) CancelPendingForBooking(ctx context.Context, bookingID string, at time.Time) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpReminderCancelBatch); err != nil {
		return nil, err
	}
	var ids []string
	for _, rem := range r.s.reminders {
		if rem.BookingID == bookingID && slices.Contains(remindersrepo.Cancellable, rem.Status) {
			rem.Status = model.ReminderCancelled
			rem.UpdatedAt = at.UTC()
			ids = append(ids, rem.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
