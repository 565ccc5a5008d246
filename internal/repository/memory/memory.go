// Package memory implements the repository contracts in process memory.
// It backs the "memory" store driver and the service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jk-7-dev/event-manager/internal/model"
	"github.com/jk-7-dev/event-manager/internal/repository"
)

var (
	_ repository.EventStore   = (*Store)(nil)
	_ repository.BookingStore = (*Store)(nil)
	_ repository.UserStore    = (*Store)(nil)
)

// eventSlot holds one event. Its mutex serializes inventory changes for
// that event only.
type eventSlot struct {
	mu      sync.Mutex
	event   model.Event
	deleted bool
	seq     uint64
}

// Store keeps events, bookings and users in maps. mu guards the maps and
// is only held for lookups and inserts; check-and-debit runs under the
// per-event slot mutex. Lock order is slot mutex before mu: mu is never held
// while waiting on a slot.
type Store struct {
	mu       sync.RWMutex
	seq      uint64
	events   map[string]*eventSlot
	bookings []model.Booking
	byTicket map[string]int
	users    map[string]model.User
	byEmail  map[string]string

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		events:   make(map[string]*eventSlot),
		byTicket: make(map[string]int),
		users:    make(map[string]model.User),
		byEmail:  make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) slot(id string) (*eventSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.events[id]
	return sl, ok
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent stores e under a fresh id.
func (s *Store) CreateEvent(_ context.Context, e model.Event) (model.Event, error) {
	now := s.now()
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.events[e.ID] = &eventSlot{event: e, seq: s.seq}

	return e, nil
}

// ListEvents returns all events, newest first.
func (s *Store) ListEvents(_ context.Context) ([]model.Event, error) {
	s.mu.RLock()
	slots := make([]*eventSlot, 0, len(s.events))
	for _, sl := range s.events {
		slots = append(slots, sl)
	}
	s.mu.RUnlock()

	sort.Slice(slots, func(i, j int) bool { return slots[i].seq > slots[j].seq })

	events := make([]model.Event, 0, len(slots))
	for _, sl := range slots {
		sl.mu.Lock()
		if !sl.deleted {
			events = append(events, sl.event)
		}
		sl.mu.Unlock()
	}
	return events, nil
}

// GetEvent returns the event or repository.ErrNotFound.
func (s *Store) GetEvent(_ context.Context, id string) (model.Event, error) {
	sl, ok := s.slot(id)
	if !ok {
		return model.Event{}, repository.ErrNotFound
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.deleted {
		return model.Event{}, repository.ErrNotFound
	}
	return sl.event, nil
}

// UpdateEvent applies patch under the event's slot mutex, so it is ordered
// against concurrent bookings.
func (s *Store) UpdateEvent(_ context.Context, id string, patch model.EventPatch) (model.Event, error) {
	sl, ok := s.slot(id)
	if !ok {
		return model.Event{}, repository.ErrNotFound
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.deleted {
		return model.Event{}, repository.ErrNotFound
	}

	updated, err := sl.event.Apply(patch)
	if err != nil {
		return model.Event{}, err
	}
	updated.UpdatedAt = s.now()
	sl.event = updated

	return updated, nil
}

// DeleteEvent removes the event. Bookings made against it are kept.
func (s *Store) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	sl, ok := s.events[id]
	if ok {
		delete(s.events, id)
	}
	s.mu.Unlock()

	if !ok {
		return repository.ErrNotFound
	}

	// A booking already holding the slot finishes first; later ones that
	// fetched the slot before the map delete see deleted.
	sl.mu.Lock()
	sl.deleted = true
	sl.mu.Unlock()

	return nil
}

// ─── Bookings ─────────────────────────────────────────────────────────────────

// Book checks and debits the inventory while holding the event's slot
// mutex, so bookings on one event are applied one at a time and bookings
// on different events only share the brief map lock.
func (s *Store) Book(_ context.Context, nb model.NewBooking) (model.Booking, error) {
	sl, ok := s.slot(nb.EventID)
	if !ok {
		return model.Booking{}, repository.ErrNotFound
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.deleted {
		return model.Booking{}, repository.ErrNotFound
	}
	if nb.Count > sl.event.AvailableTickets {
		return model.Booking{}, repository.ErrInsufficientTickets
	}

	booking := model.Booking{
		ID:          uuid.NewString(),
		UserID:      nb.UserID,
		EventID:     nb.EventID,
		TicketID:    nb.TicketID,
		Count:       nb.Count,
		TotalCost:   sl.event.Cost(nb.Count),
		BookingDate: s.now(),
	}

	s.mu.Lock()
	if _, taken := s.byTicket[booking.TicketID]; taken {
		s.mu.Unlock()
		return model.Booking{}, repository.ErrDuplicateTicketID
	}
	s.byTicket[booking.TicketID] = len(s.bookings)
	s.bookings = append(s.bookings, booking)
	s.mu.Unlock()

	sl.event.AvailableTickets -= nb.Count
	sl.event.UpdatedAt = booking.BookingDate

	return booking, nil
}

// eventSummary returns the current projection of an event, or nil when the
// event no longer exists. Callers must not hold s.mu.
func (s *Store) eventSummary(id string, full bool) *model.EventSummary {
	sl, ok := s.slot(id)
	if !ok {
		return nil
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.deleted {
		return nil
	}

	sum := &model.EventSummary{Title: sl.event.Title, Date: sl.event.Date}
	if full {
		sum.Location = sl.event.Location
		sum.Image = sl.event.Image
	}
	return sum
}

func (s *Store) userSummary(id string) *model.UserSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return &model.UserSummary{}
	}
	return &model.UserSummary{Name: u.Name, Email: u.Email}
}

func view(b model.Booking) model.BookingView {
	return model.BookingView{
		ID:          b.ID,
		TicketID:    b.TicketID,
		Count:       b.Count,
		TotalCost:   b.TotalCost,
		BookingDate: b.BookingDate,
		UserID:      b.UserID,
	}
}

// ListByUser returns the user's bookings, most recent first.
func (s *Store) ListByUser(_ context.Context, userID string) ([]model.BookingView, error) {
	s.mu.RLock()
	var mine []model.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			mine = append(mine, b)
		}
	}
	s.mu.RUnlock()

	views := make([]model.BookingView, 0, len(mine))
	// Bookings are appended in creation order; walk backwards for newest first.
	for i := len(mine) - 1; i >= 0; i-- {
		v := view(mine[i])
		v.Event = s.eventSummary(mine[i].EventID, true)
		views = append(views, v)
	}
	return views, nil
}

// ListAll returns every booking in creation order.
func (s *Store) ListAll(_ context.Context) ([]model.BookingView, error) {
	s.mu.RLock()
	all := make([]model.Booking, len(s.bookings))
	copy(all, s.bookings)
	s.mu.RUnlock()

	views := make([]model.BookingView, 0, len(all))
	for _, b := range all {
		v := view(b)
		v.User = s.userSummary(b.UserID)
		v.Event = s.eventSummary(b.EventID, false)
		views = append(views, v)
	}
	return views, nil
}

// FindByTicketID returns the booking with its event and user projections.
func (s *Store) FindByTicketID(_ context.Context, ticketID string) (model.BookingView, error) {
	s.mu.RLock()
	i, ok := s.byTicket[ticketID]
	var b model.Booking
	if ok {
		b = s.bookings[i]
	}
	s.mu.RUnlock()

	if !ok {
		return model.BookingView{}, repository.ErrNotFound
	}

	v := view(b)
	v.User = s.userSummary(b.UserID)
	v.Event = s.eventSummary(b.EventID, true)
	return v, nil
}

// ─── Users ────────────────────────────────────────────────────────────────────

// CreateUser stores u with a lower-cased email, or returns
// repository.ErrEmailExists.
func (s *Store) CreateUser(_ context.Context, u model.User) (model.User, error) {
	u.ID = uuid.NewString()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[u.Email]; taken {
		return model.User{}, repository.ErrEmailExists
	}
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID

	return u, nil
}

// FindUserByID returns the user or repository.ErrNotFound.
func (s *Store) FindUserByID(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

// FindUserByEmail looks the user up case-insensitively.
func (s *Store) FindUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return s.users[id], nil
}
