package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jk-7-dev/event-manager/internal/model"
	"github.com/jk-7-dev/event-manager/internal/repository"
)

func seedEvent(t *testing.T, s *Store, total int, price int64) model.Event {
	t.Helper()
	e, err := s.CreateEvent(context.Background(), model.Event{
		Title:            "Concert",
		Description:      "Live",
		Date:             time.Date(2030, 1, 1, 20, 0, 0, 0, time.UTC),
		Location:         "Hall",
		Price:            price,
		TotalTickets:     total,
		AvailableTickets: total,
	})
	require.NoError(t, err)
	return e
}

func TestBookDebitsInventory(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := seedEvent(t, s, 10, 500)

	b, err := s.Book(ctx, model.NewBooking{UserID: "u1", EventID: e.ID, TicketID: "TKT-1", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), b.TotalCost)
	assert.Equal(t, "TKT-1", b.TicketID)

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.AvailableTickets)
}

func TestBookErrors(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := seedEvent(t, s, 2, 100)

	_, err := s.Book(ctx, model.NewBooking{UserID: "u1", EventID: "missing", TicketID: "TKT-1", Count: 1})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.Book(ctx, model.NewBooking{UserID: "u1", EventID: e.ID, TicketID: "TKT-1", Count: 3})
	assert.ErrorIs(t, err, repository.ErrInsufficientTickets)

	_, err = s.Book(ctx, model.NewBooking{UserID: "u1", EventID: e.ID, TicketID: "TKT-1", Count: 1})
	require.NoError(t, err)

	_, err = s.Book(ctx, model.NewBooking{UserID: "u1", EventID: e.ID, TicketID: "TKT-1", Count: 1})
	assert.ErrorIs(t, err, repository.ErrDuplicateTicketID)

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableTickets, "a rejected booking must not debit")
}

func TestBookConcurrentNeverOversells(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := seedEvent(t, s, 100, 10)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Book(ctx, model.NewBooking{
				UserID:   "u1",
				EventID:  e.ID,
				TicketID: fmt.Sprintf("TKT-%d", i),
				Count:    1,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repository.ErrInsufficientTickets)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, succeeded)
	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableTickets)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 100)
}

func TestUpdateEventRecomputesAvailable(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := seedEvent(t, s, 10, 100)

	_, err := s.Book(ctx, model.NewBooking{UserID: "u1", EventID: e.ID, TicketID: "TKT-1", Count: 4})
	require.NoError(t, err)

	total := 20
	got, err := s.UpdateEvent(ctx, e.ID, model.EventPatch{TotalTickets: &total})
	require.NoError(t, err)
	assert.Equal(t, 20, got.TotalTickets)
	assert.Equal(t, 16, got.AvailableTickets)

	total = 3
	_, err = s.UpdateEvent(ctx, e.ID, model.EventPatch{TotalTickets: &total})
	assert.ErrorIs(t, err, model.ErrTotalBelowSold)

	_, err = s.UpdateEvent(ctx, "missing", model.EventPatch{})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListEventsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	first := seedEvent(t, s, 1, 1)
	second := seedEvent(t, s, 1, 1)

	events, err := s.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, second.ID, events[0].ID)
	assert.Equal(t, first.ID, events[1].ID)
}

func TestDeleteEventKeepsBookings(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, err := s.CreateUser(ctx, model.User{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	e := seedEvent(t, s, 5, 100)

	_, err = s.Book(ctx, model.NewBooking{UserID: u.ID, EventID: e.ID, TicketID: "TKT-1", Count: 1})
	require.NoError(t, err)

	require.NoError(t, s.DeleteEvent(ctx, e.ID))
	assert.ErrorIs(t, s.DeleteEvent(ctx, e.ID), repository.ErrNotFound)

	_, err = s.GetEvent(ctx, e.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	mine, err := s.ListByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Nil(t, mine[0].Event)

	v, err := s.FindByTicketID(ctx, "TKT-1")
	require.NoError(t, err)
	assert.Nil(t, v.Event)
	assert.Equal(t, "Ann", v.User.Name)
}

func TestBookingProjections(t *testing.T) {
	ctx := context.Background()
	s := New()
	ann, err := s.CreateUser(ctx, model.User{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, model.User{Name: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)
	e := seedEvent(t, s, 10, 100)

	for i, uid := range []string{ann.ID, bob.ID, ann.ID} {
		_, err := s.Book(ctx, model.NewBooking{UserID: uid, EventID: e.ID, TicketID: fmt.Sprintf("TKT-%d", i), Count: 1})
		require.NoError(t, err)
	}

	mine, err := s.ListByUser(ctx, ann.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "TKT-2", mine[0].TicketID)
	assert.Equal(t, "TKT-0", mine[1].TicketID)
	assert.Equal(t, "Hall", mine[0].Event.Location)
	assert.Nil(t, mine[0].User)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "TKT-0", all[0].TicketID)
	assert.Equal(t, "Bob", all[1].User.Name)
	assert.Equal(t, "Concert", all[1].Event.Title)
	assert.Empty(t, all[1].Event.Location)

	_, err = s.FindByTicketID(ctx, "TKT-9")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := New()

	u, err := s.CreateUser(ctx, model.User{Name: "Ann", Email: " Ann@Example.com ", PasswordHash: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.NotEmpty(t, u.ID)

	_, err = s.CreateUser(ctx, model.User{Name: "Other", Email: "ANN@example.com"})
	assert.ErrorIs(t, err, repository.ErrEmailExists)

	got, err := s.FindUserByEmail(ctx, "ANN@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.PasswordHash)

	_, err = s.FindUserByID(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.FindUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBookRacingDeleteDoesNotDeadlock(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := seedEvent(t, s, 10, 100)

	// Book reads the clock while holding the event's slot; start the delete
	// right there so it runs into the held slot.
	deleted := make(chan error, 1)
	var once sync.Once
	clock := s.now
	s.now = func() time.Time {
		once.Do(func() {
			go func() { deleted <- s.DeleteEvent(ctx, e.ID) }()
			time.Sleep(50 * time.Millisecond)
		})
		return clock()
	}

	booked := make(chan error, 1)
	go func() {
		_, err := s.Book(ctx, model.NewBooking{UserID: "u1", EventID: e.ID, TicketID: "TKT-1", Count: 1})
		booked <- err
	}()

	for i, ch := range []chan error{booked, deleted} {
		select {
		case err := <-ch:
			assert.NoError(t, err, "operation %d", i)
		case <-time.After(3 * time.Second):
			t.Fatal("booking and delete deadlocked")
		}
	}

	_, err := s.GetEvent(ctx, e.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.FindByTicketID(ctx, "TKT-1")
	assert.NoError(t, err, "the booking that won the slot is kept")
}

func TestConcurrentBookUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	events := make([]model.Event, 5)
	for i := range events {
		events[i] = seedEvent(t, s, 50, 10)
	}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		e := events[i%len(events)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Book(ctx, model.NewBooking{
				UserID: "u1", EventID: e.ID, TicketID: fmt.Sprintf("TKT-%d", i), Count: 1,
			})
		}()
		if i%20 == 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				total := 60
				_, _ = s.UpdateEvent(ctx, e.ID, model.EventPatch{TotalTickets: &total})
			}()
		}
	}
	for _, e := range events[:2] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.DeleteEvent(ctx, e.ID)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent store operations did not finish")
	}

	list, err := s.ListEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	for _, e := range list {
		assert.GreaterOrEqual(t, e.AvailableTickets, 0)
		assert.LessOrEqual(t, e.AvailableTickets, e.TotalTickets)
	}
}
